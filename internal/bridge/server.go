package bridge

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/newmatik/gerbtrace-shell/internal/commands"
	"github.com/newmatik/gerbtrace-shell/pkg/log"
)

const (
	// Path is the WebSocket endpoint.
	Path = "/ipc"

	writeWait = 10 * time.Second

	// minPingInterval keeps the keepalive ticker valid for tiny read timeouts.
	minPingInterval = 10 * time.Millisecond
)

// Config configures a Server.
type Config struct {
	// Addr is the loopback listen address. Default: 127.0.0.1:0
	Addr string

	// Token authenticates requests. A random UUID is used when empty.
	Token string

	// ReadTimeout is how long a connection may stay silent, pongs included.
	// Default: 30 seconds
	ReadTimeout time.Duration

	// MaxMessageBytes limits the size of one request. Default: 1MB
	MaxMessageBytes int64

	Logger log.Logger
}

// Server serves the command boundary over WebSocket.
type Server struct {
	cfg      Config
	router   Router
	logger   log.Logger
	upgrader websocket.Upgrader

	mu       sync.Mutex
	listener net.Listener
	httpSrv  *http.Server
	conns    map[*websocket.Conn]struct{}
	closing  bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer creates a Server. Call Start to begin listening.
func NewServer(cfg Config, router Router) *Server {
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:0"
	}
	if cfg.Token == "" {
		cfg.Token = uuid.NewString()
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.MaxMessageBytes <= 0 {
		cfg.MaxMessageBytes = 1 << 20
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNoopLogger()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:    cfg,
		router: router,
		logger: logger,
		upgrader: websocket.Upgrader{
			// Webview origins differ per platform (tauri://localhost,
			// http://tauri.localhost, dev servers); requests are
			// authenticated by token instead.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		conns:  make(map[*websocket.Conn]struct{}),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Token returns the session token clients must present.
func (s *Server) Token() string { return s.cfg.Token }

// Handler returns the HTTP handler serving Path and /healthz.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(Path, s.serveWS)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: writeWait,
	}

	s.mu.Lock()
	s.listener = ln
	s.httpSrv = srv
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("bridge server stopped", log.Err(err))
		}
	}()

	s.logger.Info("bridge listening", log.String("addr", ln.Addr().String()))
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown stops accepting connections, closes open ones and waits for
// in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	srv := s.httpSrv
	for c := range s.conns {
		_ = c.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(time.Second))
		_ = c.Close()
	}
	s.mu.Unlock()

	s.cancel()

	var err error
	if srv != nil {
		err = srv.Shutdown(ctx)
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return err
}

func (s *Server) track(c *websocket.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.conns[c] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(c *websocket.Conn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
	s.wg.Done()
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", log.Err(err))
		return
	}
	if !s.track(conn) {
		_ = conn.Close()
		return
	}
	defer s.untrack(conn)
	s.handleConn(conn)
}

func (s *Server) handleConn(conn *websocket.Conn) {
	defer conn.Close()

	var writeMu sync.Mutex
	write := func(resp Response) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteJSON(resp)
	}

	conn.SetReadLimit(s.cfg.MaxMessageBytes)
	_ = conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	})

	stopPing := make(chan struct{})
	defer close(stopPing)
	go func() {
		ticker := time.NewTicker(pingInterval(s.cfg.ReadTimeout))
		defer ticker.Stop()
		for {
			select {
			case <-stopPing:
				return
			case <-ticker.C:
				writeMu.Lock()
				err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
				writeMu.Unlock()
				if err != nil {
					return
				}
			}
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("bridge connection closed", log.Err(err))
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))

		if err := write(s.handleMessage(data)); err != nil {
			return
		}
	}
}

func (s *Server) handleMessage(data []byte) Response {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return Response{
			Type:    TypeError,
			Code:    CodeParseError,
			Message: "parse error: " + err.Error(),
		}
	}
	resp := s.handleRequest(req)
	resp.ID = req.ID
	return resp
}

func (s *Server) handleRequest(req Request) Response {
	if subtle.ConstantTimeCompare([]byte(req.Token), []byte(s.cfg.Token)) != 1 {
		s.logger.Warn("bridge request rejected",
			log.String("type", req.Type), log.String("name", req.Name), log.Bool("token_present", req.Token != ""))
		return Response{Type: TypeError, Code: CodeUnauthorized, Message: "unauthorized"}
	}

	switch req.Type {
	case TypeList:
		return Response{Type: TypeCommands, Commands: s.router.Names()}

	case TypeInvoke:
		result, err := s.router.Invoke(s.ctx, req.Name, req.Arguments)
		if err != nil {
			return Response{Type: TypeError, Code: errorCode(err), Message: err.Error()}
		}
		return Response{Type: TypeResult, Result: result}

	default:
		s.logger.Debug("bridge: unknown request type", log.String("type", req.Type))
		return Response{
			Type:    TypeError,
			Code:    CodeUnknown,
			Message: "unknown request type: " + req.Type,
		}
	}
}

// pingInterval is slightly shorter than the read timeout so pongs arrive in time.
func pingInterval(readTimeout time.Duration) time.Duration {
	if d := readTimeout * 9 / 10; d >= minPingInterval {
		return d
	}
	return minPingInterval
}

func errorCode(err error) int {
	switch {
	case errors.Is(err, commands.ErrUnknownCommand):
		return CodeUnknown
	case errors.Is(err, commands.ErrInvalidArgs):
		return CodeInvalidArgs
	case errors.Is(err, context.Canceled):
		return CodeShuttingDown
	default:
		return CodeCommandFailed
	}
}
