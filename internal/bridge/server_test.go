package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newmatik/gerbtrace-shell/internal/commands"
	"github.com/newmatik/gerbtrace-shell/pkg/mailbox"
)

const testToken = "test-token"

func newTestBridge(t *testing.T, mb commands.Mailbox, cfg Config) (*Server, string) {
	t.Helper()

	r := commands.NewRouter(nil)
	commands.RegisterPostUpdate(r, mb)
	commands.RegisterAbout(r, commands.DefaultAbout("2.3.0"))

	if cfg.Token == "" {
		cfg.Token = testToken
	}
	srv := NewServer(cfg, r)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
		ts.Close()
	})

	return srv, strings.TrimPrefix(ts.URL, "http://")
}

func ctxWithTimeout(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestBridge_SaveConsumeRoundTrip(t *testing.T) {
	mb := mailbox.NewAt(t.TempDir())
	_, addr := newTestBridge(t, mb, Config{})
	c := NewClient(addr, testToken)
	ctx := ctxWithTimeout(t)

	out, err := c.Invoke(ctx, commands.SavePostUpdateInfo, json.RawMessage(`{"payload":"{\"version\":\"2.3.0\"}"}`))
	require.NoError(t, err)
	assert.Equal(t, "null", string(out))

	out, err = c.Invoke(ctx, commands.ConsumePostUpdateInfo, nil)
	require.NoError(t, err)
	assert.Equal(t, `"{\"version\":\"2.3.0\"}"`, string(out))

	out, err = c.Invoke(ctx, commands.ConsumePostUpdateInfo, nil)
	require.NoError(t, err)
	assert.Equal(t, "null", string(out))
}

func TestBridge_List(t *testing.T) {
	_, addr := newTestBridge(t, mailbox.NewAt(t.TempDir()), Config{})

	names, err := NewClient(addr, testToken).List(ctxWithTimeout(t))
	require.NoError(t, err)
	assert.Equal(t, []string{commands.AppInfo, commands.ConsumePostUpdateInfo, commands.SavePostUpdateInfo}, names)
}

func TestBridge_Errors(t *testing.T) {
	dir := t.TempDir()
	_, addr := newTestBridge(t, mailbox.NewAt(dir), Config{})

	tests := []struct {
		name     string
		token    string
		command  string
		args     string
		wantCode int
	}{
		{name: "wrong token", token: "nope", command: commands.AppInfo, wantCode: CodeUnauthorized},
		{name: "missing token", token: "", command: commands.AppInfo, wantCode: CodeUnauthorized},
		{name: "unknown command", token: testToken, command: "render_gerber", wantCode: CodeUnknown},
		{name: "invalid args", token: testToken, command: commands.SavePostUpdateInfo, args: `{"payload":1}`, wantCode: CodeInvalidArgs},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var args json.RawMessage
			if tt.args != "" {
				args = json.RawMessage(tt.args)
			}
			_, err := NewClient(addr, tt.token).Invoke(ctxWithTimeout(t), tt.command, args)

			var remote *RemoteError
			require.True(t, errors.As(err, &remote), "got %v", err)
			assert.Equal(t, tt.wantCode, remote.Code)
		})
	}
}

type brokenMailbox struct{}

func (brokenMailbox) Save(string) error {
	return errors.New("mailbox: i/o failure: write post_update_info.json: no space left on device")
}
func (brokenMailbox) Consume() (string, bool) { return "", false }

func TestBridge_SaveFailureCarriesCause(t *testing.T) {
	_, addr := newTestBridge(t, brokenMailbox{}, Config{})

	_, err := NewClient(addr, testToken).Invoke(ctxWithTimeout(t), commands.SavePostUpdateInfo, json.RawMessage(`{"payload":"x"}`))

	var remote *RemoteError
	require.True(t, errors.As(err, &remote), "got %v", err)
	assert.Equal(t, CodeCommandFailed, remote.Code)
	assert.Contains(t, remote.Message, "no space left on device")
}

func dialRaw(t *testing.T, addr string) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial("ws://"+addr+Path, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func TestBridge_ParseErrorKeepsConnection(t *testing.T) {
	_, addr := newTestBridge(t, mailbox.NewAt(t.TempDir()), Config{})
	conn := dialRaw(t, addr)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	var resp Response
	require.NoError(t, conn.ReadJSON(&resp))
	assert.Equal(t, TypeError, resp.Type)
	assert.Equal(t, CodeParseError, resp.Code)

	// Same connection, well-formed request, id echoed back.
	require.NoError(t, conn.WriteJSON(Request{ID: "42", Type: TypeList, Token: testToken}))
	resp = Response{}
	require.NoError(t, conn.ReadJSON(&resp))
	assert.Equal(t, "42", resp.ID)
	assert.Equal(t, TypeCommands, resp.Type)
}

func TestBridge_UnknownRequestType(t *testing.T) {
	_, addr := newTestBridge(t, mailbox.NewAt(t.TempDir()), Config{})
	conn := dialRaw(t, addr)

	require.NoError(t, conn.WriteJSON(Request{Type: "Subscribe", Token: testToken}))
	var resp Response
	require.NoError(t, conn.ReadJSON(&resp))
	assert.Equal(t, CodeUnknown, resp.Code)
}

func TestBridge_MessageTooLarge(t *testing.T) {
	_, addr := newTestBridge(t, mailbox.NewAt(t.TempDir()), Config{MaxMessageBytes: 64})
	conn := dialRaw(t, addr)

	big := strings.Repeat("x", 1024)
	require.NoError(t, conn.WriteJSON(Request{
		Type:      TypeInvoke,
		Name:      commands.SavePostUpdateInfo,
		Arguments: json.RawMessage(`{"payload":"` + big + `"}`),
		Token:     testToken,
	}))

	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

func TestBridge_TinyReadTimeoutDoesNotCrash(t *testing.T) {
	_, addr := newTestBridge(t, mailbox.NewAt(t.TempDir()), Config{ReadTimeout: time.Nanosecond})

	// The server drops the silent connection; it must keep serving.
	conn := dialRaw(t, addr)
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)

	resp, err := http.Get("http://" + addr + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestPingInterval(t *testing.T) {
	tests := []struct {
		name        string
		readTimeout time.Duration
		want        time.Duration
	}{
		{name: "default", readTimeout: 30 * time.Second, want: 27 * time.Second},
		{name: "one nanosecond", readTimeout: time.Nanosecond, want: minPingInterval},
		{name: "just below floor", readTimeout: minPingInterval, want: minPingInterval},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, pingInterval(tt.readTimeout))
		})
	}
}

func TestBridge_Healthz(t *testing.T) {
	_, addr := newTestBridge(t, mailbox.NewAt(t.TempDir()), Config{})

	resp, err := http.Get("http://" + addr + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_StartShutdown(t *testing.T) {
	r := commands.NewRouter(nil)
	commands.RegisterAbout(r, commands.DefaultAbout(""))

	srv := NewServer(Config{}, r)
	assert.Empty(t, srv.Addr())
	_, err := uuid.Parse(srv.Token())
	require.NoError(t, err, "generated token should be a UUID")

	require.NoError(t, srv.Start())
	addr := srv.Addr()
	require.NotEmpty(t, addr)

	out, err := NewClient(addr, srv.Token()).Invoke(ctxWithTimeout(t), commands.AppInfo, nil)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"name":"Gerbtrace"`)

	conn := dialRaw(t, addr)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))

	// Open connections are closed by shutdown.
	_, _, err = conn.ReadMessage()
	assert.Error(t, err)

	_, err = NewClient(addr, srv.Token()).List(ctxWithTimeout(t))
	assert.Error(t, err)
}

func TestNewClient_URL(t *testing.T) {
	assert.Equal(t, "ws://127.0.0.1:9000/ipc", NewClient("127.0.0.1:9000", "").url)
	assert.Equal(t, "ws://example/custom", NewClient("ws://example/custom", "").url)
}
