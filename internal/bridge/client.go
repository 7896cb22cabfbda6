package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Client sends requests to a running bridge. Each call opens a fresh
// connection.
type Client struct {
	url    string
	token  string
	dialer *websocket.Dialer
}

// NewClient creates a Client for addr, either host:port or a ws:// URL.
func NewClient(addr, token string) *Client {
	url := addr
	if !strings.HasPrefix(url, "ws://") && !strings.HasPrefix(url, "wss://") {
		url = "ws://" + addr + Path
	}
	return &Client{
		url:   url,
		token: token,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

// List returns the names of the commands the bridge serves.
func (c *Client) List(ctx context.Context) ([]string, error) {
	resp, err := c.send(ctx, Request{Type: TypeList})
	if err != nil {
		return nil, fmt.Errorf("list commands: %w", err)
	}
	return resp.Commands, nil
}

// Invoke runs a command and returns its raw JSON result.
func (c *Client) Invoke(ctx context.Context, name string, args json.RawMessage) (json.RawMessage, error) {
	resp, err := c.send(ctx, Request{
		Type:      TypeInvoke,
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		return nil, fmt.Errorf("invoke %s: %w", name, err)
	}
	return resp.Result, nil
}

// send dials, writes one request, reads one response and closes.
func (c *Client) send(ctx context.Context, req Request) (*Response, error) {
	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("cannot connect to bridge at %s: %w (is the shell running?)", c.url, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(deadline)
		_ = conn.SetReadDeadline(deadline)
	}

	req.ID = uuid.NewString()
	req.Token = c.token
	if err := conn.WriteJSON(req); err != nil {
		return nil, fmt.Errorf("write failed: %w", err)
	}

	var resp Response
	if err := conn.ReadJSON(&resp); err != nil {
		return nil, fmt.Errorf("read failed: %w", err)
	}

	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))

	if resp.Type == TypeError {
		return nil, &RemoteError{Code: resp.Code, Message: resp.Message}
	}
	if resp.ID != req.ID {
		return nil, fmt.Errorf("response id %q does not match request %q", resp.ID, req.ID)
	}
	return &resp, nil
}
