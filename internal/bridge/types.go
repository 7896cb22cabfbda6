// Package bridge carries the command boundary over a loopback WebSocket.
//
// The webview front-end connects to ws://<addr>/ipc and exchanges one JSON
// Response per Request. Every request must carry the session token the
// shell handed to the front-end at startup.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
)

// Request types.
const (
	TypeInvoke = "Invoke"
	TypeList   = "List"
)

// Response types.
const (
	TypeResult   = "Result"
	TypeCommands = "Commands"
	TypeError    = "Error"
)

// Error codes, JSON-RPC flavoured.
const (
	CodeParseError    = -32700
	CodeUnknown       = -32601
	CodeInvalidArgs   = -32602
	CodeCommandFailed = -32603
	CodeUnauthorized  = -32001
	CodeShuttingDown  = -32002
)

// Request is the wire format for messages sent by the front-end.
type Request struct {
	ID        string          `json:"id,omitempty"`
	Type      string          `json:"type"`                // "Invoke", "List"
	Name      string          `json:"name,omitempty"`      // command name for Invoke
	Arguments json.RawMessage `json:"arguments,omitempty"` // command arguments for Invoke
	Token     string          `json:"token,omitempty"`
}

// Response is the wire format for messages sent back to the front-end.
type Response struct {
	ID       string          `json:"id,omitempty"`
	Type     string          `json:"type"` // "Result", "Commands", "Error"
	Result   json.RawMessage `json:"result,omitempty"`
	Commands []string        `json:"commands,omitempty"`
	Code     int             `json:"code,omitempty"`
	Message  string          `json:"message,omitempty"`
}

// Router handles bridge requests. Implemented by commands.Router.
type Router interface {
	Names() []string
	Invoke(ctx context.Context, name string, args json.RawMessage) (json.RawMessage, error)
}

// RemoteError is an Error response surfaced by Client.
type RemoteError struct {
	Code    int
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("bridge error (code %d): %s", e.Code, e.Message)
}
