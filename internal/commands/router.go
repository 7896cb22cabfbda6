// Package commands is the command boundary the front-end invokes by name.
//
// Each command takes JSON arguments and returns a JSON result. The mailbox
// commands keep the mailbox's delivery contract: saving reports every
// failure, consuming never fails and yields null when nothing is pending.
package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/newmatik/gerbtrace-shell/pkg/log"
)

var (
	// ErrUnknownCommand is returned by Invoke for unregistered names.
	ErrUnknownCommand = errors.New("commands: unknown command")

	// ErrInvalidArgs is returned when a command's arguments cannot be decoded.
	ErrInvalidArgs = errors.New("commands: invalid arguments")
)

// Handler runs one command. The returned value is marshalled to JSON.
type Handler func(ctx context.Context, args json.RawMessage) (any, error)

// Router dispatches commands by name.
type Router struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	logger   log.Logger
}

// NewRouter creates an empty Router.
func NewRouter(logger log.Logger) *Router {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &Router{
		handlers: make(map[string]Handler),
		logger:   logger,
	}
}

// Register adds or replaces the handler for name.
func (r *Router) Register(name string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = h
}

// Names returns the registered command names, sorted.
func (r *Router) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Invoke runs the named command and returns its JSON-encoded result.
func (r *Router) Invoke(ctx context.Context, name string, args json.RawMessage) (json.RawMessage, error) {
	r.mu.RLock()
	h, ok := r.handlers[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, name)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result, err := h(ctx, args)
	if err != nil {
		r.logger.Debug("command failed", log.String("command", name), log.Err(err))
		return nil, err
	}

	out, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("encode %s result: %w", name, err)
	}
	r.logger.Debug("command completed", log.String("command", name))
	return out, nil
}

// decodeArgs unmarshals args into dst. Empty args decode as {}.
func decodeArgs(args json.RawMessage, dst any) error {
	if len(args) == 0 || string(args) == "null" {
		args = json.RawMessage("{}")
	}
	if err := json.Unmarshal(args, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgs, err)
	}
	return nil
}
