package commands

import (
	"context"
	"encoding/json"
	"fmt"
)

const (
	SavePostUpdateInfo    = "save_post_update_info"
	ConsumePostUpdateInfo = "consume_post_update_info"
)

// Mailbox is the part of *mailbox.Mailbox the commands need.
type Mailbox interface {
	Save(payload string) error
	Consume() (string, bool)
}

type saveArgs struct {
	Payload *string `json:"payload"`
}

// RegisterPostUpdate registers the mailbox commands on r.
//
// save_post_update_info takes {"payload": "<text>"} and returns null, or an
// error carrying the cause. consume_post_update_info takes no arguments and
// returns the pending payload as a JSON string, or null.
func RegisterPostUpdate(r *Router, mb Mailbox) {
	r.Register(SavePostUpdateInfo, func(_ context.Context, args json.RawMessage) (any, error) {
		var a saveArgs
		if err := decodeArgs(args, &a); err != nil {
			return nil, err
		}
		if a.Payload == nil {
			return nil, fmt.Errorf("%w: payload is required", ErrInvalidArgs)
		}
		if err := mb.Save(*a.Payload); err != nil {
			return nil, err
		}
		return nil, nil
	})

	r.Register(ConsumePostUpdateInfo, func(context.Context, json.RawMessage) (any, error) {
		payload, ok := mb.Consume()
		if !ok {
			return nil, nil
		}
		return payload, nil
	})
}
