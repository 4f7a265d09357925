package transport

import (
	"context"
	"errors"
)

// ErrNoDestination is returned when a send is attempted without a target.
var ErrNoDestination = errors.New("no destination")

// Sender delivers plain text messages to a chat destination.
//
// Destinations are transport specific: a Slack channel or user id, or a
// numeric Telegram chat id.
type Sender interface {
	// Name is a short, stable transport name ("slack", "telegram") used in logs.
	Name() string
	Send(ctx context.Context, to string, text string) error
}

// Func adapts a function into a Sender. Handy for dry runs and tests.
type Func struct {
	ID string
	Fn func(ctx context.Context, to string, text string) error
}

func (f Func) Name() string { return f.ID }

func (f Func) Send(ctx context.Context, to string, text string) error {
	if f.Fn == nil {
		return nil
	}
	return f.Fn(ctx, to, text)
}
