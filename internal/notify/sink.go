// Package notify delivers membership notifications. Delivery is best effort:
// callers log failures and carry on.
package notify

import (
	"context"
	"errors"

	"github.com/splax/teamhub/internal/domain"
)

// Sink receives notification messages.
type Sink interface {
	Notify(ctx context.Context, msg domain.Message) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, msg domain.Message) error

// Notify calls f.
func (f SinkFunc) Notify(ctx context.Context, msg domain.Message) error { return f(ctx, msg) }

// Discard drops every message.
var Discard Sink = SinkFunc(func(context.Context, domain.Message) error { return nil })

// Multi delivers to every sink in order and joins their errors.
type Multi []Sink

// Notify fans msg out to all sinks.
func (m Multi) Notify(ctx context.Context, msg domain.Message) error {
	var errs []error
	for _, sink := range m {
		if sink == nil {
			continue
		}
		if err := sink.Notify(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
