// Package notify fans lifecycle events out to interested sinks. Delivery
// is best effort: a failing sink is logged and skipped, and nothing here
// ever participates in a financial transaction.
package notify

import (
	"context"

	"github.com/ptzlabs/marketplace/internal/logging"
)

// Sink receives one event for one user.
type Sink interface {
	Notify(ctx context.Context, userID, event string, payload any) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, userID, event string, payload any) error

func (f SinkFunc) Notify(ctx context.Context, userID, event string, payload any) error {
	return f(ctx, userID, event, payload)
}

// Dispatcher publishes to every registered sink.
type Dispatcher struct {
	sinks []Sink
}

// NewDispatcher creates a dispatcher over the given sinks.
func NewDispatcher(sinks ...Sink) *Dispatcher {
	return &Dispatcher{sinks: sinks}
}

// Publish delivers the event to every sink, logging and swallowing
// failures.
func (d *Dispatcher) Publish(ctx context.Context, userID, event string, payload any) {
	for _, s := range d.sinks {
		if err := s.Notify(ctx, userID, event, payload); err != nil {
			logging.L(ctx).Warn("notification sink failed",
				"event", event, "userId", userID, "error", err)
		}
	}
}

// LogSink writes every event to the structured log. Useful in demo mode
// and as a last-resort audit breadcrumb.
type LogSink struct{}

func (LogSink) Notify(ctx context.Context, userID, event string, _ any) error {
	logging.L(ctx).Info("event", "event", event, "userId", userID)
	return nil
}
