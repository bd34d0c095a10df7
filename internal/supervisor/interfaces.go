package supervisor

import (
	"context"

	"github.com/nerrad567/tibber-export/internal/measurement"
)

// Feed opens live-measurement subscriptions.
type Feed interface {
	// Open connects, authenticates, resolves the home and subscribes.
	// ctx bounds the open only; the returned Session outlives it.
	Open(ctx context.Context) (Session, error)
}

// Session is one open subscription.
type Session interface {
	// HomeID returns the home the subscription is for.
	HomeID() string

	// Events delivers measurements in arrival order. The channel is bounded.
	Events() <-chan measurement.Event

	// Done is closed when the transport has ended.
	Done() <-chan struct{}

	// Err returns why the transport ended, or nil while it is running.
	Err() error

	// Disconnect ends the subscription politely.
	Disconnect() error

	// Close releases the transport. Safe to call more than once.
	Close() error
}

// Sink persists points.
type Sink interface {
	WritePoint(ctx context.Context, p measurement.Point) error
}

// Mirror republishes written points. Failures never affect the supervisor.
type Mirror interface {
	PublishPoint(p measurement.Point) error
}

// Logger defines the logging interface for the supervisor.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// classifiedError is implemented by sink errors that know their class
// ("client" or "server").
type classifiedError interface {
	error
	ErrorClass() string
}
