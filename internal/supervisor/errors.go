package supervisor

import "errors"

// Sentinel errors for the supervisor.
var (
	// ErrFeedOpen wraps any failure to open the subscription. Always retried.
	ErrFeedOpen = errors.New("supervisor: opening feed failed")

	// ErrStale indicates no sample arrived within the staleness threshold.
	ErrStale = errors.New("supervisor: feed is stale")

	// ErrSessionPanic indicates a panic was recovered while serving a session.
	ErrSessionPanic = errors.New("supervisor: session panicked")

	// ErrSessionActive is returned when a connect is attempted while a session is held.
	ErrSessionActive = errors.New("supervisor: session already active")

	// ErrFeedClosed indicates the session transport ended without reporting an error.
	ErrFeedClosed = errors.New("supervisor: feed closed")
)
