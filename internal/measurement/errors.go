package measurement

import "errors"

// Sentinel errors for transform failures.
//
// Both are local to a single event: the event is dropped and the
// subscription carries on.
var (
	// ErrMalformedTimestamp indicates the timestamp field is missing or not ISO-8601.
	ErrMalformedTimestamp = errors.New("measurement: malformed timestamp")

	// ErrInvalidField indicates a field value cannot be stored.
	ErrInvalidField = errors.New("measurement: invalid field value")

	// ErrInvalidEvent indicates the payload is not a JSON object, or that it
	// carries no fields besides the timestamp once null readings are dropped.
	ErrInvalidEvent = errors.New("measurement: invalid event payload")
)
