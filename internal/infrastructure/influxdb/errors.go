package influxdb

import (
	"errors"
	"fmt"
)

// Sentinel errors for InfluxDB operations.
//
// These errors can be checked using errors.Is() for specific handling:
//
//	if errors.Is(err, influxdb.ErrClientWrite) {
//	    // The point was rejected; retrying it will not help
//	}
var (
	// ErrNotConnected indicates the client has been closed.
	ErrNotConnected = errors.New("influxdb: not connected")

	// ErrConnectionFailed indicates the client could not be created.
	ErrConnectionFailed = errors.New("influxdb: connection failed")

	// ErrClientWrite indicates the server rejected the point (HTTP 4xx),
	// e.g. a field type conflict or a missing database.
	ErrClientWrite = errors.New("influxdb: point rejected")

	// ErrServerWrite indicates the server or the network failed (HTTP 5xx,
	// connection errors, timeouts).
	ErrServerWrite = errors.New("influxdb: server error")
)

// Write error classes reported by WriteError.Class.
const (
	ClassClient = "client"
	ClassServer = "server"
)

// WriteError is returned by WritePoint. It matches ErrClientWrite or
// ErrServerWrite according to Class, and wraps the library error.
type WriteError struct {
	Class      string
	StatusCode int
	Err        error
}

// Error implements error.
func (e *WriteError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("influxdb: %s write error (HTTP %d): %v", e.Class, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("influxdb: %s write error: %v", e.Class, e.Err)
}

// Unwrap exposes the class sentinel and the underlying error.
func (e *WriteError) Unwrap() []error {
	sentinel := ErrServerWrite
	if e.Class == ClassClient {
		sentinel = ErrClientWrite
	}
	return []error{sentinel, e.Err}
}

// ErrorClass returns "client" or "server".
func (e *WriteError) ErrorClass() string {
	return e.Class
}
