package tibber

import "errors"

// Sentinel errors for the feed client.
var (
	// ErrUnauthorized indicates the API token was rejected.
	ErrUnauthorized = errors.New("tibber: unauthorized")

	// ErrNoHome indicates the account has no usable home.
	ErrNoHome = errors.New("tibber: no home found")

	// ErrQueryFailed indicates the GraphQL bootstrap query failed.
	ErrQueryFailed = errors.New("tibber: query failed")

	// ErrHandshake indicates the websocket dial or connection_init exchange failed.
	ErrHandshake = errors.New("tibber: websocket handshake failed")

	// ErrSubscription indicates the server reported an error or completed the subscription.
	ErrSubscription = errors.New("tibber: subscription error")

	// ErrClosed indicates the session was closed locally.
	ErrClosed = errors.New("tibber: session closed")
)
