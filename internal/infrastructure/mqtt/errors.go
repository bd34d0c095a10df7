package mqtt

import "errors"

// Mirror errors. None of them reach the supervisor: a failed mirror
// publish is logged and the point is still counted as written.
var (
	// ErrNotConnected is returned by Publish and PublishPoint while the
	// broker connection is down (before Connect, after Close, or while
	// paho is reconnecting).
	ErrNotConnected = errors.New("mqtt: client not connected")

	// ErrConnectionFailed is returned by Connect when the broker cannot be
	// reached within the connect timeout; the bridge then runs without a mirror.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	// ErrPublishFailed is returned when a point or status message cannot be
	// encoded, is too large, or is not acknowledged in time.
	ErrPublishFailed = errors.New("mqtt: publish failed")

	// ErrInvalidQoS is returned when an invalid QoS level is specified.
	// Valid QoS levels are 0, 1, or 2.
	ErrInvalidQoS = errors.New("mqtt: invalid QoS level (must be 0, 1, or 2)")

	// ErrInvalidTopic is returned when an empty or invalid topic is provided.
	ErrInvalidTopic = errors.New("mqtt: topic cannot be empty")
)
