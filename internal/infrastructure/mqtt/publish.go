package mqtt

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerrad567/tibber-export/internal/measurement"
)

// Maximum payload size for MQTT messages (1MB).
const maxPayloadSize = 1 << 20 // 1MB

// livePayload is the JSON form of a mirrored point.
type livePayload struct {
	Measurement string            `json:"measurement"`
	Tags        map[string]string `json:"tags"`
	Time        string            `json:"time"`
	TimestampNS int64             `json:"timestamp_ns"`
	Fields      map[string]any    `json:"fields"`
}

// Publish sends a message to the specified MQTT topic.
//
// Parameters:
//   - topic: The topic to publish to
//   - payload: The message payload (typically JSON, max 1MB)
//   - qos: Quality of Service level (0, 1, or 2)
//   - retained: Whether the broker should retain the message for new subscribers
//
// Returns:
//   - error: nil on success, or wrapped error describing the failure
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	return nil
}

// PublishPoint mirrors a written point to the home's live topic.
//
// Live points are not retained.
//
// Example topic: tibber/abc123/live
func (c *Client) PublishPoint(p measurement.Point) error {
	payload, err := EncodePoint(p)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return c.Publish(c.topics.Live(p.HomeID()), payload, byte(c.cfg.QoS), false)
}

// EncodePoint returns the JSON payload PublishPoint sends.
func EncodePoint(p measurement.Point) ([]byte, error) {
	return json.Marshal(livePayload{
		Measurement: p.Measurement,
		Tags:        p.Tags,
		Time:        p.Time().Format(time.RFC3339Nano),
		TimestampNS: p.Timestamp,
		Fields:      p.Fields,
	})
}
