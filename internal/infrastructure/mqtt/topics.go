package mqtt

import "fmt"

// DefaultTopicPrefix is used when the configured prefix is empty.
const DefaultTopicPrefix = "tibber"

// Topics builds the bridge's MQTT topics under a common prefix.
//
//	topics := mqtt.Topics{Prefix: "tibber"}
//	topics.Live("abc123") // "tibber/abc123/live"
//	topics.Status()       // "tibber/status"
type Topics struct {
	Prefix string
}

func (t Topics) prefix() string {
	if t.Prefix == "" {
		return DefaultTopicPrefix
	}
	return t.Prefix
}

// Live returns the topic every written point for a home is mirrored to.
//
// Example: tibber/abc123/live
func (t Topics) Live(homeID string) string {
	return fmt.Sprintf("%s/%s/live", t.prefix(), homeID)
}

// Status returns the retained bridge status topic (online/offline, LWT).
//
// Example: tibber/status
func (t Topics) Status() string {
	return t.prefix() + "/status"
}
