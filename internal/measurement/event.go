package measurement

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// TimestampKey is the event field carrying the ISO-8601 sample time.
const TimestampKey = "timestamp"

// Event is one liveMeasurement object as delivered by the feed.
//
// Numbers decoded by DecodeEvent are json.Number so integer and
// floating literals stay distinguishable until Transform widens them.
type Event map[string]any

// DecodeEvent decodes a single JSON object into an Event.
func DecodeEvent(data []byte) (Event, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var ev Event
	if err := dec.Decode(&ev); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidEvent, err)
	}
	if ev == nil {
		return nil, fmt.Errorf("%w: null object", ErrInvalidEvent)
	}
	return ev, nil
}

// Timestamp returns the raw timestamp value and whether it is present.
func (e Event) Timestamp() (any, bool) {
	v, ok := e[TimestampKey]
	return v, ok
}
