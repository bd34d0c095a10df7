package measurement

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Point schema constants.
const (
	// Name is the measurement every point is written to.
	Name = "tibber-measurement"

	// TagHomeID is the single tag key on every point.
	TagHomeID = "home_id"
)

// timestampLayouts are tried in order. Fractional seconds are accepted by
// every layout when parsing. The last one has no offset and is read as UTC.
var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05Z07",
	"2006-01-02T15:04:05",
}

// Point is one storage-ready row for the time-series sink.
type Point struct {
	Measurement string
	Tags        map[string]string

	// Timestamp is nanoseconds since the Unix epoch.
	Timestamp int64

	// Fields never contains TimestampKey and every numeric value is float64.
	Fields map[string]any
}

// Time returns the point timestamp as a UTC time.Time.
func (p Point) Time() time.Time {
	return time.Unix(0, p.Timestamp).UTC()
}

// HomeID returns the home_id tag.
func (p Point) HomeID() string {
	return p.Tags[TagHomeID]
}

// Transform converts a feed event into a sink point for the given home.
//
// The timestamp field is parsed and moved to Point.Timestamp; every other
// field is copied with integers widened to float64. Null readings are
// omitted. The event is not modified.
//
// Returns:
//   - Point: ready to write
//   - error: ErrMalformedTimestamp, ErrInvalidField or ErrInvalidEvent
func Transform(event Event, homeID string) (Point, error) {
	raw, ok := event.Timestamp()
	if !ok {
		return Point{}, fmt.Errorf("%w: field %q missing", ErrMalformedTimestamp, TimestampKey)
	}
	ts, err := ParseTimestamp(raw)
	if err != nil {
		return Point{}, err
	}

	fields := make(map[string]any, len(event))
	for key, value := range event {
		if key == TimestampKey {
			continue
		}
		v, keep, err := widen(value)
		if err != nil {
			return Point{}, fmt.Errorf("%w: field %q: %w", ErrInvalidField, key, err)
		}
		if keep {
			fields[key] = v
		}
	}
	if len(fields) == 0 {
		return Point{}, fmt.Errorf("%w: no fields besides %q", ErrInvalidEvent, TimestampKey)
	}

	return Point{
		Measurement: Name,
		Tags:        map[string]string{TagHomeID: homeID},
		Timestamp:   ts.UnixNano(),
		Fields:      fields,
	}, nil
}

// ParseTimestamp parses an ISO-8601 timestamp value from an event.
func ParseTimestamp(raw any) (time.Time, error) {
	s, ok := raw.(string)
	if !ok {
		return time.Time{}, fmt.Errorf("%w: expected string, got %T", ErrMalformedTimestamp, raw)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty", ErrMalformedTimestamp)
	}

	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrMalformedTimestamp, s)
}

// widen normalises one field value. keep is false for values that have
// no line-protocol representation and are left out of the point.
func widen(value any) (v any, keep bool, err error) {
	switch x := value.(type) {
	case nil:
		return nil, false, nil
	case float64:
		return x, true, nil
	case float32:
		return float64(x), true, nil
	case int:
		return float64(x), true, nil
	case int8:
		return float64(x), true, nil
	case int16:
		return float64(x), true, nil
	case int32:
		return float64(x), true, nil
	case int64:
		return float64(x), true, nil
	case uint:
		return float64(x), true, nil
	case uint8:
		return float64(x), true, nil
	case uint16:
		return float64(x), true, nil
	case uint32:
		return float64(x), true, nil
	case uint64:
		return float64(x), true, nil
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return nil, false, err
		}
		return f, true, nil
	case string, bool:
		return x, true, nil
	default:
		return nil, false, fmt.Errorf("unsupported type %T", value)
	}
}
