package measurement

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
)

func TestTransform_EndToEnd(t *testing.T) {
	event := Event{
		"timestamp": "2023-06-01T12:00:00+00:00",
		"power":     json.Number("1500"),
	}

	got, err := Transform(event, "abc123")
	if err != nil {
		t.Fatalf("Transform() error = %v", err)
	}

	want := Point{
		Measurement: "tibber-measurement",
		Tags:        map[string]string{"home_id": "abc123"},
		Timestamp:   1685620800000000000,
		Fields:      map[string]any{"power": 1500.0},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Transform() = %+v, want %+v", got, want)
	}
}

func TestTransform_Timestamp(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want int64
	}{
		{"utc designator", "2023-01-01T00:00:00Z", 1672531200000000000},
		{"zero offset", "2023-01-01T00:00:00+00:00", 1672531200000000000},
		{"positive offset", "2023-01-01T02:00:00+02:00", 1672531200000000000},
		{"compact offset", "2023-01-01T02:00:00+0200", 1672531200000000000},
		{"hour offset", "2023-01-01T02:00:00+02", 1672531200000000000},
		{"milliseconds", "2023-01-01T00:00:00.250+00:00", 1672531200250000000},
		{"no offset reads as utc", "2023-01-01T00:00:00", 1672531200000000000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Transform(Event{"timestamp": tt.raw, "power": 1.0}, "h")
			if err != nil {
				t.Fatalf("Transform() error = %v", err)
			}
			if p.Timestamp != tt.want {
				t.Errorf("Timestamp = %d, want %d", p.Timestamp, tt.want)
			}
		})
	}
}

func TestTransform_MalformedTimestamp(t *testing.T) {
	tests := []struct {
		name  string
		event Event
	}{
		{"missing", Event{"power": 1.0}},
		{"not a date", Event{"timestamp": "yesterday", "power": 1.0}},
		{"empty", Event{"timestamp": "", "power": 1.0}},
		{"wrong type", Event{"timestamp": json.Number("1672531200"), "power": 1.0}},
		{"null", Event{"timestamp": nil, "power": 1.0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Transform(tt.event, "h")
			if !errors.Is(err, ErrMalformedTimestamp) {
				t.Errorf("Transform() error = %v, want ErrMalformedTimestamp", err)
			}
		})
	}
}

func TestTransform_WidensNumbers(t *testing.T) {
	event := Event{
		"timestamp":              "2023-06-01T12:00:00Z",
		"power":                  json.Number("1500"),
		"accumulatedConsumption": json.Number("12.345"),
		"signalStrength":         -67,
		"voltagePhase1":          int64(231),
		"currentL1":              uint16(4),
		"powerFactor":            float32(0.5),
		"minPower":               0.0,
		"currency":               "NOK",
		"online":                 true,
	}

	p, err := Transform(event, "h")
	if err != nil {
		t.Fatalf("Transform() error = %v", err)
	}

	want := map[string]any{
		"power":                  1500.0,
		"accumulatedConsumption": 12.345,
		"signalStrength":         -67.0,
		"voltagePhase1":          231.0,
		"currentL1":              4.0,
		"powerFactor":            0.5,
		"minPower":               0.0,
		"currency":               "NOK",
		"online":                 true,
	}
	if !reflect.DeepEqual(p.Fields, want) {
		t.Errorf("Fields = %#v, want %#v", p.Fields, want)
	}

	for key, v := range p.Fields {
		switch v.(type) {
		case float64, string, bool:
		default:
			t.Errorf("field %q has type %T, numerics must be float64", key, v)
		}
	}
}

func TestTransform_ExcludesTimestampAndNulls(t *testing.T) {
	event := Event{
		"timestamp":     "2023-06-01T12:00:00Z",
		"power":         json.Number("10"),
		"voltagePhase2": nil,
	}

	p, err := Transform(event, "h")
	if err != nil {
		t.Fatalf("Transform() error = %v", err)
	}
	if _, ok := p.Fields["timestamp"]; ok {
		t.Error("Fields must not contain timestamp")
	}
	if _, ok := p.Fields["voltagePhase2"]; ok {
		t.Error("null readings must be omitted")
	}
	if len(p.Fields) != 1 {
		t.Errorf("len(Fields) = %d, want 1", len(p.Fields))
	}
}

func TestTransform_Idempotent(t *testing.T) {
	event := Event{
		"timestamp": "2023-06-01T12:00:00.5+02:00",
		"power":     json.Number("42"),
		"currency":  "SEK",
	}

	first, err := Transform(event, "h")
	if err != nil {
		t.Fatalf("Transform() error = %v", err)
	}
	second, err := Transform(event, "h")
	if err != nil {
		t.Fatalf("Transform() error = %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("Transform() not idempotent: %+v vs %+v", first, second)
	}
}

func TestTransform_DoesNotMutateInput(t *testing.T) {
	event := Event{
		"timestamp": "2023-06-01T12:00:00Z",
		"power":     json.Number("42"),
		"phase":     nil,
	}
	before := Event{
		"timestamp": "2023-06-01T12:00:00Z",
		"power":     json.Number("42"),
		"phase":     nil,
	}

	if _, err := Transform(event, "h"); err != nil {
		t.Fatalf("Transform() error = %v", err)
	}
	if !reflect.DeepEqual(event, before) {
		t.Errorf("input mutated: %#v", event)
	}
}

func TestTransform_InvalidField(t *testing.T) {
	tests := []struct {
		name  string
		value any
	}{
		{"unparsable number", json.Number("1e400x")},
		{"nested object", map[string]any{"a": 1}},
		{"array", []any{1, 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event := Event{"timestamp": "2023-06-01T12:00:00Z", "bad": tt.value}
			_, err := Transform(event, "h")
			if !errors.Is(err, ErrInvalidField) {
				t.Errorf("Transform() error = %v, want ErrInvalidField", err)
			}
		})
	}
}

func TestTransform_NoFields(t *testing.T) {
	tests := []struct {
		name  string
		event Event
	}{
		{"timestamp only", Event{"timestamp": "2023-06-01T12:00:00Z"}},
		{"only null readings", Event{"timestamp": "2023-06-01T12:00:00Z", "x": nil}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Transform(tt.event, "h")
			if !errors.Is(err, ErrInvalidEvent) {
				t.Errorf("Transform() error = %v, want ErrInvalidEvent", err)
			}
		})
	}
}

func TestPoint_Accessors(t *testing.T) {
	p := Point{Tags: map[string]string{TagHomeID: "abc"}, Timestamp: 1672531200000000000}
	if p.HomeID() != "abc" {
		t.Errorf("HomeID() = %q, want %q", p.HomeID(), "abc")
	}
	if got := p.Time().Format("2006-01-02T15:04:05Z07:00"); got != "2023-01-01T00:00:00Z" {
		t.Errorf("Time() = %s, want 2023-01-01T00:00:00Z", got)
	}
}
