// Package measurement converts Tibber live measurements into sink points.
//
// An Event is one liveMeasurement object as delivered by the feed. A Point
// is one row for the time-series store. Transform maps one to the other:
//
//	event := measurement.Event{"timestamp": "2023-06-01T12:00:00+00:00", "power": json.Number("1500")}
//	point, err := measurement.Transform(event, "abc123")
//	// point.Timestamp == 1685620800000000000
//	// point.Fields    == map[string]any{"power": 1500.0}
//
// # Numeric types
//
// The feed drops the fractional part of readings that happen to be whole
// numbers, so the same field can arrive as 1500 in one message and 1500.5
// in the next. InfluxDB rejects a field whose type changes between points,
// so every integer is widened to float64 before it reaches the sink.
//
// # Purity
//
// Transform has no side effects and does not modify its input.
package measurement
