// Package influxdb is the time-series sink for tibber-export.
//
// It wraps the official influxdb-client-go v2 library and writes each
// measurement point with a single blocking request. There is no batching:
// one event from the feed is one HTTP write, so a failure can be tied to
// the point that caused it.
//
// # Compatibility
//
// The sink is configured the InfluxDB 1.x way and uses the 1.8+
// compatibility API:
//
//	token  = "<user>:<password>"
//	bucket = "<database>" or "<database>/<retention_policy>"
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	if err := client.WritePoint(ctx, point); err != nil {
//	    if errors.Is(err, influxdb.ErrClientWrite) {
//	        // schema violation or field type conflict
//	    }
//	}
//
// # Error Handling
//
// Write errors are classified rather than retried. HTTP 4xx responses are
// client errors (ErrClientWrite); 5xx responses, connection failures and
// timeouts are server errors (ErrServerWrite). Both are point-local.
package influxdb
