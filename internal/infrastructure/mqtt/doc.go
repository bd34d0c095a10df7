// Package mqtt provides the optional MQTT live mirror for tibber-export.
//
// When enabled, every point successfully written to InfluxDB is also
// published as JSON so local consumers (home automation, dashboards) can
// react to live power readings without polling the database.
//
// # Topics
//
//	<prefix>/<home_id>/live   one message per written point, not retained
//	<prefix>/status           retained online/offline, with LWT
//
// # Failure isolation
//
// The mirror never holds up the bridge. If the broker is unreachable at
// startup the bridge runs without it; once connected, paho reconnects in
// the background and publishes issued while disconnected fail fast with
// ErrNotConnected.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    logger.Warn("mirror disabled", "error", err)
//	} else {
//	    defer client.Close()
//	    sup.SetMirror(client)
//	}
//
// # Security Considerations
//
//   - Enable TLS (mqtt.broker.tls) when the broker is not on localhost
//   - Payloads carry consumption data; restrict the topic prefix with broker ACLs
package mqtt
