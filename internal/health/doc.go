// Package health serves the optional liveness probe for tibber-export.
//
// A single endpoint reports the supervisor's view of the subscription:
//
//	GET /healthz   200 while subscribed, 503 otherwise
//
// The endpoint is readiness-style. A normal reconnect after a stale feed
// reports 503 for as long as the new subscription takes to open, so a
// Kubernetes livenessProbe on it needs a failureThreshold*periodSeconds
// comfortably above the connect timeout plus retry delay.
//
// The body is always JSON with the state, home and counters:
//
//	{"status":"ok","state":"subscribed","home_id":"abc123",
//	 "last_sample":"2023-06-01T12:00:00Z","points_written":42,...}
//
// Lifecycle follows the other infrastructure components:
//
//	srv, err := health.New(cfg.Health, sup, logger, version)
//	srv.Start(ctx)
//	defer srv.Close()
package health
