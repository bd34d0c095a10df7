// Package supervisor keeps one Tibber live-measurement subscription alive
// and writes every sample it delivers to the time-series sink.
//
// This package is the long-running core of tibber-export. It owns the
// subscription lifecycle the way a process manager owns a child process:
//
//   - Open the subscription, retrying failed attempts on a back-off policy
//   - Transform and write each event in delivery order
//   - Detect a silent feed with a staleness watchdog
//   - Tear the session down and reconnect, forever, until cancelled
//
// # States
//
//	disconnected → connecting → subscribed → tearing_down → disconnected
//
// There is no terminal state. Run returns only when its context is cancelled.
//
// # Failure handling
//
// Write failures are point-local: they are logged with their class and the
// subscription carries on. A transform failure drops the event. Only a stale
// feed, a transport failure or a recovered panic ends a session.
//
// Example usage:
//
//	sup := supervisor.New(supervisor.ConfigFrom(cfg.Supervisor), feed, sink)
//	sup.SetLogger(logger.With("component", "supervisor"))
//	sup.SetMirror(mirror)
//
//	if err := sup.Run(ctx); err != nil {
//	    return err
//	}
package supervisor
