package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/nerrad567/tibber-export/internal/infrastructure/config"
	"github.com/nerrad567/tibber-export/internal/measurement"
)

// Config holds the supervisor timings.
type Config struct {
	// StaleAfter is the longest tolerated gap since the last sample.
	StaleAfter time.Duration

	// WatchdogInterval is how often staleness is checked while subscribed.
	WatchdogInterval time.Duration

	// ConnectTimeout bounds one Feed.Open call.
	ConnectTimeout time.Duration

	// WriteTimeout bounds one Sink.WritePoint call.
	WriteTimeout time.Duration

	// RetryDelay is the pause after a session ends on a transport failure.
	RetryDelay time.Duration

	// Retry paces failed open attempts. If nil, a constant RetryDelay is used.
	Retry backoff.BackOff

	// Now returns the current time. If nil, time.Now is used.
	Now func() time.Time
}

// ConfigFrom converts the loaded configuration into a supervisor Config.
func ConfigFrom(cfg config.SupervisorConfig) Config {
	return Config{
		StaleAfter:       cfg.StaleAfter,
		WatchdogInterval: cfg.WatchdogInterval,
		ConnectTimeout:   cfg.ConnectTimeout,
		WriteTimeout:     cfg.WriteTimeout,
		RetryDelay:       cfg.Retry.Delay,
		Retry:            NewRetryPolicy(cfg.Retry),
	}
}

// Stats is a snapshot of the supervisor for status reporting.
type Stats struct {
	State           State     `json:"state"`
	HomeID          string    `json:"home_id,omitempty"`
	LastSample      time.Time `json:"last_sample,omitzero"`
	ConnectAttempts int       `json:"connect_attempts"`
	Subscriptions   int       `json:"subscriptions"`
	PointsWritten   uint64    `json:"points_written"`
	WriteErrors     uint64    `json:"write_errors"`
	EventsDropped   uint64    `json:"events_dropped"`
	LastError       string    `json:"last_error,omitempty"`
}

// Supervisor owns the subscription lifecycle.
//
// Thread Safety:
//   - Run must be called from one goroutine only.
//   - State, LastSample, HomeID and Stats are safe to call concurrently with Run.
type Supervisor struct {
	cfg    Config
	feed   Feed
	sink   Sink
	mirror Mirror
	logger Logger

	onStateChange func(State)

	mu         sync.RWMutex
	state      State
	session    Session
	homeID     string
	lastSample time.Time
	stats      Stats
	lastError  error
}

// New creates a supervisor. Zero timings are replaced with defaults.
func New(cfg Config, feed Feed, sink Sink) *Supervisor {
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 60 * time.Second
	}
	if cfg.WatchdogInterval <= 0 {
		cfg.WatchdogInterval = 5 * time.Second
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.RetryDelay < 0 {
		cfg.RetryDelay = 0
	}
	if cfg.Retry == nil {
		cfg.Retry = backoff.NewConstantBackOff(cfg.RetryDelay)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Supervisor{
		cfg:    cfg,
		feed:   feed,
		sink:   sink,
		logger: noopLogger{},
		state:  StateDisconnected,
	}
}

// SetLogger sets the logger for the supervisor.
func (s *Supervisor) SetLogger(logger Logger) {
	s.logger = logger
}

// SetMirror sets an optional mirror that receives every written point.
func (s *Supervisor) SetMirror(m Mirror) {
	s.mirror = m
}

// SetOnStateChange registers a callback invoked after every state change.
// It runs on the supervisor goroutine and must not block.
func (s *Supervisor) SetOnStateChange(fn func(State)) {
	s.onStateChange = fn
}

// Run supervises the subscription until ctx is cancelled.
//
// Failed opens are retried without limit. Nothing but cancellation ends
// the loop, and the return value is always nil.
func (s *Supervisor) Run(ctx context.Context) error {
	s.logger.Info("supervisor starting",
		"stale_after", s.cfg.StaleAfter,
		"watchdog_interval", s.cfg.WatchdogInterval,
	)
	defer s.logger.Info("supervisor stopped")

	failures := 0
	for {
		if ctx.Err() != nil {
			return nil
		}

		sess, err := s.connect(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			failures++
			delay := s.cfg.Retry.NextBackOff()
			if delay == backoff.Stop {
				delay = s.cfg.RetryDelay
			}
			s.logger.Warn("subscription failed, retrying",
				"attempt", failures,
				"delay", delay,
				"error", err,
			)
			if !sleep(ctx, delay) {
				return nil
			}
			continue
		}

		failures = 0
		s.cfg.Retry.Reset()

		reason := s.serve(ctx, sess)
		s.teardown(sess, reason)

		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(reason, ErrStale) {
			continue
		}
		if !sleep(ctx, s.cfg.RetryDelay) {
			return nil
		}
	}
}

// connect opens one subscription and moves to subscribed on success.
func (s *Supervisor) connect(ctx context.Context) (Session, error) {
	s.mu.Lock()
	if s.session != nil {
		s.mu.Unlock()
		return nil, ErrSessionActive
	}
	s.stats.ConnectAttempts++
	s.mu.Unlock()

	s.setState(StateConnecting)

	openCtx, cancel := context.WithTimeout(ctx, s.cfg.ConnectTimeout)
	defer cancel()

	sess, err := s.open(openCtx)
	if err != nil {
		s.mu.Lock()
		s.lastError = err
		s.mu.Unlock()
		s.setState(StateDisconnected)
		return nil, fmt.Errorf("%w: %w", ErrFeedOpen, err)
	}

	s.mu.Lock()
	s.session = sess
	s.homeID = sess.HomeID()
	s.lastSample = s.cfg.Now()
	s.stats.Subscriptions++
	s.mu.Unlock()

	s.setState(StateSubscribed)
	s.logger.Info("subscribed", "home_id", sess.HomeID())

	return sess, nil
}

// open calls Feed.Open, turning a panic into ErrSessionPanic so it joins
// the normal retry path.
func (s *Supervisor) open(ctx context.Context) (sess Session, err error) {
	defer func() {
		if r := recover(); r != nil {
			sess = nil
			err = fmt.Errorf("%w: %v", ErrSessionPanic, r)
		}
	}()
	return s.feed.Open(ctx)
}

// serve processes events until the session has to end and returns why.
func (s *Supervisor) serve(ctx context.Context, sess Session) (reason error) {
	defer func() {
		if r := recover(); r != nil {
			reason = fmt.Errorf("%w: %v", ErrSessionPanic, r)
		}
	}()

	ticker := time.NewTicker(s.cfg.WatchdogInterval)
	defer ticker.Stop()

	homeID := sess.HomeID()
	events := sess.Events()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-ticker.C:
			if s.stale(s.cfg.Now()) {
				return ErrStale
			}

		case ev, ok := <-events:
			if !ok {
				return sessionErr(sess)
			}
			s.handle(ctx, homeID, ev)

		case <-sess.Done():
			// Deliver what the reader queued before the transport ended.
			for {
				select {
				case ev, ok := <-events:
					if !ok {
						return sessionErr(sess)
					}
					s.handle(ctx, homeID, ev)
				default:
					return sessionErr(sess)
				}
			}
		}
	}
}

// handle transforms, writes and mirrors one event.
func (s *Supervisor) handle(ctx context.Context, homeID string, ev measurement.Event) {
	point, err := measurement.Transform(ev, homeID)
	if err != nil {
		s.mu.Lock()
		s.stats.EventsDropped++
		s.mu.Unlock()
		s.logger.Warn("dropping measurement", "home_id", homeID, "error", err)
		return
	}

	writeCtx, cancel := context.WithTimeout(ctx, s.cfg.WriteTimeout)
	err = s.sink.WritePoint(writeCtx, point)
	cancel()

	if ctx.Err() != nil {
		return
	}

	s.mu.Lock()
	s.lastSample = s.cfg.Now()
	if err != nil {
		s.stats.WriteErrors++
		s.lastError = err
	} else {
		s.stats.PointsWritten++
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("writing point failed",
			"class", writeClass(err),
			"home_id", homeID,
			"error", err,
		)
		return
	}
	s.logger.Debug("point written", "home_id", homeID, "timestamp", point.Timestamp)

	if s.mirror != nil {
		if err := s.mirror.PublishPoint(point); err != nil {
			s.logger.Debug("mirror publish failed", "error", err)
		}
	}
}

// teardown disconnects and closes the session. Failures are logged only.
func (s *Supervisor) teardown(sess Session, reason error) {
	s.setState(StateTearingDown)

	switch {
	case errors.Is(reason, ErrStale):
		s.logger.Info("no sample within threshold, reconnecting",
			"stale_after", s.cfg.StaleAfter,
		)
	case errors.Is(reason, context.Canceled), errors.Is(reason, context.DeadlineExceeded):
		s.logger.Info("closing subscription for shutdown")
	case errors.Is(reason, ErrSessionPanic):
		s.logger.Error("recovered from panic in session", "error", reason)
	default:
		s.logger.Warn("subscription lost", "error", reason)
	}

	func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("recovered from panic during teardown", "panic", r)
			}
		}()
		if err := sess.Disconnect(); err != nil {
			s.logger.Debug("disconnect failed", "error", err)
		}
		if err := sess.Close(); err != nil {
			s.logger.Warn("closing session failed", "error", err)
		}
	}()

	s.mu.Lock()
	s.session = nil
	if reason != nil && !errors.Is(reason, context.Canceled) {
		s.lastError = reason
	}
	s.mu.Unlock()

	s.setState(StateDisconnected)
}

// stale reports whether more than StaleAfter has passed since the last sample.
func (s *Supervisor) stale(now time.Time) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return now.Sub(s.lastSample) > s.cfg.StaleAfter
}

// setState records a state change and notifies the callback.
func (s *Supervisor) setState(state State) {
	s.mu.Lock()
	if s.state == state {
		s.mu.Unlock()
		return
	}
	s.state = state
	s.mu.Unlock()

	s.logger.Debug("state changed", "state", state)
	if s.onStateChange != nil {
		s.onStateChange(state)
	}
}

// State returns the current connection state.
func (s *Supervisor) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// LastSample returns when the last sample was written, or the subscription opened.
func (s *Supervisor) LastSample() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSample
}

// HomeID returns the home of the current or most recent subscription.
func (s *Supervisor) HomeID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.homeID
}

// Stats returns a snapshot of the supervisor counters.
func (s *Supervisor) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := s.stats
	stats.State = s.state
	stats.HomeID = s.homeID
	stats.LastSample = s.lastSample
	if s.lastError != nil {
		stats.LastError = s.lastError.Error()
	}
	return stats
}

// sessionErr returns the transport error of an ended session.
func sessionErr(sess Session) error {
	if err := sess.Err(); err != nil {
		return err
	}
	return ErrFeedClosed
}

// writeClass names the class of a sink error for logging.
func writeClass(err error) string {
	var ce classifiedError
	if errors.As(err, &ce) {
		return ce.ErrorClass()
	}
	return "server"
}

// sleep waits for d or until ctx is cancelled. Returns false if cancelled.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
