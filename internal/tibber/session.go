package tibber

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/tibber-export/internal/measurement"
)

// writeWait bounds a single websocket write.
const writeWait = 10 * time.Second

// Session is one live-measurement subscription on an open websocket.
//
// Thread Safety:
//   - Events, Done and Err may be used from any goroutine.
//   - Disconnect and Close are safe to call concurrently and repeatedly.
type Session struct {
	conn   *websocket.Conn
	homeID string
	subID  string
	logger Logger

	events chan measurement.Event
	done   chan struct{}
	cancel context.CancelFunc

	writeMu   sync.Mutex
	closing   atomic.Bool
	closeOnce sync.Once

	mu  sync.Mutex
	err error
}

// subscribe dials the websocket, completes connection_init and starts the
// liveMeasurement subscription.
func (c *Client) subscribe(ctx context.Context, wsURL, homeID string) (*Session, error) {
	hsCtx, cancel := context.WithTimeout(ctx, c.cfg.HandshakeTimeout)
	defer cancel()

	header := http.Header{}
	header.Set("User-Agent", c.userAgent)

	conn, resp, err := c.dialer.DialContext(hsCtx, wsURL, header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, fmt.Errorf("%w: websocket HTTP %d", ErrUnauthorized, resp.StatusCode)
		}
		return nil, fmt.Errorf("%w: dial: %w", ErrHandshake, err)
	}

	// Unblock the handshake reads if ctx ends first.
	stop := context.AfterFunc(hsCtx, func() { conn.Close() })

	s := &Session{
		conn:   conn,
		homeID: homeID,
		subID:  uuid.NewString(),
		logger: c.logger,
		events: make(chan measurement.Event, eventBufferSize),
		done:   make(chan struct{}),
	}

	if err := s.handshake(hsCtx, c.cfg.Token); err != nil {
		stop()
		conn.Close()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}

	if !stop() {
		// AfterFunc already fired and closed the connection.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %w", ErrHandshake, hsCtx.Err())
	}
	//nolint:errcheck // Clearing the handshake deadline
	conn.SetReadDeadline(time.Time{})

	s.start(c.cfg.PingInterval)

	c.logger.Info("live measurement subscription started",
		"home_id", homeID,
		"subscription_id", s.subID,
	)

	return s, nil
}

// handshake sends connection_init, waits for connection_ack and subscribes.
func (s *Session) handshake(ctx context.Context, token string) error {
	if deadline, ok := ctx.Deadline(); ok {
		//nolint:errcheck // Best-effort deadline on the handshake reads
		s.conn.SetReadDeadline(deadline)
	}

	initMsg, err := json.Marshal(initPayload{Token: token})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrHandshake, err)
	}
	if err := s.send(wsMessage{Type: msgConnectionInit, Payload: initMsg}); err != nil {
		return fmt.Errorf("%w: sending connection_init: %w", ErrHandshake, err)
	}

	for acked := false; !acked; {
		msg, err := s.read()
		if err != nil {
			return fmt.Errorf("%w: awaiting connection_ack: %w", ErrHandshake, err)
		}
		switch msg.Type {
		case msgConnectionAck:
			acked = true
		case msgPing:
			if err := s.send(wsMessage{Type: msgPong}); err != nil {
				return fmt.Errorf("%w: %w", ErrHandshake, err)
			}
		default:
			return fmt.Errorf("%w: unexpected %q before connection_ack", ErrHandshake, msg.Type)
		}
	}

	payload, err := json.Marshal(graphQLRequest{
		Query:     liveMeasurementQuery,
		Variables: map[string]any{"homeId": s.homeID},
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSubscription, err)
	}
	if err := s.send(wsMessage{ID: s.subID, Type: msgSubscribe, Payload: payload}); err != nil {
		return fmt.Errorf("%w: sending subscribe: %w", ErrSubscription, err)
	}
	return nil
}

// start runs the reader and the keep-alive pinger until either fails.
func (s *Session) start(pingInterval time.Duration) {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.readLoop(gctx) })
	g.Go(func() error { return s.pingLoop(gctx, pingInterval) })

	go func() {
		err := g.Wait()
		s.finish(err)
	}()
}

// readLoop delivers next payloads and answers pings.
func (s *Session) readLoop(ctx context.Context) error {
	for {
		msg, err := s.read()
		if err != nil {
			return fmt.Errorf("reading: %w", err)
		}

		switch msg.Type {
		case msgNext:
			ev, ok, err := s.decodeNext(msg)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			select {
			case s.events <- ev:
			case <-ctx.Done():
				return nil
			}

		case msgPing:
			if err := s.send(wsMessage{Type: msgPong}); err != nil {
				return fmt.Errorf("sending pong: %w", err)
			}

		case msgPong:

		case msgError:
			return fmt.Errorf("%w: %s", ErrSubscription, string(msg.Payload))

		case msgComplete:
			return fmt.Errorf("%w: completed by server", ErrSubscription)

		default:
			s.logger.Debug("ignoring websocket message", "type", msg.Type)
		}
	}
}

// decodeNext extracts the liveMeasurement object from a next frame.
// ok is false when the frame carries no measurement and should be skipped.
func (s *Session) decodeNext(msg wsMessage) (ev measurement.Event, ok bool, err error) {
	var p nextPayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		s.logger.Warn("undecodable next payload", "error", err)
		return nil, false, nil
	}
	if len(p.Errors) > 0 {
		return nil, false, fmt.Errorf("%w: %s", ErrSubscription, firstErrorMessage(p.Errors))
	}

	ev, err = measurement.DecodeEvent(p.Data.LiveMeasurement)
	if err != nil {
		s.logger.Warn("invalid live measurement", "home_id", s.homeID, "error", err)
		return nil, false, nil
	}
	return ev, true, nil
}

// pingLoop sends protocol pings and closes the socket when ctx ends.
func (s *Session) pingLoop(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.conn.Close()
			return nil
		case <-ticker.C:
			if err := s.send(wsMessage{Type: msgPing}); err != nil {
				return fmt.Errorf("sending ping: %w", err)
			}
		}
	}
}

// finish records why the session ended and releases waiters.
func (s *Session) finish(err error) {
	if s.closing.Load() || err == nil {
		err = ErrClosed
	}

	s.mu.Lock()
	s.err = err
	s.mu.Unlock()

	if !errors.Is(err, ErrClosed) {
		s.logger.Warn("live measurement subscription ended", "home_id", s.homeID, "error", err)
	}

	close(s.done)
	close(s.events)
}

// read reads and decodes one frame.
func (s *Session) read() (wsMessage, error) {
	var msg wsMessage
	_, data, err := s.conn.ReadMessage()
	if err != nil {
		return msg, err
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		return msg, fmt.Errorf("decoding frame: %w", err)
	}
	return msg, nil
}

// send writes one frame. Writes are serialised across goroutines.
func (s *Session) send(msg wsMessage) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	//nolint:errcheck // Best-effort deadline; write error caught below
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(msg)
}

// HomeID returns the subscribed home.
func (s *Session) HomeID() string {
	return s.homeID
}

// SubscriptionID returns the graphql-transport-ws operation id.
func (s *Session) SubscriptionID() string {
	return s.subID
}

// Events delivers live measurements in arrival order. It is closed when
// the session ends.
func (s *Session) Events() <-chan measurement.Event {
	return s.events
}

// Done is closed when the session has ended.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Err returns why the session ended, or nil while it is running.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Disconnect completes the subscription on the server.
func (s *Session) Disconnect() error {
	select {
	case <-s.done:
		return ErrClosed
	default:
	}

	if err := s.send(wsMessage{ID: s.subID, Type: msgComplete}); err != nil {
		return fmt.Errorf("sending complete: %w", err)
	}
	return nil
}

// Close sends a close frame, stops the reader and pinger and waits for them.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closing.Store(true)

		s.writeMu.Lock()
		//nolint:errcheck // Best-effort close frame
		s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		s.writeMu.Unlock()

		s.cancel()
	})
	<-s.done
	return nil
}
