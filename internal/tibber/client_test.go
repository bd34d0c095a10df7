package tibber

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/tibber-export/internal/infrastructure/config"
)

const testToken = "test-token"

var testUpgrader = websocket.Upgrader{
	Subprotocols: []string{subprotocol},
	CheckOrigin:  func(*http.Request) bool { return true },
}

// fakeTibber serves the GraphQL bootstrap on /gql and the subscription on /ws.
type fakeTibber struct {
	t   *testing.T
	srv *httptest.Server

	// viewer is the raw JSON body for the bootstrap query; "" uses a default.
	viewer string
	status int

	// script runs after the subscribe frame has been received.
	script func(conn *websocket.Conn, subID string)

	// noAck skips connection_ack.
	noAck bool

	mu          sync.Mutex
	authHeader  string
	userAgent   string
	initToken   string
	subscribeTo string
	received    []wsMessage
}

func newFakeTibber(t *testing.T) *fakeTibber {
	t.Helper()
	f := &fakeTibber{t: t, status: http.StatusOK}

	mux := http.NewServeMux()
	mux.HandleFunc("/gql", f.handleQuery)
	mux.HandleFunc("/ws", f.handleWS)
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeTibber) wsURL() string {
	return "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/ws"
}

func (f *fakeTibber) client(homeID string) *Client {
	c := New(config.TibberConfig{
		Endpoint:         f.srv.URL + "/gql",
		Token:            testToken,
		HomeID:           homeID,
		HandshakeTimeout: time.Second,
		PingInterval:     time.Hour,
	})
	c.SetVersion("1.2.3")
	return c
}

func (f *fakeTibber) handleQuery(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.authHeader = r.Header.Get("Authorization")
	f.userAgent = r.Header.Get("User-Agent")
	f.mu.Unlock()

	if f.status != http.StatusOK {
		w.WriteHeader(f.status)
		return
	}

	body := f.viewer
	if body == "" {
		body = `{"data":{"viewer":{"websocketSubscriptionUrl":"` + f.wsURL() + `","homes":[` +
			`{"id":"home-1","features":{"realTimeConsumptionEnabled":false}},` +
			`{"id":"abc123","features":{"realTimeConsumptionEnabled":true}}]}}}`
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(body)) //nolint:errcheck // test server
}

func (f *fakeTibber) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := testUpgrader.Upgrade(w, r, nil)
	if err != nil {
		f.t.Errorf("upgrade: %v", err)
		return
	}
	defer conn.Close()

	var initMsg wsMessage
	if err := conn.ReadJSON(&initMsg); err != nil || initMsg.Type != msgConnectionInit {
		f.t.Errorf("expected connection_init, got %+v (err %v)", initMsg, err)
		return
	}
	var ip initPayload
	json.Unmarshal(initMsg.Payload, &ip) //nolint:errcheck // checked by assertions
	f.mu.Lock()
	f.initToken = ip.Token
	f.mu.Unlock()

	if f.noAck {
		time.Sleep(2 * time.Second)
		return
	}
	if err := conn.WriteJSON(wsMessage{Type: msgConnectionAck}); err != nil {
		return
	}

	var sub wsMessage
	if err := conn.ReadJSON(&sub); err != nil || sub.Type != msgSubscribe {
		f.t.Errorf("expected subscribe, got %+v (err %v)", sub, err)
		return
	}
	var req graphQLRequest
	json.Unmarshal(sub.Payload, &req) //nolint:errcheck // checked by assertions
	f.mu.Lock()
	if id, ok := req.Variables["homeId"].(string); ok {
		f.subscribeTo = id
	}
	f.mu.Unlock()

	if f.script != nil {
		f.script(conn, sub.ID)
	}

	// Record what the client sends until it goes away.
	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		f.mu.Lock()
		f.received = append(f.received, msg)
		f.mu.Unlock()
	}
}

func (f *fakeTibber) receivedType(typ string) (wsMessage, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.received {
		if m.Type == typ {
			return m, true
		}
	}
	return wsMessage{}, false
}

func sendNext(conn *websocket.Conn, subID, measurement string) error {
	return conn.WriteJSON(wsMessage{
		ID:      subID,
		Type:    msgNext,
		Payload: json.RawMessage(`{"data":{"liveMeasurement":` + measurement + `}}`),
	})
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestClient_Open_DeliversEvents(t *testing.T) {
	f := newFakeTibber(t)
	f.script = func(conn *websocket.Conn, subID string) {
		sendNext(conn, subID, `{"timestamp":"2023-06-01T12:00:00+00:00","power":1500}`) //nolint:errcheck
		sendNext(conn, subID, `null`) //nolint:errcheck
		sendNext(conn, subID, `{"timestamp":"2023-06-01T12:00:02+00:00","power":1500.5,"currency":"NOK"}`) //nolint:errcheck
	}

	sess, err := f.client("").Open(context.Background())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer sess.Close()

	if sess.HomeID() != "abc123" {
		t.Errorf("HomeID() = %q, want the real-time home abc123", sess.HomeID())
	}

	var got []string
	for len(got) < 2 {
		select {
		case ev := <-sess.Events():
			got = append(got, ev["power"].(json.Number).String())
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for events, got %v", got)
		}
	}
	if got[0] != "1500" || got[1] != "1500.5" {
		t.Errorf("powers = %v, want [1500 1500.5]", got)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.authHeader != "Bearer "+testToken {
		t.Errorf("Authorization = %q, want bearer token", f.authHeader)
	}
	if f.userAgent != "tibber-export/1.2.3" {
		t.Errorf("User-Agent = %q, want tibber-export/1.2.3", f.userAgent)
	}
	if f.initToken != testToken {
		t.Errorf("connection_init token = %q, want %q", f.initToken, testToken)
	}
	if f.subscribeTo != "abc123" {
		t.Errorf("subscribed homeId = %q, want abc123", f.subscribeTo)
	}
}

func TestClient_Open_ConfiguredHome(t *testing.T) {
	f := newFakeTibber(t)

	sess, err := f.client("home-1").Open(context.Background())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer sess.Close()

	if sess.HomeID() != "home-1" {
		t.Errorf("HomeID() = %q, want home-1", sess.HomeID())
	}
}

func TestClient_Open_Errors(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(f *fakeTibber)
		homeID  string
		wantErr error
	}{
		{
			name:    "unauthorized",
			setup:   func(f *fakeTibber) { f.status = http.StatusUnauthorized },
			wantErr: ErrUnauthorized,
		},
		{
			name:    "server error",
			setup:   func(f *fakeTibber) { f.status = http.StatusBadGateway },
			wantErr: ErrQueryFailed,
		},
		{
			name: "graphql errors",
			setup: func(f *fakeTibber) {
				f.viewer = `{"errors":[{"message":"rate limited"}]}`
			},
			wantErr: ErrQueryFailed,
		},
		{
			name: "unauthenticated graphql error",
			setup: func(f *fakeTibber) {
				f.viewer = `{"errors":[{"message":"invalid token","extensions":{"code":"UNAUTHENTICATED"}}]}`
			},
			wantErr: ErrUnauthorized,
		},
		{
			name: "no homes",
			setup: func(f *fakeTibber) {
				f.viewer = `{"data":{"viewer":{"websocketSubscriptionUrl":"` + f.wsURL() + `","homes":[]}}}`
			},
			wantErr: ErrNoHome,
		},
		{
			name:    "configured home missing",
			setup:   func(*fakeTibber) {},
			homeID:  "elsewhere",
			wantErr: ErrNoHome,
		},
		{
			name: "no subscription url",
			setup: func(f *fakeTibber) {
				f.viewer = `{"data":{"viewer":{"homes":[{"id":"abc123"}]}}}`
			},
			wantErr: ErrQueryFailed,
		},
		{
			name: "websocket endpoint missing",
			setup: func(f *fakeTibber) {
				f.viewer = `{"data":{"viewer":{"websocketSubscriptionUrl":"` + f.wsURL() + `-gone","homes":[{"id":"abc123"}]}}}`
			},
			wantErr: ErrHandshake,
		},
		{
			name:    "no connection_ack",
			setup:   func(f *fakeTibber) { f.noAck = true },
			wantErr: ErrHandshake,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakeTibber(t)
			tt.setup(f)

			sess, err := f.client(tt.homeID).Open(context.Background())
			if err == nil {
				sess.Close()
				t.Fatal("Open() expected error, got nil")
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Open() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestClient_Open_Cancelled(t *testing.T) {
	f := newFakeTibber(t)
	f.noAck = true

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := f.client("").Open(ctx)
	if err == nil {
		t.Fatal("Open() expected error, got nil")
	}
	if time.Since(start) > time.Second {
		t.Error("Open() should give up when ctx ends")
	}
}

func TestSelectHome(t *testing.T) {
	yes, no := true, false
	rt := func(id string, enabled *bool) home {
		h := home{ID: id}
		h.Features = &struct {
			RealTimeConsumptionEnabled *bool `json:"realTimeConsumptionEnabled"`
		}{enabled}
		return h
	}

	tests := []struct {
		name    string
		homes   []home
		want    string
		wantID  string
		wantErr error
	}{
		{"none", nil, "", "", ErrNoHome},
		{"first real-time", []home{rt("a", &no), rt("b", &yes), rt("c", &yes)}, "", "b", nil},
		{"no real-time falls back to first", []home{rt("a", &no), {ID: "b"}}, "", "a", nil},
		{"configured", []home{rt("a", &yes), rt("b", &no)}, "b", "b", nil},
		{"configured missing", []home{rt("a", &yes)}, "z", "", ErrNoHome},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := selectHome(tt.homes, tt.want)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("selectHome() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("selectHome() error = %v", err)
			}
			if got != tt.wantID {
				t.Errorf("selectHome() = %q, want %q", got, tt.wantID)
			}
		})
	}
}

func TestNew_Defaults(t *testing.T) {
	c := New(config.TibberConfig{Token: "t"})

	if c.cfg.Endpoint != config.DefaultTibberEndpoint {
		t.Errorf("Endpoint = %q, want default", c.cfg.Endpoint)
	}
	if c.cfg.HandshakeTimeout != defaultHandshakeTimeout {
		t.Errorf("HandshakeTimeout = %v, want %v", c.cfg.HandshakeTimeout, defaultHandshakeTimeout)
	}
	if c.userAgent != "tibber-export/dev" {
		t.Errorf("userAgent = %q, want tibber-export/dev", c.userAgent)
	}
}
