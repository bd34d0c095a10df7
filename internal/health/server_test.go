package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nerrad567/tibber-export/internal/infrastructure/config"
	"github.com/nerrad567/tibber-export/internal/infrastructure/logging"
	"github.com/nerrad567/tibber-export/internal/supervisor"
)

// fakeSource returns a fixed snapshot, or panics when panicking is set.
type fakeSource struct {
	stats     supervisor.Stats
	panicking bool
}

func (f *fakeSource) Stats() supervisor.Stats {
	if f.panicking {
		panic("boom")
	}
	return f.stats
}

func testServer(t *testing.T, source StatusSource) *Server {
	t.Helper()
	srv, err := New(config.HealthConfig{Enabled: true, Host: "127.0.0.1", Port: 0}, source, logging.Discard(), "test")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return srv
}

func TestNew_RequiresDeps(t *testing.T) {
	if _, err := New(config.HealthConfig{}, nil, logging.Discard(), ""); err == nil {
		t.Error("New() without source should fail")
	}
	if _, err := New(config.HealthConfig{}, &fakeSource{}, nil, ""); err == nil {
		t.Error("New() without logger should fail")
	}
}

func TestHandleHealth(t *testing.T) {
	sample := time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		state      supervisor.State
		wantCode   int
		wantStatus string
	}{
		{"subscribed", supervisor.StateSubscribed, http.StatusOK, StatusOK},
		{"connecting", supervisor.StateConnecting, http.StatusServiceUnavailable, StatusDegraded},
		{"disconnected", supervisor.StateDisconnected, http.StatusServiceUnavailable, StatusDegraded},
		{"tearing down", supervisor.StateTearingDown, http.StatusServiceUnavailable, StatusDegraded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := testServer(t, &fakeSource{stats: supervisor.Stats{
				State:         tt.state,
				HomeID:        "abc123",
				LastSample:    sample,
				PointsWritten: 42,
			}})

			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

			if rec.Code != tt.wantCode {
				t.Errorf("status code = %d, want %d", rec.Code, tt.wantCode)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q, want application/json", ct)
			}

			var body map[string]any
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decoding body: %v", err)
			}
			if body["status"] != tt.wantStatus {
				t.Errorf("status = %v, want %q", body["status"], tt.wantStatus)
			}
			if body["state"] != string(tt.state) {
				t.Errorf("state = %v, want %q", body["state"], tt.state)
			}
			if body["home_id"] != "abc123" {
				t.Errorf("home_id = %v, want abc123", body["home_id"])
			}
			if body["last_sample"] != "2023-06-01T12:00:00Z" {
				t.Errorf("last_sample = %v", body["last_sample"])
			}
			if body["points_written"] != 42.0 {
				t.Errorf("points_written = %v, want 42", body["points_written"])
			}
		})
	}
}

func TestHandleHealth_OmitsZeroLastSample(t *testing.T) {
	srv := testServer(t, &fakeSource{stats: supervisor.Stats{State: supervisor.StateConnecting}})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if _, ok := body["last_sample"]; ok {
		t.Errorf("last_sample should be omitted before the first subscription, got %v", body["last_sample"])
	}
}

func TestRequestID(t *testing.T) {
	srv := testServer(t, &fakeSource{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "probe-1")
	srv.Handler().ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "probe-1" {
		t.Errorf("X-Request-ID = %q, want probe-1", got)
	}

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID should be generated when absent")
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	srv := testServer(t, &fakeSource{panicking: true})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status code = %d, want 500", rec.Code)
	}
}

func TestUnknownRoute(t *testing.T) {
	srv := testServer(t, &fakeSource{})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusNotFound {
		t.Errorf("status code = %d, want 404", rec.Code)
	}
}

func TestStartAndClose(t *testing.T) {
	srv := testServer(t, &fakeSource{stats: supervisor.Stats{State: supervisor.StateSubscribed}})

	if err := srv.HealthCheck(context.Background()); !errors.Is(err, ErrNotStarted) {
		t.Errorf("HealthCheck() before Start = %v, want ErrNotStarted", err)
	}

	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer srv.Close()

	if err := srv.Start(context.Background()); err == nil {
		t.Error("second Start() should fail")
	}
	if err := srv.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	resp, err := http.Get(fmt.Sprintf("http://%s/healthz", srv.Addr()))
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	io.Copy(io.Discard, resp.Body) //nolint:errcheck
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status code = %d, want 200", resp.StatusCode)
	}

	if err := srv.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if err := srv.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if _, err := http.Get(fmt.Sprintf("http://%s/healthz", srv.Addr())); err == nil {
		t.Error("GET after Close should fail")
	}
}

func TestStart_StopsOnContextCancel(t *testing.T) {
	srv := testServer(t, &fakeSource{})

	ctx, cancel := context.WithCancel(context.Background())
	if err := srv.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	addr := srv.Addr()
	cancel()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get("http://" + addr + "/healthz")
		if err != nil {
			return
		}
		resp.Body.Close()
		time.Sleep(10 * time.Millisecond)
	}
	t.Error("server still serving after context cancel")
}

func TestStart_PortInUse(t *testing.T) {
	first := testServer(t, &fakeSource{})
	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer first.Close()

	var port int
	if _, err := fmt.Sscanf(first.Addr(), "127.0.0.1:%d", &port); err != nil {
		t.Fatalf("parsing addr %q: %v", first.Addr(), err)
	}

	second, err := New(config.HealthConfig{Host: "127.0.0.1", Port: port}, &fakeSource{}, logging.Discard(), "")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := second.Start(context.Background()); err == nil {
		second.Close()
		t.Error("Start() on a bound port should fail")
	}
}
