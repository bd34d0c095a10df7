package tibber

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/tibber-export/internal/infrastructure/config"
	"github.com/nerrad567/tibber-export/internal/supervisor"
)

// Client defaults.
const (
	defaultHandshakeTimeout = 15 * time.Second
	defaultPingInterval     = 30 * time.Second
	defaultHTTPTimeout      = 30 * time.Second

	// eventBufferSize bounds the channel between the reader and the supervisor.
	eventBufferSize = 16

	// maxResponseSize caps the bootstrap response body.
	maxResponseSize = 1 << 20
)

// viewerQuery resolves the subscription endpoint and the account's homes.
const viewerQuery = `{ viewer { websocketSubscriptionUrl homes { id features { realTimeConsumptionEnabled } } } }`

// Logger defines the logging interface for the feed client.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Client opens live-measurement subscriptions for one Tibber account.
//
// Thread Safety:
//   - Open may be called from any goroutine, but the supervisor only ever
//     holds one session at a time.
type Client struct {
	cfg        config.TibberConfig
	userAgent  string
	httpClient *http.Client
	dialer     *websocket.Dialer
	logger     Logger
}

// home is one entry of viewer.homes.
type home struct {
	ID       string `json:"id"`
	Features *struct {
		RealTimeConsumptionEnabled *bool `json:"realTimeConsumptionEnabled"`
	} `json:"features"`
}

func (h home) realTime() bool {
	return h.Features != nil &&
		h.Features.RealTimeConsumptionEnabled != nil &&
		*h.Features.RealTimeConsumptionEnabled
}

// viewerResponse is the bootstrap query response.
type viewerResponse struct {
	Data struct {
		Viewer struct {
			WebsocketSubscriptionURL string `json:"websocketSubscriptionUrl"`
			Homes                    []home `json:"homes"`
		} `json:"viewer"`
	} `json:"data"`
	Errors []graphQLError `json:"errors"`
}

// New creates a feed client. Zero timings are replaced with defaults.
func New(cfg config.TibberConfig) *Client {
	if cfg.Endpoint == "" {
		cfg.Endpoint = config.DefaultTibberEndpoint
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaultHandshakeTimeout
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultPingInterval
	}

	return &Client{
		cfg:        cfg,
		userAgent:  "tibber-export/dev",
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
			Subprotocols:     []string{subprotocol},
		},
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the client and its sessions.
func (c *Client) SetLogger(logger Logger) {
	c.logger = logger
}

// SetVersion sets the version reported in the User-Agent header.
// Tibber rejects websocket clients without a descriptive User-Agent.
func (c *Client) SetVersion(version string) {
	c.userAgent = "tibber-export/" + version
}

// Open resolves the home and subscribes to its live measurements.
//
// ctx bounds the bootstrap query and the websocket handshake. The returned
// session runs until Close is called or the transport fails.
//
// Returns:
//   - supervisor.Session: the running subscription
//   - error: ErrUnauthorized, ErrQueryFailed, ErrNoHome, ErrHandshake or a
//     context error
func (c *Client) Open(ctx context.Context) (supervisor.Session, error) {
	viewer, err := c.queryViewer(ctx)
	if err != nil {
		return nil, err
	}

	homeID, err := selectHome(viewer.Data.Viewer.Homes, c.cfg.HomeID)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("resolved home", "home_id", homeID)

	sess, err := c.subscribe(ctx, viewer.Data.Viewer.WebsocketSubscriptionURL, homeID)
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// queryViewer runs the bootstrap GraphQL query.
func (c *Client) queryViewer(ctx context.Context) (*viewerResponse, error) {
	body, err := json.Marshal(graphQLRequest{Query: viewerQuery})
	if err != nil {
		return nil, fmt.Errorf("%w: encoding request: %w", ErrQueryFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: building request: %w", ErrQueryFailed, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, fmt.Errorf("%w: HTTP %d", ErrUnauthorized, resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: HTTP %d", ErrQueryFailed, resp.StatusCode)
	}

	var viewer viewerResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(&viewer); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %w", ErrQueryFailed, err)
	}

	if len(viewer.Errors) > 0 {
		for _, e := range viewer.Errors {
			if e.Extensions.Code == "UNAUTHENTICATED" {
				return nil, fmt.Errorf("%w: %s", ErrUnauthorized, e.Message)
			}
		}
		return nil, fmt.Errorf("%w: %s", ErrQueryFailed, firstErrorMessage(viewer.Errors))
	}
	if viewer.Data.Viewer.WebsocketSubscriptionURL == "" {
		return nil, fmt.Errorf("%w: no websocket subscription URL", ErrQueryFailed)
	}

	return &viewer, nil
}

// selectHome picks the configured home, or else the first home with
// real-time consumption enabled, or else the first home.
func selectHome(homes []home, want string) (string, error) {
	if len(homes) == 0 {
		return "", ErrNoHome
	}

	if want != "" {
		for _, h := range homes {
			if h.ID == want {
				return h.ID, nil
			}
		}
		return "", fmt.Errorf("%w: home %q not on this account", ErrNoHome, want)
	}

	for _, h := range homes {
		if h.realTime() {
			return h.ID, nil
		}
	}
	return homes[0].ID, nil
}
