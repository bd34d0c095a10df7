package influxdb

import (
	"context"
	"crypto/tls"
	"fmt"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/nerrad567/tibber-export/internal/infrastructure/config"
)

// Default timeouts for InfluxDB operations.
const (
	defaultRequestTimeout = 10 * time.Second
	defaultPingTimeout    = 5 * time.Second
)

// Client writes measurement points to InfluxDB one at a time.
//
// The server is addressed the 1.x way (database, retention policy, user)
// through the 1.8+ compatibility API of the v2 client library.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Writes are blocking and unbatched.
type Client struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	cfg      config.InfluxDBConfig

	// connected is false once Close has been called.
	connected bool
	mu        sync.RWMutex
}

// Connect creates a client for the configured server.
//
// It does not contact the server: a sink that is down at startup is the
// normal case for an unattended bridge, and every write reports its own
// failure. Use HealthCheck to probe the server.
//
// Parameters:
//   - cfg: InfluxDB configuration
//
// Returns:
//   - *Client: Client ready for WritePoint
//   - error: ErrConnectionFailed if the configuration cannot address a server
func Connect(cfg config.InfluxDBConfig) (*Client, error) {
	if cfg.Host == "" || cfg.Database == "" {
		return nil, fmt.Errorf("%w: host and database are required", ErrConnectionFailed)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	opts := influxdb2.DefaultOptions().
		SetHTTPRequestTimeout(uint(timeout.Seconds())). // #nosec G115 -- positive, checked above
		SetPrecision(time.Nanosecond).
		SetLogLevel(0)
	if cfg.TLS {
		opts.SetTLSConfig(&tls.Config{
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: !cfg.VerifyTLS, //nolint:gosec // Operator opt-out via INFLUXDB_VERIFY_TLS
		})
	}

	// 1.x credentials are passed as a "user:password" token.
	client := influxdb2.NewClientWithOptions(cfg.URL(), cfg.Username+":"+cfg.Password, opts)

	return &Client{
		client:    client,
		writeAPI:  client.WriteAPIBlocking("", cfg.Bucket()),
		cfg:       cfg,
		connected: true,
	}, nil
}

// Close releases the underlying HTTP resources.
//
// Returns:
//   - error: nil (InfluxDB client Close doesn't return errors)
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}

	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()

	c.client.Close()
	return nil
}

// HealthCheck pings the server.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	checkCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()

	healthy, err := c.client.Ping(checkCtx)
	if err != nil {
		return fmt.Errorf("influxdb health check failed: %w", err)
	}
	if !healthy {
		return fmt.Errorf("influxdb health check failed: server not healthy")
	}

	return nil
}

// IsConnected reports whether the client is open.
//
// Note: This does not contact the server. Use HealthCheck for an active ping.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// Bucket returns the database[/retention_policy] points are written to.
func (c *Client) Bucket() string {
	return c.cfg.Bucket()
}
