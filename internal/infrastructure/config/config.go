package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Sentinel errors for configuration loading.
//
// Both are fatal: the process logs them and exits without retrying.
var (
	// ErrIncomplete indicates one or more required values are missing.
	ErrIncomplete = errors.New("config: incomplete configuration")

	// ErrInvalid indicates a value is present but cannot be used.
	ErrInvalid = errors.New("config: invalid configuration")
)

// DefaultTibberEndpoint is the public Tibber GraphQL endpoint.
const DefaultTibberEndpoint = "https://api.tibber.com/v1-beta/gql"

// Retry strategies accepted by SupervisorRetryConfig.Strategy.
const (
	RetryConstant    = "constant"
	RetryExponential = "exponential"
)

// Config is the root configuration structure for tibber-export.
// Values are loaded from an optional YAML file and overridden by environment variables.
type Config struct {
	Tibber     TibberConfig     `yaml:"tibber"`
	InfluxDB   InfluxDBConfig   `yaml:"influxdb"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	Supervisor SupervisorConfig `yaml:"supervisor"`
	Health     HealthConfig     `yaml:"health"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// TibberConfig contains the real-time feed settings.
type TibberConfig struct {
	Endpoint string `yaml:"endpoint"`
	Token    string `yaml:"token"`

	// HomeID selects a home when the account has several.
	// Empty means the first home with real-time consumption enabled.
	HomeID string `yaml:"home_id"`

	// HandshakeTimeout bounds the websocket dial and connection_ack wait.
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`

	// PingInterval is how often a keep-alive ping is sent on the subscription.
	PingInterval time.Duration `yaml:"ping_interval"`
}

// InfluxDBConfig contains the time-series sink settings.
//
// The sink is addressed the InfluxDB 1.x way (host, port, database, user)
// and written through the 1.8+ compatibility API.
type InfluxDBConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	RetentionPolicy string        `yaml:"retention_policy"`
	Username        string        `yaml:"username"`
	Password        string        `yaml:"password"`
	TLS             bool          `yaml:"tls"`
	VerifyTLS       bool          `yaml:"verify_tls"`
	Timeout         time.Duration `yaml:"timeout"`
}

// MQTTConfig contains the optional live mirror settings.
type MQTTConfig struct {
	Enabled     bool                `yaml:"enabled"`
	Broker      MQTTBrokerConfig    `yaml:"broker"`
	Auth        MQTTAuthConfig      `yaml:"auth"`
	QoS         int                 `yaml:"qos"`
	TopicPrefix string              `yaml:"topic_prefix"`
	Reconnect   MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings in seconds.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// SupervisorConfig contains connection supervisor timings.
type SupervisorConfig struct {
	// StaleAfter is the longest tolerated gap between samples before reconnecting.
	StaleAfter time.Duration `yaml:"stale_after"`

	// WatchdogInterval is how often the staleness check runs while subscribed.
	WatchdogInterval time.Duration `yaml:"watchdog_interval"`

	// ConnectTimeout bounds a single attempt to open the subscription.
	ConnectTimeout time.Duration `yaml:"connect_timeout"`

	// WriteTimeout bounds a single point write.
	WriteTimeout time.Duration `yaml:"write_timeout"`

	Retry SupervisorRetryConfig `yaml:"retry"`
}

// SupervisorRetryConfig controls the delay between failed open attempts.
type SupervisorRetryConfig struct {
	Strategy string        `yaml:"strategy"`
	Delay    time.Duration `yaml:"delay"`
	MaxDelay time.Duration `yaml:"max_delay"`
}

// HealthConfig contains the optional liveness probe settings.
type HealthConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load builds the configuration and validates it.
//
// The loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values, when path is not empty
//  3. Environment variables (override file values)
//
// Environment variable names match the container contract
// (INFLUXDB_HOST, TIBBER_API_TOKEN, LOG_LEVEL, ...).
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: wraps ErrIncomplete or ErrInvalid, or a file/parse error
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	// Validate accepts any case; consumers compare against the constants.
	cfg.Supervisor.Retry.Strategy = strings.ToLower(strings.TrimSpace(cfg.Supervisor.Retry.Strategy))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
// Sink and feed credentials have no defaults and must be supplied.
func defaultConfig() *Config {
	return &Config{
		Tibber: TibberConfig{
			Endpoint:         DefaultTibberEndpoint,
			HandshakeTimeout: 15 * time.Second,
			PingInterval:     30 * time.Second,
		},
		InfluxDB: InfluxDBConfig{
			TLS:       true,
			VerifyTLS: true,
			Timeout:   10 * time.Second,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "tibber-export",
			},
			QoS:         1,
			TopicPrefix: "tibber",
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		Supervisor: SupervisorConfig{
			StaleAfter:       60 * time.Second,
			WatchdogInterval: 5 * time.Second,
			ConnectTimeout:   30 * time.Second,
			WriteTimeout:     10 * time.Second,
			Retry: SupervisorRetryConfig{
				Strategy: RetryConstant,
				Delay:    5 * time.Second,
				MaxDelay: 60 * time.Second,
			},
		},
		Health: HealthConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Unparsable numbers, booleans and durations are reported as ErrInvalid.
func applyEnvOverrides(cfg *Config) error {
	var errs []string
	env := envReader{errs: &errs}

	// Tibber
	env.str("TIBBER_API_TOKEN", &cfg.Tibber.Token)
	env.str("TIBBER_API_ENDPOINT", &cfg.Tibber.Endpoint)
	env.str("TIBBER_HOME_ID", &cfg.Tibber.HomeID)

	// InfluxDB
	env.str("INFLUXDB_HOST", &cfg.InfluxDB.Host)
	env.integer("INFLUXDB_PORT", &cfg.InfluxDB.Port)
	env.str("INFLUXDB_DB", &cfg.InfluxDB.Database)
	env.str("INFLUXDB_RETENTION_POLICY", &cfg.InfluxDB.RetentionPolicy)
	env.str("INFLUXDB_USER", &cfg.InfluxDB.Username)
	env.str("INFLUXDB_PASSWORD", &cfg.InfluxDB.Password)
	env.boolean("INFLUXDB_TLS", &cfg.InfluxDB.TLS)
	env.boolean("INFLUXDB_VERIFY_TLS", &cfg.InfluxDB.VerifyTLS)

	// MQTT
	env.boolean("MQTT_ENABLED", &cfg.MQTT.Enabled)
	env.str("MQTT_HOST", &cfg.MQTT.Broker.Host)
	env.integer("MQTT_PORT", &cfg.MQTT.Broker.Port)
	env.str("MQTT_USERNAME", &cfg.MQTT.Auth.Username)
	env.str("MQTT_PASSWORD", &cfg.MQTT.Auth.Password)
	env.str("MQTT_TOPIC_PREFIX", &cfg.MQTT.TopicPrefix)

	// Supervisor
	env.duration("WATCHDOG_STALE_AFTER", &cfg.Supervisor.StaleAfter)
	env.duration("WATCHDOG_INTERVAL", &cfg.Supervisor.WatchdogInterval)
	env.str("RETRY_STRATEGY", &cfg.Supervisor.Retry.Strategy)
	env.duration("RETRY_DELAY", &cfg.Supervisor.Retry.Delay)
	env.duration("RETRY_MAX_DELAY", &cfg.Supervisor.Retry.MaxDelay)

	// Health probe
	env.boolean("HEALTH_ENABLED", &cfg.Health.Enabled)
	env.integer("HEALTH_PORT", &cfg.Health.Port)

	// Logging
	env.str("LOG_LEVEL", &cfg.Logging.Level)
	env.str("LOG_FORMAT", &cfg.Logging.Format)

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(errs, "; "))
	}
	return nil
}

// envReader copies set environment variables into config fields,
// collecting parse failures instead of stopping at the first one.
type envReader struct {
	errs *[]string
}

func (e envReader) str(key string, dst *string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func (e envReader) integer(key string, dst *int) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		*e.errs = append(*e.errs, fmt.Sprintf("%s must be an integer, got %q", key, v))
		return
	}
	*dst = n
}

func (e envReader) boolean(key string, dst *bool) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		*e.errs = append(*e.errs, fmt.Sprintf("%s must be a boolean, got %q", key, v))
		return
	}
	*dst = b
}

func (e envReader) duration(key string, dst *time.Duration) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		*e.errs = append(*e.errs, fmt.Sprintf("%s must be a duration, got %q", key, v))
		return
	}
	*dst = d
}

// Validate checks the configuration for missing and unusable values.
//
// Missing required values are reported together as ErrIncomplete so an
// operator sees every gap in one log line. Other problems are ErrInvalid.
func (c *Config) Validate() error {
	var missing []string
	require := func(value, name string) {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}

	require(c.InfluxDB.Host, "INFLUXDB_HOST")
	if c.InfluxDB.Port == 0 {
		missing = append(missing, "INFLUXDB_PORT")
	}
	require(c.InfluxDB.Database, "INFLUXDB_DB")
	require(c.InfluxDB.Username, "INFLUXDB_USER")
	require(c.InfluxDB.Password, "INFLUXDB_PASSWORD")
	require(c.Tibber.Token, "TIBBER_API_TOKEN")

	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrIncomplete, strings.Join(missing, ", "))
	}

	var errs []string

	if c.InfluxDB.Port < 1 || c.InfluxDB.Port > 65535 {
		errs = append(errs, "influxdb.port must be between 1 and 65535")
	}
	if c.Tibber.Endpoint == "" {
		errs = append(errs, "tibber.endpoint must not be empty")
	}

	if c.MQTT.Enabled {
		if c.MQTT.Broker.Host == "" {
			errs = append(errs, "mqtt.broker.host is required when mqtt is enabled")
		}
		if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
			errs = append(errs, "mqtt.qos must be 0, 1, or 2")
		}
		if c.MQTT.TopicPrefix == "" {
			errs = append(errs, "mqtt.topic_prefix must not be empty")
		}
	}

	if c.Health.Enabled && (c.Health.Port < 1 || c.Health.Port > 65535) {
		errs = append(errs, "health.port must be between 1 and 65535")
	}

	s := c.Supervisor
	if s.StaleAfter <= 0 {
		errs = append(errs, "supervisor.stale_after must be positive")
	}
	if s.WatchdogInterval <= 0 {
		errs = append(errs, "supervisor.watchdog_interval must be positive")
	} else if s.StaleAfter > 0 && s.WatchdogInterval > s.StaleAfter {
		errs = append(errs, "supervisor.watchdog_interval must not exceed stale_after")
	}
	switch strings.ToLower(s.Retry.Strategy) {
	case RetryConstant, RetryExponential:
	default:
		errs = append(errs, fmt.Sprintf("supervisor.retry.strategy must be %q or %q", RetryConstant, RetryExponential))
	}
	if s.Retry.Delay < 0 || s.Retry.MaxDelay < 0 {
		errs = append(errs, "supervisor.retry delays must not be negative")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Sprintf("invalid log level specified: %s", c.Logging.Level))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(errs, "; "))
	}

	return nil
}

// URL returns the sink base URL built from host, port and TLS setting.
func (c InfluxDBConfig) URL() string {
	scheme := "http"
	if c.TLS {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, c.Host, c.Port)
}

// Bucket returns the 1.x compatibility bucket name: database[/retention_policy].
func (c InfluxDBConfig) Bucket() string {
	if c.RetentionPolicy == "" {
		return c.Database
	}
	return c.Database + "/" + c.RetentionPolicy
}
