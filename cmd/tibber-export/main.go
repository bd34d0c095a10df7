// tibber-export bridges Tibber live power measurements into InfluxDB.
//
// It subscribes to the Tibber liveMeasurement feed for one home, converts
// every sample into a tibber-measurement point and writes it to an
// InfluxDB 1.x database. A watchdog reconnects when the feed goes quiet.
//
// Configuration comes from the environment (see internal/infrastructure/config),
// optionally layered over a YAML file named by TIBBER_EXPORT_CONFIG.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nerrad567/tibber-export/internal/health"
	"github.com/nerrad567/tibber-export/internal/infrastructure/config"
	"github.com/nerrad567/tibber-export/internal/infrastructure/influxdb"
	"github.com/nerrad567/tibber-export/internal/infrastructure/logging"
	"github.com/nerrad567/tibber-export/internal/infrastructure/mqtt"
	"github.com/nerrad567/tibber-export/internal/supervisor"
	"github.com/nerrad567/tibber-export/internal/tibber"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// configPathEnv names the optional YAML config file.
const configPathEnv = "TIBBER_EXPORT_CONFIG"

// startupCheckTimeout bounds the initial sink reachability probe.
const startupCheckTimeout = 5 * time.Second

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run wires the bridge together and blocks until ctx is cancelled.
//
// Only configuration and local setup errors are returned. Feed and sink
// outages are handled by the supervisor and never end the process.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing a startup failure
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting tibber-export",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := os.Getenv(configPathEnv)
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded",
		"path", configPath,
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Sink
	sink, err := influxdb.Connect(cfg.InfluxDB)
	if err != nil {
		return fmt.Errorf("configuring InfluxDB: %w", err)
	}
	defer func() {
		log.Info("closing InfluxDB client")
		if closeErr := sink.Close(); closeErr != nil {
			log.Error("error closing InfluxDB", "error", closeErr)
		}
	}()
	checkSink(ctx, log, sink, cfg.InfluxDB)

	// Feed
	feed := tibber.New(cfg.Tibber)
	feed.SetVersion(version)
	feed.SetLogger(log.With("component", "tibber"))

	sup := supervisor.New(supervisor.ConfigFrom(cfg.Supervisor), feed, sink)
	sup.SetLogger(log.With("component", "supervisor"))

	// Optional mirror
	if cfg.MQTT.Enabled {
		mirror, mqttErr := mqtt.Connect(cfg.MQTT)
		if mqttErr != nil {
			log.Warn("MQTT mirror disabled", "error", mqttErr)
		} else {
			mirror.SetLogger(log.With("component", "mqtt"))
			defer func() {
				log.Info("disconnecting from MQTT")
				if closeErr := mirror.Close(); closeErr != nil {
					log.Error("error closing MQTT", "error", closeErr)
				}
			}()
			sup.SetMirror(mirror)
			log.Info("MQTT mirror connected",
				"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
				"topic", mirror.Topics().Live("<home_id>"),
			)
		}
	}

	// Optional health probe
	if cfg.Health.Enabled {
		probe, probeErr := health.New(cfg.Health, sup, log, version)
		if probeErr != nil {
			return fmt.Errorf("creating health probe: %w", probeErr)
		}
		if startErr := probe.Start(ctx); startErr != nil {
			return fmt.Errorf("starting health probe: %w", startErr)
		}
		defer func() {
			if closeErr := probe.Close(); closeErr != nil {
				log.Error("error closing health probe", "error", closeErr)
			}
		}()
	}

	log.Info("tibber-export started")

	//nolint:errcheck // Run only returns on cancellation
	sup.Run(ctx)

	log.Info("shutdown signal received, stopping")
	return nil
}

// checkSink logs whether InfluxDB is reachable. An unreachable sink is not
// fatal: points that fail to write are logged and dropped, and later
// points are written once the server is back.
func checkSink(ctx context.Context, log *logging.Logger, sink *influxdb.Client, cfg config.InfluxDBConfig) {
	checkCtx, cancel := context.WithTimeout(ctx, startupCheckTimeout)
	defer cancel()

	if err := sink.HealthCheck(checkCtx); err != nil {
		log.Warn("InfluxDB not reachable yet", "url", cfg.URL(), "error", err)
		return
	}
	log.Info("InfluxDB reachable", "url", cfg.URL(), "bucket", sink.Bucket())
}
