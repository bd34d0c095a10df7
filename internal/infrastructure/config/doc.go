// Package config handles loading and validating tibber-export configuration.
//
// This package manages:
//   - Loading configuration from an optional YAML file
//   - Overriding with environment variables
//   - Validation of required fields
//   - Default value handling
//
// Every value the bridge cannot run without (sink host, port, database,
// credentials and the feed access token) is required. A missing value is
// reported as ErrIncomplete and the process exits immediately; there is no
// retry for configuration.
//
// Security Considerations:
//   - Passwords and the Tibber token should be set via environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load(os.Getenv("TIBBER_EXPORT_CONFIG"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.InfluxDB.URL())
package config
