// Package logging provides structured logging for tibber-export.
//
// This package wraps Go's standard log/slog package so every component
// logs with the same handler, level filter and default fields.
//
// # Features
//
//   - JSON output for containers (machine-parsable)
//   - Text output for local runs (human-readable)
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//
// # Configuration
//
//	LOG_LEVEL=debug   # debug, info, warn, error
//	LOG_FORMAT=text   # json, text
//
// # Usage
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Info("subscribed", "home_id", homeID)
//	logger.Error("write failed", "error", err)
//
// # Security
//
// Never log the Tibber token or sink passwords.
package logging
