// Package logging provides structured logging for pvrun.
//
// This package wraps Go's standard log/slog package so every component of
// the launcher logs the same way.
//
// # Features
//
//   - Text output by default, JSON for log shippers
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//   - Writes to stderr unless configured otherwise
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "text"     # text, json
//	  output: "stderr"   # stderr, stdout
//
// # Usage
//
//	logger := logging.New(cfg.Logging, version.Version)
//	logger.Info("reserving hugepages", "size", hugepage.Describe(size))
//
// # Security
//
// Never log secrets such as the MQTT password or the InfluxDB token.
package logging
