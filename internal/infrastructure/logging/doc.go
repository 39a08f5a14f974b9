// Package logging provides structured logging for astrobridge.
//
// This package wraps Go's standard log/slog package so every component logs
// with the same handler, level and default fields.
//
// # Features
//
//   - JSON output for production (machine-parsable)
//   - Text output for development (human-readable)
//   - Default fields (service, version) on all log entries
//   - Optional rotating log file via lumberjack
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr, none
//	  file:
//	    path: "./logs/astrobridge.log"
//	    max_size: 50     # megabytes
//	    max_backups: 5
//	    max_age: 14      # days
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	defer logger.Close()
//	logger.Info("starting service", "port", 1888)
//
//	busLog := logger.Component("bus") // adds component=bus
//
// Never log secrets, tokens or passwords.
package logging
