// Package logging provides structured logging for TWC Director.
//
// This package wraps Go's standard log/slog package so every component
// logs with the same fields and format.
//
// # Features
//
//   - JSON output for production, text output for development
//   - Default fields (service, version) on all log entries
//   - Rotating log files via lumberjack when output is "file"
//   - Thread-safe for concurrent use
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "file"     # stdout, stderr, file
//	  file:
//	    path: "/var/log/twcdirector.log"
//	    max_size: 50     # megabytes
//	    max_backups: 5
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	defer logger.Close()
//	logger.Info("peripheral discovered", "serial", serial, "address", addr)
//
// Never log MQTT passwords, InfluxDB tokens or JWT secrets.
package logging
