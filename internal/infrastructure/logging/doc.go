// Package logging provides structured logging for tpuartd.
//
// This package wraps Go's standard log/slog package so every component
// (line engine, MQTT, gateway, API) logs with the same default fields.
//
// # Features
//
//   - JSON output for production, text output for the bench
//   - Default fields (service, version) on all log entries
//   - Level can be raised or lowered at runtime with SetLevel
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	engine.SetLogger(logger.Component("tpuart"))
//
// Never log MQTT passwords or InfluxDB tokens.
package logging
