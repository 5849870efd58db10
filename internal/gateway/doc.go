// Package gateway connects the TP-UART line engine to the rest of the
// system.
//
// A Bridge drives the engine's receive loop and fans every accepted
// telegram out to:
//   - MQTT (raw telegram topics and retained datapoint state)
//   - InfluxDB (telegram and decoded datapoint points)
//   - the SQLite address Recorder
//   - Prometheus counters
//   - live monitor subscribers (the WebSocket hub)
//
// In the other direction it accepts write, read and answer requests from
// MQTT command topics and from the HTTP API and turns them into group
// telegrams on the line.
//
// HealthReporter publishes periodic health and engine statistics.
package gateway
