// Package api implements the gateway's HTTP REST API and live bus monitor.
//
// This package provides:
//   - REST endpoints for health, engine statistics and the listen table
//   - Group write, read and answer requests that go straight to the line
//   - Discovered address and sent telegram listings from the recorder
//   - Datapoint history from InfluxDB
//   - A WebSocket hub streaming every telegram seen or sent
//   - Prometheus metrics at /metrics
//   - The monitor page at /panel/
//
// # Graceful Degradation
//
// The recorder and history source are optional. Endpoints that need a
// missing component answer 503 Service Unavailable; the rest keep working.
package api
