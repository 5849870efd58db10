// Package metrics exposes gateway counters to Prometheus.
//
// Event and send counters are package-level collectors registered once
// with the default registry. Engine counters are read at scrape time
// through EngineCollector.
package metrics
