package metrics

import "github.com/prometheus/client_golang/prometheus"

// EngineSnapshot mirrors the line engine's cumulative counters.
type EngineSnapshot struct {
	TelegramsRx         uint64
	TelegramsIrrelevant uint64
	TelegramsTx         uint64
	NegativeAcks        uint64
	Timeouts            uint64
	UnknownBytes        uint64
	ResetIndications    uint64
	ConfirmsSent        uint64
	ChecksumErrors      uint64
}

// EngineCollector exposes an engine's counters at scrape time, so the
// engine itself never touches Prometheus.
type EngineCollector struct {
	snapshot func() EngineSnapshot
	descs    map[string]*prometheus.Desc
}

var engineCounters = []struct {
	name string
	help string
	get  func(EngineSnapshot) uint64
}{
	{"telegrams_received_total", "Telegrams accepted from the line.", func(s EngineSnapshot) uint64 { return s.TelegramsRx }},
	{"telegrams_irrelevant_total", "Telegrams read but not addressed to us.", func(s EngineSnapshot) uint64 { return s.TelegramsIrrelevant }},
	{"telegrams_sent_total", "Telegrams confirmed by the transceiver.", func(s EngineSnapshot) uint64 { return s.TelegramsTx }},
	{"negative_acks_total", "Sends answered with a negative confirmation.", func(s EngineSnapshot) uint64 { return s.NegativeAcks }},
	{"read_timeouts_total", "Byte reads that timed out mid-telegram or mid-confirm.", func(s EngineSnapshot) uint64 { return s.Timeouts }},
	{"unknown_bytes_total", "Unclassified bytes read from the transceiver.", func(s EngineSnapshot) uint64 { return s.UnknownBytes }},
	{"reset_indications_total", "Reset indications from the transceiver.", func(s EngineSnapshot) uint64 { return s.ResetIndications }},
	{"confirms_sent_total", "Positive transport confirmations sent.", func(s EngineSnapshot) uint64 { return s.ConfirmsSent }},
	{"checksum_errors_total", "Accepted telegrams whose checksum did not verify.", func(s EngineSnapshot) uint64 { return s.ChecksumErrors }},
}

// NewEngineCollector returns a collector reading counters from snapshot.
func NewEngineCollector(snapshot func() EngineSnapshot) *EngineCollector {
	c := &EngineCollector{
		snapshot: snapshot,
		descs:    make(map[string]*prometheus.Desc, len(engineCounters)),
	}
	for _, ec := range engineCounters {
		c.descs[ec.name] = prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "engine", ec.name), ec.help, nil, nil)
	}
	return c
}

// Describe implements prometheus.Collector.
func (c *EngineCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range c.descs {
		ch <- d
	}
}

// Collect implements prometheus.Collector.
func (c *EngineCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.snapshot()
	for _, ec := range engineCounters {
		ch <- prometheus.MustNewConstMetric(c.descs[ec.name], prometheus.CounterValue, float64(ec.get(s)))
	}
}

// RegisterEngine adds an engine collector to the default registry.
func RegisterEngine(snapshot func() EngineSnapshot) error {
	RegisterMetrics()
	return prometheus.Register(NewEngineCollector(snapshot))
}
