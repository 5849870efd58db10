package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tpuart"

var (
	registerOnce sync.Once

	busEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bus",
			Name:      "events_total",
			Help:      "Line events delivered by the engine, by type and command.",
		},
		[]string{"type", "command"},
	)
	sends = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bus",
			Name:      "sends_total",
			Help:      "Telegrams handed to the transceiver, by origin and outcome.",
		},
		[]string{"origin", "outcome"},
	)
	sendDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "bus",
			Name:      "send_duration_seconds",
			Help:      "Time from first frame unit to confirmation, settle delay included.",
			Buckets:   []float64{0.02, 0.05, 0.1, 0.15, 0.2, 0.3, 0.5, 1, 2},
		},
		[]string{"origin"},
	)
	listenTableSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "listen_group_addresses",
			Help:      "Group addresses in the listen table.",
		},
	)
	mqttConnected = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "mqtt",
			Name:      "connected",
			Help:      "1 while the MQTT broker connection is up.",
		},
	)
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

// RegisterMetrics registers the package collectors with the default
// registry. Safe to call more than once.
func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(busEvents, sends, sendDuration, listenTableSize, mqttConnected, httpRequests, httpDuration)
	})
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	RegisterMetrics()
	return promhttp.Handler()
}

// RecordEvent counts one engine event. command is empty for events that
// carry no telegram.
func RecordEvent(eventType, command string) {
	RegisterMetrics()
	busEvents.WithLabelValues(eventType, command).Inc()
}

// RecordSend counts one send attempt. origin is "mqtt", "api" or "cli";
// outcome is "ok", "negative_ack", "timeout", "invalid" or "error".
func RecordSend(origin, outcome string, duration time.Duration) {
	RegisterMetrics()
	sends.WithLabelValues(origin, outcome).Inc()
	sendDuration.WithLabelValues(origin).Observe(duration.Seconds())
}

// SetListenTableSize records the listen table occupancy.
func SetListenTableSize(n int) {
	RegisterMetrics()
	listenTableSize.Set(float64(n))
}

// SetMQTTConnected records the broker connection state.
func SetMQTTConnected(connected bool) {
	RegisterMetrics()
	if connected {
		mqttConnected.Set(1)
	} else {
		mqttConnected.Set(0)
	}
}

// RecordHTTPRequest counts one API request.
func RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, route, statusLabel).Inc()
	httpDuration.WithLabelValues(method, route, statusLabel).Observe(duration.Seconds())
}
