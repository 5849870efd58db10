package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/nerrad567/gray-logic-tpuart/internal/gateway"
)

// SystemStats represents the complete statistics response.
type SystemStats struct {
	Timestamp     string                    `json:"timestamp"`
	Version       string                    `json:"version"`
	UptimeSeconds int64                     `json:"uptime_seconds"`
	Runtime       RuntimeStats              `json:"runtime"`
	WebSocket     WSStats                   `json:"websocket"`
	Bridge        gateway.BridgeMetrics     `json:"bridge"`
	Engine        *gateway.EngineStatistics `json:"engine"`
}

// RuntimeStats contains Go runtime statistics.
type RuntimeStats struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSStats contains WebSocket hub statistics.
type WSStats struct {
	ConnectedClients int    `json:"connected_clients"`
	DroppedMessages  uint64 `json:"dropped_messages"`
}

// handleStats returns engine counters alongside process statistics.
//
// GET /api/v1/stats
func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	writeJSON(w, http.StatusOK, SystemStats{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeStats{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		WebSocket: WSStats{ConnectedClients: s.hub.ClientCount(), DroppedMessages: s.hub.Dropped()},
		Bridge:    s.gateway.GetMetrics(),
		Engine:    s.gateway.Stats(),
	})
}
