package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/nerrad567/astrobridge/internal/event"
)

// SystemMetrics represents the complete system metrics response.
type SystemMetrics struct {
	Timestamp     string           `json:"timestamp"`
	Version       string           `json:"version"`
	UptimeSeconds int64            `json:"uptime_seconds"`
	Runtime       RuntimeMetrics   `json:"runtime"`
	WebSocket     WSMetrics        `json:"websocket"`
	MQTT          MQTTMetrics      `json:"mqtt"`
	Processes     ProcessMetrics   `json:"processes"`
	Events        EventMetrics     `json:"events"`
	Database      *DatabaseMetrics `json:"database,omitempty"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int `json:"connected_clients"`
}

// MQTTMetrics contains MQTT client statistics.
type MQTTMetrics struct {
	Enabled   bool `json:"enabled"`
	Connected bool `json:"connected"`
}

// ProcessMetrics contains process registry statistics.
type ProcessMetrics struct {
	Total    int            `json:"total"`
	ByStatus map[string]int `json:"by_status"`
}

// EventMetrics contains event history statistics.
type EventMetrics struct {
	HistoryLength     int `json:"history_length"`
	BroadcastClients  int `json:"broadcast_clients"`
	AvailableChannels int `json:"available_channels"`
}

// DatabaseMetrics contains database connection pool statistics.
type DatabaseMetrics struct {
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	Idle            int   `json:"idle"`
	WaitCount       int64 `json:"wait_count"`
	SizeBytes       int64 `json:"size_bytes"`
}

// handleMetrics returns comprehensive system metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		WebSocket: WSMetrics{
			ConnectedClients: s.hub.ClientCount(),
		},
		Events: EventMetrics{
			HistoryLength:     s.broadcaster.HistoryLen(),
			BroadcastClients:  s.broadcaster.ClientCount(),
			AvailableChannels: len(event.Channels()),
		},
	}

	if s.mqtt != nil {
		metrics.MQTT = MQTTMetrics{
			Enabled:   true,
			Connected: s.mqtt.IsConnected(),
		}
	}

	procs := s.registry.List()
	metrics.Processes = ProcessMetrics{
		Total:    len(procs),
		ByStatus: make(map[string]int),
	}
	for _, p := range procs {
		metrics.Processes.ByStatus[string(p.Status)]++
	}

	if s.db != nil {
		dbStats := s.db.Stats()
		metrics.Database = &DatabaseMetrics{
			OpenConnections: dbStats.OpenConnections,
			InUse:           dbStats.InUse,
			Idle:            dbStats.Idle,
			WaitCount:       dbStats.WaitCount,
		}
		if size, err := s.db.SizeBytes(r.Context()); err == nil {
			metrics.Database.SizeBytes = size
		}
	}

	writeJSON(w, http.StatusOK, metrics)
}
