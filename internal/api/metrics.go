package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/nerrad567/jsonwp-core/internal/process"
	"github.com/nerrad567/jsonwp-core/internal/telemetry"
)

// SystemMetrics represents the complete metrics response.
type SystemMetrics struct {
	Timestamp     string              `json:"timestamp"`
	Version       string              `json:"version"`
	UptimeSeconds int64               `json:"uptime_seconds"`
	Runtime       RuntimeMetrics      `json:"runtime"`
	Commands      *telemetry.Snapshot `json:"commands,omitempty"`
	Upstream      *UpstreamMetrics    `json:"upstream,omitempty"`
	WebSocket     WSMetrics           `json:"websocket"`
	MQTT          MQTTMetrics         `json:"mqtt"`
	InfluxDB      InfluxMetrics       `json:"influxdb"`
	Database      *DatabaseMetrics    `json:"database,omitempty"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// UpstreamMetrics describes the upstream automation server.
type UpstreamMetrics struct {
	URL      string         `json:"url"`
	Sessions int            `json:"sessions"`
	Process  *process.Stats `json:"process,omitempty"`
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

// InfluxMetrics contains InfluxDB client statistics.
type InfluxMetrics struct {
	Enabled     bool   `json:"enabled"`
	Connected   bool   `json:"connected"`
	WriteErrors uint64 `json:"write_errors"`
}

// DatabaseMetrics contains database connection pool statistics.
type DatabaseMetrics struct {
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	Idle            int   `json:"idle"`
	WaitCount       int64 `json:"wait_count"`
}

// handleMetrics returns runtime, dispatch and subsystem metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
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
	}

	if s.counters != nil {
		snap := s.counters.Snapshot()
		metrics.Commands = &snap
	}

	if s.upstream != nil {
		metrics.Upstream = &UpstreamMetrics{
			URL:      s.upstream.URL(),
			Sessions: s.upstream.SessionCount(),
		}
		if s.process != nil {
			stats := s.process.Stats()
			metrics.Upstream.Process = &stats
		}
	}

	if s.mqtt != nil {
		metrics.MQTT = MQTTMetrics{Enabled: true, Connected: s.mqtt.IsConnected()}
	}
	if s.influx != nil {
		metrics.InfluxDB = InfluxMetrics{
			Enabled:     true,
			Connected:   s.influx.IsConnected(),
			WriteErrors: s.influx.WriteErrors(),
		}
	}

	if s.db != nil {
		dbStats := s.db.Stats()
		metrics.Database = &DatabaseMetrics{
			OpenConnections: dbStats.OpenConnections,
			InUse:           dbStats.InUse,
			Idle:            dbStats.Idle,
			WaitCount:       dbStats.WaitCount,
		}
	}

	writeJSON(w, http.StatusOK, metrics)
}
