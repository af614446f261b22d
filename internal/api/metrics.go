package api

import (
	"net/http"
	"runtime"
	"time"
)

// SystemMetrics is the body of GET /api/v1/metrics.
type SystemMetrics struct {
	Timestamp     string           `json:"timestamp"`
	Version       string           `json:"version"`
	UptimeSeconds int64            `json:"uptime_seconds"`
	Runtime       RuntimeMetrics   `json:"runtime"`
	WebSocket     WSMetrics        `json:"websocket"`
	MQTT          *MQTTMetrics     `json:"mqtt,omitempty"`
	Device        DeviceMetrics    `json:"device"`
	Database      *DatabaseMetrics `json:"database,omitempty"`
}

type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

type WSMetrics struct {
	ConnectedClients int `json:"connected_clients"`
}

type MQTTMetrics struct {
	Connected bool `json:"connected"`
}

// DeviceMetrics summarises setup state and polling of the device.
type DeviceMetrics struct {
	Serial      string `json:"serial"`
	Ready       bool   `json:"ready"`
	Healthy     bool   `json:"healthy"`
	Polls       uint64 `json:"polls"`
	Failures    uint64 `json:"failures"`
	LastSuccess string `json:"last_success,omitempty"`
	LastError   string `json:"last_error,omitempty"`
}

// DatabaseMetrics mirrors sql.DBStats for the single SQLite connection.
type DatabaseMetrics struct {
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	Idle            int   `json:"idle"`
	WaitCount       int64 `json:"wait_count"`
}

const bytesPerMB = 1 << 20

// handleMetrics returns a JSON overview for dashboards. Prometheus scrapes
// /metrics instead.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime:       readRuntimeMetrics(),
		WebSocket:     WSMetrics{ConnectedClients: s.hub.ClientCount()},
		Device:        s.deviceMetrics(),
	}
	if s.mqtt != nil {
		metrics.MQTT = &MQTTMetrics{Connected: s.mqtt.IsConnected()}
	}
	if s.db != nil {
		st := s.db.Stats()
		metrics.Database = &DatabaseMetrics{
			OpenConnections: st.OpenConnections,
			InUse:           st.InUse,
			Idle:            st.Idle,
			WaitCount:       st.WaitCount,
		}
	}
	writeJSON(w, http.StatusOK, metrics)
}

func readRuntimeMetrics() RuntimeMetrics {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	return RuntimeMetrics{
		Goroutines:    runtime.NumGoroutine(),
		MemoryAllocMB: float64(mem.Alloc) / bytesPerMB,
		MemoryTotalMB: float64(mem.TotalAlloc) / bytesPerMB,
		NumGC:         mem.NumGC,
	}
}

func (s *Server) deviceMetrics() DeviceMetrics {
	stats := s.device.Stats()
	dm := DeviceMetrics{
		Serial:    s.device.Serial(),
		Ready:     s.device.Ready(),
		Healthy:   s.device.Healthy(),
		Polls:     stats.Polls,
		Failures:  stats.Failures,
		LastError: stats.LastError,
	}
	if !stats.LastSuccess.IsZero() {
		dm.LastSuccess = stats.LastSuccess.UTC().Format(time.RFC3339)
	}
	return dm
}
