package api

import (
	"context"
	"net/http"
	"time"

	"github.com/pyhilandjy/Clab-api-old/internal/ingest"
	"github.com/pyhilandjy/Clab-api-old/internal/pipeline"
)

// HealthChecker is satisfied by the database handle.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// ConnectionStatus is satisfied by the MQTT client.
type ConnectionStatus interface {
	IsConnected() bool
}

// StatusSource exposes live component state to the health endpoint. Any
// method may return nil when the component is not running.
type StatusSource interface {
	PipelineStats() *pipeline.Stats
	WatcherStatus() *ingest.WatcherStatus
}

type HealthResponse struct {
	Status        string                `json:"status"`
	Version       string                `json:"version"`
	UptimeSeconds int64                 `json:"uptime_seconds"`
	Checks        map[string]string     `json:"checks"`
	Pipeline      *pipeline.Stats       `json:"pipeline,omitempty"`
	Watcher       *ingest.WatcherStatus `json:"watcher,omitempty"`
}

type HealthHandler struct {
	db        HealthChecker
	mqtt      ConnectionStatus
	live      StatusSource
	archive   string
	version   string
	startTime time.Time
}

func NewHealthHandler(db HealthChecker, mqtt ConnectionStatus, live StatusSource, archiveType, version string, startTime time.Time) *HealthHandler {
	return &HealthHandler{
		db:        db,
		mqtt:      mqtt,
		live:      live,
		archive:   archiveType,
		version:   version,
		startTime: startTime,
	}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)
	status := "healthy"
	httpStatus := http.StatusOK

	// Database check
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	if h.db == nil || h.db.HealthCheck(ctx) != nil {
		checks["database"] = "error"
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["database"] = "ok"
	}

	// MQTT check
	if h.mqtt != nil {
		if h.mqtt.IsConnected() {
			checks["mqtt"] = "ok"
		} else {
			checks["mqtt"] = "disconnected"
			if status == "healthy" {
				status = "degraded"
			}
		}
	} else {
		checks["mqtt"] = "not_configured"
	}

	if h.archive != "" {
		checks["archive"] = h.archive
	}

	resp := HealthResponse{
		Status:        status,
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Checks:        checks,
	}
	if h.live != nil {
		resp.Pipeline = h.live.PipelineStats()
		if ws := h.live.WatcherStatus(); ws != nil {
			checks["drop_watcher"] = ws.Status
			resp.Watcher = ws
		}
	}

	WriteJSON(w, httpStatus, resp)
}
