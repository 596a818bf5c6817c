package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pyhilandjy/Clab-api-old/internal/ingest"
	"github.com/pyhilandjy/Clab-api-old/internal/pipeline"
)

type fakeDB struct{ err error }

func (f fakeDB) HealthCheck(ctx context.Context) error { return f.err }

type fakeMQTT struct{ connected bool }

func (f fakeMQTT) IsConnected() bool { return f.connected }

type fakeLive struct{}

func (fakeLive) PipelineStats() *pipeline.Stats {
	return &pipeline.Stats{InFlight: 2, Completed: 5, Failed: 1}
}

func (fakeLive) WatcherStatus() *ingest.WatcherStatus {
	return &ingest.WatcherStatus{Status: "watching", WatchDir: "/drop"}
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name       string
		db         HealthChecker
		mqtt       ConnectionStatus
		wantStatus int
		wantHealth string
		wantMQTT   string
	}{
		{"healthy_without_mqtt", fakeDB{}, nil, http.StatusOK, "healthy", "not_configured"},
		{"healthy_with_mqtt", fakeDB{}, fakeMQTT{connected: true}, http.StatusOK, "healthy", "ok"},
		{"mqtt_down_degraded", fakeDB{}, fakeMQTT{}, http.StatusOK, "degraded", "disconnected"},
		{"db_down_unhealthy", fakeDB{err: errors.New("refused")}, fakeMQTT{connected: true}, http.StatusServiceUnavailable, "unhealthy", "ok"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(tt.db, tt.mqtt, fakeLive{}, "local", "test", time.Now())
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/health", nil))

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			var resp HealthResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatal(err)
			}
			if resp.Status != tt.wantHealth {
				t.Errorf("Status = %q, want %q", resp.Status, tt.wantHealth)
			}
			if resp.Checks["mqtt"] != tt.wantMQTT {
				t.Errorf("mqtt check = %q, want %q", resp.Checks["mqtt"], tt.wantMQTT)
			}
			if resp.Pipeline == nil || resp.Pipeline.InFlight != 2 {
				t.Errorf("Pipeline = %+v", resp.Pipeline)
			}
			if resp.Checks["drop_watcher"] != "watching" || resp.Checks["archive"] != "local" {
				t.Errorf("checks = %v", resp.Checks)
			}
		})
	}
}
