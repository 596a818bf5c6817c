package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type fakeStats struct{ n int }

func (f fakeStats) InFlightCount() int { return f.n }

func TestCollector(t *testing.T) {
	c := NewCollector(nil, fakeStats{n: 3})
	if got := testutil.CollectAndCount(c); got != 4 {
		t.Errorf("CollectAndCount = %d, want 4", got)
	}

	reg := prometheus.NewPedanticRegistry()
	if err := reg.Register(c); err != nil {
		t.Fatalf("Register: %v", err)
	}
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() == "clab_stt_pipeline_runs_in_flight" {
			if v := mf.GetMetric()[0].GetGauge().GetValue(); v != 3 {
				t.Errorf("in-flight gauge = %v, want 3", v)
			}
			return
		}
	}
	t.Error("clab_stt_pipeline_runs_in_flight not gathered")
}

func TestCollectorNilStats(t *testing.T) {
	if got := testutil.CollectAndCount(NewCollector(nil, nil)); got != 4 {
		t.Errorf("CollectAndCount = %d, want 4", got)
	}
}

func TestInstrumentHandler(t *testing.T) {
	r := chi.NewRouter()
	r.Use(InstrumentHandler)
	r.Get("/api/v1/recordings/{id}/run", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte("body"))
	})

	before := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "/api/v1/recordings/{id}/run", "418"))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/recordings/abc/run", nil))

	if rec.Code != http.StatusTeapot {
		t.Fatalf("status = %d", rec.Code)
	}
	after := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "/api/v1/recordings/{id}/run", "418"))
	if after-before != 1 {
		t.Errorf("counter delta = %v, want 1 (route pattern label)", after-before)
	}
}
