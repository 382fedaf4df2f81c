package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"logship/internal/metrics"
	"logship/internal/worker"
)

func get(t *testing.T, h http.Handler, path string) (int, string) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec.Code, rec.Body.String()
}

func TestHandleMetrics(t *testing.T) {
	m := metrics.New()
	atomic.AddInt64(&m.EventsIndexedTotal, 7)
	mux := NewHandler(m, &worker.SweepGate{}).Mux()

	code, body := get(t, mux, "/metrics")
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if !strings.Contains(body, "events_indexed_total=7\n") {
		t.Errorf("body missing counter:\n%s", body)
	}
}

func TestHandleHealth(t *testing.T) {
	mux := NewHandler(metrics.New(), nil).Mux()
	if code, body := get(t, mux, "/health"); code != http.StatusOK || body != "ok" {
		t.Errorf("got %d %q", code, body)
	}
}

func TestHandleSweep(t *testing.T) {
	gate := &worker.SweepGate{}
	mux := NewHandler(metrics.New(), gate).Mux()

	if _, body := get(t, mux, "/sweep"); body != "idle" {
		t.Errorf("idle gate: got %q", body)
	}
	if !gate.TryAcquire() {
		t.Fatal("TryAcquire failed on idle gate")
	}
	if _, body := get(t, mux, "/sweep"); body != "active" {
		t.Errorf("held gate: got %q", body)
	}
	gate.Release()
	if _, body := get(t, mux, "/sweep"); body != "idle" {
		t.Errorf("released gate: got %q", body)
	}
}
