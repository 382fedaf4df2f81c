package server

import (
	"io"
	"net/http"

	"logship/internal/metrics"
	"logship/internal/worker"
)

// Handler 는 운영용 엔드포인트를 제공한다.
//   - /metrics : 카운터 (text/plain, key=value)
//   - /health  : 프로세스 생존 확인
//   - /sweep   : retention sweep 진행 여부 ("active" / "idle")
type Handler struct {
	metrics *metrics.Metrics
	gate    *worker.SweepGate
}

func NewHandler(m *metrics.Metrics, gate *worker.SweepGate) *Handler {
	return &Handler{metrics: m, gate: gate}
}

// Mux 는 세 엔드포인트가 등록된 ServeMux 를 반환한다.
func (h *Handler) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", h.HandleMetrics)
	mux.HandleFunc("/health", h.HandleHealth)
	mux.HandleFunc("/sweep", h.HandleSweep)
	return mux
}

// HandleMetrics
//
// 파이프라인 상태 카운터를 출력한다.
// Prometheus pull 방식으로도 쉽게 전환 가능.
func (h *Handler) HandleMetrics(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, h.metrics.String())
}

func (h *Handler) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) HandleSweep(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if h.gate != nil && h.gate.Active() {
		_, _ = io.WriteString(w, "active")
		return
	}
	_, _ = io.WriteString(w, "idle")
}
