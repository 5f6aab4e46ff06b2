package health

import (
	"encoding/json"
	"net/http"
)

// RegisterRoutes mounts the health endpoints on mux. /healthz reports the
// full component breakdown, /readyz gates on critical dependencies, and
// /livez only proves the process is serving.
func (m *Manager) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", m.handleHealth)
	mux.HandleFunc("GET /readyz", m.handleReady)
	mux.HandleFunc("GET /livez", m.handleLive)
}

func (m *Manager) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := m.Check(r.Context())
	status := http.StatusOK
	if report.Status == StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(report)
}

func (m *Manager) handleReady(w http.ResponseWriter, r *http.Request) {
	if !m.Ready(r.Context()) {
		http.Error(w, `{"status":"not ready"}`, http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ready"}`))
}

func (m *Manager) handleLive(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"alive"}`))
}
