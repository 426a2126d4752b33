package service

import (
	"encoding/json"
	"net/http"
)

// Health is the /healthz response body.
type Health struct {
	Status          string `json:"status"`
	State           string `json:"state"`
	GenerationBuilt bool   `json:"generation_built"`
	Generation      uint64 `json:"generation"`
	Subscriptions   int    `json:"subscriptions"`
	Connections     int    `json:"connections"`
	BoundSessions   int    `json:"bound_sessions"`
	QueueDepth      int    `json:"queue_depth"`
	Processed       uint64 `json:"processed"`
	Delivered       uint64 `json:"delivered"`
	Dropped         uint64 `json:"dropped"`
}

// Health returns the current health summary. Status is "ok" while running.
func (s *Service) Health() Health {
	state := s.State()
	reg := s.registry.Stats()
	disp := s.dispatcher.Stats()

	h := Health{
		Status:          "unavailable",
		State:           state.String(),
		GenerationBuilt: s.registry.Built(),
		Generation:      reg.Generation,
		Subscriptions:   reg.Subscriptions,
		Connections:     s.handler.Connections(),
		BoundSessions:   s.binder.Stats().Sessions,
		QueueDepth:      disp.QueueDepth,
		Processed:       disp.Processed,
		Delivered:       disp.Delivered,
		Dropped:         disp.Dropped,
	}
	if state == StateRunning {
		h.Status = "ok"
	}
	return h
}

// handleHealth returns the health summary.
func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	h := s.Health()
	status := http.StatusOK
	if h.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, h)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
