package app

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

type healthResponse struct {
	Status      string   `json:"status"`
	Store       string   `json:"store"`
	Sessions    int      `json:"sessions"`
	Rooms       int      `json:"rooms"`
	Connections int      `json:"connections"`
	ActiveRooms []string `json:"active_rooms"`
}

// handleHealth reports store reachability and live presence counts.
func (a *Application) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := healthResponse{
		Status:      "ok",
		Store:       "ok",
		Sessions:    a.sessions.Stats()["sessions"],
		Rooms:       a.sessions.Stats()["rooms"],
		Connections: a.conns.Stats()["connections"],
		ActiveRooms: a.sessions.ActiveRooms(),
	}

	status := http.StatusOK
	if err := a.store.HealthCheck(ctx); err != nil {
		resp.Status = "degraded"
		resp.Store = err.Error()
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		a.log.Warn().Err(err).Msg("failed to write health response")
	}
}
