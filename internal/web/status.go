package web

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/makt28/tgwatch/internal/storage"
)

// StateLoader reads the persisted alert state.
type StateLoader interface {
	Load(ctx context.Context, now time.Time) (storage.Snapshot, error)
}

// StatusResponse is the JSON body of GET /status.
type StatusResponse struct {
	Alerting         bool    `json:"alerting"`
	Since            *string `json:"since"`
	ConsecutiveFails int     `json:"consecutiveFails"`
	CheckedAt        string  `json:"checkedAt"`
}

// NewStatusResponse renders a snapshot. Since is null when nothing is stored yet.
func NewStatusResponse(snap storage.Snapshot, now time.Time) StatusResponse {
	resp := StatusResponse{
		Alerting:         snap.State.Alerting,
		ConsecutiveFails: snap.State.ConsecutiveFails,
		CheckedAt:        now.UTC().Format(time.RFC3339),
	}
	if snap.Found {
		since := snap.State.Since.UTC().Format(time.RFC3339)
		resp.Since = &since
	}
	return resp
}

// StatusHandler serves GET /status from the store without running probes.
type StatusHandler struct {
	states StateLoader
	now    func() time.Time
}

func NewStatusHandler(states StateLoader) *StatusHandler {
	return &StatusHandler{states: states, now: time.Now}
}

func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	snap, err := h.states.Load(r.Context(), now)
	if err != nil {
		slog.Error("status: failed to read alert state", "error", err)
		writeError(w, http.StatusServiceUnavailable, "state store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, NewStatusResponse(snap, now))
}
