package web

import (
	"net/http"
	"time"
)

var startTime = time.Now()

// HealthHandler serves the /healthz endpoint.
type HealthHandler struct {
	version  string
	schedule string
}

func NewHealthHandler(version, schedule string) *HealthHandler {
	return &HealthHandler{version: version, schedule: schedule}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "ok",
		"version":        h.version,
		"uptime_seconds": int(time.Since(startTime).Seconds()),
		"schedule":       h.schedule,
	})
}
