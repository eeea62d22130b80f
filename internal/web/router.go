package web

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/makt28/tgwatch/internal/config"
)

// Options wires the router to the rest of the process.
type Options struct {
	States   StateLoader
	Gatherer prometheus.Gatherer
	Auth     config.AuthConfig
	Version  string
	Schedule string
}

// NewRouter sets up all routes and returns the http.Handler.
func NewRouter(opts Options, stopCh <-chan struct{}) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	limiter := NewLoginRateLimiter(opts.Auth.MaxLoginAttempts, opts.Auth.LockoutDuration, stopCh)

	// Public routes
	r.Get("/healthz", NewHealthHandler(opts.Version, opts.Schedule).ServeHTTP)

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(BasicAuth(opts.Auth, limiter))

		r.Get("/status", NewStatusHandler(opts.States).ServeHTTP)
		if opts.Gatherer != nil {
			r.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
		}
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("failed to write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
