package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/pingpong-vault/service/internal/handlers"
	"github.com/pingpong-vault/service/internal/health"
	"github.com/pingpong-vault/service/internal/metrics"
	"github.com/pingpong-vault/service/internal/middleware"
)

// setupAPIRoutes configures the API server routes.
func setupAPIRoutes(r *chi.Mux, h *handlers.VaultHandlers) {
	// Mutating operations
	r.Post("/ping", h.HandlePing)
	r.Post("/pong", h.HandlePong)
	r.Post("/extend", h.HandleExtend)

	// Owner-only administration
	r.Post("/admin/retune", h.HandleRetune)
	r.Post("/admin/pause", h.HandlePause)
	r.Post("/admin/resume", h.HandleResume)

	// Views
	r.Get("/locks/{party}", h.HandleGetLock)
	r.Get("/locks/{party}/eligible-time", h.HandleEligibleTime)
	r.Get("/locks/{party}/remaining", h.HandleRemaining)
	r.Get("/settings", h.HandleSettings)
	r.Get("/status", h.HandleStatus)
}

// setupProbeRoutes configures the probe server routes.
func setupProbeRoutes(r *chi.Mux, hm *health.Manager, m *metrics.Metrics, logger *zap.Logger) {
	r.With(middleware.HealthCheckMetricsMiddleware(m, "startup")).
		Get("/healthz/startup", handleStartup(hm, logger))
	r.With(middleware.HealthCheckMetricsMiddleware(m, "live")).
		Get("/healthz/live", handleLiveness(hm, logger))
	r.With(middleware.HealthCheckMetricsMiddleware(m, "ready")).
		Get("/healthz/ready", handleReadiness(hm, logger))
}

// handleStartup reports whether all registered checks have passed.
func handleStartup(hm *health.Manager, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := hm.GetStartupStatus(r.Context())

		status := http.StatusOK
		if resp.Status != health.StatusOK {
			status = http.StatusServiceUnavailable
		}

		respondProbe(w, logger, status, resp)
	}
}

// handleLiveness confirms the process is serving requests.
func handleLiveness(hm *health.Manager, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondProbe(w, logger, http.StatusOK, hm.GetLivenessStatus())
	}
}

// handleReadiness reports whether the service should receive traffic.
func handleReadiness(hm *health.Manager, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := hm.GetReadinessStatus(r.Context())

		status := http.StatusOK
		if !resp.Ready {
			status = http.StatusServiceUnavailable
		}

		respondProbe(w, logger, status, resp)
	}
}

func respondProbe(w http.ResponseWriter, logger *zap.Logger, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("Failed to encode probe response", zap.Error(err))
	}
}
