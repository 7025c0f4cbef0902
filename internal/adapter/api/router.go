package api

import (
	"log/slog"
	"net/http"

	"github.com/user/pulse-ops/internal/adapter/api/handler"
	"github.com/user/pulse-ops/internal/adapter/api/middleware"
	"github.com/user/pulse-ops/internal/domain"
)

// NewRouter creates and configures the main HTTP router for the operator API.
func NewRouter(
	logger *slog.Logger,
	apiKeyRepo domain.APIKeyRepository,
	activityHandler *handler.ActivityHandler,
	pulseHandler *handler.PulseHandler,
) http.Handler {
	mux := http.NewServeMux()

	authMiddleware := middleware.Auth(apiKeyRepo, logger)

	// Activity pipeline
	mux.Handle("POST /api/v1/activity/report", authMiddleware(http.HandlerFunc(activityHandler.StartRun)))
	mux.Handle("GET /api/v1/runs/{runID}", authMiddleware(http.HandlerFunc(activityHandler.GetRun)))

	// Pulse management
	mux.Handle("POST /api/v1/pulse/followers", authMiddleware(http.HandlerFunc(pulseHandler.ManageFollowers)))
	mux.Handle("POST /api/v1/pulse/certifications/audit", authMiddleware(http.HandlerFunc(pulseHandler.AuditCertifications)))
	mux.Handle("POST /api/v1/pulse/preferences", authMiddleware(http.HandlerFunc(pulseHandler.UpdatePreferences)))

	// Health check
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	return mux
}
