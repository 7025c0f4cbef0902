package api

import (
	"log/slog"
	"net/http"

	"github.com/user/pulse-ops/internal/adapter/api/handler"
	"github.com/user/pulse-ops/internal/domain"
)

// NewAdminRouter configures the router for the admin listener. It exposes run
// history without API-key auth; the listener is expected to stay private.
// Note: path patterns (e.g. "/{runID}") require Go 1.22+.
func NewAdminRouter(runs domain.RunRepository, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()
	activityHandler := handler.NewActivityHandler(nil, runs, logger)

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	mux.HandleFunc("GET /admin/runs/{runID}", activityHandler.GetRun)

	return mux
}
