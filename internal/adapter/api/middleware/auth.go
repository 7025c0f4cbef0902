package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/user/pulse-ops/internal/domain"
)

const APIKeyHeader = "X-API-Key"

// apiKey extracts the operator key from the request. The canonical carrier is
// the X-API-Key header; a Bearer token is accepted for clients that only
// speak Authorization.
func apiKey(r *http.Request) string {
	if key := r.Header.Get(APIKeyHeader); key != "" {
		return key
	}
	auth := r.Header.Get("Authorization")
	if after, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return after
	}
	return ""
}

// Auth is a middleware factory that validates the operator API key on every
// request. The repository decides what counts as valid, including whether a
// missing key is acceptable, so a deployment without a configured key passes
// key-less requests through.
func Auth(repo domain.APIKeyRepository, logger *slog.Logger) func(http.Handler) http.Handler {
	logger = logger.With("component", "auth")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := apiKey(r)
			isValid, err := repo.IsValid(r.Context(), key)
			if err != nil {
				logger.Error("failed to validate API key", "error", err)
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}
			if !isValid {
				if key == "" {
					logger.Warn("API key missing from request", "remote_addr", r.RemoteAddr)
					http.Error(w, "Unauthorized: API key required", http.StatusUnauthorized)
					return
				}
				logger.Warn("invalid API key provided", "remote_addr", r.RemoteAddr)
				http.Error(w, "Unauthorized: Invalid API key", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
