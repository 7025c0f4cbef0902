package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/user/pulse-ops/internal/domain"
	"github.com/user/pulse-ops/internal/usecase"
)

// FollowerManager applies bulk follower changes to one metric.
type FollowerManager interface {
	Execute(ctx context.Context, in usecase.ManageFollowersInput) (*usecase.ManageFollowersResult, error)
}

// CertificationAuditor surveys and optionally revokes definition
// certifications.
type CertificationAuditor interface {
	Execute(ctx context.Context, in usecase.AuditCertificationsInput) (*usecase.AuditCertificationsResult, error)
}

// PreferenceUpdater applies notification preference changes.
type PreferenceUpdater interface {
	Execute(ctx context.Context, in usecase.UpdatePreferencesInput) (*usecase.UpdatePreferencesResult, error)
}

// PulseHandler handles HTTP requests for the Pulse management operations.
type PulseHandler struct {
	followers FollowerManager
	certs     CertificationAuditor
	prefs     PreferenceUpdater
	logger    *slog.Logger
}

// NewPulseHandler creates a new PulseHandler.
func NewPulseHandler(followers FollowerManager, certs CertificationAuditor, prefs PreferenceUpdater, logger *slog.Logger) *PulseHandler {
	return &PulseHandler{
		followers: followers,
		certs:     certs,
		prefs:     prefs,
		logger:    logger,
	}
}

// ManageFollowers adds or removes followers of a metric in bulk.
func (h *PulseHandler) ManageFollowers(w http.ResponseWriter, r *http.Request) {
	var in usecase.ManageFollowersInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	result, err := h.followers.Execute(r.Context(), in)
	if err != nil {
		h.writeError(w, "follower change failed", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// AuditCertifications lists certified definitions, optionally revoking.
func (h *PulseHandler) AuditCertifications(w http.ResponseWriter, r *http.Request) {
	var in usecase.AuditCertificationsInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	result, err := h.certs.Execute(r.Context(), in)
	if err != nil {
		h.writeError(w, "certification audit failed", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// UpdatePreferences applies a notification preference change.
func (h *PulseHandler) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	var in usecase.UpdatePreferencesInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	result, err := h.prefs.Execute(r.Context(), in)
	if err != nil {
		h.writeError(w, "preference update failed", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// writeError maps authentication failures to 401 and everything else to 502,
// since these operations proxy an upstream API.
func (h *PulseHandler) writeError(w http.ResponseWriter, msg string, err error) {
	h.logger.Error(msg, "error", err)

	var perr *domain.PipelineError
	if errors.As(err, &perr) && perr.Stage == domain.StageAuthentication {
		http.Error(w, "upstream authentication failed", http.StatusUnauthorized)
		return
	}
	http.Error(w, msg, http.StatusBadGateway)
}
