package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/user/pulse-ops/internal/domain"
)

const dateLayout = "2006-01-02"

// ActivityRunner runs one activity pipeline and always yields a result.
type ActivityRunner interface {
	Run(ctx context.Context, req domain.ActivityRequest) *domain.RunResult
}

// activityRequestBody is the HTTP shape of a run request. Dates are
// YYYY-MM-DD and the interval is half-open.
type activityRequestBody struct {
	TCM       domain.TCMCredential     `json:"tcm"`
	SiteLUID  string                   `json:"site_luid"`
	Tableau   domain.TableauCredential `json:"tableau"`
	StartDate string                   `json:"start_date"`
	EndDate   string                   `json:"end_date"`
	EventType string                   `json:"event_type,omitempty"`
}

// ActivityHandler handles HTTP requests for activity report runs.
type ActivityHandler struct {
	runner ActivityRunner
	runs   domain.RunRepository
	logger *slog.Logger
}

// NewActivityHandler creates a new ActivityHandler.
func NewActivityHandler(runner ActivityRunner, runs domain.RunRepository, logger *slog.Logger) *ActivityHandler {
	return &ActivityHandler{
		runner: runner,
		runs:   runs,
		logger: logger,
	}
}

// StartRun validates the request and runs the pipeline synchronously. The
// full run result, including failures, comes back as JSON; only malformed
// requests get a non-200.
func (h *ActivityHandler) StartRun(w http.ResponseWriter, r *http.Request) {
	var body activityRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	req, err := body.toRequest()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result := h.runner.Run(r.Context(), *req)

	writeJSON(w, http.StatusOK, result)
}

// GetRun returns a previously stored run result by ID.
func (h *ActivityHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("runID")

	result, err := h.runs.GetRun(r.Context(), runID)
	if errors.Is(err, domain.ErrRunNotFound) {
		http.Error(w, "run not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("failed to fetch run", "run_id", runID, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (b activityRequestBody) toRequest() (*domain.ActivityRequest, error) {
	if b.TCM.URI == "" || b.TCM.PATToken == "" {
		return nil, fmt.Errorf("tcm.uri and tcm.pat_token are required")
	}
	if b.SiteLUID == "" {
		return nil, fmt.Errorf("site_luid is required")
	}
	if b.Tableau.ServerURL == "" {
		return nil, fmt.Errorf("tableau.server_url is required")
	}

	start, err := time.Parse(dateLayout, b.StartDate)
	if err != nil {
		return nil, fmt.Errorf("start_date must be YYYY-MM-DD")
	}
	end, err := time.Parse(dateLayout, b.EndDate)
	if err != nil {
		return nil, fmt.Errorf("end_date must be YYYY-MM-DD")
	}
	if !start.Before(end) {
		return nil, fmt.Errorf("start_date must be before end_date")
	}

	return &domain.ActivityRequest{
		TCM:       b.TCM,
		SiteLUID:  b.SiteLUID,
		Tableau:   b.Tableau,
		Start:     start,
		End:       end,
		EventType: b.EventType,
	}, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
