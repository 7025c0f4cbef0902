package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/user/pulse-ops/internal/domain"
)

// UpdatePreferencesInput changes Pulse notification preferences for the users
// behind the listed emails. An empty list targets the signed-in user.
type UpdatePreferencesInput struct {
	Tableau     domain.TableauCredential `json:"tableau"`
	Emails      []string                 `json:"emails,omitempty"`
	Preferences domain.PreferenceUpdate  `json:"preferences"`
}

// UpdatePreferencesResult reports how many users were updated and which
// emails could not be resolved or updated. Per-email problems are soft.
type UpdatePreferencesResult struct {
	Updated          int      `json:"updated"`
	UnresolvedEmails []string `json:"unresolved_emails,omitempty"`
	UpdateFailures   []string `json:"update_failures,omitempty"`
}

// UpdatePreferencesUseCase applies Pulse notification preference changes.
type UpdatePreferencesUseCase struct {
	tableau domain.TableauRepository
	pulse   domain.PulseRepository
	logger  *slog.Logger
}

// NewUpdatePreferencesUseCase creates a new preference update use case.
func NewUpdatePreferencesUseCase(tableau domain.TableauRepository, pulse domain.PulseRepository, logger *slog.Logger) *UpdatePreferencesUseCase {
	return &UpdatePreferencesUseCase{
		tableau: tableau,
		pulse:   pulse,
		logger:  logger.With("component", "update_preferences"),
	}
}

// Execute signs in, resolves the emails against the site directory, and
// applies the update to each resolved user in turn. Emails that do not
// resolve and per-user update errors are reported in the result instead of
// failing the call.
func (uc *UpdatePreferencesUseCase) Execute(ctx context.Context, in UpdatePreferencesInput) (*UpdatePreferencesResult, error) {
	if in.Preferences.Empty() {
		return nil, fmt.Errorf("preference update carries no changes")
	}

	session, err := uc.tableau.SignIn(ctx, in.Tableau)
	if err != nil {
		return nil, domain.NewPipelineError(domain.StageAuthentication, err)
	}

	result := &UpdatePreferencesResult{}

	if len(in.Emails) == 0 {
		if err := uc.pulse.UpdatePreferences(ctx, session, "", in.Preferences); err != nil {
			return nil, fmt.Errorf("failed to update preferences: %w", err)
		}
		result.Updated = 1
		uc.logger.Info("preferences updated", "user_id", session.UserID)
		return result, nil
	}

	users, err := uc.tableau.ListUsers(ctx, session)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch site user directory: %w", err)
	}
	idByEmail := userIDsByEmail(users)

	for _, email := range in.Emails {
		userID, ok := idByEmail[strings.ToLower(email)]
		if !ok {
			result.UnresolvedEmails = append(result.UnresolvedEmails, email)
			continue
		}
		if err := uc.pulse.UpdatePreferences(ctx, session, userID, in.Preferences); err != nil {
			uc.logger.Warn("failed to update preferences", "email", email, "error", err)
			result.UpdateFailures = append(result.UpdateFailures, email)
			continue
		}
		result.Updated++
	}

	uc.logger.Info("preferences updated",
		"updated", result.Updated,
		"unresolved", len(result.UnresolvedEmails),
		"update_failures", len(result.UpdateFailures))
	return result, nil
}
