package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/user/pulse-ops/internal/domain"
)

// ManageFollowersInput is one bulk follower change for a single metric.
// Users are addressed by email; both lists may be supplied in one call.
type ManageFollowersInput struct {
	Tableau      domain.TableauCredential `json:"tableau"`
	MetricID     string                   `json:"metric_id"`
	AddEmails    []string                 `json:"add_emails,omitempty"`
	RemoveEmails []string                 `json:"remove_emails,omitempty"`
}

// ManageFollowersResult reports what changed and which items were skipped or
// failed. Per-email problems are soft; they never abort the rest of the call.
type ManageFollowersResult struct {
	MetricID         string   `json:"metric_id"`
	Added            int      `json:"added"`
	Removed          int      `json:"removed"`
	AlreadyFollowing []string `json:"already_following,omitempty"`
	NotFollowing     []string `json:"not_following,omitempty"`
	UnresolvedEmails []string `json:"unresolved_emails,omitempty"`
	RemoveFailures   []string `json:"remove_failures,omitempty"`
}

// ManageFollowersUseCase adds and removes followers of one Pulse metric in
// bulk.
type ManageFollowersUseCase struct {
	tableau domain.TableauRepository
	pulse   domain.PulseRepository
	logger  *slog.Logger
}

// NewManageFollowersUseCase creates a new follower management use case.
func NewManageFollowersUseCase(tableau domain.TableauRepository, pulse domain.PulseRepository, logger *slog.Logger) *ManageFollowersUseCase {
	return &ManageFollowersUseCase{
		tableau: tableau,
		pulse:   pulse,
		logger:  logger.With("component", "manage_followers"),
	}
}

// Execute resolves the emails against the site directory and the metric's
// current follower list, then adds the missing followers in one batched
// request and removes the listed ones individually. Emails that do not
// resolve, adds that already follow, removes that do not follow, and
// individual delete errors are all reported in the result instead of failing
// the call.
func (uc *ManageFollowersUseCase) Execute(ctx context.Context, in ManageFollowersInput) (*ManageFollowersResult, error) {
	if in.MetricID == "" {
		return nil, fmt.Errorf("metric_id is required")
	}
	if len(in.AddEmails) == 0 && len(in.RemoveEmails) == 0 {
		return nil, fmt.Errorf("add_emails or remove_emails is required")
	}

	session, err := uc.tableau.SignIn(ctx, in.Tableau)
	if err != nil {
		return nil, domain.NewPipelineError(domain.StageAuthentication, err)
	}

	users, err := uc.tableau.ListUsers(ctx, session)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch site user directory: %w", err)
	}
	idByEmail := userIDsByEmail(users)

	subs, err := uc.pulse.ListSubscriptions(ctx, session, in.MetricID)
	if err != nil {
		return nil, fmt.Errorf("failed to list followers of metric %s: %w", in.MetricID, err)
	}
	subByUser := make(map[string]string, len(subs))
	for _, s := range subs {
		subByUser[s.UserID] = s.ID
	}

	result := &ManageFollowersResult{MetricID: in.MetricID}

	var toAdd []string
	for _, email := range in.AddEmails {
		userID, ok := idByEmail[strings.ToLower(email)]
		if !ok {
			result.UnresolvedEmails = append(result.UnresolvedEmails, email)
			continue
		}
		if _, following := subByUser[userID]; following {
			result.AlreadyFollowing = append(result.AlreadyFollowing, email)
			continue
		}
		toAdd = append(toAdd, userID)
	}
	if len(toAdd) > 0 {
		if err := uc.pulse.BatchCreateSubscriptions(ctx, session, in.MetricID, toAdd); err != nil {
			return nil, fmt.Errorf("failed to add followers to metric %s: %w", in.MetricID, err)
		}
		result.Added = len(toAdd)
	}

	for _, email := range in.RemoveEmails {
		userID, ok := idByEmail[strings.ToLower(email)]
		if !ok {
			result.UnresolvedEmails = append(result.UnresolvedEmails, email)
			continue
		}
		subID, following := subByUser[userID]
		if !following {
			result.NotFollowing = append(result.NotFollowing, email)
			continue
		}
		if err := uc.pulse.DeleteSubscription(ctx, session, subID); err != nil {
			uc.logger.Warn("failed to remove follower",
				"metric_id", in.MetricID, "email", email, "error", err)
			result.RemoveFailures = append(result.RemoveFailures, email)
			continue
		}
		result.Removed++
	}

	uc.logger.Info("follower change applied",
		"metric_id", in.MetricID,
		"added", result.Added,
		"removed", result.Removed,
		"unresolved", len(result.UnresolvedEmails),
		"remove_failures", len(result.RemoveFailures))
	return result, nil
}

// userIDsByEmail indexes the site directory by lowercased email. Users
// without an email address are not addressable here.
func userIDsByEmail(users []domain.User) map[string]string {
	byEmail := make(map[string]string, len(users))
	for _, u := range users {
		if u.Email != "" {
			byEmail[strings.ToLower(u.Email)] = u.ID
		}
	}
	return byEmail
}
