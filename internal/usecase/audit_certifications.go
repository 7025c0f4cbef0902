package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/user/pulse-ops/internal/domain"
)

// AuditCertificationsInput requests a certification audit of all metric
// definitions on the site. When Revoke is set, every certified definition has
// its certification cleared.
type AuditCertificationsInput struct {
	Tableau domain.TableauCredential `json:"tableau"`
	Revoke  bool                     `json:"revoke"`
}

// AuditCertificationsResult lists what was found and, optionally, revoked.
type AuditCertificationsResult struct {
	TotalDefinitions int                 `json:"total_definitions"`
	Certified        []domain.Definition `json:"certified"`
	Revoked          []string            `json:"revoked,omitempty"`
	RevokeFailures   []string            `json:"revoke_failures,omitempty"`
}

// AuditCertificationsUseCase surveys certified Pulse metric definitions and
// optionally strips their certification.
type AuditCertificationsUseCase struct {
	tableau domain.TableauRepository
	pulse   domain.PulseRepository
	logger  *slog.Logger
}

// NewAuditCertificationsUseCase creates a new certification audit use case.
func NewAuditCertificationsUseCase(tableau domain.TableauRepository, pulse domain.PulseRepository, logger *slog.Logger) *AuditCertificationsUseCase {
	return &AuditCertificationsUseCase{
		tableau: tableau,
		pulse:   pulse,
		logger:  logger.With("component", "audit_certifications"),
	}
}

// Execute runs the audit. Individual revocation failures do not abort the
// sweep; they are collected and returned.
func (uc *AuditCertificationsUseCase) Execute(ctx context.Context, in AuditCertificationsInput) (*AuditCertificationsResult, error) {
	session, err := uc.tableau.SignIn(ctx, in.Tableau)
	if err != nil {
		return nil, domain.NewPipelineError(domain.StageAuthentication, err)
	}

	defs, err := uc.pulse.ListDefinitions(ctx, session)
	if err != nil {
		return nil, fmt.Errorf("failed to list metric definitions: %w", err)
	}

	result := &AuditCertificationsResult{TotalDefinitions: len(defs)}
	for _, d := range defs {
		if !d.Certified {
			continue
		}
		result.Certified = append(result.Certified, d)

		if !in.Revoke {
			continue
		}
		if err := uc.pulse.RemoveCertification(ctx, session, d.ID); err != nil {
			uc.logger.Warn("failed to revoke certification",
				"definition_id", d.ID, "error", err)
			result.RevokeFailures = append(result.RevokeFailures, d.ID)
			continue
		}
		result.Revoked = append(result.Revoked, d.ID)
	}

	uc.logger.Info("certification audit complete",
		"definitions", result.TotalDefinitions,
		"certified", len(result.Certified),
		"revoked", len(result.Revoked),
		"failures", len(result.RevokeFailures))
	return result, nil
}
