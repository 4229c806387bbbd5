// Package appeal handles post-rejection reopening requests: window
// enforcement, the single-appeal rule, and the reassessment outcome.
package appeal

import (
	"context"
	"log/slog"
	"strings"

	"habita/internal/application"
	"habita/internal/domain"
	id "habita/pkg/domain"
	dErrors "habita/pkg/domain-errors"
)

// Request is a citizen's appeal filing.
type Request struct {
	Reasons   string
	Documents []string
}

// Decision is the staff resolution of a pending appeal.
type Decision struct {
	Approved      bool
	Justification string
}

// Processor fronts the appeal operations of the state machine. It validates
// filings before they reach a transition, so malformed requests never burn
// a timeline entry.
type Processor struct {
	service *application.Service
	logger  *slog.Logger
}

func NewProcessor(service *application.Service, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{service: service, logger: logger}
}

// File validates and files an appeal against a rejected application.
func (p *Processor) File(ctx context.Context, appID id.ApplicationID, req Request) (*domain.Application, error) {
	if strings.TrimSpace(req.Reasons) == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "appeal reasons are required")
	}
	for _, doc := range req.Documents {
		if strings.TrimSpace(doc) == "" {
			return nil, dErrors.New(dErrors.CodeInvalidInput, "empty document handle in appeal")
		}
	}
	app, err := p.service.FileAppeal(ctx, appID, req.Reasons, req.Documents)
	if err != nil {
		return nil, err
	}
	p.logger.InfoContext(ctx, "appeal filed",
		"application_id", appID.String(),
		"documents", len(req.Documents),
	)
	return app, nil
}

// Decide resolves a pending appeal.
func (p *Processor) Decide(ctx context.Context, appID id.ApplicationID, decision Decision) (*domain.Application, error) {
	if strings.TrimSpace(decision.Justification) == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "appeal decisions require a justification")
	}
	app, err := p.service.DecideAppeal(ctx, appID, decision.Approved, decision.Justification)
	if err != nil {
		return nil, err
	}
	p.logger.InfoContext(ctx, "appeal decided",
		"application_id", appID.String(),
		"approved", decision.Approved,
		"outcome", string(app.Status),
	)
	return app, nil
}
