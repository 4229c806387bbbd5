package application

import (
	"context"
	"fmt"
	"strings"

	"habita/internal/domain"
	"habita/internal/notify"
	id "habita/pkg/domain"
	dErrors "habita/pkg/domain-errors"
	"habita/pkg/requestcontext"
)

// FileAppeal reopens a rejected application for review. Exactly one appeal is
// allowed per application and only inside the program's appeal window,
// counted from the rejection date.
func (s *Service) FileAppeal(ctx context.Context, appID id.ApplicationID, reasons string, documents []string) (*domain.Application, error) {
	return s.apply(ctx, appID, TriggerFileAppeal, func(app *domain.Application, program *domain.Program) (mutation, error) {
		if strings.TrimSpace(reasons) == "" {
			return mutation{}, dErrors.New(dErrors.CodeInvalidInput, "appeal reasons are required")
		}
		if app.Appeal != nil {
			return mutation{}, invalidTransition(app.Status, TriggerFileAppeal,
				"an appeal was already filed")
		}
		now := requestcontext.Now(ctx)
		deadline := program.AppealDeadline(app.RejectedAt)
		if now.After(deadline) {
			return mutation{}, dErrors.Newf(dErrors.CodeAppealWindowExpired,
				"appeal window of %d days closed on %s", program.AppealPeriodDays, deadline.Format("2006-01-02"))
		}
		app.Appeal = &domain.Appeal{
			FiledAt:    now,
			Reasons:    reasons,
			Documents:  documents,
			RejectedAt: app.RejectedAt,
			Status:     domain.AppealPending,
		}
		app.Status = domain.StatusUnderReview
		return mutation{event: domain.EventAppealFiled, detail: reasons, notice: notify.EventAppealFiled}, nil
	})
}

// DecideAppeal resolves a pending appeal. Approval re-runs the decision path
// over the current snapshot; denial makes the rejection permanent, and no
// further appeal can be filed.
func (s *Service) DecideAppeal(ctx context.Context, appID id.ApplicationID, approved bool, justification string) (*domain.Application, error) {
	return s.apply(ctx, appID, TriggerDecideAppeal, func(app *domain.Application, program *domain.Program) (mutation, error) {
		if app.Appeal == nil || app.Appeal.Status != domain.AppealPending {
			return mutation{}, invalidTransition(app.Status, TriggerDecideAppeal, "no pending appeal")
		}
		now := requestcontext.Now(ctx)
		app.Appeal.DecidedAt = &now
		app.Appeal.Justification = justification

		if !approved {
			app.Appeal.Status = domain.AppealDenied
			app.Status = domain.StatusRejected
			return mutation{
				event:  domain.EventAppealDenied,
				detail: justification,
				notice: notify.EventAppealDecided,
			}, nil
		}

		app.Appeal.Status = domain.AppealApproved
		s.decideOutcome(ctx, app, program)
		return mutation{
			event:  domain.EventAppealApproved,
			detail: fmt.Sprintf("%s; outcome %s", justification, app.Status),
			notice: notify.EventAppealDecided,
		}, nil
	})
}
