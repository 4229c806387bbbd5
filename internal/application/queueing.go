package application

import (
	"context"
	"fmt"
	"time"

	"habita/internal/domain"
	"habita/internal/notify"
	"habita/internal/waitlist"
	id "habita/pkg/domain"
	dErrors "habita/pkg/domain-errors"
	"habita/pkg/requestcontext"
)

// Enqueue places an approved application on its program's waiting list. The
// eligibility verdict is re-checked here: an application that somehow reached
// APPROVED without passing is refused, never ranked.
func (s *Service) Enqueue(ctx context.Context, appID id.ApplicationID) (*domain.Application, error) {
	var programID id.ProgramID
	app, err := s.apply(ctx, appID, TriggerEnqueue, func(app *domain.Application, _ *domain.Program) (mutation, error) {
		programID = app.ProgramID
		if app.Evaluation.Eligibility == nil || !app.Evaluation.Eligibility.Meets {
			return mutation{}, dErrors.New(dErrors.CodeIneligibleApplication,
				"application did not pass eligibility")
		}
		entry, err := s.list.Enqueue(app.ProgramID, waitlist.Entry{
			ApplicationID: app.ID,
			Score:         app.Evaluation.Score,
			SubmittedAt:   app.SubmittedAt,
			EnqueuedAt:    requestcontext.Now(ctx),
		})
		if err != nil {
			return mutation{}, err
		}
		app.Status = domain.StatusWaitingList
		app.WaitingList = &domain.WaitingListEntry{
			Position:   entry.Position,
			EnqueuedAt: entry.EnqueuedAt,
		}
		return mutation{
			event:  domain.EventEnqueued,
			detail: fmt.Sprintf("position %d, score %d", entry.Position, entry.Score),
			notice: notify.EventWaitlisted,
		}, nil
	})
	if err != nil && dErrors.HasCode(err, dErrors.CodeStaleState) {
		// The snapshot write lost the race after the queue insert; undo it.
		_ = s.list.Remove(programID, appID)
	}
	return app, err
}

// ApplyOffer records a tentative unit assignment and starts the acceptance
// clock. An application already holding an outstanding offer is refused with
// a distinct code so callers can tell the double-offer apart from ordinary
// state mismatches.
func (s *Service) ApplyOffer(ctx context.Context, appID id.ApplicationID, unitID id.UnitID) (*domain.Application, error) {
	current, err := s.apps.Get(ctx, appID)
	if err != nil {
		return nil, err
	}
	if current.Status == domain.StatusAllocated {
		err := dErrors.Newf(dErrors.CodeAlreadyAllocated,
			"application %s already holds an outstanding offer", appID)
		s.recordDenied(ctx, appID, TriggerOfferUnit, err)
		return nil, err
	}
	return s.apply(ctx, appID, TriggerOfferUnit, func(app *domain.Application, program *domain.Program) (mutation, error) {
		// The coordinator normally dequeues first; removal here covers direct
		// offers to a queued application.
		_ = s.list.Remove(app.ProgramID, app.ID)
		now := requestcontext.Now(ctx)
		app.Allocation = &domain.Allocation{
			UnitID:             unitID,
			OfferedAt:          now,
			AcceptanceDeadline: now.AddDate(0, 0, program.AcceptancePeriodDays),
		}
		app.WaitingList = nil
		app.Status = domain.StatusAllocated
		return mutation{
			event:  domain.EventUnitOffered,
			detail: fmt.Sprintf("unit %s, deadline %s", unitID, app.Allocation.AcceptanceDeadline.Format(time.RFC3339)),
			notice: notify.EventUnitOffered,
		}, nil
	})
}

// AcceptOffer records the applicant's acceptance of the outstanding offer.
func (s *Service) AcceptOffer(ctx context.Context, appID id.ApplicationID) (*domain.Application, error) {
	return s.apply(ctx, appID, TriggerAcceptOffer, func(app *domain.Application, _ *domain.Program) (mutation, error) {
		if err := guardOutstandingOffer(app, TriggerAcceptOffer); err != nil {
			return mutation{}, err
		}
		if requestcontext.Now(ctx).After(app.Allocation.AcceptanceDeadline) {
			return mutation{}, invalidTransition(app.Status, TriggerAcceptOffer,
				"acceptance deadline passed")
		}
		accepted := true
		app.Allocation.Accepted = &accepted
		return mutation{event: domain.EventOfferAccepted, detail: "unit " + app.Allocation.UnitID.String()}, nil
	})
}

// SignContract finalizes an accepted offer. From here on the application is
// immutable apart from reads.
func (s *Service) SignContract(ctx context.Context, appID id.ApplicationID) (*domain.Application, error) {
	return s.apply(ctx, appID, TriggerSignContract, func(app *domain.Application, _ *domain.Program) (mutation, error) {
		if app.Allocation == nil || app.Allocation.Accepted == nil || !*app.Allocation.Accepted {
			return mutation{}, invalidTransition(app.Status, TriggerSignContract, "offer not accepted")
		}
		if app.Allocation.ContractSignedAt != nil {
			return mutation{}, invalidTransition(app.Status, TriggerSignContract, "contract already signed")
		}
		signed := requestcontext.Now(ctx)
		app.Allocation.ContractSignedAt = &signed
		return mutation{event: domain.EventContractSigned, detail: "unit " + app.Allocation.UnitID.String()}, nil
	})
}

// RejectOffer declines the outstanding offer and restores the application to
// its waiting list. The original score and submission date re-enter the
// queue, so the applicant's rank is exactly what it was before the offer.
func (s *Service) RejectOffer(ctx context.Context, appID id.ApplicationID) (*domain.Application, error) {
	var programID id.ProgramID
	app, err := s.apply(ctx, appID, TriggerRejectOffer, func(app *domain.Application, _ *domain.Program) (mutation, error) {
		programID = app.ProgramID
		if err := guardOutstandingOffer(app, TriggerRejectOffer); err != nil {
			return mutation{}, err
		}
		unitID := app.Allocation.UnitID
		if err := s.returnOfferToQueue(ctx, app); err != nil {
			return mutation{}, err
		}
		return mutation{
			event:  domain.EventOfferRejected,
			detail: fmt.Sprintf("unit %s, restored at position %d", unitID, app.WaitingList.Position),
		}, nil
	})
	if err != nil && dErrors.HasCode(err, dErrors.CodeStaleState) {
		_ = s.list.Remove(programID, appID)
	}
	return app, err
}

// ExpireOffer is the idempotent deadline entry point driven by an external
// scheduler. Expiring an application with no outstanding unanswered offer is
// a no-op, so retries and duplicate ticks are harmless.
func (s *Service) ExpireOffer(ctx context.Context, appID id.ApplicationID) (*domain.Application, error) {
	current, err := s.apps.Get(ctx, appID)
	if err != nil {
		return nil, err
	}
	if current.Status != domain.StatusAllocated || current.Allocation == nil || current.Allocation.Accepted != nil {
		return current, nil
	}
	var programID id.ProgramID
	app, err := s.apply(ctx, appID, TriggerExpireOffer, func(app *domain.Application, _ *domain.Program) (mutation, error) {
		programID = app.ProgramID
		if err := guardOutstandingOffer(app, TriggerExpireOffer); err != nil {
			return mutation{}, err
		}
		if requestcontext.Now(ctx).Before(app.Allocation.AcceptanceDeadline) {
			return mutation{}, invalidTransition(app.Status, TriggerExpireOffer,
				"acceptance deadline not reached")
		}
		unitID := app.Allocation.UnitID
		if err := s.returnOfferToQueue(ctx, app); err != nil {
			return mutation{}, err
		}
		return mutation{
			event:  domain.EventOfferExpired,
			detail: fmt.Sprintf("unit %s, restored at position %d", unitID, app.WaitingList.Position),
			notice: notify.EventOfferExpired,
		}, nil
	})
	if err != nil && dErrors.HasCode(err, dErrors.CodeStaleState) {
		_ = s.list.Remove(programID, appID)
	}
	return app, err
}

// Cancel withdraws the application at the applicant's request. Blocked once
// the contract is signed; otherwise legal from any live state. A queued
// application leaves the waiting list, an allocated one releases its unit.
func (s *Service) Cancel(ctx context.Context, appID id.ApplicationID, reason string) (*domain.Application, error) {
	var releasedUnit *id.UnitID
	app, err := s.apply(ctx, appID, TriggerCancel, func(app *domain.Application, _ *domain.Program) (mutation, error) {
		if app.ContractSigned() {
			return mutation{}, invalidTransition(app.Status, TriggerCancel, "contract already signed")
		}
		if app.Status == domain.StatusWaitingList {
			_ = s.list.Remove(app.ProgramID, app.ID)
			app.WaitingList = nil
		}
		if app.Allocation != nil {
			unitID := app.Allocation.UnitID
			releasedUnit = &unitID
			declined := false
			app.Allocation.Accepted = &declined
			app.OfferHistory = append(app.OfferHistory, *app.Allocation)
			app.Allocation = nil
		}
		app.Status = domain.StatusCancelled
		app.CancelReason = reason
		return mutation{event: domain.EventCancelled, detail: reason, notice: notify.EventCancelled}, nil
	})
	if err != nil {
		return nil, err
	}
	if releasedUnit != nil && s.releaser != nil {
		if releaseErr := s.releaser.Release(ctx, *releasedUnit); releaseErr != nil {
			s.logger.WarnContext(ctx, "unit release after cancellation failed",
				"application_id", appID.String(),
				"unit_id", releasedUnit.String(),
				"error", releaseErr,
			)
		}
	}
	return app, nil
}

// returnOfferToQueue moves the outstanding allocation into the offer history
// and re-enqueues the application with its frozen score and submission date.
func (s *Service) returnOfferToQueue(ctx context.Context, app *domain.Application) error {
	declined := false
	closed := *app.Allocation
	closed.Accepted = &declined
	app.OfferHistory = append(app.OfferHistory, closed)
	app.Allocation = nil

	entry, err := s.list.Enqueue(app.ProgramID, waitlist.Entry{
		ApplicationID: app.ID,
		Score:         app.Evaluation.Score,
		SubmittedAt:   app.SubmittedAt,
		EnqueuedAt:    requestcontext.Now(ctx),
	})
	if err != nil {
		return err
	}
	app.Status = domain.StatusWaitingList
	app.WaitingList = &domain.WaitingListEntry{
		Position:   entry.Position,
		EnqueuedAt: entry.EnqueuedAt,
	}
	return nil
}

// guardOutstandingOffer checks there is an unanswered offer to act on.
func guardOutstandingOffer(app *domain.Application, trigger Trigger) error {
	if app.Allocation == nil {
		return invalidTransition(app.Status, trigger, "no outstanding offer")
	}
	if app.Allocation.Accepted != nil {
		return invalidTransition(app.Status, trigger, "offer already answered")
	}
	return nil
}
