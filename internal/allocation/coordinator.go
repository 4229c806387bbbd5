// Package allocation matches approved applications with housing units. It
// owns the offer/accept/reject round and the acceptance-deadline bookkeeping;
// status changes themselves always go through the application state machine.
package allocation

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"habita/internal/application"
	"habita/internal/domain"
	id "habita/pkg/domain"
	dErrors "habita/pkg/domain-errors"
	"habita/pkg/requestcontext"
)

// Coordinator drives the offer round: pick the queue head, reserve a unit,
// move the application to ALLOCATED, and track its deadline.
type Coordinator struct {
	service   *application.Service
	pool      UnitPool
	deadlines DeadlineIndex
	logger    *slog.Logger

	// sweepConcurrency bounds parallel expiries in one sweep.
	sweepConcurrency int
}

// CoordinatorOption configures the Coordinator.
type CoordinatorOption func(*Coordinator)

// WithSweepConcurrency bounds how many due offers one sweep expires at once.
func WithSweepConcurrency(n int) CoordinatorOption {
	return func(c *Coordinator) {
		if n > 0 {
			c.sweepConcurrency = n
		}
	}
}

func NewCoordinator(service *application.Service, pool UnitPool, deadlines DeadlineIndex, logger *slog.Logger, opts ...CoordinatorOption) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Coordinator{
		service:          service,
		pool:             pool,
		deadlines:        deadlines,
		logger:           logger,
		sweepConcurrency: 4,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// OfferNext offers any available unit to the top-ranked application of the
// program's waiting list. A failed transition puts the unit straight back
// into the pool.
func (c *Coordinator) OfferNext(ctx context.Context, programID id.ProgramID) (*domain.Application, error) {
	head, err := c.queueHead(programID)
	if err != nil {
		return nil, err
	}
	unitID, err := c.pool.Reserve(ctx)
	if err != nil {
		return nil, err
	}
	return c.offerTo(ctx, head, unitID)
}

// Offer offers one specific unit to the top-ranked application.
func (c *Coordinator) Offer(ctx context.Context, programID id.ProgramID, unitID id.UnitID) (*domain.Application, error) {
	head, err := c.queueHead(programID)
	if err != nil {
		return nil, err
	}
	if err := c.pool.ReserveUnit(ctx, unitID); err != nil {
		return nil, err
	}
	return c.offerTo(ctx, head, unitID)
}

func (c *Coordinator) queueHead(programID id.ProgramID) (id.ApplicationID, error) {
	entries := c.service.Waitlist().Snapshot(programID)
	if len(entries) == 0 {
		return id.ApplicationID{}, dErrors.New(dErrors.CodeNotFound, "waiting list is empty")
	}
	return entries[0].ApplicationID, nil
}

func (c *Coordinator) offerTo(ctx context.Context, appID id.ApplicationID, unitID id.UnitID) (*domain.Application, error) {
	app, err := c.service.ApplyOffer(ctx, appID, unitID)
	if err != nil {
		if releaseErr := c.pool.Release(ctx, unitID); releaseErr != nil {
			c.logger.ErrorContext(ctx, "unit release after failed offer",
				"unit_id", unitID.String(), "error", releaseErr)
		}
		return nil, err
	}

	if err := c.deadlines.Track(ctx, app.ID, app.Allocation.AcceptanceDeadline); err != nil {
		// The offer stands; a missed index entry only delays expiry until the
		// next manual sweep.
		c.logger.WarnContext(ctx, "deadline tracking failed",
			"application_id", app.ID.String(), "error", err)
	}
	return app, nil
}

// Accept records the applicant's acceptance and stops the deadline clock.
func (c *Coordinator) Accept(ctx context.Context, appID id.ApplicationID) (*domain.Application, error) {
	app, err := c.service.AcceptOffer(ctx, appID)
	if err != nil {
		return nil, err
	}
	if err := c.deadlines.Forget(ctx, appID); err != nil {
		c.logger.WarnContext(ctx, "deadline forget failed",
			"application_id", appID.String(), "error", err)
	}
	return app, nil
}

// Reject declines the offer: the application returns to its original rank
// and the unit returns to the pool.
func (c *Coordinator) Reject(ctx context.Context, appID id.ApplicationID) (*domain.Application, error) {
	app, err := c.service.RejectOffer(ctx, appID)
	if err != nil {
		return nil, err
	}
	c.closeOffer(ctx, app)
	return app, nil
}

// Expire is the idempotent deadline entry point. Calling it for an
// application with no outstanding unanswered offer is a no-op; retries and
// duplicate scheduler ticks are harmless.
func (c *Coordinator) Expire(ctx context.Context, appID id.ApplicationID) (*domain.Application, error) {
	before, err := c.service.Get(ctx, appID)
	if err != nil {
		return nil, err
	}
	if before.Status != domain.StatusAllocated || before.Allocation == nil || before.Allocation.Accepted != nil {
		// Nothing left to expire; make sure the index agrees.
		if err := c.deadlines.Forget(ctx, appID); err != nil {
			c.logger.WarnContext(ctx, "deadline forget failed",
				"application_id", appID.String(), "error", err)
		}
		return before, nil
	}

	app, err := c.service.ExpireOffer(ctx, appID)
	if err != nil {
		return nil, err
	}
	c.closeOffer(ctx, app)
	return app, nil
}

// SweepDue expires every offer whose deadline has passed, a bounded number at
// a time. Returns how many offers were expired.
func (c *Coordinator) SweepDue(ctx context.Context) (int, error) {
	now := requestcontext.Now(ctx)
	due, err := c.deadlines.Due(ctx, now)
	if err != nil {
		return 0, err
	}

	expired := 0
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.sweepConcurrency)
	results := make(chan struct{}, len(due))
	for _, appID := range due {
		g.Go(func() error {
			app, err := c.Expire(requestcontext.WithTime(gctx, now), appID)
			if err != nil {
				c.logger.ErrorContext(gctx, "offer expiry failed",
					"application_id", appID.String(), "error", err)
				return nil
			}
			if app.Status == domain.StatusWaitingList {
				results <- struct{}{}
			}
			return nil
		})
	}
	_ = g.Wait()
	close(results)
	for range results {
		expired++
	}
	return expired, nil
}

// closeOffer releases the unit of the most recently closed offer and drops
// its deadline entry.
func (c *Coordinator) closeOffer(ctx context.Context, app *domain.Application) {
	if err := c.deadlines.Forget(ctx, app.ID); err != nil {
		c.logger.WarnContext(ctx, "deadline forget failed",
			"application_id", app.ID.String(), "error", err)
	}
	if len(app.OfferHistory) == 0 {
		return
	}
	unitID := app.OfferHistory[len(app.OfferHistory)-1].UnitID
	if err := c.pool.Release(ctx, unitID); err != nil {
		c.logger.ErrorContext(ctx, "unit release failed",
			"application_id", app.ID.String(),
			"unit_id", unitID.String(),
			"error", err)
	}
}
