// Package application owns the authoritative status of every application and
// enforces the legal lifecycle transitions. No other code path mutates
// status.
package application

import (
	"context"
	"log/slog"

	appmetrics "habita/internal/application/metrics"
	"habita/internal/domain"
	"habita/internal/notify"
	"habita/internal/storage"
	"habita/internal/timeline"
	"habita/internal/waitlist"
	id "habita/pkg/domain"
	dErrors "habita/pkg/domain-errors"
	"habita/pkg/requestcontext"
)

// DocumentVerifier is the external document-store capability. The files
// themselves never enter this core; only their verification state does.
type DocumentVerifier interface {
	IsVerified(ctx context.Context, appID id.ApplicationID, docType domain.DocumentType) (bool, error)
}

// SubmissionVerifier counts every submitted document as verified. It backs
// deployments where the clerk recording a document is the verification act
// and no external document store exists.
type SubmissionVerifier struct{}

func (SubmissionVerifier) IsVerified(context.Context, id.ApplicationID, domain.DocumentType) (bool, error) {
	return true, nil
}

// UnitReleaser returns a reserved unit to the external pool. Cancelling an
// application that holds an outstanding offer must free its unit.
type UnitReleaser interface {
	Release(ctx context.Context, unitID id.UnitID) error
}

// Service is the application state machine. Every operation loads the
// snapshot, checks the transition table and operation guards, applies the
// mutation, and writes back with a compare-and-swap. Failed attempts append
// a diagnostic timeline entry; nothing no-ops silently.
type Service struct {
	apps     storage.ApplicationStore
	programs storage.ProgramStore
	history  *timeline.Service
	list     *waitlist.Manager
	verifier DocumentVerifier

	releaser UnitReleaser
	notifier notify.Sink
	logger   *slog.Logger
	metrics  *appmetrics.Metrics
}

// Option configures the Service.
type Option func(*Service)

// WithNotifier sets the notification sink.
func WithNotifier(sink notify.Sink) Option {
	return func(s *Service) { s.notifier = sink }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *appmetrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithUnitReleaser sets the unit-pool release capability used by Cancel.
func WithUnitReleaser(releaser UnitReleaser) Option {
	return func(s *Service) { s.releaser = releaser }
}

func NewService(
	apps storage.ApplicationStore,
	programs storage.ProgramStore,
	history *timeline.Service,
	list *waitlist.Manager,
	verifier DocumentVerifier,
	opts ...Option,
) *Service {
	s := &Service{
		apps:     apps,
		programs: programs,
		history:  history,
		list:     list,
		verifier: verifier,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Waitlist exposes the per-program queue to coordinators and handlers.
func (s *Service) Waitlist() *waitlist.Manager { return s.list }

// Get returns the current snapshot.
func (s *Service) Get(ctx context.Context, appID id.ApplicationID) (*domain.Application, error) {
	return s.apps.Get(ctx, appID)
}

// History returns the application timeline in append order.
func (s *Service) History(ctx context.Context, appID id.ApplicationID) ([]domain.TimelineEntry, error) {
	return s.history.List(ctx, appID)
}

// CreateDraft registers a new application in DRAFT.
func (s *Service) CreateDraft(ctx context.Context, programID id.ProgramID, applicant domain.Applicant, family []domain.FamilyMember) (*domain.Application, error) {
	if _, err := s.programs.Get(ctx, programID); err != nil {
		return nil, dErrors.Wrap(dErrors.CodeNotFound, "program not found", err)
	}
	now := requestcontext.Now(ctx)
	app := &domain.Application{
		ID:        id.NewApplicationID(),
		ProgramID: programID,
		Applicant: applicant,
		Family:    family,
		Status:    domain.StatusDraft,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.apps.Create(ctx, app); err != nil {
		return nil, err
	}
	s.emit(ctx, app.ID, domain.EventCreated, "")
	return app, nil
}

// mutation is what an operation wants recorded after a successful write.
type mutation struct {
	event  domain.TimelineEvent
	detail string
	notice notify.Event
}

// apply runs one transition attempt end to end: load, source-state guard,
// operation guards + mutation, optimistic write, timeline, metrics,
// notification. The returned snapshot is the post-transition state.
func (s *Service) apply(ctx context.Context, appID id.ApplicationID, trigger Trigger, mutate func(app *domain.Application, program *domain.Program) (mutation, error)) (*domain.Application, error) {
	app, err := s.apps.Get(ctx, appID)
	if err != nil {
		return nil, err
	}
	program, err := s.programs.Get(ctx, app.ProgramID)
	if err != nil {
		return nil, err
	}

	if err := guardSourceState(app, trigger); err != nil {
		s.recordDenied(ctx, app.ID, trigger, err)
		return nil, err
	}

	result, err := mutate(app, program)
	if err != nil {
		s.recordDenied(ctx, app.ID, trigger, err)
		return nil, err
	}

	expected := app.Version
	app.Version++
	app.UpdatedAt = requestcontext.Now(ctx)
	if err := s.apps.Update(ctx, app, expected); err != nil {
		s.recordDenied(ctx, app.ID, trigger, err)
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.IncTransition(string(trigger), string(app.Status))
	}
	s.emit(ctx, app.ID, result.event, result.detail)
	if result.notice != "" {
		s.notify(ctx, app.ID, result.notice)
	}
	return app, nil
}

// recordDenied appends the diagnostic timeline entry for a refused attempt,
// distinguishing it from successful transitions.
func (s *Service) recordDenied(ctx context.Context, appID id.ApplicationID, trigger Trigger, cause error) {
	if s.metrics != nil {
		s.metrics.IncGuardFailure(string(trigger), string(dErrors.CodeOf(cause)))
	}
	s.emit(ctx, appID, domain.EventTransitionDenied, string(trigger)+": "+cause.Error())
}

func (s *Service) emit(ctx context.Context, appID id.ApplicationID, event domain.TimelineEvent, detail string) {
	err := s.history.Emit(ctx, domain.TimelineEntry{
		ApplicationID: appID,
		Event:         event,
		Detail:        detail,
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "timeline append failed",
			"application_id", appID.String(),
			"event", string(event),
			"error", err,
		)
	}
}

// notify is fail-open: delivery problems are logged, never surfaced to the
// transition that triggered them.
func (s *Service) notify(ctx context.Context, appID id.ApplicationID, event notify.Event) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, appID, event); err != nil {
		s.logger.WarnContext(ctx, "notification emit failed",
			"application_id", appID.String(),
			"event", string(event),
			"error", err,
		)
	}
}
