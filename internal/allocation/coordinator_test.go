package allocation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"habita/internal/application"
	"habita/internal/domain"
	"habita/internal/scoring"
	"habita/internal/storage"
	"habita/internal/timeline"
	"habita/internal/waitlist"
	id "habita/pkg/domain"
	dErrors "habita/pkg/domain-errors"
	"habita/pkg/requestcontext"
)

type allVerified struct{}

func (allVerified) IsVerified(context.Context, id.ApplicationID, domain.DocumentType) (bool, error) {
	return true, nil
}

type fixture struct {
	coordinator *Coordinator
	service     *application.Service
	pool        *StaticPool
	program     domain.Program
	base        time.Time
}

func newFixture(t *testing.T, units int) *fixture {
	t.Helper()
	programs := storage.NewInMemoryProgramStore()
	program := domain.Program{
		ID:      id.NewProgramID(),
		Name:    "Residencial Leste",
		Rules:   domain.EligibilityRules{MaxIncome: 2500, MinResidencyYears: 1},
		Weights: scoring.DefaultWeights(),
		RequiredDocuments: []domain.DocumentType{
			domain.DocumentIdentity,
		},
		AppealPeriodDays:     30,
		AcceptancePeriodDays: 15,
	}
	require.NoError(t, programs.Save(context.Background(), &program))

	unitIDs := make([]id.UnitID, units)
	for i := range unitIDs {
		unitIDs[i] = id.NewUnitID()
	}
	pool := NewStaticPool(unitIDs)

	service := application.NewService(
		storage.NewInMemoryApplicationStore(),
		programs,
		timeline.NewService(storage.NewInMemoryTimelineStore()),
		waitlist.NewManager(),
		allVerified{},
		application.WithUnitReleaser(pool),
	)
	return &fixture{
		coordinator: NewCoordinator(service, pool, NewMemoryDeadlineIndex(), nil),
		service:     service,
		pool:        pool,
		program:     program,
		base:        time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC),
	}
}

func (f *fixture) at(t time.Time) context.Context {
	return requestcontext.WithTime(context.Background(), t)
}

// queuedApplication walks a fresh application all the way onto the waiting
// list. Urgency varies the score so tests can control rank.
func (f *fixture) queuedApplication(t *testing.T, urgency domain.UrgencyTier, submittedAt time.Time) *domain.Application {
	t.Helper()
	ctx := f.at(submittedAt)
	app, err := f.service.CreateDraft(ctx, f.program.ID, domain.Applicant{
		ID:               id.NewApplicantID(),
		FullName:         "Josefa Almeida",
		NationalID:       "111.222.333-44",
		Email:            "josefa@example.com",
		Phone:            "+55 31 99887-7665",
		HousingSituation: domain.HousingHomeless,
		Urgency:          urgency,
		YearsInCity:      4,
	}, []domain.FamilyMember{
		{FullName: "Josefa Almeida", Relationship: "self", Age: 52, MonthlyIncome: 1100},
	})
	require.NoError(t, err)

	_, err = f.service.Submit(ctx, app.ID)
	require.NoError(t, err)
	_, err = f.service.BeginReview(ctx, app.ID)
	require.NoError(t, err)
	_, err = f.service.RecordDocument(ctx, app.ID, domain.DocumentIdentity, "doc-id")
	require.NoError(t, err)
	_, err = f.service.ScheduleVisit(ctx, app.ID, submittedAt.AddDate(0, 0, 2), "visitor")
	require.NoError(t, err)
	_, err = f.service.RecordVisit(f.at(submittedAt.AddDate(0, 0, 2)), app.ID, "ok")
	require.NoError(t, err)
	_, err = f.service.RecordAnalysis(ctx, app.ID, true, "sound")
	require.NoError(t, err)
	_, err = f.service.Decide(f.at(submittedAt.AddDate(0, 0, 3)), app.ID)
	require.NoError(t, err)
	queued, err := f.service.Enqueue(f.at(submittedAt.AddDate(0, 0, 3)), app.ID)
	require.NoError(t, err)
	return queued
}

func TestOfferNext(t *testing.T) {
	f := newFixture(t, 1)

	t.Run("empty list", func(t *testing.T) {
		_, err := f.coordinator.OfferNext(f.at(f.base), f.program.ID)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
		assert.Equal(t, 1, f.pool.Available())
	})

	t.Run("offers the top rank", func(t *testing.T) {
		lower := f.queuedApplication(t, domain.UrgencyMedium, f.base)
		higher := f.queuedApplication(t, domain.UrgencyEmergency, f.base.AddDate(0, 0, 1))

		offered, err := f.coordinator.OfferNext(f.at(f.base.AddDate(0, 0, 5)), f.program.ID)
		require.NoError(t, err)
		assert.Equal(t, higher.ID, offered.ID)
		assert.Equal(t, domain.StatusAllocated, offered.Status)
		assert.Equal(t, 0, f.pool.Available())

		current, err := f.service.Get(context.Background(), lower.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusWaitingList, current.Status)
	})

	t.Run("no units left", func(t *testing.T) {
		_, err := f.coordinator.OfferNext(f.at(f.base.AddDate(0, 0, 5)), f.program.ID)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func TestOfferSpecificUnit(t *testing.T) {
	f := newFixture(t, 2)
	app := f.queuedApplication(t, domain.UrgencyHigh, f.base)

	wanted := id.NewUnitID()
	f.pool.Add(wanted)

	offered, err := f.coordinator.Offer(f.at(f.base.AddDate(0, 0, 5)), f.program.ID, wanted)
	require.NoError(t, err)
	assert.Equal(t, app.ID, offered.ID)
	assert.Equal(t, wanted, offered.Allocation.UnitID)

	_, err = f.coordinator.Offer(f.at(f.base.AddDate(0, 0, 5)), f.program.ID, wanted)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

// A rejected offer releases the unit and restores the applicant's exact rank.
func TestRejectRoundTrip(t *testing.T) {
	f := newFixture(t, 1)

	first := f.queuedApplication(t, domain.UrgencyEmergency, f.base)
	f.queuedApplication(t, domain.UrgencyMedium, f.base.AddDate(0, 0, 1))

	posBefore, err := f.service.Waitlist().PositionOf(f.program.ID, first.ID)
	require.NoError(t, err)
	require.Equal(t, 1, posBefore)

	offered, err := f.coordinator.OfferNext(f.at(f.base.AddDate(0, 0, 5)), f.program.ID)
	require.NoError(t, err)
	require.Equal(t, first.ID, offered.ID)
	require.Equal(t, 0, f.pool.Available())

	returned, err := f.coordinator.Reject(f.at(f.base.AddDate(0, 0, 6)), first.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusWaitingList, returned.Status)
	assert.Equal(t, 1, f.pool.Available())

	posAfter, err := f.service.Waitlist().PositionOf(f.program.ID, first.ID)
	require.NoError(t, err)
	assert.Equal(t, posBefore, posAfter)
}

func TestAcceptStopsTheClock(t *testing.T) {
	f := newFixture(t, 1)
	app := f.queuedApplication(t, domain.UrgencyHigh, f.base)

	_, err := f.coordinator.OfferNext(f.at(f.base.AddDate(0, 0, 5)), f.program.ID)
	require.NoError(t, err)

	accepted, err := f.coordinator.Accept(f.at(f.base.AddDate(0, 0, 6)), app.ID)
	require.NoError(t, err)
	require.NotNil(t, accepted.Allocation.Accepted)
	assert.True(t, *accepted.Allocation.Accepted)

	// Long past the deadline, the sweep finds nothing to expire.
	expired, err := f.coordinator.SweepDue(f.at(f.base.AddDate(0, 1, 0)))
	require.NoError(t, err)
	assert.Zero(t, expired)

	current, err := f.service.Get(context.Background(), app.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAllocated, current.Status)
}

func TestSweepExpiresDueOffers(t *testing.T) {
	f := newFixture(t, 2)
	first := f.queuedApplication(t, domain.UrgencyEmergency, f.base)
	second := f.queuedApplication(t, domain.UrgencyHigh, f.base)

	offerCtx := f.at(f.base.AddDate(0, 0, 5))
	_, err := f.coordinator.OfferNext(offerCtx, f.program.ID)
	require.NoError(t, err)
	_, err = f.coordinator.OfferNext(offerCtx, f.program.ID)
	require.NoError(t, err)
	require.Equal(t, 0, f.pool.Available())

	t.Run("before the deadline nothing happens", func(t *testing.T) {
		expired, err := f.coordinator.SweepDue(f.at(f.base.AddDate(0, 0, 10)))
		require.NoError(t, err)
		assert.Zero(t, expired)
	})

	t.Run("past the deadline both offers return", func(t *testing.T) {
		expired, err := f.coordinator.SweepDue(f.at(f.base.AddDate(0, 0, 25)))
		require.NoError(t, err)
		assert.Equal(t, 2, expired)
		assert.Equal(t, 2, f.pool.Available())

		for _, appID := range []id.ApplicationID{first.ID, second.ID} {
			current, err := f.service.Get(context.Background(), appID)
			require.NoError(t, err)
			assert.Equal(t, domain.StatusWaitingList, current.Status)
			assert.Len(t, current.OfferHistory, 1)
		}
	})

	t.Run("a second sweep is a no-op", func(t *testing.T) {
		expired, err := f.coordinator.SweepDue(f.at(f.base.AddDate(0, 0, 26)))
		require.NoError(t, err)
		assert.Zero(t, expired)
	})
}

func TestExpireIsIdempotentPerApplication(t *testing.T) {
	f := newFixture(t, 1)
	app := f.queuedApplication(t, domain.UrgencyHigh, f.base)

	_, err := f.coordinator.OfferNext(f.at(f.base.AddDate(0, 0, 5)), f.program.ID)
	require.NoError(t, err)

	late := f.at(f.base.AddDate(0, 0, 25))
	expired, err := f.coordinator.Expire(late, app.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusWaitingList, expired.Status)
	assert.Equal(t, 1, f.pool.Available())

	again, err := f.coordinator.Expire(late, app.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusWaitingList, again.Status)
	assert.Equal(t, 1, f.pool.Available())
}

func TestStaticPool(t *testing.T) {
	unitID := id.NewUnitID()
	pool := NewStaticPool([]id.UnitID{unitID})

	got, err := pool.Reserve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, unitID, got)

	_, err = pool.Reserve(context.Background())
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))

	assert.Error(t, pool.Release(context.Background(), id.NewUnitID()))
	require.NoError(t, pool.Release(context.Background(), unitID))
	assert.Equal(t, 1, pool.Available())
}
