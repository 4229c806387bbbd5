package application

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"habita/internal/domain"
	"habita/internal/notify"
	"habita/internal/scoring"
	"habita/internal/storage"
	"habita/internal/timeline"
	"habita/internal/waitlist"
	id "habita/pkg/domain"
	dErrors "habita/pkg/domain-errors"
	"habita/pkg/requestcontext"
)

// stubVerifier answers document verification lookups from a fixed map. The
// zero value verifies everything.
type stubVerifier struct {
	mu         sync.Mutex
	unverified map[domain.DocumentType]bool
}

func (v *stubVerifier) IsVerified(_ context.Context, _ id.ApplicationID, docType domain.DocumentType) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return !v.unverified[docType], nil
}

func (v *stubVerifier) holdBack(docType domain.DocumentType) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.unverified == nil {
		v.unverified = make(map[domain.DocumentType]bool)
	}
	v.unverified[docType] = true
}

func (v *stubVerifier) release(docType domain.DocumentType) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.unverified, docType)
}

type ServiceSuite struct {
	suite.Suite

	apps     *storage.InMemoryApplicationStore
	programs *storage.InMemoryProgramStore
	sink     *notify.MemorySink
	verifier *stubVerifier
	service  *Service

	program domain.Program
	base    time.Time
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.apps = storage.NewInMemoryApplicationStore()
	s.programs = storage.NewInMemoryProgramStore()
	s.sink = notify.NewMemorySink()
	s.verifier = &stubVerifier{}
	s.base = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	s.program = domain.Program{
		ID:   id.NewProgramID(),
		Name: "Minha Casa Centro",
		Rules: domain.EligibilityRules{
			MaxIncome:         1800,
			MinResidencyYears: 2,
		},
		Weights: scoring.DefaultWeights(),
		RequiredDocuments: []domain.DocumentType{
			domain.DocumentIdentity,
			domain.DocumentIncomeProof,
			domain.DocumentResidencyProof,
			domain.DocumentFamilyComposition,
		},
		AppealPeriodDays:     30,
		AcceptancePeriodDays: 15,
	}
	s.Require().NoError(s.programs.Save(context.Background(), &s.program))

	s.service = NewService(
		s.apps,
		s.programs,
		timeline.NewService(storage.NewInMemoryTimelineStore()),
		waitlist.NewManager(),
		s.verifier,
		WithNotifier(s.sink),
	)
}

// ctx pins the clock so deadline guards are deterministic.
func (s *ServiceSuite) ctx(at time.Time) context.Context {
	ctx := requestcontext.WithTime(context.Background(), at)
	return requestcontext.WithActor(ctx, "caseworker-7")
}

func (s *ServiceSuite) eligibleApplicant() domain.Applicant {
	return domain.Applicant{
		ID:               id.NewApplicantID(),
		FullName:         "Maria dos Santos",
		NationalID:       "123.456.789-00",
		Email:            "maria@example.com",
		Phone:            "+55 11 98765-4321",
		HousingSituation: domain.HousingRented,
		Urgency:          domain.UrgencyHigh,
		YearsInCity:      5,
		SingleParent:     true,
	}
}

func (s *ServiceSuite) smallFamily() []domain.FamilyMember {
	return []domain.FamilyMember{
		{FullName: "Maria dos Santos", Relationship: "self", Age: 34, MonthlyIncome: 900},
		{FullName: "João dos Santos", Relationship: "child", Age: 8},
	}
}

func (s *ServiceSuite) newDraft() *domain.Application {
	app, err := s.service.CreateDraft(s.ctx(s.base), s.program.ID, s.eligibleApplicant(), s.smallFamily())
	s.Require().NoError(err)
	return app
}

// advance walks a draft to TECHNICAL_ANALYSIS with all paperwork in place.
func (s *ServiceSuite) advanceToAnalysis(appID id.ApplicationID) {
	ctx := s.ctx(s.base.Add(time.Hour))
	_, err := s.service.Submit(ctx, appID)
	s.Require().NoError(err)
	_, err = s.service.BeginReview(ctx, appID)
	s.Require().NoError(err)
	for _, docType := range s.program.RequiredDocuments {
		_, err = s.service.RecordDocument(ctx, appID, docType, "doc-"+string(docType))
		s.Require().NoError(err)
	}
	_, err = s.service.ScheduleVisit(ctx, appID, s.base.AddDate(0, 0, 7), "social-worker-3")
	s.Require().NoError(err)
	_, err = s.service.RecordVisit(s.ctx(s.base.AddDate(0, 0, 7)), appID, "dwelling confirmed, two residents")
	s.Require().NoError(err)
}

func (s *ServiceSuite) approve(appID id.ApplicationID) *domain.Application {
	s.advanceToAnalysis(appID)
	ctx := s.ctx(s.base.AddDate(0, 0, 8))
	_, err := s.service.RecordAnalysis(ctx, appID, true, "structure adequate")
	s.Require().NoError(err)
	app, err := s.service.Decide(ctx, appID)
	s.Require().NoError(err)
	s.Require().Equal(domain.StatusApproved, app.Status)
	return app
}

func (s *ServiceSuite) TestFullApprovalPath() {
	app := s.newDraft()
	approved := s.approve(app.ID)

	s.True(approved.Evaluation.Eligibility.Meets)
	s.NotZero(approved.Evaluation.Score)
	s.NotZero(approved.Evaluation.ScoredAt)

	ctx := s.ctx(s.base.AddDate(0, 0, 9))
	queued, err := s.service.Enqueue(ctx, app.ID)
	s.Require().NoError(err)
	s.Equal(domain.StatusWaitingList, queued.Status)
	s.Require().NotNil(queued.WaitingList)
	s.Equal(1, queued.WaitingList.Position)

	unitID := id.NewUnitID()
	offered, err := s.service.ApplyOffer(ctx, app.ID, unitID)
	s.Require().NoError(err)
	s.Equal(domain.StatusAllocated, offered.Status)
	s.Require().NotNil(offered.Allocation)
	s.Equal(unitID, offered.Allocation.UnitID)
	s.Equal(s.base.AddDate(0, 0, 9+s.program.AcceptancePeriodDays), offered.Allocation.AcceptanceDeadline)
	s.Nil(offered.WaitingList)
	s.Zero(s.service.Waitlist().Len(s.program.ID))

	accepted, err := s.service.AcceptOffer(s.ctx(s.base.AddDate(0, 0, 12)), app.ID)
	s.Require().NoError(err)
	s.Require().NotNil(accepted.Allocation.Accepted)
	s.True(*accepted.Allocation.Accepted)

	signed, err := s.service.SignContract(s.ctx(s.base.AddDate(0, 0, 14)), app.ID)
	s.Require().NoError(err)
	s.True(signed.ContractSigned())

	history, err := s.service.History(context.Background(), app.ID)
	s.Require().NoError(err)
	var events []domain.TimelineEvent
	for _, entry := range history {
		events = append(events, entry.Event)
	}
	s.Contains(events, domain.EventApproved)
	s.Contains(events, domain.EventEnqueued)
	s.Contains(events, domain.EventContractSigned)
	s.NotContains(events, domain.EventTransitionDenied)

	var notices []notify.Event
	for _, recorded := range s.sink.Events() {
		notices = append(notices, recorded.Event)
	}
	s.Contains(notices, notify.EventSubmitted)
	s.Contains(notices, notify.EventApproved)
	s.Contains(notices, notify.EventUnitOffered)
}

// Income of 2000 against a 1800 limit: the decision is REJECTED and the
// rejection cites the specific unmet criterion.
func (s *ServiceSuite) TestDecideRejectsOverIncome() {
	app, err := s.service.CreateDraft(s.ctx(s.base), s.program.ID, s.eligibleApplicant(), []domain.FamilyMember{
		{FullName: "Ana Lima", Relationship: "self", Age: 40, MonthlyIncome: 2000},
	})
	s.Require().NoError(err)
	s.advanceToAnalysis(app.ID)

	ctx := s.ctx(s.base.AddDate(0, 0, 8))
	_, err = s.service.RecordAnalysis(ctx, app.ID, true, "structure adequate")
	s.Require().NoError(err)

	rejected, err := s.service.Decide(ctx, app.ID)
	s.Require().NoError(err)
	s.Equal(domain.StatusRejected, rejected.Status)
	s.Equal(s.base.AddDate(0, 0, 8), rejected.RejectedAt)
	s.Contains(rejected.RejectionReasons, "incomeRequirement")
	s.False(rejected.Evaluation.Eligibility.Meets)
}

func (s *ServiceSuite) TestCheckEligibilityAndRecordScore() {
	app := s.newDraft()
	ctx := s.ctx(s.base.Add(time.Hour))
	_, err := s.service.Submit(ctx, app.ID)
	s.Require().NoError(err)
	_, err = s.service.BeginReview(ctx, app.ID)
	s.Require().NoError(err)

	// Scoring before the eligibility check is refused.
	_, err = s.service.RecordScore(ctx, app.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))

	checked, err := s.service.CheckEligibility(ctx, app.ID)
	s.Require().NoError(err)
	s.Require().NotNil(checked.Evaluation.Eligibility)
	s.True(checked.Evaluation.Eligibility.Meets)

	scored, err := s.service.RecordScore(ctx, app.ID)
	s.Require().NoError(err)
	s.Positive(scored.Evaluation.Score)
	s.NotEmpty(scored.Evaluation.Breakdown)

	history, err := s.service.History(context.Background(), app.ID)
	s.Require().NoError(err)
	events := make([]domain.TimelineEvent, 0, len(history))
	for _, entry := range history {
		events = append(events, entry.Event)
	}
	s.Contains(events, domain.EventEligibilityChecked)
	s.Contains(events, domain.EventScoreRecorded)
}

func (s *ServiceSuite) TestRecordScoreRefusesIneligible() {
	app, err := s.service.CreateDraft(s.ctx(s.base), s.program.ID, s.eligibleApplicant(), []domain.FamilyMember{
		{FullName: "Ana Lima", Relationship: "self", Age: 40, MonthlyIncome: 9000},
	})
	s.Require().NoError(err)
	ctx := s.ctx(s.base.Add(time.Hour))
	_, err = s.service.Submit(ctx, app.ID)
	s.Require().NoError(err)
	_, err = s.service.BeginReview(ctx, app.ID)
	s.Require().NoError(err)

	checked, err := s.service.CheckEligibility(ctx, app.ID)
	s.Require().NoError(err)
	s.False(checked.Evaluation.Eligibility.Meets)

	_, err = s.service.RecordScore(ctx, app.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeIneligibleApplication))
}

func (s *ServiceSuite) TestSubmitValidation() {
	applicant := s.eligibleApplicant()
	applicant.Email = "not-an-email"
	app, err := s.service.CreateDraft(s.ctx(s.base), s.program.ID, applicant, s.smallFamily())
	s.Require().NoError(err)

	_, err = s.service.Submit(s.ctx(s.base), app.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	s.Contains(err.Error(), "email")

	current, err := s.service.Get(context.Background(), app.ID)
	s.Require().NoError(err)
	s.Equal(domain.StatusDraft, current.Status)

	history, err := s.service.History(context.Background(), app.ID)
	s.Require().NoError(err)
	s.Require().NotEmpty(history)
	s.Equal(domain.EventTransitionDenied, history[len(history)-1].Event)
}

func (s *ServiceSuite) TestInvalidTransitionNamesStateAndTrigger() {
	app := s.newDraft()
	_, err := s.service.Submit(s.ctx(s.base), app.ID)
	s.Require().NoError(err)

	_, err = s.service.Submit(s.ctx(s.base), app.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))
	s.Contains(err.Error(), "submit")
	s.Contains(err.Error(), string(domain.StatusSubmitted))
}

func (s *ServiceSuite) TestDocumentGate() {
	app := s.newDraft()
	ctx := s.ctx(s.base.Add(time.Hour))
	_, err := s.service.Submit(ctx, app.ID)
	s.Require().NoError(err)
	_, err = s.service.BeginReview(ctx, app.ID)
	s.Require().NoError(err)

	s.Run("request lists what is missing", func() {
		parked, err := s.service.RequestDocuments(ctx, app.ID)
		s.Require().NoError(err)
		s.Equal(domain.StatusPendingDocuments, parked.Status)
	})

	s.Run("incomplete paperwork refused with the full list", func() {
		_, err := s.service.RecordDocument(ctx, app.ID, domain.DocumentIdentity, "doc-1")
		s.Require().NoError(err)
		s.verifier.holdBack(domain.DocumentIncomeProof)

		_, err = s.service.CompleteDocuments(ctx, app.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeDocumentIncomplete))
		s.Contains(err.Error(), string(domain.DocumentIncomeProof))
		s.Contains(err.Error(), string(domain.DocumentResidencyProof))
	})

	s.Run("verified paperwork unparks", func() {
		s.verifier.release(domain.DocumentIncomeProof)
		for _, docType := range s.program.RequiredDocuments {
			_, err := s.service.RecordDocument(ctx, app.ID, docType, "doc-"+string(docType))
			s.Require().NoError(err)
		}
		resumed, err := s.service.CompleteDocuments(ctx, app.ID)
		s.Require().NoError(err)
		s.Equal(domain.StatusUnderReview, resumed.Status)
	})
}

// Rejecting an offer restores the applicant's exact queue position and moves
// the allocation into history.
func (s *ServiceSuite) TestRejectOfferRestoresRank() {
	first := s.newDraft()
	s.approve(first.ID)
	ctx := s.ctx(s.base.AddDate(0, 0, 9))
	_, err := s.service.Enqueue(ctx, first.ID)
	s.Require().NoError(err)

	second := s.newDraft()
	s.approve(second.ID)
	_, err = s.service.Enqueue(ctx, second.ID)
	s.Require().NoError(err)

	posBefore, err := s.service.Waitlist().PositionOf(s.program.ID, first.ID)
	s.Require().NoError(err)

	_, err = s.service.ApplyOffer(ctx, first.ID, id.NewUnitID())
	s.Require().NoError(err)

	returned, err := s.service.RejectOffer(s.ctx(s.base.AddDate(0, 0, 10)), first.ID)
	s.Require().NoError(err)
	s.Equal(domain.StatusWaitingList, returned.Status)
	s.Nil(returned.Allocation)
	s.Require().Len(returned.OfferHistory, 1)
	s.Require().NotNil(returned.OfferHistory[0].Accepted)
	s.False(*returned.OfferHistory[0].Accepted)

	posAfter, err := s.service.Waitlist().PositionOf(s.program.ID, first.ID)
	s.Require().NoError(err)
	s.Equal(posBefore, posAfter)
}

func (s *ServiceSuite) TestExpireOffer() {
	app := s.newDraft()
	s.approve(app.ID)
	ctx := s.ctx(s.base.AddDate(0, 0, 9))
	_, err := s.service.Enqueue(ctx, app.ID)
	s.Require().NoError(err)
	_, err = s.service.ApplyOffer(ctx, app.ID, id.NewUnitID())
	s.Require().NoError(err)

	s.Run("before the deadline nothing expires", func() {
		_, err := s.service.ExpireOffer(s.ctx(s.base.AddDate(0, 0, 10)), app.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))
	})

	s.Run("past the deadline the offer returns to the queue", func() {
		expired, err := s.service.ExpireOffer(s.ctx(s.base.AddDate(0, 0, 30)), app.ID)
		s.Require().NoError(err)
		s.Equal(domain.StatusWaitingList, expired.Status)
		s.Len(expired.OfferHistory, 1)
	})

	s.Run("a second tick is a no-op", func() {
		again, err := s.service.ExpireOffer(s.ctx(s.base.AddDate(0, 0, 31)), app.ID)
		s.Require().NoError(err)
		s.Equal(domain.StatusWaitingList, again.Status)
		s.Len(again.OfferHistory, 1)
	})
}

func (s *ServiceSuite) TestCancel() {
	s.Run("queued application leaves the waiting list", func() {
		app := s.newDraft()
		s.approve(app.ID)
		ctx := s.ctx(s.base.AddDate(0, 0, 9))
		_, err := s.service.Enqueue(ctx, app.ID)
		s.Require().NoError(err)

		cancelled, err := s.service.Cancel(ctx, app.ID, "moved to another city")
		s.Require().NoError(err)
		s.Equal(domain.StatusCancelled, cancelled.Status)
		s.Equal("moved to another city", cancelled.CancelReason)
		s.Zero(s.service.Waitlist().Len(s.program.ID))
	})

	s.Run("blocked once the contract is signed", func() {
		app := s.newDraft()
		s.approve(app.ID)
		ctx := s.ctx(s.base.AddDate(0, 0, 9))
		_, err := s.service.Enqueue(ctx, app.ID)
		s.Require().NoError(err)
		_, err = s.service.ApplyOffer(ctx, app.ID, id.NewUnitID())
		s.Require().NoError(err)
		_, err = s.service.AcceptOffer(ctx, app.ID)
		s.Require().NoError(err)
		_, err = s.service.SignContract(ctx, app.ID)
		s.Require().NoError(err)

		_, err = s.service.Cancel(ctx, app.ID, "changed my mind")
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))
		s.Contains(err.Error(), "contract already signed")
	})
}

func (s *ServiceSuite) TestDoubleOfferRefused() {
	app := s.newDraft()
	s.approve(app.ID)
	ctx := s.ctx(s.base.AddDate(0, 0, 9))
	_, err := s.service.Enqueue(ctx, app.ID)
	s.Require().NoError(err)
	_, err = s.service.ApplyOffer(ctx, app.ID, id.NewUnitID())
	s.Require().NoError(err)

	_, err = s.service.ApplyOffer(ctx, app.ID, id.NewUnitID())
	s.True(dErrors.HasCode(err, dErrors.CodeAlreadyAllocated))
}

// An application forced into APPROVED without an eligibility verdict is
// refused at the queue door.
func (s *ServiceSuite) TestEnqueueChecksEligibility() {
	app := &domain.Application{
		ID:        id.NewApplicationID(),
		ProgramID: s.program.ID,
		Applicant: s.eligibleApplicant(),
		Family:    s.smallFamily(),
		Status:    domain.StatusApproved,
		Version:   1,
		CreatedAt: s.base,
		UpdatedAt: s.base,
	}
	s.Require().NoError(s.apps.Create(context.Background(), app))

	_, err := s.service.Enqueue(s.ctx(s.base), app.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeIneligibleApplication))
	s.Zero(s.service.Waitlist().Len(s.program.ID))
}

func (s *ServiceSuite) TestUpdateHouseholdRefreshesScore() {
	app := s.newDraft()
	s.advanceToAnalysis(app.ID)
	ctx := s.ctx(s.base.AddDate(0, 0, 8))
	_, err := s.service.RecordAnalysis(ctx, app.ID, true, "ok")
	s.Require().NoError(err)
	decided, err := s.service.Decide(ctx, app.ID)
	s.Require().NoError(err)
	scoreAtDecision := decided.Evaluation.Score

	// Approved means frozen: no household mutation is possible anymore.
	_, err = s.service.UpdateHousehold(ctx, app.ID, s.smallFamily(), domain.UrgencyEmergency)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))

	current, err := s.service.Get(context.Background(), app.ID)
	s.Require().NoError(err)
	s.Equal(scoreAtDecision, current.Evaluation.Score)
}

// Two goroutines race the same draft through submit. Exactly one transition
// wins; the loser sees a coded conflict, never a silent double-apply.
func (s *ServiceSuite) TestConcurrentSubmitSingleWinner() {
	app := s.newDraft()

	const racers = 8
	var wg sync.WaitGroup
	errs := make([]error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, errs[n] = s.service.Submit(s.ctx(s.base.Add(time.Minute)), app.ID)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		conflict := dErrors.HasCode(err, dErrors.CodeStaleState) ||
			dErrors.HasCode(err, dErrors.CodeInvalidTransition)
		s.True(conflict, "unexpected error: %v", err)
	}
	s.Equal(1, wins)

	current, err := s.service.Get(context.Background(), app.ID)
	s.Require().NoError(err)
	s.Equal(domain.StatusSubmitted, current.Status)
	s.Equal(int64(2), current.Version)
}

func TestAllowedFrom(t *testing.T) {
	assert.True(t, allowedFrom(domain.StatusDraft, TriggerSubmit))
	assert.False(t, allowedFrom(domain.StatusSubmitted, TriggerSubmit))
	assert.False(t, allowedFrom(domain.StatusCancelled, TriggerCancel))

	for trigger, sources := range transitionSources {
		require.NotEmptyf(t, sources, "trigger %s has no source states", trigger)
	}
}
