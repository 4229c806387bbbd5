package httptransport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"habita/internal/allocation"
	"habita/internal/appeal"
	"habita/internal/application"
	"habita/internal/domain"
	"habita/internal/platform/logger"
	"habita/internal/platform/metrics"
	"habita/internal/platform/middleware"
	"habita/internal/scoring"
	"habita/internal/storage"
	"habita/internal/timeline"
	"habita/internal/waitlist"
	id "habita/pkg/domain"
	"habita/pkg/testutil"
)

// okValidator accepts any token and attributes calls to a fixed actor.
type okValidator struct{}

func (okValidator) ValidateToken(string) (*middleware.TokenClaims, error) {
	return &middleware.TokenClaims{Subject: "caseworker-1", Role: "staff"}, nil
}

type allVerified struct{}

func (allVerified) IsVerified(context.Context, id.ApplicationID, domain.DocumentType) (bool, error) {
	return true, nil
}

// The default prometheus registry tolerates exactly one registration.
var (
	metricsOnce   sync.Once
	sharedMetrics *metrics.Metrics
)

func testMetrics() *metrics.Metrics {
	metricsOnce.Do(func() { sharedMetrics = metrics.New() })
	return sharedMetrics
}

type env struct {
	router  http.Handler
	service *application.Service
	program domain.Program
}

func newEnv(t *testing.T) *env {
	t.Helper()
	log := logger.New()
	programs := storage.NewInMemoryProgramStore()
	program := domain.Program{
		ID:      id.NewProgramID(),
		Name:    "Conjunto Habitacional Sul",
		Rules:   domain.EligibilityRules{MaxIncome: 2000, MinResidencyYears: 1},
		Weights: scoring.DefaultWeights(),
		RequiredDocuments: []domain.DocumentType{
			domain.DocumentIdentity,
		},
		AppealPeriodDays:     30,
		AcceptancePeriodDays: 15,
	}
	require.NoError(t, programs.Save(context.Background(), &program))

	pool := allocation.NewStaticPool([]id.UnitID{id.NewUnitID()})
	service := application.NewService(
		storage.NewInMemoryApplicationStore(),
		programs,
		timeline.NewService(storage.NewInMemoryTimelineStore()),
		waitlist.NewManager(),
		allVerified{},
		application.WithUnitReleaser(pool),
		application.WithLogger(log),
	)
	coordinator := allocation.NewCoordinator(service, pool, allocation.NewMemoryDeadlineIndex(), log)
	processor := appeal.NewProcessor(service, log)

	router := NewRouter(log, testMetrics(), okValidator{},
		NewApplicationHandler(service, log),
		NewAllocationHandler(coordinator, service, log),
		NewAppealHandler(processor, log),
		NewProgramHandler(programs, log),
	)
	return &env{router: router, service: service, program: program}
}

func (e *env) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	req := testutil.NewJSONRequest(t, method, path, body)
	req.Header.Set("Authorization", "Bearer test-token")
	return testutil.DoRequest(e.router, req)
}

func validCreateBody(e *env) map[string]any {
	return map[string]any{
		"programId": e.program.ID.String(),
		"applicant": map[string]any{
			"fullName":         "Rita Souza",
			"nationalId":       "321.654.987-00",
			"email":            "rita@example.com",
			"phone":            "+55 11 91111-2222",
			"housingSituation": "RENTED",
			"urgency":          "HIGH",
			"yearsInCity":      3,
		},
		"family": []map[string]any{
			{"fullName": "Rita Souza", "relationship": "self", "age": 29, "monthlyIncome": 1200},
		},
	}
}

func TestCreateApplication(t *testing.T) {
	e := newEnv(t)

	t.Run("creates a draft", func(t *testing.T) {
		rr := e.do(t, http.MethodPost, "/applications", validCreateBody(e))
		testutil.AssertStatus(t, rr, http.StatusCreated)
		body := rr.Body.String()
		app := testutil.UnmarshalResponse[domain.Application](t, rr)
		assert.Equal(t, domain.StatusDraft, app.Status)
		assert.False(t, app.ID.IsNil())
		// The id in the body is the canonical string a client puts in URLs.
		assert.Contains(t, body, `"applicationId":"`+app.ID.String()+`"`)
	})

	t.Run("unknown program", func(t *testing.T) {
		body := validCreateBody(e)
		body["programId"] = id.NewProgramID().String()
		rr := e.do(t, http.MethodPost, "/applications", body)
		testutil.AssertStatusAndError(t, rr, http.StatusNotFound, "not_found")
	})

	t.Run("malformed body", func(t *testing.T) {
		req := testutil.NewRequestWithBody(t, http.MethodPost, "/applications", `{"programId": 17}`)
		req.Header.Set("Authorization", "Bearer test-token")
		rr := testutil.DoRequest(e.router, req)
		testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "invalid_input")
	})
}

func TestLifecycleOverHTTP(t *testing.T) {
	e := newEnv(t)

	rr := e.do(t, http.MethodPost, "/applications", validCreateBody(e))
	testutil.AssertStatus(t, rr, http.StatusCreated)
	app := testutil.UnmarshalResponse[domain.Application](t, rr)
	base := "/applications/" + app.ID.String()

	rr = e.do(t, http.MethodPost, base+"/submit", nil)
	testutil.AssertStatus(t, rr, http.StatusOK)
	submitted := testutil.UnmarshalResponse[domain.Application](t, rr)
	assert.Equal(t, domain.StatusSubmitted, submitted.Status)

	rr = e.do(t, http.MethodPost, base+"/review", nil)
	testutil.AssertStatus(t, rr, http.StatusOK)

	rr = e.do(t, http.MethodPost, base+"/documents", map[string]string{
		"type": "IDENTITY", "handle": "doc-777",
	})
	testutil.AssertStatus(t, rr, http.StatusOK)

	rr = e.do(t, http.MethodPost, base+"/eligibility", nil)
	testutil.AssertStatus(t, rr, http.StatusOK)
	checked := testutil.UnmarshalResponse[domain.Application](t, rr)
	assert.True(t, checked.Evaluation.Eligibility.Meets)

	rr = e.do(t, http.MethodPost, base+"/score", nil)
	testutil.AssertStatus(t, rr, http.StatusOK)

	rr = e.do(t, http.MethodPost, base+"/visit", map[string]any{
		"scheduledFor": time.Now().Add(48 * time.Hour).Format(time.RFC3339),
		"visitor":      "social-worker-9",
	})
	testutil.AssertStatus(t, rr, http.StatusOK)

	rr = e.do(t, http.MethodPost, base+"/visit/report", map[string]string{"summary": "confirmed"})
	testutil.AssertStatus(t, rr, http.StatusOK)

	rr = e.do(t, http.MethodPost, base+"/analysis", map[string]any{
		"favorable": true, "verdict": "adequate",
	})
	testutil.AssertStatus(t, rr, http.StatusOK)

	rr = e.do(t, http.MethodPost, base+"/decision", nil)
	testutil.AssertStatus(t, rr, http.StatusOK)
	decided := testutil.UnmarshalResponse[domain.Application](t, rr)
	assert.Equal(t, domain.StatusApproved, decided.Status)

	rr = e.do(t, http.MethodPost, base+"/enqueue", nil)
	testutil.AssertStatus(t, rr, http.StatusOK)

	rr = e.do(t, http.MethodGet, "/programs/"+e.program.ID.String()+"/waitlist", nil)
	testutil.AssertStatus(t, rr, http.StatusOK)
	entries := testutil.UnmarshalResponse[[]waitlistEntryResponse](t, rr)
	require.Len(t, *entries, 1)
	assert.Equal(t, app.ID.String(), (*entries)[0].ApplicationID)

	rr = e.do(t, http.MethodPost, "/programs/"+e.program.ID.String()+"/offers", nil)
	testutil.AssertStatus(t, rr, http.StatusCreated)

	rr = e.do(t, http.MethodPost, base+"/offer/accept", nil)
	testutil.AssertStatus(t, rr, http.StatusOK)

	rr = e.do(t, http.MethodPost, base+"/contract", nil)
	testutil.AssertStatus(t, rr, http.StatusOK)
	signed := testutil.UnmarshalResponse[domain.Application](t, rr)
	assert.NotNil(t, signed.Allocation.ContractSignedAt)

	rr = e.do(t, http.MethodGet, base+"/timeline", nil)
	testutil.AssertStatus(t, rr, http.StatusOK)
	timelineEntries := testutil.UnmarshalResponse[[]domain.TimelineEntry](t, rr)
	assert.NotEmpty(t, *timelineEntries)
	for _, entry := range *timelineEntries {
		assert.Equal(t, "caseworker-1", entry.Actor)
	}
}

func TestErrorMapping(t *testing.T) {
	e := newEnv(t)

	t.Run("unknown application is 404", func(t *testing.T) {
		rr := e.do(t, http.MethodGet, "/applications/"+id.NewApplicationID().String(), nil)
		testutil.AssertStatusAndError(t, rr, http.StatusNotFound, "not_found")
	})

	t.Run("invalid id is 400", func(t *testing.T) {
		rr := e.do(t, http.MethodGet, "/applications/not-a-uuid", nil)
		testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "invalid_input")
	})

	t.Run("illegal transition is 422", func(t *testing.T) {
		rr := e.do(t, http.MethodPost, "/applications", validCreateBody(e))
		app := testutil.UnmarshalResponse[domain.Application](t, rr)

		rr = e.do(t, http.MethodPost, "/applications/"+app.ID.String()+"/decision", nil)
		testutil.AssertStatusAndError(t, rr, http.StatusUnprocessableEntity, "invalid_transition")
	})

	t.Run("missing token is 401", func(t *testing.T) {
		req := testutil.NewRequest(t, http.MethodGet, "/applications/"+id.NewApplicationID().String())
		rr := testutil.DoRequest(e.router, req)
		testutil.AssertStatus(t, rr, http.StatusUnauthorized)
	})

	t.Run("health needs no token", func(t *testing.T) {
		req := testutil.NewRequest(t, http.MethodGet, "/healthz")
		rr := testutil.DoRequest(e.router, req)
		testutil.AssertStatusOK(t, rr)
	})
}

func TestSaveProgram(t *testing.T) {
	e := newEnv(t)

	rr := e.do(t, http.MethodPost, "/programs", map[string]any{
		"name":                 "Vila Nova",
		"rules":                map[string]any{"maxIncome": 2200, "minResidencyYears": 2},
		"requiredDocuments":    []string{"IDENTITY", "INCOME_PROOF"},
		"appealPeriodDays":     30,
		"acceptancePeriodDays": 10,
	})
	testutil.AssertStatus(t, rr, http.StatusCreated)
	program := testutil.UnmarshalResponse[domain.Program](t, rr)
	assert.Equal(t, "Vila Nova", program.Name)
	assert.Equal(t, scoring.DefaultWeights(), program.Weights)

	rr = e.do(t, http.MethodGet, "/programs/"+program.ID.String(), nil)
	testutil.AssertStatusOK(t, rr)

	rr = e.do(t, http.MethodPost, "/programs", map[string]any{"name": ""})
	testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "invalid_input")
}
