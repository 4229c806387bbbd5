// Package httptransport is the thin HTTP layer. Handlers decode, delegate to
// domain services, and encode; business rules never live here.
package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"habita/internal/application"
	"habita/internal/domain"
	"habita/internal/transport/http/shared"
	id "habita/pkg/domain"
	dErrors "habita/pkg/domain-errors"
)

// ApplicationHandler exposes the lifecycle operations of one application.
type ApplicationHandler struct {
	service *application.Service
	logger  *slog.Logger
}

func NewApplicationHandler(service *application.Service, logger *slog.Logger) *ApplicationHandler {
	return &ApplicationHandler{service: service, logger: logger}
}

// Register mounts the application routes.
func (h *ApplicationHandler) Register(r chi.Router) {
	r.Post("/applications", h.handleCreate)
	r.Get("/applications/{applicationID}", h.handleGet)
	r.Get("/applications/{applicationID}/timeline", h.handleTimeline)
	r.Post("/applications/{applicationID}/submit", h.transition(h.submit))
	r.Post("/applications/{applicationID}/review", h.transition(h.beginReview))
	r.Post("/applications/{applicationID}/documents/request", h.transition(h.requestDocuments))
	r.Post("/applications/{applicationID}/documents/complete", h.transition(h.completeDocuments))
	r.Post("/applications/{applicationID}/documents", h.handleRecordDocument)
	r.Post("/applications/{applicationID}/household", h.handleUpdateHousehold)
	r.Post("/applications/{applicationID}/eligibility", h.transition(h.checkEligibility))
	r.Post("/applications/{applicationID}/score", h.transition(h.recordScore))
	r.Post("/applications/{applicationID}/visit", h.handleScheduleVisit)
	r.Post("/applications/{applicationID}/visit/report", h.handleRecordVisit)
	r.Post("/applications/{applicationID}/analysis", h.handleRecordAnalysis)
	r.Post("/applications/{applicationID}/decision", h.transition(h.decide))
	r.Post("/applications/{applicationID}/enqueue", h.transition(h.enqueue))
	r.Post("/applications/{applicationID}/cancel", h.handleCancel)
}

func applicationID(r *http.Request) (id.ApplicationID, error) {
	return id.ParseApplicationID(chi.URLParam(r, "applicationID"))
}

// transition wraps the no-body lifecycle endpoints that differ only in which
// service call they make.
func (h *ApplicationHandler) transition(op func(r *http.Request, appID id.ApplicationID) (*domain.Application, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		appID, err := applicationID(r)
		if err != nil {
			shared.WriteError(w, dErrors.Wrap(dErrors.CodeInvalidInput, "invalid application id", err))
			return
		}
		app, err := op(r, appID)
		if err != nil {
			shared.WriteError(w, err)
			return
		}
		shared.WriteJSON(w, http.StatusOK, app)
	}
}

func (h *ApplicationHandler) submit(r *http.Request, appID id.ApplicationID) (*domain.Application, error) {
	return h.service.Submit(r.Context(), appID)
}

func (h *ApplicationHandler) beginReview(r *http.Request, appID id.ApplicationID) (*domain.Application, error) {
	return h.service.BeginReview(r.Context(), appID)
}

func (h *ApplicationHandler) requestDocuments(r *http.Request, appID id.ApplicationID) (*domain.Application, error) {
	return h.service.RequestDocuments(r.Context(), appID)
}

func (h *ApplicationHandler) completeDocuments(r *http.Request, appID id.ApplicationID) (*domain.Application, error) {
	return h.service.CompleteDocuments(r.Context(), appID)
}

func (h *ApplicationHandler) checkEligibility(r *http.Request, appID id.ApplicationID) (*domain.Application, error) {
	return h.service.CheckEligibility(r.Context(), appID)
}

func (h *ApplicationHandler) recordScore(r *http.Request, appID id.ApplicationID) (*domain.Application, error) {
	return h.service.RecordScore(r.Context(), appID)
}

func (h *ApplicationHandler) decide(r *http.Request, appID id.ApplicationID) (*domain.Application, error) {
	return h.service.Decide(r.Context(), appID)
}

func (h *ApplicationHandler) enqueue(r *http.Request, appID id.ApplicationID) (*domain.Application, error) {
	return h.service.Enqueue(r.Context(), appID)
}

type createApplicationRequest struct {
	ProgramID string                `json:"programId"`
	Applicant domain.Applicant      `json:"applicant"`
	Family    []domain.FamilyMember `json:"family"`
}

func (h *ApplicationHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createApplicationRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}
	programID, err := id.ParseProgramID(req.ProgramID)
	if err != nil {
		shared.WriteError(w, dErrors.Wrap(dErrors.CodeInvalidInput, "invalid program id", err))
		return
	}
	app, err := h.service.CreateDraft(r.Context(), programID, req.Applicant, req.Family)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, app)
}

func (h *ApplicationHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	appID, err := applicationID(r)
	if err != nil {
		shared.WriteError(w, dErrors.Wrap(dErrors.CodeInvalidInput, "invalid application id", err))
		return
	}
	app, err := h.service.Get(r.Context(), appID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, app)
}

func (h *ApplicationHandler) handleTimeline(w http.ResponseWriter, r *http.Request) {
	appID, err := applicationID(r)
	if err != nil {
		shared.WriteError(w, dErrors.Wrap(dErrors.CodeInvalidInput, "invalid application id", err))
		return
	}
	entries, err := h.service.History(r.Context(), appID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, entries)
}

type recordDocumentRequest struct {
	Type   domain.DocumentType `json:"type"`
	Handle string              `json:"handle"`
}

func (h *ApplicationHandler) handleRecordDocument(w http.ResponseWriter, r *http.Request) {
	appID, err := applicationID(r)
	if err != nil {
		shared.WriteError(w, dErrors.Wrap(dErrors.CodeInvalidInput, "invalid application id", err))
		return
	}
	var req recordDocumentRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}
	app, err := h.service.RecordDocument(r.Context(), appID, req.Type, req.Handle)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, app)
}

type updateHouseholdRequest struct {
	Family  []domain.FamilyMember `json:"family"`
	Urgency domain.UrgencyTier    `json:"urgency"`
}

func (h *ApplicationHandler) handleUpdateHousehold(w http.ResponseWriter, r *http.Request) {
	appID, err := applicationID(r)
	if err != nil {
		shared.WriteError(w, dErrors.Wrap(dErrors.CodeInvalidInput, "invalid application id", err))
		return
	}
	var req updateHouseholdRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}
	app, err := h.service.UpdateHousehold(r.Context(), appID, req.Family, req.Urgency)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, app)
}

type scheduleVisitRequest struct {
	ScheduledFor time.Time `json:"scheduledFor"`
	Visitor      string    `json:"visitor"`
}

func (h *ApplicationHandler) handleScheduleVisit(w http.ResponseWriter, r *http.Request) {
	appID, err := applicationID(r)
	if err != nil {
		shared.WriteError(w, dErrors.Wrap(dErrors.CodeInvalidInput, "invalid application id", err))
		return
	}
	var req scheduleVisitRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}
	if req.ScheduledFor.IsZero() {
		shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "scheduledFor is required"))
		return
	}
	app, err := h.service.ScheduleVisit(r.Context(), appID, req.ScheduledFor, req.Visitor)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, app)
}

type recordVisitRequest struct {
	Summary string `json:"summary"`
}

func (h *ApplicationHandler) handleRecordVisit(w http.ResponseWriter, r *http.Request) {
	appID, err := applicationID(r)
	if err != nil {
		shared.WriteError(w, dErrors.Wrap(dErrors.CodeInvalidInput, "invalid application id", err))
		return
	}
	var req recordVisitRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}
	app, err := h.service.RecordVisit(r.Context(), appID, req.Summary)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, app)
}

type recordAnalysisRequest struct {
	Favorable bool   `json:"favorable"`
	Verdict   string `json:"verdict"`
}

func (h *ApplicationHandler) handleRecordAnalysis(w http.ResponseWriter, r *http.Request) {
	appID, err := applicationID(r)
	if err != nil {
		shared.WriteError(w, dErrors.Wrap(dErrors.CodeInvalidInput, "invalid application id", err))
		return
	}
	var req recordAnalysisRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}
	app, err := h.service.RecordAnalysis(r.Context(), appID, req.Favorable, req.Verdict)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, app)
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func (h *ApplicationHandler) handleCancel(w http.ResponseWriter, r *http.Request) {
	appID, err := applicationID(r)
	if err != nil {
		shared.WriteError(w, dErrors.Wrap(dErrors.CodeInvalidInput, "invalid application id", err))
		return
	}
	var req cancelRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}
	app, err := h.service.Cancel(r.Context(), appID, req.Reason)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, app)
}
