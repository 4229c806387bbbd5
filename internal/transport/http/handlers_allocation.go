package httptransport

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"habita/internal/allocation"
	"habita/internal/application"
	"habita/internal/domain"
	"habita/internal/transport/http/shared"
	id "habita/pkg/domain"
	dErrors "habita/pkg/domain-errors"
)

// AllocationHandler exposes the offer round and the waiting-list views.
type AllocationHandler struct {
	coordinator *allocation.Coordinator
	service     *application.Service
	logger      *slog.Logger
}

func NewAllocationHandler(coordinator *allocation.Coordinator, service *application.Service, logger *slog.Logger) *AllocationHandler {
	return &AllocationHandler{coordinator: coordinator, service: service, logger: logger}
}

// Register mounts the allocation routes.
func (h *AllocationHandler) Register(r chi.Router) {
	r.Get("/programs/{programID}/waitlist", h.handleWaitlist)
	r.Post("/programs/{programID}/offers", h.handleOfferNext)
	r.Post("/applications/{applicationID}/offer/accept", h.offerOp(h.coordinator.Accept))
	r.Post("/applications/{applicationID}/offer/reject", h.offerOp(h.coordinator.Reject))
	r.Post("/applications/{applicationID}/offer/expire", h.offerOp(h.coordinator.Expire))
	r.Post("/applications/{applicationID}/contract", h.handleSignContract)
	r.Post("/allocations/sweep", h.handleSweep)
}

func programID(r *http.Request) (id.ProgramID, error) {
	return id.ParseProgramID(chi.URLParam(r, "programID"))
}

type waitlistEntryResponse struct {
	ApplicationID string `json:"applicationId"`
	Score         int    `json:"score"`
	SubmittedAt   string `json:"submittedAt"`
	Position      int    `json:"position"`
}

func (h *AllocationHandler) handleWaitlist(w http.ResponseWriter, r *http.Request) {
	pID, err := programID(r)
	if err != nil {
		shared.WriteError(w, dErrors.Wrap(dErrors.CodeInvalidInput, "invalid program id", err))
		return
	}
	entries := h.service.Waitlist().Snapshot(pID)
	response := make([]waitlistEntryResponse, len(entries))
	for i, entry := range entries {
		response[i] = waitlistEntryResponse{
			ApplicationID: entry.ApplicationID.String(),
			Score:         entry.Score,
			SubmittedAt:   entry.SubmittedAt.Format("2006-01-02"),
			Position:      entry.Position,
		}
	}
	shared.WriteJSON(w, http.StatusOK, response)
}

type offerRequest struct {
	UnitID string `json:"unitId"`
}

// handleOfferNext offers to the queue head. An empty body lets the pool pick
// the unit; a unitId in the body claims that specific unit.
func (h *AllocationHandler) handleOfferNext(w http.ResponseWriter, r *http.Request) {
	pID, err := programID(r)
	if err != nil {
		shared.WriteError(w, dErrors.Wrap(dErrors.CodeInvalidInput, "invalid program id", err))
		return
	}

	var req offerRequest
	if r.ContentLength > 0 {
		if err := shared.DecodeJSON(r, &req); err != nil {
			shared.WriteError(w, err)
			return
		}
	}

	var app *domain.Application
	if req.UnitID != "" {
		unitID, err := id.ParseUnitID(req.UnitID)
		if err != nil {
			shared.WriteError(w, dErrors.Wrap(dErrors.CodeInvalidInput, "invalid unit id", err))
			return
		}
		app, err = h.coordinator.Offer(r.Context(), pID, unitID)
		if err != nil {
			shared.WriteError(w, err)
			return
		}
	} else {
		app, err = h.coordinator.OfferNext(r.Context(), pID)
		if err != nil {
			shared.WriteError(w, err)
			return
		}
	}
	shared.WriteJSON(w, http.StatusCreated, app)
}

func (h *AllocationHandler) offerOp(op func(ctx context.Context, appID id.ApplicationID) (*domain.Application, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		appID, err := id.ParseApplicationID(chi.URLParam(r, "applicationID"))
		if err != nil {
			shared.WriteError(w, dErrors.Wrap(dErrors.CodeInvalidInput, "invalid application id", err))
			return
		}
		app, err := op(r.Context(), appID)
		if err != nil {
			shared.WriteError(w, err)
			return
		}
		shared.WriteJSON(w, http.StatusOK, app)
	}
}

func (h *AllocationHandler) handleSignContract(w http.ResponseWriter, r *http.Request) {
	appID, err := id.ParseApplicationID(chi.URLParam(r, "applicationID"))
	if err != nil {
		shared.WriteError(w, dErrors.Wrap(dErrors.CodeInvalidInput, "invalid application id", err))
		return
	}
	app, err := h.service.SignContract(r.Context(), appID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, app)
}

func (h *AllocationHandler) handleSweep(w http.ResponseWriter, r *http.Request) {
	expired, err := h.coordinator.SweepDue(r.Context())
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]int{"expired": expired})
}
