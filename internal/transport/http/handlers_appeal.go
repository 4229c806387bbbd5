package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"habita/internal/appeal"
	"habita/internal/transport/http/shared"
	id "habita/pkg/domain"
	dErrors "habita/pkg/domain-errors"
)

// AppealHandler exposes the post-rejection appeal operations.
type AppealHandler struct {
	processor *appeal.Processor
	logger    *slog.Logger
}

func NewAppealHandler(processor *appeal.Processor, logger *slog.Logger) *AppealHandler {
	return &AppealHandler{processor: processor, logger: logger}
}

// Register mounts the appeal routes.
func (h *AppealHandler) Register(r chi.Router) {
	r.Post("/applications/{applicationID}/appeal", h.handleFile)
	r.Post("/applications/{applicationID}/appeal/decision", h.handleDecide)
}

type fileAppealRequest struct {
	Reasons   string   `json:"reasons"`
	Documents []string `json:"documents"`
}

func (h *AppealHandler) handleFile(w http.ResponseWriter, r *http.Request) {
	appID, err := id.ParseApplicationID(chi.URLParam(r, "applicationID"))
	if err != nil {
		shared.WriteError(w, dErrors.Wrap(dErrors.CodeInvalidInput, "invalid application id", err))
		return
	}
	var req fileAppealRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}
	app, err := h.processor.File(r.Context(), appID, appeal.Request{
		Reasons:   req.Reasons,
		Documents: req.Documents,
	})
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, app)
}

type decideAppealRequest struct {
	Approved      bool   `json:"approved"`
	Justification string `json:"justification"`
}

func (h *AppealHandler) handleDecide(w http.ResponseWriter, r *http.Request) {
	appID, err := id.ParseApplicationID(chi.URLParam(r, "applicationID"))
	if err != nil {
		shared.WriteError(w, dErrors.Wrap(dErrors.CodeInvalidInput, "invalid application id", err))
		return
	}
	var req decideAppealRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}
	app, err := h.processor.Decide(r.Context(), appID, appeal.Decision{
		Approved:      req.Approved,
		Justification: req.Justification,
	})
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, app)
}
