package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"habita/internal/domain"
	"habita/internal/scoring"
	"habita/internal/storage"
	"habita/internal/transport/http/shared"
	id "habita/pkg/domain"
	dErrors "habita/pkg/domain-errors"
)

// ProgramHandler manages housing-benefit program definitions.
type ProgramHandler struct {
	programs storage.ProgramStore
	logger   *slog.Logger
}

func NewProgramHandler(programs storage.ProgramStore, logger *slog.Logger) *ProgramHandler {
	return &ProgramHandler{programs: programs, logger: logger}
}

// Register mounts the program routes.
func (h *ProgramHandler) Register(r chi.Router) {
	r.Post("/programs", h.handleSave)
	r.Get("/programs/{programID}", h.handleGet)
}

type saveProgramRequest struct {
	ID                   string                  `json:"programId"`
	Name                 string                  `json:"name"`
	Rules                domain.EligibilityRules `json:"rules"`
	Weights              *domain.ScoringWeights  `json:"weights"`
	RequiredDocuments    []domain.DocumentType   `json:"requiredDocuments"`
	AppealPeriodDays     int                     `json:"appealPeriodDays"`
	AcceptancePeriodDays int                     `json:"acceptancePeriodDays"`
}

func (h *ProgramHandler) handleSave(w http.ResponseWriter, r *http.Request) {
	var req saveProgramRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}
	if req.Name == "" {
		shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "program name is required"))
		return
	}
	if req.AppealPeriodDays <= 0 || req.AcceptancePeriodDays <= 0 {
		shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput,
			"appealPeriodDays and acceptancePeriodDays must be positive"))
		return
	}

	programID := id.NewProgramID()
	if req.ID != "" {
		parsed, err := id.ParseProgramID(req.ID)
		if err != nil {
			shared.WriteError(w, dErrors.Wrap(dErrors.CodeInvalidInput, "invalid program id", err))
			return
		}
		programID = parsed
	}
	weights := scoring.DefaultWeights()
	if req.Weights != nil {
		weights = *req.Weights
	}

	program := &domain.Program{
		ID:                   programID,
		Name:                 req.Name,
		Rules:                req.Rules,
		Weights:              weights,
		RequiredDocuments:    req.RequiredDocuments,
		AppealPeriodDays:     req.AppealPeriodDays,
		AcceptancePeriodDays: req.AcceptancePeriodDays,
	}
	if err := h.programs.Save(r.Context(), program); err != nil {
		shared.WriteError(w, err)
		return
	}
	h.logger.InfoContext(r.Context(), "program saved", "program_id", programID.String())
	shared.WriteJSON(w, http.StatusCreated, program)
}

func (h *ProgramHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	pID, err := id.ParseProgramID(chi.URLParam(r, "programID"))
	if err != nil {
		shared.WriteError(w, dErrors.Wrap(dErrors.CodeInvalidInput, "invalid program id", err))
		return
	}
	program, err := h.programs.Get(r.Context(), pID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, program)
}
