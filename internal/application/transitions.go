package application

import (
	"habita/internal/domain"
	dErrors "habita/pkg/domain-errors"
)

// Trigger names an operation that attempts a status transition.
type Trigger string

const (
	TriggerSubmit            Trigger = "submit"
	TriggerUpdateHousehold   Trigger = "update_household"
	TriggerRecordDocument    Trigger = "record_document"
	TriggerCheckEligibility  Trigger = "check_eligibility"
	TriggerRecordScore       Trigger = "record_score"
	TriggerRecordAnalysis    Trigger = "record_analysis"
	TriggerBeginReview       Trigger = "begin_review"
	TriggerRequestDocuments  Trigger = "request_documents"
	TriggerDocumentsComplete Trigger = "documents_complete"
	TriggerScheduleVisit     Trigger = "schedule_visit"
	TriggerRecordVisit       Trigger = "record_visit"
	TriggerDecide            Trigger = "decide"
	TriggerEnqueue           Trigger = "enqueue"
	TriggerOfferUnit         Trigger = "offer_unit"
	TriggerAcceptOffer       Trigger = "accept_offer"
	TriggerRejectOffer       Trigger = "reject_offer"
	TriggerExpireOffer       Trigger = "expire_offer"
	TriggerSignContract      Trigger = "sign_contract"
	TriggerFileAppeal        Trigger = "file_appeal"
	TriggerDecideAppeal      Trigger = "decide_appeal"
	TriggerCancel            Trigger = "cancel"
)

// transitionSources is the authoritative table of states each trigger may
// fire from. Guards beyond the source-state check live with the operations;
// this table is what makes illegal moves unrepresentable.
var transitionSources = map[Trigger][]domain.Status{
	TriggerSubmit: {domain.StatusDraft},
	TriggerUpdateHousehold: {
		domain.StatusDraft,
		domain.StatusSubmitted,
		domain.StatusUnderReview,
		domain.StatusPendingDocuments,
		domain.StatusSocialVisit,
		domain.StatusTechnicalAnalysis,
	},
	TriggerRecordDocument: {
		domain.StatusDraft,
		domain.StatusSubmitted,
		domain.StatusUnderReview,
		domain.StatusPendingDocuments,
	},
	TriggerCheckEligibility: {
		domain.StatusUnderReview,
		domain.StatusSocialVisit,
		domain.StatusTechnicalAnalysis,
	},
	TriggerRecordScore: {
		domain.StatusUnderReview,
		domain.StatusSocialVisit,
		domain.StatusTechnicalAnalysis,
	},
	TriggerRecordAnalysis:    {domain.StatusTechnicalAnalysis},
	TriggerBeginReview:       {domain.StatusSubmitted},
	TriggerRequestDocuments:  {domain.StatusUnderReview},
	TriggerDocumentsComplete: {domain.StatusPendingDocuments},
	TriggerScheduleVisit:     {domain.StatusUnderReview},
	TriggerRecordVisit:       {domain.StatusSocialVisit},
	TriggerDecide:            {domain.StatusTechnicalAnalysis},
	TriggerEnqueue:           {domain.StatusApproved},
	TriggerOfferUnit:         {domain.StatusWaitingList},
	TriggerAcceptOffer:       {domain.StatusAllocated},
	TriggerRejectOffer:       {domain.StatusAllocated},
	TriggerExpireOffer:       {domain.StatusAllocated},
	TriggerSignContract:      {domain.StatusAllocated},
	TriggerFileAppeal:        {domain.StatusRejected},
	TriggerDecideAppeal:      {domain.StatusUnderReview},
	TriggerCancel: {
		domain.StatusDraft,
		domain.StatusSubmitted,
		domain.StatusUnderReview,
		domain.StatusPendingDocuments,
		domain.StatusSocialVisit,
		domain.StatusTechnicalAnalysis,
		domain.StatusApproved,
		domain.StatusWaitingList,
		// ALLOCATED is cancellable until the contract is signed; that guard
		// is checked by the cancel operation itself.
		domain.StatusAllocated,
	},
}

// allowedFrom reports whether the trigger may fire from the given status.
func allowedFrom(status domain.Status, trigger Trigger) bool {
	for _, source := range transitionSources[trigger] {
		if source == status {
			return true
		}
	}
	return false
}

// invalidTransition builds the error for a refused attempt. It always names
// the current state, the attempted trigger, and the unmet guard; attempts
// never silently no-op.
func invalidTransition(status domain.Status, trigger Trigger, guard string) error {
	return dErrors.Newf(dErrors.CodeInvalidTransition,
		"cannot %s from %s: %s", trigger, status, guard)
}

// guardSourceState is the common first guard of every operation.
func guardSourceState(app *domain.Application, trigger Trigger) error {
	if allowedFrom(app.Status, trigger) {
		return nil
	}
	return invalidTransition(app.Status, trigger, "trigger not defined for this state")
}
