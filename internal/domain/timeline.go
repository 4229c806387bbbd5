package domain

import (
	"time"

	id "habita/pkg/domain"
)

// TimelineEvent names an entry in the per-application history log.
type TimelineEvent string

// One event per transition or recorded action. TransitionDenied is the
// diagnostic entry appended when a guard rejects an attempt, so audits can
// distinguish refused attempts from successful transitions.
const (
	EventCreated             TimelineEvent = "application_created"
	EventHouseholdUpdated    TimelineEvent = "household_updated"
	EventSubmitted           TimelineEvent = "application_submitted"
	EventReviewStarted       TimelineEvent = "review_started"
	EventDocumentsRequested  TimelineEvent = "documents_requested"
	EventDocumentRecorded    TimelineEvent = "document_recorded"
	EventDocumentsComplete   TimelineEvent = "documents_complete"
	EventEligibilityChecked  TimelineEvent = "eligibility_checked"
	EventScoreRecorded       TimelineEvent = "score_recorded"
	EventVisitScheduled      TimelineEvent = "social_visit_scheduled"
	EventVisitRecorded       TimelineEvent = "social_visit_recorded"
	EventAnalysisRecorded    TimelineEvent = "technical_analysis_recorded"
	EventApproved            TimelineEvent = "application_approved"
	EventRejected            TimelineEvent = "application_rejected"
	EventEnqueued            TimelineEvent = "waiting_list_entered"
	EventUnitOffered         TimelineEvent = "unit_offered"
	EventOfferAccepted       TimelineEvent = "offer_accepted"
	EventOfferRejected       TimelineEvent = "offer_rejected"
	EventOfferExpired        TimelineEvent = "offer_expired"
	EventContractSigned      TimelineEvent = "contract_signed"
	EventAppealFiled         TimelineEvent = "appeal_filed"
	EventAppealApproved      TimelineEvent = "appeal_approved"
	EventAppealDenied        TimelineEvent = "appeal_denied"
	EventCancelled           TimelineEvent = "application_cancelled"
	EventTransitionDenied    TimelineEvent = "transition_denied"
)

// TimelineEntry is one append-only history record. Every transition attempt,
// successful or refused, appends exactly one entry.
type TimelineEntry struct {
	Timestamp     time.Time        `json:"timestamp"`
	ApplicationID id.ApplicationID `json:"applicationId"`
	Event         TimelineEvent    `json:"event"`
	Actor         string           `json:"actor"`
	Detail        string           `json:"detail,omitempty"`
}
