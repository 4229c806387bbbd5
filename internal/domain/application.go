// Package domain holds the housing-benefit lifecycle records. Types here are
// plain data; all mutation goes through the application state machine.
package domain

import (
	"time"

	id "habita/pkg/domain"
)

// Status is the closed set of lifecycle states. The transition table in the
// application package is the only legal way to move between them.
type Status string

const (
	StatusDraft             Status = "DRAFT"
	StatusSubmitted         Status = "SUBMITTED"
	StatusUnderReview       Status = "UNDER_REVIEW"
	StatusPendingDocuments  Status = "PENDING_DOCUMENTS"
	StatusSocialVisit       Status = "SOCIAL_VISIT"
	StatusTechnicalAnalysis Status = "TECHNICAL_ANALYSIS"
	StatusApproved          Status = "APPROVED"
	StatusWaitingList       Status = "WAITING_LIST"
	StatusAllocated         Status = "ALLOCATED"
	StatusRejected          Status = "REJECTED"
	StatusCancelled         Status = "CANCELLED"
)

// Terminal reports whether the status ends the lifecycle. REJECTED is
// terminal unless an appeal reopens it; ALLOCATED becomes immutable once the
// contract is signed.
func (s Status) Terminal() bool {
	switch s {
	case StatusAllocated, StatusRejected, StatusCancelled:
		return true
	}
	return false
}

// HousingSituation describes the applicant's current dwelling arrangement.
type HousingSituation string

const (
	HousingRented    HousingSituation = "RENTED"
	HousingOwned     HousingSituation = "OWNED"
	HousingIrregular HousingSituation = "IRREGULAR"
	HousingHomeless  HousingSituation = "HOMELESS"
)

// UrgencyTier ranks how pressing the applicant's housing situation is.
type UrgencyTier string

const (
	UrgencyLow       UrgencyTier = "LOW"
	UrgencyMedium    UrgencyTier = "MEDIUM"
	UrgencyHigh      UrgencyTier = "HIGH"
	UrgencyEmergency UrgencyTier = "EMERGENCY"
)

// Applicant is the citizen profile snapshot carried by an application.
type Applicant struct {
	ID                    id.ApplicantID   `json:"applicantId"`
	FullName              string           `json:"fullName"`
	NationalID            string           `json:"nationalId"`
	Email                 string           `json:"email"`
	Phone                 string           `json:"phone"`
	HousingSituation      HousingSituation `json:"housingSituation"`
	Urgency               UrgencyTier      `json:"urgency"`
	YearsInCity           int              `json:"yearsInCity"`
	OwnsProperty          bool             `json:"ownsProperty"`
	ReceivedBenefitBefore bool             `json:"receivedBenefitBefore"`
	SingleParent          bool             `json:"singleParent"`
	FemaleHeadOfHousehold bool             `json:"femaleHeadOfHousehold"`
	YearsOnPriorLists     int              `json:"yearsOnPriorLists"`
}

// FamilyMember is one entry of the declared household composition.
type FamilyMember struct {
	FullName      string  `json:"fullName"`
	Relationship  string  `json:"relationship"`
	Age           int     `json:"age"`
	MonthlyIncome float64 `json:"monthlyIncome"`
	Disabled      bool    `json:"disabled"`
}

// DocumentType names a required document category for a program.
type DocumentType string

const (
	DocumentIdentity          DocumentType = "IDENTITY"
	DocumentIncomeProof       DocumentType = "INCOME_PROOF"
	DocumentResidencyProof    DocumentType = "RESIDENCY_PROOF"
	DocumentFamilyComposition DocumentType = "FAMILY_COMPOSITION"
)

// DocumentRecord tracks one submitted document. The file itself lives in the
// external store; Handle is its opaque reference.
type DocumentRecord struct {
	Type        DocumentType `json:"type"`
	Handle      string       `json:"handle"`
	Submitted   bool         `json:"submitted"`
	Verified    bool         `json:"verified"`
	SubmittedAt time.Time    `json:"submittedAt"`
}

// EligibilityCriterion is one pass/fail rule with its supporting detail, so
// rejection letters can cite the specific reason.
type EligibilityCriterion struct {
	Meets  bool   `json:"meets"`
	Detail string `json:"detail"`
}

// EligibilityResult is the full verdict. Overall Meets is the AND of the four
// criteria and is always recomputable from the profile; it is never stored
// apart from its inputs.
type EligibilityResult struct {
	Meets             bool                 `json:"meets"`
	Income            EligibilityCriterion `json:"incomeRequirement"`
	Residency         EligibilityCriterion `json:"residencyRequirement"`
	PropertyOwnership EligibilityCriterion `json:"propertyOwnership"`
	PreviousBenefits  EligibilityCriterion `json:"previousBenefits"`
	EvaluatedAt       time.Time            `json:"evaluatedAt"`
}

// FailingCriteria lists the names of criteria that did not pass.
func (r EligibilityResult) FailingCriteria() []string {
	var failing []string
	for _, c := range []struct {
		name string
		crit EligibilityCriterion
	}{
		{"incomeRequirement", r.Income},
		{"residencyRequirement", r.Residency},
		{"propertyOwnership", r.PropertyOwnership},
		{"previousBenefits", r.PreviousBenefits},
	} {
		if !c.crit.Meets {
			failing = append(failing, c.name)
		}
	}
	return failing
}

// SocialVisitReport records the home visit performed during review.
type SocialVisitReport struct {
	ScheduledFor time.Time `json:"scheduledFor"`
	VisitedAt    time.Time `json:"visitedAt"`
	Visitor      string    `json:"visitor"`
	Summary      string    `json:"summary"`
}

// TechnicalAnalysis records the technical verdict feeding the decision.
type TechnicalAnalysis struct {
	Favorable  bool      `json:"favorable"`
	Verdict    string    `json:"verdict"`
	Analyst    string    `json:"analyst"`
	AnalyzedAt time.Time `json:"analyzedAt"`
}

// Evaluation aggregates everything computed about an application during
// review. Score is frozen once the application is approved.
type Evaluation struct {
	Eligibility *EligibilityResult `json:"eligibility,omitempty"`
	Score       int                `json:"score"`
	Breakdown   map[string]int     `json:"breakdown,omitempty"`
	ScoredAt    time.Time          `json:"scoredAt,omitzero"`
	SocialVisit *SocialVisitReport `json:"socialVisit,omitempty"`
	Technical   *TechnicalAnalysis `json:"technicalAnalysis,omitempty"`
}

// WaitingListEntry mirrors the application's slot in the per-program queue.
// Present iff status == WAITING_LIST.
type WaitingListEntry struct {
	Position   int       `json:"position"`
	EnqueuedAt time.Time `json:"enqueuedAt"`
}

// Allocation is one tentative unit assignment. Accepted stays nil until the
// applicant responds or the deadline expires.
type Allocation struct {
	UnitID             id.UnitID  `json:"unitId"`
	OfferedAt          time.Time  `json:"offeredAt"`
	AcceptanceDeadline time.Time  `json:"acceptanceDeadline"`
	Accepted           *bool      `json:"accepted"`
	ContractSignedAt   *time.Time `json:"contractSignedAt,omitempty"`
}

// AppealStatus is the sub-state of a filed appeal.
type AppealStatus string

const (
	AppealPending  AppealStatus = "PENDING"
	AppealApproved AppealStatus = "APPROVED"
	AppealDenied   AppealStatus = "DENIED"
)

// Appeal is the post-rejection reopening request. At most one per
// application; denial is final.
type Appeal struct {
	FiledAt       time.Time    `json:"filedAt"`
	Reasons       string       `json:"reasons"`
	Documents     []string     `json:"documents,omitempty"`
	RejectedAt    time.Time    `json:"rejectedAt"`
	Status        AppealStatus `json:"status"`
	DecidedAt     *time.Time   `json:"decidedAt,omitempty"`
	Justification string       `json:"justification,omitempty"`
}

// Application is one citizen's request for one housing-benefit program.
type Application struct {
	ID        id.ApplicationID `json:"applicationId"`
	ProgramID id.ProgramID     `json:"programId"`
	Applicant Applicant        `json:"applicant"`
	Family    []FamilyMember   `json:"family"`
	Documents []DocumentRecord `json:"documents"`

	Status     Status     `json:"status"`
	Evaluation Evaluation `json:"evaluation"`

	WaitingList  *WaitingListEntry `json:"waitingList,omitempty"`
	Allocation   *Allocation       `json:"allocation,omitempty"`
	OfferHistory []Allocation      `json:"offerHistory,omitempty"`
	Appeal       *Appeal           `json:"appeal,omitempty"`

	RejectionReasons []string  `json:"rejectionReasons,omitempty"`
	RejectedAt       time.Time `json:"rejectedAt,omitzero"`
	CancelReason     string    `json:"cancelReason,omitempty"`

	CreatedAt   time.Time `json:"createdAt"`
	SubmittedAt time.Time `json:"submittedAt,omitzero"`
	UpdatedAt   time.Time `json:"updatedAt"`

	// Version backs the optimistic concurrency check: a transition written
	// against a stale version fails instead of overwriting.
	Version int64 `json:"version"`
}

// FamilyIncome is the sum of all declared member incomes.
func (a *Application) FamilyIncome() float64 {
	var total float64
	for _, m := range a.Family {
		total += m.MonthlyIncome
	}
	return total
}

// PerCapitaIncome is the family income divided by household size.
func (a *Application) PerCapitaIncome() float64 {
	if len(a.Family) == 0 {
		return 0
	}
	return a.FamilyIncome() / float64(len(a.Family))
}

// HasElderlyMember reports whether any member is 65 or older.
func (a *Application) HasElderlyMember() bool {
	for _, m := range a.Family {
		if m.Age >= 65 {
			return true
		}
	}
	return false
}

// HasDisabledMember reports whether any member declared a disability.
func (a *Application) HasDisabledMember() bool {
	for _, m := range a.Family {
		if m.Disabled {
			return true
		}
	}
	return false
}

// DocumentOfType returns the record for the given type, or nil.
func (a *Application) DocumentOfType(t DocumentType) *DocumentRecord {
	for i := range a.Documents {
		if a.Documents[i].Type == t {
			return &a.Documents[i]
		}
	}
	return nil
}

// ContractSigned reports whether the current allocation reached the contract
// stage, which blocks cancellation.
func (a *Application) ContractSigned() bool {
	return a.Allocation != nil && a.Allocation.ContractSignedAt != nil
}

// Clone returns a deep copy so stores can hand out snapshots without
// aliasing internal slices.
func (a *Application) Clone() *Application {
	clone := *a
	clone.Family = append([]FamilyMember(nil), a.Family...)
	clone.Documents = append([]DocumentRecord(nil), a.Documents...)
	clone.OfferHistory = append([]Allocation(nil), a.OfferHistory...)
	clone.RejectionReasons = append([]string(nil), a.RejectionReasons...)
	if a.Evaluation.Eligibility != nil {
		elig := *a.Evaluation.Eligibility
		clone.Evaluation.Eligibility = &elig
	}
	if a.Evaluation.Breakdown != nil {
		breakdown := make(map[string]int, len(a.Evaluation.Breakdown))
		for k, v := range a.Evaluation.Breakdown {
			breakdown[k] = v
		}
		clone.Evaluation.Breakdown = breakdown
	}
	if a.Evaluation.SocialVisit != nil {
		visit := *a.Evaluation.SocialVisit
		clone.Evaluation.SocialVisit = &visit
	}
	if a.Evaluation.Technical != nil {
		technical := *a.Evaluation.Technical
		clone.Evaluation.Technical = &technical
	}
	if a.WaitingList != nil {
		entry := *a.WaitingList
		clone.WaitingList = &entry
	}
	if a.Allocation != nil {
		alloc := *a.Allocation
		if a.Allocation.Accepted != nil {
			accepted := *a.Allocation.Accepted
			alloc.Accepted = &accepted
		}
		if a.Allocation.ContractSignedAt != nil {
			signed := *a.Allocation.ContractSignedAt
			alloc.ContractSignedAt = &signed
		}
		clone.Allocation = &alloc
	}
	if a.Appeal != nil {
		appeal := *a.Appeal
		appeal.Documents = append([]string(nil), a.Appeal.Documents...)
		if a.Appeal.DecidedAt != nil {
			decided := *a.Appeal.DecidedAt
			appeal.DecidedAt = &decided
		}
		clone.Appeal = &appeal
	}
	return &clone
}
