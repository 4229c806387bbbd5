package domain

import (
	"time"

	id "habita/pkg/domain"
)

// EligibilityRules are the per-program thresholds the evaluator applies.
type EligibilityRules struct {
	MaxIncome            float64 `json:"maxIncome"`
	MinResidencyYears    int     `json:"minResidencyYears"`
	AllowsPropertyOwners bool    `json:"allowsPropertyOwners"`
	AllowDualBenefit     bool    `json:"allowDualBenefit"`
}

// ScoringWeights configure the point contribution of each priority
// predicate. Weights live on the program so policy changes never touch the
// engine.
type ScoringWeights struct {
	SingleParent     int `json:"singleParent"`
	ElderlyMember    int `json:"elderlyMember"`
	DisabledMember   int `json:"disabledMember"`
	UrgencyHigh      int `json:"urgencyHigh"`
	UrgencyEmergency int `json:"urgencyEmergency"`
	PerYearWaiting   int `json:"perYearWaiting"`
	MaxWaitingYears  int `json:"maxWaitingYears"`
}

// Program is one housing-benefit program: eligibility thresholds, scoring
// policy, required paperwork, and the deadlines that gate appeals and offers.
type Program struct {
	ID                   id.ProgramID     `json:"programId"`
	Name                 string           `json:"name"`
	Rules                EligibilityRules `json:"rules"`
	Weights              ScoringWeights   `json:"weights"`
	RequiredDocuments    []DocumentType   `json:"requiredDocuments"`
	AppealPeriodDays     int              `json:"appealPeriodDays"`
	AcceptancePeriodDays int              `json:"acceptancePeriodDays"`
}

// AppealDeadline is the last instant an appeal can be filed for a rejection
// stamped at rejectedAt.
func (p *Program) AppealDeadline(rejectedAt time.Time) time.Time {
	return rejectedAt.AddDate(0, 0, p.AppealPeriodDays)
}
