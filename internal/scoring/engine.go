// Package scoring ranks eligible applications. The engine is a generic
// weighted sum over named priority predicates; the weights are program
// configuration, never constants in the logic.
package scoring

import (
	"time"

	"habita/internal/domain"
)

// Criterion names used in score breakdowns.
const (
	CriterionSingleParent   = "singleParent"
	CriterionElderlyMember  = "elderlyMember"
	CriterionDisabledMember = "disabledMember"
	CriterionUrgency        = "housingUrgency"
	CriterionYearsWaiting   = "yearsWaiting"
)

// DefaultWeights is the municipal default policy. Programs may override any
// weight.
func DefaultWeights() domain.ScoringWeights {
	return domain.ScoringWeights{
		SingleParent:     20,
		ElderlyMember:    15,
		DisabledMember:   20,
		UrgencyHigh:      15,
		UrgencyEmergency: 30,
		PerYearWaiting:   3,
		MaxWaitingYears:  5,
	}
}

// Result is a computed priority score with its per-criterion contributions.
type Result struct {
	Score     int
	Breakdown map[string]int
}

// Score computes the 0-100 priority value for an application. It is
// deterministic: identical snapshots and weights always produce identical
// results. Callers apply it only to applications that passed eligibility;
// ties between equal scores are broken downstream by earlier submission date.
func Score(app *domain.Application, weights domain.ScoringWeights) Result {
	breakdown := make(map[string]int)

	if app.Applicant.SingleParent || app.Applicant.FemaleHeadOfHousehold {
		breakdown[CriterionSingleParent] = weights.SingleParent
	}
	if app.HasElderlyMember() {
		breakdown[CriterionElderlyMember] = weights.ElderlyMember
	}
	if app.HasDisabledMember() {
		breakdown[CriterionDisabledMember] = weights.DisabledMember
	}
	switch app.Applicant.Urgency {
	case domain.UrgencyHigh:
		breakdown[CriterionUrgency] = weights.UrgencyHigh
	case domain.UrgencyEmergency:
		breakdown[CriterionUrgency] = weights.UrgencyEmergency
	}
	if years := app.Applicant.YearsOnPriorLists; years > 0 {
		if weights.MaxWaitingYears > 0 && years > weights.MaxWaitingYears {
			years = weights.MaxWaitingYears
		}
		breakdown[CriterionYearsWaiting] = years * weights.PerYearWaiting
	}

	total := 0
	for _, points := range breakdown {
		total += points
	}
	if total > 100 {
		total = 100
	}
	return Result{Score: total, Breakdown: breakdown}
}

// Less orders two scored applications for waiting-list rank: higher score
// first, earlier submission first on ties. The submission-date tie-break is
// stable and monotonic so re-ranking never reorders equal-score peers.
func Less(scoreA int, submittedA time.Time, scoreB int, submittedB time.Time) bool {
	if scoreA != scoreB {
		return scoreA > scoreB
	}
	return submittedA.Before(submittedB)
}
