// Package eligibility applies program rules to an application snapshot.
// This is pure domain logic - no I/O, no side effects. The function receives
// all data it needs as arguments and returns the verdict.
package eligibility

import (
	"fmt"
	"time"

	"habita/internal/domain"
)

// Evaluate produces the four-criterion verdict. Every criterion is evaluated
// even after one fails: rejection letters must cite each specific unmet rule,
// never a bare "ineligible".
func Evaluate(app *domain.Application, rules domain.EligibilityRules, now time.Time) domain.EligibilityResult {
	result := domain.EligibilityResult{
		Income:            incomeRequirement(app, rules),
		Residency:         residencyRequirement(app, rules),
		PropertyOwnership: propertyOwnership(app, rules),
		PreviousBenefits:  previousBenefits(app, rules),
		EvaluatedAt:       now,
	}
	result.Meets = result.Income.Meets &&
		result.Residency.Meets &&
		result.PropertyOwnership.Meets &&
		result.PreviousBenefits.Meets
	return result
}

func incomeRequirement(app *domain.Application, rules domain.EligibilityRules) domain.EligibilityCriterion {
	income := app.FamilyIncome()
	if income <= rules.MaxIncome {
		return domain.EligibilityCriterion{
			Meets:  true,
			Detail: fmt.Sprintf("family income %.2f within limit %.2f", income, rules.MaxIncome),
		}
	}
	return domain.EligibilityCriterion{
		Detail: fmt.Sprintf("family income %.2f exceeds limit %.2f", income, rules.MaxIncome),
	}
}

func residencyRequirement(app *domain.Application, rules domain.EligibilityRules) domain.EligibilityCriterion {
	if app.Applicant.YearsInCity >= rules.MinResidencyYears {
		return domain.EligibilityCriterion{
			Meets:  true,
			Detail: fmt.Sprintf("%d years in city, minimum %d", app.Applicant.YearsInCity, rules.MinResidencyYears),
		}
	}
	return domain.EligibilityCriterion{
		Detail: fmt.Sprintf("%d years in city below minimum %d", app.Applicant.YearsInCity, rules.MinResidencyYears),
	}
}

func propertyOwnership(app *domain.Application, rules domain.EligibilityRules) domain.EligibilityCriterion {
	if !app.Applicant.OwnsProperty {
		return domain.EligibilityCriterion{Meets: true, Detail: "applicant owns no property"}
	}
	if rules.AllowsPropertyOwners {
		return domain.EligibilityCriterion{Meets: true, Detail: "program admits property owners"}
	}
	return domain.EligibilityCriterion{Detail: "applicant owns property"}
}

func previousBenefits(app *domain.Application, rules domain.EligibilityRules) domain.EligibilityCriterion {
	if !app.Applicant.ReceivedBenefitBefore {
		return domain.EligibilityCriterion{Meets: true, Detail: "no prior housing benefit"}
	}
	if rules.AllowDualBenefit {
		return domain.EligibilityCriterion{Meets: true, Detail: "program allows dual benefit"}
	}
	return domain.EligibilityCriterion{Detail: "applicant already received a housing benefit"}
}
