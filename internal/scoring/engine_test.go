package scoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"habita/internal/domain"
)

func TestScore(t *testing.T) {
	weights := DefaultWeights()

	t.Run("no predicates yields zero", func(t *testing.T) {
		result := Score(&domain.Application{}, weights)
		assert.Zero(t, result.Score)
		assert.Empty(t, result.Breakdown)
	})

	t.Run("single parent counts once with female head of household", func(t *testing.T) {
		app := &domain.Application{Applicant: domain.Applicant{
			SingleParent:          true,
			FemaleHeadOfHousehold: true,
		}}
		result := Score(app, weights)
		assert.Equal(t, weights.SingleParent, result.Score)
		assert.Equal(t, weights.SingleParent, result.Breakdown[CriterionSingleParent])
	})

	t.Run("elderly and disabled members contribute", func(t *testing.T) {
		app := &domain.Application{Family: []domain.FamilyMember{
			{Age: 70},
			{Age: 30, Disabled: true},
		}}
		result := Score(app, weights)
		assert.Equal(t, weights.ElderlyMember+weights.DisabledMember, result.Score)
	})

	t.Run("urgency tiers are mutually exclusive", func(t *testing.T) {
		high := Score(&domain.Application{Applicant: domain.Applicant{Urgency: domain.UrgencyHigh}}, weights)
		assert.Equal(t, weights.UrgencyHigh, high.Score)

		emergency := Score(&domain.Application{Applicant: domain.Applicant{Urgency: domain.UrgencyEmergency}}, weights)
		assert.Equal(t, weights.UrgencyEmergency, emergency.Score)

		medium := Score(&domain.Application{Applicant: domain.Applicant{Urgency: domain.UrgencyMedium}}, weights)
		assert.Zero(t, medium.Score)
	})

	t.Run("waiting years accrue and cap", func(t *testing.T) {
		app := &domain.Application{Applicant: domain.Applicant{YearsOnPriorLists: 3}}
		assert.Equal(t, 3*weights.PerYearWaiting, Score(app, weights).Score)

		app.Applicant.YearsOnPriorLists = 12
		assert.Equal(t, weights.MaxWaitingYears*weights.PerYearWaiting, Score(app, weights).Score)
	})

	t.Run("score clamps at 100", func(t *testing.T) {
		app := &domain.Application{
			Applicant: domain.Applicant{
				SingleParent:      true,
				Urgency:           domain.UrgencyEmergency,
				YearsOnPriorLists: 5,
			},
			Family: []domain.FamilyMember{{Age: 80, Disabled: true}},
		}
		heavy := domain.ScoringWeights{
			SingleParent:     40,
			ElderlyMember:    40,
			DisabledMember:   40,
			UrgencyEmergency: 40,
			PerYearWaiting:   10,
			MaxWaitingYears:  5,
		}
		result := Score(app, heavy)
		assert.Equal(t, 100, result.Score)
	})

	t.Run("deterministic for identical input", func(t *testing.T) {
		app := &domain.Application{
			Applicant: domain.Applicant{SingleParent: true, Urgency: domain.UrgencyHigh},
			Family:    []domain.FamilyMember{{Age: 67}},
		}
		first := Score(app, weights)
		for i := 0; i < 10; i++ {
			assert.Equal(t, first, Score(app, weights))
		}
	})
}

func TestLess(t *testing.T) {
	early := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	late := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)

	t.Run("higher score ranks first", func(t *testing.T) {
		assert.True(t, Less(90, late, 85, early))
		assert.False(t, Less(85, early, 90, late))
	})

	// Scenario: equal scores 85/85, submissions 2024-01-10 and 2024-01-05.
	t.Run("ties broken by earlier submission", func(t *testing.T) {
		assert.True(t, Less(85, early, 85, late))
		assert.False(t, Less(85, late, 85, early))
	})
}
