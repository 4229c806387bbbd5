package application

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/asaskevich/govalidator"

	"habita/internal/domain"
	"habita/internal/eligibility"
	"habita/internal/notify"
	"habita/internal/scoring"
	id "habita/pkg/domain"
	dErrors "habita/pkg/domain-errors"
	"habita/pkg/requestcontext"
)

// Submit moves a draft into SUBMITTED once the profile is complete.
func (s *Service) Submit(ctx context.Context, appID id.ApplicationID) (*domain.Application, error) {
	return s.apply(ctx, appID, TriggerSubmit, func(app *domain.Application, _ *domain.Program) (mutation, error) {
		if missing := missingProfileFields(app); len(missing) > 0 {
			return mutation{}, dErrors.Newf(dErrors.CodeInvalidInput,
				"profile incomplete: %s", strings.Join(missing, ", "))
		}
		app.Status = domain.StatusSubmitted
		app.SubmittedAt = requestcontext.Now(ctx)
		return mutation{event: domain.EventSubmitted, notice: notify.EventSubmitted}, nil
	})
}

func missingProfileFields(app *domain.Application) []string {
	var missing []string
	if strings.TrimSpace(app.Applicant.FullName) == "" {
		missing = append(missing, "fullName")
	}
	if strings.TrimSpace(app.Applicant.NationalID) == "" {
		missing = append(missing, "nationalId")
	}
	if !govalidator.IsEmail(app.Applicant.Email) {
		missing = append(missing, "email")
	}
	if strings.TrimSpace(app.Applicant.Phone) == "" {
		missing = append(missing, "phone")
	}
	if app.Applicant.HousingSituation == "" {
		missing = append(missing, "housingSituation")
	}
	if app.Applicant.Urgency == "" {
		missing = append(missing, "urgency")
	}
	if len(app.Family) == 0 {
		missing = append(missing, "family")
	}
	return missing
}

// UpdateHousehold replaces the declared family composition and urgency tier.
// Any eligibility verdict or score computed so far is refreshed: before
// approval these values track the profile, they freeze only at the decision.
func (s *Service) UpdateHousehold(ctx context.Context, appID id.ApplicationID, family []domain.FamilyMember, urgency domain.UrgencyTier) (*domain.Application, error) {
	return s.apply(ctx, appID, TriggerUpdateHousehold, func(app *domain.Application, program *domain.Program) (mutation, error) {
		if len(family) == 0 {
			return mutation{}, dErrors.New(dErrors.CodeInvalidInput, "family composition must not be empty")
		}
		app.Family = family
		if urgency != "" {
			app.Applicant.Urgency = urgency
		}
		if app.Evaluation.Eligibility != nil {
			now := requestcontext.Now(ctx)
			verdict := eligibility.Evaluate(app, program.Rules, now)
			app.Evaluation.Eligibility = &verdict
			scored := scoring.Score(app, program.Weights)
			app.Evaluation.Score = scored.Score
			app.Evaluation.Breakdown = scored.Breakdown
			app.Evaluation.ScoredAt = now
		}
		return mutation{
			event:  domain.EventHouseholdUpdated,
			detail: fmt.Sprintf("%d members, urgency %s", len(app.Family), app.Applicant.Urgency),
		}, nil
	})
}

// BeginReview claims a submitted application for case work.
func (s *Service) BeginReview(ctx context.Context, appID id.ApplicationID) (*domain.Application, error) {
	return s.apply(ctx, appID, TriggerBeginReview, func(app *domain.Application, _ *domain.Program) (mutation, error) {
		app.Status = domain.StatusUnderReview
		return mutation{event: domain.EventReviewStarted}, nil
	})
}

// RequestDocuments parks the application until the missing paperwork arrives.
func (s *Service) RequestDocuments(ctx context.Context, appID id.ApplicationID) (*domain.Application, error) {
	return s.apply(ctx, appID, TriggerRequestDocuments, func(app *domain.Application, program *domain.Program) (mutation, error) {
		missing, err := s.missingDocuments(ctx, app, program)
		if err != nil {
			return mutation{}, err
		}
		if len(missing) == 0 {
			return mutation{}, invalidTransition(app.Status, TriggerRequestDocuments,
				"all required documents already verified")
		}
		app.Status = domain.StatusPendingDocuments
		return mutation{
			event:  domain.EventDocumentsRequested,
			detail: joinDocumentTypes(missing),
			notice: notify.EventDocumentsAsked,
		}, nil
	})
}

// RecordDocument stores the arrival of one document. Verification happens in
// the external document store; this only tracks the submission.
func (s *Service) RecordDocument(ctx context.Context, appID id.ApplicationID, docType domain.DocumentType, handle string) (*domain.Application, error) {
	return s.apply(ctx, appID, TriggerRecordDocument, func(app *domain.Application, _ *domain.Program) (mutation, error) {
		if handle == "" {
			return mutation{}, dErrors.New(dErrors.CodeInvalidInput, "document handle is required")
		}
		record := domain.DocumentRecord{
			Type:        docType,
			Handle:      handle,
			Submitted:   true,
			SubmittedAt: requestcontext.Now(ctx),
		}
		if existing := app.DocumentOfType(docType); existing != nil {
			*existing = record
		} else {
			app.Documents = append(app.Documents, record)
		}
		return mutation{event: domain.EventDocumentRecorded, detail: string(docType)}, nil
	})
}

// CompleteDocuments returns a parked application to review once every
// required document is verified. Incomplete paperwork is refused with the
// full list of what is still missing.
func (s *Service) CompleteDocuments(ctx context.Context, appID id.ApplicationID) (*domain.Application, error) {
	return s.apply(ctx, appID, TriggerDocumentsComplete, func(app *domain.Application, program *domain.Program) (mutation, error) {
		missing, err := s.missingDocuments(ctx, app, program)
		if err != nil {
			return mutation{}, err
		}
		if len(missing) > 0 {
			return mutation{}, dErrors.Newf(dErrors.CodeDocumentIncomplete,
				"documents not verified: %s", joinDocumentTypes(missing))
		}
		app.Status = domain.StatusUnderReview
		return mutation{event: domain.EventDocumentsComplete}, nil
	})
}

// ScheduleVisit books the home visit. All required documents must be
// verified first.
func (s *Service) ScheduleVisit(ctx context.Context, appID id.ApplicationID, when time.Time, visitor string) (*domain.Application, error) {
	return s.apply(ctx, appID, TriggerScheduleVisit, func(app *domain.Application, program *domain.Program) (mutation, error) {
		missing, err := s.missingDocuments(ctx, app, program)
		if err != nil {
			return mutation{}, err
		}
		if len(missing) > 0 {
			return mutation{}, dErrors.Newf(dErrors.CodeDocumentIncomplete,
				"documents not verified: %s", joinDocumentTypes(missing))
		}
		app.Status = domain.StatusSocialVisit
		app.Evaluation.SocialVisit = &domain.SocialVisitReport{
			ScheduledFor: when,
			Visitor:      visitor,
		}
		return mutation{
			event:  domain.EventVisitScheduled,
			detail: when.Format(time.RFC3339),
			notice: notify.EventVisitScheduled,
		}, nil
	})
}

// RecordVisit files the visit report and hands the case to technical
// analysis.
func (s *Service) RecordVisit(ctx context.Context, appID id.ApplicationID, summary string) (*domain.Application, error) {
	return s.apply(ctx, appID, TriggerRecordVisit, func(app *domain.Application, _ *domain.Program) (mutation, error) {
		if app.Evaluation.SocialVisit == nil {
			return mutation{}, invalidTransition(app.Status, TriggerRecordVisit, "no visit scheduled")
		}
		app.Evaluation.SocialVisit.VisitedAt = requestcontext.Now(ctx)
		app.Evaluation.SocialVisit.Summary = summary
		app.Status = domain.StatusTechnicalAnalysis
		return mutation{event: domain.EventVisitRecorded}, nil
	})
}

// CheckEligibility runs the program rules against the current snapshot and
// stamps the verdict. Staff may run it at any review stage; the final
// decision re-runs it so the stamped verdict is never stale.
func (s *Service) CheckEligibility(ctx context.Context, appID id.ApplicationID) (*domain.Application, error) {
	return s.apply(ctx, appID, TriggerCheckEligibility, func(app *domain.Application, program *domain.Program) (mutation, error) {
		verdict := eligibility.Evaluate(app, program.Rules, requestcontext.Now(ctx))
		app.Evaluation.Eligibility = &verdict
		detail := "meets all criteria"
		if !verdict.Meets {
			detail = strings.Join(verdict.FailingCriteria(), "; ")
		}
		return mutation{event: domain.EventEligibilityChecked, detail: detail}, nil
	})
}

// RecordScore computes and stamps the priority score. Only applications with
// a passing eligibility verdict are scored.
func (s *Service) RecordScore(ctx context.Context, appID id.ApplicationID) (*domain.Application, error) {
	return s.apply(ctx, appID, TriggerRecordScore, func(app *domain.Application, program *domain.Program) (mutation, error) {
		if app.Evaluation.Eligibility == nil {
			return mutation{}, invalidTransition(app.Status, TriggerRecordScore, "eligibility not checked")
		}
		if !app.Evaluation.Eligibility.Meets {
			return mutation{}, dErrors.New(dErrors.CodeIneligibleApplication,
				"only eligible applications are scored")
		}
		scored := scoring.Score(app, program.Weights)
		app.Evaluation.Score = scored.Score
		app.Evaluation.Breakdown = scored.Breakdown
		app.Evaluation.ScoredAt = requestcontext.Now(ctx)
		return mutation{
			event:  domain.EventScoreRecorded,
			detail: fmt.Sprintf("score %d", scored.Score),
		}, nil
	})
}

// RecordAnalysis files the technical verdict. The application stays in
// TECHNICAL_ANALYSIS until a decision is taken.
func (s *Service) RecordAnalysis(ctx context.Context, appID id.ApplicationID, favorable bool, verdict string) (*domain.Application, error) {
	return s.apply(ctx, appID, TriggerRecordAnalysis, func(app *domain.Application, _ *domain.Program) (mutation, error) {
		app.Evaluation.Technical = &domain.TechnicalAnalysis{
			Favorable:  favorable,
			Verdict:    verdict,
			Analyst:    requestcontext.Actor(ctx),
			AnalyzedAt: requestcontext.Now(ctx),
		}
		return mutation{event: domain.EventAnalysisRecorded, detail: verdict}, nil
	})
}

// Decide closes the review: APPROVED when eligibility holds and the technical
// verdict is favorable, REJECTED otherwise with every reason recorded.
func (s *Service) Decide(ctx context.Context, appID id.ApplicationID) (*domain.Application, error) {
	return s.apply(ctx, appID, TriggerDecide, func(app *domain.Application, program *domain.Program) (mutation, error) {
		if app.Evaluation.SocialVisit == nil || app.Evaluation.SocialVisit.VisitedAt.IsZero() {
			return mutation{}, invalidTransition(app.Status, TriggerDecide, "social visit not recorded")
		}
		if app.Evaluation.Technical == nil {
			return mutation{}, invalidTransition(app.Status, TriggerDecide, "technical analysis not recorded")
		}
		return s.decideOutcome(ctx, app, program), nil
	})
}

// decideOutcome stamps the eligibility verdict and score, then resolves
// APPROVED or REJECTED. Shared between the regular decision and an approved
// appeal, which re-runs the same path.
func (s *Service) decideOutcome(ctx context.Context, app *domain.Application, program *domain.Program) mutation {
	now := requestcontext.Now(ctx)
	verdict := eligibility.Evaluate(app, program.Rules, now)
	app.Evaluation.Eligibility = &verdict
	scored := scoring.Score(app, program.Weights)
	app.Evaluation.Score = scored.Score
	app.Evaluation.Breakdown = scored.Breakdown
	app.Evaluation.ScoredAt = now

	if verdict.Meets && app.Evaluation.Technical.Favorable {
		app.Status = domain.StatusApproved
		app.RejectionReasons = nil
		return mutation{
			event:  domain.EventApproved,
			detail: fmt.Sprintf("score %d", app.Evaluation.Score),
			notice: notify.EventApproved,
		}
	}

	reasons := verdict.FailingCriteria()
	if !app.Evaluation.Technical.Favorable {
		reasons = append(reasons, "technicalAnalysis: "+app.Evaluation.Technical.Verdict)
	}
	app.Status = domain.StatusRejected
	app.RejectedAt = now
	app.RejectionReasons = reasons
	return mutation{
		event:  domain.EventRejected,
		detail: strings.Join(reasons, "; "),
		notice: notify.EventRejected,
	}
}

// missingDocuments lists required document types not yet verified, refreshing
// each record's verified flag from the document store along the way.
func (s *Service) missingDocuments(ctx context.Context, app *domain.Application, program *domain.Program) ([]domain.DocumentType, error) {
	var missing []domain.DocumentType
	for _, docType := range program.RequiredDocuments {
		record := app.DocumentOfType(docType)
		if record != nil && record.Verified {
			continue
		}
		if s.verifier != nil && record != nil && record.Submitted {
			verified, err := s.verifier.IsVerified(ctx, app.ID, docType)
			if err != nil {
				return nil, dErrors.Wrap(dErrors.CodeInternal, "document verification lookup failed", err)
			}
			if verified {
				record.Verified = true
				continue
			}
		}
		missing = append(missing, docType)
	}
	sort.Slice(missing, func(i, j int) bool { return missing[i] < missing[j] })
	return missing, nil
}

func joinDocumentTypes(types []domain.DocumentType) string {
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}
	return strings.Join(names, ", ")
}
