package service

import (
	"context"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"

	"github.com/proctorly/exam-api/internal/models"
	"github.com/proctorly/exam-api/pkg/ai"
)

// Canned feedback for scores produced without a model round trip.
const (
	feedbackTrivial        = "Submission is empty, contains only comments, or is identical to the provided template. No points awarded."
	feedbackFallbackPassed = "Automated review was unavailable; a flat award was applied because the code executed successfully."
	feedbackFallbackFailed = "Automated review was unavailable and the code did not execute successfully. No points awarded."
)

// GradeOutcome is the grading result applied to an answer. Points are always
// within [0, maxPoints]; grading never fails, it degrades.
type GradeOutcome struct {
	Points   int
	Feedback string
	Detail   map[string]interface{}
	Fallback bool
}

// GradingService scores code answers. Trivial submissions are rejected
// locally, model responses are schema-validated at the boundary, and any
// adapter failure degrades to a deterministic fallback so scoring always
// produces a number.
type GradingService interface {
	Grade(ctx context.Context, question models.Question, sourceText string, outcome ExecutionOutcome) GradeOutcome
}

type gradingService struct {
	evaluator ai.Evaluator
	languages ExecutionService
	sanitizer *bluemonday.Policy
	logger    zerolog.Logger
}

// NewGradingService constructs the grading adapter. evaluator may be nil; in
// that case every grade takes the fallback path.
func NewGradingService(evaluator ai.Evaluator, languages ExecutionService, logger zerolog.Logger) GradingService {
	return &gradingService{
		evaluator: evaluator,
		languages: languages,
		sanitizer: bluemonday.StrictPolicy(),
		logger:    logger.With().Str("component", "grading_service").Logger(),
	}
}

func (s *gradingService) Grade(ctx context.Context, question models.Question, sourceText string, outcome ExecutionOutcome) GradeOutcome {
	if s.isTrivial(question, sourceText) {
		return GradeOutcome{Points: 0, Feedback: feedbackTrivial, Fallback: true}
	}

	if s.evaluator == nil {
		return s.fallback(question, outcome)
	}

	result, err := s.evaluator.Evaluate(ctx, ai.GradingInput{
		Prompt:           question.Prompt,
		LanguageID:       question.LanguageID,
		StarterCode:      question.StarterCode,
		SubmissionSource: sourceText,
		Verdict:          outcome.Verdict,
		RuntimeOutput:    outcome.Output,
		MaxPoints:        question.MaxPoints,
	})
	if err != nil {
		s.logger.Warn().Err(err).Uint("question_id", question.ID).Msg("grading model unavailable, using fallback")
		return s.fallback(question, outcome)
	}

	detail := result.Detail
	if len(result.Suggestions) > 0 {
		if detail == nil {
			detail = make(map[string]interface{}, 1)
		}
		detail["suggestions"] = result.Suggestions
	}

	return GradeOutcome{
		Points:   result.Score,
		Feedback: s.sanitizer.Sanitize(result.Feedback),
		Detail:   detail,
	}
}

// isTrivial reports whether the submission must be scored zero without a
// network round trip: empty, comment-only, or byte-identical to the
// unmodified template.
func (s *gradingService) isTrivial(question models.Question, sourceText string) bool {
	trimmed := strings.TrimSpace(sourceText)
	if trimmed == "" {
		return true
	}
	if sourceText == question.StarterCode {
		return true
	}

	commentPrefix := "//"
	if lang, ok := s.languages.Language(question.LanguageID); ok && lang.CommentPrefix != "" {
		commentPrefix = lang.CommentPrefix
	}

	for _, line := range strings.Split(trimmed, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, commentPrefix) {
			continue
		}
		return false
	}
	return true
}

// fallback awards a small flat score iff the verdict indicates a successful
// run, otherwise zero.
func (s *gradingService) fallback(question models.Question, outcome ExecutionOutcome) GradeOutcome {
	if outcome.Verdict == models.VerdictOK {
		points := question.MaxPoints / 5
		if points < 1 {
			points = 1
		}
		return GradeOutcome{Points: points, Feedback: feedbackFallbackPassed, Fallback: true}
	}
	return GradeOutcome{Points: 0, Feedback: feedbackFallbackFailed, Fallback: true}
}
