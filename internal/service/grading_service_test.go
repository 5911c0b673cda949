package service

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/proctorly/exam-api/internal/models"
	"github.com/proctorly/exam-api/pkg/ai"
)

type stubEvaluator struct {
	result ai.GradingResult
	err    error
	calls  int
}

func (e *stubEvaluator) Evaluate(ctx context.Context, input ai.GradingInput) (ai.GradingResult, error) {
	e.calls++
	return e.result, e.err
}

func codeQuestion() models.Question {
	return models.Question{
		ID:          3,
		Kind:        models.QuestionKindCode,
		MaxPoints:   10,
		LanguageID:  "python",
		StarterCode: "# write your solution here\n",
	}
}

func TestGradeTrivialSubmissionsSkipTheModel(t *testing.T) {
	evaluator := &stubEvaluator{}
	svc := NewGradingService(evaluator, newExecService(&stubExecutor{}), zerolog.Nop())
	question := codeQuestion()

	cases := []struct {
		name   string
		source string
	}{
		{"empty", ""},
		{"whitespace only", "   \n\t\n"},
		{"identical to template", question.StarterCode},
		{"comments only", "# step one\n\n# step two\n"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			outcome := svc.Grade(context.Background(), question, tc.source, ExecutionOutcome{Verdict: models.VerdictOK})
			require.Zero(t, outcome.Points)
			require.True(t, outcome.Fallback)
		})
	}
	require.Zero(t, evaluator.calls)
}

func TestGradeFallbackWithoutEvaluator(t *testing.T) {
	svc := NewGradingService(nil, newExecService(&stubExecutor{}), zerolog.Nop())
	question := codeQuestion()

	passed := svc.Grade(context.Background(), question, "print(42)", ExecutionOutcome{Verdict: models.VerdictOK})
	require.Equal(t, 2, passed.Points) // 10 / 5
	require.True(t, passed.Fallback)

	failed := svc.Grade(context.Background(), question, "print(42)", ExecutionOutcome{Verdict: models.VerdictRuntimeError})
	require.Zero(t, failed.Points)
	require.True(t, failed.Fallback)

	// Small questions still earn at least one point on a passing run.
	small := question
	small.MaxPoints = 3
	outcome := svc.Grade(context.Background(), small, "print(1)", ExecutionOutcome{Verdict: models.VerdictOK})
	require.Equal(t, 1, outcome.Points)
}

func TestGradeEvaluatorFailureDegradesToFallback(t *testing.T) {
	evaluator := &stubEvaluator{err: errors.New("rate limited")}
	svc := NewGradingService(evaluator, newExecService(&stubExecutor{}), zerolog.Nop())

	outcome := svc.Grade(context.Background(), codeQuestion(), "print(42)", ExecutionOutcome{Verdict: models.VerdictOK})
	require.Equal(t, 1, evaluator.calls)
	require.True(t, outcome.Fallback)
	require.Equal(t, 2, outcome.Points)
}

func TestGradeSanitizesModelFeedback(t *testing.T) {
	evaluator := &stubEvaluator{result: ai.GradingResult{
		Score:       8,
		Feedback:    "<b>Solid</b> solution<script>alert(1)</script>",
		Suggestions: []string{"handle empty input"},
	}}
	svc := NewGradingService(evaluator, newExecService(&stubExecutor{}), zerolog.Nop())

	outcome := svc.Grade(context.Background(), codeQuestion(), "print(42)", ExecutionOutcome{Verdict: models.VerdictOK})
	require.False(t, outcome.Fallback)
	require.Equal(t, 8, outcome.Points)
	require.Equal(t, "Solid solution", outcome.Feedback)
	require.Equal(t, []string{"handle empty input"}, outcome.Detail["suggestions"])
}
