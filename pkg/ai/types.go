package ai

import "context"

// GradingInput contains the artefacts the model needs to score one code
// answer.
type GradingInput struct {
	Prompt           string
	LanguageID       string
	StarterCode      string
	SubmissionSource string
	Verdict          string
	RuntimeOutput    string
	MaxPoints        int
}

// GradingResult is the structured feedback returned by the model. Score is
// an integer award in [0, MaxPoints].
type GradingResult struct {
	Score       int                    `json:"score"`
	Feedback    string                 `json:"feedback"`
	Suggestions []string               `json:"suggestions,omitempty"`
	Detail      map[string]interface{} `json:"detail,omitempty"`
}

// Evaluator describes a model capable of grading code submissions.
type Evaluator interface {
	Evaluate(ctx context.Context, input GradingInput) (GradingResult, error)
}
