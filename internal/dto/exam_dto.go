package dto

import "github.com/proctorly/exam-api/internal/models"

// TestSummaryResponse lists a test without its questions.
type TestSummaryResponse struct {
	ID              uint   `json:"id"`
	Title           string `json:"title"`
	Description     string `json:"description"`
	DurationSeconds int    `json:"duration_seconds"`
	QuestionCount   int    `json:"question_count"`
}

// QuestionResponse is a question as shown to the candidate. Correct options
// are never serialised.
type QuestionResponse struct {
	ID          uint   `json:"id"`
	Kind        string `json:"kind"`
	Prompt      string `json:"prompt"`
	MaxPoints   int    `json:"max_points"`
	Position    int    `json:"position"`
	OptionA     string `json:"option_a,omitempty"`
	OptionB     string `json:"option_b,omitempty"`
	OptionC     string `json:"option_c,omitempty"`
	OptionD     string `json:"option_d,omitempty"`
	LanguageID  string `json:"language_id,omitempty"`
	StarterCode string `json:"starter_code,omitempty"`
}

// TestDetailResponse carries a test with its candidate-facing questions.
type TestDetailResponse struct {
	ID              uint               `json:"id"`
	Title           string             `json:"title"`
	Description     string             `json:"description"`
	DurationSeconds int                `json:"duration_seconds"`
	Questions       []QuestionResponse `json:"questions"`
}

// NewQuestionResponse maps a question model to its candidate view.
func NewQuestionResponse(q models.Question) QuestionResponse {
	return QuestionResponse{
		ID:          q.ID,
		Kind:        q.Kind,
		Prompt:      q.Prompt,
		MaxPoints:   q.MaxPoints,
		Position:    q.Position,
		OptionA:     q.OptionA,
		OptionB:     q.OptionB,
		OptionC:     q.OptionC,
		OptionD:     q.OptionD,
		LanguageID:  q.LanguageID,
		StarterCode: q.StarterCode,
	}
}

// NewTestDetailResponse maps a test model to its candidate view.
func NewTestDetailResponse(test models.Test) TestDetailResponse {
	questions := make([]QuestionResponse, 0, len(test.Questions))
	for _, q := range test.Questions {
		questions = append(questions, NewQuestionResponse(q))
	}

	return TestDetailResponse{
		ID:              test.ID,
		Title:           test.Title,
		Description:     test.Description,
		DurationSeconds: test.DurationSeconds,
		Questions:       questions,
	}
}

// NewTestSummaryResponse maps a test model to its listing view.
func NewTestSummaryResponse(test models.Test) TestSummaryResponse {
	return TestSummaryResponse{
		ID:              test.ID,
		Title:           test.Title,
		Description:     test.Description,
		DurationSeconds: test.DurationSeconds,
		QuestionCount:   len(test.Questions),
	}
}
