package dto

import (
	"time"

	"github.com/proctorly/exam-api/internal/models"
)

// StartSessionResponse is returned when a session is created or resumed.
type StartSessionResponse struct {
	SessionID        string             `json:"session_id"`
	AttemptID        uint               `json:"attempt_id"`
	TestID           uint               `json:"test_id"`
	StartedAt        time.Time          `json:"started_at"`
	RemainingSeconds int                `json:"remaining_seconds"`
	Questions        []QuestionResponse `json:"questions"`
}

// AnswerUpdateRequest records a candidate edit for one question. Exactly one
// of SelectedOption or SourceText is meaningful depending on question kind.
type AnswerUpdateRequest struct {
	SelectedOption string `json:"selected_option" validate:"omitempty,oneof=A B C D"`
	SourceText     string `json:"source_text"`
}

// RunCodeResponse carries the execution verdict and the advisory grade for a
// code question.
type RunCodeResponse struct {
	QuestionID   uint   `json:"question_id"`
	Verdict      string `json:"verdict"`
	TimeMs       int64  `json:"time_ms"`
	MemoryKB     int64  `json:"memory_kb"`
	Output       string `json:"output"`
	PointsEarned int    `json:"points_earned"`
	Feedback     string `json:"feedback"`
}

// HeartbeatResponse reports live session state back to the client.
type HeartbeatResponse struct {
	AttemptID        uint   `json:"attempt_id"`
	RemainingSeconds int    `json:"remaining_seconds"`
	Score            int    `json:"score"`
	MonitorState     string `json:"monitor_state"`
	WarningSeconds   int    `json:"warning_seconds,omitempty"`
	Completed        bool   `json:"completed"`
}

// SubmitRequest optionally names the trigger for a manual submission.
type SubmitRequest struct {
	Reason string `json:"reason" validate:"omitempty,oneof=manual time_up fullscreen_violation visibility_violation"`
}

// SignalEvent is one integrity signal reported by the client over the
// session websocket.
type SignalEvent struct {
	Signal    string `json:"signal" validate:"required,oneof=fullscreen visibility"`
	Compliant bool   `json:"compliant"`
}

// SignalNotice is pushed to the client while a warning countdown runs or
// when the monitor forces submission.
type SignalNotice struct {
	Type             string `json:"type"`
	Signal           string `json:"signal,omitempty"`
	RemainingSeconds int    `json:"remaining_seconds,omitempty"`
	Reason           string `json:"reason,omitempty"`
}

// AnswerResponse is the persisted per-question state as shown in results.
type AnswerResponse struct {
	QuestionID     uint                   `json:"question_id"`
	SelectedOption string                 `json:"selected_option,omitempty"`
	SourceText     string                 `json:"source_text,omitempty"`
	Verdict        string                 `json:"verdict,omitempty"`
	PointsEarned   int                    `json:"points_earned"`
	Feedback       string                 `json:"feedback,omitempty"`
	GradingDetail  map[string]interface{} `json:"grading_detail,omitempty"`
}

// AttemptResponse is a completed (or in-flight) attempt with its answers.
type AttemptResponse struct {
	ID               uint             `json:"id"`
	TestID           uint             `json:"test_id"`
	UserID           uint             `json:"user_id"`
	StartedAt        time.Time        `json:"started_at"`
	CompletedAt      *time.Time       `json:"completed_at,omitempty"`
	Score            int              `json:"score"`
	TimeTakenMinutes int              `json:"time_taken_minutes"`
	SubmitReason     string           `json:"submit_reason,omitempty"`
	Answers          []AnswerResponse `json:"answers"`
}

// NewAttemptResponse maps an attempt model with its answers.
func NewAttemptResponse(attempt models.Attempt) AttemptResponse {
	answers := make([]AnswerResponse, 0, len(attempt.Answers))
	for _, answer := range attempt.Answers {
		answers = append(answers, AnswerResponse{
			QuestionID:     answer.QuestionID,
			SelectedOption: answer.SelectedOption,
			SourceText:     answer.SourceText,
			Verdict:        answer.Verdict,
			PointsEarned:   answer.PointsEarned,
			Feedback:       answer.Feedback,
			GradingDetail:  answer.GradingDetail,
		})
	}

	return AttemptResponse{
		ID:               attempt.ID,
		TestID:           attempt.TestID,
		UserID:           attempt.UserID,
		StartedAt:        attempt.StartedAt,
		CompletedAt:      attempt.CompletedAt,
		Score:            attempt.Score,
		TimeTakenMinutes: attempt.TimeTakenMinutes,
		SubmitReason:     attempt.SubmitReason,
		Answers:          answers,
	}
}
