package models

import (
	"time"

	"gorm.io/datatypes"
)

// Submit reasons recorded on a completed attempt.
const (
	SubmitReasonManual     = "manual"
	SubmitReasonTimeUp     = "time_up"
	SubmitReasonFullscreen = "fullscreen_violation"
	SubmitReasonVisibility = "visibility_violation"
)

// Verdicts recorded against a code answer. An empty verdict means the answer
// was never executed.
const (
	VerdictNotEvaluated = ""
	VerdictOK           = "ok"
	VerdictCompileError = "compile_error"
	VerdictRuntimeError = "runtime_error"
	VerdictTimeout      = "timeout"
	VerdictServiceError = "service_error"
)

// Attempt is a user's single timed instance of taking a test. There is one
// mutable row per (test, user) pair; CompletedAt is set exactly once and a
// completed row is never mutated again.
type Attempt struct {
	ID               uint            `gorm:"primaryKey" json:"id"`
	TestID           uint            `gorm:"not null;uniqueIndex:idx_attempt_test_user" json:"test_id"`
	UserID           uint            `gorm:"not null;uniqueIndex:idx_attempt_test_user" json:"user_id"`
	StartedAt        time.Time       `gorm:"not null" json:"started_at"`
	CompletedAt      *time.Time      `json:"completed_at,omitempty"`
	Score            int             `gorm:"default:0" json:"score"`
	TimeTakenMinutes int             `gorm:"default:0" json:"time_taken_minutes"`
	SubmitReason     string          `gorm:"size:32" json:"submit_reason,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
	Answers          []AttemptAnswer `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"answers,omitempty"`
}

// IsCompleted reports whether the attempt has reached its terminal state.
func (a Attempt) IsCompleted() bool {
	return a.CompletedAt != nil
}

// AttemptAnswer is the persisted per-question state of an attempt. Rows are
// upserted on (attempt_id, question_id) so repeated grading of the same
// question overwrites rather than duplicates.
type AttemptAnswer struct {
	ID             uint              `gorm:"primaryKey" json:"id"`
	AttemptID      uint              `gorm:"not null;uniqueIndex:idx_answer_attempt_question" json:"attempt_id"`
	QuestionID     uint              `gorm:"not null;uniqueIndex:idx_answer_attempt_question" json:"question_id"`
	SelectedOption string            `gorm:"size:1" json:"selected_option,omitempty"`
	SourceText     string            `gorm:"type:text" json:"source_text,omitempty"`
	Verdict        string            `gorm:"size:32" json:"verdict,omitempty"`
	PointsEarned   int               `gorm:"default:0" json:"points_earned"`
	Feedback       string            `gorm:"type:text" json:"feedback,omitempty"`
	GradingDetail  datatypes.JSONMap `json:"grading_detail,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}
