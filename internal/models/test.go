package models

import "time"

// QuestionKind enumerates the supported question types.
const (
	QuestionKindChoice = "choice"
	QuestionKindCode   = "code"
)

// Test is a published exam definition. Immutable once attempts exist.
type Test struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	Title           string     `gorm:"size:255;not null" json:"title"`
	Description     string     `gorm:"type:text" json:"description"`
	DurationSeconds int        `gorm:"not null" json:"duration_seconds"`
	Published       bool       `gorm:"default:false" json:"published"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	Questions       []Question `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"questions,omitempty"`
}

// Question belongs to a test. Kind-specific columns are nullable for the
// other kind: choice questions use OptionA..D + CorrectOption, code questions
// use LanguageID + StarterCode.
type Question struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	TestID        uint      `gorm:"not null;index" json:"test_id"`
	Kind          string    `gorm:"size:16;not null" json:"kind"`
	Prompt        string    `gorm:"type:text;not null" json:"prompt"`
	MaxPoints     int       `gorm:"not null" json:"max_points"`
	Position      int       `gorm:"default:0" json:"position"`
	OptionA       string    `gorm:"size:512" json:"option_a,omitempty"`
	OptionB       string    `gorm:"size:512" json:"option_b,omitempty"`
	OptionC       string    `gorm:"size:512" json:"option_c,omitempty"`
	OptionD       string    `gorm:"size:512" json:"option_d,omitempty"`
	CorrectOption string    `gorm:"size:1" json:"-"`
	LanguageID    string    `gorm:"size:32" json:"language_id,omitempty"`
	StarterCode   string    `gorm:"type:text" json:"starter_code,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// IsChoice reports whether the question is multiple choice.
func (q Question) IsChoice() bool {
	return q.Kind == QuestionKindChoice
}
