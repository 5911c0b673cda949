package session

import (
	"sync"

	"github.com/proctorly/exam-api/internal/models"
)

// AnswerState is the live per-question state of the active attempt. Points
// are monotonically overwritten by grading events, never accumulated.
type AnswerState struct {
	QuestionID     uint
	Kind           string
	MaxPoints      int
	SelectedOption string
	SourceText     string
	Verdict        string
	PointsEarned   int
	Feedback       string
	GradingDetail  map[string]interface{}
}

// AnswerStore is a pure in-memory container for the answers of one attempt.
// It performs no I/O and does not know about attempt completion; callers
// stop mutating it once the owning session is terminal.
type AnswerStore struct {
	mu      sync.RWMutex
	order   []uint
	answers map[uint]*AnswerState
}

// NewAnswerStore seeds one state per question. Code questions default their
// source text to the language starter template.
func NewAnswerStore(questions []models.Question) *AnswerStore {
	store := &AnswerStore{answers: make(map[uint]*AnswerState, len(questions))}
	for _, q := range questions {
		state := &AnswerState{
			QuestionID: q.ID,
			Kind:       q.Kind,
			MaxPoints:  q.MaxPoints,
		}
		if q.Kind == models.QuestionKindCode {
			state.SourceText = q.StarterCode
		}
		store.answers[q.ID] = state
		store.order = append(store.order, q.ID)
	}
	return store
}

// SetChoice records the selected option for a choice question.
func (s *AnswerStore) SetChoice(questionID uint, option string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if state, ok := s.answers[questionID]; ok {
		state.SelectedOption = option
	}
}

// SetSource records the current source text for a code question.
func (s *AnswerStore) SetSource(questionID uint, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if state, ok := s.answers[questionID]; ok {
		state.SourceText = text
	}
}

// ApplyGradingResult overwrites the grading outcome for a question. Points
// are clamped into [0, MaxPoints].
func (s *AnswerStore) ApplyGradingResult(questionID uint, verdict string, points int, feedback string, detail map[string]interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.answers[questionID]
	if !ok {
		return
	}
	if points < 0 {
		points = 0
	}
	if points > state.MaxPoints {
		points = state.MaxPoints
	}
	state.Verdict = verdict
	state.PointsEarned = points
	state.Feedback = feedback
	state.GradingDetail = detail
}

// Get returns a copy of the state for one question.
func (s *AnswerStore) Get(questionID uint) (AnswerState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.answers[questionID]
	if !ok {
		return AnswerState{}, false
	}
	return *state, true
}

// Snapshot returns copies of all answer states in question order.
func (s *AnswerStore) Snapshot() []AnswerState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snapshot := make([]AnswerState, 0, len(s.order))
	for _, id := range s.order {
		snapshot = append(snapshot, *s.answers[id])
	}
	return snapshot
}

// TotalPoints sums the current points across all questions.
func (s *AnswerStore) TotalPoints() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := 0
	for _, state := range s.answers {
		total += state.PointsEarned
	}
	return total
}
