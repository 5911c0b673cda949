package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/proctorly/exam-api/internal/models"
)

// Lifecycle errors surfaced to callers.
var (
	// ErrSubmitInProgress means another caller holds the submission guard;
	// the observer returns without side effects.
	ErrSubmitInProgress = errors.New("submission already in progress")

	// ErrAlreadyCompleted means a terminal attempt record exists; callers
	// should redirect to the results read path instead of erroring.
	ErrAlreadyCompleted = errors.New("attempt already completed")

	// ErrQuestionNotFound means the referenced question is not part of the
	// session's test.
	ErrQuestionNotFound = errors.New("question not part of this test")
)

// State is the attempt lifecycle position.
type State int

// Lifecycle states. Submitting is transient and guarded: it is entered
// synchronously before any persistence I/O begins.
const (
	StateNotStarted State = iota
	StateInProgress
	StateSubmitting
	StateCompleted
)

func (s State) String() string {
	switch s {
	case StateInProgress:
		return "in_progress"
	case StateSubmitting:
		return "submitting"
	case StateCompleted:
		return "completed"
	default:
		return "not_started"
	}
}

// AttemptStore is the persistence collaborator the session writes through.
// Implementations must provide conflict-safe attempt creation and answer
// upserts, and must report duplicate completion as ErrAlreadyCompleted.
type AttemptStore interface {
	CreateOrGet(ctx context.Context, testID, userID uint, startedAt time.Time) (models.Attempt, error)
	SaveProgress(ctx context.Context, attemptID uint, answers []models.AttemptAnswer, score int) error
	Complete(ctx context.Context, attempt *models.Attempt, answers []models.AttemptAnswer) error
	GetCompleted(ctx context.Context, testID, userID uint) (models.Attempt, bool, error)
}

// Config tunes per-session behaviour.
type Config struct {
	GraceSeconds     int
	AutosaveInterval time.Duration
}

// Session owns the state machine of one timed attempt: idempotent attempt
// persistence, live score aggregation, integrity enforcement and at-most-one
// terminal submission. The submission guard is the sole serialization point
// between the timer, the integrity monitor and manual submission; none of
// them knows about the others.
type Session struct {
	ID        string
	Test      models.Test
	UserID    uint
	StartedAt time.Time

	Answers *AnswerStore
	Timer   *Timer
	Monitor *IntegrityMonitor

	store       AttemptStore
	clock       Clock
	logger      zerolog.Logger
	questions   map[uint]models.Question
	onCompleted func(models.Attempt)

	// mu protects state and attempt. The Submit guard is checked and set
	// under it in a single critical section with no suspension points.
	mu      sync.Mutex
	state   State
	attempt models.Attempt
}

// New builds a session for the given test and user. The attempt row is not
// persisted yet; EnsureAttempt creates or fetches it.
func New(test models.Test, userID uint, startedAt time.Time, store AttemptStore, clock Clock, cfg Config, logger zerolog.Logger) *Session {
	if clock == nil {
		clock = SystemClock()
	}

	s := &Session{
		ID:        uuid.NewString(),
		Test:      test,
		UserID:    userID,
		StartedAt: startedAt,
		Answers:   NewAnswerStore(test.Questions),
		store:     store,
		clock:     clock,
		logger:    logger.With().Str("component", "exam_session").Uint("test_id", test.ID).Uint("user_id", userID).Logger(),
		questions: make(map[uint]models.Question, len(test.Questions)),
		state:     StateNotStarted,
	}

	for _, q := range test.Questions {
		s.questions[q.ID] = q
	}

	submit := func(reason string) {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if _, err := s.Submit(ctx, reason); err != nil &&
			!errors.Is(err, ErrSubmitInProgress) && !errors.Is(err, ErrAlreadyCompleted) {
			s.logger.Error().Err(err).Str("reason", reason).Msg("forced submission failed")
		}
	}

	s.Timer = NewTimer(startedAt, test.DurationSeconds, submit)
	s.Monitor = NewIntegrityMonitor(cfg.GraceSeconds, submit, logger)

	return s
}

// OnCompleted registers a hook invoked once after a successful terminal
// submission, outside the guard.
func (s *Session) OnCompleted(hook func(models.Attempt)) {
	s.mu.Lock()
	s.onCompleted = hook
	s.mu.Unlock()
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// AttemptID returns the persisted attempt id, or zero before EnsureAttempt.
func (s *Session) AttemptID() uint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempt.ID
}

// Remaining reports the whole seconds left on the attempt clock.
func (s *Session) Remaining() int {
	return s.Timer.Remaining(s.clock.Now())
}

// Question resolves a question of the session's test.
func (s *Session) Question(questionID uint) (models.Question, error) {
	q, ok := s.questions[questionID]
	if !ok {
		return models.Question{}, ErrQuestionNotFound
	}
	return q, nil
}

// EnsureAttempt idempotently obtains or creates the persisted attempt row.
// Safe to call repeatedly; a concurrent creator's uniqueness conflict is
// resolved to the existing row by the store.
func (s *Session) EnsureAttempt(ctx context.Context) (models.Attempt, error) {
	s.mu.Lock()
	if s.attempt.ID != 0 {
		attempt := s.attempt
		s.mu.Unlock()
		return attempt, nil
	}
	s.mu.Unlock()

	attempt, err := s.store.CreateOrGet(ctx, s.Test.ID, s.UserID, s.StartedAt)
	if err != nil {
		return models.Attempt{}, err
	}

	s.mu.Lock()
	if s.attempt.ID == 0 {
		s.attempt = attempt
		if s.state == StateNotStarted {
			s.state = StateInProgress
		}
	}
	result := s.attempt
	s.mu.Unlock()
	return result, nil
}

// RecordProgress persists the current answer snapshot and the advisory score
// (sum of current per-question points) without touching completion state.
// It is a no-op once submission has started: ErrSubmitInProgress while the
// guard is held, ErrAlreadyCompleted once the attempt is terminal. The two
// are distinct because a failed in-flight submission releases the guard and
// the attempt stays open.
func (s *Session) RecordProgress(ctx context.Context) (int, error) {
	s.mu.Lock()
	switch s.state {
	case StateSubmitting:
		s.mu.Unlock()
		return 0, ErrSubmitInProgress
	case StateCompleted:
		s.mu.Unlock()
		return 0, ErrAlreadyCompleted
	}
	s.mu.Unlock()

	attempt, err := s.EnsureAttempt(ctx)
	if err != nil {
		return 0, err
	}

	rows, score := s.answerRows(false)
	if err := s.store.SaveProgress(ctx, attempt.ID, rows, score); err != nil {
		if errors.Is(err, ErrAlreadyCompleted) {
			s.markCompleted(models.Attempt{})
			return 0, ErrAlreadyCompleted
		}
		return 0, err
	}
	return score, nil
}

// Submit is the single terminal entry point, invoked uniformly by the timer,
// the integrity monitor and the manual control. The guard is checked and set
// in one synchronous step with no suspension in between, so concurrent
// triggers yield exactly one real submission.
func (s *Session) Submit(ctx context.Context, reason string) (models.Attempt, error) {
	s.mu.Lock()
	switch s.state {
	case StateSubmitting:
		s.mu.Unlock()
		return models.Attempt{}, ErrSubmitInProgress
	case StateCompleted:
		attempt := s.attempt
		s.mu.Unlock()
		return attempt, ErrAlreadyCompleted
	}
	s.state = StateSubmitting
	s.mu.Unlock()

	attempt, err := s.finalize(ctx, reason)
	if err != nil {
		if errors.Is(err, ErrAlreadyCompleted) {
			s.markCompleted(attempt)
			return attempt, ErrAlreadyCompleted
		}
		// Persistence failed: release the guard so the user can retry.
		// Partial state must not be treated as final.
		s.mu.Lock()
		s.state = StateInProgress
		s.mu.Unlock()
		return models.Attempt{}, err
	}

	s.markCompleted(attempt)
	s.logger.Info().Uint("attempt_id", attempt.ID).Str("reason", reason).Int("score", attempt.Score).Msg("attempt submitted")

	s.mu.Lock()
	hook := s.onCompleted
	s.mu.Unlock()
	if hook != nil {
		hook(attempt)
	}

	return attempt, nil
}

func (s *Session) finalize(ctx context.Context, reason string) (models.Attempt, error) {
	if existing, found, err := s.store.GetCompleted(ctx, s.Test.ID, s.UserID); err != nil {
		return models.Attempt{}, err
	} else if found {
		return existing, ErrAlreadyCompleted
	}

	attempt, err := s.EnsureAttempt(ctx)
	if err != nil {
		return models.Attempt{}, err
	}

	now := s.clock.Now()
	elapsed := s.Test.DurationSeconds - s.Timer.Remaining(now)
	rows, score := s.answerRows(true)

	completedAt := now
	attempt.CompletedAt = &completedAt
	attempt.Score = score
	attempt.TimeTakenMinutes = (elapsed + 59) / 60
	attempt.SubmitReason = reason

	if err := s.store.Complete(ctx, &attempt, rows); err != nil {
		if errors.Is(err, ErrAlreadyCompleted) {
			if existing, found, getErr := s.store.GetCompleted(ctx, s.Test.ID, s.UserID); getErr == nil && found {
				return existing, ErrAlreadyCompleted
			}
			return attempt, ErrAlreadyCompleted
		}
		return models.Attempt{}, err
	}

	attempt.Answers = rows
	return attempt, nil
}

// answerRows renders the answer store into persistable rows. When final is
// true, choice questions are scored by comparing the selected option to the
// correct label; the comparison deliberately happens only at submission so
// the answer store stays backend-agnostic.
func (s *Session) answerRows(final bool) ([]models.AttemptAnswer, int) {
	snapshot := s.Answers.Snapshot()
	rows := make([]models.AttemptAnswer, 0, len(snapshot))
	score := 0

	for _, state := range snapshot {
		points := state.PointsEarned
		if final && state.Kind == models.QuestionKindChoice {
			question := s.questions[state.QuestionID]
			if state.SelectedOption != "" && state.SelectedOption == question.CorrectOption {
				points = question.MaxPoints
			} else {
				points = 0
			}
		}

		rows = append(rows, models.AttemptAnswer{
			QuestionID:     state.QuestionID,
			SelectedOption: state.SelectedOption,
			SourceText:     state.SourceText,
			Verdict:        state.Verdict,
			PointsEarned:   points,
			Feedback:       state.Feedback,
			GradingDetail:  state.GradingDetail,
		})
		score += points
	}

	return rows, score
}

// markCompleted transitions to the terminal state and tears down the timer
// and monitor. The submission guard stays conceptually set forever: a
// completed session rejects all further mutation.
func (s *Session) markCompleted(attempt models.Attempt) {
	s.mu.Lock()
	s.state = StateCompleted
	if attempt.ID != 0 {
		s.attempt = attempt
	}
	s.mu.Unlock()

	s.Timer.Stop()
	s.Monitor.Close()
}

// Tick advances the session by one second of wall-clock: timer first, then
// the integrity countdown. Ticks are synchronous; only the forced submission
// they may trigger performs I/O.
func (s *Session) Tick() {
	s.Timer.Tick(s.clock.Now())
	s.Monitor.Tick()
}
