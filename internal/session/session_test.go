package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/proctorly/exam-api/internal/models"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(start time.Time) *fakeClock { return &fakeClock{now: start} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// stubStore is an in-memory AttemptStore for one (test, user) pair.
type stubStore struct {
	mu           sync.Mutex
	attempt      models.Attempt
	completed    bool
	completes    int
	saves        int
	lastScore    int
	failComplete error
}

func (s *stubStore) CreateOrGet(ctx context.Context, testID, userID uint, startedAt time.Time) (models.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.attempt.ID == 0 {
		s.attempt = models.Attempt{ID: 1, TestID: testID, UserID: userID, StartedAt: startedAt}
	}
	return s.attempt, nil
}

func (s *stubStore) SaveProgress(ctx context.Context, attemptID uint, answers []models.AttemptAnswer, score int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.completed {
		return ErrAlreadyCompleted
	}
	s.saves++
	s.lastScore = score
	return nil
}

func (s *stubStore) Complete(ctx context.Context, attempt *models.Attempt, answers []models.AttemptAnswer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.completed {
		return ErrAlreadyCompleted
	}
	if s.failComplete != nil {
		err := s.failComplete
		s.failComplete = nil
		return err
	}
	s.completed = true
	s.completes++
	s.attempt = *attempt
	return nil
}

func (s *stubStore) GetCompleted(ctx context.Context, testID, userID uint) (models.Attempt, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.completed {
		return models.Attempt{}, false, nil
	}
	return s.attempt, true, nil
}

func testExam() models.Test {
	return models.Test{
		ID:              10,
		Title:           "Algorithms Quiz",
		DurationSeconds: 300,
		Published:       true,
		Questions: []models.Question{
			{ID: 1, TestID: 10, Kind: models.QuestionKindChoice, MaxPoints: 5, CorrectOption: "B"},
			{ID: 2, TestID: 10, Kind: models.QuestionKindChoice, MaxPoints: 5, CorrectOption: "C"},
			{ID: 3, TestID: 10, Kind: models.QuestionKindCode, MaxPoints: 10, LanguageID: "python", StarterCode: "# solve"},
		},
	}
}

func newTestSession(t *testing.T, store AttemptStore, clock Clock) *Session {
	t.Helper()
	return New(testExam(), 42, clock.Now(), store, clock, Config{GraceSeconds: 10}, zerolog.Nop())
}

func TestSessionSubmitScoresChoicesOnlyAtCompletion(t *testing.T) {
	store := &stubStore{}
	clock := newFakeClock(time.Now())
	sess := newTestSession(t, store, clock)

	sess.Answers.SetChoice(1, "B") // correct
	sess.Answers.SetChoice(2, "A") // wrong
	sess.Answers.SetSource(3, "print(42)")
	sess.Answers.ApplyGradingResult(3, models.VerdictOK, 7, "solid", nil)

	// Advisory score before submission does not include choice points.
	score, err := sess.RecordProgress(context.Background())
	require.NoError(t, err)
	require.Equal(t, 7, score)

	clock.Advance(61 * time.Second)
	attempt, err := sess.Submit(context.Background(), models.SubmitReasonManual)
	require.NoError(t, err)
	require.Equal(t, 12, attempt.Score)
	require.Equal(t, models.SubmitReasonManual, attempt.SubmitReason)
	require.NotNil(t, attempt.CompletedAt)
	require.Equal(t, 2, attempt.TimeTakenMinutes) // 61s rounds up
	require.Len(t, attempt.Answers, 3)
	require.Equal(t, StateCompleted, sess.State())
}

func TestSessionSubmitExactlyOnceUnderConcurrency(t *testing.T) {
	store := &stubStore{}
	clock := newFakeClock(time.Now())
	sess := newTestSession(t, store, clock)

	const callers = 16
	var wg sync.WaitGroup
	errs := make([]error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = sess.Submit(context.Background(), models.SubmitReasonManual)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrSubmitInProgress), errors.Is(err, ErrAlreadyCompleted):
		default:
			t.Fatalf("unexpected submit error: %v", err)
		}
	}
	require.Equal(t, 1, succeeded)
	require.Equal(t, 1, store.completes)
}

func TestSessionSubmitRetriesAfterStoreFailure(t *testing.T) {
	store := &stubStore{failComplete: errors.New("connection reset")}
	clock := newFakeClock(time.Now())
	sess := newTestSession(t, store, clock)

	_, err := sess.Submit(context.Background(), models.SubmitReasonManual)
	require.Error(t, err)
	require.Equal(t, StateInProgress, sess.State())

	attempt, err := sess.Submit(context.Background(), models.SubmitReasonManual)
	require.NoError(t, err)
	require.NotNil(t, attempt.CompletedAt)
	require.Equal(t, 1, store.completes)
}

func TestSessionTimeUpForcesSubmission(t *testing.T) {
	store := &stubStore{}
	clock := newFakeClock(time.Now())
	sess := newTestSession(t, store, clock)

	sess.Answers.SetChoice(1, "B")

	clock.Advance(301 * time.Second)
	sess.Tick()

	require.Equal(t, StateCompleted, sess.State())
	require.Equal(t, models.SubmitReasonTimeUp, store.attempt.SubmitReason)
	require.Equal(t, 5, store.attempt.Score)

	// A second tick after completion is inert.
	sess.Tick()
	require.Equal(t, 1, store.completes)
}

func TestSessionIntegrityExpiryForcesSubmission(t *testing.T) {
	store := &stubStore{}
	clock := newFakeClock(time.Now())
	sess := newTestSession(t, store, clock)

	sess.Monitor.Observe(SignalFullscreen, false)
	for i := 0; i < 10; i++ {
		clock.Advance(time.Second)
		sess.Tick()
	}

	require.Equal(t, StateCompleted, sess.State())
	require.Equal(t, models.SubmitReasonFullscreen, store.attempt.SubmitReason)
}

func TestSessionIntegrityEnforcementSurvivesStoreFailure(t *testing.T) {
	store := &stubStore{failComplete: errors.New("connection reset")}
	clock := newFakeClock(time.Now())
	sess := newTestSession(t, store, clock)

	sess.Monitor.Observe(SignalFullscreen, false)
	for i := 0; i < 10; i++ {
		clock.Advance(time.Second)
		sess.Tick()
	}

	// The forced submission hit the store failure; the guard is released
	// but the attempt must not stay open unenforced.
	require.Equal(t, StateInProgress, sess.State())
	require.Zero(t, store.completes)

	clock.Advance(time.Second)
	sess.Tick()

	require.Equal(t, StateCompleted, sess.State())
	require.Equal(t, models.SubmitReasonFullscreen, store.attempt.SubmitReason)
	require.Equal(t, 1, store.completes)

	// Terminal now; further ticks are inert.
	clock.Advance(time.Second)
	sess.Tick()
	require.Equal(t, 1, store.completes)
}

// blockingStore parks Complete until released, to observe a session while
// the submission guard is held.
type blockingStore struct {
	stubStore
	entered chan struct{}
	release chan struct{}
}

func (s *blockingStore) Complete(ctx context.Context, attempt *models.Attempt, answers []models.AttemptAnswer) error {
	select {
	case s.entered <- struct{}{}:
	default:
	}
	<-s.release
	return s.stubStore.Complete(ctx, attempt, answers)
}

func TestSessionRecordProgressDistinguishesInFlightSubmission(t *testing.T) {
	store := &blockingStore{entered: make(chan struct{}, 1), release: make(chan struct{})}
	clock := newFakeClock(time.Now())
	sess := newTestSession(t, store, clock)

	_, err := sess.EnsureAttempt(context.Background())
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := sess.Submit(context.Background(), models.SubmitReasonManual)
		done <- err
	}()
	<-store.entered

	require.Equal(t, StateSubmitting, sess.State())
	_, err = sess.RecordProgress(context.Background())
	require.ErrorIs(t, err, ErrSubmitInProgress)

	close(store.release)
	require.NoError(t, <-done)

	_, err = sess.RecordProgress(context.Background())
	require.ErrorIs(t, err, ErrAlreadyCompleted)
}

func TestSessionRejectsMutationAfterCompletion(t *testing.T) {
	store := &stubStore{}
	clock := newFakeClock(time.Now())
	sess := newTestSession(t, store, clock)

	_, err := sess.Submit(context.Background(), models.SubmitReasonManual)
	require.NoError(t, err)

	_, err = sess.RecordProgress(context.Background())
	require.ErrorIs(t, err, ErrAlreadyCompleted)

	_, err = sess.Submit(context.Background(), models.SubmitReasonManual)
	require.ErrorIs(t, err, ErrAlreadyCompleted)
}

func TestSessionCompletionHookRunsOnce(t *testing.T) {
	store := &stubStore{}
	clock := newFakeClock(time.Now())
	sess := newTestSession(t, store, clock)

	hooks := 0
	sess.OnCompleted(func(models.Attempt) { hooks++ })

	_, err := sess.Submit(context.Background(), models.SubmitReasonManual)
	require.NoError(t, err)
	_, err = sess.Submit(context.Background(), models.SubmitReasonManual)
	require.ErrorIs(t, err, ErrAlreadyCompleted)

	require.Equal(t, 1, hooks)
}

func TestSessionEnsureAttemptIsIdempotent(t *testing.T) {
	store := &stubStore{}
	clock := newFakeClock(time.Now())
	sess := newTestSession(t, store, clock)

	first, err := sess.EnsureAttempt(context.Background())
	require.NoError(t, err)
	second, err := sess.EnsureAttempt(context.Background())
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, StateInProgress, sess.State())
}
