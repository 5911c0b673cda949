package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/proctorly/exam-api/internal/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Test{}, &models.Question{}, &models.Attempt{}, &models.AttemptAnswer{}))
	return db
}

func TestAttemptCreateOrGetIsIdempotent(t *testing.T) {
	repo := NewAttemptRepository(newTestDB(t))
	ctx := context.Background()
	started := time.Now().UTC().Truncate(time.Second)

	first, err := repo.CreateOrGet(ctx, 10, 42, started)
	require.NoError(t, err)
	require.NotZero(t, first.ID)

	// A second start must return the same row with the original start time.
	second, err := repo.CreateOrGet(ctx, 10, 42, started.Add(time.Minute))
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.WithinDuration(t, started, second.StartedAt, time.Second)

	other, err := repo.CreateOrGet(ctx, 10, 7, started)
	require.NoError(t, err)
	require.NotEqual(t, first.ID, other.ID)
}

func TestAttemptSaveProgressUpsertsAnswers(t *testing.T) {
	repo := NewAttemptRepository(newTestDB(t))
	ctx := context.Background()

	attempt, err := repo.CreateOrGet(ctx, 10, 42, time.Now().UTC())
	require.NoError(t, err)

	err = repo.SaveProgress(ctx, attempt.ID, []models.AttemptAnswer{
		{QuestionID: 1, SelectedOption: "A"},
		{QuestionID: 3, SourceText: "print(1)", Verdict: models.VerdictRuntimeError},
	}, 0)
	require.NoError(t, err)

	// Re-saving the same questions overwrites rather than duplicating.
	err = repo.SaveProgress(ctx, attempt.ID, []models.AttemptAnswer{
		{QuestionID: 1, SelectedOption: "B"},
		{QuestionID: 3, SourceText: "print(42)", Verdict: models.VerdictOK, PointsEarned: 7},
	}, 7)
	require.NoError(t, err)

	stored, err := repo.GetByID(ctx, attempt.ID)
	require.NoError(t, err)
	require.Equal(t, 7, stored.Score)
	require.Len(t, stored.Answers, 2)
	require.Equal(t, "B", stored.Answers[0].SelectedOption)
	require.Equal(t, "print(42)", stored.Answers[1].SourceText)
	require.Equal(t, 7, stored.Answers[1].PointsEarned)
}

func TestAttemptCompleteIsTerminal(t *testing.T) {
	repo := NewAttemptRepository(newTestDB(t))
	ctx := context.Background()

	attempt, err := repo.CreateOrGet(ctx, 10, 42, time.Now().UTC())
	require.NoError(t, err)

	completedAt := time.Now().UTC()
	attempt.CompletedAt = &completedAt
	attempt.Score = 12
	attempt.TimeTakenMinutes = 2
	attempt.SubmitReason = models.SubmitReasonManual

	err = repo.Complete(ctx, &attempt, []models.AttemptAnswer{
		{QuestionID: 1, SelectedOption: "B", PointsEarned: 5},
	})
	require.NoError(t, err)

	// The duplicate terminal write affects zero rows.
	err = repo.Complete(ctx, &attempt, nil)
	require.ErrorIs(t, err, ErrAttemptAlreadyCompleted)

	// Progress writes are rejected once completed.
	err = repo.SaveProgress(ctx, attempt.ID, nil, 99)
	require.ErrorIs(t, err, ErrAttemptAlreadyCompleted)

	stored, err := repo.GetCompleted(ctx, 10, 42)
	require.NoError(t, err)
	require.Equal(t, 12, stored.Score)
	require.Equal(t, models.SubmitReasonManual, stored.SubmitReason)
	require.NotNil(t, stored.CompletedAt)
}

func TestAttemptGetCompletedIgnoresInFlight(t *testing.T) {
	repo := NewAttemptRepository(newTestDB(t))
	ctx := context.Background()

	_, err := repo.CreateOrGet(ctx, 10, 42, time.Now().UTC())
	require.NoError(t, err)

	_, err = repo.GetCompleted(ctx, 10, 42)
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestAttemptListByUserOrdersByStart(t *testing.T) {
	repo := NewAttemptRepository(newTestDB(t))
	ctx := context.Background()

	older, err := repo.CreateOrGet(ctx, 10, 42, time.Now().UTC().Add(-time.Hour))
	require.NoError(t, err)
	newer, err := repo.CreateOrGet(ctx, 11, 42, time.Now().UTC())
	require.NoError(t, err)

	attempts, err := repo.ListByUser(ctx, 42)
	require.NoError(t, err)
	require.Len(t, attempts, 2)
	require.Equal(t, newer.ID, attempts[0].ID)
	require.Equal(t, older.ID, attempts[1].ID)
}
