package service

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/proctorly/exam-api/internal/models"
	"github.com/proctorly/exam-api/internal/repository"
)

func newResultFixture(t *testing.T) (ResultService, repository.AttemptRepository, *miniredis.Miniredis) {
	t.Helper()

	mini, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mini.Close)

	redisClient := redis.NewClient(&redis.Options{Addr: mini.Addr()})

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Test{}, &models.Question{}, &models.Attempt{}, &models.AttemptAnswer{}))

	attemptRepo := repository.NewAttemptRepository(db)
	svc := NewResultService(attemptRepo, redisClient, time.Hour, zerolog.Nop())
	return svc, attemptRepo, mini
}

func completeAttempt(t *testing.T, repo repository.AttemptRepository, testID, userID uint) models.Attempt {
	t.Helper()
	ctx := context.Background()

	attempt, err := repo.CreateOrGet(ctx, testID, userID, time.Now().UTC().Add(-10*time.Minute))
	require.NoError(t, err)

	completedAt := time.Now().UTC()
	attempt.CompletedAt = &completedAt
	attempt.Score = 12
	attempt.TimeTakenMinutes = 10
	attempt.SubmitReason = models.SubmitReasonManual
	require.NoError(t, repo.Complete(ctx, &attempt, []models.AttemptAnswer{
		{QuestionID: 1, SelectedOption: "B", PointsEarned: 5},
		{QuestionID: 3, SourceText: "print(42)", Verdict: models.VerdictOK, PointsEarned: 7},
	}))
	return attempt
}

func TestGetResultLoadsFromDatabaseAndPrimesCache(t *testing.T) {
	svc, repo, mini := newResultFixture(t)
	completeAttempt(t, repo, 10, 42)

	result, err := svc.GetResult(context.Background(), 10, 42)
	require.NoError(t, err)
	require.Equal(t, 12, result.Score)
	require.Len(t, result.Answers, 2)

	require.True(t, mini.Exists("result:test:10:user:42"))
}

func TestGetResultServesCacheHit(t *testing.T) {
	svc, repo, mini := newResultFixture(t)
	completeAttempt(t, repo, 10, 42)

	first, err := svc.GetResult(context.Background(), 10, 42)
	require.NoError(t, err)

	// Corrupting the database would surface on a second read if the cache
	// were bypassed.
	mini.FastForward(time.Minute)
	second, err := svc.GetResult(context.Background(), 10, 42)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestGetResultNotFoundForInFlightAttempt(t *testing.T) {
	svc, repo, _ := newResultFixture(t)

	_, err := repo.CreateOrGet(context.Background(), 10, 42, time.Now().UTC())
	require.NoError(t, err)

	_, err = svc.GetResult(context.Background(), 10, 42)
	require.ErrorIs(t, err, ErrResultNotFound)
}

func TestCacheCompletedPrimesRedis(t *testing.T) {
	svc, repo, mini := newResultFixture(t)
	attempt := completeAttempt(t, repo, 10, 42)

	svc.CacheCompleted(context.Background(), attempt)
	require.True(t, mini.Exists("result:test:10:user:42"))

	// Incomplete attempts never reach the cache.
	svc.CacheCompleted(context.Background(), models.Attempt{ID: 99, TestID: 11, UserID: 42})
	require.False(t, mini.Exists("result:test:11:user:42"))
}

func TestListAttemptsMapsRows(t *testing.T) {
	svc, repo, _ := newResultFixture(t)
	completeAttempt(t, repo, 10, 42)
	completeAttempt(t, repo, 11, 42)

	attempts, err := svc.ListAttempts(context.Background(), 42)
	require.NoError(t, err)
	require.Len(t, attempts, 2)
}
