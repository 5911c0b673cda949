package service

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/proctorly/exam-api/internal/models"
	"github.com/proctorly/exam-api/internal/repository"
	"github.com/proctorly/exam-api/internal/session"
)

// attemptStore adapts the gorm-backed repository to the session package's
// persistence contract, translating storage sentinels into lifecycle errors.
type attemptStore struct {
	attempts repository.AttemptRepository
}

// NewAttemptStore wraps the repository for consumption by exam sessions.
func NewAttemptStore(attempts repository.AttemptRepository) session.AttemptStore {
	return &attemptStore{attempts: attempts}
}

func (s *attemptStore) CreateOrGet(ctx context.Context, testID, userID uint, startedAt time.Time) (models.Attempt, error) {
	return s.attempts.CreateOrGet(ctx, testID, userID, startedAt)
}

func (s *attemptStore) SaveProgress(ctx context.Context, attemptID uint, answers []models.AttemptAnswer, score int) error {
	err := s.attempts.SaveProgress(ctx, attemptID, answers, score)
	if errors.Is(err, repository.ErrAttemptAlreadyCompleted) {
		return session.ErrAlreadyCompleted
	}
	return err
}

func (s *attemptStore) Complete(ctx context.Context, attempt *models.Attempt, answers []models.AttemptAnswer) error {
	err := s.attempts.Complete(ctx, attempt, answers)
	if errors.Is(err, repository.ErrAttemptAlreadyCompleted) {
		return session.ErrAlreadyCompleted
	}
	return err
}

func (s *attemptStore) GetCompleted(ctx context.Context, testID, userID uint) (models.Attempt, bool, error) {
	attempt, err := s.attempts.GetCompleted(ctx, testID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Attempt{}, false, nil
		}
		return models.Attempt{}, false, err
	}
	return attempt, true, nil
}
