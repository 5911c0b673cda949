package service

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/proctorly/exam-api/internal/dto"
	"github.com/proctorly/exam-api/internal/models"
	"github.com/proctorly/exam-api/internal/repository"
)

// ErrTestNotFound indicates the requested test does not exist or is not
// published.
var ErrTestNotFound = errors.New("test not found")

// ExamService exposes the candidate-facing read paths for tests.
type ExamService interface {
	List(ctx context.Context) ([]dto.TestSummaryResponse, error)
	Get(ctx context.Context, id uint) (dto.TestDetailResponse, error)
	GetModel(ctx context.Context, id uint) (models.Test, error)
}

type examService struct {
	tests  repository.TestRepository
	logger zerolog.Logger
}

// NewExamService constructs the exam read service.
func NewExamService(tests repository.TestRepository, logger zerolog.Logger) ExamService {
	return &examService{
		tests:  tests,
		logger: logger.With().Str("component", "exam_service").Logger(),
	}
}

func (s *examService) List(ctx context.Context) ([]dto.TestSummaryResponse, error) {
	tests, err := s.tests.List(ctx)
	if err != nil {
		return nil, err
	}

	summaries := make([]dto.TestSummaryResponse, 0, len(tests))
	for _, test := range tests {
		summaries = append(summaries, dto.NewTestSummaryResponse(test))
	}
	return summaries, nil
}

func (s *examService) Get(ctx context.Context, id uint) (dto.TestDetailResponse, error) {
	test, err := s.GetModel(ctx, id)
	if err != nil {
		return dto.TestDetailResponse{}, err
	}
	return dto.NewTestDetailResponse(test), nil
}

// GetModel returns the raw test model including correct answers; for use by
// the session machinery only.
func (s *examService) GetModel(ctx context.Context, id uint) (models.Test, error) {
	test, err := s.tests.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Test{}, ErrTestNotFound
		}
		return models.Test{}, err
	}
	if !test.Published {
		return models.Test{}, ErrTestNotFound
	}
	return test, nil
}
