package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/proctorly/exam-api/internal/dto"
	"github.com/proctorly/exam-api/internal/models"
	"github.com/proctorly/exam-api/internal/repository"
)

// ErrResultNotFound indicates no completed attempt exists for the pair.
var ErrResultNotFound = errors.New("no completed attempt")

// ResultService serves completed attempts, caching them in redis since a
// completed attempt never changes.
type ResultService interface {
	GetResult(ctx context.Context, testID, userID uint) (dto.AttemptResponse, error)
	ListAttempts(ctx context.Context, userID uint) ([]dto.AttemptResponse, error)
	CacheCompleted(ctx context.Context, attempt models.Attempt)
}

type resultService struct {
	attempts repository.AttemptRepository
	cache    *redis.Client
	cacheTTL time.Duration
	logger   zerolog.Logger
}

// NewResultService constructs the result read service. cache may be nil.
func NewResultService(attempts repository.AttemptRepository, cache *redis.Client, ttl time.Duration, logger zerolog.Logger) ResultService {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &resultService{
		attempts: attempts,
		cache:    cache,
		cacheTTL: ttl,
		logger:   logger.With().Str("component", "result_service").Logger(),
	}
}

func resultCacheKey(testID, userID uint) string {
	return fmt.Sprintf("result:test:%d:user:%d", testID, userID)
}

func (s *resultService) GetResult(ctx context.Context, testID, userID uint) (dto.AttemptResponse, error) {
	key := resultCacheKey(testID, userID)

	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, key).Result(); err == nil {
			var response dto.AttemptResponse
			if unmarshalErr := json.Unmarshal([]byte(cached), &response); unmarshalErr == nil {
				s.logger.Debug().Uint("test_id", testID).Uint("user_id", userID).Msg("result cache hit")
				return response, nil
			}
		} else if err != redis.Nil {
			s.logger.Warn().Err(err).Msg("failed to read result cache")
		}
	}

	attempt, err := s.attempts.GetCompleted(ctx, testID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.AttemptResponse{}, ErrResultNotFound
		}
		return dto.AttemptResponse{}, err
	}

	response := dto.NewAttemptResponse(attempt)
	s.storeCache(ctx, key, response)
	return response, nil
}

func (s *resultService) ListAttempts(ctx context.Context, userID uint) ([]dto.AttemptResponse, error) {
	attempts, err := s.attempts.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	responses := make([]dto.AttemptResponse, 0, len(attempts))
	for _, attempt := range attempts {
		responses = append(responses, dto.NewAttemptResponse(attempt))
	}
	return responses, nil
}

// CacheCompleted primes the cache right after submission so the redirect to
// the results page is served without a database read.
func (s *resultService) CacheCompleted(ctx context.Context, attempt models.Attempt) {
	if !attempt.IsCompleted() {
		return
	}
	s.storeCache(ctx, resultCacheKey(attempt.TestID, attempt.UserID), dto.NewAttemptResponse(attempt))
}

func (s *resultService) storeCache(ctx context.Context, key string, response dto.AttemptResponse) {
	if s.cache == nil {
		return
	}
	payload, err := json.Marshal(response)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, payload, s.cacheTTL).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to store result cache")
	}
}
