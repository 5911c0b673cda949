package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/proctorly/exam-api/internal/models"
)

// ErrAttemptAlreadyCompleted indicates a write was attempted against an
// attempt whose terminal row already exists.
var ErrAttemptAlreadyCompleted = errors.New("attempt already completed")

// AttemptRepository persists attempt rows with conflict-safe creation and
// answer upserts keyed on (attempt_id, question_id).
type AttemptRepository interface {
	CreateOrGet(ctx context.Context, testID, userID uint, startedAt time.Time) (models.Attempt, error)
	SaveProgress(ctx context.Context, attemptID uint, answers []models.AttemptAnswer, score int) error
	Complete(ctx context.Context, attempt *models.Attempt, answers []models.AttemptAnswer) error
	GetByID(ctx context.Context, id uint) (models.Attempt, error)
	GetCompleted(ctx context.Context, testID, userID uint) (models.Attempt, error)
	ListByUser(ctx context.Context, userID uint) ([]models.Attempt, error)
}

// NewAttemptRepository constructs an attempt repository.
func NewAttemptRepository(db *gorm.DB) AttemptRepository {
	return &attemptRepository{db: db}
}

type attemptRepository struct {
	db *gorm.DB
}

// CreateOrGet inserts the attempt row for (testID, userID) or returns the
// existing one. A uniqueness conflict from a concurrent creator is treated as
// "already exists", never as an error.
func (r *attemptRepository) CreateOrGet(ctx context.Context, testID, userID uint, startedAt time.Time) (models.Attempt, error) {
	attempt := models.Attempt{TestID: testID, UserID: userID, StartedAt: startedAt}

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "test_id"}, {Name: "user_id"}},
			DoNothing: true,
		}).
		Create(&attempt).Error
	if err != nil && !errors.Is(err, gorm.ErrDuplicatedKey) {
		return models.Attempt{}, err
	}

	// DoNothing leaves ID unset when the row already existed.
	var existing models.Attempt
	err = r.db.WithContext(ctx).
		Where("test_id = ? AND user_id = ?", testID, userID).
		First(&existing).Error
	if err != nil {
		return models.Attempt{}, err
	}
	return existing, nil
}

// SaveProgress upserts the answer snapshot and the live score without
// touching completion state. Writes against a completed attempt are rejected.
func (r *attemptRepository) SaveProgress(ctx context.Context, attemptID uint, answers []models.AttemptAnswer, score int) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := upsertAnswers(tx, attemptID, answers); err != nil {
			return err
		}

		result := tx.Model(&models.Attempt{}).
			Where("id = ? AND completed_at IS NULL", attemptID).
			Update("score", score)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrAttemptAlreadyCompleted
		}
		return nil
	})
}

// Complete writes the terminal attempt state. The parent update is
// conditional on completed_at still being NULL, so a concurrent duplicate
// submission affects zero rows and reports ErrAttemptAlreadyCompleted.
func (r *attemptRepository) Complete(ctx context.Context, attempt *models.Attempt, answers []models.AttemptAnswer) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := upsertAnswers(tx, attempt.ID, answers); err != nil {
			return err
		}

		result := tx.Model(&models.Attempt{}).
			Where("id = ? AND completed_at IS NULL", attempt.ID).
			Updates(map[string]interface{}{
				"completed_at":       attempt.CompletedAt,
				"score":              attempt.Score,
				"time_taken_minutes": attempt.TimeTakenMinutes,
				"submit_reason":      attempt.SubmitReason,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrAttemptAlreadyCompleted
		}
		return nil
	})
}

func (r *attemptRepository) GetByID(ctx context.Context, id uint) (models.Attempt, error) {
	var attempt models.Attempt
	err := r.db.WithContext(ctx).
		Preload("Answers", func(db *gorm.DB) *gorm.DB {
			return db.Order("question_id")
		}).
		First(&attempt, id).Error
	if err != nil {
		return models.Attempt{}, err
	}
	return attempt, nil
}

func (r *attemptRepository) GetCompleted(ctx context.Context, testID, userID uint) (models.Attempt, error) {
	var attempt models.Attempt
	err := r.db.WithContext(ctx).
		Where("test_id = ? AND user_id = ? AND completed_at IS NOT NULL", testID, userID).
		Preload("Answers", func(db *gorm.DB) *gorm.DB {
			return db.Order("question_id")
		}).
		First(&attempt).Error
	if err != nil {
		return models.Attempt{}, err
	}
	return attempt, nil
}

func (r *attemptRepository) ListByUser(ctx context.Context, userID uint) ([]models.Attempt, error) {
	var attempts []models.Attempt
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("started_at DESC").
		Find(&attempts).Error
	if err != nil {
		return nil, err
	}
	return attempts, nil
}

func upsertAnswers(tx *gorm.DB, attemptID uint, answers []models.AttemptAnswer) error {
	if len(answers) == 0 {
		return nil
	}

	for i := range answers {
		answers[i].AttemptID = attemptID
	}

	return tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "attempt_id"}, {Name: "question_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"selected_option", "source_text", "verdict",
			"points_earned", "feedback", "grading_detail", "updated_at",
		}),
	}).Create(&answers).Error
}
