package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/proctorly/exam-api/internal/models"
)

// TestRepository exposes read access to published tests and their questions.
type TestRepository interface {
	List(ctx context.Context) ([]models.Test, error)
	GetByID(ctx context.Context, id uint) (models.Test, error)
}

// NewTestRepository constructs a test repository.
func NewTestRepository(db *gorm.DB) TestRepository {
	return &testRepository{db: db}
}

type testRepository struct {
	db *gorm.DB
}

func (r *testRepository) List(ctx context.Context) ([]models.Test, error) {
	var tests []models.Test
	err := r.db.WithContext(ctx).
		Where("published = ?", true).
		Preload("Questions").
		Order("id").
		Find(&tests).Error
	if err != nil {
		return nil, err
	}
	return tests, nil
}

func (r *testRepository) GetByID(ctx context.Context, id uint) (models.Test, error) {
	var test models.Test
	err := r.db.WithContext(ctx).
		Preload("Questions", func(db *gorm.DB) *gorm.DB {
			return db.Order("position")
		}).
		First(&test, id).Error
	if err != nil {
		return models.Test{}, err
	}
	return test, nil
}
