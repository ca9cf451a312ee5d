package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-results-api/internal/models"
)

// EditStateRepository persists authority-owned edit locks.
type EditStateRepository interface {
	Get(ctx context.Context, examID, enrollmentID uint) (models.EditState, error)
	Ensure(ctx context.Context, examID, enrollmentID uint) (models.EditState, error)
	Save(ctx context.Context, state *models.EditState) error
}

type editStateRepository struct {
	db *gorm.DB
}

// NewEditStateRepository constructs the edit state repository.
func NewEditStateRepository(db *gorm.DB) EditStateRepository {
	return &editStateRepository{db: db}
}

func (r *editStateRepository) Get(ctx context.Context, examID, enrollmentID uint) (models.EditState, error) {
	var state models.EditState
	if err := r.db.WithContext(ctx).
		Where("exam_id = ? AND enrollment_id = ?", examID, enrollmentID).
		First(&state).Error; err != nil {
		return models.EditState{}, err
	}
	return state, nil
}

// Ensure returns the edit state of a result, creating an unlocked, editable one when absent.
func (r *editStateRepository) Ensure(ctx context.Context, examID, enrollmentID uint) (models.EditState, error) {
	state := models.EditState{ExamID: examID, EnrollmentID: enrollmentID}
	if err := r.db.WithContext(ctx).
		Where(models.EditState{ExamID: examID, EnrollmentID: enrollmentID}).
		Attrs(models.EditState{CanEdit: true}).
		FirstOrCreate(&state).Error; err != nil {
		return models.EditState{}, err
	}
	return state, nil
}

func (r *editStateRepository) Save(ctx context.Context, state *models.EditState) error {
	return r.db.WithContext(ctx).Save(state).Error
}
