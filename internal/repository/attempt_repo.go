package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-results-api/internal/models"
)

// AttemptCheck inspects the target attempt inside the representative swap transaction.
// A non-nil error aborts the swap.
type AttemptCheck func(models.Attempt) error

// AttemptRepository persists attempts and their representative flag.
type AttemptRepository interface {
	ListByResult(ctx context.Context, examID, enrollmentID uint) ([]models.Attempt, error)
	GetByID(ctx context.Context, id uint) (models.Attempt, error)
	GetRepresentative(ctx context.Context, examID, enrollmentID uint) (models.Attempt, error)
	SetRepresentative(ctx context.Context, examID, enrollmentID, attemptID uint, check AttemptCheck) (models.Attempt, bool, error)
	Create(ctx context.Context, attempt *models.Attempt) error
	UpdateStatus(ctx context.Context, id uint, status string) error
	ReplaceItems(ctx context.Context, attemptID uint, items []models.ResultItem) error
	NextIndex(ctx context.Context, examID, enrollmentID uint) (int, error)
}

type attemptRepository struct {
	db *gorm.DB
}

// NewAttemptRepository constructs an attempt repository.
func NewAttemptRepository(db *gorm.DB) AttemptRepository {
	return &attemptRepository{db: db}
}

func (r *attemptRepository) ListByResult(ctx context.Context, examID, enrollmentID uint) ([]models.Attempt, error) {
	var attempts []models.Attempt
	if err := r.db.WithContext(ctx).
		Where("exam_id = ? AND enrollment_id = ?", examID, enrollmentID).
		Order("attempt_index ASC").
		Order("id ASC").
		Find(&attempts).Error; err != nil {
		return nil, err
	}

	return attempts, nil
}

func (r *attemptRepository) GetByID(ctx context.Context, id uint) (models.Attempt, error) {
	var attempt models.Attempt
	if err := r.db.WithContext(ctx).First(&attempt, id).Error; err != nil {
		return models.Attempt{}, err
	}

	return attempt, nil
}

func (r *attemptRepository) GetRepresentative(ctx context.Context, examID, enrollmentID uint) (models.Attempt, error) {
	var attempt models.Attempt
	if err := r.db.WithContext(ctx).
		Where("exam_id = ? AND enrollment_id = ? AND is_representative = ?", examID, enrollmentID, true).
		First(&attempt).Error; err != nil {
		return models.Attempt{}, err
	}

	return attempt, nil
}

// SetRepresentative flips the representative flag of every attempt of the result in one
// statement so that exactly the target ends up selected. The boolean reports whether any
// row changed.
func (r *attemptRepository) SetRepresentative(ctx context.Context, examID, enrollmentID, attemptID uint, check AttemptCheck) (models.Attempt, bool, error) {
	var (
		target  models.Attempt
		changed bool
	)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ? AND exam_id = ? AND enrollment_id = ?", attemptID, examID, enrollmentID).
			First(&target).Error; err != nil {
			return err
		}

		if check != nil {
			if err := check(target); err != nil {
				return err
			}
		}

		var others int64
		if err := tx.Model(&models.Attempt{}).
			Where("exam_id = ? AND enrollment_id = ? AND id <> ? AND is_representative = ?", examID, enrollmentID, attemptID, true).
			Count(&others).Error; err != nil {
			return err
		}

		if target.IsRepresentative && others == 0 {
			return nil
		}

		if err := tx.Model(&models.Attempt{}).
			Where("exam_id = ? AND enrollment_id = ?", examID, enrollmentID).
			Update("is_representative", gorm.Expr("id = ?", attemptID)).Error; err != nil {
			return err
		}

		changed = true
		target.IsRepresentative = true
		return nil
	})
	if err != nil {
		return models.Attempt{}, false, err
	}

	return target, changed, nil
}

func (r *attemptRepository) Create(ctx context.Context, attempt *models.Attempt) error {
	return r.db.WithContext(ctx).Create(attempt).Error
}

func (r *attemptRepository) UpdateStatus(ctx context.Context, id uint, status string) error {
	result := r.db.WithContext(ctx).Model(&models.Attempt{}).Where("id = ?", id).Update("status", status)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ReplaceItems swaps the graded items of an attempt and refreshes its grading totals.
func (r *attemptRepository) ReplaceItems(ctx context.Context, attemptID uint, items []models.ResultItem) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var attempt models.Attempt
		if err := tx.First(&attempt, attemptID).Error; err != nil {
			return err
		}

		if err := tx.Where("attempt_id = ?", attemptID).Delete(&models.ResultItem{}).Error; err != nil {
			return err
		}

		if len(items) > 0 {
			for i := range items {
				items[i].ID = 0
				items[i].AttemptID = attemptID
			}
			if err := tx.Create(&items).Error; err != nil {
				return err
			}
		}

		return recomputeAttemptTotals(tx, attemptID)
	})
}

func (r *attemptRepository) NextIndex(ctx context.Context, examID, enrollmentID uint) (int, error) {
	var current int
	if err := r.db.WithContext(ctx).Model(&models.Attempt{}).
		Where("exam_id = ? AND enrollment_id = ?", examID, enrollmentID).
		Select("COALESCE(MAX(attempt_index), 0)").
		Scan(&current).Error; err != nil {
		return 0, err
	}

	return current + 1, nil
}

type attemptTotals struct {
	TotalScore *float64
	MaxScore   *float64
	Items      int64
}

func recomputeAttemptTotals(tx *gorm.DB, attemptID uint) error {
	var totals attemptTotals
	if err := tx.Model(&models.ResultItem{}).
		Select("SUM(score) AS total_score, SUM(max_score) AS max_score, COUNT(*) AS items").
		Where("attempt_id = ?", attemptID).
		Scan(&totals).Error; err != nil {
		return err
	}

	updates := map[string]interface{}{
		"grading_total_score": nil,
		"grading_max_score":   nil,
	}
	if totals.Items > 0 {
		updates["grading_total_score"] = totals.TotalScore
		updates["grading_max_score"] = totals.MaxScore
	}

	result := tx.Model(&models.Attempt{}).Where("id = ?", attemptID).Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return errors.New("attempt vanished while recomputing totals")
	}
	return nil
}
