package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/gema-results-api/internal/models"
	"github.com/noah-isme/gema-results-api/internal/results"
)

// ResultRow is one summary row of an exam joined with its representative attempt.
type ResultRow struct {
	EnrollmentID     uint
	StudentName      string
	SubmissionStatus string
	SubmissionID     *uint
	SubmittedAt      *time.Time
	AttemptID        *uint
	FinalScore       *float64
	PendingItems     int64
}

// QuestionStat aggregates one question over representative attempts.
type QuestionStat struct {
	QuestionID uint
	Attempts   int64
	Correct    int64
	AvgScore   float64
	MaxScore   float64
}

// ItemGuard inspects the edit state and target item inside the score patch transaction.
type ItemGuard func(state *models.EditState, item models.ResultItem) error

// ItemScoreUpdate describes one score correction.
type ItemScoreUpdate struct {
	ExamID       uint
	EnrollmentID uint
	AttemptID    uint
	QuestionID   uint
	Score        float64
	ActorID      uint
	At           time.Time
	Audit        *models.ActivityLog
}

// ResultRepository reads exam results and applies score corrections.
type ResultRepository interface {
	GetExam(ctx context.Context, examID uint) (models.Exam, error)
	GetEnrollment(ctx context.Context, enrollmentID uint) (models.Enrollment, error)
	GetExamResult(ctx context.Context, examID, enrollmentID uint) (models.ExamResult, error)
	UpsertExamResult(ctx context.Context, result *models.ExamResult) error
	ListExamResults(ctx context.Context, examID uint) ([]ResultRow, error)
	ListItems(ctx context.Context, attemptID uint) ([]models.ResultItem, error)
	CountAttempts(ctx context.Context, examID, enrollmentID uint) (int64, error)
	QuestionStats(ctx context.Context, examID uint) ([]QuestionStat, error)
	UpdateItemScore(ctx context.Context, update ItemScoreUpdate, guard ItemGuard) (models.ResultItem, error)
}

type resultRepository struct {
	db *gorm.DB
}

// NewResultRepository constructs the result repository.
func NewResultRepository(db *gorm.DB) ResultRepository {
	return &resultRepository{db: db}
}

func (r *resultRepository) GetExam(ctx context.Context, examID uint) (models.Exam, error) {
	var exam models.Exam
	if err := r.db.WithContext(ctx).First(&exam, examID).Error; err != nil {
		return models.Exam{}, err
	}
	return exam, nil
}

func (r *resultRepository) GetEnrollment(ctx context.Context, enrollmentID uint) (models.Enrollment, error) {
	var enrollment models.Enrollment
	if err := r.db.WithContext(ctx).First(&enrollment, enrollmentID).Error; err != nil {
		return models.Enrollment{}, err
	}
	return enrollment, nil
}

func (r *resultRepository) GetExamResult(ctx context.Context, examID, enrollmentID uint) (models.ExamResult, error) {
	var result models.ExamResult
	if err := r.db.WithContext(ctx).
		Preload("Exam").
		Preload("Enrollment").
		Where("exam_id = ? AND enrollment_id = ?", examID, enrollmentID).
		First(&result).Error; err != nil {
		return models.ExamResult{}, err
	}
	return result, nil
}

func (r *resultRepository) UpsertExamResult(ctx context.Context, result *models.ExamResult) error {
	return r.db.WithContext(ctx).
		Omit("Exam", "Enrollment").
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "exam_id"}, {Name: "enrollment_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"submission_status", "submission_id", "submitted_at", "updated_at"}),
		}).
		Create(result).Error
}

func (r *resultRepository) ListExamResults(ctx context.Context, examID uint) ([]ResultRow, error) {
	var rows []ResultRow
	err := r.db.WithContext(ctx).
		Table("exam_results").
		Select(`exam_results.enrollment_id,
			enrollments.student_name,
			exam_results.submission_status,
			exam_results.submission_id,
			exam_results.submitted_at,
			attempts.id AS attempt_id,
			attempts.grading_total_score AS final_score,
			(SELECT COUNT(*) FROM result_items WHERE result_items.attempt_id = attempts.id AND result_items.pending_review = ?) AS pending_items`, true).
		Joins("JOIN enrollments ON enrollments.id = exam_results.enrollment_id").
		Joins("LEFT JOIN attempts ON attempts.exam_id = exam_results.exam_id AND attempts.enrollment_id = exam_results.enrollment_id AND attempts.is_representative = ?", true).
		Where("exam_results.exam_id = ?", examID).
		Order("enrollments.student_name ASC").
		Order("exam_results.enrollment_id ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *resultRepository) ListItems(ctx context.Context, attemptID uint) ([]models.ResultItem, error) {
	var items []models.ResultItem
	if err := r.db.WithContext(ctx).
		Where("attempt_id = ?", attemptID).
		Order("question_number ASC").
		Order("question_id ASC").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *resultRepository) CountAttempts(ctx context.Context, examID, enrollmentID uint) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Attempt{}).
		Where("exam_id = ? AND enrollment_id = ?", examID, enrollmentID).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *resultRepository) QuestionStats(ctx context.Context, examID uint) ([]QuestionStat, error) {
	var stats []QuestionStat
	err := r.db.WithContext(ctx).
		Table("result_items").
		Select(`result_items.question_id,
			COUNT(*) AS attempts,
			SUM(CASE WHEN result_items.is_correct = ? THEN 1 ELSE 0 END) AS correct,
			AVG(result_items.score) AS avg_score,
			MAX(result_items.max_score) AS max_score`, true).
		Joins("JOIN attempts ON attempts.id = result_items.attempt_id").
		Where("attempts.exam_id = ? AND attempts.is_representative = ?", examID, true).
		Group("result_items.question_id").
		Order("result_items.question_id ASC").
		Scan(&stats).Error
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// UpdateItemScore applies a score correction, marks the item correct only at full marks, clears the pending review flag, refreshes the
// attempt totals, stamps the edit state and writes the audit entry in one transaction.
func (r *resultRepository) UpdateItemScore(ctx context.Context, update ItemScoreUpdate, guard ItemGuard) (models.ResultItem, error) {
	var item models.ResultItem

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var state *models.EditState
		var loaded models.EditState
		err := tx.Where("exam_id = ? AND enrollment_id = ?", update.ExamID, update.EnrollmentID).First(&loaded).Error
		switch {
		case err == nil:
			state = &loaded
		case errors.Is(err, gorm.ErrRecordNotFound):
		default:
			return err
		}

		if err := tx.Where("attempt_id = ? AND question_id = ?", update.AttemptID, update.QuestionID).First(&item).Error; err != nil {
			return err
		}

		if guard != nil {
			if err := guard(state, item); err != nil {
				return err
			}
		}

		if err := tx.Model(&item).Updates(map[string]interface{}{
			"score":          update.Score,
			"is_correct":     results.IsFullScore(update.Score, item.MaxScore),
			"pending_review": false,
			"updated_at":     update.At,
		}).Error; err != nil {
			return err
		}

		if err := recomputeAttemptTotals(tx, update.AttemptID); err != nil {
			return err
		}

		if state != nil {
			if err := tx.Model(state).Updates(map[string]interface{}{
				"last_updated_by": update.ActorID,
				"updated_at":      update.At,
			}).Error; err != nil {
				return err
			}
		}

		if update.Audit != nil {
			if err := tx.Create(update.Audit).Error; err != nil {
				return err
			}
		}

		return tx.First(&item, item.ID).Error
	})
	if err != nil {
		return models.ResultItem{}, err
	}

	return item, nil
}
