package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-results-api/internal/models"
	"github.com/noah-isme/gema-results-api/internal/results"
)

var openJobStatuses = []string{string(results.JobStatusPending), string(results.JobStatusRunning)}

// PDFJobRepository persists wrong-note report jobs. Every transition is conditional on the
// current status so a job finishes exactly once.
type PDFJobRepository interface {
	Create(ctx context.Context, job *models.PDFJob) error
	GetByID(ctx context.Context, id uint) (models.PDFJob, error)
	MarkRunning(ctx context.Context, id uint, at time.Time) (bool, error)
	Complete(ctx context.Context, id uint, filePath string, fileURL *string, at time.Time) error
	Fail(ctx context.Context, id uint, message string, at time.Time) error
	FailStale(ctx context.Context, before time.Time, message string, at time.Time) (int64, error)
}

type pdfJobRepository struct {
	db *gorm.DB
}

// NewPDFJobRepository constructs the PDF job repository.
func NewPDFJobRepository(db *gorm.DB) PDFJobRepository {
	return &pdfJobRepository{db: db}
}

func (r *pdfJobRepository) Create(ctx context.Context, job *models.PDFJob) error {
	if job.Status == "" {
		job.Status = string(results.JobStatusPending)
	}
	return r.db.WithContext(ctx).Create(job).Error
}

func (r *pdfJobRepository) GetByID(ctx context.Context, id uint) (models.PDFJob, error) {
	var job models.PDFJob
	if err := r.db.WithContext(ctx).First(&job, id).Error; err != nil {
		return models.PDFJob{}, err
	}
	return job, nil
}

// MarkRunning claims a pending job. It reports false when another worker already claimed it
// or the job is no longer pending.
func (r *pdfJobRepository) MarkRunning(ctx context.Context, id uint, at time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.PDFJob{}).
		Where("id = ? AND status = ?", id, string(results.JobStatusPending)).
		Updates(map[string]interface{}{
			"status":     string(results.JobStatusRunning),
			"started_at": at,
			"updated_at": at,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *pdfJobRepository) Complete(ctx context.Context, id uint, filePath string, fileURL *string, at time.Time) error {
	return r.finish(ctx, id, map[string]interface{}{
		"status":        string(results.JobStatusDone),
		"file_path":     filePath,
		"file_url":      fileURL,
		"error_message": "",
		"finished_at":   at,
		"updated_at":    at,
	})
}

func (r *pdfJobRepository) Fail(ctx context.Context, id uint, message string, at time.Time) error {
	return r.finish(ctx, id, map[string]interface{}{
		"status":        string(results.JobStatusFailed),
		"error_message": message,
		"finished_at":   at,
		"updated_at":    at,
	})
}

func (r *pdfJobRepository) finish(ctx context.Context, id uint, updates map[string]interface{}) error {
	result := r.db.WithContext(ctx).Model(&models.PDFJob{}).
		Where("id = ? AND status IN ?", id, openJobStatuses).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return results.ErrJobTerminal
	}
	return nil
}

// FailStale fails every open job last touched before the cutoff.
func (r *pdfJobRepository) FailStale(ctx context.Context, before time.Time, message string, at time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Model(&models.PDFJob{}).
		Where("status IN ? AND updated_at < ?", openJobStatuses, before).
		Updates(map[string]interface{}{
			"status":        string(results.JobStatusFailed),
			"error_message": message,
			"finished_at":   at,
			"updated_at":    at,
		})
	return result.RowsAffected, result.Error
}
