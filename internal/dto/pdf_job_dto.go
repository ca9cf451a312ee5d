package dto

import (
	"time"

	"github.com/noah-isme/gema-results-api/internal/models"
)

// PDFJobCreateRequest asks for a wrong-note report.
type PDFJobCreateRequest struct {
	EnrollmentID     uint  `json:"enrollment_id" validate:"required,gt=0"`
	ExamID           *uint `json:"exam_id" validate:"omitempty,gt=0"`
	LectureID        *uint `json:"lecture_id" validate:"omitempty,gt=0"`
	FromSessionOrder *int  `json:"from_session_order" validate:"omitempty,gte=0"`
}

// PDFJobCreateResponse acknowledges a queued job.
type PDFJobCreateResponse struct {
	JobID     uint   `json:"job_id"`
	Status    string `json:"status"`
	StatusURL string `json:"status_url"`
}

// PDFJobResponse reports job progress.
type PDFJobResponse struct {
	JobID        uint      `json:"job_id"`
	EnrollmentID uint      `json:"enrollment_id"`
	Status       string    `json:"status"`
	FilePath     string    `json:"file_path"`
	FileURL      *string   `json:"file_url"`
	ErrorMessage string    `json:"error_message"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// NewPDFJobResponse converts a job model into a DTO.
func NewPDFJobResponse(model models.PDFJob) PDFJobResponse {
	return PDFJobResponse{
		JobID:        model.ID,
		EnrollmentID: model.EnrollmentID,
		Status:       model.Status,
		FilePath:     model.FilePath,
		FileURL:      model.FileURL,
		ErrorMessage: model.ErrorMessage,
		CreatedAt:    model.CreatedAt,
		UpdatedAt:    model.UpdatedAt,
	}
}
