package models

import "time"

// PDFJob tracks one wrong-note report generation request.
type PDFJob struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	EnrollmentID     uint       `gorm:"not null;index" json:"enrollment_id"`
	ExamID           *uint      `json:"exam_id"`
	LectureID        *uint      `json:"lecture_id"`
	FromSessionOrder *int       `json:"from_session_order"`
	Status           string     `gorm:"size:16;not null;index" json:"status"`
	FilePath         string     `gorm:"size:512" json:"file_path"`
	FileURL          *string    `gorm:"size:1024" json:"file_url"`
	ErrorMessage     string     `gorm:"type:text" json:"error_message"`
	RequestedBy      uint       `json:"requested_by"`
	StartedAt        *time.Time `json:"started_at"`
	FinishedAt       *time.Time `json:"finished_at"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}
