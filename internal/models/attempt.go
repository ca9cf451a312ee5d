package models

import "time"

// Attempt is one submission instance of an enrollment for an exam. Status is kept as
// received from the grading pipeline.
type Attempt struct {
	ID                uint         `gorm:"primaryKey" json:"id"`
	ExamID            uint         `gorm:"not null;index:idx_attempt_result" json:"exam_id"`
	EnrollmentID      uint         `gorm:"not null;index:idx_attempt_result" json:"enrollment_id"`
	AttemptIndex      int          `gorm:"not null" json:"attempt_index"`
	IsRetake          bool         `gorm:"not null;default:false" json:"is_retake"`
	IsRepresentative  bool         `gorm:"not null;default:false;index" json:"is_representative"`
	Status            string       `gorm:"size:32;not null" json:"status"`
	GradingTotalScore *float64     `json:"grading_total_score"`
	GradingMaxScore   *float64     `json:"grading_max_score"`
	CreatedAt         time.Time    `json:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at"`
	Items             []ResultItem `json:"items,omitempty"`
}
