package models

import "time"

// Enrollment is a student's registration in a lecture. Its ID is the identity key for
// every result of that student.
type Enrollment struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	LectureID   uint      `gorm:"not null;index" json:"lecture_id"`
	StudentID   uint      `gorm:"not null;index" json:"student_id"`
	StudentName string    `gorm:"size:255;not null" json:"student_name"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ExamResult holds the grading pipeline state of one enrollment for one exam.
type ExamResult struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	ExamID           uint       `gorm:"not null;uniqueIndex:idx_exam_result_enrollment" json:"exam_id"`
	EnrollmentID     uint       `gorm:"not null;uniqueIndex:idx_exam_result_enrollment" json:"enrollment_id"`
	SubmissionStatus string     `gorm:"size:32" json:"submission_status"`
	SubmissionID     *uint      `json:"submission_id"`
	SubmittedAt      *time.Time `json:"submitted_at"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	Exam             Exam       `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"exam"`
	Enrollment       Enrollment `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"enrollment"`
}
