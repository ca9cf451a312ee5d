package models

import "time"

// Exam target types.
const (
	TargetTypeExam     = "exam"
	TargetTypeHomework = "homework"
)

// Exam is a gradable target inside a lecture session.
type Exam struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	LectureID    uint      `gorm:"not null;index" json:"lecture_id"`
	Title        string    `gorm:"size:255;not null" json:"title"`
	TargetType   string    `gorm:"size:16;not null;default:exam" json:"target_type"`
	SessionOrder int       `gorm:"not null;default:0" json:"session_order"`
	MaxScore     float64   `gorm:"not null;default:100" json:"max_score"`
	PassScore    float64   `gorm:"not null;default:0" json:"pass_score"`
	AllowRetake  bool      `gorm:"not null;default:false" json:"allow_retake"`
	MaxAttempts  int       `gorm:"not null;default:1" json:"max_attempts"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Passed reports whether score meets the pass mark.
func (e Exam) Passed(score float64) bool {
	return score >= e.PassScore
}
