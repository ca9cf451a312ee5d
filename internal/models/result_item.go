package models

import (
	"time"

	"gorm.io/datatypes"
)

// ResultItem is the graded fact for one question of one attempt. IsEditable is decided
// by the grading authority.
type ResultItem struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	AttemptID      uint           `gorm:"not null;uniqueIndex:idx_item_question" json:"attempt_id"`
	QuestionID     uint           `gorm:"not null;uniqueIndex:idx_item_question" json:"question_id"`
	QuestionNumber *int           `json:"question_number"`
	AnswerType     string         `gorm:"size:32" json:"answer_type"`
	Answer         string         `gorm:"type:text" json:"answer"`
	CorrectAnswer  string         `gorm:"type:text" json:"correct_answer"`
	IsCorrect      bool           `gorm:"not null;default:false" json:"is_correct"`
	Score          float64        `gorm:"not null;default:0" json:"score"`
	MaxScore       float64        `gorm:"not null;default:0" json:"max_score"`
	IsEditable     bool           `gorm:"not null;default:false" json:"is_editable"`
	PendingReview  bool           `gorm:"not null;default:false" json:"pending_review"`
	Meta           datatypes.JSON `json:"meta"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}
