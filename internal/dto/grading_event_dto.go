package dto

import (
	"encoding/json"
	"time"

	"github.com/noah-isme/gema-results-api/internal/models"
)

// Grading pipeline event types.
const (
	GradingEventAttemptCreated = "attempt.created"
	GradingEventAttemptStatus  = "attempt.status"
	GradingEventAttemptGraded  = "attempt.graded"
)

// GradingEventItem is one graded question reported by the pipeline.
type GradingEventItem struct {
	QuestionID     uint            `json:"question_id"`
	QuestionNumber *int            `json:"question_number"`
	AnswerType     string          `json:"answer_type"`
	Answer         string          `json:"answer"`
	CorrectAnswer  string          `json:"correct_answer"`
	IsCorrect      bool            `json:"is_correct"`
	Score          float64         `json:"score"`
	MaxScore       float64         `json:"max_score"`
	IsEditable     bool            `json:"is_editable"`
	PendingReview  bool            `json:"pending_review"`
	Meta           json.RawMessage `json:"meta,omitempty"`
}

// GradingEvent is a state change emitted by the grading pipeline.
type GradingEvent struct {
	Type             string             `json:"type"`
	ExamID           uint               `json:"exam_id"`
	EnrollmentID     uint               `json:"enrollment_id"`
	AttemptID        *uint              `json:"attempt_id"`
	Status           string             `json:"status"`
	SubmissionStatus *string            `json:"submission_status"`
	SubmissionID     *uint              `json:"submission_id"`
	SubmittedAt      *time.Time         `json:"submitted_at"`
	Items            []GradingEventItem `json:"items"`
}

// GradingEventResponse acknowledges an applied event.
type GradingEventResponse struct {
	Type             string `json:"type"`
	AttemptID        uint   `json:"attempt_id"`
	Status           string `json:"status"`
	IsRepresentative bool   `json:"is_representative"`
}

// ToModel converts a reported item into a result item.
func (i GradingEventItem) ToModel() models.ResultItem {
	item := models.ResultItem{
		QuestionID:     i.QuestionID,
		QuestionNumber: i.QuestionNumber,
		AnswerType:     i.AnswerType,
		Answer:         i.Answer,
		CorrectAnswer:  i.CorrectAnswer,
		IsCorrect:      i.IsCorrect,
		Score:          i.Score,
		MaxScore:       i.MaxScore,
		IsEditable:     i.IsEditable,
		PendingReview:  i.PendingReview,
	}
	if len(i.Meta) > 0 {
		item.Meta = []byte(i.Meta)
	}
	return item
}
