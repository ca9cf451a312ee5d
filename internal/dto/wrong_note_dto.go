package dto

import (
	"encoding/json"
	"time"

	"github.com/noah-isme/gema-results-api/internal/results"
)

// WrongNoteQuery captures wrong note list filters.
type WrongNoteQuery struct {
	EnrollmentID     uint  `query:"enrollment_id" validate:"required,gt=0"`
	ExamID           *uint `query:"exam_id" validate:"omitempty,gt=0"`
	LectureID        *uint `query:"lecture_id" validate:"omitempty,gt=0"`
	FromSessionOrder *int  `query:"from_session_order" validate:"omitempty,gte=0"`
	Offset           int   `query:"offset" validate:"gte=0"`
	Limit            int   `query:"limit" validate:"gte=0,lte=500"`
}

// Filter returns the read-side projection described by the query.
func (q WrongNoteQuery) Filter() results.WrongNoteFilter {
	return results.WrongNoteFilter{
		ExamID:           q.ExamID,
		LectureID:        q.LectureID,
		FromSessionOrder: q.FromSessionOrder,
	}
}

// WrongNoteItem is one mismatch between submitted and correct answers on a
// representative attempt.
type WrongNoteItem struct {
	ExamID           uint            `json:"exam_id"`
	ExamTitle        string          `json:"exam_title"`
	SessionOrder     int             `json:"session_order"`
	AttemptID        uint            `json:"attempt_id"`
	AttemptCreatedAt *time.Time      `json:"attempt_created_at"`
	QuestionID       uint            `json:"question_id"`
	QuestionNumber   *int            `json:"question_number"`
	AnswerType       string          `json:"answer_type"`
	StudentAnswer    string          `json:"student_answer"`
	CorrectAnswer    string          `json:"correct_answer"`
	IsCorrect        bool            `json:"is_correct"`
	Score            float64         `json:"score"`
	MaxScore         float64         `json:"max_score"`
	Meta             json.RawMessage `json:"meta,omitempty"`
}

// NoteKey implements results.Keyed.
func (w WrongNoteItem) NoteKey() results.WrongNoteKey {
	return results.WrongNoteKey{AttemptID: w.AttemptID, QuestionID: w.QuestionID}
}

// WrongNoteListResponse is a page of wrong notes. Next and Prev are offsets.
type WrongNoteListResponse struct {
	Count   int64           `json:"count"`
	Next    *int            `json:"next"`
	Prev    *int            `json:"prev"`
	Results []WrongNoteItem `json:"results"`
}
