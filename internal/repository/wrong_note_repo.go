package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-results-api/internal/models"
)

// WrongNoteFilter narrows wrong note queries. Offset and Limit page the ordered result.
type WrongNoteFilter struct {
	EnrollmentID     uint
	ExamID           *uint
	LectureID        *uint
	FromSessionOrder *int
	Offset           int
	Limit            int
}

// WrongNoteRow is an incorrect item of a representative attempt with its exam context.
type WrongNoteRow struct {
	ExamID           uint
	ExamTitle        string
	SessionOrder     int
	AttemptID        uint
	AttemptCreatedAt *time.Time
	QuestionID       uint
	QuestionNumber   *int
	AnswerType       string
	Answer           string
	CorrectAnswer    string
	IsCorrect        bool
	Score            float64
	MaxScore         float64
	Meta             []byte
}

// WrongNoteRepository reads wrong answers of representative attempts.
type WrongNoteRepository interface {
	List(ctx context.Context, filter WrongNoteFilter) ([]WrongNoteRow, int64, error)
}

type wrongNoteRepository struct {
	db *gorm.DB
}

// NewWrongNoteRepository constructs the wrong note repository.
func NewWrongNoteRepository(db *gorm.DB) WrongNoteRepository {
	return &wrongNoteRepository{db: db}
}

func (r *wrongNoteRepository) List(ctx context.Context, filter WrongNoteFilter) ([]WrongNoteRow, int64, error) {
	query := r.db.WithContext(ctx).
		Model(&models.ResultItem{}).
		Joins("JOIN attempts ON attempts.id = result_items.attempt_id").
		Joins("JOIN exams ON exams.id = attempts.exam_id").
		Where("attempts.enrollment_id = ?", filter.EnrollmentID).
		Where("attempts.is_representative = ?", true).
		Where("result_items.is_correct = ?", false)

	if filter.ExamID != nil {
		query = query.Where("attempts.exam_id = ?", *filter.ExamID)
	}

	if filter.LectureID != nil {
		query = query.Where("exams.lecture_id = ?", *filter.LectureID)
	}

	if filter.FromSessionOrder != nil {
		query = query.Where("exams.session_order >= ?", *filter.FromSessionOrder)
	}

	countQuery := query.Session(&gorm.Session{})
	var total int64
	if err := countQuery.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = query.Select(`exams.id AS exam_id,
		exams.title AS exam_title,
		exams.session_order,
		attempts.id AS attempt_id,
		attempts.created_at AS attempt_created_at,
		result_items.question_id,
		result_items.question_number,
		result_items.answer_type,
		result_items.answer,
		result_items.correct_answer,
		result_items.is_correct,
		result_items.score,
		result_items.max_score,
		result_items.meta`).
		Order("exams.session_order ASC").
		Order("exams.id ASC").
		Order("COALESCE(result_items.question_number, 0) ASC").
		Order("result_items.question_id ASC")

	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var rows []WrongNoteRow
	if err := query.Scan(&rows).Error; err != nil {
		return nil, 0, err
	}

	return rows, total, nil
}
