package service

import (
	"context"
	"encoding/json"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-results-api/internal/dto"
	"github.com/noah-isme/gema-results-api/internal/repository"
	"github.com/noah-isme/gema-results-api/internal/results"
)

const (
	defaultWrongNoteLimit = 50
	collectPageSize       = 200
)

// WrongNoteService reads wrong notes of representative attempts.
type WrongNoteService interface {
	List(ctx context.Context, query dto.WrongNoteQuery) (dto.WrongNoteListResponse, error)
	Collect(ctx context.Context, enrollmentID uint, filter results.WrongNoteFilter) ([]dto.WrongNoteItem, error)
}

type wrongNoteService struct {
	repo      repository.WrongNoteRepository
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewWrongNoteService constructs the wrong note service.
func NewWrongNoteService(repo repository.WrongNoteRepository, validate *validator.Validate, logger zerolog.Logger) WrongNoteService {
	return &wrongNoteService{
		repo:      repo,
		validator: validate,
		logger:    logger.With().Str("component", "wrong_note_service").Logger(),
	}
}

func (s *wrongNoteService) List(ctx context.Context, query dto.WrongNoteQuery) (dto.WrongNoteListResponse, error) {
	if err := s.validator.Struct(query); err != nil {
		return dto.WrongNoteListResponse{}, err
	}
	if err := query.Filter().Validate(); err != nil {
		return dto.WrongNoteListResponse{}, err
	}

	limit := query.Limit
	if limit <= 0 {
		limit = defaultWrongNoteLimit
	}

	rows, total, err := s.repo.List(ctx, toRepositoryFilter(query.EnrollmentID, query.Filter(), query.Offset, limit))
	if err != nil {
		return dto.WrongNoteListResponse{}, err
	}

	response := dto.WrongNoteListResponse{
		Count:   total,
		Results: results.DedupeWrongNotes(toWrongNoteItems(rows)),
	}

	if end := query.Offset + len(rows); int64(end) < total {
		response.Next = &end
	}
	if query.Offset > 0 {
		prev := maxInt(query.Offset-limit, 0)
		response.Prev = &prev
	}

	return response, nil
}

// Collect reads every page of the filtered wrong notes and removes duplicate keys.
func (s *wrongNoteService) Collect(ctx context.Context, enrollmentID uint, filter results.WrongNoteFilter) ([]dto.WrongNoteItem, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	var collected []dto.WrongNoteItem
	offset := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		rows, total, err := s.repo.List(ctx, toRepositoryFilter(enrollmentID, filter, offset, collectPageSize))
		if err != nil {
			return nil, err
		}

		collected = append(collected, toWrongNoteItems(rows)...)
		offset += len(rows)
		if len(rows) == 0 || int64(offset) >= total {
			break
		}
	}

	return results.DedupeWrongNotes(collected), nil
}

func toRepositoryFilter(enrollmentID uint, filter results.WrongNoteFilter, offset, limit int) repository.WrongNoteFilter {
	return repository.WrongNoteFilter{
		EnrollmentID:     enrollmentID,
		ExamID:           filter.ExamID,
		LectureID:        filter.LectureID,
		FromSessionOrder: filter.FromSessionOrder,
		Offset:           offset,
		Limit:            limit,
	}
}

func toWrongNoteItems(rows []repository.WrongNoteRow) []dto.WrongNoteItem {
	items := make([]dto.WrongNoteItem, 0, len(rows))
	for _, row := range rows {
		item := dto.WrongNoteItem{
			ExamID:           row.ExamID,
			ExamTitle:        row.ExamTitle,
			SessionOrder:     row.SessionOrder,
			AttemptID:        row.AttemptID,
			AttemptCreatedAt: row.AttemptCreatedAt,
			QuestionID:       row.QuestionID,
			QuestionNumber:   row.QuestionNumber,
			AnswerType:       row.AnswerType,
			StudentAnswer:    row.Answer,
			CorrectAnswer:    row.CorrectAnswer,
			IsCorrect:        row.IsCorrect,
			Score:            row.Score,
			MaxScore:         row.MaxScore,
		}
		if len(row.Meta) > 0 && json.Valid(row.Meta) {
			item.Meta = json.RawMessage(row.Meta)
		}
		items = append(items, item)
	}
	return items
}
