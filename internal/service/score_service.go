package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-results-api/internal/dto"
	"github.com/noah-isme/gema-results-api/internal/models"
	"github.com/noah-isme/gema-results-api/internal/observability"
	"github.com/noah-isme/gema-results-api/internal/repository"
	"github.com/noah-isme/gema-results-api/internal/results"
)

var (
	// ErrItemNotFound indicates the question is not part of the representative attempt.
	ErrItemNotFound = errors.New("result item not found")
	// ErrItemNotEditable indicates the authority marked the item as not editable.
	ErrItemNotEditable = errors.New("result item is not editable")
	// ErrNoRepresentative indicates the result has no representative attempt to correct.
	ErrNoRepresentative = errors.New("result has no representative attempt")
	// ErrEditLocked indicates the edit state forbids score corrections.
	ErrEditLocked = errors.New("editing is locked")
)

// EditLockedError carries the operator facing lock message verbatim.
type EditLockedError struct {
	Message string
}

func (e *EditLockedError) Error() string {
	return e.Message
}

// Is lets errors.Is match ErrEditLocked.
func (e *EditLockedError) Is(target error) bool {
	return target == ErrEditLocked
}

// ScoreService applies manual score corrections.
type ScoreService interface {
	PatchItemScore(ctx context.Context, examID, enrollmentID, questionID uint, payload dto.PatchItemScoreRequest, actor ActivityActor) (dto.ResultItemResponse, error)
}

type scoreService struct {
	results   repository.ResultRepository
	attempts  repository.AttemptRepository
	cache     ViewCache
	validator *validator.Validate
	sanitizer *bluemonday.Policy
	logger    zerolog.Logger
	now       func() time.Time
}

// NewScoreService constructs the score correction service.
func NewScoreService(resultRepo repository.ResultRepository, attempts repository.AttemptRepository, cache ViewCache, validate *validator.Validate, logger zerolog.Logger) ScoreService {
	return &scoreService{
		results:   resultRepo,
		attempts:  attempts,
		cache:     cache,
		validator: validate,
		sanitizer: bluemonday.StrictPolicy(),
		logger:    logger.With().Str("component", "score_service").Logger(),
		now:       time.Now,
	}
}

func (s *scoreService) PatchItemScore(ctx context.Context, examID, enrollmentID, questionID uint, payload dto.PatchItemScoreRequest, actor ActivityActor) (dto.ResultItemResponse, error) {
	tracer := otel.Tracer("github.com/noah-isme/gema-results-api/internal/service/score")
	ctx, span := tracer.Start(ctx, "result.patch_item_score")
	span.SetAttributes(
		attribute.Int64("result.exam_id", int64(examID)),
		attribute.Int64("result.enrollment_id", int64(enrollmentID)),
		attribute.Int64("result.question_id", int64(questionID)),
		attribute.Int64("result.actor_id", int64(actor.ID)),
	)
	defer span.End()

	fail := func(err error, status string) (dto.ResultItemResponse, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, status)
		observability.ScorePatches().WithLabelValues(status).Inc()
		return dto.ResultItemResponse{}, err
	}

	if err := s.validator.Struct(payload); err != nil {
		return fail(err, "validation_failed")
	}
	score := *payload.Score
	if score < 0 {
		return fail(results.Invalid("score must not be negative"), "validation_failed")
	}

	representative, err := s.attempts.GetRepresentative(ctx, examID, enrollmentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fail(ErrNoRepresentative, "no_representative")
		}
		return fail(err, "lookup_failed")
	}

	reason := strings.TrimSpace(s.sanitizer.Sanitize(payload.Reason))
	metadata := map[string]interface{}{
		"attempt_id":  representative.ID,
		"question_id": questionID,
		"score":       score,
	}
	if reason != "" {
		metadata["reason"] = reason
	}

	audit, err := newActivityLog(ActivityEntry{
		ActorID:      actor.ID,
		ActorRole:    actor.Role,
		Action:       ActionScorePatched,
		EntityType:   "result_item",
		ExamID:       uintPtr(examID),
		EnrollmentID: uintPtr(enrollmentID),
		Metadata:     metadata,
	})
	if err != nil {
		return fail(err, "audit_failed")
	}

	var maxScore float64
	item, err := s.results.UpdateItemScore(ctx, repository.ItemScoreUpdate{
		ExamID:       examID,
		EnrollmentID: enrollmentID,
		AttemptID:    representative.ID,
		QuestionID:   questionID,
		Score:        score,
		ActorID:      actor.ID,
		At:           s.now(),
		Audit:        &audit,
	}, func(state *models.EditState, item models.ResultItem) error {
		var guard *results.EditState
		if state != nil {
			guard = dto.NewEditStateResponse(*state)
		}
		if !results.CanEdit(guard) {
			return &EditLockedError{Message: results.LockMessage(guard)}
		}
		if !item.IsEditable {
			return ErrItemNotEditable
		}
		if err := results.ValidateScore(score, item.MaxScore); err != nil {
			return err
		}
		maxScore = item.MaxScore
		audit.EntityID = uintPtr(item.ID)
		audit.Metadata["previous_score"] = item.Score
		audit.Metadata["max_score"] = item.MaxScore
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return fail(ErrItemNotFound, "item_not_found")
		case errors.Is(err, ErrEditLocked):
			return fail(err, "edit_locked")
		case errors.Is(err, ErrItemNotEditable):
			return fail(err, "item_not_editable")
		case errors.Is(err, results.ErrValidation):
			return fail(err, "validation_failed")
		default:
			return fail(err, "update_failed")
		}
	}

	if s.cache != nil {
		if err := s.cache.InvalidateResult(ctx, examID, enrollmentID); err != nil {
			span.RecordError(err)
		}
	}

	observability.ScorePatches().WithLabelValues("applied").Inc()
	span.SetAttributes(
		attribute.Float64("result.score", score),
		attribute.Float64("result.max_score", maxScore),
	)

	return dto.NewResultItemResponse(item), nil
}
