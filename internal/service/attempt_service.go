package service

import (
	"context"
	"errors"

	"github.com/go-playground/validator/v10"
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

// ErrResultNotFound indicates the exam result of an enrollment does not exist.
var ErrResultNotFound = errors.New("exam result not found")

// AttemptService lists attempts and selects the representative one.
type AttemptService interface {
	List(ctx context.Context, examID, enrollmentID uint) ([]dto.AttemptResponse, error)
	Items(ctx context.Context, examID, enrollmentID, attemptID uint) (dto.AttemptItemsResponse, error)
	SetRepresentative(ctx context.Context, examID uint, payload dto.SetRepresentativeRequest, actor ActivityActor) (dto.AttemptResponse, error)
}

type attemptService struct {
	attempts  repository.AttemptRepository
	results   repository.ResultRepository
	locks     EditLockService
	cache     ViewCache
	activity  ActivityRecorder
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewAttemptService constructs the attempt service.
func NewAttemptService(attempts repository.AttemptRepository, resultRepo repository.ResultRepository, locks EditLockService, cache ViewCache, activity ActivityRecorder, validate *validator.Validate, logger zerolog.Logger) AttemptService {
	return &attemptService{
		attempts:  attempts,
		results:   resultRepo,
		locks:     locks,
		cache:     cache,
		activity:  activity,
		validator: validate,
		logger:    logger.With().Str("component", "attempt_service").Logger(),
	}
}

func (s *attemptService) List(ctx context.Context, examID, enrollmentID uint) ([]dto.AttemptResponse, error) {
	var key string
	if s.cache != nil {
		key = s.cache.ResultKey(ctx, ViewAttempts, examID, enrollmentID)
	}

	var cached []dto.AttemptResponse
	if s.cache != nil && s.cache.Load(ctx, key, &cached) {
		return cached, nil
	}

	if _, err := s.results.GetExamResult(ctx, examID, enrollmentID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrResultNotFound
		}
		return nil, err
	}

	attempts, err := s.attempts.ListByResult(ctx, examID, enrollmentID)
	if err != nil {
		return nil, err
	}

	response := dto.NewAttemptResponseSlice(attempts)
	if s.cache != nil {
		s.cache.Store(ctx, key, response)
	}

	return response, nil
}

// Items reads the facts of any attempt of the enrollment so it can be inspected before it is
// chosen. Uncached: the view is only opened on demand.
func (s *attemptService) Items(ctx context.Context, examID, enrollmentID, attemptID uint) (dto.AttemptItemsResponse, error) {
	attempt, err := s.attempts.GetByID(ctx, attemptID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.AttemptItemsResponse{}, results.ErrAttemptNotInEnrollment
		}
		return dto.AttemptItemsResponse{}, err
	}
	if attempt.ExamID != examID || attempt.EnrollmentID != enrollmentID {
		return dto.AttemptItemsResponse{}, results.ErrAttemptNotInEnrollment
	}

	items, err := s.results.ListItems(ctx, attempt.ID)
	if err != nil {
		return dto.AttemptItemsResponse{}, err
	}

	response := dto.AttemptItemsResponse{
		Attempt: dto.NewAttemptResponse(attempt),
		Items:   make([]dto.ResultItemResponse, 0, len(items)),
	}
	for _, item := range items {
		response.Items = append(response.Items, dto.NewResultItemResponse(item))
	}
	return response, nil
}

func (s *attemptService) SetRepresentative(ctx context.Context, examID uint, payload dto.SetRepresentativeRequest, actor ActivityActor) (dto.AttemptResponse, error) {
	tracer := otel.Tracer("github.com/noah-isme/gema-results-api/internal/service/attempt")
	ctx, span := tracer.Start(ctx, "attempt.set_representative")
	span.SetAttributes(
		attribute.Int64("result.exam_id", int64(examID)),
		attribute.Int64("result.enrollment_id", int64(payload.EnrollmentID)),
		attribute.Int64("result.attempt_id", int64(payload.AttemptID)),
		attribute.Int64("result.actor_id", int64(actor.ID)),
	)
	defer span.End()

	if err := s.validator.Struct(payload); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation_failed")
		return dto.AttemptResponse{}, err
	}

	attempt, changed, err := s.attempts.SetRepresentative(ctx, examID, payload.EnrollmentID, payload.AttemptID, func(target models.Attempt) error {
		return results.CheckSelectable(target.Status)
	})
	if err != nil {
		span.RecordError(err)
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			span.SetStatus(codes.Error, "attempt_not_in_enrollment")
			observability.RepresentativeSwaps().WithLabelValues("rejected").Inc()
			return dto.AttemptResponse{}, results.ErrAttemptNotInEnrollment
		case errors.Is(err, results.ErrAttemptGrading), errors.Is(err, results.ErrAttemptStatusUnknown):
			span.SetStatus(codes.Error, "attempt_locked")
			observability.RepresentativeSwaps().WithLabelValues("rejected").Inc()
			return dto.AttemptResponse{}, err
		default:
			span.SetStatus(codes.Error, "swap_failed")
			observability.RepresentativeSwaps().WithLabelValues("error").Inc()
			return dto.AttemptResponse{}, err
		}
	}

	span.SetAttributes(attribute.Bool("result.changed", changed))
	if !changed {
		observability.RepresentativeSwaps().WithLabelValues("unchanged").Inc()
		return dto.NewAttemptResponse(attempt), nil
	}
	observability.RepresentativeSwaps().WithLabelValues("swapped").Inc()

	if s.cache != nil {
		if err := s.cache.InvalidateResult(ctx, examID, payload.EnrollmentID); err != nil {
			span.RecordError(err)
		}
	}

	if s.locks != nil {
		if err := s.locks.SyncRegrading(ctx, examID, payload.EnrollmentID, attempt.Status); err != nil {
			s.logger.Warn().Err(err).Uint("attempt_id", attempt.ID).Msg("failed to sync edit lock after representative change")
			span.RecordError(err)
		}
	}

	if s.activity != nil {
		_, _ = s.activity.Record(ctx, ActivityEntry{
			ActorID:      actor.ID,
			ActorRole:    actor.Role,
			Action:       ActionRepresentativeChanged,
			EntityType:   "attempt",
			EntityID:     uintPtr(attempt.ID),
			ExamID:       uintPtr(examID),
			EnrollmentID: uintPtr(payload.EnrollmentID),
			Metadata: map[string]interface{}{
				"attempt_id":    attempt.ID,
				"attempt_index": attempt.AttemptIndex,
				"status":        attempt.Status,
			},
		})
	}

	s.logger.Info().
		Uint("exam_id", examID).
		Uint("enrollment_id", payload.EnrollmentID).
		Uint("attempt_id", attempt.ID).
		Msg("representative attempt changed")

	return dto.NewAttemptResponse(attempt), nil
}
