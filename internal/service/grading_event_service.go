package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v5"
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

// ErrInvalidGradingEvent marks an event rejected by the event schema.
var ErrInvalidGradingEvent = fmt.Errorf("%w: invalid grading event", results.ErrValidation)

const gradingEventSchemaURL = "mem://schemas/grading_event.json"

const gradingEventSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["type", "exam_id", "enrollment_id"],
  "properties": {
    "type": {"enum": ["attempt.created", "attempt.status", "attempt.graded"]},
    "exam_id": {"type": "integer", "minimum": 1},
    "enrollment_id": {"type": "integer", "minimum": 1},
    "attempt_id": {"type": ["integer", "null"], "minimum": 1},
    "status": {"type": "string", "maxLength": 32},
    "submission_status": {"type": ["string", "null"], "maxLength": 32},
    "submission_id": {"type": ["integer", "null"], "minimum": 1},
    "submitted_at": {"type": ["string", "null"], "format": "date-time"},
    "items": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["question_id", "score", "max_score"],
        "properties": {
          "question_id": {"type": "integer", "minimum": 1},
          "question_number": {"type": ["integer", "null"]},
          "score": {"type": "number", "minimum": 0},
          "max_score": {"type": "number", "minimum": 0},
          "is_correct": {"type": "boolean"},
          "is_editable": {"type": "boolean"},
          "pending_review": {"type": "boolean"}
        }
      }
    }
  },
  "allOf": [
    {
      "if": {"properties": {"type": {"enum": ["attempt.status", "attempt.graded"]}}},
      "then": {"required": ["attempt_id"]}
    },
    {
      "if": {"properties": {"type": {"const": "attempt.status"}}},
      "then": {"required": ["status"]}
    },
    {
      "if": {"properties": {"type": {"const": "attempt.graded"}}},
      "then": {"required": ["items"]}
    }
  ]
}`

// GradingEventService applies grading pipeline events to the result store.
type GradingEventService interface {
	Ingest(ctx context.Context, payload []byte) (dto.GradingEventResponse, error)
	Consume(ctx context.Context, conn *nats.Conn, subject string) error
}

type gradingEventService struct {
	attempts repository.AttemptRepository
	results  repository.ResultRepository
	states   repository.EditStateRepository
	locks    EditLockService
	cache    ViewCache
	activity ActivityRecorder
	schema   *jsonschema.Schema
	logger   zerolog.Logger
}

// NewGradingEventService compiles the event schema and constructs the service.
func NewGradingEventService(attempts repository.AttemptRepository, resultRepo repository.ResultRepository, states repository.EditStateRepository, locks EditLockService, cache ViewCache, activity ActivityRecorder, logger zerolog.Logger) (GradingEventService, error) {
	compiler := jsonschema.NewCompiler()
	compiler.AssertFormat = true
	if err := compiler.AddResource(gradingEventSchemaURL, strings.NewReader(gradingEventSchema)); err != nil {
		return nil, fmt.Errorf("load grading event schema: %w", err)
	}
	schema, err := compiler.Compile(gradingEventSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile grading event schema: %w", err)
	}

	return &gradingEventService{
		attempts: attempts,
		results:  resultRepo,
		states:   states,
		locks:    locks,
		cache:    cache,
		activity: activity,
		schema:   schema,
		logger:   logger.With().Str("component", "grading_event_service").Logger(),
	}, nil
}

// Consume applies events published on subject until ctx is cancelled.
func (s *gradingEventService) Consume(ctx context.Context, conn *nats.Conn, subject string) error {
	sub, err := conn.QueueSubscribe(subject, "gema-results-grading", func(msg *nats.Msg) {
		if _, err := s.Ingest(ctx, msg.Data); err != nil {
			s.logger.Warn().Err(err).Str("subject", msg.Subject).Msg("grading event rejected")
		}
	})
	if err != nil {
		return fmt.Errorf("subscribe to grading events: %w", err)
	}

	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to drain grading event subscription")
		}
	}()

	return nil
}

func (s *gradingEventService) Ingest(ctx context.Context, payload []byte) (dto.GradingEventResponse, error) {
	event, err := s.decode(payload)
	if err != nil {
		observability.GradingEvents().WithLabelValues("unknown", "invalid").Inc()
		return dto.GradingEventResponse{}, err
	}

	tracer := otel.Tracer("github.com/noah-isme/gema-results-api/internal/service/grading_event")
	ctx, span := tracer.Start(ctx, "grading_event.ingest")
	span.SetAttributes(
		attribute.String("grading_event.type", event.Type),
		attribute.Int64("result.exam_id", int64(event.ExamID)),
		attribute.Int64("result.enrollment_id", int64(event.EnrollmentID)),
	)
	defer span.End()

	response, err := s.apply(ctx, event)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "apply_failed")
		observability.GradingEvents().WithLabelValues(event.Type, "rejected").Inc()
		return dto.GradingEventResponse{}, err
	}

	observability.GradingEvents().WithLabelValues(event.Type, "applied").Inc()
	return response, nil
}

func (s *gradingEventService) decode(payload []byte) (dto.GradingEvent, error) {
	decoder := json.NewDecoder(bytes.NewReader(payload))
	decoder.UseNumber()
	var document interface{}
	if err := decoder.Decode(&document); err != nil {
		return dto.GradingEvent{}, fmt.Errorf("%w: %v", ErrInvalidGradingEvent, err)
	}
	if err := s.schema.Validate(document); err != nil {
		return dto.GradingEvent{}, fmt.Errorf("%w: %v", ErrInvalidGradingEvent, err)
	}

	var event dto.GradingEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return dto.GradingEvent{}, fmt.Errorf("%w: %v", ErrInvalidGradingEvent, err)
	}
	return event, nil
}

func (s *gradingEventService) apply(ctx context.Context, event dto.GradingEvent) (dto.GradingEventResponse, error) {
	if _, err := s.results.GetExam(ctx, event.ExamID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.GradingEventResponse{}, ErrExamNotFound
		}
		return dto.GradingEventResponse{}, err
	}
	if _, err := s.results.GetEnrollment(ctx, event.EnrollmentID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.GradingEventResponse{}, ErrEnrollmentNotFound
		}
		return dto.GradingEventResponse{}, err
	}

	if err := s.syncExamResult(ctx, event); err != nil {
		return dto.GradingEventResponse{}, err
	}
	if _, err := s.states.Ensure(ctx, event.ExamID, event.EnrollmentID); err != nil {
		return dto.GradingEventResponse{}, err
	}

	var (
		attempt models.Attempt
		err     error
	)
	switch event.Type {
	case dto.GradingEventAttemptCreated:
		attempt, err = s.createAttempt(ctx, event)
	case dto.GradingEventAttemptStatus:
		attempt, err = s.updateStatus(ctx, event, event.Status)
	case dto.GradingEventAttemptGraded:
		attempt, err = s.recordGrades(ctx, event)
	default:
		err = ErrInvalidGradingEvent
	}
	if err != nil {
		return dto.GradingEventResponse{}, err
	}

	if attempt.IsRepresentative && s.locks != nil {
		if err := s.locks.SyncRegrading(ctx, event.ExamID, event.EnrollmentID, attempt.Status); err != nil {
			s.logger.Warn().Err(err).Uint("attempt_id", attempt.ID).Msg("failed to sync edit lock with grading state")
		}
	}

	if s.cache != nil {
		if err := s.cache.InvalidateResult(ctx, event.ExamID, event.EnrollmentID); err != nil {
			s.logger.Warn().Err(err).Msg("grading event applied but cached views could not be invalidated")
		}
	}

	if s.activity != nil {
		_, _ = s.activity.Record(ctx, ActivityEntry{
			ActorID:      SystemActor.ID,
			ActorRole:    SystemActor.Role,
			Action:       ActionGradingEvent,
			EntityType:   "attempt",
			EntityID:     uintPtr(attempt.ID),
			ExamID:       uintPtr(event.ExamID),
			EnrollmentID: uintPtr(event.EnrollmentID),
			Metadata: map[string]interface{}{
				"type":   event.Type,
				"status": attempt.Status,
				"items":  len(event.Items),
			},
		})
	}

	return dto.GradingEventResponse{
		Type:             event.Type,
		AttemptID:        attempt.ID,
		Status:           attempt.Status,
		IsRepresentative: attempt.IsRepresentative,
	}, nil
}

func (s *gradingEventService) syncExamResult(ctx context.Context, event dto.GradingEvent) error {
	result, err := s.results.GetExamResult(ctx, event.ExamID, event.EnrollmentID)
	switch {
	case err == nil:
	case errors.Is(err, gorm.ErrRecordNotFound):
		result = models.ExamResult{ExamID: event.ExamID, EnrollmentID: event.EnrollmentID}
	default:
		return err
	}

	if event.SubmissionStatus != nil {
		result.SubmissionStatus = *event.SubmissionStatus
	}
	if event.SubmissionID != nil {
		result.SubmissionID = event.SubmissionID
	}
	if event.SubmittedAt != nil {
		result.SubmittedAt = event.SubmittedAt
	}

	return s.results.UpsertExamResult(ctx, &models.ExamResult{
		ExamID:           result.ExamID,
		EnrollmentID:     result.EnrollmentID,
		SubmissionStatus: result.SubmissionStatus,
		SubmissionID:     result.SubmissionID,
		SubmittedAt:      result.SubmittedAt,
	})
}

func (s *gradingEventService) createAttempt(ctx context.Context, event dto.GradingEvent) (models.Attempt, error) {
	index, err := s.attempts.NextIndex(ctx, event.ExamID, event.EnrollmentID)
	if err != nil {
		return models.Attempt{}, err
	}

	hasRepresentative := true
	if _, err := s.attempts.GetRepresentative(ctx, event.ExamID, event.EnrollmentID); err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Attempt{}, err
		}
		hasRepresentative = false
	}

	status := strings.TrimSpace(event.Status)
	if status == "" {
		status = results.AttemptStatusPending
	}

	attempt := models.Attempt{
		ExamID:           event.ExamID,
		EnrollmentID:     event.EnrollmentID,
		AttemptIndex:     index,
		IsRetake:         index > 1,
		IsRepresentative: !hasRepresentative,
		Status:           status,
	}
	if err := s.attempts.Create(ctx, &attempt); err != nil {
		return models.Attempt{}, err
	}
	return attempt, nil
}

func (s *gradingEventService) loadAttempt(ctx context.Context, event dto.GradingEvent) (models.Attempt, error) {
	attempt, err := s.attempts.GetByID(ctx, *event.AttemptID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Attempt{}, results.ErrAttemptNotInEnrollment
		}
		return models.Attempt{}, err
	}
	if attempt.ExamID != event.ExamID || attempt.EnrollmentID != event.EnrollmentID {
		return models.Attempt{}, results.ErrAttemptNotInEnrollment
	}
	return attempt, nil
}

func (s *gradingEventService) updateStatus(ctx context.Context, event dto.GradingEvent, status string) (models.Attempt, error) {
	attempt, err := s.loadAttempt(ctx, event)
	if err != nil {
		return models.Attempt{}, err
	}

	status = strings.TrimSpace(status)
	if err := s.attempts.UpdateStatus(ctx, attempt.ID, status); err != nil {
		return models.Attempt{}, err
	}
	attempt.Status = status
	return attempt, nil
}

func (s *gradingEventService) recordGrades(ctx context.Context, event dto.GradingEvent) (models.Attempt, error) {
	attempt, err := s.loadAttempt(ctx, event)
	if err != nil {
		return models.Attempt{}, err
	}

	items := make([]models.ResultItem, 0, len(event.Items))
	for _, item := range event.Items {
		if err := results.ValidateScore(item.Score, item.MaxScore); err != nil {
			return models.Attempt{}, fmt.Errorf("question %d: %w", item.QuestionID, err)
		}
		items = append(items, item.ToModel())
	}

	if err := s.attempts.ReplaceItems(ctx, attempt.ID, items); err != nil {
		return models.Attempt{}, err
	}

	status := event.Status
	if strings.TrimSpace(status) == "" {
		status = results.AttemptStatusDone
	}
	return s.updateStatus(ctx, event, status)
}
