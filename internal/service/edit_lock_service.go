package service

import (
	"context"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-results-api/internal/dto"
	"github.com/noah-isme/gema-results-api/internal/repository"
	"github.com/noah-isme/gema-results-api/internal/results"
)

// EditLockService manages the authority-owned edit state of results.
type EditLockService interface {
	Get(ctx context.Context, examID, enrollmentID uint) (*results.EditState, error)
	SetLock(ctx context.Context, examID, enrollmentID uint, payload dto.EditLockRequest, actor ActivityActor) (*results.EditState, error)
	SyncRegrading(ctx context.Context, examID, enrollmentID uint, representativeStatus string) error
}

type editLockService struct {
	states    repository.EditStateRepository
	results   repository.ResultRepository
	cache     ViewCache
	activity  ActivityRecorder
	validator *validator.Validate
	sanitizer *bluemonday.Policy
	logger    zerolog.Logger
}

// NewEditLockService constructs the edit lock service.
func NewEditLockService(states repository.EditStateRepository, resultRepo repository.ResultRepository, cache ViewCache, activity ActivityRecorder, validate *validator.Validate, logger zerolog.Logger) EditLockService {
	return &editLockService{
		states:    states,
		results:   resultRepo,
		cache:     cache,
		activity:  activity,
		validator: validate,
		sanitizer: bluemonday.StrictPolicy(),
		logger:    logger.With().Str("component", "edit_lock_service").Logger(),
	}
}

// Get returns nil without error when the result has no edit state yet.
func (s *editLockService) Get(ctx context.Context, examID, enrollmentID uint) (*results.EditState, error) {
	state, err := s.states.Get(ctx, examID, enrollmentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return dto.NewEditStateResponse(state), nil
}

func (s *editLockService) SetLock(ctx context.Context, examID, enrollmentID uint, payload dto.EditLockRequest, actor ActivityActor) (*results.EditState, error) {
	if err := s.validator.Struct(payload); err != nil {
		return nil, err
	}

	if _, err := s.results.GetExamResult(ctx, examID, enrollmentID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrResultNotFound
		}
		return nil, err
	}

	state, err := s.states.Ensure(ctx, examID, enrollmentID)
	if err != nil {
		return nil, err
	}

	state.IsLocked = payload.Locked
	state.LockReason = nil
	if payload.Locked && payload.Reason != nil {
		if reason := strings.TrimSpace(s.sanitizer.Sanitize(*payload.Reason)); reason != "" {
			state.LockReason = &reason
		}
	}
	if payload.CanEdit != nil {
		state.CanEdit = *payload.CanEdit
	}
	state.LastUpdatedBy = uintPtr(actor.ID)

	if err := s.states.Save(ctx, &state); err != nil {
		return nil, err
	}

	s.invalidate(ctx, examID, enrollmentID)

	if s.activity != nil {
		metadata := map[string]interface{}{
			"locked":   state.IsLocked,
			"can_edit": state.CanEdit,
		}
		if state.LockReason != nil {
			metadata["reason"] = *state.LockReason
		}
		_, _ = s.activity.Record(ctx, ActivityEntry{
			ActorID:      actor.ID,
			ActorRole:    actor.Role,
			Action:       ActionEditLockChanged,
			EntityType:   "edit_state",
			EntityID:     uintPtr(state.ID),
			ExamID:       uintPtr(examID),
			EnrollmentID: uintPtr(enrollmentID),
			Metadata:     metadata,
		})
	}

	return dto.NewEditStateResponse(state), nil
}

// SyncRegrading locks a result while its representative attempt is grading and releases
// only the lock it placed itself once grading ends.
func (s *editLockService) SyncRegrading(ctx context.Context, examID, enrollmentID uint, representativeStatus string) error {
	state, err := s.states.Ensure(ctx, examID, enrollmentID)
	if err != nil {
		return err
	}

	status, _ := results.NormalizeAttemptStatus(representativeStatus)
	grading := status == results.AttemptStatusGrading
	heldForRegrading := state.IsLocked && state.LockReason != nil && *state.LockReason == results.RegradingLockReason

	switch {
	case grading && !state.IsLocked:
		reason := results.RegradingLockReason
		state.IsLocked = true
		state.LockReason = &reason
	case !grading && heldForRegrading:
		state.IsLocked = false
		state.LockReason = nil
	default:
		return nil
	}

	if err := s.states.Save(ctx, &state); err != nil {
		return err
	}

	s.logger.Info().
		Uint("exam_id", examID).
		Uint("enrollment_id", enrollmentID).
		Bool("locked", state.IsLocked).
		Msg("edit lock synced with representative grading state")

	s.invalidate(ctx, examID, enrollmentID)
	return nil
}

func (s *editLockService) invalidate(ctx context.Context, examID, enrollmentID uint) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateResult(ctx, examID, enrollmentID); err != nil {
		s.logger.Warn().Err(err).Msg("edit state changed but cached views could not be invalidated")
	}
}

