package service

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/rs/zerolog"
	"gorm.io/datatypes"

	"github.com/noah-isme/gema-results-api/internal/dto"
	"github.com/noah-isme/gema-results-api/internal/models"
	"github.com/noah-isme/gema-results-api/internal/repository"
)

// Audit actions recorded for result changes.
const (
	ActionRepresentativeChanged = "result.representative_changed"
	ActionScorePatched          = "result.score_patched"
	ActionEditLockChanged       = "result.edit_lock_changed"
	ActionGradingEvent          = "result.grading_event"
)

// ActivityActor represents the authenticated actor performing a result change.
type ActivityActor struct {
	ID   uint
	Role string
}

// SystemActor is used for changes driven by the grading pipeline.
var SystemActor = ActivityActor{Role: "system"}

// ActivityEntry captures the details required to persist an audit entry.
type ActivityEntry struct {
	ActorID      uint
	ActorRole    string
	Action       string
	EntityType   string
	EntityID     *uint
	ExamID       *uint
	EnrollmentID *uint
	Metadata     map[string]interface{}
}

// ActivityRecorder defines behaviour for recording activity logs.
type ActivityRecorder interface {
	Record(ctx context.Context, entry ActivityEntry) (dto.ActivityResponse, error)
}

// ActivityService exposes methods to query and persist the result audit trail.
type ActivityService interface {
	ActivityRecorder
	List(ctx context.Context, req dto.ActivityListRequest) (dto.ActivityListResponse, error)
}

type activityService struct {
	repo   repository.ActivityLogRepository
	logger zerolog.Logger
}

// NewActivityService constructs the activity log service.
func NewActivityService(repo repository.ActivityLogRepository, logger zerolog.Logger) ActivityService {
	return &activityService{
		repo:   repo,
		logger: logger.With().Str("component", "activity_service").Logger(),
	}
}

func (s *activityService) Record(ctx context.Context, entry ActivityEntry) (dto.ActivityResponse, error) {
	model, err := newActivityLog(entry)
	if err != nil {
		return dto.ActivityResponse{}, err
	}

	if err := s.repo.Create(ctx, &model); err != nil {
		s.logger.Error().Err(err).Str("action", model.Action).Msg("failed to persist activity log")
		return dto.ActivityResponse{}, err
	}

	return dto.NewActivityResponse(model), nil
}

func (s *activityService) List(ctx context.Context, req dto.ActivityListRequest) (dto.ActivityListResponse, error) {
	filter := repository.ActivityLogFilter{
		Page:         req.Page,
		PageSize:     req.PageSize,
		ExamID:       req.ExamID,
		EnrollmentID: req.EnrollmentID,
		Action:       strings.TrimSpace(req.Action),
	}

	entries, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return dto.ActivityListResponse{}, err
	}

	responses := make([]dto.ActivityResponse, 0, len(entries))
	for _, entry := range entries {
		responses = append(responses, dto.NewActivityResponse(entry))
	}

	pagination := dto.PaginationMeta{
		Page:       maxInt(req.Page, 1),
		PageSize:   req.PageSize,
		TotalItems: total,
	}
	if req.PageSize > 0 {
		pagination.TotalPages = int(math.Ceil(float64(total) / float64(req.PageSize)))
	} else {
		pagination.TotalPages = 1
	}

	return dto.ActivityListResponse{Items: responses, Pagination: pagination}, nil
}

func newActivityLog(entry ActivityEntry) (models.ActivityLog, error) {
	if strings.TrimSpace(entry.Action) == "" {
		return models.ActivityLog{}, fmt.Errorf("action is required")
	}
	if strings.TrimSpace(entry.EntityType) == "" {
		return models.ActivityLog{}, fmt.Errorf("entity type is required")
	}

	return models.ActivityLog{
		ActorID:      entry.ActorID,
		ActorRole:    normalizeRole(entry.ActorRole),
		Action:       strings.ToLower(strings.TrimSpace(entry.Action)),
		EntityType:   strings.ToLower(strings.TrimSpace(entry.EntityType)),
		EntityID:     entry.EntityID,
		ExamID:       entry.ExamID,
		EnrollmentID: entry.EnrollmentID,
		Metadata:     sanitizeMetadata(entry.Metadata),
	}, nil
}

func sanitizeMetadata(metadata map[string]interface{}) datatypes.JSONMap {
	if metadata == nil {
		return datatypes.JSONMap{}
	}

	sanitized := datatypes.JSONMap{}
	for key, value := range metadata {
		lower := strings.ToLower(key)
		if strings.Contains(lower, "email") || strings.Contains(lower, "token") {
			sanitized[key] = "***"
			continue
		}
		sanitized[key] = value
	}
	return sanitized
}

func normalizeRole(role string) string {
	r := strings.ToLower(strings.TrimSpace(role))
	if r == "" {
		return "system"
	}
	return r
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func uintPtr(v uint) *uint {
	return &v
}
