package dto

import (
	"time"

	"gorm.io/datatypes"

	"github.com/noah-isme/gema-results-api/internal/models"
)

// ActivityListRequest defines filters for retrieving result audit entries.
type ActivityListRequest struct {
	Page         int
	PageSize     int
	ExamID       *uint
	EnrollmentID *uint
	Action       string
}

// ActivityResponse serializes an audit entry.
type ActivityResponse struct {
	ID           uint                   `json:"id"`
	ActorID      uint                   `json:"actor_id"`
	ActorRole    string                 `json:"actor_role"`
	Action       string                 `json:"action"`
	EntityType   string                 `json:"entity_type"`
	EntityID     *uint                  `json:"entity_id"`
	ExamID       *uint                  `json:"exam_id"`
	EnrollmentID *uint                  `json:"enrollment_id"`
	Metadata     map[string]interface{} `json:"metadata"`
	CreatedAt    time.Time              `json:"created_at"`
}

// ActivityListResponse wraps paginated audit entries.
type ActivityListResponse struct {
	Items      []ActivityResponse `json:"items"`
	Pagination PaginationMeta     `json:"pagination"`
}

func metadataFromJSON(data datatypes.JSONMap) map[string]interface{} {
	if data == nil {
		return map[string]interface{}{}
	}
	return map[string]interface{}(data)
}

// NewActivityResponse converts a model into an audit DTO.
func NewActivityResponse(entry models.ActivityLog) ActivityResponse {
	return ActivityResponse{
		ID:           entry.ID,
		ActorID:      entry.ActorID,
		ActorRole:    entry.ActorRole,
		Action:       entry.Action,
		EntityType:   entry.EntityType,
		EntityID:     entry.EntityID,
		ExamID:       entry.ExamID,
		EnrollmentID: entry.EnrollmentID,
		Metadata:     metadataFromJSON(entry.Metadata),
		CreatedAt:    entry.CreatedAt,
	}
}
