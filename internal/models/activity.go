package models

import (
	"time"

	"gorm.io/datatypes"
)

// ActivityLog is the audit trail of result changes made by operators and the pipeline.
type ActivityLog struct {
	ID           uint              `gorm:"primaryKey" json:"id"`
	ActorID      uint              `gorm:"not null" json:"actor_id"`
	ActorRole    string            `gorm:"size:32;not null" json:"actor_role"`
	Action       string            `gorm:"size:64;not null;index" json:"action"`
	EntityType   string            `gorm:"size:64;not null" json:"entity_type"`
	EntityID     *uint             `json:"entity_id"`
	ExamID       *uint             `gorm:"index:idx_activity_result" json:"exam_id"`
	EnrollmentID *uint             `gorm:"index:idx_activity_result" json:"enrollment_id"`
	Metadata     datatypes.JSONMap `gorm:"type:json" json:"metadata"`
	CreatedAt    time.Time         `json:"created_at"`
}
