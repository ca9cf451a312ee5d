package models

import "time"

// EditState is the authority-owned edit lock of one exam result.
type EditState struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	ExamID        uint      `gorm:"not null;uniqueIndex:idx_edit_state_result" json:"exam_id"`
	EnrollmentID  uint      `gorm:"not null;uniqueIndex:idx_edit_state_result" json:"enrollment_id"`
	CanEdit       bool      `gorm:"not null" json:"can_edit"`
	IsLocked      bool      `gorm:"not null;default:false" json:"is_locked"`
	LockReason    *string   `gorm:"size:255" json:"lock_reason"`
	LastUpdatedBy *uint     `json:"last_updated_by"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
