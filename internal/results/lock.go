package results

import (
	"strings"
	"time"
)

// RegradingLockReason is the lock reason set while a representative attempt is re-graded.
const RegradingLockReason = "representative attempt currently re-grading"

// EditState describes whether manual score editing is allowed for one result. Fields are
// pointers so that an absent field can be told apart from false.
type EditState struct {
	CanEdit       *bool      `json:"can_edit"`
	IsLocked      *bool      `json:"is_locked"`
	LockReason    *string    `json:"lock_reason"`
	LastUpdatedBy *uint      `json:"last_updated_by"`
	UpdatedAt     *time.Time `json:"updated_at"`
}

// NewEditState builds a fully populated EditState.
func NewEditState(canEdit, locked bool, reason *string, updatedBy *uint, updatedAt time.Time) *EditState {
	return &EditState{
		CanEdit:       &canEdit,
		IsLocked:      &locked,
		LockReason:    reason,
		LastUpdatedBy: updatedBy,
		UpdatedAt:     &updatedAt,
	}
}

// CanEdit reports whether editing is permitted. Missing state or missing fields deny.
func CanEdit(state *EditState) bool {
	if state == nil || state.CanEdit == nil || state.IsLocked == nil {
		return false
	}
	return *state.CanEdit && !*state.IsLocked
}

// Locked reports whether the state explicitly holds a lock.
func (s *EditState) Locked() bool {
	return s != nil && s.IsLocked != nil && *s.IsLocked
}

// LockMessage explains why editing is unavailable. It returns an empty string when
// editing is allowed.
func LockMessage(state *EditState) string {
	switch {
	case state == nil || state.CanEdit == nil || state.IsLocked == nil:
		return ErrMissingEditState.Error()
	case *state.IsLocked:
		if state.LockReason != nil && strings.TrimSpace(*state.LockReason) != "" {
			return *state.LockReason
		}
		return "editing is locked"
	case !*state.CanEdit:
		return "no permission to edit this result"
	default:
		return ""
	}
}
