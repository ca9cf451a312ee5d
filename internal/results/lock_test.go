package results

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCanEditFailsClosed(t *testing.T) {
	require.False(t, CanEdit(nil))
	require.Equal(t, ErrMissingEditState.Error(), LockMessage(nil))

	var partial EditState
	require.NoError(t, json.Unmarshal([]byte(`{"can_edit": true}`), &partial))
	require.False(t, CanEdit(&partial))

	var detail struct {
		EditState *EditState `json:"edit_state"`
		CanEdit   bool       `json:"can_edit"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"can_edit": true, "is_locked": false}`), &detail))
	require.Nil(t, detail.EditState)
	require.False(t, CanEdit(detail.EditState))
}

func TestCanEditCombinesFlags(t *testing.T) {
	now := time.Now()
	require.True(t, CanEdit(NewEditState(true, false, nil, nil, now)))
	require.False(t, CanEdit(NewEditState(false, false, nil, nil, now)))
	require.False(t, CanEdit(NewEditState(true, true, nil, nil, now)))
}

func TestLockMessageShowsReasonVerbatim(t *testing.T) {
	reason := RegradingLockReason
	state := NewEditState(true, true, &reason, nil, time.Now())
	require.True(t, state.Locked())
	require.Equal(t, RegradingLockReason, LockMessage(state))

	empty := " "
	require.Equal(t, "editing is locked", LockMessage(NewEditState(true, true, &empty, nil, time.Now())))
	require.Equal(t, "no permission to edit this result", LockMessage(NewEditState(false, false, nil, nil, time.Now())))
	require.Empty(t, LockMessage(NewEditState(true, false, nil, nil, time.Now())))
}
