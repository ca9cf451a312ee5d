package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-results-api/internal/dto"
	"github.com/noah-isme/gema-results-api/internal/repository"
)

func TestActivityServiceRecordAndList(t *testing.T) {
	db := newServiceDB(t)
	svc := NewActivityService(repository.NewActivityLogRepository(db), testLogger())
	ctx := context.Background()

	examID, otherExam, enrollmentID := uint(4), uint(5), uint(9)
	_, err := svc.Record(ctx, ActivityEntry{ActorID: 1, ActorRole: " Teacher ", Action: ActionScorePatched, EntityType: "result_item", ExamID: &examID, EnrollmentID: &enrollmentID, Metadata: map[string]interface{}{"score": 7.5, "reset_token": "abc"}})
	require.NoError(t, err)
	_, err = svc.Record(ctx, ActivityEntry{ActorID: 1, ActorRole: "teacher", Action: ActionEditLockChanged, EntityType: "edit_state", ExamID: &examID, EnrollmentID: &enrollmentID})
	require.NoError(t, err)
	_, err = svc.Record(ctx, ActivityEntry{ActorRole: "system", Action: ActionGradingEvent, EntityType: "attempt", ExamID: &otherExam})
	require.NoError(t, err)

	_, err = svc.Record(ctx, ActivityEntry{ActorID: 1})
	require.Error(t, err)

	list, err := svc.List(ctx, dto.ActivityListRequest{Page: 1, PageSize: 1, ExamID: &examID})
	require.NoError(t, err)
	require.Equal(t, int64(2), list.Pagination.TotalItems)
	require.Equal(t, 2, list.Pagination.TotalPages)
	require.Len(t, list.Items, 1)

	list, err = svc.List(ctx, dto.ActivityListRequest{Action: ActionScorePatched})
	require.NoError(t, err)
	require.Len(t, list.Items, 1)
	require.Equal(t, "teacher", list.Items[0].ActorRole)
	require.EqualValues(t, 7.5, list.Items[0].Metadata["score"])
	require.Equal(t, "***", list.Items[0].Metadata["reset_token"])
}
