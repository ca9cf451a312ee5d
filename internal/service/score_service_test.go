package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-results-api/internal/dto"
	"github.com/noah-isme/gema-results-api/internal/models"
	"github.com/noah-isme/gema-results-api/internal/results"
)

func newScoreServiceForTest(stack testStack) ScoreService {
	return NewScoreService(stack.results, stack.attempts, stack.cache, testValidator(), testLogger())
}

func seedEditable(t *testing.T, stack testStack) seeded {
	t.Helper()
	data := stack.seed(t, nil, nil, "done")
	stack.items(t, data.attempts[0].ID,
		models.ResultItem{QuestionID: 1, QuestionNumber: intPtr(1), Score: 2, MaxScore: 10, IsEditable: true, PendingReview: true},
		models.ResultItem{QuestionID: 2, QuestionNumber: intPtr(2), Score: 10, MaxScore: 10, IsCorrect: true},
	)
	return data
}

func TestScoreServicePatchAppliesCorrection(t *testing.T) {
	stack := newTestStack(t)
	svc := newScoreServiceForTest(stack)
	data := seedEditable(t, stack)
	ctx := context.Background()
	_, err := stack.states.Ensure(ctx, data.exam.ID, data.enrollment.ID)
	require.NoError(t, err)
	stack.redis.Set(ResultViewKey(ViewDetail, data.exam.ID, data.enrollment.ID, 0), "{}")

	item, err := svc.PatchItemScore(ctx, data.exam.ID, data.enrollment.ID, 1, dto.PatchItemScoreRequest{
		Score:  floatPtr(10),
		Reason: "<b>recounted</b> essay",
	}, ActivityActor{ID: 5, Role: "teacher"})
	require.NoError(t, err)
	require.InDelta(t, 10, item.Score, 0.001)
	require.True(t, item.IsCorrect)
	require.False(t, item.PendingReview)
	require.False(t, stack.redis.Exists(ResultViewKey(ViewDetail, data.exam.ID, data.enrollment.ID, 0)))

	attempt, err := stack.attempts.GetByID(ctx, data.attempts[0].ID)
	require.NoError(t, err)
	require.InDelta(t, 20, *attempt.GradingTotalScore, 0.001)

	var audit models.ActivityLog
	require.NoError(t, stack.db.Where("action = ?", ActionScorePatched).First(&audit).Error)
	require.Equal(t, "recounted essay", audit.Metadata["reason"])
	require.EqualValues(t, 2, audit.Metadata["previous_score"])
}

func TestScoreServiceSurfacesLockReasonVerbatim(t *testing.T) {
	stack := newTestStack(t)
	svc := newScoreServiceForTest(stack)
	data := seedEditable(t, stack)
	ctx := context.Background()
	state, err := stack.states.Ensure(ctx, data.exam.ID, data.enrollment.ID)
	require.NoError(t, err)
	state.IsLocked = true
	state.LockReason = strPtr("Final grades were published on 3 March")
	require.NoError(t, stack.states.Save(ctx, &state))

	_, err = svc.PatchItemScore(ctx, data.exam.ID, data.enrollment.ID, 1, dto.PatchItemScoreRequest{Score: floatPtr(5)}, ActivityActor{ID: 5, Role: "teacher"})
	require.ErrorIs(t, err, ErrEditLocked)
	require.Equal(t, "Final grades were published on 3 March", err.Error())

	items, err := stack.results.ListItems(ctx, data.attempts[0].ID)
	require.NoError(t, err)
	require.InDelta(t, 2, items[0].Score, 0.001)
}

func TestScoreServiceFailsClosedWithoutEditState(t *testing.T) {
	stack := newTestStack(t)
	svc := newScoreServiceForTest(stack)
	data := seedEditable(t, stack)

	_, err := svc.PatchItemScore(context.Background(), data.exam.ID, data.enrollment.ID, 1, dto.PatchItemScoreRequest{Score: floatPtr(5)}, ActivityActor{ID: 5, Role: "teacher"})
	require.ErrorIs(t, err, ErrEditLocked)
	require.Equal(t, results.LockMessage(nil), err.Error())
}

func TestScoreServiceRejectsInvalidPatches(t *testing.T) {
	stack := newTestStack(t)
	svc := newScoreServiceForTest(stack)
	data := seedEditable(t, stack)
	ctx := context.Background()
	_, err := stack.states.Ensure(ctx, data.exam.ID, data.enrollment.ID)
	require.NoError(t, err)
	actor := ActivityActor{ID: 5, Role: "teacher"}

	_, err = svc.PatchItemScore(ctx, data.exam.ID, data.enrollment.ID, 1, dto.PatchItemScoreRequest{Score: floatPtr(12)}, actor)
	require.ErrorIs(t, err, results.ErrValidation)

	_, err = svc.PatchItemScore(ctx, data.exam.ID, data.enrollment.ID, 1, dto.PatchItemScoreRequest{Score: floatPtr(-1)}, actor)
	require.ErrorIs(t, err, results.ErrValidation)

	_, err = svc.PatchItemScore(ctx, data.exam.ID, data.enrollment.ID, 1, dto.PatchItemScoreRequest{}, actor)
	require.Error(t, err)

	_, err = svc.PatchItemScore(ctx, data.exam.ID, data.enrollment.ID, 2, dto.PatchItemScoreRequest{Score: floatPtr(5)}, actor)
	require.ErrorIs(t, err, ErrItemNotEditable)

	_, err = svc.PatchItemScore(ctx, data.exam.ID, data.enrollment.ID, 99, dto.PatchItemScoreRequest{Score: floatPtr(5)}, actor)
	require.ErrorIs(t, err, ErrItemNotFound)

	var audits int64
	require.NoError(t, stack.db.Model(&models.ActivityLog{}).Where("action = ?", ActionScorePatched).Count(&audits).Error)
	require.Zero(t, audits)
}

func TestScoreServiceRequiresRepresentative(t *testing.T) {
	stack := newTestStack(t)
	svc := newScoreServiceForTest(stack)
	data := stack.seed(t, nil, nil)

	_, err := svc.PatchItemScore(context.Background(), data.exam.ID, data.enrollment.ID, 1, dto.PatchItemScoreRequest{Score: floatPtr(1)}, ActivityActor{ID: 5})
	require.ErrorIs(t, err, ErrNoRepresentative)
}
