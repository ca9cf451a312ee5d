package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type cachedView struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestViewCacheStoreLoadInvalidate(t *testing.T) {
	cache, server := newTestCache(t)
	ctx := context.Background()

	detail := ResultViewKey(ViewDetail, 3, 8, 0)
	rows := ExamViewKey(ViewRows, 3, 0)
	otherExam := ExamViewKey(ViewRows, 4, 0)

	cache.Store(ctx, detail, cachedView{Name: "detail", Count: 1})
	cache.Store(ctx, rows, cachedView{Name: "rows", Count: 2})
	cache.Store(ctx, otherExam, cachedView{Name: "rows", Count: 3})

	var view cachedView
	require.True(t, cache.Load(ctx, detail, &view))
	require.Equal(t, "detail", view.Name)
	require.Greater(t, server.TTL(detail), time.Duration(0))

	require.NoError(t, cache.InvalidateResult(ctx, 3, 8))
	require.False(t, cache.Load(ctx, detail, &view))
	require.False(t, cache.Load(ctx, rows, &view))
	require.True(t, cache.Load(ctx, otherExam, &view))
	require.Equal(t, 3, view.Count)
}

func TestViewCacheDiscardsCorruptEntries(t *testing.T) {
	cache, server := newTestCache(t)
	key := ExamViewKey(ViewSummary, 1, 0)
	require.NoError(t, server.Set(key, "{not json"))

	var view cachedView
	require.False(t, cache.Load(context.Background(), key, &view))
}

func TestViewCacheWithoutRedisIsNoop(t *testing.T) {
	cache := NewViewCache(nil, 0, testLogger())
	ctx := context.Background()

	require.Empty(t, cache.ExamKey(ctx, ViewRows, 1))
	cache.Store(ctx, "results:exam:1:rows", cachedView{Name: "rows"})
	var view cachedView
	require.False(t, cache.Load(ctx, "results:exam:1:rows", &view))
	require.NoError(t, cache.InvalidateResult(ctx, 1, 1))
}

func TestViewCacheInvalidationMovesKeysForward(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	before := cache.ResultKey(ctx, ViewDetail, 3, 8)
	rowsBefore := cache.ExamKey(ctx, ViewRows, 3)
	require.Equal(t, ResultViewKey(ViewDetail, 3, 8, 0), before)

	require.NoError(t, cache.InvalidateResult(ctx, 3, 8))

	// A read that began before the invalidation still writes under the old key.
	cache.Store(ctx, before, cachedView{Name: "stale"})
	cache.Store(ctx, rowsBefore, cachedView{Name: "stale"})

	after := cache.ResultKey(ctx, ViewDetail, 3, 8)
	require.Equal(t, ResultViewKey(ViewDetail, 3, 8, 1), after)
	var view cachedView
	require.False(t, cache.Load(ctx, after, &view))
	require.False(t, cache.Load(ctx, cache.ExamKey(ctx, ViewRows, 3), &view))

	require.Equal(t, ResultViewKey(ViewDetail, 3, 9, 0), cache.ResultKey(ctx, ViewDetail, 3, 9))
}
