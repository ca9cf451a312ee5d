package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-results-api/internal/dto"
	"github.com/noah-isme/gema-results-api/internal/models"
	"github.com/noah-isme/gema-results-api/internal/repository"
	"github.com/noah-isme/gema-results-api/internal/results"
)

func seedWrongNotes(t *testing.T, stack testStack, wrong int) seeded {
	t.Helper()
	data := stack.seed(t, nil, nil, "done", "done")
	items := make([]models.ResultItem, 0, wrong+1)
	for i := 1; i <= wrong; i++ {
		items = append(items, models.ResultItem{QuestionID: uint(100 + i), QuestionNumber: intPtr(i), Answer: "A", CorrectAnswer: "B", MaxScore: 5})
	}
	items = append(items, models.ResultItem{QuestionID: 999, QuestionNumber: intPtr(wrong + 1), Answer: "B", CorrectAnswer: "B", IsCorrect: true, Score: 5, MaxScore: 5})
	stack.items(t, data.attempts[0].ID, items...)
	stack.items(t, data.attempts[1].ID, models.ResultItem{QuestionID: 500, Answer: "X", CorrectAnswer: "Y", MaxScore: 5})
	return data
}

func TestWrongNoteServiceListPages(t *testing.T) {
	stack := newTestStack(t)
	svc := NewWrongNoteService(repository.NewWrongNoteRepository(stack.db), testValidator(), testLogger())
	data := seedWrongNotes(t, stack, 5)
	ctx := context.Background()

	page, err := svc.List(ctx, dto.WrongNoteQuery{EnrollmentID: data.enrollment.ID, Limit: 2})
	require.NoError(t, err)
	require.Equal(t, int64(5), page.Count)
	require.Len(t, page.Results, 2)
	require.NotNil(t, page.Next)
	require.Equal(t, 2, *page.Next)
	require.Nil(t, page.Prev)
	require.Equal(t, "B", page.Results[0].CorrectAnswer)
	require.Equal(t, "A", page.Results[0].StudentAnswer)

	page, err = svc.List(ctx, dto.WrongNoteQuery{EnrollmentID: data.enrollment.ID, Offset: 4, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Results, 1)
	require.Nil(t, page.Next)
	require.NotNil(t, page.Prev)
	require.Equal(t, 2, *page.Prev)

	for _, note := range page.Results {
		require.Equal(t, data.attempts[0].ID, note.AttemptID)
		require.False(t, note.IsCorrect)
	}
}

func TestWrongNoteServiceCollectReadsAllPages(t *testing.T) {
	stack := newTestStack(t)
	svc := NewWrongNoteService(repository.NewWrongNoteRepository(stack.db), testValidator(), testLogger())
	data := seedWrongNotes(t, stack, collectPageSize+3)

	notes, err := svc.Collect(context.Background(), data.enrollment.ID, results.WrongNoteFilter{})
	require.NoError(t, err)
	require.Len(t, notes, collectPageSize+3)

	seen := map[results.WrongNoteKey]bool{}
	for _, note := range notes {
		require.False(t, seen[note.NoteKey()])
		seen[note.NoteKey()] = true
	}
}

func TestWrongNoteServiceValidatesQuery(t *testing.T) {
	stack := newTestStack(t)
	svc := NewWrongNoteService(repository.NewWrongNoteRepository(stack.db), testValidator(), testLogger())

	_, err := svc.List(context.Background(), dto.WrongNoteQuery{})
	require.Error(t, err)

	negative := -1
	_, err = svc.Collect(context.Background(), 1, results.WrongNoteFilter{FromSessionOrder: &negative})
	require.ErrorIs(t, err, results.ErrValidation)
}
