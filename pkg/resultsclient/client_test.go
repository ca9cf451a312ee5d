package resultsclient

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClientUnwrapsEnvelope(t *testing.T) {
	auth := newAuthority(t)
	auth.handle("GET "+detailPath, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		writeEnvelope(w, http.StatusOK, sampleDetail(openEditState()), "Result retrieved")
	})

	detail, err := auth.client().Detail(context.Background(), testKey)
	require.NoError(t, err)
	require.Equal(t, "Sari", detail.StudentName)
	require.Len(t, detail.Items, 2)
	require.NotNil(t, detail.EditState)
	require.True(t, *detail.EditState.CanEdit)
}

func TestClientMissingEditStateDecodesAsNil(t *testing.T) {
	auth := newAuthority(t)
	auth.handle("GET "+detailPath, func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusOK, sampleDetail(nil), "Result retrieved")
	})

	detail, err := auth.client().Detail(context.Background(), testKey)
	require.NoError(t, err)
	require.Nil(t, detail.EditState)
}

func TestClientRejectionKeepsMessage(t *testing.T) {
	auth := newAuthority(t)
	auth.handle("PUT "+reprPath, func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusConflict, nil, "attempt is still grading")
	})

	_, err := auth.client().SetRepresentative(context.Background(), testKey, 5)
	require.Error(t, err)
	require.True(t, IsRejection(err))

	var rejection *RejectionError
	require.True(t, errors.As(err, &rejection))
	require.Equal(t, http.StatusConflict, rejection.Status)
	require.Equal(t, "attempt is still grading", rejection.Message)
	require.Equal(t, "set representative: attempt is still grading", err.Error())
}

func TestClientRejectionWithoutBodyUsesStatusText(t *testing.T) {
	auth := newAuthority(t)
	auth.handle("GET "+rowsPath, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := auth.client().ListRows(context.Background(), 1)
	var rejection *RejectionError
	require.True(t, errors.As(err, &rejection))
	require.Equal(t, http.StatusText(http.StatusBadGateway), rejection.Message)
}

func TestClientTransportFailure(t *testing.T) {
	auth := newAuthority(t)
	client := auth.client()
	auth.server.Close()

	_, err := client.ListAttempts(context.Background(), testKey)
	require.ErrorIs(t, err, ErrTransport)
	require.False(t, IsRejection(err))
}

func TestClientCancelledContext(t *testing.T) {
	auth := newAuthority(t)
	auth.handle("GET "+attemptsPath, func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusOK, []Attempt{}, "ok")
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := auth.client().ListAttempts(ctx, testKey)
	require.ErrorIs(t, err, context.Canceled)
}

func TestClientAttemptItems(t *testing.T) {
	auth := newAuthority(t)
	auth.handle("GET "+attemptsPath+"/4/items", func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusOK, AttemptItems{
			Attempt: Attempt{ID: 4, ExamID: 1, EnrollmentID: 2, AttemptIndex: 2, Status: "done"},
			Items:   []ResultItem{{QuestionID: 1, Score: 3, MaxScore: 5, Meta: []byte(`{"confidence":0.9}`)}},
		}, "attempt items")
	})

	view, err := auth.client().AttemptItems(context.Background(), testKey, 4)
	require.NoError(t, err)
	require.Equal(t, uint(4), view.Attempt.ID)
	require.False(t, view.Attempt.IsRepresentative)
	require.Len(t, view.Items, 1)
	require.JSONEq(t, `{"confidence":0.9}`, string(view.Items[0].Meta))

	_, err = auth.client().AttemptItems(context.Background(), testKey, 0)
	require.ErrorIs(t, err, ErrValidation)
	require.Equal(t, 1, auth.count("GET "+attemptsPath+"/4/items"))
}
