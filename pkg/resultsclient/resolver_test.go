package resultsclient

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-results-api/internal/results"
)

type attemptBook struct {
	mu       sync.Mutex
	attempts []Attempt
}

func (b *attemptBook) list() []Attempt {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Attempt(nil), b.attempts...)
}

func (b *attemptBook) promote(id uint) (Attempt, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var promoted Attempt
	found := false
	for i := range b.attempts {
		b.attempts[i].IsRepresentative = b.attempts[i].ID == id
		if b.attempts[i].ID == id {
			promoted = b.attempts[i]
			found = true
		}
	}
	return promoted, found
}

func serveAttempts(auth *authority, book *attemptBook) {
	auth.handle("GET "+attemptsPath, func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusOK, book.list(), "Attempts retrieved")
	})
	auth.handle("GET "+detailPath, func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusOK, sampleDetail(openEditState()), "Result retrieved")
	})
	auth.handle("GET "+rowsPath, func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusOK, []ResultRow{{EnrollmentID: 2, StudentName: "Sari"}}, "Rows retrieved")
	})
}

func newBook() *attemptBook {
	return &attemptBook{attempts: []Attempt{
		{ID: 10, AttemptIndex: 1, Status: "done", IsRepresentative: true},
		{ID: 11, AttemptIndex: 2, Status: "done", IsRetake: true},
		{ID: 12, AttemptIndex: 3, Status: "grading", IsRetake: true},
		{ID: 13, AttemptIndex: 4, Status: "archived", IsRetake: true},
	}}
}

func TestResolverSwapsAndReloadsViews(t *testing.T) {
	auth := newAuthority(t)
	book := newBook()
	serveAttempts(auth, book)
	auth.handle("PUT "+reprPath, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]uint
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		promoted, ok := book.promote(body["attempt_id"])
		require.True(t, ok)
		writeEnvelope(w, http.StatusOK, promoted, "Representative attempt updated")
	})

	client := auth.client()
	views := NewViews(client)
	resolver := NewResolver(client, views, zerolog.Nop())

	before, err := views.Attempts(context.Background(), testKey)
	require.NoError(t, err)
	require.True(t, before[0].IsRepresentative)

	updated, err := resolver.SetRepresentative(context.Background(), testKey, 11)
	require.NoError(t, err)
	require.True(t, updated.IsRepresentative)

	require.Equal(t, 2, auth.count("GET "+attemptsPath))
	require.Equal(t, 1, auth.count("GET "+detailPath))
	require.Equal(t, 1, auth.count("GET "+rowsPath))

	after, err := views.Attempts(context.Background(), testKey)
	require.NoError(t, err)
	representatives := 0
	for _, attempt := range after {
		if attempt.IsRepresentative {
			representatives++
			require.Equal(t, uint(11), attempt.ID)
		}
	}
	require.Equal(t, 1, representatives)
	require.Equal(t, 2, auth.count("GET "+attemptsPath))
}

func TestResolverRefusesLockedAttemptsLocally(t *testing.T) {
	auth := newAuthority(t)
	serveAttempts(auth, newBook())
	auth.handle("PUT "+reprPath, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("representative change must not reach the authority")
	})

	client := auth.client()
	resolver := NewResolver(client, NewViews(client), zerolog.Nop())

	_, err := resolver.SetRepresentative(context.Background(), testKey, 12)
	require.ErrorIs(t, err, results.ErrAttemptGrading)
	require.Equal(t, "attempt is still grading", err.Error())

	_, err = resolver.SetRepresentative(context.Background(), testKey, 13)
	require.ErrorIs(t, err, results.ErrAttemptStatusUnknown)

	_, err = resolver.SetRepresentative(context.Background(), testKey, 99)
	require.ErrorIs(t, err, results.ErrAttemptNotInEnrollment)

	_, err = resolver.SetRepresentative(context.Background(), testKey, 0)
	require.ErrorIs(t, err, results.ErrValidation)

	require.Equal(t, 0, auth.count("PUT "+reprPath))
}

func TestResolverFindsAttemptNewerThanCache(t *testing.T) {
	auth := newAuthority(t)
	book := newBook()
	serveAttempts(auth, book)
	auth.handle("PUT "+reprPath, func(w http.ResponseWriter, r *http.Request) {
		promoted, _ := book.promote(14)
		writeEnvelope(w, http.StatusOK, promoted, "Representative attempt updated")
	})

	client := auth.client()
	views := NewViews(client)
	resolver := NewResolver(client, views, zerolog.Nop())
	_, err := views.Attempts(context.Background(), testKey)
	require.NoError(t, err)

	book.mu.Lock()
	book.attempts = append(book.attempts, Attempt{ID: 14, AttemptIndex: 5, Status: "pending", IsRetake: true})
	book.mu.Unlock()

	updated, err := resolver.SetRepresentative(context.Background(), testKey, 14)
	require.NoError(t, err)
	require.Equal(t, uint(14), updated.ID)
}

func TestResolverRejectsConcurrentChange(t *testing.T) {
	auth := newAuthority(t)
	book := newBook()
	serveAttempts(auth, book)

	entered := make(chan struct{})
	release := make(chan struct{})
	auth.handle("PUT "+reprPath, func(w http.ResponseWriter, r *http.Request) {
		close(entered)
		<-release
		promoted, _ := book.promote(11)
		writeEnvelope(w, http.StatusOK, promoted, "Representative attempt updated")
	})

	client := auth.client()
	resolver := NewResolver(client, NewViews(client), zerolog.Nop())

	done := make(chan error, 1)
	go func() {
		_, err := resolver.SetRepresentative(context.Background(), testKey, 11)
		done <- err
	}()

	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("first change never reached the authority")
	}
	require.True(t, resolver.InFlight(testKey))

	_, err := resolver.SetRepresentative(context.Background(), testKey, 10)
	require.ErrorIs(t, err, ErrSelectionInFlight)

	close(release)
	require.NoError(t, <-done)
	require.False(t, resolver.InFlight(testKey))
	require.Equal(t, 1, auth.count("PUT "+reprPath))
}

func TestResolverKeepsCacheOnRejection(t *testing.T) {
	auth := newAuthority(t)
	serveAttempts(auth, newBook())
	auth.handle("PUT "+reprPath, func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusConflict, nil, "attempt is still grading")
	})

	client := auth.client()
	views := NewViews(client)
	resolver := NewResolver(client, views, zerolog.Nop())

	_, err := resolver.SetRepresentative(context.Background(), testKey, 11)
	rejection, ok := results.AsRejection(err)
	require.True(t, ok)
	require.Equal(t, "attempt is still grading", rejection.Message)

	_, err = views.Attempts(context.Background(), testKey)
	require.NoError(t, err)
	require.Equal(t, 1, auth.count("GET "+attemptsPath))
	require.Equal(t, 0, auth.count("GET "+detailPath))
}

func TestViewsDropStaleFetch(t *testing.T) {
	auth := newAuthority(t)
	calls := 0
	var mu sync.Mutex
	auth.handle("GET "+rowsPath, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		writeEnvelope(w, http.StatusOK, []ResultRow{{EnrollmentID: uint(n)}}, "Rows retrieved")
	})

	views := NewViews(auth.client())
	_, _, gen := views.rows.get(1)
	views.InvalidateResult(testKey)
	require.False(t, views.rows.put(1, gen, []ResultRow{{EnrollmentID: 99}}))

	rows, err := views.Rows(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, uint(1), rows[0].EnrollmentID)
}
