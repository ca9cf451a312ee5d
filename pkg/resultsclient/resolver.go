package resultsclient

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/gema-results-api/internal/results"
)

// ErrSelectionInFlight rejects a second representative change for a result while one is
// still waiting on the authority.
var ErrSelectionInFlight = errors.New("representative change already in progress")

// Resolver changes the representative attempt of a result and keeps the cached views in
// step with the change.
type Resolver struct {
	client *Client
	views  *Views
	logger zerolog.Logger

	mu       sync.Mutex
	inFlight map[ResultKey]struct{}
}

// NewResolver builds a resolver sharing views with the rest of the screen.
func NewResolver(client *Client, views *Views, logger zerolog.Logger) *Resolver {
	return &Resolver{
		client:   client,
		views:    views,
		logger:   logger.With().Str("component", "representative_resolver").Logger(),
		inFlight: make(map[ResultKey]struct{}),
	}
}

// SetRepresentative selects attemptID for key. Attempts that are still grading or carry
// an unknown status are refused without contacting the authority. On success every view
// derived from the result is invalidated and reloaded; a failed reload is logged and left
// for the next read.
func (r *Resolver) SetRepresentative(ctx context.Context, key ResultKey, attemptID uint) (Attempt, error) {
	if err := key.valid(); err != nil {
		return Attempt{}, err
	}
	if attemptID == 0 {
		return Attempt{}, results.Invalid("attempt id is required")
	}
	if !r.acquire(key) {
		return Attempt{}, ErrSelectionInFlight
	}
	defer r.release(key)

	target, err := r.findAttempt(ctx, key, attemptID)
	if err != nil {
		return Attempt{}, err
	}
	if err := results.CheckSelectable(target.Status); err != nil {
		return Attempt{}, err
	}

	updated, err := r.client.SetRepresentative(ctx, key, attemptID)
	if err != nil {
		return Attempt{}, err
	}

	r.views.InvalidateResult(key)
	if err := r.refresh(ctx, key); err != nil {
		r.logger.Warn().Err(err).
			Uint("exam_id", key.ExamID).
			Uint("enrollment_id", key.EnrollmentID).
			Msg("failed to reload result views after representative change")
	}

	return updated, nil
}

// InFlight reports whether a change for key is waiting on the authority.
func (r *Resolver) InFlight(key ResultKey) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.inFlight[key]
	return ok
}

// findAttempt looks the attempt up in the cached list, reloading once when the cache
// predates it.
func (r *Resolver) findAttempt(ctx context.Context, key ResultKey, attemptID uint) (Attempt, error) {
	for pass := 0; pass < 2; pass++ {
		if pass > 0 {
			r.views.attempts.invalidate(key)
		}
		attempts, err := r.views.Attempts(ctx, key)
		if err != nil {
			return Attempt{}, err
		}
		for _, attempt := range attempts {
			if attempt.ID == attemptID {
				return attempt, nil
			}
		}
	}
	return Attempt{}, results.ErrAttemptNotInEnrollment
}

func (r *Resolver) refresh(ctx context.Context, key ResultKey) error {
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		_, err := r.views.Attempts(groupCtx, key)
		return err
	})
	group.Go(func() error {
		_, err := r.views.Detail(groupCtx, key)
		return err
	})
	group.Go(func() error {
		_, err := r.views.Rows(groupCtx, key.ExamID)
		return err
	})
	return group.Wait()
}

func (r *Resolver) acquire(key ResultKey) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, busy := r.inFlight[key]; busy {
		return false
	}
	r.inFlight[key] = struct{}{}
	return true
}

func (r *Resolver) release(key ResultKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.inFlight, key)
}
