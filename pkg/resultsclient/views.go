package resultsclient

import (
	"context"
	"sync"
)

// viewStore keeps one cached value per key. Every invalidation bumps the key's
// generation so a fetch that began before the invalidation cannot store its stale copy.
type viewStore[K comparable, V any] struct {
	mu      sync.Mutex
	entries map[K]V
	gens    map[K]uint64
}

func newViewStore[K comparable, V any]() *viewStore[K, V] {
	return &viewStore[K, V]{
		entries: make(map[K]V),
		gens:    make(map[K]uint64),
	}
}

func (s *viewStore[K, V]) get(key K) (V, bool, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.entries[key]
	return value, ok, s.gens[key]
}

func (s *viewStore[K, V]) put(key K, gen uint64, value V) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gens[key] != gen {
		return false
	}
	s.entries[key] = value
	return true
}

func (s *viewStore[K, V]) invalidate(key K) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	s.gens[key]++
}

// Views is a read-through cache of the panels a result screen shows: the attempt list,
// the result detail and the exam rows. Mutations invalidate the affected views so the
// next read goes back to the authority.
type Views struct {
	client   *Client
	attempts *viewStore[ResultKey, []Attempt]
	details  *viewStore[ResultKey, Detail]
	rows     *viewStore[uint, []ResultRow]
}

// NewViews wraps client with an empty cache.
func NewViews(client *Client) *Views {
	return &Views{
		client:   client,
		attempts: newViewStore[ResultKey, []Attempt](),
		details:  newViewStore[ResultKey, Detail](),
		rows:     newViewStore[uint, []ResultRow](),
	}
}

// Attempts returns the attempt list of a result.
func (v *Views) Attempts(ctx context.Context, key ResultKey) ([]Attempt, error) {
	return readThrough(ctx, v.attempts, key, v.client.ListAttempts)
}

// Detail returns the result detail of an enrollment.
func (v *Views) Detail(ctx context.Context, key ResultKey) (Detail, error) {
	return readThrough(ctx, v.details, key, v.client.Detail)
}

// Rows returns the summary rows of an exam.
func (v *Views) Rows(ctx context.Context, examID uint) ([]ResultRow, error) {
	return readThrough(ctx, v.rows, examID, v.client.ListRows)
}

// InvalidateResult drops every view derived from one result, including the exam rows.
func (v *Views) InvalidateResult(key ResultKey) {
	v.attempts.invalidate(key)
	v.details.invalidate(key)
	v.rows.invalidate(key.ExamID)
}

// InvalidateDetail drops the detail of one result and the exam rows it feeds.
func (v *Views) InvalidateDetail(key ResultKey) {
	v.details.invalidate(key)
	v.rows.invalidate(key.ExamID)
}

func readThrough[K comparable, V any](ctx context.Context, store *viewStore[K, V], key K, fetch func(context.Context, K) (V, error)) (V, error) {
	value, ok, gen := store.get(key)
	if ok {
		return value, nil
	}
	value, err := fetch(ctx, key)
	if err != nil {
		var zero V
		return zero, err
	}
	store.put(key, gen, value)
	return value, nil
}
