package resultsclient

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"

	"github.com/noah-isme/gema-results-api/internal/results"
)

var (
	// ErrNotEditing is returned when a score is patched outside edit mode.
	ErrNotEditing = errors.New("result is not in edit mode")
	// ErrPatchInFlight rejects a second patch while one is waiting on the authority.
	ErrPatchInFlight = errors.New("score correction already in progress")
	// ErrItemNotEditable rejects an item the authority marked as not editable.
	ErrItemNotEditable = errors.New("result item is not editable")
	// ErrItemNotFound rejects a question that is not part of the loaded detail.
	ErrItemNotFound = errors.New("result item not found")
)

// EditLockedError carries the operator facing lock message verbatim.
type EditLockedError struct {
	Message string
}

func (e *EditLockedError) Error() string {
	return e.Message
}

// EditSession drives manual score correction on one result panel. It keeps the value
// shown for every question and reverts it to the last value the authority accepted
// whenever a correction is refused.
type EditSession struct {
	client *Client
	views  *Views
	key    ResultKey

	mu      sync.Mutex
	detail  Detail
	shown   map[uint]string
	editing bool
	pending bool
	reason  string
}

// OpenEditSession loads the detail of key and prepares a session in view mode.
func OpenEditSession(ctx context.Context, client *Client, views *Views, key ResultKey) (*EditSession, error) {
	if err := key.valid(); err != nil {
		return nil, err
	}
	detail, err := views.Detail(ctx, key)
	if err != nil {
		return nil, err
	}
	session := &EditSession{client: client, views: views, key: key}
	session.load(detail)
	return session, nil
}

// Detail returns the last detail the session loaded.
func (s *EditSession) Detail() Detail {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.detail
}

// CanEdit reports whether the loaded edit state permits corrections.
func (s *EditSession) CanEdit() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return results.CanEdit(s.detail.EditState)
}

// LockMessage explains why editing is unavailable, or returns "" when it is allowed.
func (s *EditSession) LockMessage() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return results.LockMessage(s.detail.EditState)
}

// Editing reports whether the session is in edit mode.
func (s *EditSession) Editing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.editing
}

// EnterEdit switches to edit mode when the edit state allows it.
func (s *EditSession) EnterEdit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !results.CanEdit(s.detail.EditState) {
		if s.detail.EditState == nil {
			return results.ErrMissingEditState
		}
		return &EditLockedError{Message: results.LockMessage(s.detail.EditState)}
	}
	s.editing = true
	return nil
}

// ExitEdit leaves edit mode and restores the accepted value of every question.
func (s *EditSession) ExitEdit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.editing = false
	s.resetShown()
}

// SetReason records the reason sent with the next corrections.
func (s *EditSession) SetReason(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reason = strings.TrimSpace(reason)
}

// Shown returns the value displayed for a question.
func (s *EditSession) Shown(questionID uint) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shown[questionID]
}

// PatchScore validates raw locally and sends it to the authority. Input that does not
// parse or falls outside [0, max score] never leaves the process. On any failure the
// displayed value reverts to the last accepted score. On success the detail and the exam
// rows are reloaded.
func (s *EditSession) PatchScore(ctx context.Context, questionID uint, raw string) (ResultItem, error) {
	s.mu.Lock()
	if !s.editing {
		s.mu.Unlock()
		return ResultItem{}, ErrNotEditing
	}
	if s.pending {
		s.mu.Unlock()
		return ResultItem{}, ErrPatchInFlight
	}
	item, ok := s.item(questionID)
	if !ok {
		s.mu.Unlock()
		return ResultItem{}, ErrItemNotFound
	}
	if !item.IsEditable {
		s.mu.Unlock()
		return ResultItem{}, ErrItemNotEditable
	}
	s.shown[questionID] = raw
	score, err := results.ParseScore(raw)
	if err == nil {
		err = results.ValidateScore(score, item.MaxScore)
	}
	if err != nil {
		s.shown[questionID] = formatScore(item.Score)
		s.mu.Unlock()
		return ResultItem{}, err
	}
	s.pending = true
	reason := s.reason
	s.mu.Unlock()

	updated, err := s.client.PatchItemScore(ctx, s.key, questionID, score, reason)

	s.mu.Lock()
	s.pending = false
	if err != nil {
		s.shown[questionID] = formatScore(item.Score)
		s.mu.Unlock()
		return ResultItem{}, err
	}
	s.shown[questionID] = formatScore(updated.Score)
	s.mu.Unlock()

	s.views.InvalidateDetail(s.key)
	detail, err := s.views.Detail(ctx, s.key)
	if err != nil {
		return updated, err
	}
	s.mu.Lock()
	s.load(detail)
	if !results.CanEdit(detail.EditState) {
		s.editing = false
	}
	s.mu.Unlock()
	return updated, nil
}

func (s *EditSession) load(detail Detail) {
	s.detail = detail
	s.resetShown()
}

func (s *EditSession) resetShown() {
	s.shown = make(map[uint]string, len(s.detail.Items))
	for _, item := range s.detail.Items {
		s.shown[item.QuestionID] = formatScore(item.Score)
	}
}

func (s *EditSession) item(questionID uint) (ResultItem, bool) {
	for _, item := range s.detail.Items {
		if item.QuestionID == questionID {
			return item, true
		}
	}
	return ResultItem{}, false
}

func formatScore(score float64) string {
	return strconv.FormatFloat(score, 'f', -1, 64)
}
