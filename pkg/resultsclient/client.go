package resultsclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-results-api/internal/dto"
	"github.com/noah-isme/gema-results-api/internal/results"
)

const defaultTimeout = 15 * time.Second

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient swaps the underlying transport, mostly for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = resty.NewWithClient(hc)
	}
}

// WithLogger attaches a logger for request diagnostics.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger.With().Str("component", "results_client").Logger()
	}
}

// WithTimeout bounds every request.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.timeout = timeout
	}
}

// Client talks to the results authority over HTTP.
type Client struct {
	http    *resty.Client
	logger  zerolog.Logger
	timeout time.Duration
}

// New builds a client for the API rooted at baseURL, e.g. https://host/api/v1. token is sent
// as a bearer token when not empty.
func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		http:    resty.New(),
		logger:  zerolog.Nop(),
		timeout: defaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.http.
		SetBaseURL(strings.TrimSuffix(baseURL, "/")).
		SetTimeout(c.timeout).
		SetHeader("Accept", "application/json")
	if token != "" {
		c.http.SetAuthToken(token)
	}
	return c
}

// ListAttempts returns every attempt of a result ordered by attempt index.
func (c *Client) ListAttempts(ctx context.Context, key ResultKey) ([]Attempt, error) {
	var attempts []Attempt
	err := c.call(ctx, "list attempts", http.MethodGet, resultPath(key, "/attempts"), nil, nil, &attempts)
	return attempts, err
}

// SetRepresentative asks the authority to make attemptID the representative attempt.
func (c *Client) SetRepresentative(ctx context.Context, key ResultKey, attemptID uint) (Attempt, error) {
	var attempt Attempt
	body := map[string]uint{"attempt_id": attemptID}
	err := c.call(ctx, "set representative", http.MethodPut, resultPath(key, "/representative"), nil, body, &attempt)
	return attempt, err
}

// AttemptItems loads the per-question facts of any attempt of the result, so an attempt can
// be inspected before it is made representative.
func (c *Client) AttemptItems(ctx context.Context, key ResultKey, attemptID uint) (AttemptItems, error) {
	var view AttemptItems
	if err := key.valid(); err != nil {
		return view, err
	}
	if attemptID == 0 {
		return view, results.Invalid("attempt id is required")
	}
	err := c.call(ctx, "list attempt items", http.MethodGet, resultPath(key, fmt.Sprintf("/attempts/%d/items", attemptID)), nil, nil, &view)
	return view, err
}

// Detail loads the result panel of one enrollment, including its edit state.
func (c *Client) Detail(ctx context.Context, key ResultKey) (Detail, error) {
	var detail Detail
	err := c.call(ctx, "get result detail", http.MethodGet, resultPath(key, ""), nil, nil, &detail)
	return detail, err
}

// PatchItemScore corrects the score of one question of the representative attempt.
func (c *Client) PatchItemScore(ctx context.Context, key ResultKey, questionID uint, score float64, reason string) (ResultItem, error) {
	var item ResultItem
	body := dto.PatchItemScoreRequest{Score: &score, Reason: reason}
	path := resultPath(key, fmt.Sprintf("/items/%d", questionID))
	err := c.call(ctx, "patch item score", http.MethodPatch, path, nil, body, &item)
	return item, err
}

// EditState reads the edit state of a result. A nil state means the authority has none.
func (c *Client) EditState(ctx context.Context, key ResultKey) (*EditState, error) {
	var state *EditState
	err := c.call(ctx, "get edit state", http.MethodGet, resultPath(key, "/edit-lock"), nil, nil, &state)
	return state, err
}

// SetEditLock sets or clears the edit lock of a result.
func (c *Client) SetEditLock(ctx context.Context, key ResultKey, lock EditLock) (*EditState, error) {
	var state *EditState
	err := c.call(ctx, "set edit lock", http.MethodPut, resultPath(key, "/edit-lock"), nil, lock, &state)
	return state, err
}

// ListRows returns the summary rows of an exam.
func (c *Client) ListRows(ctx context.Context, examID uint) ([]ResultRow, error) {
	var rows []ResultRow
	err := c.call(ctx, "list result rows", http.MethodGet, fmt.Sprintf("/results/exams/%d/rows", examID), nil, nil, &rows)
	return rows, err
}

// Summary returns aggregate scores of an exam.
func (c *Client) Summary(ctx context.Context, examID uint) (ExamSummary, error) {
	var summary ExamSummary
	err := c.call(ctx, "get exam summary", http.MethodGet, fmt.Sprintf("/results/exams/%d/summary", examID), nil, nil, &summary)
	return summary, err
}

// QuestionStats returns per-question accuracy of an exam.
func (c *Client) QuestionStats(ctx context.Context, examID uint) (QuestionStats, error) {
	var stats QuestionStats
	err := c.call(ctx, "get question stats", http.MethodGet, fmt.Sprintf("/results/exams/%d/questions", examID), nil, nil, &stats)
	return stats, err
}

// WrongNotes fetches one page of wrong notes.
func (c *Client) WrongNotes(ctx context.Context, enrollmentID uint, filter WrongNoteFilter, offset, limit int) (WrongNotePage, error) {
	query := map[string]string{
		"enrollment_id": strconv.FormatUint(uint64(enrollmentID), 10),
		"offset":        strconv.Itoa(offset),
	}
	if limit > 0 {
		query["limit"] = strconv.Itoa(limit)
	}
	if filter.ExamID != nil {
		query["exam_id"] = strconv.FormatUint(uint64(*filter.ExamID), 10)
	}
	if filter.LectureID != nil {
		query["lecture_id"] = strconv.FormatUint(uint64(*filter.LectureID), 10)
	}
	if filter.FromSessionOrder != nil {
		query["from_session_order"] = strconv.Itoa(*filter.FromSessionOrder)
	}

	var page WrongNotePage
	err := c.call(ctx, "list wrong notes", http.MethodGet, "/results/wrong-notes", query, nil, &page)
	return page, err
}

// CreatePDFJob queues a wrong-note report.
func (c *Client) CreatePDFJob(ctx context.Context, request PDFJobRequest) (PDFJobCreated, error) {
	var created PDFJobCreated
	err := c.call(ctx, "create pdf job", http.MethodPost, "/results/wrong-notes/pdf", nil, request, &created)
	return created, err
}

// PDFJob reads the current state of a report job.
func (c *Client) PDFJob(ctx context.Context, jobID uint) (PDFJob, error) {
	var job PDFJob
	err := c.call(ctx, "get pdf job", http.MethodGet, fmt.Sprintf("/results/wrong-notes/pdf/%d", jobID), nil, nil, &job)
	return job, err
}

// call performs one round trip. Non-2xx answers become a RejectionError carrying the
// authority's message; network and decoding failures wrap ErrTransport.
func (c *Client) call(ctx context.Context, op, method, path string, query map[string]string, body, out interface{}) error {
	req := c.http.R().SetContext(ctx)
	if query != nil {
		req.SetQueryParams(query)
	}
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		c.logger.Debug().Err(err).Str("op", op).Msg("results authority request failed")
		return fmt.Errorf("%s: %w: %v", op, results.ErrTransport, err)
	}

	raw := resp.Body()
	var env envelope
	decodeErr := json.Unmarshal(raw, &env)

	if resp.IsError() {
		message := strings.TrimSpace(env.Message)
		if decodeErr != nil || message == "" {
			message = http.StatusText(resp.StatusCode())
		}
		return results.Reject(op, resp.StatusCode(), message)
	}

	if out == nil {
		return nil
	}
	if decodeErr != nil {
		return fmt.Errorf("%s: %w: decode response: %v", op, results.ErrTransport, decodeErr)
	}

	// Wrong-note pages are served without the envelope.
	payload := env.Data
	if payload == nil && env.Message == "" {
		payload = raw
	}
	if len(payload) == 0 || string(payload) == "null" {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("%s: %w: decode payload: %v", op, results.ErrTransport, err)
	}
	return nil
}

func resultPath(key ResultKey, suffix string) string {
	return fmt.Sprintf("/results/exams/%d/enrollments/%d%s", key.ExamID, key.EnrollmentID, suffix)
}

// IsRejection reports whether err is a refusal issued by the authority.
func IsRejection(err error) bool {
	var rejection *RejectionError
	return errors.As(err, &rejection)
}
