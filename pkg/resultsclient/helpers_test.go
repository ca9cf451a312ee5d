package resultsclient

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-results-api/internal/results"
)

type authority struct {
	mu     sync.Mutex
	calls  map[string]int
	server *httptest.Server
	mux    *http.ServeMux
}

func newAuthority(t *testing.T) *authority {
	t.Helper()
	a := &authority{calls: make(map[string]int), mux: http.NewServeMux()}
	a.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a.mu.Lock()
		a.calls[r.Method+" "+r.URL.Path]++
		a.mu.Unlock()
		a.mux.ServeHTTP(w, r)
	}))
	t.Cleanup(a.server.Close)
	return a
}

func (a *authority) handle(pattern string, handler http.HandlerFunc) {
	a.mux.HandleFunc(pattern, handler)
}

func (a *authority) count(methodPath string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls[methodPath]
}

func (a *authority) client() *Client {
	return New(a.server.URL+"/api/v1", "test-token", WithTimeout(2*time.Second), WithLogger(zerolog.Nop()))
}

func writeEnvelope(w http.ResponseWriter, status int, data interface{}, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"success": status < http.StatusBadRequest,
		"message": message,
		"data":    data,
	})
}

func writeRaw(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(data)
}

func openEditState() *EditState {
	return results.NewEditState(true, false, nil, nil, time.Now())
}

func lockedEditState(reason string) *EditState {
	return results.NewEditState(true, true, &reason, nil, time.Now())
}

func sampleDetail(state *EditState) Detail {
	attemptID := uint(11)
	return Detail{
		TargetType:   "exam",
		TargetID:     1,
		EnrollmentID: 2,
		StudentName:  "Sari",
		AttemptID:    &attemptID,
		TotalScore:   40,
		MaxScore:     100,
		Status:       results.FrontStatusDone,
		EditState:    state,
		Items: []ResultItem{
			{QuestionID: 1, Score: 40, MaxScore: 100, IsEditable: true},
			{QuestionID: 2, Score: 0, MaxScore: 10, IsEditable: false},
		},
	}
}

const (
	detailPath   = "/api/v1/results/exams/1/enrollments/2"
	attemptsPath = "/api/v1/results/exams/1/enrollments/2/attempts"
	reprPath     = "/api/v1/results/exams/1/enrollments/2/representative"
	itemPath     = "/api/v1/results/exams/1/enrollments/2/items/1"
	rowsPath     = "/api/v1/results/exams/1/rows"
)

var testKey = ResultKey{ExamID: 1, EnrollmentID: 2}
