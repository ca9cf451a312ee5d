package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func respond(w http.ResponseWriter, status int, data interface{}, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"success": status < 400, "message": message, "data": data})
}

func run(t *testing.T, server *httptest.Server, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd(zerolog.Nop())
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--url", server.URL + "/api/v1", "--token", "cli-token"}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestAttemptsCommandPrintsJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/results/exams/3/enrollments/4/attempts", r.URL.Path)
		require.Equal(t, "Bearer cli-token", r.Header.Get("Authorization"))
		respond(w, http.StatusOK, []map[string]interface{}{{"id": 9, "attempt_index": 1, "status": "done"}}, "Attempts retrieved")
	}))
	defer server.Close()

	out, err := run(t, server, "attempts", "3", "4")
	require.NoError(t, err)
	require.Contains(t, out, `"attempt_index": 1`)
}

func TestAttemptItemsCommandPrintsFacts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/results/exams/3/enrollments/4/attempts/8/items", r.URL.Path)
		respond(w, http.StatusOK, map[string]interface{}{
			"attempt": map[string]interface{}{"id": 8, "attempt_index": 2, "is_representative": false},
			"items":   []map[string]interface{}{{"question_id": 1, "score": 3, "max_score": 5}},
		}, "attempt items")
	}))
	defer server.Close()

	out, err := run(t, server, "attempt-items", "3", "4", "8")
	require.NoError(t, err)
	require.Contains(t, out, `"attempt_index": 2`)
	require.Contains(t, out, `"question_id": 1`)
}

func TestScoreCommandRejectsOutOfRangeWithoutPatch(t *testing.T) {
	var mu sync.Mutex
	patches := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPatch {
			mu.Lock()
			patches++
			mu.Unlock()
		}
		respond(w, http.StatusOK, map[string]interface{}{
			"enrollment_id": 4,
			"items":         []map[string]interface{}{{"question_id": 1, "score": 40, "max_score": 100, "is_editable": true}},
			"edit_state":    map[string]interface{}{"can_edit": true, "is_locked": false},
		}, "Result retrieved")
	}))
	defer server.Close()

	_, err := run(t, server, "score", "3", "4", "1", "120")
	require.Error(t, err)
	require.Contains(t, err.Error(), "exceeds max score")

	mu.Lock()
	defer mu.Unlock()
	require.Zero(t, patches)
}

func TestCommandRejectsBadIDs(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	_, err := run(t, server, "detail", "x", "4")
	require.Error(t, err)
	require.Contains(t, err.Error(), "exam-id must be a positive integer")

	_, err = run(t, server, "rows", "0")
	require.Error(t, err)
}

func TestReportCommandWaitsForFile(t *testing.T) {
	var mu sync.Mutex
	polls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			respond(w, http.StatusAccepted, map[string]interface{}{"job_id": 5, "status": "PENDING"}, "PDF job queued")
		default:
			mu.Lock()
			polls++
			n := polls
			mu.Unlock()
			job := map[string]interface{}{"job_id": 5, "status": "PENDING"}
			if n >= 2 {
				job["status"] = "DONE"
				job["file_url"] = "/files/report-5.pdf"
			}
			respond(w, http.StatusOK, job, "PDF job retrieved")
		}
	}))
	defer server.Close()

	out, err := run(t, server, "report", "--enrollment", "4", "--interval", "5ms")
	require.NoError(t, err)
	require.Contains(t, out, "job 5 queued")
	require.Contains(t, out, "job 5 DONE")
	require.Contains(t, out, "/files/report-5.pdf")
}
