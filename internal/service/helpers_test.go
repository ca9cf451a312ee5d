package service

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-results-api/internal/database"
	"github.com/noah-isme/gema-results-api/internal/models"
	"github.com/noah-isme/gema-results-api/internal/repository"
)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func testValidator() *validator.Validate {
	return validator.New(validator.WithRequiredStructEnabled())
}

func newServiceDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", name)), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	return db
}

func newTestCache(t *testing.T) (ViewCache, *miniredis.Miniredis) {
	t.Helper()
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewViewCache(client, time.Minute, testLogger()), server
}

type testStack struct {
	db       *gorm.DB
	attempts repository.AttemptRepository
	results  repository.ResultRepository
	states   repository.EditStateRepository
	activity ActivityService
	locks    EditLockService
	cache    ViewCache
	redis    *miniredis.Miniredis
}

func newTestStack(t *testing.T) testStack {
	t.Helper()
	db := newServiceDB(t)
	cache, server := newTestCache(t)
	stack := testStack{
		db:       db,
		attempts: repository.NewAttemptRepository(db),
		results:  repository.NewResultRepository(db),
		states:   repository.NewEditStateRepository(db),
		activity: NewActivityService(repository.NewActivityLogRepository(db), testLogger()),
		cache:    cache,
		redis:    server,
	}
	stack.locks = NewEditLockService(stack.states, stack.results, cache, stack.activity, testValidator(), testLogger())
	return stack
}

type seeded struct {
	exam       models.Exam
	enrollment models.Enrollment
	attempts   []models.Attempt
}

// seed creates an exam result with one attempt per status; the first attempt is
// representative.
func (s testStack) seed(t *testing.T, submittedAt *time.Time, submissionID *uint, statuses ...string) seeded {
	t.Helper()

	exam := models.Exam{LectureID: 3, Title: "Midterm", TargetType: models.TargetTypeExam, SessionOrder: 2, MaxScore: 100, PassScore: 60, AllowRetake: true, MaxAttempts: 2}
	require.NoError(t, s.db.Create(&exam).Error)
	enrollment := models.Enrollment{LectureID: 3, StudentID: 11, StudentName: "Bima"}
	require.NoError(t, s.db.Create(&enrollment).Error)

	status := ""
	if len(statuses) > 0 {
		status = "DONE"
	}
	require.NoError(t, s.results.UpsertExamResult(context.Background(), &models.ExamResult{
		ExamID: exam.ID, EnrollmentID: enrollment.ID, SubmissionStatus: status, SubmissionID: submissionID, SubmittedAt: submittedAt,
	}))

	out := seeded{exam: exam, enrollment: enrollment}
	for i, st := range statuses {
		attempt := models.Attempt{ExamID: exam.ID, EnrollmentID: enrollment.ID, AttemptIndex: i + 1, IsRetake: i > 0, IsRepresentative: i == 0, Status: st}
		require.NoError(t, s.db.Create(&attempt).Error)
		out.attempts = append(out.attempts, attempt)
	}
	return out
}

func (s testStack) items(t *testing.T, attemptID uint, items ...models.ResultItem) {
	t.Helper()
	require.NoError(t, s.attempts.ReplaceItems(context.Background(), attemptID, items))
}

func intPtr(v int) *int { return &v }

func floatPtr(v float64) *float64 { return &v }

func strPtr(v string) *string { return &v }
