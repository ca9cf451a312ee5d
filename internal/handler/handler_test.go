package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-results-api/internal/config"
	"github.com/noah-isme/gema-results-api/internal/database"
	"github.com/noah-isme/gema-results-api/internal/handler"
	"github.com/noah-isme/gema-results-api/internal/middleware"
	"github.com/noah-isme/gema-results-api/internal/models"
	"github.com/noah-isme/gema-results-api/internal/repository"
	"github.com/noah-isme/gema-results-api/internal/router"
	"github.com/noah-isme/gema-results-api/internal/service"
)

const (
	testSecret        = "handler-secret"
	testInternalToken = "pipeline-token"
	// fixtureStudentID owns every enrollment created by seed.
	fixtureStudentID = 5
)

type server struct {
	app *fiber.App
	db  *gorm.DB
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Meta    json.RawMessage `json:"meta"`
}

func newServer(t *testing.T) server {
	t.Helper()

	logger := zerolog.New(io.Discard)
	validate := validator.New(validator.WithRequiredStructEnabled())

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:http_%s?mode=memory&cache=shared", name)), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	redisServer := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: redisServer.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	attempts := repository.NewAttemptRepository(db)
	resultRepo := repository.NewResultRepository(db)
	states := repository.NewEditStateRepository(db)
	cache := service.NewViewCache(client, time.Minute, logger)
	activity := service.NewActivityService(repository.NewActivityLogRepository(db), logger)
	locks := service.NewEditLockService(states, resultRepo, cache, activity, validate, logger)
	notes := service.NewWrongNoteService(repository.NewWrongNoteRepository(db), validate, logger)
	access := service.NewEnrollmentAccess(resultRepo)
	jobs := service.NewPDFJobService(repository.NewPDFJobRepository(db), resultRepo, nil, validate, "", logger)
	events, err := service.NewGradingEventService(attempts, resultRepo, states, locks, cache, activity, logger)
	require.NoError(t, err)

	cfg := config.Config{AppName: "results-test", AppEnv: "test"}
	app := fiber.New()
	router.Register(app, cfg, router.Dependencies{
		ResultHandler:       handler.NewResultHandler(service.NewResultService(resultRepo, attempts, states, cache, logger), access, logger),
		AttemptHandler:      handler.NewAttemptHandler(service.NewAttemptService(attempts, resultRepo, locks, cache, activity, validate, logger), access, logger),
		ScoreHandler:        handler.NewScoreHandler(service.NewScoreService(resultRepo, attempts, cache, validate, logger), locks, access, logger),
		ActivityHandler:     handler.NewActivityHandler(activity, logger),
		WrongNoteHandler:    handler.NewWrongNoteHandler(notes, jobs, access, nil, 10*time.Millisecond, logger),
		GradingEventHandler: handler.NewGradingEventHandler(events, logger),
		HealthProbes: map[string]handler.HealthProbe{
			"redis": func(ctx context.Context) error { return client.Ping(ctx).Err() },
		},
		JWTMiddleware:      middleware.JWTProtected(testSecret),
		InternalMiddleware: middleware.ServiceToken(testInternalToken),
	})

	return server{app: app, db: db}
}

type fixture struct {
	exam       models.Exam
	enrollment models.Enrollment
	attempts   []models.Attempt
}

func (s server) seed(t *testing.T, locked bool, reason string, statuses ...string) fixture {
	t.Helper()
	exam := models.Exam{LectureID: 1, Title: "Quiz", TargetType: models.TargetTypeExam, SessionOrder: 1, MaxScore: 10, PassScore: 6, AllowRetake: true, MaxAttempts: 3}
	require.NoError(t, s.db.Create(&exam).Error)
	enrollment := models.Enrollment{LectureID: 1, StudentID: fixtureStudentID, StudentName: "Sari"}
	require.NoError(t, s.db.Create(&enrollment).Error)
	submitted := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)
	require.NoError(t, s.db.Create(&models.ExamResult{ExamID: exam.ID, EnrollmentID: enrollment.ID, SubmissionStatus: "DONE", SubmittedAt: &submitted}).Error)

	state := models.EditState{ExamID: exam.ID, EnrollmentID: enrollment.ID, CanEdit: true, IsLocked: locked}
	if reason != "" {
		state.LockReason = &reason
	}
	require.NoError(t, s.db.Create(&state).Error)

	out := fixture{exam: exam, enrollment: enrollment}
	for i, status := range statuses {
		attempt := models.Attempt{ExamID: exam.ID, EnrollmentID: enrollment.ID, AttemptIndex: i + 1, IsRetake: i > 0, IsRepresentative: i == 0, Status: status}
		require.NoError(t, s.db.Create(&attempt).Error)
		out.attempts = append(out.attempts, attempt)
	}
	if len(out.attempts) > 0 {
		number := 1
		require.NoError(t, repository.NewAttemptRepository(s.db).ReplaceItems(context.Background(), out.attempts[0].ID, []models.ResultItem{
			{QuestionID: 1, QuestionNumber: &number, Answer: "B", CorrectAnswer: "C", Score: 0, MaxScore: 5, IsEditable: true},
			{QuestionID: 2, Answer: "A", CorrectAnswer: "A", IsCorrect: true, Score: 5, MaxScore: 5},
		}))
	}
	return out
}

func token(t *testing.T, userID uint, role string) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  fmt.Sprintf("%d", userID),
		"role": role,
		"exp":  time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func (s server) do(t *testing.T, method, path, bearer string, body interface{}) (*http.Response, envelope) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	_ = resp.Body.Close()

	var env envelope
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &env)
		if env.Data == nil && env.Message == "" {
			env.Data = raw
		}
	}
	return resp, env
}

func resultURL(f fixture, suffix string) string {
	return fmt.Sprintf("/api/v1/results/exams/%d/enrollments/%d%s", f.exam.ID, f.enrollment.ID, suffix)
}

func newJSONRequest(method, path string, body []byte) *http.Request {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}
