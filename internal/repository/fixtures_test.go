package repository

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-results-api/internal/database"
	"github.com/noah-isme/gema-results-api/internal/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	return db
}

type resultFixture struct {
	exam       models.Exam
	enrollment models.Enrollment
	attempts   []models.Attempt
}

func floatPtr(v float64) *float64 { return &v }

func intPtr(v int) *int { return &v }

// seedResult creates an exam, an enrollment, its exam result and one attempt per status.
// The first attempt is representative.
func seedResult(t *testing.T, db *gorm.DB, sessionOrder int, statuses ...string) resultFixture {
	t.Helper()

	exam := models.Exam{LectureID: 7, Title: fmt.Sprintf("Session %d", sessionOrder), TargetType: models.TargetTypeExam, SessionOrder: sessionOrder, MaxScore: 100, PassScore: 60, AllowRetake: true, MaxAttempts: 3}
	require.NoError(t, db.Create(&exam).Error)

	enrollment := models.Enrollment{LectureID: 7, StudentID: 42, StudentName: "Sari"}
	require.NoError(t, db.Create(&enrollment).Error)

	submitted := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	result := models.ExamResult{ExamID: exam.ID, EnrollmentID: enrollment.ID, SubmissionStatus: "DONE", SubmittedAt: &submitted}
	require.NoError(t, db.Omit("Exam", "Enrollment").Create(&result).Error)

	fixture := resultFixture{exam: exam, enrollment: enrollment}
	for i, status := range statuses {
		attempt := models.Attempt{ExamID: exam.ID, EnrollmentID: enrollment.ID, AttemptIndex: i + 1, IsRetake: i > 0, IsRepresentative: i == 0, Status: status}
		require.NoError(t, db.Create(&attempt).Error)
		fixture.attempts = append(fixture.attempts, attempt)
	}

	return fixture
}

func seedItems(t *testing.T, db *gorm.DB, attemptID uint, items ...models.ResultItem) {
	t.Helper()
	for i := range items {
		items[i].AttemptID = attemptID
		require.NoError(t, db.Create(&items[i]).Error)
	}
}

func countRepresentatives(t *testing.T, db *gorm.DB, examID, enrollmentID uint) int64 {
	t.Helper()
	var count int64
	require.NoError(t, db.Model(&models.Attempt{}).
		Where("exam_id = ? AND enrollment_id = ? AND is_representative = ?", examID, enrollmentID, true).
		Count(&count).Error)
	return count
}
