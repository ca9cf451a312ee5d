package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-results-api/internal/dto"
	"github.com/noah-isme/gema-results-api/internal/repository"
	"github.com/noah-isme/gema-results-api/internal/results"
	"github.com/noah-isme/gema-results-api/pkg/pdf"
)

type failingRenderer struct{}

func (failingRenderer) Render(context.Context, pdf.Report) ([]byte, error) {
	return nil, errors.New("font table missing")
}

type textRenderer struct{}

func (textRenderer) Render(context.Context, pdf.Report) ([]byte, error) {
	return []byte("plain text"), nil
}

type recordingUploader struct {
	mu    sync.Mutex
	names []string
}

func (u *recordingUploader) Upload(_ context.Context, name string, _ []byte) (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.names = append(u.names, name)
	return "https://cdn.example.com/" + name, nil
}

type pdfFixture struct {
	stack   testStack
	jobs    repository.PDFJobRepository
	worker  *PDFWorker
	service PDFJobService
	data    seeded
	dir     string
}

func newPDFFixture(t *testing.T, renderer ReportRenderer, uploader ReportUploader) pdfFixture {
	t.Helper()
	stack := newTestStack(t)
	jobs := repository.NewPDFJobRepository(stack.db)
	notes := NewWrongNoteService(repository.NewWrongNoteRepository(stack.db), testValidator(), testLogger())
	dir := t.TempDir()
	worker := NewPDFWorker(jobs, stack.results, notes, renderer, uploader, PDFWorkerConfig{Workers: 1, OutputDir: dir}, testLogger())
	svc := NewPDFJobService(jobs, stack.results, worker, testValidator(), "", testLogger())
	return pdfFixture{stack: stack, jobs: jobs, worker: worker, service: svc, data: seedWrongNotes(t, stack, 3), dir: dir}
}

func TestPDFJobLifecycleCompletesOnce(t *testing.T) {
	uploader := &recordingUploader{}
	fx := newPDFFixture(t, pdf.NewRenderer(""), uploader)
	ctx := context.Background()

	created, err := fx.service.Create(ctx, dto.PDFJobCreateRequest{EnrollmentID: fx.data.enrollment.ID}, ActivityActor{ID: 3, Role: "student"})
	require.NoError(t, err)
	require.Equal(t, string(results.JobStatusPending), created.Status)
	require.Contains(t, created.StatusURL, "/wrong-notes/pdf/")

	status, err := fx.service.Get(ctx, created.JobID)
	require.NoError(t, err)
	require.Equal(t, string(results.JobStatusPending), status.Status)

	require.NoError(t, fx.worker.Process(ctx, created.JobID))
	require.NoError(t, fx.worker.Process(ctx, created.JobID))

	status, err = fx.service.Get(ctx, created.JobID)
	require.NoError(t, err)
	require.Equal(t, string(results.JobStatusDone), status.Status)
	require.NotNil(t, status.FileURL)
	require.Equal(t, "https://cdn.example.com/"+status.FilePath, *status.FileURL)
	require.Len(t, uploader.names, 1)

	_, err = os.Stat(filepath.Join(fx.dir, status.FilePath))
	require.NoError(t, err)
}

func TestPDFJobServesLocalFileWithoutUploader(t *testing.T) {
	fx := newPDFFixture(t, pdf.NewRenderer(""), nil)
	ctx := context.Background()

	created, err := fx.service.Create(ctx, dto.PDFJobCreateRequest{EnrollmentID: fx.data.enrollment.ID}, ActivityActor{ID: 3})
	require.NoError(t, err)
	require.NoError(t, fx.worker.Process(ctx, created.JobID))

	status, err := fx.service.Get(ctx, created.JobID)
	require.NoError(t, err)
	require.Equal(t, "/files/"+status.FilePath, *status.FileURL)
}

func TestPDFJobFailsWhenRenderingFails(t *testing.T) {
	fx := newPDFFixture(t, failingRenderer{}, nil)
	ctx := context.Background()

	created, err := fx.service.Create(ctx, dto.PDFJobCreateRequest{EnrollmentID: fx.data.enrollment.ID}, ActivityActor{ID: 3})
	require.NoError(t, err)
	require.Error(t, fx.worker.Process(ctx, created.JobID))

	status, err := fx.service.Get(ctx, created.JobID)
	require.NoError(t, err)
	require.Equal(t, string(results.JobStatusFailed), status.Status)
	require.Equal(t, "font table missing", status.ErrorMessage)
	require.ErrorIs(t, fx.jobs.Complete(ctx, created.JobID, "late.pdf", nil, time.Now()), results.ErrJobTerminal)
}

func TestPDFJobRejectsNonPDFOutput(t *testing.T) {
	fx := newPDFFixture(t, textRenderer{}, nil)
	ctx := context.Background()

	created, err := fx.service.Create(ctx, dto.PDFJobCreateRequest{EnrollmentID: fx.data.enrollment.ID}, ActivityActor{ID: 3})
	require.NoError(t, err)
	require.Error(t, fx.worker.Process(ctx, created.JobID))

	status, err := fx.service.Get(ctx, created.JobID)
	require.NoError(t, err)
	require.Equal(t, string(results.JobStatusFailed), status.Status)
	require.Contains(t, status.ErrorMessage, "unexpected type")
}

func TestPDFJobCreateValidation(t *testing.T) {
	fx := newPDFFixture(t, pdf.NewRenderer(""), nil)

	_, err := fx.service.Create(context.Background(), dto.PDFJobCreateRequest{}, ActivityActor{ID: 3})
	require.Error(t, err)

	_, err = fx.service.Create(context.Background(), dto.PDFJobCreateRequest{EnrollmentID: 9999}, ActivityActor{ID: 3})
	require.ErrorIs(t, err, ErrEnrollmentNotFound)

	_, err = fx.service.Get(context.Background(), 9999)
	require.ErrorIs(t, err, ErrPDFJobNotFound)
}

func TestPDFJobWatchStreamsUntilTerminal(t *testing.T) {
	fx := newPDFFixture(t, pdf.NewRenderer(""), nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	created, err := fx.service.Create(ctx, dto.PDFJobCreateRequest{EnrollmentID: fx.data.enrollment.ID}, ActivityActor{ID: 3})
	require.NoError(t, err)

	var seen []string
	final, err := fx.service.Watch(ctx, created.JobID, 10*time.Millisecond, func(job dto.PDFJobResponse, err error) {
		require.NoError(t, err)
		seen = append(seen, job.Status)
		if job.Status == string(results.JobStatusPending) {
			require.NoError(t, fx.worker.Process(ctx, created.JobID))
		}
	})
	require.NoError(t, err)
	require.Equal(t, string(results.JobStatusDone), final.Status)
	require.Equal(t, []string{string(results.JobStatusPending), string(results.JobStatusDone)}, seen)
}

func TestPDFJobWatchEndsForMissingJob(t *testing.T) {
	fx := newPDFFixture(t, pdf.NewRenderer(""), nil)

	_, err := fx.service.Watch(context.Background(), 4040, 10*time.Millisecond, nil)
	require.ErrorIs(t, err, ErrPDFJobNotFound)
}

func TestPDFWorkerQueueFull(t *testing.T) {
	worker := NewPDFWorker(nil, nil, nil, nil, nil, PDFWorkerConfig{QueueSize: 1}, testLogger())
	require.NoError(t, worker.Enqueue(context.Background(), 1))
	require.ErrorIs(t, worker.Enqueue(context.Background(), 2), ErrQueueFull)
}

func TestPDFJobSweeperFailsStaleJobs(t *testing.T) {
	fx := newPDFFixture(t, pdf.NewRenderer(""), nil)
	ctx := context.Background()

	created, err := fx.service.Create(ctx, dto.PDFJobCreateRequest{EnrollmentID: fx.data.enrollment.ID}, ActivityActor{ID: 3})
	require.NoError(t, err)

	sweeper, err := NewPDFJobSweeper(fx.jobs, "@every 1m", time.Minute, testLogger())
	require.NoError(t, err)
	sweeper.now = func() time.Time { return time.Now().Add(time.Hour) }

	affected, err := sweeper.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), affected)

	status, err := fx.service.Get(ctx, created.JobID)
	require.NoError(t, err)
	require.Equal(t, string(results.JobStatusFailed), status.Status)
	require.Equal(t, StaleJobMessage, status.ErrorMessage)

	require.NoError(t, fx.worker.Process(ctx, created.JobID))
	status, err = fx.service.Get(ctx, created.JobID)
	require.NoError(t, err)
	require.Equal(t, string(results.JobStatusFailed), status.Status)
}

func TestPDFJobSweeperRejectsBadSchedule(t *testing.T) {
	_, err := NewPDFJobSweeper(nil, "not a schedule", time.Minute, testLogger())
	require.Error(t, err)

	_, err = NewPDFJobSweeper(nil, "@every 1m", 0, testLogger())
	require.Error(t, err)
}
