package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/gema-results-api/internal/dto"
	"github.com/noah-isme/gema-results-api/internal/models"
	"github.com/noah-isme/gema-results-api/internal/observability"
	"github.com/noah-isme/gema-results-api/internal/repository"
	"github.com/noah-isme/gema-results-api/internal/results"
	"github.com/noah-isme/gema-results-api/pkg/pdf"
)

// ErrQueueFull is returned when the in-process job queue cannot accept more work.
var ErrQueueFull = errors.New("pdf job queue is full")

// ReportRenderer renders wrong-note reports into PDF bytes.
type ReportRenderer interface {
	Render(ctx context.Context, report pdf.Report) ([]byte, error)
}

// ReportUploader publishes rendered reports and returns their URL.
type ReportUploader interface {
	Upload(ctx context.Context, name string, data []byte) (string, error)
}

// PDFWorkerConfig tunes the PDF worker pool.
type PDFWorkerConfig struct {
	Workers   int
	QueueSize int
	OutputDir string
	// PublicPath prefixes the file URL of reports kept on local disk.
	PublicPath string
}

type pdfJobMessage struct {
	JobID uint `json:"job_id"`
}

// PDFWorker claims queued jobs, renders their reports and records the outcome.
type PDFWorker struct {
	jobs     repository.PDFJobRepository
	results  repository.ResultRepository
	notes    WrongNoteService
	renderer ReportRenderer
	uploader ReportUploader
	cfg      PDFWorkerConfig
	queue    chan uint
	logger   zerolog.Logger
	now      func() time.Time
}

// NewPDFWorker constructs a worker pool. uploader may be nil, in which case reports are
// served from OutputDir.
func NewPDFWorker(jobs repository.PDFJobRepository, resultRepo repository.ResultRepository, notes WrongNoteService, renderer ReportRenderer, uploader ReportUploader, cfg PDFWorkerConfig, logger zerolog.Logger) *PDFWorker {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = os.TempDir()
	}
	if cfg.PublicPath == "" {
		cfg.PublicPath = "/files"
	}

	return &PDFWorker{
		jobs:     jobs,
		results:  resultRepo,
		notes:    notes,
		renderer: renderer,
		uploader: uploader,
		cfg:      cfg,
		queue:    make(chan uint, cfg.QueueSize),
		logger:   logger.With().Str("component", "pdf_worker").Logger(),
		now:      time.Now,
	}
}

// Enqueue implements JobQueue for in-process dispatch.
func (w *PDFWorker) Enqueue(ctx context.Context, jobID uint) error {
	select {
	case w.queue <- jobID:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrQueueFull
	}
}

// Run processes queued jobs until ctx is cancelled.
func (w *PDFWorker) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < w.cfg.Workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case jobID := <-w.queue:
					if err := w.Process(ctx, jobID); err != nil {
						w.logger.Warn().Err(err).Int("worker", worker).Uint("job_id", jobID).Msg("pdf job processing ended with error")
					}
				}
			}
		}(i)
	}
	wg.Wait()
}

// ConsumeNATS feeds jobs published on subject into the local pool. The subscription is
// drained when ctx is cancelled.
func (w *PDFWorker) ConsumeNATS(ctx context.Context, conn *nats.Conn, subject string) error {
	sub, err := conn.QueueSubscribe(subject, "gema-results-pdf", func(msg *nats.Msg) {
		var payload pdfJobMessage
		if err := json.Unmarshal(msg.Data, &payload); err != nil || payload.JobID == 0 {
			w.logger.Warn().Err(err).Msg("invalid pdf job message")
			return
		}
		if err := w.Enqueue(ctx, payload.JobID); err != nil {
			w.logger.Error().Err(err).Uint("job_id", payload.JobID).Msg("failed to hand pdf job to worker pool")
		}
	})
	if err != nil {
		return fmt.Errorf("subscribe to pdf job subject: %w", err)
	}

	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil {
			w.logger.Warn().Err(err).Msg("failed to drain pdf job subscription")
		}
	}()

	return nil
}

// Process runs one job. A job already claimed or finished elsewhere is skipped.
func (w *PDFWorker) Process(ctx context.Context, jobID uint) error {
	tracer := otel.Tracer("github.com/noah-isme/gema-results-api/internal/service/pdf_worker")
	ctx, span := tracer.Start(ctx, "pdf_job.process")
	span.SetAttributes(attribute.Int64("pdf_job.id", int64(jobID)))
	defer span.End()

	started := w.now()
	claimed, err := w.jobs.MarkRunning(ctx, jobID, started)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "claim_failed")
		return err
	}
	if !claimed {
		span.SetAttributes(attribute.Bool("pdf_job.skipped", true))
		return nil
	}

	job, err := w.jobs.GetByID(ctx, jobID)
	if err != nil {
		return w.fail(ctx, jobID, err, span)
	}

	filePath, fileURL, err := w.build(ctx, job)
	if err != nil {
		return w.fail(ctx, jobID, err, span)
	}

	if err := w.jobs.Complete(ctx, jobID, filePath, fileURL, w.now()); err != nil {
		span.RecordError(err)
		if errors.Is(err, results.ErrJobTerminal) {
			w.logger.Warn().Uint("job_id", jobID).Msg("pdf job finished elsewhere before completion was recorded")
			return nil
		}
		return err
	}

	observability.PDFJobs().WithLabelValues(string(results.JobStatusDone)).Inc()
	observability.PDFJobDuration().Observe(w.now().Sub(started).Seconds())
	w.logger.Info().Uint("job_id", jobID).Str("file_path", filePath).Msg("pdf job completed")
	return nil
}

func (w *PDFWorker) build(ctx context.Context, job models.PDFJob) (string, *string, error) {
	filter := results.WrongNoteFilter{
		ExamID:           job.ExamID,
		LectureID:        job.LectureID,
		FromSessionOrder: job.FromSessionOrder,
	}

	notes, err := w.notes.Collect(ctx, job.EnrollmentID, filter)
	if err != nil {
		return "", nil, fmt.Errorf("collect wrong notes: %w", err)
	}

	studentName := fmt.Sprintf("Enrollment %d", job.EnrollmentID)
	if enrollment, err := w.results.GetEnrollment(ctx, job.EnrollmentID); err == nil {
		studentName = enrollment.StudentName
	}

	data, err := w.renderer.Render(ctx, pdf.Report{
		StudentName: studentName,
		Filters:     describeFilter(filter),
		GeneratedAt: w.now(),
		Notes:       toReportNotes(notes),
	})
	if err != nil {
		return "", nil, err
	}

	if detected := mimetype.Detect(data); !detected.Is("application/pdf") {
		return "", nil, fmt.Errorf("rendered report has unexpected type %s", detected.String())
	}

	name := fmt.Sprintf("wrong-notes-%d-job-%d.pdf", job.EnrollmentID, job.ID)
	if err := os.MkdirAll(w.cfg.OutputDir, 0o755); err != nil {
		return "", nil, fmt.Errorf("prepare report directory: %w", err)
	}
	if err := os.WriteFile(filepath.Join(w.cfg.OutputDir, name), data, 0o644); err != nil {
		return "", nil, fmt.Errorf("write report: %w", err)
	}

	if w.uploader == nil {
		url := strings.TrimSuffix(w.cfg.PublicPath, "/") + "/" + name
		return name, &url, nil
	}

	url, err := w.uploader.Upload(ctx, name, data)
	if err != nil {
		return "", nil, err
	}
	return name, &url, nil
}

func (w *PDFWorker) fail(ctx context.Context, jobID uint, cause error, span trace.Span) error {
	span.RecordError(cause)
	span.SetStatus(codes.Error, "job_failed")

	if err := w.jobs.Fail(ctx, jobID, cause.Error(), w.now()); err != nil && !errors.Is(err, results.ErrJobTerminal) {
		w.logger.Error().Err(err).Uint("job_id", jobID).Msg("failed to record pdf job failure")
		return err
	}

	observability.PDFJobs().WithLabelValues(string(results.JobStatusFailed)).Inc()
	w.logger.Warn().Err(cause).Uint("job_id", jobID).Msg("pdf job failed")
	return cause
}

func toReportNotes(items []dto.WrongNoteItem) []pdf.Note {
	notes := make([]pdf.Note, 0, len(items))
	for _, item := range items {
		notes = append(notes, pdf.Note{
			ExamTitle:      item.ExamTitle,
			SessionOrder:   item.SessionOrder,
			QuestionNumber: item.QuestionNumber,
			QuestionID:     item.QuestionID,
			AnswerType:     item.AnswerType,
			StudentAnswer:  item.StudentAnswer,
			CorrectAnswer:  item.CorrectAnswer,
			Score:          item.Score,
			MaxScore:       item.MaxScore,
		})
	}
	return notes
}

func describeFilter(filter results.WrongNoteFilter) string {
	parts := make([]string, 0, 3)
	if filter.ExamID != nil {
		parts = append(parts, fmt.Sprintf("exam %d", *filter.ExamID))
	}
	if filter.LectureID != nil {
		parts = append(parts, fmt.Sprintf("lecture %d", *filter.LectureID))
	}
	if filter.FromSessionOrder != nil {
		parts = append(parts, fmt.Sprintf("from session %d", *filter.FromSessionOrder))
	}
	return strings.Join(parts, ", ")
}

// NATSJobQueue publishes job ids for workers subscribed on another node.
type NATSJobQueue struct {
	conn    *nats.Conn
	subject string
}

// NewNATSJobQueue constructs a NATS backed job queue.
func NewNATSJobQueue(conn *nats.Conn, subject string) *NATSJobQueue {
	return &NATSJobQueue{conn: conn, subject: subject}
}

// Enqueue publishes the job id on the configured subject.
func (q *NATSJobQueue) Enqueue(_ context.Context, jobID uint) error {
	payload, err := json.Marshal(pdfJobMessage{JobID: jobID})
	if err != nil {
		return err
	}
	return q.conn.Publish(q.subject, payload)
}
