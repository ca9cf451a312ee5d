package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-results-api/internal/dto"
	"github.com/noah-isme/gema-results-api/internal/models"
	"github.com/noah-isme/gema-results-api/internal/observability"
	"github.com/noah-isme/gema-results-api/internal/repository"
	"github.com/noah-isme/gema-results-api/internal/results"
)

// ErrPDFJobNotFound indicates the job does not exist.
var ErrPDFJobNotFound = errors.New("pdf job not found")

// ErrEnrollmentNotFound indicates the enrollment does not exist.
var ErrEnrollmentNotFound = errors.New("enrollment not found")

// JobQueue hands job ids to the PDF workers.
type JobQueue interface {
	Enqueue(ctx context.Context, jobID uint) error
}

// PDFJobService creates wrong-note report jobs and reports their progress.
type PDFJobService interface {
	Create(ctx context.Context, payload dto.PDFJobCreateRequest, actor ActivityActor) (dto.PDFJobCreateResponse, error)
	Get(ctx context.Context, jobID uint) (dto.PDFJobResponse, error)
	Watch(ctx context.Context, jobID uint, interval time.Duration, observe func(dto.PDFJobResponse, error)) (dto.PDFJobResponse, error)
}

type pdfJobService struct {
	jobs      repository.PDFJobRepository
	results   repository.ResultRepository
	queue     JobQueue
	validator *validator.Validate
	statusURL string
	logger    zerolog.Logger
}

// NewPDFJobService constructs the PDF job service. statusURL is a format string receiving
// the job id.
func NewPDFJobService(jobs repository.PDFJobRepository, resultRepo repository.ResultRepository, queue JobQueue, validate *validator.Validate, statusURL string, logger zerolog.Logger) PDFJobService {
	if statusURL == "" {
		statusURL = "/api/v1/results/wrong-notes/pdf/%d"
	}
	return &pdfJobService{
		jobs:      jobs,
		results:   resultRepo,
		queue:     queue,
		validator: validate,
		statusURL: statusURL,
		logger:    logger.With().Str("component", "pdf_job_service").Logger(),
	}
}

func (s *pdfJobService) Create(ctx context.Context, payload dto.PDFJobCreateRequest, actor ActivityActor) (dto.PDFJobCreateResponse, error) {
	tracer := otel.Tracer("github.com/noah-isme/gema-results-api/internal/service/pdf_job")
	ctx, span := tracer.Start(ctx, "pdf_job.create")
	span.SetAttributes(
		attribute.Int64("pdf_job.enrollment_id", int64(payload.EnrollmentID)),
		attribute.Int64("pdf_job.actor_id", int64(actor.ID)),
	)
	defer span.End()

	if err := s.validator.Struct(payload); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation_failed")
		return dto.PDFJobCreateResponse{}, err
	}

	if _, err := s.results.GetEnrollment(ctx, payload.EnrollmentID); err != nil {
		span.RecordError(err)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			span.SetStatus(codes.Error, "enrollment_not_found")
			return dto.PDFJobCreateResponse{}, ErrEnrollmentNotFound
		}
		span.SetStatus(codes.Error, "enrollment_lookup_failed")
		return dto.PDFJobCreateResponse{}, err
	}

	job := models.PDFJob{
		EnrollmentID:     payload.EnrollmentID,
		ExamID:           payload.ExamID,
		LectureID:        payload.LectureID,
		FromSessionOrder: payload.FromSessionOrder,
		Status:           string(results.JobStatusPending),
		RequestedBy:      actor.ID,
	}
	if err := s.jobs.Create(ctx, &job); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "job_create_failed")
		return dto.PDFJobCreateResponse{}, err
	}
	span.SetAttributes(attribute.Int64("pdf_job.id", int64(job.ID)))

	if s.queue != nil {
		if err := s.queue.Enqueue(ctx, job.ID); err != nil {
			span.RecordError(err)
			s.logger.Error().Err(err).Uint("job_id", job.ID).Msg("failed to enqueue pdf job")
			if failErr := s.jobs.Fail(ctx, job.ID, "job could not be queued", time.Now()); failErr != nil {
				s.logger.Warn().Err(failErr).Uint("job_id", job.ID).Msg("failed to mark unqueued pdf job as failed")
			}
			observability.PDFJobs().WithLabelValues(string(results.JobStatusFailed)).Inc()
		}
	}

	s.logger.Info().Uint("job_id", job.ID).Uint("enrollment_id", job.EnrollmentID).Msg("pdf job created")

	return dto.PDFJobCreateResponse{
		JobID:     job.ID,
		Status:    job.Status,
		StatusURL: fmt.Sprintf(s.statusURL, job.ID),
	}, nil
}

func (s *pdfJobService) Get(ctx context.Context, jobID uint) (dto.PDFJobResponse, error) {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.PDFJobResponse{}, ErrPDFJobNotFound
		}
		return dto.PDFJobResponse{}, err
	}
	return dto.NewPDFJobResponse(job), nil
}

// Watch polls a job until it finishes, reporting every observation. Transient read errors are
// reported and polling continues; a missing job ends the watch.
func (s *pdfJobService) Watch(ctx context.Context, jobID uint, interval time.Duration, observe func(dto.PDFJobResponse, error)) (dto.PDFJobResponse, error) {
	var last dto.PDFJobResponse
	var missing error

	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	job, err := results.Poll(watchCtx, results.PollOptions{Interval: interval, Immediate: true},
		func(ctx context.Context) (dto.PDFJobResponse, error) {
			return s.Get(ctx, jobID)
		},
		func(job dto.PDFJobResponse) bool {
			status, _ := results.ParseJobStatus(job.Status)
			return status.IsTerminal()
		},
		func(job dto.PDFJobResponse, err error) {
			if err != nil {
				if errors.Is(err, ErrPDFJobNotFound) {
					missing = err
					cancel()
					return
				}
				observability.PDFPollErrors().Inc()
				s.logger.Warn().Err(err).Uint("job_id", jobID).Msg("pdf job status check failed")
			} else if job.Status == last.Status && job.UpdatedAt.Equal(last.UpdatedAt) {
				return
			} else {
				last = job
			}
			if observe != nil {
				observe(job, err)
			}
		},
	)
	if missing != nil {
		return dto.PDFJobResponse{}, missing
	}
	return job, err
}
