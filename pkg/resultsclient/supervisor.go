package resultsclient

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-results-api/internal/results"
)

// ErrSupervisorStarted is returned when Start is called twice on one supervisor.
var ErrSupervisorStarted = errors.New("job supervisor already started")

// JobFailedError reports a report job that finished in FAILED.
type JobFailedError struct {
	JobID   uint
	Message string
}

func (e *JobFailedError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("pdf job %d failed", e.JobID)
	}
	return fmt.Sprintf("pdf job %d failed: %s", e.JobID, e.Message)
}

// JobUpdate is one observation of a supervised job. Err is set when the check itself
// failed; Job then holds the last known state.
type JobUpdate struct {
	Job PDFJob
	Err error
	At  time.Time
}

// SupervisorOptions tunes a JobSupervisor.
type SupervisorOptions struct {
	Interval time.Duration
	MaxPolls int
	Buffer   int
	Logger   zerolog.Logger
}

// JobSupervisor creates a wrong-note report job and follows it until it finishes. One
// supervisor follows one job; start a new supervisor for a new report.
type JobSupervisor struct {
	client *Client
	opts   SupervisorOptions
	logger zerolog.Logger

	mu         sync.Mutex
	started    bool
	cancel     context.CancelFunc
	updates    chan JobUpdate
	done       chan struct{}
	last       PDFJob
	seen       bool
	final      bool
	err        error
	pollErrors []error
}

// NewJobSupervisor builds an idle supervisor.
func NewJobSupervisor(client *Client, opts SupervisorOptions) *JobSupervisor {
	if opts.Interval <= 0 {
		opts.Interval = results.DefaultPollInterval
	}
	if opts.Buffer <= 0 {
		opts.Buffer = 16
	}
	return &JobSupervisor{
		client:  client,
		opts:    opts,
		logger:  opts.Logger.With().Str("component", "pdf_job_supervisor").Logger(),
		updates: make(chan JobUpdate, opts.Buffer),
		done:    make(chan struct{}),
	}
}

// Start queues the job and begins polling its status right away, then every interval.
// ctx bounds the whole supervision. A rejected request leaves the supervisor unstarted.
func (s *JobSupervisor) Start(ctx context.Context, request PDFJobRequest) (PDFJobCreated, error) {
	if request.EnrollmentID == 0 {
		return PDFJobCreated{}, results.Invalid("enrollment id is required")
	}
	filter := WrongNoteFilter{ExamID: request.ExamID, LectureID: request.LectureID, FromSessionOrder: request.FromSessionOrder}
	if err := filter.Validate(); err != nil {
		return PDFJobCreated{}, err
	}

	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return PDFJobCreated{}, ErrSupervisorStarted
	}
	s.started = true
	s.mu.Unlock()

	created, err := s.client.CreatePDFJob(ctx, request)
	if err != nil {
		s.mu.Lock()
		s.started = false
		s.mu.Unlock()
		return PDFJobCreated{}, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.last = PDFJob{JobID: created.JobID, Status: created.Status}
	s.seen = true
	s.mu.Unlock()

	s.logger.Info().Uint("job_id", created.JobID).Msg("supervising pdf job")
	go s.run(runCtx, created.JobID)
	return created, nil
}

// Updates streams observations. The channel is closed once supervision ends. Updates are
// dropped when the buffer is full; Last always holds the newest state.
func (s *JobSupervisor) Updates() <-chan JobUpdate {
	return s.updates
}

// Last returns the newest job state seen so far.
func (s *JobSupervisor) Last() (PDFJob, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last, s.seen
}

// Errors returns the failed status checks seen so far.
func (s *JobSupervisor) Errors() []error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]error(nil), s.pollErrors...)
}

// Stop ends polling and waits for the loop to exit. Stopping an idle or finished
// supervisor is a no-op.
func (s *JobSupervisor) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-s.done
}

// Wait blocks until the job reaches a terminal state or supervision ends. A FAILED job
// returns its last state with a JobFailedError.
func (s *JobSupervisor) Wait(ctx context.Context) (PDFJob, error) {
	s.mu.Lock()
	started := s.cancel != nil
	s.mu.Unlock()
	if !started {
		return PDFJob{}, errors.New("job supervisor not started")
	}

	select {
	case <-ctx.Done():
		return PDFJob{}, ctx.Err()
	case <-s.done:
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last, s.err
}

func (s *JobSupervisor) run(ctx context.Context, jobID uint) {
	defer close(s.done)
	defer close(s.updates)

	fetch := func(ctx context.Context) (PDFJob, error) {
		return s.client.PDFJob(ctx, jobID)
	}
	finished := func(job PDFJob) bool {
		status, ok := results.ParseJobStatus(job.Status)
		return ok && status.IsTerminal()
	}

	job, err := results.Poll(ctx, results.PollOptions{
		Interval:  s.opts.Interval,
		MaxPolls:  s.opts.MaxPolls,
		Immediate: true,
	}, fetch, finished, s.observe)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancel()
	if err != nil {
		s.err = err
		s.logger.Warn().Err(err).Uint("job_id", jobID).Msg("pdf job supervision ended before completion")
		return
	}
	s.last = job
	s.final = true
	if status, _ := results.ParseJobStatus(job.Status); status == results.JobStatusFailed {
		s.err = &JobFailedError{JobID: jobID, Message: job.ErrorMessage}
	}
	s.logger.Info().Uint("job_id", jobID).Str("status", job.Status).Msg("pdf job finished")
}

// observe records one check. States that could not follow the current one are stale
// responses and are ignored.
func (s *JobSupervisor) observe(job PDFJob, err error) {
	s.mu.Lock()
	if s.final {
		s.mu.Unlock()
		return
	}
	update := JobUpdate{Job: s.last, Err: err, At: time.Now()}
	if err != nil {
		s.pollErrors = append(s.pollErrors, err)
	} else {
		current, currentOK := results.ParseJobStatus(s.last.Status)
		next, nextOK := results.ParseJobStatus(job.Status)
		if currentOK && nextOK && current != next && !results.CanTransition(current, next) {
			s.mu.Unlock()
			return
		}
		s.last = job
		update.Job = job
	}
	s.mu.Unlock()

	select {
	case s.updates <- update:
	default:
	}
}
