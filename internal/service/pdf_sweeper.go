package service

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-results-api/internal/observability"
	"github.com/noah-isme/gema-results-api/internal/repository"
	"github.com/noah-isme/gema-results-api/internal/results"
)

// StaleJobMessage is recorded on jobs failed by the sweeper.
const StaleJobMessage = "job did not finish in time"

// PDFJobSweeper periodically fails jobs that stopped making progress so that watchers
// always observe a terminal state.
type PDFJobSweeper struct {
	jobs       repository.PDFJobRepository
	staleAfter time.Duration
	cron       *cron.Cron
	logger     zerolog.Logger
	now        func() time.Time
}

// NewPDFJobSweeper schedules the sweep with a cron spec such as "@every 1m".
func NewPDFJobSweeper(jobs repository.PDFJobRepository, schedule string, staleAfter time.Duration, logger zerolog.Logger) (*PDFJobSweeper, error) {
	if staleAfter <= 0 {
		return nil, fmt.Errorf("stale threshold must be positive")
	}

	sweeper := &PDFJobSweeper{
		jobs:       jobs,
		staleAfter: staleAfter,
		cron:       cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger))),
		logger:     logger.With().Str("component", "pdf_sweeper").Logger(),
		now:        time.Now,
	}

	if _, err := sweeper.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if _, err := sweeper.Sweep(ctx); err != nil {
			sweeper.logger.Error().Err(err).Msg("stale pdf job sweep failed")
		}
	}); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}

	return sweeper, nil
}

// Start runs the schedule in the background.
func (s *PDFJobSweeper) Start() {
	s.cron.Start()
	s.logger.Info().Dur("stale_after", s.staleAfter).Msg("stale pdf job sweeper started")
}

// Stop halts the schedule and returns a context that is done once a running sweep ends.
func (s *PDFJobSweeper) Stop() context.Context {
	return s.cron.Stop()
}

// Sweep fails every open job untouched for longer than the stale threshold.
func (s *PDFJobSweeper) Sweep(ctx context.Context) (int64, error) {
	now := s.now()
	affected, err := s.jobs.FailStale(ctx, now.Add(-s.staleAfter), StaleJobMessage, now)
	if err != nil {
		return 0, err
	}

	if affected > 0 {
		observability.PDFJobs().WithLabelValues(string(results.JobStatusFailed)).Add(float64(affected))
		s.logger.Warn().Int64("jobs", affected).Msg("failed stale pdf jobs")
	}
	return affected, nil
}
