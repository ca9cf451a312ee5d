package results

import (
	"context"
	"strings"
	"time"
)

// JobStatus is the lifecycle state of a PDF job.
type JobStatus string

const (
	JobStatusPending JobStatus = "PENDING"
	JobStatusRunning JobStatus = "RUNNING"
	JobStatusDone    JobStatus = "DONE"
	JobStatusFailed  JobStatus = "FAILED"
)

// DefaultPollInterval is the fixed delay between job status checks.
const DefaultPollInterval = 2 * time.Second

// ParseJobStatus normalises a raw job status. Unknown values are reported as not ok and
// are treated as still in flight by callers.
func ParseJobStatus(raw string) (JobStatus, bool) {
	status := JobStatus(strings.ToUpper(strings.TrimSpace(raw)))
	switch status {
	case JobStatusPending, JobStatusRunning, JobStatusDone, JobStatusFailed:
		return status, true
	default:
		return status, false
	}
}

// IsTerminal reports whether no further transition is possible.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusDone || s == JobStatusFailed
}

// CanTransition reports whether a job may move from one status to another.
func CanTransition(from, to JobStatus) bool {
	switch from {
	case JobStatusPending:
		return to == JobStatusRunning || to == JobStatusDone || to == JobStatusFailed
	case JobStatusRunning:
		return to == JobStatusDone || to == JobStatusFailed
	default:
		return false
	}
}

// PollOptions configures Poll.
type PollOptions struct {
	// Interval between checks; DefaultPollInterval when zero.
	Interval time.Duration
	// MaxPolls bounds the number of checks; zero polls until terminal or cancelled.
	MaxPolls int
	// Immediate performs the first check before waiting one interval.
	Immediate bool
}

// Poll calls fetch until done reports a terminal value, ctx is cancelled, or MaxPolls
// checks have been made. Fetch errors are passed to observe and polling continues on the
// same interval. The ticker is stopped before Poll returns.
func Poll[T any](ctx context.Context, opts PollOptions, fetch func(context.Context) (T, error), done func(T) bool, observe func(T, error)) (T, error) {
	var zero T
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	polls := 0
	check := func() (T, bool) {
		polls++
		value, err := fetch(ctx)
		if ctx.Err() != nil {
			return zero, false
		}
		if observe != nil {
			observe(value, err)
		}
		if err != nil {
			return zero, false
		}
		return value, done(value)
	}

	if opts.Immediate {
		if value, finished := check(); finished {
			return value, nil
		}
		if err := ctx.Err(); err != nil {
			return zero, err
		}
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if opts.MaxPolls > 0 && polls >= opts.MaxPolls {
			return zero, ErrPollLimit
		}
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-ticker.C:
			if value, finished := check(); finished {
				return value, nil
			}
			if err := ctx.Err(); err != nil {
				return zero, err
			}
		}
	}
}
