package results

import (
	"strings"
	"time"
)

// FrontStatus is the closed set of user-facing result statuses.
type FrontStatus string

const (
	FrontStatusWaiting     FrontStatus = "waiting"
	FrontStatusProcessing  FrontStatus = "processing"
	FrontStatusPartialDone FrontStatus = "partial_done"
	FrontStatusDone        FrontStatus = "done"
	FrontStatusFailed      FrontStatus = "failed"
)

var (
	failedPipelineStatuses = map[string]struct{}{
		"failed": {},
		"error":  {},
	}
	inFlightPipelineStatuses = map[string]struct{}{
		"pending":       {},
		"submitted":     {},
		"dispatched":    {},
		"extracting":    {},
		"answers_ready": {},
		"grading":       {},
		"running":       {},
		"processing":    {},
	}
	donePipelineStatuses = map[string]struct{}{
		"done":      {},
		"completed": {},
		"success":   {},
	}
)

// SummarySignals are the raw inputs available on a result list row.
type SummarySignals struct {
	RawStatus           string
	RequiresFollowUp    bool
	HasLegacySubmission bool
}

// DetailSignals are the raw inputs available on a per-student result detail.
type DetailSignals struct {
	SubmittedAt *time.Time
	AttemptID   *uint
}

// DeriveSummaryStatus collapses pipeline signals of a list row into a front status.
// Unrecognised raw statuses map to processing so a real submission is never shown as
// not submitted.
func DeriveSummaryStatus(signals SummarySignals) FrontStatus {
	raw := normalizeRaw(signals.RawStatus)
	if raw == "" {
		if signals.HasLegacySubmission {
			return FrontStatusProcessing
		}
		return FrontStatusWaiting
	}

	if _, ok := failedPipelineStatuses[raw]; ok {
		return FrontStatusFailed
	}
	if _, ok := inFlightPipelineStatuses[raw]; ok {
		return FrontStatusProcessing
	}
	if signals.RequiresFollowUp {
		return FrontStatusPartialDone
	}
	if _, ok := donePipelineStatuses[raw]; ok {
		return FrontStatusDone
	}

	return FrontStatusProcessing
}

// DeriveDetailStatus derives the front status of a detail record. A submission without a
// representative attempt is a data inconsistency and reports failed.
func DeriveDetailStatus(signals DetailSignals) FrontStatus {
	if signals.SubmittedAt == nil || signals.SubmittedAt.IsZero() {
		return FrontStatusWaiting
	}
	if signals.AttemptID == nil || *signals.AttemptID == 0 {
		return FrontStatusFailed
	}
	return FrontStatusDone
}

// Valid reports whether s belongs to the closed front status set.
func (s FrontStatus) Valid() bool {
	switch s {
	case FrontStatusWaiting, FrontStatusProcessing, FrontStatusPartialDone, FrontStatusDone, FrontStatusFailed:
		return true
	default:
		return false
	}
}

func normalizeRaw(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}
