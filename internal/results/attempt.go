package results

// Known attempt statuses. Anything else is treated as locked.
const (
	AttemptStatusPending = "pending"
	AttemptStatusGrading = "grading"
	AttemptStatusDone    = "done"
	AttemptStatusFailed  = "failed"
)

// NormalizeAttemptStatus lower-cases raw and reports whether it is a known status.
func NormalizeAttemptStatus(raw string) (string, bool) {
	status := normalizeRaw(raw)
	switch status {
	case AttemptStatusPending, AttemptStatusGrading, AttemptStatusDone, AttemptStatusFailed:
		return status, true
	default:
		return status, false
	}
}

// AttemptLocked reports whether an attempt in raw status must not be selected.
func AttemptLocked(raw string) bool {
	return CheckSelectable(raw) != nil
}

// CheckSelectable returns the rejection for selecting an attempt in raw status as
// representative, or nil when selection is allowed.
func CheckSelectable(raw string) error {
	status, known := NormalizeAttemptStatus(raw)
	if !known {
		return ErrAttemptStatusUnknown
	}
	if status == AttemptStatusGrading {
		return ErrAttemptGrading
	}
	return nil
}

// UngradedHint flags a finished attempt that carries no grading totals.
func UngradedHint(raw string, totalScore, totalMaxScore *float64) bool {
	status, _ := NormalizeAttemptStatus(raw)
	return status == AttemptStatusDone && (totalScore == nil || totalMaxScore == nil)
}
