package results

// WrongNoteKey identifies a wrong note across refetches and pages.
type WrongNoteKey struct {
	AttemptID  uint
	QuestionID uint
}

// Keyed is implemented by wrong note rows.
type Keyed interface {
	NoteKey() WrongNoteKey
}

// WrongNoteFilter narrows a wrong note listing.
type WrongNoteFilter struct {
	ExamID           *uint
	LectureID        *uint
	FromSessionOrder *int
}

// Validate rejects filters that can never match.
func (f WrongNoteFilter) Validate() error {
	if f.ExamID != nil && *f.ExamID == 0 {
		return Invalid("exam_id must be positive")
	}
	if f.LectureID != nil && *f.LectureID == 0 {
		return Invalid("lecture_id must be positive")
	}
	if f.FromSessionOrder != nil && *f.FromSessionOrder < 0 {
		return Invalid("from_session_order must not be negative")
	}
	return nil
}

// DedupeWrongNotes drops rows whose key was already seen, keeping first occurrence order.
func DedupeWrongNotes[T Keyed](items []T) []T {
	seen := make(map[WrongNoteKey]struct{}, len(items))
	out := make([]T, 0, len(items))
	for _, item := range items {
		key := item.NoteKey()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, item)
	}
	return out
}
