package resultsclient

import (
	"context"

	"github.com/noah-isme/gema-results-api/internal/results"
)

// DefaultWrongNotePageSize is used when CollectWrongNotes is given no page size.
const DefaultWrongNotePageSize = 50

// CollectWrongNotes follows the page cursor until the last page and returns every wrong
// note once, in the order the authority served them.
func (c *Client) CollectWrongNotes(ctx context.Context, enrollmentID uint, filter WrongNoteFilter, pageSize int) ([]WrongNote, error) {
	if enrollmentID == 0 {
		return nil, results.Invalid("enrollment id is required")
	}
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	if pageSize <= 0 {
		pageSize = DefaultWrongNotePageSize
	}

	var notes []WrongNote
	offset := 0
	for {
		page, err := c.WrongNotes(ctx, enrollmentID, filter, offset, pageSize)
		if err != nil {
			return nil, err
		}
		notes = append(notes, page.Results...)
		if page.Next == nil || *page.Next <= offset {
			break
		}
		offset = *page.Next
	}
	return results.DedupeWrongNotes(notes), nil
}
