package resultsclient

import (
	"github.com/noah-isme/gema-results-api/internal/dto"
	"github.com/noah-isme/gema-results-api/internal/results"
)

// Wire shapes shared with the results authority.
type (
	Attempt       = dto.AttemptResponse
	Detail        = dto.ResultDetailResponse
	ResultItem    = dto.ResultItemResponse
	AttemptItems  = dto.AttemptItemsResponse
	ResultRow     = dto.ResultRowResponse
	ExamSummary   = dto.ExamSummaryResponse
	QuestionStats = dto.QuestionStatsResponse
	WrongNote     = dto.WrongNoteItem
	WrongNotePage = dto.WrongNoteListResponse
	PDFJob        = dto.PDFJobResponse
	PDFJobRequest = dto.PDFJobCreateRequest
	PDFJobCreated = dto.PDFJobCreateResponse
	EditState     = results.EditState
	EditLock      = dto.EditLockRequest
	FrontStatus   = results.FrontStatus

	WrongNoteFilter = results.WrongNoteFilter
	RejectionError  = results.RejectionError
)

// Error classes callers can match with errors.Is.
var (
	ErrValidation       = results.ErrValidation
	ErrTransport        = results.ErrTransport
	ErrMissingEditState = results.ErrMissingEditState
	ErrPollLimit        = results.ErrPollLimit
)

// ResultKey identifies the result of one enrollment for one exam.
type ResultKey struct {
	ExamID       uint
	EnrollmentID uint
}

func (k ResultKey) valid() error {
	if k.ExamID == 0 || k.EnrollmentID == 0 {
		return results.Invalid("exam and enrollment ids are required")
	}
	return nil
}
