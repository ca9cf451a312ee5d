package dto

import (
	"encoding/json"
	"time"

	"github.com/noah-isme/gema-results-api/internal/models"
	"github.com/noah-isme/gema-results-api/internal/results"
)

// PaginationMeta captures pagination metadata for list responses.
type PaginationMeta struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	TotalItems int64 `json:"total_items"`
	TotalPages int   `json:"total_pages"`
}

// AttemptGradingMeta carries aggregate score hints of an attempt.
type AttemptGradingMeta struct {
	TotalScore    *float64 `json:"total_score"`
	TotalMaxScore *float64 `json:"total_max_score"`
}

// AttemptMeta wraps optional attempt metadata.
type AttemptMeta struct {
	Grading *AttemptGradingMeta `json:"grading,omitempty"`
}

// AttemptResponse serializes one attempt of an enrollment.
type AttemptResponse struct {
	ID               uint        `json:"id"`
	ExamID           uint        `json:"exam_id"`
	EnrollmentID     uint        `json:"enrollment_id"`
	AttemptIndex     int         `json:"attempt_index"`
	IsRetake         bool        `json:"is_retake"`
	IsRepresentative bool        `json:"is_representative"`
	Status           string      `json:"status"`
	IsLocked         bool        `json:"is_locked"`
	UngradedHint     bool        `json:"ungraded_hint"`
	CreatedAt        time.Time   `json:"created_at"`
	Meta             AttemptMeta `json:"meta"`
}

// SetRepresentativeRequest selects the representative attempt of an enrollment.
type SetRepresentativeRequest struct {
	EnrollmentID uint `json:"enrollment_id" validate:"required,gt=0"`
	AttemptID    uint `json:"attempt_id" validate:"required,gt=0"`
}

// ResultItemResponse serializes a per-question result fact.
type ResultItemResponse struct {
	QuestionID     uint            `json:"question_id"`
	QuestionNumber *int            `json:"question_number"`
	AnswerType     string          `json:"answer_type"`
	Answer         string          `json:"answer"`
	IsCorrect      bool            `json:"is_correct"`
	Score          float64         `json:"score"`
	MaxScore       float64         `json:"max_score"`
	IsEditable     bool            `json:"is_editable"`
	PendingReview  bool            `json:"pending_review"`
	Meta           json.RawMessage `json:"meta,omitempty"`
}

// AttemptItemsResponse lists the per-question facts of one attempt, representative or not.
type AttemptItemsResponse struct {
	Attempt AttemptResponse      `json:"attempt"`
	Items   []ResultItemResponse `json:"items"`
}

// ResultDetailResponse is the per-student result panel payload.
type ResultDetailResponse struct {
	TargetType         string              `json:"target_type"`
	TargetID           uint                `json:"target_id"`
	EnrollmentID       uint                `json:"enrollment_id"`
	StudentName        string              `json:"student_name"`
	AttemptID          *uint               `json:"attempt_id"`
	TotalScore         float64             `json:"total_score"`
	MaxScore           float64             `json:"max_score"`
	SubmittedAt        *time.Time          `json:"submitted_at"`
	Status             results.FrontStatus `json:"status"`
	Items              []ResultItemResponse `json:"items"`
	ItemsPendingReview int                 `json:"items_pending_review"`
	EditState          *results.EditState  `json:"edit_state"`
	AllowRetake        bool                `json:"allow_retake"`
	MaxAttempts        int                 `json:"max_attempts"`
	CanRetake          bool                `json:"can_retake"`
	ClinicRequired     bool                `json:"clinic_required"`
}

// ResultRowResponse is one row of the exam result list.
type ResultRowResponse struct {
	EnrollmentID     uint                `json:"enrollment_id"`
	StudentName      string              `json:"student_name"`
	FinalScore       *float64            `json:"final_score"`
	Passed           *bool               `json:"passed"`
	ClinicRequired   bool                `json:"clinic_required"`
	SubmissionStatus string              `json:"submission_status"`
	RequiresFollowUp bool                `json:"requires_follow_up"`
	SubmissionID     *uint               `json:"submission_id"`
	SubmittedAt      *time.Time          `json:"submitted_at"`
	Status           results.FrontStatus `json:"status"`
}

// ExamSummaryResponse aggregates representative scores of an exam.
type ExamSummaryResponse struct {
	ExamID           uint    `json:"exam_id"`
	ParticipantCount int     `json:"participant_count"`
	AvgScore         float64 `json:"avg_score"`
	MinScore         float64 `json:"min_score"`
	MaxScore         float64 `json:"max_score"`
	PassCount        int     `json:"pass_count"`
	FailCount        int     `json:"fail_count"`
	PassRate         float64 `json:"pass_rate"`
	ClinicCount      int     `json:"clinic_count"`
}

// QuestionStatResponse describes accuracy of one question over representative attempts.
type QuestionStatResponse struct {
	QuestionID uint    `json:"question_id"`
	Attempts   int64   `json:"attempts"`
	Correct    int64   `json:"correct"`
	Accuracy   float64 `json:"accuracy"`
	AvgScore   float64 `json:"avg_score"`
	MaxScore   float64 `json:"max_score"`
}

// TopWrongQuestionResponse ranks questions by wrong answers.
type TopWrongQuestionResponse struct {
	QuestionID uint  `json:"question_id"`
	WrongCount int64 `json:"wrong_count"`
}

// QuestionStatsResponse wraps per-question statistics.
type QuestionStatsResponse struct {
	ExamID    uint                       `json:"exam_id"`
	Questions []QuestionStatResponse     `json:"questions"`
	TopWrong  []TopWrongQuestionResponse `json:"top_wrong"`
}

// PatchItemScoreRequest corrects the score of one result item.
type PatchItemScoreRequest struct {
	Score  *float64 `json:"score" validate:"required"`
	Reason string   `json:"reason" validate:"omitempty,max=500"`
}

// EditLockRequest sets or clears the edit lock of a result.
type EditLockRequest struct {
	Locked  bool    `json:"locked"`
	Reason  *string `json:"reason" validate:"omitempty,max=255"`
	CanEdit *bool   `json:"can_edit"`
}

// NewAttemptResponse converts an attempt model into a DTO.
func NewAttemptResponse(model models.Attempt) AttemptResponse {
	response := AttemptResponse{
		ID:               model.ID,
		ExamID:           model.ExamID,
		EnrollmentID:     model.EnrollmentID,
		AttemptIndex:     model.AttemptIndex,
		IsRetake:         model.IsRetake,
		IsRepresentative: model.IsRepresentative,
		Status:           model.Status,
		IsLocked:         results.AttemptLocked(model.Status),
		UngradedHint:     results.UngradedHint(model.Status, model.GradingTotalScore, model.GradingMaxScore),
		CreatedAt:        model.CreatedAt,
	}

	if model.GradingTotalScore != nil || model.GradingMaxScore != nil {
		response.Meta.Grading = &AttemptGradingMeta{
			TotalScore:    model.GradingTotalScore,
			TotalMaxScore: model.GradingMaxScore,
		}
	}

	return response
}

// NewAttemptResponseSlice converts attempt models into DTOs.
func NewAttemptResponseSlice(attempts []models.Attempt) []AttemptResponse {
	responses := make([]AttemptResponse, 0, len(attempts))
	for _, attempt := range attempts {
		responses = append(responses, NewAttemptResponse(attempt))
	}
	return responses
}

// NewResultItemResponse converts a result item model into a DTO.
func NewResultItemResponse(model models.ResultItem) ResultItemResponse {
	response := ResultItemResponse{
		QuestionID:     model.QuestionID,
		QuestionNumber: model.QuestionNumber,
		AnswerType:     model.AnswerType,
		Answer:         model.Answer,
		IsCorrect:      model.IsCorrect,
		Score:          model.Score,
		MaxScore:       model.MaxScore,
		IsEditable:     model.IsEditable,
		PendingReview:  model.PendingReview,
	}
	if len(model.Meta) > 0 {
		response.Meta = json.RawMessage(model.Meta)
	}
	return response
}

// NewEditStateResponse converts an edit state model into the guard's wire form.
func NewEditStateResponse(model models.EditState) *results.EditState {
	return results.NewEditState(model.CanEdit, model.IsLocked, model.LockReason, model.LastUpdatedBy, model.UpdatedAt)
}
