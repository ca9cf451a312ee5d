package service

import (
	"context"
	"errors"
	"math"
	"sort"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-results-api/internal/dto"
	"github.com/noah-isme/gema-results-api/internal/models"
	"github.com/noah-isme/gema-results-api/internal/repository"
	"github.com/noah-isme/gema-results-api/internal/results"
)

// ErrExamNotFound indicates the exam does not exist.
var ErrExamNotFound = errors.New("exam not found")

const topWrongLimit = 5

// ResultService builds the read views of exam results.
type ResultService interface {
	ListRows(ctx context.Context, examID uint) ([]dto.ResultRowResponse, error)
	Detail(ctx context.Context, examID, enrollmentID uint) (dto.ResultDetailResponse, error)
	Summary(ctx context.Context, examID uint) (dto.ExamSummaryResponse, error)
	QuestionStats(ctx context.Context, examID uint) (dto.QuestionStatsResponse, error)
}

type resultService struct {
	results  repository.ResultRepository
	attempts repository.AttemptRepository
	states   repository.EditStateRepository
	cache    ViewCache
	logger   zerolog.Logger
}

// NewResultService constructs the result read service.
func NewResultService(resultRepo repository.ResultRepository, attempts repository.AttemptRepository, states repository.EditStateRepository, cache ViewCache, logger zerolog.Logger) ResultService {
	return &resultService{
		results:  resultRepo,
		attempts: attempts,
		states:   states,
		cache:    cache,
		logger:   logger.With().Str("component", "result_service").Logger(),
	}
}

func (s *resultService) exam(ctx context.Context, examID uint) (models.Exam, error) {
	exam, err := s.results.GetExam(ctx, examID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Exam{}, ErrExamNotFound
		}
		return models.Exam{}, err
	}
	return exam, nil
}

// Keys are taken before the database is read.
func (s *resultService) resultKey(ctx context.Context, view string, examID, enrollmentID uint) string {
	if s.cache == nil {
		return ""
	}
	return s.cache.ResultKey(ctx, view, examID, enrollmentID)
}

func (s *resultService) examKey(ctx context.Context, view string, examID uint) string {
	if s.cache == nil {
		return ""
	}
	return s.cache.ExamKey(ctx, view, examID)
}

func (s *resultService) ListRows(ctx context.Context, examID uint) ([]dto.ResultRowResponse, error) {
	key := s.examKey(ctx, ViewRows, examID)
	var cached []dto.ResultRowResponse
	if s.cache != nil && s.cache.Load(ctx, key, &cached) {
		return cached, nil
	}

	exam, err := s.exam(ctx, examID)
	if err != nil {
		return nil, err
	}

	rows, err := s.results.ListExamResults(ctx, examID)
	if err != nil {
		return nil, err
	}

	response := make([]dto.ResultRowResponse, 0, len(rows))
	for _, row := range rows {
		item := dto.ResultRowResponse{
			EnrollmentID:     row.EnrollmentID,
			StudentName:      row.StudentName,
			FinalScore:       row.FinalScore,
			SubmissionStatus: row.SubmissionStatus,
			RequiresFollowUp: row.PendingItems > 0,
			SubmissionID:     row.SubmissionID,
			SubmittedAt:      row.SubmittedAt,
		}
		if row.FinalScore != nil {
			passed := exam.Passed(*row.FinalScore)
			item.Passed = &passed
			item.ClinicRequired = !passed
		}
		item.Status = results.DeriveSummaryStatus(results.SummarySignals{
			RawStatus:           row.SubmissionStatus,
			RequiresFollowUp:    item.RequiresFollowUp,
			HasLegacySubmission: row.SubmissionID != nil,
		})
		response = append(response, item)
	}

	if s.cache != nil {
		s.cache.Store(ctx, key, response)
	}
	return response, nil
}

func (s *resultService) Detail(ctx context.Context, examID, enrollmentID uint) (dto.ResultDetailResponse, error) {
	key := s.resultKey(ctx, ViewDetail, examID, enrollmentID)
	var cached dto.ResultDetailResponse
	if s.cache != nil && s.cache.Load(ctx, key, &cached) {
		return cached, nil
	}

	result, err := s.results.GetExamResult(ctx, examID, enrollmentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.ResultDetailResponse{}, ErrResultNotFound
		}
		return dto.ResultDetailResponse{}, err
	}

	response := dto.ResultDetailResponse{
		TargetType:   result.Exam.TargetType,
		TargetID:     result.ExamID,
		EnrollmentID: result.EnrollmentID,
		StudentName:  result.Enrollment.StudentName,
		SubmittedAt:  result.SubmittedAt,
		MaxScore:     result.Exam.MaxScore,
		Items:        []dto.ResultItemResponse{},
		AllowRetake:  result.Exam.AllowRetake,
		MaxAttempts:  result.Exam.MaxAttempts,
	}

	representative, err := s.attempts.GetRepresentative(ctx, examID, enrollmentID)
	switch {
	case err == nil:
		response.AttemptID = uintPtr(representative.ID)
	case errors.Is(err, gorm.ErrRecordNotFound):
	default:
		return dto.ResultDetailResponse{}, err
	}

	if response.AttemptID != nil {
		items, err := s.results.ListItems(ctx, representative.ID)
		if err != nil {
			return dto.ResultDetailResponse{}, err
		}

		var total, maxTotal float64
		for _, item := range items {
			response.Items = append(response.Items, dto.NewResultItemResponse(item))
			total += item.Score
			maxTotal += item.MaxScore
			if item.PendingReview {
				response.ItemsPendingReview++
			}
		}
		response.TotalScore = total
		if len(items) > 0 {
			response.MaxScore = maxTotal
		}

		if representative.GradingTotalScore != nil {
			response.ClinicRequired = !result.Exam.Passed(*representative.GradingTotalScore)
		}
	} else if result.SubmittedAt != nil {
		s.logger.Warn().
			Uint("exam_id", examID).
			Uint("enrollment_id", enrollmentID).
			Msg("submitted result has no representative attempt")
	}

	response.Status = results.DeriveDetailStatus(results.DetailSignals{
		SubmittedAt: response.SubmittedAt,
		AttemptID:   response.AttemptID,
	})

	state, err := s.states.Get(ctx, examID, enrollmentID)
	switch {
	case err == nil:
		response.EditState = dto.NewEditStateResponse(state)
	case errors.Is(err, gorm.ErrRecordNotFound):
	default:
		return dto.ResultDetailResponse{}, err
	}

	attemptCount, err := s.results.CountAttempts(ctx, examID, enrollmentID)
	if err != nil {
		return dto.ResultDetailResponse{}, err
	}
	response.CanRetake = result.Exam.AllowRetake && attemptCount < int64(result.Exam.MaxAttempts)

	if s.cache != nil {
		s.cache.Store(ctx, key, response)
	}
	return response, nil
}

func (s *resultService) Summary(ctx context.Context, examID uint) (dto.ExamSummaryResponse, error) {
	key := s.examKey(ctx, ViewSummary, examID)
	var cached dto.ExamSummaryResponse
	if s.cache != nil && s.cache.Load(ctx, key, &cached) {
		return cached, nil
	}

	exam, err := s.exam(ctx, examID)
	if err != nil {
		return dto.ExamSummaryResponse{}, err
	}

	rows, err := s.results.ListExamResults(ctx, examID)
	if err != nil {
		return dto.ExamSummaryResponse{}, err
	}

	response := summarize(exam, rows)
	if s.cache != nil {
		s.cache.Store(ctx, key, response)
	}
	return response, nil
}

func summarize(exam models.Exam, rows []repository.ResultRow) dto.ExamSummaryResponse {
	response := dto.ExamSummaryResponse{ExamID: exam.ID}

	var sum float64
	response.MinScore = math.Inf(1)
	response.MaxScore = math.Inf(-1)
	for _, row := range rows {
		if row.FinalScore == nil {
			continue
		}
		score := *row.FinalScore
		response.ParticipantCount++
		sum += score
		response.MinScore = math.Min(response.MinScore, score)
		response.MaxScore = math.Max(response.MaxScore, score)
		if exam.Passed(score) {
			response.PassCount++
		} else {
			response.FailCount++
		}
	}

	if response.ParticipantCount == 0 {
		response.MinScore = 0
		response.MaxScore = 0
		return response
	}

	response.AvgScore = round2(sum / float64(response.ParticipantCount))
	response.PassRate = round2(float64(response.PassCount) / float64(response.ParticipantCount))
	response.ClinicCount = response.FailCount
	return response
}

func (s *resultService) QuestionStats(ctx context.Context, examID uint) (dto.QuestionStatsResponse, error) {
	key := s.examKey(ctx, ViewQuestions, examID)
	var cached dto.QuestionStatsResponse
	if s.cache != nil && s.cache.Load(ctx, key, &cached) {
		return cached, nil
	}

	if _, err := s.exam(ctx, examID); err != nil {
		return dto.QuestionStatsResponse{}, err
	}

	stats, err := s.results.QuestionStats(ctx, examID)
	if err != nil {
		return dto.QuestionStatsResponse{}, err
	}

	response := dto.QuestionStatsResponse{
		ExamID:    examID,
		Questions: make([]dto.QuestionStatResponse, 0, len(stats)),
		TopWrong:  []dto.TopWrongQuestionResponse{},
	}
	for _, stat := range stats {
		item := dto.QuestionStatResponse{
			QuestionID: stat.QuestionID,
			Attempts:   stat.Attempts,
			Correct:    stat.Correct,
			AvgScore:   round2(stat.AvgScore),
			MaxScore:   stat.MaxScore,
		}
		if stat.Attempts > 0 {
			item.Accuracy = round2(float64(stat.Correct) / float64(stat.Attempts))
		}
		response.Questions = append(response.Questions, item)

		if wrong := stat.Attempts - stat.Correct; wrong > 0 {
			response.TopWrong = append(response.TopWrong, dto.TopWrongQuestionResponse{QuestionID: stat.QuestionID, WrongCount: wrong})
		}
	}

	sort.SliceStable(response.TopWrong, func(i, j int) bool {
		if response.TopWrong[i].WrongCount == response.TopWrong[j].WrongCount {
			return response.TopWrong[i].QuestionID < response.TopWrong[j].QuestionID
		}
		return response.TopWrong[i].WrongCount > response.TopWrong[j].WrongCount
	})
	if len(response.TopWrong) > topWrongLimit {
		response.TopWrong = response.TopWrong[:topWrongLimit]
	}

	if s.cache != nil {
		s.cache.Store(ctx, key, response)
	}
	return response, nil
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}
