package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-results-api/internal/middleware"
	"github.com/noah-isme/gema-results-api/internal/service"
	"github.com/noah-isme/gema-results-api/internal/utils"
)

// ResultHandler serves the read views of exam results.
type ResultHandler struct {
	service service.ResultService
	access  service.EnrollmentAccess
	logger  zerolog.Logger
}

// NewResultHandler constructs the handler.
func NewResultHandler(service service.ResultService, access service.EnrollmentAccess, logger zerolog.Logger) *ResultHandler {
	return &ResultHandler{
		service: service,
		access:  access,
		logger:  logger.With().Str("component", "result_handler").Logger(),
	}
}

// Register attaches result views to a group mounted at /exams.
func (h *ResultHandler) Register(router fiber.Router) {
	staff := middleware.AuthOptions{Role: middleware.AuthRoleStaff}

	router.Get("/:examId/rows", middleware.WithAuth(h.rows, staff))
	router.Get("/:examId/summary", middleware.WithAuth(h.summary, staff))
	router.Get("/:examId/questions", middleware.WithAuth(h.questions, staff))
	router.Get("/:examId/enrollments/:enrollmentId", h.detail)
}

func (h *ResultHandler) rows(c *fiber.Ctx) error {
	examID, err := parseUintParam(c, "examId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	rows, err := h.service.ListRows(requestContext(c), examID)
	if err != nil {
		return respondError(c, h.logger, err, "failed to load result rows")
	}

	return utils.OK(c, rows, "result rows", fiber.Map{"count": len(rows)})
}

func (h *ResultHandler) summary(c *fiber.Ctx) error {
	examID, err := parseUintParam(c, "examId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	summary, err := h.service.Summary(requestContext(c), examID)
	if err != nil {
		return respondError(c, h.logger, err, "failed to load exam summary")
	}

	return utils.SendSuccess(c, "exam summary", summary)
}

func (h *ResultHandler) questions(c *fiber.Ctx) error {
	examID, err := parseUintParam(c, "examId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	stats, err := h.service.QuestionStats(requestContext(c), examID)
	if err != nil {
		return respondError(c, h.logger, err, "failed to load question statistics")
	}

	return utils.SendSuccess(c, "question statistics", stats)
}

func (h *ResultHandler) detail(c *fiber.Ctx) error {
	examID, enrollmentID, err := resultPath(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	if err := authorizeEnrollment(c, h.access, enrollmentID); err != nil {
		return respondError(c, h.logger, err, "failed to authorize result detail")
	}

	detail, err := h.service.Detail(requestContext(c), examID, enrollmentID)
	if err != nil {
		return respondError(c, h.logger, err, "failed to load result detail")
	}

	return utils.SendSuccess(c, "result detail", detail)
}
