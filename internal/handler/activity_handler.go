package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-results-api/internal/dto"
	"github.com/noah-isme/gema-results-api/internal/middleware"
	"github.com/noah-isme/gema-results-api/internal/service"
	"github.com/noah-isme/gema-results-api/internal/utils"
)

// ActivityHandler lists the audit trail of one result.
type ActivityHandler struct {
	service service.ActivityService
	logger  zerolog.Logger
}

// NewActivityHandler constructs the handler.
func NewActivityHandler(service service.ActivityService, logger zerolog.Logger) *ActivityHandler {
	return &ActivityHandler{
		service: service,
		logger:  logger.With().Str("component", "activity_handler").Logger(),
	}
}

// Register attaches audit routes to a group mounted at /exams.
func (h *ActivityHandler) Register(router fiber.Router) {
	router.Get("/:examId/enrollments/:enrollmentId/activity",
		middleware.WithAuth(h.list, middleware.AuthOptions{Role: middleware.AuthRoleStaff}))
}

func (h *ActivityHandler) list(c *fiber.Ctx) error {
	examID, enrollmentID, err := resultPath(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	page := c.QueryInt("page", 1)
	pageSize := c.QueryInt("page_size", 20)
	if page <= 0 || pageSize <= 0 || pageSize > 100 {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid pagination")
	}

	response, err := h.service.List(requestContext(c), dto.ActivityListRequest{
		Page:         page,
		PageSize:     pageSize,
		ExamID:       &examID,
		EnrollmentID: &enrollmentID,
		Action:       c.Query("action"),
	})
	if err != nil {
		return respondError(c, h.logger, err, "failed to list activity")
	}

	return utils.OK(c, response.Items, "activity", response.Pagination)
}
