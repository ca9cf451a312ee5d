package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-results-api/internal/dto"
	"github.com/noah-isme/gema-results-api/internal/middleware"
	"github.com/noah-isme/gema-results-api/internal/service"
	"github.com/noah-isme/gema-results-api/internal/utils"
)

type representativeBody struct {
	AttemptID uint `json:"attempt_id"`
}

// AttemptHandler lists attempts and switches the representative attempt.
type AttemptHandler struct {
	service service.AttemptService
	access  service.EnrollmentAccess
	logger  zerolog.Logger
}

// NewAttemptHandler constructs the handler.
func NewAttemptHandler(service service.AttemptService, access service.EnrollmentAccess, logger zerolog.Logger) *AttemptHandler {
	return &AttemptHandler{
		service: service,
		access:  access,
		logger:  logger.With().Str("component", "attempt_handler").Logger(),
	}
}

// Register attaches attempt routes to a group mounted at /exams.
func (h *AttemptHandler) Register(router fiber.Router) {
	router.Get("/:examId/enrollments/:enrollmentId/attempts", h.list)
	router.Get("/:examId/enrollments/:enrollmentId/attempts/:attemptId/items", h.items)
	router.Put("/:examId/enrollments/:enrollmentId/representative",
		middleware.WithAuth(h.setRepresentative, middleware.AuthOptions{Role: middleware.AuthRoleStaff}))
}

func (h *AttemptHandler) list(c *fiber.Ctx) error {
	examID, enrollmentID, err := resultPath(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	if err := authorizeEnrollment(c, h.access, enrollmentID); err != nil {
		return respondError(c, h.logger, err, "failed to authorize attempt list")
	}

	attempts, err := h.service.List(requestContext(c), examID, enrollmentID)
	if err != nil {
		return respondError(c, h.logger, err, "failed to list attempts")
	}

	return utils.OK(c, attempts, "attempts", fiber.Map{"count": len(attempts)})
}

func (h *AttemptHandler) items(c *fiber.Ctx) error {
	examID, enrollmentID, err := resultPath(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	attemptID, err := parseUintParam(c, "attemptId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	if err := authorizeEnrollment(c, h.access, enrollmentID); err != nil {
		return respondError(c, h.logger, err, "failed to authorize attempt items")
	}

	view, err := h.service.Items(requestContext(c), examID, enrollmentID, attemptID)
	if err != nil {
		return respondError(c, h.logger, err, "failed to load attempt items")
	}

	return utils.OK(c, view, "attempt items", fiber.Map{"count": len(view.Items)})
}

func (h *AttemptHandler) setRepresentative(c *fiber.Ctx) error {
	examID, enrollmentID, err := resultPath(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var body representativeBody
	if err := c.BodyParser(&body); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	attempt, err := h.service.SetRepresentative(requestContext(c), examID, dto.SetRepresentativeRequest{
		EnrollmentID: enrollmentID,
		AttemptID:    body.AttemptID,
	}, activityActorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err, "failed to change representative attempt")
	}

	return utils.SendSuccess(c, "representative attempt updated", attempt)
}
