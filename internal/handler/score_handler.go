package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-results-api/internal/dto"
	"github.com/noah-isme/gema-results-api/internal/middleware"
	"github.com/noah-isme/gema-results-api/internal/service"
	"github.com/noah-isme/gema-results-api/internal/utils"
)

// ScoreHandler exposes manual score correction and the edit lock.
type ScoreHandler struct {
	scores service.ScoreService
	locks  service.EditLockService
	access service.EnrollmentAccess
	logger zerolog.Logger
}

// NewScoreHandler constructs the handler.
func NewScoreHandler(scores service.ScoreService, locks service.EditLockService, access service.EnrollmentAccess, logger zerolog.Logger) *ScoreHandler {
	return &ScoreHandler{
		scores: scores,
		locks:  locks,
		access: access,
		logger: logger.With().Str("component", "score_handler").Logger(),
	}
}

// Register attaches score routes to a group mounted at /exams.
func (h *ScoreHandler) Register(router fiber.Router) {
	staff := middleware.AuthOptions{Role: middleware.AuthRoleStaff}

	router.Patch("/:examId/enrollments/:enrollmentId/items/:questionId", middleware.WithAuth(h.patchScore, staff))
	router.Get("/:examId/enrollments/:enrollmentId/edit-lock", h.getLock)
	router.Put("/:examId/enrollments/:enrollmentId/edit-lock", middleware.WithAuth(middleware.RequireRole("admin"), staff), h.setLock)
}

func (h *ScoreHandler) patchScore(c *fiber.Ctx) error {
	examID, enrollmentID, err := resultPath(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	questionID, err := parseUintParam(c, "questionId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.PatchItemScoreRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	item, err := h.scores.PatchItemScore(requestContext(c), examID, enrollmentID, questionID, payload, activityActorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err, "failed to update score")
	}

	return utils.SendSuccess(c, "score updated", item)
}

func (h *ScoreHandler) getLock(c *fiber.Ctx) error {
	examID, enrollmentID, err := resultPath(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	if err := authorizeEnrollment(c, h.access, enrollmentID); err != nil {
		return respondError(c, h.logger, err, "failed to authorize edit state")
	}

	state, err := h.locks.Get(requestContext(c), examID, enrollmentID)
	if err != nil {
		return respondError(c, h.logger, err, "failed to load edit state")
	}

	return utils.SendSuccess(c, "edit state", state)
}

func (h *ScoreHandler) setLock(c *fiber.Ctx) error {
	examID, enrollmentID, err := resultPath(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.EditLockRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	state, err := h.locks.SetLock(requestContext(c), examID, enrollmentID, payload, activityActorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err, "failed to update edit lock")
	}

	return utils.SendSuccess(c, "edit lock updated", state)
}
