package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-results-api/internal/service"
	"github.com/noah-isme/gema-results-api/internal/utils"
)

// GradingEventHandler accepts grading pipeline events over HTTP.
type GradingEventHandler struct {
	service service.GradingEventService
	logger  zerolog.Logger
}

// NewGradingEventHandler constructs the handler.
func NewGradingEventHandler(service service.GradingEventService, logger zerolog.Logger) *GradingEventHandler {
	return &GradingEventHandler{
		service: service,
		logger:  logger.With().Str("component", "grading_event_handler").Logger(),
	}
}

// Register attaches the ingestion route.
func (h *GradingEventHandler) Register(router fiber.Router) {
	router.Post("/grading-events", h.ingest)
}

func (h *GradingEventHandler) ingest(c *fiber.Ctx) error {
	response, err := h.service.Ingest(requestContext(c), c.Body())
	if err != nil {
		return respondError(c, h.logger, err, "failed to apply grading event")
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusAccepted, "grading event applied", response)
}
