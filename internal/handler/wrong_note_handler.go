package handler

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-results-api/internal/dto"
	"github.com/noah-isme/gema-results-api/internal/middleware"
	"github.com/noah-isme/gema-results-api/internal/results"
	"github.com/noah-isme/gema-results-api/internal/service"
	"github.com/noah-isme/gema-results-api/internal/utils"
)

// jobStreamMessage is one frame of the PDF job status stream.
type jobStreamMessage struct {
	Job   *dto.PDFJobResponse `json:"job,omitempty"`
	Error string              `json:"error,omitempty"`
}

// WrongNoteHandler serves wrong notes and their PDF export jobs.
type WrongNoteHandler struct {
	notes         service.WrongNoteService
	jobs          service.PDFJobService
	access        service.EnrollmentAccess
	createLimiter fiber.Handler
	watchInterval time.Duration
	logger        zerolog.Logger
}

// NewWrongNoteHandler constructs the handler. createLimiter guards job creation and may be nil.
func NewWrongNoteHandler(notes service.WrongNoteService, jobs service.PDFJobService, access service.EnrollmentAccess, createLimiter fiber.Handler, watchInterval time.Duration, logger zerolog.Logger) *WrongNoteHandler {
	if createLimiter == nil {
		createLimiter = func(c *fiber.Ctx) error { return c.Next() }
	}
	return &WrongNoteHandler{
		notes:         notes,
		jobs:          jobs,
		access:        access,
		createLimiter: createLimiter,
		watchInterval: watchInterval,
		logger:        logger.With().Str("component", "wrong_note_handler").Logger(),
	}
}

// Register attaches wrong-note routes to a group mounted at /wrong-notes.
func (h *WrongNoteHandler) Register(router fiber.Router) {
	router.Get("/", h.list)
	router.Post("/pdf", h.createLimiter, h.createJob)
	router.Get("/pdf/:id", h.getJob)
	router.Get("/pdf/:id/ws", h.upgrade, websocket.New(h.watchJob))
}

func (h *WrongNoteHandler) upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	if _, err := h.ownedJob(c); err != nil {
		return respondError(c, h.logger, err, "failed to authorize pdf job stream")
	}
	c.Locals("request_ctx", requestContext(c))
	return c.Next()
}

func (h *WrongNoteHandler) list(c *fiber.Ctx) error {
	query, err := wrongNoteQuery(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	if query.EnrollmentID != 0 {
		if err := authorizeEnrollment(c, h.access, query.EnrollmentID); err != nil {
			return respondError(c, h.logger, err, "failed to authorize wrong notes")
		}
	}

	page, err := h.notes.List(requestContext(c), query)
	if err != nil {
		return respondError(c, h.logger, err, "failed to list wrong notes")
	}

	return c.Status(fiber.StatusOK).JSON(page)
}

func (h *WrongNoteHandler) createJob(c *fiber.Ctx) error {
	var payload dto.PDFJobCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	if payload.EnrollmentID != 0 {
		if err := authorizeEnrollment(c, h.access, payload.EnrollmentID); err != nil {
			return respondError(c, h.logger, err, "failed to authorize pdf job")
		}
	}

	created, err := h.jobs.Create(requestContext(c), payload, activityActorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err, "failed to create pdf job")
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusAccepted, "pdf job queued", created)
}

func (h *WrongNoteHandler) getJob(c *fiber.Ctx) error {
	job, err := h.ownedJob(c)
	if err != nil {
		return respondError(c, h.logger, err, "failed to load pdf job")
	}

	return utils.SendSuccess(c, "pdf job", job)
}

// ownedJob loads the job named by the path and checks the caller may see it.
func (h *WrongNoteHandler) ownedJob(c *fiber.Ctx) (dto.PDFJobResponse, error) {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return dto.PDFJobResponse{}, results.Invalid("%s", err.Error())
	}

	job, err := h.jobs.Get(requestContext(c), id)
	if err != nil {
		return dto.PDFJobResponse{}, err
	}
	if err := authorizeEnrollment(c, h.access, job.EnrollmentID); err != nil {
		return dto.PDFJobResponse{}, err
	}
	return job, nil
}

func (h *WrongNoteHandler) watchJob(conn *websocket.Conn) {
	defer conn.Close()

	id, err := strconv.ParseUint(conn.Params("id"), 10, 64)
	if err != nil || id == 0 {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseUnsupportedData, "invalid id"))
		return
	}

	base, _ := conn.Locals("request_ctx").(context.Context)
	if base == nil {
		base = context.Background()
	}
	ctx, cancel := context.WithCancel(base)
	defer cancel()

	// A read error means the peer went away.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	logger := h.logger.With().Uint64("job_id", id).Str("correlation_id", middleware.CorrelationIDFromContext(base)).Logger()
	_, err = h.jobs.Watch(ctx, uint(id), h.watchInterval, func(job dto.PDFJobResponse, err error) {
		frame := jobStreamMessage{}
		if err != nil {
			frame.Error = err.Error()
		} else {
			frame.Job = &job
		}
		if writeErr := conn.WriteJSON(frame); writeErr != nil {
			cancel()
		}
	})

	switch {
	case err == nil:
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "job finished"))
	case errors.Is(err, service.ErrPDFJobNotFound):
		_ = conn.WriteJSON(jobStreamMessage{Error: err.Error()})
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, err.Error()))
	case errors.Is(err, context.Canceled):
		logger.Debug().Msg("pdf job watcher disconnected")
	default:
		logger.Warn().Err(err).Msg("pdf job watch ended with error")
	}
}

func wrongNoteQuery(c *fiber.Ctx) (dto.WrongNoteQuery, error) {
	enrollmentID, err := parseOptionalUintQuery(c, "enrollment_id")
	if err != nil {
		return dto.WrongNoteQuery{}, err
	}
	query := dto.WrongNoteQuery{
		Offset: c.QueryInt("offset", 0),
		Limit:  c.QueryInt("limit", 0),
	}
	if enrollmentID != nil {
		query.EnrollmentID = *enrollmentID
	}

	if query.ExamID, err = parseOptionalUintQuery(c, "exam_id"); err != nil {
		return dto.WrongNoteQuery{}, err
	}
	if query.LectureID, err = parseOptionalUintQuery(c, "lecture_id"); err != nil {
		return dto.WrongNoteQuery{}, err
	}
	if raw := strings.TrimSpace(c.Query("from_session_order")); raw != "" {
		order, err := strconv.Atoi(raw)
		if err != nil {
			return dto.WrongNoteQuery{}, errors.New("invalid from_session_order")
		}
		query.FromSessionOrder = &order
	}
	return query, nil
}
