package handler

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-results-api/internal/middleware"
	"github.com/noah-isme/gema-results-api/internal/results"
	"github.com/noah-isme/gema-results-api/internal/service"
	"github.com/noah-isme/gema-results-api/internal/utils"
)

func parseUintParam(c *fiber.Ctx, name string) (uint, error) {
	parsed, err := strconv.ParseUint(strings.TrimSpace(c.Params(name)), 10, 64)
	if err != nil || parsed == 0 {
		return 0, errors.New("invalid " + name)
	}
	return uint(parsed), nil
}

func parseOptionalUintQuery(c *fiber.Ctx, key string) (*uint, error) {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return nil, nil
	}
	parsed, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return nil, errors.New("invalid " + key)
	}
	id := uint(parsed)
	return &id, nil
}

// resultPath reads the exam and enrollment identifiers shared by per-result routes.
func resultPath(c *fiber.Ctx) (uint, uint, error) {
	examID, err := parseUintParam(c, "examId")
	if err != nil {
		return 0, 0, err
	}
	enrollmentID, err := parseUintParam(c, "enrollmentId")
	if err != nil {
		return 0, 0, err
	}
	return examID, enrollmentID, nil
}

func activityActorFromContext(c *fiber.Ctx) service.ActivityActor {
	identity, _ := middleware.IdentityFrom(c)
	return service.ActivityActor{ID: identity.UserID, Role: identity.Role}
}

// authorizeEnrollment lets staff through and holds students to their own enrollment.
func authorizeEnrollment(c *fiber.Ctx, access service.EnrollmentAccess, enrollmentID uint) error {
	identity, _ := middleware.IdentityFrom(c)
	if middleware.IsStaff(identity.Role) {
		return nil
	}
	if access == nil {
		return service.ErrResultForbidden
	}
	return access.AuthorizeStudent(requestContext(c), identity.UserID, enrollmentID)
}

func requestContext(c *fiber.Ctx) context.Context {
	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}
	return middleware.ContextWithCorrelation(ctx, middleware.GetCorrelationID(c))
}

func requestLogger(base zerolog.Logger, c *fiber.Ctx) *zerolog.Logger {
	logger := base
	if correlation := middleware.GetCorrelationID(c); correlation != "" {
		logger = base.With().Str("correlation_id", correlation).Logger()
	}
	return &logger
}

func isValidationError(err error) bool {
	var validationErrors validator.ValidationErrors
	return errors.As(err, &validationErrors) || errors.Is(err, results.ErrValidation)
}

// respondError maps service errors onto HTTP statuses. Rejection messages are returned
// verbatim so that clients can show them as is.
func respondError(c *fiber.Ctx, logger zerolog.Logger, err error, fallback string) error {
	switch {
	case isValidationError(err):
		return utils.Fail(c, fiber.StatusBadRequest, err.Error(), nil)
	case errors.Is(err, service.ErrExamNotFound),
		errors.Is(err, service.ErrResultNotFound),
		errors.Is(err, service.ErrEnrollmentNotFound),
		errors.Is(err, service.ErrItemNotFound),
		errors.Is(err, service.ErrNoRepresentative),
		errors.Is(err, service.ErrPDFJobNotFound),
		errors.Is(err, results.ErrAttemptNotInEnrollment):
		return utils.Fail(c, fiber.StatusNotFound, err.Error(), nil)
	case errors.Is(err, results.ErrAttemptGrading),
		errors.Is(err, results.ErrAttemptStatusUnknown),
		errors.Is(err, service.ErrEditLocked),
		errors.Is(err, service.ErrItemNotEditable):
		return utils.Fail(c, fiber.StatusConflict, err.Error(), nil)
	case errors.Is(err, service.ErrResultForbidden):
		return utils.Fail(c, fiber.StatusForbidden, err.Error(), nil)
	case errors.Is(err, service.ErrQueueFull):
		return utils.Fail(c, fiber.StatusServiceUnavailable, err.Error(), nil)
	default:
		requestLogger(logger, c).Error().Err(err).Str("path", c.Path()).Msg(fallback)
		return utils.Fail(c, fiber.StatusInternalServerError, fallback, nil)
	}
}
