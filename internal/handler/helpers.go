package handler

import (
	"errors"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/church-events-api/internal/middleware"
	"github.com/noah-isme/church-events-api/internal/utils"
	"github.com/noah-isme/church-events-api/internal/workflow"
)

func parseQueryInt(c *fiber.Ctx, key string) (int, error) {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return 0, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, err
	}
	return parsed, nil
}

// currentActor returns the resolved caller, or an empty actor the services reject as unauthenticated.
func currentActor(c *fiber.Ctx) workflow.Actor {
	actor, _ := middleware.CurrentUser(c)
	return actor
}

func requestLogger(base zerolog.Logger, c *fiber.Ctx) *zerolog.Logger {
	logger := base
	if c != nil {
		if correlation := middleware.GetCorrelationID(c); correlation != "" {
			logger = base.With().Str("correlation_id", correlation).Logger()
		}
	}
	return &logger
}

func statusForKind(kind workflow.Kind) int {
	switch kind {
	case workflow.KindUnauthenticated:
		return fiber.StatusUnauthorized
	case workflow.KindForbidden:
		return fiber.StatusForbidden
	case workflow.KindNotFound:
		return fiber.StatusNotFound
	case workflow.KindInvalidState, workflow.KindConflict, workflow.KindValidation:
		return fiber.StatusBadRequest
	default:
		return fiber.StatusInternalServerError
	}
}

// respondError translates a service error into the JSON envelope. Internal causes are logged, never returned.
func respondError(c *fiber.Ctx, logger zerolog.Logger, err error) error {
	var wfErr *workflow.Error
	if !errors.As(err, &wfErr) {
		wfErr = workflow.Internal(err)
	}

	status := statusForKind(wfErr.Kind)
	if status == fiber.StatusInternalServerError {
		requestLogger(logger, c).Error().
			Err(err).
			Str("method", c.Method()).
			Str("path", c.Path()).
			Msg("request failed")
		return utils.FailWithCode(c, status, string(workflow.KindInternal), "internal server error", nil)
	}

	var details interface{}
	if len(wfErr.Fields) > 0 {
		details = wfErr.Fields
	}
	return utils.FailWithCode(c, status, wfErr.Code(), wfErr.Error(), details)
}
