package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/church-events-api/internal/dto"
	"github.com/noah-isme/church-events-api/internal/middleware"
	"github.com/noah-isme/church-events-api/internal/service"
	"github.com/noah-isme/church-events-api/internal/utils"
	"github.com/noah-isme/church-events-api/internal/workflow"
)

// CalendarHandler serves the public calendar of approved events.
type CalendarHandler struct {
	service service.CalendarService
	logger  zerolog.Logger
}

// NewCalendarHandler constructs the handler.
func NewCalendarHandler(service service.CalendarService, logger zerolog.Logger) *CalendarHandler {
	return &CalendarHandler{
		service: service,
		logger:  logger.With().Str("component", "calendar_handler").Logger(),
	}
}

// Register binds the calendar routes.
func (h *CalendarHandler) Register(router fiber.Router) {
	router.Get("", h.list)
}

func (h *CalendarHandler) list(c *fiber.Ctx) error {
	var query dto.CalendarQuery
	if err := c.QueryParser(&query); err != nil {
		return utils.FailWithCode(c, fiber.StatusBadRequest, string(workflow.KindValidation), "invalid query parameters", nil)
	}

	events, err := h.service.List(middleware.RequestContext(c), query)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	c.Set(fiber.HeaderCacheControl, "public, max-age=60")
	return utils.SendSuccess(c, "events retrieved", events)
}
