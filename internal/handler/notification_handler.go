package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/church-events-api/internal/middleware"
	"github.com/noah-isme/church-events-api/internal/service"
	"github.com/noah-isme/church-events-api/internal/utils"
	"github.com/noah-isme/church-events-api/internal/workflow"
)

// NotificationHandler serves the caller's notifications, including the role pool.
type NotificationHandler struct {
	service service.NotificationService
	logger  zerolog.Logger
}

// NewNotificationHandler constructs a handler instance.
func NewNotificationHandler(service service.NotificationService, logger zerolog.Logger) *NotificationHandler {
	return &NotificationHandler{
		service: service,
		logger:  logger.With().Str("component", "notification_handler").Logger(),
	}
}

// Register binds the notification routes.
func (h *NotificationHandler) Register(router fiber.Router) {
	router.Get("", h.list)
	router.Patch("/:id/read", h.markRead)
}

func (h *NotificationHandler) list(c *fiber.Ctx) error {
	limit, err := parseQueryInt(c, "limit")
	if err != nil || limit < 0 {
		return utils.FailWithCode(c, fiber.StatusBadRequest, string(workflow.KindValidation), "invalid limit", nil)
	}
	offset, err := parseQueryInt(c, "offset")
	if err != nil || offset < 0 {
		return utils.FailWithCode(c, fiber.StatusBadRequest, string(workflow.KindValidation), "invalid offset", nil)
	}
	if limit == 0 || limit > 100 {
		limit = 50
	}

	notifications, err := h.service.List(middleware.RequestContext(c), currentActor(c), limit, offset)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "notifications", notifications)
}

func (h *NotificationHandler) markRead(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return utils.FailWithCode(c, fiber.StatusBadRequest, string(workflow.KindValidation), "notification id required", nil)
	}

	notification, err := h.service.MarkRead(middleware.RequestContext(c), currentActor(c), id)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "notification updated", notification)
}
