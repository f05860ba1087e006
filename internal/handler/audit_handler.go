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

// AuditHandler lists audit entries across all requests.
type AuditHandler struct {
	service service.AuditService
	logger  zerolog.Logger
}

// NewAuditHandler constructs the handler.
func NewAuditHandler(service service.AuditService, logger zerolog.Logger) *AuditHandler {
	return &AuditHandler{
		service: service,
		logger:  logger.With().Str("component", "audit_handler").Logger(),
	}
}

// Register binds the audit routes.
func (h *AuditHandler) Register(router fiber.Router) {
	router.Get("", h.list)
}

func (h *AuditHandler) list(c *fiber.Ctx) error {
	var query dto.AuditLogQuery
	if err := c.QueryParser(&query); err != nil {
		return utils.FailWithCode(c, fiber.StatusBadRequest, string(workflow.KindValidation), "invalid query parameters", nil)
	}

	items, meta, err := h.service.List(middleware.RequestContext(c), currentActor(c), query)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.OK(c, items, "audit logs retrieved", meta)
}
