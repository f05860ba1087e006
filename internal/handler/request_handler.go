package handler

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/church-events-api/internal/dto"
	"github.com/noah-isme/church-events-api/internal/middleware"
	"github.com/noah-isme/church-events-api/internal/models"
	"github.com/noah-isme/church-events-api/internal/service"
	"github.com/noah-isme/church-events-api/internal/utils"
	"github.com/noah-isme/church-events-api/internal/workflow"
)

// RequestHandler exposes the event request workflow over HTTP.
type RequestHandler struct {
	engine  service.RequestWorkflowService
	queries service.RequestQueryService
	logger  zerolog.Logger
}

// NewRequestHandler constructs the handler.
func NewRequestHandler(engine service.RequestWorkflowService, queries service.RequestQueryService, logger zerolog.Logger) *RequestHandler {
	return &RequestHandler{
		engine:  engine,
		queries: queries,
		logger:  logger.With().Str("component", "request_handler").Logger(),
	}
}

// Register binds the request routes.
func (h *RequestHandler) Register(router fiber.Router) {
	router.Get("", h.list)
	router.Post("", h.create)
	router.Get("/:id", h.get)
	router.Put("/:id", h.update)
	router.Delete("/:id", h.delete)
	router.Get("/:id/audit", h.auditTrail)

	router.Post("/:id/submit", h.transition(workflow.ActionSubmit))
	router.Post("/:id/claim", h.transition(workflow.ActionClaim))
	router.Post("/:id/forward", h.transition(workflow.ActionForward))
	router.Post("/:id/approve", h.transition(workflow.ActionApprove))
	router.Post("/:id/return", h.transition(workflow.ActionReturn))
	router.Post("/:id/withdraw", h.transition(workflow.ActionWithdraw))
	router.Post("/:id/reopen", h.transition(workflow.ActionReopen))
}

func (h *RequestHandler) list(c *fiber.Ctx) error {
	page, err := parseQueryInt(c, "page")
	if err != nil {
		return utils.FailWithCode(c, fiber.StatusBadRequest, string(workflow.KindValidation), "invalid page", nil)
	}
	pageSize, err := parseQueryInt(c, "pageSize")
	if err != nil {
		return utils.FailWithCode(c, fiber.StatusBadRequest, string(workflow.KindValidation), "invalid page size", nil)
	}

	actor := currentActor(c)
	result, err := h.queries.List(middleware.RequestContext(c), actor, dto.RequestListQuery{
		Status:       c.Query("status"),
		DepartmentID: c.Query("departmentId"),
		Page:         page,
		PageSize:     pageSize,
	})
	if err != nil {
		return respondError(c, h.logger, err)
	}

	items := make([]dto.EventRequestResponse, 0, len(result.Items))
	for _, request := range result.Items {
		items = append(items, h.present(actor, request))
	}
	return utils.OK(c, items, "event requests retrieved", result.Meta)
}

func (h *RequestHandler) get(c *fiber.Ctx) error {
	actor := currentActor(c)
	request, err := h.queries.Get(middleware.RequestContext(c), actor, c.Params("id"))
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "event request retrieved", h.present(actor, request))
}

func (h *RequestHandler) create(c *fiber.Ctx) error {
	actor := currentActor(c)
	if err := h.engine.Authorize(actor, workflow.ActionCreate); err != nil {
		return respondError(c, h.logger, err)
	}

	payload, err := decodePayload(c)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	request, err := h.engine.Create(middleware.RequestContext(c), actor, payload)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.Respond(c, fiber.StatusCreated, h.present(actor, request), "event request created", nil)
}

func (h *RequestHandler) update(c *fiber.Ctx) error {
	actor := currentActor(c)
	if err := h.engine.Authorize(actor, workflow.ActionUpdate); err != nil {
		return respondError(c, h.logger, err)
	}

	payload, err := decodePayload(c)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	request, err := h.engine.Update(middleware.RequestContext(c), actor, c.Params("id"), payload)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "event request updated", h.present(actor, request))
}

func (h *RequestHandler) delete(c *fiber.Ctx) error {
	if err := h.engine.Delete(middleware.RequestContext(c), currentActor(c), c.Params("id")); err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "event request deleted", nil)
}

func (h *RequestHandler) auditTrail(c *fiber.Ctx) error {
	entries, err := h.queries.AuditTrail(middleware.RequestContext(c), currentActor(c), c.Params("id"))
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "audit trail retrieved", dto.NewAuditLogResponseSlice(entries))
}

func (h *RequestHandler) transition(action workflow.Action) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := middleware.RequestContext(c)
		actor := currentActor(c)
		id := c.Params("id")

		var (
			request models.EventRequest
			err     error
		)
		switch action {
		case workflow.ActionSubmit:
			request, err = h.engine.Submit(ctx, actor, id)
		case workflow.ActionClaim:
			request, err = h.engine.Claim(ctx, actor, id)
		case workflow.ActionForward:
			request, err = h.engine.Forward(ctx, actor, id)
		case workflow.ActionApprove:
			request, err = h.engine.Approve(ctx, actor, id)
		case workflow.ActionReturn:
			if err = h.engine.Authorize(actor, action); err != nil {
				break
			}
			var body dto.ReturnRequest
			if len(c.Body()) > 0 {
				if parseErr := c.BodyParser(&body); parseErr != nil {
					return utils.FailWithCode(c, fiber.StatusBadRequest, string(workflow.KindValidation), "invalid request body", nil)
				}
			}
			request, err = h.engine.Return(ctx, actor, id, body.Message)
		case workflow.ActionWithdraw:
			request, err = h.engine.Withdraw(ctx, actor, id)
		case workflow.ActionReopen:
			request, err = h.engine.Reopen(ctx, actor, id)
		default:
			return utils.FailWithCode(c, fiber.StatusNotFound, string(workflow.KindNotFound), "unknown action", nil)
		}
		if err != nil {
			return respondError(c, h.logger, err)
		}

		return utils.SendSuccess(c, "event request "+string(request.Status), h.present(actor, request))
	}
}

func (h *RequestHandler) present(actor workflow.Actor, request models.EventRequest) dto.EventRequestResponse {
	return dto.NewEventRequestResponse(request, h.engine.AllowedActions(actor, request))
}

// decodePayload rejects bodies that try to set server-controlled fields before binding the editable ones.
func decodePayload(c *fiber.Ctx) (dto.EventRequestPayload, error) {
	var raw map[string]interface{}
	if err := c.BodyParser(&raw); err != nil {
		return dto.EventRequestPayload{}, workflow.Validation("invalid request body", nil)
	}

	protected := map[string]string{}
	for key := range raw {
		for _, field := range dto.ProtectedFields {
			if strings.EqualFold(key, field) {
				protected[key] = "cannot be set by clients"
			}
		}
	}
	if len(protected) > 0 {
		return dto.EventRequestPayload{}, workflow.Validation("request body contains protected fields", protected)
	}

	var payload dto.EventRequestPayload
	if err := c.BodyParser(&payload); err != nil {
		return dto.EventRequestPayload{}, workflow.Validation("invalid request body", nil)
	}
	return payload, nil
}
