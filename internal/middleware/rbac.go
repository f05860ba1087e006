package middleware

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/church-events-api/internal/authz"
	"github.com/noah-isme/church-events-api/internal/utils"
	"github.com/noah-isme/church-events-api/internal/workflow"
)

// RequireAction gates a route on the role policy for the given action.
func RequireAction(authorizer authz.Authorizer, action workflow.Action) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, _ := CurrentUser(c)
		if err := authorizer.Require(actor, action); err != nil {
			var wfErr *workflow.Error
			if !errors.As(err, &wfErr) {
				return utils.Fail(c, fiber.StatusInternalServerError, "internal error", nil)
			}
			switch wfErr.Kind {
			case workflow.KindUnauthenticated:
				return utils.FailWithCode(c, fiber.StatusUnauthorized, wfErr.Code(), wfErr.Error(), nil)
			case workflow.KindForbidden:
				return utils.FailWithCode(c, fiber.StatusForbidden, wfErr.Code(), "insufficient permissions", nil)
			default:
				return utils.FailWithCode(c, fiber.StatusInternalServerError, wfErr.Code(), "internal error", nil)
			}
		}
		return c.Next()
	}
}

// RequireKnownRole rejects identities whose role takes no part in the workflow.
func RequireKnownRole() fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, ok := CurrentUser(c)
		if !ok {
			return utils.FailWithCode(c, fiber.StatusUnauthorized, string(workflow.KindUnauthenticated), "authentication required", nil)
		}
		if !actor.Role.IsKnown() {
			return utils.FailWithCode(c, fiber.StatusForbidden, string(workflow.KindForbidden), "insufficient permissions", nil)
		}
		return c.Next()
	}
}
