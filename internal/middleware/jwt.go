package middleware

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/noah-isme/church-events-api/internal/utils"
	"github.com/noah-isme/church-events-api/internal/workflow"
)

const actorLocalsKey = "actor"

// JWTProtected validates bearer tokens and binds the resolved actor to the request.
func JWTProtected(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authorization := c.Get("Authorization")
		if authorization == "" {
			return utils.FailWithCode(c, fiber.StatusUnauthorized, string(workflow.KindUnauthenticated), "authorization header missing", nil)
		}

		const bearer = "Bearer "
		if len(authorization) < len(bearer) || !strings.EqualFold(authorization[:len(bearer)], bearer) {
			return utils.FailWithCode(c, fiber.StatusUnauthorized, string(workflow.KindUnauthenticated), "invalid authorization header", nil)
		}

		tokenString := strings.TrimSpace(authorization[len(bearer):])
		if tokenString == "" {
			return utils.FailWithCode(c, fiber.StatusUnauthorized, string(workflow.KindUnauthenticated), "invalid token", nil)
		}

		token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method")
			}
			return []byte(secret), nil
		})
		if err != nil || !token.Valid {
			return utils.FailWithCode(c, fiber.StatusUnauthorized, string(workflow.KindUnauthenticated), "invalid token", nil)
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			return utils.FailWithCode(c, fiber.StatusUnauthorized, string(workflow.KindUnauthenticated), "invalid token claims", nil)
		}

		actor := actorFromClaims(claims)
		if !actor.Authenticated() {
			return utils.FailWithCode(c, fiber.StatusUnauthorized, string(workflow.KindUnauthenticated), "token carries no subject", nil)
		}
		actor.IPAddress = c.IP()

		SetCurrentUser(c, actor)
		return c.Next()
	}
}

// CurrentUser returns the actor resolved for the request, if any.
func CurrentUser(c *fiber.Ctx) (workflow.Actor, bool) {
	if c == nil {
		return workflow.Actor{}, false
	}
	actor, ok := c.Locals(actorLocalsKey).(workflow.Actor)
	if !ok || !actor.Authenticated() {
		return workflow.Actor{}, false
	}
	return actor, true
}

// SetCurrentUser stores the actor in the request locals read by CurrentUser.
func SetCurrentUser(c *fiber.Ctx, actor workflow.Actor) {
	c.Locals(actorLocalsKey, actor)
}

func actorFromClaims(claims jwt.MapClaims) workflow.Actor {
	return workflow.Actor{
		ID:           firstClaim(claims, "sub", "user_id", "id"),
		Name:         firstClaim(claims, "name"),
		Email:        firstClaim(claims, "email"),
		Role:         workflow.ParseRole(extractRole(claims)),
		DepartmentID: firstClaim(claims, "department_id", "departmentId"),
	}
}

func firstClaim(claims jwt.MapClaims, keys ...string) string {
	for _, key := range keys {
		if value, ok := claims[key]; ok {
			if normalized := claimString(value); normalized != "" {
				return normalized
			}
		}
	}
	return ""
}

func claimString(value interface{}) string {
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		if v < 0 {
			return ""
		}
		return strconv.FormatInt(int64(v), 10)
	case int:
		return strconv.Itoa(v)
	default:
		return ""
	}
}

func extractRole(claims jwt.MapClaims) string {
	for _, key := range []string{"role", "roles"} {
		value, ok := claims[key]
		if !ok {
			continue
		}
		switch v := value.(type) {
		case string:
			return v
		case []interface{}:
			for _, item := range v {
				if str, ok := item.(string); ok && strings.TrimSpace(str) != "" {
					return str
				}
			}
		}
	}
	return ""
}
