package middleware

import (
	"orderbridge/internal/common"

	"github.com/labstack/echo/v4"
)

// RequireRole admits callers holding one of roles
func RequireRole(roles ...string) echo.MiddlewareFunc {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			actor, ok := common.ActorFromContext(c.Request().Context())
			if !ok {
				return common.SendUnauthorizedError(c)
			}
			if !allowed[actor.Role] {
				return common.SendForbiddenError(c)
			}
			return next(c)
		}
	}
}

// RequireOperator admits operators and administrators
func RequireOperator() echo.MiddlewareFunc {
	return RequireRole(common.RoleOperator, common.RoleAdmin)
}

// RequireAdmin admits administrators only
func RequireAdmin() echo.MiddlewareFunc {
	return RequireRole(common.RoleAdmin)
}
