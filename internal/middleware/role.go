package middleware // middleware provides shared request processing for handlers

import (
	"github.com/labstack/echo/v4"

	"github.com/devfleet/iot-device-api/internal/apperr"
)

// RequireRole enforces that the authenticated identity carries one of the
// given roles. Today every account is created with the "user" role, so the
// check mostly guards against tokens minted before a future role change.
// It assumes RequireAuth has already populated the identity.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id, ok := IdentityFrom(c)
			if !ok || !allowed[id.Role] {
				return apperr.Unauthorized("forbidden")
			}
			return next(c)
		}
	}
}
