package middleware // declare the middleware package; contains reusable HTTP middleware functions

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/devfleet/iot-device-api/internal/apperr"
	"github.com/devfleet/iot-device-api/internal/model"
	"github.com/devfleet/iot-device-api/internal/token"
)

// Verifier is the slice of the token service consumed by the middleware.
type Verifier interface {
	Verify(raw, kind string) (token.Claims, error)
	IsRevoked(ctx context.Context, jti, kind string) (bool, error)
}

// RequireAuth returns an Echo middleware that validates a Bearer access
// token and injects the decoded identity into the request context. Every
// request pays a blacklist lookup so a revoked token dies immediately, not
// at its natural expiry. Protected routes should be wrapped with this so
// handlers can read the caller via IdentityFrom.
func RequireAuth(tokens Verifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				return apperr.Unauthorized("no token provided")
			}
			raw := strings.TrimPrefix(auth, "Bearer ")

			cl, err := tokens.Verify(raw, model.TokenKindAccess)
			if err != nil {
				switch {
				case errors.Is(err, token.ErrExpired):
					return apperr.Unauthorized("token expired")
				case errors.Is(err, token.ErrConfig):
					return apperr.Configuration(err.Error())
				default:
					return apperr.Unauthorized("invalid token")
				}
			}

			ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
			defer cancel()
			revoked, err := tokens.IsRevoked(ctx, cl.JTI, model.TokenKindAccess)
			if err != nil {
				return apperr.Internal("authorization check failed")
			}
			if revoked {
				return apperr.Unauthorized("token revoked")
			}

			SetIdentity(c, Identity{UserID: cl.UserID, Email: cl.Email, Role: cl.Role, JTI: cl.JTI})
			return next(c)
		}
	}
}
