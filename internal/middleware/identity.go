package middleware

// identity.go defines the authenticated-context value produced by the auth
// middleware and consumed by handlers and the rate limiter. Claims are
// carried as one explicit value instead of loose context keys so handlers
// never re-parse the token.

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/devfleet/iot-device-api/internal/token"
)

// identityKey is the Echo context key under which Identity is stored.
const identityKey = "identity"

// Identity is the decoded access-token payload for the current request.
type Identity struct {
	UserID uint64
	Email  string
	Role   string
	JTI    string
}

// Claims converts the identity back into token claims, as needed by the
// logout flow's best-effort access revocation.
func (id Identity) Claims() token.Claims {
	return token.Claims{UserID: id.UserID, Email: id.Email, Role: id.Role, JTI: id.JTI}
}

// SetIdentity stores the authenticated identity on the request context.
func SetIdentity(c echo.Context, id Identity) { c.Set(identityKey, id) }

// IdentityFrom returns the authenticated identity, if any.
func IdentityFrom(c echo.Context) (Identity, bool) {
	id, ok := c.Get(identityKey).(Identity)
	return id, ok
}

// callerKey identifies the requester for rate limiting: the user id when
// authenticated, otherwise the caller's network address.
func callerKey(c echo.Context) string {
	if id, ok := IdentityFrom(c); ok && id.UserID != 0 {
		return strconv.FormatUint(id.UserID, 10)
	}
	if ip := c.RealIP(); ip != "" {
		return ip
	}
	return "unknown"
}
