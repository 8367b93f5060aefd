package handler

import (
	"context"  // provides context with cancellation for DB calls
	"errors"   // sentinel error matching
	"net/http" // HTTP status codes and primitives
	"strings"  // string manipulation utilities
	"time"     // timeouts for DB calls

	"github.com/labstack/echo/v4" // Echo framework for HTTP routing

	"github.com/devfleet/iot-device-api/internal/apperr"
	"github.com/devfleet/iot-device-api/internal/middleware"
	"github.com/devfleet/iot-device-api/internal/model"
	"github.com/devfleet/iot-device-api/internal/repository"
	"github.com/devfleet/iot-device-api/internal/token"
	"github.com/devfleet/iot-device-api/internal/utils"
)

// UserStore is the user persistence consumed by auth endpoints.
type UserStore interface {
	Create(ctx context.Context, name, email, password string, cost int) (uint64, error)
	GetByEmail(ctx context.Context, email string) (model.User, error)
	GetByID(ctx context.Context, id uint64) (model.User, error)
}

// TokenService is the slice of the token lifecycle used by auth endpoints.
type TokenService interface {
	IssuePair(u model.User) (token.Pair, error)
	Rotate(ctx context.Context, oldRefresh string) (token.Pair, error)
	Logout(ctx context.Context, refreshToken string, access *token.Claims) error
}

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
	Users      UserStore
	Tokens     TokenService
	BcryptCost int
}

func NewAuthHandler(users UserStore, tokens TokenService, bcryptCost int) *AuthHandler {
	return &AuthHandler{Users: users, Tokens: tokens, BcryptCost: bcryptCost}
}

// refreshCookie is the session cookie carrying the refresh token for
// browser clients; API clients may send it in the body instead.
const refreshCookie = "refresh_token"

// ----- DTOs -----

type signupReq struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}
type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenPart struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}
type userPart struct {
	ID    uint64 `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}
type authResp struct {
	Success bool      `json:"success"`
	User    userPart  `json:"user"`
	Access  tokenPart `json:"access"`
	Refresh tokenPart `json:"refresh"`
}

func pairResp(p token.Pair) authResp {
	return authResp{
		Success: true,
		User:    userPart{ID: p.User.ID, Name: p.User.Name, Email: p.User.Email, Role: p.User.Role},
		Access:  tokenPart{Token: p.AccessToken, Expires: p.AccessExp},
		Refresh: tokenPart{Token: p.RefreshToken, Expires: p.RefreshExp},
	}
}

// Signup creates a user. Every account gets the fixed "user" role; the
// password hash stays server-side.
func (h *AuthHandler) Signup(c echo.Context) error {
	var req signupReq
	if err := c.Bind(&req); err != nil {
		return apperr.BadRequest("invalid body")
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || req.Email == "" || req.Password == "" {
		return apperr.BadRequest("name, email and password are required")
	}
	if !strings.Contains(req.Email, "@") {
		return apperr.BadRequest("valid email is required")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if _, err := h.Users.Create(ctx, req.Name, req.Email, req.Password, h.BcryptCost); err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return apperr.BadRequest("Email already exists")
		}
		return apperr.Internal("create user failed")
	}

	return c.JSON(http.StatusCreated, echo.Map{"success": true, "message": "User registered successfully"})
}

// Login verifies credentials and returns a fresh token pair. A wrong
// password and an unknown email produce the same response so the endpoint
// never confirms whether an address is registered.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return apperr.BadRequest("invalid body")
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || req.Password == "" {
		return apperr.BadRequest("email and password are required")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := h.Users.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.Unauthorized("Invalid email or password")
		}
		return apperr.Internal("query failed")
	}
	if !utils.VerifyPassword(u.PasswordHash, req.Password) {
		return apperr.Unauthorized("Invalid email or password")
	}

	pair, err := h.Tokens.IssuePair(u)
	if err != nil {
		return apperr.Internal("issue tokens failed")
	}

	h.setRefreshCookie(c, pair)
	return c.JSON(http.StatusOK, pairResp(pair))
}

// Refresh rotates a refresh token: the presented token is burned and a
// brand-new pair is returned.
func (h *AuthHandler) Refresh(c echo.Context) error {
	raw := h.refreshTokenFrom(c)
	if raw == "" {
		return apperr.BadRequest("refresh_token required")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	pair, err := h.Tokens.Rotate(ctx, raw)
	if err != nil {
		if errors.Is(err, token.ErrConfig) {
			return apperr.Configuration(err.Error())
		}
		if errors.Is(err, token.ErrUnauthorized) {
			return apperr.Unauthorized("invalid refresh token")
		}
		return apperr.Internal("refresh failed")
	}

	h.setRefreshCookie(c, pair)
	return c.JSON(http.StatusOK, pairResp(pair))
}

// Logout revokes the presented refresh token and, best-effort, the current
// access token. An absent or unverifiable refresh token still logs out
// successfully: the client wants the session gone either way, and the
// response must not leak verification details.
func (h *AuthHandler) Logout(c echo.Context) error {
	raw := h.refreshTokenFrom(c)

	var access *token.Claims
	if id, ok := middleware.IdentityFrom(c); ok {
		cl := id.Claims()
		access = &cl
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Tokens.Logout(ctx, raw, access); err != nil {
		return apperr.Internal("logout failed")
	}

	h.clearRefreshCookie(c)
	return c.JSON(http.StatusOK, echo.Map{"success": true, "message": "Logged out successfully"})
}

// Profile returns the authenticated user's record.
func (h *AuthHandler) Profile(c echo.Context) error {
	id, ok := middleware.IdentityFrom(c)
	if !ok {
		return apperr.Unauthorized("unauthorized")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := h.Users.GetByID(ctx, id.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.NotFound("user not found")
		}
		return apperr.Internal("query failed")
	}
	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"user":    userPart{ID: u.ID, Name: u.Name, Email: u.Email, Role: u.Role},
	})
}

// refreshTokenFrom reads the refresh token from the body, falling back to
// the session cookie.
func (h *AuthHandler) refreshTokenFrom(c echo.Context) string {
	var req refreshReq
	_ = c.Bind(&req)
	if raw := strings.TrimSpace(req.RefreshToken); raw != "" {
		return raw
	}
	if ck, err := c.Cookie(refreshCookie); err == nil {
		return ck.Value
	}
	return ""
}

func (h *AuthHandler) setRefreshCookie(c echo.Context, pair token.Pair) {
	c.SetCookie(&http.Cookie{
		Name:     refreshCookie,
		Value:    pair.RefreshToken,
		Expires:  pair.RefreshExp,
		Path:     "/",
		HttpOnly: true,
	})
}

func (h *AuthHandler) clearRefreshCookie(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     refreshCookie,
		Value:    "",
		MaxAge:   -1,
		Path:     "/",
		HttpOnly: true,
	})
}
