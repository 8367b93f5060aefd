// Package apperr defines the typed errors surfaced by business logic and the
// single top-level handler that maps them onto HTTP responses. Handlers and
// services return these instead of writing responses inline so that every
// failure renders the same `{success:false,message}` JSON shape and no
// internal detail ever leaks to a client.
package apperr

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

// Error is a business-rule failure with a client-facing message and HTTP
// status. RetryAfter is only set for rate-limit errors and is rendered as a
// Retry-After header.
type Error struct {
	Status     int
	Message    string
	RetryAfter int // seconds; 0 when not applicable
}

func (e *Error) Error() string { return e.Message }

// New builds an Error with an arbitrary status.
func New(status int, msg string) *Error { return &Error{Status: status, Message: msg} }

// BadRequest is a 400 validation failure.
func BadRequest(msg string) *Error { return New(http.StatusBadRequest, msg) }

// Unauthorized is a 401 failure covering missing, invalid, expired and
// revoked tokens as well as bad credentials.
func Unauthorized(msg string) *Error { return New(http.StatusUnauthorized, msg) }

// NotFound is a 404 failure for absent or not-owned resources.
func NotFound(msg string) *Error { return New(http.StatusNotFound, msg) }

// TooManyRequests is a 429 failure carrying the seconds until the current
// rate-limit window resets.
func TooManyRequests(msg string, retryAfter int) *Error {
	return &Error{Status: http.StatusTooManyRequests, Message: msg, RetryAfter: retryAfter}
}

// Internal is a 500 failure with a generic message; the underlying cause is
// expected to have been logged at the point of failure.
func Internal(msg string) *Error { return New(http.StatusInternalServerError, msg) }

// Configuration is a 500 failure caused by missing or invalid configuration,
// such as an unset signing secret.
func Configuration(msg string) *Error { return New(http.StatusInternalServerError, msg) }

// HTTPErrorHandler is installed as Echo's central error handler. Typed
// errors render with their own status and message; echo.HTTPError keeps its
// status; anything else becomes an opaque 500.
func HTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	msg := "internal server error"

	retryAfter := 0
	var ae *Error
	var he *echo.HTTPError
	switch {
	case errors.As(err, &ae):
		status = ae.Status
		msg = ae.Message
		retryAfter = ae.RetryAfter
	case errors.As(err, &he):
		status = he.Code
		if s, ok := he.Message.(string); ok {
			msg = s
		}
	default:
		log.Printf("unhandled error: %v", err)
	}

	body := echo.Map{"success": false, "message": msg}
	if retryAfter > 0 {
		c.Response().Header().Set("Retry-After", strconv.Itoa(retryAfter))
		body["retry_after"] = retryAfter
	}
	_ = c.JSON(status, body)
}
