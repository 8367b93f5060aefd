package middleware

import (
	"log"
	"time"

	"github.com/labstack/echo/v4"
)

// RequestLog logs one line per request: method, path, status and latency.
// A handler error is committed to the response before logging, so the
// logged status is the one the client actually received.
func RequestLog() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			log.Printf("%s %s -> %d (%s)",
				c.Request().Method, c.Request().URL.Path,
				c.Response().Status, time.Since(start))
			return err
		}
	}
}
