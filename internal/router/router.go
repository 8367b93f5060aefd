package router

import (
	"github.com/labstack/echo/v4"

	"github.com/devfleet/iot-device-api/internal/cache"
	"github.com/devfleet/iot-device-api/internal/config"
	"github.com/devfleet/iot-device-api/internal/handler"
	"github.com/devfleet/iot-device-api/internal/middleware"
	"github.com/devfleet/iot-device-api/internal/model"
)

// Handlers bundles the handler set wired by main so route registration
// stays in one place.
type Handlers struct {
	Auth    *handler.AuthHandler
	Devices *handler.DeviceHandler
	Logs    *handler.LogHandler
	Usage   *handler.UsageHandler
	Exports *handler.ExportHandler
}

// RegisterRoutes registers routes that do not require authentication.
// Currently that is only the health check.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterAPI registers the versioned API. Unauthenticated auth
// operations live under /v1/auth and are rate limited per caller;
// everything else lives under /v1 behind bearer-token auth.
func RegisterAPI(e *echo.Echo, h Handlers, tokens middleware.Verifier, limiter cache.Store, rateCfg config.RateLimitConfig, exportDir string) {
	// Auth endpoints are the brute-force surface, so the fixed-window
	// limiter guards them even for anonymous callers (keyed by IP).
	g := e.Group("/v1/auth", middleware.RateLimit(rateCfg, limiter, middleware.RateLimitRule{
		Endpoint: "auth",
		Limit:    rateCfg.Limit,
		Window:   rateCfg.Window,
	}))
	g.POST("/signup", h.Auth.Signup)
	g.POST("/login", h.Auth.Login)
	g.POST("/refresh", h.Auth.Refresh)
	g.POST("/logout", h.Auth.Logout)

	auth := e.Group("/v1")
	auth.Use(middleware.RequireAuth(tokens))
	auth.Use(middleware.RequireRole(model.RoleUser))
	auth.Use(middleware.RateLimit(rateCfg, limiter, middleware.RateLimitRule{
		Endpoint: "api",
		Limit:    rateCfg.Limit,
		Window:   rateCfg.Window,
	}))

	auth.GET("/auth/profile", h.Auth.Profile)

	auth.POST("/devices", h.Devices.Register)
	auth.GET("/devices", h.Devices.List)
	auth.PATCH("/devices/:id", h.Devices.Update)
	auth.DELETE("/devices/:id", h.Devices.Delete)
	auth.POST("/devices/:id/heartbeat", h.Devices.Heartbeat)

	auth.POST("/devices/:id/logs", h.Logs.Create)
	auth.GET("/devices/:id/logs", h.Logs.List)
	auth.GET("/devices/:id/usage", h.Logs.Usage)

	auth.GET("/usage", h.Usage.Report)

	auth.POST("/devices/:id/export", h.Exports.Submit)
	auth.GET("/devices/:id/logs/export", h.Exports.Download)
	auth.GET("/exports/:jobId", h.Exports.Status)

	// Completed export files are served straight off disk; the fileUrl in
	// a completed job points here.
	e.Static("/exports", exportDir)
}
