package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/devfleet/iot-device-api/internal/apperr"
	"github.com/devfleet/iot-device-api/internal/model"
	"github.com/devfleet/iot-device-api/internal/repository"
	"github.com/devfleet/iot-device-api/internal/service"
)

// LogHandler exposes device-log creation, listing and trailing usage.
type LogHandler struct {
	Logs *service.LogService
}

func NewLogHandler(logs *service.LogService) *LogHandler {
	return &LogHandler{Logs: logs}
}

type createLogReq struct {
	Event string   `json:"event"`
	Value *float64 `json:"value"`
}

type logResp struct {
	ID        uint64    `json:"id"`
	DeviceID  uint64    `json:"device_id"`
	Event     string    `json:"event"`
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

func toLogResp(l model.DeviceLog) logResp {
	return logResp{ID: l.ID, DeviceID: l.DeviceID, Event: l.Event, Value: l.Value, Timestamp: l.Timestamp}
}

// Create appends a log entry to an owned device.
func (h *LogHandler) Create(c echo.Context) error {
	id, err := identity(c)
	if err != nil {
		return err
	}
	deviceID, err := pathID(c)
	if err != nil {
		return err
	}
	var req createLogReq
	if err := c.Bind(&req); err != nil {
		return apperr.BadRequest("invalid body")
	}
	req.Event = strings.TrimSpace(req.Event)
	if req.Event == "" || req.Value == nil {
		return apperr.BadRequest("event and value are required")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	l, err := h.Logs.Create(ctx, deviceID, id.UserID, req.Event, *req.Value)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.NotFound("Device not found")
		}
		return apperr.Internal("create log failed")
	}
	return c.JSON(http.StatusCreated, echo.Map{"success": true, "log": toLogResp(l)})
}

// List returns the newest logs for an owned device; ?limit defaults to 10.
func (h *LogHandler) List(c echo.Context) error {
	id, err := identity(c)
	if err != nil {
		return err
	}
	deviceID, err := pathID(c)
	if err != nil {
		return err
	}
	limit := 10
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return apperr.BadRequest("invalid limit")
		}
		limit = n
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	logs, err := h.Logs.Recent(ctx, deviceID, id.UserID, limit)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.NotFound("Device not found")
		}
		return apperr.Internal("list logs failed")
	}
	out := make([]logResp, 0, len(logs))
	for _, l := range logs {
		out = append(out, toLogResp(l))
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "logs": out})
}

// Usage totals units_consumed for an owned device over a trailing range
// such as ?range=24h.
func (h *LogHandler) Usage(c echo.Context) error {
	id, err := identity(c)
	if err != nil {
		return err
	}
	deviceID, err := pathID(c)
	if err != nil {
		return err
	}
	trailing := c.QueryParam("range")
	if trailing == "" {
		trailing = "24h"
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	total, err := h.Logs.UsageSince(ctx, deviceID, id.UserID, trailing)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.NotFound("Device not found")
		}
		return apperr.Internal("usage query failed")
	}
	return c.JSON(http.StatusOK, echo.Map{
		"success":     true,
		"device_id":   deviceID,
		"range":       trailing,
		"total_units": total,
	})
}
