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
	"github.com/devfleet/iot-device-api/internal/middleware"
	"github.com/devfleet/iot-device-api/internal/model"
	"github.com/devfleet/iot-device-api/internal/repository"
	"github.com/devfleet/iot-device-api/internal/service"
)

// DeviceHandler exposes device CRUD and heartbeat endpoints.
type DeviceHandler struct {
	Devices *service.DeviceService
}

func NewDeviceHandler(devices *service.DeviceService) *DeviceHandler {
	return &DeviceHandler{Devices: devices}
}

type deviceReq struct {
	Name   string `json:"name"`
	Type   string `json:"type"`
	Status string `json:"status"`
}

type heartbeatReq struct {
	Status string `json:"status"`
}

type deviceResp struct {
	ID           uint64     `json:"id"`
	Name         string     `json:"name"`
	Type         string     `json:"type"`
	Status       string     `json:"status"`
	OwnerID      uint64     `json:"owner_id"`
	LastActiveAt *time.Time `json:"last_active_at"`
}

func toDeviceResp(d model.Device) deviceResp {
	return deviceResp{
		ID:           d.ID,
		Name:         d.Name,
		Type:         d.Type,
		Status:       d.Status,
		OwnerID:      d.OwnerID,
		LastActiveAt: d.LastActiveAt,
	}
}

// identity pulls the authenticated caller; routes behind RequireAuth
// always have one.
func identity(c echo.Context) (middleware.Identity, error) {
	id, ok := middleware.IdentityFrom(c)
	if !ok {
		return middleware.Identity{}, apperr.Unauthorized("unauthorized")
	}
	return id, nil
}

// pathID parses the :id route parameter. A leading "d" is tolerated so
// clients displaying prefixed ids can echo them back.
func pathID(c echo.Context) (uint64, error) {
	raw := strings.TrimPrefix(strings.TrimSpace(c.Param("id")), "d")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, apperr.BadRequest("invalid device id")
	}
	return id, nil
}

func mapDeviceErr(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.NotFound("Device not found")
	}
	return apperr.Internal("device operation failed")
}

// Register creates a device owned by the caller.
func (h *DeviceHandler) Register(c echo.Context) error {
	id, err := identity(c)
	if err != nil {
		return err
	}
	var req deviceReq
	if err := c.Bind(&req); err != nil {
		return apperr.BadRequest("invalid body")
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return apperr.BadRequest("name is required")
	}
	if !model.ValidDeviceType(req.Type) {
		return apperr.BadRequest("invalid device type")
	}
	if req.Status != "" && !model.ValidDeviceStatus(req.Status) {
		return apperr.BadRequest("invalid device status")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	d, err := h.Devices.Register(ctx, id.UserID, req.Name, req.Type, req.Status)
	if err != nil {
		return mapDeviceErr(err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"success": true, "device": toDeviceResp(d)})
}

// List returns the caller's devices with optional type/status filters.
func (h *DeviceHandler) List(c echo.Context) error {
	id, err := identity(c)
	if err != nil {
		return err
	}
	devType := c.QueryParam("type")
	status := c.QueryParam("status")
	if devType != "" && !model.ValidDeviceType(devType) {
		return apperr.BadRequest("invalid device type")
	}
	if status != "" && !model.ValidDeviceStatus(status) {
		return apperr.BadRequest("invalid device status")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	devices, err := h.Devices.List(ctx, id.UserID, devType, status)
	if err != nil {
		return mapDeviceErr(err)
	}
	out := make([]deviceResp, 0, len(devices))
	for _, d := range devices {
		out = append(out, toDeviceResp(d))
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "devices": out})
}

// Update patches an owned device.
func (h *DeviceHandler) Update(c echo.Context) error {
	id, err := identity(c)
	if err != nil {
		return err
	}
	deviceID, err := pathID(c)
	if err != nil {
		return err
	}
	var req deviceReq
	if err := c.Bind(&req); err != nil {
		return apperr.BadRequest("invalid body")
	}
	if req.Type != "" && !model.ValidDeviceType(req.Type) {
		return apperr.BadRequest("invalid device type")
	}
	if req.Status != "" && !model.ValidDeviceStatus(req.Status) {
		return apperr.BadRequest("invalid device status")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	d, err := h.Devices.Update(ctx, deviceID, id.UserID, strings.TrimSpace(req.Name), req.Type, req.Status)
	if err != nil {
		return mapDeviceErr(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "device": toDeviceResp(d)})
}

// Delete removes an owned device.
func (h *DeviceHandler) Delete(c echo.Context) error {
	id, err := identity(c)
	if err != nil {
		return err
	}
	deviceID, err := pathID(c)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Devices.Delete(ctx, deviceID, id.UserID); err != nil {
		return mapDeviceErr(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "message": "Device removed successfully"})
}

// Heartbeat records a device check-in.
func (h *DeviceHandler) Heartbeat(c echo.Context) error {
	id, err := identity(c)
	if err != nil {
		return err
	}
	deviceID, err := pathID(c)
	if err != nil {
		return err
	}
	var req heartbeatReq
	if err := c.Bind(&req); err != nil {
		return apperr.BadRequest("invalid body")
	}
	// a check-in implies the device is alive
	if req.Status == "" {
		req.Status = model.DeviceStatusActive
	}
	if !model.ValidDeviceStatus(req.Status) {
		return apperr.BadRequest("invalid device status")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	at, err := h.Devices.Heartbeat(ctx, deviceID, id.UserID, req.Status)
	if err != nil {
		return mapDeviceErr(err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"success":        true,
		"message":        "Device heartbeat recorded",
		"last_active_at": at.Format(time.RFC3339),
	})
}
