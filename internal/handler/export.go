package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/devfleet/iot-device-api/internal/apperr"
	"github.com/devfleet/iot-device-api/internal/model"
	"github.com/devfleet/iot-device-api/internal/repository"
	"github.com/devfleet/iot-device-api/internal/service"
)

// ExportHandler submits export jobs, serves status polls and the inline
// small-range export.
type ExportHandler struct {
	Exports *service.ExportService
}

func NewExportHandler(exports *service.ExportService) *ExportHandler {
	return &ExportHandler{Exports: exports}
}

type exportReq struct {
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
	Format    string `json:"format"`
}

// jobResp is the poll response. fileUrl and error are omitted until the
// job reaches the state that sets them.
type jobResp struct {
	JobID     string    `json:"jobId"`
	UserID    uint64    `json:"userId"`
	DeviceID  uint64    `json:"deviceId"`
	StartDate string    `json:"startDate"`
	EndDate   string    `json:"endDate"`
	Format    string    `json:"format"`
	Status    string    `json:"status"`
	FileURL   string    `json:"fileUrl,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func toJobResp(j model.ExportJob) jobResp {
	return jobResp{
		JobID:     j.JobID,
		UserID:    j.UserID,
		DeviceID:  j.DeviceID,
		StartDate: j.StartDate,
		EndDate:   j.EndDate,
		Format:    j.Format,
		Status:    j.Status,
		FileURL:   j.FileURL,
		Error:     j.Error,
		CreatedAt: j.CreatedAt,
		UpdatedAt: j.UpdatedAt,
	}
}

// Submit accepts a large export request and returns 202 with the job id.
// The response is the handle the client polls with; nothing about the
// export itself has run yet.
func (h *ExportHandler) Submit(c echo.Context) error {
	id, err := identity(c)
	if err != nil {
		return err
	}
	deviceID, err := pathID(c)
	if err != nil {
		return err
	}
	var req exportReq
	if err := c.Bind(&req); err != nil {
		return apperr.BadRequest("invalid body")
	}
	if req.Format == "" {
		req.Format = model.ExportFormatJSON
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	jobID, err := h.Exports.Submit(ctx, id.UserID, deviceID, req.StartDate, req.EndDate, strings.ToLower(req.Format))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.NotFound("Device not found")
		}
		if errors.Is(err, service.ErrInvalidExport) {
			return apperr.BadRequest(err.Error())
		}
		return apperr.Internal("export submission failed")
	}
	return c.JSON(http.StatusAccepted, echo.Map{
		"success": true,
		"jobId":   jobID,
		"status":  model.JobStatusAccepted,
	})
}

// Status serves the poll endpoint. A job owned by someone else is
// indistinguishable from a missing one.
func (h *ExportHandler) Status(c echo.Context) error {
	id, err := identity(c)
	if err != nil {
		return err
	}
	jobID := strings.TrimSpace(c.Param("jobId"))
	if jobID == "" {
		return apperr.BadRequest("invalid job id")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	job, err := h.Exports.Status(ctx, jobID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.NotFound("Export job not found")
		}
		return apperr.Internal("status lookup failed")
	}
	if job.UserID != id.UserID {
		return apperr.NotFound("Export job not found")
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "job": toJobResp(job)})
}

// Download renders a bounded date range inline and streams it back as an
// attachment, bypassing the job machinery.
func (h *ExportHandler) Download(c echo.Context) error {
	id, err := identity(c)
	if err != nil {
		return err
	}
	deviceID, err := pathID(c)
	if err != nil {
		return err
	}
	format := strings.ToLower(c.QueryParam("format"))
	if format == "" {
		format = model.ExportFormatJSON
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 30*time.Second)
	defer cancel()

	body, contentType, filename, err := h.Exports.ExportSync(ctx, id.UserID, deviceID, c.QueryParam("startDate"), c.QueryParam("endDate"), format)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.NotFound("Device not found")
		}
		if errors.Is(err, service.ErrInvalidExport) {
			return apperr.BadRequest(err.Error())
		}
		return apperr.Internal("export failed")
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", filename))
	return c.Blob(http.StatusOK, contentType, body)
}
