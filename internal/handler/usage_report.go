package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/devfleet/iot-device-api/internal/apperr"
	"github.com/devfleet/iot-device-api/internal/service"
)

// UsageHandler serves aggregated usage reports across all of a user's
// devices.
type UsageHandler struct {
	Usage *service.UsageService
}

func NewUsageHandler(usage *service.UsageService) *UsageHandler {
	return &UsageHandler{Usage: usage}
}

const usageDateLayout = "2006-01-02"

// Report builds the bucketed usage report for the caller. Query params:
// startDate, endDate (inclusive, YYYY-MM-DD) and groupBy (day|hour,
// default day).
func (h *UsageHandler) Report(c echo.Context) error {
	id, err := identity(c)
	if err != nil {
		return err
	}

	startRaw := c.QueryParam("startDate")
	endRaw := c.QueryParam("endDate")
	if startRaw == "" || endRaw == "" {
		return apperr.BadRequest("startDate and endDate are required")
	}
	start, err := time.Parse(usageDateLayout, startRaw)
	if err != nil {
		return apperr.BadRequest("invalid startDate")
	}
	end, err := time.Parse(usageDateLayout, endRaw)
	if err != nil {
		return apperr.BadRequest("invalid endDate")
	}
	if end.Before(start) {
		return apperr.BadRequest("endDate precedes startDate")
	}
	// Cover the whole end day.
	end = end.Add(24*time.Hour - time.Nanosecond)

	groupBy := c.QueryParam("groupBy")
	if groupBy == "" {
		groupBy = service.GroupByDay
	}
	if groupBy != service.GroupByDay && groupBy != service.GroupByHour {
		return apperr.BadRequest("groupBy must be day or hour")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	report, err := h.Usage.GenerateReport(ctx, id.UserID, start, end, groupBy)
	if err != nil {
		return apperr.Internal("usage report failed")
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "report": report})
}
