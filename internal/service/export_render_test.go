package service

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devfleet/iot-device-api/internal/model"
)

func TestRenderCSVFieldOrder(t *testing.T) {
	logs := []model.DeviceLog{
		{ID: 12, DeviceID: 3, Event: model.EventUnitsConsumed, Value: 2.5, Timestamp: ts("2026-01-10 09:30")},
		{ID: 13, DeviceID: 3, Event: "temperature", Value: 21, Timestamp: ts("2026-01-10 10:00")},
	}

	body, err := RenderCSV(logs)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(body)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "id,device_id,event,value,timestamp", lines[0])
	assert.Equal(t, "12,3,units_consumed,2.5,2026-01-10T09:30:00Z", lines[1])
	assert.Equal(t, "13,3,temperature,21,2026-01-10T10:00:00Z", lines[2])
}

func TestRenderJSONShape(t *testing.T) {
	logs := []model.DeviceLog{
		{ID: 12, DeviceID: 3, Event: model.EventUnitsConsumed, Value: 2.5, Timestamp: ts("2026-01-10 09:30")},
	}

	body, err := RenderJSON(logs)
	require.NoError(t, err)

	var out []map[string]any
	require.NoError(t, json.Unmarshal(body, &out))
	require.Len(t, out, 1)
	assert.Equal(t, float64(12), out[0]["id"])
	assert.Equal(t, "units_consumed", out[0]["event"])
	assert.Equal(t, "2026-01-10T09:30:00Z", out[0]["timestamp"])
}

func TestRenderEmptyLogs(t *testing.T) {
	body, err := RenderJSON(nil)
	require.NoError(t, err)
	assert.JSONEq(t, "[]", string(body))

	body, err = RenderCSV(nil)
	require.NoError(t, err)
	// header row survives even with no data
	assert.Equal(t, "id,device_id,event,value,timestamp", strings.TrimSpace(string(body)))
}

func TestRenderUnknownFormat(t *testing.T) {
	_, err := Render(nil, "xml")
	assert.Error(t, err)
}

func TestExportFilename(t *testing.T) {
	name := ExportFilename(42, "2026-01-01", "2026-01-31", "csv")
	assert.Equal(t, "device_logs_42_2026-01-01_to_2026-01-31.csv", name)
}
