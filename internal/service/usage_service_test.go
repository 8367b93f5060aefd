package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devfleet/iot-device-api/internal/model"
)

type usageDevicesFake struct {
	ids []uint64
}

func (f *usageDevicesFake) IDsByOwner(ctx context.Context, ownerID uint64) ([]uint64, error) {
	return f.ids, nil
}

type usageLogsFake struct {
	logs []model.DeviceLog
}

func (f *usageLogsFake) FindUsage(ctx context.Context, deviceIDs []uint64, start, end time.Time) ([]model.DeviceLog, error) {
	return f.logs, nil
}

func ts(s string) time.Time {
	t, err := time.Parse("2006-01-02 15:04", s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestGenerateReportDaily(t *testing.T) {
	logs := &usageLogsFake{logs: []model.DeviceLog{
		{DeviceID: 1, Event: model.EventUnitsConsumed, Value: 2.5, Timestamp: ts("2026-03-02 09:00")},
		{DeviceID: 2, Event: model.EventUnitsConsumed, Value: 1.5, Timestamp: ts("2026-03-02 21:30")},
		{DeviceID: 1, Event: model.EventUnitsConsumed, Value: 4, Timestamp: ts("2026-03-05 12:00")},
		// out-of-order input must not affect label ordering
		{DeviceID: 1, Event: model.EventUnitsConsumed, Value: 3, Timestamp: ts("2026-03-01 08:00")},
	}}
	svc := NewUsageService(&usageDevicesFake{ids: []uint64{1, 2}}, logs)

	report, err := svc.GenerateReport(context.Background(), 7, ts("2026-03-01 00:00"), ts("2026-03-31 23:59"), GroupByDay)
	require.NoError(t, err)

	assert.Equal(t, []string{"2026-03-01", "2026-03-02", "2026-03-05"}, report.Labels)
	require.Len(t, report.Datasets, 1)
	assert.Equal(t, model.EventUnitsConsumed, report.Datasets[0].Label)
	assert.Equal(t, []float64{3, 4, 4}, report.Datasets[0].Data)
}

func TestGenerateReportHourly(t *testing.T) {
	logs := &usageLogsFake{logs: []model.DeviceLog{
		{DeviceID: 1, Value: 1, Timestamp: ts("2026-03-02 09:05")},
		{DeviceID: 2, Value: 2, Timestamp: ts("2026-03-02 09:40")},
		{DeviceID: 1, Value: 5, Timestamp: ts("2026-03-02 14:00")},
	}}
	svc := NewUsageService(&usageDevicesFake{ids: []uint64{1, 2}}, logs)

	report, err := svc.GenerateReport(context.Background(), 7, ts("2026-03-02 00:00"), ts("2026-03-02 23:59"), GroupByHour)
	require.NoError(t, err)

	assert.Equal(t, []string{"2026-03-02 09:00", "2026-03-02 14:00"}, report.Labels)
	assert.Equal(t, []float64{3, 5}, report.Datasets[0].Data)
}

func TestGenerateReportCrossDeviceSum(t *testing.T) {
	// two devices logging into the same bucket accumulate, not overwrite
	logs := &usageLogsFake{logs: []model.DeviceLog{
		{DeviceID: 1, Value: 1, Timestamp: ts("2026-03-02 09:00")},
		{DeviceID: 2, Value: 10, Timestamp: ts("2026-03-02 18:00")},
	}}
	svc := NewUsageService(&usageDevicesFake{ids: []uint64{1, 2}}, logs)

	report, err := svc.GenerateReport(context.Background(), 7, ts("2026-03-01 00:00"), ts("2026-03-03 00:00"), GroupByDay)
	require.NoError(t, err)
	assert.Equal(t, []string{"2026-03-02"}, report.Labels)
	assert.Equal(t, []float64{11}, report.Datasets[0].Data)
}

func TestGenerateReportNoDevices(t *testing.T) {
	svc := NewUsageService(&usageDevicesFake{}, &usageLogsFake{})

	report, err := svc.GenerateReport(context.Background(), 7, ts("2026-03-01 00:00"), ts("2026-03-31 00:00"), GroupByDay)
	require.NoError(t, err)

	// defined terminal shape: empty labels plus one empty dataset
	assert.NotNil(t, report.Labels)
	assert.Empty(t, report.Labels)
	require.Len(t, report.Datasets, 1)
	assert.Equal(t, model.EventUnitsConsumed, report.Datasets[0].Label)
	assert.Empty(t, report.Datasets[0].Data)
}

func TestGenerateReportNoLogsInWindow(t *testing.T) {
	svc := NewUsageService(&usageDevicesFake{ids: []uint64{1}}, &usageLogsFake{})

	report, err := svc.GenerateReport(context.Background(), 7, ts("2026-03-01 00:00"), ts("2026-03-31 00:00"), GroupByDay)
	require.NoError(t, err)
	assert.Empty(t, report.Labels)
	assert.Empty(t, report.Datasets[0].Data)
}
