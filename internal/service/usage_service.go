package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/devfleet/iot-device-api/internal/model"
)

// Usage-report granularities.
const (
	GroupByDay  = "day"
	GroupByHour = "hour"
)

// UsageReport is the chart-ready shape returned to clients: parallel labels
// and a single dataset of per-bucket totals.
type UsageReport struct {
	Labels   []string       `json:"labels"`
	Datasets []UsageDataset `json:"datasets"`
}

// UsageDataset pairs a series label with its data points.
type UsageDataset struct {
	Label string    `json:"label"`
	Data  []float64 `json:"data"`
}

// UsageDeviceStore resolves the device ids owned by a user.
type UsageDeviceStore interface {
	IDsByOwner(ctx context.Context, ownerID uint64) ([]uint64, error)
}

// UsageLogStore fetches the units_consumed logs inside a window.
type UsageLogStore interface {
	FindUsage(ctx context.Context, deviceIDs []uint64, start, end time.Time) ([]model.DeviceLog, error)
}

// UsageService aggregates device logs into calendar buckets across all of a
// user's devices.
type UsageService struct {
	devices UsageDeviceStore
	logs    UsageLogStore
}

func NewUsageService(devices UsageDeviceStore, logs UsageLogStore) *UsageService {
	return &UsageService{devices: devices, logs: logs}
}

// bucket is a calendar grouping key. Hour is -1 for daily grouping so that
// day and hour buckets never collide in the map.
type bucket struct {
	year, month, day, hour int
}

func bucketOf(t time.Time, groupBy string) bucket {
	t = t.UTC()
	b := bucket{year: t.Year(), month: int(t.Month()), day: t.Day(), hour: -1}
	if groupBy == GroupByHour {
		b.hour = t.Hour()
	}
	return b
}

func (b bucket) label() string {
	l := fmt.Sprintf("%04d-%02d-%02d", b.year, b.month, b.day)
	if b.hour >= 0 {
		l += fmt.Sprintf(" %02d:00", b.hour)
	}
	return l
}

func (b bucket) before(o bucket) bool {
	if b.year != o.year {
		return b.year < o.year
	}
	if b.month != o.month {
		return b.month < o.month
	}
	if b.day != o.day {
		return b.day < o.day
	}
	return b.hour < o.hour
}

// GenerateReport builds the usage report for one owner over [start, end]
// inclusive. A user with no devices gets the empty report (empty labels and
// a single empty "units_consumed" dataset), which is a defined terminal
// case, not an error. Only buckets that saw at least one log appear; empty
// buckets are never synthesized.
func (s *UsageService) GenerateReport(ctx context.Context, ownerID uint64, start, end time.Time, groupBy string) (UsageReport, error) {
	empty := UsageReport{
		Labels:   []string{},
		Datasets: []UsageDataset{{Label: model.EventUnitsConsumed, Data: []float64{}}},
	}

	deviceIDs, err := s.devices.IDsByOwner(ctx, ownerID)
	if err != nil {
		return UsageReport{}, err
	}
	if len(deviceIDs) == 0 {
		return empty, nil
	}

	logs, err := s.logs.FindUsage(ctx, deviceIDs, start, end)
	if err != nil {
		return UsageReport{}, err
	}

	totals := map[bucket]float64{}
	for _, l := range logs {
		totals[bucketOf(l.Timestamp, groupBy)] += l.Value
	}

	buckets := make([]bucket, 0, len(totals))
	for b := range totals {
		buckets = append(buckets, b)
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].before(buckets[j]) })

	report := empty
	for _, b := range buckets {
		report.Labels = append(report.Labels, b.label())
		report.Datasets[0].Data = append(report.Datasets[0].Data, totals[b])
	}
	return report, nil
}
