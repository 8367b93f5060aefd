package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/devfleet/iot-device-api/internal/model"
)

// DeviceLogRepo persists append-only device logs. Ownership of the device
// is checked by the service layer before any insert; this repository only
// deals in device ids.
type DeviceLogRepo struct{ DB *sql.DB }

func NewDeviceLogRepo(db *sql.DB) *DeviceLogRepo { return &DeviceLogRepo{DB: db} }

// Create inserts a log row stamped with the current time and returns it.
func (r *DeviceLogRepo) Create(ctx context.Context, deviceID uint64, event string, value float64) (model.DeviceLog, error) {
	now := time.Now().UTC()
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO device_logs (device_id, event, value, timestamp) VALUES (?,?,?,?)",
		deviceID, event, value, now)
	if err != nil {
		return model.DeviceLog{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.DeviceLog{}, err
	}
	return model.DeviceLog{ID: uint64(id), DeviceID: deviceID, Event: event, Value: value, Timestamp: now}, nil
}

// ListRecent returns the newest logs for a device, limited by limit.
func (r *DeviceLogRepo) ListRecent(ctx context.Context, deviceID uint64, limit int) ([]model.DeviceLog, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT id,device_id,event,value,timestamp FROM device_logs WHERE device_id=? ORDER BY timestamp DESC LIMIT ?",
		deviceID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectLogs(rows)
}

// SumUnitsSince totals units_consumed values for a device from `since`
// onward. Backs the trailing-range usage endpoint.
func (r *DeviceLogRepo) SumUnitsSince(ctx context.Context, deviceID uint64, since time.Time) (float64, error) {
	var total sql.NullFloat64
	err := r.DB.QueryRowContext(ctx,
		"SELECT SUM(value) FROM device_logs WHERE device_id=? AND event=? AND timestamp>=?",
		deviceID, model.EventUnitsConsumed, since).Scan(&total)
	if err != nil {
		return 0, err
	}
	return total.Float64, nil
}

// FindUsage returns units_consumed logs across a set of devices within an
// inclusive time window, ordered by timestamp. The usage aggregation
// engine buckets and sums the result.
func (r *DeviceLogRepo) FindUsage(ctx context.Context, deviceIDs []uint64, start, end time.Time) ([]model.DeviceLog, error) {
	if len(deviceIDs) == 0 {
		return []model.DeviceLog{}, nil
	}
	ph := make([]string, len(deviceIDs))
	args := make([]any, 0, len(deviceIDs)+3)
	for i, id := range deviceIDs {
		ph[i] = "?"
		args = append(args, id)
	}
	args = append(args, model.EventUnitsConsumed, start, end)

	rows, err := r.DB.QueryContext(ctx,
		"SELECT id,device_id,event,value,timestamp FROM device_logs WHERE device_id IN ("+strings.Join(ph, ",")+
			") AND event=? AND timestamp>=? AND timestamp<=? ORDER BY timestamp ASC",
		args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectLogs(rows)
}

// FindRange returns all logs of one device within an inclusive window,
// oldest first. Backs both the sync and the async export paths.
func (r *DeviceLogRepo) FindRange(ctx context.Context, deviceID uint64, start, end time.Time) ([]model.DeviceLog, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT id,device_id,event,value,timestamp FROM device_logs WHERE device_id=? AND timestamp>=? AND timestamp<=? ORDER BY timestamp ASC",
		deviceID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectLogs(rows)
}

func collectLogs(rows *sql.Rows) ([]model.DeviceLog, error) {
	out := []model.DeviceLog{}
	for rows.Next() {
		var l model.DeviceLog
		if err := rows.Scan(&l.ID, &l.DeviceID, &l.Event, &l.Value, &l.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
