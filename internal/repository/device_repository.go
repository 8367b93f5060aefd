package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/devfleet/iot-device-api/internal/model"
)

// DeviceRepo persists devices in the `devices` table. Every query that
// touches a specific device filters by owner_id as well, so ownership is
// enforced at the SQL layer and an unowned id behaves exactly like a
// missing one.
type DeviceRepo struct{ DB *sql.DB }

func NewDeviceRepo(db *sql.DB) *DeviceRepo { return &DeviceRepo{DB: db} }

const deviceCols = "id,name,type,status,owner_id,last_active_at,created_at,updated_at"

func scanDevice(row interface{ Scan(...any) error }) (model.Device, error) {
	var d model.Device
	var lastActive sql.NullTime
	err := row.Scan(&d.ID, &d.Name, &d.Type, &d.Status, &d.OwnerID, &lastActive, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return model.Device{}, err
	}
	if lastActive.Valid {
		t := lastActive.Time
		d.LastActiveAt = &t
	}
	return d, nil
}

// Create inserts a device and returns it with its assigned ID.
func (r *DeviceRepo) Create(ctx context.Context, name, devType, status string, ownerID uint64) (model.Device, error) {
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO devices (name, type, status, owner_id) VALUES (?,?,?,?)",
		name, devType, status, ownerID)
	if err != nil {
		return model.Device{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Device{}, err
	}
	return r.GetOwned(ctx, uint64(id), ownerID)
}

// GetOwned fetches a device by id for a specific owner. Missing and
// unowned rows both return ErrNotFound.
func (r *DeviceRepo) GetOwned(ctx context.Context, id, ownerID uint64) (model.Device, error) {
	row := r.DB.QueryRowContext(ctx,
		"SELECT "+deviceCols+" FROM devices WHERE id=? AND owner_id=? LIMIT 1", id, ownerID)
	d, err := scanDevice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Device{}, ErrNotFound
	}
	return d, err
}

// ListByOwner returns the owner's devices, optionally filtered by type and
// status, newest first.
func (r *DeviceRepo) ListByOwner(ctx context.Context, ownerID uint64, devType, status string) ([]model.Device, error) {
	where := []string{"owner_id=?"}
	args := []any{ownerID}
	if devType != "" {
		where = append(where, "type=?")
		args = append(args, devType)
	}
	if status != "" {
		where = append(where, "status=?")
		args = append(args, status)
	}
	q := "SELECT " + deviceCols + " FROM devices WHERE " + strings.Join(where, " AND ") + " ORDER BY created_at DESC"
	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Device{}
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// IDsByOwner returns just the ids of the owner's devices, used by the
// usage aggregation engine.
func (r *DeviceRepo) IDsByOwner(ctx context.Context, ownerID uint64) ([]uint64, error) {
	rows, err := r.DB.QueryContext(ctx, "SELECT id FROM devices WHERE owner_id=?", ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []uint64{}
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Update applies the non-empty fields of upd to an owned device and returns
// the fresh row. ErrNotFound when the device is absent or owned by someone
// else.
func (r *DeviceRepo) Update(ctx context.Context, id, ownerID uint64, name, devType, status string) (model.Device, error) {
	set := []string{}
	args := []any{}
	if name != "" {
		set = append(set, "name=?")
		args = append(args, name)
	}
	if devType != "" {
		set = append(set, "type=?")
		args = append(args, devType)
	}
	if status != "" {
		set = append(set, "status=?")
		args = append(args, status)
	}
	if len(set) > 0 {
		args = append(args, id, ownerID)
		res, err := r.DB.ExecContext(ctx,
			"UPDATE devices SET "+strings.Join(set, ", ")+" WHERE id=? AND owner_id=?", args...)
		if err != nil {
			return model.Device{}, err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			// Distinguish "no such device" from "update was a no-op".
			if _, err := r.GetOwned(ctx, id, ownerID); err != nil {
				return model.Device{}, err
			}
		}
	}
	return r.GetOwned(ctx, id, ownerID)
}

// Delete removes an owned device. ErrNotFound when nothing was deleted.
func (r *DeviceRepo) Delete(ctx context.Context, id, ownerID uint64) error {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM devices WHERE id=? AND owner_id=?", id, ownerID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Heartbeat sets the device status and stamps last_active_at, returning the
// new timestamp.
func (r *DeviceRepo) Heartbeat(ctx context.Context, id, ownerID uint64, status string) (time.Time, error) {
	now := time.Now().UTC()
	res, err := r.DB.ExecContext(ctx,
		"UPDATE devices SET status=?, last_active_at=? WHERE id=? AND owner_id=?",
		status, now, id, ownerID)
	if err != nil {
		return time.Time{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := r.GetOwned(ctx, id, ownerID); err != nil {
			return time.Time{}, err
		}
	}
	return now, nil
}

// FindStale returns ids of active devices whose last heartbeat is older
// than cutoff (or that never sent one). Used by the deactivation sweep.
func (r *DeviceRepo) FindStale(ctx context.Context, cutoff time.Time) ([]uint64, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT id FROM devices WHERE status=? AND (last_active_at IS NULL OR last_active_at < ?)",
		model.DeviceStatusActive, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []uint64{}
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Deactivate flips a device to inactive regardless of owner; only the
// sweep calls this.
func (r *DeviceRepo) Deactivate(ctx context.Context, id uint64) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE devices SET status=? WHERE id=?", model.DeviceStatusInactive, id)
	return err
}
