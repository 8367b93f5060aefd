// Package service holds the business logic between HTTP handlers and the
// repositories: ownership checks, cache read/invalidation protocols, the
// usage aggregation engine and the export job orchestration.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/devfleet/iot-device-api/internal/cache"
	"github.com/devfleet/iot-device-api/internal/config"
	"github.com/devfleet/iot-device-api/internal/model"
)

// DeviceStore is the slice of the device repository used by DeviceService.
type DeviceStore interface {
	Create(ctx context.Context, name, devType, status string, ownerID uint64) (model.Device, error)
	GetOwned(ctx context.Context, id, ownerID uint64) (model.Device, error)
	ListByOwner(ctx context.Context, ownerID uint64, devType, status string) ([]model.Device, error)
	Update(ctx context.Context, id, ownerID uint64, name, devType, status string) (model.Device, error)
	Delete(ctx context.Context, id, ownerID uint64) error
	Heartbeat(ctx context.Context, id, ownerID uint64, status string) (time.Time, error)
	FindStale(ctx context.Context, cutoff time.Time) ([]uint64, error)
	Deactivate(ctx context.Context, id uint64) error
}

// DeviceService implements device CRUD with the write-then-invalidate cache
// protocol: every mutation purges the owner's cached device and log
// listings after the write lands. The invalidation runs synchronously in
// the same request, so the staleness window is only the gap between write
// and purge.
type DeviceService struct {
	devices DeviceStore
	cache   cache.Store // nil disables caching
	cfg     config.CacheConfig
}

func NewDeviceService(devices DeviceStore, store cache.Store, cfg config.CacheConfig) *DeviceService {
	return &DeviceService{devices: devices, cache: store, cfg: cfg}
}

func (s *DeviceService) cacheEnabled() bool { return s.cfg.Enabled && s.cache != nil }

func (s *DeviceService) listKey(ownerID uint64, devType, status string) string {
	return fmt.Sprintf("%s:devices:userId=%d:type=%s:status=%s", s.cfg.Prefix, ownerID, devType, status)
}

// invalidateOwner purges every cached listing for one owner with a wildcard
// pattern. Pattern deletion trades a key scan for not having to track the
// exact keys written, and covers both device and log listings.
func (s *DeviceService) invalidateOwner(ctx context.Context, ownerID uint64) {
	if !s.cacheEnabled() {
		return
	}
	for _, pattern := range []string{
		fmt.Sprintf("%s:devices:userId=%d*", s.cfg.Prefix, ownerID),
		fmt.Sprintf("%s:logs:userId=%d*", s.cfg.Prefix, ownerID),
	} {
		keys, err := s.cache.Keys(ctx, pattern)
		if err != nil {
			log.Printf("cache: key scan %q failed: %v", pattern, err)
			continue
		}
		if err := s.cache.Del(ctx, keys...); err != nil {
			log.Printf("cache: purge %q failed: %v", pattern, err)
		}
	}
}

// Register creates a device for the owner. Status defaults to inactive.
func (s *DeviceService) Register(ctx context.Context, ownerID uint64, name, devType, status string) (model.Device, error) {
	if status == "" {
		status = model.DeviceStatusInactive
	}
	d, err := s.devices.Create(ctx, name, devType, status, ownerID)
	if err != nil {
		return model.Device{}, err
	}
	s.invalidateOwner(ctx, ownerID)
	return d, nil
}

// List returns the owner's devices, serving from the cache when possible.
func (s *DeviceService) List(ctx context.Context, ownerID uint64, devType, status string) ([]model.Device, error) {
	key := s.listKey(ownerID, devType, status)
	if s.cacheEnabled() {
		if raw, err := s.cache.Get(ctx, key); err == nil {
			var out []model.Device
			if err := json.Unmarshal([]byte(raw), &out); err == nil {
				return out, nil
			}
		}
	}

	out, err := s.devices.ListByOwner(ctx, ownerID, devType, status)
	if err != nil {
		return nil, err
	}

	if s.cacheEnabled() {
		if raw, err := json.Marshal(out); err == nil {
			if err := s.cache.Set(ctx, key, string(raw), s.cfg.TTL); err != nil {
				log.Printf("cache: set %q failed: %v", key, err)
			}
		}
	}
	return out, nil
}

// Update patches an owned device and purges the owner's cache.
func (s *DeviceService) Update(ctx context.Context, deviceID, ownerID uint64, name, devType, status string) (model.Device, error) {
	d, err := s.devices.Update(ctx, deviceID, ownerID, name, devType, status)
	if err != nil {
		return model.Device{}, err
	}
	s.invalidateOwner(ctx, ownerID)
	return d, nil
}

// Delete removes an owned device and purges the owner's cache.
func (s *DeviceService) Delete(ctx context.Context, deviceID, ownerID uint64) error {
	if err := s.devices.Delete(ctx, deviceID, ownerID); err != nil {
		return err
	}
	s.invalidateOwner(ctx, ownerID)
	return nil
}

// Heartbeat records a device check-in, stamping last_active_at and setting
// the reported status, and purges the owner's cache.
func (s *DeviceService) Heartbeat(ctx context.Context, deviceID, ownerID uint64, status string) (time.Time, error) {
	at, err := s.devices.Heartbeat(ctx, deviceID, ownerID, status)
	if err != nil {
		return time.Time{}, err
	}
	s.invalidateOwner(ctx, ownerID)
	return at, nil
}

// SweepInactive deactivates active devices whose last heartbeat is older
// than cutoff and returns how many were flipped. The scheduled job calls
// this daily with cutoff = now-24h.
func (s *DeviceService) SweepInactive(ctx context.Context, cutoff time.Time) (int, error) {
	ids, err := s.devices.FindStale(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, id := range ids {
		if err := s.devices.Deactivate(ctx, id); err != nil {
			log.Printf("sweep: deactivate device %d failed: %v", id, err)
			continue
		}
		n++
	}
	return n, nil
}
