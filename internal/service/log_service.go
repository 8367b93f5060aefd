package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/devfleet/iot-device-api/internal/cache"
	"github.com/devfleet/iot-device-api/internal/config"
	"github.com/devfleet/iot-device-api/internal/model"
)

// LogStore is the slice of the device-log repository used by LogService.
type LogStore interface {
	Create(ctx context.Context, deviceID uint64, event string, value float64) (model.DeviceLog, error)
	ListRecent(ctx context.Context, deviceID uint64, limit int) ([]model.DeviceLog, error)
	SumUnitsSince(ctx context.Context, deviceID uint64, since time.Time) (float64, error)
}

// DeviceOwnershipStore resolves whether a device belongs to a user. Log
// writes go through this check first, which is what guarantees every log
// references an existing, owned device at creation time.
type DeviceOwnershipStore interface {
	GetOwned(ctx context.Context, id, ownerID uint64) (model.Device, error)
}

// LogService appends and reads device logs on behalf of an owner.
type LogService struct {
	devices DeviceOwnershipStore
	logs    LogStore
	cache   cache.Store
	cfg     config.CacheConfig
}

func NewLogService(devices DeviceOwnershipStore, logs LogStore, store cache.Store, cfg config.CacheConfig) *LogService {
	return &LogService{devices: devices, logs: logs, cache: store, cfg: cfg}
}

func (s *LogService) cacheEnabled() bool { return s.cfg.Enabled && s.cache != nil }

// Create appends a log entry after verifying the device belongs to the
// caller, then purges the owner's cached log listings.
func (s *LogService) Create(ctx context.Context, deviceID, ownerID uint64, event string, value float64) (model.DeviceLog, error) {
	if _, err := s.devices.GetOwned(ctx, deviceID, ownerID); err != nil {
		return model.DeviceLog{}, err
	}
	l, err := s.logs.Create(ctx, deviceID, event, value)
	if err != nil {
		return model.DeviceLog{}, err
	}
	if s.cacheEnabled() {
		pattern := fmt.Sprintf("%s:logs:userId=%d*", s.cfg.Prefix, ownerID)
		if keys, err := s.cache.Keys(ctx, pattern); err == nil {
			if err := s.cache.Del(ctx, keys...); err != nil {
				log.Printf("cache: purge %q failed: %v", pattern, err)
			}
		}
	}
	return l, nil
}

// Recent returns the newest logs of an owned device, cached per
// (owner, device, limit).
func (s *LogService) Recent(ctx context.Context, deviceID, ownerID uint64, limit int) ([]model.DeviceLog, error) {
	if limit <= 0 {
		limit = 10
	}
	if _, err := s.devices.GetOwned(ctx, deviceID, ownerID); err != nil {
		return nil, err
	}

	key := fmt.Sprintf("%s:logs:userId=%d:device=%d:limit=%d", s.cfg.Prefix, ownerID, deviceID, limit)
	if s.cacheEnabled() {
		if raw, err := s.cache.Get(ctx, key); err == nil {
			var out []model.DeviceLog
			if err := json.Unmarshal([]byte(raw), &out); err == nil {
				return out, nil
			}
		}
	}

	out, err := s.logs.ListRecent(ctx, deviceID, limit)
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

// UsageSince totals the units_consumed values of an owned device over a
// trailing range such as "24h". Ranges not ending in "h" fall back to
// all-time, matching the lenient behavior of the original endpoint.
func (s *LogService) UsageSince(ctx context.Context, deviceID, ownerID uint64, trailing string) (float64, error) {
	if _, err := s.devices.GetOwned(ctx, deviceID, ownerID); err != nil {
		return 0, err
	}
	since := time.Unix(0, 0)
	if strings.HasSuffix(trailing, "h") {
		if hours, err := strconv.Atoi(strings.TrimSuffix(trailing, "h")); err == nil {
			since = time.Now().UTC().Add(-time.Duration(hours) * time.Hour)
		}
	}
	return s.logs.SumUnitsSince(ctx, deviceID, since)
}
