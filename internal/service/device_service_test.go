package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devfleet/iot-device-api/internal/cache"
	"github.com/devfleet/iot-device-api/internal/config"
	"github.com/devfleet/iot-device-api/internal/model"
	"github.com/devfleet/iot-device-api/internal/repository"
)

type deviceStoreFake struct {
	devices    []model.Device
	listCalls  int
	stale      []uint64
	deactivate []uint64
}

func (f *deviceStoreFake) Create(ctx context.Context, name, devType, status string, ownerID uint64) (model.Device, error) {
	d := model.Device{ID: uint64(len(f.devices) + 1), Name: name, Type: devType, Status: status, OwnerID: ownerID}
	f.devices = append(f.devices, d)
	return d, nil
}

func (f *deviceStoreFake) GetOwned(ctx context.Context, id, ownerID uint64) (model.Device, error) {
	for _, d := range f.devices {
		if d.ID == id && d.OwnerID == ownerID {
			return d, nil
		}
	}
	return model.Device{}, repository.ErrNotFound
}

func (f *deviceStoreFake) ListByOwner(ctx context.Context, ownerID uint64, devType, status string) ([]model.Device, error) {
	f.listCalls++
	var out []model.Device
	for _, d := range f.devices {
		if d.OwnerID == ownerID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *deviceStoreFake) Update(ctx context.Context, id, ownerID uint64, name, devType, status string) (model.Device, error) {
	for i, d := range f.devices {
		if d.ID == id && d.OwnerID == ownerID {
			if name != "" {
				d.Name = name
			}
			if status != "" {
				d.Status = status
			}
			f.devices[i] = d
			return d, nil
		}
	}
	return model.Device{}, repository.ErrNotFound
}

func (f *deviceStoreFake) Delete(ctx context.Context, id, ownerID uint64) error { return nil }

func (f *deviceStoreFake) Heartbeat(ctx context.Context, id, ownerID uint64, status string) (time.Time, error) {
	return time.Now(), nil
}

func (f *deviceStoreFake) FindStale(ctx context.Context, cutoff time.Time) ([]uint64, error) {
	return f.stale, nil
}

func (f *deviceStoreFake) Deactivate(ctx context.Context, id uint64) error {
	f.deactivate = append(f.deactivate, id)
	return nil
}

func cacheCfg() config.CacheConfig {
	return config.CacheConfig{Enabled: true, TTL: time.Minute, Prefix: "iot"}
}

func TestListServesFromCache(t *testing.T) {
	store := &deviceStoreFake{}
	svc := NewDeviceService(store, cache.NewMemory(), cacheCfg())
	ctx := context.Background()

	_, err := svc.Register(ctx, 7, "lamp", model.DeviceTypeLight, "")
	require.NoError(t, err)

	first, err := svc.List(ctx, 7, "", "")
	require.NoError(t, err)
	require.Len(t, first, 1)

	// second call must be a cache hit
	calls := store.listCalls
	second, err := svc.List(ctx, 7, "", "")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, calls, store.listCalls)
}

func TestMutationPurgesOwnerCache(t *testing.T) {
	store := &deviceStoreFake{}
	mem := cache.NewMemory()
	svc := NewDeviceService(store, mem, cacheCfg())
	ctx := context.Background()

	d, err := svc.Register(ctx, 7, "lamp", model.DeviceTypeLight, "")
	require.NoError(t, err)
	_, err = svc.List(ctx, 7, "", "")
	require.NoError(t, err)

	// cached log listings for the same owner are purged too
	require.NoError(t, mem.Set(ctx, "iot:logs:userId=7:device=1:limit=10", "[]", time.Minute))
	// another owner's entries must survive the purge
	require.NoError(t, mem.Set(ctx, "iot:devices:userId=8:type=:status=", "[]", time.Minute))

	_, err = svc.Update(ctx, d.ID, 7, "desk lamp", "", "")
	require.NoError(t, err)

	_, err = mem.Get(ctx, "iot:devices:userId=7:type=:status=")
	assert.ErrorIs(t, err, cache.ErrMiss)
	_, err = mem.Get(ctx, "iot:logs:userId=7:device=1:limit=10")
	assert.ErrorIs(t, err, cache.ErrMiss)

	_, err = mem.Get(ctx, "iot:devices:userId=8:type=:status=")
	assert.NoError(t, err)
}

func TestListAfterUpdateSeesFreshData(t *testing.T) {
	store := &deviceStoreFake{}
	svc := NewDeviceService(store, cache.NewMemory(), cacheCfg())
	ctx := context.Background()

	d, err := svc.Register(ctx, 7, "lamp", model.DeviceTypeLight, "")
	require.NoError(t, err)
	_, err = svc.List(ctx, 7, "", "")
	require.NoError(t, err)

	_, err = svc.Update(ctx, d.ID, 7, "", "", model.DeviceStatusActive)
	require.NoError(t, err)

	out, err := svc.List(ctx, 7, "", "")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, model.DeviceStatusActive, out[0].Status)
}

func TestCachingDisabledWithoutStore(t *testing.T) {
	store := &deviceStoreFake{}
	svc := NewDeviceService(store, nil, cacheCfg())
	ctx := context.Background()

	_, err := svc.Register(ctx, 7, "lamp", model.DeviceTypeLight, "")
	require.NoError(t, err)

	_, err = svc.List(ctx, 7, "", "")
	require.NoError(t, err)
	_, err = svc.List(ctx, 7, "", "")
	require.NoError(t, err)
	assert.Equal(t, 2, store.listCalls)
}

func TestSweepInactive(t *testing.T) {
	store := &deviceStoreFake{stale: []uint64{4, 9}}
	svc := NewDeviceService(store, nil, cacheCfg())

	n, err := svc.SweepInactive(context.Background(), time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []uint64{4, 9}, store.deactivate)
}
