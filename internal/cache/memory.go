package cache

import (
	"context"
	"path"
	"strconv"
	"sync"
	"time"
)

// Memory is an in-process Store used by tests and single-node dev runs
// where no Redis is available. Expiry is checked lazily on access.
type Memory struct {
	mu      sync.Mutex
	values  map[string]string
	expires map[string]time.Time
	now     func() time.Time
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		values:  map[string]string{},
		expires: map[string]time.Time{},
		now:     time.Now,
	}
}

// SetClock overrides the store's clock; tests use it to step through
// rate-limit windows without sleeping.
func (m *Memory) SetClock(now func() time.Time) { m.now = now }

func (m *Memory) expired(key string) bool {
	exp, ok := m.expires[key]
	return ok && !exp.After(m.now())
}

func (m *Memory) purge(key string) {
	delete(m.values, key)
	delete(m.expires, key)
}

func (m *Memory) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.expired(key) {
		m.purge(key)
	}
	v, ok := m.values[key]
	if !ok {
		return "", ErrMiss
	}
	return v, nil
}

func (m *Memory) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	if ttl > 0 {
		m.expires[key] = m.now().Add(ttl)
	} else {
		delete(m.expires, key)
	}
	return nil
}

func (m *Memory) Keys(_ context.Context, pattern string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []string{}
	for k := range m.values {
		if m.expired(k) {
			continue
		}
		if ok, _ := path.Match(pattern, k); ok {
			out = append(out, k)
		}
	}
	return out, nil
}

func (m *Memory) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		m.purge(k)
	}
	return nil
}

func (m *Memory) Incr(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.expired(key) {
		m.purge(key)
	}
	var n int64
	if v, ok := m.values[key]; ok {
		n, _ = strconv.ParseInt(v, 10, 64)
	}
	n++
	m.values[key] = strconv.FormatInt(n, 10)
	return n, nil
}

func (m *Memory) Expire(_ context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.values[key]; ok {
		m.expires[key] = m.now().Add(ttl)
	}
	return nil
}

func (m *Memory) TTL(_ context.Context, key string) (time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	exp, ok := m.expires[key]
	if !ok {
		return -1, nil
	}
	d := exp.Sub(m.now())
	if d < 0 {
		d = 0
	}
	return d, nil
}

func (m *Memory) SetNX(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.expired(key) {
		m.purge(key)
	}
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = value
	if ttl > 0 {
		m.expires[key] = m.now().Add(ttl)
	}
	return true, nil
}
