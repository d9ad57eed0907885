package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-process Store used by tests and by the dashboard
// when no database path is configured.
type MemoryStore struct {
	mu      sync.RWMutex
	values  map[string][]byte
	firings []FiringRecord
	lease   *Lease
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string][]byte)}
}

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *MemoryStore) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = append([]byte(nil), value...)
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.values[key]; !ok {
		return ErrNotFound
	}
	delete(m.values, key)
	return nil
}

func (m *MemoryStore) AppendFiring(_ context.Context, in FiringRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.firings = append(m.firings, in)
	return nil
}

func (m *MemoryStore) ListFirings(_ context.Context, filter FiringListFilter) ([]FiringRecord, error) {
	m.mu.RLock()
	out := make([]FiringRecord, 0, len(m.firings))
	for _, f := range m.firings {
		if filter.AutomationID != "" && f.AutomationID != filter.AutomationID {
			continue
		}
		if filter.Since != nil && f.FiredAt.Before(*filter.Since) {
			continue
		}
		out = append(out, f)
	}
	m.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].FiredAt.After(out[j].FiredAt) })
	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return []FiringRecord{}, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *MemoryStore) Keys(_ context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0)
	for k := range m.values {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *MemoryStore) AcquireLease(_ context.Context, holder string, pid int, now time.Time, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lease != nil && m.lease.Holder != holder && m.lease.ExpiresAt.After(now) {
		return &LeaseError{Current: *m.lease}
	}
	m.lease = &Lease{Holder: holder, PID: pid, ExpiresAt: now.Add(ttl)}
	return nil
}

func (m *MemoryStore) ReleaseLease(_ context.Context, holder string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lease != nil && m.lease.Holder == holder {
		m.lease = nil
	}
	return nil
}
