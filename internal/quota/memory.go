package quota

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory Store for tests and local runs. A single mutex
// serializes check-then-increment per process, which satisfies the atomicity
// contract for one instance.
type MemoryStore struct {
	mu     sync.Mutex
	counts map[string]int
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{counts: map[string]int{}}
}

func (m *MemoryStore) IncrementIfUnder(ctx context.Context, key, day string, limit int) (int, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := key + "|" + day
	used := m.counts[k]
	if limit > 0 && used >= limit {
		return used, false, nil
	}
	used++
	m.counts[k] = used
	return used, true, nil
}

func (m *MemoryStore) Count(ctx context.Context, key, day string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[key+"|"+day], nil
}

// MemorySettings is an in-memory Settings for tests and local runs.
type MemorySettings struct {
	mu     sync.RWMutex
	values map[string]int
}

// NewMemorySettings creates settings with optional seed values.
func NewMemorySettings(seed map[string]int) *MemorySettings {
	values := map[string]int{}
	for k, v := range seed {
		values[k] = v
	}
	return &MemorySettings{values: values}
}

func (s *MemorySettings) GetInt(ctx context.Context, key string, fallback int) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if v, ok := s.values[key]; ok {
		return v, nil
	}
	return fallback, nil
}

func (s *MemorySettings) SetInt(ctx context.Context, key string, value int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}
