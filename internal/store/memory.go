package store

import (
	"context"
	"slices"
	"sync"

	"procodus.dev/hardwater/pkg/water"
)

// Memory is a process-local Store used by tests and single-node setups.
type Memory struct {
	areas map[water.AreaID]map[string]water.Reading
	mu    sync.RWMutex
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{areas: make(map[water.AreaID]map[string]water.Reading)}
}

func (m *Memory) Put(_ context.Context, area water.AreaID, key string, r water.Reading) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	readings, ok := m.areas[area]
	if !ok {
		readings = make(map[string]water.Reading)
		m.areas[area] = readings
	}
	readings[key] = r
	return nil
}

func (m *Memory) GetRange(_ context.Context, area water.AreaID, limit int) ([]StoredReading, error) {
	if err := validLimit(limit); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	readings := m.areas[area]
	keys := make([]string, 0, len(readings))
	for k := range readings {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	if len(keys) > limit {
		keys = keys[:limit]
	}

	out := make([]StoredReading, 0, len(keys))
	for _, k := range keys {
		out = append(out, StoredReading{Key: k, Reading: readings[k]})
	}
	return out, nil
}

func (m *Memory) ListAreas(_ context.Context) ([]water.AreaID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	areas := make([]water.AreaID, 0, len(m.areas))
	for a, readings := range m.areas {
		if len(readings) > 0 {
			areas = append(areas, a)
		}
	}
	slices.Sort(areas)
	return areas, nil
}

func (m *Memory) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.areas = make(map[water.AreaID]map[string]water.Reading)
	return nil
}

func (m *Memory) Ping(_ context.Context) error { return nil }

func (m *Memory) Close() error { return nil }
