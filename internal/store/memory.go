package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Memory implements Store in process memory. Used by tests and by local
// runs that want persistence semantics without a database.
type Memory struct {
	mu      sync.Mutex
	nextID  int64
	history []HistoryRow
	cache   map[string]CacheEntry
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{nextID: 1, cache: make(map[string]CacheEntry)}
}

func (m *Memory) AppendHistory(_ context.Context, snapshotTime string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.history = append(m.history, HistoryRow{
		ID:           m.nextID,
		SnapshotTime: snapshotTime,
		Payload:      append([]byte(nil), payload...),
	})
	m.nextID++
	return nil
}

func (m *Memory) UpsertCache(_ context.Context, key string, payload []byte, updatedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cache[key] = CacheEntry{
		Key:       key,
		Payload:   append([]byte(nil), payload...),
		UpdatedAt: updatedAt.UTC(),
	}
	return nil
}

func (m *Memory) ReadCache(_ context.Context, key string) (CacheEntry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.cache[key]
	return entry, ok, nil
}

func (m *Memory) QueryRange(_ context.Context, start, end string, limit, offset int) ([]HistoryRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var matched []HistoryRow
	for _, row := range m.history {
		if row.SnapshotTime >= start && row.SnapshotTime <= end {
			matched = append(matched, row)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].SnapshotTime > matched[j].SnapshotTime
	})

	if limit <= 0 {
		return matched, nil
	}
	if offset >= len(matched) {
		return nil, nil
	}
	matched = matched[offset:]
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (m *Memory) CountRange(_ context.Context, start, end string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	total := 0
	for _, row := range m.history {
		if row.SnapshotTime >= start && row.SnapshotTime <= end {
			total++
		}
	}
	return total, nil
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Close() error { return nil }
