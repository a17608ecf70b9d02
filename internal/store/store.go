// Package store persists snapshots as an append-only history log plus a
// single-row-per-key cache. The interface keeps the engine abstract: postgres
// is the production adapter, the memory store backs tests and local runs.
package store

import (
	"context"
	"time"
)

// CacheKeyLatest is the fixed key under which the most recent snapshot is
// cached.
const CacheKeyLatest = "latest"

// HistoryRow is one persisted snapshot. Immutable once written.
type HistoryRow struct {
	ID           int64
	SnapshotTime string // ISO-8601 UTC; lexicographic order is time order
	Payload      []byte
}

// CacheEntry is the single mutable row per cache key, overwritten atomically
// on each refresh.
type CacheEntry struct {
	Key       string
	Payload   []byte
	UpdatedAt time.Time
}

// Store is the persistence contract. All writes are idempotent
// (append / last-writer-wins upsert), so concurrent refreshes need no
// coordination.
type Store interface {
	// AppendHistory adds a history row.
	AppendHistory(ctx context.Context, snapshotTime string, payload []byte) error

	// UpsertCache overwrites the cache row for key.
	UpsertCache(ctx context.Context, key string, payload []byte, updatedAt time.Time) error

	// ReadCache returns the cache row for key, reporting whether it exists.
	ReadCache(ctx context.Context, key string) (CacheEntry, bool, error)

	// QueryRange returns history rows with snapshotTime in [start, end],
	// newest first. limit <= 0 disables the limit.
	QueryRange(ctx context.Context, start, end string, limit, offset int) ([]HistoryRow, error)

	// CountRange counts history rows with snapshotTime in [start, end].
	CountRange(ctx context.Context, start, end string) (int, error)

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	Close() error
}
