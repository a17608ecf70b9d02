// Package snapshot is the freshness-gated read path over the aggregator and
// the store. It collapses arbitrary client concurrency to at most one
// aggregation per freshness window (plus an accepted duplicate when two
// callers observe staleness simultaneously; writes are idempotent).
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/terra-telemetry/internal/domain"
	"github.com/couchcryptid/terra-telemetry/internal/observability"
	"github.com/couchcryptid/terra-telemetry/internal/store"
	"github.com/jonboulle/clockwork"
)

// Gatherer produces a fresh snapshot from the upstream feeds.
type Gatherer interface {
	Gather(ctx context.Context) domain.Snapshot
}

// Publisher republishes freshly aggregated snapshots to an external sink.
type Publisher interface {
	Publish(ctx context.Context, snapshotTime string, payload []byte) error
}

// Service serves the latest snapshot, re-aggregating only when the cached
// copy is older than the freshness window.
type Service struct {
	gatherer  Gatherer
	store     store.Store // nil disables persistence
	publisher Publisher   // nil disables republishing
	clock     clockwork.Clock
	window    time.Duration
	logger    *slog.Logger
	metrics   *observability.Metrics
	ready     atomic.Bool
}

// New creates the snapshot service. store and publisher may be nil.
func New(
	gatherer Gatherer,
	st store.Store,
	publisher Publisher,
	clock clockwork.Clock,
	window time.Duration,
	logger *slog.Logger,
	metrics *observability.Metrics,
) *Service {
	return &Service{
		gatherer:  gatherer,
		store:     st,
		publisher: publisher,
		clock:     clock,
		window:    window,
		logger:    logger,
		metrics:   metrics,
	}
}

// Latest returns the cached payload when it is younger than the freshness
// window, otherwise aggregates, persists best-effort, and returns the fresh
// result. A cache hit serves the stored bytes verbatim, so repeated calls
// within one window observe a byte-identical payload.
func (s *Service) Latest(ctx context.Context) (json.RawMessage, error) {
	if payload, ok := s.freshFromCache(ctx); ok {
		s.ready.Store(true)
		return payload, nil
	}
	return s.Refresh(ctx)
}

// Refresh bypasses the freshness check: it always aggregates, then
// write-through persists. The returned payload is the exact byte sequence
// written to the store. Persistence failure never fails the read.
func (s *Service) Refresh(ctx context.Context) (json.RawMessage, error) {
	snap := s.gatherer.Gather(ctx)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	s.ready.Store(true)
	s.persist(ctx, snap.Timestamp, payload)
	return payload, nil
}

// Cached returns whatever the cache holds regardless of age, without
// triggering aggregation. Used for the stream's fast first paint.
func (s *Service) Cached(ctx context.Context) (json.RawMessage, bool) {
	if s.store == nil {
		return nil, false
	}
	entry, ok, err := s.store.ReadCache(ctx, store.CacheKeyLatest)
	if err != nil || !ok {
		return nil, false
	}
	if !json.Valid(entry.Payload) {
		return nil, false
	}
	return entry.Payload, true
}

// CheckReadiness reports nil once the service has produced or served at
// least one snapshot.
func (s *Service) CheckReadiness(context.Context) error {
	if !s.ready.Load() {
		return errors.New("no snapshot served yet")
	}
	return nil
}

// freshFromCache reads the cache row and returns its stored payload when it
// is younger than the freshness window. The bytes are served as written; a
// payload that is not valid JSON counts as a miss.
func (s *Service) freshFromCache(ctx context.Context) (json.RawMessage, bool) {
	if s.store == nil {
		s.metrics.CacheReads.WithLabelValues("disabled").Inc()
		return nil, false
	}

	entry, ok, err := s.store.ReadCache(ctx, store.CacheKeyLatest)
	if err != nil {
		s.logger.Warn("cache read failed, treating as miss", "error", err)
		s.metrics.CacheReads.WithLabelValues("miss").Inc()
		return nil, false
	}
	if !ok {
		s.metrics.CacheReads.WithLabelValues("miss").Inc()
		return nil, false
	}
	if s.clock.Now().Sub(entry.UpdatedAt) >= s.window {
		s.metrics.CacheReads.WithLabelValues("stale").Inc()
		return nil, false
	}
	if !json.Valid(entry.Payload) {
		s.logger.Warn("cached snapshot undecodable, treating as miss")
		s.metrics.CacheReads.WithLabelValues("corrupt").Inc()
		return nil, false
	}

	s.metrics.CacheReads.WithLabelValues("hit").Inc()
	return entry.Payload, true
}

// persist appends a history row, upserts the cache row, and republishes,
// all best-effort: failures are logged and counted, never propagated.
func (s *Service) persist(ctx context.Context, snapshotTime string, payload []byte) {
	if s.store != nil {
		if err := s.store.AppendHistory(ctx, snapshotTime, payload); err != nil {
			s.logger.Warn("history append failed", "error", err)
			s.metrics.PersistenceErrors.Inc()
		}

		updatedAt, err := time.Parse(domain.TimestampLayout, snapshotTime)
		if err != nil {
			updatedAt = s.clock.Now()
		}
		if err := s.store.UpsertCache(ctx, store.CacheKeyLatest, payload, updatedAt); err != nil {
			s.logger.Warn("cache upsert failed", "error", err)
			s.metrics.PersistenceErrors.Inc()
		} else {
			s.metrics.SnapshotsPersisted.Inc()
		}
	}

	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, snapshotTime, payload); err != nil {
			s.logger.Warn("snapshot publish failed", "error", err)
			s.metrics.PersistenceErrors.Inc()
		}
	}
}
