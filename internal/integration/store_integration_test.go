//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/couchcryptid/terra-telemetry/internal/domain"
	"github.com/couchcryptid/terra-telemetry/internal/history"
	"github.com/couchcryptid/terra-telemetry/internal/observability"
	"github.com/couchcryptid/terra-telemetry/internal/store"
)

// startPostgres launches a throwaway database and returns its DSN.
func startPostgres(ctx context.Context, t *testing.T) string {
	t.Helper()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("terra"),
		tcpostgres.WithUsername("terra"),
		tcpostgres.WithPassword("terra"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "start postgres container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	return dsn
}

func snapshotPayload(t *testing.T, ts string, coreLoad float64) []byte {
	t.Helper()
	payload, err := json.Marshal(domain.Snapshot{
		Timestamp: ts,
		Metrics:   domain.Metrics{CoreLoad: coreLoad, Volcanoes: []domain.Volcano{}},
		Meta:      domain.Meta{Timestamp: ts, Sources: map[string]any{}},
	})
	require.NoError(t, err)
	return payload
}

// TestPostgresStore verifies the schema bootstrap and the full history and
// cache round-trip against a real database.
func TestPostgresStore(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	dsn := startPostgres(ctx, t)
	pg, err := store.OpenPostgres(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Close() })

	require.NoError(t, pg.Ping(ctx))

	base := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		ts := domain.FormatTime(base.Add(time.Duration(i) * time.Minute))
		require.NoError(t, pg.AppendHistory(ctx, ts, snapshotPayload(t, ts, float64(i)/10)))
	}

	t.Run("history range queries", func(t *testing.T) {
		rows, err := pg.QueryRange(ctx,
			"2026-08-29T00:00:00.000Z", "2026-08-30T00:00:00.000Z", 0, 0)
		require.NoError(t, err)
		require.Len(t, rows, 5)
		assert.Equal(t, "2026-08-29T10:04:00.000Z", rows[0].SnapshotTime, "newest first")

		rows, err = pg.QueryRange(ctx,
			"2026-08-29T00:00:00.000Z", "2026-08-30T00:00:00.000Z", 2, 1)
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.Equal(t, "2026-08-29T10:03:00.000Z", rows[0].SnapshotTime)

		total, err := pg.CountRange(ctx,
			"2026-08-29T10:02:00.000Z", "2026-08-30T00:00:00.000Z")
		require.NoError(t, err)
		assert.Equal(t, 3, total)
	})

	t.Run("cache upsert is last writer wins", func(t *testing.T) {
		ts1 := domain.FormatTime(base)
		ts2 := domain.FormatTime(base.Add(time.Minute))
		require.NoError(t, pg.UpsertCache(ctx, store.CacheKeyLatest, snapshotPayload(t, ts1, 0.1), base))
		require.NoError(t, pg.UpsertCache(ctx, store.CacheKeyLatest, snapshotPayload(t, ts2, 0.2), base.Add(time.Minute)))

		entry, ok, err := pg.ReadCache(ctx, store.CacheKeyLatest)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Contains(t, string(entry.Payload), ts2)
		assert.True(t, entry.UpdatedAt.Equal(base.Add(time.Minute)))
	})

	t.Run("missing cache key", func(t *testing.T) {
		_, ok, err := pg.ReadCache(ctx, "absent")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("history engine over a real store", func(t *testing.T) {
		engine := history.NewEngine(pg, slog.Default(), observability.NewMetricsForTesting())

		result, err := engine.Query(ctx, history.Params{
			Start: "2026-08-29T00:00:00.000Z",
			End:   "2026-08-30T00:00:00.000Z",
			Limit: 2,
		})
		require.NoError(t, err)
		assert.Len(t, result.Data.([]history.RawEntry), 2)
		assert.Equal(t, 5, result.Pagination.Total)
		assert.True(t, result.Pagination.HasMore)
	})

	t.Run("schema bootstrap is idempotent", func(t *testing.T) {
		again, err := store.OpenPostgres(ctx, dsn)
		require.NoError(t, err)
		require.NoError(t, again.Close())
	})
}

// TestPostgresStoreConcurrentWrites exercises the accepted duplicate-refresh
// race: concurrent appends and upserts must all succeed.
func TestPostgresStoreConcurrentWrites(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	dsn := startPostgres(ctx, t)
	pg, err := store.OpenPostgres(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Close() })

	base := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	errCh := make(chan error, 10)
	for i := 0; i < 10; i++ {
		go func(i int) {
			ts := domain.FormatTime(base.Add(time.Duration(i) * time.Second))
			payload := []byte(fmt.Sprintf(`{"timestamp":%q}`, ts))
			if err := pg.AppendHistory(ctx, ts, payload); err != nil {
				errCh <- err
				return
			}
			errCh <- pg.UpsertCache(ctx, store.CacheKeyLatest, payload, base)
		}(i)
	}
	for i := 0; i < 10; i++ {
		require.NoError(t, <-errCh)
	}

	total, err := pg.CountRange(ctx, "2026-08-29T12:00:00.000Z", "2026-08-29T13:00:00.000Z")
	require.NoError(t, err)
	assert.Equal(t, 10, total)
}
