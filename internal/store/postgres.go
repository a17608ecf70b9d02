package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // postgres driver
)

// Postgres implements Store on a postgres database.
type Postgres struct {
	db *sql.DB
}

// OpenPostgres connects to dsn and ensures the schema exists.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	p := &Postgres{db: db}
	if err := p.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return p, nil
}

func (p *Postgres) ensureSchema(ctx context.Context) error {
	// snapshot_time is TEXT on purpose: ISO-8601 UTC strings sort
	// chronologically and the column round-trips the wire timestamp exactly.
	const schema = `
CREATE TABLE IF NOT EXISTS metric_history (
	id            BIGSERIAL PRIMARY KEY,
	snapshot_time TEXT NOT NULL,
	payload       TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS metric_history_snapshot_time_idx
	ON metric_history (snapshot_time);
CREATE TABLE IF NOT EXISTS metric_cache (
	key        TEXT PRIMARY KEY,
	payload    TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);`
	if _, err := p.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (p *Postgres) AppendHistory(ctx context.Context, snapshotTime string, payload []byte) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO metric_history (snapshot_time, payload) VALUES ($1, $2)`,
		snapshotTime, string(payload),
	)
	if err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}

func (p *Postgres) UpsertCache(ctx context.Context, key string, payload []byte, updatedAt time.Time) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO metric_cache (key, payload, updated_at) VALUES ($1, $2, $3)
		 ON CONFLICT (key) DO UPDATE SET payload = EXCLUDED.payload, updated_at = EXCLUDED.updated_at`,
		key, string(payload), updatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert cache: %w", err)
	}
	return nil
}

func (p *Postgres) ReadCache(ctx context.Context, key string) (CacheEntry, bool, error) {
	var payload string
	var updatedAt time.Time
	err := p.db.QueryRowContext(ctx,
		`SELECT payload, updated_at FROM metric_cache WHERE key = $1`, key,
	).Scan(&payload, &updatedAt)
	if err == sql.ErrNoRows {
		return CacheEntry{}, false, nil
	}
	if err != nil {
		return CacheEntry{}, false, fmt.Errorf("read cache: %w", err)
	}
	return CacheEntry{Key: key, Payload: []byte(payload), UpdatedAt: updatedAt.UTC()}, true, nil
}

func (p *Postgres) QueryRange(ctx context.Context, start, end string, limit, offset int) ([]HistoryRow, error) {
	query := `SELECT id, snapshot_time, payload FROM metric_history
		WHERE snapshot_time >= $1 AND snapshot_time <= $2
		ORDER BY snapshot_time DESC`
	args := []any{start, end}
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
		args = append(args, limit, offset)
	}

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var result []HistoryRow
	for rows.Next() {
		var row HistoryRow
		var payload string
		if err := rows.Scan(&row.ID, &row.SnapshotTime, &payload); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		row.Payload = []byte(payload)
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history rows: %w", err)
	}
	return result, nil
}

func (p *Postgres) CountRange(ctx context.Context, start, end string) (int, error) {
	var total int
	err := p.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM metric_history WHERE snapshot_time >= $1 AND snapshot_time <= $2`,
		start, end,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("count history: %w", err)
	}
	return total, nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func (p *Postgres) Close() error {
	return p.db.Close()
}
