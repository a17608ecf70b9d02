// Package history answers range and aggregation queries over the persisted
// snapshot log.
//
// Hourly buckets return the newest row's values un-averaged while daily
// buckets compute true means. The asymmetry is inherited from the dashboard
// contract; see the repository design notes before "fixing" it.
package history

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/couchcryptid/terra-telemetry/internal/domain"
	"github.com/couchcryptid/terra-telemetry/internal/observability"
	"github.com/couchcryptid/terra-telemetry/internal/store"
)

// Aggregation modes.
const (
	AggregateNone   = ""
	AggregateHourly = "hourly"
	AggregateDaily  = "daily"
)

const (
	defaultLimit = 100
	defaultRange = 7 * 24 * time.Hour
)

// Params selects a slice of history.
type Params struct {
	Start     string
	End       string
	Limit     int
	Offset    int
	Aggregate string
	Type      string
}

// DefaultParams covers the last seven days ending at now.
func DefaultParams(now time.Time) Params {
	return Params{
		Start: domain.FormatTime(now.Add(-defaultRange)),
		End:   domain.FormatTime(now),
		Limit: defaultLimit,
	}
}

// RawEntry is one history row with its snapshot payload flattened in.
type RawEntry struct {
	ID        int64          `json:"id"`
	Timestamp string         `json:"timestamp"`
	Metrics   domain.Metrics `json:"metrics"`
	Meta      domain.Meta    `json:"meta"`
}

// Bucket is one hourly or daily aggregation bucket. The four projected
// fields are the ones trend charts consume.
type Bucket struct {
	TimeBucket   string  `json:"time_bucket"`
	Count        int     `json:"count"`
	AvgCoreLoad  float64 `json:"avg_core_load"`
	AvgSolarWind float64 `json:"avg_solar_wind"`
	AvgTemp      float64 `json:"avg_temp"`
	AvgCO2       float64 `json:"avg_co2"`
}

// Pagination reports the window position. Total counts raw rows in range
// even for aggregated queries (contract-compatible with the dashboard).
type Pagination struct {
	Total   int  `json:"total"`
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"hasMore"`
}

// Filters echoes the effective query parameters.
type Filters struct {
	Start     string `json:"start"`
	End       string `json:"end"`
	Aggregate string `json:"aggregate,omitempty"`
	Type      string `json:"type,omitempty"`
}

// Result is the history query response.
type Result struct {
	Data       any        `json:"data"`
	Pagination Pagination `json:"pagination"`
	Filters    Filters    `json:"filters"`
}

// Engine answers history queries against a store.
type Engine struct {
	store   store.Store
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewEngine creates a query engine over st.
func NewEngine(st store.Store, logger *slog.Logger, metrics *observability.Metrics) *Engine {
	return &Engine{store: st, logger: logger, metrics: metrics}
}

// Query runs one history query. Unrecognized aggregate values fall back to
// raw mode.
func (e *Engine) Query(ctx context.Context, p Params) (Result, error) {
	aggregate := p.Aggregate
	if aggregate != AggregateHourly && aggregate != AggregateDaily {
		aggregate = AggregateNone
	}
	e.metrics.HistoryQueries.WithLabelValues(metricLabel(aggregate)).Inc()

	total, err := e.store.CountRange(ctx, p.Start, p.End)
	if err != nil {
		return Result{}, err
	}

	var data any
	switch aggregate {
	case AggregateHourly, AggregateDaily:
		data, err = e.aggregated(ctx, p, aggregate)
	default:
		data, err = e.raw(ctx, p)
	}
	if err != nil {
		return Result{}, err
	}

	return Result{
		Data: data,
		Pagination: Pagination{
			Total:   total,
			Limit:   p.Limit,
			Offset:  p.Offset,
			HasMore: p.Offset+p.Limit < total,
		},
		Filters: Filters{Start: p.Start, End: p.End, Aggregate: aggregate, Type: p.Type},
	}, nil
}

// raw returns history rows newest first, each with its payload flattened.
// Undecodable payloads are skipped rather than failing the query.
func (e *Engine) raw(ctx context.Context, p Params) ([]RawEntry, error) {
	rows, err := e.store.QueryRange(ctx, p.Start, p.End, p.Limit, p.Offset)
	if err != nil {
		return nil, err
	}

	entries := make([]RawEntry, 0, len(rows))
	for _, row := range rows {
		var snap domain.Snapshot
		if err := json.Unmarshal(row.Payload, &snap); err != nil {
			e.logger.Warn("skipping undecodable history row", "id", row.ID, "error", err)
			continue
		}
		entries = append(entries, RawEntry{
			ID:        row.ID,
			Timestamp: row.SnapshotTime,
			Metrics:   snap.Metrics,
			Meta:      snap.Meta,
		})
	}
	return entries, nil
}

// aggregated groups all rows in range into time buckets, newest bucket
// first, then pages the bucket list.
func (e *Engine) aggregated(ctx context.Context, p Params, mode string) ([]Bucket, error) {
	rows, err := e.store.QueryRange(ctx, p.Start, p.End, 0, 0)
	if err != nil {
		return nil, err
	}

	type accumulator struct {
		bucket                            Bucket
		sumLoad, sumWind, sumTemp, sumCO2 float64
	}

	var order []string
	groups := make(map[string]*accumulator)

	for _, row := range rows {
		ts, err := time.Parse(time.RFC3339, row.SnapshotTime)
		if err != nil {
			e.logger.Warn("skipping history row with bad timestamp", "id", row.ID, "error", err)
			continue
		}
		var snap domain.Snapshot
		if err := json.Unmarshal(row.Payload, &snap); err != nil {
			e.logger.Warn("skipping undecodable history row", "id", row.ID, "error", err)
			continue
		}

		label := bucketLabel(ts, mode)
		acc, ok := groups[label]
		if !ok {
			// Rows arrive newest first, so the first row seen becomes the
			// bucket's representative for hourly mode.
			acc = &accumulator{bucket: Bucket{
				TimeBucket:   label,
				AvgCoreLoad:  snap.Metrics.CoreLoad,
				AvgSolarWind: snap.Metrics.Solar.WindSpeed,
				AvgTemp:      snap.Metrics.CrustTemp,
				AvgCO2:       snap.Metrics.Atmosphere.CO2,
			}}
			groups[label] = acc
			order = append(order, label)
		}
		acc.bucket.Count++
		acc.sumLoad += snap.Metrics.CoreLoad
		acc.sumWind += snap.Metrics.Solar.WindSpeed
		acc.sumTemp += snap.Metrics.CrustTemp
		acc.sumCO2 += snap.Metrics.Atmosphere.CO2
	}

	buckets := make([]Bucket, 0, len(order))
	for _, label := range order {
		acc := groups[label]
		b := acc.bucket
		if mode == AggregateDaily && b.Count > 0 {
			n := float64(b.Count)
			b.AvgCoreLoad = acc.sumLoad / n
			b.AvgSolarWind = acc.sumWind / n
			b.AvgTemp = acc.sumTemp / n
			b.AvgCO2 = acc.sumCO2 / n
		}
		buckets = append(buckets, b)
	}

	return page(buckets, p.Limit, p.Offset), nil
}

func bucketLabel(ts time.Time, mode string) string {
	if mode == AggregateDaily {
		return ts.UTC().Format("2006-01-02")
	}
	return ts.UTC().Format("2006-01-02 15:00:00")
}

func page(buckets []Bucket, limit, offset int) []Bucket {
	if limit <= 0 {
		return buckets
	}
	if offset >= len(buckets) {
		return []Bucket{}
	}
	buckets = buckets[offset:]
	if len(buckets) > limit {
		buckets = buckets[:limit]
	}
	return buckets
}

func metricLabel(aggregate string) string {
	if aggregate == AggregateNone {
		return "none"
	}
	return aggregate
}
