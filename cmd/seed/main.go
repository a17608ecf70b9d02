// Command seed writes synthetic snapshot history into the store so the
// history endpoints can be exercised without waiting for wall-clock
// accumulation. A fixed clock makes runs reproducible.
//
// Usage:
//
//	go run ./cmd/seed -db "$DATABASE_URL" -count 500 -interval 1m
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/terra-telemetry/internal/domain"
	"github.com/couchcryptid/terra-telemetry/internal/store"
)

var baseTime = time.Date(2026, time.August, 1, 0, 0, 0, 0, time.UTC)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	dsn := flag.String("db", os.Getenv("DATABASE_URL"), "postgres connection string")
	count := flag.Int("count", 500, "number of snapshots to write")
	interval := flag.Duration("interval", time.Minute, "spacing between snapshots")
	flag.Parse()

	if *dsn == "" {
		flag.Usage()
		return fmt.Errorf("missing required flag: -db (or DATABASE_URL)")
	}

	ctx := context.Background()
	st, err := store.OpenPostgres(ctx, *dsn)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	// Fixed clock keeps labels deterministic across runs.
	clock := clockwork.NewFakeClockAt(baseTime)
	domain.SetClock(clock)
	defer domain.SetClock(nil)

	var lastPayload []byte
	var lastTime time.Time
	for i := 0; i < *count; i++ {
		ts := clock.Now()
		snap := syntheticSnapshot(i, ts)
		payload, err := json.Marshal(snap)
		if err != nil {
			return fmt.Errorf("encoding snapshot %d: %w", i, err)
		}
		if err := st.AppendHistory(ctx, snap.Timestamp, payload); err != nil {
			return fmt.Errorf("appending snapshot %d: %w", i, err)
		}
		lastPayload = payload
		lastTime = ts
		clock.Advance(*interval)
	}

	if lastPayload != nil {
		if err := st.UpsertCache(ctx, store.CacheKeyLatest, lastPayload, lastTime); err != nil {
			return fmt.Errorf("updating cache: %w", err)
		}
	}

	log.Printf("wrote %d snapshots from %s every %s", *count, domain.FormatTime(baseTime), *interval)
	return nil
}

// syntheticSnapshot produces a plausible, slowly varying reading. Sinusoids
// over the sequence index give the aggregation buckets visible structure.
func syntheticSnapshot(i int, ts time.Time) domain.Snapshot {
	phase := float64(i) / 30.0
	kp := 2.0 + 2.0*math.Sin(phase)
	wind := 380.0 + 60.0*math.Sin(phase/3)
	flux := 3e-7 + 2e-7*math.Sin(phase/2)

	timestamp := domain.FormatTime(ts)
	return domain.Snapshot{
		Timestamp: timestamp,
		Metrics: domain.Metrics{
			CoreLoad:        domain.KpLoad(kp),
			MantleBandwidth: wind,
			CrustTemp:       288.0 + 1.5*math.Sin(phase/5),
			SolarWindFlux:   wind,
			LastSeismicEvent: domain.SeismicEvent{
				ID:        fmt.Sprintf("seed-%d", i),
				Label:     "M 4.0 - Synthetic Ridge",
				Magnitude: 4.0,
				Pos:       domain.GlobePosition(19.54, -155.58),
				Intensity: domain.SeismicIntensity(4.0),
				Timestamp: timestamp,
			},
			Volcanoes: []domain.Volcano{},
			Solar: domain.SolarActivity{
				Flux:        flux,
				Class:       domain.FlareClass(flux),
				WindSpeed:   wind,
				ProtonLevel: "None",
			},
			Atmosphere: domain.Atmosphere{
				CO2:         421.0 + 0.5*math.Sin(phase/8),
				TempAnomaly: 1.2,
			},
		},
		Meta: domain.Meta{
			Timestamp: timestamp,
			Sources: map[string]any{
				"seed": domain.SourceUpdated{Updated: timestamp},
			},
		},
	}
}
