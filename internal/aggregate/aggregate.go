// Package aggregate assembles one telemetry snapshot from the six upstream
// feeds, tolerating any subset of them failing.
package aggregate

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/couchcryptid/terra-telemetry/internal/domain"
	"github.com/couchcryptid/terra-telemetry/internal/observability"
	"github.com/couchcryptid/terra-telemetry/internal/upstream"
)

// Feeds is the slice of the upstream client the aggregator needs.
type Feeds interface {
	FetchSeismic(ctx context.Context) (upstream.SeismicFeed, error)
	FetchKpSeries(ctx context.Context) ([]upstream.KpEntry, error)
	FetchSolarRaw(ctx context.Context) (upstream.SolarRaw, error)
	FetchVolcanoes(ctx context.Context) ([]upstream.VolcanoEntry, error)
	FetchCO2Table(ctx context.Context) (string, error)
	FetchWeather(ctx context.Context) (upstream.WeatherResponse, error)
}

// Aggregator runs all fetch+normalize pairs concurrently and merges the
// results into a Snapshot.
type Aggregator struct {
	feeds   Feeds
	logger  *slog.Logger
	metrics *observability.Metrics
}

// New creates an Aggregator over the given feed client.
func New(feeds Feeds, logger *slog.Logger, metrics *observability.Metrics) *Aggregator {
	return &Aggregator{feeds: feeds, logger: logger, metrics: metrics}
}

// Gather produces one complete Snapshot. Every feed failure is converted to
// its documented default and recorded under meta.sources; no single upstream
// outage prevents snapshot production. Field assignment is keyed by source,
// so the result is deterministic regardless of completion order.
func (a *Aggregator) Gather(ctx context.Context) domain.Snapshot {
	start := time.Now()
	timestamp := domain.FormatTime(domain.Now())

	var (
		seismicFeed upstream.SeismicFeed
		seismicErr  error

		kp    domain.KpReading
		kpErr error

		packet   domain.SolarPacket
		solarErr error

		volcanoes  []domain.Volcano
		volcanoErr error

		climate    domain.CO2Reading
		climateErr error

		weather    domain.WeatherSample
		weatherErr error
	)

	var wg sync.WaitGroup
	wg.Add(6)

	go func() {
		defer wg.Done()
		seismicFeed, seismicErr = a.feeds.FetchSeismic(ctx)
	}()
	go func() {
		defer wg.Done()
		var series []upstream.KpEntry
		if series, kpErr = a.feeds.FetchKpSeries(ctx); kpErr == nil {
			kp = upstream.ExtractKpReading(series)
		}
	}()
	go func() {
		defer wg.Done()
		var raw upstream.SolarRaw
		if raw, solarErr = a.feeds.FetchSolarRaw(ctx); solarErr == nil {
			packet = upstream.ExtractSolarPacket(raw)
		}
	}()
	go func() {
		defer wg.Done()
		var entries []upstream.VolcanoEntry
		if entries, volcanoErr = a.feeds.FetchVolcanoes(ctx); volcanoErr == nil {
			volcanoes = upstream.ExtractVolcanoes(entries)
		}
	}()
	go func() {
		defer wg.Done()
		var table string
		if table, climateErr = a.feeds.FetchCO2Table(ctx); climateErr == nil {
			climate, climateErr = upstream.ExtractLatestCO2(table)
		}
	}()
	go func() {
		defer wg.Done()
		var resp upstream.WeatherResponse
		if resp, weatherErr = a.feeds.FetchWeather(ctx); weatherErr == nil {
			weather = upstream.ExtractWeatherSample(resp)
		}
	}()

	wg.Wait()

	snapshot := a.merge(timestamp, mergeInput{
		seismicFeed: seismicFeed, seismicErr: seismicErr,
		kp: kp, kpErr: kpErr,
		packet: packet, solarErr: solarErr,
		volcanoes: volcanoes, volcanoErr: volcanoErr,
		climate: climate, climateErr: climateErr,
		weather: weather, weatherErr: weatherErr,
	})

	a.metrics.Aggregations.Inc()
	a.metrics.AggregationDuration.Observe(time.Since(start).Seconds())

	return snapshot
}

type mergeInput struct {
	seismicFeed upstream.SeismicFeed
	seismicErr  error
	kp          domain.KpReading
	kpErr       error
	packet      domain.SolarPacket
	solarErr    error
	volcanoes   []domain.Volcano
	volcanoErr  error
	climate     domain.CO2Reading
	climateErr  error
	weather     domain.WeatherSample
	weatherErr  error
}

// merge applies the default table for failed sources and builds the
// per-source observability report.
func (a *Aggregator) merge(timestamp string, in mergeInput) domain.Snapshot {
	sources := make(map[string]any, 6)

	var seismicEvent domain.SeismicEvent
	switch {
	case in.seismicErr != nil:
		a.warnSource("seismic", in.seismicErr)
		seismicEvent = domain.DefaultSeismicEvent(true)
		sources["seismic"] = domain.SourceError{Error: in.seismicErr.Error()}
	default:
		if event := upstream.ExtractLatestSeismicEvent(in.seismicFeed); event != nil {
			seismicEvent = *event
		} else {
			seismicEvent = domain.DefaultSeismicEvent(false)
		}
		sources["seismic"] = domain.SourceUpdated{Updated: seismicEvent.Timestamp}
	}

	var coreLoad float64
	if in.kpErr != nil {
		a.warnSource("kp", in.kpErr)
		sources["kp"] = domain.SourceError{Error: in.kpErr.Error()}
	} else {
		coreLoad = in.kp.Load
		sources["kp"] = in.kp
	}

	solar := domain.DefaultSolar()
	var mantleBandwidth, solarWindFlux float64
	if in.solarErr != nil {
		a.warnSource("solar", in.solarErr)
		sources["solar"] = domain.SourceError{Error: in.solarErr.Error()}
	} else {
		solar = in.packet.Solar
		mantleBandwidth = in.packet.MantleBandwidth
		solarWindFlux = in.packet.SolarWindFlux
		sources["solar"] = in.packet.Solar.Timestamps
	}

	volcanoes := []domain.Volcano{}
	if in.volcanoErr != nil {
		a.warnSource("volcanoes", in.volcanoErr)
		sources["volcanoes"] = domain.SourceError{Error: in.volcanoErr.Error()}
	} else {
		if in.volcanoes != nil {
			volcanoes = in.volcanoes
		}
		sources["volcanoes"] = domain.VolcanoSourceReport{Count: len(volcanoes)}
	}

	co2 := float64(domain.DefaultCO2PPM)
	if in.climateErr != nil {
		a.warnSource("climate", in.climateErr)
		sources["climate"] = domain.SourceError{Error: in.climateErr.Error()}
	} else {
		co2 = in.climate.CO2
		sources["climate"] = in.climate
	}

	crustTemp := float64(domain.DefaultCrustTempK)
	if in.weatherErr != nil {
		a.warnSource("weather", in.weatherErr)
		sources["weather"] = domain.SourceError{Error: in.weatherErr.Error()}
	} else {
		crustTemp = in.weather.TemperatureK
		sources["weather"] = domain.SourceUpdated{Source: in.weather.Source, Updated: timestamp}
	}

	return domain.Snapshot{
		Timestamp: timestamp,
		Metrics: domain.Metrics{
			CoreLoad:         coreLoad,
			MantleBandwidth:  mantleBandwidth,
			CrustTemp:        crustTemp,
			SolarWindFlux:    solarWindFlux,
			LastSeismicEvent: seismicEvent,
			Volcanoes:        volcanoes,
			Solar:            solar,
			Atmosphere: domain.Atmosphere{
				CO2:         co2,
				TempAnomaly: 0,
			},
		},
		Meta: domain.Meta{Timestamp: timestamp, Sources: sources},
	}
}

func (a *Aggregator) warnSource(source string, err error) {
	a.logger.Warn("feed failed, substituting default",
		"source", source,
		"kind", string(upstream.KindOf(err)),
		"error", err,
	)
}
