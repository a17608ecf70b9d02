package upstream

import (
	"context"

	"github.com/couchcryptid/terra-telemetry/internal/domain"
	"golang.org/x/sync/errgroup"
)

// protonPreferredChannel is the integral proton channel used for storm
// classification when present.
const protonPreferredChannel = ">=10 MeV"

// XrayEntry is one GOES X-ray flux reading.
type XrayEntry struct {
	TimeTag string    `json:"time_tag"`
	Flux    flexFloat `json:"flux"`
}

// ProtonEntry is one GOES integral proton flux reading. The series mixes
// several energy channels.
type ProtonEntry struct {
	TimeTag string    `json:"time_tag"`
	Flux    flexFloat `json:"flux"`
	Energy  string    `json:"energy"`
}

// PlasmaTable is the RTSW solar-wind table: rows of
// [time_tag, density, speed, temperature], header row first, values encoded
// as strings with occasional nulls.
type PlasmaTable [][]any

// SolarRaw bundles the three raw feeds behind the solar fragment.
type SolarRaw struct {
	Xray   []XrayEntry
	Wind   PlasmaTable
	Proton []ProtonEntry
}

// FetchSolarRaw retrieves the X-ray, solar-wind, and proton feeds
// concurrently. Any of the three failing fails the whole packet; the solar
// fragment is never assembled from partial data.
func (c *Client) FetchSolarRaw(ctx context.Context) (SolarRaw, error) {
	var raw SolarRaw

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.getJSON(gctx, "xray", c.urls.Xray, &raw.Xray)
	})
	g.Go(func() error {
		return c.getJSON(gctx, "solar_wind", c.urls.SolarWind, &raw.Wind)
	})
	g.Go(func() error {
		return c.getJSON(gctx, "proton", c.urls.Proton, &raw.Proton)
	})
	if err := g.Wait(); err != nil {
		return SolarRaw{}, err
	}
	return raw, nil
}

// FetchPlasmaTable retrieves only the RTSW plasma table, for the raw
// passthrough endpoint.
func (c *Client) FetchPlasmaTable(ctx context.Context) (PlasmaTable, error) {
	var table PlasmaTable
	if err := c.getJSON(ctx, "solar_wind", c.urls.SolarWind, &table); err != nil {
		return nil, err
	}
	return table, nil
}

// ExtractSolarPacket normalizes the three raw series into the solar
// fragment. Each series contributes its newest (last) entry; the proton
// series prefers the >=10 MeV channel and falls back to the last entry of
// the full series when that channel is absent.
func ExtractSolarPacket(raw SolarRaw) domain.SolarPacket {
	var xrayFlux float64
	var xrayTime string
	if len(raw.Xray) > 0 {
		latest := raw.Xray[len(raw.Xray)-1]
		xrayFlux = float64(latest.Flux)
		xrayTime = latest.TimeTag
	}

	var windSpeed, windDensity, windTemp float64
	var windTime string
	if len(raw.Wind) > 0 {
		latest := raw.Wind[len(raw.Wind)-1]
		windTime = stringAt(latest, 0)
		windDensity = floatAt(latest, 1)
		windSpeed = floatAt(latest, 2)
		windTemp = floatAt(latest, 3)
	}

	protonFlux := selectProtonFlux(raw.Proton)

	return domain.SolarPacket{
		Solar: domain.SolarActivity{
			Flux:        xrayFlux,
			Class:       domain.FlareClass(xrayFlux),
			WindSpeed:   windSpeed,
			ProtonLevel: domain.StormLevel(protonFlux),
			Timestamps:  &domain.SolarTimestamps{Xray: xrayTime, Wind: windTime},
			Density:     windDensity,
			Temperature: windTemp,
		},
		MantleBandwidth: windSpeed,
		SolarWindFlux:   windSpeed,
		ProtonFlux:      protonFlux,
	}
}

func selectProtonFlux(series []ProtonEntry) float64 {
	if len(series) == 0 {
		return 0
	}
	var lastPreferred *ProtonEntry
	for i := range series {
		if series[i].Energy == protonPreferredChannel {
			lastPreferred = &series[i]
		}
	}
	if lastPreferred != nil {
		return float64(lastPreferred.Flux)
	}
	return float64(series[len(series)-1].Flux)
}
