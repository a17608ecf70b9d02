package upstream

import (
	"context"
	"time"

	"github.com/couchcryptid/terra-telemetry/internal/domain"
)

// SeismicFeed is the USGS GeoJSON earthquake summary, trimmed to the fields
// the normalizer reads. Features arrive newest-first.
type SeismicFeed struct {
	Features []SeismicFeature `json:"features"`
}

// SeismicFeature is one earthquake in the feed.
type SeismicFeature struct {
	ID       string `json:"id"`
	Geometry struct {
		Coordinates []float64 `json:"coordinates"` // [lon, lat, depth]
	} `json:"geometry"`
	Properties struct {
		Mag   float64 `json:"mag"`
		Place string  `json:"place"`
		Time  int64   `json:"time"` // epoch milliseconds
	} `json:"properties"`
}

// FetchSeismic retrieves the USGS magnitude 2.5+ hourly summary.
func (c *Client) FetchSeismic(ctx context.Context) (SeismicFeed, error) {
	var feed SeismicFeed
	if err := c.getJSON(ctx, "seismic", c.urls.Seismic, &feed); err != nil {
		return SeismicFeed{}, err
	}
	return feed, nil
}

// ExtractLatestSeismicEvent normalizes the first (newest) feature into a
// seismic fragment. Returns nil when the feed holds no events.
func ExtractLatestSeismicEvent(feed SeismicFeed) *domain.SeismicEvent {
	if len(feed.Features) == 0 {
		return nil
	}
	latest := feed.Features[0]

	var lon, lat float64
	if len(latest.Geometry.Coordinates) > 0 {
		lon = latest.Geometry.Coordinates[0]
	}
	if len(latest.Geometry.Coordinates) > 1 {
		lat = latest.Geometry.Coordinates[1]
	}

	label := latest.Properties.Place
	if label == "" {
		label = domain.UnknownPlaceLabel
	}

	var timestamp string
	if latest.Properties.Time != 0 {
		timestamp = domain.FormatTime(time.UnixMilli(latest.Properties.Time))
	}

	return &domain.SeismicEvent{
		ID:        latest.ID,
		Label:     label,
		Magnitude: latest.Properties.Mag,
		Pos:       domain.GlobePosition(lat, lon),
		Intensity: domain.SeismicIntensity(latest.Properties.Mag),
		Timestamp: timestamp,
	}
}
