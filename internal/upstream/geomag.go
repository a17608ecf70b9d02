package upstream

import (
	"context"

	"github.com/couchcryptid/terra-telemetry/internal/domain"
)

// KpEntry is one row of the NOAA planetary K-index series. The feed has
// shipped kp_index both as a number and as a string.
type KpEntry struct {
	TimeTag string    `json:"time_tag"`
	KpIndex flexFloat `json:"kp_index"`
}

// FetchKpSeries retrieves the 1-minute planetary K-index series.
func (c *Client) FetchKpSeries(ctx context.Context) ([]KpEntry, error) {
	var series []KpEntry
	if err := c.getJSON(ctx, "kp", c.urls.KpIndex, &series); err != nil {
		return nil, err
	}
	return series, nil
}

// ExtractKpReading normalizes the newest (last) entry of the series.
// An empty series reads as a quiet field: kp 0, load 0.
func ExtractKpReading(series []KpEntry) domain.KpReading {
	if len(series) == 0 {
		return domain.KpReading{}
	}
	latest := series[len(series)-1]
	kp := float64(latest.KpIndex)
	return domain.KpReading{
		Kp:        kp,
		Load:      domain.KpLoad(kp),
		Timestamp: latest.TimeTag,
	}
}
