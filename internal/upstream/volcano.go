package upstream

import (
	"context"

	"github.com/couchcryptid/terra-telemetry/internal/domain"
)

// VolcanoEntry is one elevated volcano from the USGS HANS feed. Identifiers
// and coordinates have shipped as both strings and numbers.
type VolcanoEntry struct {
	VNum      flexString `json:"vnum"`
	VName     string     `json:"v_name"`
	ColorCode string     `json:"color_code"`
	Lat       flexFloat  `json:"lat"`
	Lon       flexFloat  `json:"lon"`
}

// FetchVolcanoes retrieves the elevated-volcano list.
func (c *Client) FetchVolcanoes(ctx context.Context) ([]VolcanoEntry, error) {
	var entries []VolcanoEntry
	if err := c.getJSON(ctx, "volcanoes", c.urls.Volcanoes, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// ExtractVolcanoes keeps only ORANGE and RED alerts and projects each onto
// the globe shell. Lower alert levels are discarded.
func ExtractVolcanoes(entries []VolcanoEntry) []domain.Volcano {
	volcanoes := make([]domain.Volcano, 0, len(entries))
	for _, e := range entries {
		if e.ColorCode != "ORANGE" && e.ColorCode != "RED" {
			continue
		}
		lat := float64(e.Lat)
		lon := float64(e.Lon)
		volcanoes = append(volcanoes, domain.Volcano{
			ID:     string(e.VNum),
			Name:   e.VName,
			Status: e.ColorCode,
			Lat:    lat,
			Lon:    lon,
			Pos:    domain.GlobePosition(lat, lon),
		})
	}
	return volcanoes
}
