package upstream

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/couchcryptid/terra-telemetry/internal/domain"
)

// co2FloorPPM guards against sentinel and missing-data rows in the CSV
// (the file uses negative fill values for gaps); no real weekly average has
// been below 300 ppm since the record began.
const co2FloorPPM = 300

// FetchCO2Table retrieves the Mauna Loa weekly CO2 CSV as raw text.
func (c *Client) FetchCO2Table(ctx context.Context) (string, error) {
	return c.getText(ctx, "climate", c.urls.CO2)
}

// ExtractLatestCO2 scans the line-oriented table from the last line
// backward, skipping comments and headers, and returns the first row with at
// least five fields and a plausible numeric average.
func ExtractLatestCO2(table string) (domain.CO2Reading, error) {
	lines := strings.Split(table, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "year") {
			continue
		}
		fields := strings.Split(line, ",")
		if len(fields) < 5 {
			continue
		}
		for j := range fields {
			fields[j] = strings.TrimSpace(fields[j])
		}
		avg, err := strconv.ParseFloat(fields[4], 64)
		if err != nil || avg <= co2FloorPPM {
			continue
		}
		return domain.CO2Reading{
			CO2:    avg,
			Date:   fmt.Sprintf("%s-%s-%s", fields[0], fields[1], fields[2]),
			Source: "NOAA Mauna Loa",
		}, nil
	}
	return domain.CO2Reading{}, parseErr("climate", errors.New("unable to parse CO2 data"))
}
