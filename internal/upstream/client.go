// Package upstream implements the six feed clients and their normalizers.
//
// Each client issues one outbound HTTP call (the solar packet joins three),
// validates the response status, and decodes a typed raw payload. The
// Extract* functions are pure: same raw payload, same fragment. Failures are
// always a [FeedError]; callers never see a partial fragment.
package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/terra-telemetry/internal/observability"
)

// URLs holds the upstream endpoints, overridable for tests.
type URLs struct {
	Seismic   string
	KpIndex   string
	Xray      string
	SolarWind string
	Proton    string
	Volcanoes string
	CO2       string
	Weather   string
}

// DefaultURLs returns the production feed endpoints. The weather feed is
// pinned to the given station coordinates.
func DefaultURLs(weatherLat, weatherLon float64) URLs {
	return URLs{
		Seismic:   "https://earthquake.usgs.gov/earthquakes/feed/v1.0/summary/2.5_hour.geojson",
		KpIndex:   "https://services.swpc.noaa.gov/json/planetary_k_index_1m.json",
		Xray:      "https://services.swpc.noaa.gov/json/goes/primary/xrays-7-day.json",
		SolarWind: "https://services.swpc.noaa.gov/products/solar-wind/plasma-5-minute.json",
		Proton:    "https://services.swpc.noaa.gov/json/goes/primary/integral-protons-plot-1-day.json",
		Volcanoes: "https://volcanoes.usgs.gov/hans-public/api/volcano/getElevatedVolcanoes",
		CO2:       "https://gml.noaa.gov/web/data/co2/trends/co2_mlo_weekly.csv",
		Weather: fmt.Sprintf(
			"https://api.open-meteo.com/v1/forecast?latitude=%.2f&longitude=%.2f&current=temperature_2m",
			weatherLat, weatherLon,
		),
	}
}

// Client fetches the upstream telemetry feeds.
type Client struct {
	httpClient *http.Client
	urls       URLs
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewClient creates a feed client. The timeout applies per outbound call, so
// a full aggregation is bounded by the slowest single feed.
func NewClient(timeout time.Duration, urls URLs, logger *slog.Logger, metrics *observability.Metrics) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		urls:       urls,
		logger:     logger,
		metrics:    metrics,
	}
}

// getJSON fetches url and decodes the body into v, recording per-source
// metrics. source is the metrics label, not necessarily the snapshot slot.
func (c *Client) getJSON(ctx context.Context, source, url string, v any) error {
	body, err := c.get(ctx, source, url)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		c.logger.Debug("feed payload undecodable", "source", source, "error", err)
		c.metrics.FeedFetches.WithLabelValues(source, "parse_error").Inc()
		return parseErr(source, fmt.Errorf("decode response: %w", err))
	}
	c.metrics.FeedFetches.WithLabelValues(source, "success").Inc()
	return nil
}

// getText fetches url and returns the raw body.
func (c *Client) getText(ctx context.Context, source, url string) (string, error) {
	body, err := c.get(ctx, source, url)
	if err != nil {
		return "", err
	}
	c.metrics.FeedFetches.WithLabelValues(source, "success").Inc()
	return string(body), nil
}

func (c *Client) get(ctx context.Context, source, url string) ([]byte, error) {
	start := time.Now()
	defer func() {
		c.metrics.FeedFetchDuration.WithLabelValues(source).Observe(time.Since(start).Seconds())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		c.metrics.FeedFetches.WithLabelValues(source, "fetch_error").Inc()
		return nil, fetchErr(source, fmt.Errorf("create request: %w", err))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("feed request failed", "source", source, "error", err)
		c.metrics.FeedFetches.WithLabelValues(source, "fetch_error").Inc()
		return nil, fetchErr(source, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Debug("feed rejected request", "source", source, "status", resp.StatusCode)
		c.metrics.FeedFetches.WithLabelValues(source, "fetch_error").Inc()
		return nil, fetchErr(source, fmt.Errorf("status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.metrics.FeedFetches.WithLabelValues(source, "fetch_error").Inc()
		return nil, fetchErr(source, fmt.Errorf("read body: %w", err))
	}
	return body, nil
}

// flexFloat unmarshals a JSON number or numeric string, reading anything
// else as zero. Several NOAA feeds switch between the two encodings.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		*f = 0
		return nil
	}
	*f = flexFloat(v)
	return nil
}

// flexString unmarshals a JSON string or number as a string.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		*f = ""
		return nil
	}
	*f = flexString(strings.Trim(s, `"`))
	return nil
}

// floatAt reads row[i] as a float, tolerating strings, nulls, and short
// rows. Mirrors the permissive parsing the dashboard contract relies on.
func floatAt(row []any, i int) float64 {
	if i >= len(row) {
		return 0
	}
	switch v := row[i].(type) {
	case float64:
		return v
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

// stringAt reads row[i] as a string, tolerating missing entries.
func stringAt(row []any, i int) string {
	if i >= len(row) {
		return ""
	}
	if s, ok := row[i].(string); ok {
		return s
	}
	return ""
}
