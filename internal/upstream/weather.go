package upstream

import (
	"context"

	"github.com/couchcryptid/terra-telemetry/internal/domain"
)

const celsiusToKelvin = 273.15

// WeatherResponse is the Open-Meteo current-conditions payload, trimmed to
// the surface temperature.
type WeatherResponse struct {
	Current struct {
		Temperature2m *float64 `json:"temperature_2m"`
	} `json:"current"`
}

// FetchWeather retrieves the current surface temperature at the configured
// station.
func (c *Client) FetchWeather(ctx context.Context) (WeatherResponse, error) {
	var resp WeatherResponse
	if err := c.getJSON(ctx, "weather", c.urls.Weather, &resp); err != nil {
		return WeatherResponse{}, err
	}
	return resp, nil
}

// ExtractWeatherSample normalizes the reading to Kelvin. A missing or
// non-numeric reading counts as 0 °C-equivalent-zero, i.e. 0 K, before any
// downstream defaulting.
func ExtractWeatherSample(resp WeatherResponse) domain.WeatherSample {
	sample := domain.WeatherSample{Source: "OpenMeteo"}
	if resp.Current.Temperature2m != nil {
		sample.TemperatureC = *resp.Current.Temperature2m
		sample.TemperatureK = sample.TemperatureC + celsiusToKelvin
	}
	return sample
}
