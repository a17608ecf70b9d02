package upstream

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/terra-telemetry/internal/observability"
)

func testClient(t *testing.T, urls URLs) *Client {
	t.Helper()
	return NewClient(5*time.Second, urls, slog.Default(), observability.NewMetricsForTesting())
}

func TestClientFetch(t *testing.T) {
	t.Run("decodes a healthy response", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte(`{"features":[{"id":"q1","properties":{"mag":4.2,"place":"somewhere","time":0}}]}`)) //nolint:errcheck
		}))
		defer srv.Close()

		c := testClient(t, URLs{Seismic: srv.URL})
		feed, err := c.FetchSeismic(context.Background())
		require.NoError(t, err)
		require.Len(t, feed.Features, 1)
		assert.Equal(t, "q1", feed.Features[0].ID)
	})

	t.Run("non-2xx is a fetch error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()

		c := testClient(t, URLs{KpIndex: srv.URL})
		_, err := c.FetchKpSeries(context.Background())
		require.Error(t, err)
		assert.Equal(t, KindFetch, KindOf(err))
	})

	t.Run("malformed body is a parse error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte(`{not json`)) //nolint:errcheck
		}))
		defer srv.Close()

		c := testClient(t, URLs{Volcanoes: srv.URL})
		_, err := c.FetchVolcanoes(context.Background())
		require.Error(t, err)
		assert.Equal(t, KindParse, KindOf(err))
	})

	t.Run("unreachable host is a fetch error", func(t *testing.T) {
		c := testClient(t, URLs{Weather: "http://127.0.0.1:1"})
		_, err := c.FetchWeather(context.Background())
		require.Error(t, err)
		assert.Equal(t, KindFetch, KindOf(err))
	})

	t.Run("solar packet fails when one sub-feed fails", func(t *testing.T) {
		good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte(`[]`)) //nolint:errcheck
		}))
		defer good.Close()
		bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer bad.Close()

		c := testClient(t, URLs{Xray: good.URL, SolarWind: good.URL, Proton: bad.URL})
		_, err := c.FetchSolarRaw(context.Background())
		require.Error(t, err)
	})

	t.Run("text fetch returns raw body", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte("2024,03,15,2024.20,421.3\n")) //nolint:errcheck
		}))
		defer srv.Close()

		c := testClient(t, URLs{CO2: srv.URL})
		body, err := c.FetchCO2Table(context.Background())
		require.NoError(t, err)
		assert.Contains(t, body, "421.3")
	})
}

func TestFlexFloat(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{`3.14`, 3.14},
		{`"3.14"`, 3.14},
		{`"  2 "`, 2},
		{`null`, 0},
		{`""`, 0},
		{`"not a number"`, 0},
	}
	for _, tt := range tests {
		var f flexFloat
		require.NoError(t, json.Unmarshal([]byte(tt.in), &f), "input %s", tt.in)
		assert.Equal(t, tt.want, float64(f), "input %s", tt.in)
	}
}

func TestFlexString(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`"332010"`, "332010"},
		{`332010`, "332010"},
		{`null`, ""},
	}
	for _, tt := range tests {
		var s flexString
		require.NoError(t, json.Unmarshal([]byte(tt.in), &s), "input %s", tt.in)
		assert.Equal(t, tt.want, string(s), "input %s", tt.in)
	}
}

func TestFloatAt(t *testing.T) {
	row := []any{"2026-08-29 10:00:00.000", "4.32", 389.1, nil}
	assert.Equal(t, 4.32, floatAt(row, 1))
	assert.Equal(t, 389.1, floatAt(row, 2))
	assert.Zero(t, floatAt(row, 0))
	assert.Zero(t, floatAt(row, 3))
	assert.Zero(t, floatAt(row, 9))
}
