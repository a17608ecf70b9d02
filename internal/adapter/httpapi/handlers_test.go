package httpapi

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/terra-telemetry/internal/domain"
	"github.com/couchcryptid/terra-telemetry/internal/history"
	"github.com/couchcryptid/terra-telemetry/internal/observability"
	"github.com/couchcryptid/terra-telemetry/internal/upstream"
)

type stubSnapshots struct {
	latest     json.RawMessage
	latestErr  error
	refreshHit int
	latestHit  int
	cached     json.RawMessage
	hasCached  bool
	readyErr   error
}

func (s *stubSnapshots) Latest(context.Context) (json.RawMessage, error) {
	s.latestHit++
	return s.latest, s.latestErr
}

func (s *stubSnapshots) Refresh(context.Context) (json.RawMessage, error) {
	s.refreshHit++
	return s.latest, s.latestErr
}

func (s *stubSnapshots) Cached(context.Context) (json.RawMessage, bool) {
	return s.cached, s.hasCached
}

func (s *stubSnapshots) CheckReadiness(context.Context) error { return s.readyErr }

type stubHistory struct {
	result history.Result
	err    error
	last   history.Params
}

func (s *stubHistory) Query(_ context.Context, p history.Params) (history.Result, error) {
	s.last = p
	return s.result, s.err
}

// upstreamFixture serves canned upstream payloads behind one test server.
func upstreamFixture(t *testing.T, payloads map[string]string) upstream.URLs {
	t.Helper()
	mux := http.NewServeMux()
	for path, body := range payloads {
		mux.HandleFunc(path, func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte(body)) //nolint:errcheck
		})
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return upstream.URLs{
		Seismic:   srv.URL + "/seismic",
		KpIndex:   srv.URL + "/kp",
		Xray:      srv.URL + "/xray",
		SolarWind: srv.URL + "/wind",
		Proton:    srv.URL + "/proton",
		Volcanoes: srv.URL + "/volcanoes",
		CO2:       srv.URL + "/co2",
		Weather:   srv.URL + "/weather",
	}
}

func newTestServer(t *testing.T, snapshots *stubSnapshots, hist HistoryQuerier, urls upstream.URLs) *Server {
	t.Helper()
	logger := slog.Default()
	metrics := observability.NewMetricsForTesting()
	feeds := upstream.NewClient(5*time.Second, urls, logger, metrics)
	clock := clockwork.NewFakeClockAt(time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC))
	h := NewHandlers(snapshots, hist, feeds, clock, time.Minute, 15*time.Second, logger, metrics)
	return NewServer(":0", h, snapshots, logger)
}

func doRequest(t *testing.T, srv *Server, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestSnapshotEndpoint(t *testing.T) {
	t.Run("serves through the freshness gate", func(t *testing.T) {
		snapshots := &stubSnapshots{latest: json.RawMessage(`{"timestamp":"2026-08-29T10:00:00.000Z"}`)}
		srv := newTestServer(t, snapshots, nil, upstream.URLs{})

		rec := doRequest(t, srv, http.MethodGet, "/api/snapshot")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, 1, snapshots.latestHit)
		assert.Zero(t, snapshots.refreshHit)

		var snap domain.Snapshot
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
		assert.Equal(t, "2026-08-29T10:00:00.000Z", snap.Timestamp)
	})

	t.Run("writes the service payload verbatim", func(t *testing.T) {
		// Keys ordered so any decode-and-reencode round trip would reorder
		// them and break byte identity with the cached payload.
		payload := json.RawMessage(`{"timestamp":"2026-08-29T10:00:00.000Z","meta":{"sources":{"weather":{"updated":"x","source":"OpenMeteo"}}}}`)
		snapshots := &stubSnapshots{latest: payload}
		srv := newTestServer(t, snapshots, nil, upstream.URLs{})

		rec := doRequest(t, srv, http.MethodGet, "/api/snapshot")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		assert.Equal(t, []byte(payload), rec.Body.Bytes())
	})

	t.Run("force bypasses the cache", func(t *testing.T) {
		snapshots := &stubSnapshots{}
		srv := newTestServer(t, snapshots, nil, upstream.URLs{})

		rec := doRequest(t, srv, http.MethodGet, "/api/snapshot?force=1")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 1, snapshots.refreshHit)
		assert.Zero(t, snapshots.latestHit)
	})

	t.Run("failure is a 500 with an error body", func(t *testing.T) {
		snapshots := &stubSnapshots{latestErr: errors.New("aggregation interrupted")}
		srv := newTestServer(t, snapshots, nil, upstream.URLs{})

		rec := doRequest(t, srv, http.MethodGet, "/api/snapshot")
		assert.Equal(t, http.StatusInternalServerError, rec.Code)

		var body map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "aggregation interrupted", body["error"])
	})
}

func TestHistoryEndpoint(t *testing.T) {
	t.Run("503 without persistence", func(t *testing.T) {
		srv := newTestServer(t, &stubSnapshots{}, nil, upstream.URLs{})

		rec := doRequest(t, srv, http.MethodGet, "/api/history")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

		var body map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "Database not available", body["error"])
	})

	t.Run("query parameters override the defaults", func(t *testing.T) {
		hist := &stubHistory{result: history.Result{Data: []history.RawEntry{}}}
		srv := newTestServer(t, &stubSnapshots{}, hist, upstream.URLs{})

		rec := doRequest(t, srv, http.MethodGet,
			"/api/history?start=2026-08-01T00:00:00.000Z&end=2026-08-29T00:00:00.000Z&limit=10&offset=20&aggregate=daily&type=solar")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "2026-08-01T00:00:00.000Z", hist.last.Start)
		assert.Equal(t, "2026-08-29T00:00:00.000Z", hist.last.End)
		assert.Equal(t, 10, hist.last.Limit)
		assert.Equal(t, 20, hist.last.Offset)
		assert.Equal(t, "daily", hist.last.Aggregate)
		assert.Equal(t, "solar", hist.last.Type)
	})

	t.Run("defaults cover the last seven days", func(t *testing.T) {
		hist := &stubHistory{}
		srv := newTestServer(t, &stubSnapshots{}, hist, upstream.URLs{})

		doRequest(t, srv, http.MethodGet, "/api/history")
		assert.Equal(t, "2026-08-22T10:00:00.000Z", hist.last.Start)
		assert.Equal(t, "2026-08-29T10:00:00.000Z", hist.last.End)
		assert.Equal(t, 100, hist.last.Limit)
	})

	t.Run("engine failure is a 500", func(t *testing.T) {
		hist := &stubHistory{err: errors.New("query failed")}
		srv := newTestServer(t, &stubSnapshots{}, hist, upstream.URLs{})

		rec := doRequest(t, srv, http.MethodGet, "/api/history")
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestPassthroughEndpoints(t *testing.T) {
	urls := upstreamFixture(t, map[string]string{
		"/seismic":   `{"features":[{"id":"q1","geometry":{"coordinates":[-155.58,19.54]},"properties":{"mag":4.2,"place":"Hawaii","time":1787998200000}}]}`,
		"/kp":        `[{"time_tag":"2026-08-29T10:00:00","kp_index":4.5}]`,
		"/xray":      `[{"time_tag":"2026-08-29T10:00:00Z","flux":5e-6}]`,
		"/wind":      `[["time_tag","density","speed","temperature"],["2026-08-29 10:00:00.000","4.3","410.2","99000"]]`,
		"/proton":    `[{"time_tag":"2026-08-29T10:00:00Z","flux":3,"energy":">=10 MeV"}]`,
		"/volcanoes": `[{"vnum":"332010","v_name":"Kilauea","color_code":"ORANGE","lat":19.42,"lon":-155.29},{"vnum":"1","v_name":"Quiet","color_code":"GREEN","lat":0,"lon":0}]`,
		"/co2":       "2024,03,15,2024.20,421.3\n",
		"/weather":   `{"current":{"temperature_2m":21.4}}`,
	})
	srv := newTestServer(t, &stubSnapshots{}, nil, urls)

	t.Run("seismic passes the feed through", func(t *testing.T) {
		rec := doRequest(t, srv, http.MethodGet, "/api/seismic")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"q1"`)
	})

	t.Run("solar-k returns the normalized reading", func(t *testing.T) {
		rec := doRequest(t, srv, http.MethodGet, "/api/solar-k")
		assert.Equal(t, http.StatusOK, rec.Code)

		var reading domain.KpReading
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reading))
		assert.Equal(t, 4.5, reading.Kp)
	})

	t.Run("solar-activity composes the three feeds", func(t *testing.T) {
		rec := doRequest(t, srv, http.MethodGet, "/api/solar-activity")
		assert.Equal(t, http.StatusOK, rec.Code)

		var resp solarActivityResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, 5e-6, resp.Xray.Flux)
		assert.Equal(t, "C", resp.Xray.Class)
		assert.Equal(t, 410.2, resp.SolarWind.Speed)
		assert.Equal(t, 3.0, resp.Proton.Flux)
		assert.Equal(t, "None", resp.Proton.StormLevel)
	})

	t.Run("solar-wind returns the raw table", func(t *testing.T) {
		rec := doRequest(t, srv, http.MethodGet, "/api/solar-wind")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, strings.HasPrefix(strings.TrimSpace(rec.Body.String()), `[["time_tag"`))
	})

	t.Run("volcanoes keeps elevated alerts without positions", func(t *testing.T) {
		rec := doRequest(t, srv, http.MethodGet, "/api/volcanoes")
		assert.Equal(t, http.StatusOK, rec.Code)

		var rows []volcanoSummary
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
		require.Len(t, rows, 1)
		assert.Equal(t, "Kilauea", rows[0].Name)
		assert.NotContains(t, rec.Body.String(), "pos")
	})

	t.Run("climate returns the latest reading", func(t *testing.T) {
		rec := doRequest(t, srv, http.MethodGet, "/api/climate")
		assert.Equal(t, http.StatusOK, rec.Code)

		var reading domain.CO2Reading
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reading))
		assert.Equal(t, 421.3, reading.CO2)
		assert.Equal(t, "2024-03-15", reading.Date)
	})

	t.Run("weather passes the raw response through", func(t *testing.T) {
		rec := doRequest(t, srv, http.MethodGet, "/api/weather")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "temperature_2m")
	})

	t.Run("upstream failure is a 500 with an error body", func(t *testing.T) {
		down := newTestServer(t, &stubSnapshots{}, nil, upstream.URLs{Seismic: "http://127.0.0.1:1"})
		rec := doRequest(t, down, http.MethodGet, "/api/seismic")
		assert.Equal(t, http.StatusInternalServerError, rec.Code)

		var body map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.NotEmpty(t, body["error"])
	})
}

func TestCORS(t *testing.T) {
	srv := newTestServer(t, &stubSnapshots{}, nil, upstream.URLs{})

	t.Run("every api response carries the header", func(t *testing.T) {
		for _, target := range []string{"/api/snapshot", "/api/history", "/api/solar-k"} {
			rec := doRequest(t, srv, http.MethodGet, target)
			assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"), "target %s", target)
		}
	})

	t.Run("preflight is short-circuited", func(t *testing.T) {
		rec := doRequest(t, srv, http.MethodOptions, "/api/snapshot")
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "GET")
	})
}

func TestHealthAndReadiness(t *testing.T) {
	t.Run("healthz", func(t *testing.T) {
		srv := newTestServer(t, &stubSnapshots{}, nil, upstream.URLs{})
		rec := doRequest(t, srv, http.MethodGet, "/healthz")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "healthy")
	})

	t.Run("readyz reflects the snapshot service", func(t *testing.T) {
		notReady := &stubSnapshots{readyErr: errors.New("no snapshot served yet")}
		srv := newTestServer(t, notReady, nil, upstream.URLs{})
		rec := doRequest(t, srv, http.MethodGet, "/readyz")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

		srv = newTestServer(t, &stubSnapshots{}, nil, upstream.URLs{})
		rec = doRequest(t, srv, http.MethodGet, "/readyz")
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestStreamEndpoint(t *testing.T) {
	snapshots := &stubSnapshots{
		latest:    json.RawMessage(`{"timestamp":"2026-08-29T10:00:00.000Z"}`),
		cached:    json.RawMessage(`{"timestamp":"2026-08-29T09:58:00.000Z"}`),
		hasCached: true,
	}
	srv := newTestServer(t, snapshots, nil, upstream.URLs{})

	ts := httptest.NewServer(srv)
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/stream", nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	assert.Equal(t, "no-cache, no-transform", resp.Header.Get("Cache-Control"))

	// Opening sequence: cached snapshot, status, fresh snapshot.
	reader := bufio.NewReader(resp.Body)
	readFrame := func() string {
		var frame strings.Builder
		for {
			line, err := reader.ReadString('\n')
			require.NoError(t, err)
			frame.WriteString(line)
			if line == "\n" {
				return frame.String()
			}
		}
	}

	first := readFrame()
	assert.True(t, strings.HasPrefix(first, "event: snapshot\ndata: "), "got %q", first)
	assert.Contains(t, first, "09:58:00")

	second := readFrame()
	assert.True(t, strings.HasPrefix(second, "event: status\ndata: "), "got %q", second)
	assert.Contains(t, second, "STREAM_ONLINE")
	assert.Contains(t, second, `"intervalMs":60000`)

	third := readFrame()
	assert.Contains(t, third, "10:00:00")

	cancel()
}
