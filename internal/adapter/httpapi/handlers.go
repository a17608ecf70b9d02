package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/terra-telemetry/internal/history"
	"github.com/couchcryptid/terra-telemetry/internal/observability"
	"github.com/couchcryptid/terra-telemetry/internal/stream"
	"github.com/couchcryptid/terra-telemetry/internal/upstream"
)

// SnapshotService is the slice of the snapshot layer the handlers need.
// Payloads are pre-encoded bytes so cache hits reach clients verbatim.
type SnapshotService interface {
	Latest(ctx context.Context) (json.RawMessage, error)
	Refresh(ctx context.Context) (json.RawMessage, error)
	Cached(ctx context.Context) (json.RawMessage, bool)
}

// HistoryQuerier answers history range queries. Nil when persistence is
// not configured.
type HistoryQuerier interface {
	Query(ctx context.Context, p history.Params) (history.Result, error)
}

// Handlers implements the /api endpoints.
type Handlers struct {
	snapshots SnapshotService
	history   HistoryQuerier
	feeds     *upstream.Client
	clock     clockwork.Clock

	streamInterval  time.Duration
	streamKeepalive time.Duration

	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewHandlers wires the handler set. history may be nil; the /api/history
// endpoint then reports persistence as unavailable.
func NewHandlers(
	snapshots SnapshotService,
	hist HistoryQuerier,
	feeds *upstream.Client,
	clock clockwork.Clock,
	streamInterval, streamKeepalive time.Duration,
	logger *slog.Logger,
	metrics *observability.Metrics,
) *Handlers {
	return &Handlers{
		snapshots:       snapshots,
		history:         hist,
		feeds:           feeds,
		clock:           clock,
		streamInterval:  streamInterval,
		streamKeepalive: streamKeepalive,
		logger:          logger,
		metrics:         metrics,
	}
}

// handleSnapshot serves the composite snapshot through the freshness gate.
// ?force=1 bypasses the cache and triggers a fresh aggregation. The service
// payload is written as-is, so cache-served responses are byte-identical to
// the aggregating response within one freshness window.
func (h *Handlers) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	var (
		payload json.RawMessage
		err     error
	)
	if r.URL.Query().Get("force") == "1" {
		payload, err = h.snapshots.Refresh(r.Context())
	} else {
		payload, err = h.snapshots.Latest(r.Context())
	}
	if err != nil {
		h.logger.Error("snapshot request failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(payload) //nolint:errcheck // best-effort response write
}

// handleStream upgrades the request to a server-sent-events push channel.
func (h *Handlers) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache, no-transform")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sess := stream.NewSession(
		h.snapshots,
		&sseEmitter{w: w, flusher: flusher},
		h.clock,
		h.streamInterval,
		h.streamKeepalive,
		h.logger,
		h.metrics,
	)
	defer sess.Close()

	h.logger.Info("stream session opened", "session_id", sess.ID(), "remote", r.RemoteAddr)
	sess.Run(r.Context())
	h.logger.Info("stream session closed", "session_id", sess.ID())
}

// sseEmitter frames events onto an HTTP response and flushes after each
// write. Safe for the single-goroutine session loop; the mutex guards
// against a Close racing the final write.
type sseEmitter struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
}

func (e *sseEmitter) Emit(event string, data any) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.w.Write(stream.FormatMessage(event, data)); err != nil {
		return err
	}
	e.flusher.Flush()
	return nil
}

// handleSeismic passes the upstream earthquake feed through unmodified.
func (h *Handlers) handleSeismic(w http.ResponseWriter, r *http.Request) {
	feed, err := h.feeds.FetchSeismic(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, feed)
}

// solarActivityResponse groups the three solar feeds the way the dashboard
// widgets consume them.
type solarActivityResponse struct {
	Xray struct {
		Flux  float64 `json:"flux"`
		Class string  `json:"class"`
		Time  string  `json:"time,omitempty"`
	} `json:"xray"`
	SolarWind struct {
		Speed       float64 `json:"speed"`
		Density     float64 `json:"density"`
		Temperature float64 `json:"temperature"`
		Time        string  `json:"time,omitempty"`
	} `json:"solarWind"`
	Proton struct {
		Flux       float64 `json:"flux"`
		StormLevel string  `json:"stormLevel"`
	} `json:"proton"`
}

func (h *Handlers) handleSolarActivity(w http.ResponseWriter, r *http.Request) {
	raw, err := h.feeds.FetchSolarRaw(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	packet := upstream.ExtractSolarPacket(raw)

	var resp solarActivityResponse
	resp.Xray.Flux = packet.Solar.Flux
	resp.Xray.Class = packet.Solar.Class
	resp.SolarWind.Speed = packet.Solar.WindSpeed
	resp.SolarWind.Density = packet.Solar.Density
	resp.SolarWind.Temperature = packet.Solar.Temperature
	if ts := packet.Solar.Timestamps; ts != nil {
		resp.Xray.Time = ts.Xray
		resp.SolarWind.Time = ts.Wind
	}
	resp.Proton.Flux = packet.ProtonFlux
	resp.Proton.StormLevel = packet.Solar.ProtonLevel

	w.Header().Set("Cache-Control", "public, max-age=60")
	writeJSON(w, http.StatusOK, resp)
}

// handleSolarK serves the normalized planetary K-index reading.
func (h *Handlers) handleSolarK(w http.ResponseWriter, r *http.Request) {
	series, err := h.feeds.FetchKpSeries(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, upstream.ExtractKpReading(series))
}

// handleSolarWind passes the raw RTSW plasma table through unmodified.
func (h *Handlers) handleSolarWind(w http.ResponseWriter, r *http.Request) {
	table, err := h.feeds.FetchPlasmaTable(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, table)
}

// volcanoSummary is the /api/volcanoes row shape: the globe position is a
// rendering concern and stays out of the list endpoint.
type volcanoSummary struct {
	Name   string  `json:"name"`
	Lat    float64 `json:"lat"`
	Lon    float64 `json:"lon"`
	Status string  `json:"status"`
	ID     string  `json:"id"`
}

func (h *Handlers) handleVolcanoes(w http.ResponseWriter, r *http.Request) {
	entries, err := h.feeds.FetchVolcanoes(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	volcanoes := upstream.ExtractVolcanoes(entries)
	summaries := make([]volcanoSummary, 0, len(volcanoes))
	for _, v := range volcanoes {
		summaries = append(summaries, volcanoSummary{
			Name:   v.Name,
			Lat:    v.Lat,
			Lon:    v.Lon,
			Status: v.Status,
			ID:     v.ID,
		})
	}

	w.Header().Set("Cache-Control", "public, max-age=900")
	writeJSON(w, http.StatusOK, summaries)
}

// handleClimate serves the latest Mauna Loa CO2 reading.
func (h *Handlers) handleClimate(w http.ResponseWriter, r *http.Request) {
	table, err := h.feeds.FetchCO2Table(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	reading, err := upstream.ExtractLatestCO2(table)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Cache-Control", "public, max-age=86400")
	writeJSON(w, http.StatusOK, reading)
}

// handleWeather passes the upstream forecast response through unmodified.
func (h *Handlers) handleWeather(w http.ResponseWriter, r *http.Request) {
	resp, err := h.feeds.FetchWeather(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleHistory answers range queries over persisted snapshots.
func (h *Handlers) handleHistory(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeError(w, http.StatusServiceUnavailable, "Database not available")
		return
	}

	params := history.DefaultParams(h.clock.Now())
	q := r.URL.Query()
	if v := q.Get("start"); v != "" {
		params.Start = v
	}
	if v := q.Get("end"); v != "" {
		params.End = v
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			params.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			params.Offset = n
		}
	}
	params.Aggregate = q.Get("aggregate")
	params.Type = q.Get("type")

	result, err := h.history.Query(r.Context(), params)
	if err != nil {
		h.logger.Error("history query failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}
