// Package stream implements the per-connection push session: immediate
// cached snapshot, periodic refreshes through the cache layer, and
// heartbeats to keep intermediaries from timing the connection out.
package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/couchcryptid/terra-telemetry/internal/domain"
	"github.com/couchcryptid/terra-telemetry/internal/observability"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// SnapshotSource is the slice of the snapshot service a session needs.
// Payloads are pre-encoded so cached bytes reach the wire unmodified.
type SnapshotSource interface {
	// Latest serves through the freshness gate.
	Latest(ctx context.Context) (json.RawMessage, error)
	// Cached returns the cache content regardless of age, without fetching.
	Cached(ctx context.Context) (json.RawMessage, bool)
}

// Emitter delivers framed events to the client transport.
type Emitter interface {
	Emit(event string, data any) error
}

// StatusEvent is the payload of the "status" event sent on open.
type StatusEvent struct {
	Message    string `json:"message"`
	IntervalMs int64  `json:"intervalMs"`
}

// HeartbeatEvent is the payload of the periodic "heartbeat" event.
type HeartbeatEvent struct {
	Ts string `json:"ts"`
}

// ErrorEvent is the payload of the "error" event. The session stays open
// after emitting one.
type ErrorEvent struct {
	Message string `json:"message"`
}

// Session is one push-channel connection. Each session owns its two timers
// and its own cancellation; there is no cross-session shared state.
type Session struct {
	id        string
	source    SnapshotSource
	emitter   Emitter
	clock     clockwork.Clock
	interval  time.Duration
	keepalive time.Duration
	logger    *slog.Logger
	metrics   *observability.Metrics

	closeOnce sync.Once
	done      chan struct{}
}

// NewSession creates a session over the given transport emitter.
func NewSession(
	source SnapshotSource,
	emitter Emitter,
	clock clockwork.Clock,
	interval, keepalive time.Duration,
	logger *slog.Logger,
	metrics *observability.Metrics,
) *Session {
	id := uuid.NewString()
	return &Session{
		id:        id,
		source:    source,
		emitter:   emitter,
		clock:     clock,
		interval:  interval,
		keepalive: keepalive,
		logger:    logger.With("session_id", id),
		metrics:   metrics,
		done:      make(chan struct{}),
	}
}

// ID returns the session identifier used in logs.
func (s *Session) ID() string { return s.id }

// Run drives the session until the context is cancelled, Close is called,
// or the transport fails. Both tickers are stopped before Run returns, so
// the emitter is never written after release.
func (s *Session) Run(ctx context.Context) {
	s.metrics.StreamSessions.Inc()
	defer s.metrics.StreamSessions.Dec()

	refresh := s.clock.NewTicker(s.interval)
	defer refresh.Stop()
	heartbeat := s.clock.NewTicker(s.keepalive)
	defer heartbeat.Stop()

	s.logger.Debug("stream session opened", "interval", s.interval, "keepalive", s.keepalive)
	defer s.logger.Debug("stream session closed")

	// Fast first paint: whatever the cache holds, however old.
	if cached, ok := s.source.Cached(ctx); ok {
		if !s.emit("snapshot", cached) {
			return
		}
	}
	if !s.emit("status", StatusEvent{Message: "STREAM_ONLINE", IntervalMs: s.interval.Milliseconds()}) {
		return
	}
	if !s.pushSnapshot(ctx) {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-refresh.Chan():
			if !s.pushSnapshot(ctx) {
				return
			}
		case <-heartbeat.Chan():
			if !s.emit("heartbeat", HeartbeatEvent{Ts: domain.FormatTime(s.clock.Now())}) {
				return
			}
		}
	}
}

// Close cancels the session. Safe to call multiple times and from any
// goroutine; after the first call no further events are emitted.
func (s *Session) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// pushSnapshot serves one snapshot through the cache layer. Collection
// failure becomes an "error" event; the session stays open. Returns false
// when the session should stop.
func (s *Session) pushSnapshot(ctx context.Context) bool {
	payload, err := s.source.Latest(ctx)
	if err != nil {
		return s.emit("error", ErrorEvent{Message: err.Error()})
	}
	return s.emit("snapshot", payload)
}

// emit writes one event unless the session is closed. A transport error
// closes the session.
func (s *Session) emit(event string, data any) bool {
	select {
	case <-s.done:
		return false
	default:
	}

	if err := s.emitter.Emit(event, data); err != nil {
		s.logger.Debug("stream write failed, closing session", "event", event, "error", err)
		s.Close()
		return false
	}
	s.metrics.StreamEvents.WithLabelValues(event).Inc()
	return true
}
