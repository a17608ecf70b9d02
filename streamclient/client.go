// Package streamclient consumes the telemetry push channel. It keeps a
// subscriber supplied with snapshots even when the stream endpoint is
// unavailable: on a connect failure or mid-stream error it falls back to
// polling the snapshot endpoint and periodically retries the stream,
// dropping back to push delivery once the stream is reestablished.
package streamclient

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

const (
	streamPath   = "/api/stream"
	snapshotPath = "/api/snapshot"

	defaultPollInterval = 60 * time.Second
	defaultRetryDelay   = 10 * time.Second
)

// Handler receives each snapshot payload, from the stream or from a
// fallback poll. Payloads are raw JSON so consumers choose their own
// decoding depth.
type Handler func(snapshot json.RawMessage)

// Option configures a Subscriber.
type Option func(*Subscriber)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Subscriber) { s.httpClient = c }
}

// WithClock replaces the wall clock, for tests.
func WithClock(clock clockwork.Clock) Option {
	return func(s *Subscriber) { s.clock = clock }
}

// WithLogger replaces the default logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Subscriber) { s.logger = logger }
}

// WithPollInterval sets the fallback polling cadence.
func WithPollInterval(d time.Duration) Option {
	return func(s *Subscriber) { s.pollInterval = d }
}

// WithRetryDelay sets the pause before each stream reconnect attempt.
func WithRetryDelay(d time.Duration) Option {
	return func(s *Subscriber) { s.retryDelay = d }
}

// Subscriber maintains a snapshot feed from a telemetry server.
type Subscriber struct {
	baseURL    string
	handler    Handler
	httpClient *http.Client
	clock      clockwork.Clock
	logger     *slog.Logger

	pollInterval time.Duration
	retryDelay   time.Duration

	closeOnce sync.Once
	done      chan struct{}
}

// New creates a subscriber for the server at baseURL. The handler is
// invoked from the Run goroutine, one payload at a time.
func New(baseURL string, handler Handler, opts ...Option) *Subscriber {
	s := &Subscriber{
		baseURL:      strings.TrimRight(baseURL, "/"),
		handler:      handler,
		httpClient:   &http.Client{},
		clock:        clockwork.NewRealClock(),
		logger:       slog.Default(),
		pollInterval: defaultPollInterval,
		retryDelay:   defaultRetryDelay,
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close stops the subscriber. Safe to call more than once and concurrently
// with Run.
func (s *Subscriber) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// Run drives the subscription until the context is cancelled or Close is
// called. It blocks; callers typically run it in its own goroutine.
func (s *Subscriber) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	// First paint does not wait for the stream.
	s.pollOnce(ctx)

	for {
		_, err := s.consumeStream(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Warn("stream disconnected, falling back to polling", "error", err)
		if err := s.pollWhileDown(ctx); err != nil {
			return err
		}
	}
}

// pollWhileDown serves snapshots at the poll cadence while the stream is
// down: one immediate poll when the fallback engages, then a single poll
// ticker that survives reconnect attempts, so failed retries never inflate
// the poll rate. Returns nil once push delivery was reestablished and has
// ended again, or the context error on cancellation.
func (s *Subscriber) pollWhileDown(ctx context.Context) error {
	s.pollOnce(ctx)

	poll := s.clock.NewTicker(s.pollInterval)
	defer poll.Stop()
	retry := s.clock.NewTimer(s.retryDelay)
	defer retry.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-poll.Chan():
			s.pollOnce(ctx)
		case <-retry.Chan():
			connected, err := s.consumeStream(ctx)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if connected {
				// The stream came up and has since dropped again.
				return nil
			}
			s.logger.Warn("stream reconnect failed", "error", err)
			retry.Reset(s.retryDelay)
		}
	}
}

func (s *Subscriber) pollOnce(ctx context.Context) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+snapshotPath, nil)
	if err != nil {
		s.logger.Error("snapshot request build failed", "error", err)
		return
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.logger.Warn("snapshot poll failed", "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		s.logger.Warn("snapshot poll rejected", "status", resp.StatusCode)
		return
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		s.logger.Warn("snapshot poll read failed", "error", err)
		return
	}
	if !json.Valid(body) {
		s.logger.Warn("snapshot poll returned invalid payload")
		return
	}
	s.handler(body)
}

// consumeStream holds one stream connection open and dispatches snapshot
// events until the connection or context ends. The boolean reports whether
// the connection was established at all, distinguishing a dropped stream
// from a failed connect.
func (s *Subscriber) consumeStream(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+streamPath, nil)
	if err != nil {
		return false, fmt.Errorf("build stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("connect stream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("stream rejected with status %d", resp.StatusCode)
	}

	s.logger.Info("stream connected")
	return true, s.readEvents(resp.Body)
}

// readEvents parses the event-stream wire format: "event:" and "data:"
// lines accumulate until a blank line dispatches the pending event.
func (s *Subscriber) readEvents(r io.Reader) error {
	var (
		event   string
		data    bytes.Buffer
		scanner = bufio.NewScanner(r)
	)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			s.dispatch(event, data.Bytes())
			event = ""
			data.Reset()
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read stream: %w", err)
	}
	return fmt.Errorf("stream closed by server")
}

func (s *Subscriber) dispatch(event string, data []byte) {
	switch event {
	case "snapshot":
		if !json.Valid(data) {
			s.logger.Warn("stream snapshot payload invalid")
			return
		}
		payload := make(json.RawMessage, len(data))
		copy(payload, data)
		s.handler(payload)
	case "status":
		s.logger.Info("stream status", "data", string(data))
	case "error":
		s.logger.Warn("stream error event", "data", string(data))
	case "heartbeat", "":
		// keepalive only
	default:
		s.logger.Debug("unhandled stream event", "event", event)
	}
}
