package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Mauna Loa Observatory, matching the climate feed's reference station.
const (
	defaultWeatherLat = 19.54
	defaultWeatherLon = -155.58
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// DatabaseURL is the postgres DSN for the history/cache store.
	// Empty disables persistence: snapshots are aggregated on demand and
	// the history endpoint answers 503.
	DatabaseURL string

	FeedTimeout     time.Duration
	FreshnessWindow time.Duration
	StreamInterval  time.Duration
	StreamKeepalive time.Duration

	// Weather station coordinates for the Open-Meteo feed.
	WeatherLat float64
	WeatherLon float64

	// Optional Kafka snapshot publisher (enabled when brokers are set).
	KafkaBrokers       []string
	KafkaSnapshotTopic string
	KafkaEnabled       bool
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := parseDuration("SHUTDOWN_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	feedTimeout, err := parseDuration("FEED_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	freshness, err := parseDuration("FRESHNESS_WINDOW", "60s")
	if err != nil {
		return nil, err
	}

	// Stream cadences are configured in milliseconds; the names are part of
	// the deployment contract shared with the dashboard.
	streamInterval, err := parseMillis("STREAM_INTERVAL_MS", 60000)
	if err != nil {
		return nil, err
	}
	streamKeepalive, err := parseMillis("STREAM_KEEPALIVE_MS", 15000)
	if err != nil {
		return nil, err
	}

	weatherLat, err := parseFloat("WEATHER_LAT", defaultWeatherLat)
	if err != nil {
		return nil, err
	}
	weatherLon, err := parseFloat("WEATHER_LON", defaultWeatherLon)
	if err != nil {
		return nil, err
	}

	brokers := parseBrokers(os.Getenv("KAFKA_BROKERS"))
	kafkaEnabled := len(brokers) > 0
	if v := os.Getenv("KAFKA_ENABLED"); v != "" {
		kafkaEnabled = v == "true"
	}

	cfg := &Config{
		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		FeedTimeout:     feedTimeout,
		FreshnessWindow: freshness,
		StreamInterval:  streamInterval,
		StreamKeepalive: streamKeepalive,
		WeatherLat:      weatherLat,
		WeatherLon:      weatherLon,

		KafkaBrokers:       brokers,
		KafkaSnapshotTopic: envOrDefault("KAFKA_SNAPSHOT_TOPIC", "telemetry-snapshots"),
		KafkaEnabled:       kafkaEnabled,
	}

	if cfg.StreamKeepalive >= cfg.StreamInterval {
		return nil, errors.New("STREAM_KEEPALIVE_MS must be shorter than STREAM_INTERVAL_MS")
	}
	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_ENABLED is true but KAFKA_BROKERS is not set")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseDuration(key, fallback string) (time.Duration, error) {
	s := envOrDefault(key, fallback)
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return d, nil
}

func parseMillis(key string, fallback int) (time.Duration, error) {
	s := os.Getenv(key)
	if s == "" {
		return time.Duration(fallback) * time.Millisecond, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return time.Duration(n) * time.Millisecond, nil
}

func parseFloat(key string, fallback float64) (float64, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return v, nil
}

func parseBrokers(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	brokers := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			brokers = append(brokers, p)
		}
	}
	return brokers
}
