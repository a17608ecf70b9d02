// Package kafka republishes freshly aggregated snapshots to a Kafka topic
// so downstream consumers can tail the telemetry stream without polling the
// HTTP API. The publisher is optional and best-effort: the snapshot service
// logs and swallows publish failures.
package kafka

import (
	"context"
	"log/slog"

	kafkago "github.com/segmentio/kafka-go"
)

// Publisher produces snapshot payloads to a Kafka topic.
// It implements snapshot.Publisher.
type Publisher struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewPublisher creates a Kafka producer for the snapshot topic.
func NewPublisher(brokers []string, topic string, logger *slog.Logger) *Publisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireOne,
	}
	return &Publisher{writer: w, logger: logger}
}

// Publish sends one snapshot keyed by its timestamp. Keys are unique per
// aggregation, so replays compact naturally downstream.
func (p *Publisher) Publish(ctx context.Context, snapshotTime string, payload []byte) error {
	return p.writer.WriteMessages(ctx, kafkago.Message{
		Key:   []byte(snapshotTime),
		Value: payload,
		Headers: []kafkago.Header{
			{Key: "content-type", Value: []byte("application/json")},
		},
	})
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}
