// Package kafka publishes merged storm events to a topic consumed by the
// downstream notification subsystem. Publishing is optional; when disabled
// the orchestrator simply runs without a publisher.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/canvassiq/storm-intel/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// Publisher produces storm events to a Kafka topic.
// It implements search.Publisher.
type Publisher struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewPublisher creates a Kafka producer for the given brokers and topic.
func NewPublisher(brokers []string, topic string, logger *slog.Logger) *Publisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Publisher{writer: w, logger: logger}
}

// Publish serializes and writes all events in a single WriteMessages call.
// Messages are keyed by event id, so replayed searches produce compactable
// duplicates rather than new records.
func (p *Publisher) Publish(ctx context.Context, events []domain.StormEvent) error {
	if len(events) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(events))
	for i := range events {
		msg, err := serializeToMessage(events[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write storm events: %w", err)
	}
	p.logger.Debug("storm events published", "count", len(events), "topic", p.writer.Topic)
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// serializeToMessage marshals a StormEvent into a Kafka message.
func serializeToMessage(event domain.StormEvent) (kafkago.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize storm event: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(event.ID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "source", Value: []byte(event.Source)},
			{Key: "event_date", Value: []byte(event.Date.Format(time.RFC3339))},
		},
	}, nil
}
