package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/hyperjump/kham/internal/config"
)

// KafkaSink publishes events as JSON messages keyed by session id.
type KafkaSink struct {
	writer *kafka.Writer
}

// NewKafkaSink creates a sink writing to cfg.Topic.
func NewKafkaSink(cfg config.KafkaConfig) *KafkaSink {
	return &KafkaSink{writer: &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		MaxAttempts:  3,
		RequiredAcks: kafka.RequireAll,
	}}
}

// Publish writes events synchronously.
func (s *KafkaSink) Publish(ctx context.Context, events ...Event) error {
	msgs, err := encode(events)
	if err != nil {
		return err
	}
	if err := s.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("writing analytics events: %w", err)
	}
	return nil
}

// Close flushes and closes the writer.
func (s *KafkaSink) Close() error {
	return s.writer.Close()
}

func encode(events []Event) ([]kafka.Message, error) {
	msgs := make([]kafka.Message, 0, len(events))
	for _, e := range events {
		value, err := json.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("marshaling analytics event: %w", err)
		}
		key := e.SessionID
		if key == "" {
			key = string(e.Type)
		}
		msgs = append(msgs, kafka.Message{Key: []byte(key), Value: value, Time: e.Timestamp})
	}
	return msgs, nil
}
