package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// KafkaEmitter streams audit events to a Kafka topic with synchronous writes
// for at-least-once delivery.
type KafkaEmitter struct {
	writer *kafka.Writer
	logger zerolog.Logger
	topic  string
}

// KafkaConfig configures the Kafka audit emitter.
type KafkaConfig struct {
	Brokers      []string
	Topic        string
	ClientID     string
	WriteTimeout time.Duration
}

// NewKafkaEmitter creates a Kafka-backed audit emitter. Returns nil when no
// brokers are configured; callers fall back to the logger emitter.
func NewKafkaEmitter(cfg KafkaConfig, logger zerolog.Logger) *KafkaEmitter {
	if len(cfg.Brokers) == 0 {
		return nil
	}
	if cfg.Topic == "" {
		cfg.Topic = "audit.identity"
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
		WriteTimeout: cfg.WriteTimeout,
		ReadTimeout:  5 * time.Second,
	}
	if cfg.ClientID != "" {
		writer.Transport = &kafka.Transport{ClientID: cfg.ClientID}
	}

	return &KafkaEmitter{
		writer: writer,
		logger: logger.With().Str("component", "audit-kafka").Logger(),
		topic:  cfg.Topic,
	}
}

// Emit publishes the event, keyed by actor for per-user ordering.
func (e *KafkaEmitter) Emit(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("serialize audit event: %w", err)
	}

	message := kafka.Message{
		Key:   []byte(event.ActorID.String()),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(event.EventID.String())},
			{Key: "action", Value: []byte(event.Action)},
		},
		Time: event.CreatedAt,
	}

	if err := e.writer.WriteMessages(ctx, message); err != nil {
		e.logger.Error().Err(err).
			Str("event_id", event.EventID.String()).
			Str("action", event.Action).
			Msg("failed to publish audit event")
		return fmt.Errorf("publish audit event: %w", err)
	}

	e.logger.Debug().
		Str("event_id", event.EventID.String()).
		Str("topic", e.topic).
		Msg("audit event published")
	return nil
}

// Close closes the Kafka writer.
func (e *KafkaEmitter) Close() error {
	return e.writer.Close()
}
