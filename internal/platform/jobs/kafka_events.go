package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/hanko-field/storefront/internal/services"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaOrderEventPublisher streams order lifecycle events keyed by order id, so every event of an
// order lands on the same partition in order.
type KafkaOrderEventPublisher struct {
	writer messageWriter
}

// KafkaOption customises the writer built by NewKafkaOrderEventPublisher.
type KafkaOption func(*kafka.Writer)

// WithKafkaLogger routes writer diagnostics to logger (errors) and debug (chatter).
func WithKafkaLogger(errorLogger kafka.Logger) KafkaOption {
	return func(w *kafka.Writer) { w.ErrorLogger = errorLogger }
}

// NewKafkaOrderEventPublisher builds a hash-balanced writer with leader acks.
func NewKafkaOrderEventPublisher(brokers []string, topic string, opts ...KafkaOption) (*KafkaOrderEventPublisher, error) {
	cleaned := make([]string, 0, len(brokers))
	for _, b := range brokers {
		if b = strings.TrimSpace(b); b != "" {
			cleaned = append(cleaned, b)
		}
	}
	if len(cleaned) == 0 {
		return nil, errors.New("kafka order events: at least one broker is required")
	}
	if strings.TrimSpace(topic) == "" {
		return nil, errors.New("kafka order events: topic is required")
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cleaned...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
		WriteTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(writer)
		}
	}
	return &KafkaOrderEventPublisher{writer: writer}, nil
}

// PublishOrderEvent implements services.OrderEventPublisher.
func (p *KafkaOrderEventPublisher) PublishOrderEvent(ctx context.Context, event services.OrderEvent) error {
	if p == nil || p.writer == nil {
		return errors.New("kafka order events: not initialised")
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal order event: %w", err)
	}
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.OrderID),
		Value: data,
		Time:  event.OccurredAt,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(event.Type)},
		},
	})
	if err != nil {
		return fmt.Errorf("write order event: %w", err)
	}
	return nil
}

// Close flushes pending batches.
func (p *KafkaOrderEventPublisher) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
