package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hanko-field/storefront/internal/services"
)

type captureWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (c *captureWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if c.err != nil {
		return c.err
	}
	c.messages = append(c.messages, msgs...)
	return nil
}

func (c *captureWriter) Close() error {
	c.closed = true
	return nil
}

func TestKafkaOrderEventPublisherWritesKeyedMessage(t *testing.T) {
	writer := &captureWriter{}
	publisher := &KafkaOrderEventPublisher{writer: writer}

	occurred := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	event := services.OrderEvent{
		ID:             "evt_1",
		Type:           services.OrderEventStatusChanged,
		OrderID:        "ord_1",
		UserID:         "user-1",
		Status:         "confirmed",
		PreviousStatus: "processing",
		OccurredAt:     occurred,
	}
	require.NoError(t, publisher.PublishOrderEvent(context.Background(), event))

	require.Len(t, writer.messages, 1)
	msg := writer.messages[0]
	assert.Equal(t, []byte("ord_1"), msg.Key)
	assert.Equal(t, occurred, msg.Time)
	assert.Equal(t, "order.status.changed", string(msg.Headers[0].Value))

	var decoded services.OrderEvent
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, "processing", decoded.PreviousStatus)

	require.NoError(t, publisher.Close())
	assert.True(t, writer.closed)
}

func TestKafkaOrderEventPublisherWrapsWriteError(t *testing.T) {
	publisher := &KafkaOrderEventPublisher{writer: &captureWriter{err: errors.New("leader not available")}}
	err := publisher.PublishOrderEvent(context.Background(), services.OrderEvent{OrderID: "ord_1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "leader not available")
}

func TestNewKafkaOrderEventPublisherValidates(t *testing.T) {
	_, err := NewKafkaOrderEventPublisher([]string{" "}, "orders")
	assert.Error(t, err)
	_, err = NewKafkaOrderEventPublisher([]string{"localhost:9092"}, "")
	assert.Error(t, err)

	publisher, err := NewKafkaOrderEventPublisher([]string{"localhost:9092"}, "orders")
	require.NoError(t, err)
	w, ok := publisher.writer.(*kafka.Writer)
	require.True(t, ok)
	assert.Equal(t, "orders", w.Topic)
}
