package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/pubsub"

	"github.com/hanko-field/storefront/internal/services"
)

// PubSubNotifier hands customer and admin notifications to the mailer through a Pub/Sub topic.
type PubSubNotifier struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

// NewPubSubNotifier constructs a notifier publishing on topic. Ordering keys are enabled so
// notifications for one order reach the mailer in publish order.
func NewPubSubNotifier(topic *pubsub.Topic) (*PubSubNotifier, error) {
	if topic == nil {
		return nil, errors.New("pubsub notifier: topic is required")
	}
	topic.EnableMessageOrdering = true
	return &PubSubNotifier{topic: topic, marshal: json.Marshal}, nil
}

// Notify publishes message and waits for the server ack.
func (n *PubSubNotifier) Notify(ctx context.Context, message services.NotificationMessage) error {
	if n == nil || n.topic == nil {
		return errors.New("pubsub notifier: not initialised")
	}

	data, err := n.marshal(message)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	attrs := map[string]string{}
	setAttr(attrs, "notificationId", message.ID)
	setAttr(attrs, "template", string(message.Template))
	setAttr(attrs, "recipientKind", string(message.Recipient.Kind))
	setAttr(attrs, "orderId", message.Order.ID)

	result := n.topic.Publish(ctx, &pubsub.Message{
		Data:        data,
		Attributes:  attrs,
		OrderingKey: message.Order.ID,
	})
	if _, err := result.Get(ctx); err != nil {
		n.topic.ResumePublish(message.Order.ID)
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}

func setAttr(attrs map[string]string, key, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
