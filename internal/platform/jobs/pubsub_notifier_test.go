package jobs

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/services"
)

func TestPubSubNotifierPublishesMessage(t *testing.T) {
	ctx := context.Background()
	srv := pstest.NewServer()
	defer srv.Close()

	client, err := pubsub.NewClient(ctx, "test-project",
		option.WithEndpoint(srv.Addr),
		option.WithoutAuthentication(),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	)
	require.NoError(t, err)
	defer client.Close()

	topic, err := client.CreateTopic(ctx, "order-notifications")
	require.NoError(t, err)
	defer topic.Stop()

	notifier, err := NewPubSubNotifier(topic)
	require.NoError(t, err)

	msg := services.NotificationMessage{
		ID:             "ntf_1",
		Template:       services.NotificationOrderPlaced,
		Recipient:      services.NotificationRecipient{Kind: services.RecipientCustomer, Email: "buyer@example.com"},
		Order:          domain.Order{ID: "ord_1", OrderNumber: "SF-2025-000001", Currency: "JPY", Totals: domain.OrderTotals{GrandTotal: 1000}},
		FormattedTotal: "¥1,000",
		QueuedAt:       time.Date(2025, 5, 6, 9, 0, 0, 0, time.UTC),
	}
	require.NoError(t, notifier.Notify(ctx, msg))

	messages := srv.Messages()
	require.Len(t, messages, 1)
	assert.Equal(t, "order_placed", messages[0].Attributes["template"])
	assert.Equal(t, "customer", messages[0].Attributes["recipientKind"])
	assert.Equal(t, "ord_1", messages[0].Attributes["orderId"])
	assert.Equal(t, "ord_1", messages[0].OrderingKey)

	var payload services.NotificationMessage
	require.NoError(t, json.Unmarshal(messages[0].Data, &payload))
	assert.Equal(t, "buyer@example.com", payload.Recipient.Email)
	assert.Equal(t, int64(1000), payload.Order.Totals.GrandTotal)
}

func TestNewPubSubNotifierRequiresTopic(t *testing.T) {
	_, err := NewPubSubNotifier(nil)
	assert.Error(t, err)
}
