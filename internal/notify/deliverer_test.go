package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	kafkax "github.com/Rekabyte1/rekabytepc/internal/kafka"
	"github.com/Rekabyte1/rekabytepc/internal/orders"
	"github.com/Rekabyte1/rekabytepc/internal/redisx"
)

func setupDeliverer(t *testing.T) (*Deliverer, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	d := &Deliverer{
		Redis:       client,
		ServiceName: "notifier",
		Log:         zap.NewNop(),
	}
	return d, mr
}

func confirmationMessage(eventID string, payload json.RawMessage) kafkago.Message {
	env := orders.Envelope{
		EventID:      eventID,
		EventType:    orders.EventOrderConfirmation,
		EventVersion: 1,
		OccurredAt:   time.Now(),
		Producer:     "api",
		Payload:      payload,
	}
	return kafkago.Message{Value: kafkax.MustMarshal(env)}
}

func TestDelivererHandle_MarksOnlyAfterDelivery(t *testing.T) {
	d, mr := setupDeliverer(t)
	ctx := context.Background()

	payload := kafkax.MustMarshal(orders.OrderConfirmationPayload{
		OrderID:     "ord-1",
		OrderNumber: "#AB12CD34",
		Email:       "ana@example.com",
		TotalCents:  159990,
	})
	msg := confirmationMessage("evt-1", payload)

	require.NoError(t, d.Handle(ctx, msg))

	dkey := fmt.Sprintf(redisx.KeyDedup, "notifier", "evt-1")
	assert.True(t, mr.Exists(dkey))

	// redelivery of the same event id is dropped
	require.NoError(t, d.Handle(ctx, msg))
}

func TestDelivererHandle_FailedDecodeLeavesNoMarker(t *testing.T) {
	d, mr := setupDeliverer(t)
	ctx := context.Background()

	bad := confirmationMessage("evt-2", json.RawMessage(`"not an object"`))
	require.Error(t, d.Handle(ctx, bad))

	dkey := fmt.Sprintf(redisx.KeyDedup, "notifier", "evt-2")
	assert.False(t, mr.Exists(dkey), "failed event must stay unmarked so redelivery retries it")

	// the broker redelivers, this time with a payload that decodes
	good := confirmationMessage("evt-2", kafkax.MustMarshal(orders.OrderConfirmationPayload{
		OrderID:     "ord-2",
		OrderNumber: "#EF56GH78",
		Email:       "ana@example.com",
	}))
	require.NoError(t, d.Handle(ctx, good))
	assert.True(t, mr.Exists(dkey))
}
