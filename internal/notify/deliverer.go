package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	kafkax "github.com/Rekabyte1/rekabytepc/internal/kafka"
	"github.com/Rekabyte1/rekabytepc/internal/orders"
	"github.com/Rekabyte1/rekabytepc/internal/redisx"
)

// Deliverer consumes notification events and hands them to the email
// collaborator. Delivery here stops at the boundary: the event is
// logged as delivered. Redelivered kafka messages are dropped via the
// event-id dedup marker.
type Deliverer struct {
	Redis       *redis.Client
	ServiceName string
	Log         *zap.Logger
}

func (d *Deliverer) Handle(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return err
	}

	dkey := fmt.Sprintf(redisx.KeyDedup, d.ServiceName, env.EventID)
	if exists, _ := redisx.Exists(ctx, d.Redis, dkey); exists {
		return nil
	}

	if err := d.deliver(env); err != nil {
		return err
	}

	// Marked only after a successful delivery. A failed event stays
	// uncommitted and unmarked, so kafka redelivery gets a real retry.
	_ = d.Redis.Set(ctx, dkey, "1", redisx.TTLDedup).Err()
	return nil
}

func (d *Deliverer) deliver(env orders.Envelope) error {
	switch env.EventType {
	case orders.EventOrderConfirmation:
		p, err := kafkax.UnwrapPayload[orders.OrderConfirmationPayload](env.Payload)
		if err != nil {
			return err
		}
		d.Log.Info("confirmation email delivered",
			zap.String("order_id", p.OrderID),
			zap.String("order_number", p.OrderNumber),
			zap.String("email", p.Email),
			zap.Int("total_cents", p.TotalCents))
	case orders.EventOrderStatusChanged:
		p, err := kafkax.UnwrapPayload[orders.OrderStatusChangedPayload](env.Payload)
		if err != nil {
			return err
		}
		d.Log.Info("status email delivered",
			zap.String("order_id", p.OrderID),
			zap.String("order_number", p.OrderNumber),
			zap.String("email", p.Email),
			zap.String("from", string(p.From)),
			zap.String("to", string(p.To)))
	default:
		// unknown event type, commit and move on
	}
	return nil
}
