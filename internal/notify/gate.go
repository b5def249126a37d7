package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	kafkax "github.com/Rekabyte1/rekabytepc/internal/kafka"
	"github.com/Rekabyte1/rekabytepc/internal/orders"
	"github.com/Rekabyte1/rekabytepc/internal/redisx"
)

// Result of a SendOnce-style call. Anything other than ResultSent is a
// soft outcome: the surrounding order operation already succeeded.
type Result string

const (
	ResultSent                 Result = "sent"
	ResultSkippedAlreadySent   Result = "skipped:already_sent"
	ResultSkippedMissingConfig Result = "skipped:missing_config"
	ResultFailed               Result = "failed"
)

type MarkerStore interface {
	MarkConfirmationSent(ctx context.Context, orderID string) (bool, error)
}

type Publisher interface {
	Publish(key, value []byte, headers ...kafkago.Header)
}

// Gate is the single at-most-once funnel for customer-facing messages.
// Creation confirmations are guarded by a marker column on the order;
// status-change messages by a per-(order,status) redis marker. The
// marker is claimed before publishing: a crash in between drops one
// message rather than ever duplicating one.
type Gate struct {
	Store           MarkerStore
	ConfirmProducer Publisher
	StatusProducer  Publisher
	Redis           *redis.Client
	Service         string
	Log             *zap.Logger
}

func (g *Gate) SendConfirmation(ctx context.Context, o *orders.Order, items []orders.OrderItem) Result {
	if g.ConfirmProducer == nil || o.CustomerEmail == "" {
		return ResultSkippedMissingConfig
	}
	if o.ConfirmationEmailSentAt != nil {
		return ResultSkippedAlreadySent
	}
	claimed, err := g.Store.MarkConfirmationSent(ctx, o.ID)
	if err != nil {
		g.Log.Warn("confirmation marker claim failed", zap.String("order_id", o.ID), zap.Error(err))
		return ResultFailed
	}
	if !claimed {
		return ResultSkippedAlreadySent
	}

	snaps := make([]orders.ItemSnapshot, 0, len(items))
	for _, it := range items {
		snaps = append(snaps, orders.ItemSnapshot{
			ProductName:    it.ProductName,
			UnitPriceCents: it.UnitPriceCents,
			Qty:            it.Qty,
		})
	}
	g.publish(g.ConfirmProducer, o.ID, orders.EventOrderConfirmation, orders.OrderConfirmationPayload{
		OrderID:       o.ID,
		OrderNumber:   o.Number(),
		Email:         o.CustomerEmail,
		CustomerName:  o.CustomerName,
		PaymentMethod: o.PaymentMethod,
		TotalCents:    o.TotalCents,
		PaymentDueAt:  o.PaymentDueAt,
		Items:         snaps,
	})
	return ResultSent
}

func (g *Gate) SendStatusChange(ctx context.Context, o *orders.Order, prev orders.Status) Result {
	if g.StatusProducer == nil || o.CustomerEmail == "" {
		return ResultSkippedMissingConfig
	}
	if g.Redis != nil {
		key := fmt.Sprintf(redisx.KeyNotifySent, o.ID, o.Status)
		set, err := g.Redis.SetNX(ctx, key, "1", redisx.TTLNotifySent).Result()
		if err != nil {
			g.Log.Warn("status marker claim failed", zap.String("order_id", o.ID), zap.Error(err))
			return ResultFailed
		}
		if !set {
			return ResultSkippedAlreadySent
		}
	}
	g.publish(g.StatusProducer, o.ID, orders.EventOrderStatusChanged, orders.OrderStatusChangedPayload{
		OrderID:     o.ID,
		OrderNumber: o.Number(),
		Email:       o.CustomerEmail,
		From:        prev,
		To:          o.Status,
	})
	return ResultSent
}

func (g *Gate) publish(p Publisher, orderID, eventType string, payload any) {
	ev := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      g.Service,
		CorrelationID: orderID,
		Payload:       kafkax.MustMarshal(payload),
	}
	p.Publish(orders.PartitionKey(orderID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(eventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}
