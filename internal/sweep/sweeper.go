package sweep

import (
	"context"

	"go.uber.org/zap"

	"github.com/Rekabyte1/rekabytepc/internal/notify"
	"github.com/Rekabyte1/rekabytepc/internal/orders"
)

type Store interface {
	ExpiredCandidates(ctx context.Context, limit int) ([]string, error)
	ReleaseExpired(ctx context.Context, orderID string) (bool, error)
}

type OrderReader interface {
	GetOrder(ctx context.Context, orderID string) (*orders.Order, []orders.OrderItem, error)
}

type Notifier interface {
	SendStatusChange(ctx context.Context, o *orders.Order, prev orders.Status) notify.Result
}

// Sweeper reconciles transfer orders whose payment window lapsed. Each
// candidate is released in its own transaction; one failure never
// aborts the rest of the run, and overlapping runs are tolerated
// because ReleaseExpired re-checks conditions under lock.
type Sweeper struct {
	Store  Store
	Orders OrderReader
	Notify Notifier
	Batch  int
	Log    *zap.Logger
}

// Run processes one bounded batch and returns how many orders were
// actually released.
func (s *Sweeper) Run(ctx context.Context) (int, error) {
	batch := s.Batch
	if batch <= 0 {
		batch = 50
	}
	ids, err := s.Store.ExpiredCandidates(ctx, batch)
	if err != nil {
		return 0, err
	}

	released := 0
	for _, id := range ids {
		ok, err := s.Store.ReleaseExpired(ctx, id)
		if err != nil {
			s.Log.Warn("release failed", zap.String("order_id", id), zap.Error(err))
			continue
		}
		if !ok {
			// payment landed or another run got there first
			continue
		}
		released++
		s.notifyCancelled(ctx, id)
	}

	if released > 0 {
		s.Log.Info("expired orders released", zap.Int("released", released), zap.Int("candidates", len(ids)))
	}
	return released, nil
}

func (s *Sweeper) notifyCancelled(ctx context.Context, orderID string) {
	if s.Notify == nil || s.Orders == nil {
		return
	}
	o, _, err := s.Orders.GetOrder(ctx, orderID)
	if err != nil {
		s.Log.Warn("load released order for notify", zap.String("order_id", orderID), zap.Error(err))
		return
	}
	if res := s.Notify.SendStatusChange(ctx, o, orders.StatusPendingPayment); res == notify.ResultFailed {
		s.Log.Warn("cancellation notify failed", zap.String("order_id", orderID))
	}
}
