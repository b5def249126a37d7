package redisx

import "time"

const (
	// Checkout idempotency fast path: idem:checkout:{checkout_token} -> order_id.
	// The DB unique index on checkout_token is the source of truth.
	KeyIdemCheckout = "idem:checkout:%s"

	// Cached order status: order:status:{order_id} -> JSON body
	KeyOrderStatus = "order:status:%s"

	// Dedup for notification event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"

	// At-most-once marker for status-change notifications: notify:sent:{order_id}:{status}
	KeyNotifySent = "notify:sent:%s:%s"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
	TTLNotifySent  = 72 * time.Hour
)
