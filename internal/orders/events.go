package orders

import (
	"encoding/json"
	"time"
)

const (
	EventOrderConfirmation  = "OrderConfirmation"
	EventOrderStatusChanged = "OrderStatusChanged"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order id
	Payload       json.RawMessage `json:"payload"`
}

type ItemSnapshot struct {
	ProductName    string `json:"product_name"`
	UnitPriceCents int    `json:"unit_price_cents"`
	Qty            int    `json:"qty"`
}

type OrderConfirmationPayload struct {
	OrderID       string         `json:"order_id"`
	OrderNumber   string         `json:"order_number"`
	Email         string         `json:"email"`
	CustomerName  string         `json:"customer_name"`
	PaymentMethod PaymentMethod  `json:"payment_method"`
	TotalCents    int            `json:"total_cents"`
	PaymentDueAt  *time.Time     `json:"payment_due_at,omitempty"`
	Items         []ItemSnapshot `json:"items"`
}

type OrderStatusChangedPayload struct {
	OrderID     string `json:"order_id"`
	OrderNumber string `json:"order_number"`
	Email       string `json:"email"`
	From        Status `json:"from"`
	To          Status `json:"to"`
}
