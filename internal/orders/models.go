package orders

import (
	"fmt"
	"strings"
	"time"
)

type Product struct {
	ID                 string    `json:"id"`
	Slug               string    `json:"slug"`
	Name               string    `json:"name"`
	Stock              *int      `json:"stock"` // nil = untracked, never decremented
	PriceCents         int       `json:"price_cents"`
	PriceTransferCents int       `json:"price_transfer_cents"`
	PriceCardCents     int       `json:"price_card_cents"`
	IsActive           bool      `json:"is_active"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// UnitPriceCentsFor picks the per-method price, falling back to the
// legacy price column when the method-specific one is unset.
func (p Product) UnitPriceCentsFor(m PaymentMethod) int {
	switch m {
	case PaymentTransfer:
		if p.PriceTransferCents > 0 {
			return p.PriceTransferCents
		}
	case PaymentCard:
		if p.PriceCardCents > 0 {
			return p.PriceCardCents
		}
	}
	return p.PriceCents
}

type Order struct {
	ID                      string         `json:"id"`
	CheckoutToken           string         `json:"checkout_token"`
	Status                  Status         `json:"status"`
	PaymentMethod           PaymentMethod  `json:"payment_method"`
	ShippingMethod          ShippingMethod `json:"shipping_method"`
	CustomerName            string         `json:"customer_name"`
	CustomerEmail           string         `json:"customer_email"`
	CustomerPhone           string         `json:"customer_phone"`
	SubtotalCents           int            `json:"subtotal_cents"`
	ShippingCents           int            `json:"shipping_cents"`
	TotalCents              int            `json:"total_cents"`
	Notes                   string         `json:"notes"`
	PaymentDueAt            *time.Time     `json:"payment_due_at"`
	StockReleasedAt         *time.Time     `json:"stock_released_at"`
	CancelledAt             *time.Time     `json:"cancelled_at"`
	ConfirmationEmailSentAt *time.Time     `json:"confirmation_email_sent_at"`
	CreatedAt               time.Time      `json:"created_at"`
	UpdatedAt               time.Time      `json:"updated_at"`
}

// Number is the human-facing order number shown in emails and the UI.
func (o *Order) Number() string {
	id := o.ID
	if len(id) > 8 {
		id = id[len(id)-8:]
	}
	return "#" + strings.ToUpper(id)
}

type OrderItem struct {
	ID        int64  `json:"id"`
	OrderID   string `json:"order_id"`
	ProductID string `json:"product_id"`
	// Name and price are snapshotted at checkout; later catalog edits
	// must not touch them.
	ProductName    string `json:"product_name"`
	UnitPriceCents int    `json:"unit_price_cents"`
	Qty            int    `json:"qty"`
}

type Address struct {
	ID     string `json:"id"`
	Street string `json:"street"`
	City   string `json:"city"`
	Region string `json:"region"`
	Zip    string `json:"zip"`
}

type Shipment struct {
	ID        string `json:"id"`
	OrderID   string `json:"order_id"`
	AddressID string `json:"address_id"`
}

func (a Address) String() string {
	return fmt.Sprintf("%s, %s %s %s", a.Street, a.City, a.Region, a.Zip)
}
