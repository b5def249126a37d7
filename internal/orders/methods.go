package orders

import (
	"fmt"
	"strings"
)

type PaymentMethod string

const (
	PaymentTransfer PaymentMethod = "TRANSFER"
	PaymentCard     PaymentMethod = "CARD"
)

// ParsePaymentMethod maps the checkout payload's gateway names onto the
// closed internal enum.
func ParsePaymentMethod(s string) (PaymentMethod, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "transferencia", "transfer":
		return PaymentTransfer, nil
	case "webpay", "mercadopago", "card":
		return PaymentCard, nil
	}
	return "", fmt.Errorf("unknown payment method %q", s)
}

type ShippingMethod string

const (
	ShippingPickup   ShippingMethod = "PICKUP"
	ShippingDelivery ShippingMethod = "DELIVERY"
)

func ParseShippingMethod(s string) (ShippingMethod, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pickup":
		return ShippingPickup, nil
	case "shipping", "delivery":
		return ShippingDelivery, nil
	}
	return "", fmt.Errorf("unknown delivery type %q", s)
}
