package orders

import "strings"

type AddressInput struct {
	Street string `json:"street"`
	City   string `json:"city"`
	Region string `json:"region"`
	Zip    string `json:"zip"`
}

type CheckoutInput struct {
	CheckoutToken  string
	CustomerName   string
	CustomerEmail  string
	CustomerPhone  string
	PaymentMethod  PaymentMethod
	ShippingMethod ShippingMethod
	Address        *AddressInput
	Notes          string
	ShippingCents  int
	Lines          []CartLine
}

// Validate covers the shape checks that need no catalog access.
// Pricing and stock are re-checked inside the transaction.
func (in CheckoutInput) Validate() error {
	if strings.TrimSpace(in.CheckoutToken) == "" {
		return ErrMissingCheckoutToken
	}
	if len(in.Lines) == 0 {
		return ErrEmptyCart
	}
	if strings.TrimSpace(in.CustomerName) == "" || strings.TrimSpace(in.CustomerEmail) == "" {
		return ErrMissingCustomerInfo
	}
	if in.ShippingMethod == ShippingDelivery {
		if in.Address == nil ||
			strings.TrimSpace(in.Address.Street) == "" ||
			strings.TrimSpace(in.Address.City) == "" {
			return ErrMissingAddress
		}
	}
	for _, l := range in.Lines {
		if l.Qty < 1 {
			return ErrInvalidQuantity
		}
	}
	return nil
}
