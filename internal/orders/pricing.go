package orders

import "fmt"

type CartLine struct {
	ProductSlug string `json:"productSlug"`
	Qty         int    `json:"quantity"`
}

type PricedItem struct {
	ProductID      string
	ProductName    string
	UnitPriceCents int
	Qty            int
	tracked        bool
}

type PricedCart struct {
	Items         []PricedItem
	SubtotalCents int
}

// PriceCart resolves cart lines against catalog rows and snapshots
// name + per-method unit price. Pure over its inputs, so the same code
// runs pre-flight and again inside the checkout transaction against
// freshly locked rows.
func PriceCart(bySlug map[string]Product, lines []CartLine, method PaymentMethod) (PricedCart, error) {
	if len(lines) == 0 {
		return PricedCart{}, ErrEmptyCart
	}

	out := PricedCart{Items: make([]PricedItem, 0, len(lines))}
	for _, l := range lines {
		if l.Qty < 1 {
			return PricedCart{}, fmt.Errorf("%w: %s", ErrInvalidQuantity, l.ProductSlug)
		}
		p, ok := bySlug[l.ProductSlug]
		if !ok || !p.IsActive {
			return PricedCart{}, fmt.Errorf("%w: %s", ErrUnknownProduct, l.ProductSlug)
		}
		if p.Stock != nil && *p.Stock < l.Qty {
			return PricedCart{}, fmt.Errorf("%w for %s: have %d, want %d", ErrInsufficientStock, p.Name, *p.Stock, l.Qty)
		}
		unit := p.UnitPriceCentsFor(method)
		out.Items = append(out.Items, PricedItem{
			ProductID:      p.ID,
			ProductName:    p.Name,
			UnitPriceCents: unit,
			Qty:            l.Qty,
			tracked:        p.Stock != nil,
		})
		out.SubtotalCents += unit * l.Qty
	}
	return out, nil
}
