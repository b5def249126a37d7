package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repo struct{ DB *pgxpool.Pool }

const orderColumns = `id, checkout_token, status, payment_method, shipping_method,
	customer_name, customer_email, customer_phone,
	subtotal_cents, shipping_cents, total_cents, notes,
	payment_due_at, stock_released_at, cancelled_at, confirmation_email_sent_at,
	created_at, updated_at`

const productColumns = `id, slug, name, stock, price_cents, price_transfer_cents,
	price_card_cents, is_active, created_at, updated_at`

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.CheckoutToken, &o.Status, &o.PaymentMethod, &o.ShippingMethod,
		&o.CustomerName, &o.CustomerEmail, &o.CustomerPhone,
		&o.SubtotalCents, &o.ShippingCents, &o.TotalCents, &o.Notes,
		&o.PaymentDueAt, &o.StockReleasedAt, &o.CancelledAt, &o.ConfirmationEmailSentAt,
		&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// CreateOrder turns a cart into a durable order, exactly once per
// checkout token.
//
// The token lookup up front handles client retries cheaply; the unique
// index on checkout_token closes the race where two requests with the
// same token pass that lookup together, with the loser falling back to
// the winner's row. Pricing and stock are validated against FOR UPDATE
// rows inside the same transaction that commits the order, so a
// concurrent checkout exhausting the same product aborts this one
// before anything is persisted.
func (r *Repo) CreateOrder(ctx context.Context, in CheckoutInput) (*Order, []OrderItem, bool, error) {
	o, items, err := r.GetOrderByToken(ctx, in.CheckoutToken)
	if err == nil {
		return o, items, true, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, nil, false, err
	}

	if err := in.Validate(); err != nil {
		return nil, nil, false, err
	}

	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, nil, false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	slugs := make([]string, 0, len(in.Lines))
	for _, l := range in.Lines {
		slugs = append(slugs, l.ProductSlug)
	}
	rows, err := tx.Query(ctx, `SELECT `+productColumns+` FROM products WHERE slug = ANY($1) FOR UPDATE`, slugs)
	if err != nil {
		return nil, nil, false, err
	}
	bySlug := map[string]Product{}
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Slug, &p.Name, &p.Stock, &p.PriceCents, &p.PriceTransferCents,
			&p.PriceCardCents, &p.IsActive, &p.CreatedAt, &p.UpdatedAt); err != nil {
			rows.Close()
			return nil, nil, false, err
		}
		bySlug[p.Slug] = p
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, nil, false, err
	}

	cart, err := PriceCart(bySlug, in.Lines, in.PaymentMethod)
	if err != nil {
		return nil, nil, false, err
	}

	now := time.Now().UTC()
	orderID := uuid.NewString()
	shippingCents := 0
	if in.ShippingMethod == ShippingDelivery {
		shippingCents = in.ShippingCents
	}
	totalCents := cart.SubtotalCents + shippingCents
	dueAt := PaymentDueAt(in.PaymentMethod, now)

	_, err = tx.Exec(ctx, `
		INSERT INTO orders (id, checkout_token, status, payment_method, shipping_method,
		                    customer_name, customer_email, customer_phone,
		                    subtotal_cents, shipping_cents, total_cents, notes, payment_due_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		orderID, in.CheckoutToken, StatusPendingPayment, in.PaymentMethod, in.ShippingMethod,
		in.CustomerName, in.CustomerEmail, in.CustomerPhone,
		cart.SubtotalCents, shippingCents, totalCents, in.Notes, dueAt)
	if err != nil {
		if isUniqueViolation(err) {
			// lost the token race: the other request's order is the order
			_ = tx.Rollback(ctx)
			o, items, werr := r.GetOrderByToken(ctx, in.CheckoutToken)
			if werr != nil {
				return nil, nil, false, fmt.Errorf("%w: %v", ErrConflict, werr)
			}
			return o, items, true, nil
		}
		return nil, nil, false, mapPgError(err)
	}

	if in.ShippingMethod == ShippingDelivery {
		addressID := uuid.NewString()
		if _, err := tx.Exec(ctx, `INSERT INTO addresses (id, street, city, region, zip) VALUES ($1,$2,$3,$4,$5)`,
			addressID, in.Address.Street, in.Address.City, in.Address.Region, in.Address.Zip); err != nil {
			return nil, nil, false, err
		}
		if _, err := tx.Exec(ctx, `INSERT INTO shipments (id, order_id, address_id) VALUES ($1,$2,$3)`,
			uuid.NewString(), orderID, addressID); err != nil {
			return nil, nil, false, err
		}
	}

	out := make([]OrderItem, 0, len(cart.Items))
	for _, it := range cart.Items {
		item := OrderItem{
			OrderID:        orderID,
			ProductID:      it.ProductID,
			ProductName:    it.ProductName,
			UnitPriceCents: it.UnitPriceCents,
			Qty:            it.Qty,
		}
		err := tx.QueryRow(ctx, `
			INSERT INTO order_items (order_id, product_id, product_name, unit_price_cents, qty)
			VALUES ($1,$2,$3,$4,$5) RETURNING id`,
			orderID, it.ProductID, it.ProductName, it.UnitPriceCents, it.Qty).Scan(&item.ID)
		if err != nil {
			return nil, nil, false, err
		}
		out = append(out, item)

		if !it.tracked {
			continue
		}
		// Compare-and-set at the store; the FOR UPDATE read above already
		// serializes writers, this guard keeps stock >= 0 regardless.
		ct, err := tx.Exec(ctx, `UPDATE products SET stock = stock - $2, updated_at = now() WHERE id = $1 AND stock >= $2`,
			it.ProductID, it.Qty)
		if err != nil {
			return nil, nil, false, mapPgError(err)
		}
		if ct.RowsAffected() != 1 {
			return nil, nil, false, fmt.Errorf("%w for %s", ErrInsufficientStock, it.ProductName)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, false, mapPgError(err)
	}

	o = &Order{
		ID:             orderID,
		CheckoutToken:  in.CheckoutToken,
		Status:         StatusPendingPayment,
		PaymentMethod:  in.PaymentMethod,
		ShippingMethod: in.ShippingMethod,
		CustomerName:   in.CustomerName,
		CustomerEmail:  in.CustomerEmail,
		CustomerPhone:  in.CustomerPhone,
		SubtotalCents:  cart.SubtotalCents,
		ShippingCents:  shippingCents,
		TotalCents:     totalCents,
		Notes:          in.Notes,
		PaymentDueAt:   dueAt,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	return o, out, false, nil
}

func (r *Repo) GetOrder(ctx context.Context, orderID string) (*Order, []OrderItem, error) {
	o, err := scanOrder(r.DB.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, orderID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, err
	}
	items, err := r.orderItems(ctx, o.ID)
	if err != nil {
		return nil, nil, err
	}
	return o, items, nil
}

func (r *Repo) GetOrderByToken(ctx context.Context, token string) (*Order, []OrderItem, error) {
	o, err := scanOrder(r.DB.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE checkout_token = $1`, token))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, err
	}
	items, err := r.orderItems(ctx, o.ID)
	if err != nil {
		return nil, nil, err
	}
	return o, items, nil
}

func (r *Repo) orderItems(ctx context.Context, orderID string) ([]OrderItem, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, order_id, product_id, product_name, unit_price_cents, qty
		FROM order_items WHERE order_id = $1 ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []OrderItem
	for rows.Next() {
		var it OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.ProductName, &it.UnitPriceCents, &it.Qty); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// UpdateStatus applies a manual status change under the closed
// transition table and returns the previous status.
func (r *Repo) UpdateStatus(ctx context.Context, orderID string, to Status, note string) (Status, *Order, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return "", nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var prev Status
	err = tx.QueryRow(ctx, `SELECT status FROM orders WHERE id = $1 FOR UPDATE`, orderID).Scan(&prev)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil, ErrNotFound
		}
		return "", nil, err
	}
	if !CanTransition(prev, to) {
		return prev, nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, prev, to)
	}

	cancelled := ""
	if to == StatusCancelled {
		cancelled = ", cancelled_at = now()"
	}
	_, err = tx.Exec(ctx, `
		UPDATE orders SET status = $2, updated_at = now()`+cancelled+`,
		       notes = CASE WHEN $3 = '' THEN notes
		                    WHEN notes = '' THEN $3
		                    ELSE notes || E'\n' || $3 END
		WHERE id = $1`, orderID, to, note)
	if err != nil {
		return prev, nil, mapPgError(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return prev, nil, mapPgError(err)
	}

	o, _, err := r.GetOrder(ctx, orderID)
	if err != nil {
		return prev, nil, err
	}
	return prev, o, nil
}

// MarkConfirmationSent claims the at-most-once confirmation marker.
// Returns false when another sender already holds it.
func (r *Repo) MarkConfirmationSent(ctx context.Context, orderID string) (bool, error) {
	ct, err := r.DB.Exec(ctx, `
		UPDATE orders SET confirmation_email_sent_at = now(), updated_at = now()
		WHERE id = $1 AND confirmation_email_sent_at IS NULL`, orderID)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

func (r *Repo) ListProducts(ctx context.Context) ([]Product, error) {
	rows, err := r.DB.Query(ctx, `SELECT `+productColumns+` FROM products WHERE is_active ORDER BY slug`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Slug, &p.Name, &p.Stock, &p.PriceCents, &p.PriceTransferCents,
			&p.PriceCardCents, &p.IsActive, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01": // serialization failure, deadlock
			return fmt.Errorf("%w: %v", ErrConflict, err)
		}
	}
	return err
}
