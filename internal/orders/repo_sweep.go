package orders

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SweepRepo backs the expiration sweep: transfer orders whose payment
// window lapsed get their stock commitment reversed exactly once.
type SweepRepo struct{ DB *pgxpool.Pool }

// ExpiredCandidates lists order ids eligible for release, oldest
// deadline first, capped so one run never scans unbounded.
func (r *SweepRepo) ExpiredCandidates(ctx context.Context, limit int) ([]string, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id FROM orders
		WHERE payment_method = $1
		  AND status = $2
		  AND payment_due_at IS NOT NULL
		  AND payment_due_at < now()
		  AND stock_released_at IS NULL
		ORDER BY payment_due_at
		LIMIT $3`, PaymentTransfer, StatusPendingPayment, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// ReleaseExpired reverses one order's stock commitment and cancels it.
// The candidate conditions are re-checked on a FOR UPDATE re-read inside
// this transaction: a payment landing between selection and processing,
// or a concurrent sweep run having released the order already, turns the
// call into a no-op. That re-check is what makes overlapping sweep runs
// safe against double release.
func (r *SweepRepo) ReleaseExpired(ctx context.Context, orderID string) (bool, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var (
		status   Status
		method   PaymentMethod
		dueAt    *time.Time
		released *time.Time
	)
	err = tx.QueryRow(ctx, `
		SELECT status, payment_method, payment_due_at, stock_released_at
		FROM orders WHERE id = $1 FOR UPDATE`, orderID).
		Scan(&status, &method, &dueAt, &released)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, ErrNotFound
		}
		return false, err
	}
	if method != PaymentTransfer || status != StatusPendingPayment ||
		dueAt == nil || !dueAt.Before(time.Now()) || released != nil {
		return false, nil
	}

	rows, err := tx.Query(ctx, `SELECT product_id, qty FROM order_items WHERE order_id = $1`, orderID)
	if err != nil {
		return false, err
	}
	type line struct {
		productID string
		qty       int
	}
	var lines []line
	for rows.Next() {
		var l line
		if err := rows.Scan(&l.productID, &l.qty); err != nil {
			rows.Close()
			return false, err
		}
		lines = append(lines, l)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return false, err
	}

	for _, l := range lines {
		// untracked products (stock IS NULL) are left alone
		if _, err := tx.Exec(ctx, `
			UPDATE products SET stock = stock + $2, updated_at = now()
			WHERE id = $1 AND stock IS NOT NULL`, l.productID, l.qty); err != nil {
			return false, err
		}
	}

	if _, err := tx.Exec(ctx, `
		UPDATE orders SET status = $2, cancelled_at = now(), stock_released_at = now(), updated_at = now()
		WHERE id = $1`, orderID, StatusCancelled); err != nil {
		return false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return false, mapPgError(err)
	}
	return true, nil
}
