package orders

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	pgcontainer "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	pgstore "github.com/Rekabyte1/rekabytepc/internal/postgres"
)

func setupTestDB(t *testing.T) *pgxpool.Pool {
	if testing.Short() {
		t.Skip("skipping container test in -short mode")
	}
	ctx := context.Background()

	c, err := pgcontainer.Run(ctx,
		"postgres:16-alpine",
		pgcontainer.WithDatabase("testdb"),
		pgcontainer.WithUsername("testuser"),
		pgcontainer.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := c.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})

	dsn, err := c.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	require.NoError(t, pgstore.Migrate(dsn, "file://../../migrations"))

	pool, err := pgstore.Connect(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func seedProduct(t *testing.T, pool *pgxpool.Pool, slug, name string, stock *int, transferCents, cardCents int) string {
	var id string
	err := pool.QueryRow(context.Background(), `
		INSERT INTO products (slug, name, stock, price_cents, price_transfer_cents, price_card_cents, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, TRUE) RETURNING id`,
		slug, name, stock, transferCents, transferCents, cardCents).Scan(&id)
	require.NoError(t, err)
	return id
}

func productStock(t *testing.T, pool *pgxpool.Pool, slug string) *int {
	var stock *int
	require.NoError(t, pool.QueryRow(context.Background(), `SELECT stock FROM products WHERE slug=$1`, slug).Scan(&stock))
	return stock
}

func transferCheckout(token string, lines ...CartLine) CheckoutInput {
	return CheckoutInput{
		CheckoutToken:  token,
		CustomerName:   "Ana",
		CustomerEmail:  "ana@example.com",
		PaymentMethod:  PaymentTransfer,
		ShippingMethod: ShippingPickup,
		Lines:          lines,
	}
}

func TestCheckoutLifecycle(t *testing.T) {
	pool := setupTestDB(t)
	repo := &Repo{DB: pool}
	sweepRepo := &SweepRepo{DB: pool}
	ctx := context.Background()

	seedProduct(t, pool, "oficina-8600g", "PC Oficina 8600G", intPtr(2), 48000000, 52000000)

	// create: stock 2 -> 1, due date = creation + 24h
	before := time.Now()
	o, items, existed, err := repo.CreateOrder(ctx, transferCheckout("tok-1", CartLine{ProductSlug: "oficina-8600g", Qty: 1}))
	require.NoError(t, err)
	assert.False(t, existed)
	assert.Equal(t, StatusPendingPayment, o.Status)
	assert.Equal(t, 48000000, o.SubtotalCents)
	assert.Equal(t, o.SubtotalCents+o.ShippingCents, o.TotalCents)
	require.Len(t, items, 1)
	assert.Equal(t, "PC Oficina 8600G", items[0].ProductName)
	require.NotNil(t, o.PaymentDueAt)
	assert.WithinDuration(t, before.Add(24*time.Hour), *o.PaymentDueAt, time.Minute)
	require.NotNil(t, productStock(t, pool, "oficina-8600g"))
	assert.Equal(t, 1, *productStock(t, pool, "oficina-8600g"))

	// replay: same token, same order, no further decrement
	o2, _, existed, err := repo.CreateOrder(ctx, transferCheckout("tok-1", CartLine{ProductSlug: "oficina-8600g", Qty: 1}))
	require.NoError(t, err)
	assert.True(t, existed)
	assert.Equal(t, o.ID, o2.ID)
	assert.Equal(t, 1, *productStock(t, pool, "oficina-8600g"))

	// price snapshot: catalog edits don't touch existing items
	_, err = pool.Exec(ctx, `UPDATE products SET price_transfer_cents = 99999999 WHERE slug = 'oficina-8600g'`)
	require.NoError(t, err)
	o3, items3, err := repo.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, 48000000, items3[0].UnitPriceCents)
	assert.Equal(t, 48000000, o3.SubtotalCents)

	// expire: sweep releases stock exactly once and cancels
	_, err = pool.Exec(ctx, `UPDATE orders SET payment_due_at = now() - interval '1 hour' WHERE id = $1`, o.ID)
	require.NoError(t, err)

	ids, err := sweepRepo.ExpiredCandidates(ctx, 50)
	require.NoError(t, err)
	require.Contains(t, ids, o.ID)

	released, err := sweepRepo.ReleaseExpired(ctx, o.ID)
	require.NoError(t, err)
	assert.True(t, released)
	assert.Equal(t, 2, *productStock(t, pool, "oficina-8600g"))

	cancelled, _, err := repo.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)
	assert.NotNil(t, cancelled.StockReleasedAt)
	assert.NotNil(t, cancelled.CancelledAt)

	// second release is a no-op
	released, err = sweepRepo.ReleaseExpired(ctx, o.ID)
	require.NoError(t, err)
	assert.False(t, released)
	assert.Equal(t, 2, *productStock(t, pool, "oficina-8600g"))
}

func TestCreateOrder_InsufficientStockRollsBackEverything(t *testing.T) {
	pool := setupTestDB(t)
	repo := &Repo{DB: pool}
	ctx := context.Background()

	seedProduct(t, pool, "ssd-1tb", "SSD 1TB", intPtr(2), 5000000, 5200000)
	seedProduct(t, pool, "ram-32gb", "RAM 32GB", intPtr(10), 9000000, 9500000)

	// second line exceeds stock: nothing from the cart may persist
	_, _, _, err := repo.CreateOrder(ctx, transferCheckout("tok-c",
		CartLine{ProductSlug: "ram-32gb", Qty: 1},
		CartLine{ProductSlug: "ssd-1tb", Qty: 5},
	))
	require.ErrorIs(t, err, ErrInsufficientStock)

	assert.Equal(t, 2, *productStock(t, pool, "ssd-1tb"))
	assert.Equal(t, 10, *productStock(t, pool, "ram-32gb"))

	var n int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM orders`).Scan(&n))
	assert.Zero(t, n)
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM order_items`).Scan(&n))
	assert.Zero(t, n)
}

func TestCreateOrder_ConcurrentLastUnit(t *testing.T) {
	pool := setupTestDB(t)
	repo := &Repo{DB: pool}
	ctx := context.Background()

	seedProduct(t, pool, "gpu-ultima", "GPU Ultima Unidad", intPtr(1), 80000000, 85000000)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, token := range []string{"tok-x", "tok-y"} {
		wg.Add(1)
		go func(i int, token string) {
			defer wg.Done()
			_, _, _, errs[i] = repo.CreateOrder(ctx, transferCheckout(token, CartLine{ProductSlug: "gpu-ultima", Qty: 1}))
		}(i, token)
	}
	wg.Wait()

	okCount, stockErrCount := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			okCount++
		default:
			require.ErrorIs(t, err, ErrInsufficientStock)
			stockErrCount++
		}
	}
	assert.Equal(t, 1, okCount)
	assert.Equal(t, 1, stockErrCount)
	assert.Equal(t, 0, *productStock(t, pool, "gpu-ultima"))
}

func TestCreateOrder_ConcurrentSameToken(t *testing.T) {
	pool := setupTestDB(t)
	repo := &Repo{DB: pool}
	ctx := context.Background()

	seedProduct(t, pool, "teclado-mk", "Teclado MK", intPtr(10), 3000000, 3200000)

	var wg sync.WaitGroup
	type res struct {
		id  string
		err error
	}
	results := make([]res, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			o, _, _, err := repo.CreateOrder(ctx, transferCheckout("tok-dup", CartLine{ProductSlug: "teclado-mk", Qty: 1}))
			if err == nil {
				results[i] = res{id: o.ID}
				return
			}
			results[i] = res{err: err}
		}(i)
	}
	wg.Wait()

	ids := map[string]bool{}
	for _, r := range results {
		require.NoError(t, r.err)
		ids[r.id] = true
	}
	assert.Len(t, ids, 1, "one token must map to exactly one order")

	var n int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM orders WHERE checkout_token = 'tok-dup'`).Scan(&n))
	assert.Equal(t, 1, n)
	assert.Equal(t, 9, *productStock(t, pool, "teclado-mk"))
}

func TestCreateOrder_DeliveryCreatesShipment(t *testing.T) {
	pool := setupTestDB(t)
	repo := &Repo{DB: pool}
	ctx := context.Background()

	seedProduct(t, pool, "monitor-27", "Monitor 27", intPtr(3), 15000000, 16000000)

	in := transferCheckout("tok-ship", CartLine{ProductSlug: "monitor-27", Qty: 1})
	in.ShippingMethod = ShippingDelivery
	in.ShippingCents = 599000
	in.Address = &AddressInput{Street: "Av. Siempre Viva 742", City: "Santiago", Region: "RM", Zip: "832000"}

	o, _, _, err := repo.CreateOrder(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, 599000, o.ShippingCents)
	assert.Equal(t, o.SubtotalCents+599000, o.TotalCents)

	var street string
	err = pool.QueryRow(ctx, `
		SELECT a.street FROM shipments s JOIN addresses a ON a.id = s.address_id
		WHERE s.order_id = $1`, o.ID).Scan(&street)
	require.NoError(t, err)
	assert.Equal(t, "Av. Siempre Viva 742", street)
}

func TestCreateOrder_UntrackedStockNotDecremented(t *testing.T) {
	pool := setupTestDB(t)
	repo := &Repo{DB: pool}
	ctx := context.Background()

	seedProduct(t, pool, "garantia-ext", "Garantia Extendida", nil, 1500000, 1500000)

	_, _, _, err := repo.CreateOrder(ctx, transferCheckout("tok-u", CartLine{ProductSlug: "garantia-ext", Qty: 3}))
	require.NoError(t, err)
	assert.Nil(t, productStock(t, pool, "garantia-ext"))
}

func TestUpdateStatus_Lifecycle(t *testing.T) {
	pool := setupTestDB(t)
	repo := &Repo{DB: pool}
	ctx := context.Background()

	seedProduct(t, pool, "nb-14", "Notebook 14", intPtr(5), 40000000, 42000000)
	o, _, _, err := repo.CreateOrder(ctx, transferCheckout("tok-s", CartLine{ProductSlug: "nb-14", Qty: 1}))
	require.NoError(t, err)

	prev, updated, err := repo.UpdateStatus(ctx, o.ID, StatusPaid, "comprobante recibido")
	require.NoError(t, err)
	assert.Equal(t, StatusPendingPayment, prev)
	assert.Equal(t, StatusPaid, updated.Status)
	assert.Contains(t, updated.Notes, "comprobante recibido")

	// paid orders are off the sweep's radar even past the deadline
	_, err = pool.Exec(ctx, `UPDATE orders SET payment_due_at = now() - interval '1 hour' WHERE id = $1`, o.ID)
	require.NoError(t, err)
	sweepRepo := &SweepRepo{DB: pool}
	released, err := sweepRepo.ReleaseExpired(ctx, o.ID)
	require.NoError(t, err)
	assert.False(t, released)

	_, _, err = repo.UpdateStatus(ctx, o.ID, StatusPendingPayment, "")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, _, err = repo.UpdateStatus(ctx, "00000000-0000-0000-0000-000000000000", StatusPaid, "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMarkConfirmationSent_ClaimsOnce(t *testing.T) {
	pool := setupTestDB(t)
	repo := &Repo{DB: pool}
	ctx := context.Background()

	seedProduct(t, pool, "fuente-750", "Fuente 750W", intPtr(4), 7000000, 7200000)
	o, _, _, err := repo.CreateOrder(ctx, transferCheckout("tok-m", CartLine{ProductSlug: "fuente-750", Qty: 1}))
	require.NoError(t, err)

	claimed, err := repo.MarkConfirmationSent(ctx, o.ID)
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = repo.MarkConfirmationSent(ctx, o.ID)
	require.NoError(t, err)
	assert.False(t, claimed)
}
