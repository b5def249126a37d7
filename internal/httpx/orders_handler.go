package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Rekabyte1/rekabytepc/internal/metrics"
	"github.com/Rekabyte1/rekabytepc/internal/notify"
	"github.com/Rekabyte1/rekabytepc/internal/orders"
	"github.com/Rekabyte1/rekabytepc/internal/redisx"
)

type CheckoutStore interface {
	CreateOrder(ctx context.Context, in orders.CheckoutInput) (*orders.Order, []orders.OrderItem, bool, error)
	GetOrder(ctx context.Context, orderID string) (*orders.Order, []orders.OrderItem, error)
	UpdateStatus(ctx context.Context, orderID string, to orders.Status, note string) (orders.Status, *orders.Order, error)
	ListProducts(ctx context.Context) ([]orders.Product, error)
}

type Notifier interface {
	SendConfirmation(ctx context.Context, o *orders.Order, items []orders.OrderItem) notify.Result
	SendStatusChange(ctx context.Context, o *orders.Order, prev orders.Status) notify.Result
}

type SweepRunner interface {
	Run(ctx context.Context) (int, error)
}

type OrdersHandler struct {
	Store             CheckoutStore
	Notify            Notifier
	Sweep             SweepRunner
	Redis             *redis.Client
	Metrics           *metrics.Metrics
	Log               *zap.Logger
	SweepSecret       string
	ShippingFlatCents int
}

func (h *OrdersHandler) Register(r *chi.Mux) {
	r.Post("/checkout", h.checkout)
	r.Get("/orders/{id}", h.getOrder)
	r.Post("/orders/{id}/status", h.updateStatus)
	r.Get("/products", h.listProducts)
	r.Get("/jobs/expire-orders", h.sweepExpired)
}

type CheckoutRequest struct {
	CheckoutToken string            `json:"checkoutToken"`
	Items         []orders.CartLine `json:"items"`
	Customer      struct {
		Name  string `json:"name"`
		Email string `json:"email"`
		Phone string `json:"phone"`
	} `json:"customer"`
	DeliveryType  string               `json:"deliveryType"`
	PaymentMethod string               `json:"paymentMethod"`
	Address       *orders.AddressInput `json:"address"`
	Notes         string               `json:"notes"`
}

type orderItemResp struct {
	ProductID      string `json:"product_id"`
	ProductName    string `json:"product_name"`
	UnitPriceCents int    `json:"unit_price_cents"`
	Qty            int    `json:"qty"`
}

type CheckoutResponse struct {
	OrderID       string          `json:"order_id"`
	OrderNumber   string          `json:"order_number"`
	Status        orders.Status   `json:"status"`
	SubtotalCents int             `json:"subtotal_cents"`
	ShippingCents int             `json:"shipping_cents"`
	TotalCents    int             `json:"total_cents"`
	PaymentDueAt  *time.Time      `json:"payment_due_at,omitempty"`
	Idempotent    bool            `json:"idempotent"`
	Items         []orderItemResp `json:"items"`
	Warnings      []string        `json:"warnings,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, errCode, msg string) {
	writeJSON(w, code, map[string]string{"error": msg, "code": errCode})
}

func (h *OrdersHandler) checkout(w http.ResponseWriter, r *http.Request) {
	var req CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}

	payMethod, err := orders.ParsePaymentMethod(req.PaymentMethod)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_PAYMENT_METHOD", err.Error())
		return
	}
	shipMethod, err := orders.ParseShippingMethod(req.DeliveryType)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_DELIVERY_TYPE", err.Error())
		return
	}

	in := orders.CheckoutInput{
		CheckoutToken:  req.CheckoutToken,
		CustomerName:   req.Customer.Name,
		CustomerEmail:  req.Customer.Email,
		CustomerPhone:  req.Customer.Phone,
		PaymentMethod:  payMethod,
		ShippingMethod: shipMethod,
		Address:        req.Address,
		Notes:          req.Notes,
		ShippingCents:  h.ShippingFlatCents,
		Lines:          req.Items,
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	o, items, existed, err := h.Store.CreateOrder(ctx, in)
	if err != nil {
		h.writeCheckoutError(w, err)
		return
	}

	if h.Redis != nil {
		idemKey := fmt.Sprintf(redisx.KeyIdemCheckout, o.CheckoutToken)
		_ = h.Redis.Set(ctx, idemKey, o.ID, redisx.TTLIdempotency).Err()
		h.cacheStatus(ctx, o)
	}

	var warnings []string
	if h.Notify != nil {
		// the gate's marker makes this safe on replays too
		if res := h.Notify.SendConfirmation(ctx, o, items); res == notify.ResultFailed {
			warnings = append(warnings, "confirmation email could not be sent")
		}
	}

	code := http.StatusCreated
	if existed {
		code = http.StatusOK
		h.Metrics.IncCheckoutReplays()
	} else {
		h.Metrics.IncOrdersCreated()
	}

	resp := CheckoutResponse{
		OrderID:       o.ID,
		OrderNumber:   o.Number(),
		Status:        o.Status,
		SubtotalCents: o.SubtotalCents,
		ShippingCents: o.ShippingCents,
		TotalCents:    o.TotalCents,
		PaymentDueAt:  o.PaymentDueAt,
		Idempotent:    existed,
		Items:         toItemResp(items),
		Warnings:      warnings,
	}
	writeJSON(w, code, resp)
}

func (h *OrdersHandler) writeCheckoutError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, orders.ErrMissingCheckoutToken):
		writeError(w, http.StatusBadRequest, "MISSING_CHECKOUT_TOKEN", err.Error())
	case errors.Is(err, orders.ErrEmptyCart):
		writeError(w, http.StatusBadRequest, "EMPTY_CART", err.Error())
	case errors.Is(err, orders.ErrMissingCustomerInfo):
		writeError(w, http.StatusBadRequest, "MISSING_CUSTOMER_INFO", err.Error())
	case errors.Is(err, orders.ErrMissingAddress):
		writeError(w, http.StatusBadRequest, "MISSING_ADDRESS", err.Error())
	case errors.Is(err, orders.ErrInvalidQuantity):
		writeError(w, http.StatusBadRequest, "INVALID_QUANTITY", err.Error())
	case errors.Is(err, orders.ErrUnknownProduct):
		writeError(w, http.StatusBadRequest, "UNKNOWN_PRODUCT", err.Error())
	case errors.Is(err, orders.ErrInsufficientStock):
		h.Metrics.IncStockRejected()
		writeError(w, http.StatusConflict, "INSUFFICIENT_STOCK", err.Error())
	case errors.Is(err, orders.ErrConflict):
		// retrying with the same checkout token is safe
		writeError(w, http.StatusServiceUnavailable, "CONFLICT_RETRY", "transient conflict, retry the same request")
	default:
		h.Log.Error("checkout failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "INTERNAL", "internal error")
	}
}

func toItemResp(items []orders.OrderItem) []orderItemResp {
	out := make([]orderItemResp, 0, len(items))
	for _, it := range items {
		out = append(out, orderItemResp{
			ProductID:      it.ProductID,
			ProductName:    it.ProductName,
			UnitPriceCents: it.UnitPriceCents,
			Qty:            it.Qty,
		})
	}
	return out
}

type orderStatusBody struct {
	OrderID     string        `json:"order_id"`
	OrderNumber string        `json:"order_number"`
	Status      orders.Status `json:"status"`
}

func (h *OrdersHandler) cacheStatus(ctx context.Context, o *orders.Order) {
	if h.Redis == nil {
		return
	}
	key := fmt.Sprintf(redisx.KeyOrderStatus, o.ID)
	b, _ := json.Marshal(orderStatusBody{OrderID: o.ID, OrderNumber: o.Number(), Status: o.Status})
	_ = h.Redis.Set(ctx, key, b, redisx.TTLStatusCache).Err()
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	if orderID == "" {
		writeError(w, http.StatusBadRequest, "MISSING_ID", "missing id")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	key := fmt.Sprintf(redisx.KeyOrderStatus, orderID)
	if h.Redis != nil {
		if s, err := h.Redis.Get(ctx, key).Result(); err == nil && s != "" {
			writeJSON(w, http.StatusOK, json.RawMessage(s))
			return
		}
	}

	o, _, err := h.Store.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, orders.ErrNotFound) {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "order not found")
			return
		}
		h.Log.Error("get order failed", zap.String("order_id", orderID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "INTERNAL", "internal error")
		return
	}
	h.cacheStatus(ctx, o)
	writeJSON(w, http.StatusOK, orderStatusBody{OrderID: o.ID, OrderNumber: o.Number(), Status: o.Status})
}

type StatusUpdateRequest struct {
	Status string `json:"status"`
	Note   string `json:"note"`
	Notify bool   `json:"notify"`
}

type StatusUpdateResponse struct {
	OrderID        string        `json:"order_id"`
	Status         orders.Status `json:"status"`
	PreviousStatus orders.Status `json:"previous_status"`
	Warnings       []string      `json:"warnings,omitempty"`
}

func (h *OrdersHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	var req StatusUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	target, known := orders.ParseStatus(req.Status)
	if !known {
		writeError(w, http.StatusBadRequest, "UNKNOWN_STATUS", fmt.Sprintf("unknown status %q", req.Status))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	prev, o, err := h.Store.UpdateStatus(ctx, orderID, target, req.Note)
	if err != nil {
		switch {
		case errors.Is(err, orders.ErrNotFound):
			writeError(w, http.StatusNotFound, "NOT_FOUND", "order not found")
		case errors.Is(err, orders.ErrInvalidTransition):
			writeError(w, http.StatusConflict, "INVALID_TRANSITION", err.Error())
		default:
			h.Log.Error("status update failed", zap.String("order_id", orderID), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "INTERNAL", "internal error")
		}
		return
	}
	h.cacheStatus(ctx, o)

	var warnings []string
	if req.Notify && h.Notify != nil {
		switch h.Notify.SendStatusChange(ctx, o, prev) {
		case notify.ResultSkippedMissingConfig:
			if o.CustomerEmail == "" {
				warnings = append(warnings, "customer email is blank, notification skipped")
			}
		case notify.ResultFailed:
			warnings = append(warnings, "status notification could not be sent")
		}
	}

	writeJSON(w, http.StatusOK, StatusUpdateResponse{
		OrderID:        o.ID,
		Status:         o.Status,
		PreviousStatus: prev,
		Warnings:       warnings,
	})
}

func (h *OrdersHandler) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	ps, err := h.Store.ListProducts(ctx)
	if err != nil {
		h.Log.Error("list products failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "INTERNAL", "internal error")
		return
	}
	writeJSON(w, http.StatusOK, ps)
}

// sweepExpired is the scheduler-facing trigger. Auth is a shared-secret
// query param; an unset server secret leaves the endpoint open, which is
// a development-only posture.
func (h *OrdersHandler) sweepExpired(w http.ResponseWriter, r *http.Request) {
	if h.SweepSecret != "" && r.URL.Query().Get("secret") != h.SweepSecret {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "bad secret")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 60*time.Second)
	defer cancel()

	released, err := h.Sweep.Run(ctx)
	if err != nil {
		h.Log.Error("sweep failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "INTERNAL", "sweep failed")
		return
	}
	h.Metrics.AddSweepReleased(released)
	writeJSON(w, http.StatusOK, map[string]int{"released": released})
}
