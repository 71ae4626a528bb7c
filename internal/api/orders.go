package api

import (
	"database/sql"
	"net/http"
	"strings"
	"time"

	"github.com/erazemk/bazar/internal/model"
	"github.com/erazemk/bazar/internal/store"
)

// OrdersHandler handles the order workflow.
type OrdersHandler struct {
	DB *sql.DB
	fx *effects
}

type createOrderRequest struct {
	ItemID   int64 `json:"itemId"`
	Quantity *int  `json:"quantity"`
}

type verifyOTPRequest struct {
	OTP string `json:"otp"`
}

// placedOrder is an order together with its plaintext code, which is only
// ever shown in the response that issued it.
type placedOrder struct {
	*model.Order
	OTP string `json:"otp"`
}

type createOrderResponse struct {
	Order   placedOrder `json:"order"`
	Resumed bool        `json:"resumed,omitempty"`
}

type regenerateResponse struct {
	OTP       string    `json:"otp"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type toDeliverResponse struct {
	Orders []model.Order      `json:"orders"`
	Stats  *model.SellerStats `json:"stats"`
}

// Create handles POST /api/orders. A new order answers 201; resuming the
// caller's own pending order for the item answers 200.
func (h *OrdersHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())

	var req createOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ItemID <= 0 {
		jsonError(w, http.StatusBadRequest, "itemId required")
		return
	}
	quantity := 1
	if req.Quantity != nil {
		quantity = *req.Quantity
	}

	placed, err := store.CreateOrder(r.Context(), h.DB, req.ItemID, claims.UserID, quantity)
	if err != nil {
		storeError(w, r, err, "item not found")
		return
	}
	h.fx.placed(r.Context(), placed)

	status := http.StatusCreated
	if placed.Resumed {
		status = http.StatusOK
	}
	jsonResponse(w, status, createOrderResponse{
		Order:   placedOrder{Order: placed.Order, OTP: placed.OTP},
		Resumed: placed.Resumed,
	})
}

// ListBuyer handles GET /api/orders/buyer.
func (h *OrdersHandler) ListBuyer(w http.ResponseWriter, r *http.Request) {
	orders, err := store.ListBuyerOrders(r.Context(), h.DB, GetClaims(r.Context()).UserID)
	if err != nil {
		storeError(w, r, err, "")
		return
	}
	if orders == nil {
		orders = []model.Order{}
	}
	jsonResponse(w, http.StatusOK, orders)
}

// ListSeller handles GET /api/orders/seller.
func (h *OrdersHandler) ListSeller(w http.ResponseWriter, r *http.Request) {
	orders, err := store.ListSellerOrders(r.Context(), h.DB, GetClaims(r.Context()).UserID)
	if err != nil {
		storeError(w, r, err, "")
		return
	}
	if orders == nil {
		orders = []model.Order{}
	}
	jsonResponse(w, http.StatusOK, orders)
}

// ToDeliver handles GET /api/orders/to-deliver.
func (h *OrdersHandler) ToDeliver(w http.ResponseWriter, r *http.Request) {
	orders, stats, err := store.ListOrdersToDeliver(r.Context(), h.DB, GetClaims(r.Context()).UserID)
	if err != nil {
		storeError(w, r, err, "")
		return
	}
	if orders == nil {
		orders = []model.Order{}
	}
	jsonResponse(w, http.StatusOK, toDeliverResponse{Orders: orders, Stats: stats})
}

// Get handles GET /api/orders/{id}.
func (h *OrdersHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	o, err := store.GetOrderFor(r.Context(), h.DB, id, GetClaims(r.Context()).UserID)
	if err != nil {
		storeError(w, r, err, "order not found")
		return
	}
	jsonResponse(w, http.StatusOK, o)
}

// VerifyOTP handles POST /api/orders/{id}/verify-otp.
func (h *OrdersHandler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())
	id, ok := pathID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	var req verifyOTPRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	delivery, err := store.VerifyOrderOTP(r.Context(), h.DB, id, claims.UserID, strings.TrimSpace(req.OTP))
	if err != nil {
		storeError(w, r, err, "order not found")
		return
	}
	h.fx.delivered(r.Context(), delivery)

	jsonResponse(w, http.StatusOK, map[string]any{
		"message": "order delivered",
		"order":   delivery.Order,
	})
}

// RegenerateOTP handles POST /api/orders/{id}/regenerate-otp.
func (h *OrdersHandler) RegenerateOTP(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())
	id, ok := pathID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	issued, err := store.RegenerateOTP(r.Context(), h.DB, id, claims.UserID)
	if err != nil {
		storeError(w, r, err, "order not found")
		return
	}
	h.fx.regenerated(r.Context(), issued)

	jsonResponse(w, http.StatusOK, regenerateResponse{OTP: issued.OTP, ExpiresAt: issued.ExpiresAt})
}

// Cancel handles POST /api/orders/{id}/cancel.
func (h *OrdersHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())
	id, ok := pathID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	o, err := store.CancelOrder(r.Context(), h.DB, id, claims.UserID)
	if err != nil {
		storeError(w, r, err, "order not found")
		return
	}
	h.fx.cancelled(r.Context(), o)

	jsonResponse(w, http.StatusOK, map[string]any{
		"message": "order cancelled",
		"order":   o,
	})
}
