package api

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/erazemk/bazar/internal/model"
	"github.com/erazemk/bazar/internal/store"
)

// CartHandler handles the shopping cart and checkout.
type CartHandler struct {
	DB *sql.DB
	fx *effects
}

type addToCartRequest struct {
	ItemID int64 `json:"itemId"`
}

// checkoutResult is the outcome for one cart entry. Exactly one of Order
// and Error is set.
type checkoutResult struct {
	ItemID int64        `json:"itemId"`
	Order  *placedOrder `json:"order,omitempty"`
	Error  string       `json:"error,omitempty"`
}

// List handles GET /api/cart.
func (h *CartHandler) List(w http.ResponseWriter, r *http.Request) {
	entries, err := store.ListCart(r.Context(), h.DB, GetClaims(r.Context()).UserID)
	if err != nil {
		storeError(w, r, err, "")
		return
	}
	if entries == nil {
		entries = []model.CartEntry{}
	}
	jsonResponse(w, http.StatusOK, entries)
}

// Add handles POST /api/cart.
func (h *CartHandler) Add(w http.ResponseWriter, r *http.Request) {
	var req addToCartRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ItemID <= 0 {
		jsonError(w, http.StatusBadRequest, "itemId required")
		return
	}

	if err := store.AddToCart(r.Context(), h.DB, GetClaims(r.Context()).UserID, req.ItemID); err != nil {
		storeError(w, r, err, "item not found")
		return
	}
	jsonResponse(w, http.StatusCreated, map[string]string{"message": "added to cart"})
}

// Remove handles DELETE /api/cart/{itemId}.
func (h *CartHandler) Remove(w http.ResponseWriter, r *http.Request) {
	itemID, ok := pathID(r, "itemId")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid item id")
		return
	}

	if err := store.RemoveFromCart(r.Context(), h.DB, GetClaims(r.Context()).UserID, itemID); err != nil {
		storeError(w, r, err, "item not in cart")
		return
	}
	jsonResponse(w, http.StatusOK, map[string]string{"message": "removed from cart"})
}

// Clear handles DELETE /api/cart.
func (h *CartHandler) Clear(w http.ResponseWriter, r *http.Request) {
	if err := store.ClearCart(r.Context(), h.DB, GetClaims(r.Context()).UserID); err != nil {
		storeError(w, r, err, "")
		return
	}
	jsonResponse(w, http.StatusOK, map[string]string{"message": "cart cleared"})
}

// Checkout handles POST /api/cart/checkout. Each entry becomes an independent
// order; one failing does not roll back the others.
func (h *CartHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())

	entries, err := store.ListCart(r.Context(), h.DB, claims.UserID)
	if err != nil {
		storeError(w, r, err, "")
		return
	}
	if len(entries) == 0 {
		jsonError(w, http.StatusBadRequest, "cart is empty")
		return
	}

	results := make([]checkoutResult, 0, len(entries))
	var placedCount int
	for _, e := range entries {
		res := checkoutResult{ItemID: e.ItemID}
		placed, err := store.CreateOrder(r.Context(), h.DB, e.ItemID, claims.UserID, 1)
		if err != nil {
			status, msg := classify(err, "item not found")
			if status == http.StatusInternalServerError {
				slog.ErrorContext(r.Context(), "checkout entry failed", "item", e.ItemID, "buyer", claims.UserID, "error", err)
			}
			res.Error = msg
		} else {
			h.fx.placed(r.Context(), placed)
			res.Order = &placedOrder{Order: placed.Order, OTP: placed.OTP}
			placedCount++
		}
		results = append(results, res)
	}

	slog.Info("checkout", "buyer", claims.UserID, "entries", len(entries), "placed", placedCount)
	jsonResponse(w, http.StatusOK, map[string]any{"results": results})
}
