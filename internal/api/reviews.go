package api

import (
	"database/sql"
	"net/http"
	"strings"

	"github.com/erazemk/bazar/internal/model"
	"github.com/erazemk/bazar/internal/store"
)

// ReviewsHandler handles seller reviews.
type ReviewsHandler struct {
	DB *sql.DB
}

type reviewRequest struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

// List handles GET /api/users/{id}/reviews.
func (h *ReviewsHandler) List(w http.ResponseWriter, r *http.Request) {
	sellerID, ok := pathID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	reviews, err := store.ListReviewsForSeller(r.Context(), h.DB, sellerID)
	if err != nil {
		storeError(w, r, err, "")
		return
	}
	if reviews == nil {
		reviews = []model.Review{}
	}
	jsonResponse(w, http.StatusOK, reviews)
}

// Create handles POST /api/users/{id}/reviews.
func (h *ReviewsHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())
	sellerID, ok := pathID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	var req reviewRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !model.ValidRating(req.Rating) {
		jsonError(w, http.StatusBadRequest, "rating must be between 1 and 5")
		return
	}

	review, err := store.CreateReview(r.Context(), h.DB, sellerID, claims.UserID, req.Rating, strings.TrimSpace(req.Comment))
	if err != nil {
		storeError(w, r, err, "user not found")
		return
	}
	jsonResponse(w, http.StatusCreated, review)
}

// Update handles PATCH /api/reviews/{id}.
func (h *ReviewsHandler) Update(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())
	id, ok := pathID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid review id")
		return
	}

	var req reviewRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !model.ValidRating(req.Rating) {
		jsonError(w, http.StatusBadRequest, "rating must be between 1 and 5")
		return
	}

	review, err := store.UpdateReview(r.Context(), h.DB, id, claims.UserID, req.Rating, strings.TrimSpace(req.Comment))
	if err != nil {
		storeError(w, r, err, "review not found")
		return
	}
	jsonResponse(w, http.StatusOK, review)
}

// Delete handles DELETE /api/reviews/{id}.
func (h *ReviewsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())
	id, ok := pathID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid review id")
		return
	}

	if err := store.DeleteReview(r.Context(), h.DB, id, claims.UserID); err != nil {
		storeError(w, r, err, "review not found")
		return
	}
	jsonResponse(w, http.StatusOK, map[string]string{"message": "review deleted"})
}
