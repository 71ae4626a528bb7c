package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/erazemk/bazar/internal/imaging"
	"github.com/erazemk/bazar/internal/model"
	"github.com/erazemk/bazar/internal/otp"
	"github.com/erazemk/bazar/internal/store"
)

// jsonResponse writes a JSON response with the given status code.
func jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("encoding response", "error", err)
		}
	}
}

// jsonError writes a JSON error response.
func jsonError(w http.ResponseWriter, status int, message string) {
	jsonResponse(w, status, map[string]string{"error": message})
}

// decodeJSON decodes a JSON request body into the given target.
func decodeJSON(r *http.Request, target any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(target)
}

// pathID parses a numeric URL parameter.
func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	return id, err == nil && id > 0
}

// clientErrors are domain and validation failures reported verbatim with 400.
var clientErrors = []error{
	store.ErrSelfPurchase,
	store.ErrOrderNotPending,
	store.ErrOTPExpired,
	store.ErrOTPAttemptsExhausted,
	store.ErrInvalidQuantity,
	store.ErrAlreadyInCart,
	store.ErrOwnItem,
	store.ErrAlreadyReviewed,
	store.ErrSelfReview,
	store.ErrItemLocked,
	store.ErrEmailTaken,
	store.ErrChatSessionClosed,
	otp.ErrInvalidFormat,
	imaging.ErrUnsupported,
	imaging.ErrTooLarge,
	model.ErrInvalidPrice,
}

// classify maps an error from the store to a status and client message.
// Unrecognized errors are reported as a generic 500.
func classify(err error, notFound string) (int, string) {
	var mismatch *store.OTPMismatchError
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, notFound
	case errors.Is(err, store.ErrForbidden):
		return http.StatusForbidden, "not allowed"
	case errors.Is(err, store.ErrItemUnavailable):
		return http.StatusBadRequest, "Item not available"
	case errors.As(err, &mismatch):
		return http.StatusBadRequest, mismatch.Error()
	}
	for _, target := range clientErrors {
		if errors.Is(err, target) {
			return http.StatusBadRequest, target.Error()
		}
	}
	return http.StatusInternalServerError, "internal error"
}

// storeError writes the response for err, logging anything unexpected.
func storeError(w http.ResponseWriter, r *http.Request, err error, notFound string) {
	status, msg := classify(err, notFound)
	if status == http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
			"error", err,
		)
	}
	jsonError(w, status, msg)
}
