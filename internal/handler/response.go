package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/chatshop-io/chatshop/internal/domain/cart"
	"github.com/chatshop-io/chatshop/internal/domain/order"
	"github.com/chatshop-io/chatshop/internal/domain/product"
	"github.com/chatshop-io/chatshop/internal/domain/promo"
)

type errorResponse struct {
	Error string `json:"error"`
	// Details carries machine-readable context for specific failures,
	// e.g. available/requested quantities on stock conflicts.
	Details map[string]any `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeDomainError maps domain errors onto HTTP statuses. Anything
// unrecognized is a 500 with a generic body; the cause is logged, not leaked.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		cartValidation  *cart.ValidationError
		orderValidation *order.ValidationError
		itemNotFound    *cart.ItemNotFoundError
		insufficient    *product.InsufficientStockError
		unavailable     *product.UnavailableError
		emptyCart       *order.EmptyCartError
		promoRejected   *order.PromoRejectedError
		badTransition   *order.InvalidStatusTransitionError
		cannotCancel    *order.CannotCancelError
	)
	switch {
	case errors.As(err, &cartValidation):
		writeError(w, http.StatusBadRequest, cartValidation.Reason)
	case errors.As(err, &orderValidation):
		writeError(w, http.StatusBadRequest, orderValidation.Reason)
	case errors.Is(err, product.ErrNotFound):
		writeError(w, http.StatusNotFound, "product not found")
	case errors.Is(err, order.ErrNotFound):
		writeError(w, http.StatusNotFound, "order not found")
	case errors.Is(err, promo.ErrNotFound):
		writeError(w, http.StatusNotFound, "promocode not found")
	case errors.As(err, &itemNotFound):
		writeError(w, http.StatusNotFound, itemNotFound.Error())
	case errors.As(err, &insufficient):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Error: insufficient.Error(),
			Details: map[string]any{
				"product_id": insufficient.ProductID,
				"available":  insufficient.Available,
				"requested":  insufficient.Requested,
			},
		})
	case errors.As(err, &unavailable):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Error: unavailable.Error(),
			Details: map[string]any{
				"product_id": unavailable.ProductID,
			},
		})
	case errors.As(err, &emptyCart):
		writeError(w, http.StatusUnprocessableEntity, "cart is empty")
	case errors.As(err, &promoRejected):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Error: promoRejected.Message,
			Details: map[string]any{
				"code": promoRejected.Code,
			},
		})
	case errors.As(err, &badTransition):
		writeError(w, http.StatusConflict, badTransition.Error())
	case errors.As(err, &cannotCancel):
		writeError(w, http.StatusConflict, cannotCancel.Error())
	default:
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.Wrap(err, "decode request body")
	}
	return nil
}

// pathID parses a positive int64 path parameter.
func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
