package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/chatshop-io/chatshop/internal/domain/promo"
)

type promoValidationResponse struct {
	Valid   bool               `json:"valid"`
	Message string             `json:"message,omitempty"`
	Type    promo.DiscountType `json:"type,omitempty"`
	Value   decimal.Decimal    `json:"value,omitempty"`
	Used    bool               `json:"used,omitempty"`
}

// ValidatePromo checks a promo code for the given user without consuming it.
// An invalid code is a 200 with valid=false and the user-facing reason, not
// an error status.
func (h *Handler) ValidatePromo(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code   string `json:"code"`
		UserID int64  `json:"user_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Code) == "" {
		writeError(w, http.StatusBadRequest, "code is required")
		return
	}

	res, err := h.discounts.ValidatePromo(r.Context(), req.Code, time.Now())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	resp := promoValidationResponse{
		Valid:   res.Valid,
		Message: res.Message,
		Type:    res.Type,
		Value:   res.Value,
	}

	if res.Valid && req.UserID > 0 {
		used, err := h.discounts.CheckUsage(r.Context(), req.Code, req.UserID)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		if used {
			resp = promoValidationResponse{Message: "Промокод уже использован", Used: true}
		}
	}

	writeJSON(w, http.StatusOK, resp)
}
