package handler

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/chatshop-io/chatshop/internal/domain/cart"
)

type cartItemResponse struct {
	ProductID   int64           `json:"product_id"`
	Name        string          `json:"name"`
	Price       decimal.Decimal `json:"price"`
	Qty         int             `json:"qty"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	Unavailable bool            `json:"unavailable,omitempty"`
}

type cartResponse struct {
	UserID     int64              `json:"user_id"`
	Items      []cartItemResponse `json:"items"`
	Subtotal   decimal.Decimal    `json:"subtotal"`
	ItemsCount int                `json:"items_count"`
	Positions  int                `json:"positions"`
}

func toCartResponse(c *cart.Cart) cartResponse {
	totals := cart.CalcTotals(c)
	items := make([]cartItemResponse, len(c.Items))
	for i, it := range c.Items {
		items[i] = cartItemResponse{
			ProductID:   it.ProductID,
			Name:        it.Name,
			Price:       it.Price,
			Qty:         it.Qty,
			Subtotal:    it.Price.Mul(decimal.NewFromInt(int64(it.Qty))),
			Unavailable: it.Unavailable,
		}
	}
	return cartResponse{
		UserID:     c.UserID,
		Items:      items,
		Subtotal:   totals.Subtotal,
		ItemsCount: totals.ItemsCount,
		Positions:  totals.PositionsCount,
	}
}

// GetCart returns the user's cart with live product data.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(r, "userID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	c, err := h.carts.Get(r.Context(), userID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartResponse(c))
}

// AddCartItem adds a quantity of a product to the cart, summing with any
// existing line.
func (h *Handler) AddCartItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(r, "userID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	var req struct {
		ProductID int64 `json:"product_id"`
		Qty       int   `json:"qty"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	c, err := h.carts.AddItem(r.Context(), userID, req.ProductID, req.Qty)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartResponse(c))
}

// UpdateCartItem sets an existing line's quantity; zero removes the line.
func (h *Handler) UpdateCartItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(r, "userID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	productID, ok := pathID(r, "productID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid product id")
		return
	}

	var req struct {
		Qty int `json:"qty"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	c, err := h.carts.UpdateItem(r.Context(), userID, productID, req.Qty)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartResponse(c))
}

// RemoveCartItem deletes a line from the cart. Removing an absent line
// succeeds.
func (h *Handler) RemoveCartItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(r, "userID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	productID, ok := pathID(r, "productID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid product id")
		return
	}

	if err := h.carts.RemoveItem(r.Context(), userID, productID); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ClearCart removes every line from the cart.
func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(r, "userID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	if err := h.carts.Clear(r.Context(), userID); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
