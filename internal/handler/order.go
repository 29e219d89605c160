package handler

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/chatshop-io/chatshop/internal/domain/order"
)

type orderItemResponse struct {
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Qty       int             `json:"qty"`
}

type orderResponse struct {
	ID            int64               `json:"id"`
	Number        string              `json:"number"`
	Status        order.Status        `json:"status"`
	Subtotal      decimal.Decimal     `json:"subtotal"`
	Discount      decimal.Decimal     `json:"discount"`
	Total         decimal.Decimal     `json:"total"`
	ContactName   string              `json:"contact_name"`
	ContactPhone  string              `json:"contact_phone"`
	Address       string              `json:"address"`
	PaymentMethod string              `json:"payment_method"`
	PromoCode     string              `json:"promo_code,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
	Items         []orderItemResponse `json:"items,omitempty"`
}

func toOrderResponse(o *order.Order, items []order.Item) orderResponse {
	resp := orderResponse{
		ID:            o.ID,
		Number:        o.Number,
		Status:        o.Status,
		Subtotal:      o.Subtotal,
		Discount:      o.Discount,
		Total:         o.Total,
		ContactName:   o.Contact.Name,
		ContactPhone:  o.Contact.Phone,
		Address:       o.Contact.Address,
		PaymentMethod: o.PaymentMethod,
		PromoCode:     o.PromoCode,
		CreatedAt:     o.CreatedAt,
	}
	for _, it := range items {
		resp.Items = append(resp.Items, orderItemResponse{
			ProductID: it.ProductID,
			Name:      it.Name,
			Price:     it.Price,
			Qty:       it.Qty,
		})
	}
	return resp
}

// CreateOrder checks out the user's cart into a new order.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(r, "userID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	var req struct {
		Name          string `json:"name"`
		Phone         string `json:"phone"`
		Address       string `json:"address"`
		PaymentMethod string `json:"payment_method"`
		PromoCode     string `json:"promo_code"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	o, err := h.orders.Create(r.Context(), order.CreateRequest{
		UserID: userID,
		Contact: order.Contact{
			Name:    req.Name,
			Phone:   req.Phone,
			Address: req.Address,
		},
		PaymentMethod: req.PaymentMethod,
		PromoCode:     req.PromoCode,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	items, err := h.orders.Items(r.Context(), o.ID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrderResponse(o, items))
}

// ListOrders returns the user's orders, most recent first.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(r, "userID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	orders, err := h.orders.List(r.Context(), userID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	resp := make([]orderResponse, len(orders))
	for i := range orders {
		resp[i] = toOrderResponse(&orders[i], nil)
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetOrder returns one of the user's orders with its line items. Orders of
// other users are indistinguishable from missing ones.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(r, "userID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	orderID, ok := pathID(r, "orderID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	o, err := h.orders.Get(r.Context(), orderID, userID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if o == nil {
		writeError(w, http.StatusNotFound, "order not found")
		return
	}

	items, err := h.orders.Items(r.Context(), o.ID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o, items))
}

// CancelOrder cancels the user's order while its status still allows it.
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(r, "userID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	orderID, ok := pathID(r, "orderID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	o, err := h.orders.Cancel(r.Context(), orderID, userID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o, nil))
}

// UpdateOrderStatus moves an order to a new lifecycle status. Admin only.
func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	orderID, ok := pathID(r, "orderID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	var req struct {
		Status string `json:"status"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	o, err := h.orders.UpdateStatus(r.Context(), orderID, order.Status(req.Status))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o, nil))
}
