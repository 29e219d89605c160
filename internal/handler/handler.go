// Package handler exposes the storefront core over HTTP. Routes are grouped
// per concern: catalog reads, per-user cart and order operations, promo code
// validation, and an API-key protected admin surface for order status
// management.
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/chatshop-io/chatshop/internal/domain/cart"
	"github.com/chatshop-io/chatshop/internal/domain/order"
	"github.com/chatshop-io/chatshop/internal/domain/product"
	"github.com/chatshop-io/chatshop/internal/domain/promo"
)

// Handler wires the domain services into HTTP endpoints.
type Handler struct {
	products  product.Repository
	carts     *cart.Service
	discounts *promo.Service
	orders    *order.Service
	auth      *APIKeyAuth
}

// New constructs a Handler with the required domain dependencies.
func New(
	products product.Repository,
	carts *cart.Service,
	discounts *promo.Service,
	orders *order.Service,
	auth *APIKeyAuth,
) *Handler {
	return &Handler{
		products:  products,
		carts:     carts,
		discounts: discounts,
		orders:    orders,
		auth:      auth,
	}
}

// Routes builds the API router.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Get("/products", h.ListProducts)
	r.Get("/products/{productID}", h.GetProduct)
	r.Get("/products/{productID}/stock", h.CheckStock)
	r.Get("/categories", h.ListCategories)

	r.Route("/users/{userID}", func(r chi.Router) {
		r.Route("/cart", func(r chi.Router) {
			r.Get("/", h.GetCart)
			r.Delete("/", h.ClearCart)
			r.Post("/items", h.AddCartItem)
			r.Put("/items/{productID}", h.UpdateCartItem)
			r.Delete("/items/{productID}", h.RemoveCartItem)
		})
		r.Route("/orders", func(r chi.Router) {
			r.Post("/", h.CreateOrder)
			r.Get("/", h.ListOrders)
			r.Get("/{orderID}", h.GetOrder)
			r.Post("/{orderID}/cancel", h.CancelOrder)
		})
	})

	r.Post("/promocodes/validate", h.ValidatePromo)

	r.Route("/admin", func(r chi.Router) {
		r.Use(h.auth.Middleware)
		r.Patch("/orders/{orderID}/status", h.UpdateOrderStatus)
	})

	return r
}
