package handler

import (
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/chatshop-io/chatshop/internal/domain/product"
)

type productResponse struct {
	ID         int64           `json:"id"`
	Name       string          `json:"name"`
	Price      decimal.Decimal `json:"price"`
	Stock      int             `json:"stock"`
	CategoryID int64           `json:"category_id"`
	Active     bool            `json:"active"`
}

func toProductResponse(p product.Product) productResponse {
	return productResponse{
		ID:         p.ID,
		Name:       p.Name,
		Price:      p.Price,
		Stock:      p.Stock,
		CategoryID: p.CategoryID,
		Active:     p.Active,
	}
}

// ListProducts returns the full catalog.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.List(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	resp := make([]productResponse, len(products))
	for i, p := range products {
		resp[i] = toProductResponse(p)
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetProduct returns a single product by ID.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "productID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid product id")
		return
	}

	p, err := h.products.GetByID(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductResponse(*p))
}

// CheckStock reports whether the requested quantity of a product is in stock.
func (h *Handler) CheckStock(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "productID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid product id")
		return
	}
	qty, err := strconv.Atoi(r.URL.Query().Get("qty"))
	if err != nil || qty <= 0 {
		writeError(w, http.StatusBadRequest, "qty must be a positive integer")
		return
	}

	available, err := h.carts.CheckStock(r.Context(), id, qty)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"product_id": id,
		"qty":        qty,
		"available":  available,
	})
}

// ListCategories returns all catalog categories.
func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.products.ListCategories(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	type categoryResponse struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	}
	resp := make([]categoryResponse, len(categories))
	for i, c := range categories {
		resp[i] = categoryResponse{ID: c.ID, Name: c.Name}
	}
	writeJSON(w, http.StatusOK, resp)
}
