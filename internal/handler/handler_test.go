package handler

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatshop-io/chatshop/internal/domain/auth"
	"github.com/chatshop-io/chatshop/internal/domain/cart"
	"github.com/chatshop-io/chatshop/internal/domain/order"
	"github.com/chatshop-io/chatshop/internal/domain/product"
	"github.com/chatshop-io/chatshop/internal/domain/promo"
	"github.com/chatshop-io/chatshop/internal/notify"
	"github.com/chatshop-io/chatshop/internal/storage/memory"
	"github.com/chatshop-io/chatshop/pkg/keymutex"
)

const testPepper = "test-pepper"

func newTestServer(t *testing.T) (*memory.Store, http.Handler) {
	t.Helper()

	store := memory.NewStore()
	store.SeedCategory(product.Category{ID: 1, Name: "Кофе"})
	store.SeedProduct(product.Product{
		ID: 1, Name: "Эспрессо", Price: decimal.NewFromInt(250),
		Stock: 10, CategoryID: 1, Active: true,
	})
	store.SeedProduct(product.Product{
		ID: 2, Name: "Латте", Price: decimal.NewFromInt(350),
		Stock: 3, CategoryID: 1, Active: true,
	})
	store.SeedPromocode(promo.Promocode{
		Code:      "SAVE10",
		Type:      promo.DiscountPercent,
		Value:     decimal.NewFromInt(10),
		ValidFrom: time.Now().Add(-time.Hour),
		ValidTo:   time.Now().Add(time.Hour),
	})

	mac := hmac.New(sha256.New, []byte(testPepper))
	mac.Write([]byte("admin-key"))
	store.SeedAPIKey(auth.APIKey{
		ID:      1,
		KeyHash: hex.EncodeToString(mac.Sum(nil)),
		Name:    "test admin",
	})

	users := keymutex.New()
	carts := cart.NewService(store.Carts(), store.Products(), users)
	discounts := promo.NewService(store.Promos())
	orders := order.NewService(
		carts, discounts, store.Products(), store.Orders(), store.Checkouts(),
		notify.New(notify.SenderFunc(func(context.Context, int64, string) error { return nil }), nil),
		users,
	)

	h := New(store.Products(), carts, discounts, orders, NewAPIKeyAuth(store.APIKeys(), []byte(testPepper)))
	return store, h.Routes()
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var body map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return body
}

func TestListProducts(t *testing.T) {
	_, h := newTestServer(t)

	w := doJSON(t, h, http.MethodGet, "/products", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var products []map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&products))
	assert.Len(t, products, 2)
}

func TestGetProduct_NotFound(t *testing.T) {
	_, h := newTestServer(t)

	w := doJSON(t, h, http.MethodGet, "/products/999", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCartFlow(t *testing.T) {
	_, h := newTestServer(t)

	w := doJSON(t, h, http.MethodPost, "/users/7/cart/items", map[string]any{
		"product_id": 1, "qty": 2,
	})
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	assert.Equal(t, "500", body["subtotal"])
	assert.Equal(t, float64(2), body["items_count"])

	// Update the line quantity.
	w = doJSON(t, h, http.MethodPut, "/users/7/cart/items/1", map[string]any{"qty": 1})
	require.Equal(t, http.StatusOK, w.Code)
	body = decodeBody(t, w)
	assert.Equal(t, "250", body["subtotal"])

	// Remove it.
	w = doJSON(t, h, http.MethodDelete, "/users/7/cart/items/1", nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	w = doJSON(t, h, http.MethodGet, "/users/7/cart", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body = decodeBody(t, w)
	assert.Equal(t, float64(0), body["items_count"])
}

func TestAddCartItem_InsufficientStock(t *testing.T) {
	_, h := newTestServer(t)

	w := doJSON(t, h, http.MethodPost, "/users/7/cart/items", map[string]any{
		"product_id": 2, "qty": 5,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	body := decodeBody(t, w)
	details := body["details"].(map[string]any)
	assert.Equal(t, float64(3), details["available"])
	assert.Equal(t, float64(5), details["requested"])
}

func TestAddCartItem_InvalidQty(t *testing.T) {
	_, h := newTestServer(t)

	w := doJSON(t, h, http.MethodPost, "/users/7/cart/items", map[string]any{
		"product_id": 1, "qty": 0,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpdateCartItem_NotInCart(t *testing.T) {
	_, h := newTestServer(t)

	w := doJSON(t, h, http.MethodPut, "/users/7/cart/items/1", map[string]any{"qty": 2})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCheckStock(t *testing.T) {
	_, h := newTestServer(t)

	w := doJSON(t, h, http.MethodGet, "/products/2/stock?qty=3", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decodeBody(t, w)["available"])

	w = doJSON(t, h, http.MethodGet, "/products/2/stock?qty=4", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decodeBody(t, w)["available"])
}

func checkoutBody() map[string]any {
	return map[string]any{
		"name":           "Иван Петров",
		"phone":          "+79001234567",
		"address":        "Москва, Тверская 1",
		"payment_method": "card",
	}
}

func TestCreateOrder(t *testing.T) {
	store, h := newTestServer(t)

	w := doJSON(t, h, http.MethodPost, "/users/7/cart/items", map[string]any{
		"product_id": 1, "qty": 2,
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, h, http.MethodPost, "/users/7/orders", checkoutBody())
	require.Equal(t, http.StatusCreated, w.Code)

	body := decodeBody(t, w)
	assert.Equal(t, "created", body["status"])
	assert.Contains(t, body["number"], "ORD-")
	assert.Equal(t, "500", body["total"])
	assert.Len(t, body["items"], 1)

	// Stock reserved, cart cleared.
	assert.Equal(t, 8, store.Stock(1))
	w = doJSON(t, h, http.MethodGet, "/users/7/cart", nil)
	assert.Equal(t, float64(0), decodeBody(t, w)["items_count"])
}

func TestCreateOrder_EmptyCart(t *testing.T) {
	_, h := newTestServer(t)

	w := doJSON(t, h, http.MethodPost, "/users/7/orders", checkoutBody())
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestCreateOrder_MissingContact(t *testing.T) {
	_, h := newTestServer(t)

	doJSON(t, h, http.MethodPost, "/users/7/cart/items", map[string]any{
		"product_id": 1, "qty": 1,
	})

	body := checkoutBody()
	body["phone"] = ""
	w := doJSON(t, h, http.MethodPost, "/users/7/orders", body)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateOrder_WithPromo(t *testing.T) {
	_, h := newTestServer(t)

	doJSON(t, h, http.MethodPost, "/users/7/cart/items", map[string]any{
		"product_id": 1, "qty": 4,
	})

	body := checkoutBody()
	body["promo_code"] = "SAVE10"
	w := doJSON(t, h, http.MethodPost, "/users/7/orders", body)
	require.Equal(t, http.StatusCreated, w.Code)

	resp := decodeBody(t, w)
	assert.Equal(t, "100", resp["discount"])
	assert.Equal(t, "900", resp["total"])
}

func TestCreateOrder_UnknownPromo(t *testing.T) {
	_, h := newTestServer(t)

	doJSON(t, h, http.MethodPost, "/users/7/cart/items", map[string]any{
		"product_id": 1, "qty": 1,
	})

	body := checkoutBody()
	body["promo_code"] = "NOPE"
	w := doJSON(t, h, http.MethodPost, "/users/7/orders", body)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "Промокод не найден", decodeBody(t, w)["error"])
}

func TestGetOrder_ForeignUser(t *testing.T) {
	_, h := newTestServer(t)

	doJSON(t, h, http.MethodPost, "/users/7/cart/items", map[string]any{
		"product_id": 1, "qty": 1,
	})
	w := doJSON(t, h, http.MethodPost, "/users/7/orders", checkoutBody())
	require.Equal(t, http.StatusCreated, w.Code)
	orderID := decodeBody(t, w)["id"].(float64)

	w = doJSON(t, h, http.MethodGet, "/users/8/orders/"+jsonID(orderID), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCancelOrder(t *testing.T) {
	store, h := newTestServer(t)

	doJSON(t, h, http.MethodPost, "/users/7/cart/items", map[string]any{
		"product_id": 1, "qty": 2,
	})
	w := doJSON(t, h, http.MethodPost, "/users/7/orders", checkoutBody())
	require.Equal(t, http.StatusCreated, w.Code)
	orderID := decodeBody(t, w)["id"].(float64)
	require.Equal(t, 8, store.Stock(1))

	w = doJSON(t, h, http.MethodPost, "/users/7/orders/"+jsonID(orderID)+"/cancel", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "cancelled", decodeBody(t, w)["status"])

	// Stock released.
	assert.Equal(t, 10, store.Stock(1))

	// Cancelling again conflicts.
	w = doJSON(t, h, http.MethodPost, "/users/7/orders/"+jsonID(orderID)+"/cancel", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestValidatePromoEndpoint(t *testing.T) {
	_, h := newTestServer(t)

	w := doJSON(t, h, http.MethodPost, "/promocodes/validate", map[string]any{
		"code": "SAVE10", "user_id": 7,
	})
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, true, body["valid"])
	assert.Equal(t, "percent", body["type"])

	w = doJSON(t, h, http.MethodPost, "/promocodes/validate", map[string]any{
		"code": "MISSING",
	})
	require.Equal(t, http.StatusOK, w.Code)
	body = decodeBody(t, w)
	assert.Equal(t, false, body["valid"])
	assert.Equal(t, "Промокод не найден", body["message"])
}

func TestAdminStatusUpdate(t *testing.T) {
	_, h := newTestServer(t)

	doJSON(t, h, http.MethodPost, "/users/7/cart/items", map[string]any{
		"product_id": 1, "qty": 1,
	})
	w := doJSON(t, h, http.MethodPost, "/users/7/orders", checkoutBody())
	require.Equal(t, http.StatusCreated, w.Code)
	orderID := decodeBody(t, w)["id"].(float64)

	// No API key.
	req := httptest.NewRequest(http.MethodPatch, "/admin/orders/"+jsonID(orderID)+"/status",
		bytes.NewBufferString(`{"status":"confirmed"}`))
	w2 := httptest.NewRecorder()
	h.ServeHTTP(w2, req)
	assert.Equal(t, http.StatusUnauthorized, w2.Code)

	// Wrong key.
	req = httptest.NewRequest(http.MethodPatch, "/admin/orders/"+jsonID(orderID)+"/status",
		bytes.NewBufferString(`{"status":"confirmed"}`))
	req.Header.Set("X-API-Key", "wrong")
	w2 = httptest.NewRecorder()
	h.ServeHTTP(w2, req)
	assert.Equal(t, http.StatusUnauthorized, w2.Code)

	// Valid key.
	req = httptest.NewRequest(http.MethodPatch, "/admin/orders/"+jsonID(orderID)+"/status",
		bytes.NewBufferString(`{"status":"confirmed"}`))
	req.Header.Set("X-API-Key", "admin-key")
	w2 = httptest.NewRecorder()
	h.ServeHTTP(w2, req)
	require.Equal(t, http.StatusOK, w2.Code)
	assert.Equal(t, "confirmed", decodeBody(t, w2)["status"])

	// Illegal transition.
	req = httptest.NewRequest(http.MethodPatch, "/admin/orders/"+jsonID(orderID)+"/status",
		bytes.NewBufferString(`{"status":"delivered"}`))
	req.Header.Set("X-API-Key", "admin-key")
	w2 = httptest.NewRecorder()
	h.ServeHTTP(w2, req)
	assert.Equal(t, http.StatusConflict, w2.Code)
}

func jsonID(id float64) string {
	return strconv.FormatInt(int64(id), 10)
}
