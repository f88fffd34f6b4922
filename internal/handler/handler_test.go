package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/kart-cart/internal/domain/cart"
	"github.com/xenking/kart-cart/internal/domain/product"
	"github.com/xenking/kart-cart/internal/storage/memory"
)

// --- Mock implementations ---

var errDown = errors.New("connection refused")

type failingStore struct{}

func (failingStore) UpsertIncrement(context.Context, string, int64) (cart.Upsert, error) {
	return cart.Upsert{}, errDown
}

func (failingStore) Remove(context.Context, string) (bool, error) {
	return false, errDown
}

func (failingStore) List(context.Context) ([]cart.Line, error) {
	return nil, errDown
}

type failingProducts struct {
	*memory.ProductRepository
}

func (failingProducts) Create(context.Context, product.Product) error {
	return errDown
}

func (failingProducts) List(context.Context) ([]product.Product, error) {
	return nil, errDown
}

// --- Helpers ---

type testServer struct {
	router   chi.Router
	products *memory.ProductRepository
}

func newServer(t *testing.T, products product.Repository, lines cart.Store) chi.Router {
	t.Helper()
	cartSvc, err := cart.NewService(products, lines, cart.Options{})
	require.NoError(t, err)

	r := chi.NewRouter()
	New(product.NewService(products, 0), cartSvc).Register(r)
	return r
}

func newMemoryServer(t *testing.T) testServer {
	t.Helper()
	products := memory.NewProductRepository()
	return testServer{
		router:   newServer(t, products, memory.NewCartStore()),
		products: products,
	}
}

func do(t *testing.T, r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func createProduct(t *testing.T, r http.Handler, name, price string) string {
	t.Helper()
	w := do(t, r, http.MethodPost, "/products", fmt.Sprintf(`{"name":%q,"price":%s}`, name, price))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[map[string]string](t, w)["productId"]
}

func message(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	return decode[map[string]any](t, w)["message"].(string)
}

// --- Tests ---

func TestCreateAndListProducts(t *testing.T) {
	s := newMemoryServer(t)

	w := do(t, s.router, http.MethodPost, "/products", `{"name":"Waffle","price":6.5}`)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	created := decode[map[string]string](t, w)
	assert.Equal(t, "Product added", created["message"])
	_, err := product.ParseID(created["productId"])
	require.NoError(t, err)

	createProduct(t, s.router, "Brownie", `"5.25"`)

	w = do(t, s.router, http.MethodGet, "/products", "")
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[[]map[string]any](t, w)
	require.Len(t, list, 2)
	assert.Equal(t, created["productId"], list[0]["_id"])
	assert.Equal(t, created["productId"], list[0]["id"])
	assert.Equal(t, "Waffle", list[0]["name"])
	assert.InDelta(t, 6.5, list[0]["price"], 1e-9)
	assert.InDelta(t, 5.25, list[1]["price"], 1e-9)

	w = do(t, s.router, http.MethodGet, "/products/"+created["productId"], "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Waffle", decode[map[string]any](t, w)["name"])
}

func TestCreateProduct_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
		msg  string
	}{
		{name: "malformed json", body: `{"name":`, msg: "Invalid request body"},
		{name: "not an object", body: `[1,2]`, msg: "Invalid request body"},
		{name: "missing name", body: `{"price":1}`, msg: "name is required"},
		{name: "blank name", body: `{"name":"  ","price":1}`, msg: "name is required"},
		{name: "missing price", body: `{"name":"x"}`, msg: "price must be a number"},
		{name: "price not numeric", body: `{"name":"x","price":"abc"}`, msg: "price must be a number"},
		{name: "negative price", body: `{"name":"x","price":-0.01}`, msg: "price must be a non-negative number"},
		{name: "huge exponent", body: `{"name":"x","price":1e2000000000}`, msg: "price is out of range"},
		{name: "huge exponent string", body: `{"name":"x","price":"1e2000000000"}`, msg: "price is out of range"},
		{name: "too many digits", body: `{"name":"x","price":123456789012345678901234567890123.45}`, msg: "price is out of range"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newMemoryServer(t)
			w := do(t, s.router, http.MethodPost, "/products", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, tt.msg, message(t, w))

			w = do(t, s.router, http.MethodGet, "/products", "")
			require.Equal(t, http.StatusOK, w.Code)
			assert.JSONEq(t, `[]`, w.Body.String(), "rejected products are never stored")
		})
	}
}

func TestGetProduct_Errors(t *testing.T) {
	s := newMemoryServer(t)

	w := do(t, s.router, http.MethodGet, "/products/not-an-id", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid product ID format", message(t, w))

	w = do(t, s.router, http.MethodGet, "/products/"+product.NewID(), "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Product not found with the provided ID.", message(t, w))
}

func TestAddToCart(t *testing.T) {
	s := newMemoryServer(t)
	id := createProduct(t, s.router, "Tiramisu", "5.50")

	w := do(t, s.router, http.MethodPost, "/cart", fmt.Sprintf(`{"productId":%q,"quantity":2}`, id))
	require.Equal(t, http.StatusOK, w.Code)
	first := decode[map[string]any](t, w)
	assert.Equal(t, "Product added to cart", first["message"])
	assert.Equal(t, id, first["productId"])
	assert.EqualValues(t, 2, first["quantity"])

	w = do(t, s.router, http.MethodPost, "/cart", fmt.Sprintf(`{"productId":%q,"quantity":3}`, id))
	require.Equal(t, http.StatusOK, w.Code)
	second := decode[map[string]any](t, w)
	assert.Equal(t, "Product quantity updated in cart", second["message"])
	assert.EqualValues(t, 5, second["quantity"])
}

func TestAddToCart_Validation(t *testing.T) {
	s := newMemoryServer(t)
	id := createProduct(t, s.router, "Tiramisu", "5.50")

	tests := []struct {
		name   string
		body   string
		status int
		msg    string
	}{
		{name: "malformed json", body: `{`, status: http.StatusBadRequest, msg: "Invalid request body"},
		{name: "quantity missing", body: fmt.Sprintf(`{"productId":%q}`, id), status: http.StatusBadRequest, msg: "quantity is not a number"},
		{name: "quantity string", body: fmt.Sprintf(`{"productId":%q,"quantity":"2"}`, id), status: http.StatusBadRequest, msg: "quantity is not a number"},
		{name: "quantity zero", body: fmt.Sprintf(`{"productId":%q,"quantity":0}`, id), status: http.StatusBadRequest, msg: "quantity must be greater than 0"},
		{name: "quantity negative", body: fmt.Sprintf(`{"productId":%q,"quantity":-4}`, id), status: http.StatusBadRequest, msg: "quantity must be greater than 0"},
		{name: "quantity fractional", body: fmt.Sprintf(`{"productId":%q,"quantity":1.5}`, id), status: http.StatusBadRequest, msg: "quantity is not an integer"},
		{name: "quantity huge exponent", body: fmt.Sprintf(`{"productId":%q,"quantity":1e20000000}`, id), status: http.StatusBadRequest, msg: "quantity is too large"},
		{name: "quantity checked before id", body: `{"productId":"bad","quantity":0}`, status: http.StatusBadRequest, msg: "quantity must be greater than 0"},
		{name: "malformed id", body: `{"productId":"bad","quantity":1}`, status: http.StatusBadRequest, msg: "Invalid product ID format"},
		{name: "missing id", body: `{"quantity":1}`, status: http.StatusBadRequest, msg: "Invalid product ID format"},
		{name: "unknown product", body: fmt.Sprintf(`{"productId":%q,"quantity":1}`, product.NewID()), status: http.StatusNotFound, msg: "Product not found with the provided ID."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, s.router, http.MethodPost, "/cart", tt.body)
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.msg, message(t, w))
		})
	}

	w := do(t, s.router, http.MethodGet, "/cart", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String(), "rejected adds never create lines")
}

func TestGetCartAndTotal(t *testing.T) {
	s := newMemoryServer(t)
	a := createProduct(t, s.router, "A", "10")
	b := createProduct(t, s.router, "B", "2.5")

	w := do(t, s.router, http.MethodGet, "/cart/total", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"total":0.00}`, w.Body.String())

	do(t, s.router, http.MethodPost, "/cart", fmt.Sprintf(`{"productId":%q,"quantity":2}`, a))
	do(t, s.router, http.MethodPost, "/cart", fmt.Sprintf(`{"productId":%q,"quantity":4}`, b))

	w = do(t, s.router, http.MethodGet, "/cart", "")
	require.Equal(t, http.StatusOK, w.Code)
	items := decode[[]map[string]any](t, w)
	require.Len(t, items, 2)
	assert.Equal(t, a, items[0]["productId"])
	assert.EqualValues(t, 2, items[0]["quantity"])
	assert.InDelta(t, 20.0, items[0]["lineTotal"], 1e-9)
	assert.Equal(t, "A", items[0]["product"].(map[string]any)["name"])
	assert.Equal(t, b, items[1]["productId"])
	assert.InDelta(t, 10.0, items[1]["lineTotal"], 1e-9)

	w = do(t, s.router, http.MethodGet, "/cart/total", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `{"total":30.00}`, w.Body.String())
}

func TestGetCart_OrphanedLineOmitted(t *testing.T) {
	s := newMemoryServer(t)
	kept := createProduct(t, s.router, "Kept", "1.25")
	gone := createProduct(t, s.router, "Gone", "100")

	do(t, s.router, http.MethodPost, "/cart", fmt.Sprintf(`{"productId":%q,"quantity":4}`, kept))
	do(t, s.router, http.MethodPost, "/cart", fmt.Sprintf(`{"productId":%q,"quantity":1}`, gone))
	s.products.Delete(gone)

	w := do(t, s.router, http.MethodGet, "/cart", "")
	require.Equal(t, http.StatusOK, w.Code)
	items := decode[[]map[string]any](t, w)
	require.Len(t, items, 1)
	assert.Equal(t, kept, items[0]["productId"])

	w = do(t, s.router, http.MethodGet, "/cart/total", "")
	assert.Equal(t, `{"total":5.00}`, w.Body.String())
}

func TestRemoveFromCart(t *testing.T) {
	s := newMemoryServer(t)
	id := createProduct(t, s.router, "Macaron", "3")
	do(t, s.router, http.MethodPost, "/cart", fmt.Sprintf(`{"productId":%q,"quantity":7}`, id))

	w := do(t, s.router, http.MethodDelete, "/cart/"+id, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Product removed from cart", message(t, w))

	w = do(t, s.router, http.MethodDelete, "/cart/"+id, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Product not found in cart", message(t, w))

	w = do(t, s.router, http.MethodDelete, "/cart/xyz", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid product ID format", message(t, w))
}

func TestStoreUnavailable(t *testing.T) {
	products := memory.NewProductRepository()
	p := product.Product{ID: product.NewID(), Name: "A", Price: decimal.NewFromInt(1)}
	require.NoError(t, products.Create(context.Background(), p))

	r := newServer(t, products, failingStore{})

	w := do(t, r, http.MethodPost, "/cart", fmt.Sprintf(`{"productId":%q,"quantity":1}`, p.ID))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Failed to add product to cart. Please try again later.", message(t, w))
	assert.NotContains(t, w.Body.String(), "connection refused")

	w = do(t, r, http.MethodGet, "/cart", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Internal server error", message(t, w))

	w = do(t, r, http.MethodGet, "/cart/total", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Failed to calculate cart total. Please try again later.", message(t, w))

	w = do(t, r, http.MethodDelete, "/cart/"+p.ID, "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	r = newServer(t, failingProducts{ProductRepository: products}, memory.NewCartStore())

	w = do(t, r, http.MethodPost, "/products", `{"name":"B","price":2}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Internal server error", message(t, w))

	w = do(t, r, http.MethodGet, "/products", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestUnknownRoute(t *testing.T) {
	s := newMemoryServer(t)

	w := do(t, s.router, http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Route not found", message(t, w))

	w = do(t, s.router, http.MethodPut, "/cart", "")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}
