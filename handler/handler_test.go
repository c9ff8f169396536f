package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/mdemidkin1992/intershop/api"
	"github.com/mdemidkin1992/intershop/store"
)

type fakeCatalog struct {
	getProduct     func(ctx context.Context, id int64) (*api.Product, error)
	searchProducts func(ctx context.Context, search string, sort api.SortType, pageNumber, pageSize int) (*api.ProductPage, error)
	createProduct  func(ctx context.Context, req api.CreateProductRequest) (*api.Product, error)
	restock        func(ctx context.Context, productID int64, newStock int) (*api.Product, error)
}

func (f *fakeCatalog) GetProduct(ctx context.Context, id int64) (*api.Product, error) {
	return f.getProduct(ctx, id)
}

func (f *fakeCatalog) SearchProducts(ctx context.Context, search string, sort api.SortType, pageNumber, pageSize int) (*api.ProductPage, error) {
	return f.searchProducts(ctx, search, sort, pageNumber, pageSize)
}

func (f *fakeCatalog) CreateProduct(ctx context.Context, req api.CreateProductRequest) (*api.Product, error) {
	return f.createProduct(ctx, req)
}

func (f *fakeCatalog) Restock(ctx context.Context, productID int64, newStock int) (*api.Product, error) {
	return f.restock(ctx, productID, newStock)
}

type fakeCart struct {
	modifyItem func(ctx context.Context, sessionID string, productID int64, action api.CartAction) (*api.Cart, error)
	getCart    func(ctx context.Context, sessionID string) (*api.Cart, error)
	checkout   func(ctx context.Context, sessionID string) (*api.Order, error)
	getOrder   func(ctx context.Context, id int64) (*api.Order, error)
	listOrders func(ctx context.Context, sessionID string) ([]api.Order, error)
}

func (f *fakeCart) ModifyItem(ctx context.Context, sessionID string, productID int64, action api.CartAction) (*api.Cart, error) {
	return f.modifyItem(ctx, sessionID, productID, action)
}

func (f *fakeCart) GetCart(ctx context.Context, sessionID string) (*api.Cart, error) {
	return f.getCart(ctx, sessionID)
}

func (f *fakeCart) Checkout(ctx context.Context, sessionID string) (*api.Order, error) {
	return f.checkout(ctx, sessionID)
}

func (f *fakeCart) GetOrder(ctx context.Context, id int64) (*api.Order, error) {
	return f.getOrder(ctx, id)
}

func (f *fakeCart) ListOrders(ctx context.Context, sessionID string) ([]api.Order, error) {
	return f.listOrders(ctx, sessionID)
}

func newRouter(catalog *fakeCatalog, cart *fakeCart) *mux.Router {
	r := mux.NewRouter()
	New(catalog, cart).RegisterRoutes(r)
	return r
}

func doRequest(t *testing.T, r http.Handler, method, target, session, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reqBody *strings.Reader
	if body == "" {
		reqBody = strings.NewReader("")
	} else {
		reqBody = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reqBody)
	if session != "" {
		req.Header.Set("X-Session-ID", session)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestGetProduct_OK(t *testing.T) {
	catalog := &fakeCatalog{
		getProduct: func(_ context.Context, id int64) (*api.Product, error) {
			return &api.Product{ID: id, Title: "lamp", Price: decimal.New(999, -2), Stock: 3}, nil
		},
	}
	r := newRouter(catalog, &fakeCart{})

	rec := doRequest(t, r, http.MethodGet, "/products/1", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var p api.Product
	if err := json.Unmarshal(rec.Body.Bytes(), &p); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if p.ID != 1 || p.Title != "lamp" {
		t.Fatalf("unexpected product: %+v", p)
	}
}

func TestGetProduct_NotFound(t *testing.T) {
	catalog := &fakeCatalog{
		getProduct: func(context.Context, int64) (*api.Product, error) {
			return nil, store.ErrNotFound
		},
	}
	r := newRouter(catalog, &fakeCart{})

	rec := doRequest(t, r, http.MethodGet, "/products/99", "", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestGetProduct_NonNumericIDIsNotRouted(t *testing.T) {
	r := newRouter(&fakeCatalog{}, &fakeCart{})

	rec := doRequest(t, r, http.MethodGet, "/products/abc", "", "")
	if rec.Code != http.StatusNotFound && rec.Code != http.StatusMovedPermanently {
		t.Fatalf("status = %d, want route miss", rec.Code)
	}
}

func TestListProducts_PassesQuery(t *testing.T) {
	catalog := &fakeCatalog{
		searchProducts: func(_ context.Context, search string, sort api.SortType, pageNumber, pageSize int) (*api.ProductPage, error) {
			if search != "lamp" || sort != api.SortPrice || pageNumber != 2 || pageSize != 5 {
				t.Fatalf("unexpected args: %q %s %d %d", search, sort, pageNumber, pageSize)
			}
			return &api.ProductPage{Search: search, Sort: sort, PageNumber: pageNumber, PageSize: pageSize}, nil
		},
	}
	r := newRouter(catalog, &fakeCart{})

	rec := doRequest(t, r, http.MethodGet, "/products?search=lamp&sort=PRICE&pageNumber=2&pageSize=5", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestCreateProduct_ValidationAndCreated(t *testing.T) {
	catalog := &fakeCatalog{
		createProduct: func(_ context.Context, req api.CreateProductRequest) (*api.Product, error) {
			return &api.Product{ID: 10, Title: req.Title, Price: req.Price, Stock: req.Stock}, nil
		},
	}
	r := newRouter(catalog, &fakeCart{})

	rec := doRequest(t, r, http.MethodPost, "/products", "", `{"title":""}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing title: status = %d, want 400", rec.Code)
	}

	rec = doRequest(t, r, http.MethodPost, "/products", "", `{"title":"lamp","price":"9.99","stock":3}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body)
	}
	var p api.Product
	if err := json.Unmarshal(rec.Body.Bytes(), &p); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if p.ID != 10 || p.Price.String() != "9.99" {
		t.Fatalf("unexpected product: %+v", p)
	}
}

func TestRestock_NegativeStockRejected(t *testing.T) {
	r := newRouter(&fakeCatalog{}, &fakeCart{})

	rec := doRequest(t, r, http.MethodPost, "/products/1/stock", "", `{"new_stock":-1}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestCart_RequiresSessionHeader(t *testing.T) {
	r := newRouter(&fakeCatalog{}, &fakeCart{})

	for _, tc := range []struct{ method, target string }{
		{http.MethodGet, "/cart"},
		{http.MethodPost, "/cart/items/1"},
		{http.MethodPost, "/checkout"},
		{http.MethodGet, "/orders"},
	} {
		rec := doRequest(t, r, tc.method, tc.target, "", `{"action":"plus"}`)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s %s: status = %d, want 400", tc.method, tc.target, rec.Code)
		}
	}
}

func TestModifyCartItem_BadActionRejected(t *testing.T) {
	r := newRouter(&fakeCatalog{}, &fakeCart{})

	rec := doRequest(t, r, http.MethodPost, "/cart/items/1", "s1", `{"action":"double"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestModifyCartItem_OK(t *testing.T) {
	cart := &fakeCart{
		modifyItem: func(_ context.Context, sessionID string, productID int64, action api.CartAction) (*api.Cart, error) {
			if sessionID != "s1" || productID != 3 || action != api.ActionMinus {
				t.Fatalf("unexpected args: %q %d %s", sessionID, productID, action)
			}
			return &api.Cart{SessionID: sessionID, Empty: true}, nil
		},
	}
	r := newRouter(&fakeCatalog{}, cart)

	rec := doRequest(t, r, http.MethodPost, "/cart/items/3", "s1", `{"action":"minus"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
	}
}

func TestCheckout_ConflictCarriesShortages(t *testing.T) {
	cart := &fakeCart{
		checkout: func(context.Context, string) (*api.Order, error) {
			return nil, &store.InsufficientStockError{Shortages: []api.Shortage{
				{ProductID: 2, Requested: 5, Available: 1},
			}}
		},
	}
	r := newRouter(&fakeCatalog{}, cart)

	rec := doRequest(t, r, http.MethodPost, "/checkout", "s1", "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
	var resp api.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if len(resp.Shortages) != 1 || resp.Shortages[0].ProductID != 2 {
		t.Fatalf("unexpected shortages: %+v", resp.Shortages)
	}
}

func TestCheckout_EmptyCartAndUnavailable(t *testing.T) {
	cart := &fakeCart{
		checkout: func(context.Context, string) (*api.Order, error) {
			return nil, store.ErrEmptyCart
		},
	}
	r := newRouter(&fakeCatalog{}, cart)
	rec := doRequest(t, r, http.MethodPost, "/checkout", "s1", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty cart: status = %d, want 400", rec.Code)
	}

	cart.checkout = func(context.Context, string) (*api.Order, error) {
		return nil, store.ErrStoreUnavailable
	}
	rec = doRequest(t, r, http.MethodPost, "/checkout", "s1", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("unavailable: status = %d, want 503", rec.Code)
	}
}

func TestCheckout_Created(t *testing.T) {
	cart := &fakeCart{
		checkout: func(_ context.Context, sessionID string) (*api.Order, error) {
			return &api.Order{ID: 7, SessionID: sessionID, Status: api.OrderCreated}, nil
		},
	}
	r := newRouter(&fakeCatalog{}, cart)

	rec := doRequest(t, r, http.MethodPost, "/checkout", "s1", "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rec.Code)
	}
	var o api.Order
	if err := json.Unmarshal(rec.Body.Bytes(), &o); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if o.ID != 7 || o.Status != api.OrderCreated {
		t.Fatalf("unexpected order: %+v", o)
	}
}

func TestListOrders_OK(t *testing.T) {
	cart := &fakeCart{
		listOrders: func(_ context.Context, sessionID string) ([]api.Order, error) {
			return []api.Order{{ID: 2, SessionID: sessionID}, {ID: 1, SessionID: sessionID}}, nil
		},
	}
	r := newRouter(&fakeCatalog{}, cart)

	rec := doRequest(t, r, http.MethodGet, "/orders", "s1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var orders []api.Order
	if err := json.Unmarshal(rec.Body.Bytes(), &orders); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if len(orders) != 2 || orders[0].ID != 2 {
		t.Fatalf("unexpected orders: %+v", orders)
	}
}

func TestHealth(t *testing.T) {
	r := newRouter(&fakeCatalog{}, &fakeCart{})
	rec := doRequest(t, r, http.MethodGet, "/health", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}
