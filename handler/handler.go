// Package handler is the HTTP layer mapping the api contract onto the
// catalog and cart services.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/mdemidkin1992/intershop/api"
	"github.com/mdemidkin1992/intershop/store"
)

// CatalogService is the catalog surface the handlers need.
type CatalogService interface {
	GetProduct(ctx context.Context, id int64) (*api.Product, error)
	SearchProducts(ctx context.Context, search string, sort api.SortType, pageNumber, pageSize int) (*api.ProductPage, error)
	CreateProduct(ctx context.Context, req api.CreateProductRequest) (*api.Product, error)
	Restock(ctx context.Context, productID int64, newStock int) (*api.Product, error)
}

// CartService is the cart/order surface the handlers need.
type CartService interface {
	ModifyItem(ctx context.Context, sessionID string, productID int64, action api.CartAction) (*api.Cart, error)
	GetCart(ctx context.Context, sessionID string) (*api.Cart, error)
	Checkout(ctx context.Context, sessionID string) (*api.Order, error)
	GetOrder(ctx context.Context, id int64) (*api.Order, error)
	ListOrders(ctx context.Context, sessionID string) ([]api.Order, error)
}

// Handler glues the HTTP routes to the services.
type Handler struct {
	catalog CatalogService
	cart    CartService
}

func New(catalog CatalogService, cart CartService) *Handler {
	return &Handler{catalog: catalog, cart: cart}
}

// RegisterRoutes registers all routes on the provided router.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)

	r.HandleFunc("/products", h.ListProducts).Methods(http.MethodGet)
	r.HandleFunc("/products", h.CreateProduct).Methods(http.MethodPost)
	r.HandleFunc("/products/{id:[0-9]+}", h.GetProduct).Methods(http.MethodGet)
	r.HandleFunc("/products/{id:[0-9]+}/stock", h.Restock).Methods(http.MethodPost)

	r.HandleFunc("/cart", h.GetCart).Methods(http.MethodGet)
	r.HandleFunc("/cart/items/{id:[0-9]+}", h.ModifyCartItem).Methods(http.MethodPost)

	r.HandleFunc("/checkout", h.Checkout).Methods(http.MethodPost)

	r.HandleFunc("/orders", h.ListOrders).Methods(http.MethodGet)
	r.HandleFunc("/orders/{id:[0-9]+}", h.GetOrder).Methods(http.MethodGet)
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, api.ErrorResponse{Error: msg})
}

// writeServiceErr maps the error taxonomy onto HTTP statuses.
func writeServiceErr(w http.ResponseWriter, err error) {
	var insufficient *store.InsufficientStockError
	switch {
	case errors.As(err, &insufficient):
		writeJSON(w, http.StatusConflict, api.ErrorResponse{
			Error:     insufficient.Error(),
			Shortages: insufficient.Shortages,
		})
	case errors.Is(err, store.ErrNotFound):
		writeErr(w, http.StatusNotFound, "not found")
	case errors.Is(err, store.ErrEmptyCart):
		writeErr(w, http.StatusBadRequest, "cart is empty")
	case errors.Is(err, store.ErrStoreUnavailable):
		writeErr(w, http.StatusServiceUnavailable, "store temporarily unavailable")
	default:
		log.Error().Err(err).Msg("request failed")
		writeErr(w, http.StatusInternalServerError, err.Error())
	}
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
}

func sessionID(w http.ResponseWriter, r *http.Request) (string, bool) {
	sid := r.Header.Get("X-Session-ID")
	if sid == "" {
		writeErr(w, http.StatusBadRequest, "X-Session-ID header required")
		return "", false
	}
	return sid, true
}

// --- handlers ---

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ListProducts handles GET /products?search=&sort=&pageNumber=&pageSize=
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sort := api.SortType(q.Get("sort"))
	if sort == "" {
		sort = api.SortNo
	}
	pageNumber, _ := strconv.Atoi(q.Get("pageNumber"))
	pageSize, _ := strconv.Atoi(q.Get("pageSize"))

	page, err := h.catalog.SearchProducts(r.Context(), q.Get("search"), sort, pageNumber, pageSize)
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// GetProduct handles GET /products/{id}
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeErr(w, http.StatusBadRequest, "invalid product id")
		return
	}
	p, err := h.catalog.GetProduct(r.Context(), id)
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// CreateProduct handles POST /products
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req api.CreateProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Title == "" {
		writeErr(w, http.StatusBadRequest, "title is required")
		return
	}
	if req.Price.IsNegative() {
		writeErr(w, http.StatusBadRequest, "price must be >= 0")
		return
	}
	p, err := h.catalog.CreateProduct(r.Context(), req)
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// Restock handles POST /products/{id}/stock
func (h *Handler) Restock(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeErr(w, http.StatusBadRequest, "invalid product id")
		return
	}
	var req api.RestockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.NewStock < 0 {
		writeErr(w, http.StatusBadRequest, "new_stock must be >= 0")
		return
	}
	p, err := h.catalog.Restock(r.Context(), id, req.NewStock)
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// GetCart handles GET /cart
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	sid, ok := sessionID(w, r)
	if !ok {
		return
	}
	cart, err := h.cart.GetCart(r.Context(), sid)
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cart)
}

// ModifyCartItem handles POST /cart/items/{id}
// body: { "action": "plus" | "minus" | "delete" }
func (h *Handler) ModifyCartItem(w http.ResponseWriter, r *http.Request) {
	sid, ok := sessionID(w, r)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeErr(w, http.StatusBadRequest, "invalid product id")
		return
	}
	var req api.ModifyCartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	switch req.Action {
	case api.ActionPlus, api.ActionMinus, api.ActionDelete:
	default:
		writeErr(w, http.StatusBadRequest, "action must be plus, minus or delete")
		return
	}
	cart, err := h.cart.ModifyItem(r.Context(), sid, id, req.Action)
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cart)
}

// Checkout handles POST /checkout
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	sid, ok := sessionID(w, r)
	if !ok {
		return
	}
	order, err := h.cart.Checkout(r.Context(), sid)
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, order)
}

// ListOrders handles GET /orders
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	sid, ok := sessionID(w, r)
	if !ok {
		return
	}
	orders, err := h.cart.ListOrders(r.Context(), sid)
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

// GetOrder handles GET /orders/{id}
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeErr(w, http.StatusBadRequest, "invalid order id")
		return
	}
	order, err := h.cart.GetOrder(r.Context(), id)
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}
