// Package client is a typed HTTP client for the shop API. It shares the
// request/response types of package api with the server handlers, so the
// two sides cannot drift.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/mdemidkin1992/intershop/api"
)

// APIError is a non-2xx response decoded into the contract's error body.
type APIError struct {
	StatusCode int
	Message    string
	Shortages  []api.Shortage
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a 404 APIError.
func IsNotFound(err error) bool {
	if apiErr, ok := err.(*APIError); ok {
		return apiErr.StatusCode == http.StatusNotFound
	}
	return false
}

// Client calls the shop API. A Client is bound to one session; the zero
// session is replaced by a generated one.
type Client struct {
	baseURL   string
	sessionID string
	http      *http.Client
}

// New creates a Client for baseURL. An empty sessionID generates a fresh
// session identifier.
func New(baseURL, sessionID string) *Client {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	return &Client{
		baseURL:   baseURL,
		sessionID: sessionID,
		http:      &http.Client{Timeout: 10 * time.Second},
	}
}

// SessionID returns the session identifier this client sends.
func (c *Client) SessionID() string { return c.sessionID }

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reqBody *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(b)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Session-ID", c.sessionID)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var body api.ErrorResponse
		if json.NewDecoder(resp.Body).Decode(&body) == nil {
			apiErr.Message = body.Error
			apiErr.Shortages = body.Shortages
		}
		return apiErr
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// ListProducts fetches one catalog page.
func (c *Client) ListProducts(ctx context.Context, search string, sort api.SortType, pageNumber, pageSize int) (*api.ProductPage, error) {
	q := url.Values{}
	if search != "" {
		q.Set("search", search)
	}
	if sort != "" {
		q.Set("sort", string(sort))
	}
	if pageNumber > 0 {
		q.Set("pageNumber", strconv.Itoa(pageNumber))
	}
	if pageSize > 0 {
		q.Set("pageSize", strconv.Itoa(pageSize))
	}
	var page api.ProductPage
	if err := c.do(ctx, http.MethodGet, "/products", q, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// GetProduct fetches one product.
func (c *Client) GetProduct(ctx context.Context, id int64) (*api.Product, error) {
	var p api.Product
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/products/%d", id), nil, nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// CreateProduct adds a product to the catalog.
func (c *Client) CreateProduct(ctx context.Context, req api.CreateProductRequest) (*api.Product, error) {
	var p api.Product
	if err := c.do(ctx, http.MethodPost, "/products", nil, req, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Restock sets a product's absolute stock.
func (c *Client) Restock(ctx context.Context, id int64, newStock int) (*api.Product, error) {
	var p api.Product
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("/products/%d/stock", id),
		nil, api.RestockRequest{NewStock: newStock}, &p)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetCart fetches the session's cart.
func (c *Client) GetCart(ctx context.Context) (*api.Cart, error) {
	var cart api.Cart
	if err := c.do(ctx, http.MethodGet, "/cart", nil, nil, &cart); err != nil {
		return nil, err
	}
	return &cart, nil
}

// ModifyCartItem applies one cart action and returns the resulting cart.
func (c *Client) ModifyCartItem(ctx context.Context, productID int64, action api.CartAction) (*api.Cart, error) {
	var cart api.Cart
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("/cart/items/%d", productID),
		nil, api.ModifyCartRequest{Action: action}, &cart)
	if err != nil {
		return nil, err
	}
	return &cart, nil
}

// Checkout converts the session's cart into an order.
func (c *Client) Checkout(ctx context.Context) (*api.Order, error) {
	var order api.Order
	if err := c.do(ctx, http.MethodPost, "/checkout", nil, nil, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// ListOrders fetches the session's orders.
func (c *Client) ListOrders(ctx context.Context) ([]api.Order, error) {
	var orders []api.Order
	if err := c.do(ctx, http.MethodGet, "/orders", nil, nil, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// GetOrder fetches one order.
func (c *Client) GetOrder(ctx context.Context, id int64) (*api.Order, error) {
	var order api.Order
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/orders/%d", id), nil, nil, &order); err != nil {
		return nil, err
	}
	return &order, nil
}
