// Package api holds the request/response shapes of the shop API.
//
// These types are the Go rendering of api/openapi.yaml; the handler package
// serves them and the client package consumes them, so both sides of the wire
// share a single definition.
package api

import (
	"time"

	"github.com/shopspring/decimal"
)

// SortType selects the ordering of a product listing.
type SortType string

const (
	SortNo    SortType = "NO"    // insertion order (by id)
	SortAlpha SortType = "ALPHA" // by title ascending
	SortPrice SortType = "PRICE" // by price ascending
)

// CartAction mutates one cart line.
type CartAction string

const (
	ActionPlus   CartAction = "plus"   // add one unit, creating the line if absent
	ActionMinus  CartAction = "minus"  // remove one unit, dropping the line at zero
	ActionDelete CartAction = "delete" // drop the line entirely
)

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	OrderCreated OrderStatus = "CREATED"
	OrderFailed  OrderStatus = "FAILED"
)

// Product is a catalog product snapshot. Version increases on every
// stock-affecting write and lets readers compare snapshot freshness.
type Product struct {
	ID          int64           `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	ImgPath     string          `json:"img_path,omitempty"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	Version     int64           `json:"version"`
}

// ProductPage is one page of a product listing.
type ProductPage struct {
	Items       []Product `json:"items"`
	Search      string    `json:"search,omitempty"`
	Sort        SortType  `json:"sort"`
	PageNumber  int       `json:"page_number"`
	PageSize    int       `json:"page_size"`
	Total       int64     `json:"total"`
	HasNext     bool      `json:"has_next"`
	HasPrevious bool      `json:"has_previous"`
}

// CartItem is one cart line joined with its product data.
type CartItem struct {
	ProductID int64           `json:"product_id"`
	Title     string          `json:"title"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
}

// Cart is the full cart for a session.
type Cart struct {
	SessionID string          `json:"session_id"`
	Items     []CartItem      `json:"items"`
	Total     decimal.Decimal `json:"total"`
	Empty     bool            `json:"empty"`
}

// OrderItem is one ordered line with the price captured at purchase time.
type OrderItem struct {
	ProductID       int64           `json:"product_id"`
	Quantity        int             `json:"quantity"`
	PriceAtPurchase decimal.Decimal `json:"price_at_purchase"`
}

// Order is an immutable record of a completed checkout.
type Order struct {
	ID        int64           `json:"id"`
	SessionID string          `json:"session_id"`
	Items     []OrderItem     `json:"items"`
	Total     decimal.Decimal `json:"total"`
	Status    OrderStatus     `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
}

// CreateProductRequest is the body of POST /products.
type CreateProductRequest struct {
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	ImgPath     string          `json:"img_path,omitempty"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
}

// RestockRequest is the body of POST /products/{id}/stock.
type RestockRequest struct {
	NewStock int `json:"new_stock"`
}

// ModifyCartRequest is the body of POST /cart/items/{id}.
type ModifyCartRequest struct {
	Action CartAction `json:"action"`
}

// Shortage names one cart line that could not be fulfilled at checkout.
type Shortage struct {
	ProductID int64 `json:"product_id"`
	Requested int   `json:"requested"`
	Available int   `json:"available"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error     string     `json:"error"`
	Shortages []Shortage `json:"shortages,omitempty"`
}
