package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/shopspring/decimal"
)

// ProductRow, CartRow, OrderRow etc are simple structs representing DB rows.
type ProductRow struct {
	ID          int64           `db:"id"`
	Title       string          `db:"title"`
	Description sql.NullString  `db:"description"`
	ImgPath     sql.NullString  `db:"img_path"`
	Price       decimal.Decimal `db:"price"`
	Stock       int             `db:"stock"`
	Version     int64           `db:"version"`
}

// CartRow is one cart line joined with its product.
type CartRow struct {
	ProductID int64           `db:"product_id"`
	Title     string          `db:"title"`
	Price     decimal.Decimal `db:"price"`
	Quantity  int             `db:"quantity"`
}

type OrderRow struct {
	ID        int64           `db:"id"`
	SessionID string          `db:"session_id"`
	Total     decimal.Decimal `db:"total"`
	Status    string          `db:"status"`
	CreatedAt time.Time       `db:"created_at"`
}

type OrderItemRow struct {
	ProductID int64           `db:"product_id"`
	Quantity  int             `db:"quantity"`
	Price     decimal.Decimal `db:"price"`
}

// SortOrder selects the ordering of SearchProducts results.
type SortOrder string

const (
	SortByID    SortOrder = "NO"
	SortByTitle SortOrder = "ALPHA"
	SortByPrice SortOrder = "PRICE"
)

// Store is the authoritative relational store for products, carts and orders.
// All operations take a context and are safe for concurrent use.
type Store interface {
	GetProduct(ctx context.Context, id int64) (ProductRow, error)
	SearchProducts(ctx context.Context, search string, sort SortOrder, pageNumber, pageSize int) ([]ProductRow, int64, error)
	CreateProduct(ctx context.Context, title, description, imgPath string, price decimal.Decimal, stock int) (ProductRow, error)
	UpdateStock(ctx context.Context, productID int64, newStock int) (ProductRow, error)

	GetCart(ctx context.Context, sessionID string) ([]CartRow, error)
	AddCartItem(ctx context.Context, sessionID string, productID int64) error
	DecrementCartItem(ctx context.Context, sessionID string, productID int64) error
	RemoveCartItem(ctx context.Context, sessionID string, productID int64) error
	ClearCart(ctx context.Context, sessionID string) error

	// CreateOrderFromCart is the atomic checkout: it verifies and decrements
	// stock for every cart line, creates the order and clears the cart in a
	// single transaction, or rolls back entirely.
	CreateOrderFromCart(ctx context.Context, sessionID string) (OrderRow, []OrderItemRow, error)
	GetOrder(ctx context.Context, id int64) (OrderRow, []OrderItemRow, error)
	ListOrders(ctx context.Context, sessionID string) ([]OrderRow, error)

	Close() error
}
