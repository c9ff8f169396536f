package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

const defaultCheckoutRetries = 3

// PostgresStore is a Store backed by Postgres.
type PostgresStore struct {
	DB *sqlx.DB

	// CheckoutRetries bounds retries of the checkout transaction on
	// serialization failures. Zero means the default of 3.
	CheckoutRetries int
}

// Open connects to Postgres and configures the connection pool.
func Open(host string, port int, user, password, dbname, sslmode string) (*PostgresStore, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		host, port, user, password, dbname, sslmode)

	db, err := sqlx.Connect("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetConnMaxLifetime(time.Minute * 3)
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)

	log.Info().Str("host", host).Str("db", dbname).Msg("Database connection established")
	return &PostgresStore{DB: db}, nil
}

func (s *PostgresStore) Close() error { return s.DB.Close() }

// Migrate executes the embedded schema statements.
func (s *PostgresStore) Migrate(ctx context.Context, schema string) error {
	if _, err := s.DB.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}

const productColumns = `id, title, description, img_path, price, stock, version`

// GetProduct fetches one product by id.
func (s *PostgresStore) GetProduct(ctx context.Context, id int64) (ProductRow, error) {
	var p ProductRow
	err := s.DB.GetContext(ctx, &p,
		`SELECT `+productColumns+` FROM products WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return ProductRow{}, ErrNotFound
	}
	if err != nil {
		return ProductRow{}, fmt.Errorf("get product %d: %w", id, err)
	}
	return p, nil
}

// SearchProducts returns one page of products matching search, plus the total
// match count. Pages are 1-based. An empty search matches everything.
func (s *PostgresStore) SearchProducts(ctx context.Context, search string, sort SortOrder, pageNumber, pageSize int) ([]ProductRow, int64, error) {
	if pageNumber < 1 {
		pageNumber = 1
	}
	if pageSize < 1 {
		pageSize = 10
	}

	filter := ` WHERE $1 = '' OR lower(title) LIKE '%' || lower($1) || '%' OR lower(description) LIKE '%' || lower($1) || '%'`

	var total int64
	if err := s.DB.GetContext(ctx, &total, `SELECT count(*) FROM products`+filter, search); err != nil {
		return nil, 0, fmt.Errorf("count products: %w", err)
	}

	orderBy := ` ORDER BY id`
	switch sort {
	case SortByTitle:
		orderBy = ` ORDER BY title`
	case SortByPrice:
		orderBy = ` ORDER BY price`
	}

	out := []ProductRow{}
	err := s.DB.SelectContext(ctx, &out,
		`SELECT `+productColumns+` FROM products`+filter+orderBy+` LIMIT $2 OFFSET $3`,
		search, pageSize, (pageNumber-1)*pageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("search products: %w", err)
	}
	return out, total, nil
}

// CreateProduct inserts a product and returns the stored row.
func (s *PostgresStore) CreateProduct(ctx context.Context, title, description, imgPath string, price decimal.Decimal, stock int) (ProductRow, error) {
	var p ProductRow
	err := s.DB.GetContext(ctx, &p,
		`INSERT INTO products (title, description, img_path, price, stock)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING `+productColumns,
		title, description, imgPath, price, stock)
	if err != nil {
		return ProductRow{}, fmt.Errorf("create product: %w", err)
	}
	return p, nil
}

// UpdateStock sets the absolute stock for a product (restock) and bumps its
// version stamp.
func (s *PostgresStore) UpdateStock(ctx context.Context, productID int64, newStock int) (ProductRow, error) {
	var p ProductRow
	err := s.DB.GetContext(ctx, &p,
		`UPDATE products SET stock = $1, version = version + 1 WHERE id = $2
		 RETURNING `+productColumns,
		newStock, productID)
	if errors.Is(err, sql.ErrNoRows) {
		return ProductRow{}, ErrNotFound
	}
	if err != nil {
		return ProductRow{}, fmt.Errorf("update stock of product %d: %w", productID, err)
	}
	return p, nil
}

// retryable reports whether err is a Postgres serialization or deadlock
// failure that a fresh transaction attempt may resolve.
func retryable(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code == "40001" || pqErr.Code == "40P01"
}
