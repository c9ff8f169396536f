package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/mdemidkin1992/intershop/api"
)

// CreateOrderFromCart performs the checkout transaction. It locks the cart's
// product rows in id order, verifies every requested quantity, decrements
// stock, creates the order with its line items and clears the cart. Any
// failure rolls the whole transaction back; no partial orders exist.
//
// Serialization and deadlock failures are retried with a fresh transaction
// up to CheckoutRetries times, then surfaced as ErrStoreUnavailable.
func (s *PostgresStore) CreateOrderFromCart(ctx context.Context, sessionID string) (OrderRow, []OrderItemRow, error) {
	retries := s.CheckoutRetries
	if retries <= 0 {
		retries = defaultCheckoutRetries
	}

	var lastErr error
	for attempt := 1; attempt <= retries; attempt++ {
		order, items, err := s.checkoutOnce(ctx, sessionID)
		if err == nil {
			return order, items, nil
		}
		if !retryable(err) {
			return OrderRow{}, nil, err
		}
		lastErr = err
		log.Warn().Err(err).Int("attempt", attempt).Str("session", sessionID).
			Msg("checkout transaction conflicted, retrying")
		select {
		case <-time.After(time.Duration(attempt) * 25 * time.Millisecond):
		case <-ctx.Done():
			return OrderRow{}, nil, ctx.Err()
		}
	}
	return OrderRow{}, nil, fmt.Errorf("%w: checkout retries exhausted: %v", ErrStoreUnavailable, lastErr)
}

func (s *PostgresStore) checkoutOnce(ctx context.Context, sessionID string) (OrderRow, []OrderItemRow, error) {
	var order OrderRow
	var items []OrderItemRow

	tx, err := s.DB.BeginTxx(ctx, nil)
	if err != nil {
		return order, nil, fmt.Errorf("begin checkout: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// Lock product rows in id order to avoid deadlocks between concurrent
	// checkouts touching overlapping products.
	rows, err := tx.QueryContext(ctx, `
		SELECT ci.product_id, ci.quantity, p.price, p.stock
		FROM cart_items ci
		JOIN products p ON p.id = ci.product_id
		WHERE ci.session_id = $1
		ORDER BY p.id
		FOR UPDATE`, sessionID)
	if err != nil {
		return order, nil, fmt.Errorf("lock cart rows: %w", err)
	}

	var shortages []api.Shortage
	total := decimal.Zero
	for rows.Next() {
		var it OrderItemRow
		var stock int
		if err := rows.Scan(&it.ProductID, &it.Quantity, &it.Price, &stock); err != nil {
			rows.Close()
			return order, nil, fmt.Errorf("scan cart row: %w", err)
		}
		if stock < it.Quantity {
			shortages = append(shortages, api.Shortage{
				ProductID: it.ProductID,
				Requested: it.Quantity,
				Available: stock,
			})
			continue
		}
		items = append(items, it)
		total = total.Add(it.Price.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return order, nil, fmt.Errorf("read cart rows: %w", err)
	}

	if len(shortages) > 0 {
		// Roll back: the cart stays exactly as it was.
		return order, nil, &InsufficientStockError{Shortages: shortages}
	}
	if len(items) == 0 {
		return order, nil, ErrEmptyCart
	}

	err = tx.QueryRowContext(ctx,
		`INSERT INTO orders (session_id, total, status) VALUES ($1, $2, $3) RETURNING id, created_at`,
		sessionID, total, string(api.OrderCreated)).Scan(&order.ID, &order.CreatedAt)
	if err != nil {
		return order, nil, fmt.Errorf("insert order: %w", err)
	}

	itemStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO order_items (order_id, product_id, quantity, price) VALUES ($1, $2, $3, $4)`)
	if err != nil {
		return order, nil, fmt.Errorf("prepare order items: %w", err)
	}
	defer itemStmt.Close()

	stockStmt, err := tx.PrepareContext(ctx,
		`UPDATE products SET stock = stock - $1, version = version + 1 WHERE id = $2`)
	if err != nil {
		return order, nil, fmt.Errorf("prepare stock update: %w", err)
	}
	defer stockStmt.Close()

	for _, it := range items {
		if _, err := itemStmt.ExecContext(ctx, order.ID, it.ProductID, it.Quantity, it.Price); err != nil {
			return order, nil, fmt.Errorf("insert order item: %w", err)
		}
		if _, err := stockStmt.ExecContext(ctx, it.Quantity, it.ProductID); err != nil {
			return order, nil, fmt.Errorf("decrement stock: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM cart_items WHERE session_id = $1`, sessionID); err != nil {
		return order, nil, fmt.Errorf("clear cart: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return order, nil, fmt.Errorf("commit checkout: %w", err)
	}

	order.SessionID = sessionID
	order.Total = total
	order.Status = string(api.OrderCreated)
	return order, items, nil
}

// GetOrder fetches one order with its line items.
func (s *PostgresStore) GetOrder(ctx context.Context, id int64) (OrderRow, []OrderItemRow, error) {
	var order OrderRow
	err := s.DB.GetContext(ctx, &order,
		`SELECT id, session_id, total, status, created_at FROM orders WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return OrderRow{}, nil, ErrNotFound
	}
	if err != nil {
		return OrderRow{}, nil, fmt.Errorf("get order %d: %w", id, err)
	}

	items := []OrderItemRow{}
	err = s.DB.SelectContext(ctx, &items,
		`SELECT product_id, quantity, price FROM order_items WHERE order_id = $1 ORDER BY product_id`, id)
	if err != nil {
		return OrderRow{}, nil, fmt.Errorf("get order %d items: %w", id, err)
	}
	return order, items, nil
}

// ListOrders returns the session's orders, newest first.
func (s *PostgresStore) ListOrders(ctx context.Context, sessionID string) ([]OrderRow, error) {
	out := []OrderRow{}
	err := s.DB.SelectContext(ctx, &out,
		`SELECT id, session_id, total, status, created_at FROM orders WHERE session_id = $1 ORDER BY id DESC`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("list orders %q: %w", sessionID, err)
	}
	return out, nil
}
