package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// GetCart returns the session's cart lines joined with product data.
func (s *PostgresStore) GetCart(ctx context.Context, sessionID string) ([]CartRow, error) {
	out := []CartRow{}
	err := s.DB.SelectContext(ctx, &out, `
		SELECT ci.product_id, p.title, p.price, ci.quantity
		FROM cart_items ci
		JOIN products p ON p.id = ci.product_id
		WHERE ci.session_id = $1
		ORDER BY ci.product_id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get cart %q: %w", sessionID, err)
	}
	return out, nil
}

// AddCartItem adds one unit of the product to the session's cart, creating
// the line if absent.
func (s *PostgresStore) AddCartItem(ctx context.Context, sessionID string, productID int64) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO cart_items (session_id, product_id, quantity)
		VALUES ($1, $2, 1)
		ON CONFLICT (session_id, product_id)
		DO UPDATE SET quantity = cart_items.quantity + 1`, sessionID, productID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23503" { // unknown product
			return ErrNotFound
		}
		return fmt.Errorf("add cart item: %w", err)
	}
	return nil
}

// DecrementCartItem removes one unit of the product from the session's cart,
// deleting the line when the quantity reaches zero.
func (s *PostgresStore) DecrementCartItem(ctx context.Context, sessionID string, productID int64) error {
	tx, err := s.DB.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("decrement cart item: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var qty int
	err = tx.QueryRowContext(ctx,
		`SELECT quantity FROM cart_items WHERE session_id = $1 AND product_id = $2 FOR UPDATE`,
		sessionID, productID).Scan(&qty)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("decrement cart item: %w", err)
	}

	if qty > 1 {
		_, err = tx.ExecContext(ctx,
			`UPDATE cart_items SET quantity = quantity - 1 WHERE session_id = $1 AND product_id = $2`,
			sessionID, productID)
	} else {
		_, err = tx.ExecContext(ctx,
			`DELETE FROM cart_items WHERE session_id = $1 AND product_id = $2`,
			sessionID, productID)
	}
	if err != nil {
		return fmt.Errorf("decrement cart item: %w", err)
	}
	return tx.Commit()
}

// RemoveCartItem drops the product's line from the session's cart.
func (s *PostgresStore) RemoveCartItem(ctx context.Context, sessionID string, productID int64) error {
	res, err := s.DB.ExecContext(ctx,
		`DELETE FROM cart_items WHERE session_id = $1 AND product_id = $2`,
		sessionID, productID)
	if err != nil {
		return fmt.Errorf("remove cart item: %w", err)
	}
	if ra, _ := res.RowsAffected(); ra == 0 {
		return ErrNotFound
	}
	return nil
}

// ClearCart drops every line of the session's cart.
func (s *PostgresStore) ClearCart(ctx context.Context, sessionID string) error {
	if _, err := s.DB.ExecContext(ctx,
		`DELETE FROM cart_items WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}
