// Package cart maintains per-session cart state and performs checkout.
// Cart and order reads always hit the authoritative store; the shared cache
// is bypassed entirely for anything touching money or stock.
package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/mdemidkin1992/intershop/api"
	"github.com/mdemidkin1992/intershop/events"
	"github.com/mdemidkin1992/intershop/store"
)

// Store is the slice of the store adapter the cart service needs.
type Store interface {
	GetProduct(ctx context.Context, id int64) (store.ProductRow, error)
	GetCart(ctx context.Context, sessionID string) ([]store.CartRow, error)
	AddCartItem(ctx context.Context, sessionID string, productID int64) error
	DecrementCartItem(ctx context.Context, sessionID string, productID int64) error
	RemoveCartItem(ctx context.Context, sessionID string, productID int64) error
	CreateOrderFromCart(ctx context.Context, sessionID string) (store.OrderRow, []store.OrderItemRow, error)
	GetOrder(ctx context.Context, id int64) (store.OrderRow, []store.OrderItemRow, error)
	ListOrders(ctx context.Context, sessionID string) ([]store.OrderRow, error)
}

// Invalidator evicts a product's catalog cache entries after a
// stock-affecting write.
type Invalidator interface {
	Invalidate(ctx context.Context, productID int64)
}

// Publisher announces stock changes. A nil Publisher disables publishing.
type Publisher interface {
	PublishStockChanged(ctx context.Context, ev events.StockChanged) error
}

// Service implements cart mutation and the checkout flow.
type Service struct {
	store       Store
	invalidator Invalidator
	publisher   Publisher
}

func New(st Store, inv Invalidator, pub Publisher) *Service {
	return &Service{store: st, invalidator: inv, publisher: pub}
}

// ModifyItem applies one cart action. minus and delete on an absent line are
// no-ops, matching the storefront's form semantics; plus on an unknown
// product fails with ErrNotFound.
func (s *Service) ModifyItem(ctx context.Context, sessionID string, productID int64, action api.CartAction) (*api.Cart, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session id required")
	}

	var err error
	switch action {
	case api.ActionPlus:
		err = s.store.AddCartItem(ctx, sessionID, productID)
	case api.ActionMinus:
		err = s.store.DecrementCartItem(ctx, sessionID, productID)
		if errors.Is(err, store.ErrNotFound) {
			err = nil
		}
	case api.ActionDelete:
		err = s.store.RemoveCartItem(ctx, sessionID, productID)
		if errors.Is(err, store.ErrNotFound) {
			err = nil
		}
	default:
		return nil, fmt.Errorf("unknown cart action %q", action)
	}
	if err != nil {
		return nil, err
	}
	return s.GetCart(ctx, sessionID)
}

// GetCart returns the session's cart with per-line product data and the
// running total.
func (s *Service) GetCart(ctx context.Context, sessionID string) (*api.Cart, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session id required")
	}
	rows, err := s.store.GetCart(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	total := decimal.Zero
	items := make([]api.CartItem, 0, len(rows))
	for _, r := range rows {
		items = append(items, api.CartItem{
			ProductID: r.ProductID,
			Title:     r.Title,
			Price:     r.Price,
			Quantity:  r.Quantity,
		})
		total = total.Add(r.Price.Mul(decimal.NewFromInt(int64(r.Quantity))))
	}
	return &api.Cart{
		SessionID: sessionID,
		Items:     items,
		Total:     total,
		Empty:     len(items) == 0,
	}, nil
}

// Checkout runs the atomic decrement-and-create transaction, then
// invalidates the catalog cache for every affected product and publishes a
// stock-changed event per product. On InsufficientStockError the cart is
// left untouched and the shortages are surfaced to the caller.
func (s *Service) Checkout(ctx context.Context, sessionID string) (*api.Order, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session id required")
	}

	orderRow, itemRows, err := s.store.CreateOrderFromCart(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	for _, it := range itemRows {
		s.invalidator.Invalidate(ctx, it.ProductID)
	}
	s.publishStockEvents(ctx, itemRows)

	order := toOrder(orderRow, itemRows)
	return &order, nil
}

// publishStockEvents is best-effort: a broker outage must not fail a
// checkout that already committed.
func (s *Service) publishStockEvents(ctx context.Context, items []store.OrderItemRow) {
	if s.publisher == nil {
		return
	}
	for _, it := range items {
		ev := events.StockChanged{ProductID: it.ProductID}
		if row, err := s.store.GetProduct(ctx, it.ProductID); err == nil {
			ev.Stock = row.Stock
			ev.Version = row.Version
		}
		if err := s.publisher.PublishStockChanged(ctx, ev); err != nil {
			log.Warn().Err(err).Int64("product_id", it.ProductID).Msg("stock event publish failed")
		}
	}
}

// GetOrder returns one order with its line items.
func (s *Service) GetOrder(ctx context.Context, id int64) (*api.Order, error) {
	row, items, err := s.store.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	order := toOrder(row, items)
	return &order, nil
}

// ListOrders returns the session's orders, newest first, with line items.
func (s *Service) ListOrders(ctx context.Context, sessionID string) ([]api.Order, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session id required")
	}
	rows, err := s.store.ListOrders(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	out := make([]api.Order, 0, len(rows))
	for _, r := range rows {
		_, items, err := s.store.GetOrder(ctx, r.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, toOrder(r, items))
	}
	return out, nil
}

func toOrder(r store.OrderRow, items []store.OrderItemRow) api.Order {
	o := api.Order{
		ID:        r.ID,
		SessionID: r.SessionID,
		Total:     r.Total,
		Status:    api.OrderStatus(r.Status),
		CreatedAt: r.CreatedAt,
		Items:     make([]api.OrderItem, 0, len(items)),
	}
	for _, it := range items {
		o.Items = append(o.Items, api.OrderItem{
			ProductID:       it.ProductID,
			Quantity:        it.Quantity,
			PriceAtPurchase: it.Price,
		})
	}
	return o
}
