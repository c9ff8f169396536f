package store

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mdemidkin1992/intershop/api"
)

// ErrNotFound is returned when the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrEmptyCart is returned when checkout is attempted on an empty cart.
var ErrEmptyCart = errors.New("cart is empty")

// ErrStoreUnavailable marks a transient store failure. Callers may retry
// with backoff; checkout surfaces it once its bounded retries are exhausted.
var ErrStoreUnavailable = errors.New("store unavailable")

// InsufficientStockError reports every cart line that could not be
// fulfilled. The checkout transaction is rolled back entirely, so partial
// orders never exist alongside this error.
type InsufficientStockError struct {
	Shortages []api.Shortage
}

func (e *InsufficientStockError) Error() string {
	parts := make([]string, 0, len(e.Shortages))
	for _, s := range e.Shortages {
		parts = append(parts, fmt.Sprintf("product %d: requested %d, available %d", s.ProductID, s.Requested, s.Available))
	}
	return "insufficient stock: " + strings.Join(parts, "; ")
}
