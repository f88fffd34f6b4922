// Package cart implements the process-wide shopping cart: a store of lines
// keyed by product id and the service that joins those lines with the
// catalog.
//
// The cart is single-tenant. Every request sees the same lines; adding a
// session key to both the line store and the engine is the extension point
// for multiple carts.
package cart

import (
	"context"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/kart-cart/internal/domain/apperr"
	"github.com/xenking/kart-cart/internal/domain/product"
)

// MaxQuantity is the largest quantity accepted in a single add.
const MaxQuantity = math.MaxInt32

// Bounds applied to a textual quantity before any arithmetic on it.
const (
	maxQuantityLen      = 32
	maxQuantityExponent = 10
	minQuantityExponent = -20
)

// Line is a stored cart entry. There is at most one line per product and its
// quantity is always at least 1.
type Line struct {
	ProductID string
	Quantity  int64
	CreatedAt time.Time
}

// Upsert describes the outcome of Store.UpsertIncrement.
type Upsert struct {
	Created  bool
	Quantity int64
}

// Store persists cart lines keyed by product id.
type Store interface {
	// UpsertIncrement creates the line with quantity delta, or adds delta to
	// the existing line, as one atomic step per product id.
	UpsertIncrement(ctx context.Context, productID string, delta int64) (Upsert, error)
	// Remove deletes the line and reports whether one existed.
	Remove(ctx context.Context, productID string) (bool, error)
	List(ctx context.Context) ([]Line, error)
}

// Item is a cart line joined with its product.
type Item struct {
	Product   product.Product
	Quantity  int64
	LineTotal decimal.Decimal
	AddedAt   time.Time
}

// Cart is the derived view of all joinable lines.
type Cart struct {
	Items []Item
	// Total is kept at full precision; round only when presenting.
	Total decimal.Decimal
}

// AddResult is returned by Service.AddToCart.
type AddResult struct {
	ProductID string
	Created   bool
	Quantity  int64
}

// ValidateDelta checks that delta is an acceptable increment.
func ValidateDelta(delta int64) error {
	if delta <= 0 {
		return apperr.Validation("quantity", "quantity must be greater than 0")
	}
	if delta > MaxQuantity {
		return apperr.Validation("quantity", "quantity is too large")
	}
	return nil
}

// ParseQuantity converts the textual form of a JSON number into a quantity.
// An empty string stands for a missing or non-numeric value.
func ParseQuantity(raw string) (int64, error) {
	if raw == "" {
		return 0, apperr.Validation("quantity", "quantity is not a number")
	}
	if len(raw) > maxQuantityLen {
		return 0, apperr.Validation("quantity", "quantity is out of range")
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return 0, apperr.Validation("quantity", "quantity is not a number")
	}
	if d.Sign() <= 0 {
		return 0, apperr.Validation("quantity", "quantity must be greater than 0")
	}
	// IsInteger and GreaterThan rescale by the exponent.
	if d.Exponent() > maxQuantityExponent {
		return 0, apperr.Validation("quantity", "quantity is too large")
	}
	if d.Exponent() < minQuantityExponent {
		return 0, apperr.Validation("quantity", "quantity is out of range")
	}
	if !d.IsInteger() {
		return 0, apperr.Validation("quantity", "quantity is not an integer")
	}
	if d.GreaterThan(decimal.NewFromInt(MaxQuantity)) {
		return 0, apperr.Validation("quantity", "quantity is too large")
	}
	return d.IntPart(), nil
}
