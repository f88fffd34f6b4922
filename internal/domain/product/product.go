package product

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-cart/internal/domain/apperr"
)

// ErrNotFound is returned by repositories when a requested product does not
// exist. It matches apperr.ErrNotFound.
var ErrNotFound error = &apperr.NotFoundError{
	Entity:  "product",
	Message: "Product not found with the provided ID.",
}

// Product represents an immutable catalog entry.
type Product struct {
	ID        string
	Name      string
	Price     decimal.Decimal
	CreatedAt time.Time
}

// Repository defines the catalog store. Products are never updated or
// deleted once created.
type Repository interface {
	// Create stores a product under a freshly allocated identifier.
	Create(ctx context.Context, p Product) error
	GetByID(ctx context.Context, id string) (*Product, error)
	// GetByIDs returns the products that exist among ids, in no particular
	// order. Missing ids are skipped, not reported.
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
	List(ctx context.Context) ([]Product, error)
}

// NewID allocates a product identifier.
func NewID() string {
	return uuid.NewString()
}

// ParseID validates the syntax of a product identifier and returns its
// canonical form.
func ParseID(raw string) (string, error) {
	if raw == "" {
		return "", apperr.Validation("productId", "Invalid product ID format")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return "", apperr.Validation("productId", "Invalid product ID format")
	}
	return id.String(), nil
}

// ValidateName rejects blank product names.
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return apperr.Validation("name", "name is required")
	}
	return nil
}

// Bounds on the decimal representation of a price.
const (
	maxPriceExponent = 20
	maxPriceDigits   = 30
	// maxNumberLen caps the textual form before it is parsed.
	maxNumberLen = 64
)

// ValidatePrice rejects negative prices and prices whose scale or precision
// is out of range.
func ValidatePrice(price decimal.Decimal) error {
	if price.IsNegative() {
		return apperr.Validation("price", "price must be a non-negative number")
	}
	// The exponent check must come first: NumDigits is only cheap for a
	// bounded coefficient.
	if exp := price.Exponent(); exp > maxPriceExponent || exp < -maxPriceExponent {
		return apperr.Validation("price", "price is out of range")
	}
	if price.NumDigits() > maxPriceDigits {
		return apperr.Validation("price", "price is out of range")
	}
	return nil
}

// ParsePrice parses the textual form of a price, as carried by a JSON number.
func ParsePrice(raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, apperr.Validation("price", "price must be a number")
	}
	if len(raw) > maxNumberLen {
		return decimal.Zero, apperr.Validation("price", "price is out of range")
	}
	price, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, apperr.Validation("price", "price must be a number")
	}
	if err := ValidatePrice(price); err != nil {
		return decimal.Zero, err
	}
	return price, nil
}
