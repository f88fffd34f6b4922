package product

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-cart/internal/domain/apperr"
)

// DefaultTimeout bounds a single store call when no timeout is configured.
const DefaultTimeout = 3 * time.Second

// Service exposes the catalog operations with input validation and bounded
// store calls.
type Service struct {
	repo    Repository
	timeout time.Duration
	now     func() time.Time
}

// NewService creates a catalog Service. A non-positive timeout selects
// DefaultTimeout.
func NewService(repo Repository, timeout time.Duration) *Service {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Service{
		repo:    repo,
		timeout: timeout,
		now:     time.Now,
	}
}

// Create validates and stores a new product, returning its identifier.
func (s *Service) Create(ctx context.Context, name string, price decimal.Decimal) (string, error) {
	if err := ValidateName(name); err != nil {
		return "", err
	}
	if err := ValidatePrice(price); err != nil {
		return "", err
	}

	p := Product{
		ID:        NewID(),
		Name:      strings.TrimSpace(name),
		Price:     price,
		CreatedAt: s.now().UTC(),
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.repo.Create(ctx, p); err != nil {
		return "", errors.Wrap(apperr.Unavailable("create product", err), "create product")
	}
	return p.ID, nil
}

// Get returns a single product. The id is validated before the lookup.
func (s *Service) Get(ctx context.Context, rawID string) (*Product, error) {
	id, err := ParseID(rawID)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, &apperr.NotFoundError{Entity: "product", ID: id, Message: "Product not found with the provided ID."}
		}
		return nil, errors.Wrap(apperr.Unavailable("get product", err), "get product")
	}
	return p, nil
}

// List returns every product in the catalog.
func (s *Service) List(ctx context.Context) ([]Product, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	products, err := s.repo.List(ctx)
	if err != nil {
		return nil, errors.Wrap(apperr.Unavailable("list products", err), "list products")
	}
	return products, nil
}
