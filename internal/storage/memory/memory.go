// Package memory provides in-process catalog and cart stores for local runs
// and tests. Nothing is persisted across restarts.
package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/xenking/kart-cart/internal/domain/cart"
	"github.com/xenking/kart-cart/internal/domain/product"
)

var (
	_ product.Repository = (*ProductRepository)(nil)
	_ cart.Store         = (*CartStore)(nil)
)

// ProductRepository is an in-memory product.Repository.
type ProductRepository struct {
	mu       sync.RWMutex
	products map[string]product.Product
	order    []string
}

// NewProductRepository returns an empty ProductRepository.
func NewProductRepository() *ProductRepository {
	return &ProductRepository{products: make(map[string]product.Product)}
}

// Create stores p. It fails if the id is already taken.
func (r *ProductRepository) Create(ctx context.Context, p product.Product) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.products[p.ID]; ok {
		return &duplicateIDError{id: p.ID}
	}
	r.products[p.ID] = p
	r.order = append(r.order, p.ID)
	return nil
}

// GetByID returns product.ErrNotFound for unknown ids.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*product.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.products[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return &p, nil
}

// GetByIDs returns the products that exist among ids.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]product.Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := r.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

// List returns products in insertion order.
func (r *ProductRepository) List(ctx context.Context) ([]product.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]product.Product, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.products[id])
	}
	return out, nil
}

// Delete removes a product. Only tests use it, to produce orphaned cart
// lines the way an out-of-band catalog edit would.
func (r *ProductRepository) Delete(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.products, id)
	r.order = slices.DeleteFunc(r.order, func(v string) bool { return v == id })
}

type duplicateIDError struct {
	id string
}

func (e *duplicateIDError) Error() string {
	return "duplicate product id " + e.id
}

// CartStore is an in-memory cart.Store. The map is guarded by a single
// mutex held only for the duration of one map operation.
type CartStore struct {
	mu    sync.Mutex
	lines map[string]cart.Line
	now   func() time.Time
}

// NewCartStore returns an empty CartStore.
func NewCartStore() *CartStore {
	return &CartStore{
		lines: make(map[string]cart.Line),
		now:   time.Now,
	}
}

// UpsertIncrement creates or increments the line for productID.
func (s *CartStore) UpsertIncrement(ctx context.Context, productID string, delta int64) (cart.Upsert, error) {
	if err := cart.ValidateDelta(delta); err != nil {
		return cart.Upsert{}, err
	}
	if err := ctx.Err(); err != nil {
		return cart.Upsert{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.lines[productID]
	if ok {
		l.Quantity += delta
		s.lines[productID] = l
		return cart.Upsert{Quantity: l.Quantity}, nil
	}

	s.lines[productID] = cart.Line{
		ProductID: productID,
		Quantity:  delta,
		CreatedAt: s.now().UTC(),
	}
	return cart.Upsert{Created: true, Quantity: delta}, nil
}

// Remove deletes the line for productID.
func (s *CartStore) Remove(ctx context.Context, productID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.lines[productID]; !ok {
		return false, nil
	}
	delete(s.lines, productID)
	return true, nil
}

// List returns a snapshot of all lines ordered by creation time.
func (s *CartStore) List(ctx context.Context) ([]cart.Line, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	out := make([]cart.Line, 0, len(s.lines))
	for _, l := range s.lines {
		out = append(out, l)
	}
	s.mu.Unlock()

	slices.SortFunc(out, func(a, b cart.Line) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ProductID, b.ProductID)
	})
	return out, nil
}
