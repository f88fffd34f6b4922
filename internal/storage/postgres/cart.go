package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/kart-cart/internal/domain/cart"
)

const (
	// xmax is zero only on the row version written by the INSERT branch.
	upsertCartLineSQL = `INSERT INTO cart (product_id, quantity, created_at)
		VALUES ($1::text::uuid, $2, now())
		ON CONFLICT (product_id) DO UPDATE SET quantity = cart.quantity + EXCLUDED.quantity
		RETURNING quantity, (xmax = 0) AS created`

	deleteCartLineSQL = `DELETE FROM cart WHERE product_id = $1::text::uuid`

	listCartLinesSQL = `SELECT product_id::text, quantity, created_at
		FROM cart ORDER BY created_at, product_id`
)

var _ cart.Store = (*CartStore)(nil)

// CartStore implements cart.Store backed by PostgreSQL. Increments are a
// single INSERT .. ON CONFLICT statement, so concurrent adds for the same
// product serialize on the row lock.
type CartStore struct {
	pool *pgxpool.Pool
}

// NewCartStore returns a CartStore that uses the given pool.
func NewCartStore(pool *pgxpool.Pool) *CartStore {
	return &CartStore{pool: pool}
}

// UpsertIncrement creates the line or adds delta to its quantity.
func (s *CartStore) UpsertIncrement(ctx context.Context, productID string, delta int64) (cart.Upsert, error) {
	if err := cart.ValidateDelta(delta); err != nil {
		return cart.Upsert{}, err
	}

	var up cart.Upsert
	err := s.pool.QueryRow(ctx, upsertCartLineSQL, productID, delta).Scan(&up.Quantity, &up.Created)
	if err != nil {
		return cart.Upsert{}, fmt.Errorf("upserting cart line %q: %w", productID, err)
	}
	return up, nil
}

// Remove deletes the line for productID.
func (s *CartStore) Remove(ctx context.Context, productID string) (bool, error) {
	tag, err := s.pool.Exec(ctx, deleteCartLineSQL, productID)
	if err != nil {
		return false, fmt.Errorf("deleting cart line %q: %w", productID, err)
	}
	return tag.RowsAffected() > 0, nil
}

// List returns every line ordered by creation time.
func (s *CartStore) List(ctx context.Context) ([]cart.Line, error) {
	rows, err := s.pool.Query(ctx, listCartLinesSQL)
	if err != nil {
		return nil, fmt.Errorf("listing cart lines: %w", err)
	}
	lines, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (cart.Line, error) {
		var l cart.Line
		err := row.Scan(&l.ProductID, &l.Quantity, &l.CreatedAt)
		return l, err
	})
	if err != nil {
		return nil, fmt.Errorf("listing cart lines: %w", err)
	}
	return lines, nil
}
