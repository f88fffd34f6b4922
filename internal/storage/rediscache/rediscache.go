// Package rediscache provides a read-through Redis cache in front of a
// product.Repository.
//
// Products are immutable once created, so cached entries never need
// invalidation and only expire to bound memory. Redis failures are logged
// and the call falls through to the underlying repository.
package rediscache

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/xenking/kart-cart/internal/domain/product"
)

const (
	DefaultTTL         = 15 * time.Minute
	DefaultJitter      = 5 * time.Minute
	DefaultLoadTimeout = 3 * time.Second
)

// Options configures entry expiry and shared loads. Zero values select the
// defaults; a negative Jitter disables jitter.
type Options struct {
	TTL    time.Duration
	Jitter time.Duration
	// LoadTimeout bounds a repository load shared by concurrent misses.
	LoadTimeout time.Duration
}

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository caches single and batch product lookups in Redis.
// Create and List are delegated to the wrapped repository.
type ProductRepository struct {
	next   product.Repository
	client *redis.Client
	ttl    time.Duration
	jitter time.Duration
	load   time.Duration
	sfg    singleflight.Group
}

// New wraps next with a Redis cache backed by client.
func New(next product.Repository, client *redis.Client, opts Options) *ProductRepository {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Jitter == 0 {
		opts.Jitter = DefaultJitter
	}
	if opts.LoadTimeout <= 0 {
		opts.LoadTimeout = DefaultLoadTimeout
	}
	return &ProductRepository{
		next:   next,
		client: client,
		ttl:    opts.TTL,
		jitter: max(opts.Jitter, 0),
		load:   opts.LoadTimeout,
	}
}

// Create stores the product and warms its cache entry.
func (r *ProductRepository) Create(ctx context.Context, p product.Product) error {
	if err := r.next.Create(ctx, p); err != nil {
		return err
	}
	r.store(ctx, p)
	return nil
}

// List is not cached: the catalog grows and a stale list would hide new
// products.
func (r *ProductRepository) List(ctx context.Context) ([]product.Product, error) {
	return r.next.List(ctx)
}

// GetByID returns the cached product or loads it from the wrapped
// repository. Concurrent misses for the same id share one load, which is
// detached from the caller that started it: a caller going away only ends
// its own wait.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*product.Product, error) {
	lg := zctx.From(ctx)

	data, err := r.client.Get(ctx, cacheKey(id)).Bytes()
	switch {
	case err == nil:
		p, err := decodeProduct(data)
		if err == nil {
			return &p, nil
		}
		lg.Warn("Discarding corrupt product cache entry", zap.String("product_id", id), zap.Error(err))
	case errors.Is(err, redis.Nil):
	default:
		lg.Warn("Product cache get failed", zap.String("product_id", id), zap.Error(err))
	}

	ch := r.sfg.DoChan(id, func() (any, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.load)
		defer cancel()

		p, err := r.next.GetByID(loadCtx, id)
		if err != nil {
			return nil, err
		}
		r.store(loadCtx, *p)
		return p, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		p := *res.Val.(*product.Product)
		return &p, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// GetByIDs serves hits from a single MGET and loads only the misses from
// the wrapped repository.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	lg := zctx.From(ctx)

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = cacheKey(id)
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		lg.Warn("Product cache mget failed", zap.Int("count", len(ids)), zap.Error(err))
		values = make([]any, len(ids))
	}

	var (
		found  = make([]product.Product, 0, len(ids))
		misses []string
	)
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			misses = append(misses, ids[i])
			continue
		}
		p, err := decodeProduct([]byte(s))
		if err != nil {
			lg.Warn("Discarding corrupt product cache entry", zap.String("product_id", ids[i]), zap.Error(err))
			misses = append(misses, ids[i])
			continue
		}
		found = append(found, p)
	}
	if len(misses) == 0 {
		return found, nil
	}

	loaded, err := r.next.GetByIDs(ctx, misses)
	if err != nil {
		return nil, err
	}
	r.store(ctx, loaded...)
	return append(found, loaded...), nil
}

func (r *ProductRepository) store(ctx context.Context, products ...product.Product) {
	if len(products) == 0 {
		return
	}
	pipe := r.client.Pipeline()
	for _, p := range products {
		pipe.Set(ctx, cacheKey(p.ID), encodeProduct(p), r.entryTTL())
	}
	if _, err := pipe.Exec(ctx); err != nil {
		zctx.From(ctx).Warn("Product cache set failed", zap.Int("count", len(products)), zap.Error(err))
	}
}

func (r *ProductRepository) entryTTL() time.Duration {
	if r.jitter <= 0 {
		return r.ttl
	}
	return r.ttl + time.Duration(rand.Int64N(int64(r.jitter)))
}

func cacheKey(id string) string {
	return fmt.Sprintf("product:%s", id)
}

func encodeProduct(p product.Product) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("id")
	e.Str(p.ID)
	e.FieldStart("name")
	e.Str(p.Name)
	e.FieldStart("price")
	e.Str(p.Price.String())
	e.FieldStart("createdAt")
	e.Str(p.CreatedAt.UTC().Format(time.RFC3339Nano))
	e.ObjEnd()
	return e.Bytes()
}

func decodeProduct(data []byte) (product.Product, error) {
	var p product.Product
	err := jx.DecodeBytes(data).ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "id":
			v, err := d.Str()
			p.ID = v
			return err
		case "name":
			v, err := d.Str()
			p.Name = v
			return err
		case "price":
			v, err := d.Str()
			if err != nil {
				return err
			}
			p.Price, err = decimal.NewFromString(v)
			return err
		case "createdAt":
			v, err := d.Str()
			if err != nil {
				return err
			}
			p.CreatedAt, err = time.Parse(time.RFC3339Nano, v)
			return err
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return product.Product{}, errors.Wrap(err, "decode product")
	}
	if p.ID == "" {
		return product.Product{}, errors.New("decode product: missing id")
	}
	return p, nil
}
