package app

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/xenking/kart-cart/internal/domain/cart"
	"github.com/xenking/kart-cart/internal/domain/product"
	"github.com/xenking/kart-cart/internal/storage/memory"
	"github.com/xenking/kart-cart/internal/storage/mongo"
	"github.com/xenking/kart-cart/internal/storage/postgres"
	"github.com/xenking/kart-cart/internal/storage/rediscache"
	"github.com/xenking/kart-cart/pkg/health"
)

// Storage is the opened persistence layer: the catalog and cart stores of
// the configured backend, optionally fronted by the Redis product cache.
type Storage struct {
	Products product.Repository
	Lines    cart.Store
	// Checks are readiness probes for every remote dependency.
	Checks map[string]health.CheckFunc

	closers []func(ctx context.Context) error
}

// Close releases connections in reverse opening order.
func (s *Storage) Close(ctx context.Context) error {
	var err error
	for i := len(s.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, s.closers[i](ctx))
	}
	s.closers = nil
	return err
}

func (s *Storage) onClose(fn func(ctx context.Context) error) {
	s.closers = append(s.closers, fn)
}

// OpenStorage connects the backend selected by cfg.Backend, applies the
// schema when cfg.Migrate is set and wraps the catalog with the Redis cache
// when cfg.Redis.URL is set. On error everything opened so far is closed.
func OpenStorage(ctx context.Context, lg *zap.Logger, cfg *Config) (_ *Storage, rerr error) {
	s := &Storage{Checks: make(map[string]health.CheckFunc)}
	defer func() {
		if rerr != nil {
			_ = s.Close(context.WithoutCancel(ctx))
		}
	}()

	switch cfg.Backend {
	case BackendPostgres:
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, postgres.PoolOptions{
			MaxConns:         cfg.Postgres.MaxConns,
			MinConns:         cfg.Postgres.MinConns,
			MaxConnLifetime:  cfg.Postgres.MaxConnLifetime,
			MaxConnIdleTime:  cfg.Postgres.MaxConnIdleTime,
			StatementTimeout: cfg.StoreTimeout,
		})
		if err != nil {
			return nil, errors.Wrap(err, "create db pool")
		}
		s.onClose(func(context.Context) error {
			pool.Close()
			return nil
		})
		if cfg.Migrate {
			if err := postgres.RunMigrations(ctx, pool); err != nil {
				return nil, errors.Wrap(err, "run migrations")
			}
		}
		s.Products = postgres.NewProductRepository(pool)
		s.Lines = postgres.NewCartStore(pool)
		s.Checks["postgres"] = pool.Ping

	case BackendMongo:
		db, err := mongo.Connect(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
		if err != nil {
			return nil, errors.Wrap(err, "connect mongo")
		}
		s.onClose(db.Client().Disconnect)
		if cfg.Migrate {
			if err := mongo.EnsureIndexes(ctx, db); err != nil {
				return nil, errors.Wrap(err, "ensure indexes")
			}
		}
		s.Products = mongo.NewProductRepository(db)
		s.Lines = mongo.NewCartStore(db)
		s.Checks["mongo"] = func(ctx context.Context) error {
			return db.Client().Ping(ctx, nil)
		}

	case BackendMemory:
		lg.Warn("Using in-memory storage, data is lost on restart")
		s.Products = memory.NewProductRepository()
		s.Lines = memory.NewCartStore()

	default:
		return nil, errors.Errorf("unknown storage backend %q", cfg.Backend)
	}

	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return nil, errors.Wrap(err, "parse redis url")
		}
		client := redis.NewClient(opts)
		s.onClose(func(context.Context) error {
			return client.Close()
		})

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			// Cache misses fall through to the backend.
			lg.Warn("Redis is not reachable yet", zap.Error(err))
		}

		s.Products = rediscache.New(s.Products, client, rediscache.Options{
			TTL:         cfg.Redis.TTL,
			Jitter:      cfg.Redis.Jitter,
			LoadTimeout: cfg.StoreTimeout,
		})
		s.Checks["redis"] = func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		}
		lg.Info("Product cache enabled", zap.String("addr", opts.Addr))
	}

	lg.Info("Storage opened", zap.String("backend", cfg.Backend))
	return s, nil
}
