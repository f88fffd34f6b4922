package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"go.uber.org/zap"

	appkg "github.com/xenking/kart-cart/internal/app"
	"github.com/xenking/kart-cart/internal/domain/product"
)

func main() {
	cfg := appkg.Config{Migrate: true}
	var (
		productsFile string
		concurrency  int
	)

	flag.StringVar(&cfg.Backend, "backend", appkg.BackendPostgres, "storage backend: postgres or mongo")
	flag.StringVar(&cfg.DatabaseURL, "database-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&cfg.Mongo.URI, "mongo-uri", os.Getenv("MONGODB_URI"), "MongoDB connection URI (or MONGODB_URI env)")
	flag.StringVar(&cfg.Mongo.Database, "mongo-database", "shoppingDB", "MongoDB database name")
	flag.DurationVar(&cfg.StoreTimeout, "store-timeout", 5*time.Second, "upper bound for a single insert")
	flag.StringVar(&productsFile, "products-file", "db/seed/products.json", "path to a products .json or .json.gz file")
	flag.IntVar(&concurrency, "concurrency", 4, "parallel inserts")
	flag.Parse()

	app.Run(func(ctx context.Context, lg *zap.Logger, _ *app.Telemetry) error {
		if cfg.Backend == appkg.BackendMemory {
			return errors.New("seeding the memory backend has no effect")
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		return run(ctx, lg, &cfg, productsFile, concurrency)
	})
}

func run(ctx context.Context, lg *zap.Logger, cfg *appkg.Config, productsFile string, concurrency int) error {
	lg.Info("Reading products file", zap.String("path", productsFile))
	seeds, err := readProducts(productsFile)
	if err != nil {
		return errors.Wrap(err, "read products")
	}

	storage, err := appkg.OpenStorage(ctx, lg, cfg)
	if err != nil {
		return errors.Wrap(err, "open storage")
	}
	defer func() {
		if err := storage.Close(context.WithoutCancel(ctx)); err != nil {
			lg.Error("Storage close error", zap.Error(err))
		}
	}()

	ids, err := seed(ctx, product.NewService(storage.Products, cfg.StoreTimeout), seeds, concurrency)
	if err != nil {
		return errors.Wrap(err, "seed products")
	}
	for i, s := range seeds {
		lg.Info("Created product",
			zap.String("id", ids[i]),
			zap.String("name", s.Name),
			zap.String("price", s.Price.String()),
		)
	}
	lg.Info("Seed completed", zap.Int("count", len(ids)))
	return nil
}
