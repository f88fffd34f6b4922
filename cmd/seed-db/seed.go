package main

import (
	"bufio"
	"context"
	"io"
	"os"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/kart-cart/internal/domain/product"
)

// productSeed is one entry of the products file.
type productSeed struct {
	Name  string
	Price decimal.Decimal
}

// readProducts loads a JSON array of {name, price} objects. Files ending in
// .gz are decompressed with pgzip.
func readProducts(path string) ([]productSeed, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open")
	}
	defer func() { _ = f.Close() }()

	var r io.Reader = bufio.NewReader(f)
	if strings.HasSuffix(path, ".gz") {
		zr, err := pgzip.NewReader(r)
		if err != nil {
			return nil, errors.Wrap(err, "gzip")
		}
		defer func() { _ = zr.Close() }()
		r = zr
	}
	return decodeProducts(r)
}

func decodeProducts(r io.Reader) ([]productSeed, error) {
	var seeds []productSeed
	err := jx.Decode(r, 64*1024).Arr(func(d *jx.Decoder) error {
		var s productSeed
		if err := d.Obj(func(d *jx.Decoder, key string) error {
			switch key {
			case "name":
				v, err := d.Str()
				s.Name = v
				return err
			case "price":
				num, err := d.Num()
				if err != nil {
					return err
				}
				s.Price, err = decimal.NewFromString(num.String())
				return err
			default:
				return d.Skip()
			}
		}); err != nil {
			return errors.Wrapf(err, "product %d", len(seeds))
		}
		seeds = append(seeds, s)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "decode")
	}
	return seeds, nil
}

// seed creates every product through svc with at most concurrency inserts
// in flight. The returned ids are in input order.
func seed(ctx context.Context, svc *product.Service, seeds []productSeed, concurrency int) ([]string, error) {
	ids := make([]string, len(seeds))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(concurrency, 1))
	for i, s := range seeds {
		g.Go(func() error {
			id, err := svc.Create(ctx, s.Name, s.Price)
			if err != nil {
				return errors.Wrapf(err, "create %q", s.Name)
			}
			ids[i] = id
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return ids, nil
}
