package cart

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/xenking/kart-cart/internal/domain/apperr"
	"github.com/xenking/kart-cart/internal/domain/product"
)

// DefaultTimeout bounds a single store call when no timeout is configured.
const DefaultTimeout = 3 * time.Second

const instrumentationName = "github.com/xenking/kart-cart/internal/domain/cart"

// Options configures a Service. Zero values select no-op telemetry and
// DefaultTimeout.
type Options struct {
	Timeout        time.Duration
	MeterProvider  metric.MeterProvider
	TracerProvider trace.TracerProvider
}

// Service joins cart lines with catalog products. It owns the invariants
// that tie the two stores together: a line is only ever created for an
// existing product, and removing an absent line is an error.
//
// The service never writes to the catalog.
type Service struct {
	products product.Repository
	lines    Store
	timeout  time.Duration
	tracer   trace.Tracer

	added       metric.Int64Counter
	incremented metric.Int64Counter
	removed     metric.Int64Counter
	orphaned    metric.Int64Counter
}

// NewService creates a cart Service over the given stores.
func NewService(products product.Repository, lines Store, opts Options) (*Service, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MeterProvider == nil {
		opts.MeterProvider = metricnoop.NewMeterProvider()
	}
	if opts.TracerProvider == nil {
		opts.TracerProvider = tracenoop.NewTracerProvider()
	}

	s := &Service{
		products: products,
		lines:    lines,
		timeout:  opts.Timeout,
		tracer:   opts.TracerProvider.Tracer(instrumentationName),
	}

	meter := opts.MeterProvider.Meter(instrumentationName)
	var err error
	if s.added, err = meter.Int64Counter("cart.lines.added",
		metric.WithDescription("Cart lines created by add-to-cart"),
	); err != nil {
		return nil, errors.Wrap(err, "lines added counter")
	}
	if s.incremented, err = meter.Int64Counter("cart.lines.incremented",
		metric.WithDescription("Add-to-cart calls merged into an existing line"),
	); err != nil {
		return nil, errors.Wrap(err, "lines incremented counter")
	}
	if s.removed, err = meter.Int64Counter("cart.lines.removed",
		metric.WithDescription("Cart lines removed"),
	); err != nil {
		return nil, errors.Wrap(err, "lines removed counter")
	}
	if s.orphaned, err = meter.Int64Counter("cart.lines.orphaned",
		metric.WithDescription("Cart lines skipped because their product is missing"),
	); err != nil {
		return nil, errors.Wrap(err, "lines orphaned counter")
	}

	return s, nil
}

// AddToCart adds quantity units of a product to the cart. The first add for
// a product creates its line; later adds increment it.
func (s *Service) AddToCart(ctx context.Context, rawID string, quantity int64) (_ *AddResult, rerr error) {
	ctx, span := s.tracer.Start(ctx, "cart.AddToCart")
	defer func() { endSpan(span, rerr) }()

	if err := ValidateDelta(quantity); err != nil {
		return nil, err
	}
	id, err := product.ParseID(rawID)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.String("product.id", id),
		attribute.Int64("cart.quantity", quantity),
	)

	if err := s.ensureProduct(ctx, id); err != nil {
		return nil, err
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	up, err := s.lines.UpsertIncrement(storeCtx, id, quantity)
	if err != nil {
		return nil, errors.Wrap(apperr.Unavailable("upsert cart line", err), "add to cart")
	}

	if up.Created {
		s.added.Add(ctx, 1)
	} else {
		s.incremented.Add(ctx, 1)
	}
	span.SetAttributes(
		attribute.Bool("cart.line.created", up.Created),
		attribute.Int64("cart.line.quantity", up.Quantity),
	)

	return &AddResult{
		ProductID: id,
		Created:   up.Created,
		Quantity:  up.Quantity,
	}, nil
}

// ensureProduct fails with a not-found error unless the catalog holds id.
func (s *Service) ensureProduct(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if _, err := s.products.GetByID(ctx, id); err != nil {
		if errors.Is(err, product.ErrNotFound) {
			return &apperr.NotFoundError{
				Entity:  "product",
				ID:      id,
				Message: "Product not found with the provided ID.",
			}
		}
		return errors.Wrap(apperr.Unavailable("get product", err), "add to cart")
	}
	return nil
}

// RemoveFromCart deletes the whole line for a product. Removing a product
// that is not in the cart is a not-found error and leaves the cart as is.
func (s *Service) RemoveFromCart(ctx context.Context, rawID string) (rerr error) {
	ctx, span := s.tracer.Start(ctx, "cart.RemoveFromCart")
	defer func() { endSpan(span, rerr) }()

	id, err := product.ParseID(rawID)
	if err != nil {
		return err
	}
	span.SetAttributes(attribute.String("product.id", id))

	storeCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	removed, err := s.lines.Remove(storeCtx, id)
	if err != nil {
		return errors.Wrap(apperr.Unavailable("remove cart line", err), "remove from cart")
	}
	if !removed {
		return &apperr.NotFoundError{
			Entity:  "cart line",
			ID:      id,
			Message: "Product not found in cart",
		}
	}

	s.removed.Add(ctx, 1)
	return nil
}

// GetCart returns every cart line joined with its product, oldest first.
//
// Lines whose product no longer exists are left out of the result and the
// total; they are logged and counted but never fail the call.
func (s *Service) GetCart(ctx context.Context) (_ *Cart, rerr error) {
	ctx, span := s.tracer.Start(ctx, "cart.GetCart")
	defer func() { endSpan(span, rerr) }()

	c, err := s.join(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "get cart")
	}
	span.SetAttributes(attribute.Int("cart.items", len(c.Items)))
	return c, nil
}

// GetCartTotal returns the sum of price * quantity over all joinable lines,
// at full precision.
func (s *Service) GetCartTotal(ctx context.Context) (_ decimal.Decimal, rerr error) {
	ctx, span := s.tracer.Start(ctx, "cart.GetCartTotal")
	defer func() { endSpan(span, rerr) }()

	c, err := s.join(ctx)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "get cart total")
	}
	return c.Total, nil
}

func (s *Service) join(ctx context.Context) (*Cart, error) {
	lines, err := s.listLines(ctx)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return &Cart{Items: []Item{}, Total: decimal.Zero}, nil
	}

	products, err := s.fetchProducts(ctx, lines)
	if err != nil {
		return nil, err
	}

	slices.SortFunc(lines, func(a, b Line) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ProductID, b.ProductID)
	})

	c := &Cart{
		Items: make([]Item, 0, len(lines)),
		Total: decimal.Zero,
	}
	for _, l := range lines {
		p, ok := products[l.ProductID]
		if !ok {
			s.orphaned.Add(ctx, 1)
			zctx.From(ctx).Warn("Skipping cart line for missing product",
				zap.String("product_id", l.ProductID),
				zap.Int64("quantity", l.Quantity),
			)
			continue
		}

		lineTotal := p.Price.Mul(decimal.NewFromInt(l.Quantity))
		c.Items = append(c.Items, Item{
			Product:   p,
			Quantity:  l.Quantity,
			LineTotal: lineTotal,
			AddedAt:   l.CreatedAt,
		})
		c.Total = c.Total.Add(lineTotal)
	}
	return c, nil
}

func (s *Service) listLines(ctx context.Context) ([]Line, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	lines, err := s.lines.List(ctx)
	if err != nil {
		return nil, apperr.Unavailable("list cart lines", err)
	}
	return lines, nil
}

func (s *Service) fetchProducts(ctx context.Context, lines []Line) (map[string]product.Product, error) {
	ids := make([]string, len(lines))
	for i, l := range lines {
		ids[i] = l.ProductID
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	found, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, apperr.Unavailable("get products", err)
	}

	byID := make(map[string]product.Product, len(found))
	for _, p := range found {
		byID[p.ID] = p
	}
	return byID, nil
}

// endSpan records store failures on the span. Caller faults are not span
// errors.
func endSpan(span trace.Span, err error) {
	if err != nil && errors.Is(err, apperr.ErrUnavailable) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
