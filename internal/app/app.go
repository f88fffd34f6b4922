package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/kart-cart/internal/domain/cart"
	"github.com/xenking/kart-cart/internal/domain/product"
	"github.com/xenking/kart-cart/internal/handler"
	"github.com/xenking/kart-cart/pkg/health"
	"github.com/xenking/kart-cart/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("backend", cfg.Backend),
	)

	storage, err := OpenStorage(ctx, lg, cfg)
	if err != nil {
		return errors.Wrap(err, "open storage")
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := storage.Close(closeCtx); err != nil {
			lg.Error("Storage close error", zap.Error(err))
		}
	}()

	// Health check service.
	healthSvc := health.New()
	for name, check := range storage.Checks {
		healthSvc.AddReadinessCheck(name, 2*time.Second, check)
	}
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))

	h, err := newHandler(lg, cfg, storage, healthSvc, m.TracerProvider(), m.MeterProvider())
	if err != nil {
		return err
	}
	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler:           h,
	}
	healthSvc.SetReady(true)

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

// newHandler builds the services and the full middleware-wrapped router.
func newHandler(
	lg *zap.Logger,
	cfg *Config,
	storage *Storage,
	healthSvc *health.Health,
	tp trace.TracerProvider,
	mp metric.MeterProvider,
) (http.Handler, error) {
	productSvc := product.NewService(storage.Products, cfg.StoreTimeout)
	cartSvc, err := cart.NewService(storage.Products, storage.Lines, cart.Options{
		Timeout:        cfg.StoreTimeout,
		MeterProvider:  mp,
		TracerProvider: tp,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create cart service")
	}

	// Router: health endpoints + API routes on one server.
	r := chi.NewRouter()
	r.Use(
		httpmiddleware.LogRequests(),
		httpmiddleware.Labeler(),
	)
	r.Get("/livez", healthSvc.LiveEndpoint)
	r.Get("/readyz", healthSvc.ReadyEndpoint)
	handler.New(productSvc, cartSvc).Register(r)

	return httpmiddleware.Wrap(r,
		httpmiddleware.InjectLogger(lg),
		httpmiddleware.RequestID(),
		httpmiddleware.Recovery(),
		httpmiddleware.CORS(httpmiddleware.CORSConfig{
			AllowOrigins: cfg.CORS.Origins,
			AllowHeaders: []string{"Content-Type", "X-Request-ID"},
			MaxAge:       cfg.CORS.MaxAge,
		}),
		httpmiddleware.Instrument("cart-api", tp, mp),
	), nil
}
