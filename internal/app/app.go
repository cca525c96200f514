package app

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/webstore/internal/domain/analytics"
	"github.com/xenking/webstore/internal/domain/order"
	"github.com/xenking/webstore/internal/handler"
	"github.com/xenking/webstore/internal/repository"
	"github.com/xenking/webstore/pkg/health"
	"github.com/xenking/webstore/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// PostgreSQL pool + migrations.
	pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Health check service.
	healthSvc := health.New()
	healthSvc.Register(health.Check{
		Name:    "postgres",
		Kind:    health.Readiness,
		Timeout: 5 * time.Second,
		Func:    health.PingCheck(pool),
	})
	healthSvc.Register(health.Check{
		Name: "goroutines",
		Kind: health.Liveness,
		Func: health.GoroutineCountCheck(10000),
	})
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Repositories.
	productRepo := repository.NewProductRepository(pool)
	customerRepo := repository.NewCustomerRepository(pool)
	orderRepo := repository.NewOrderRepository(pool)

	// Domain services.
	orderService, err := order.NewService(
		repository.NewTransactor(pool),
		productRepo,
		customerRepo,
		orderRepo,
		order.Telemetry{
			MeterProvider:  m.MeterProvider(),
			TracerProvider: m.TracerProvider(),
		},
	)
	if err != nil {
		return errors.Wrap(err, "create order service")
	}
	analyticsService := analytics.NewService(orderRepo, cfg.Analytics.TopCategories)

	h := handler.NewHandler(productRepo, orderService, analyticsService)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler:           newHTTPHandler(ctx, h, healthSvc, m, cfg.RateLimit),
		// Requests keep the base logger but must outlive ctx while draining.
		BaseContext: func(net.Listener) context.Context {
			return context.WithoutCancel(ctx)
		},
	}

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
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

// newHTTPHandler builds the API router. Middlewares that need chi's routing
// context are registered on the router; panic recovery and request ids wrap
// it so that they also cover chi's own 404 and 405 responses.
func newHTTPHandler(
	ctx context.Context,
	h *handler.Handler,
	healthSvc *health.Service,
	m httpmiddleware.Telemetry,
	rl RateLimitConfig,
) http.Handler {
	find := httpmiddleware.MakeRouteFinder()
	r := chi.NewRouter()
	r.Use(
		httpmiddleware.InjectLogger(zctx.From(ctx)),
		httpmiddleware.Instrument("webstore-api", find, m),
		httpmiddleware.LogRequests(find),
		httpmiddleware.Labeler(find),
	)
	r.Get("/livez", healthSvc.LiveEndpoint)
	r.Get("/readyz", healthSvc.ReadyEndpoint)

	h.Mount(r, httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
		Max:     rl.Max,
		Window:  rl.Window,
		Methods: []string{http.MethodPost, http.MethodPut},
	}))

	return httpmiddleware.Wrap(r,
		httpmiddleware.Recovery(),
		httpmiddleware.RequestID(),
	)
}
