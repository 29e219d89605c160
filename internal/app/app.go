// Package app wires the storefront core together: configuration, storage,
// domain services, HTTP surface and graceful shutdown.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/chatshop-io/chatshop/internal/domain/cart"
	"github.com/chatshop-io/chatshop/internal/domain/order"
	"github.com/chatshop-io/chatshop/internal/domain/promo"
	"github.com/chatshop-io/chatshop/internal/handler"
	"github.com/chatshop-io/chatshop/internal/notify"
	"github.com/chatshop-io/chatshop/internal/storage/postgres"
	"github.com/chatshop-io/chatshop/pkg/health"
	"github.com/chatshop-io/chatshop/pkg/httpmiddleware"
	"github.com/chatshop-io/chatshop/pkg/keymutex"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(pool))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Repositories.
	productRepo := postgres.NewProductRepository(pool)
	cartRepo := postgres.NewCartRepository(pool)
	promoRepo := postgres.NewPromoRepository(pool)
	orderRepo := postgres.NewOrderRepository(pool)
	apikeyRepo := postgres.NewAPIKeyRepository(pool)

	// Domain services. The keyed mutex is shared between the cart and order
	// services so each user's cart mutations and checkout serialize.
	users := keymutex.New()
	cartService := cart.NewService(cartRepo, productRepo, users)

	var promoOpts []promo.Option
	tiers, err := cfg.Discounts.ParseTiers()
	if err != nil {
		return errors.Wrap(err, "parse discount tiers")
	}
	if tiers != nil {
		promoOpts = append(promoOpts, promo.WithTiers(tiers))
	}
	promoOpts = append(promoOpts, promo.WithStackable(cfg.Discounts.Stackable))
	promoService := promo.NewService(promoRepo, promoOpts...)

	notifier := notify.New(notify.LogSender(), cfg.Notify.AdminIDs)
	orderService := order.NewService(
		cartService, promoService, productRepo, orderRepo, orderRepo,
		notifier, users,
	)

	// HTTP surface.
	auth := handler.NewAPIKeyAuth(apikeyRepo, []byte(cfg.APIKeyPepper))
	h := handler.New(productRepo, cartService, promoService, orderService, auth)

	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("/readyz", healthSvc.ReadyEndpoint)
	mux.Handle("/api/v1/", http.StripPrefix("/api/v1", h.Routes()))

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.Recovery(),
			httpmiddleware.RateLimit(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Instrument("chatshop-api", m),
			httpmiddleware.LogRequests(),
		),
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
