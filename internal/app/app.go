// Package app wires configuration, storage, domain services, and the HTTP
// server together.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	goredis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/arula-ai/commerce-api/internal/domain/auth"
	"github.com/arula-ai/commerce-api/internal/domain/inventory"
	"github.com/arula-ai/commerce-api/internal/domain/notification"
	"github.com/arula-ai/commerce-api/internal/domain/order"
	"github.com/arula-ai/commerce-api/internal/domain/payment"
	"github.com/arula-ai/commerce-api/internal/domain/user"
	"github.com/arula-ai/commerce-api/internal/handler"
	"github.com/arula-ai/commerce-api/internal/storage/postgres"
	"github.com/arula-ai/commerce-api/internal/storage/redis"
	"github.com/arula-ai/commerce-api/internal/validate"
	"github.com/arula-ai/commerce-api/pkg/health"
	"github.com/arula-ai/commerce-api/pkg/httpmiddleware"
)

// idempotencyTTL is how long order-create deduplication entries live.
const idempotencyTTL = 24 * time.Hour

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

	// Health probes.
	healthSvc := health.New()
	healthSvc.Register(health.Readiness, "postgres", 5*time.Second, health.PingCheck(pool))
	healthSvc.Register(health.Liveness, "goroutines", time.Second, health.GoroutineCountCheck(10000))

	// Optional Redis for request deduplication.
	var idemp order.IdempotencyStore
	if cfg.RedisAddr != "" {
		rdb := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
		defer func() { _ = rdb.Close() }()

		healthSvc.Register(health.Readiness, "redis", 2*time.Second, func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})
		idemp = redis.New(rdb, idempotencyTTL)
	} else {
		lg.Info("Redis not configured, order deduplication disabled")
	}

	healthSvc.Start(ctx, 10*time.Second)
	defer healthSvc.Stop()

	// Repositories.
	userRepo := postgres.NewUserRepository(pool)
	orderRepo := postgres.NewOrderRepository(pool)
	paymentRepo := postgres.NewPaymentRepository(pool)
	stockRepo := postgres.NewInventoryRepository(pool)
	notifRepo := postgres.NewNotificationRepository(pool)
	apikeyRepo := postgres.NewAPIKeyRepository(pool)

	// Background notification delivery.
	dispatcher := notification.NewDispatcher(lg, notifRepo, notification.LogSender{}, cfg.Notify.Capacity)
	dispatcher.Start(ctx, cfg.Notify.Workers)

	// Domain services.
	userService := user.NewService(userRepo)
	inventoryService := inventory.NewService(stockRepo)
	orderService := order.NewService(orderRepo, inventoryService, dispatcher, idemp)
	paymentService := payment.NewService(paymentRepo, orderService)
	verifier := auth.NewVerifier(apikeyRepo, []byte(cfg.APIKeyPepper))

	// HTTP surface: health endpoints bypass the API middleware chain.
	h := handler.NewHandler(userService, orderService, paymentService, inventoryService, notifRepo, verifier, validate.New())

	limiter := httpmiddleware.NewRateLimiter(httpmiddleware.RateLimitConfig{
		Limit:  cfg.RateLimit.Max,
		Window: cfg.RateLimit.Window,
	})
	defer limiter.Close()

	api := httpmiddleware.Wrap(h.Routes(),
		httpmiddleware.Recovery(),
		httpmiddleware.CORS(httpmiddleware.CORSConfig{
			AllowOrigins:     cfg.CORS.Origins,
			AllowHeaders:     []string{"Content-Type", "Authorization", "X-API-Key", "Idempotency-Key"},
			AllowCredentials: cfg.CORS.AllowCredentials,
			MaxAge:           86400,
		}),
		limiter.Middleware(),
		httpmiddleware.RequestID(),
		httpmiddleware.InjectLogger(zctx.From(ctx)),
		httpmiddleware.LogRequests(),
	)

	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("/readyz", healthSvc.ReadyEndpoint)
	mux.Handle("/api/", otelhttp.NewHandler(api, "commerce-api",
		otelhttp.WithTracerProvider(m.TracerProvider()),
		otelhttp.WithMeterProvider(m.MeterProvider()),
	))

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler:           mux,
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
		if err := dispatcher.Stop(); err != nil {
			lg.Error("Dispatcher shutdown error", zap.Error(err))
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
