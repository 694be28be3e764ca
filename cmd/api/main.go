package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	httpAdapter "github.com/MoonShineVFX/meal-system-sub001/internal/adapters/primary/http"
	mw "github.com/MoonShineVFX/meal-system-sub001/internal/adapters/primary/http/middleware"
	"github.com/MoonShineVFX/meal-system-sub001/internal/adapters/primary/websocket"
	"github.com/MoonShineVFX/meal-system-sub001/internal/adapters/secondary/memory"
	"github.com/MoonShineVFX/meal-system-sub001/internal/adapters/secondary/postgres"
	"github.com/MoonShineVFX/meal-system-sub001/internal/adapters/secondary/push"
	"github.com/MoonShineVFX/meal-system-sub001/internal/auth"
	"github.com/MoonShineVFX/meal-system-sub001/internal/config"
	"github.com/MoonShineVFX/meal-system-sub001/internal/core/ports"
	"github.com/MoonShineVFX/meal-system-sub001/internal/core/services"
	"github.com/MoonShineVFX/meal-system-sub001/internal/infrastructure/logging"
	"github.com/MoonShineVFX/meal-system-sub001/internal/infrastructure/metrics"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// 2. Initialize Structured Logger
	logger := logging.NewLogger(logging.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Output:      os.Stdout,
		ServiceName: cfg.App.Name,
		Environment: cfg.App.Environment,
		InstanceID:  cfg.App.InstanceID,
	})

	logger.Info("starting service",
		"version", cfg.App.Version,
		"environment", cfg.App.Environment,
		"instance_id", cfg.App.InstanceID,
		"config", cfg.String(),
	)

	if err := run(cfg, logger); err != nil {
		logger.Error("service stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("server shutdown complete")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	// 4. Database (only when a postgres backend is selected)
	var pool *pgxpool.Pool
	if cfg.UsesDatabase() {
		if err := postgres.RunMigrations(cfg.Database.URL); err != nil {
			return err
		}

		var err error
		pool, err = postgres.NewPool(ctx, postgres.PoolConfig{
			URL:             cfg.Database.URL,
			MaxConns:        int32(cfg.Database.MaxOpenConns),
			MinConns:        int32(cfg.Database.MaxIdleConns),
			MaxConnLifetime: cfg.Database.ConnMaxLifetime,
			MaxConnIdleTime: cfg.Database.ConnMaxIdleTime,
		})
		if err != nil {
			return err
		}
		defer pool.Close()
		logger.Info("database connection established")
	}

	// 5. Transport and counter store
	transport, transportHealth := newTransport(cfg, pool, logger)
	counterStore := newCounterStore(cfg, pool)

	if err := transport.Connect(ctx); err != nil {
		return err
	}
	defer func() {
		if err := transport.Close(); err != nil {
			logger.Warn("transport close failed", "error", err)
		}
	}()

	// 6. Core services
	router := services.NewChannelRouter()

	var pusher ports.PushNotifier
	if cfg.Push.Enabled {
		pusher = push.NewLogNotifier(logger)
	}
	publisher := services.NewPublisher(router, transport, pusher, logger,
		services.WithPushTimeout(cfg.Push.Timeout),
		services.WithMetrics(m),
	)
	defer publisher.Shutdown()

	counter := services.NewConnectionCounter(counterStore, m, logger)
	if err := counter.Reset(ctx); err != nil {
		return err
	}
	counter.OnChange(services.ConnectionCountReporter(publisher, logger))

	deposits := services.NewDepositNotifier(publisher, logger)

	// 7. Real-time hub
	hub := websocket.NewHub(transport, router, m, logger, websocket.HubConfig{
		QueueSize:        cfg.Realtime.HubQueue,
		TransportTimeout: cfg.Realtime.SubscribeTimeout,
	})
	hubDone := make(chan struct{})
	go func() {
		defer close(hubDone)
		hub.Run(ctx)
	}()

	// 8. Handlers (Primary Adapters)
	tokenManager := auth.NewTokenManager(cfg.JWT.Secret, cfg.JWT.AccessTokenTTL)
	errorHandler := httpAdapter.NewErrorHandler(logger)

	checks := map[string]httpAdapter.HealthChecker{"transport": transportHealth}
	if pool != nil {
		checks["database"] = pool
	}

	routerCfg := httpAdapter.RouterConfig{
		TokenManager:   tokenManager,
		Logger:         logger,
		AllowedOrigins: cfg.WebSocket.AllowedOrigins,
		Health:         httpAdapter.NewHealthHandler(cfg.App.Version, checks),
		WebSocket:      httpAdapter.NewWebSocketHandler(hub, tokenManager, counter, cfg, logger),
		Events:         httpAdapter.NewEventsHandler(publisher, errorHandler, logger),
		Payments:       httpAdapter.NewPaymentsHandler(deposits, errorHandler, logger),
		Realtime:       httpAdapter.NewRealtimeHandler(router, publisher, hub, counter, cfg.App.InstanceID, errorHandler, logger),
		Metrics:        promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}),
	}

	if cfg.RateLimit.Enabled {
		routerCfg.APILimiter = mw.NewRateLimiter(ctx, mw.RateLimiterConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			BurstSize:         cfg.RateLimit.BurstSize,
			CleanupInterval:   time.Minute,
			TTL:               3 * time.Minute,
		})
		routerCfg.HandshakeLimiter = mw.NewRateLimiter(ctx, mw.RateLimiterConfig{
			RequestsPerSecond: cfg.RateLimit.AuthRPS,
			BurstSize:         cfg.RateLimit.AuthBurst,
			CleanupInterval:   time.Minute,
			TTL:               5 * time.Minute,
		})
	}

	// 9. Start Server with Graceful Shutdown
	srv := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      httpAdapter.NewRouter(routerCfg),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		stop()
		<-hubDone
		return err
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Hijacked websocket connections are not tracked by Shutdown; the hub
	// closes them when ctx ends.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	<-hubDone

	if err := counter.Reset(shutdownCtx); err != nil {
		logger.Warn("failed to clear connection count", "error", err)
	}
	return nil
}

func newTransport(cfg *config.Config, pool *pgxpool.Pool, logger *slog.Logger) (ports.Transport, httpAdapter.HealthChecker) {
	if cfg.Realtime.Transport == config.BackendPostgres {
		t := postgres.NewNotifyTransport(pool, postgres.NotifyTransportConfig{
			Channel:              cfg.Realtime.NotifyChannel,
			MaxReconnectInterval: cfg.Realtime.ReconnectMaxInterval,
		}, logger)
		return t, t
	}
	e := memory.NewEmitter(logger)
	return e, e
}

func newCounterStore(cfg *config.Config, pool *pgxpool.Pool) ports.CounterStore {
	if cfg.Realtime.CounterStore == config.BackendPostgres {
		return postgres.NewCounterStore(pool, cfg.App.InstanceID)
	}
	return memory.NewCounterStore()
}
