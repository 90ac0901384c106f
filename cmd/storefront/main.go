package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/fjod/storefront/internal/auth"
	"github.com/fjod/storefront/internal/cache"
	"github.com/fjod/storefront/internal/catalog"
	"github.com/fjod/storefront/internal/config"
	storegrpc "github.com/fjod/storefront/internal/grpc"
	h "github.com/fjod/storefront/internal/http"
	"github.com/fjod/storefront/internal/publisher"
	"github.com/fjod/storefront/internal/repository"
	"github.com/fjod/storefront/internal/service"
	"github.com/fjod/storefront/pkg/circuitbreaker"
	"github.com/fjod/storefront/pkg/logger"
	"github.com/fjod/storefront/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()
	zap.ReplaceGlobals(log)

	if err := run(cfg, log); err != nil {
		log.Fatal("storefront stopped with error", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	log.Info("storefront starting...")
	var wg sync.WaitGroup

	// Orders, carts and users
	repo, err := repository.NewRepository(&cfg.DB)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer repo.Close()

	if err := repo.RunMigrations(&cfg.DB); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	log.Info("database migrations completed")

	// Catalog
	catalogRepo, err := catalog.NewRepository(cfg.CatalogDBPath)
	if err != nil {
		return fmt.Errorf("open catalog: %w", err)
	}
	defer catalogRepo.Close()

	if err := catalogRepo.RunMigrations(cfg.CatalogMigrationsPath); err != nil {
		return fmt.Errorf("run catalog migrations: %w", err)
	}
	products := catalog.NewBreaker(catalogRepo, circuitbreaker.DefaultConfig("catalog"), log)

	// Cart cache
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	defer redisClient.Close()

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 2*time.Second)
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		log.Warn("redis unavailable, carts will be served from the database", zap.Error(err))
	}
	pingCancel()
	cartCache := cache.NewRedisCache(redisClient)

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New("api", reg)

	// Services
	orderOpts := []service.Option{service.WithRecorder(m)}
	if cfg.LenientStatusPolicy {
		orderOpts = append(orderOpts, service.WithLenientTransitions())
		log.Info("lenient order status policy enabled")
	}
	carts := service.NewCartService(repo, products, cartCache, log)
	orders := service.NewOrderService(repo, products, cartCache, log, orderOpts...)
	authService := auth.NewService(repo, cfg.SecretKey, cfg.AccessTokenTTL, log)

	bootstrapCtx, bootstrapCancel := context.WithTimeout(context.Background(), 10*time.Second)
	err = authService.EnsureSuperuser(bootstrapCtx, cfg.FirstSuperuser, cfg.FirstSuperuserPassword)
	bootstrapCancel()
	if err != nil {
		return fmt.Errorf("create first superuser: %w", err)
	}

	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()

	// Outbox relay
	if len(cfg.KafkaBrokers) > 0 {
		poller := publisher.NewOutboxPoller(repo, log, cfg.KafkaTopic, cfg.KafkaBrokers...)
		defer poller.Close()
		wg.Add(1)
		go func() {
			defer wg.Done()
			poller.Run(bgCtx)
		}()
		log.Info("outbox poller started", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaTopic))
	} else {
		log.Warn("KAFKA_BROKERS not set, outbox events will not be published")
	}

	// gRPC health
	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		return fmt.Errorf("listen grpc: %w", err)
	}
	grpcServer, healthServer := storegrpc.NewServer()
	checker := storegrpc.NewHealthChecker(healthServer, log, repo, storegrpc.PingFunc(func(ctx context.Context) error {
		return redisClient.Ping(ctx).Err()
	}))
	wg.Add(1)
	go func() {
		defer wg.Done()
		checker.Run(bgCtx)
	}()

	go func() {
		log.Info("grpc health listening", zap.String("port", cfg.GRPCPort))
		if err := grpcServer.Serve(lis); err != nil {
			log.Error("grpc server error", zap.Error(err))
		}
	}()

	// HTTP
	router := h.NewRouter(h.RouterConfig{
		Auth:           authService,
		Catalog:        products,
		Carts:          carts,
		Orders:         orders,
		Metrics:        m,
		Log:            log,
		RequestTimeout: cfg.RequestTimeout,
		Ping:           repo.Ping,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("http listening", zap.String("port", cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-serverErr:
		log.Error("http server error", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("http server forced to shutdown", zap.Error(err))
	}
	grpcServer.GracefulStop()
	bgCancel()

	doneChan := make(chan struct{})
	go func() {
		wg.Wait()
		close(doneChan)
	}()

	select {
	case <-doneChan:
		log.Info("background workers stopped cleanly")
	case <-ctx.Done():
		log.Warn("background workers didn't stop in time")
	}

	log.Info("storefront stopped")
	return nil
}
