package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"advert-service/internal/config"
	"advert-service/internal/delivery/router"
	"advert-service/internal/infrastructure/cache"
	"advert-service/internal/infrastructure/metrics"
	"advert-service/internal/repository"
	"advert-service/internal/service"
	"advert-service/pkg/database"
	"advert-service/pkg/logger"
	"advert-service/pkg/utils"

	redisClient "github.com/go-redis/redis/v8"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

const startupTimeout = 30 * time.Second

func main() {
	cfg := config.MustLoadConfig()

	loggers, err := logger.SetupLogger(cfg.Logger.Level)
	if err != nil {
		log.Fatalf("Failed to set up logger: %v", err)
	}
	loggers.InfoLogger.Info("Logger initialized")

	registry := metrics.NewRegistry()
	handlerMetrics := metrics.NewHandlerMetrics(registry)
	serviceMetrics := metrics.NewServiceMetrics(registry)
	repositoryMetrics := metrics.NewRepositoryMetrics(registry)
	loggers.InfoLogger.Info("Prometheus metrics initialized")

	tracerProvider := setupTracer(cfg, loggers)
	if tracerProvider != nil {
		defer shutdownTracer(tracerProvider, loggers)
	}

	db := setupDatabase(cfg, loggers)
	store := repository.NewPostgresStore(db, repositoryMetrics)
	defer disposeStore(store, loggers)

	initSchema(store, loggers)

	advertCache, cleanupRedis := setupRedis(cfg, loggers)
	defer cleanupRedis()

	advertService := service.NewAdvertService(advertCache, cfg.Redis.TTL, serviceMetrics)
	loggers.InfoLogger.Info("Service and repository layers initialized")

	r := router.NewRouter(advertService, store, loggers, handlerMetrics, router.Options{
		CORSAllowedOrigins: cfg.HTTP.CORSAllowedOrigins,
		RateLimitRPS:       cfg.HTTP.RateLimitRPS,
		RateLimitBurst:     cfg.HTTP.RateLimitBurst,
		RequestTimeout:     cfg.HTTP.RequestTimeout,
		Gatherer:           registry,
	})
	loggers.InfoLogger.Info("Router and routes initialized")

	server := startServer(cfg, r, loggers)

	waitForShutdown(cfg, server, loggers)
}

func setupDatabase(cfg *config.Config, loggers *logger.Loggers) *sql.DB {
	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()

	db, err := database.NewDatabase(ctx, cfg.Database.DSN(), database.Options{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnectAttempts: cfg.Database.ConnectAttempts,
		ConnectInterval: cfg.Database.ConnectInterval,
	})
	if err != nil {
		loggers.ErrorLogger.Error("Failed to connect to database", utils.Err(err),
			"host", cfg.Database.Host, "port", cfg.Database.Port, "name", cfg.Database.Name)
		os.Exit(1)
	}
	loggers.InfoLogger.Info("Connected to database", "host", cfg.Database.Host, "name", cfg.Database.Name)

	return db
}

func initSchema(store repository.Store, loggers *logger.Loggers) {
	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()

	if err := store.InitSchema(ctx); err != nil {
		loggers.ErrorLogger.Error("Failed to initialize schema", utils.Err(err))
		store.Close()
		os.Exit(1)
	}
	loggers.InfoLogger.Info("Database schema ready")
}

func disposeStore(store repository.Store, loggers *logger.Loggers) {
	if err := store.Close(); err != nil {
		loggers.ErrorLogger.Error("Failed to close database connection", utils.Err(err))
		return
	}
	loggers.InfoLogger.Info("Database connection pool closed")
}

func setupRedis(cfg *config.Config, loggers *logger.Loggers) (cache.Cache, func()) {
	if !cfg.Redis.Enabled {
		loggers.InfoLogger.Info("Redis cache disabled")
		return cache.NoopCache{}, func() {}
	}

	rdb := redisClient.NewClient(&redisClient.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	if _, err := rdb.Ping(context.Background()).Result(); err != nil {
		loggers.ErrorLogger.Error("Failed to connect to Redis", utils.Err(err))
		os.Exit(1)
	}
	loggers.InfoLogger.Info("Connected to Redis", "addr", cfg.Redis.Addr)

	cleanup := func() {
		if err := rdb.Close(); err != nil {
			loggers.ErrorLogger.Error("Failed to close Redis client", utils.Err(err))
		}
	}

	return cache.NewRedisCache(rdb), cleanup
}

func setupTracer(cfg *config.Config, loggers *logger.Loggers) *sdktrace.TracerProvider {
	if !cfg.Tracing.Enabled {
		loggers.InfoLogger.Info("Tracing disabled")
		return nil
	}

	tracerProvider, err := metrics.InitTracer(
		context.Background(),
		cfg.Tracing.ServiceName,
		cfg.Tracing.Environment,
		cfg.Tracing.Version,
		cfg.Tracing.Endpoint,
	)
	if err != nil {
		loggers.ErrorLogger.Error("Failed to initialize tracer", utils.Err(err))
		os.Exit(1)
	}
	loggers.InfoLogger.Info("OpenTelemetry Tracer initialized")
	return tracerProvider
}

func shutdownTracer(tp *sdktrace.TracerProvider, loggers *logger.Loggers) {
	if err := tp.Shutdown(context.Background()); err != nil {
		loggers.ErrorLogger.Error("Failed to shut down tracer provider", utils.Err(err))
	}
}

func startServer(cfg *config.Config, handler http.Handler, loggers *logger.Loggers) *http.Server {
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.Timeout,
		WriteTimeout: cfg.HTTP.Timeout,
	}

	go func() {
		loggers.InfoLogger.Info("Starting server", "port", cfg.HTTP.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			loggers.ErrorLogger.Error("Failed to start server", utils.Err(err))
			os.Exit(1)
		}
	}()

	return server
}

func waitForShutdown(cfg *config.Config, server *http.Server, loggers *logger.Loggers) {
	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, os.Interrupt, syscall.SIGTERM)

	<-shutdownCh
	loggers.InfoLogger.Info("Shutdown signal received, shutting down gracefully")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		loggers.ErrorLogger.Error("Server forced to shutdown", utils.Err(err))
	} else {
		loggers.InfoLogger.Info("Server shutdown gracefully")
	}
}
