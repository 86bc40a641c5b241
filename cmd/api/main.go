package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/splitzy/expense-service/internal/infra/postgres"
	infraRedis "github.com/splitzy/expense-service/internal/infra/redis"
	"github.com/splitzy/expense-service/internal/ledger"
	"github.com/splitzy/expense-service/internal/platform/user"
	"github.com/splitzy/expense-service/internal/transport/httpapi"
	"github.com/splitzy/expense-service/internal/transport/httpapi/handler"
	"github.com/splitzy/expense-service/internal/transport/httpapi/middleware"
	"github.com/splitzy/expense-service/pkg/config"
	"github.com/splitzy/expense-service/pkg/logger"
)

func main() {
	// Create context that listens for termination signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.NewDefault(cfg.Env)
	log.Info("Starting Splitzy expense service",
		"env", cfg.Env,
		"port", cfg.Port,
		"default_currency", cfg.DefaultCurrency,
	)

	// Initialize database connection pool
	db, err := postgres.NewPool(ctx, postgres.Config{URL: cfg.DatabaseURL})
	if err != nil {
		log.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	log.Info("Database connection established")

	// Initialize Redis client for balance caching
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisURL,
		Password: cfg.RedisPassword,
		DB:       0,
	})
	defer redisClient.Close()

	// The balance cache is optional: the service degrades to direct reads
	// when Redis is unavailable.
	var balanceCache ledger.BalanceCache
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Warn("Redis unavailable, balance caching disabled", "error", err)
	} else {
		balanceCache = infraRedis.NewBalanceCache(redisClient, log)
		log.Info("Redis connection established")
	}

	// Initialize repositories
	userRepo := postgres.NewUserRepository(db.Pool)
	ledgerRepo := postgres.NewLedgerRepository(db.Pool)

	// Initialize services
	userSvc := user.NewService(userRepo, log)
	jwtSvc := middleware.NewJWTService(cfg.JWTSecret)
	ledgerSvc := ledger.NewService(ledgerRepo, balanceCache, log, cfg.DefaultCurrency)

	// Initialize HTTP handlers
	authHandler := handler.NewAuthHandler(userSvc, jwtSvc)
	expenseHandler := handler.NewExpenseHandler(ledgerSvc)
	settlementHandler := handler.NewSettlementHandler(ledgerSvc)
	balanceHandler := handler.NewBalanceHandler(ledgerSvc)
	healthHandler := handler.NewHealthHandler(db)

	// Determine allowed origins for CORS
	allowedOrigins := []string{"http://localhost:5173", "http://localhost:3000"}
	if cfg.IsProduction() {
		if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
			allowedOrigins = []string{origins}
		}
	}

	// Create HTTP router
	r := httpapi.NewRouter(httpapi.Config{
		Logger:            log,
		AllowedOrigins:    allowedOrigins,
		RateLimitRPS:      cfg.RateLimitRPS,
		AuthHandler:       authHandler,
		ExpenseHandler:    expenseHandler,
		SettlementHandler: settlementHandler,
		BalanceHandler:    balanceHandler,
		HealthHandler:     healthHandler,
		JWTMiddleware:     middleware.JWTMiddleware(jwtSvc),
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for termination signal
	<-ctx.Done()
	log.Info("Shutdown signal received")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown failed", "error", err)
		os.Exit(1)
	}

	log.Info("Server stopped gracefully")
}
