package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/splitzy/expense-service/internal/transport/httpapi/handler"
	"github.com/splitzy/expense-service/internal/transport/httpapi/middleware"
	"github.com/splitzy/expense-service/pkg/logger"
)

// Config holds router configuration
type Config struct {
	Logger            *logger.Logger
	AllowedOrigins    []string
	RateLimitRPS      int
	AuthHandler       *handler.AuthHandler
	ExpenseHandler    *handler.ExpenseHandler
	SettlementHandler *handler.SettlementHandler
	BalanceHandler    *handler.BalanceHandler
	HealthHandler     *handler.HealthHandler
	JWTMiddleware     func(http.Handler) http.Handler
}

// NewRouter creates a new HTTP router
func NewRouter(cfg Config) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Metrics)
	r.Use(middleware.CORS(cfg.AllowedOrigins))
	r.Use(chimiddleware.Compress(5))
	if cfg.RateLimitRPS > 0 {
		r.Use(middleware.RateLimit(cfg.RateLimitRPS))
	}

	// Health check endpoints (no authentication required)
	r.Get("/health", handler.GetHealth)
	r.Get("/health/live", handler.GetLiveness)
	if cfg.HealthHandler != nil {
		r.Get("/health/ready", cfg.HealthHandler.GetReadiness)
		r.Get("/health/detailed", cfg.HealthHandler.GetHealthDetailed)
	}

	r.Handle("/metrics", promhttp.Handler())

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		// Auth routes (public - no authentication required)
		if cfg.AuthHandler != nil {
			r.Post("/auth/register", cfg.AuthHandler.Register)
			r.Post("/auth/login", cfg.AuthHandler.Login)
		}

		// Protected routes (require JWT authentication)
		if cfg.JWTMiddleware != nil {
			r.Group(func(r chi.Router) {
				r.Use(cfg.JWTMiddleware)

				if cfg.ExpenseHandler != nil {
					r.Post("/expenses", cfg.ExpenseHandler.CreateExpense)
					r.Get("/expenses/{id}", cfg.ExpenseHandler.GetExpense)
					r.Put("/expenses/{id}", cfg.ExpenseHandler.UpdateExpense)
					r.Delete("/expenses/{id}", cfg.ExpenseHandler.CancelExpense)
				}

				if cfg.SettlementHandler != nil {
					r.Post("/splits/{id}/settle", cfg.SettlementHandler.SettleSplit)
				}

				if cfg.BalanceHandler != nil {
					r.Get("/balances", cfg.BalanceHandler.ListBalances)
					r.Get("/balances/{userID}", cfg.BalanceHandler.GetBalance)
					r.Post("/balances/{userID}/settle", cfg.BalanceHandler.SettleBalance)
				}
			})
		}
	})

	return r
}
