package handler

import (
	"wallet-ledger/internal/adapter/http/middleware"
	redisStore "wallet-ledger/internal/adapter/storage/redis"
	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"
	"wallet-ledger/pkg/metrics"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	AuthSvc        ports.AuthService
	DepositSvc     ports.DepositService
	TransferSvc    ports.TransferService
	ReadSvc        ports.WalletReadService
	KeySvc         ports.APIKeyService
	TokenSvc       ports.TokenService
	RateLimitStore *redisStore.RateLimitStore // nil = rate limiting disabled
	HealthCheckers []ports.HealthChecker
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(metrics.Middleware())
	r.Use(middleware.MaxBodySize(1 << 20)) // 1 MB request body limit

	// Health check (deep — verifies PostgreSQL + Redis)
	r.GET("/health", HealthCheck(deps.HealthCheckers...))
	r.GET("/metrics", metrics.Handler())

	// Rate limit rules
	rules := middleware.DefaultRateLimitRules()

	// Helper: return rate limiter middleware if store is available, else noop.
	rl := func(group string) gin.HandlerFunc {
		if deps.RateLimitStore == nil {
			return func(c *gin.Context) { c.Next() }
		}
		rule, ok := rules[group]
		if !ok {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimiter(deps.RateLimitStore, group, rule, deps.Logger)
	}

	// API v1 routes
	v1 := r.Group("/api/v1")

	// --- Public routes (no auth) ---
	authHandler := NewAuthHandler(deps.AuthSvc)
	auth := v1.Group("/auth")
	{
		auth.POST("/register", rl("auth_register"), authHandler.Register)
		auth.POST("/login", rl("auth_login"), authHandler.Login)
	}

	walletHandler := NewWalletHandler(deps.DepositSvc, deps.TransferSvc, deps.ReadSvc, deps.Logger)

	// Provider callback: authenticated by HMAC signature, not by caller identity.
	v1.POST("/wallet/paystack/webhook", rl("webhooks"), walletHandler.Webhook)

	// --- Authenticated routes (bearer token or API key) ---
	authn := middleware.Authenticate(deps.TokenSvc, deps.KeySvc, deps.Logger)
	wallet := v1.Group("/wallet", authn)
	{
		wallet.GET("/balance", rl("reads"),
			middleware.RequirePermission(domain.PermissionRead), walletHandler.GetBalance)
		wallet.GET("/transactions", rl("reads"),
			middleware.RequirePermission(domain.PermissionRead), walletHandler.ListTransactions)
		wallet.GET("/transactions/:reference", rl("reads"),
			middleware.RequirePermission(domain.PermissionRead), walletHandler.GetTransaction)
		wallet.GET("/stats", rl("reads"),
			middleware.RequirePermission(domain.PermissionRead), walletHandler.GetStats)
		wallet.POST("/transfer", rl("transfers"),
			middleware.RequirePermission(domain.PermissionTransfer), walletHandler.Transfer)
		wallet.POST("/deposit", rl("deposits"),
			middleware.RequirePermission(domain.PermissionDeposit), walletHandler.InitiateDeposit)
		wallet.GET("/deposit/:reference/status", rl("reads"),
			middleware.RequirePermission(domain.PermissionRead), walletHandler.DepositStatus)
	}

	// --- Key management (bearer token only) ---
	bearerOnly := middleware.RequireBearer()
	keyHandler := NewKeyHandler(deps.KeySvc)
	keys := v1.Group("/keys", authn, bearerOnly)
	{
		keys.POST("/create", rl("keys"), keyHandler.Issue)
		keys.GET("", rl("keys"), keyHandler.List)
		keys.POST("/rollover", rl("keys"), keyHandler.Rollover)
		keys.PATCH("/:id", rl("keys"), keyHandler.Rename)
		keys.POST("/:id/revoke", rl("keys"), keyHandler.Revoke)
	}

	return r
}
