package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/theceo1/trustbank-api/internal/auth"
	"github.com/theceo1/trustbank-api/internal/config"
	"github.com/theceo1/trustbank-api/internal/database"
	"github.com/theceo1/trustbank-api/internal/exchange"
	"github.com/theceo1/trustbank-api/internal/p2p"
	"github.com/theceo1/trustbank-api/internal/payments"
	"github.com/theceo1/trustbank-api/pkg/middleware"

	"github.com/gin-gonic/gin"
)

// init configures the application logging based on environment settings
// In development mode, it enables pretty printing with timestamps
// Debug logging can be enabled via DEBUG environment variable
func init() {
	// Configure pretty logging for development
	if os.Getenv("ENV") != "production" {
		output := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
		zlog.Logger = zerolog.New(output).With().Timestamp().Logger()
	}

	// Set global log level
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if os.Getenv("DEBUG") == "true" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

// main initializes and runs the P2P escrow API server with graceful
// shutdown support
func main() {
	cfg := config.Load()

	// Initialize database
	db, err := database.NewDatabase(cfg.DatabasePath)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize database")
	}

	// Initialize router
	router := gin.Default()

	// Exchange provider gateway: real client when configured, mock otherwise
	var gateway exchange.Gateway
	if cfg.ExchangeAPIURL != "" {
		gateway = exchange.NewClient(cfg.ExchangeAPIURL, cfg.ExchangeAPIKey)
	} else {
		zlog.Warn().Msg("EXCHANGE_API_URL not set, using mock exchange gateway")
		gateway = exchange.NewMock()
	}

	// Initialize services and handlers
	authService := auth.NewService(cfg.JWTSecret)
	authHandlers := auth.NewGinHandlers(authService)
	if cfg.Env != "production" {
		// Demo credentials for local runs and the simulation
		authService.RegisterAPICredentials("alice-api-key", "alice-api-secret", "usr_alice")
		authService.RegisterAPICredentials("bob-api-key", "bob-api-secret", "usr_bob")
		authService.RegisterAPICredentials("admin-api-key", "admin-api-secret", "usr_admin")
	}

	p2pService := p2p.NewService(db, gateway, cfg.EscrowWindow)
	p2pHandlers := p2p.NewGinHandlers(p2pService)

	paymentService := payments.NewService(db, gateway, cfg.WebhookSecrets)
	paymentHandlers := payments.NewGinHandlers(paymentService)

	// Create and start the escrow expiry sweeper
	sweeper := payments.NewSweeper(paymentService.GetDB(), 5*time.Minute)
	sweeperCtx, sweeperCancel := context.WithCancel(context.Background())
	defer sweeperCancel()

	go sweeper.Start(sweeperCtx)

	// Setup middleware
	router.Use(middleware.RateLimit())

	// Setup API routes
	setupRoutes(router, cfg.JWTSecret, authHandlers, p2pHandlers, paymentHandlers)

	// Create server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Graceful shutdown setup
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal().Err(err).Msg("listen")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info().Msg("Shutting down server...")

	// Give outstanding operations 5 seconds to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	zlog.Info().Msg("Server exiting")
}

// setupRoutes configures all API endpoints and their handlers
// It groups routes by functionality and applies appropriate middleware:
// - Auth routes: Public endpoints for authentication
// - P2P routes: Protected by JWT authentication
// - Webhook routes: Public, authenticated by per-provider HMAC signatures
// - Internal routes: Protected by internal network authentication
func setupRoutes(
	router *gin.Engine,
	jwtSecret string,
	authHandlers *auth.GinHandlers,
	p2pHandlers *p2p.GinHandlers,
	paymentHandlers *payments.GinHandlers,
) {
	v1 := router.Group("/api/v1")
	{
		// Auth routes
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/token", authHandlers.GenerateTokenHandler())
		}

		// P2P trade routes
		p2pGroup := v1.Group("/p2p")
		p2pGroup.Use(middleware.JWTAuth(jwtSecret))
		{
			p2pGroup.POST("/orders", p2pHandlers.CreateOrderHandler())
			p2pGroup.POST("/orders/:order_id/accept", p2pHandlers.AcceptOrderHandler())
			p2pGroup.GET("/trades/:trade_id", p2pHandlers.GetTradeHandler())
			p2pGroup.POST("/trades/:trade_id/confirm", p2pHandlers.ConfirmPaymentHandler())
			p2pGroup.POST("/trades/:trade_id/complete", p2pHandlers.CompleteTradeHandler())
			p2pGroup.POST("/trades/:trade_id/dispute", p2pHandlers.OpenDisputeHandler())
		}

		// Payment routes
		paymentsGroup := v1.Group("/payments")
		paymentsGroup.Use(middleware.JWTAuth(jwtSecret))
		{
			paymentsGroup.POST("/deposits", paymentHandlers.CreateDepositHandler())
			paymentsGroup.POST("/swaps", paymentHandlers.CreateSwapHandler())
			paymentsGroup.POST("/mark-paid", paymentHandlers.MarkPaidHandler())
		}

		// Webhook routes: signature-authenticated, always acknowledge 200
		v1.POST("/webhooks/:provider", paymentHandlers.WebhookHandler())

		// Internal routes (should be protected by internal network)
		internal := v1.Group("/internal")
		internal.Use(middleware.InternalAuth(jwtSecret))
		{
			internal.POST("/payments/manual-confirm", paymentHandlers.AdminManualConfirmHandler())
		}
	}
}
