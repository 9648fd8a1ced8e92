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

	"github.com/tradecore/exchange-api/internal/auth"
	"github.com/tradecore/exchange-api/internal/database"
	"github.com/tradecore/exchange-api/internal/ledger"
	"github.com/tradecore/exchange-api/internal/matching"
	"github.com/tradecore/exchange-api/internal/notify"
	"github.com/tradecore/exchange-api/internal/orderbook"
	"github.com/tradecore/exchange-api/internal/trading"
	"github.com/tradecore/exchange-api/pkg/middleware"

	"github.com/gin-gonic/gin"
)

// init configures the application logging based on environment settings
// In development mode, it enables pretty printing with timestamps
// Debug logging can be enabled via DEBUG environment variable
func init() {
	if os.Getenv("ENV") != "production" {
		output := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
		zlog.Logger = zerolog.New(output).With().Timestamp().Logger()
	}

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if os.Getenv("DEBUG") == "true" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

// main initializes and runs the exchange API server with graceful
// shutdown support.
func main() {
	dbPath := os.Getenv("DB_PATH")
	if dbPath == "" {
		dbPath = "exchange.db"
	}
	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		jwtSecret = "exchange-secret-key"
	}

	db, err := database.NewDatabase(dbPath)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize database")
	}

	router := gin.Default()

	// Initialize services and handlers
	ledgerService := ledger.NewService(db)

	authService := auth.NewService(db, jwtSecret)
	authHandlers := auth.NewGinHandlers(authService, ledgerService)

	hub := notify.NewHub()
	engine := matching.NewEngine(db, ledgerService, hub)

	bookService := orderbook.NewService(db)
	tradingService := trading.NewService(db, ledgerService, engine)
	tradingHandlers := trading.NewGinHandlers(tradingService, bookService)

	setupRoutes(router, authService, authHandlers, tradingHandlers, hub)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	// Graceful shutdown setup
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal().Err(err).Msg("listen")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info().Msg("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	zlog.Info().Msg("Server exiting")
}

// setupRoutes configures all API endpoints and their handlers:
// - Auth routes: public registration and login
// - Trading routes: protected by JWT authentication
// - Websocket route: match notifications for the authenticated user
func setupRoutes(
	router *gin.Engine,
	authService *auth.Service,
	authHandlers *auth.GinHandlers,
	tradingHandlers *trading.GinHandlers,
	hub *notify.Hub,
) {
	v1 := router.Group("/api/v1")
	{
		// Unauthenticated routes are throttled per IP; protected routes
		// run the limiter after auth so the bucket is keyed per user.
		authRoutes := v1.Group("/auth")
		authRoutes.Use(middleware.RateLimit())
		{
			authRoutes.POST("/register", authHandlers.RegisterHandler())
			authRoutes.POST("/login", authHandlers.LoginHandler())
		}

		protected := v1.Group("")
		protected.Use(middleware.JWTAuth(authService), middleware.RateLimit())
		{
			protected.POST("/auth/logout", authHandlers.LogoutHandler())
			protected.GET("/profile", authHandlers.ProfileHandler())

			protected.GET("/orders", tradingHandlers.OrderBookHandler())
			protected.GET("/orders/my", tradingHandlers.MyOrdersHandler())
			protected.POST("/orders", tradingHandlers.PlaceOrderHandler())
			protected.POST("/orders/:order_id/cancel", tradingHandlers.CancelOrderHandler())

			protected.GET("/trades", tradingHandlers.TradesHandler())
			protected.GET("/ws", hub.ServeWS())
		}
	}
}
