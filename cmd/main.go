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

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"partner-service/internal/cache"
	"partner-service/internal/config"
	"partner-service/internal/events"
	"partner-service/internal/handlers"
	"partner-service/internal/middleware"
	"partner-service/internal/migration"
	"partner-service/internal/repository"
	"partner-service/internal/scheduler"
	"partner-service/internal/services"
)

func main() {
	// Load .env file if present (local development)
	_ = godotenv.Load()

	// Load configuration
	cfg := config.LoadConfig()

	// Initialize logrus logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	if cfg.Server.Mode == "release" {
		logger.SetLevel(logrus.InfoLevel)
	} else {
		logger.SetLevel(logrus.DebugLevel)
	}

	// Initialize database
	db, err := initDatabase(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	// Run database migrations
	if err := migration.Run(db); err != nil {
		log.Fatalf("Failed to run database migrations: %v", err)
	}

	// Initialize Redis
	redisClient := initRedis(cfg)
	if redisClient != nil {
		defer redisClient.Close()
	}

	// Initialize NATS event publisher for audit events
	var natsClient *events.Client
	var eventsPublisher *events.Publisher
	if cfg.NATS.URL != "" {
		natsClient, err = events.NewClient(events.DefaultConfig(cfg.NATS.URL), logger)
		if err != nil {
			logger.WithError(err).Warn("Failed to connect to NATS, continuing without event publishing")
		} else {
			eventsPublisher = events.NewPublisher(natsClient, logger)
			log.Println("✅ Events publisher initialized (NATS connected)")
		}
	} else {
		log.Println("⚠️  NATS_URL not set, event publishing disabled")
	}
	defer func() {
		if natsClient != nil {
			natsClient.Close()
		}
	}()

	// Initialize repositories
	codeRepo := repository.NewCodeRepository(db)
	accountRepo := repository.NewAccountRepository(db)
	registrationRepo := repository.NewRegistrationRepository(db, codeRepo)

	// Initialize services
	statsCache := cache.NewNetworkCache(redisClient, logger, 60*time.Second)
	codeService := services.NewCodeService(codeRepo, eventsPublisher, logger, cfg.Codes.Prefix, cfg.Codes.SuffixLength)
	referralService := services.NewReferralService(accountRepo, codeRepo, statsCache, logger)
	economicsService := services.NewEconomicsService(accountRepo, referralService, logger)
	registrationService := services.NewRegistrationService(codeService, registrationRepo, accountRepo, referralService, eventsPublisher, logger)

	// Initialize handlers
	registrationHandlers := handlers.NewRegistrationHandlers(registrationService, codeService, db, logger)
	codeHandlers := handlers.NewCodeHandlers(codeService, accountRepo, cfg.Codes.MaxBulkIssue, logger)
	accountHandlers := handlers.NewAccountHandlers(accountRepo, referralService, logger)
	networkHandlers := handlers.NewNetworkHandlers(referralService, economicsService, logger)

	// Initialize middleware
	authMiddleware := middleware.NewAuthMiddleware(cfg.JWT.Secret, cfg.JWT.Issuer)
	rateLimiter := middleware.NewRateLimiter(redisClient, logger)

	registerWindow := time.Duration(cfg.Limits.RegisterWindowMinutes) * time.Minute
	validateWindow := time.Duration(cfg.Limits.ValidateWindowMinutes) * time.Minute

	// Start expiry sweeper
	sweeper := scheduler.NewExpirySweeper(codeService, cfg.Codes.SweepSchedule, logger)
	if err := sweeper.Start(); err != nil {
		log.Fatalf("Failed to start expiry sweeper: %v", err)
	}
	defer sweeper.Stop()

	// Setup Gin router
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Global middleware
	router.Use(middleware.Logger())
	router.Use(middleware.SetupCORS())
	router.Use(middleware.Recovery(logger))

	// Health check endpoints
	router.GET("/health", registrationHandlers.Health)
	router.GET("/ready", registrationHandlers.Ready)

	// API routes
	api := router.Group("/api/v1")
	{
		// Public routes with rate limiting
		auth := api.Group("/auth")
		{
			auth.POST("/register",
				rateLimiter.Limit("register", cfg.Limits.RegisterAttempts, registerWindow),
				registrationHandlers.Register,
			)
		}

		codes := api.Group("/codes")
		{
			codes.GET("/validate",
				rateLimiter.Limit("validate", cfg.Limits.ValidateAttempts, validateWindow),
				registrationHandlers.ValidateCode,
			)
		}

		// Routes for any authenticated account
		account := api.Group("/account")
		account.Use(authMiddleware.AuthRequired())
		{
			account.POST("/codes/redeem", codeHandlers.RedeemCode)
		}

		// Partner routes
		partner := api.Group("/partner")
		partner.Use(authMiddleware.PartnerOrAdmin())
		{
			partner.POST("/codes", codeHandlers.CreatePartnerCode)
			partner.GET("/codes", codeHandlers.ListOwnCodes)
			partner.DELETE("/codes/:code", codeHandlers.DeactivateOwnCode)

			network := partner.Group("/network")
			{
				network.GET("/referrals", networkHandlers.Children)
				network.GET("/downline", networkHandlers.Subtree)
				network.GET("/ancestors", networkHandlers.Ancestors)
				network.GET("/stats", networkHandlers.Stats)
				network.GET("/profit", networkHandlers.Profit)
				network.GET("/revenue", networkHandlers.Revenue)
				network.GET("/conversion", networkHandlers.ConversionRate)
			}
		}

		// Admin routes
		admin := api.Group("/admin")
		admin.Use(authMiddleware.AdminOnly())
		{
			adminCodes := admin.Group("/codes")
			{
				adminCodes.POST("", codeHandlers.CreateCode)
				adminCodes.POST("/bulk", codeHandlers.BulkCreateCodes)
				adminCodes.GET("", codeHandlers.ListCodes)
				adminCodes.GET("/:code", codeHandlers.GetCode)
				adminCodes.DELETE("/:code", codeHandlers.DeactivateCode)
			}

			adminAccounts := admin.Group("/accounts")
			{
				adminAccounts.GET("", accountHandlers.ListAccounts)
				adminAccounts.POST("", accountHandlers.CreateAccount)
				adminAccounts.PATCH("/:id/status", accountHandlers.UpdateStatus)
				adminAccounts.PUT("/:id/totals", accountHandlers.UpdateTotals)
			}

			adminNetwork := admin.Group("/network")
			{
				adminNetwork.GET("/roots", networkHandlers.Roots)
				adminNetwork.GET("/top-performers", networkHandlers.TopPerformers)
				adminNetwork.GET("/:id/referrals", networkHandlers.Children)
				adminNetwork.GET("/:id/downline", networkHandlers.Subtree)
				adminNetwork.GET("/:id/ancestors", networkHandlers.Ancestors)
				adminNetwork.GET("/:id/stats", networkHandlers.Stats)
				adminNetwork.GET("/:id/profit", networkHandlers.Profit)
				adminNetwork.GET("/:id/revenue", networkHandlers.Revenue)
				adminNetwork.GET("/:id/conversion", networkHandlers.ConversionRate)
			}
		}
	}

	// Start server
	serverAddr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	log.Printf("🚀 Partner service starting on %s", serverAddr)
	log.Printf("📊 Environment: %s", cfg.Server.Mode)
	log.Printf("🗄️  Database: %s@%s:%s", cfg.Database.User, cfg.Database.Host, cfg.Database.Port)

	server := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("🔄 Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}
	log.Println("✅ Server exited")
}

// initDatabase initializes the PostgreSQL database connection
func initDatabase(cfg *config.Config) (*sql.DB, error) {
	connStr := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Name,
		cfg.Database.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Println("✅ Database connected successfully")
	return db, nil
}

// initRedis initializes the Redis client
func initRedis(cfg *config.Config) *redis.Client {
	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Redis.Host, cfg.Redis.Port),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx := context.Background()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Printf("⚠️  Redis connection failed: %v", err)
		log.Println("🔄 Continuing without Redis (rate limits and caches fall back to memory)")
		return nil
	}

	log.Println("✅ Redis connected successfully")
	return rdb
}
