// Package main provides the main entry point for the customer identity service
package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brainchat/customer-service/app/handlers"
	"github.com/brainchat/customer-service/app/middleware"
	"github.com/brainchat/customer-service/app/router"
	"github.com/brainchat/customer-service/app/services"
	businessflow "github.com/brainchat/customer-service/business_flow"
	"github.com/brainchat/customer-service/config"
	"github.com/brainchat/customer-service/models"
	"github.com/brainchat/customer-service/repository"
	"github.com/brainchat/customer-service/rpc"
	"github.com/gofiber/fiber/v3"
	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"
	"gopkg.in/natefinch/lumberjack.v2"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Application represents the main application structure
type Application struct {
	router     *router.FiberRouter
	config     *config.ProductionConfig
	server     *fiber.App
	grpcServer *grpc.Server
	stopFuncs  []func()
}

func main() {
	log.Println("Starting customer identity service...")

	// Load production configuration
	cfg, err := config.LoadProductionConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	setupLogging(cfg.Logging)

	// Initialize application
	app, err := initializeApplication(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	// Setup routes
	app.router.SetupRoutes()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start HTTP server in goroutine
	go func() {
		address := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		log.Printf("HTTP server starting on %s", address)

		if err := app.server.Listen(address); err != nil {
			log.Fatalf("Failed to start HTTP server: %v", err)
		}
	}()

	// Start internal gRPC server in goroutine
	go func() {
		address := fmt.Sprintf("%s:%d", cfg.GRPC.Host, cfg.GRPC.Port)
		lis, err := net.Listen("tcp", address)
		if err != nil {
			log.Fatalf("Failed to listen on %s: %v", address, err)
		}
		log.Printf("gRPC server starting on %s", address)

		if err := app.grpcServer.Serve(lis); err != nil {
			log.Fatalf("Failed to start gRPC server: %v", err)
		}
	}()

	// Wait for shutdown signal
	<-sigChan
	log.Println("Shutting down gracefully...")

	// Stop background workers
	for _, fn := range app.stopFuncs {
		fn()
	}

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	app.grpcServer.GracefulStop()

	if err := app.server.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}

	log.Println("Server stopped")
}

// setupLogging routes the standard logger to a rotating file when configured
func setupLogging(cfg config.LoggingConfig) {
	if cfg.Output != "file" {
		return
	}
	log.SetOutput(&lumberjack.Logger{
		Filename:   cfg.FilePath,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
	})
}

// initializeDatabase initializes the database connection with connection pooling
func initializeDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode)

	// TranslateError surfaces unique violations as gorm.ErrDuplicatedKey,
	// which the repository maps onto ErrDuplicateKey for the upsert retry.
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Get underlying sql.DB for connection pooling configuration
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	// Configure connection pooling
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	// Test the connection
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := db.AutoMigrate(&models.Customer{}); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	log.Printf("Database connection established with %d max open connections, %d max idle connections",
		cfg.MaxOpenConns, cfg.MaxIdleConns)

	return db, nil
}

// initializeCache initializes the Redis client and verifies connectivity
func initializeCache(cfg config.CacheConfig) (*redis.Client, error) {
	if !cfg.Enabled || cfg.Provider != "redis" {
		return nil, fmt.Errorf("redis cache is required: profile fetches shield the Graph API through it")
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	// Override DB if provided in config
	opt.DB = cfg.RedisDB

	rc := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rc.Ping(ctx).Err(); err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Printf("Redis connection established (db=%d)", cfg.RedisDB)
	return rc, nil
}

// startCacheHealthMonitor starts a background goroutine that periodically pings Redis
// to detect connectivity issues. The returned cancel function stops the monitor.
func startCacheHealthMonitor(parent context.Context, client *redis.Client, interval time.Duration) func() {
	monitorCtx, cancel := context.WithCancel(parent)
	if interval <= 0 {
		interval = 30 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-monitorCtx.Done():
				return
			case <-ticker.C:
				ctx, c := context.WithTimeout(context.Background(), 3*time.Second)
				if err := client.Ping(ctx).Err(); err != nil {
					log.Printf("Redis healthcheck failed: %v", err)
				}
				c()
			}
		}
	}()
	return cancel
}

// initializeApplication initializes the main application components
func initializeApplication(cfg *config.ProductionConfig) (*Application, error) {
	var stopFuncs []func()

	// Initialize database
	db, err := initializeDatabase(cfg.Database)
	if err != nil {
		return nil, err
	}

	rc, err := initializeCache(cfg.Cache)
	if err != nil {
		return nil, err
	}

	cancel := startCacheHealthMonitor(context.Background(), rc, 30*time.Second)
	stopFuncs = append(stopFuncs, cancel)

	// Initialize repositories
	customerRepo := repository.NewCustomerRepository(db)

	// Initialize services
	profileCache := services.NewRedisProfileCache(rc, cfg.Cache.RedisPrefix, cfg.Cache.ProfileTTL, cfg.Cache.StaleWindow)
	graphClient := services.NewGraphAPIClient(cfg.Meta.BaseURL, cfg.Meta.Version, cfg.Meta.Timeout)
	tokenService := services.NewJWKSTokenService(cfg.JWT.JWKSURL, cfg.JWT.Issuer, cfg.JWT.Audience, rc, cfg.Cache.RedisPrefix, cfg.JWT.JWKSCacheTTL)

	log.Printf("Token verification configured with issuer: %s, audience: %s", cfg.JWT.Issuer, cfg.JWT.Audience)

	// Initialize flows
	customerFlow := businessflow.NewCustomerFlow(customerRepo, db)
	profileFlow := businessflow.NewProfileFlow(customerRepo, customerFlow, profileCache, graphClient, &cfg.Cache)

	// Initialize handlers
	customerHandler := handlers.NewCustomerHandler(customerFlow, profileFlow)

	// Initialize auth middleware
	authMiddleware := middleware.NewAuthMiddleware(tokenService)

	// Initialize router
	appRouter := router.NewFiberRouter(cfg, customerHandler, authMiddleware)

	// Initialize internal gRPC transport
	rpcServer := rpc.NewServer(cfg.GRPC.InternalToken, rpc.NewCustomerServiceServer(customerFlow, profileFlow),
		grpc.MaxRecvMsgSize(cfg.GRPC.MaxRecvMsgSize),
		grpc.ConnectionTimeout(cfg.GRPC.ConnectionTimeout),
	)

	// Create application struct from FiberRouter
	fiberRouter := appRouter.(*router.FiberRouter)
	application := &Application{
		router:     fiberRouter,
		config:     cfg,
		server:     fiberRouter.GetApp(),
		grpcServer: rpcServer,
		stopFuncs:  stopFuncs,
	}

	return application, nil
}
