package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/redis/go-redis/v9"

	"locker-access-backend/config"
	"locker-access-backend/internal/api"
	"locker-access-backend/internal/coordinator"
	"locker-access-backend/internal/db"
	"locker-access-backend/internal/events"
	"locker-access-backend/internal/hardware"
	"locker-access-backend/internal/ledger"
	"locker-access-backend/internal/notification"
	"locker-access-backend/internal/permission"
	"locker-access-backend/internal/relock"
	"locker-access-backend/internal/status"
	"locker-access-backend/internal/token"
)

func main() {
	// Setup logger
	logger := log.New(os.Stdout, "lockerd ", log.LstdFlags)

	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml" // Default path for local development
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatalf("failed to load configuration from %s: %v", configPath, err)
	}
	logger.Printf("configuration loaded successfully from %s", configPath)

	// Check for VAPID keys
	if cfg.Push.PublicKey == "" || cfg.Push.PrivateKey == "" {
		logger.Fatalf("VAPID keys must be configured. Please generate them and add them to your config file.")
	}

	webpushOptions := webpush.Options{
		VAPIDPublicKey:  cfg.Push.PublicKey,
		VAPIDPrivateKey: cfg.Push.PrivateKey,
		Subscriber:      cfg.Push.Subject,
		TTL:             cfg.Push.TTL,
	}

	// Initialize database
	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		logger.Fatalf("failed to initialize database: %v", err)
	}
	logger.Println("database initialized successfully")

	// Token store and status cache: Redis when configured, in-process
	// backends otherwise. The in-process backends are single-instance only.
	var (
		tokens      token.Store
		statusCache status.Cache
	)
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, pingCancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := client.Ping(pingCtx).Err(); err != nil {
			pingCancel()
			logger.Fatalf("failed to connect to redis at %s: %v", cfg.Redis.Addr, err)
		}
		pingCancel()
		tokens = token.NewRedis(client)
		statusCache = status.NewRedis(client, cfg.Access.OnlineThreshold*10)
		logger.Printf("using redis backends at %s", cfg.Redis.Addr)
	} else {
		tokens = token.NewInMemory()
		statusCache = status.NewLocal(cfg.Access.OnlineThreshold * 10)
		logger.Println("redis not configured, using in-process backends")
	}

	// Event bus; the in-process bus always runs, NATS mirrors events out
	// when configured.
	bus := events.NewBus()
	var publisher events.Publisher = bus
	if cfg.Events.Backend == "nats" {
		np, err := events.Connect(cfg.Events.NatsURL, cfg.Events.Subject)
		if err != nil {
			logger.Fatalf("failed to connect to nats at %s: %v", cfg.Events.NatsURL, err)
		}
		defer np.Close()
		publisher = events.Multi{bus, np}
		logger.Printf("publishing events to nats subject %s", cfg.Events.Subject)
	}

	dispatcher := hardware.NewHTTPDispatcher(cfg.Hardware.BaseURL, cfg.Hardware.Timeout, cfg.Hardware.Headers)
	txLedger := ledger.NewGormLedger(gormDB)

	scheduler := relock.NewTimerScheduler(dispatcher, statusCache, txLedger, publisher, logger)
	defer scheduler.Stop()

	coord := coordinator.New(
		coordinator.NewGormDirectory(gormDB),
		tokens,
		permission.NewGormResolver(gormDB),
		statusCache,
		dispatcher,
		txLedger,
		publisher,
		scheduler,
		coordinator.Policy{
			MinDuration:      cfg.Access.MinDurationSeconds,
			DefaultDuration:  cfg.Access.DefaultDurationSeconds,
			MaxDuration:      cfg.Access.MaxDurationSeconds,
			MaxAdminDuration: cfg.Access.MaxAdminDurationSeconds,
			TokenTTL:         cfg.Access.TokenTTL,
			RelockMargin:     cfg.Access.RelockMargin,
		},
		logger,
	)

	// Create a context that can be cancelled
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start the notification worker pool in the background
	pool := notification.NewWorkerPool(cfg.WorkerPool.Size, bus, gormDB, &webpushOptions)
	pool.Start(ctx)
	logger.Printf("notification worker pool started with %d workers", cfg.WorkerPool.Size)

	// Initialize router
	handler := api.NewHandler(coord, gormDB, statusCache, txLedger, &webpushOptions, cfg.Access.OnlineThreshold)
	router := api.NewRouter(handler, api.RouterConfig{
		RateLimitPerSec: cfg.Server.RateLimitPerSec,
		RateLimitBurst:  cfg.Server.RateLimitBurst,
		CacheTTL:        time.Duration(cfg.Server.CacheTTLSeconds) * time.Second,
	})
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Start the server in a goroutine
	go func() {
		logger.Printf("HTTP server starting on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("HTTP server ListenAndServe: %v", err)
		}
	}()

	// Setup signal handling for graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	// Block until a signal is received.
	<-stop
	logger.Println("Shutdown signal received, stopping services...")

	// Create a deadline to wait for.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatalf("HTTP server Shutdown: %v", err)
	}

	logger.Println("Server gracefully stopped")
}
