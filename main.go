package main

import (
	"context"
	"fmt"
	"log"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"equity-trading-bot/config"
	"equity-trading-bot/internal/broker"
	"equity-trading-bot/internal/cache"
	"equity-trading-bot/internal/circuit"
	"equity-trading-bot/internal/database"
	"equity-trading-bot/internal/events"
	"equity-trading-bot/internal/fetcher"
	"equity-trading-bot/internal/logging"
	"equity-trading-bot/internal/market"
	"equity-trading-bot/internal/notification"
	"equity-trading-bot/internal/pipeline"
	"equity-trading-bot/internal/risk"
	"equity-trading-bot/internal/scanner"
	"equity-trading-bot/internal/scheduler"
	"equity-trading-bot/internal/signal"
	"equity-trading-bot/internal/strategy"
)

func main() {
	// Load .env if present, then the layered configuration
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logging.New(&logging.Config{
		Level:      cfg.Logging.Level,
		Output:     cfg.Logging.Output,
		JSONFormat: cfg.Logging.JSONFormat,
		Component:  "main",
	})
	logging.SetDefault(logger)

	clock, err := market.NewMarketClock(cfg.Market.Timezone, cfg.Market.SessionOpen, cfg.Market.SessionClose)
	if err != nil {
		logger.Fatal("Failed to initialize market clock", "error", err)
	}
	logger.Info("Market clock initialized",
		"timezone", cfg.Market.Timezone,
		"session", fmt.Sprintf("%s-%s", cfg.Market.SessionOpen, cfg.Market.SessionClose))

	eventBus := events.NewBus()

	// Notification manager with the configured providers
	notifyManager := notification.NewManager(logger)
	if cfg.Notification.Enabled {
		notifyManager.AddProvider(notification.NewTelegramNotifier(cfg.Notification.Telegram))
		notifyManager.AddProvider(notification.NewDiscordNotifier(cfg.Notification.Discord))
	}

	// Signal store: Postgres when enabled, in-memory otherwise
	var store signal.Store
	if cfg.Database.Enabled {
		db, err := database.NewDB(cfg.Database.Config, logger)
		if err != nil {
			logger.Fatal("Failed to connect to database", "error", err)
		}
		defer db.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := db.RunMigrations(ctx); err != nil {
			cancel()
			logger.Fatal("Failed to run migrations", "error", err)
		}
		cancel()
		store = database.NewSignalRepository(db)
		logger.Info("Database signal store initialized", "host", cfg.Database.Host)
	} else {
		store = database.NewMemoryStore()
		logger.Info("In-memory signal store initialized")
	}

	// Optional Redis fast path for duplicate suppression
	var tracker pipeline.Tracker
	if cfg.Redis.Enabled {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warn("Redis unreachable, dedup falls back to the store", "error", err)
		} else {
			tracker = database.NewRedisSignalTracker(redisClient, logger)
			logger.Info("Redis signal tracker initialized", "address", cfg.Redis.Address)
		}
		cancel()
		defer redisClient.Close()
	}

	// Broker client behind the fetch layer
	var client broker.Client
	if cfg.Broker.MockMode {
		client = broker.NewMockClient(cfg.Broker.MockSeed)
		logger.Info("Mock broker initialized", "seed", cfg.Broker.MockSeed)
	} else {
		// Live connectivity ships separately; refuse to start rather than
		// trade against a stub.
		logger.Fatal("Live broker mode is not available in this build")
	}

	breaker := circuit.NewAuthBreaker(cfg.Circuit, clock, eventBus)
	barFetcher := fetcher.New(client, breaker, cfg.Fetcher, logger)
	symbolCache := cache.New(clock, cfg.Cache, logger)

	registry := strategy.NewDefaultRegistry()
	logger.Info("Strategy registry initialized", "strategies", registry.Count())

	riskPolicy := risk.NewPercentRiskPolicy(cfg.Risk)
	signalPipeline := pipeline.New(cfg.Pipeline, clock, store, tracker, riskPolicy, notifyManager, eventBus, logger)

	unifiedScanner := scanner.New(cfg.Scanner, clock, symbolCache, barFetcher, registry,
		cfg.ScannerWatchlists(), signalPipeline, eventBus, logger)

	loop, err := scheduler.New(cfg.Scheduler, clock, unifiedScanner, store, tracker, eventBus, logger)
	if err != nil {
		logger.Fatal("Failed to build scheduler", "error", err)
	}

	// Operational alerts ride the event bus
	eventBus.Subscribe(events.EventBrokerUnauthorized, func(e events.Event) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := notifyManager.SendAlert(ctx, "Broker authentication failed",
			"Market data fetches are paused for the cooldown window. Check the broker session."); err != nil {
			logger.Error("Failed to deliver auth alert", "error", err)
		}
	})
	eventBus.Subscribe(events.EventEpochTimedOut, func(e events.Event) {
		logger.Warn("Scan epoch hit its deadline", "data", e.Data)
	})

	loop.Start()
	for name, next := range loop.NextRuns() {
		logger.Info("Trigger armed", "trigger", name, "next_fire", next.Format(time.RFC3339))
	}

	sigChan := make(chan os.Signal, 1)
	ossignal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("Shutdown signal received", "signal", sig.String())

	if err := loop.Stop(cfg.Scheduler.ShutdownGrace); err != nil {
		logger.Error("Shutdown exceeded grace period", "error", err)
		os.Exit(1)
	}
	logger.Info("Shutdown complete")
}
