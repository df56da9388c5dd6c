package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"equity-trading-bot/internal/cache"
	"equity-trading-bot/internal/circuit"
	"equity-trading-bot/internal/database"
	"equity-trading-bot/internal/fetcher"
	"equity-trading-bot/internal/logging"
	"equity-trading-bot/internal/notification"
	"equity-trading-bot/internal/pipeline"
	"equity-trading-bot/internal/risk"
	"equity-trading-bot/internal/scanner"
	"equity-trading-bot/internal/scheduler"
	"equity-trading-bot/internal/strategy"
)

// Config is the full application configuration. Values are resolved in three
// layers: built-in defaults, then config.json when present, then environment
// overrides.
type Config struct {
	Broker       BrokerConfig        `json:"broker"`
	Market       MarketConfig        `json:"market"`
	Scanner      *scanner.Config     `json:"scanner"`
	Fetcher      *fetcher.Config     `json:"fetcher"`
	Cache        *cache.Config       `json:"cache"`
	Pipeline     *pipeline.Config    `json:"pipeline"`
	Risk         *risk.Config        `json:"risk"`
	Circuit      *circuit.Config     `json:"circuit"`
	Scheduler    *scheduler.Config   `json:"scheduler"`
	Watchlists   map[string][]string `json:"watchlists"`
	Database     DatabaseConfig      `json:"database"`
	Redis        RedisConfig         `json:"redis"`
	Logging      logging.Config      `json:"logging"`
	Notification NotificationConfig  `json:"notification"`
}

// BrokerConfig selects the market data source
type BrokerConfig struct {
	MockMode  bool   `json:"mock_mode"`
	MockSeed  int64  `json:"mock_seed"`
	APIKey    string `json:"api_key"`
	APISecret string `json:"api_secret"`
	BaseURL   string `json:"base_url"`
}

// MarketConfig pins the exchange calendar
type MarketConfig struct {
	Timezone     string `json:"timezone"`
	SessionOpen  string `json:"session_open"`  // "HH:MM" exchange-local
	SessionClose string `json:"session_close"` // "HH:MM" exchange-local
}

// DatabaseConfig wraps the connection settings with an enable switch. When
// disabled, signals are held in an in-memory store.
type DatabaseConfig struct {
	Enabled bool `json:"enabled"`
	database.Config
}

// RedisConfig holds the duplicate-tracker connection settings
type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

// NotificationConfig holds delivery provider settings
type NotificationConfig struct {
	Enabled  bool                        `json:"enabled"`
	Telegram notification.TelegramConfig `json:"telegram"`
	Discord  notification.DiscordConfig  `json:"discord"`
}

// Default returns the built-in configuration: mock broker, NSE session,
// in-memory signal store and the standard trigger set.
func Default() *Config {
	return &Config{
		Broker: BrokerConfig{
			MockMode: true,
			MockSeed: 42,
			BaseURL:  "https://api.kite.trade",
		},
		Market: MarketConfig{
			Timezone:     "Asia/Kolkata",
			SessionOpen:  "09:15",
			SessionClose: "15:30",
		},
		Scanner:   scanner.DefaultConfig(),
		Fetcher:   fetcher.DefaultConfig(),
		Cache:     cache.DefaultConfig(),
		Pipeline:  pipeline.DefaultConfig(),
		Risk:      risk.DefaultConfig(),
		Circuit:   circuit.DefaultConfig(),
		Scheduler: scheduler.DefaultConfig(),
		Watchlists: map[string][]string{
			string(strategy.CategoryDayTrading):   {"RELIANCE", "TCS", "INFY", "HDFCBANK", "ICICIBANK", "SBIN"},
			string(strategy.CategoryShortSelling): {"RELIANCE", "TCS", "AXISBANK", "KOTAKBANK"},
			string(strategy.CategoryShortTerm):    {"RELIANCE", "INFY", "ITC", "LT", "BHARTIARTL"},
			string(strategy.CategoryLongTerm):     {"RELIANCE", "TCS", "HDFCBANK", "HINDUNILVR", "ASIANPAINT", "ITC"},
		},
		Database: DatabaseConfig{
			Enabled: false,
			Config: database.Config{
				Host:     "localhost",
				Port:     5432,
				User:     "postgres",
				Password: "postgres",
				Database: "equity_bot",
				SSLMode:  "disable",
			},
		},
		Redis: RedisConfig{
			Enabled:  false,
			Address:  "localhost:6379",
			DB:       0,
			PoolSize: 10,
		},
		Logging: logging.Config{
			Level:      "INFO",
			Output:     "stdout",
			JSONFormat: true,
		},
		Notification: NotificationConfig{
			Enabled: true,
		},
	}
}

// Load builds the configuration from defaults, config.json and environment
// overrides, then validates it.
func Load() (*Config, error) {
	cfg := Default()
	if err := loadFromFile(cfg, getEnvOrDefault("CONFIG_PATH", "config.json")); err != nil {
		return nil, err
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFromFile overlays config.json onto the defaults. A missing file is not
// an error.
func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	// Broker
	cfg.Broker.MockMode = getEnvBoolOrDefault("BROKER_MOCK_MODE", cfg.Broker.MockMode)
	cfg.Broker.APIKey = getEnvOrDefault("BROKER_API_KEY", cfg.Broker.APIKey)
	cfg.Broker.APISecret = getEnvOrDefault("BROKER_API_SECRET", cfg.Broker.APISecret)
	cfg.Broker.BaseURL = getEnvOrDefault("BROKER_BASE_URL", cfg.Broker.BaseURL)

	// Market session
	cfg.Market.Timezone = getEnvOrDefault("MARKET_TIMEZONE", cfg.Market.Timezone)
	cfg.Market.SessionOpen = getEnvOrDefault("MARKET_SESSION_OPEN", cfg.Market.SessionOpen)
	cfg.Market.SessionClose = getEnvOrDefault("MARKET_SESSION_CLOSE", cfg.Market.SessionClose)

	// Scanner
	cfg.Scanner.Parallelism = getEnvIntOrDefault("SCANNER_PARALLELISM", cfg.Scanner.Parallelism)
	cfg.Scanner.EpochTimeout = getEnvDurationOrDefault("SCANNER_EPOCH_TIMEOUT", cfg.Scanner.EpochTimeout)
	cfg.Scanner.SymbolTimeout = getEnvDurationOrDefault("SCANNER_SYMBOL_TIMEOUT", cfg.Scanner.SymbolTimeout)

	// Fetcher
	cfg.Fetcher.TimeoutIntraday = getEnvDurationOrDefault("FETCH_TIMEOUT_INTRADAY", cfg.Fetcher.TimeoutIntraday)
	cfg.Fetcher.TimeoutHistory = getEnvDurationOrDefault("FETCH_TIMEOUT_HISTORY", cfg.Fetcher.TimeoutHistory)
	cfg.Fetcher.MaxAttempts = getEnvIntOrDefault("FETCH_MAX_ATTEMPTS", cfg.Fetcher.MaxAttempts)

	// Cache
	cfg.Cache.Capacity = getEnvIntOrDefault("CACHE_CAPACITY", cfg.Cache.Capacity)
	cfg.Cache.TTLIntraday = getEnvDurationOrDefault("CACHE_TTL_INTRADAY", cfg.Cache.TTLIntraday)
	cfg.Cache.TTLDaily = getEnvDurationOrDefault("CACHE_TTL_DAILY", cfg.Cache.TTLDaily)

	// Pipeline
	cfg.Pipeline.SignalTimeout = getEnvDurationOrDefault("SIGNAL_TIMEOUT", cfg.Pipeline.SignalTimeout)
	cfg.Pipeline.DedupQuietWindow = getEnvDurationOrDefault("DEDUP_QUIET_WINDOW", cfg.Pipeline.DedupQuietWindow)
	cfg.Pipeline.AutoTrade = getEnvBoolOrDefault("AUTO_TRADE", cfg.Pipeline.AutoTrade)
	cfg.Pipeline.AutoThreshold = getEnvFloatOrDefault("AUTO_TRADE_THRESHOLD", cfg.Pipeline.AutoThreshold)

	// Risk
	cfg.Risk.Capital = getEnvFloatOrDefault("RISK_CAPITAL", cfg.Risk.Capital)
	cfg.Risk.RiskPerTradePct = getEnvFloatOrDefault("RISK_PER_TRADE_PCT", cfg.Risk.RiskPerTradePct)
	cfg.Risk.MaxPositionPct = getEnvFloatOrDefault("RISK_MAX_POSITION_PCT", cfg.Risk.MaxPositionPct)
	cfg.Risk.AllowShortTrades = getEnvBoolOrDefault("RISK_ALLOW_SHORT_TRADES", cfg.Risk.AllowShortTrades)

	// Circuit breaker
	cfg.Circuit.Enabled = getEnvBoolOrDefault("CIRCUIT_ENABLED", cfg.Circuit.Enabled)
	cfg.Circuit.Cooldown = getEnvDurationOrDefault("CIRCUIT_COOLDOWN", cfg.Circuit.Cooldown)

	// Scheduler
	cfg.Scheduler.EpochTimeout = getEnvDurationOrDefault("SCHEDULER_EPOCH_TIMEOUT", cfg.Scheduler.EpochTimeout)
	cfg.Scheduler.SweepInterval = getEnvDurationOrDefault("SCHEDULER_SWEEP_INTERVAL", cfg.Scheduler.SweepInterval)
	cfg.Scheduler.ShutdownGrace = getEnvDurationOrDefault("SCHEDULER_SHUTDOWN_GRACE", cfg.Scheduler.ShutdownGrace)

	// Database
	cfg.Database.Enabled = getEnvBoolOrDefault("DB_ENABLED", cfg.Database.Enabled)
	cfg.Database.Host = getEnvOrDefault("DB_HOST", cfg.Database.Host)
	cfg.Database.Port = getEnvIntOrDefault("DB_PORT", cfg.Database.Port)
	cfg.Database.User = getEnvOrDefault("DB_USER", cfg.Database.User)
	cfg.Database.Password = getEnvOrDefault("DB_PASSWORD", cfg.Database.Password)
	cfg.Database.Database = getEnvOrDefault("DB_NAME", cfg.Database.Database)
	cfg.Database.SSLMode = getEnvOrDefault("DB_SSL_MODE", cfg.Database.SSLMode)

	// Redis
	cfg.Redis.Enabled = getEnvBoolOrDefault("REDIS_ENABLED", cfg.Redis.Enabled)
	cfg.Redis.Address = getEnvOrDefault("REDIS_ADDRESS", cfg.Redis.Address)
	cfg.Redis.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = getEnvIntOrDefault("REDIS_DB", cfg.Redis.DB)
	cfg.Redis.PoolSize = getEnvIntOrDefault("REDIS_POOL_SIZE", cfg.Redis.PoolSize)

	// Logging
	cfg.Logging.Level = getEnvOrDefault("LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Output = getEnvOrDefault("LOG_OUTPUT", cfg.Logging.Output)
	cfg.Logging.JSONFormat = getEnvBoolOrDefault("LOG_JSON", cfg.Logging.JSONFormat)

	// Notifications
	cfg.Notification.Enabled = getEnvBoolOrDefault("NOTIFICATIONS_ENABLED", cfg.Notification.Enabled)
	cfg.Notification.Telegram.Enabled = getEnvBoolOrDefault("TELEGRAM_ENABLED", cfg.Notification.Telegram.Enabled)
	cfg.Notification.Telegram.BotToken = getEnvOrDefault("TELEGRAM_BOT_TOKEN", cfg.Notification.Telegram.BotToken)
	cfg.Notification.Telegram.ChatID = getEnvOrDefault("TELEGRAM_CHAT_ID", cfg.Notification.Telegram.ChatID)
	cfg.Notification.Discord.Enabled = getEnvBoolOrDefault("DISCORD_ENABLED", cfg.Notification.Discord.Enabled)
	cfg.Notification.Discord.WebhookURL = getEnvOrDefault("DISCORD_WEBHOOK_URL", cfg.Notification.Discord.WebhookURL)
}

// Validate rejects configurations the scheduler cannot run with. Called once
// at startup; a failure here is fatal.
func (c *Config) Validate() error {
	if c.Scanner.Parallelism <= 0 {
		return fmt.Errorf("scanner parallelism must be positive, got %d", c.Scanner.Parallelism)
	}
	if c.Scanner.EpochTimeout <= 0 || c.Scanner.SymbolTimeout <= 0 {
		return fmt.Errorf("scanner timeouts must be positive")
	}
	if c.Fetcher.MaxAttempts < 1 {
		return fmt.Errorf("fetcher max attempts must be at least 1, got %d", c.Fetcher.MaxAttempts)
	}
	if c.Cache.Capacity <= 0 {
		return fmt.Errorf("cache capacity must be positive, got %d", c.Cache.Capacity)
	}
	if c.Pipeline.AutoThreshold < 0 || c.Pipeline.AutoThreshold > 1 {
		return fmt.Errorf("auto trade threshold must be in [0,1], got %.2f", c.Pipeline.AutoThreshold)
	}
	if c.Risk.Capital <= 0 {
		return fmt.Errorf("risk capital must be positive")
	}
	if len(c.Scheduler.Triggers) == 0 {
		return fmt.Errorf("at least one scheduler trigger is required")
	}
	for category, symbols := range c.Watchlists {
		if !strategy.Category(category).Valid() {
			return fmt.Errorf("watchlist references unknown category %q", category)
		}
		if len(symbols) == 0 {
			return fmt.Errorf("watchlist for %s is empty", category)
		}
	}
	if !c.Broker.MockMode && (c.Broker.APIKey == "" || c.Broker.APISecret == "") {
		return fmt.Errorf("live broker mode requires BROKER_API_KEY and BROKER_API_SECRET")
	}
	return nil
}

// ScannerWatchlists converts the raw category names into typed watchlists
func (c *Config) ScannerWatchlists() scanner.Watchlists {
	out := make(scanner.Watchlists, len(c.Watchlists))
	for category, symbols := range c.Watchlists {
		out[strategy.Category(category)] = symbols
	}
	return out
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
