package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	LogLevel string
	Server   ServerConfig

	// Database configuration
	DatabaseHost     string
	DatabasePort     string
	DatabaseName     string
	DatabaseUser     string
	DatabasePassword string
	DatabaseSSLMode  string
	DatabaseMaxOpen  int
	DatabaseMaxIdle  int

	// Redis configuration
	RedisHost     string
	RedisPassword string
	RedisPort     string

	Alpaca        AlpacaConfig
	Polygon       PolygonConfig
	ML            MLConfig
	Trading       TradingConfig
	Fundamentals  FundamentalsConfig
	Notifications NotificationsConfig
	Auth          AuthConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port int
}

// AlpacaConfig holds brokerage API configuration
type AlpacaConfig struct {
	APIKey     string
	SecretKey  string
	BaseURL    string
	DataURL    string
	StreamURL  string
	StreamOn   bool
	RatePerSec int
	Timeout    time.Duration
}

// PolygonConfig holds market-fundamentals API configuration
type PolygonConfig struct {
	APIKey     string
	BaseURL    string
	RatePerSec int
	Timeout    time.Duration
}

// MLConfig holds model-inference service configuration
type MLConfig struct {
	Endpoint string
	Timeout  time.Duration
}

// TradingConfig holds trade-decision parameters
type TradingConfig struct {
	ConfidenceThreshold float64
	RiskPerTrade        float64
	MaxPositionSize     float64 // upper bound for risk per trade
	SharePrecision      int32   // decimal places kept when sizing; 0 = whole shares
	PredictionCacheTTL  time.Duration
	LockTTL             time.Duration
	PersistTimeout      time.Duration
}

// FundamentalsConfig holds financial-data parameters
type FundamentalsConfig struct {
	RatioStaleness  time.Duration
	ProfileCacheTTL time.Duration
	ReportCacheTTL  time.Duration
	Watchlist       []string      // symbols refreshed in the background
	RefreshInterval time.Duration // 0 disables the background refresh
}

// NotificationsConfig holds reconciliation webhook settings
type NotificationsConfig struct {
	WebhookURLs     []string
	AuthHeader      string
	AuthValue       string
	RetryCount      int
	RetryDelay      time.Duration
	DeliveryTimeout time.Duration
}

// AuthConfig holds token settings for the HTTP surface
type AuthConfig struct {
	SecretKey string
	TokenTTL  time.Duration
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() *Config {
	// Missing .env is fine; the environment is authoritative.
	_ = godotenv.Load()

	return &Config{
		LogLevel: getEnvOrDefault("LOG_LEVEL", "info"),
		Server: ServerConfig{
			Port: getEnvInt("SERVER_PORT", 8080),
		},

		// Database configuration
		DatabaseHost:     getEnvOrDefault("DB_HOST", "localhost"),
		DatabasePort:     getEnvOrDefault("DB_PORT", "5432"),
		DatabaseName:     getEnvOrDefault("DB_NAME", "vuoksi"),
		DatabaseUser:     getEnvOrDefault("DB_USER", "vuoksi"),
		DatabasePassword: getEnvOrDefault("DB_PASSWORD", "vuoksi"),
		DatabaseSSLMode:  getEnvOrDefault("DB_SSLMODE", "disable"),
		DatabaseMaxOpen:  getEnvInt("DB_MAX_OPEN_CONNS", 25),
		DatabaseMaxIdle:  getEnvInt("DB_MAX_IDLE_CONNS", 10),

		// Redis configuration
		RedisHost:     getEnvOrDefault("REDIS_HOST", "localhost"),
		RedisPort:     getEnvOrDefault("REDIS_PORT", "6379"),
		RedisPassword: getEnvOrDefault("REDIS_PASSWORD", ""),

		Alpaca: AlpacaConfig{
			APIKey:     os.Getenv("ALPACA_API_KEY"),
			SecretKey:  os.Getenv("ALPACA_SECRET_KEY"),
			BaseURL:    getEnvOrDefault("ALPACA_BASE_URL", "https://paper-api.alpaca.markets"),
			DataURL:    getEnvOrDefault("ALPACA_DATA_URL", "https://data.alpaca.markets"),
			StreamURL:  getEnvOrDefault("ALPACA_STREAM_URL", "wss://paper-api.alpaca.markets/stream"),
			StreamOn:   getEnvOrDefault("ALPACA_STREAM_ENABLED", "true") == "true",
			RatePerSec: getEnvInt("ALPACA_RATE_PER_SEC", 3),
			Timeout:    getEnvDuration("ALPACA_TIMEOUT", 10*time.Second),
		},

		Polygon: PolygonConfig{
			APIKey:     os.Getenv("POLYGON_API_KEY"),
			BaseURL:    getEnvOrDefault("POLYGON_BASE_URL", "https://api.polygon.io"),
			RatePerSec: getEnvInt("POLYGON_RATE_PER_SEC", 5),
			Timeout:    getEnvDuration("POLYGON_TIMEOUT", 20*time.Second),
		},

		ML: MLConfig{
			Endpoint: getEnvOrDefault("ML_ENDPOINT", "http://localhost:8500"),
			Timeout:  getEnvDuration("ML_TIMEOUT", 30*time.Second),
		},

		Trading: TradingConfig{
			ConfidenceThreshold: getEnvFloat("TRADING_CONFIDENCE_THRESHOLD", 0.7),
			RiskPerTrade:        getEnvFloat("TRADING_RISK_PER_TRADE", 0.01),
			MaxPositionSize:     getEnvFloat("TRADING_MAX_POSITION_SIZE", 0.1),
			SharePrecision:      int32(getEnvInt("TRADING_SHARE_PRECISION", 0)),
			PredictionCacheTTL:  getEnvDuration("PREDICTION_CACHE_TTL", time.Hour),
			LockTTL:             getEnvDuration("TRADING_LOCK_TTL", 2*time.Minute),
			PersistTimeout:      getEnvDuration("TRADING_PERSIST_TIMEOUT", 10*time.Second),
		},

		Fundamentals: FundamentalsConfig{
			RatioStaleness:  getEnvDuration("RATIO_STALENESS", 30*24*time.Hour),
			ProfileCacheTTL: getEnvDuration("PROFILE_CACHE_TTL", 24*time.Hour),
			ReportCacheTTL:  getEnvDuration("REPORT_CACHE_TTL", 24*time.Hour),
			Watchlist:       splitList(strings.ToUpper(os.Getenv("FUNDAMENTALS_WATCHLIST"))),
			RefreshInterval: getEnvDuration("FUNDAMENTALS_REFRESH_INTERVAL", 24*time.Hour),
		},

		Notifications: NotificationsConfig{
			WebhookURLs:     splitList(os.Getenv("RECONCILIATION_WEBHOOK_URLS")),
			AuthHeader:      os.Getenv("RECONCILIATION_WEBHOOK_AUTH_HEADER"),
			AuthValue:       os.Getenv("RECONCILIATION_WEBHOOK_AUTH_VALUE"),
			RetryCount:      getEnvInt("RECONCILIATION_WEBHOOK_RETRIES", 3),
			RetryDelay:      getEnvDuration("RECONCILIATION_WEBHOOK_RETRY_DELAY", 5*time.Second),
			DeliveryTimeout: getEnvDuration("RECONCILIATION_WEBHOOK_TIMEOUT", 10*time.Second),
		},

		Auth: AuthConfig{
			SecretKey: getEnvOrDefault("SECRET_KEY", "change-me"),
			TokenTTL:  getEnvDuration("ACCESS_TOKEN_TTL", 8*24*time.Hour),
		},
	}
}

// Validate checks trading parameters that would make every decision invalid
func (c *Config) Validate() error {
	t := c.Trading
	if t.ConfidenceThreshold < 0 || t.ConfidenceThreshold > 1 {
		return fmt.Errorf("TRADING_CONFIDENCE_THRESHOLD must be within [0,1], got %v", t.ConfidenceThreshold)
	}
	if t.MaxPositionSize <= 0 || t.MaxPositionSize > 1 {
		return fmt.Errorf("TRADING_MAX_POSITION_SIZE must be within (0,1], got %v", t.MaxPositionSize)
	}
	if t.RiskPerTrade <= 0 || t.RiskPerTrade > t.MaxPositionSize {
		return fmt.Errorf("TRADING_RISK_PER_TRADE must be within (0,%v], got %v", t.MaxPositionSize, t.RiskPerTrade)
	}
	if t.SharePrecision < 0 || t.SharePrecision > 9 {
		return fmt.Errorf("TRADING_SHARE_PRECISION must be within [0,9], got %d", t.SharePrecision)
	}
	return nil
}

// getEnvInt gets environment variable as int or returns default value
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var intValue int
	if _, err := fmt.Sscanf(value, "%d", &intValue); err != nil {
		return defaultValue
	}
	return intValue
}

// getEnvFloat gets environment variable as float64 or returns default value
func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var floatValue float64
	if _, err := fmt.Sscanf(value, "%f", &floatValue); err != nil {
		return defaultValue
	}
	return floatValue
}

// getEnvDuration accepts Go duration strings ("90s", "1h") or plain seconds
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	var seconds int
	if _, err := fmt.Sscanf(value, "%d", &seconds); err == nil {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}

// getEnvOrDefault gets environment variable or returns default value
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
