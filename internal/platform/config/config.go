package config

import (
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	DatabaseURL   string
	Port          string
	IsProduction  bool
	RunMigrations bool
	JWTSecret     string
	JWTIssuer     string

	// Rate limiting, in ulule/limiter's formatted notation (e.g. "100-M").
	RateLimit string

	// Redis backs the rate cache and the API rate limiter. Empty disables both.
	RedisURL string

	// Kafka receives transfer status events. No brokers means events are only logged.
	KafkaBrokers      []string
	KafkaTopic        string
	EventWorkers      int
	EventQueueSize    int
	RateSource        string // "static" or "database"
	RateCacheTTL      time.Duration
	RateBreakerTrips  uint32
	RateBreakerWindow time.Duration

	QuoteTTL time.Duration

	SettlementRetryInterval time.Duration
	SettlementMaxRetries    uint64
	SettlementBreakerTrips  uint32
	SettlementBreakerWindow time.Duration
	SettlementFailureRate   float64
	SettlementReturnRate    float64
	SettlementLatencyScale  float64

	// Ceilings below are in LimitsCurrency; transfers in other currencies are converted.
	LimitsCurrency   string
	DailyLimit       decimal.Decimal
	MonthlyLimit     decimal.Decimal
	AnnualLimit      decimal.Decimal
	PerTransferLimit decimal.Decimal

	BlockedCountries    []string
	ComplianceMaxAmount decimal.Decimal

	// In-memory mode only: seed a funded account and verified beneficiaries for DemoUserID.
	DemoSeed    bool
	DemoUserID  string
	DemoBalance decimal.Decimal
}

const (
	RateSourceStatic   = "static"
	RateSourceDatabase = "database"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("PGSQL_URL", "")
	v.SetDefault("PORT", "8080")
	v.SetDefault("IS_PRODUCTION", false)
	v.SetDefault("RUN_MIGRATIONS", true)
	v.SetDefault("JWT_SECRET", "a-very-secret-key-should-be-longer-and-random")
	v.SetDefault("JWT_ISSUER", "money-transfer-engine")
	v.SetDefault("RATE_LIMIT", "100-M")
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("KAFKA_TOPIC", "transfer-status-events")
	v.SetDefault("EVENT_WORKERS", 2)
	v.SetDefault("EVENT_QUEUE_SIZE", 1024)
	v.SetDefault("RATE_SOURCE", RateSourceStatic)
	v.SetDefault("RATE_CACHE_TTL", "60s")
	v.SetDefault("RATE_BREAKER_TRIPS", 5)
	v.SetDefault("RATE_BREAKER_WINDOW", "30s")
	v.SetDefault("QUOTE_TTL", "10m")
	v.SetDefault("SETTLEMENT_RETRY_INTERVAL", "1s")
	v.SetDefault("SETTLEMENT_MAX_RETRIES", 3)
	v.SetDefault("SETTLEMENT_BREAKER_TRIPS", 5)
	v.SetDefault("SETTLEMENT_BREAKER_WINDOW", "30s")
	v.SetDefault("SETTLEMENT_FAILURE_RATE", 0.02)
	v.SetDefault("SETTLEMENT_RETURN_RATE", 0.01)
	v.SetDefault("SETTLEMENT_LATENCY_SCALE", 1.0)
	v.SetDefault("LIMITS_CURRENCY", "USD")
	v.SetDefault("DAILY_LIMIT", "10000")
	v.SetDefault("MONTHLY_LIMIT", "50000")
	v.SetDefault("ANNUAL_LIMIT", "300000")
	v.SetDefault("PER_TRANSFER_LIMIT", "25000")
	v.SetDefault("BLOCKED_COUNTRIES", "")
	v.SetDefault("COMPLIANCE_MAX_AMOUNT", "0")
	v.SetDefault("DEMO_SEED", true)
	v.SetDefault("DEMO_USER_ID", "demo-user")
	v.SetDefault("DEMO_BALANCE", "10000")
}

// LoadConfig loads configuration from environment variables and .env file if present.
func LoadConfig() (*Config, error) {
	// Attempt to load .env file, ignore error if it doesn't exist
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{
		DatabaseURL:   v.GetString("PGSQL_URL"),
		Port:          v.GetString("PORT"),
		IsProduction:  v.GetBool("IS_PRODUCTION"),
		RunMigrations: v.GetBool("RUN_MIGRATIONS"),
		JWTSecret:     v.GetString("JWT_SECRET"),
		JWTIssuer:     v.GetString("JWT_ISSUER"),
		RateLimit:     v.GetString("RATE_LIMIT"),
		RedisURL:      v.GetString("REDIS_URL"),
		KafkaBrokers:  splitList(v.GetString("KAFKA_BROKERS")),
		KafkaTopic:    v.GetString("KAFKA_TOPIC"),

		EventWorkers:      v.GetInt("EVENT_WORKERS"),
		EventQueueSize:    v.GetInt("EVENT_QUEUE_SIZE"),
		RateSource:        strings.ToLower(v.GetString("RATE_SOURCE")),
		RateCacheTTL:      duration(v, "RATE_CACHE_TTL", time.Minute),
		RateBreakerTrips:  v.GetUint32("RATE_BREAKER_TRIPS"),
		RateBreakerWindow: duration(v, "RATE_BREAKER_WINDOW", 30*time.Second),

		QuoteTTL: duration(v, "QUOTE_TTL", 10*time.Minute),

		SettlementRetryInterval: duration(v, "SETTLEMENT_RETRY_INTERVAL", time.Second),
		SettlementMaxRetries:    v.GetUint64("SETTLEMENT_MAX_RETRIES"),
		SettlementBreakerTrips:  v.GetUint32("SETTLEMENT_BREAKER_TRIPS"),
		SettlementBreakerWindow: duration(v, "SETTLEMENT_BREAKER_WINDOW", 30*time.Second),
		SettlementFailureRate:   v.GetFloat64("SETTLEMENT_FAILURE_RATE"),
		SettlementReturnRate:    v.GetFloat64("SETTLEMENT_RETURN_RATE"),
		SettlementLatencyScale:  v.GetFloat64("SETTLEMENT_LATENCY_SCALE"),

		LimitsCurrency:   strings.ToUpper(v.GetString("LIMITS_CURRENCY")),
		DailyLimit:       amount(v, "DAILY_LIMIT", 10000),
		MonthlyLimit:     amount(v, "MONTHLY_LIMIT", 50000),
		AnnualLimit:      amount(v, "ANNUAL_LIMIT", 300000),
		PerTransferLimit: amount(v, "PER_TRANSFER_LIMIT", 25000),

		BlockedCountries:    splitList(v.GetString("BLOCKED_COUNTRIES")),
		ComplianceMaxAmount: amount(v, "COMPLIANCE_MAX_AMOUNT", 0),

		DemoSeed:    v.GetBool("DEMO_SEED"),
		DemoUserID:  strings.TrimSpace(v.GetString("DEMO_USER_ID")),
		DemoBalance: amount(v, "DEMO_BALANCE", 10000),
	}

	if cfg.DatabaseURL == "" {
		log.Println("Warning: PGSQL_URL environment variable not set. Using the in-memory store.")
	}
	if cfg.Port == "" {
		cfg.Port = "8080"
		log.Printf("Warning: PORT environment variable not set. Defaulting to %s\n", cfg.Port)
	}
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = "a-very-secret-key-should-be-longer-and-random" // !! CHANGE IN PRODUCTION !!
		log.Println("Warning: JWT_SECRET environment variable not set. Using default insecure key.")
	}
	if cfg.RateSource != RateSourceStatic && cfg.RateSource != RateSourceDatabase {
		log.Printf("Warning: Invalid value for RATE_SOURCE ('%s'). Defaulting to %s.\n", cfg.RateSource, RateSourceStatic)
		cfg.RateSource = RateSourceStatic
	}
	if cfg.RateSource == RateSourceDatabase && cfg.DatabaseURL == "" {
		log.Println("Warning: RATE_SOURCE=database requires PGSQL_URL. Falling back to static rates.")
		cfg.RateSource = RateSourceStatic
	}
	if cfg.DemoSeed && cfg.DemoUserID == "" {
		cfg.DemoSeed = false
	}
	if cfg.EventWorkers <= 0 {
		cfg.EventWorkers = 1
	}
	if cfg.SettlementLatencyScale < 0 {
		cfg.SettlementLatencyScale = 0
	}
	return cfg
}

func duration(v *viper.Viper, key string, fallback time.Duration) time.Duration {
	raw := v.GetString(key)
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		if raw != "" {
			log.Printf("Warning: Invalid value for %s ('%s'). Defaulting to %s.\n", key, raw, fallback)
		}
		return fallback
	}
	return d
}

func amount(v *viper.Viper, key string, fallback int64) decimal.Decimal {
	raw := v.GetString(key)
	d, err := decimal.NewFromString(raw)
	if err != nil || d.IsNegative() {
		if raw != "" {
			log.Printf("Warning: Invalid value for %s ('%s'). Defaulting to %d.\n", key, raw, fallback)
		}
		return decimal.NewFromInt(fallback)
	}
	return d
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
