package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string

	LogLevel string

	HTTPAddr string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	// AuthJWTSecret verifies bearer tokens minted by the identity provider.
	AuthJWTSecret string

	// CronSecret protects the scheduled-job endpoints.
	CronSecret string

	StripeAPIKey        string
	StripeWebhookSecret string

	// BookingHoldWindow is how long an unconfirmed booking holds its slot.
	// Clamped to [10m, 30m].
	BookingHoldWindow time.Duration

	SweepInterval time.Duration
	SweepEnabled  bool

	RateLimit RateLimitConfig
}

// RateLimitConfig controls the redis-backed booking-creation limiter.
type RateLimitConfig struct {
	Enabled            bool
	RedisAddr          string
	RedisPassword      string
	RedisDB            int
	BookingCreateRate  float64
	BookingCreateBurst int
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:     getenv("APP_SERVICE", "mentorlane"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		LogLevel:    strings.ToLower(getenv("LOG_LEVEL", "info")),
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "mentorlane"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 10),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 50),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 3600),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 600),

		AuthJWTSecret: strings.TrimSpace(getenv("AUTH_JWT_SECRET", "")),
		CronSecret:    strings.TrimSpace(getenv("CRON_SECRET", "")),

		StripeAPIKey:        strings.TrimSpace(getenv("STRIPE_API_KEY", "")),
		StripeWebhookSecret: strings.TrimSpace(getenv("STRIPE_WEBHOOK_SECRET", "")),

		BookingHoldWindow: getenvDuration("BOOKING_HOLD_WINDOW", 30*time.Minute),
		SweepInterval:     getenvDuration("SWEEP_INTERVAL", time.Minute),
		SweepEnabled:      getenvBool("SWEEP_ENABLED", true),

		RateLimit: RateLimitConfig{
			Enabled:            getenvBool("RATE_LIMIT_ENABLED", false),
			RedisAddr:          strings.TrimSpace(getenv("RATE_LIMIT_REDIS_ADDR", "")),
			RedisPassword:      getenv("RATE_LIMIT_REDIS_PASSWORD", ""),
			RedisDB:            getenvInt("RATE_LIMIT_REDIS_DB", 0),
			BookingCreateRate:  getenvFloat("RATE_LIMIT_BOOKING_CREATE_RATE", 1),
			BookingCreateBurst: getenvInt("RATE_LIMIT_BOOKING_CREATE_BURST", 5),
		},
	}

	if cfg.BookingHoldWindow < 10*time.Minute {
		cfg.BookingHoldWindow = 10 * time.Minute
	}
	if cfg.BookingHoldWindow > 30*time.Minute {
		cfg.BookingHoldWindow = 30 * time.Minute
	}

	return cfg
}

// Module provides the application configuration.
var Module = fx.Module("config",
	fx.Provide(Load),
)

func getenv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func getenvBool(key string, fallback bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return value
}

func getenvFloat(key string, fallback float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	return value
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return value
}
