// Package config loads service configuration from the environment.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	JWT         JWTConfig
	Transfer    TransferConfig
	Stripe      GatewayConfig
	Flutterwave GatewayConfig
	Mpesa       MpesaConfig
}

type ServerConfig struct {
	Host         string
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL      string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret string
}

// TransferConfig holds workflow tuning knobs.
type TransferConfig struct {
	MaxSendAmount       decimal.Decimal
	MaxInFlight         int64
	CaptureMaxAttempts  int
	DispatchMaxAttempts int
	RetryBaseDelay      time.Duration
	SettlementTimeout   time.Duration
	SettlementPoll      time.Duration
	RateCacheTTL        time.Duration
}

// GatewayConfig configures one card capture gateway.
type GatewayConfig struct {
	BaseURL   string
	SecretKey string
	Timeout   time.Duration
}

// MpesaConfig configures the mobile money payout rail.
type MpesaConfig struct {
	BaseURL       string
	APIKey        string
	ShortCode     string
	WebhookSecret string
	Timeout       time.Duration
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnv("SERVER_PORT", "8080"),
			ReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 10*time.Second),
			IdleTimeout:  getDurationEnv("SERVER_IDLE_TIMEOUT", 120*time.Second),
		},
		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxOpenConns:    getIntEnv("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getIntEnv("DB_MAX_IDLE_CONNS", 25),
			ConnMaxLifetime: getDurationEnv("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL:      normalizeRedisURL(getEnv("REDIS_URL", "localhost:6379")),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", "change-this-secret"),
		},
		Transfer: TransferConfig{
			MaxSendAmount:       getDecimalEnv("TRANSFER_MAX_SEND_AMOUNT", decimal.NewFromInt(10000)),
			MaxInFlight:         int64(getIntEnv("TRANSFER_MAX_IN_FLIGHT", 256)),
			CaptureMaxAttempts:  getIntEnv("TRANSFER_CAPTURE_MAX_ATTEMPTS", 3),
			DispatchMaxAttempts: getIntEnv("TRANSFER_DISPATCH_MAX_ATTEMPTS", 3),
			RetryBaseDelay:      getDurationEnv("TRANSFER_RETRY_BASE_DELAY", 500*time.Millisecond),
			SettlementTimeout:   getDurationEnv("TRANSFER_SETTLEMENT_TIMEOUT", 90*time.Second),
			SettlementPoll:      getDurationEnv("TRANSFER_SETTLEMENT_POLL", 3*time.Second),
			RateCacheTTL:        getDurationEnv("RATE_CACHE_TTL", 60*time.Second),
		},
		Stripe: GatewayConfig{
			BaseURL:   getEnv("STRIPE_BASE_URL", "https://api.stripe.com"),
			SecretKey: getEnv("STRIPE_SECRET_KEY", ""),
			Timeout:   getDurationEnv("STRIPE_TIMEOUT", 15*time.Second),
		},
		Flutterwave: GatewayConfig{
			BaseURL:   getEnv("FLUTTERWAVE_BASE_URL", "https://api.flutterwave.com"),
			SecretKey: getEnv("FLUTTERWAVE_SECRET_KEY", ""),
			Timeout:   getDurationEnv("FLUTTERWAVE_TIMEOUT", 15*time.Second),
		},
		Mpesa: MpesaConfig{
			BaseURL:       getEnv("MPESA_BASE_URL", "https://sandbox.safaricom.co.ke"),
			APIKey:        getEnv("MPESA_API_KEY", ""),
			ShortCode:     getEnv("MPESA_SHORT_CODE", ""),
			WebhookSecret: getEnv("MPESA_WEBHOOK_SECRET", ""),
			Timeout:       getDurationEnv("MPESA_TIMEOUT", 15*time.Second),
		},
	}
}

// Validate checks values the service cannot run without.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return errors.New("DATABASE_URL is required")
	}
	if c.JWT.Secret == "" || c.JWT.Secret == "change-this-secret" {
		return errors.New("JWT_SECRET must be set to a non-default value")
	}
	if c.Transfer.MaxSendAmount.LessThanOrEqual(decimal.Zero) {
		return errors.New("TRANSFER_MAX_SEND_AMOUNT must be positive")
	}
	if c.Transfer.SettlementTimeout <= 0 {
		return errors.New("TRANSFER_SETTLEMENT_TIMEOUT must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func normalizeRedisURL(url string) string {
	// Strip redis:// or redis+tls:// scheme if present
	if strings.HasPrefix(url, "redis+tls://") {
		return url[len("redis+tls://"):]
	}
	if strings.HasPrefix(url, "redis://") {
		return url[len("redis://"):]
	}
	return url
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getDecimalEnv(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if d, err := decimal.NewFromString(value); err == nil {
			return d
		}
	}
	return defaultValue
}
