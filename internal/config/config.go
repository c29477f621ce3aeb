package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	DBDriver string
	DBDSN    string

	RedisAddr string

	KafkaBrokers  []string
	OrderTopic    string
	PaymentTopic  string
	ConsumerGroup string

	JWTSecret string
	HTTPAddr  string
	RateLimit float64
	RateBurst int

	RecipeCacheTTL   time.Duration
	MigrationRetries int
	LockStripes      int
}

// Load reads the configuration from the environment, falling back to local defaults.
func Load() (*Config, error) {
	cfg := &Config{
		DBDriver:      getEnv("DB_DRIVER", "mysql"),
		DBDSN:         os.Getenv("DB_DSN"),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		KafkaBrokers:  strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092,localhost:9093,localhost:9094"), ","),
		OrderTopic:    getEnv("ORDER_TOPIC", "order-topic"),
		PaymentTopic:  getEnv("PAYMENT_TOPIC", "payment-topic"),
		ConsumerGroup: getEnv("CONSUMER_GROUP", "cafe-order-service"),
		JWTSecret:     os.Getenv("JWT_SECRET"),
		HTTPAddr:      getEnv("HTTP_ADDR", ":8082"),
	}

	var err error
	if cfg.RateLimit, err = strconv.ParseFloat(getEnv("RATE_LIMIT", "10"), 64); err != nil {
		return nil, fmt.Errorf("RATE_LIMIT: %w", err)
	}
	if cfg.RateBurst, err = strconv.Atoi(getEnv("RATE_BURST", "30")); err != nil {
		return nil, fmt.Errorf("RATE_BURST: %w", err)
	}
	if cfg.RecipeCacheTTL, err = time.ParseDuration(getEnv("RECIPE_CACHE_TTL", "10m")); err != nil {
		return nil, fmt.Errorf("RECIPE_CACHE_TTL: %w", err)
	}
	if cfg.MigrationRetries, err = strconv.Atoi(getEnv("MIGRATION_RETRIES", "3")); err != nil {
		return nil, fmt.Errorf("MIGRATION_RETRIES: %w", err)
	}
	if cfg.LockStripes, err = strconv.Atoi(getEnv("LOCK_STRIPES", "64")); err != nil {
		return nil, fmt.Errorf("LOCK_STRIPES: %w", err)
	}

	if cfg.DBDSN == "" {
		switch cfg.DBDriver {
		case "sqlite":
			cfg.DBDSN = "cafe.db"
		default:
			cfg.DBDSN = fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true",
				getEnv("DB_USER", "root"), os.Getenv("DB_PASS"),
				getEnv("DB_HOST", "127.0.0.1"), getEnv("DB_PORT", "3306"),
				getEnv("DB_NAME", "cafe-db"))
		}
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
