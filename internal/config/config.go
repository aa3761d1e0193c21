// Package config loads runtime settings from the environment, with an
// optional .env file for local development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	DatabaseURL string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	AuthSecret     string
	AccessTokenTTL time.Duration

	OrderCancelWindow time.Duration
	SweepInterval     time.Duration
	StalePendingAfter time.Duration
	OrderStatusTTL    time.Duration
	ShiftSalesScope   string

	SMTPAddr     string
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string

	SeedAdminPassword   string
	SeedCashierPassword string
}

// Load reads .env when present, then the process environment. Missing keys
// fall back to development defaults; validation of hard requirements (such
// as AUTH_SECRET length) happens at startup, not here.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: getEnv("DATABASE_URL", ""),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		AuthSecret:     getEnv("AUTH_SECRET", ""),
		AccessTokenTTL: time.Duration(getEnvInt("ACCESS_TOKEN_TTL_MINUTES", 480)) * time.Minute,

		OrderCancelWindow: time.Duration(getEnvInt("ORDER_CANCEL_WINDOW_SECONDS", 60)) * time.Second,
		SweepInterval:     time.Duration(getEnvInt("SWEEP_INTERVAL_SECONDS", 300)) * time.Second,
		StalePendingAfter: time.Duration(getEnvInt("STALE_PENDING_SECONDS", 30)) * time.Second,
		OrderStatusTTL:    time.Duration(getEnvInt("ORDER_STATUS_TTL_SECONDS", 10)) * time.Second,
		ShiftSalesScope:   getEnv("SHIFT_SALES_SCOPE", "all"),

		SMTPAddr:     getEnv("SMTP_ADDR", ""),
		SMTPUsername: getEnv("SMTP_USERNAME", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		SMTPFrom:     getEnv("SMTP_FROM", "receipts@duckbunn.local"),

		SeedAdminPassword:   getEnv("SEED_ADMIN_PASSWORD", ""),
		SeedCashierPassword: getEnv("SEED_CASHIER_PASSWORD", ""),
	}
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
