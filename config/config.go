package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	JWT      JWTConfig
	Points   PointsConfig
	RabbitMQ RabbitMQConfig
}

type ServerConfig struct {
	Port         string
	Env          string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type DatabaseConfig struct {
	DSN             string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

type JWTConfig struct {
	Secret string
	Expiry time.Duration
	Issuer string
}

// PointsConfig controls how payments convert into points. Ratio is points
// awarded per 100 minor currency units. Changing Ratio only affects orders
// created afterwards: points_awarded is fixed on each order at creation.
type PointsConfig struct {
	Ratio       int64
	ExpiryDays  int
	OrderExpiry time.Duration
	ExpirySweep time.Duration // 0 disables the expired-points sweeper
}

type RabbitMQConfig struct {
	URL      string // empty disables the queue consumer
	Queue    string
	Prefetch int
	Workers  int
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", "8088"),
			Env:          getEnv("APP_ENV", "development"),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			DSN:             getEnv("DB_DSN", "loyalty:loyalty@tcp(localhost:3306)/loyalty?charset=utf8mb4&parseTime=True&loc=Local"),
			MaxIdleConns:    10,
			MaxOpenConns:    100,
			ConnMaxLifetime: time.Hour,
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", "change-me-in-production"),
			Expiry: 168 * time.Hour,
			Issuer: "loyalty",
		},
		Points: PointsConfig{
			Ratio:       getEnvInt64("POINTS_RATIO", 1),
			ExpiryDays:  getEnvInt("POINTS_EXPIRY_DAYS", 365),
			OrderExpiry: time.Duration(getEnvInt("ORDER_EXPIRY_MINUTES", 60)) * time.Minute,
			ExpirySweep: time.Duration(getEnvInt("POINTS_SWEEP_MINUTES", 0)) * time.Minute,
		},
		RabbitMQ: RabbitMQConfig{
			URL:      getEnv("RABBITMQ_URL", ""),
			Queue:    getEnv("RABBITMQ_QUEUE", "payment_confirmations"),
			Prefetch: getEnvInt("RABBITMQ_PREFETCH", 10),
			Workers:  getEnvInt("RABBITMQ_WORKERS", 4),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			return n
		}
	}
	return defaultValue
}
