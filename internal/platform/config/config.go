package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
	DriverSQLite   = "sqlite"
)

type Config struct {
	Addr                 string
	Environment          string
	LogLevel             string
	BaseURL              string
	StorageDriver        string
	DatabaseURL          string
	RedisAddr            string
	RedisPassword        string
	RedisDB              int
	SQLitePath           string
	SessionSecret        string
	DataEncryptionKey    string
	AdminName            string
	AdminEmail           string
	AdminPassword        string
	EnableAnalytics      bool
	MaxBodyBytes         int64
	RateLimitPerMinute   int
	SessionTTL           time.Duration
	SessionSweepInterval time.Duration
	MetricsEnabled       bool
}

// Load reads an optional .env file and then the process environment.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		Addr:                 getEnv("APP_ADDR", ":8080"),
		Environment:          getEnv("APP_ENV", "development"),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		BaseURL:              getEnv("BASE_URL", "http://localhost:8080"),
		StorageDriver:        strings.ToLower(getEnv("STORAGE_DRIVER", DriverMemory)),
		DatabaseURL:          getEnv("DATABASE_URL", ""),
		RedisAddr:            getEnv("REDIS_ADDR", ""),
		RedisPassword:        getEnv("REDIS_PASSWORD", ""),
		RedisDB:              getEnvInt("REDIS_DB", 0),
		SQLitePath:           getEnv("SQLITE_PATH", "payslip.db"),
		SessionSecret:        getEnv("SESSION_SECRET", ""),
		DataEncryptionKey:    getEnv("DATA_ENCRYPTION_KEY", ""),
		AdminName:            getEnv("ADMIN_NAME", "Administrator"),
		AdminEmail:           getEnv("ADMIN_EMAIL", ""),
		AdminPassword:        getEnv("ADMIN_PASSWORD", ""),
		EnableAnalytics:      getEnvBool("ENABLE_ANALYTICS", false),
		MaxBodyBytes:         int64(getEnvInt("MAX_BODY_BYTES", 1048576)),
		RateLimitPerMinute:   getEnvInt("RATE_LIMIT_PER_MINUTE", 120),
		SessionTTL:           getEnvDuration("SESSION_TTL", 24*time.Hour),
		SessionSweepInterval: getEnvDuration("SESSION_SWEEP_INTERVAL", time.Hour),
		MetricsEnabled:       getEnvBool("METRICS_ENABLED", true),
	}
}

func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func (c Config) Validate() error {
	switch c.StorageDriver {
	case DriverMemory:
	case DriverPostgres:
		if strings.TrimSpace(c.DatabaseURL) == "" {
			return fmt.Errorf("DATABASE_URL is required when STORAGE_DRIVER=postgres")
		}
	case DriverRedis:
		if strings.TrimSpace(c.RedisAddr) == "" {
			return fmt.Errorf("REDIS_ADDR is required when STORAGE_DRIVER=redis")
		}
	case DriverSQLite:
		if strings.TrimSpace(c.SQLitePath) == "" {
			return fmt.Errorf("SQLITE_PATH is required when STORAGE_DRIVER=sqlite")
		}
	default:
		return fmt.Errorf("unsupported STORAGE_DRIVER %q", c.StorageDriver)
	}
	if c.IsProduction() {
		if strings.TrimSpace(c.SessionSecret) == "" {
			return fmt.Errorf("SESSION_SECRET must be set to a strong value in production")
		}
		if strings.TrimSpace(c.DataEncryptionKey) == "" {
			return fmt.Errorf("DATA_ENCRYPTION_KEY must be set in production for payslip encryption at rest")
		}
		if c.StorageDriver == DriverMemory {
			return fmt.Errorf("STORAGE_DRIVER=memory is not allowed in production")
		}
	}
	if strings.TrimSpace(c.AdminEmail) != "" && len(c.AdminPassword) < 8 {
		return fmt.Errorf("ADMIN_PASSWORD must be at least 8 characters when ADMIN_EMAIL is set")
	}
	if c.MaxBodyBytes < 1024 {
		return fmt.Errorf("MAX_BODY_BYTES must be at least 1024")
	}
	if c.RateLimitPerMinute <= 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must be positive")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive")
	}
	return nil
}
