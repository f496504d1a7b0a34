package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{
		StorageDriver:      DriverMemory,
		MaxBodyBytes:       1048576,
		RateLimitPerMinute: 60,
		SessionTTL:         24 * time.Hour,
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "")
	t.Setenv("SESSION_TTL", "")
	t.Setenv("RATE_LIMIT_PER_MINUTE", "not-a-number")

	cfg := Load()
	assert.Equal(t, DriverMemory, cfg.StorageDriver)
	assert.Equal(t, 24*time.Hour, cfg.SessionTTL)
	assert.Equal(t, 120, cfg.RateLimitPerMinute)
	require.NoError(t, cfg.Validate())
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "Redis")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("SESSION_TTL", "2h")
	t.Setenv("METRICS_ENABLED", "false")

	cfg := Load()
	assert.Equal(t, DriverRedis, cfg.StorageDriver)
	assert.Equal(t, 3, cfg.RedisDB)
	assert.Equal(t, 2*time.Hour, cfg.SessionTTL)
	assert.False(t, cfg.MetricsEnabled)
	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsDriverWithoutTarget(t *testing.T) {
	cfg := validConfig()
	cfg.StorageDriver = DriverPostgres
	require.ErrorContains(t, cfg.Validate(), "DATABASE_URL")

	cfg.StorageDriver = "etcd"
	require.ErrorContains(t, cfg.Validate(), "unsupported")
}

func TestValidateProductionRules(t *testing.T) {
	cfg := validConfig()
	cfg.Environment = "production"
	require.ErrorContains(t, cfg.Validate(), "SESSION_SECRET")

	cfg.SessionSecret = "a-strong-secret"
	require.ErrorContains(t, cfg.Validate(), "DATA_ENCRYPTION_KEY")

	cfg.DataEncryptionKey = "0123456789abcdef0123456789abcdef"
	require.ErrorContains(t, cfg.Validate(), "memory")

	cfg.StorageDriver = DriverSQLite
	cfg.SQLitePath = "payslip.db"
	require.NoError(t, cfg.Validate())
}

func TestValidateAdminPassword(t *testing.T) {
	cfg := validConfig()
	cfg.AdminEmail = "admin@example.com"
	cfg.AdminPassword = "short"
	require.ErrorContains(t, cfg.Validate(), "ADMIN_PASSWORD")
}
