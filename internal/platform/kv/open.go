package kv

import (
	"context"
	"fmt"

	"payslip/internal/platform/config"
)

// Open builds the Store selected by cfg.StorageDriver.
func Open(ctx context.Context, cfg config.Config) (Store, error) {
	switch cfg.StorageDriver {
	case config.DriverMemory, "":
		return NewMemory(), nil
	case config.DriverPostgres:
		return NewPostgres(ctx, cfg.DatabaseURL)
	case config.DriverRedis:
		return NewRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	case config.DriverSQLite:
		return NewSQLite(cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}
}
