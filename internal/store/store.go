// Package store persists raw water readings keyed by area and storage key.
//
// Every backend honours the same contract: readings are stored verbatim, keys
// within an area sort ascending in reverse-chronological order, and GetRange
// returns the lowest keys first.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"procodus.dev/hardwater/pkg/water"
)

// Supported drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

// StoredReading pairs a reading with its storage key.
type StoredReading struct {
	Key     string
	Reading water.Reading
}

// Store is the reading store used by the ingestion gateway and the query service.
type Store interface {
	// Put writes r under (area, key), replacing any previous value.
	Put(ctx context.Context, area water.AreaID, key string, r water.Reading) error
	// GetRange returns at most limit readings of area in ascending key order.
	// An unknown area yields an empty slice.
	GetRange(ctx context.Context, area water.AreaID, limit int) ([]StoredReading, error)
	// ListAreas returns every area holding at least one reading, sorted.
	ListAreas(ctx context.Context) ([]water.AreaID, error)
	// Clear removes every reading of every area.
	Clear(ctx context.Context) error
	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error
	// Close releases backend resources.
	Close() error
}

// Config selects and configures a backend.
type Config struct {
	Logger *slog.Logger
	DB     *DBConfig
	Redis  *RedisConfig
	Driver string
}

// New opens the backend named by cfg.Driver.
func New(cfg *Config) (Store, error) {
	if cfg == nil {
		return nil, errors.New("store config cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	switch cfg.Driver {
	case DriverMemory, "":
		cfg.Logger.Info("using in-memory reading store")
		return NewMemory(), nil
	case DriverPostgres:
		if cfg.DB == nil {
			return nil, errors.New("database config cannot be nil")
		}
		cfg.DB.Logger = cfg.Logger
		return NewPostgres(cfg.DB)
	case DriverRedis:
		if cfg.Redis == nil {
			return nil, errors.New("redis config cannot be nil")
		}
		cfg.Redis.Logger = cfg.Logger
		return NewRedis(cfg.Redis)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", water.ErrUpstreamUnavailable, op, err)
}

func validLimit(limit int) error {
	if limit <= 0 {
		return fmt.Errorf("%w: limit must be positive", water.ErrValidation)
	}
	return nil
}
