package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"procodus.dev/hardwater/pkg/water"
)

// DBConfig holds the database configuration.
type DBConfig struct {
	Logger   *slog.Logger
	Host     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	Port     int
}

// Postgres is a Store backed by a gorm connection.
type Postgres struct {
	db     *gorm.DB
	logger *slog.Logger
}

// NewDB creates a new database connection and runs migrations.
func NewDB(cfg *DBConfig) (*gorm.DB, error) {
	if cfg == nil {
		return nil, errors.New("database config cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)

	cfg.Logger.Info("connecting to database",
		"host", cfg.Host,
		"port", cfg.Port,
		"dbname", cfg.DBName,
	)

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	db, err := gorm.Open(postgres.Open(dsn), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	cfg.Logger.Info("database connection established")

	if err := runMigrations(db, cfg.Logger); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return db, nil
}

func runMigrations(db *gorm.DB, logger *slog.Logger) error {
	logger.Info("running database migrations")

	if err := db.AutoMigrate(&WaterReading{}); err != nil {
		return fmt.Errorf("auto-migration failed: %w", err)
	}

	logger.Info("database migrations completed successfully")
	return nil
}

// CloseDB closes the database connection.
func CloseDB(db *gorm.DB, logger *slog.Logger) error {
	if db == nil {
		return nil
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}

	logger.Info("closing database connection")
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	logger.Info("database connection closed")
	return nil
}

// NewPostgres connects, migrates and wraps the connection as a Store.
func NewPostgres(cfg *DBConfig) (*Postgres, error) {
	db, err := NewDB(cfg)
	if err != nil {
		return nil, err
	}
	return &Postgres{db: db, logger: cfg.Logger}, nil
}

// NewPostgresFromDB wraps an already migrated connection.
func NewPostgresFromDB(db *gorm.DB, logger *slog.Logger) (*Postgres, error) {
	if db == nil {
		return nil, errors.New("database cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	return &Postgres{db: db, logger: logger}, nil
}

func (p *Postgres) Put(ctx context.Context, area water.AreaID, key string, r water.Reading) error {
	row, err := toRow(area, key, r)
	if err != nil {
		return err
	}
	err = p.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(row).Error
	if err != nil {
		return unavailable("put reading", err)
	}
	return nil
}

func (p *Postgres) GetRange(ctx context.Context, area water.AreaID, limit int) ([]StoredReading, error) {
	if err := validLimit(limit); err != nil {
		return nil, err
	}

	var rows []WaterReading
	err := p.db.WithContext(ctx).
		Where("area_key = ?", area.String()).
		Order("storage_key ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, unavailable("get range", err)
	}

	out := make([]StoredReading, 0, len(rows))
	for i := range rows {
		sr, err := rows[i].toStored()
		if err != nil {
			p.logger.Warn("skipping undecodable reading", "area", area, "key", rows[i].StorageKey, "error", err)
			continue
		}
		out = append(out, sr)
	}
	return out, nil
}

func (p *Postgres) ListAreas(ctx context.Context) ([]water.AreaID, error) {
	var keys []string
	err := p.db.WithContext(ctx).
		Model(&WaterReading{}).
		Distinct("area_key").
		Order("area_key").
		Pluck("area_key", &keys).Error
	if err != nil {
		return nil, unavailable("list areas", err)
	}

	areas := make([]water.AreaID, 0, len(keys))
	for _, k := range keys {
		areas = append(areas, water.AreaID(k))
	}
	return areas, nil
}

func (p *Postgres) Clear(ctx context.Context) error {
	err := p.db.WithContext(ctx).
		Session(&gorm.Session{AllowGlobalUpdate: true}).
		Delete(&WaterReading{}).Error
	if err != nil {
		return unavailable("clear", err)
	}
	return nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return unavailable("ping", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

func (p *Postgres) Close() error {
	return CloseDB(p.db, p.logger)
}
