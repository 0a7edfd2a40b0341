package producer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"procodus.dev/hardwater/internal/store"
	"procodus.dev/hardwater/pkg/generator"
	"procodus.dev/hardwater/pkg/metrics"
	"procodus.dev/hardwater/pkg/water"
)

// DefaultRecordsPerArea is the history length written per area by Seed.
const DefaultRecordsPerArea = 200

// SeederConfig holds the configuration for the Seeder.
type SeederConfig struct {
	Logger   *slog.Logger
	Store    store.Store
	Profiles []generator.Profile

	// Optional metrics.
	Metrics *metrics.ProducerMetrics

	RecordsPerArea int

	// Seed fixes the generated values. Zero picks a random seed.
	Seed uint64

	// Now stamps the end of the generated history. Defaults to time.Now.
	Now func() time.Time
}

// Seeder replaces the store contents with simulated history.
type Seeder struct {
	config *SeederConfig
	now    func() time.Time
}

// NewSeeder creates a new Seeder.
func NewSeeder(cfg *SeederConfig) (*Seeder, error) {
	if cfg == nil {
		return nil, errors.New("seeder config cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if cfg.Store == nil {
		return nil, errors.New("store cannot be nil")
	}

	if len(cfg.Profiles) == 0 {
		return nil, errors.New("at least one profile is required")
	}

	if cfg.RecordsPerArea < 0 {
		return nil, errors.New("records per area cannot be negative")
	}

	if cfg.RecordsPerArea == 0 {
		cfg.RecordsPerArea = DefaultRecordsPerArea
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Seeder{config: cfg, now: now}, nil
}

// Seed clears the store and writes RecordsPerArea readings for every profile.
// It returns the number of readings written.
func (s *Seeder) Seed(ctx context.Context) (int, error) {
	logger := s.config.Logger

	logger.Info("clearing reading store before seeding")
	if err := s.config.Store.Clear(ctx); err != nil {
		return 0, fmt.Errorf("failed to clear store: %w", err)
	}

	end := s.now()
	written := 0
	for i, profile := range s.config.Profiles {
		area, err := water.NewAreaID(profile.Area)
		if err != nil {
			return written, fmt.Errorf("profile %q: %w", profile.Area, err)
		}

		seed := s.config.Seed
		if seed != 0 {
			seed += uint64(i)
		}
		history := generator.NewReadingGenerator(profile, seed).History(end, s.config.RecordsPerArea)

		for _, r := range history {
			if err := ctx.Err(); err != nil {
				return written, err
			}

			key := water.StorageKey(r.Timestamp.Time, 0)
			if err := s.config.Store.Put(ctx, area, key, r); err != nil {
				return written, fmt.Errorf("failed to write reading for %s: %w", profile.Area, err)
			}
			written++
		}

		if s.config.Metrics != nil {
			s.config.Metrics.ReadingsSeeded.WithLabelValues(profile.Area).Add(float64(len(history)))
		}

		logger.Info("seeded area", "area", profile.Area, "records", len(history))
	}

	logger.Info("seeding complete", "records", written, "areas", len(s.config.Profiles))
	return written, nil
}
