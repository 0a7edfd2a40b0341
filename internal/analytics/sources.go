package analytics

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/cenkalti/backoff/v4"

	"procodus.dev/hardwater/pkg/water"
)

// Source names tagged on forecasts.
const (
	SourceReal      = "real"
	SourceSynthetic = "synthetic"
)

const (
	defaultRemoteAttempts = 3
	defaultRemoteInterval = 500 * time.Millisecond
)

var errEmptyHistory = errors.New("data API returned no history")

// Sample is one TDS observation.
type Sample struct {
	Time time.Time
	TDS  float64
}

// HistorySource supplies TDS history for the forecast engine.
type HistorySource interface {
	Name() string
	Fetch(ctx context.Context, area string, limit int) ([]Sample, error)
}

// RemoteHistorySource reads history from the data API, retrying with
// exponential backoff. An empty answer counts as a failed attempt.
type RemoteHistorySource struct {
	logger   *slog.Logger
	upstream Upstream
	attempts int
	interval time.Duration
}

// NewRemoteHistorySource creates a source making three attempts, 500ms apart
// and doubling.
func NewRemoteHistorySource(logger *slog.Logger, upstream Upstream) *RemoteHistorySource {
	return &RemoteHistorySource{
		logger:   logger,
		upstream: upstream,
		attempts: defaultRemoteAttempts,
		interval: defaultRemoteInterval,
	}
}

// WithRetry overrides the attempt budget and the first backoff interval.
func (s *RemoteHistorySource) WithRetry(attempts int, interval time.Duration) *RemoteHistorySource {
	if attempts > 0 {
		s.attempts = attempts
	}
	if interval > 0 {
		s.interval = interval
	}
	return s
}

// Name implements HistorySource.
func (s *RemoteHistorySource) Name() string { return SourceReal }

// Fetch implements HistorySource.
func (s *RemoteHistorySource) Fetch(ctx context.Context, area string, limit int) ([]Sample, error) {
	var samples []Sample
	attempt := 0

	operation := func() error {
		attempt++
		s.logger.Debug("fetching history from data API", "area", area, "attempt", attempt, "max_attempts", s.attempts)

		history, err := s.upstream.History(ctx, area, limit)
		if err != nil {
			if errors.Is(err, water.ErrValidation) || errors.Is(err, water.ErrAuthentication) {
				return backoff.Permanent(err)
			}
			s.logger.Warn("history request failed", "area", area, "attempt", attempt, "error", err)
			return err
		}

		if len(history.Data) == 0 {
			s.logger.Info("data API returned no history", "area", area, "attempt", attempt)
			return errEmptyHistory
		}

		samples = make([]Sample, 0, len(history.Data))
		for _, r := range history.Data {
			samples = append(samples, Sample{Time: r.Timestamp.Time, TDS: r.TDS})
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.interval
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(s.attempts-1)), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, fmt.Errorf("history for %s unavailable after %d attempts: %w", area, attempt, err)
	}

	s.logger.Info("using real history", "area", area, "records", len(samples))
	return samples, nil
}

// SyntheticHistorySource generates a plausible, slightly rising TDS series.
// The noise is seeded from the area name so a given area always gets the same
// values.
type SyntheticHistorySource struct {
	catalog *Catalog
	now     func() time.Time
}

// NewSyntheticHistorySource creates a synthetic source. now defaults to
// time.Now.
func NewSyntheticHistorySource(catalog *Catalog, now func() time.Time) *SyntheticHistorySource {
	if now == nil {
		now = time.Now
	}
	return &SyntheticHistorySource{catalog: catalog, now: now}
}

// Name implements HistorySource.
func (s *SyntheticHistorySource) Name() string { return SourceSynthetic }

// Fetch implements HistorySource. Points are one day apart and end now.
func (s *SyntheticHistorySource) Fetch(_ context.Context, area string, limit int) ([]Sample, error) {
	if limit <= 0 {
		return nil, water.Errorf(water.ErrValidation, "limit must be positive")
	}

	idx := 0
	if s.catalog != nil {
		if i := s.catalog.Index(area); i >= 0 {
			idx = i
		}
	}
	base := 350 + float64((idx*50)%200)

	h := fnv.New64a()
	_, _ = h.Write([]byte(area))
	rng := rand.New(rand.NewPCG(h.Sum64(), 0))

	now := s.now().UTC().Truncate(time.Second)
	samples := make([]Sample, limit)
	for i := range limit {
		value := base + (rng.Float64()*20 - 10) + float64(i)/10*5
		samples[i] = Sample{
			Time: now.AddDate(0, 0, -(limit - 1 - i)),
			TDS:  water.Round2(value),
		}
	}
	return samples, nil
}
