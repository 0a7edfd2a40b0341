package analytics

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"procodus.dev/hardwater/pkg/water"
	"procodus.dev/hardwater/pkg/waterapi"
)

// DefaultAreas is used whenever the data API cannot tell which areas exist.
var DefaultAreas = []string{"MG Road", "Jayanagar", "HSR Layout", "Whitefield", "Sarjapur", "Electronics City"}

// Upstream is the part of the data API client used by the analytics service.
type Upstream interface {
	Areas(ctx context.Context) ([]string, error)
	Latest(ctx context.Context) (map[string]water.EnrichedReading, error)
	History(ctx context.Context, area string, limit int) (waterapi.History, error)
}

// Catalog tracks the monitored areas as last reported by the data API.
type Catalog struct {
	logger   *slog.Logger
	upstream Upstream

	mu    sync.RWMutex
	known []string
}

// NewCatalog creates a Catalog seeded with DefaultAreas.
func NewCatalog(logger *slog.Logger, upstream Upstream) *Catalog {
	return &Catalog{
		logger:   logger,
		upstream: upstream,
		known:    slices.Clone(DefaultAreas),
	}
}

// Refresh asks the data API for the area list and returns it. An unreachable
// API or an empty list yields DefaultAreas.
func (c *Catalog) Refresh(ctx context.Context) []string {
	areas, err := c.upstream.Areas(ctx)
	if err != nil || len(areas) == 0 {
		if err != nil {
			c.logger.Warn("could not fetch areas from data API, using defaults", "error", err)
		}
		areas = slices.Clone(DefaultAreas)
	}

	c.mu.Lock()
	c.known = areas
	c.mu.Unlock()

	return slices.Clone(areas)
}

// Known returns the last area list without contacting the data API.
func (c *Catalog) Known() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.known)
}

// Index is the position of area in the last known list, or -1.
func (c *Catalog) Index(area string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Index(c.known, area)
}

// Resolve refreshes the list and returns the display name of area when it is
// monitored. Underscore and space spellings are equivalent.
func (c *Catalog) Resolve(ctx context.Context, area string) (string, bool) {
	id, err := water.ParseAreaID(area)
	if err != nil {
		return "", false
	}

	name := id.Display()
	if slices.Contains(c.Refresh(ctx), name) {
		return name, true
	}
	return "", false
}
