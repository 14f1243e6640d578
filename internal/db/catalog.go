package db

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/patrickwarner/portalmetrics/internal/models"
)

// AdLoader loads the full set of creatives from the system of record.
type AdLoader interface {
	LoadAds(ctx context.Context) ([]models.AdCreative, error)
}

// adSnapshot is an immutable view of the creatives, indexed for the render path.
type adSnapshot struct {
	all        []models.AdCreative
	byID       map[string]models.AdCreative
	byPosition map[string][]models.AdCreative // active only, oldest first
	loadedAt   time.Time
}

// AdCatalog serves creative metadata from memory and swaps in a fresh
// snapshot on Reload. Readers never block on a reload.
type AdCatalog struct {
	loader AdLoader
	data   atomic.Pointer[adSnapshot]
	// reloadMu serializes reloads; readers never take it.
	reloadMu sync.Mutex
}

// NewAdCatalog returns an empty catalog backed by loader.
func NewAdCatalog(loader AdLoader) *AdCatalog {
	c := &AdCatalog{loader: loader}
	c.data.Store(buildSnapshot(nil))
	return c
}

// Reload fetches all creatives from the loader and atomically replaces the
// snapshot. On error the previous snapshot stays in place.
func (c *AdCatalog) Reload(ctx context.Context) error {
	c.reloadMu.Lock()
	defer c.reloadMu.Unlock()

	if c.loader == nil {
		return fmt.Errorf("ad loader not configured")
	}
	ads, err := c.loader.LoadAds(ctx)
	if err != nil {
		return fmt.Errorf("load ads: %w", err)
	}
	c.data.Store(buildSnapshot(ads))
	return nil
}

// Set replaces the catalog contents directly. Used by tests and tools.
func (c *AdCatalog) Set(ads []models.AdCreative) {
	c.data.Store(buildSnapshot(ads))
}

func buildSnapshot(ads []models.AdCreative) *adSnapshot {
	s := &adSnapshot{
		all:        make([]models.AdCreative, len(ads)),
		byID:       make(map[string]models.AdCreative, len(ads)),
		byPosition: make(map[string][]models.AdCreative),
		loadedAt:   time.Now(),
	}
	copy(s.all, ads)
	for _, ad := range ads {
		s.byID[ad.ID] = ad
		if ad.Active {
			s.byPosition[ad.Position] = append(s.byPosition[ad.Position], ad)
		}
	}
	for pos := range s.byPosition {
		list := s.byPosition[pos]
		sort.Slice(list, func(i, j int) bool {
			if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
				return list[i].CreatedAt.Before(list[j].CreatedAt)
			}
			return list[i].ID < list[j].ID
		})
	}
	return s
}

// ListActive returns a copy of the active creatives for position.
func (c *AdCatalog) ListActive(_ context.Context, position string) ([]models.AdCreative, error) {
	list := c.data.Load().byPosition[position]
	if len(list) == 0 {
		return nil, nil
	}
	out := make([]models.AdCreative, len(list))
	copy(out, list)
	return out, nil
}

// ListAll returns a copy of every creative.
func (c *AdCatalog) ListAll(_ context.Context) ([]models.AdCreative, error) {
	all := c.data.Load().all
	out := make([]models.AdCreative, len(all))
	copy(out, all)
	return out, nil
}

// Find returns the creative with the given id.
func (c *AdCatalog) Find(id string) (models.AdCreative, bool) {
	ad, ok := c.data.Load().byID[id]
	return ad, ok
}

// LoadedAt reports when the current snapshot was built.
func (c *AdCatalog) LoadedAt() time.Time {
	return c.data.Load().loadedAt
}

// Len returns the number of creatives in the current snapshot.
func (c *AdCatalog) Len() int {
	return len(c.data.Load().all)
}
