package models

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when an entity is not found in a repository.
var ErrNotFound = errors.New("entity not found")

// ContentRepository supplies post and category metadata. Implementations
// must be safe for concurrent use.
type ContentRepository interface {
	// ListPublished returns published posts matching filter.
	ListPublished(ctx context.Context, filter ContentFilter) ([]ContentItem, error)
	// ListCategories returns every category.
	ListCategories(ctx context.Context) ([]Category, error)
	// CountAll counts posts created at or after since, drafts included.
	CountAll(ctx context.Context, since time.Time) (int, error)
	// ListRecent returns the most recently created posts, drafts included.
	ListRecent(ctx context.Context, limit int) ([]ContentItem, error)
}

// AdRepository supplies ad creative metadata.
type AdRepository interface {
	// ListActive returns active creatives configured for position.
	ListActive(ctx context.Context, position string) ([]AdCreative, error)
	// ListAll returns every creative, active or not.
	ListAll(ctx context.Context) ([]AdCreative, error)
}
