package db

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/patrickwarner/portalmetrics/internal/models"
)

// MemoryContent is an in-process ContentRepository. It backs local runs
// without Postgres and the package tests of the reporting layer.
type MemoryContent struct {
	mu         sync.RWMutex
	posts      []models.ContentItem
	categories []models.Category
}

// NewMemoryContent returns a repository holding copies of posts and categories.
func NewMemoryContent(posts []models.ContentItem, categories []models.Category) *MemoryContent {
	m := &MemoryContent{}
	m.Replace(posts, categories)
	return m
}

// Replace swaps the repository contents.
func (m *MemoryContent) Replace(posts []models.ContentItem, categories []models.Category) {
	p := append([]models.ContentItem(nil), posts...)
	c := append([]models.Category(nil), categories...)
	sort.Slice(c, func(i, j int) bool { return c[i].ID < c[j].ID })

	m.mu.Lock()
	m.posts = p
	m.categories = c
	m.mu.Unlock()
}

func (m *MemoryContent) ListPublished(ctx context.Context, filter models.ContentFilter) ([]models.ContentItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.ContentItem
	for _, it := range m.posts {
		if !it.Published {
			continue
		}
		if !filter.Matches(it) {
			continue
		}
		out = append(out, it)
	}
	return out, nil
}

func (m *MemoryContent) ListCategories(ctx context.Context) ([]models.Category, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.Category(nil), m.categories...), nil
}

func (m *MemoryContent) CountAll(ctx context.Context, since time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, it := range m.posts {
		if since.IsZero() || !it.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (m *MemoryContent) ListRecent(ctx context.Context, limit int) ([]models.ContentItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	out := append([]models.ContentItem(nil), m.posts...)
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit >= 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
