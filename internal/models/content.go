package models

import "time"

// ContentItem is the read-only view of a post that the reporting core needs.
// Posts are created and edited by the content management side of the portal.
type ContentItem struct {
	ID string `json:"id"`
	// CategoryID is empty for posts that were never assigned a category.
	CategoryID string    `json:"category_id,omitempty"`
	Title      string    `json:"title"`
	Published  bool      `json:"published"`
	CreatedAt  time.Time `json:"created_at"`
}

// Category groups posts on the portal. Name and Color are only used to
// decorate report rows.
type Category struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

// ContentFilter narrows ListPublished results.
type ContentFilter struct {
	// Since excludes posts created before it. The zero value disables the bound.
	Since time.Time
	// CategoryID restricts results to one category when non-nil. A pointer to
	// the empty string selects uncategorized posts.
	CategoryID *string
	// ExcludeCategories drops posts filed under any of these ids. Uncategorized
	// posts always pass. Ignored when CategoryID is set.
	ExcludeCategories []string
}

// ForCategory returns a copy of f restricted to categoryID.
func (f ContentFilter) ForCategory(categoryID string) ContentFilter {
	id := categoryID
	f.CategoryID = &id
	return f
}

// OutsideCategories returns a copy of f matching uncategorized posts and posts
// whose category is not one of ids.
func (f ContentFilter) OutsideCategories(ids []string) ContentFilter {
	f.CategoryID = nil
	f.ExcludeCategories = append([]string{}, ids...)
	return f
}

// Matches reports whether a published item passes f.
func (f ContentFilter) Matches(it ContentItem) bool {
	if !f.Since.IsZero() && it.CreatedAt.Before(f.Since) {
		return false
	}
	if f.CategoryID != nil {
		return it.CategoryID == *f.CategoryID
	}
	if it.CategoryID == "" {
		return true
	}
	for _, id := range f.ExcludeCategories {
		if it.CategoryID == id {
			return false
		}
	}
	return true
}
