package models

import "time"

// AdCreative is an advertisement that can be rendered in a named position
// (header, sidebar, content, footer). Creatives are owned by the ad management
// screens; this service only reads them and counts events against their IDs.
type AdCreative struct {
	ID       string `json:"id"`
	Position string `json:"position"`
	Title    string `json:"title"`
	ImageURL string `json:"image_url"`
	// LinkURL is where a click on the creative sends the visitor. Optional.
	LinkURL string `json:"link_url,omitempty"`
	Active  bool   `json:"active"`
	// Weight is the share of deliveries the creative should get relative to
	// the other active creatives in the same position. Must be positive.
	Weight    float64   `json:"weight"`
	CreatedAt time.Time `json:"created_at"`
}

// Eligible reports whether the creative may be served at all.
func (a AdCreative) Eligible() bool {
	return a.Active && a.Weight > 0
}

// AdResponse is returned to the page render for a selected creative.
type AdResponse struct {
	ID       string `json:"id"`
	Position string `json:"position"`
	Title    string `json:"title"`
	ImageURL string `json:"image_url"`
	// ClickURL is the signed tracking URL the page should link to.
	ClickURL string `json:"click_url"`
}
