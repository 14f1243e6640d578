package selectors

import (
	"context"
	"errors"

	logic "github.com/patrickwarner/portalmetrics/internal/logic"
	"github.com/patrickwarner/portalmetrics/internal/models"
)

// ErrInvalidAdID is returned by RecordClick for an empty ad id.
var ErrInvalidAdID = errors.New("invalid ad id")

// Selector picks a creative for a page position and records clicks.
type Selector interface {
	// SelectAd returns the creative to render in position, or nil when the
	// position has no eligible creative. trace may be nil.
	SelectAd(ctx context.Context, position string, trace *logic.SelectionTrace) (*models.AdCreative, error)
	// RecordClick counts a click on adID.
	RecordClick(ctx context.Context, adID string) error
}
