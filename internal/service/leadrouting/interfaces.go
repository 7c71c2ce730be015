package leadrouting

import (
	"context"

	"github.com/homereach/lead-exchange-backend/internal/domain/bid"
	"github.com/homereach/lead-exchange-backend/internal/domain/lead"
	"github.com/homereach/lead-exchange-backend/internal/service/auction"
)

// LeadStore persists intake leads and settles their terminal status.
// CreateIfAbsent reports whether the row was created; false means the
// lead was seen before, which is normal on queue redelivery.
type LeadStore interface {
	CreateIfAbsent(ctx context.Context, l *lead.Lead) (bool, error)
	GetByID(ctx context.Context, leadID string) (*lead.Lead, error)
	UpdateStatusIfIn(ctx context.Context, leadID string, allowed []lead.Status, to lead.Status) (bool, error)
}

// Engine auctions one lead
type Engine interface {
	Run(ctx context.Context, l *lead.Lead, cfg auction.Config) (*bid.Result, error)
}
