package buyer

import (
	"time"

	"github.com/google/uuid"

	"github.com/homereach/lead-exchange-backend/internal/domain/values"
)

// ZipCoverage declares that a buyer accepts a service type in one zip
// code. Priority ranks buyers competing for the same zip: lower wins.
type ZipCoverage struct {
	ID            uuid.UUID `json:"id"`
	BuyerID       uuid.UUID `json:"buyer_id"`
	ServiceTypeID string    `json:"service_type_id"`
	ZipCode       string    `json:"zip_code"`
	Priority      int       `json:"priority"`
	Active        bool      `json:"active"`

	// Per-zip overrides of the service config
	MinBid         *values.Money `json:"min_bid,omitempty"`
	MaxBid         *values.Money `json:"max_bid,omitempty"`
	MaxLeadsPerDay *int          `json:"max_leads_per_day,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DailyLimit returns the per-zip volume cap when set, falling back to
// the config-level restriction
func (z *ZipCoverage) DailyLimit(config *ServiceConfig) int {
	if z.MaxLeadsPerDay != nil {
		return *z.MaxLeadsPerDay
	}
	if config != nil {
		return config.Restrictions.DailyLimit()
	}
	return 0
}
