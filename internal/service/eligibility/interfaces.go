package eligibility

import (
	"context"

	"github.com/google/uuid"

	"github.com/homereach/lead-exchange-backend/internal/domain/buyer"
	"github.com/homereach/lead-exchange-backend/internal/domain/values"
)

// BuyerRepository provides the buyer coverage and configuration reads
// the resolver needs
type BuyerRepository interface {
	// QueryZipCoverage returns active coverage rows for the service type
	// and zip whose buyer is active, priority ascending
	QueryZipCoverage(ctx context.Context, serviceTypeID, zipCode string) ([]*buyer.ZipCoverage, error)

	// GetBuyers loads the referenced buyers keyed by ID
	GetBuyers(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*buyer.Buyer, error)

	// GetServiceConfig loads the buyer's settings for one service type
	GetServiceConfig(ctx context.Context, buyerID uuid.UUID, serviceTypeID string) (*buyer.ServiceConfig, error)
}

// VolumeReader counts a buyer's accepted leads today for the daily cap
// filter
type VolumeReader interface {
	CountTodaySuccessfulPosts(ctx context.Context, buyerID uuid.UUID) (int, error)
}

// AcceptanceRates supplies the trailing acceptance ratio feeding the
// eligibility score. Implementations may cache; errors degrade to a
// neutral score rather than excluding the buyer.
type AcceptanceRates interface {
	AcceptanceRate(ctx context.Context, buyerID uuid.UUID) (float64, error)
}

// Query selects candidate buyers for one lead
type Query struct {
	ServiceTypeID   string        `json:"service_type_id"`
	ZipCode         string        `json:"zip_code"`
	MaxParticipants int           `json:"max_participants"`
	MinBidThreshold *values.Money `json:"min_bid_threshold,omitempty"`
	RequireMinBid   bool          `json:"require_min_bid"`
}

// EligibleBuyer is one ranked candidate with everything the auction
// engine needs to call it
type EligibleBuyer struct {
	Buyer  *buyer.Buyer         `json:"buyer"`
	Config *buyer.ServiceConfig `json:"config"`
	Zone   *buyer.ZipCoverage   `json:"zone"`
	Score  float64              `json:"eligibility_score"`
}

// Exclusion records why a covering buyer was filtered out
type Exclusion struct {
	BuyerID uuid.UUID `json:"buyer_id"`
	Reason  string    `json:"reason"`
}

// Exclusion reasons
const (
	ReasonBuyerInactive      = "buyer_inactive"
	ReasonConfigMissing      = "config_missing"
	ReasonConfigInactive     = "config_inactive"
	ReasonEndpointMissing    = "endpoint_missing"
	ReasonComplianceMissing  = "compliance_missing"
	ReasonGeoRestricted      = "geo_restricted"
	ReasonOutsideHours       = "outside_hours"
	ReasonVolumeCapReached   = "volume_cap_reached"
	ReasonBidBandBelowFloor  = "bid_band_below_minimum"
	ReasonTemplateMissing    = "template_missing"
	ReasonOverParticipantCap = "over_participant_cap"
)

// Result is the resolver outcome: ranked candidates plus the filtered
// remainder for audit
type Result struct {
	Eligible      []EligibleBuyer `json:"eligible"`
	Excluded      []Exclusion     `json:"excluded"`
	EligibleCount int             `json:"eligible_count"`
	ExcludedCount int             `json:"excluded_count"`
}

// Metrics defines the interface for eligibility metrics
type Metrics interface {
	// RecordResolution records one resolver run
	RecordResolution(ctx context.Context, serviceTypeID string, eligible, excluded int)

	// RecordFallback records a resolver run that fell back to the
	// in-memory registry after a persistence failure
	RecordFallback(ctx context.Context)
}
