package buyer

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/homereach/lead-exchange-backend/internal/domain/values"
)

// ServiceConfig holds a buyer's settings for one service type: the
// payload templates, bid band, delivery restrictions, and compliance
// requirements.
type ServiceConfig struct {
	ID            uuid.UUID `json:"id"`
	BuyerID       uuid.UUID `json:"buyer_id"`
	ServiceTypeID string    `json:"service_type_id"`
	Active        bool      `json:"active"`

	PingTemplate  Template       `json:"ping_template"`
	PostTemplate  Template       `json:"post_template"`
	FieldMappings []FieldMapping `json:"field_mappings,omitempty"`

	// Bid band. Either both bounds are set or neither is.
	MinBid *values.Money `json:"min_bid,omitempty"`
	MaxBid *values.Money `json:"max_bid,omitempty"`

	Restrictions *Restrictions `json:"restrictions,omitempty"`

	// Compliance requirements checked during eligibility
	RequireTrustedForm bool `json:"require_trusted_form"`
	RequireJornaya     bool `json:"require_jornaya"`
	RequireTCPAConsent bool `json:"require_tcpa_consent"`

	// BidField overrides the parser's probe list when the network names
	// its bid amount field unconventionally
	BidField string `json:"bid_field,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Template shapes an outbound PING or POST request
type Template struct {
	Method      string `json:"method,omitempty"`       // defaults to POST
	ContentType string `json:"content_type,omitempty"` // defaults to application/json

	// StaticFields are constants merged into every payload, such as
	// campaign or source codes the network assigned at onboarding
	StaticFields map[string]string `json:"static_fields,omitempty"`
}

// FieldMapping projects one lead field into the buyer's payload.
// ValueMap rewrites canonical domain values into the buyer's expected
// wire values before transforms run.
type FieldMapping struct {
	SourceField string            `json:"source_field"`
	TargetField string            `json:"target_field"`
	ValueMap    map[string]string `json:"value_map,omitempty"`
	Transforms  []string          `json:"transforms,omitempty"`
}

// Restrictions narrow when and where a buyer accepts leads
type Restrictions struct {
	Geo             *GeoRestriction `json:"geo,omitempty"`
	TimeWindows     []TimeWindow    `json:"time_windows,omitempty"`
	LeadVolumeLimit *int            `json:"lead_volume_limit,omitempty"` // successful POSTs per day
}

type GeoRestrictionType string

const (
	GeoInclude GeoRestrictionType = "include"
	GeoExclude GeoRestrictionType = "exclude"
)

type GeoRestriction struct {
	Type     GeoRestrictionType `json:"type"`
	ZipCodes []string           `json:"zip_codes"`
}

// Allows reports whether the restriction permits the given zip code
func (g *GeoRestriction) Allows(zipCode string) bool {
	inList := false
	for _, z := range g.ZipCodes {
		if z == zipCode {
			inList = true
			break
		}
	}

	if g.Type == GeoExclude {
		return !inList
	}
	return inList
}

// TimeWindow is a recurring weekly acceptance window
type TimeWindow struct {
	Days      []string `json:"days"`       // weekday names, case-insensitive
	StartHour int      `json:"start_hour"` // inclusive, 0-23
	EndHour   int      `json:"end_hour"`   // exclusive, 1-24
	Timezone  string   `json:"timezone,omitempty"`
}

// Contains reports whether t falls inside the window. The window's
// timezone applies when set; otherwise t's location is used.
func (w TimeWindow) Contains(t time.Time) bool {
	if w.Timezone != "" {
		if loc, err := time.LoadLocation(w.Timezone); err == nil {
			t = t.In(loc)
		}
	}

	dayMatch := len(w.Days) == 0
	for _, day := range w.Days {
		if matchWeekday(day, t.Weekday()) {
			dayMatch = true
			break
		}
	}
	if !dayMatch {
		return false
	}

	hour := t.Hour()
	return hour >= w.StartHour && hour < w.EndHour
}

// matchWeekday accepts full names ("monday") and three-letter
// abbreviations ("mon")
func matchWeekday(name string, day time.Weekday) bool {
	if len(name) < 3 {
		return false
	}
	want := day.String()
	if len(name) == 3 {
		return strings.EqualFold(name, want[:3])
	}
	return strings.EqualFold(name, want)
}

func NewServiceConfig(buyerID uuid.UUID, serviceTypeID string) (*ServiceConfig, error) {
	if buyerID == uuid.Nil {
		return nil, fmt.Errorf("buyer ID cannot be nil")
	}

	if serviceTypeID == "" {
		return nil, fmt.Errorf("service type ID cannot be empty")
	}

	now := time.Now()
	return &ServiceConfig{
		ID:            uuid.New(),
		BuyerID:       buyerID,
		ServiceTypeID: serviceTypeID,
		Active:        true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// SetBidBand sets the bid bounds together, enforcing min < max
func (c *ServiceConfig) SetBidBand(minBid, maxBid values.Money) error {
	if !minBid.LessThan(maxBid) {
		return fmt.Errorf("min bid %s must be below max bid %s", minBid, maxBid)
	}

	c.MinBid = &minBid
	c.MaxBid = &maxBid
	c.UpdatedAt = time.Now()
	return nil
}

// Validate checks config invariants after loading from storage
func (c *ServiceConfig) Validate() error {
	if (c.MinBid == nil) != (c.MaxBid == nil) {
		return fmt.Errorf("bid band must set both bounds or neither")
	}

	if c.MinBid != nil && !c.MinBid.LessThan(*c.MaxBid) {
		return fmt.Errorf("min bid %s must be below max bid %s", c.MinBid, c.MaxBid)
	}

	for _, w := range c.Restrictions.timeWindows() {
		if w.StartHour < 0 || w.StartHour > 23 || w.EndHour < 1 || w.EndHour > 24 || w.StartHour >= w.EndHour {
			return fmt.Errorf("invalid time window %d-%d", w.StartHour, w.EndHour)
		}
	}

	return nil
}

func (r *Restrictions) timeWindows() []TimeWindow {
	if r == nil {
		return nil
	}
	return r.TimeWindows
}

// WithinHours reports whether now falls inside any configured time
// window. No windows means always open.
func (r *Restrictions) WithinHours(now time.Time) bool {
	if r == nil || len(r.TimeWindows) == 0 {
		return true
	}

	for _, w := range r.TimeWindows {
		if w.Contains(now) {
			return true
		}
	}
	return false
}

// AllowsZip reports whether geo restrictions permit the zip code
func (r *Restrictions) AllowsZip(zipCode string) bool {
	if r == nil || r.Geo == nil {
		return true
	}
	return r.Geo.Allows(zipCode)
}

// DailyLimit returns the configured volume cap, or 0 for unlimited
func (r *Restrictions) DailyLimit() int {
	if r == nil || r.LeadVolumeLimit == nil {
		return 0
	}
	return *r.LeadVolumeLimit
}
