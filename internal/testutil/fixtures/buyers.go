package fixtures

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/homereach/lead-exchange-backend/internal/domain/buyer"
	"github.com/homereach/lead-exchange-backend/internal/domain/values"
)

// GenerateEmail generates a unique test email address
func GenerateEmail(t *testing.T, prefix string) string {
	t.Helper()
	return prefix + "-" + uuid.New().String()[:8] + "@example.com"
}

// BuyerBuilder builds test Buyer entities
type BuyerBuilder struct {
	t          *testing.T
	name       string
	buyerType  buyer.Type
	active     bool
	pingURL    string
	postURL    string
	auth       buyer.AuthConfig
	pricing    buyer.PricingModel
	fixedPrice string
	delivery   buyer.DeliveryMode
	maxShared  int
	email      string
	webhookURL string
	secret     string
	dashboard  bool
}

// NewBuyerBuilder creates a new BuyerBuilder defaulting to an active
// network buyer with PING/POST endpoints
func NewBuyerBuilder(t *testing.T) *BuyerBuilder {
	t.Helper()

	return &BuyerBuilder{
		t:         t,
		name:      "Test Network",
		buyerType: buyer.TypeNetwork,
		active:    true,
		pingURL:   "https://network.example.com/ping",
		postURL:   "https://network.example.com/post",
	}
}

// NewContractorBuilder creates a BuyerBuilder defaulting to a contractor
// with a fixed price and the dashboard channel enabled
func NewContractorBuilder(t *testing.T) *BuyerBuilder {
	t.Helper()

	return &BuyerBuilder{
		t:          t,
		name:       "Test Contractor",
		buyerType:  buyer.TypeContractor,
		active:     true,
		pricing:    buyer.PricingFixed,
		fixedPrice: "55.00",
		delivery:   buyer.DeliveryExclusive,
		dashboard:  true,
	}
}

// WithName sets the buyer name
func (b *BuyerBuilder) WithName(name string) *BuyerBuilder {
	b.name = name
	return b
}

// WithEndpoints sets the PING and POST URLs
func (b *BuyerBuilder) WithEndpoints(pingURL, postURL string) *BuyerBuilder {
	b.pingURL = pingURL
	b.postURL = postURL
	return b
}

// WithAuth sets the outbound auth config
func (b *BuyerBuilder) WithAuth(auth buyer.AuthConfig) *BuyerBuilder {
	b.auth = auth
	return b
}

// WithInactive marks the buyer inactive
func (b *BuyerBuilder) WithInactive() *BuyerBuilder {
	b.active = false
	return b
}

// WithPricing sets the contractor pricing model and fixed price
func (b *BuyerBuilder) WithPricing(model buyer.PricingModel, fixedPrice string) *BuyerBuilder {
	b.pricing = model
	b.fixedPrice = fixedPrice
	return b
}

// WithSharedDelivery switches the contractor to shared delivery with the
// given slot count
func (b *BuyerBuilder) WithSharedDelivery(maxShared int) *BuyerBuilder {
	b.delivery = buyer.DeliveryShared
	b.maxShared = maxShared
	return b
}

// WithEmailChannel enables email notification to the given address
func (b *BuyerBuilder) WithEmailChannel(address string) *BuyerBuilder {
	b.email = address
	return b
}

// WithWebhookChannel enables webhook notification
func (b *BuyerBuilder) WithWebhookChannel(url, secret string) *BuyerBuilder {
	b.webhookURL = url
	b.secret = secret
	return b
}

// WithDashboardChannel enables dashboard notification
func (b *BuyerBuilder) WithDashboardChannel() *BuyerBuilder {
	b.dashboard = true
	return b
}

// Build creates the Buyer entity
func (b *BuyerBuilder) Build() *buyer.Buyer {
	b.t.Helper()

	built, err := buyer.NewBuyer(b.name, b.buyerType)
	require.NoError(b.t, err)

	built.Active = b.active
	built.PingURL = b.pingURL
	built.PostURL = b.postURL
	built.Auth = b.auth
	built.PricingModel = b.pricing
	built.DeliveryMode = b.delivery
	built.MaxSharedLeads = b.maxShared
	built.WebhookURL = b.webhookURL
	built.WebhookSecret = b.secret
	built.NotifyWebhook = b.webhookURL != ""
	built.NotifyDashboard = b.dashboard

	if b.fixedPrice != "" {
		price, err := values.NewMoneyFromString(b.fixedPrice)
		require.NoError(b.t, err)
		built.FixedLeadPrice = &price
	}

	if b.email != "" {
		email, err := values.NewEmail(b.email)
		require.NoError(b.t, err)
		built.ContactEmail = email
		built.NotifyEmail = true
	}

	return built
}

// ServiceConfigBuilder builds test ServiceConfig entities
type ServiceConfigBuilder struct {
	t             *testing.T
	buyerID       uuid.UUID
	serviceTypeID string
	active        bool
	minBid        string
	maxBid        string
	pingTemplate  buyer.Template
	postTemplate  buyer.Template
	mappings      []buyer.FieldMapping
	restrictions  *buyer.Restrictions
	trustedForm   bool
	jornaya       bool
	tcpa          bool
	bidField      string
}

// NewServiceConfigBuilder creates a new ServiceConfigBuilder with defaults
func NewServiceConfigBuilder(t *testing.T, buyerID uuid.UUID) *ServiceConfigBuilder {
	t.Helper()

	return &ServiceConfigBuilder{
		t:             t,
		buyerID:       buyerID,
		serviceTypeID: "roofing",
		active:        true,
		minBid:        "10.00",
		maxBid:        "150.00",
	}
}

// WithServiceType sets the service type slug
func (b *ServiceConfigBuilder) WithServiceType(serviceTypeID string) *ServiceConfigBuilder {
	b.serviceTypeID = serviceTypeID
	return b
}

// WithBidBand sets the bid bounds
func (b *ServiceConfigBuilder) WithBidBand(minBid, maxBid string) *ServiceConfigBuilder {
	b.minBid = minBid
	b.maxBid = maxBid
	return b
}

// WithoutBidBand clears the bid bounds
func (b *ServiceConfigBuilder) WithoutBidBand() *ServiceConfigBuilder {
	b.minBid = ""
	b.maxBid = ""
	return b
}

// WithTemplates sets the PING and POST payload templates
func (b *ServiceConfigBuilder) WithTemplates(ping, post buyer.Template) *ServiceConfigBuilder {
	b.pingTemplate = ping
	b.postTemplate = post
	return b
}

// WithFieldMappings sets the payload field mappings
func (b *ServiceConfigBuilder) WithFieldMappings(mappings ...buyer.FieldMapping) *ServiceConfigBuilder {
	b.mappings = mappings
	return b
}

// WithRestrictions sets delivery restrictions
func (b *ServiceConfigBuilder) WithRestrictions(r *buyer.Restrictions) *ServiceConfigBuilder {
	b.restrictions = r
	return b
}

// WithCompliance sets the compliance requirements
func (b *ServiceConfigBuilder) WithCompliance(trustedForm, jornaya, tcpa bool) *ServiceConfigBuilder {
	b.trustedForm = trustedForm
	b.jornaya = jornaya
	b.tcpa = tcpa
	return b
}

// WithBidField overrides the bid amount field name
func (b *ServiceConfigBuilder) WithBidField(field string) *ServiceConfigBuilder {
	b.bidField = field
	return b
}

// WithInactive marks the config inactive
func (b *ServiceConfigBuilder) WithInactive() *ServiceConfigBuilder {
	b.active = false
	return b
}

// Build creates the ServiceConfig entity
func (b *ServiceConfigBuilder) Build() *buyer.ServiceConfig {
	b.t.Helper()

	config, err := buyer.NewServiceConfig(b.buyerID, b.serviceTypeID)
	require.NoError(b.t, err)

	config.Active = b.active
	config.PingTemplate = b.pingTemplate
	config.PostTemplate = b.postTemplate
	config.FieldMappings = b.mappings
	config.Restrictions = b.restrictions
	config.RequireTrustedForm = b.trustedForm
	config.RequireJornaya = b.jornaya
	config.RequireTCPAConsent = b.tcpa
	config.BidField = b.bidField

	if b.minBid != "" {
		minBid, err := values.NewMoneyFromString(b.minBid)
		require.NoError(b.t, err)
		maxBid, err := values.NewMoneyFromString(b.maxBid)
		require.NoError(b.t, err)
		require.NoError(b.t, config.SetBidBand(minBid, maxBid))
	}

	return config
}

// ZipCoverageBuilder builds test ZipCoverage entities
type ZipCoverageBuilder struct {
	t             *testing.T
	buyerID       uuid.UUID
	serviceTypeID string
	zipCode       string
	priority      int
	active        bool
	minBid        string
	maxBid        string
	dailyCap      *int
}

// NewZipCoverageBuilder creates a new ZipCoverageBuilder with defaults
func NewZipCoverageBuilder(t *testing.T, buyerID uuid.UUID) *ZipCoverageBuilder {
	t.Helper()

	return &ZipCoverageBuilder{
		t:             t,
		buyerID:       buyerID,
		serviceTypeID: "roofing",
		zipCode:       "94110",
		priority:      100,
		active:        true,
	}
}

// WithServiceType sets the service type slug
func (b *ZipCoverageBuilder) WithServiceType(serviceTypeID string) *ZipCoverageBuilder {
	b.serviceTypeID = serviceTypeID
	return b
}

// WithZipCode sets the covered zip code
func (b *ZipCoverageBuilder) WithZipCode(zipCode string) *ZipCoverageBuilder {
	b.zipCode = zipCode
	return b
}

// WithPriority sets the coverage priority (lower wins)
func (b *ZipCoverageBuilder) WithPriority(priority int) *ZipCoverageBuilder {
	b.priority = priority
	return b
}

// WithBidOverrides sets the per-zip bid bounds
func (b *ZipCoverageBuilder) WithBidOverrides(minBid, maxBid string) *ZipCoverageBuilder {
	b.minBid = minBid
	b.maxBid = maxBid
	return b
}

// WithDailyCap sets the per-zip daily lead cap
func (b *ZipCoverageBuilder) WithDailyCap(cap int) *ZipCoverageBuilder {
	b.dailyCap = &cap
	return b
}

// WithInactive marks the coverage inactive
func (b *ZipCoverageBuilder) WithInactive() *ZipCoverageBuilder {
	b.active = false
	return b
}

// Build creates the ZipCoverage entity
func (b *ZipCoverageBuilder) Build() *buyer.ZipCoverage {
	b.t.Helper()

	now := time.Now()
	z := &buyer.ZipCoverage{
		ID:             uuid.New(),
		BuyerID:        b.buyerID,
		ServiceTypeID:  b.serviceTypeID,
		ZipCode:        b.zipCode,
		Priority:       b.priority,
		Active:         b.active,
		MaxLeadsPerDay: b.dailyCap,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if b.minBid != "" {
		minBid, err := values.NewMoneyFromString(b.minBid)
		require.NoError(b.t, err)
		z.MinBid = &minBid
	}
	if b.maxBid != "" {
		maxBid, err := values.NewMoneyFromString(b.maxBid)
		require.NoError(b.t, err)
		z.MaxBid = &maxBid
	}

	return z
}
