package fixtures

import (
	"encoding/json"
	"testing"

	"github.com/homereach/lead-exchange-backend/internal/domain/buyer"
	"github.com/homereach/lead-exchange-backend/internal/domain/lead"
	"github.com/homereach/lead-exchange-backend/internal/testutil"
)

// TestDataSet provides a complete set of test data with proper relationships
type TestDataSet struct {
	// Buyers that coverage, configs, and transactions reference
	NetworkBuyer *buyer.Buyer
	Contractor   *buyer.Buyer

	// The network buyer's roofing setup
	Config   *buyer.ServiceConfig
	Coverage *buyer.ZipCoverage

	// A pending roofing lead in the covered zip
	Lead *lead.Lead
}

// CreateMinimalTestSet seeds one network buyer with roofing coverage in
// 94110 plus one pending lead there
func CreateMinimalTestSet(t *testing.T, db *testutil.TestDB) *TestDataSet {
	t.Helper()

	networkBuyer := NewBuyerBuilder(t).Build()
	InsertBuyer(t, db, networkBuyer)

	config := NewServiceConfigBuilder(t, networkBuyer.ID).Build()
	InsertServiceConfig(t, db, config)

	coverage := NewZipCoverageBuilder(t, networkBuyer.ID).WithPriority(10).Build()
	InsertZipCoverage(t, db, coverage)

	l := NewLeadBuilder(t).Build()
	InsertLead(t, db, l)

	return &TestDataSet{
		NetworkBuyer: networkBuyer,
		Config:       config,
		Coverage:     coverage,
		Lead:         l,
	}
}

// CreateCompleteTestSet adds a contractor with email and dashboard
// channels covering the same zip at a closer priority
func CreateCompleteTestSet(t *testing.T, db *testutil.TestDB) *TestDataSet {
	t.Helper()

	testData := CreateMinimalTestSet(t, db)

	contractor := NewContractorBuilder(t).
		WithEmailChannel(GenerateEmail(t, "contractor")).
		Build()
	InsertBuyer(t, db, contractor)

	contractorCoverage := NewZipCoverageBuilder(t, contractor.ID).WithPriority(5).Build()
	InsertZipCoverage(t, db, contractorCoverage)

	testData.Contractor = contractor
	return testData
}

// WithMinimalData runs a test function with minimal test data
func WithMinimalData(t *testing.T, db *testutil.TestDB, fn func(*TestDataSet)) {
	t.Helper()

	db.TruncateTables()
	testData := CreateMinimalTestSet(t, db)
	fn(testData)
}

// WithTestData runs a test function with a complete test data set
func WithTestData(t *testing.T, db *testutil.TestDB, fn func(*TestDataSet)) {
	t.Helper()

	db.TruncateTables()
	testData := CreateCompleteTestSet(t, db)
	fn(testData)
}

// InsertLead inserts a lead row directly, bypassing the repository
func InsertLead(t *testing.T, db *testutil.TestDB, l *lead.Lead) {
	t.Helper()

	dataJSON, err := json.Marshal(l.Data)
	if err != nil {
		t.Fatalf("failed to marshal lead data: %v", err)
	}

	_, err = db.DB().Exec(`
		INSERT INTO leads (id, service_type_id, zip_code, state, city, source,
			first_name, last_name, email, phone, owns_home, timeframe,
			trusted_form_cert_id, jornaya_lead_id, tcpa_consent, data, status,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	`, l.ID, l.ServiceTypeID, l.ZipCode, l.State, l.City, l.Source,
		l.Contact.FirstName, l.Contact.LastName, l.Contact.Email.String(), l.Contact.Phone.String(),
		l.OwnsHome, l.Timeframe, l.TrustedFormCertID, l.JornayaLeadID, l.TCPAConsent,
		dataJSON, l.Status.String(), l.CreatedAt, l.UpdatedAt)

	if err != nil {
		t.Fatalf("failed to insert test lead: %v", err)
	}
}

// InsertBuyer inserts a buyer row directly, bypassing the repository.
// Auth columns keep their defaults.
func InsertBuyer(t *testing.T, db *testutil.TestDB, b *buyer.Buyer) {
	t.Helper()

	var fixedPrice interface{}
	if b.FixedLeadPrice != nil {
		fixedPrice = b.FixedLeadPrice.String()
	}

	_, err := db.DB().Exec(`
		INSERT INTO buyers (id, name, type, active, ping_url, post_url,
			pricing_model, fixed_lead_price, delivery_mode, max_shared_leads,
			notify_email, notify_webhook, notify_dashboard,
			contact_email, webhook_url, webhook_secret,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`, b.ID, b.Name, b.Type.String(), b.Active, b.PingURL, b.PostURL,
		b.PricingModel.String(), fixedPrice, b.DeliveryMode.String(), b.MaxSharedLeads,
		b.NotifyEmail, b.NotifyWebhook, b.NotifyDashboard,
		b.ContactEmail.String(), b.WebhookURL, b.WebhookSecret,
		b.CreatedAt, b.UpdatedAt)

	if err != nil {
		t.Fatalf("failed to insert test buyer: %v", err)
	}
}

// InsertServiceConfig inserts a service config row directly
func InsertServiceConfig(t *testing.T, db *testutil.TestDB, c *buyer.ServiceConfig) {
	t.Helper()

	pingJSON, err := json.Marshal(c.PingTemplate)
	if err != nil {
		t.Fatalf("failed to marshal ping template: %v", err)
	}
	postJSON, err := json.Marshal(c.PostTemplate)
	if err != nil {
		t.Fatalf("failed to marshal post template: %v", err)
	}

	var mappingsJSON interface{}
	if len(c.FieldMappings) > 0 {
		raw, err := json.Marshal(c.FieldMappings)
		if err != nil {
			t.Fatalf("failed to marshal field mappings: %v", err)
		}
		mappingsJSON = raw
	}

	var restrictionsJSON interface{}
	if c.Restrictions != nil {
		raw, err := json.Marshal(c.Restrictions)
		if err != nil {
			t.Fatalf("failed to marshal restrictions: %v", err)
		}
		restrictionsJSON = raw
	}

	var minBid, maxBid interface{}
	if c.MinBid != nil {
		minBid = c.MinBid.String()
	}
	if c.MaxBid != nil {
		maxBid = c.MaxBid.String()
	}

	_, err = db.DB().Exec(`
		INSERT INTO buyer_service_configs (id, buyer_id, service_type_id, active,
			ping_template, post_template, field_mappings, min_bid, max_bid, restrictions,
			require_trusted_form, require_jornaya, require_tcpa_consent, bid_field,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`, c.ID, c.BuyerID, c.ServiceTypeID, c.Active,
		pingJSON, postJSON, mappingsJSON, minBid, maxBid, restrictionsJSON,
		c.RequireTrustedForm, c.RequireJornaya, c.RequireTCPAConsent, c.BidField,
		c.CreatedAt, c.UpdatedAt)

	if err != nil {
		t.Fatalf("failed to insert test service config: %v", err)
	}
}

// InsertZipCoverage inserts a zip coverage row directly
func InsertZipCoverage(t *testing.T, db *testutil.TestDB, z *buyer.ZipCoverage) {
	t.Helper()

	var minBid, maxBid interface{}
	if z.MinBid != nil {
		minBid = z.MinBid.String()
	}
	if z.MaxBid != nil {
		maxBid = z.MaxBid.String()
	}

	_, err := db.DB().Exec(`
		INSERT INTO buyer_service_zip_codes (id, buyer_id, service_type_id, zip_code,
			priority, active, min_bid, max_bid, max_leads_per_day, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, z.ID, z.BuyerID, z.ServiceTypeID, z.ZipCode,
		z.Priority, z.Active, minBid, maxBid, z.MaxLeadsPerDay, z.CreatedAt, z.UpdatedAt)

	if err != nil {
		t.Fatalf("failed to insert test zip coverage: %v", err)
	}
}
