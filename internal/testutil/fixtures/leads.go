package fixtures

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/homereach/lead-exchange-backend/internal/domain/lead"
)

// LeadBuilder builds test Lead entities
type LeadBuilder struct {
	t             *testing.T
	id            string
	serviceTypeID string
	zipCode       string
	state         string
	city          string
	source        string
	firstName     string
	lastName      string
	email         string
	phone         string
	ownsHome      bool
	timeframe     string
	trustedForm   string
	jornayaID     string
	tcpaConsent   bool
	data          map[string]interface{}
	status        lead.Status
}

// NewLeadBuilder creates a new LeadBuilder with defaults
func NewLeadBuilder(t *testing.T) *LeadBuilder {
	t.Helper()

	return &LeadBuilder{
		t:             t,
		id:            "lead-" + uuid.New().String()[:8],
		serviceTypeID: "roofing",
		zipCode:       "94110",
		state:         "CA",
		city:          "San Francisco",
		source:        "web_form",
		firstName:     "Jane",
		lastName:      "Smith",
		email:         "jane.smith@example.com",
		phone:         "+14155551234",
		ownsHome:      true,
		timeframe:     "1-3_months",
		tcpaConsent:   true,
		status:        lead.StatusPending,
	}
}

// WithID sets the lead ID
func (b *LeadBuilder) WithID(id string) *LeadBuilder {
	b.id = id
	return b
}

// WithServiceType sets the service type slug
func (b *LeadBuilder) WithServiceType(serviceTypeID string) *LeadBuilder {
	b.serviceTypeID = serviceTypeID
	return b
}

// WithZipCode sets the zip code
func (b *LeadBuilder) WithZipCode(zipCode string) *LeadBuilder {
	b.zipCode = zipCode
	return b
}

// WithContact sets the homeowner contact details
func (b *LeadBuilder) WithContact(firstName, lastName, email, phone string) *LeadBuilder {
	b.firstName = firstName
	b.lastName = lastName
	b.email = email
	b.phone = phone
	return b
}

// WithStatus sets the lead status
func (b *LeadBuilder) WithStatus(status lead.Status) *LeadBuilder {
	b.status = status
	return b
}

// WithData sets the raw capture-form fields
func (b *LeadBuilder) WithData(data map[string]interface{}) *LeadBuilder {
	b.data = data
	return b
}

// WithCompliance sets the compliance artifacts
func (b *LeadBuilder) WithCompliance(trustedFormCertID, jornayaLeadID string) *LeadBuilder {
	b.trustedForm = trustedFormCertID
	b.jornayaID = jornayaLeadID
	return b
}

// WithTCPAConsent sets the TCPA consent flag
func (b *LeadBuilder) WithTCPAConsent(consent bool) *LeadBuilder {
	b.tcpaConsent = consent
	return b
}

// Build creates the Lead entity
func (b *LeadBuilder) Build() *lead.Lead {
	b.t.Helper()

	contact, err := lead.NewContact(b.firstName, b.lastName, b.email, b.phone)
	require.NoError(b.t, err)

	l, err := lead.NewLead(b.id, b.serviceTypeID, b.zipCode, contact, b.data)
	require.NoError(b.t, err)

	l.State = b.state
	l.City = b.city
	l.Source = b.source
	l.OwnsHome = b.ownsHome
	l.Timeframe = b.timeframe
	l.TrustedFormCertID = b.trustedForm
	l.JornayaLeadID = b.jornayaID
	l.TCPAConsent = b.tcpaConsent
	l.Status = b.status

	return l
}
