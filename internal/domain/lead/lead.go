package lead

import (
	"fmt"
	"time"

	"github.com/homereach/lead-exchange-backend/internal/domain/validation"
	"github.com/homereach/lead-exchange-backend/internal/domain/values"
	"github.com/google/uuid"
)

// Lead is a homeowner service request flowing through the exchange. The
// ID is assigned by the upstream capture form and treated as opaque.
type Lead struct {
	ID            string  `json:"id"`
	ServiceTypeID string  `json:"service_type_id"`
	ZipCode       string  `json:"zip_code"`
	State         string  `json:"state,omitempty"`
	City          string  `json:"city,omitempty"`
	Source        string  `json:"source,omitempty"`
	Contact       Contact `json:"contact"`

	// Qualification answers from the capture form
	OwnsHome  bool   `json:"owns_home"`
	Timeframe string `json:"timeframe,omitempty"`

	// Compliance artifacts. Buyers that require them reject leads
	// without them during eligibility.
	TrustedFormCertID string `json:"trusted_form_cert_id,omitempty"`
	JornayaLeadID     string `json:"jornaya_lead_id,omitempty"`
	TCPAConsent       bool   `json:"tcpa_consent"`

	// Data holds the raw capture-form fields. Buyer field mappings read
	// from here by source field name.
	Data map[string]interface{} `json:"data,omitempty"`

	Status Status `json:"status"`

	// Sale outcome, set when the lead reaches StatusSold
	WinningBuyerID *uuid.UUID    `json:"winning_buyer_id,omitempty"`
	WinningPrice   *values.Money `json:"winning_price,omitempty"`
	SoldAt         *time.Time    `json:"sold_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Contact identifies the homeowner who submitted the request
type Contact struct {
	FirstName string             `json:"first_name"`
	LastName  string             `json:"last_name"`
	Email     values.Email       `json:"email"`
	Phone     values.PhoneNumber `json:"phone"`
}

type Status int

const (
	StatusPending Status = iota
	StatusProcessing
	StatusAuctioned
	StatusSold
	StatusRejected
	StatusExpired
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusProcessing:
		return "processing"
	case StatusAuctioned:
		return "auctioned"
	case StatusSold:
		return "sold"
	case StatusRejected:
		return "rejected"
	case StatusExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// ParseStatus converts a stored status string back to a Status
func ParseStatus(s string) (Status, error) {
	switch s {
	case "pending":
		return StatusPending, nil
	case "processing":
		return StatusProcessing, nil
	case "auctioned":
		return StatusAuctioned, nil
	case "sold":
		return StatusSold, nil
	case "rejected":
		return StatusRejected, nil
	case "expired":
		return StatusExpired, nil
	default:
		return StatusPending, fmt.Errorf("unknown lead status: %s", s)
	}
}

// IsTerminal reports whether the lead can no longer be auctioned
func (s Status) IsTerminal() bool {
	return s == StatusSold || s == StatusRejected || s == StatusExpired
}

// NewContact validates homeowner contact details
func NewContact(firstName, lastName, email, phone string) (Contact, error) {
	if err := validation.ValidateName(firstName); err != nil {
		return Contact{}, fmt.Errorf("invalid first name: %w", err)
	}

	if err := validation.ValidateName(lastName); err != nil {
		return Contact{}, fmt.Errorf("invalid last name: %w", err)
	}

	emailValue, err := values.NewEmail(email)
	if err != nil {
		return Contact{}, fmt.Errorf("invalid email: %w", err)
	}

	phoneValue, err := values.NewPhoneNumber(phone)
	if err != nil {
		return Contact{}, fmt.Errorf("invalid phone: %w", err)
	}

	return Contact{
		FirstName: firstName,
		LastName:  lastName,
		Email:     emailValue,
		Phone:     phoneValue,
	}, nil
}

// FullName returns the homeowner's display name
func (c Contact) FullName() string {
	return c.FirstName + " " + c.LastName
}

func NewLead(id, serviceTypeID, zipCode string, contact Contact, data map[string]interface{}) (*Lead, error) {
	if id == "" {
		return nil, fmt.Errorf("lead ID cannot be empty")
	}

	if err := validation.ValidateServiceType(serviceTypeID); err != nil {
		return nil, fmt.Errorf("invalid service type: %w", err)
	}

	if err := validation.ValidateZipCode(zipCode); err != nil {
		return nil, fmt.Errorf("invalid zip code: %w", err)
	}

	if contact.Email.IsEmpty() || contact.Phone.IsEmpty() {
		return nil, fmt.Errorf("lead contact is incomplete")
	}

	now := clock.Now()
	return &Lead{
		ID:            id,
		ServiceTypeID: serviceTypeID,
		ZipCode:       zipCode,
		Contact:       contact,
		Data:          data,
		Status:        StatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

func (l *Lead) UpdateStatus(status Status) {
	l.Status = status
	l.UpdatedAt = clock.Now()
}

// MarkSold records the winning buyer and clearing price. The repository
// conditional update, not this method, enforces that only one writer
// lands the sale.
func (l *Lead) MarkSold(buyerID uuid.UUID, price values.Money) error {
	if buyerID == uuid.Nil {
		return fmt.Errorf("winning buyer ID cannot be nil")
	}

	now := clock.Now()
	l.Status = StatusSold
	l.WinningBuyerID = &buyerID
	l.WinningPrice = &price
	l.SoldAt = &now
	l.UpdatedAt = now
	return nil
}

func (l *Lead) MarkRejected() {
	l.Status = StatusRejected
	l.UpdatedAt = clock.Now()
}

func (l *Lead) Expire() {
	l.Status = StatusExpired
	l.UpdatedAt = clock.Now()
}

// Age returns how long ago the lead was captured
func (l *Lead) Age() time.Duration {
	return clock.Now().Sub(l.CreatedAt)
}
