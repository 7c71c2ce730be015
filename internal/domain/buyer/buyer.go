package buyer

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/homereach/lead-exchange-backend/internal/domain/validation"
	"github.com/homereach/lead-exchange-backend/internal/domain/values"
)

// Buyer purchases leads. NETWORK buyers expose PING/POST endpoints and
// bid in real time; CONTRACTOR buyers receive leads directly over
// email, webhook, or the dashboard at a configured price.
type Buyer struct {
	ID     uuid.UUID `json:"id"`
	Name   string    `json:"name"`
	Type   Type      `json:"type"`
	Active bool      `json:"active"`

	// Network endpoints
	PingURL string     `json:"ping_url,omitempty"`
	PostURL string     `json:"post_url,omitempty"`
	Auth    AuthConfig `json:"auth"`

	PingTimeout time.Duration `json:"ping_timeout"`
	PostTimeout time.Duration `json:"post_timeout"`

	// Contractor pricing
	PricingModel   PricingModel  `json:"pricing_model,omitempty"`
	FixedLeadPrice *values.Money `json:"fixed_lead_price,omitempty"`
	DeliveryMode   DeliveryMode  `json:"delivery_mode,omitempty"`
	MaxSharedLeads int           `json:"max_shared_leads,omitempty"`

	// Contractor notification channels
	NotifyEmail     bool         `json:"notify_email"`
	NotifyWebhook   bool         `json:"notify_webhook"`
	NotifyDashboard bool         `json:"notify_dashboard"`
	ContactEmail    values.Email `json:"contact_email,omitempty"`
	WebhookURL      string       `json:"webhook_url,omitempty"`
	WebhookSecret   string       `json:"webhook_secret,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Type int

const (
	TypeNetwork Type = iota
	TypeContractor
)

func (t Type) String() string {
	switch t {
	case TypeNetwork:
		return "network"
	case TypeContractor:
		return "contractor"
	default:
		return "unknown"
	}
}

// ParseType converts a stored type string back to a Type
func ParseType(s string) (Type, error) {
	switch s {
	case "network":
		return TypeNetwork, nil
	case "contractor":
		return TypeContractor, nil
	default:
		return TypeNetwork, fmt.Errorf("unknown buyer type: %s", s)
	}
}

type PricingModel int

const (
	PricingFixed PricingModel = iota
	PricingAuction
	PricingHybrid
)

func (p PricingModel) String() string {
	switch p {
	case PricingFixed:
		return "fixed"
	case PricingAuction:
		return "auction"
	case PricingHybrid:
		return "hybrid"
	default:
		return "unknown"
	}
}

func ParsePricingModel(s string) (PricingModel, error) {
	switch s {
	case "fixed":
		return PricingFixed, nil
	case "auction":
		return PricingAuction, nil
	case "hybrid":
		return PricingHybrid, nil
	default:
		return PricingFixed, fmt.Errorf("unknown pricing model: %s", s)
	}
}

type DeliveryMode int

const (
	DeliveryExclusive DeliveryMode = iota
	DeliveryShared
)

func (d DeliveryMode) String() string {
	switch d {
	case DeliveryExclusive:
		return "exclusive"
	case DeliveryShared:
		return "shared"
	default:
		return "unknown"
	}
}

func ParseDeliveryMode(s string) (DeliveryMode, error) {
	switch s {
	case "exclusive":
		return DeliveryExclusive, nil
	case "shared":
		return DeliveryShared, nil
	default:
		return DeliveryExclusive, fmt.Errorf("unknown delivery mode: %s", s)
	}
}

// AuthConfig describes how outbound requests to a network buyer
// authenticate
type AuthConfig struct {
	Type AuthType `json:"type"`

	// APIKey auth
	APIKey       string `json:"api_key,omitempty"`
	APIKeyHeader string `json:"api_key_header,omitempty"` // defaults to X-API-Key

	// Bearer auth
	Token string `json:"token,omitempty"`

	// Basic auth
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`

	// Extra headers sent on every request
	CustomHeaders map[string]string `json:"custom_headers,omitempty"`
}

type AuthType int

const (
	AuthNone AuthType = iota
	AuthAPIKey
	AuthBearer
	AuthBasic
)

func (a AuthType) String() string {
	switch a {
	case AuthNone:
		return "none"
	case AuthAPIKey:
		return "api_key"
	case AuthBearer:
		return "bearer"
	case AuthBasic:
		return "basic"
	default:
		return "unknown"
	}
}

func ParseAuthType(s string) (AuthType, error) {
	switch s {
	case "", "none":
		return AuthNone, nil
	case "api_key":
		return AuthAPIKey, nil
	case "bearer":
		return AuthBearer, nil
	case "basic":
		return AuthBasic, nil
	default:
		return AuthNone, fmt.Errorf("unknown auth type: %s", s)
	}
}

func NewBuyer(name string, buyerType Type) (*Buyer, error) {
	if err := validation.ValidateName(name); err != nil {
		return nil, fmt.Errorf("invalid buyer name: %w", err)
	}

	switch buyerType {
	case TypeNetwork, TypeContractor:
	default:
		return nil, ErrInvalidBuyerType
	}

	now := time.Now()
	return &Buyer{
		ID:          uuid.New(),
		Name:        name,
		Type:        buyerType,
		Active:      true,
		PingTimeout: 5 * time.Second,
		PostTimeout: 10 * time.Second,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

func (b *Buyer) IsNetwork() bool {
	return b.Type == TypeNetwork
}

func (b *Buyer) IsContractor() bool {
	return b.Type == TypeContractor
}

// CanPing reports whether the buyer can participate in a network
// auction
func (b *Buyer) CanPing() bool {
	return b.Active && b.IsNetwork() && b.PingURL != "" && b.PostURL != ""
}

// EnabledChannels lists the contractor's configured notification
// channels in delivery order
func (b *Buyer) EnabledChannels() []string {
	var channels []string
	if b.NotifyEmail && !b.ContactEmail.IsEmpty() {
		channels = append(channels, "email")
	}
	if b.NotifyWebhook && b.WebhookURL != "" {
		channels = append(channels, "webhook")
	}
	if b.NotifyDashboard {
		channels = append(channels, "dashboard")
	}
	return channels
}

var (
	ErrInvalidBuyerType = fmt.Errorf("invalid buyer type")
	ErrBuyerInactive    = fmt.Errorf("buyer is inactive")
)
