package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/homereach/lead-exchange-backend/internal/domain/buyer"
	"github.com/homereach/lead-exchange-backend/internal/domain/values"
)

// rowScanner abstracts *sql.Row and *sql.Rows for shared scan helpers
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// BuyerRepository reads buyer, service config, and zip coverage rows
// using PostgreSQL
type BuyerRepository struct {
	db interface {
		ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
		QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
		QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	}
}

// NewBuyerRepository creates a new buyer repository
func NewBuyerRepository(db *sql.DB) *BuyerRepository {
	return &BuyerRepository{db: db}
}

// NewBuyerRepositoryWithTx creates a new buyer repository with a transaction
func NewBuyerRepositoryWithTx(tx *sql.Tx) *BuyerRepository {
	return &BuyerRepository{db: tx}
}

const buyerColumns = `
	id, name, type, active,
	ping_url, post_url,
	auth_type, auth_api_key, auth_api_key_header, auth_token,
	auth_username, auth_password, auth_custom_headers,
	ping_timeout_ms, post_timeout_ms,
	pricing_model, fixed_lead_price, delivery_mode, max_shared_leads,
	notify_email, notify_webhook, notify_dashboard,
	contact_email, webhook_url, webhook_secret,
	created_at, updated_at`

// Create inserts a buyer row
func (r *BuyerRepository) Create(ctx context.Context, b *buyer.Buyer) error {
	if b == nil || b.ID == uuid.Nil {
		return errors.New("buyer must have an ID")
	}

	var customHeaders []byte
	if len(b.Auth.CustomHeaders) > 0 {
		var err error
		customHeaders, err = json.Marshal(b.Auth.CustomHeaders)
		if err != nil {
			return fmt.Errorf("failed to marshal custom headers: %w", err)
		}
	}

	query := `
		INSERT INTO buyers (` + buyerColumns + `
		) VALUES (
			$1, $2, $3, $4,
			$5, $6,
			$7, $8, $9, $10,
			$11, $12, $13,
			$14, $15,
			$16, $17, $18, $19,
			$20, $21, $22,
			$23, $24, $25,
			$26, $27
		)
	`

	_, err := r.db.ExecContext(ctx, query,
		b.ID, b.Name, b.Type.String(), b.Active,
		b.PingURL, b.PostURL,
		b.Auth.Type.String(), b.Auth.APIKey, b.Auth.APIKeyHeader, b.Auth.Token,
		b.Auth.Username, b.Auth.Password, customHeaders,
		b.PingTimeout.Milliseconds(), b.PostTimeout.Milliseconds(),
		b.PricingModel.String(), nullMoney(b.FixedLeadPrice), b.DeliveryMode.String(), b.MaxSharedLeads,
		b.NotifyEmail, b.NotifyWebhook, b.NotifyDashboard,
		b.ContactEmail.String(), b.WebhookURL, b.WebhookSecret,
		b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		if IsDuplicateKeyViolation(err) {
			return fmt.Errorf("buyer %s already exists", b.ID)
		}
		return fmt.Errorf("failed to create buyer: %w", err)
	}

	return nil
}

// GetByID retrieves a buyer by ID
func (r *BuyerRepository) GetByID(ctx context.Context, id uuid.UUID) (*buyer.Buyer, error) {
	query := `
		SELECT ` + buyerColumns + `
		FROM buyers
		WHERE id = $1
	`

	b, err := scanBuyer(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("buyer")
		}
		return nil, fmt.Errorf("failed to get buyer: %w", err)
	}
	return b, nil
}

// GetBuyers loads the referenced buyers keyed by ID. IDs without a row
// are simply absent from the map.
func (r *BuyerRepository) GetBuyers(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*buyer.Buyer, error) {
	buyers := make(map[uuid.UUID]*buyer.Buyer, len(ids))
	if len(ids) == 0 {
		return buyers, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}

	query := fmt.Sprintf(`
		SELECT `+buyerColumns+`
		FROM buyers
		WHERE id IN (%s)
	`, strings.Join(placeholders, ", "))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query buyers: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		b, err := scanBuyer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan buyer: %w", err)
		}
		buyers[b.ID] = b
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return buyers, nil
}

const serviceConfigColumns = `
	id, buyer_id, service_type_id, active,
	ping_template, post_template, field_mappings,
	min_bid, max_bid, restrictions,
	require_trusted_form, require_jornaya, require_tcpa_consent,
	bid_field, created_at, updated_at`

// GetServiceConfig loads the buyer's settings for one service type
func (r *BuyerRepository) GetServiceConfig(ctx context.Context, buyerID uuid.UUID, serviceTypeID string) (*buyer.ServiceConfig, error) {
	query := `
		SELECT ` + serviceConfigColumns + `
		FROM buyer_service_configs
		WHERE buyer_id = $1 AND service_type_id = $2
	`

	c, err := scanServiceConfig(r.db.QueryRowContext(ctx, query, buyerID, serviceTypeID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("service config")
		}
		return nil, fmt.Errorf("failed to get service config: %w", err)
	}
	return c, nil
}

// CreateServiceConfig inserts a service config row
func (r *BuyerRepository) CreateServiceConfig(ctx context.Context, c *buyer.ServiceConfig) error {
	if c == nil || c.ID == uuid.Nil {
		return errors.New("service config must have an ID")
	}

	pingTemplate, err := json.Marshal(c.PingTemplate)
	if err != nil {
		return fmt.Errorf("failed to marshal ping template: %w", err)
	}
	postTemplate, err := json.Marshal(c.PostTemplate)
	if err != nil {
		return fmt.Errorf("failed to marshal post template: %w", err)
	}

	var fieldMappings []byte
	if len(c.FieldMappings) > 0 {
		fieldMappings, err = json.Marshal(c.FieldMappings)
		if err != nil {
			return fmt.Errorf("failed to marshal field mappings: %w", err)
		}
	}

	var restrictions []byte
	if c.Restrictions != nil {
		restrictions, err = json.Marshal(c.Restrictions)
		if err != nil {
			return fmt.Errorf("failed to marshal restrictions: %w", err)
		}
	}

	query := `
		INSERT INTO buyer_service_configs (` + serviceConfigColumns + `
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7,
			$8, $9, $10,
			$11, $12, $13,
			$14, $15, $16
		)
	`

	_, err = r.db.ExecContext(ctx, query,
		c.ID, c.BuyerID, c.ServiceTypeID, c.Active,
		pingTemplate, postTemplate, fieldMappings,
		nullMoney(c.MinBid), nullMoney(c.MaxBid), restrictions,
		c.RequireTrustedForm, c.RequireJornaya, c.RequireTCPAConsent,
		c.BidField, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		if IsDuplicateKeyViolation(err) {
			return fmt.Errorf("service config for buyer %s and service %s already exists", c.BuyerID, c.ServiceTypeID)
		}
		if IsForeignKeyViolation(err) {
			return fmt.Errorf("service config references unknown buyer: %w", err)
		}
		return fmt.Errorf("failed to create service config: %w", err)
	}

	return nil
}

// QueryZipCoverage returns active coverage rows for the service type
// and zip whose buyer is active, priority ascending
func (r *BuyerRepository) QueryZipCoverage(ctx context.Context, serviceTypeID, zipCode string) ([]*buyer.ZipCoverage, error) {
	query := `
		SELECT z.id, z.buyer_id, z.service_type_id, z.zip_code, z.priority, z.active,
			z.min_bid, z.max_bid, z.max_leads_per_day,
			z.created_at, z.updated_at
		FROM buyer_service_zip_codes z
		JOIN buyers b ON b.id = z.buyer_id
		WHERE z.service_type_id = $1 AND z.zip_code = $2 AND z.active AND b.active
		ORDER BY z.priority ASC, z.created_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, serviceTypeID, zipCode)
	if err != nil {
		return nil, fmt.Errorf("failed to query zip coverage: %w", err)
	}
	defer rows.Close()

	var coverage []*buyer.ZipCoverage
	for rows.Next() {
		z, err := scanZipCoverage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan zip coverage: %w", err)
		}
		coverage = append(coverage, z)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return coverage, nil
}

// CreateZipCoverage inserts a zip coverage row
func (r *BuyerRepository) CreateZipCoverage(ctx context.Context, z *buyer.ZipCoverage) error {
	if z == nil || z.ID == uuid.Nil {
		return errors.New("zip coverage must have an ID")
	}

	query := `
		INSERT INTO buyer_service_zip_codes (
			id, buyer_id, service_type_id, zip_code, priority, active,
			min_bid, max_bid, max_leads_per_day,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.db.ExecContext(ctx, query,
		z.ID, z.BuyerID, z.ServiceTypeID, z.ZipCode, z.Priority, z.Active,
		nullMoney(z.MinBid), nullMoney(z.MaxBid), z.MaxLeadsPerDay,
		z.CreatedAt, z.UpdatedAt,
	)
	if err != nil {
		if IsDuplicateKeyViolation(err) {
			return fmt.Errorf("zip coverage for buyer %s, service %s, zip %s already exists", z.BuyerID, z.ServiceTypeID, z.ZipCode)
		}
		if IsForeignKeyViolation(err) {
			return fmt.Errorf("zip coverage references unknown buyer: %w", err)
		}
		return fmt.Errorf("failed to create zip coverage: %w", err)
	}

	return nil
}

// scanBuyer scans a database row into a Buyer
func scanBuyer(s rowScanner) (*buyer.Buyer, error) {
	var b buyer.Buyer
	var typeStr, authTypeStr, pricingStr, deliveryStr, contactEmail string
	var customHeaders []byte
	var pingTimeoutMs, postTimeoutMs int64
	var fixedPrice sql.NullString

	err := s.Scan(
		&b.ID, &b.Name, &typeStr, &b.Active,
		&b.PingURL, &b.PostURL,
		&authTypeStr, &b.Auth.APIKey, &b.Auth.APIKeyHeader, &b.Auth.Token,
		&b.Auth.Username, &b.Auth.Password, &customHeaders,
		&pingTimeoutMs, &postTimeoutMs,
		&pricingStr, &fixedPrice, &deliveryStr, &b.MaxSharedLeads,
		&b.NotifyEmail, &b.NotifyWebhook, &b.NotifyDashboard,
		&contactEmail, &b.WebhookURL, &b.WebhookSecret,
		&b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if b.Type, err = buyer.ParseType(typeStr); err != nil {
		return nil, err
	}
	if b.Auth.Type, err = buyer.ParseAuthType(authTypeStr); err != nil {
		return nil, err
	}
	if b.PricingModel, err = buyer.ParsePricingModel(pricingStr); err != nil {
		return nil, err
	}
	if b.DeliveryMode, err = buyer.ParseDeliveryMode(deliveryStr); err != nil {
		return nil, err
	}

	if len(customHeaders) > 0 {
		if err := json.Unmarshal(customHeaders, &b.Auth.CustomHeaders); err != nil {
			return nil, fmt.Errorf("stored custom headers are invalid: %w", err)
		}
	}

	b.PingTimeout = time.Duration(pingTimeoutMs) * time.Millisecond
	b.PostTimeout = time.Duration(postTimeoutMs) * time.Millisecond

	if fixedPrice.Valid {
		price, err := values.NewMoneyFromString(fixedPrice.String)
		if err != nil {
			return nil, fmt.Errorf("stored fixed lead price is invalid: %w", err)
		}
		b.FixedLeadPrice = &price
	}

	if contactEmail != "" {
		email, err := values.NewEmail(contactEmail)
		if err != nil {
			return nil, fmt.Errorf("stored contact email is invalid: %w", err)
		}
		b.ContactEmail = email
	}

	return &b, nil
}

// scanServiceConfig scans a database row into a ServiceConfig
func scanServiceConfig(s rowScanner) (*buyer.ServiceConfig, error) {
	var c buyer.ServiceConfig
	var pingTemplate, postTemplate, fieldMappings, restrictions []byte
	var minBid, maxBid sql.NullString

	err := s.Scan(
		&c.ID, &c.BuyerID, &c.ServiceTypeID, &c.Active,
		&pingTemplate, &postTemplate, &fieldMappings,
		&minBid, &maxBid, &restrictions,
		&c.RequireTrustedForm, &c.RequireJornaya, &c.RequireTCPAConsent,
		&c.BidField, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(pingTemplate) > 0 {
		if err := json.Unmarshal(pingTemplate, &c.PingTemplate); err != nil {
			return nil, fmt.Errorf("stored ping template is invalid: %w", err)
		}
	}
	if len(postTemplate) > 0 {
		if err := json.Unmarshal(postTemplate, &c.PostTemplate); err != nil {
			return nil, fmt.Errorf("stored post template is invalid: %w", err)
		}
	}
	if len(fieldMappings) > 0 {
		if err := json.Unmarshal(fieldMappings, &c.FieldMappings); err != nil {
			return nil, fmt.Errorf("stored field mappings are invalid: %w", err)
		}
	}
	if len(restrictions) > 0 {
		if err := json.Unmarshal(restrictions, &c.Restrictions); err != nil {
			return nil, fmt.Errorf("stored restrictions are invalid: %w", err)
		}
	}

	if minBid.Valid {
		m, err := values.NewMoneyFromString(minBid.String)
		if err != nil {
			return nil, fmt.Errorf("stored min bid is invalid: %w", err)
		}
		c.MinBid = &m
	}
	if maxBid.Valid {
		m, err := values.NewMoneyFromString(maxBid.String)
		if err != nil {
			return nil, fmt.Errorf("stored max bid is invalid: %w", err)
		}
		c.MaxBid = &m
	}

	return &c, nil
}

// scanZipCoverage scans a database row into a ZipCoverage
func scanZipCoverage(s rowScanner) (*buyer.ZipCoverage, error) {
	var z buyer.ZipCoverage
	var minBid, maxBid sql.NullString
	var maxLeads sql.NullInt32

	err := s.Scan(
		&z.ID, &z.BuyerID, &z.ServiceTypeID, &z.ZipCode, &z.Priority, &z.Active,
		&minBid, &maxBid, &maxLeads,
		&z.CreatedAt, &z.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if minBid.Valid {
		m, err := values.NewMoneyFromString(minBid.String)
		if err != nil {
			return nil, fmt.Errorf("stored min bid is invalid: %w", err)
		}
		z.MinBid = &m
	}
	if maxBid.Valid {
		m, err := values.NewMoneyFromString(maxBid.String)
		if err != nil {
			return nil, fmt.Errorf("stored max bid is invalid: %w", err)
		}
		z.MaxBid = &m
	}
	if maxLeads.Valid {
		n := int(maxLeads.Int32)
		z.MaxLeadsPerDay = &n
	}

	return &z, nil
}
