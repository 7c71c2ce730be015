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

	"github.com/homereach/lead-exchange-backend/internal/domain/lead"
	"github.com/homereach/lead-exchange-backend/internal/domain/values"
)

// LeadRepository persists leads using PostgreSQL
type LeadRepository struct {
	db interface {
		ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
		QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
		QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	}
}

// NewLeadRepository creates a new lead repository
func NewLeadRepository(db *sql.DB) *LeadRepository {
	return &LeadRepository{db: db}
}

// NewLeadRepositoryWithTx creates a new lead repository with a transaction
func NewLeadRepositoryWithTx(tx *sql.Tx) *LeadRepository {
	return &LeadRepository{db: tx}
}

const leadColumns = `
	id, service_type_id, zip_code, state, city, source,
	first_name, last_name, email, phone,
	owns_home, timeframe,
	trusted_form_cert_id, jornaya_lead_id, tcpa_consent,
	data, status,
	winning_buyer_id, winning_price, sold_at,
	created_at, updated_at`

// CreateIfAbsent inserts the lead unless a row with its ID already
// exists, reporting whether the insert happened. Redelivered queue
// messages hit the existing row and must not overwrite it.
func (r *LeadRepository) CreateIfAbsent(ctx context.Context, l *lead.Lead) (bool, error) {
	if l == nil || l.ID == "" {
		return false, errors.New("lead id cannot be empty")
	}

	dataJSON, err := json.Marshal(l.Data)
	if err != nil {
		return false, fmt.Errorf("failed to marshal lead data: %w", err)
	}

	query := `
		INSERT INTO leads (` + leadColumns + `
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10,
			$11, $12,
			$13, $14, $15,
			$16, $17,
			$18, $19, $20,
			$21, $22
		)
		ON CONFLICT (id) DO NOTHING
	`

	result, err := r.db.ExecContext(ctx, query,
		l.ID, l.ServiceTypeID, l.ZipCode, l.State, l.City, l.Source,
		l.Contact.FirstName, l.Contact.LastName, l.Contact.Email.String(), l.Contact.Phone.E164(),
		l.OwnsHome, l.Timeframe,
		l.TrustedFormCertID, l.JornayaLeadID, l.TCPAConsent,
		dataJSON, l.Status.String(),
		l.WinningBuyerID, nullMoney(l.WinningPrice), l.SoldAt,
		l.CreatedAt, l.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to create lead: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}

// GetByID retrieves a lead by its ID
func (r *LeadRepository) GetByID(ctx context.Context, leadID string) (*lead.Lead, error) {
	query := `
		SELECT ` + leadColumns + `
		FROM leads
		WHERE id = $1
	`

	row := r.db.QueryRowContext(ctx, query, leadID)
	l, err := scanLead(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("lead")
		}
		return nil, fmt.Errorf("failed to get lead: %w", err)
	}
	return l, nil
}

// UpdateStatusIfIn moves the lead to the target status only when its
// current status is one of the allowed set, reporting whether a row
// changed. Zero rows means another worker moved the lead first.
func (r *LeadRepository) UpdateStatusIfIn(ctx context.Context, leadID string, allowed []lead.Status, to lead.Status) (bool, error) {
	if len(allowed) == 0 {
		return false, errors.New("allowed statuses cannot be empty")
	}

	args := []interface{}{to.String(), time.Now().UTC(), leadID}
	placeholders := make([]string, len(allowed))
	for i, s := range allowed {
		placeholders[i] = fmt.Sprintf("$%d", len(args)+1)
		args = append(args, s.String())
	}

	query := fmt.Sprintf(`
		UPDATE leads
		SET status = $1, updated_at = $2
		WHERE id = $3 AND status IN (%s)
	`, strings.Join(placeholders, ", "))

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to update lead status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}

// MarkSold commits the sale, conditional on the lead still being in a
// sellable state. Zero rows means another auction sold it first.
func (r *LeadRepository) MarkSold(ctx context.Context, leadID string, buyerID uuid.UUID, price values.Money) (bool, error) {
	now := time.Now().UTC()

	query := `
		UPDATE leads
		SET status = 'sold', winning_buyer_id = $2, winning_price = $3,
		    sold_at = $4, updated_at = $4
		WHERE id = $1 AND status IN ('processing', 'auctioned')
	`

	result, err := r.db.ExecContext(ctx, query, leadID, buyerID, price.String(), now)
	if err != nil {
		return false, fmt.Errorf("failed to mark lead sold: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}

// scanLead scans a database row into a Lead
func scanLead(row *sql.Row) (*lead.Lead, error) {
	var l lead.Lead
	var firstName, lastName, email, phone string
	var statusStr string
	var data []byte
	var winningBuyerID sql.NullString
	var winningPrice sql.NullString
	var soldAt sql.NullTime

	err := row.Scan(
		&l.ID, &l.ServiceTypeID, &l.ZipCode, &l.State, &l.City, &l.Source,
		&firstName, &lastName, &email, &phone,
		&l.OwnsHome, &l.Timeframe,
		&l.TrustedFormCertID, &l.JornayaLeadID, &l.TCPAConsent,
		&data, &statusStr,
		&winningBuyerID, &winningPrice, &soldAt,
		&l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	contact, err := lead.NewContact(firstName, lastName, email, phone)
	if err != nil {
		return nil, fmt.Errorf("stored contact is invalid: %w", err)
	}
	l.Contact = contact

	status, err := lead.ParseStatus(statusStr)
	if err != nil {
		return nil, err
	}
	l.Status = status

	if len(data) > 0 {
		if err := json.Unmarshal(data, &l.Data); err != nil {
			return nil, fmt.Errorf("failed to unmarshal lead data: %w", err)
		}
	}

	if winningBuyerID.Valid {
		id, err := uuid.Parse(winningBuyerID.String)
		if err != nil {
			return nil, fmt.Errorf("stored winning buyer id is invalid: %w", err)
		}
		l.WinningBuyerID = &id
	}

	if winningPrice.Valid {
		price, err := values.NewMoneyFromString(winningPrice.String)
		if err != nil {
			return nil, fmt.Errorf("stored winning price is invalid: %w", err)
		}
		l.WinningPrice = &price
	}

	if soldAt.Valid {
		t := soldAt.Time
		l.SoldAt = &t
	}

	return &l, nil
}

// nullMoney converts an optional money value for a nullable NUMERIC column
func nullMoney(m *values.Money) sql.NullString {
	if m == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: m.String(), Valid: true}
}
