package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/homereach/lead-exchange-backend/internal/domain/transaction"
	"github.com/homereach/lead-exchange-backend/internal/domain/values"
)

// TransactionRepository persists the audit trail using PostgreSQL
type TransactionRepository struct {
	db interface {
		ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
		QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
		QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	}
}

// NewTransactionRepository creates a new transaction repository
func NewTransactionRepository(db *sql.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// NewTransactionRepositoryWithTx creates a new transaction repository with a transaction
func NewTransactionRepositoryWithTx(tx *sql.Tx) *TransactionRepository {
	return &TransactionRepository{db: tx}
}

const transactionColumns = `
	id, lead_id, buyer_id, action_type, status,
	bid_amount, response_time_ms,
	payload, response, error_message,
	is_winner, lost_reason, cascade_position,
	delivery_method, winning_bid_amount,
	created_at`

// Insert appends one attempt row
func (r *TransactionRepository) Insert(ctx context.Context, t *transaction.Transaction) error {
	if t == nil || t.LeadID == "" {
		return errors.New("transaction must reference a lead")
	}

	query := `
		INSERT INTO transactions (` + transactionColumns + `
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7,
			$8, $9, $10,
			$11, $12, $13,
			$14, $15,
			$16
		)
	`

	_, err := r.db.ExecContext(ctx, query,
		t.ID, t.LeadID, t.BuyerID, t.ActionType.String(), t.Status.String(),
		nullMoney(t.BidAmount), t.ResponseTimeMs,
		t.Payload, t.Response, t.ErrorMessage,
		t.IsWinner, nullLostReason(t.LostReason), t.CascadePosition,
		t.DeliveryMethod, nullMoney(t.WinningBidAmount),
		t.CreatedAt,
	)
	if err != nil {
		if IsDuplicateKeyViolation(err) {
			return fmt.Errorf("duplicate key: transaction %s already recorded", t.ID)
		}
		if IsForeignKeyViolation(err) {
			return fmt.Errorf("transaction references unknown lead: %w", err)
		}
		return fmt.Errorf("failed to insert transaction: %w", err)
	}

	return nil
}

// BulkUpdateByLeadAndAction applies a winner patch to the lead's rows
// for one action type. An empty BuyerIDs scope patches every row;
// otherwise only the named buyers' rows change. Returns the number of
// rows touched.
func (r *TransactionRepository) BulkUpdateByLeadAndAction(ctx context.Context, leadID string, action transaction.ActionType, patch transaction.WinnerPatch) (int64, error) {
	var sets []string
	args := []interface{}{leadID, action.String()}

	next := func() int { return len(args) + 1 }

	if patch.IsWinner != nil {
		sets = append(sets, fmt.Sprintf("is_winner = $%d", next()))
		args = append(args, *patch.IsWinner)
		if *patch.IsWinner {
			// A promoted winner sheds any loser mark from an earlier pass
			sets = append(sets, "lost_reason = NULL")
		}
	}
	if patch.LostReason != nil {
		sets = append(sets, fmt.Sprintf("lost_reason = $%d", next()))
		args = append(args, patch.LostReason.String())
	}
	if patch.WinningBidAmount != nil {
		sets = append(sets, fmt.Sprintf("winning_bid_amount = $%d", next()))
		args = append(args, patch.WinningBidAmount.String())
	}

	if len(sets) == 0 {
		return 0, nil
	}

	where := "lead_id = $1 AND action_type = $2"
	if len(patch.BuyerIDs) > 0 {
		placeholders := make([]string, len(patch.BuyerIDs))
		for i, id := range patch.BuyerIDs {
			placeholders[i] = fmt.Sprintf("$%d", next())
			args = append(args, id)
		}
		where += fmt.Sprintf(" AND buyer_id IN (%s)", strings.Join(placeholders, ", "))
	}

	query := fmt.Sprintf("UPDATE transactions SET %s WHERE %s", strings.Join(sets, ", "), where)

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to update transactions: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows, nil
}

// CountTodayForBuyer counts the buyer's rows created since midnight UTC
// with the given action and status. Daily volume caps roll over at
// midnight UTC.
func (r *TransactionRepository) CountTodayForBuyer(ctx context.Context, buyerID uuid.UUID, action transaction.ActionType, status transaction.Status) (int, error) {
	dayStart := time.Now().UTC().Truncate(24 * time.Hour)

	query := `
		SELECT COUNT(*)
		FROM transactions
		WHERE buyer_id = $1 AND action_type = $2 AND status = $3 AND created_at >= $4
	`

	var count int
	err := r.db.QueryRowContext(ctx, query, buyerID, action.String(), status.String(), dayStart).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	return count, nil
}

// PostAcceptanceCounts returns how many of the buyer's POSTs since the
// given time succeeded, and how many were attempted. Feeds the trailing
// acceptance ratio in eligibility scoring.
func (r *TransactionRepository) PostAcceptanceCounts(ctx context.Context, buyerID uuid.UUID, since time.Time) (int, int, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE status = $3),
			COUNT(*)
		FROM transactions
		WHERE buyer_id = $1 AND action_type = $2 AND created_at >= $4
	`

	var accepted, total int
	err := r.db.QueryRowContext(ctx, query,
		buyerID, transaction.ActionPost.String(), transaction.StatusSuccess.String(), since,
	).Scan(&accepted, &total)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count post acceptance: %w", err)
	}
	return accepted, total, nil
}

// ListByLead returns the lead's audit trail, newest first
func (r *TransactionRepository) ListByLead(ctx context.Context, leadID string) ([]*transaction.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE lead_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, leadID)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var trail []*transaction.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		trail = append(trail, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return trail, nil
}

// scanTransaction scans a database row into a Transaction
func scanTransaction(rows *sql.Rows) (*transaction.Transaction, error) {
	var t transaction.Transaction
	var actionStr, statusStr string
	var bidAmount, winningBid sql.NullString
	var responseTime sql.NullInt64
	var isWinner sql.NullBool
	var lostReason sql.NullString
	var cascadePosition sql.NullInt32

	err := rows.Scan(
		&t.ID, &t.LeadID, &t.BuyerID, &actionStr, &statusStr,
		&bidAmount, &responseTime,
		&t.Payload, &t.Response, &t.ErrorMessage,
		&isWinner, &lostReason, &cascadePosition,
		&t.DeliveryMethod, &winningBid,
		&t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	action, err := transaction.ParseActionType(actionStr)
	if err != nil {
		return nil, err
	}
	t.ActionType = action

	status, err := transaction.ParseStatus(statusStr)
	if err != nil {
		return nil, err
	}
	t.Status = status

	if bidAmount.Valid {
		amount, err := values.NewMoneyFromString(bidAmount.String)
		if err != nil {
			return nil, fmt.Errorf("stored bid amount is invalid: %w", err)
		}
		t.BidAmount = &amount
	}

	if responseTime.Valid {
		ms := responseTime.Int64
		t.ResponseTimeMs = &ms
	}

	if isWinner.Valid {
		w := isWinner.Bool
		t.IsWinner = &w
	}

	if lostReason.Valid {
		reason, err := transaction.ParseLostReason(lostReason.String)
		if err != nil {
			return nil, err
		}
		t.LostReason = &reason
	}

	if cascadePosition.Valid {
		pos := int(cascadePosition.Int32)
		t.CascadePosition = &pos
	}

	if winningBid.Valid {
		amount, err := values.NewMoneyFromString(winningBid.String)
		if err != nil {
			return nil, fmt.Errorf("stored winning bid is invalid: %w", err)
		}
		t.WinningBidAmount = &amount
	}

	return &t, nil
}

// nullLostReason converts an optional lost reason for a nullable TEXT column
func nullLostReason(r *transaction.LostReason) sql.NullString {
	if r == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: r.String(), Valid: true}
}
