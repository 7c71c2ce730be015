package transaction_log

import (
	"context"

	"github.com/google/uuid"

	"github.com/homereach/lead-exchange-backend/internal/domain/transaction"
)

// Repository defines the persistence operations the transaction log needs
type Repository interface {
	// Insert appends one attempt row
	Insert(ctx context.Context, t *transaction.Transaction) error

	// BulkUpdateByLeadAndAction applies a winner patch to the lead's rows
	// for one action type, returning the number of rows touched
	BulkUpdateByLeadAndAction(ctx context.Context, leadID string, action transaction.ActionType, patch transaction.WinnerPatch) (int64, error)

	// CountTodayForBuyer counts the buyer's rows created today with the
	// given action and status
	CountTodayForBuyer(ctx context.Context, buyerID uuid.UUID, action transaction.ActionType, status transaction.Status) (int, error)

	// ListByLead returns the lead's audit trail, newest first
	ListByLead(ctx context.Context, leadID string) ([]*transaction.Transaction, error)
}

// Metrics defines the interface for transaction log metrics
type Metrics interface {
	// RecordTransaction records one persisted attempt row
	RecordTransaction(ctx context.Context, t *transaction.Transaction)

	// RecordWinnerUpdate records a post-hoc winner bulk update
	RecordWinnerUpdate(ctx context.Context, leadID string, rows int64)
}
