package contractor_delivery

import (
	"context"

	"github.com/google/uuid"

	"github.com/homereach/lead-exchange-backend/internal/domain/buyer"
	"github.com/homereach/lead-exchange-backend/internal/domain/lead"
	"github.com/homereach/lead-exchange-backend/internal/domain/transaction"
	"github.com/homereach/lead-exchange-backend/internal/domain/values"
)

// Notifier pushes a delivered lead to a contractor over its enabled
// channels. It returns the channels attempted and whether at least one
// of them got through; per-channel audit rows are the notifier's own
// concern.
type Notifier interface {
	NotifyLead(ctx context.Context, l *lead.Lead, contractor *buyer.Buyer, price values.Money) (attempted []string, delivered bool)
}

// LeadStore commits the sale. MarkSold returns false without error
// when the lead left the sellable states between selection and commit,
// which means another worker won the race.
type LeadStore interface {
	MarkSold(ctx context.Context, leadID string, buyerID uuid.UUID, price values.Money) (bool, error)
}

// TransactionLog records delivery audit rows
type TransactionLog interface {
	Record(ctx context.Context, t *transaction.Transaction) error
}

// Metrics records contractor dispatch outcomes
type Metrics interface {
	RecordDispatch(ctx context.Context, mode buyer.DeliveryMode, delivered int)
	RecordCommitRace(ctx context.Context, leadID string)
	RecordAuditDrop(ctx context.Context)
}

// Result summarizes one dispatch. BuyerIDs holds the contractors the
// lead actually reached, in rank order; TotalPrice is what they pay
// combined. Committed is false when the sale lost the status race.
type Result struct {
	Mode       buyer.DeliveryMode
	BuyerIDs   []uuid.UUID
	TotalPrice values.Money
	Delivered  bool
	Committed  bool
}
