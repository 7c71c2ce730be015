package auction

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/homereach/lead-exchange-backend/internal/domain/bid"
	"github.com/homereach/lead-exchange-backend/internal/domain/buyer"
	"github.com/homereach/lead-exchange-backend/internal/domain/lead"
	"github.com/homereach/lead-exchange-backend/internal/domain/transaction"
	"github.com/homereach/lead-exchange-backend/internal/domain/values"
	"github.com/homereach/lead-exchange-backend/internal/infrastructure/buyerapi"
	"github.com/homereach/lead-exchange-backend/internal/service/contractor_delivery"
	"github.com/homereach/lead-exchange-backend/internal/service/eligibility"
)

// Resolver supplies the filtered, ranked candidate set for a lead
type Resolver interface {
	Resolve(ctx context.Context, l *lead.Lead, q eligibility.Query) (*eligibility.Result, error)
}

// Transport sends one PING or POST to a buyer endpoint
type Transport interface {
	Send(ctx context.Context, req buyerapi.Request) (*buyerapi.Response, error)
}

// PayloadBuilder projects a lead into one buyer's payload shape
type PayloadBuilder interface {
	Transform(l *lead.Lead, config *buyer.ServiceConfig, tmpl buyer.Template, includeCompliance bool) (map[string]string, error)
}

// ResponseParser classifies a buyer response body
type ResponseParser interface {
	Parse(body []byte, statusCode int, bidField string) buyerapi.Outcome
}

// TransactionLog records audit rows during the auction and applies the
// post-auction winner patch to the lead's PING rows
type TransactionLog interface {
	Record(ctx context.Context, t *transaction.Transaction) error
	MarkPingWinner(ctx context.Context, leadID string, buyerID uuid.UUID, winningBid values.Money) error
	MarkPingLost(ctx context.Context, leadID string, buyerID uuid.UUID, reason transaction.LostReason, winningBid *values.Money) error
	MarkAllPingsLost(ctx context.Context, leadID string, reason transaction.LostReason) error
}

// LeadStore moves the lead through its auction states. Both updates are
// conditional; false means the lead was not in an expected state.
type LeadStore interface {
	UpdateStatusIfIn(ctx context.Context, leadID string, allowed []lead.Status, to lead.Status) (bool, error)
	MarkSold(ctx context.Context, leadID string, buyerID uuid.UUID, price values.Money) (bool, error)
}

// ContractorDispatcher hands the lead to contractor buyers when the
// network side produced no sale
type ContractorDispatcher interface {
	Deliver(ctx context.Context, l *lead.Lead, candidates []eligibility.EligibleBuyer, networkBid *values.Money) (*contractor_delivery.Result, error)
}

// Metrics records auction outcomes
type Metrics interface {
	RecordAuction(ctx context.Context, status bid.ResultStatus, participants int, duration time.Duration)
	RecordPing(ctx context.Context, outcome string, duration time.Duration)
	RecordPost(ctx context.Context, outcome string, position int)
	RecordWinnerChange(ctx context.Context, leadID string)
	RecordAuditDrop(ctx context.Context)
}
