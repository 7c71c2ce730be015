package transaction_log

import (
	"context"

	"github.com/google/uuid"

	domainErrors "github.com/homereach/lead-exchange-backend/internal/domain/errors"
	"github.com/homereach/lead-exchange-backend/internal/domain/transaction"
	"github.com/homereach/lead-exchange-backend/internal/domain/values"
)

// Service is the transaction logger: one row per PING, POST, delivery,
// or notification attempt, plus the post-hoc winner bookkeeping the
// auction engine runs once the outcome is known.
type Service struct {
	repo    Repository
	metrics Metrics
}

// NewService creates a new transaction log service
func NewService(repo Repository, metrics Metrics) *Service {
	if metrics == nil {
		metrics = NewNoopMetrics()
	}

	return &Service{
		repo:    repo,
		metrics: metrics,
	}
}

// Record persists one attempt row
func (s *Service) Record(ctx context.Context, t *transaction.Transaction) error {
	if t == nil || t.LeadID == "" {
		return domainErrors.NewValidationError("INVALID_TRANSACTION", "transaction must reference a lead")
	}

	if err := s.repo.Insert(ctx, t); err != nil {
		return domainErrors.WrapWithCode(err, "TRANSACTION_INSERT_ERROR", "failed to record transaction")
	}

	s.metrics.RecordTransaction(ctx, t)
	return nil
}

// MarkPingWinner flags the winner's PING row and denormalizes the
// clearing price onto it
func (s *Service) MarkPingWinner(ctx context.Context, leadID string, buyerID uuid.UUID, winningBid values.Money) error {
	isWinner := true
	return s.applyPingPatch(ctx, leadID, transaction.WinnerPatch{
		IsWinner:         &isWinner,
		WinningBidAmount: &winningBid,
		BuyerIDs:         []uuid.UUID{buyerID},
	})
}

// MarkPingLost flags one buyer's PING row as losing with the given
// reason. The winning bid, when the auction produced one, is
// denormalized alongside.
func (s *Service) MarkPingLost(ctx context.Context, leadID string, buyerID uuid.UUID, reason transaction.LostReason, winningBid *values.Money) error {
	isWinner := false
	return s.applyPingPatch(ctx, leadID, transaction.WinnerPatch{
		IsWinner:         &isWinner,
		LostReason:       &reason,
		WinningBidAmount: winningBid,
		BuyerIDs:         []uuid.UUID{buyerID},
	})
}

// MarkAllPingsLost rewrites every PING row for the lead with one lost
// reason. The engine uses it when the cascade exhausts and the lead
// hands off to contractors or fails outright.
func (s *Service) MarkAllPingsLost(ctx context.Context, leadID string, reason transaction.LostReason) error {
	isWinner := false
	return s.applyPingPatch(ctx, leadID, transaction.WinnerPatch{
		IsWinner:   &isWinner,
		LostReason: &reason,
	})
}

func (s *Service) applyPingPatch(ctx context.Context, leadID string, patch transaction.WinnerPatch) error {
	rows, err := s.repo.BulkUpdateByLeadAndAction(ctx, leadID, transaction.ActionPing, patch)
	if err != nil {
		return domainErrors.WrapWithCode(err, "TRANSACTION_UPDATE_ERROR", "failed to update ping transactions")
	}

	s.metrics.RecordWinnerUpdate(ctx, leadID, rows)
	return nil
}

// CountTodaySuccessfulPosts returns how many leads the buyer accepted
// today. The eligibility resolver checks it against the daily volume
// cap.
func (s *Service) CountTodaySuccessfulPosts(ctx context.Context, buyerID uuid.UUID) (int, error) {
	count, err := s.repo.CountTodayForBuyer(ctx, buyerID, transaction.ActionPost, transaction.StatusSuccess)
	if err != nil {
		return 0, domainErrors.WrapWithCode(err, "TRANSACTION_COUNT_ERROR", "failed to count buyer transactions")
	}

	return count, nil
}

// History returns the lead's full audit trail, newest first
func (s *Service) History(ctx context.Context, leadID string) ([]*transaction.Transaction, error) {
	rows, err := s.repo.ListByLead(ctx, leadID)
	if err != nil {
		return nil, domainErrors.WrapWithCode(err, "TRANSACTION_LIST_ERROR", "failed to load lead history")
	}

	return rows, nil
}
