package auction

import (
	"context"
	"math/rand"
	"time"

	"github.com/homereach/lead-exchange-backend/internal/domain/bid"
	domainErrors "github.com/homereach/lead-exchange-backend/internal/domain/errors"
	"github.com/homereach/lead-exchange-backend/internal/domain/lead"
	"github.com/homereach/lead-exchange-backend/internal/domain/transaction"
	"github.com/homereach/lead-exchange-backend/internal/domain/values"
	"github.com/homereach/lead-exchange-backend/internal/service/eligibility"
)

// Service runs the sealed-bid auction for one lead: resolve candidates,
// fan out anonymized PINGs, pick the winner, then POST the full lead
// down the cascade until a buyer accepts or the network side exhausts
// and contractors take over.
type Service struct {
	resolver    Resolver
	transport   Transport
	builder     PayloadBuilder
	parser      ResponseParser
	txlog       TransactionLog
	leads       LeadStore
	contractors ContractorDispatcher
	metrics     Metrics

	// intn supplies tiebreak randomness; tests pin it
	intn func(n int) int
}

// NewService creates a new auction engine
func NewService(resolver Resolver, transport Transport, builder PayloadBuilder, parser ResponseParser,
	txlog TransactionLog, leads LeadStore, contractors ContractorDispatcher, metrics Metrics) *Service {
	if metrics == nil {
		metrics = NewNoopMetrics()
	}

	return &Service{
		resolver:    resolver,
		transport:   transport,
		builder:     builder,
		parser:      parser,
		txlog:       txlog,
		leads:       leads,
		contractors: contractors,
		metrics:     metrics,
		intn:        rand.Intn,
	}
}

// Run auctions one lead and returns the outcome envelope. Persistence
// problems while recording audit rows never stop the run; only the
// final sale commit is allowed to abort.
func (s *Service) Run(ctx context.Context, l *lead.Lead, cfg Config) (*bid.Result, error) {
	start := time.Now()

	claimed, err := s.leads.UpdateStatusIfIn(ctx, l.ID,
		[]lead.Status{lead.StatusPending, lead.StatusProcessing, lead.StatusAuctioned},
		lead.StatusProcessing)
	if err != nil {
		return nil, domainErrors.WrapWithCode(err, "AUCTION_CLAIM_ERROR", "failed to claim lead for auction")
	}
	if !claimed {
		return s.finish(ctx, start, &bid.Result{LeadID: l.ID, Status: bid.ResultFailed}), nil
	}

	resolved, err := s.resolver.Resolve(ctx, l, eligibility.Query{
		MaxParticipants: cfg.MaxParticipants,
		RequireMinBid:   cfg.RequireMinimumBid,
		MinBidThreshold: cfg.minBidThreshold(),
	})
	if err != nil {
		return nil, err
	}

	var networks, contractors []eligibility.EligibleBuyer
	for _, e := range resolved.Eligible {
		if e.Buyer.IsNetwork() {
			networks = append(networks, e)
		} else {
			contractors = append(contractors, e)
		}
	}

	if len(networks) == 0 {
		if len(contractors) == 0 {
			return s.finish(ctx, start, &bid.Result{LeadID: l.ID, Status: bid.ResultFailed}), nil
		}
		// Contractor-only zip: no auction, straight to delivery
		return s.deliverToContractors(ctx, l, contractors, nil, nil, 0, start)
	}

	auctionCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	outcomes := s.pingAll(auctionCtx, l, networks)
	cancel()

	allBids := collectBids(outcomes)
	winner := s.selectWinner(outcomes, cfg)

	if winner == nil {
		if len(contractors) > 0 {
			return s.deliverToContractors(ctx, l, contractors, nil, allBids, len(networks), start)
		}

		status := bid.ResultNoBids
		if allTimedOut(outcomes) {
			status = bid.ResultTimeout
		}
		return s.finish(ctx, start, &bid.Result{
			LeadID:           l.ID,
			Status:           status,
			AllBids:          allBids,
			ParticipantCount: len(networks),
		}), nil
	}

	// Best effort; a failed flip here never stops the auction
	_, _ = s.leads.UpdateStatusIfIn(ctx, l.ID, []lead.Status{lead.StatusProcessing}, lead.StatusAuctioned)

	s.applyWinnerPatch(ctx, l, outcomes, winner, nil)

	ordered := cascadeOrder(outcomes, winner, cfg)
	cas, err := s.runCascade(ctx, l, ordered)
	if err != nil {
		return nil, err
	}

	if cas.raceLost {
		return s.finish(ctx, start, &bid.Result{
			LeadID:           l.ID,
			Status:           bid.ResultFailed,
			AllBids:          allBids,
			ParticipantCount: len(networks),
		}), nil
	}

	if cas.winner != nil {
		if cas.winner != winner {
			s.metrics.RecordWinnerChange(ctx, l.ID)
			s.applyWinnerPatch(ctx, l, outcomes, cas.winner, cas.demoted)
		}
		cas.winner.bid.Accept()

		winnerID := cas.winner.candidate.Buyer.ID
		amount := cas.winner.bid.Amount
		return s.finish(ctx, start, &bid.Result{
			LeadID:           l.ID,
			Status:           bid.ResultCompleted,
			WinningBuyerID:   &winnerID,
			WinningBidAmount: &amount,
			AllBids:          allBids,
			ParticipantCount: len(networks),
			PostResult: &bid.PostResult{
				BuyerID:         winnerID,
				CascadePosition: cas.position,
				Reference:       cas.reference,
			},
		}), nil
	}

	// Cascade exhausted: every PING row flips to the exhaustion
	// classification, the optimistic winner's included
	if err := s.txlog.MarkAllPingsLost(ctx, l.ID, transaction.LostCascadeExhausted); err != nil {
		s.metrics.RecordAuditDrop(ctx)
	}

	if len(contractors) > 0 {
		amount := winner.bid.Amount
		return s.deliverToContractors(ctx, l, contractors, &amount, allBids, len(networks), start)
	}

	// No fallback left; one synthesized row closes the trail
	s.record(ctx, transaction.New(l.ID, ordered[0].candidate.Buyer.ID, transaction.ActionPost, transaction.StatusFailed).
		WithError("cascade exhausted, no contractor coverage").
		MarkLost(transaction.LostCascadeExhausted, nil))

	return s.finish(ctx, start, &bid.Result{
		LeadID:           l.ID,
		Status:           bid.ResultFailed,
		AllBids:          allBids,
		ParticipantCount: len(networks),
	}), nil
}

// deliverToContractors maps a contractor dispatch onto the auction
// result envelope. networkBid carries the winning network amount when
// the cascade exhausted after a priced auction.
func (s *Service) deliverToContractors(ctx context.Context, l *lead.Lead, candidates []eligibility.EligibleBuyer,
	networkBid *values.Money, allBids []*bid.Bid, participants int, start time.Time) (*bid.Result, error) {
	dispatched, err := s.contractors.Deliver(ctx, l, candidates, networkBid)
	if err != nil {
		return nil, err
	}

	result := &bid.Result{
		LeadID:           l.ID,
		AllBids:          allBids,
		ParticipantCount: participants,
	}

	if dispatched.Delivered && dispatched.Committed {
		winnerID := dispatched.BuyerIDs[0]
		total := dispatched.TotalPrice
		result.Status = bid.ResultCompleted
		result.WinningBuyerID = &winnerID
		result.WinningBidAmount = &total
	} else {
		result.Status = bid.ResultFailed
	}

	return s.finish(ctx, start, result), nil
}

func (s *Service) finish(ctx context.Context, start time.Time, r *bid.Result) *bid.Result {
	elapsed := time.Since(start)
	r.DurationMs = elapsed.Milliseconds()
	s.metrics.RecordAuction(ctx, r.Status, r.ParticipantCount, elapsed)
	return r
}

func (s *Service) record(ctx context.Context, t *transaction.Transaction) {
	if err := s.txlog.Record(ctx, t); err != nil {
		s.metrics.RecordAuditDrop(ctx)
	}
}

// collectBids gathers every priced offer for the result envelope. All
// of them start rejected; the final winner is flipped after the
// cascade settles.
func collectBids(outcomes []pingOutcome) []*bid.Bid {
	var bids []*bid.Bid
	for i := range outcomes {
		if outcomes[i].bid != nil {
			outcomes[i].bid.Reject()
			bids = append(bids, outcomes[i].bid)
		}
	}
	return bids
}

func allTimedOut(outcomes []pingOutcome) bool {
	for i := range outcomes {
		if !outcomes[i].timedOut {
			return false
		}
	}
	return len(outcomes) > 0
}
