package auction

import (
	"context"

	"github.com/google/uuid"

	"github.com/homereach/lead-exchange-backend/internal/domain/lead"
	"github.com/homereach/lead-exchange-backend/internal/domain/transaction"
)

// selectWinner picks the best floor-passing bid. Equal top bids resolve
// by the configured tiebreak, unless tied bids are allowed, in which
// case the earliest responder takes it.
func (s *Service) selectWinner(outcomes []pingOutcome, cfg Config) *pingOutcome {
	var contenders []*pingOutcome
	for i := range outcomes {
		o := &outcomes[i]
		if o.bid == nil || !cfg.meetsFloor(o.bid.Amount) {
			continue
		}
		contenders = append(contenders, o)
	}
	if len(contenders) == 0 {
		return nil
	}

	best := contenders[0]
	for _, o := range contenders[1:] {
		if o.bid.Amount.GreaterThan(best.bid.Amount) {
			best = o
		}
	}

	var tied []*pingOutcome
	for _, o := range contenders {
		if o.bid.Amount.Equal(best.bid.Amount) {
			tied = append(tied, o)
		}
	}
	if len(tied) == 1 {
		return tied[0]
	}

	if cfg.AllowTiedBids {
		return fastestOf(tied)
	}

	switch cfg.Tiebreak {
	case TiebreakRandom:
		return tied[s.intn(len(tied))]
	case TiebreakPriority:
		return s.bestPriorityOf(tied)
	default:
		return fastestOf(tied)
	}
}

func fastestOf(tied []*pingOutcome) *pingOutcome {
	best := tied[0]
	for _, o := range tied[1:] {
		if o.duration < best.duration {
			best = o
		}
	}
	return best
}

func (s *Service) bestPriorityOf(tied []*pingOutcome) *pingOutcome {
	bestPriority := tied[0].candidate.Zone.Priority
	for _, o := range tied[1:] {
		if o.candidate.Zone.Priority < bestPriority {
			bestPriority = o.candidate.Zone.Priority
		}
	}

	var top []*pingOutcome
	for _, o := range tied {
		if o.candidate.Zone.Priority == bestPriority {
			top = append(top, o)
		}
	}
	if len(top) == 1 {
		return top[0]
	}
	return top[s.intn(len(top))]
}

// applyWinnerPatch rewrites the lead's PING rows once a winner is
// known: the winner's row gets isWinner, every other row gets its loss
// classification, and all rows learn the winning amount. demoted names
// buyers whose POST was refused before the final winner emerged; their
// rows show the POST rejection instead of a plain outbid.
func (s *Service) applyWinnerPatch(ctx context.Context, l *lead.Lead, outcomes []pingOutcome, winner *pingOutcome, demoted map[uuid.UUID]bool) {
	amount := winner.bid.Amount

	if err := s.txlog.MarkPingWinner(ctx, l.ID, winner.candidate.Buyer.ID, amount); err != nil {
		s.metrics.RecordAuditDrop(ctx)
	}

	for i := range outcomes {
		o := &outcomes[i]
		if o == winner {
			continue
		}

		reason := o.lost
		switch {
		case demoted[o.candidate.Buyer.ID]:
			reason = transaction.LostPostRejected
		case o.bid != nil:
			reason = transaction.LostOutbid
		}

		if err := s.txlog.MarkPingLost(ctx, l.ID, o.candidate.Buyer.ID, reason, &amount); err != nil {
			s.metrics.RecordAuditDrop(ctx)
		}
	}
}
