package contractor_delivery

import (
	"context"
	"sort"

	"github.com/homereach/lead-exchange-backend/internal/domain/buyer"
	domainErrors "github.com/homereach/lead-exchange-backend/internal/domain/errors"
	"github.com/homereach/lead-exchange-backend/internal/domain/lead"
	"github.com/homereach/lead-exchange-backend/internal/domain/transaction"
	"github.com/homereach/lead-exchange-backend/internal/domain/values"
	"github.com/homereach/lead-exchange-backend/internal/service/eligibility"
)

// Service delivers leads to contractor buyers when the network auction
// produced no sale, or when only contractors cover the zip. It ranks
// contractors, prices the lead per contractor, notifies the selected
// set, and commits the sale once.
type Service struct {
	notifier Notifier
	leads    LeadStore
	txlog    TransactionLog
	metrics  Metrics
}

// NewService creates a new contractor dispatcher
func NewService(notifier Notifier, leads LeadStore, txlog TransactionLog, metrics Metrics) *Service {
	if metrics == nil {
		metrics = NewNoopMetrics()
	}

	return &Service{
		notifier: notifier,
		leads:    leads,
		txlog:    txlog,
		metrics:  metrics,
	}
}

type ranked struct {
	candidate eligibility.EligibleBuyer
	price     values.Money
}

// Deliver dispatches the lead to contractors among the candidates.
// networkBid carries the highest network bid from the auction when one
// existed; hybrid pricing references it. A Result with Delivered false
// means no contractor could take the lead.
func (s *Service) Deliver(ctx context.Context, l *lead.Lead, candidates []eligibility.EligibleBuyer, networkBid *values.Money) (*Result, error) {
	contractors := make([]ranked, 0, len(candidates))
	for _, c := range candidates {
		if c.Buyer == nil || !c.Buyer.IsContractor() {
			continue
		}
		contractors = append(contractors, ranked{candidate: c, price: effectivePrice(c, networkBid)})
	}

	if len(contractors) == 0 {
		return &Result{TotalPrice: values.ZeroMoney()}, nil
	}

	sort.SliceStable(contractors, func(i, j int) bool {
		pi, pj := contractors[i].candidate.Zone.Priority, contractors[j].candidate.Zone.Priority
		if pi != pj {
			return pi < pj
		}
		if cmp := contractors[i].price.Compare(contractors[j].price); cmp != 0 {
			return cmp > 0
		}
		return contractors[i].candidate.Buyer.ID.String() < contractors[j].candidate.Buyer.ID.String()
	})

	// The top-ranked contractor's preference decides the mode for the
	// whole dispatch
	mode := contractors[0].candidate.Buyer.DeliveryMode
	selected := contractors[:1]
	if mode == buyer.DeliveryShared {
		n := contractors[0].candidate.Buyer.MaxSharedLeads
		if n < 1 {
			n = 1
		}
		if n > len(contractors) {
			n = len(contractors)
		}
		selected = contractors[:n]
	}

	result := &Result{Mode: mode, TotalPrice: values.ZeroMoney()}

	for _, r := range selected {
		c := r.candidate.Buyer

		channels := c.EnabledChannels()
		if len(channels) == 0 {
			notWinner := false
			row := transaction.New(l.ID, c.ID, transaction.ActionDelivery, transaction.StatusFailed).
				WithBid(r.price).
				WithError("no notification channels enabled")
			row.IsWinner = &notWinner
			s.record(ctx, row)
			continue
		}

		attempted, delivered := s.notifier.NotifyLead(ctx, l, c, r.price)

		row := transaction.New(l.ID, c.ID, transaction.ActionDelivery, transaction.StatusSuccess).
			WithBid(r.price).
			WithDeliveryMethod(attempted)

		if delivered {
			row.MarkWinner(r.price)
			result.BuyerIDs = append(result.BuyerIDs, c.ID)

			total, err := result.TotalPrice.Add(r.price)
			if err != nil {
				return nil, domainErrors.WrapWithCode(err, "DELIVERY_PRICE_ERROR", "contractor price total out of range")
			}
			result.TotalPrice = total
		} else {
			notWinner := false
			row.Status = transaction.StatusFailed
			row.IsWinner = &notWinner
			row.WithError("all notification channels failed")
		}
		s.record(ctx, row)
	}

	// Contractors ranked out of the selection still get an audit row so
	// the trail explains why they never saw the lead
	lostReason := transaction.LostNotSelected
	if mode == buyer.DeliveryShared {
		lostReason = transaction.LostLowerPriority
	}
	for _, r := range contractors[len(selected):] {
		s.record(ctx, transaction.New(l.ID, r.candidate.Buyer.ID, transaction.ActionDelivery, transaction.StatusFailed).
			WithBid(r.price).
			MarkLost(lostReason, nil))
	}

	if len(result.BuyerIDs) == 0 {
		s.metrics.RecordDispatch(ctx, mode, 0)
		return result, nil
	}
	result.Delivered = true

	// One commit for the whole dispatch. In shared mode the delivered
	// rows above stand even if the commit loses the race; those
	// contractors already have the lead and still pay.
	committed, err := s.leads.MarkSold(ctx, l.ID, result.BuyerIDs[0], result.TotalPrice)
	if err != nil {
		return result, domainErrors.WrapWithCode(err, "LEAD_COMMIT_ERROR", "failed to commit contractor sale")
	}
	result.Committed = committed
	if !committed {
		s.metrics.RecordCommitRace(ctx, l.ID)
	}

	s.metrics.RecordDispatch(ctx, mode, len(result.BuyerIDs))
	return result, nil
}

// effectivePrice computes what the contractor pays for this lead under
// its pricing model
func effectivePrice(c eligibility.EligibleBuyer, networkBid *values.Money) values.Money {
	b := c.Buyer

	switch b.PricingModel {
	case buyer.PricingFixed:
		if b.FixedLeadPrice != nil {
			return *b.FixedLeadPrice
		}
		return values.ZeroMoney()

	case buyer.PricingAuction:
		if mb := maxBidFor(c); mb != nil {
			return *mb
		}
		return values.ZeroMoney()

	case buyer.PricingHybrid:
		// Shared hybrid references the network's winning bid at half
		// price; without a reference bid the contractor pays the larger
		// of its cap and its fixed price
		if b.DeliveryMode == buyer.DeliveryShared && networkBid != nil {
			if half, err := networkBid.MulFloat(0.5); err == nil {
				return half
			}
		}

		maxBid := values.ZeroMoney()
		if mb := maxBidFor(c); mb != nil {
			maxBid = *mb
		}
		fixed := values.ZeroMoney()
		if b.FixedLeadPrice != nil {
			fixed = *b.FixedLeadPrice
		}
		return maxBid.Max(fixed)
	}

	return values.ZeroMoney()
}

func maxBidFor(c eligibility.EligibleBuyer) *values.Money {
	if c.Zone != nil && c.Zone.MaxBid != nil {
		return c.Zone.MaxBid
	}
	if c.Config != nil {
		return c.Config.MaxBid
	}
	return nil
}

func (s *Service) record(ctx context.Context, t *transaction.Transaction) {
	if err := s.txlog.Record(ctx, t); err != nil {
		s.metrics.RecordAuditDrop(ctx)
	}
}
