package auction

import (
	"context"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	domainErrors "github.com/homereach/lead-exchange-backend/internal/domain/errors"
	"github.com/homereach/lead-exchange-backend/internal/domain/lead"
	"github.com/homereach/lead-exchange-backend/internal/domain/transaction"
	"github.com/homereach/lead-exchange-backend/internal/infrastructure/buyerapi"
)

// cascadeOrder returns the floor-passing bidders in POST order: amount
// descending, the selected winner ahead of equal bids, then response
// time, then buyer ID so reruns stay deterministic.
func cascadeOrder(outcomes []pingOutcome, winner *pingOutcome, cfg Config) []*pingOutcome {
	var ordered []*pingOutcome
	for i := range outcomes {
		o := &outcomes[i]
		if o.bid == nil || !cfg.meetsFloor(o.bid.Amount) {
			continue
		}
		ordered = append(ordered, o)
	}

	sort.SliceStable(ordered, func(i, j int) bool {
		if cmp := ordered[i].bid.Amount.Compare(ordered[j].bid.Amount); cmp != 0 {
			return cmp > 0
		}
		if (ordered[i] == winner) != (ordered[j] == winner) {
			return ordered[i] == winner
		}
		if ordered[i].duration != ordered[j].duration {
			return ordered[i].duration < ordered[j].duration
		}
		return ordered[i].buyerID() < ordered[j].buyerID()
	})

	return ordered
}

// cascadeResult is the POST phase outcome. winner is nil when every
// bidder refused; raceLost means a buyer accepted but another worker
// had already sold the lead.
type cascadeResult struct {
	winner    *pingOutcome
	position  int
	reference string
	raceLost  bool
	demoted   map[uuid.UUID]bool
}

// runCascade walks the bidders in order, posting the full lead to each
// until one accepts and the sale commits. Rejections and timeouts fall
// through to the next bidder.
func (s *Service) runCascade(ctx context.Context, l *lead.Lead, ordered []*pingOutcome) (cascadeResult, error) {
	res := cascadeResult{demoted: make(map[uuid.UUID]bool)}

	for i, o := range ordered {
		position := i + 1
		b := o.candidate.Buyer

		payload, err := s.builder.Transform(l, o.candidate.Config, o.candidate.Config.PostTemplate, true)
		if err != nil {
			s.record(ctx, transaction.New(l.ID, b.ID, transaction.ActionPost, transaction.StatusFailed).
				WithCascadePosition(position).
				WithBid(o.bid.Amount).
				WithError(err.Error()).
				MarkLost(transaction.LostPostRejected, nil))
			res.demoted[b.ID] = true
			s.metrics.RecordPost(ctx, "build_failed", position)
			continue
		}

		// Auction context travels with the full lead
		payload["auction_winning_bid"] = o.bid.Amount.String()
		payload["auction_timestamp"] = time.Now().UTC().Format(time.RFC3339)
		payload["cascade_position"] = strconv.Itoa(position)
		if o.bid.PingToken != "" {
			payload["pingToken"] = o.bid.PingToken
		}
		if o.bid.BuyerLeadID != "" {
			payload["buyerLeadId"] = o.bid.BuyerLeadID
		}

		started := time.Now()
		resp, err := s.transport.Send(ctx, buyerapi.Request{
			Buyer:       b,
			URL:         b.PostURL,
			RequestType: "post",
			ServiceType: l.ServiceTypeID,
			LeadSource:  l.Source,
			Payload:     payload,
			ContentType: o.candidate.Config.PostTemplate.ContentType,
			Timeout:     b.PostTimeout,
		})
		elapsed := time.Since(started)

		row := transaction.New(l.ID, b.ID, transaction.ActionPost, transaction.StatusSuccess).
			WithCascadePosition(position).
			WithResponseTime(elapsed).
			WithPayload(encodePayload(payload)).
			WithBid(o.bid.Amount)

		if err != nil {
			if buyerapi.IsTimeout(err) {
				row.Status = transaction.StatusTimeout
				row.MarkLost(transaction.LostTimeout, nil)
				s.metrics.RecordPost(ctx, "timeout", position)
			} else {
				row.Status = transaction.StatusFailed
				row.WithError(err.Error())
				row.MarkLost(transaction.LostPostRejected, nil)
				s.metrics.RecordPost(ctx, "error", position)
			}
			s.record(ctx, row)
			res.demoted[b.ID] = true
			continue
		}

		row.WithResponse(string(resp.Body))

		switch parsed := s.parser.Parse(resp.Body, resp.StatusCode, o.candidate.Config.BidField).(type) {
		case buyerapi.Accepted:
			committed, commitErr := s.leads.MarkSold(ctx, l.ID, b.ID, o.bid.Amount)
			if commitErr != nil {
				row.Status = transaction.StatusFailed
				row.WithError(commitErr.Error())
				s.record(ctx, row)
				return res, domainErrors.WrapWithCode(commitErr, "AUCTION_COMMIT_ERROR", "failed to commit network sale")
			}

			if !committed {
				// Another worker sold this lead while we were posting
				row.Status = transaction.StatusFailed
				row.WithError("lead already sold")
				row.MarkLost(transaction.LostDuplicateLead, nil)
				s.record(ctx, row)
				s.metrics.RecordPost(ctx, "race_lost", position)
				res.raceLost = true
				return res, nil
			}

			row.MarkWinner(o.bid.Amount)
			s.record(ctx, row)
			s.metrics.RecordPost(ctx, "accepted", position)

			res.winner = o
			res.position = position
			res.reference = parsed.BuyerLeadID
			return res, nil

		case buyerapi.Rejected:
			row.Status = transaction.StatusFailed
			row.WithError(parsed.Reason)
			row.MarkLost(parsed.LostReason, nil)
			s.record(ctx, row)
			res.demoted[b.ID] = true
			s.metrics.RecordPost(ctx, "rejected", position)

		case buyerapi.Malformed:
			row.Status = transaction.StatusFailed
			row.WithError("unparseable post response")
			row.MarkLost(transaction.LostPostRejected, nil)
			s.record(ctx, row)
			res.demoted[b.ID] = true
			s.metrics.RecordPost(ctx, "malformed", position)
		}
	}

	return res, nil
}
