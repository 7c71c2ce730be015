package auction

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/homereach/lead-exchange-backend/internal/domain/bid"
	"github.com/homereach/lead-exchange-backend/internal/domain/lead"
	"github.com/homereach/lead-exchange-backend/internal/domain/transaction"
	"github.com/homereach/lead-exchange-backend/internal/domain/values"
	"github.com/homereach/lead-exchange-backend/internal/infrastructure/buyerapi"
	"github.com/homereach/lead-exchange-backend/internal/service/eligibility"
)

// pingOutcome is one buyer's PING result. bid is non-nil only for a
// positive offer; lost holds the preliminary classification applied
// until the winner patch rewrites it.
type pingOutcome struct {
	candidate eligibility.EligibleBuyer
	accepted  *buyerapi.Accepted
	bid       *bid.Bid
	duration  time.Duration
	timedOut  bool
	lost      transaction.LostReason
}

func (o *pingOutcome) buyerID() string {
	return o.candidate.Buyer.ID.String()
}

// pingAll fans the sealed-bid PING out to every network candidate in
// parallel and waits for all of them. The context carries the global
// auction deadline; slow buyers time out individually.
func (s *Service) pingAll(ctx context.Context, l *lead.Lead, networks []eligibility.EligibleBuyer) []pingOutcome {
	anon := anonymizedCopy(l)
	outcomes := make([]pingOutcome, len(networks))

	var wg sync.WaitGroup
	for i, c := range networks {
		wg.Add(1)
		go func(i int, c eligibility.EligibleBuyer) {
			defer wg.Done()
			outcomes[i] = s.pingOne(ctx, l, anon, c)
		}(i, c)
	}
	wg.Wait()

	return outcomes
}

func (s *Service) pingOne(ctx context.Context, l, anon *lead.Lead, c eligibility.EligibleBuyer) pingOutcome {
	out := pingOutcome{candidate: c, lost: transaction.LostNoBid}
	b := c.Buyer

	payload, err := s.builder.Transform(anon, c.Config, c.Config.PingTemplate, true)
	if err != nil {
		s.record(ctx, transaction.New(l.ID, b.ID, transaction.ActionPing, transaction.StatusFailed).
			WithError(err.Error()).
			MarkLost(transaction.LostNoBid, nil))
		s.metrics.RecordPing(ctx, "build_failed", 0)
		return out
	}

	started := time.Now()
	resp, err := s.transport.Send(ctx, buyerapi.Request{
		Buyer:       b,
		URL:         b.PingURL,
		RequestType: "ping",
		ServiceType: l.ServiceTypeID,
		LeadSource:  l.Source,
		Payload:     payload,
		ContentType: c.Config.PingTemplate.ContentType,
		Timeout:     b.PingTimeout,
	})
	out.duration = time.Since(started)

	row := transaction.New(l.ID, b.ID, transaction.ActionPing, transaction.StatusSuccess).
		WithResponseTime(out.duration).
		WithPayload(encodePayload(payload))

	if err != nil {
		if buyerapi.IsTimeout(err) {
			out.timedOut = true
			out.lost = transaction.LostTimeout
			row.Status = transaction.StatusTimeout
			row.MarkLost(transaction.LostTimeout, nil)
			s.metrics.RecordPing(ctx, "timeout", out.duration)
		} else {
			row.Status = transaction.StatusFailed
			row.WithError(err.Error())
			row.MarkLost(transaction.LostNoBid, nil)
			s.metrics.RecordPing(ctx, "error", out.duration)
		}
		s.record(ctx, row)
		return out
	}

	row.WithResponse(string(resp.Body))

	switch parsed := s.parser.Parse(resp.Body, resp.StatusCode, c.Config.BidField).(type) {
	case buyerapi.Accepted:
		if parsed.Bid.IsPositive() {
			accepted := parsed
			out.accepted = &accepted
			out.bid = bid.NewBid(l.ID, b.ID, parsed.Bid, out.duration)
			out.bid.PingToken = parsed.PingToken
			out.bid.BuyerLeadID = parsed.BuyerLeadID
			row.WithBid(parsed.Bid)
			s.metrics.RecordPing(ctx, "bid", out.duration)
		} else {
			row.WithBid(values.ZeroMoney()).MarkLost(transaction.LostNoBid, nil)
			s.metrics.RecordPing(ctx, "no_bid", out.duration)
		}

	case buyerapi.Rejected:
		row.WithBid(values.ZeroMoney()).MarkLost(transaction.LostNoBid, nil)
		s.metrics.RecordPing(ctx, "declined", out.duration)

	case buyerapi.Malformed:
		row.Status = transaction.StatusFailed
		row.WithError("unparseable ping response")
		row.MarkLost(transaction.LostNoBid, nil)
		s.metrics.RecordPing(ctx, "malformed", out.duration)
	}

	s.record(ctx, row)
	return out
}

// anonymizedCopy strips contact details before the PING. Networks bid
// on the lead's shape, not its identity; they see contact information
// only after winning, on the POST.
func anonymizedCopy(l *lead.Lead) *lead.Lead {
	anon := *l
	anon.Contact = lead.Contact{}

	if l.Data != nil {
		data := make(map[string]interface{}, len(l.Data))
		for k, v := range l.Data {
			if contactDataKeys[k] {
				continue
			}
			data[k] = v
		}
		anon.Data = data
	}

	return &anon
}

var contactDataKeys = map[string]bool{
	"firstName":      true,
	"first_name":     true,
	"lastName":       true,
	"last_name":      true,
	"email":          true,
	"phone":          true,
	"phoneNumber":    true,
	"phone_number":   true,
	"address":        true,
	"street_address": true,
}

func encodePayload(payload map[string]string) string {
	raw, err := json.Marshal(payload)
	if err != nil {
		return ""
	}
	return string(raw)
}
