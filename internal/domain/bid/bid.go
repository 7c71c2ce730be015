package bid

import (
	"time"

	"github.com/google/uuid"

	"github.com/homereach/lead-exchange-backend/internal/domain/values"
)

// Bid is a priced offer extracted from a network buyer's PING response.
// Bids are not persisted as rows of their own; their lifecycle is
// recorded on the PING transactions for the lead.
type Bid struct {
	LeadID  string       `json:"lead_id"`
	BuyerID uuid.UUID    `json:"buyer_id"`
	Amount  values.Money `json:"amount"`
	Status  Status       `json:"status"`

	// Correlation metadata some networks return on PING and require
	// echoed back on POST
	PingToken   string `json:"ping_token,omitempty"`
	BuyerLeadID string `json:"buyer_lead_id,omitempty"`

	// ResponseTime is how long the buyer took to answer the PING. It
	// breaks ties between equal bids.
	ResponseTime time.Duration `json:"response_time"`

	PlacedAt time.Time `json:"placed_at"`
}

type Status int

const (
	StatusPending Status = iota
	StatusWon
	StatusLost
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusWon:
		return "won"
	case StatusLost:
		return "lost"
	default:
		return "unknown"
	}
}

func NewBid(leadID string, buyerID uuid.UUID, amount values.Money, responseTime time.Duration) *Bid {
	return &Bid{
		LeadID:       leadID,
		BuyerID:      buyerID,
		Amount:       amount,
		Status:       StatusPending,
		ResponseTime: responseTime,
		PlacedAt:     time.Now(),
	}
}

func (b *Bid) Accept() {
	b.Status = StatusWon
}

func (b *Bid) Reject() {
	b.Status = StatusLost
}

// Result is the unified outcome envelope for one auctioned lead,
// covering both the network auction and contractor fallback paths.
type Result struct {
	LeadID           string         `json:"lead_id"`
	Status           ResultStatus   `json:"status"`
	WinningBuyerID   *uuid.UUID     `json:"winning_buyer_id,omitempty"`
	WinningBidAmount *values.Money  `json:"winning_bid_amount,omitempty"`
	AllBids          []*Bid         `json:"all_bids,omitempty"`
	ParticipantCount int            `json:"participant_count"`
	DurationMs       int64          `json:"auction_duration_ms"`
	PostResult       *PostResult    `json:"post_result,omitempty"`
}

// PostResult describes the accepted POST delivery, when one happened
type PostResult struct {
	BuyerID         uuid.UUID `json:"buyer_id"`
	CascadePosition int       `json:"cascade_position"`
	Reference       string    `json:"reference,omitempty"`
}

type ResultStatus int

const (
	ResultCompleted ResultStatus = iota
	ResultFailed
	ResultNoBids
	ResultTimeout
)

func (s ResultStatus) String() string {
	switch s {
	case ResultCompleted:
		return "completed"
	case ResultFailed:
		return "failed"
	case ResultNoBids:
		return "no_bids"
	case ResultTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Completed reports whether a buyer accepted the lead and the sale
// committed
func (r *Result) Completed() bool {
	return r.Status == ResultCompleted
}
