package transaction

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/homereach/lead-exchange-backend/internal/domain/values"
)

// Transaction is one audit row: a single PING, POST, delivery, or
// notification attempt against one buyer for one lead. Rows are
// append-mostly; the post-hoc winner update is the only bulk mutation.
type Transaction struct {
	ID         uuid.UUID  `json:"id"`
	LeadID     string     `json:"lead_id"`
	BuyerID    uuid.UUID  `json:"buyer_id"`
	ActionType ActionType `json:"action_type"`
	Status     Status     `json:"status"`

	BidAmount      *values.Money `json:"bid_amount,omitempty"`
	ResponseTimeMs *int64        `json:"response_time_ms,omitempty"`

	// Serialized outbound request and inbound response for audit
	Payload      string `json:"payload,omitempty"`
	Response     string `json:"response,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`

	IsWinner        *bool       `json:"is_winner,omitempty"`
	LostReason      *LostReason `json:"lost_reason,omitempty"`
	CascadePosition *int        `json:"cascade_position,omitempty"` // 1-based rank in the POST cascade

	// DeliveryMethod lists the channels attempted for DELIVERY rows,
	// comma separated
	DeliveryMethod string `json:"delivery_method,omitempty"`

	// WinningBidAmount is denormalized onto every row of a decided
	// auction for analytics
	WinningBidAmount *values.Money `json:"winning_bid_amount,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

type ActionType int

const (
	ActionPing ActionType = iota
	ActionPost
	ActionDelivery
	ActionNotificationEmail
	ActionNotificationWebhook
	ActionNotificationDashboard
)

func (a ActionType) String() string {
	switch a {
	case ActionPing:
		return "PING"
	case ActionPost:
		return "POST"
	case ActionDelivery:
		return "DELIVERY"
	case ActionNotificationEmail:
		return "NOTIFICATION_EMAIL"
	case ActionNotificationWebhook:
		return "NOTIFICATION_WEBHOOK"
	case ActionNotificationDashboard:
		return "NOTIFICATION_DASHBOARD"
	default:
		return "UNKNOWN"
	}
}

func ParseActionType(s string) (ActionType, error) {
	switch s {
	case "PING":
		return ActionPing, nil
	case "POST":
		return ActionPost, nil
	case "DELIVERY":
		return ActionDelivery, nil
	case "NOTIFICATION_EMAIL":
		return ActionNotificationEmail, nil
	case "NOTIFICATION_WEBHOOK":
		return ActionNotificationWebhook, nil
	case "NOTIFICATION_DASHBOARD":
		return ActionNotificationDashboard, nil
	default:
		return ActionPing, fmt.Errorf("unknown action type: %s", s)
	}
}

type Status int

const (
	StatusSuccess Status = iota
	StatusFailed
	StatusTimeout
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "SUCCESS"
	case StatusFailed:
		return "FAILED"
	case StatusTimeout:
		return "TIMEOUT"
	default:
		return "UNKNOWN"
	}
}

func ParseStatus(s string) (Status, error) {
	switch s {
	case "SUCCESS":
		return StatusSuccess, nil
	case "FAILED":
		return StatusFailed, nil
	case "TIMEOUT":
		return StatusTimeout, nil
	default:
		return StatusFailed, fmt.Errorf("unknown transaction status: %s", s)
	}
}

func New(leadID string, buyerID uuid.UUID, action ActionType, status Status) *Transaction {
	return &Transaction{
		ID:         uuid.New(),
		LeadID:     leadID,
		BuyerID:    buyerID,
		ActionType: action,
		Status:     status,
		CreatedAt:  time.Now(),
	}
}

func (t *Transaction) WithBid(amount values.Money) *Transaction {
	t.BidAmount = &amount
	return t
}

func (t *Transaction) WithResponseTime(d time.Duration) *Transaction {
	ms := d.Milliseconds()
	t.ResponseTimeMs = &ms
	return t
}

func (t *Transaction) WithPayload(payload string) *Transaction {
	t.Payload = payload
	return t
}

func (t *Transaction) WithResponse(response string) *Transaction {
	t.Response = response
	return t
}

func (t *Transaction) WithError(message string) *Transaction {
	t.ErrorMessage = message
	return t
}

func (t *Transaction) WithCascadePosition(position int) *Transaction {
	t.CascadePosition = &position
	return t
}

func (t *Transaction) WithDeliveryMethod(channels []string) *Transaction {
	t.DeliveryMethod = strings.Join(channels, ",")
	return t
}

// MarkWinner flags the row as the winning attempt and denormalizes the
// clearing price
func (t *Transaction) MarkWinner(winningBid values.Money) *Transaction {
	winner := true
	t.IsWinner = &winner
	t.WinningBidAmount = &winningBid
	return t
}

// MarkLost flags the row as a losing attempt. The winning bid is
// recorded when the auction produced one.
func (t *Transaction) MarkLost(reason LostReason, winningBid *values.Money) *Transaction {
	loser := false
	t.IsWinner = &loser
	t.LostReason = &reason
	t.WinningBidAmount = winningBid
	return t
}

// Channels splits DeliveryMethod back into its channel list
func (t *Transaction) Channels() []string {
	if t.DeliveryMethod == "" {
		return nil
	}
	return strings.Split(t.DeliveryMethod, ",")
}

// WinnerPatch is the bounded bulk update applied to a lead's rows once
// the auction decides. Nil fields are left untouched. BuyerIDs narrows
// the update to specific buyers; empty means every row for the lead
// and action.
type WinnerPatch struct {
	IsWinner         *bool
	LostReason       *LostReason
	WinningBidAmount *values.Money
	BuyerIDs         []uuid.UUID
}
