package notification

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Notification is an in-app dashboard message telling a contractor a
// lead was delivered to them
type Notification struct {
	ID        uuid.UUID `json:"id"`
	BuyerID   uuid.UUID `json:"buyer_id"`
	LeadID    string    `json:"lead_id"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}

func New(buyerID uuid.UUID, leadID, title, message string) (*Notification, error) {
	if buyerID == uuid.Nil {
		return nil, fmt.Errorf("buyer ID cannot be nil")
	}
	if leadID == "" {
		return nil, fmt.Errorf("lead ID cannot be empty")
	}
	if title == "" {
		return nil, fmt.Errorf("title cannot be empty")
	}

	return &Notification{
		ID:        uuid.New(),
		BuyerID:   buyerID,
		LeadID:    leadID,
		Title:     title,
		Message:   message,
		Read:      false,
		CreatedAt: time.Now(),
	}, nil
}

// MarkRead flags the notification as seen in the dashboard
func (n *Notification) MarkRead() {
	n.Read = true
}
