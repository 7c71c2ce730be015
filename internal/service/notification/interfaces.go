package notification

import (
	"context"

	"github.com/homereach/lead-exchange-backend/internal/domain/notification"
	"github.com/homereach/lead-exchange-backend/internal/domain/transaction"
)

// EmailMessage is one rendered lead notification email
type EmailMessage struct {
	To       string `json:"to"`
	Subject  string `json:"subject"`
	TextBody string `json:"text_body"`
	HTMLBody string `json:"html_body"`
}

// EmailSender delivers a rendered email to a contractor
type EmailSender interface {
	SendEmail(ctx context.Context, msg EmailMessage) error
}

// WebhookPoster delivers a signed webhook event to a contractor's
// endpoint. Signing with the secret is the poster's concern.
type WebhookPoster interface {
	PostWebhook(ctx context.Context, url, secret string, payload []byte) error
}

// DashboardStore persists in-app notifications
type DashboardStore interface {
	Insert(ctx context.Context, n *notification.Notification) error
}

// TransactionLog records one audit row per channel attempt
type TransactionLog interface {
	Record(ctx context.Context, t *transaction.Transaction) error
}

// Metrics records notification outcomes
type Metrics interface {
	// RecordNotification records one channel attempt
	RecordNotification(ctx context.Context, channel string, delivered bool)

	// RecordAuditDrop records an audit row that could not be persisted
	RecordAuditDrop(ctx context.Context)
}
