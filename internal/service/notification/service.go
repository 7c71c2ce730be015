package notification

import (
	"context"

	"github.com/homereach/lead-exchange-backend/internal/domain/buyer"
	"github.com/homereach/lead-exchange-backend/internal/domain/lead"
	"github.com/homereach/lead-exchange-backend/internal/domain/notification"
	"github.com/homereach/lead-exchange-backend/internal/domain/transaction"
	"github.com/homereach/lead-exchange-backend/internal/domain/values"
)

// Service pushes delivered leads to contractors over email, webhook,
// and the dashboard. Channels are independent: one failing never stops
// the others, and delivery counts as long as one got through.
type Service struct {
	email     EmailSender
	webhooks  WebhookPoster
	dashboard DashboardStore
	txlog     TransactionLog
	metrics   Metrics
}

// NewService creates a new notification service
func NewService(email EmailSender, webhooks WebhookPoster, dashboard DashboardStore,
	txlog TransactionLog, metrics Metrics) *Service {
	if metrics == nil {
		metrics = NewNoopMetrics()
	}

	return &Service{
		email:     email,
		webhooks:  webhooks,
		dashboard: dashboard,
		txlog:     txlog,
		metrics:   metrics,
	}
}

// NotifyLead fans one delivered lead out to the contractor's enabled
// channels. It returns the channels attempted and whether at least one
// succeeded. Every attempt gets its own audit row.
func (s *Service) NotifyLead(ctx context.Context, l *lead.Lead, contractor *buyer.Buyer, price values.Money) ([]string, bool) {
	var attempted []string
	delivered := false

	for _, channel := range contractor.EnabledChannels() {
		attempted = append(attempted, channel)

		var target string
		var err error
		switch channel {
		case "email":
			target = contractor.ContactEmail.String()
			err = s.sendEmail(ctx, l, contractor, price)
		case "webhook":
			target = contractor.WebhookURL
			err = s.sendWebhook(ctx, l, contractor, price)
		case "dashboard":
			target, err = s.recordDashboard(ctx, l, contractor, price)
		}

		row := transaction.New(l.ID, contractor.ID, actionFor(channel), transaction.StatusSuccess).
			WithDeliveryMethod([]string{channel}).
			WithPayload(target)
		if err != nil {
			row.Status = transaction.StatusFailed
			row.WithError(err.Error())
			s.metrics.RecordNotification(ctx, channel, false)
		} else {
			delivered = true
			s.metrics.RecordNotification(ctx, channel, true)
		}
		s.record(ctx, row)
	}

	return attempted, delivered
}

func (s *Service) sendEmail(ctx context.Context, l *lead.Lead, contractor *buyer.Buyer, price values.Money) error {
	textBody, htmlBody := buildEmail(l, price)
	return s.email.SendEmail(ctx, EmailMessage{
		To:       contractor.ContactEmail.String(),
		Subject:  emailSubject(l),
		TextBody: textBody,
		HTMLBody: htmlBody,
	})
}

func (s *Service) sendWebhook(ctx context.Context, l *lead.Lead, contractor *buyer.Buyer, price values.Money) error {
	payload, err := buildWebhookEvent(l, contractor, price, clock.Now())
	if err != nil {
		return err
	}
	return s.webhooks.PostWebhook(ctx, contractor.WebhookURL, contractor.WebhookSecret, payload)
}

func (s *Service) recordDashboard(ctx context.Context, l *lead.Lead, contractor *buyer.Buyer, price values.Money) (string, error) {
	n, err := notification.New(contractor.ID, l.ID, emailSubject(l), dashboardMessage(l, price))
	if err != nil {
		return "", err
	}
	if err := s.dashboard.Insert(ctx, n); err != nil {
		return n.ID.String(), err
	}
	return n.ID.String(), nil
}

func actionFor(channel string) transaction.ActionType {
	switch channel {
	case "email":
		return transaction.ActionNotificationEmail
	case "webhook":
		return transaction.ActionNotificationWebhook
	default:
		return transaction.ActionNotificationDashboard
	}
}

func (s *Service) record(ctx context.Context, t *transaction.Transaction) {
	if err := s.txlog.Record(ctx, t); err != nil {
		s.metrics.RecordAuditDrop(ctx)
	}
}
