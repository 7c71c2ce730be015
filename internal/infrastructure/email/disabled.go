package email

import (
	"context"
	"errors"

	"github.com/homereach/lead-exchange-backend/internal/service/notification"
)

// ErrNotConfigured is returned for every send attempted through a
// DisabledSender.
var ErrNotConfigured = errors.New("email channel is not configured")

// DisabledSender rejects every send. The daemon wires it when no
// sender address is configured, so email attempts fail cleanly and
// delivery falls through to the contractor's other channels.
type DisabledSender struct{}

// NewDisabledSender creates a sender that refuses all mail
func NewDisabledSender() *DisabledSender {
	return &DisabledSender{}
}

// SendEmail always fails with ErrNotConfigured
func (s *DisabledSender) SendEmail(ctx context.Context, msg notification.EmailMessage) error {
	return ErrNotConfigured
}
