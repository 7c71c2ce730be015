package contractor_delivery

import (
	"context"

	"github.com/homereach/lead-exchange-backend/internal/domain/buyer"
)

// NoopMetrics is a no-op implementation of Metrics
type NoopMetrics struct{}

// NewNoopMetrics creates a new no-op metrics instance
func NewNoopMetrics() *NoopMetrics {
	return &NoopMetrics{}
}

// RecordDispatch records a contractor dispatch
func (m *NoopMetrics) RecordDispatch(ctx context.Context, mode buyer.DeliveryMode, delivered int) {
	// No-op implementation for testing
}

// RecordCommitRace records a sale commit lost to a concurrent worker
func (m *NoopMetrics) RecordCommitRace(ctx context.Context, leadID string) {
	// No-op implementation for testing
}

// RecordAuditDrop records a transaction row that could not be written
func (m *NoopMetrics) RecordAuditDrop(ctx context.Context) {
	// No-op implementation for testing
}
