package transaction_log

import (
	"context"

	"github.com/homereach/lead-exchange-backend/internal/domain/transaction"
)

// NoopMetrics is a no-operation implementation of Metrics for testing
type NoopMetrics struct{}

// NewNoopMetrics creates a new no-operation metrics collector
func NewNoopMetrics() *NoopMetrics {
	return &NoopMetrics{}
}

// RecordTransaction records one persisted attempt row (no-op)
func (m *NoopMetrics) RecordTransaction(ctx context.Context, t *transaction.Transaction) {
	// No-op implementation for testing
}

// RecordWinnerUpdate records a post-hoc winner bulk update (no-op)
func (m *NoopMetrics) RecordWinnerUpdate(ctx context.Context, leadID string, rows int64) {
	// No-op implementation for testing
}
