package auction

import (
	"context"
	"time"

	"github.com/homereach/lead-exchange-backend/internal/domain/bid"
)

// NoopMetrics is a no-op implementation of Metrics
type NoopMetrics struct{}

// NewNoopMetrics creates a new no-op metrics instance
func NewNoopMetrics() *NoopMetrics {
	return &NoopMetrics{}
}

// RecordAuction records a finished auction
func (m *NoopMetrics) RecordAuction(ctx context.Context, status bid.ResultStatus, participants int, duration time.Duration) {
	// No-op implementation for testing
}

// RecordPing records one PING outcome
func (m *NoopMetrics) RecordPing(ctx context.Context, outcome string, duration time.Duration) {
	// No-op implementation for testing
}

// RecordPost records one cascade POST outcome
func (m *NoopMetrics) RecordPost(ctx context.Context, outcome string, position int) {
	// No-op implementation for testing
}

// RecordWinnerChange records a cascade that settled on a different
// buyer than the auction picked
func (m *NoopMetrics) RecordWinnerChange(ctx context.Context, leadID string) {
	// No-op implementation for testing
}

// RecordAuditDrop records a transaction row that could not be written
func (m *NoopMetrics) RecordAuditDrop(ctx context.Context) {
	// No-op implementation for testing
}
