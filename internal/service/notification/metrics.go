package notification

import "context"

// NoopMetrics is a no-op implementation of Metrics
type NoopMetrics struct{}

// NewNoopMetrics creates a new no-op metrics instance
func NewNoopMetrics() *NoopMetrics {
	return &NoopMetrics{}
}

// RecordNotification records one channel attempt
func (m *NoopMetrics) RecordNotification(ctx context.Context, channel string, delivered bool) {
	// No-op implementation for testing
}

// RecordAuditDrop records an audit row that could not be persisted
func (m *NoopMetrics) RecordAuditDrop(ctx context.Context) {
	// No-op implementation for testing
}
