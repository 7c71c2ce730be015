package eligibility

import "context"

// NoopMetrics is a no-op implementation of Metrics
type NoopMetrics struct{}

// NewNoopMetrics creates a new no-op metrics instance
func NewNoopMetrics() *NoopMetrics {
	return &NoopMetrics{}
}

// RecordResolution records an eligibility resolution
func (m *NoopMetrics) RecordResolution(ctx context.Context, serviceTypeID string, eligible, excluded int) {
	// No-op implementation for testing
}

// RecordFallback records a degradation to the in-memory registry
func (m *NoopMetrics) RecordFallback(ctx context.Context) {
	// No-op implementation for testing
}
