package queue

import (
	"context"
	"time"

	"github.com/homereach/lead-exchange-backend/internal/domain/bid"
	"github.com/homereach/lead-exchange-backend/internal/domain/lead"
)

// Redis keys shared with the lead capture side
const (
	// PendingLeadsKey is the list the capture side LPUSHes intake
	// envelopes onto; workers BRPOP from the tail for FIFO order.
	PendingLeadsKey = "lex:leads:pending"

	// DeadLeadsKey holds envelopes that exhausted their delivery
	// attempts or could never be decoded, kept for inspection.
	DeadLeadsKey = "lex:leads:dead"

	// LeadLockPrefix namespaces the per-lead idempotency locks.
	LeadLockPrefix = "lex:leads:lock:"
)

// LeadRouter runs the full auction and delivery pipeline for one lead
type LeadRouter interface {
	RunAuction(ctx context.Context, l *lead.Lead) (*bid.Result, error)
}

// Metrics records intake queue activity
type Metrics interface {
	RecordReceived(ctx context.Context)
	RecordMalformed(ctx context.Context)
	RecordDuplicateSkip(ctx context.Context)
	RecordProcessed(ctx context.Context, status bid.ResultStatus, duration time.Duration)
	RecordFailed(ctx context.Context, requeued bool)
}

// NoopMetrics is a no-op implementation of Metrics
type NoopMetrics struct{}

// NewNoopMetrics creates a new no-op metrics instance
func NewNoopMetrics() *NoopMetrics {
	return &NoopMetrics{}
}

// RecordReceived records a popped queue message
func (m *NoopMetrics) RecordReceived(ctx context.Context) {
	// No-op implementation for testing
}

// RecordMalformed records a message that could not become a lead
func (m *NoopMetrics) RecordMalformed(ctx context.Context) {
	// No-op implementation for testing
}

// RecordDuplicateSkip records a message dropped by the idempotency lock
func (m *NoopMetrics) RecordDuplicateSkip(ctx context.Context) {
	// No-op implementation for testing
}

// RecordProcessed records a lead the pipeline ran to completion
func (m *NoopMetrics) RecordProcessed(ctx context.Context, status bid.ResultStatus, duration time.Duration) {
	// No-op implementation for testing
}

// RecordFailed records a pipeline error, requeued or dead-lettered
func (m *NoopMetrics) RecordFailed(ctx context.Context, requeued bool) {
	// No-op implementation for testing
}
