package main

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/homereach/lead-exchange-backend/internal/domain/bid"
	"github.com/homereach/lead-exchange-backend/internal/domain/buyer"
	"github.com/homereach/lead-exchange-backend/internal/domain/transaction"
)

// Metric definitions for the auction daemon

var (
	// Auction metrics
	auctionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lex",
			Subsystem: "auction",
			Name:      "runs_total",
			Help:      "Total number of auction runs by outcome",
		},
		[]string{"status"},
	)

	auctionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "lex",
			Subsystem: "auction",
			Name:      "duration_seconds",
			Help:      "End-to-end auction duration",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~20s
		},
		[]string{"status"},
	)

	auctionParticipants = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "lex",
			Subsystem: "auction",
			Name:      "participants",
			Help:      "Buyers pinged per auction",
			Buckets:   prometheus.LinearBuckets(1, 1, 10),
		},
	)

	winnerChangesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "lex",
			Subsystem: "auction",
			Name:      "winner_changes_total",
			Help:      "Total number of post-hoc winner reassignments",
		},
	)

	// Ping metrics
	pingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lex",
			Subsystem: "ping",
			Name:      "requests_total",
			Help:      "Total number of PING requests by outcome",
		},
		[]string{"outcome"},
	)

	pingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "lex",
			Subsystem: "ping",
			Name:      "duration_seconds",
			Help:      "PING round-trip duration",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
		},
		[]string{"outcome"},
	)

	// Post cascade metrics
	postsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lex",
			Subsystem: "post",
			Name:      "requests_total",
			Help:      "Total number of POST requests by outcome",
		},
		[]string{"outcome"},
	)

	cascadeDepth = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "lex",
			Subsystem: "post",
			Name:      "cascade_depth",
			Help:      "Cascade position at which a POST was accepted",
			Buckets:   prometheus.LinearBuckets(1, 1, 10),
		},
	)

	// Contractor delivery metrics
	dispatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lex",
			Subsystem: "delivery",
			Name:      "dispatches_total",
			Help:      "Total number of contractor dispatches by delivery mode",
		},
		[]string{"mode"},
	)

	contractorsReachedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "lex",
			Subsystem: "delivery",
			Name:      "contractors_reached_total",
			Help:      "Total number of contractors a lead actually reached",
		},
	)

	commitRacesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "lex",
			Subsystem: "delivery",
			Name:      "commit_races_total",
			Help:      "Total number of sale commits lost to a concurrent worker",
		},
	)

	// Notification metrics
	notificationAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lex",
			Subsystem: "notification",
			Name:      "attempts_total",
			Help:      "Total number of notification attempts by channel and outcome",
		},
		[]string{"channel", "outcome"},
	)

	// Intake queue metrics
	queueLeadsReceived = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "lex",
			Subsystem: "queue",
			Name:      "leads_received_total",
			Help:      "Total number of intake messages popped",
		},
	)

	queueLeadsMalformed = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "lex",
			Subsystem: "queue",
			Name:      "leads_malformed_total",
			Help:      "Total number of intake messages dead-lettered as unparseable",
		},
	)

	queueDuplicateSkips = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "lex",
			Subsystem: "queue",
			Name:      "duplicate_skips_total",
			Help:      "Total number of leads skipped because another worker holds the lock",
		},
	)

	queueLeadsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lex",
			Subsystem: "queue",
			Name:      "leads_processed_total",
			Help:      "Total number of leads run to an auction outcome",
		},
		[]string{"status"},
	)

	queueProcessingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "lex",
			Subsystem: "queue",
			Name:      "processing_duration_seconds",
			Help:      "Time from pop to auction outcome",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~20s
		},
		[]string{"status"},
	)

	queueLeadsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lex",
			Subsystem: "queue",
			Name:      "leads_failed_total",
			Help:      "Total number of failed runs by disposition",
		},
		[]string{"disposition"},
	)

	// Eligibility metrics
	resolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lex",
			Subsystem: "eligibility",
			Name:      "resolutions_total",
			Help:      "Total number of candidate resolutions by service type",
		},
		[]string{"service_type"},
	)

	eligibleCandidates = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "lex",
			Subsystem: "eligibility",
			Name:      "eligible_candidates",
			Help:      "Eligible buyers per resolution",
			Buckets:   prometheus.LinearBuckets(0, 2, 11), // 0 to 20
		},
	)

	excludedCandidates = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "lex",
			Subsystem: "eligibility",
			Name:      "excluded_candidates",
			Help:      "Excluded buyers per resolution",
			Buckets:   prometheus.LinearBuckets(0, 2, 11), // 0 to 20
		},
	)

	registryFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "lex",
			Subsystem: "eligibility",
			Name:      "registry_fallbacks_total",
			Help:      "Total number of resolutions served from the in-memory registry",
		},
	)

	registryBuyers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "lex",
			Subsystem: "eligibility",
			Name:      "registry_buyers",
			Help:      "Buyers currently held in the fallback registry",
		},
	)

	// Transaction log metrics
	txlogRowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lex",
			Subsystem: "txlog",
			Name:      "rows_total",
			Help:      "Total number of audit rows written by action and status",
		},
		[]string{"action", "status"},
	)

	txlogWinnerUpdates = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "lex",
			Subsystem: "txlog",
			Name:      "winner_updates_total",
			Help:      "Total number of post-hoc winner bulk updates",
		},
	)

	txlogWinnerUpdateRows = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "lex",
			Subsystem: "txlog",
			Name:      "winner_update_rows_total",
			Help:      "Total number of PING rows touched by winner updates",
		},
	)

	auditDropsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lex",
			Name:      "audit_drops_total",
			Help:      "Total number of audit rows that could not be persisted",
		},
		[]string{"component"},
	)

	// Database pool metrics
	dbPoolConns = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "pgxpool",
			Name:      "connections",
			Help:      "Current number of connections in the pool",
		},
		[]string{"state"},
	)

	dbPoolMax = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "pgxpool",
			Name:      "max_conns",
			Help:      "Maximum number of connections in the pool",
		},
	)
)

// MetricsHandler returns the Prometheus metrics handler
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// UpdateDBPoolMetrics refreshes the connection pool gauges
func UpdateDBPoolMetrics(acquired, idle, total, max int) {
	dbPoolConns.WithLabelValues("acquired").Set(float64(acquired))
	dbPoolConns.WithLabelValues("idle").Set(float64(idle))
	dbPoolConns.WithLabelValues("total").Set(float64(total))
	dbPoolMax.Set(float64(max))
}

// UpdateRegistrySize refreshes the fallback registry gauge
func UpdateRegistrySize(buyers int) {
	registryBuyers.Set(float64(buyers))
}

// auctionMetrics feeds the auction engine's counters
type auctionMetrics struct{}

func (auctionMetrics) RecordAuction(ctx context.Context, status bid.ResultStatus, participants int, duration time.Duration) {
	auctionsTotal.WithLabelValues(status.String()).Inc()
	auctionDuration.WithLabelValues(status.String()).Observe(duration.Seconds())
	auctionParticipants.Observe(float64(participants))
}

func (auctionMetrics) RecordPing(ctx context.Context, outcome string, duration time.Duration) {
	pingsTotal.WithLabelValues(outcome).Inc()
	pingDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

func (auctionMetrics) RecordPost(ctx context.Context, outcome string, position int) {
	postsTotal.WithLabelValues(outcome).Inc()
	if outcome == "accepted" {
		cascadeDepth.Observe(float64(position))
	}
}

func (auctionMetrics) RecordWinnerChange(ctx context.Context, leadID string) {
	winnerChangesTotal.Inc()
}

func (auctionMetrics) RecordAuditDrop(ctx context.Context) {
	auditDropsTotal.WithLabelValues("auction").Inc()
}

// dispatchMetrics feeds the contractor delivery counters
type dispatchMetrics struct{}

func (dispatchMetrics) RecordDispatch(ctx context.Context, mode buyer.DeliveryMode, delivered int) {
	dispatchesTotal.WithLabelValues(mode.String()).Inc()
	contractorsReachedTotal.Add(float64(delivered))
}

func (dispatchMetrics) RecordCommitRace(ctx context.Context, leadID string) {
	commitRacesTotal.Inc()
}

func (dispatchMetrics) RecordAuditDrop(ctx context.Context) {
	auditDropsTotal.WithLabelValues("delivery").Inc()
}

// notificationMetrics feeds the channel attempt counters
type notificationMetrics struct{}

func (notificationMetrics) RecordNotification(ctx context.Context, channel string, delivered bool) {
	outcome := "failed"
	if delivered {
		outcome = "delivered"
	}
	notificationAttemptsTotal.WithLabelValues(channel, outcome).Inc()
}

func (notificationMetrics) RecordAuditDrop(ctx context.Context) {
	auditDropsTotal.WithLabelValues("notification").Inc()
}

// queueMetrics feeds the intake consumer counters
type queueMetrics struct{}

func (queueMetrics) RecordReceived(ctx context.Context) {
	queueLeadsReceived.Inc()
}

func (queueMetrics) RecordMalformed(ctx context.Context) {
	queueLeadsMalformed.Inc()
}

func (queueMetrics) RecordDuplicateSkip(ctx context.Context) {
	queueDuplicateSkips.Inc()
}

func (queueMetrics) RecordProcessed(ctx context.Context, status bid.ResultStatus, duration time.Duration) {
	queueLeadsProcessed.WithLabelValues(status.String()).Inc()
	queueProcessingDuration.WithLabelValues(status.String()).Observe(duration.Seconds())
}

func (queueMetrics) RecordFailed(ctx context.Context, requeued bool) {
	disposition := "buried"
	if requeued {
		disposition = "requeued"
	}
	queueLeadsFailed.WithLabelValues(disposition).Inc()
}

// eligibilityMetrics feeds the resolver counters
type eligibilityMetrics struct{}

func (eligibilityMetrics) RecordResolution(ctx context.Context, serviceTypeID string, eligible, excluded int) {
	resolutionsTotal.WithLabelValues(serviceTypeID).Inc()
	eligibleCandidates.Observe(float64(eligible))
	excludedCandidates.Observe(float64(excluded))
}

func (eligibilityMetrics) RecordFallback(ctx context.Context) {
	registryFallbacks.Inc()
}

// txlogMetrics feeds the audit trail counters
type txlogMetrics struct{}

func (txlogMetrics) RecordTransaction(ctx context.Context, t *transaction.Transaction) {
	txlogRowsTotal.WithLabelValues(
		strings.ToLower(t.ActionType.String()),
		strings.ToLower(t.Status.String()),
	).Inc()
}

func (txlogMetrics) RecordWinnerUpdate(ctx context.Context, leadID string, rows int64) {
	txlogWinnerUpdates.Inc()
	txlogWinnerUpdateRows.Add(float64(rows))
}
