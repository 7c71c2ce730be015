package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// unobservedRate is returned for buyers with no recorded POSTs in the
// window, matching the neutral score eligibility falls back to on
// errors. Scoring a fresh buyer neutrally keeps it in rotation long
// enough to accumulate history.
const unobservedRate = 0.5

// RateSource computes a buyer's trailing POST acceptance counts from
// storage
type RateSource interface {
	PostAcceptanceCounts(ctx context.Context, buyerID uuid.UUID, since time.Time) (accepted int, total int, err error)
}

// AcceptanceRateCache serves eligibility's acceptance-rate lookups
// from Redis, recomputing from storage on miss. Cache failures fall
// through to storage; only a storage failure surfaces an error.
type AcceptanceRateCache struct {
	cache  Cache
	source RateSource
	window time.Duration
	ttl    time.Duration
	logger *zap.Logger
}

type cachedRate struct {
	Rate     float64   `json:"rate"`
	Accepted int       `json:"accepted"`
	Total    int       `json:"total"`
	CachedAt time.Time `json:"cached_at"`
}

func NewAcceptanceRateCache(cache Cache, source RateSource, logger *zap.Logger) *AcceptanceRateCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AcceptanceRateCache{
		cache:  cache,
		source: source,
		window: AcceptanceRateWindow,
		ttl:    AcceptanceRateTTL,
		logger: logger,
	}
}

// AcceptanceRate returns the buyer's trailing POST acceptance ratio in
// [0, 1]
func (c *AcceptanceRateCache) AcceptanceRate(ctx context.Context, buyerID uuid.UUID) (float64, error) {
	key := AcceptanceRatePrefix + buyerID.String()

	var cached cachedRate
	err := c.cache.GetJSON(ctx, key, &cached)
	if err == nil {
		return cached.Rate, nil
	}

	var notFound ErrCacheKeyNotFound
	if !errors.As(err, &notFound) {
		c.logger.Warn("acceptance rate cache read failed",
			zap.String("buyer_id", buyerID.String()),
			zap.Error(err))
	}

	accepted, total, err := c.source.PostAcceptanceCounts(ctx, buyerID, time.Now().Add(-c.window))
	if err != nil {
		return 0, fmt.Errorf("failed to compute acceptance rate: %w", err)
	}

	rate := unobservedRate
	if total > 0 {
		rate = float64(accepted) / float64(total)
	}

	entry := cachedRate{Rate: rate, Accepted: accepted, Total: total, CachedAt: time.Now()}
	if err := c.cache.SetJSON(ctx, key, entry, c.ttl); err != nil {
		c.logger.Warn("acceptance rate cache write failed",
			zap.String("buyer_id", buyerID.String()),
			zap.Error(err))
	}

	return rate, nil
}

// Invalidate drops a buyer's cached rate so the next lookup recomputes
func (c *AcceptanceRateCache) Invalidate(ctx context.Context, buyerID uuid.UUID) error {
	return c.cache.Delete(ctx, AcceptanceRatePrefix+buyerID.String())
}
