package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/homereach/lead-exchange-backend/internal/domain/buyer"
)

// BuyerReader is the read surface the config cache decorates
type BuyerReader interface {
	QueryZipCoverage(ctx context.Context, serviceTypeID, zipCode string) ([]*buyer.ZipCoverage, error)
	GetBuyers(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*buyer.Buyer, error)
	GetServiceConfig(ctx context.Context, buyerID uuid.UUID, serviceTypeID string) (*buyer.ServiceConfig, error)
}

// BuyerConfigCache caches service configs in front of the buyer store.
// Configs change at onboarding cadence while every auction reads them
// per candidate, so a short TTL removes most of the read load. Zip
// coverage and buyer lookups pass through uncached: coverage drives
// auction entry and must see deactivations promptly.
type BuyerConfigCache struct {
	inner  BuyerReader
	cache  Cache
	logger *zap.Logger
}

func NewBuyerConfigCache(inner BuyerReader, cache Cache, logger *zap.Logger) *BuyerConfigCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BuyerConfigCache{
		inner:  inner,
		cache:  cache,
		logger: logger,
	}
}

func (c *BuyerConfigCache) QueryZipCoverage(ctx context.Context, serviceTypeID, zipCode string) ([]*buyer.ZipCoverage, error) {
	return c.inner.QueryZipCoverage(ctx, serviceTypeID, zipCode)
}

func (c *BuyerConfigCache) GetBuyers(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*buyer.Buyer, error) {
	return c.inner.GetBuyers(ctx, ids)
}

// GetServiceConfig serves from cache when possible. Not-found results
// are never cached so a buyer onboarded mid-auction is visible on the
// next lookup.
func (c *BuyerConfigCache) GetServiceConfig(ctx context.Context, buyerID uuid.UUID, serviceTypeID string) (*buyer.ServiceConfig, error) {
	key := configKey(buyerID, serviceTypeID)

	var cached buyer.ServiceConfig
	err := c.cache.GetJSON(ctx, key, &cached)
	if err == nil {
		return &cached, nil
	}

	var notFound ErrCacheKeyNotFound
	if !errors.As(err, &notFound) {
		c.logger.Warn("service config cache read failed",
			zap.String("key", key),
			zap.Error(err))
	}

	config, err := c.inner.GetServiceConfig(ctx, buyerID, serviceTypeID)
	if err != nil {
		return nil, err
	}

	if err := c.cache.SetJSON(ctx, key, config, BuyerConfigTTL); err != nil {
		c.logger.Warn("service config cache write failed",
			zap.String("key", key),
			zap.Error(err))
	}

	return config, nil
}

// Invalidate drops one buyer+service config from the cache
func (c *BuyerConfigCache) Invalidate(ctx context.Context, buyerID uuid.UUID, serviceTypeID string) error {
	return c.cache.Delete(ctx, configKey(buyerID, serviceTypeID))
}

func configKey(buyerID uuid.UUID, serviceTypeID string) string {
	return fmt.Sprintf("%s%s:%s", BuyerConfigPrefix, buyerID, serviceTypeID)
}
