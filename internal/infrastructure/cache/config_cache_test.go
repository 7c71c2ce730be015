package cache

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/homereach/lead-exchange-backend/internal/domain/buyer"
	domainErrors "github.com/homereach/lead-exchange-backend/internal/domain/errors"
	"github.com/homereach/lead-exchange-backend/internal/domain/values"
)

type stubBuyerReader struct {
	mu          sync.Mutex
	configs     map[string]*buyer.ServiceConfig
	configCalls int
}

func (s *stubBuyerReader) QueryZipCoverage(ctx context.Context, serviceTypeID, zipCode string) ([]*buyer.ZipCoverage, error) {
	return nil, nil
}

func (s *stubBuyerReader) GetBuyers(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*buyer.Buyer, error) {
	return map[uuid.UUID]*buyer.Buyer{}, nil
}

func (s *stubBuyerReader) GetServiceConfig(ctx context.Context, buyerID uuid.UUID, serviceTypeID string) (*buyer.ServiceConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configCalls++
	c, ok := s.configs[buyerID.String()+":"+serviceTypeID]
	if !ok {
		return nil, domainErrors.NewNotFoundError("service config")
	}
	return c, nil
}

func (s *stubBuyerReader) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.configCalls
}

func newCachedConfig(t *testing.T, buyerID uuid.UUID, serviceTypeID string) *buyer.ServiceConfig {
	t.Helper()
	c, err := buyer.NewServiceConfig(buyerID, serviceTypeID)
	require.NoError(t, err)
	require.NoError(t, c.SetBidBand(values.MustNewMoney("12.00"), values.MustNewMoney("90.00")))
	c.BidField = "offer"
	return c
}

func TestBuyerConfigCache_CachesServiceConfig(t *testing.T) {
	c, _ := setupTestRedis(t)
	ctx := context.Background()

	buyerID := uuid.New()
	stored := newCachedConfig(t, buyerID, "roofing")
	inner := &stubBuyerReader{configs: map[string]*buyer.ServiceConfig{
		buyerID.String() + ":roofing": stored,
	}}

	cached := NewBuyerConfigCache(inner, c, zaptest.NewLogger(t))

	got, err := cached.GetServiceConfig(ctx, buyerID, "roofing")
	require.NoError(t, err)
	assert.Equal(t, stored.ID, got.ID)
	assert.Equal(t, 1, inner.calls())

	// Served from Redis, bid band intact through the JSON round trip
	got, err = cached.GetServiceConfig(ctx, buyerID, "roofing")
	require.NoError(t, err)
	assert.Equal(t, stored.ID, got.ID)
	require.NotNil(t, got.MinBid)
	assert.Equal(t, "12.00", got.MinBid.String())
	assert.Equal(t, "offer", got.BidField)
	assert.Equal(t, 1, inner.calls())
}

func TestBuyerConfigCache_NotFoundNotCached(t *testing.T) {
	c, _ := setupTestRedis(t)
	ctx := context.Background()

	inner := &stubBuyerReader{configs: map[string]*buyer.ServiceConfig{}}
	cached := NewBuyerConfigCache(inner, c, zaptest.NewLogger(t))
	buyerID := uuid.New()

	_, err := cached.GetServiceConfig(ctx, buyerID, "roofing")
	require.Error(t, err)
	assert.True(t, domainErrors.IsType(err, domainErrors.ErrorTypeNotFound))

	// The buyer onboards between lookups and is picked up immediately
	inner.mu.Lock()
	inner.configs[buyerID.String()+":roofing"] = newCachedConfig(t, buyerID, "roofing")
	inner.mu.Unlock()

	got, err := cached.GetServiceConfig(ctx, buyerID, "roofing")
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestBuyerConfigCache_Invalidate(t *testing.T) {
	c, _ := setupTestRedis(t)
	ctx := context.Background()

	buyerID := uuid.New()
	inner := &stubBuyerReader{configs: map[string]*buyer.ServiceConfig{
		buyerID.String() + ":roofing": newCachedConfig(t, buyerID, "roofing"),
	}}
	cached := NewBuyerConfigCache(inner, c, zaptest.NewLogger(t))

	_, err := cached.GetServiceConfig(ctx, buyerID, "roofing")
	require.NoError(t, err)

	require.NoError(t, cached.Invalidate(ctx, buyerID, "roofing"))

	_, err = cached.GetServiceConfig(ctx, buyerID, "roofing")
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls())
}
