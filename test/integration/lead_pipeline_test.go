//go:build integration

package integration

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/homereach/lead-exchange-backend/internal/domain/buyer"
	"github.com/homereach/lead-exchange-backend/internal/domain/lead"
	"github.com/homereach/lead-exchange-backend/internal/domain/transaction"
	"github.com/homereach/lead-exchange-backend/internal/infrastructure/buyerapi"
	"github.com/homereach/lead-exchange-backend/internal/infrastructure/cache"
	"github.com/homereach/lead-exchange-backend/internal/infrastructure/config"
	"github.com/homereach/lead-exchange-backend/internal/infrastructure/email"
	"github.com/homereach/lead-exchange-backend/internal/infrastructure/queue"
	"github.com/homereach/lead-exchange-backend/internal/infrastructure/repository"
	"github.com/homereach/lead-exchange-backend/internal/infrastructure/webhook"
	"github.com/homereach/lead-exchange-backend/internal/service/auction"
	"github.com/homereach/lead-exchange-backend/internal/service/contractor_delivery"
	"github.com/homereach/lead-exchange-backend/internal/service/eligibility"
	"github.com/homereach/lead-exchange-backend/internal/service/leadrouting"
	notificationsvc "github.com/homereach/lead-exchange-backend/internal/service/notification"
	"github.com/homereach/lead-exchange-backend/internal/service/transaction_log"
	"github.com/homereach/lead-exchange-backend/internal/testutil"
	"github.com/homereach/lead-exchange-backend/internal/testutil/containers"
	"github.com/homereach/lead-exchange-backend/internal/testutil/fixtures"
)

// buyerEndpoint is a scripted network buyer. PING always bids; the
// POST answer is configurable per test.
type buyerEndpoint struct {
	*httptest.Server

	mu         sync.Mutex
	pings      int
	posts      int
	postStatus int
	postBody   string
}

func newBuyerEndpoint(t *testing.T, pingBid string, postStatus int, postBody string) *buyerEndpoint {
	t.Helper()

	be := &buyerEndpoint{postStatus: postStatus, postBody: postBody}
	be.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		be.mu.Lock()
		defer be.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		switch r.Header.Get("X-Request-Type") {
		case "ping":
			be.pings++
			json.NewEncoder(w).Encode(map[string]interface{}{
				"accepted":  true,
				"bidAmount": pingBid,
				"pingToken": "tok-pipeline",
			})
		case "post":
			be.posts++
			w.WriteHeader(be.postStatus)
			w.Write([]byte(be.postBody))
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	t.Cleanup(be.Close)
	return be
}

func (b *buyerEndpoint) counts() (pings, posts int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pings, b.posts
}

// pipeline owns an end-to-end deployment against container-backed
// Postgres and Redis: real repositories, caches, services, and the
// intake consumer.
type pipeline struct {
	testDB   *testutil.TestDB
	rdb      *redis.Client
	leads    *repository.LeadRepository
	buyers   *repository.BuyerRepository
	notifs   *repository.NotificationRepository
	txlog    *transaction_log.Service
	consumer *queue.Consumer
}

func startPipeline(t *testing.T) *pipeline {
	t.Helper()

	testDB := testutil.NewContainerTestDB(t)
	logger := zaptest.NewLogger(t)

	redisC, err := containers.NewRedisContainer(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := redisC.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	redisCfg := &config.RedisConfig{
		URL:          redisC.Addr,
		PoolSize:     5,
		MinIdleConns: 1,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}

	redisCache, err := cache.NewRedisCache(redisCfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { redisCache.Close() })

	leadRepo := repository.NewLeadRepository(testDB.DB())
	txRepo := repository.NewTransactionRepository(testDB.DB())
	buyerRepo := repository.NewBuyerRepository(testDB.DB())
	notifRepo := repository.NewNotificationRepository(testDB.DB())

	txlog := transaction_log.NewService(txRepo, nil)

	registry := eligibility.NewRegistry()
	rates := cache.NewAcceptanceRateCache(redisCache, txRepo, logger)
	buyerReads := cache.NewBuyerConfigCache(buyerRepo, redisCache, logger)
	resolver := eligibility.NewService(buyerReads, txlog, rates, registry, nil)

	notifier := notificationsvc.NewService(
		email.NewDisabledSender(),
		webhook.NewSender(&config.WebhookConfig{Timeout: 5 * time.Second}, logger),
		notifRepo, txlog, nil)
	dispatcher := contractor_delivery.NewService(notifier, leadRepo, txlog, nil)

	engine := auction.NewService(resolver, buyerapi.NewClient(buyerapi.ClientConfig{}),
		buyerapi.NewTransformer(), buyerapi.NewParser(),
		txlog, leadRepo, dispatcher, nil)
	router := leadrouting.NewService(logger, leadRepo, engine, auction.DefaultConfig())

	consumer, err := queue.NewConsumer(redisCfg, &config.QueueConfig{
		Workers:    2,
		PopTimeout: 200 * time.Millisecond,
		LockTTL:    time.Minute,
	}, router, logger, nil)
	require.NoError(t, err)

	require.NoError(t, consumer.Start())
	t.Cleanup(func() { consumer.Stop() })

	rdb := redis.NewClient(&redis.Options{Addr: redisC.Addr})
	t.Cleanup(func() { rdb.Close() })

	return &pipeline{
		testDB:   testDB,
		rdb:      rdb,
		leads:    leadRepo,
		buyers:   buyerRepo,
		notifs:   notifRepo,
		txlog:    txlog,
		consumer: consumer,
	}
}

func (p *pipeline) submit(t *testing.T, leadID string) {
	t.Helper()

	env := &queue.Envelope{
		LeadID:        leadID,
		ServiceTypeID: "roofing",
		ZipCode:       "94110",
		State:         "CA",
		City:          "San Francisco",
		Source:        "homereach-web",
		FirstName:     "Dana",
		LastName:      "Whitfield",
		Email:         "dana.whitfield@example.com",
		Phone:         "+14155552671",
		OwnsHome:      true,
		Timeframe:     "1-3 months",
		TCPAConsent:   true,
	}
	raw, err := env.Encode()
	require.NoError(t, err)
	require.NoError(t, p.rdb.LPush(context.Background(), queue.PendingLeadsKey, raw).Err())
}

func (p *pipeline) seedNetwork(t *testing.T, ctx context.Context, endpoint *buyerEndpoint) *buyer.Buyer {
	t.Helper()

	network := fixtures.NewBuyerBuilder(t).
		WithName("Pipeline Network").
		WithEndpoints(endpoint.URL+"/ping", endpoint.URL+"/post").
		Build()
	require.NoError(t, p.buyers.Create(ctx, network))

	cfg := fixtures.NewServiceConfigBuilder(t, network.ID).
		WithFieldMappings(
			buyer.FieldMapping{SourceField: "zip_code", TargetField: "zip"},
			buyer.FieldMapping{SourceField: "first_name", TargetField: "fname"},
			buyer.FieldMapping{SourceField: "phone", TargetField: "phone"},
		).
		Build()
	require.NoError(t, p.buyers.CreateServiceConfig(ctx, cfg))

	require.NoError(t, p.buyers.CreateZipCoverage(ctx,
		fixtures.NewZipCoverageBuilder(t, network.ID).Build()))

	return network
}

func (p *pipeline) seedContractor(t *testing.T, ctx context.Context) *buyer.Buyer {
	t.Helper()

	contractor := fixtures.NewContractorBuilder(t).
		WithName("Pipeline Roofing Co").
		WithDashboardChannel().
		Build()
	require.NoError(t, p.buyers.Create(ctx, contractor))

	require.NoError(t, p.buyers.CreateServiceConfig(ctx,
		fixtures.NewServiceConfigBuilder(t, contractor.ID).WithoutBidBand().Build()))
	require.NoError(t, p.buyers.CreateZipCoverage(ctx,
		fixtures.NewZipCoverageBuilder(t, contractor.ID).Build()))

	return contractor
}

func (p *pipeline) waitForTerminal(t *testing.T, ctx context.Context, leadID string) *lead.Lead {
	t.Helper()

	var settled *lead.Lead
	require.Eventually(t, func() bool {
		l, err := p.leads.GetByID(ctx, leadID)
		if err != nil {
			return false
		}
		if !l.Status.IsTerminal() {
			return false
		}
		settled = l
		return true
	}, 30*time.Second, 100*time.Millisecond, "lead should reach a terminal status")
	return settled
}

func TestLeadPipeline_NetworkSale(t *testing.T) {
	p := startPipeline(t)
	ctx := testutil.TestContext(t)

	endpoint := newBuyerEndpoint(t, "75.50", http.StatusOK,
		`{"status": "accepted", "leadId": "net-5150"}`)
	network := p.seedNetwork(t, ctx, endpoint)

	p.submit(t, "pipeline-net-001")
	settled := p.waitForTerminal(t, ctx, "pipeline-net-001")

	assert.Equal(t, lead.StatusSold, settled.Status)
	require.NotNil(t, settled.WinningBuyerID)
	assert.Equal(t, network.ID, *settled.WinningBuyerID)
	require.NotNil(t, settled.WinningPrice)
	assert.Equal(t, "75.50", settled.WinningPrice.String())

	pings, posts := endpoint.counts()
	assert.Equal(t, 1, pings)
	assert.Equal(t, 1, posts)

	history, err := p.txlog.History(ctx, "pipeline-net-001")
	require.NoError(t, err)

	var pingRows, postRows int
	for _, row := range history {
		switch row.ActionType {
		case transaction.ActionPing:
			pingRows++
			require.NotNil(t, row.IsWinner, "decided auctions mark every ping row")
			assert.True(t, *row.IsWinner)
		case transaction.ActionPost:
			postRows++
			assert.Equal(t, transaction.StatusSuccess, row.Status)
		}
	}
	assert.Equal(t, 1, pingRows)
	assert.Equal(t, 1, postRows)
}

func TestLeadPipeline_CascadeExhaustedFallsToContractor(t *testing.T) {
	p := startPipeline(t)
	ctx := testutil.TestContext(t)

	endpoint := newBuyerEndpoint(t, "42.00", http.StatusConflict,
		`{"reason": "duplicate lead"}`)
	p.seedNetwork(t, ctx, endpoint)
	contractor := p.seedContractor(t, ctx)

	p.submit(t, "pipeline-cascade-001")
	settled := p.waitForTerminal(t, ctx, "pipeline-cascade-001")

	assert.Equal(t, lead.StatusSold, settled.Status)
	require.NotNil(t, settled.WinningBuyerID)
	assert.Equal(t, contractor.ID, *settled.WinningBuyerID,
		"exhausted cascade should fall through to the contractor")
	require.NotNil(t, settled.WinningPrice)
	assert.Equal(t, "55.00", settled.WinningPrice.String())

	// The contractor heard about it on the dashboard channel
	unread, err := p.notifs.ListUnreadByBuyer(ctx, contractor.ID)
	require.NoError(t, err)
	require.Len(t, unread, 1)
	assert.Equal(t, "pipeline-cascade-001", unread[0].LeadID)

	history, err := p.txlog.History(ctx, "pipeline-cascade-001")
	require.NoError(t, err)

	var sawFailedPost, sawDelivery bool
	for _, row := range history {
		if row.ActionType == transaction.ActionPost && row.Status == transaction.StatusFailed {
			sawFailedPost = true
			require.NotNil(t, row.LostReason)
			assert.Equal(t, transaction.LostDuplicateLead, *row.LostReason)
		}
		if row.ActionType == transaction.ActionDelivery && row.Status == transaction.StatusSuccess {
			sawDelivery = true
			assert.Equal(t, contractor.ID, row.BuyerID)
			assert.Contains(t, row.DeliveryMethod, "dashboard")
		}
	}
	assert.True(t, sawFailedPost, "rejected POST should leave a failed audit row")
	assert.True(t, sawDelivery, "contractor delivery should leave a success audit row")
}

func TestLeadPipeline_NoCoverage(t *testing.T) {
	p := startPipeline(t)
	ctx := testutil.TestContext(t)

	// No buyers seeded at all
	p.submit(t, "pipeline-empty-001")
	settled := p.waitForTerminal(t, ctx, "pipeline-empty-001")

	assert.Equal(t, lead.StatusRejected, settled.Status)
	assert.Nil(t, settled.WinningBuyerID)
}
