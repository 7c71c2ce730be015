package contractor_delivery

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homereach/lead-exchange-backend/internal/domain/buyer"
	"github.com/homereach/lead-exchange-backend/internal/domain/lead"
	"github.com/homereach/lead-exchange-backend/internal/domain/transaction"
	"github.com/homereach/lead-exchange-backend/internal/domain/values"
	"github.com/homereach/lead-exchange-backend/internal/service/eligibility"
)

type notifyOutcome struct {
	attempted []string
	delivered bool
}

type notifyCall struct {
	buyerID uuid.UUID
	price   values.Money
}

type stubNotifier struct {
	outcomes map[uuid.UUID]notifyOutcome
	calls    []notifyCall
}

func (n *stubNotifier) NotifyLead(ctx context.Context, l *lead.Lead, contractor *buyer.Buyer, price values.Money) ([]string, bool) {
	n.calls = append(n.calls, notifyCall{buyerID: contractor.ID, price: price})
	if out, ok := n.outcomes[contractor.ID]; ok {
		return out.attempted, out.delivered
	}
	return []string{"dashboard"}, true
}

type soldCall struct {
	leadID  string
	buyerID uuid.UUID
	price   values.Money
}

type stubLeadStore struct {
	refuse bool
	err    error
	calls  []soldCall
}

func (s *stubLeadStore) MarkSold(ctx context.Context, leadID string, buyerID uuid.UUID, price values.Money) (bool, error) {
	s.calls = append(s.calls, soldCall{leadID: leadID, buyerID: buyerID, price: price})
	if s.err != nil {
		return false, s.err
	}
	return !s.refuse, nil
}

type captureLog struct {
	rows []*transaction.Transaction
}

func (c *captureLog) Record(ctx context.Context, t *transaction.Transaction) error {
	c.rows = append(c.rows, t)
	return nil
}

type dispatchMetrics struct {
	dispatches int
	races      int
	delivered  int
}

func (m *dispatchMetrics) RecordDispatch(ctx context.Context, mode buyer.DeliveryMode, delivered int) {
	m.dispatches++
	m.delivered = delivered
}

func (m *dispatchMetrics) RecordCommitRace(ctx context.Context, leadID string) {
	m.races++
}

func (m *dispatchMetrics) RecordAuditDrop(ctx context.Context) {}

func moneyPtr(s string) *values.Money {
	m := values.MustNewMoney(s)
	return &m
}

func testLead(t *testing.T) *lead.Lead {
	t.Helper()

	contact, err := lead.NewContact("Jane", "Smith", "jane.smith@example.com", "(555) 123-4567")
	require.NoError(t, err)

	l, err := lead.NewLead("lead-300", "roofing", "94110", contact, nil)
	require.NoError(t, err)
	return l
}

func fixedContractor(t *testing.T, name string, priority int, price string) eligibility.EligibleBuyer {
	t.Helper()

	b, err := buyer.NewBuyer(name, buyer.TypeContractor)
	require.NoError(t, err)
	b.PricingModel = buyer.PricingFixed
	b.FixedLeadPrice = moneyPtr(price)
	b.NotifyDashboard = true

	config, err := buyer.NewServiceConfig(b.ID, "roofing")
	require.NoError(t, err)

	return eligibility.EligibleBuyer{
		Buyer:  b,
		Config: config,
		Zone: &buyer.ZipCoverage{
			ID:            uuid.New(),
			BuyerID:       b.ID,
			ServiceTypeID: "roofing",
			ZipCode:       "94110",
			Priority:      priority,
			Active:        true,
		},
	}
}

func rowsFor(rows []*transaction.Transaction, buyerID uuid.UUID) []*transaction.Transaction {
	var out []*transaction.Transaction
	for _, r := range rows {
		if r.BuyerID == buyerID {
			out = append(out, r)
		}
	}
	return out
}

func TestService_Deliver_ExclusivePicksTopPriority(t *testing.T) {
	// The cheaper contractor outranks the pricier one on priority
	top := fixedContractor(t, "Summit Roofing", 0, "85.00")
	other := fixedContractor(t, "Valley Roofing", 1, "120.00")

	notifier := &stubNotifier{}
	leads := &stubLeadStore{}
	log := &captureLog{}
	svc := NewService(notifier, leads, log, nil)

	result, err := svc.Deliver(context.Background(), testLead(t), []eligibility.EligibleBuyer{other, top}, nil)
	require.NoError(t, err)

	assert.True(t, result.Delivered)
	assert.True(t, result.Committed)
	assert.Equal(t, buyer.DeliveryExclusive, result.Mode)
	require.Equal(t, []uuid.UUID{top.Buyer.ID}, result.BuyerIDs)
	assert.Equal(t, "85.00", result.TotalPrice.String())

	require.Len(t, notifier.calls, 1)
	assert.Equal(t, top.Buyer.ID, notifier.calls[0].buyerID)

	require.Len(t, leads.calls, 1)
	assert.Equal(t, "lead-300", leads.calls[0].leadID)
	assert.Equal(t, top.Buyer.ID, leads.calls[0].buyerID)
	assert.Equal(t, "85.00", leads.calls[0].price.String())

	topRows := rowsFor(log.rows, top.Buyer.ID)
	require.Len(t, topRows, 1)
	assert.Equal(t, transaction.StatusSuccess, topRows[0].Status)
	assert.Equal(t, transaction.ActionDelivery, topRows[0].ActionType)
	require.NotNil(t, topRows[0].IsWinner)
	assert.True(t, *topRows[0].IsWinner)
	assert.Equal(t, "dashboard", topRows[0].DeliveryMethod)

	otherRows := rowsFor(log.rows, other.Buyer.ID)
	require.Len(t, otherRows, 1)
	assert.Equal(t, transaction.StatusFailed, otherRows[0].Status)
	require.NotNil(t, otherRows[0].LostReason)
	assert.Equal(t, transaction.LostNotSelected, *otherRows[0].LostReason)
}

func TestService_Deliver_SharedSumsDeliveredPrices(t *testing.T) {
	first := fixedContractor(t, "Summit Roofing", 0, "85.00")
	first.Buyer.DeliveryMode = buyer.DeliveryShared
	first.Buyer.MaxSharedLeads = 2
	second := fixedContractor(t, "Valley Roofing", 1, "70.00")
	third := fixedContractor(t, "Bay Roofing", 2, "60.00")

	notifier := &stubNotifier{}
	leads := &stubLeadStore{}
	log := &captureLog{}
	svc := NewService(notifier, leads, log, nil)

	result, err := svc.Deliver(context.Background(), testLead(t), []eligibility.EligibleBuyer{third, first, second}, nil)
	require.NoError(t, err)

	assert.Equal(t, buyer.DeliveryShared, result.Mode)
	require.Equal(t, []uuid.UUID{first.Buyer.ID, second.Buyer.ID}, result.BuyerIDs)
	assert.Equal(t, "155.00", result.TotalPrice.String())

	// One commit for the dispatch, priced at the combined total
	require.Len(t, leads.calls, 1)
	assert.Equal(t, first.Buyer.ID, leads.calls[0].buyerID)
	assert.Equal(t, "155.00", leads.calls[0].price.String())

	// Each delivered row carries its own price, not the total
	firstRows := rowsFor(log.rows, first.Buyer.ID)
	require.Len(t, firstRows, 1)
	require.NotNil(t, firstRows[0].WinningBidAmount)
	assert.Equal(t, "85.00", firstRows[0].WinningBidAmount.String())

	secondRows := rowsFor(log.rows, second.Buyer.ID)
	require.Len(t, secondRows, 1)
	require.NotNil(t, secondRows[0].WinningBidAmount)
	assert.Equal(t, "70.00", secondRows[0].WinningBidAmount.String())

	thirdRows := rowsFor(log.rows, third.Buyer.ID)
	require.Len(t, thirdRows, 1)
	require.NotNil(t, thirdRows[0].LostReason)
	assert.Equal(t, transaction.LostLowerPriority, *thirdRows[0].LostReason)
}

func TestService_Deliver_CommitRaceKeepsDeliveredRows(t *testing.T) {
	first := fixedContractor(t, "Summit Roofing", 0, "85.00")
	first.Buyer.DeliveryMode = buyer.DeliveryShared
	first.Buyer.MaxSharedLeads = 2
	second := fixedContractor(t, "Valley Roofing", 1, "70.00")

	notifier := &stubNotifier{}
	leads := &stubLeadStore{refuse: true}
	log := &captureLog{}
	metrics := &dispatchMetrics{}
	svc := NewService(notifier, leads, log, metrics)

	result, err := svc.Deliver(context.Background(), testLead(t), []eligibility.EligibleBuyer{first, second}, nil)
	require.NoError(t, err)

	// Another worker sold the lead first, so the commit is refused, but
	// both contractors already received the lead and their rows stand
	assert.True(t, result.Delivered)
	assert.False(t, result.Committed)
	assert.Equal(t, "155.00", result.TotalPrice.String())
	assert.Equal(t, 1, metrics.races)

	for _, id := range []uuid.UUID{first.Buyer.ID, second.Buyer.ID} {
		rows := rowsFor(log.rows, id)
		require.Len(t, rows, 1)
		assert.Equal(t, transaction.StatusSuccess, rows[0].Status)
	}
}

func TestService_Deliver_NoChannelsConfigured(t *testing.T) {
	only := fixedContractor(t, "Summit Roofing", 0, "85.00")
	only.Buyer.NotifyDashboard = false

	notifier := &stubNotifier{}
	leads := &stubLeadStore{}
	log := &captureLog{}
	svc := NewService(notifier, leads, log, nil)

	result, err := svc.Deliver(context.Background(), testLead(t), []eligibility.EligibleBuyer{only}, nil)
	require.NoError(t, err)

	assert.False(t, result.Delivered)
	assert.Empty(t, notifier.calls)
	assert.Empty(t, leads.calls)

	require.Len(t, log.rows, 1)
	assert.Equal(t, transaction.StatusFailed, log.rows[0].Status)
	assert.Equal(t, "no notification channels enabled", log.rows[0].ErrorMessage)
	require.NotNil(t, log.rows[0].IsWinner)
	assert.False(t, *log.rows[0].IsWinner)
}

func TestService_Deliver_AllChannelsFail(t *testing.T) {
	only := fixedContractor(t, "Summit Roofing", 0, "85.00")
	only.Buyer.NotifyEmail = true
	only.Buyer.ContactEmail = values.MustNewEmail("ops@summitroofing.example.com")

	notifier := &stubNotifier{outcomes: map[uuid.UUID]notifyOutcome{
		only.Buyer.ID: {attempted: []string{"email", "dashboard"}, delivered: false},
	}}
	leads := &stubLeadStore{}
	log := &captureLog{}
	svc := NewService(notifier, leads, log, nil)

	result, err := svc.Deliver(context.Background(), testLead(t), []eligibility.EligibleBuyer{only}, nil)
	require.NoError(t, err)

	assert.False(t, result.Delivered)
	assert.Empty(t, leads.calls)

	require.Len(t, log.rows, 1)
	assert.Equal(t, transaction.StatusFailed, log.rows[0].Status)
	assert.Equal(t, "email,dashboard", log.rows[0].DeliveryMethod)
	assert.Equal(t, "all notification channels failed", log.rows[0].ErrorMessage)
}

func TestService_Deliver_IgnoresNetworkCandidates(t *testing.T) {
	n, err := buyer.NewBuyer("Acme Network", buyer.TypeNetwork)
	require.NoError(t, err)

	log := &captureLog{}
	svc := NewService(&stubNotifier{}, &stubLeadStore{}, log, nil)

	result, err := svc.Deliver(context.Background(), testLead(t), []eligibility.EligibleBuyer{{Buyer: n}}, nil)
	require.NoError(t, err)

	assert.False(t, result.Delivered)
	assert.Empty(t, result.BuyerIDs)
	assert.Empty(t, log.rows)
}

func TestEffectivePrice(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(c *eligibility.EligibleBuyer)
		networkBid *values.Money
		want       string
	}{
		{
			name: "fixed pricing uses the fixed lead price",
			setup: func(c *eligibility.EligibleBuyer) {
				c.Buyer.PricingModel = buyer.PricingFixed
				c.Buyer.FixedLeadPrice = moneyPtr("95.00")
			},
			want: "95.00",
		},
		{
			name: "auction pricing uses the config max bid",
			setup: func(c *eligibility.EligibleBuyer) {
				c.Buyer.PricingModel = buyer.PricingAuction
				c.Config.MaxBid = moneyPtr("50.00")
			},
			want: "50.00",
		},
		{
			name: "auction pricing prefers the zip override",
			setup: func(c *eligibility.EligibleBuyer) {
				c.Buyer.PricingModel = buyer.PricingAuction
				c.Config.MaxBid = moneyPtr("50.00")
				c.Zone.MaxBid = moneyPtr("75.00")
			},
			want: "75.00",
		},
		{
			name: "hybrid exclusive takes the larger of cap and fixed",
			setup: func(c *eligibility.EligibleBuyer) {
				c.Buyer.PricingModel = buyer.PricingHybrid
				c.Buyer.FixedLeadPrice = moneyPtr("95.00")
				c.Config.MaxBid = moneyPtr("50.00")
			},
			want: "95.00",
		},
		{
			name: "hybrid shared halves the network bid",
			setup: func(c *eligibility.EligibleBuyer) {
				c.Buyer.PricingModel = buyer.PricingHybrid
				c.Buyer.DeliveryMode = buyer.DeliveryShared
				c.Buyer.FixedLeadPrice = moneyPtr("95.00")
			},
			networkBid: moneyPtr("44.50"),
			want:       "22.25",
		},
		{
			name: "hybrid shared without a reference bid falls back",
			setup: func(c *eligibility.EligibleBuyer) {
				c.Buyer.PricingModel = buyer.PricingHybrid
				c.Buyer.DeliveryMode = buyer.DeliveryShared
				c.Buyer.FixedLeadPrice = moneyPtr("95.00")
				c.Config.MaxBid = moneyPtr("120.00")
			},
			want: "120.00",
		},
		{
			name: "auction pricing with no band is free",
			setup: func(c *eligibility.EligibleBuyer) {
				c.Buyer.PricingModel = buyer.PricingAuction
			},
			want: "0.00",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := fixedContractor(t, "Summit Roofing", 0, "10.00")
			c.Buyer.FixedLeadPrice = nil
			tt.setup(&c)

			got := effectivePrice(c, tt.networkBid)
			assert.Equal(t, tt.want, got.String())
		})
	}
}
