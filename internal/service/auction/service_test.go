package auction

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homereach/lead-exchange-backend/internal/domain/bid"
	"github.com/homereach/lead-exchange-backend/internal/domain/buyer"
	"github.com/homereach/lead-exchange-backend/internal/domain/lead"
	"github.com/homereach/lead-exchange-backend/internal/domain/transaction"
	"github.com/homereach/lead-exchange-backend/internal/domain/values"
	"github.com/homereach/lead-exchange-backend/internal/infrastructure/buyerapi"
	"github.com/homereach/lead-exchange-backend/internal/service/contractor_delivery"
	"github.com/homereach/lead-exchange-backend/internal/service/eligibility"
)

type stubResolver struct {
	result *eligibility.Result
	err    error
	calls  int
	lastQ  eligibility.Query
}

func (s *stubResolver) Resolve(ctx context.Context, l *lead.Lead, q eligibility.Query) (*eligibility.Result, error) {
	s.calls++
	s.lastQ = q
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

type transportReply struct {
	status int
	body   string
	err    error
}

type transportCall struct {
	requestType string
	buyerID     uuid.UUID
	url         string
	payload     map[string]string
}

// scriptedTransport answers each PING/POST from a reply table keyed by
// request type and buyer. Pings arrive concurrently.
type scriptedTransport struct {
	mu      sync.Mutex
	replies map[string]transportReply
	calls   []transportCall
}

func newScriptedTransport() *scriptedTransport {
	return &scriptedTransport{replies: make(map[string]transportReply)}
}

func (s *scriptedTransport) on(requestType string, buyerID uuid.UUID, reply transportReply) {
	s.replies[requestType+"|"+buyerID.String()] = reply
}

func (s *scriptedTransport) Send(ctx context.Context, req buyerapi.Request) (*buyerapi.Response, error) {
	payload := make(map[string]string, len(req.Payload))
	for k, v := range req.Payload {
		payload[k] = v
	}

	s.mu.Lock()
	s.calls = append(s.calls, transportCall{
		requestType: req.RequestType,
		buyerID:     req.Buyer.ID,
		url:         req.URL,
		payload:     payload,
	})
	reply, ok := s.replies[req.RequestType+"|"+req.Buyer.ID.String()]
	s.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("unscripted %s call to %s", req.RequestType, req.Buyer.Name)
	}
	if reply.err != nil {
		return nil, reply.err
	}
	return &buyerapi.Response{StatusCode: reply.status, Body: []byte(reply.body), Duration: time.Millisecond}, nil
}

func (s *scriptedTransport) callsOf(requestType string) []transportCall {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []transportCall
	for _, c := range s.calls {
		if c.requestType == requestType {
			out = append(out, c)
		}
	}
	return out
}

func ok(body string) transportReply {
	return transportReply{status: 200, body: body}
}

func rejected(status int, body string) transportReply {
	return transportReply{status: status, body: body}
}

func failWith(err error) transportReply {
	return transportReply{err: err}
}

type winnerMark struct {
	buyerID uuid.UUID
	amount  values.Money
}

type lossMark struct {
	buyerID uuid.UUID
	reason  transaction.LostReason
	winning *values.Money
}

type auditLog struct {
	mu        sync.Mutex
	rows      []*transaction.Transaction
	winners   []winnerMark
	losses    []lossMark
	allLost   []transaction.LostReason
	recordErr error
	markErr   error
}

func (a *auditLog) Record(ctx context.Context, t *transaction.Transaction) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.recordErr != nil {
		return a.recordErr
	}
	a.rows = append(a.rows, t)
	return nil
}

func (a *auditLog) MarkPingWinner(ctx context.Context, leadID string, buyerID uuid.UUID, winningBid values.Money) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.markErr != nil {
		return a.markErr
	}
	a.winners = append(a.winners, winnerMark{buyerID: buyerID, amount: winningBid})
	return nil
}

func (a *auditLog) MarkPingLost(ctx context.Context, leadID string, buyerID uuid.UUID, reason transaction.LostReason, winningBid *values.Money) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.markErr != nil {
		return a.markErr
	}
	a.losses = append(a.losses, lossMark{buyerID: buyerID, reason: reason, winning: winningBid})
	return nil
}

func (a *auditLog) MarkAllPingsLost(ctx context.Context, leadID string, reason transaction.LostReason) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.markErr != nil {
		return a.markErr
	}
	a.allLost = append(a.allLost, reason)
	return nil
}

func (a *auditLog) rowsOf(action transaction.ActionType) []*transaction.Transaction {
	a.mu.Lock()
	defer a.mu.Unlock()

	var out []*transaction.Transaction
	for _, row := range a.rows {
		if row.ActionType == action {
			out = append(out, row)
		}
	}
	return out
}

func (a *auditLog) rowFor(action transaction.ActionType, buyerID uuid.UUID) *transaction.Transaction {
	for _, row := range a.rowsOf(action) {
		if row.BuyerID == buyerID {
			return row
		}
	}
	return nil
}

func (a *auditLog) lastLossFor(buyerID uuid.UUID) (lossMark, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for i := len(a.losses) - 1; i >= 0; i-- {
		if a.losses[i].buyerID == buyerID {
			return a.losses[i], true
		}
	}
	return lossMark{}, false
}

// leadStateStore is an in-memory lead state machine honoring the
// conditional transitions the engine relies on.
type leadStateStore struct {
	mu         sync.Mutex
	status     lead.Status
	refuseSell bool
	claimErr   error
	sellErr    error
	soldTo     *uuid.UUID
	soldPrice  *values.Money
}

func (s *leadStateStore) UpdateStatusIfIn(ctx context.Context, leadID string, allowed []lead.Status, to lead.Status) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.claimErr != nil {
		return false, s.claimErr
	}
	for _, a := range allowed {
		if s.status == a {
			s.status = to
			return true, nil
		}
	}
	return false, nil
}

func (s *leadStateStore) MarkSold(ctx context.Context, leadID string, buyerID uuid.UUID, price values.Money) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sellErr != nil {
		return false, s.sellErr
	}
	if s.refuseSell || s.status == lead.StatusSold {
		return false, nil
	}
	s.status = lead.StatusSold
	s.soldTo = &buyerID
	s.soldPrice = &price
	return true, nil
}

type stubDispatcher struct {
	result     *contractor_delivery.Result
	err        error
	calls      int
	gotLead    *lead.Lead
	gotBid     *values.Money
	candidates []eligibility.EligibleBuyer
}

func (s *stubDispatcher) Deliver(ctx context.Context, l *lead.Lead, candidates []eligibility.EligibleBuyer, networkBid *values.Money) (*contractor_delivery.Result, error) {
	s.calls++
	s.gotLead = l
	s.gotBid = networkBid
	s.candidates = candidates
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

type engineMetrics struct {
	mu            sync.Mutex
	statuses      []bid.ResultStatus
	participants  []int
	pings         map[string]int
	posts         []string
	winnerChanges int
	auditDrops    int
}

func newEngineMetrics() *engineMetrics {
	return &engineMetrics{pings: make(map[string]int)}
}

func (m *engineMetrics) RecordAuction(ctx context.Context, status bid.ResultStatus, participants int, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses = append(m.statuses, status)
	m.participants = append(m.participants, participants)
}

func (m *engineMetrics) RecordPing(ctx context.Context, outcome string, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pings[outcome]++
}

func (m *engineMetrics) RecordPost(ctx context.Context, outcome string, position int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.posts = append(m.posts, outcome)
}

func (m *engineMetrics) RecordWinnerChange(ctx context.Context, leadID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.winnerChanges++
}

func (m *engineMetrics) RecordAuditDrop(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.auditDrops++
}

type harness struct {
	resolver  *stubResolver
	transport *scriptedTransport
	audit     *auditLog
	leads     *leadStateStore
	dispatch  *stubDispatcher
	metrics   *engineMetrics
	svc       *Service
}

func newHarness(t *testing.T, eligible ...eligibility.EligibleBuyer) *harness {
	t.Helper()

	h := &harness{
		resolver: &stubResolver{result: &eligibility.Result{
			Eligible:      eligible,
			EligibleCount: len(eligible),
		}},
		transport: newScriptedTransport(),
		audit:     &auditLog{},
		leads:     &leadStateStore{status: lead.StatusPending},
		dispatch:  &stubDispatcher{},
		metrics:   newEngineMetrics(),
	}
	h.svc = NewService(h.resolver, h.transport, buyerapi.NewTransformer(), buyerapi.NewParser(),
		h.audit, h.leads, h.dispatch, h.metrics)
	return h
}

func auctionLead(t *testing.T) *lead.Lead {
	t.Helper()

	contact, err := lead.NewContact("Jane", "Smith", "jane.smith@example.com", "(555) 123-4567")
	require.NoError(t, err)

	l, err := lead.NewLead("lead-400", "roofing", "94110", contact, map[string]interface{}{
		"project_type": "full_replacement",
	})
	require.NoError(t, err)

	l.TrustedFormCertID = "abc123def456"
	l.TCPAConsent = true
	return l
}

func networkCandidate(t *testing.T, name string, priority int) eligibility.EligibleBuyer {
	t.Helper()

	b, err := buyer.NewBuyer(name, buyer.TypeNetwork)
	require.NoError(t, err)
	b.PingURL = "https://api.example.test/ping"
	b.PostURL = "https://api.example.test/post"

	config, err := buyer.NewServiceConfig(b.ID, "roofing")
	require.NoError(t, err)
	config.PingTemplate = buyer.Template{StaticFields: map[string]string{"campaign": "homereach"}}
	config.PostTemplate = buyer.Template{StaticFields: map[string]string{"campaign": "homereach"}}
	config.FieldMappings = []buyer.FieldMapping{
		{SourceField: "zip_code", TargetField: "zip"},
		{SourceField: "first_name", TargetField: "first_name"},
		{SourceField: "email", TargetField: "email"},
		{SourceField: "project_type", TargetField: "project_type"},
	}

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

func contractorCandidate(t *testing.T, name string) eligibility.EligibleBuyer {
	t.Helper()

	b, err := buyer.NewBuyer(name, buyer.TypeContractor)
	require.NoError(t, err)

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
			Priority:      0,
			Active:        true,
		},
	}
}

func pingBid(amount, token string) transportReply {
	return ok(fmt.Sprintf(`{"accepted": true, "bidAmount": %s, "pingToken": %q}`, amount, token))
}

func pingDecline() transportReply {
	return ok(`{"accepted": false, "reason": "no demand"}`)
}

func postAccept(reference string) transportReply {
	return ok(fmt.Sprintf(`{"status": "success", "leadId": %q}`, reference))
}

func postDuplicate() transportReply {
	return rejected(409, `{"error": "duplicate lead"}`)
}

func TestService_Run_CompletedFlow(t *testing.T) {
	apex := networkCandidate(t, "Apex Leads", 0)
	bluebird := networkCandidate(t, "Bluebird Network", 1)
	cedar := networkCandidate(t, "Cedar Exchange", 2)

	h := newHarness(t, apex, bluebird, cedar)
	h.transport.on("ping", apex.Buyer.ID, pingBid("45.50", "tok-a"))
	h.transport.on("ping", bluebird.Buyer.ID, pingBid("38.00", "tok-b"))
	h.transport.on("ping", cedar.Buyer.ID, pingDecline())
	h.transport.on("post", apex.Buyer.ID, postAccept("NET-123"))

	result, err := h.svc.Run(context.Background(), auctionLead(t), DefaultConfig())
	require.NoError(t, err)

	assert.Equal(t, bid.ResultCompleted, result.Status)
	require.NotNil(t, result.WinningBuyerID)
	assert.Equal(t, apex.Buyer.ID, *result.WinningBuyerID)
	require.NotNil(t, result.WinningBidAmount)
	assert.Equal(t, "45.50", result.WinningBidAmount.String())
	assert.Equal(t, 3, result.ParticipantCount)
	assert.Len(t, result.AllBids, 2)
	assert.GreaterOrEqual(t, result.DurationMs, int64(0))

	require.NotNil(t, result.PostResult)
	assert.Equal(t, apex.Buyer.ID, result.PostResult.BuyerID)
	assert.Equal(t, 1, result.PostResult.CascadePosition)
	assert.Equal(t, "NET-123", result.PostResult.Reference)

	// The winning offer flips to won; the rest stay lost
	for _, offer := range result.AllBids {
		if offer.BuyerID == apex.Buyer.ID {
			assert.Equal(t, bid.StatusWon, offer.Status)
		} else {
			assert.Equal(t, bid.StatusLost, offer.Status)
		}
	}

	assert.Len(t, h.audit.rowsOf(transaction.ActionPing), 3)

	postRows := h.audit.rowsOf(transaction.ActionPost)
	require.Len(t, postRows, 1)
	require.NotNil(t, postRows[0].IsWinner)
	assert.True(t, *postRows[0].IsWinner)
	require.NotNil(t, postRows[0].CascadePosition)
	assert.Equal(t, 1, *postRows[0].CascadePosition)
	require.NotNil(t, postRows[0].WinningBidAmount)
	assert.Equal(t, "45.50", postRows[0].WinningBidAmount.String())

	require.Len(t, h.audit.winners, 1)
	assert.Equal(t, apex.Buyer.ID, h.audit.winners[0].buyerID)
	assert.Equal(t, "45.50", h.audit.winners[0].amount.String())

	bluebirdLoss, found := h.audit.lastLossFor(bluebird.Buyer.ID)
	require.True(t, found)
	assert.Equal(t, transaction.LostOutbid, bluebirdLoss.reason)
	require.NotNil(t, bluebirdLoss.winning)
	assert.Equal(t, "45.50", bluebirdLoss.winning.String())

	cedarLoss, found := h.audit.lastLossFor(cedar.Buyer.ID)
	require.True(t, found)
	assert.Equal(t, transaction.LostNoBid, cedarLoss.reason)

	assert.Equal(t, lead.StatusSold, h.leads.status)
	require.NotNil(t, h.leads.soldTo)
	assert.Equal(t, apex.Buyer.ID, *h.leads.soldTo)

	assert.Equal(t, []bid.ResultStatus{bid.ResultCompleted}, h.metrics.statuses)
	assert.Equal(t, []string{"accepted"}, h.metrics.posts)
	assert.Zero(t, h.metrics.winnerChanges)
}

func TestService_Run_CascadeAdvancesOnDuplicate(t *testing.T) {
	apex := networkCandidate(t, "Apex Leads", 0)
	bluebird := networkCandidate(t, "Bluebird Network", 1)

	h := newHarness(t, apex, bluebird)
	h.transport.on("ping", apex.Buyer.ID, pingBid("45.50", "tok-a"))
	h.transport.on("ping", bluebird.Buyer.ID, pingBid("38.00", "tok-b"))
	h.transport.on("post", apex.Buyer.ID, postDuplicate())
	h.transport.on("post", bluebird.Buyer.ID, postAccept("NET-777"))

	result, err := h.svc.Run(context.Background(), auctionLead(t), DefaultConfig())
	require.NoError(t, err)

	assert.Equal(t, bid.ResultCompleted, result.Status)
	require.NotNil(t, result.WinningBuyerID)
	assert.Equal(t, bluebird.Buyer.ID, *result.WinningBuyerID)
	assert.Equal(t, "38.00", result.WinningBidAmount.String())

	require.NotNil(t, result.PostResult)
	assert.Equal(t, bluebird.Buyer.ID, result.PostResult.BuyerID)
	assert.Equal(t, 2, result.PostResult.CascadePosition)
	assert.Equal(t, "NET-777", result.PostResult.Reference)

	assert.Equal(t, 1, h.metrics.winnerChanges)

	// First the optimistic patch crowned Apex, then the rerun crowned
	// Bluebird after Apex's POST bounced
	require.Len(t, h.audit.winners, 2)
	assert.Equal(t, apex.Buyer.ID, h.audit.winners[0].buyerID)
	assert.Equal(t, bluebird.Buyer.ID, h.audit.winners[1].buyerID)
	assert.Equal(t, "38.00", h.audit.winners[1].amount.String())

	apexLoss, found := h.audit.lastLossFor(apex.Buyer.ID)
	require.True(t, found)
	assert.Equal(t, transaction.LostPostRejected, apexLoss.reason)
	require.NotNil(t, apexLoss.winning)
	assert.Equal(t, "38.00", apexLoss.winning.String())

	apexPost := h.audit.rowFor(transaction.ActionPost, apex.Buyer.ID)
	require.NotNil(t, apexPost)
	assert.Equal(t, transaction.StatusFailed, apexPost.Status)
	assert.Equal(t, "duplicate lead", apexPost.ErrorMessage)
	require.NotNil(t, apexPost.LostReason)
	assert.Equal(t, transaction.LostDuplicateLead, *apexPost.LostReason)

	assert.Equal(t, lead.StatusSold, h.leads.status)
	assert.Equal(t, bluebird.Buyer.ID, *h.leads.soldTo)
}

func TestService_Run_NoBids(t *testing.T) {
	apex := networkCandidate(t, "Apex Leads", 0)
	bluebird := networkCandidate(t, "Bluebird Network", 1)

	h := newHarness(t, apex, bluebird)
	h.transport.on("ping", apex.Buyer.ID, pingDecline())
	h.transport.on("ping", bluebird.Buyer.ID, pingDecline())

	result, err := h.svc.Run(context.Background(), auctionLead(t), DefaultConfig())
	require.NoError(t, err)

	assert.Equal(t, bid.ResultNoBids, result.Status)
	assert.Empty(t, result.AllBids)
	assert.Equal(t, 2, result.ParticipantCount)
	assert.Nil(t, result.WinningBuyerID)

	assert.Empty(t, h.transport.callsOf("post"))
	assert.Empty(t, h.audit.winners)
	assert.Equal(t, lead.StatusProcessing, h.leads.status)
}

func TestService_Run_AllTimeouts(t *testing.T) {
	apex := networkCandidate(t, "Apex Leads", 0)
	bluebird := networkCandidate(t, "Bluebird Network", 1)

	h := newHarness(t, apex, bluebird)
	h.transport.on("ping", apex.Buyer.ID, failWith(context.DeadlineExceeded))
	h.transport.on("ping", bluebird.Buyer.ID, failWith(context.DeadlineExceeded))

	result, err := h.svc.Run(context.Background(), auctionLead(t), DefaultConfig())
	require.NoError(t, err)

	assert.Equal(t, bid.ResultTimeout, result.Status)
	assert.Empty(t, result.AllBids)
	assert.Equal(t, 2, h.metrics.pings["timeout"])

	for _, row := range h.audit.rowsOf(transaction.ActionPing) {
		assert.Equal(t, transaction.StatusTimeout, row.Status)
		require.NotNil(t, row.LostReason)
		assert.Equal(t, transaction.LostTimeout, *row.LostReason)
	}
}

func TestService_Run_MinimumBidFloor(t *testing.T) {
	apex := networkCandidate(t, "Apex Leads", 0)
	bluebird := networkCandidate(t, "Bluebird Network", 1)

	h := newHarness(t, apex, bluebird)
	h.transport.on("ping", apex.Buyer.ID, pingBid("8.00", "tok-a"))
	h.transport.on("ping", bluebird.Buyer.ID, pingBid("45.50", "tok-b"))
	h.transport.on("post", bluebird.Buyer.ID, postAccept("NET-300"))

	result, err := h.svc.Run(context.Background(), auctionLead(t), DefaultConfig())
	require.NoError(t, err)

	assert.Equal(t, bid.ResultCompleted, result.Status)
	assert.Equal(t, bluebird.Buyer.ID, *result.WinningBuyerID)

	// The sub-floor offer still shows in the envelope but never competes
	assert.Len(t, result.AllBids, 2)

	// Only the floor-passing bidder is posted to
	postCalls := h.transport.callsOf("post")
	require.Len(t, postCalls, 1)
	assert.Equal(t, bluebird.Buyer.ID, postCalls[0].buyerID)

	apexLoss, found := h.audit.lastLossFor(apex.Buyer.ID)
	require.True(t, found)
	assert.Equal(t, transaction.LostOutbid, apexLoss.reason)
}

func TestService_Run_AllBidsBelowFloor(t *testing.T) {
	apex := networkCandidate(t, "Apex Leads", 0)

	h := newHarness(t, apex)
	h.transport.on("ping", apex.Buyer.ID, pingBid("8.00", "tok-a"))

	result, err := h.svc.Run(context.Background(), auctionLead(t), DefaultConfig())
	require.NoError(t, err)

	assert.Equal(t, bid.ResultNoBids, result.Status)
	assert.Len(t, result.AllBids, 1)
	assert.Empty(t, h.transport.callsOf("post"))
	assert.Empty(t, h.audit.winners)
}

func TestService_Run_CascadeExhaustedFallsToContractors(t *testing.T) {
	apex := networkCandidate(t, "Apex Leads", 0)
	summit := contractorCandidate(t, "Summit Roofing")

	h := newHarness(t, apex, summit)
	h.transport.on("ping", apex.Buyer.ID, pingBid("45.50", "tok-a"))
	h.transport.on("post", apex.Buyer.ID, postDuplicate())

	price := values.MustNewMoney("95.00")
	h.dispatch.result = &contractor_delivery.Result{
		Mode:       buyer.DeliveryExclusive,
		BuyerIDs:   []uuid.UUID{summit.Buyer.ID},
		TotalPrice: price,
		Delivered:  true,
		Committed:  true,
	}

	result, err := h.svc.Run(context.Background(), auctionLead(t), DefaultConfig())
	require.NoError(t, err)

	assert.Equal(t, bid.ResultCompleted, result.Status)
	require.NotNil(t, result.WinningBuyerID)
	assert.Equal(t, summit.Buyer.ID, *result.WinningBuyerID)
	assert.Equal(t, "95.00", result.WinningBidAmount.String())
	assert.Equal(t, 1, result.ParticipantCount)

	assert.Equal(t, []transaction.LostReason{transaction.LostCascadeExhausted}, h.audit.allLost)

	assert.Equal(t, 1, h.dispatch.calls)
	require.NotNil(t, h.dispatch.gotBid)
	assert.Equal(t, "45.50", h.dispatch.gotBid.String())
	require.Len(t, h.dispatch.candidates, 1)
	assert.Equal(t, summit.Buyer.ID, h.dispatch.candidates[0].Buyer.ID)
}

func TestService_Run_CascadeExhaustedNoContractors(t *testing.T) {
	apex := networkCandidate(t, "Apex Leads", 0)

	h := newHarness(t, apex)
	h.transport.on("ping", apex.Buyer.ID, pingBid("45.50", "tok-a"))
	h.transport.on("post", apex.Buyer.ID, postDuplicate())

	result, err := h.svc.Run(context.Background(), auctionLead(t), DefaultConfig())
	require.NoError(t, err)

	assert.Equal(t, bid.ResultFailed, result.Status)
	assert.Nil(t, result.WinningBuyerID)
	assert.Len(t, result.AllBids, 1)
	assert.Zero(t, h.dispatch.calls)

	assert.Equal(t, []transaction.LostReason{transaction.LostCascadeExhausted}, h.audit.allLost)

	// The rejected POST and the closing exhaustion row
	postRows := h.audit.rowsOf(transaction.ActionPost)
	require.Len(t, postRows, 2)
	closing := postRows[1]
	assert.Equal(t, transaction.StatusFailed, closing.Status)
	assert.Equal(t, "cascade exhausted, no contractor coverage", closing.ErrorMessage)
	require.NotNil(t, closing.LostReason)
	assert.Equal(t, transaction.LostCascadeExhausted, *closing.LostReason)
}

func TestService_Run_SaleRaceLost(t *testing.T) {
	apex := networkCandidate(t, "Apex Leads", 0)

	h := newHarness(t, apex)
	h.leads.refuseSell = true
	h.transport.on("ping", apex.Buyer.ID, pingBid("45.50", "tok-a"))
	h.transport.on("post", apex.Buyer.ID, postAccept("NET-123"))

	result, err := h.svc.Run(context.Background(), auctionLead(t), DefaultConfig())
	require.NoError(t, err)

	assert.Equal(t, bid.ResultFailed, result.Status)
	assert.Nil(t, result.WinningBuyerID)
	assert.Len(t, result.AllBids, 1)

	postRow := h.audit.rowFor(transaction.ActionPost, apex.Buyer.ID)
	require.NotNil(t, postRow)
	assert.Equal(t, transaction.StatusFailed, postRow.Status)
	assert.Equal(t, "lead already sold", postRow.ErrorMessage)
	require.NotNil(t, postRow.LostReason)
	assert.Equal(t, transaction.LostDuplicateLead, *postRow.LostReason)

	assert.Contains(t, h.metrics.posts, "race_lost")
	assert.Zero(t, h.metrics.winnerChanges)
}

func TestService_Run_ClaimRefused(t *testing.T) {
	h := newHarness(t, networkCandidate(t, "Apex Leads", 0))
	h.leads.status = lead.StatusSold

	result, err := h.svc.Run(context.Background(), auctionLead(t), DefaultConfig())
	require.NoError(t, err)

	assert.Equal(t, bid.ResultFailed, result.Status)
	assert.Zero(t, h.resolver.calls)
	assert.Empty(t, h.transport.calls)
}

func TestService_Run_ClaimError(t *testing.T) {
	h := newHarness(t, networkCandidate(t, "Apex Leads", 0))
	h.leads.claimErr = errors.New("connection reset")

	result, err := h.svc.Run(context.Background(), auctionLead(t), DefaultConfig())
	require.ErrorContains(t, err, "failed to claim lead")
	assert.Nil(t, result)
}

func TestService_Run_CommitErrorAborts(t *testing.T) {
	apex := networkCandidate(t, "Apex Leads", 0)

	h := newHarness(t, apex)
	h.leads.sellErr = errors.New("connection reset")
	h.transport.on("ping", apex.Buyer.ID, pingBid("45.50", "tok-a"))
	h.transport.on("post", apex.Buyer.ID, postAccept("NET-123"))

	result, err := h.svc.Run(context.Background(), auctionLead(t), DefaultConfig())
	require.ErrorContains(t, err, "failed to commit network sale")
	assert.Nil(t, result)
}

func TestService_Run_ContractorOnlyZip(t *testing.T) {
	summit := contractorCandidate(t, "Summit Roofing")

	h := newHarness(t, summit)
	price := values.MustNewMoney("85.00")
	h.dispatch.result = &contractor_delivery.Result{
		Mode:       buyer.DeliveryExclusive,
		BuyerIDs:   []uuid.UUID{summit.Buyer.ID},
		TotalPrice: price,
		Delivered:  true,
		Committed:  true,
	}

	result, err := h.svc.Run(context.Background(), auctionLead(t), DefaultConfig())
	require.NoError(t, err)

	assert.Equal(t, bid.ResultCompleted, result.Status)
	assert.Equal(t, summit.Buyer.ID, *result.WinningBuyerID)
	assert.Equal(t, "85.00", result.WinningBidAmount.String())
	assert.Zero(t, result.ParticipantCount)
	assert.Empty(t, result.AllBids)

	// No auction ran: no network traffic, no bid context passed down
	assert.Empty(t, h.transport.calls)
	assert.Equal(t, 1, h.dispatch.calls)
	assert.Nil(t, h.dispatch.gotBid)
}

func TestService_Run_NoEligibleBuyers(t *testing.T) {
	h := newHarness(t)

	result, err := h.svc.Run(context.Background(), auctionLead(t), DefaultConfig())
	require.NoError(t, err)

	assert.Equal(t, bid.ResultFailed, result.Status)
	assert.Empty(t, h.transport.calls)
	assert.Zero(t, h.dispatch.calls)
}

func TestService_Run_PingErrorIsolated(t *testing.T) {
	flaky := networkCandidate(t, "Flaky Network", 0)
	solid := networkCandidate(t, "Solid Network", 1)

	h := newHarness(t, flaky, solid)
	h.transport.on("ping", flaky.Buyer.ID, failWith(errors.New("connection refused")))
	h.transport.on("ping", solid.Buyer.ID, pingBid("45.50", "tok-s"))
	h.transport.on("post", solid.Buyer.ID, postAccept("NET-555"))

	result, err := h.svc.Run(context.Background(), auctionLead(t), DefaultConfig())
	require.NoError(t, err)

	assert.Equal(t, bid.ResultCompleted, result.Status)
	assert.Equal(t, solid.Buyer.ID, *result.WinningBuyerID)

	flakyRow := h.audit.rowFor(transaction.ActionPing, flaky.Buyer.ID)
	require.NotNil(t, flakyRow)
	assert.Equal(t, transaction.StatusFailed, flakyRow.Status)
	assert.Equal(t, "connection refused", flakyRow.ErrorMessage)

	assert.Equal(t, 1, h.metrics.pings["error"])
	assert.Equal(t, 1, h.metrics.pings["bid"])
}

func TestService_Run_AuditFailuresNeverAbort(t *testing.T) {
	apex := networkCandidate(t, "Apex Leads", 0)

	h := newHarness(t, apex)
	h.audit.recordErr = errors.New("insert failed")
	h.audit.markErr = errors.New("update failed")
	h.transport.on("ping", apex.Buyer.ID, pingBid("45.50", "tok-a"))
	h.transport.on("post", apex.Buyer.ID, postAccept("NET-123"))

	result, err := h.svc.Run(context.Background(), auctionLead(t), DefaultConfig())
	require.NoError(t, err)

	assert.Equal(t, bid.ResultCompleted, result.Status)
	assert.Equal(t, apex.Buyer.ID, *result.WinningBuyerID)
	assert.Positive(t, h.metrics.auditDrops)
}

func TestService_Run_PingAnonymizedPostComplete(t *testing.T) {
	apex := networkCandidate(t, "Apex Leads", 0)

	h := newHarness(t, apex)
	h.transport.on("ping", apex.Buyer.ID, pingBid("45.50", "tok-a"))
	h.transport.on("post", apex.Buyer.ID, postAccept("NET-123"))

	_, err := h.svc.Run(context.Background(), auctionLead(t), DefaultConfig())
	require.NoError(t, err)

	pingCalls := h.transport.callsOf("ping")
	require.Len(t, pingCalls, 1)
	ping := pingCalls[0].payload

	// The PING carries the lead's shape and compliance, never its identity
	assert.NotContains(t, ping, "first_name")
	assert.NotContains(t, ping, "email")
	assert.Equal(t, "94110", ping["zip"])
	assert.Equal(t, "full_replacement", ping["project_type"])
	assert.Equal(t, "homereach", ping["campaign"])
	assert.Equal(t, "yes", ping["tcpaConsent"])
	assert.Equal(t, "https://cert.trustedform.com/abc123def456", ping["trustedFormCertUrl"])

	postCalls := h.transport.callsOf("post")
	require.Len(t, postCalls, 1)
	post := postCalls[0].payload

	// The POST reveals contact details and carries auction context
	assert.Equal(t, "Jane", post["first_name"])
	assert.Equal(t, "jane.smith@example.com", post["email"])
	assert.Equal(t, "45.50", post["auction_winning_bid"])
	assert.Equal(t, "1", post["cascade_position"])
	assert.Equal(t, "tok-a", post["pingToken"])
	assert.NotContains(t, post, "buyerLeadId")

	_, err = time.Parse(time.RFC3339, post["auction_timestamp"])
	assert.NoError(t, err)
}

func TestService_SelectWinner_Tiebreaks(t *testing.T) {
	base := Config{
		RequireMinimumBid: true,
		MinimumBid:        values.MustNewMoney("10.00"),
		Tiebreak:          TiebreakResponseTime,
	}

	tests := []struct {
		name       string
		amounts    []string
		durations  []time.Duration
		priorities []int
		tiebreak   TiebreakStrategy
		allowTied  bool
		pick       int
		want       int
	}{
		{
			name:    "highest bid wins outright",
			amounts: []string{"20.00", "45.50", "38.00"},
			want:    1,
		},
		{
			name:      "response time breaks ties",
			amounts:   []string{"40.00", "40.00"},
			durations: []time.Duration{120 * time.Millisecond, 80 * time.Millisecond},
			want:      1,
		},
		{
			name:     "random tiebreak uses injected source",
			amounts:  []string{"40.00", "40.00", "40.00"},
			tiebreak: TiebreakRandom,
			pick:     2,
			want:     2,
		},
		{
			name:       "priority tiebreak prefers lower zone rank",
			amounts:    []string{"40.00", "40.00"},
			priorities: []int{3, 1},
			tiebreak:   TiebreakPriority,
			want:       1,
		},
		{
			name:       "priority tie falls back to random",
			amounts:    []string{"40.00", "40.00"},
			priorities: []int{2, 2},
			tiebreak:   TiebreakPriority,
			pick:       0,
			want:       0,
		},
		{
			name:      "allowed ties award earliest responder",
			amounts:   []string{"40.00", "40.00"},
			durations: []time.Duration{90 * time.Millisecond, 40 * time.Millisecond},
			tiebreak:  TiebreakRandom,
			allowTied: true,
			want:      1,
		},
		{
			name:    "floor excludes low bids from contention",
			amounts: []string{"8.00", "12.00"},
			want:    1,
		},
		{
			name:    "all bids below floor yields no winner",
			amounts: []string{"8.00", "9.99"},
			want:    -1,
		},
		{
			name:    "declines never win",
			amounts: []string{"", ""},
			want:    -1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcomes := make([]pingOutcome, len(tt.amounts))
			for i := range tt.amounts {
				b, err := buyer.NewBuyer(fmt.Sprintf("Network %d", i), buyer.TypeNetwork)
				require.NoError(t, err)

				priority := 0
				if tt.priorities != nil {
					priority = tt.priorities[i]
				}
				var duration time.Duration
				if tt.durations != nil {
					duration = tt.durations[i]
				}

				outcomes[i] = pingOutcome{
					candidate: eligibility.EligibleBuyer{
						Buyer: b,
						Zone:  &buyer.ZipCoverage{BuyerID: b.ID, Priority: priority},
					},
					duration: duration,
				}
				if tt.amounts[i] != "" {
					outcomes[i].bid = bid.NewBid("lead-400", b.ID, values.MustNewMoney(tt.amounts[i]), duration)
				}
			}

			cfg := base
			cfg.AllowTiedBids = tt.allowTied
			if tt.tiebreak != "" {
				cfg.Tiebreak = tt.tiebreak
			}

			svc := &Service{intn: func(n int) int { return tt.pick % n }}
			got := svc.selectWinner(outcomes, cfg)

			if tt.want < 0 {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Same(t, &outcomes[tt.want], got)
		})
	}
}

func TestCascadeOrder(t *testing.T) {
	amounts := []string{"38.00", "45.50", "45.50", "12.00", "8.00"}
	durations := []time.Duration{
		50 * time.Millisecond,
		90 * time.Millisecond,
		70 * time.Millisecond,
		30 * time.Millisecond,
		10 * time.Millisecond,
	}

	outcomes := make([]pingOutcome, len(amounts))
	for i := range amounts {
		b, err := buyer.NewBuyer(fmt.Sprintf("Network %d", i), buyer.TypeNetwork)
		require.NoError(t, err)
		outcomes[i] = pingOutcome{
			candidate: eligibility.EligibleBuyer{Buyer: b, Zone: &buyer.ZipCoverage{BuyerID: b.ID}},
			bid:       bid.NewBid("lead-400", b.ID, values.MustNewMoney(amounts[i]), durations[i]),
			duration:  durations[i],
		}
	}

	// The selected winner leads its equal-bid peer even though it
	// responded slower
	winner := &outcomes[1]
	cfg := Config{RequireMinimumBid: true, MinimumBid: values.MustNewMoney("10.00")}

	ordered := cascadeOrder(outcomes, winner, cfg)

	require.Len(t, ordered, 4)
	assert.Same(t, &outcomes[1], ordered[0])
	assert.Same(t, &outcomes[2], ordered[1])
	assert.Same(t, &outcomes[0], ordered[2])
	assert.Same(t, &outcomes[3], ordered[3])
}
