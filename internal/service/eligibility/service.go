package eligibility

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/homereach/lead-exchange-backend/internal/domain/buyer"
	domainErrors "github.com/homereach/lead-exchange-backend/internal/domain/errors"
	"github.com/homereach/lead-exchange-backend/internal/domain/lead"
	"github.com/homereach/lead-exchange-backend/internal/domain/values"
)

// Scoring weights. Priority dominates; the trailing acceptance rate
// nudges buyers who actually close.
const (
	priorityWeight        = 0.7
	acceptanceWeight      = 0.3
	neutralAcceptanceRate = 0.5
)

// Service resolves which buyers may compete for a lead. It filters
// coverage by compliance, geography, time of day, and daily volume,
// then ranks survivors by eligibility score.
type Service struct {
	repo     BuyerRepository
	volume   VolumeReader
	rates    AcceptanceRates
	registry *Registry
	metrics  Metrics
}

// NewService creates a new eligibility resolver
func NewService(repo BuyerRepository, volume VolumeReader, rates AcceptanceRates, registry *Registry, metrics Metrics) *Service {
	if registry == nil {
		registry = NewRegistry()
	}
	if metrics == nil {
		metrics = NewNoopMetrics()
	}

	return &Service{
		repo:     repo,
		volume:   volume,
		rates:    rates,
		registry: registry,
		metrics:  metrics,
	}
}

// candidate is one coverage row joined with its buyer and config,
// before filtering
type candidate struct {
	buyer  *buyer.Buyer
	config *buyer.ServiceConfig
	zone   *buyer.ZipCoverage
}

// Resolve produces the ranked candidate set for a lead. A persistence
// failure degrades to the in-memory registry; the resolver itself only
// errors on an invalid query.
func (s *Service) Resolve(ctx context.Context, l *lead.Lead, q Query) (*Result, error) {
	if q.ServiceTypeID == "" {
		q.ServiceTypeID = l.ServiceTypeID
	}
	if q.ZipCode == "" {
		q.ZipCode = l.ZipCode
	}

	if q.ServiceTypeID == "" || q.ZipCode == "" {
		return nil, domainErrors.NewValidationError("INVALID_ELIGIBILITY_QUERY", "service type and zip code are required")
	}

	candidates, err := s.loadCandidates(ctx, q)
	if err != nil {
		s.metrics.RecordFallback(ctx)
		result := s.filter(ctx, l, q, s.registry.candidatesFor(q.ServiceTypeID, q.ZipCode), false)
		s.metrics.RecordResolution(ctx, q.ServiceTypeID, result.EligibleCount, result.ExcludedCount)
		return result, nil
	}

	result := s.filter(ctx, l, q, candidates, true)
	s.metrics.RecordResolution(ctx, q.ServiceTypeID, result.EligibleCount, result.ExcludedCount)
	return result, nil
}

// loadCandidates reads coverage, buyers, and configs from persistence.
// A missing config is an exclusion handled downstream; transport
// failures bubble up and trigger the registry fallback.
func (s *Service) loadCandidates(ctx context.Context, q Query) ([]candidate, error) {
	zones, err := s.repo.QueryZipCoverage(ctx, q.ServiceTypeID, q.ZipCode)
	if err != nil {
		return nil, err
	}
	if len(zones) == 0 {
		return nil, nil
	}

	ids := make([]uuid.UUID, 0, len(zones))
	for _, z := range zones {
		ids = append(ids, z.BuyerID)
	}

	buyers, err := s.repo.GetBuyers(ctx, ids)
	if err != nil {
		return nil, err
	}

	candidates := make([]candidate, 0, len(zones))
	for _, z := range zones {
		c := candidate{buyer: buyers[z.BuyerID], zone: z}

		if c.buyer != nil {
			config, err := s.repo.GetServiceConfig(ctx, z.BuyerID, q.ServiceTypeID)
			if err != nil && !domainErrors.IsType(err, domainErrors.ErrorTypeNotFound) {
				return nil, err
			}
			c.config = config
		}

		candidates = append(candidates, c)
	}

	return candidates, nil
}

// filter runs the section of the pipeline shared by the live and
// registry paths. withVolume disables the daily-cap check on the
// fallback path, where counting is what just failed.
func (s *Service) filter(ctx context.Context, l *lead.Lead, q Query, candidates []candidate, withVolume bool) *Result {
	result := &Result{}
	now := clock.Now()
	seen := make(map[uuid.UUID]bool, len(candidates))

	for _, c := range candidates {
		buyerID := c.zone.BuyerID
		if seen[buyerID] {
			continue
		}
		seen[buyerID] = true

		if reason := s.check(ctx, l, q, c, now, withVolume); reason != "" {
			result.Excluded = append(result.Excluded, Exclusion{BuyerID: buyerID, Reason: reason})
			continue
		}

		result.Eligible = append(result.Eligible, EligibleBuyer{
			Buyer:  c.buyer,
			Config: c.config,
			Zone:   c.zone,
			Score:  s.score(ctx, c),
		})
	}

	sort.Slice(result.Eligible, func(i, j int) bool {
		if result.Eligible[i].Score != result.Eligible[j].Score {
			return result.Eligible[i].Score > result.Eligible[j].Score
		}
		return result.Eligible[i].Buyer.ID.String() < result.Eligible[j].Buyer.ID.String()
	})

	if q.MaxParticipants > 0 && len(result.Eligible) > q.MaxParticipants {
		for _, over := range result.Eligible[q.MaxParticipants:] {
			result.Excluded = append(result.Excluded, Exclusion{BuyerID: over.Buyer.ID, Reason: ReasonOverParticipantCap})
		}
		result.Eligible = result.Eligible[:q.MaxParticipants]
	}

	result.EligibleCount = len(result.Eligible)
	result.ExcludedCount = len(result.Excluded)
	return result
}

// check returns the exclusion reason for a candidate, or empty when it
// passes every filter. Filters run cheapest first so most rejections
// never touch the volume counter.
func (s *Service) check(ctx context.Context, l *lead.Lead, q Query, c candidate, now time.Time, withVolume bool) string {
	if c.buyer == nil || !c.buyer.Active {
		return ReasonBuyerInactive
	}
	if c.config == nil {
		return ReasonConfigMissing
	}
	if !c.config.Active {
		return ReasonConfigInactive
	}

	if c.buyer.IsNetwork() {
		if !c.buyer.CanPing() {
			return ReasonEndpointMissing
		}
		if len(c.config.FieldMappings) == 0 && len(c.config.PingTemplate.StaticFields) == 0 {
			return ReasonTemplateMissing
		}
	}

	if missingCompliance(l, c.config) {
		return ReasonComplianceMissing
	}
	if !c.config.Restrictions.AllowsZip(q.ZipCode) {
		return ReasonGeoRestricted
	}
	if !c.config.Restrictions.WithinHours(now) {
		return ReasonOutsideHours
	}

	// Networks whose entire bid band sits below the auction floor
	// cannot produce a countable bid, so skip the round trip
	if q.RequireMinBid && q.MinBidThreshold != nil && c.buyer.IsNetwork() {
		if maxBid := effectiveMaxBid(c); maxBid != nil && maxBid.LessThan(*q.MinBidThreshold) {
			return ReasonBidBandBelowFloor
		}
	}

	if withVolume && s.volume != nil {
		if limit := c.zone.DailyLimit(c.config); limit > 0 {
			// Counting failures stay permissive: a flaky counter must
			// not silence an otherwise healthy buyer
			if count, err := s.volume.CountTodaySuccessfulPosts(ctx, c.buyer.ID); err == nil && count >= limit {
				return ReasonVolumeCapReached
			}
		}
	}

	return ""
}

func missingCompliance(l *lead.Lead, config *buyer.ServiceConfig) bool {
	if config.RequireTrustedForm && l.TrustedFormCertID == "" {
		return true
	}
	if config.RequireJornaya && l.JornayaLeadID == "" {
		return true
	}
	if config.RequireTCPAConsent && !l.TCPAConsent {
		return true
	}
	return false
}

// score computes the candidate's ranking value from its zone priority
// and trailing acceptance rate
func (s *Service) score(ctx context.Context, c candidate) float64 {
	rate := neutralAcceptanceRate
	if s.rates != nil {
		if r, err := s.rates.AcceptanceRate(ctx, c.buyer.ID); err == nil {
			rate = clamp01(r)
		}
	}

	priority := float64(c.zone.Priority)
	if priority < 0 {
		priority = 0
	}

	return priorityWeight*(1/(1+priority)) + acceptanceWeight*rate
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func effectiveMaxBid(c candidate) *values.Money {
	if c.zone.MaxBid != nil {
		return c.zone.MaxBid
	}
	return c.config.MaxBid
}
