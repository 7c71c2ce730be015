package leadrouting

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/homereach/lead-exchange-backend/internal/domain/bid"
	domainErrors "github.com/homereach/lead-exchange-backend/internal/domain/errors"
	"github.com/homereach/lead-exchange-backend/internal/domain/lead"
	"github.com/homereach/lead-exchange-backend/internal/service/auction"
)

// Service is the per-lead entry point the queue consumer calls. It
// persists the intake lead, reloads its current state, hands it to the
// auction engine, and settles the terminal status from the result.
type Service struct {
	logger *zap.Logger
	leads  LeadStore
	engine Engine
	config auction.Config
}

// NewService creates a new lead routing service
func NewService(logger *zap.Logger, leads LeadStore, engine Engine, cfg auction.Config) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		logger: logger,
		leads:  leads,
		engine: engine,
		config: cfg,
	}
}

// RunAuction auctions one lead end to end. Errors escaping the engine
// come back wrapped with the run's auction id and leave the lead in its
// pre-auction status so the queue can retry it.
func (s *Service) RunAuction(ctx context.Context, l *lead.Lead) (*bid.Result, error) {
	runID := uuid.New().String()
	logger := s.logger.With(
		zap.String("auction_id", runID),
		zap.String("lead_id", l.ID),
		zap.String("service_type", l.ServiceTypeID),
		zap.String("zip_code", l.ZipCode),
	)

	created, err := s.leads.CreateIfAbsent(ctx, l)
	if err != nil {
		logger.Error("failed to persist intake lead", zap.Error(err))
		return nil, domainErrors.NewAuctionError(runID, l.ID, fmt.Errorf("failed to persist intake lead: %w", err))
	}
	if !created {
		logger.Info("lead seen before, running against stored state")
	}

	// Reload so a redelivered message runs against current state, not
	// the envelope's snapshot.
	current, err := s.leads.GetByID(ctx, l.ID)
	if err != nil {
		logger.Error("failed to load lead", zap.Error(err))
		return nil, domainErrors.NewAuctionError(runID, l.ID, fmt.Errorf("failed to load lead: %w", err))
	}

	if current.Status.IsTerminal() {
		logger.Info("lead already settled, skipping auction",
			zap.String("status", current.Status.String()))
		return &bid.Result{LeadID: current.ID, Status: bid.ResultFailed}, nil
	}

	result, err := s.engine.Run(ctx, current, s.config)
	if err != nil {
		logger.Error("auction run failed", zap.Error(err))
		return nil, domainErrors.NewAuctionError(runID, l.ID, err)
	}

	s.settle(ctx, logger, result)

	fields := []zap.Field{
		zap.String("status", result.Status.String()),
		zap.Int("participants", result.ParticipantCount),
		zap.Int64("duration_ms", result.DurationMs),
	}
	if result.WinningBuyerID != nil {
		fields = append(fields, zap.String("winning_buyer_id", result.WinningBuyerID.String()))
	}
	if result.WinningBidAmount != nil {
		fields = append(fields, zap.String("winning_bid", result.WinningBidAmount.String()))
	}
	logger.Info("auction finished", fields...)

	return result, nil
}

// settle moves the lead to its terminal status after a clean run. A
// completed run already committed SOLD; a timeout leaves the lead in
// place for a queue retry. Settle failures are logged, not returned:
// the auction itself already finished.
func (s *Service) settle(ctx context.Context, logger *zap.Logger, result *bid.Result) {
	switch result.Status {
	case bid.ResultFailed, bid.ResultNoBids:
		settled, err := s.leads.UpdateStatusIfIn(ctx, result.LeadID,
			[]lead.Status{lead.StatusProcessing, lead.StatusAuctioned},
			lead.StatusRejected)
		if err != nil {
			logger.Error("failed to settle lead status", zap.Error(err))
			return
		}
		if !settled {
			logger.Warn("lead changed state during settlement, leaving as is")
		}
	case bid.ResultTimeout:
		logger.Info("every ping timed out, leaving lead for retry")
	}
}
