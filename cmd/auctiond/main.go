package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/homereach/lead-exchange-backend/internal/domain/values"
	"github.com/homereach/lead-exchange-backend/internal/infrastructure/buyerapi"
	"github.com/homereach/lead-exchange-backend/internal/infrastructure/cache"
	"github.com/homereach/lead-exchange-backend/internal/infrastructure/config"
	"github.com/homereach/lead-exchange-backend/internal/infrastructure/database"
	"github.com/homereach/lead-exchange-backend/internal/infrastructure/email"
	"github.com/homereach/lead-exchange-backend/internal/infrastructure/queue"
	"github.com/homereach/lead-exchange-backend/internal/infrastructure/repository"
	"github.com/homereach/lead-exchange-backend/internal/infrastructure/telemetry"
	"github.com/homereach/lead-exchange-backend/internal/infrastructure/webhook"
	"github.com/homereach/lead-exchange-backend/internal/service/auction"
	"github.com/homereach/lead-exchange-backend/internal/service/contractor_delivery"
	"github.com/homereach/lead-exchange-backend/internal/service/eligibility"
	"github.com/homereach/lead-exchange-backend/internal/service/leadrouting"
	notificationsvc "github.com/homereach/lead-exchange-backend/internal/service/notification"
	"github.com/homereach/lead-exchange-backend/internal/service/transaction_log"
)

// gaugeInterval paces the pool and registry gauge samples
const gaugeInterval = 15 * time.Second

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := telemetry.NewLogger(cfg.LogLevel, cfg.Environment)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("auction daemon failed", zap.Error(err))
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	provider, err := telemetry.InitTracing(ctx, &cfg.Telemetry, cfg.Version, cfg.Environment)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(flushCtx); err != nil {
			logger.Warn("failed to shut down tracing", zap.Error(err))
		}
	}()

	pool, err := database.NewConnectionPool(&cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	redisCache, err := cache.NewRedisCache(&cfg.Redis, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	defer redisCache.Close()

	leadRepo := repository.NewLeadRepository(pool.DB())
	txRepo := repository.NewTransactionRepository(pool.DB())
	buyerRepo := repository.NewBuyerRepository(pool.DB())
	notifRepo := repository.NewNotificationRepository(pool.DB())

	txlog := transaction_log.NewService(txRepo, txlogMetrics{})

	// Eligibility reads go through the config cache; the registry is
	// the warm fallback when persistence is down.
	registry := eligibility.NewRegistry()
	refresher := eligibility.NewRefresher(buyerRepo, registry, 0, logger)
	rates := cache.NewAcceptanceRateCache(redisCache, txRepo, logger)
	buyers := cache.NewBuyerConfigCache(buyerRepo, redisCache, logger)
	resolver := eligibility.NewService(buyers, txlog, rates, registry, eligibilityMetrics{})

	emailSender, err := newEmailSender(ctx, cfg, logger)
	if err != nil {
		return err
	}
	webhookSender := webhook.NewSender(&cfg.Webhook, logger)
	notifier := notificationsvc.NewService(emailSender, webhookSender, notifRepo, txlog, notificationMetrics{})

	dispatcher := contractor_delivery.NewService(notifier, leadRepo, txlog, dispatchMetrics{})

	client := buyerapi.NewClient(buyerapi.ClientConfig{})
	engine := auction.NewService(resolver, client, buyerapi.NewTransformer(), buyerapi.NewParser(),
		txlog, leadRepo, dispatcher, auctionMetrics{})

	auctionCfg, err := buildAuctionConfig(&cfg.Auction)
	if err != nil {
		return err
	}
	router := leadrouting.NewService(logger, leadRepo, engine, auctionCfg)

	consumer, err := queue.NewConsumer(&cfg.Redis, &cfg.Queue, router, logger, queueMetrics{})
	if err != nil {
		return fmt.Errorf("failed to build intake consumer: %w", err)
	}

	if err := refresher.Start(); err != nil {
		return err
	}
	defer refresher.Stop()

	if err := consumer.Start(); err != nil {
		return err
	}

	srv := newOpsServer(cfg, pool, redisCache, logger)
	srvErr := make(chan error, 1)
	go func() {
		logger.Info("ops server listening", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvErr <- err
		}
	}()

	go sampleGauges(ctx, pool, registry)

	logger.Info("auction daemon started",
		zap.String("environment", cfg.Environment),
		zap.String("version", cfg.Version),
	)

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-srvErr:
		logger.Error("ops server failed", zap.Error(err))
	}

	// Stop intake first so each worker finishes its lead before the
	// listeners go away.
	if err := consumer.Stop(); err != nil {
		logger.Warn("failed to stop intake consumer cleanly", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("failed to stop ops server cleanly", zap.Error(err))
	}

	logger.Info("auction daemon stopped")
	return nil
}

// newEmailSender builds the SES sender, or a disabled stand-in when no
// sender address is configured so the other channels keep working.
func newEmailSender(ctx context.Context, cfg *config.Config, logger *zap.Logger) (notificationsvc.EmailSender, error) {
	if cfg.Email.Sender == "" {
		logger.Warn("no email sender configured, email channel disabled")
		return email.NewDisabledSender(), nil
	}

	sender, err := email.NewSESSender(ctx, &cfg.Email, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ses sender: %w", err)
	}
	return sender, nil
}

// buildAuctionConfig converts the loaded primitives into the auction
// engine's config
func buildAuctionConfig(c *config.AuctionConfig) (auction.Config, error) {
	out := auction.Config{
		MaxParticipants:   c.MaxParticipants,
		Timeout:           c.Timeout,
		RequireMinimumBid: c.RequireMinimumBid,
		AllowTiedBids:     c.AllowTiedBids,
		Tiebreak:          auction.TiebreakStrategy(c.Tiebreak),
	}

	if c.RequireMinimumBid {
		minBid, err := values.NewMoneyFromString(c.MinimumBid)
		if err != nil {
			return auction.Config{}, fmt.Errorf("invalid minimum bid %q: %w", c.MinimumBid, err)
		}
		out.MinimumBid = minBid
	}

	return out, nil
}

// dbProber reports database liveness
type dbProber interface {
	HealthCheck(ctx context.Context) error
}

// redisProber reports Redis liveness; a round-trip on a missing key is
// enough
type redisProber interface {
	Exists(ctx context.Context, key string) (bool, error)
}

// newOpsServer wires the health, readiness, and metrics endpoints. The
// daemon has no public API; this listener is for the orchestrator.
func newOpsServer(cfg *config.Config, db dbProber, redisCache redisProber, logger *zap.Logger) *http.Server {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, req *http.Request) {
		probeCtx, cancel := context.WithTimeout(req.Context(), 5*time.Second)
		defer cancel()

		if err := db.HealthCheck(probeCtx); err != nil {
			logger.Warn("readiness probe failed on database", zap.Error(err))
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		if _, err := redisCache.Exists(probeCtx, "lex:health:probe"); err != nil {
			logger.Warn("readiness probe failed on redis", zap.Error(err))
			http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
			return
		}

		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ready"))
	})

	r.Handle("/metrics", MetricsHandler())

	return &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
}

// sampleGauges refreshes the pool and registry gauges until shutdown
func sampleGauges(ctx context.Context, pool *database.ConnectionPool, registry *eligibility.Registry) {
	ticker := time.NewTicker(gaugeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stat := pool.Stats()
			UpdateDBPoolMetrics(
				int(stat.AcquiredConns()),
				int(stat.IdleConns()),
				int(stat.TotalConns()),
				int(stat.MaxConns()),
			)
			UpdateRegistrySize(registry.Len())
		}
	}
}
