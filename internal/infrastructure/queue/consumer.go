package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/homereach/lead-exchange-backend/internal/infrastructure/config"
	"github.com/homereach/lead-exchange-backend/internal/infrastructure/telemetry"
)

// maxDeliveryAttempts bounds how often a failing lead is requeued
// before it lands on the dead list.
const maxDeliveryAttempts = 3

// Consumer pops intake envelopes off the pending list and feeds them
// through the auction pipeline. Each worker holds one blocking pop at a
// time, so the Redis pool must carry at least one connection per worker.
//
// Duplicate envelopes inside the lock TTL are dropped here; the
// conditional status update in the lead store remains the authoritative
// guard against double auctions.
type Consumer struct {
	client  *redis.Client
	router  LeadRouter
	logger  *zap.Logger
	metrics Metrics

	workers    int
	popTimeout time.Duration
	lockTTL    time.Duration

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewConsumer connects to Redis and prepares a worker pool sized from
// the queue config. Call Start to begin consuming.
func NewConsumer(redisCfg *config.RedisConfig, queueCfg *config.QueueConfig, router LeadRouter, logger *zap.Logger, metrics Metrics) (*Consumer, error) {
	if redisCfg == nil {
		return nil, fmt.Errorf("redis config cannot be nil")
	}
	if queueCfg == nil {
		return nil, fmt.Errorf("queue config cannot be nil")
	}
	if router == nil {
		return nil, fmt.Errorf("lead router cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = NewNoopMetrics()
	}

	// ReadTimeout stays zero here; blocking pops set their own
	// per-command deadline from the pop timeout.
	client := redis.NewClient(&redis.Options{
		Addr:         redisCfg.URL,
		Password:     redisCfg.Password,
		DB:           redisCfg.DB,
		PoolSize:     redisCfg.PoolSize,
		MinIdleConns: redisCfg.MinIdleConns,
		MaxRetries:   redisCfg.MaxRetries,
		DialTimeout:  redisCfg.DialTimeout,
		WriteTimeout: redisCfg.WriteTimeout,
	})

	pingCtx, pingCancel := context.WithTimeout(context.Background(), redisCfg.DialTimeout)
	defer pingCancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	workers := queueCfg.Workers
	if workers <= 0 {
		workers = 4
	}
	popTimeout := queueCfg.PopTimeout
	if popTimeout <= 0 {
		popTimeout = 5 * time.Second
	}
	lockTTL := queueCfg.LockTTL
	if lockTTL <= 0 {
		lockTTL = 2 * time.Minute
	}

	return &Consumer{
		client:     client,
		router:     router,
		logger:     logger,
		metrics:    metrics,
		workers:    workers,
		popTimeout: popTimeout,
		lockTTL:    lockTTL,
	}, nil
}

// Start launches the worker pool
func (c *Consumer) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return fmt.Errorf("consumer already running")
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.running = true

	for i := 0; i < c.workers; i++ {
		c.wg.Add(1)
		go c.worker(ctx, i)
	}

	c.logger.Info("lead intake consumer started",
		zap.Int("workers", c.workers),
		zap.String("queue", PendingLeadsKey),
		zap.Duration("lock_ttl", c.lockTTL),
	)
	return nil
}

// Stop drains the workers and closes the Redis connection. A worker
// mid-auction finishes its lead before exiting.
func (c *Consumer) Stop() error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = false
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()

	err := c.client.Close()
	c.logger.Info("lead intake consumer stopped")
	return err
}

func (c *Consumer) worker(ctx context.Context, id int) {
	defer c.wg.Done()

	logger := c.logger.With(zap.Int("worker", id))
	logger.Debug("intake worker started")

	for {
		select {
		case <-ctx.Done():
			logger.Debug("intake worker stopping")
			return
		default:
		}

		vals, err := c.client.BRPop(ctx, c.popTimeout, PendingLeadsKey).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				logger.Debug("intake worker stopping")
				return
			}
			logger.Error("failed to pop from pending queue", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}

		// BRPOP returns [key, payload]. A popped lead runs on a
		// detached context so a shutdown drains it rather than
		// aborting the auction and losing the requeue.
		c.process(context.WithoutCancel(ctx), logger, vals[1])
	}
}

// process runs one envelope through decode, lock, and the pipeline
func (c *Consumer) process(ctx context.Context, logger *zap.Logger, raw string) {
	c.metrics.RecordReceived(ctx)

	env, err := DecodeEnvelope([]byte(raw))
	if err != nil {
		logger.Error("dropping undecodable intake message",
			zap.Error(err),
			zap.String("payload", truncate(raw, 512)),
		)
		c.deadLetter(ctx, logger, raw)
		c.metrics.RecordMalformed(ctx)
		return
	}

	logger = logger.With(
		zap.String("lead_id", env.LeadID),
		zap.String("service_type_id", env.ServiceTypeID),
	)

	l, err := env.ToLead()
	if err != nil {
		logger.Error("dropping invalid intake envelope", zap.Error(err))
		c.deadLetter(ctx, logger, raw)
		c.metrics.RecordMalformed(ctx)
		return
	}

	lockKey := LeadLockPrefix + l.ID
	locked, err := c.client.SetNX(ctx, lockKey, time.Now().UTC().Format(time.RFC3339), c.lockTTL).Result()
	if err != nil {
		// Lock state unknown; run the lead anyway and let the
		// conditional status update reject a concurrent duplicate.
		logger.Warn("lead lock unavailable, proceeding", zap.Error(err))
	} else if !locked {
		c.metrics.RecordDuplicateSkip(ctx)
		logger.Info("skipping duplicate lead, lock already held")
		return
	}

	start := time.Now()
	runCtx, span := telemetry.StartAuctionSpan(ctx, l.ID, l.ServiceTypeID)
	result, err := c.router.RunAuction(runCtx, l)
	if err != nil {
		telemetry.WithSpanError(span, err)
		span.End()
		c.retryOrBury(ctx, logger, env, lockKey, err)
		return
	}
	span.End()

	c.metrics.RecordProcessed(ctx, result.Status, time.Since(start))
	telemetry.WithTrace(runCtx, logger).Info("lead processed",
		zap.String("status", result.Status.String()),
		zap.Int("participants", result.ParticipantCount),
		zap.Duration("duration", time.Since(start)),
	)
}

// retryOrBury requeues a failed lead until its attempts run out, then
// dead-letters it. The lock is released before a requeue so the retry
// is not dropped as a duplicate.
func (c *Consumer) retryOrBury(ctx context.Context, logger *zap.Logger, env *Envelope, lockKey string, cause error) {
	env.Attempts++

	if env.Attempts >= maxDeliveryAttempts {
		logger.Error("lead exhausted delivery attempts, dead-lettering",
			zap.Int("attempts", env.Attempts),
			zap.Error(cause),
		)
		encoded, err := env.Encode()
		if err == nil {
			c.deadLetter(ctx, logger, string(encoded))
		} else {
			logger.Error("failed to encode dead-lettered lead", zap.Error(err))
		}
		c.metrics.RecordFailed(ctx, false)
		return
	}

	if err := c.client.Del(ctx, lockKey).Err(); err != nil {
		logger.Warn("failed to release lead lock before requeue", zap.Error(err))
	}

	encoded, err := env.Encode()
	if err != nil {
		logger.Error("failed to encode lead for requeue", zap.Error(err))
		return
	}

	if err := c.client.LPush(ctx, PendingLeadsKey, encoded).Err(); err != nil {
		c.metrics.RecordFailed(ctx, false)
		logger.Error("failed to requeue lead", zap.Error(err))
		return
	}

	c.metrics.RecordFailed(ctx, true)
	logger.Warn("lead processing failed, requeued",
		zap.Int("attempts", env.Attempts),
		zap.Error(cause),
	)
}

func (c *Consumer) deadLetter(ctx context.Context, logger *zap.Logger, raw string) {
	if err := c.client.LPush(ctx, DeadLeadsKey, raw).Err(); err != nil {
		logger.Error("failed to push message to dead list", zap.Error(err))
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
