package eligibility

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// defaultRefreshInterval tracks onboarding cadence. The registry only
// serves reads when live persistence fails, so staleness at this scale
// is acceptable.
const defaultRefreshInterval = 5 * time.Minute

// refreshTimeout bounds one reload of the buyer book
const refreshTimeout = 30 * time.Second

// SnapshotSource loads the active buyer book from storage
type SnapshotSource interface {
	LoadSnapshots(ctx context.Context) ([]*Snapshot, error)
}

// Refresher keeps the fallback registry warm: it seeds the buyer book
// at startup and swaps in a fresh copy on an interval. A failed reload
// leaves the previous contents in place.
type Refresher struct {
	source   SnapshotSource
	registry *Registry
	interval time.Duration
	logger   *zap.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewRefresher creates a registry refresher. A non-positive interval
// falls back to the default.
func NewRefresher(source SnapshotSource, registry *Registry, interval time.Duration, logger *zap.Logger) *Refresher {
	if interval <= 0 {
		interval = defaultRefreshInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Refresher{
		source:   source,
		registry: registry,
		interval: interval,
		logger:   logger,
	}
}

// Start seeds the registry and launches the refresh loop. A failed
// seed does not stop the daemon; the loop retries on the next tick.
func (r *Refresher) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return fmt.Errorf("refresher already running")
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.running = true

	r.wg.Add(1)
	go r.loop(ctx)

	r.logger.Info("buyer registry refresher started",
		zap.Duration("interval", r.interval),
	)
	return nil
}

// Stop halts the refresh loop
func (r *Refresher) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	r.mu.Unlock()

	r.cancel()
	r.wg.Wait()
	r.logger.Info("buyer registry refresher stopped")
}

func (r *Refresher) loop(ctx context.Context) {
	defer r.wg.Done()

	r.refresh(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.refresh(ctx)
		}
	}
}

func (r *Refresher) refresh(ctx context.Context) {
	loadCtx, cancel := context.WithTimeout(ctx, refreshTimeout)
	defer cancel()

	snaps, err := r.source.LoadSnapshots(loadCtx)
	if err != nil {
		r.logger.Warn("failed to refresh buyer registry", zap.Error(err))
		return
	}

	r.registry.Replace(snaps)
	r.logger.Debug("buyer registry refreshed", zap.Int("buyers", len(snaps)))
}
