package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/homereach/lead-exchange-backend/internal/infrastructure/config"
)

const healthCheckInterval = 30 * time.Second

// ConnectionPool wraps a pgx pool and the database/sql view the
// repositories use. A background probe logs when the database stops
// answering so operators see trouble before the readiness check flips.
type ConnectionPool struct {
	pool   *pgxpool.Pool
	sqlDB  *sql.DB
	logger *zap.Logger
	stop   chan struct{}
}

// NewConnectionPool connects to Postgres and verifies the connection
func NewConnectionPool(cfg *config.DatabaseConfig, logger *zap.Logger) (*ConnectionPool, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	poolCfg.MaxConns = int32(cfg.MaxOpenConns)
	poolCfg.MinConns = int32(cfg.MaxIdleConns)
	poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime
	poolCfg.HealthCheckPeriod = healthCheckInterval

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	cp := &ConnectionPool{
		pool:   pool,
		sqlDB:  stdlib.OpenDBFromPool(pool),
		logger: logger,
		stop:   make(chan struct{}),
	}

	go cp.watchHealth()

	logger.Info("database connection pool initialized",
		zap.Int32("max_conns", poolCfg.MaxConns),
		zap.Duration("max_conn_lifetime", poolCfg.MaxConnLifetime),
	)
	return cp, nil
}

// DB returns the database/sql view of the pool
func (p *ConnectionPool) DB() *sql.DB {
	return p.sqlDB
}

// Pool returns the underlying pgx pool
func (p *ConnectionPool) Pool() *pgxpool.Pool {
	return p.pool
}

// HealthCheck answers whether the database is reachable right now
func (p *ConnectionPool) HealthCheck(ctx context.Context) error {
	var one int
	if err := p.pool.QueryRow(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}

// Stats reports pool usage for the ops endpoints
func (p *ConnectionPool) Stats() *pgxpool.Stat {
	return p.pool.Stat()
}

// Close stops the health probe and releases all connections
func (p *ConnectionPool) Close() error {
	close(p.stop)
	err := p.sqlDB.Close()
	p.pool.Close()
	return err
}

func (p *ConnectionPool) watchHealth() {
	ticker := time.NewTicker(healthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := p.HealthCheck(ctx); err != nil {
				stat := p.pool.Stat()
				p.logger.Warn("database health probe failed",
					zap.Error(err),
					zap.Int32("total_conns", stat.TotalConns()),
					zap.Int32("idle_conns", stat.IdleConns()),
				)
			}
			cancel()
		}
	}
}
