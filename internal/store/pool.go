// Package store implements the persistent relational store: pooled
// access to a single SQLite database, schema migrations, FTS
// maintenance, integrity gates, reservation exclusivity, and the
// typed repositories the write pipeline and search subsystem build
// on.
package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Dicklesworthstone/mcp-agent-mail-go/internal/errs"
)

// PoolConfig configures the underlying *sql.DB connection pool. The
// store is backed by exactly one SQLite file (or :memory:), so "pool"
// here means "lifecycle and acquisition policy", not multi-node
// fan-out.
type PoolConfig struct {
	MaxIdleConns        int
	MaxOpenConns        int
	ConnMaxLifetime     time.Duration
	ConnMaxIdleTime     time.Duration
	HealthCheckInterval time.Duration
	AcquireTimeout      time.Duration
}

// DefaultPoolConfig returns sensible defaults for a local SQLite file.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxIdleConns:        5,
		MaxOpenConns:        10,
		ConnMaxLifetime:     30 * time.Minute,
		ConnMaxIdleTime:     10 * time.Minute,
		HealthCheckInterval: 30 * time.Second,
		AcquireTimeout:      5 * time.Second,
	}
}

// Pool wraps a *gorm.DB and its underlying *sql.DB, applying the
// acquire-timeout / transaction-retry contract from spec.md §4.1.
type Pool struct {
	db     *gorm.DB
	sqlDB  *sql.DB
	config PoolConfig
	logger *zap.Logger

	mu     sync.RWMutex
	closed bool

	stopHealthCheck chan struct{}
}

// NewPool wraps an already-opened *gorm.DB, applying pool settings.
func NewPool(db *gorm.DB, config PoolConfig, logger *zap.Logger) (*Pool, error) {
	if db == nil {
		return nil, errs.New(errs.InvalidArgument, "store: db must not be nil")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errs.Wrap(err, errs.Internal, "store: unwrap sql.DB")
	}

	sqlDB.SetMaxIdleConns(config.MaxIdleConns)
	sqlDB.SetMaxOpenConns(config.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(config.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	p := &Pool{
		db:              db,
		sqlDB:           sqlDB,
		config:          config,
		logger:          logger.With(zap.String("component", "store_pool")),
		stopHealthCheck: make(chan struct{}),
	}

	if config.HealthCheckInterval > 0 {
		go p.healthCheckLoop()
	}

	p.logger.Info("store pool initialized",
		zap.Int("max_open_conns", config.MaxOpenConns),
		zap.Duration("acquire_timeout", config.AcquireTimeout),
	)

	return p, nil
}

// DB returns the underlying *gorm.DB for read-only/pool-shared use.
func (p *Pool) DB() *gorm.DB {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.db
}

// Acquire waits (up to AcquireTimeout) for a usable handle, failing
// with errs.Unavailable if the pool cannot produce one in time. The
// returned *gorm.DB is bound to ctx.
func (p *Pool) Acquire(ctx context.Context) (*gorm.DB, error) {
	p.mu.RLock()
	closed := p.closed
	db := p.db
	p.mu.RUnlock()

	if closed {
		return nil, errs.New(errs.Unavailable, "store: pool is closed")
	}

	acquireCtx := ctx
	var cancel context.CancelFunc
	if p.config.AcquireTimeout > 0 {
		acquireCtx, cancel = context.WithTimeout(ctx, p.config.AcquireTimeout)
		defer cancel()
	}

	pingCtx, pingCancel := context.WithCancel(acquireCtx)
	defer pingCancel()
	if err := p.sqlDB.PingContext(pingCtx); err != nil {
		if acquireCtx.Err() != nil {
			return nil, errs.New(errs.Unavailable, "store: pool busy, acquire timed out").WithCause(err)
		}
		return nil, errs.Wrap(err, errs.Unavailable, "store: acquire failed").WithRetryable(true)
	}

	return db.WithContext(ctx), nil
}

// Ping checks connectivity.
func (p *Pool) Ping(ctx context.Context) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return errs.New(errs.Unavailable, "store: pool is closed")
	}
	return p.sqlDB.PingContext(ctx)
}

// Stats returns the standard library's connection pool statistics.
func (p *Pool) Stats() sql.DBStats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.sqlDB.Stats()
}

// Close shuts the pool down. Idempotent.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	close(p.stopHealthCheck)
	p.logger.Info("closing store pool")
	return p.sqlDB.Close()
}

func (p *Pool) healthCheckLoop() {
	ticker := time.NewTicker(p.config.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopHealthCheck:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := p.Ping(ctx); err != nil {
				p.logger.Warn("store health check failed", zap.Error(err))
			}
			cancel()
		}
	}
}

// TransactionFunc is one logical unit of work run inside a transaction.
type TransactionFunc func(tx *gorm.DB) error

// WithTransaction runs fn inside a single transaction, guaranteeing
// rollback on panic, error, or context cancellation.
func (p *Pool) WithTransaction(ctx context.Context, fn TransactionFunc) error {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return errs.New(errs.Unavailable, "store: pool is closed")
	}
	db := p.db
	p.mu.RUnlock()

	if err := ctx.Err(); err != nil {
		return errs.New(errs.Cancelled, "store: context already done").WithCause(err)
	}

	err := db.WithContext(ctx).Transaction(fn)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return errs.New(errs.Cancelled, "store: transaction cancelled").WithCause(err)
	}
	var e *errs.Error
	if errors.As(err, &e) {
		return err
	}
	return errs.Wrap(err, errs.Internal, "store: transaction failed").WithRetryable(isRetryableError(err))
}

// WithTransactionRetry runs fn with exponential backoff on retryable
// failures (SQLite "database is locked"/"busy", driver bad-connection).
func (p *Pool) WithTransactionRetry(ctx context.Context, maxRetries int, fn TransactionFunc) error {
	var lastErr error

	for attempt := 0; attempt < maxRetries; attempt++ {
		err := p.WithTransaction(ctx, fn)
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryableError(err) {
			return err
		}

		p.logger.Warn("store transaction retrying",
			zap.Int("attempt", attempt+1),
			zap.Int("max_retries", maxRetries),
			zap.Error(err),
		)

		backoff := time.Duration(1<<uint(attempt)) * 50 * time.Millisecond
		select {
		case <-ctx.Done():
			return errs.New(errs.Cancelled, "store: context done during retry backoff").WithCause(ctx.Err())
		case <-time.After(backoff):
		}
	}

	return errs.Wrap(lastErr, errs.Unavailable, "store: transaction failed after retries").WithRetryable(true)
}

func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "database is locked"):
		return true
	case strings.Contains(msg, "sqlite_busy"), strings.Contains(msg, "busy"):
		return true
	case strings.Contains(msg, "deadlock"):
		return true
	case strings.Contains(msg, "connection reset"), strings.Contains(msg, "broken pipe"):
		return true
	case strings.Contains(msg, "bad connection"):
		return true
	default:
		return false
	}
}
