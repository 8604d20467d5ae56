package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"time"
)

// ErrPoolExhausted is returned when no connection frees up within the
// configured acquire timeout.
var ErrPoolExhausted = errors.New("connection pool exhausted")

// ConnectionPool hands out exclusive physical connections from the shared
// database handle and takes them back.
type ConnectionPool struct {
	db             *sql.DB
	maxSize        int
	acquireTimeout time.Duration
}

// PoolConfig holds configuration for connection pool
type PoolConfig struct {
	MaxPoolSize    int
	MaxIdle        int
	MaxLifetime    time.Duration
	AcquireTimeout time.Duration
}

// NewConnectionPool applies the pool bounds to db
func NewConnectionPool(db *sql.DB, config PoolConfig) *ConnectionPool {
	if config.MaxPoolSize <= 0 {
		config.MaxPoolSize = 25
	}
	if config.MaxIdle <= 0 || config.MaxIdle > config.MaxPoolSize {
		config.MaxIdle = config.MaxPoolSize
	}
	if config.MaxLifetime == 0 {
		config.MaxLifetime = 5 * time.Minute
	}
	if config.AcquireTimeout <= 0 {
		config.AcquireTimeout = 5 * time.Second
	}

	db.SetMaxOpenConns(config.MaxPoolSize)
	db.SetMaxIdleConns(config.MaxIdle)
	db.SetConnMaxLifetime(config.MaxLifetime)

	return &ConnectionPool{
		db:             db,
		maxSize:        config.MaxPoolSize,
		acquireTimeout: config.AcquireTimeout,
	}
}

// Checkout blocks until a connection is free, the acquire timeout passes, or
// ctx is done. The caller owns the connection until Return.
func (p *ConnectionPool) Checkout(ctx context.Context) (*sql.Conn, error) {
	waitCtx, cancel := context.WithTimeout(ctx, p.acquireTimeout)
	defer cancel()

	conn, err := p.db.Conn(waitCtx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("%w after %s", ErrPoolExhausted, p.acquireTimeout)
		}
		return nil, fmt.Errorf("failed to check out connection: %w", err)
	}
	return conn, nil
}

// Return hands conn back to the pool. An unhealthy connection is closed
// instead so no session state it carries can reach another borrower.
func (p *ConnectionPool) Return(conn *sql.Conn, healthy bool) error {
	if !healthy {
		// ErrBadConn from Raw makes database/sql close the physical connection.
		conn.Raw(func(any) error { return driver.ErrBadConn })
		return nil
	}

	if err := conn.Close(); err != nil && !errors.Is(err, sql.ErrConnDone) {
		return fmt.Errorf("failed to return connection: %w", err)
	}
	return nil
}

// Ping checks that the database is reachable
func (p *ConnectionPool) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Close closes all connections and stops the pool
func (p *ConnectionPool) Close() error {
	return p.db.Close()
}

// Stats returns pool statistics
func (p *ConnectionPool) Stats() PoolStats {
	s := p.db.Stats()
	return PoolStats{
		MaxSize:          p.maxSize,
		TotalConnections: s.OpenConnections,
		InUse:            s.InUse,
		Idle:             s.Idle,
		WaitCount:        s.WaitCount,
		WaitDuration:     s.WaitDuration,
	}
}

// PoolStats holds pool statistics
type PoolStats struct {
	MaxSize          int           `json:"max_size"`
	TotalConnections int           `json:"total_connections"`
	InUse            int           `json:"in_use"`
	Idle             int           `json:"idle"`
	WaitCount        int64         `json:"wait_count"`
	WaitDuration     time.Duration `json:"wait_duration_ns"`
}
