package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/otcheredev/incident-desk/internal/apperr"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// ScopeState tracks a scoped connection through its lifetime.
type ScopeState int32

const (
	StateIdle ScopeState = iota
	StateCheckingOut
	StateBound
	StateReleasing
)

func (s ScopeState) String() string {
	switch s {
	case StateCheckingOut:
		return "checking-out"
	case StateBound:
		return "bound"
	case StateReleasing:
		return "releasing"
	default:
		return "idle"
	}
}

// Observer receives scope lifecycle events, typically for metrics.
type Observer interface {
	ObserveAcquire(wait time.Duration, err error)
	ObserveRelease(held time.Duration, discarded bool)
}

type nopObserver struct{}

func (nopObserver) ObserveAcquire(time.Duration, error) {}
func (nopObserver) ObserveRelease(time.Duration, bool)  {}

// ScopedConn pairs one pooled connection with one bound schema. It is owned
// by a single request and must be released exactly once.
type ScopedConn struct {
	schema     string
	conn       *sql.Conn
	pool       *txTracker
	db         *gorm.DB
	manager    *ScopeManager
	acquiredAt time.Time
	state      atomic.Int32

	once       sync.Once
	releaseErr error
}

// Schema returns the bound schema name
func (c *ScopedConn) Schema() string {
	return c.schema
}

// DB returns a gorm handle whose statements all run on this connection.
func (c *ScopedConn) DB() *gorm.DB {
	return c.db
}

// State returns the current lifecycle state
func (c *ScopedConn) State() ScopeState {
	return ScopeState(c.state.Load())
}

// Release unbinds the schema and returns the connection. Safe to call more
// than once; only the first call has an effect.
func (c *ScopedConn) Release() error {
	return c.manager.Release(c)
}

// ScopeManager binds pooled connections to one schema at a time.
type ScopeManager struct {
	pool         *ConnectionPool
	gormDB       *gorm.DB
	resetTimeout time.Duration
	observer     Observer
}

// ScopeOption configures a ScopeManager
type ScopeOption func(*ScopeManager)

// WithObserver reports acquire/release events to o
func WithObserver(o Observer) ScopeOption {
	return func(m *ScopeManager) {
		if o != nil {
			m.observer = o
		}
	}
}

// WithResetTimeout bounds how long the unbind directive may take
func WithResetTimeout(d time.Duration) ScopeOption {
	return func(m *ScopeManager) {
		if d > 0 {
			m.resetTimeout = d
		}
	}
}

// NewScopeManager creates a scope manager over pool. gormDB supplies the
// dialect and callbacks for the per-connection sessions.
func NewScopeManager(gormDB *gorm.DB, pool *ConnectionPool, opts ...ScopeOption) *ScopeManager {
	m := &ScopeManager{
		pool:         pool,
		gormDB:       gormDB,
		resetTimeout: 5 * time.Second,
		observer:     nopObserver{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Pool returns the underlying connection pool
func (m *ScopeManager) Pool() *ConnectionPool {
	return m.pool
}

// Acquire checks out a connection and binds it to schema. On any failure the
// connection, if one was obtained, is unbound and returned before the error
// is reported.
func (m *ScopeManager) Acquire(ctx context.Context, schema string) (*ScopedConn, error) {
	if err := ValidateSchemaName(schema); err != nil {
		return nil, apperr.Wrap(apperr.KindSchemaConnectionFailure, "failed to open data partition", err)
	}

	sc := &ScopedConn{schema: schema, manager: m}
	sc.state.Store(int32(StateCheckingOut))

	start := time.Now()
	conn, err := m.pool.Checkout(ctx)
	m.observer.ObserveAcquire(time.Since(start), err)
	if err != nil {
		sc.state.Store(int32(StateIdle))
		return nil, apperr.Wrap(apperr.KindSchemaConnectionFailure, "database connection unavailable", err)
	}

	if err := bind(ctx, conn, schema); err != nil {
		m.observer.ObserveRelease(0, m.unbind(conn, nil))
		sc.state.Store(int32(StateIdle))
		return nil, apperr.Wrap(apperr.KindSchemaConnectionFailure, "failed to open data partition", err)
	}

	tracker := &txTracker{Conn: conn}
	db := m.gormDB.Session(&gorm.Session{NewDB: true, Context: ctx})
	db.Statement.ConnPool = tracker

	sc.conn = conn
	sc.pool = tracker
	sc.db = db
	sc.acquiredAt = time.Now()
	sc.state.Store(int32(StateBound))
	return sc, nil
}

// Release rolls back any transaction the holder left open, resets the
// connection's search_path and returns it to the pool. It runs detached from
// any request context so cancellation cannot skip it.
func (m *ScopeManager) Release(sc *ScopedConn) error {
	if sc == nil || sc.conn == nil {
		return nil
	}

	sc.once.Do(func() {
		sc.state.Store(int32(StateReleasing))
		discarded := m.unbind(sc.conn, sc.pool)
		m.observer.ObserveRelease(time.Since(sc.acquiredAt), discarded)
		if discarded {
			sc.releaseErr = fmt.Errorf("failed to reset search_path for schema %q; connection discarded", sc.schema)
		}
		sc.state.Store(int32(StateIdle))
	})
	return sc.releaseErr
}

// WithScope runs fn on a connection bound to schema and always releases it.
func (m *ScopeManager) WithScope(ctx context.Context, schema string, fn func(*ScopedConn) error) error {
	sc, err := m.Acquire(ctx, schema)
	if err != nil {
		return err
	}
	defer m.Release(sc)

	return fn(sc)
}

func bind(ctx context.Context, conn *sql.Conn, schema string) error {
	if _, err := conn.ExecContext(ctx, bindStatement(schema)); err != nil {
		return fmt.Errorf("failed to bind schema %q: %w", schema, err)
	}

	// SET accepts schemas that do not exist; current_schema() is NULL then.
	var current sql.NullString
	if err := conn.QueryRowContext(ctx, "SELECT current_schema()").Scan(&current); err != nil {
		return fmt.Errorf("failed to verify schema %q: %w", schema, err)
	}
	if !current.Valid || current.String != schema {
		return fmt.Errorf("schema %q is not available", schema)
	}
	return nil
}

// unbind resets the search_path and hands conn back. It reports whether the
// connection had to be discarded. If the reset and return do not finish
// within the reset timeout the caller stops waiting and the connection is
// discarded once they do.
func (m *ScopeManager) unbind(conn *sql.Conn, tracker *txTracker) bool {
	var settled atomic.Bool
	done := make(chan bool, 1)
	go func() {
		done <- m.reset(conn, tracker, &settled)
	}()

	timer := time.NewTimer(m.resetTimeout)
	defer timer.Stop()

	select {
	case discarded := <-done:
		return discarded
	case <-timer.C:
		if settled.CompareAndSwap(false, true) {
			log.Error().Dur("timeout", m.resetTimeout).Msg("Connection release timed out, discarding connection")
			return true
		}
		return <-done
	}
}

func (m *ScopeManager) reset(conn *sql.Conn, tracker *txTracker, settled *atomic.Bool) bool {
	if tracker != nil {
		if n := tracker.rollbackOpen(); n > 0 {
			log.Warn().Int("transactions", n).Msg("Rolled back transactions left open on released connection")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.resetTimeout)
	defer cancel()

	_, resetErr := conn.ExecContext(ctx, resetStatement)
	if resetErr != nil {
		log.Error().Err(resetErr).Msg("Failed to reset search_path, discarding connection")
	}

	// A release that already timed out has reported the connection discarded.
	healthy := settled.CompareAndSwap(false, true) && resetErr == nil
	if err := m.pool.Return(conn, healthy); err != nil {
		log.Warn().Err(err).Msg("Failed to return connection to pool")
	}
	return !healthy
}

// txTracker is the gorm connection pool of one scoped connection. It keeps
// the transactions begun on it so release can end any left open.
type txTracker struct {
	*sql.Conn

	mu  sync.Mutex
	txs []*sql.Tx
}

// BeginTx starts a transaction on the tracked connection
func (t *txTracker) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	tx, err := t.Conn.BeginTx(ctx, opts)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	t.txs = append(t.txs, tx)
	t.mu.Unlock()
	return tx, nil
}

// rollbackOpen rolls back unfinished transactions and reports how many there
// were.
func (t *txTracker) rollbackOpen() int {
	t.mu.Lock()
	txs := t.txs
	t.txs = nil
	t.mu.Unlock()

	open := 0
	for _, tx := range txs {
		err := tx.Rollback()
		if errors.Is(err, sql.ErrTxDone) {
			continue
		}
		open++
		if err != nil {
			log.Warn().Err(err).Msg("Failed to roll back abandoned transaction")
		}
	}
	return open
}
