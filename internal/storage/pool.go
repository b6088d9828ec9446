package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// Pool hands out a bounded number of dedicated connections to the corpus
// store. Every Acquire must be paired with a Release; use WithHandle to get
// that guarantee on all exit paths.
type Pool struct {
	db      *sql.DB
	dialect Dialect
	sem     *semaphore.Weighted
	size    int
	timeout time.Duration
	inUse   atomic.Int64
}

// PoolStats is a point-in-time snapshot of pool usage.
type PoolStats struct {
	Size  int `json:"size"`
	InUse int `json:"in_use"`
}

// NewPool bounds db to size connections. timeout is the default wait used by
// Acquire when the caller passes zero.
func NewPool(db *sql.DB, dialect Dialect, size int, timeout time.Duration) *Pool {
	if size < 1 {
		size = 1
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	db.SetMaxOpenConns(size)
	db.SetMaxIdleConns(size)
	return &Pool{
		db:      db,
		dialect: dialect,
		sem:     semaphore.NewWeighted(int64(size)),
		size:    size,
		timeout: timeout,
	}
}

// Handle is one leased connection. It is owned by a single operation until
// released.
type Handle struct {
	conn    *sql.Conn
	dialect Dialect
	pool    *Pool
	once    sync.Once
}

// Acquire blocks until a handle is free, the timeout elapses (ErrPoolTimeout)
// or ctx is done (ctx.Err()).
func (p *Pool) Acquire(ctx context.Context, timeout time.Duration) (*Handle, error) {
	if timeout <= 0 {
		timeout = p.timeout
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := p.sem.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w after %s", ErrPoolTimeout, timeout)
	}

	conn, err := p.db.Conn(ctx)
	if err != nil {
		p.sem.Release(1)
		return nil, fmt.Errorf("opening connection: %w", err)
	}
	p.inUse.Add(1)
	return &Handle{conn: conn, dialect: p.dialect, pool: p}, nil
}

// Release returns h to the pool. Calling it more than once is a no-op.
func (p *Pool) Release(h *Handle) {
	if h == nil {
		return
	}
	h.once.Do(func() {
		// A connection broken mid-query is discarded by database/sql here.
		_ = h.conn.Close()
		p.inUse.Add(-1)
		p.sem.Release(1)
	})
}

// WithHandle acquires a handle with the default timeout, runs fn and releases
// the handle whatever fn returns.
func (p *Pool) WithHandle(ctx context.Context, fn func(h *Handle) error) error {
	h, err := p.Acquire(ctx, 0)
	if err != nil {
		return err
	}
	defer p.Release(h)
	return fn(h)
}

// Stats reports the pool size and the number of leased handles.
func (p *Pool) Stats() PoolStats {
	return PoolStats{Size: p.size, InUse: int(p.inUse.Load())}
}

// QueryContext runs a query written with '?' placeholders on the leased
// connection.
func (h *Handle) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return h.conn.QueryContext(ctx, h.dialect.Rebind(query), args...)
}

// QueryRowContext is the single-row variant of QueryContext.
func (h *Handle) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return h.conn.QueryRowContext(ctx, h.dialect.Rebind(query), args...)
}

// Dialect reports the SQL dialect of the leased connection.
func (h *Handle) Dialect() Dialect {
	return h.dialect
}
