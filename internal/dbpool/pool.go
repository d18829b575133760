// Package dbpool manages a bounded set of reusable persistence handles.
//
// Each handle owns a dedicated database connection, checked out for the
// duration of one operation and returned afterward. Handles are validated
// with a bounded liveness probe before reuse. Pool exhaustion is not an
// error: Acquire degrades to a shared fallback handle backed by the
// underlying *sql.DB, trading isolation for availability under load.
package dbpool

import (
	"context"
	"database/sql"
	"log/slog"
	"sync"
	"time"

	"github.com/gigboard/gigboard/internal/metrics"
)

// DefaultProbeTimeout bounds the liveness round-trip on acquire/release.
const DefaultProbeTimeout = 5 * time.Second

// Querier is the subset of database/sql operations a checked-out handle
// exposes. Both *sql.Conn (pooled handles) and *sql.DB (the fallback)
// satisfy it.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Handle is an opaque reference to a persistence connection. A caller
// owns it exclusively between Acquire and Release, and must not retain
// it past the operation's scope.
type Handle struct {
	q        Querier
	conn     *sql.Conn // nil for the shared fallback handle
	released bool      // guarded by the pool mutex
}

// ExecContext executes a statement on the held connection.
func (h *Handle) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return h.q.ExecContext(ctx, query, args...)
}

// QueryContext runs a query on the held connection.
func (h *Handle) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return h.q.QueryContext(ctx, query, args...)
}

// QueryRowContext runs a single-row query on the held connection.
func (h *Handle) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return h.q.QueryRowContext(ctx, query, args...)
}

func (h *Handle) shared() bool { return h.conn == nil }

// Config bounds the pool.
type Config struct {
	MaxSize      int
	ProbeTimeout time.Duration
}

// Pool manages reusable persistence handles with validation, lazy
// creation, and graceful draining.
type Pool struct {
	db           *sql.DB
	logger       *slog.Logger
	maxSize      int
	probeTimeout time.Duration

	mu       sync.Mutex
	idle     []*Handle
	size     int // live pooled handles: idle + checked out
	draining bool
	fallback *Handle
}

// New creates a pool over an opened database. The fallback handle shares
// the *sql.DB itself, so degraded mode needs no extra setup.
func New(db *sql.DB, cfg Config, logger *slog.Logger) *Pool {
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = 10
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = DefaultProbeTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		db:           db,
		logger:       logger,
		maxSize:      cfg.MaxSize,
		probeTimeout: cfg.ProbeTimeout,
		fallback:     &Handle{q: db},
	}
}

// Warm pre-creates up to n handles so first requests skip connection
// setup. Creation failures are logged, not fatal: the pool lazily
// retries on demand.
func (p *Pool) Warm(ctx context.Context, n int) {
	if n > p.maxSize {
		n = p.maxSize
	}
	for i := 0; i < n; i++ {
		h, err := p.create(ctx)
		if err != nil {
			p.logger.Warn("pool warm-up connection failed", "error", err)
			return
		}
		p.mu.Lock()
		if p.draining || len(p.idle) >= p.maxSize {
			p.mu.Unlock()
			_ = h.conn.Close()
			return
		}
		p.size++
		p.idle = append(p.idle, h)
		p.mu.Unlock()
	}
	p.publishStats()
}

// Acquire returns a live handle: an idle pooled one when available, a
// freshly created one while the pool is under MaxSize, and otherwise the
// shared fallback handle. It never fails; degradation is logged and
// counted instead.
func (p *Pool) Acquire(ctx context.Context) *Handle {
	metrics.PoolAcquiresTotal.Inc()

	for {
		p.mu.Lock()
		if len(p.idle) == 0 {
			p.mu.Unlock()
			break
		}
		h := p.idle[len(p.idle)-1]
		p.idle = p.idle[:len(p.idle)-1]
		h.released = false
		p.mu.Unlock()

		if p.alive(ctx, h) {
			p.publishStats()
			return h
		}
		p.dispose(h)
	}

	p.mu.Lock()
	saturated := p.draining || p.size >= p.maxSize
	if !saturated {
		p.size++ // reserve the slot before the blocking dial
	}
	p.mu.Unlock()

	if !saturated {
		h, err := p.create(ctx)
		if err == nil {
			h.released = false
			p.publishStats()
			return h
		}
		p.mu.Lock()
		p.size--
		p.mu.Unlock()
		p.logger.Warn("pool connection setup failed, degrading to shared handle", "error", err)
	} else {
		p.logger.Warn("pool saturated, degrading to shared handle", "max_size", p.maxSize)
	}

	metrics.PoolFallbackTotal.Inc()
	return p.fallback
}

// Release returns a handle to the pool. Invalid handles are disposed,
// not pooled; releasing the same handle twice is a no-op; releasing the
// shared fallback handle is always a no-op.
func (p *Pool) Release(h *Handle) {
	if h == nil || h.shared() {
		return
	}

	p.mu.Lock()
	if h.released {
		p.mu.Unlock()
		return
	}
	h.released = true
	full := p.draining || len(p.idle) >= p.maxSize
	p.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), p.probeTimeout)
	defer cancel()

	if full || !p.alive(ctx, h) {
		p.dispose(h)
		return
	}

	p.mu.Lock()
	if p.draining || len(p.idle) >= p.maxSize {
		p.mu.Unlock()
		p.dispose(h)
		return
	}
	p.idle = append(p.idle, h)
	p.mu.Unlock()
	p.publishStats()
}

// DrainAll disposes every idle handle and stops new pooled creations.
// Safe to call while handles are checked out: outstanding handles are
// disposed when later released, not force-closed.
func (p *Pool) DrainAll() {
	p.mu.Lock()
	p.draining = true
	drained := p.idle
	p.idle = nil
	p.mu.Unlock()

	for _, h := range drained {
		p.dispose(h)
	}
	p.publishStats()
	p.logger.Info("connection pool drained", "disposed", len(drained))
}

// Stats reports the pool's current shape.
type Stats struct {
	Idle    int
	Open    int
	MaxSize int
}

// Stats returns a snapshot of pool occupancy.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{Idle: len(p.idle), Open: p.size, MaxSize: p.maxSize}
}

func (p *Pool) create(ctx context.Context) (*Handle, error) {
	dialCtx, cancel := context.WithTimeout(ctx, p.probeTimeout)
	defer cancel()

	conn, err := p.db.Conn(dialCtx)
	if err != nil {
		return nil, err
	}
	return &Handle{q: conn, conn: conn}, nil
}

// alive probes the handle with a bounded round-trip. Handles that fail
// the probe are never returned to a caller.
func (p *Pool) alive(ctx context.Context, h *Handle) bool {
	if h.conn == nil {
		return true
	}
	probeCtx, cancel := context.WithTimeout(ctx, p.probeTimeout)
	defer cancel()
	return h.conn.PingContext(probeCtx) == nil
}

func (p *Pool) dispose(h *Handle) {
	if h.conn != nil {
		_ = h.conn.Close()
	}
	p.mu.Lock()
	p.size--
	p.mu.Unlock()
	p.publishStats()
}

func (p *Pool) publishStats() {
	p.mu.Lock()
	idle, open := len(p.idle), p.size
	p.mu.Unlock()
	metrics.PoolIdleHandles.Set(float64(idle))
	metrics.PoolOpenHandles.Set(float64(open))
}
