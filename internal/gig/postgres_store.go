package gig

import (
	"context"
	"database/sql"
	"time"

	"github.com/gigboard/gigboard/internal/dbpool"
)

// PostgresStore persists gig data in PostgreSQL. Every operation checks
// a handle out of the connection pool for its own duration; under pool
// saturation the shared fallback handle serves it instead.
type PostgresStore struct {
	pool *dbpool.Pool
}

// NewPostgresStore creates a pool-backed gig store.
func NewPostgresStore(pool *dbpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const gigColumns = `id, title, description, poster_id, worker_id, payment::TEXT,
	       status, resolution, review_deadline, completed_at, cancelled_at,
	       created_at, updated_at`

func (p *PostgresStore) Create(ctx context.Context, g *Gig) error {
	h := p.pool.Acquire(ctx)
	defer p.pool.Release(h)

	_, err := h.ExecContext(ctx, `
		INSERT INTO gigs (
			id, title, description, poster_id, worker_id, payment,
			status, resolution, review_deadline, completed_at, cancelled_at,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6::NUMERIC(20,2),
			$7, $8, $9, $10, $11,
			$12, $13
		)`,
		g.ID, g.Title, nullString(g.Description), g.PosterID, nullString(g.WorkerID), g.Payment,
		string(g.Status), nullString(g.Resolution), nullTime(g.ReviewDeadline), nullTime(g.CompletedAt), nullTime(g.CancelledAt),
		g.CreatedAt, g.UpdatedAt,
	)
	return err
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Gig, error) {
	h := p.pool.Acquire(ctx)
	defer p.pool.Release(h)

	row := h.QueryRowContext(ctx, `SELECT `+gigColumns+` FROM gigs WHERE id = $1`, id)

	g, err := scanGig(row)
	if err == sql.ErrNoRows {
		return nil, ErrGigNotFound
	}
	return g, err
}

// TransitionStatus writes the gig's mutable fields only while the
// persisted status still equals from. Zero rows affected means a
// concurrent transition won; the caller observes ErrInvalidStatus and
// moves no funds.
func (p *PostgresStore) TransitionStatus(ctx context.Context, g *Gig, from Status) error {
	h := p.pool.Acquire(ctx)
	defer p.pool.Release(h)

	result, err := h.ExecContext(ctx, `
		UPDATE gigs SET
			worker_id = $1, status = $2, resolution = $3,
			review_deadline = $4, completed_at = $5, cancelled_at = $6,
			updated_at = $7
		WHERE id = $8 AND status = $9`,
		nullString(g.WorkerID), string(g.Status), nullString(g.Resolution),
		nullTime(g.ReviewDeadline), nullTime(g.CompletedAt), nullTime(g.CancelledAt),
		g.UpdatedAt,
		g.ID, string(from),
	)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		// Distinguish a lost race from a missing row.
		var exists bool
		if err := h.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM gigs WHERE id = $1)`, g.ID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrGigNotFound
		}
		return ErrInvalidStatus
	}
	return nil
}

func (p *PostgresStore) ListByPrincipal(ctx context.Context, principal string, limit int) ([]*Gig, error) {
	h := p.pool.Acquire(ctx)
	defer p.pool.Release(h)

	rows, err := h.QueryContext(ctx, `
		SELECT `+gigColumns+`
		FROM gigs
		WHERE poster_id = $1 OR worker_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, principal, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	return scanGigs(rows)
}

func (p *PostgresStore) ListByStatus(ctx context.Context, status Status, limit int) ([]*Gig, error) {
	h := p.pool.Acquire(ctx)
	defer p.pool.Release(h)

	rows, err := h.QueryContext(ctx, `
		SELECT `+gigColumns+`
		FROM gigs
		WHERE status = $1
		ORDER BY created_at DESC
		LIMIT $2`, string(status), limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	return scanGigs(rows)
}

func (p *PostgresStore) ListStale(ctx context.Context, before time.Time, limit int) ([]*Gig, error) {
	h := p.pool.Acquire(ctx)
	defer p.pool.Release(h)

	rows, err := h.QueryContext(ctx, `
		SELECT `+gigColumns+`
		FROM gigs
		WHERE status = $1
		  AND review_deadline < $2
		LIMIT $3`, string(StatusPendingApproval), before, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	return scanGigs(rows)
}

func (p *PostgresStore) ListActive(ctx context.Context) ([]*Gig, error) {
	h := p.pool.Acquire(ctx)
	defer p.pool.Release(h)

	rows, err := h.QueryContext(ctx, `
		SELECT `+gigColumns+`
		FROM gigs
		WHERE status IN ($1, $2, $3)`,
		string(StatusOpen), string(StatusInProgress), string(StatusPendingApproval))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	return scanGigs(rows)
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanGig(s scanner) (*Gig, error) {
	g := &Gig{}
	var (
		description    sql.NullString
		workerID       sql.NullString
		resolution     sql.NullString
		status         string
		reviewDeadline sql.NullTime
		completedAt    sql.NullTime
		cancelledAt    sql.NullTime
	)

	err := s.Scan(
		&g.ID, &g.Title, &description, &g.PosterID, &workerID, &g.Payment,
		&status, &resolution, &reviewDeadline, &completedAt, &cancelledAt,
		&g.CreatedAt, &g.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	g.Status = Status(status)
	g.Description = description.String
	g.WorkerID = workerID.String
	g.Resolution = resolution.String
	if reviewDeadline.Valid {
		g.ReviewDeadline = &reviewDeadline.Time
	}
	if completedAt.Valid {
		g.CompletedAt = &completedAt.Time
	}
	if cancelledAt.Valid {
		g.CancelledAt = &cancelledAt.Time
	}

	return g, nil
}

func scanGigs(rows *sql.Rows) ([]*Gig, error) {
	var result []*Gig
	for rows.Next() {
		g, err := scanGig(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, g)
	}
	return result, rows.Err()
}

// nullString converts an empty Go string to sql.NullString.
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullTime converts a *time.Time to sql.NullTime.
func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// Compile-time assertion that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)
