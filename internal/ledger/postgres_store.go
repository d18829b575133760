package ledger

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/gigboard/gigboard/internal/idgen"
	"github.com/gigboard/gigboard/internal/pagination"
)

// PostgresStore persists ledger data in PostgreSQL. Each Credit/Debit
// pairs the balance change with its audit entry in one transaction; the
// insufficient-funds check rides on the balance UPDATE's WHERE clause so
// concurrent debits cannot overdraw.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed ledger store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) GetBalance(ctx context.Context, principal string) (*Balance, error) {
	bal := &Balance{Principal: principal}
	err := p.db.QueryRowContext(ctx, `
		SELECT available::TEXT, total_in::TEXT, total_out::TEXT, updated_at
		FROM accounts WHERE principal = $1`, principal,
	).Scan(&bal.Available, &bal.TotalIn, &bal.TotalOut, &bal.UpdatedAt)
	if err == sql.ErrNoRows {
		bal.Available, bal.TotalIn, bal.TotalOut = "0.00", "0.00", "0.00"
		return bal, nil
	}
	if err != nil {
		return nil, err
	}
	return bal, nil
}

func (p *PostgresStore) Credit(ctx context.Context, principal, amount, reference, description string) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO accounts (principal, available, total_in, total_out, updated_at)
		VALUES ($1, $2::NUMERIC(20,2), $2::NUMERIC(20,2), 0, now())
		ON CONFLICT (principal) DO UPDATE SET
			available = accounts.available + EXCLUDED.available,
			total_in = accounts.total_in + EXCLUDED.total_in,
			updated_at = now()`,
		principal, amount,
	)
	if err != nil {
		return fmt.Errorf("credit %s: %w", principal, err)
	}

	if err := insertEntry(ctx, tx, principal, "credit", amount, reference, description); err != nil {
		return err
	}
	return tx.Commit()
}

func (p *PostgresStore) Debit(ctx context.Context, principal, amount, reference, description string) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `
		UPDATE accounts SET
			available = available - $2::NUMERIC(20,2),
			total_out = total_out + $2::NUMERIC(20,2),
			updated_at = now()
		WHERE principal = $1 AND available >= $2::NUMERIC(20,2)`,
		principal, amount,
	)
	if err != nil {
		return fmt.Errorf("debit %s: %w", principal, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrInsufficientFunds
	}

	if err := insertEntry(ctx, tx, principal, "debit", amount, reference, description); err != nil {
		return err
	}
	return tx.Commit()
}

func (p *PostgresStore) History(ctx context.Context, principal string, limit int, after *pagination.Cursor) ([]*Entry, error) {
	query := `
		SELECT id, principal, entry_type, amount::TEXT, COALESCE(reference, ''), COALESCE(description, ''), created_at
		FROM ledger_entries
		WHERE principal = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`
	args := []any{principal, limit}
	if after != nil {
		query = `
		SELECT id, principal, entry_type, amount::TEXT, COALESCE(reference, ''), COALESCE(description, ''), created_at
		FROM ledger_entries
		WHERE principal = $1 AND (created_at, id) < ($2, $3)
		ORDER BY created_at DESC, id DESC
		LIMIT $4`
		args = []any{principal, after.CreatedAt, after.ID, limit}
	}

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var result []*Entry
	for rows.Next() {
		e := &Entry{}
		if err := rows.Scan(&e.ID, &e.Principal, &e.Type, &e.Amount, &e.Reference, &e.Description, &e.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

func insertEntry(ctx context.Context, tx *sql.Tx, principal, entryType, amount, reference, description string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO ledger_entries (id, principal, entry_type, amount, reference, description, created_at)
		VALUES ($1, $2, $3, $4::NUMERIC(20,2), NULLIF($5, ''), NULLIF($6, ''), now())`,
		idgen.WithPrefix("le_"), principal, entryType, amount, reference, description,
	)
	if err != nil {
		return fmt.Errorf("record ledger entry: %w", err)
	}
	return nil
}

// Compile-time assertion that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)
