// Package ledger tracks principal balances on the platform.
//
// A principal is a poster or worker (online or not). Balances move only
// through Credit and Debit; there is no cross-call atomicity, so callers
// performing multi-step fund movements carry their own compensation
// logic. All amounts use fixed 2-decimal precision.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/gigboard/gigboard/internal/money"
	"github.com/gigboard/gigboard/internal/pagination"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrAccountNotFound   = errors.New("account not found")
	ErrInvalidCursor     = errors.New("invalid cursor")
)

// Entry represents one balance movement, kept for auditing.
type Entry struct {
	ID          string    `json:"id"`
	Principal   string    `json:"principal"`
	Type        string    `json:"type"` // credit, debit
	Amount      string    `json:"amount"`
	Reference   string    `json:"reference,omitempty"` // gig ID, deposit ID, etc.
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Balance represents a principal's balance.
type Balance struct {
	Principal string    `json:"principal"`
	Available string    `json:"available"`
	TotalIn   string    `json:"totalIn"`
	TotalOut  string    `json:"totalOut"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Store persists ledger data. Debit must check funds and subtract in one
// atomic step; a read-then-write split would race with concurrent debits.
type Store interface {
	GetBalance(ctx context.Context, principal string) (*Balance, error)
	Credit(ctx context.Context, principal, amount, reference, description string) error
	Debit(ctx context.Context, principal, amount, reference, description string) error
	History(ctx context.Context, principal string, limit int, after *pagination.Cursor) ([]*Entry, error)
}

// Ledger manages principal balances.
type Ledger struct {
	store Store
}

// New creates a new ledger over a store.
func New(store Store) *Ledger {
	return &Ledger{store: store}
}

// GetBalance returns a principal's current balance. Unknown principals
// have a zero balance rather than an error.
func (l *Ledger) GetBalance(ctx context.Context, principal string) (*Balance, error) {
	return l.store.GetBalance(ctx, principal)
}

// Credit adds funds to a principal's balance, creating the account on
// first use.
func (l *Ledger) Credit(ctx context.Context, principal, amount, reference, description string) error {
	if principal == "" {
		return ErrAccountNotFound
	}
	if !money.IsPositive(amount) {
		return ErrInvalidAmount
	}
	return l.store.Credit(ctx, principal, amount, reference, description)
}

// Debit removes funds from a principal's balance. Fails with
// ErrInsufficientFunds when the available balance cannot cover the
// amount; the check and the subtraction are one atomic store step.
func (l *Ledger) Debit(ctx context.Context, principal, amount, reference, description string) error {
	if principal == "" {
		return ErrAccountNotFound
	}
	if !money.IsPositive(amount) {
		return ErrInvalidAmount
	}
	return l.store.Debit(ctx, principal, amount, reference, description)
}

// History returns one page of a principal's ledger entries, newest
// first. A non-empty cursor resumes after the entry it names; the
// returned cursor is empty on the last page.
func (l *Ledger) History(ctx context.Context, principal string, limit int, cursor string) ([]*Entry, string, error) {
	if limit <= 0 {
		limit = 50
	}
	after, err := pagination.Decode(cursor)
	if err != nil {
		return nil, "", ErrInvalidCursor
	}

	entries, err := l.store.History(ctx, principal, limit+1, after)
	if err != nil {
		return nil, "", err
	}
	page, next, _ := pagination.ComputePage(entries, limit, func(e *Entry) (time.Time, string) {
		return e.CreatedAt, e.ID
	})
	return page, next, nil
}
