package ledger

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/gigboard/gigboard/internal/idgen"
	"github.com/gigboard/gigboard/internal/money"
	"github.com/gigboard/gigboard/internal/pagination"
)

// MemoryStore is an in-memory ledger store for demo/development mode and
// tests.
type MemoryStore struct {
	mu       sync.Mutex
	balances map[string]*Balance
	entries  []*Entry
}

// NewMemoryStore creates a new in-memory ledger store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		balances: make(map[string]*Balance),
	}
}

func (m *MemoryStore) GetBalance(ctx context.Context, principal string) (*Balance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if bal, ok := m.balances[principal]; ok {
		cp := *bal
		return &cp, nil
	}
	return &Balance{
		Principal: principal,
		Available: "0.00",
		TotalIn:   "0.00",
		TotalOut:  "0.00",
		UpdatedAt: time.Now(),
	}, nil
}

func (m *MemoryStore) Credit(ctx context.Context, principal, amount, reference, description string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	bal := m.balance(principal)
	bal.Available = money.Add(bal.Available, amount)
	bal.TotalIn = money.Add(bal.TotalIn, amount)
	bal.UpdatedAt = time.Now()

	m.record(principal, "credit", amount, reference, description)
	return nil
}

func (m *MemoryStore) Debit(ctx context.Context, principal, amount, reference, description string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	bal := m.balance(principal)
	if money.Cmp(bal.Available, amount) < 0 {
		return ErrInsufficientFunds
	}

	avail, _ := money.Parse(bal.Available)
	amt, _ := money.Parse(amount)
	bal.Available = money.Format(new(big.Int).Sub(avail, amt))
	bal.TotalOut = money.Add(bal.TotalOut, amount)
	bal.UpdatedAt = time.Now()

	m.record(principal, "debit", amount, reference, description)
	return nil
}

func (m *MemoryStore) History(ctx context.Context, principal string, limit int, after *pagination.Cursor) ([]*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []*Entry
	for i := len(m.entries) - 1; i >= 0 && len(result) < limit; i-- {
		e := m.entries[i]
		if e.Principal != principal {
			continue
		}
		if after != nil && !beforeCursor(e, after) {
			continue
		}
		cp := *e
		result = append(result, &cp)
	}
	return result, nil
}

// beforeCursor reports whether e sorts strictly after the cursor
// position in newest-first order.
func beforeCursor(e *Entry, c *pagination.Cursor) bool {
	if e.CreatedAt.Before(c.CreatedAt) {
		return true
	}
	return e.CreatedAt.Equal(c.CreatedAt) && e.ID < c.ID
}

// balance returns the live record for a principal, creating it on first
// use. Callers hold the mutex.
func (m *MemoryStore) balance(principal string) *Balance {
	if bal, ok := m.balances[principal]; ok {
		return bal
	}
	bal := &Balance{
		Principal: principal,
		Available: "0.00",
		TotalIn:   "0.00",
		TotalOut:  "0.00",
		UpdatedAt: time.Now(),
	}
	m.balances[principal] = bal
	return bal
}

func (m *MemoryStore) record(principal, entryType, amount, reference, description string) {
	m.entries = append(m.entries, &Entry{
		ID:          idgen.WithPrefix("le_"),
		Principal:   principal,
		Type:        entryType,
		Amount:      amount,
		Reference:   reference,
		Description: description,
		CreatedAt:   time.Now(),
	})
}

// Compile-time assertion that MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)
