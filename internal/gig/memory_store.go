package gig

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory gig store for demo/development mode and
// tests. TransitionStatus honors the same compare-and-swap contract as
// the PostgreSQL store.
type MemoryStore struct {
	mu   sync.RWMutex
	gigs map[string]*Gig
}

// NewMemoryStore creates a new in-memory gig store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{gigs: make(map[string]*Gig)}
}

func (m *MemoryStore) Create(ctx context.Context, g *Gig) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *g
	m.gigs[g.ID] = &cp
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*Gig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	g, ok := m.gigs[id]
	if !ok {
		return nil, ErrGigNotFound
	}
	cp := *g
	return &cp, nil
}

func (m *MemoryStore) TransitionStatus(ctx context.Context, g *Gig, from Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.gigs[g.ID]
	if !ok {
		return ErrGigNotFound
	}
	if current.Status != from {
		return ErrInvalidStatus
	}
	cp := *g
	m.gigs[g.ID] = &cp
	return nil
}

func (m *MemoryStore) ListByPrincipal(ctx context.Context, principal string, limit int) ([]*Gig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Gig
	for _, g := range m.gigs {
		if g.PosterID == principal || g.WorkerID == principal {
			cp := *g
			result = append(result, &cp)
			if len(result) >= limit {
				break
			}
		}
	}
	return result, nil
}

func (m *MemoryStore) ListByStatus(ctx context.Context, status Status, limit int) ([]*Gig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Gig
	for _, g := range m.gigs {
		if g.Status == status {
			cp := *g
			result = append(result, &cp)
			if len(result) >= limit {
				break
			}
		}
	}
	return result, nil
}

func (m *MemoryStore) ListStale(ctx context.Context, before time.Time, limit int) ([]*Gig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Gig
	for _, g := range m.gigs {
		if g.Status == StatusPendingApproval && g.ReviewDeadline != nil && g.ReviewDeadline.Before(before) {
			cp := *g
			result = append(result, &cp)
			if len(result) >= limit {
				break
			}
		}
	}
	return result, nil
}

func (m *MemoryStore) ListActive(ctx context.Context) ([]*Gig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Gig
	for _, g := range m.gigs {
		if !g.IsTerminal() {
			cp := *g
			result = append(result, &cp)
		}
	}
	return result, nil
}

// Compile-time assertion that MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)
