package gig

import (
	"context"
	"sync"
)

// ActiveIndex is an in-memory cache of non-terminal gigs keyed by ID.
// It mirrors the persisted open/in_progress/pending_approval rows and is
// never the durable source of truth: it can be rebuilt from the store at
// any time. The lock guards only the map mutation itself and is never
// held across store or ledger calls.
type ActiveIndex struct {
	mu   sync.RWMutex
	gigs map[string]*Gig
}

// NewActiveIndex creates an empty active-gig index.
func NewActiveIndex() *ActiveIndex {
	return &ActiveIndex{gigs: make(map[string]*Gig)}
}

// Put stores a copy of the gig, or removes it if it reached a terminal
// status.
func (idx *ActiveIndex) Put(g *Gig) {
	if g.IsTerminal() {
		idx.Remove(g.ID)
		return
	}
	cp := *g
	idx.mu.Lock()
	idx.gigs[g.ID] = &cp
	idx.mu.Unlock()
}

// Remove drops a gig from the index.
func (idx *ActiveIndex) Remove(id string) {
	idx.mu.Lock()
	delete(idx.gigs, id)
	idx.mu.Unlock()
}

// Get returns a copy of the indexed gig, if present.
func (idx *ActiveIndex) Get(id string) (*Gig, bool) {
	idx.mu.RLock()
	g, ok := idx.gigs[id]
	idx.mu.RUnlock()
	if !ok {
		return nil, false
	}
	cp := *g
	return &cp, true
}

// List returns copies of all indexed gigs.
func (idx *ActiveIndex) List() []*Gig {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	result := make([]*Gig, 0, len(idx.gigs))
	for _, g := range idx.gigs {
		cp := *g
		result = append(result, &cp)
	}
	return result
}

// Len returns the number of indexed gigs.
func (idx *ActiveIndex) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.gigs)
}

// Rebuild replaces the index contents with the store's non-terminal gigs.
// Called at startup so a restart recovers every outstanding escrow
// obligation.
func (idx *ActiveIndex) Rebuild(ctx context.Context, store Store) error {
	active, err := store.ListActive(ctx)
	if err != nil {
		return err
	}

	fresh := make(map[string]*Gig, len(active))
	for _, g := range active {
		cp := *g
		fresh[g.ID] = &cp
	}

	idx.mu.Lock()
	idx.gigs = fresh
	idx.mu.Unlock()
	return nil
}
