package gig

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gigboard/gigboard/internal/dbpool"
	"github.com/gigboard/gigboard/internal/testutil"
)

func setupPostgresStore(t *testing.T) (*PostgresStore, func()) {
	t.Helper()
	db, cleanup := testutil.PGTest(t)

	pool := dbpool.New(db, dbpool.Config{MaxSize: 4}, testLogger())
	store := NewPostgresStore(pool)

	return store, func() {
		pool.DrainAll()
		cleanup()
	}
}

func pgGig(id string) *Gig {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &Gig{
		ID:          id,
		Title:       "translate a document",
		Description: "en to fr",
		PosterID:    "alice",
		Payment:     "200.00",
		Status:      StatusOpen,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestPostgresStore_CreateGetRoundTrip(t *testing.T) {
	store, cleanup := setupPostgresStore(t)
	defer cleanup()
	ctx := context.Background()

	g := pgGig("gig_pg_roundtrip")
	if err := store.Create(ctx, g); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, err := store.Get(ctx, g.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Title != g.Title || got.Description != g.Description || got.PosterID != g.PosterID {
		t.Errorf("Round trip mismatch: %+v vs %+v", got, g)
	}
	if got.Payment != "200.00" {
		t.Errorf("Expected payment 200.00 preserved exactly, got %s", got.Payment)
	}
	if got.Status != StatusOpen {
		t.Errorf("Expected open, got %s", got.Status)
	}
	if got.WorkerID != "" || got.ReviewDeadline != nil || got.CompletedAt != nil {
		t.Errorf("Expected empty optional fields, got %+v", got)
	}
}

func TestPostgresStore_GetNonexistent(t *testing.T) {
	store, cleanup := setupPostgresStore(t)
	defer cleanup()

	_, err := store.Get(context.Background(), "gig_pg_ghost")
	if !errors.Is(err, ErrGigNotFound) {
		t.Errorf("Expected ErrGigNotFound, got %v", err)
	}
}

func TestPostgresStore_TransitionStatusCAS(t *testing.T) {
	store, cleanup := setupPostgresStore(t)
	defer cleanup()
	ctx := context.Background()

	g := pgGig("gig_pg_cas")
	if err := store.Create(ctx, g); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	g.WorkerID = "bob"
	g.Status = StatusInProgress
	g.UpdatedAt = time.Now().UTC()
	if err := store.TransitionStatus(ctx, g, StatusOpen); err != nil {
		t.Fatalf("TransitionStatus open→in_progress failed: %v", err)
	}

	// Replaying the same transition loses: the row is no longer open
	if err := store.TransitionStatus(ctx, g, StatusOpen); !errors.Is(err, ErrInvalidStatus) {
		t.Errorf("Expected ErrInvalidStatus replaying transition, got %v", err)
	}

	// Missing row is distinguished from a lost race
	ghost := pgGig("gig_pg_cas_ghost")
	ghost.Status = StatusInProgress
	if err := store.TransitionStatus(ctx, ghost, StatusOpen); !errors.Is(err, ErrGigNotFound) {
		t.Errorf("Expected ErrGigNotFound for missing row, got %v", err)
	}

	got, _ := store.Get(ctx, g.ID)
	if got.Status != StatusInProgress || got.WorkerID != "bob" {
		t.Errorf("Expected in_progress/bob persisted, got %s/%s", got.Status, got.WorkerID)
	}
}

func TestPostgresStore_Listings(t *testing.T) {
	store, cleanup := setupPostgresStore(t)
	defer cleanup()
	ctx := context.Background()

	open := pgGig("gig_pg_list_open")
	store.Create(ctx, open)

	claimed := pgGig("gig_pg_list_claimed")
	store.Create(ctx, claimed)
	claimed.WorkerID = "bob"
	claimed.Status = StatusInProgress
	claimed.UpdatedAt = time.Now().UTC()
	if err := store.TransitionStatus(ctx, claimed, StatusOpen); err != nil {
		t.Fatalf("claim transition failed: %v", err)
	}

	other := pgGig("gig_pg_list_other")
	other.PosterID = "carol"
	store.Create(ctx, other)

	byAlice, err := store.ListByPrincipal(ctx, "alice", 10)
	if err != nil {
		t.Fatalf("ListByPrincipal failed: %v", err)
	}
	if len(byAlice) != 2 {
		t.Errorf("Expected 2 gigs for alice, got %d", len(byAlice))
	}

	// Worker side of the principal listing
	byBob, _ := store.ListByPrincipal(ctx, "bob", 10)
	if len(byBob) != 1 || byBob[0].ID != claimed.ID {
		t.Errorf("Expected bob's claimed gig, got %+v", byBob)
	}

	openGigs, _ := store.ListByStatus(ctx, StatusOpen, 10)
	if len(openGigs) != 2 {
		t.Errorf("Expected 2 open gigs, got %d", len(openGigs))
	}

	active, _ := store.ListActive(ctx)
	if len(active) != 3 {
		t.Errorf("Expected 3 active gigs, got %d", len(active))
	}
}

func TestPostgresStore_ListStale(t *testing.T) {
	store, cleanup := setupPostgresStore(t)
	defer cleanup()
	ctx := context.Background()
	now := time.Now().UTC()

	submit := func(id string, deadline time.Time) {
		g := pgGig(id)
		store.Create(ctx, g)
		g.WorkerID = "bob"
		g.Status = StatusInProgress
		store.TransitionStatus(ctx, g, StatusOpen)
		g.Status = StatusPendingApproval
		g.ReviewDeadline = &deadline
		if err := store.TransitionStatus(ctx, g, StatusInProgress); err != nil {
			t.Fatalf("submit transition failed: %v", err)
		}
	}

	submit("gig_pg_stale", now.Add(-time.Minute))
	submit("gig_pg_fresh", now.Add(time.Hour))

	// Open gig past nothing; never listed regardless of deadline
	store.Create(ctx, pgGig("gig_pg_open"))

	stale, err := store.ListStale(ctx, now, 10)
	if err != nil {
		t.Fatalf("ListStale failed: %v", err)
	}
	if len(stale) != 1 || stale[0].ID != "gig_pg_stale" {
		t.Errorf("Expected only gig_pg_stale, got %+v", stale)
	}
}
