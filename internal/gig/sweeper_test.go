package gig

import (
	"context"
	"testing"
	"time"
)

func TestSweeper_StartStop(t *testing.T) {
	store := NewMemoryStore()
	svc := newTestService(store, newMockLedger())
	sw := NewSweeper(svc, store, time.Second, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		sw.Start(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	if !sw.Running() {
		t.Error("Expected sweeper to report running")
	}
	sw.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Sweeper did not stop within 2 seconds")
	}
	if sw.Running() {
		t.Error("Expected sweeper to report stopped")
	}
}

func TestSweeper_ContextCancellation(t *testing.T) {
	store := NewMemoryStore()
	svc := newTestService(store, newMockLedger())
	sw := NewSweeper(svc, store, time.Second, testLogger())

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		sw.Start(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Sweeper did not stop on context cancel within 2 seconds")
	}
}

func TestSweeper_ResolvesStaleGigs(t *testing.T) {
	store := NewMemoryStore()
	ml := newMockLedger()
	ml.deposit(t, "alice", "500.00")
	svc := newTestService(store, ml)
	ctx := context.Background()

	// A gig submitted with its review deadline already in the past
	g, _ := svc.Post(ctx, PostRequest{PosterID: "alice", Title: "t", Payment: "200.00"})
	svc.Claim(ctx, g.ID, "bob")
	svc.Submit(ctx, g.ID, "bob")
	past := time.Now().Add(-time.Minute)
	stale, _ := store.Get(ctx, g.ID)
	stale.ReviewDeadline = &past
	if err := store.TransitionStatus(ctx, stale, StatusPendingApproval); err != nil {
		t.Fatalf("backdating deadline failed: %v", err)
	}

	// A gig still inside its review window
	fresh, _ := svc.Post(ctx, PostRequest{PosterID: "alice", Title: "t2", Payment: "100.00"})
	svc.Claim(ctx, fresh.ID, "carol")
	svc.Submit(ctx, fresh.ID, "carol")

	sw := NewSweeper(svc, store, time.Second, testLogger())
	sw.Sweep(ctx)

	got, _ := store.Get(ctx, g.ID)
	if got.Status != StatusCompleted {
		t.Errorf("Expected stale gig completed, got %s", got.Status)
	}
	if got.Resolution != "auto_approved" {
		t.Errorf("Expected resolution auto_approved, got %s", got.Resolution)
	}
	if b := ml.balance("bob"); b != cents(t, "190.00") {
		t.Errorf("Expected bob paid 190.00, got %d cents", b)
	}

	// The fresh gig is untouched
	got, _ = store.Get(ctx, fresh.ID)
	if got.Status != StatusPendingApproval {
		t.Errorf("Expected fresh gig still pending, got %s", got.Status)
	}
	if b := ml.balance("carol"); b != 0 {
		t.Errorf("Expected carol unpaid, got %d cents", b)
	}
}

func TestSweeper_OneFailureDoesNotBlockBatch(t *testing.T) {
	store := NewMemoryStore()
	ml := newMockLedger()
	ml.deposit(t, "alice", "500.00")
	svc := newTestService(store, ml)
	ctx := context.Background()

	past := time.Now().Add(-time.Minute)
	var ids []string
	for _, worker := range []string{"bob", "carol"} {
		g, _ := svc.Post(ctx, PostRequest{PosterID: "alice", Title: "t", Payment: "100.00"})
		svc.Claim(ctx, g.ID, worker)
		svc.Submit(ctx, g.ID, worker)
		stale, _ := store.Get(ctx, g.ID)
		stale.ReviewDeadline = &past
		store.TransitionStatus(ctx, stale, StatusPendingApproval)
		ids = append(ids, g.ID)
	}

	// A concurrent approval resolves the first gig before the sweep runs;
	// the sweep must not pay it again.
	svc.Approve(ctx, ids[0], "alice")

	sw := NewSweeper(svc, store, time.Second, testLogger())
	sw.Sweep(ctx)

	// Second gig still resolved despite the first being gone
	got, _ := store.Get(ctx, ids[1])
	if got.Status != StatusCompleted {
		t.Errorf("Expected second stale gig completed, got %s", got.Status)
	}
	if b := ml.balance("carol"); b != cents(t, "95.00") {
		t.Errorf("Expected carol paid 95.00, got %d cents", b)
	}
	// First gig paid exactly once by the manual approval
	if b := ml.balance("bob"); b != cents(t, "95.00") {
		t.Errorf("Expected bob paid 95.00 once, got %d cents", b)
	}
}
