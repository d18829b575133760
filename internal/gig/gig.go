// Package gig implements the escrow-backed gig marketplace engine.
//
// Flow:
//  1. Poster posts a gig → posting fee + payment debited, payment escrowed
//  2. Worker claims, does the work, submits for review
//  3. Poster approves → worker paid (minus commission)
//  4. Poster rejects → back to the worker for another attempt
//  5. Poster cancels → escrow refunded (minus penalty once claimed)
//  6. Review deadline passes → auto-approved in the worker's favor
package gig

import (
	"context"
	"errors"
	"time"
)

var (
	ErrGigNotFound   = errors.New("gig not found")
	ErrInvalidStatus = errors.New("invalid gig status for this operation")
	ErrUnauthorized  = errors.New("not authorized for this gig operation")
	ErrInvalidAmount = errors.New("invalid amount")
)

// Status represents the state of a gig.
type Status string

const (
	StatusOpen            Status = "open"             // Posted, escrow funded, awaiting a worker
	StatusInProgress      Status = "in_progress"      // Claimed by a worker
	StatusPendingApproval Status = "pending_approval" // Submitted, awaiting poster review
	StatusCompleted       Status = "completed"        // Approved, worker paid
	StatusCancelled       Status = "cancelled"        // Withdrawn or compensated, poster refunded
)

// Gig represents a postable unit of paid work with an escrowed payment.
type Gig struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	PosterID    string `json:"posterId"`
	WorkerID    string `json:"workerId,omitempty"`

	// Payment is the escrowed amount owed to the worker on approval,
	// excluding the non-refundable posting fee.
	Payment string `json:"payment"`

	Status     Status `json:"status"`
	Resolution string `json:"resolution,omitempty"`

	ReviewDeadline *time.Time `json:"reviewDeadline,omitempty"`
	CompletedAt    *time.Time `json:"completedAt,omitempty"`
	CancelledAt    *time.Time `json:"cancelledAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// IsTerminal returns true if the gig is in a final state.
func (g *Gig) IsTerminal() bool {
	switch g.Status {
	case StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Store persists gig data.
//
// TransitionStatus is the linearization point for concurrent operations:
// it writes the gig's mutable fields only if the persisted status still
// equals from, returning ErrInvalidStatus when a concurrent transition won
// the race.
type Store interface {
	Create(ctx context.Context, g *Gig) error
	Get(ctx context.Context, id string) (*Gig, error)
	TransitionStatus(ctx context.Context, g *Gig, from Status) error
	ListByPrincipal(ctx context.Context, principal string, limit int) ([]*Gig, error)
	ListByStatus(ctx context.Context, status Status, limit int) ([]*Gig, error)
	ListStale(ctx context.Context, before time.Time, limit int) ([]*Gig, error)
	ListActive(ctx context.Context) ([]*Gig, error)
}

// Ledger is the balance contract the engine runs against.
// Debit fails on insufficient funds; neither call offers cross-call
// atomicity, so every movement needs its own compensation path.
type Ledger interface {
	Debit(ctx context.Context, principal, amount, reference, description string) error
	Credit(ctx context.Context, principal, amount, reference, description string) error
}

// Notifier delivers gig lifecycle events to principals. Implementations
// are fire-and-forget: delivery failure never rolls back a transaction.
type Notifier interface {
	Notify(ctx context.Context, principal, gigID, outcome, amount string)
}
