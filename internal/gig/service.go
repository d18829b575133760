package gig

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/codes"

	"github.com/gigboard/gigboard/internal/idgen"
	"github.com/gigboard/gigboard/internal/metrics"
	"github.com/gigboard/gigboard/internal/money"
	"github.com/gigboard/gigboard/internal/retry"
	"github.com/gigboard/gigboard/internal/syncutil"
	"github.com/gigboard/gigboard/internal/traces"
)

// SystemActor is the principal recorded when the timeout sweep resolves a
// gig on the poster's behalf.
const SystemActor = "system"

// Options configures the gig engine's fee schedule and review deadline.
// Rates are validated at config load, not here.
type Options struct {
	PostingFee     string
	Commission     money.Fraction
	Penalty        money.Fraction
	ReviewDeadline time.Duration
	Logger         *slog.Logger
}

// PostRequest contains the parameters for posting a gig.
type PostRequest struct {
	PosterID    string `json:"posterId" binding:"required"`
	Title       string `json:"title" binding:"required"`
	Description string `json:"description"`
	Payment     string `json:"payment" binding:"required"`
}

// Service implements the escrow transaction engine: the state machine
// coordinating gig lifecycle, fund movement, compensating refunds, and
// the timeout sweep.
type Service struct {
	store    Store
	ledger   Ledger
	notifier Notifier
	index    *ActiveIndex
	locks    syncutil.ShardedMutex

	postingFee     string
	commission     money.Fraction
	penalty        money.Fraction
	reviewDeadline time.Duration
	logger         *slog.Logger
}

// NewService creates a new gig engine.
func NewService(store Store, ledger Ledger, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	fee := opts.PostingFee
	if fee == "" {
		fee = "0.00"
	}
	return &Service{
		store:          store,
		ledger:         ledger,
		index:          NewActiveIndex(),
		postingFee:     fee,
		commission:     opts.Commission,
		penalty:        opts.Penalty,
		reviewDeadline: opts.ReviewDeadline,
		logger:         logger,
	}
}

// WithNotifier adds a lifecycle event notifier.
func (s *Service) WithNotifier(n Notifier) *Service {
	s.notifier = n
	return s
}

// Index exposes the active-gig cache (read-only use: listings, health).
func (s *Service) Index() *ActiveIndex {
	return s.index
}

// RebuildIndex reloads the active-gig cache from the store. Called at
// startup so outstanding escrow obligations survive a restart.
func (s *Service) RebuildIndex(ctx context.Context) error {
	if err := s.index.Rebuild(ctx, s.store); err != nil {
		return fmt.Errorf("rebuild active index: %w", err)
	}
	metrics.ActiveGigs.Set(float64(s.index.Len()))
	return nil
}

// Post creates a gig and escrows its payment. The poster is debited the
// posting fee plus the payment in a single step; the row is inserted only
// after funds are confirmed withdrawn, so no gig exists without funded
// escrow.
func (s *Service) Post(ctx context.Context, req PostRequest) (*Gig, error) {
	if req.PosterID == "" || req.Title == "" {
		return nil, ErrUnauthorized
	}
	amount, ok := money.Parse(req.Payment)
	if !ok || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}

	ctx, span := traces.StartSpan(ctx, "gig.Post",
		traces.Principal(req.PosterID), traces.Amount(req.Payment))
	defer span.End()

	now := time.Now()
	g := &Gig{
		ID:          idgen.WithPrefix("gig_"),
		Title:       req.Title,
		Description: req.Description,
		PosterID:    req.PosterID,
		Payment:     money.Format(amount),
		Status:      StatusOpen,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	total := money.Add(s.postingFee, g.Payment)
	if err := s.ledger.Debit(ctx, g.PosterID, total, g.ID, "gig_post"); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "escrow debit failed")
		return nil, fmt.Errorf("failed to escrow gig funds: %w", err)
	}

	if err := s.store.Create(ctx, g); err != nil {
		// Funds are withdrawn but no row exists: give them back.
		if refundErr := s.ledger.Credit(ctx, g.PosterID, total, g.ID, "gig_post_refund"); refundErr != nil {
			s.critical("post refund failed after store error",
				"gigId", g.ID, "poster", g.PosterID, "amount", total, "error", refundErr)
		}
		return nil, fmt.Errorf("failed to create gig record: %w", err)
	}

	s.index.Put(g)
	metrics.GigsPostedTotal.Inc()
	metrics.ActiveGigs.Set(float64(s.index.Len()))
	return g, nil
}

// Claim assigns an open gig to a worker. No fund movement.
func (s *Service) Claim(ctx context.Context, id, workerID string) (*Gig, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	g, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if workerID == "" || workerID == g.PosterID {
		return nil, ErrUnauthorized
	}
	if g.Status != StatusOpen {
		return nil, ErrInvalidStatus
	}

	g.WorkerID = workerID
	g.Status = StatusInProgress
	g.UpdatedAt = time.Now()

	if err := s.store.TransitionStatus(ctx, g, StatusOpen); err != nil {
		return nil, err
	}

	s.index.Put(g)
	return g, nil
}

// Submit moves an in-progress gig to pending approval and starts the
// poster's review clock.
func (s *Service) Submit(ctx context.Context, id, workerID string) (*Gig, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	g, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if g.Status != StatusInProgress {
		return nil, ErrInvalidStatus
	}
	if workerID == "" || workerID != g.WorkerID {
		return nil, ErrUnauthorized
	}

	now := time.Now()
	deadline := now.Add(s.reviewDeadline)
	g.Status = StatusPendingApproval
	g.ReviewDeadline = &deadline
	g.UpdatedAt = now

	if err := s.store.TransitionStatus(ctx, g, StatusInProgress); err != nil {
		return nil, err
	}

	s.index.Put(g)
	s.notify(ctx, g.PosterID, g.ID, "submitted", g.Payment)
	return g, nil
}

// Approve releases the escrowed payment to the worker, minus commission.
func (s *Service) Approve(ctx context.Context, id, posterID string) (*Gig, error) {
	return s.approve(ctx, id, posterID, false)
}

// AutoApprove resolves a gig stuck past its review deadline with the
// system as the actor, favoring the worker.
func (s *Service) AutoApprove(ctx context.Context, id string) (*Gig, error) {
	return s.approve(ctx, id, SystemActor, true)
}

func (s *Service) approve(ctx context.Context, id, actor string, auto bool) (*Gig, error) {
	ctx, span := traces.StartSpan(ctx, "gig.Approve",
		traces.GigID(id), traces.Principal(actor))
	defer span.End()

	unlock := s.locks.Lock(id)
	defer unlock()

	// Re-read under lock so racing approvals observe the winner's status.
	g, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if g.Status != StatusPendingApproval {
		return nil, ErrInvalidStatus
	}
	if !auto && actor != g.PosterID {
		return nil, ErrUnauthorized
	}

	payout := s.commission.ApplyRemainder(g.Payment)

	if err := s.ledger.Credit(ctx, g.WorkerID, payout, g.ID, "gig_payout"); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "worker payout failed")
		return nil, s.compensate(ctx, g, "", fmt.Errorf("credit worker payout: %w", err))
	}

	now := time.Now()
	g.Status = StatusCompleted
	g.CompletedAt = &now
	g.UpdatedAt = now
	if auto {
		g.Resolution = "auto_approved"
	} else {
		g.Resolution = "approved"
	}

	if err := s.store.TransitionStatus(ctx, g, StatusPendingApproval); err != nil {
		// Worker is paid but the completed row didn't land; unwind.
		return nil, s.compensate(ctx, g, payout, fmt.Errorf("persist completion: %w", err))
	}

	s.index.Remove(g.ID)
	metrics.ActiveGigs.Set(float64(s.index.Len()))
	if auto {
		metrics.GigsAutoApprovedTotal.Inc()
	} else {
		metrics.GigsCompletedTotal.Inc()
	}

	s.notify(ctx, g.WorkerID, g.ID, g.Resolution, payout)
	if auto {
		s.notify(ctx, g.PosterID, g.ID, "auto_approved", payout)
	}
	return g, nil
}

// compensate is the refund-to-poster path for a failed approval: the full
// escrowed payment goes back to the poster and the gig moves to cancelled.
// workerPayout is non-empty when the worker was already credited; that
// credit is clawed back best-effort, and a claw-back failure escalates to
// a critical alarm since it may mean a double payment.
//
// The returned error always states what happened to the money.
func (s *Service) compensate(ctx context.Context, g *Gig, workerPayout string, cause error) error {
	metrics.EscrowCompensationsTotal.Inc()

	if workerPayout != "" {
		if err := s.ledger.Debit(ctx, g.WorkerID, workerPayout, g.ID, "gig_payout_reversal"); err != nil {
			s.critical("worker payout claw-back failed, possible double payment needs reconciliation",
				"gigId", g.ID, "worker", g.WorkerID, "payout", workerPayout, "error", err)
		}
	}

	if err := s.ledger.Credit(ctx, g.PosterID, g.Payment, g.ID, "gig_escrow_refund"); err != nil {
		s.critical("escrow refund failed, funds in limbo",
			"gigId", g.ID, "poster", g.PosterID, "amount", g.Payment, "error", err)
		return fmt.Errorf("approval failed and escrow refund failed, contact an administrator (gig %s, amount %s): %w",
			g.ID, g.Payment, cause)
	}

	now := time.Now()
	g.Status = StatusCancelled
	g.CancelledAt = &now
	g.UpdatedAt = now
	g.Resolution = "approval_failed_refunded"

	// The refund already happened, the row must follow.
	if err := s.persistTransition(ctx, g, StatusPendingApproval); err != nil {
		s.critical("escrow refunded but cancellation not persisted",
			"gigId", g.ID, "poster", g.PosterID, "amount", g.Payment, "error", err)
	}

	s.index.Remove(g.ID)
	metrics.ActiveGigs.Set(float64(s.index.Len()))
	metrics.GigsCancelledTotal.Inc()
	s.notify(ctx, g.PosterID, g.ID, "refunded", g.Payment)

	return fmt.Errorf("approval failed, escrow %s refunded to poster: %w", g.Payment, cause)
}

// persistTransition writes a status change that must not be lost, retrying
// transient store failures. A CAS conflict means another writer won the row
// and is not retried.
func (s *Service) persistTransition(ctx context.Context, g *Gig, from Status) error {
	return retry.Do(ctx, 3, 50*time.Millisecond, func() error {
		err := s.store.TransitionStatus(ctx, g, from)
		if errors.Is(err, ErrInvalidStatus) || errors.Is(err, ErrGigNotFound) {
			return retry.Permanent(err)
		}
		return err
	})
}

// Reject sends a pending gig back to the worker for another attempt.
// No fund movement; the worker keeps the claim.
func (s *Service) Reject(ctx context.Context, id, posterID, reason string) (*Gig, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	g, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if g.Status != StatusPendingApproval {
		return nil, ErrInvalidStatus
	}
	if posterID != g.PosterID {
		return nil, ErrUnauthorized
	}

	g.Status = StatusInProgress
	g.ReviewDeadline = nil
	g.UpdatedAt = time.Now()

	if err := s.store.TransitionStatus(ctx, g, StatusPendingApproval); err != nil {
		return nil, err
	}

	s.index.Put(g)
	s.notify(ctx, g.WorkerID, g.ID, "rejected: "+reason, "0.00")
	return g, nil
}

// Cancel withdraws a gig and refunds the poster. Open gigs refund in
// full; claimed gigs forfeit the configured cancellation penalty. A
// failed refund leaves the gig in its prior status.
func (s *Service) Cancel(ctx context.Context, id, posterID string) (*Gig, error) {
	ctx, span := traces.StartSpan(ctx, "gig.Cancel",
		traces.GigID(id), traces.Principal(posterID))
	defer span.End()

	unlock := s.locks.Lock(id)
	defer unlock()

	g, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if posterID != g.PosterID {
		return nil, ErrUnauthorized
	}
	if g.Status != StatusOpen && g.Status != StatusInProgress {
		return nil, ErrInvalidStatus
	}

	prior := g.Status
	refund := g.Payment
	if prior == StatusInProgress {
		refund = s.penalty.ApplyRemainder(g.Payment)
	}

	if err := s.ledger.Credit(ctx, g.PosterID, refund, g.ID, "gig_cancel_refund"); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "cancellation refund failed")
		return nil, fmt.Errorf("cancellation refund failed, gig unchanged: %w", err)
	}

	now := time.Now()
	g.Status = StatusCancelled
	g.CancelledAt = &now
	g.UpdatedAt = now
	g.Resolution = "cancelled_by_poster"

	// The refund already happened, the row must follow.
	if err := s.persistTransition(ctx, g, prior); err != nil {
		s.critical("refund issued but cancellation not persisted",
			"gigId", g.ID, "poster", g.PosterID, "refund", refund, "error", err)
		return nil, fmt.Errorf("refund of %s issued but cancellation not persisted (requires operator attention): %w", refund, err)
	}

	s.index.Remove(g.ID)
	metrics.ActiveGigs.Set(float64(s.index.Len()))
	metrics.GigsCancelledTotal.Inc()

	s.notify(ctx, g.PosterID, g.ID, "refunded", refund)
	if g.WorkerID != "" {
		s.notify(ctx, g.WorkerID, g.ID, "withdrawn", "0.00")
	}
	return g, nil
}

// Get returns a gig by ID.
func (s *Service) Get(ctx context.Context, id string) (*Gig, error) {
	return s.store.Get(ctx, id)
}

// ListByPrincipal returns gigs the principal posted or claimed.
func (s *Service) ListByPrincipal(ctx context.Context, principal string, limit int) ([]*Gig, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.store.ListByPrincipal(ctx, principal, limit)
}

// ListByStatus returns gigs in the given status.
func (s *Service) ListByStatus(ctx context.Context, status Status, limit int) ([]*Gig, error) {
	switch status {
	case StatusOpen, StatusInProgress, StatusPendingApproval, StatusCompleted, StatusCancelled:
	default:
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidStatus, status)
	}
	if limit <= 0 {
		limit = 50
	}
	return s.store.ListByStatus(ctx, status, limit)
}

func (s *Service) notify(ctx context.Context, principal, gigID, outcome, amount string) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(ctx, principal, gigID, outcome, amount)
}

// critical logs an operator-visible alarm for fund-safety failures that
// must never be silently dropped.
func (s *Service) critical(msg string, args ...any) {
	metrics.EscrowCriticalAlarmsTotal.Inc()
	s.logger.Error("CRITICAL: "+msg, args...)
}
