package gig

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

// Sweeper periodically finds gigs stuck in pending approval past their
// review deadline and forces resolution through the engine. The poster
// failed to act in time, so auto-approval favors the worker.
type Sweeper struct {
	service  *Service
	store    Store
	interval time.Duration
	logger   *slog.Logger
	stop     chan struct{}
	running  atomic.Bool
}

// NewSweeper creates a new timeout sweeper.
func NewSweeper(service *Service, store Store, interval time.Duration, logger *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Sweeper{
		service:  service,
		store:    store,
		interval: interval,
		logger:   logger,
		stop:     make(chan struct{}),
	}
}

// Running reports whether the sweep loop is actively running.
func (s *Sweeper) Running() bool {
	return s.running.Load()
}

// Start begins the sweep loop. Call in a goroutine.
func (s *Sweeper) Start(ctx context.Context) {
	s.running.Store(true)
	defer s.running.Store(false)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-ticker.C:
			s.safeSweep(ctx)
		}
	}
}

// Stop signals the sweeper to stop.
func (s *Sweeper) Stop() {
	select {
	case s.stop <- struct{}{}:
	default:
	}
}

func (s *Sweeper) safeSweep(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic in timeout sweep", "panic", fmt.Sprint(r))
		}
	}()
	s.Sweep(ctx)
}

// Sweep resolves every stale pending-approval gig. Each gig is processed
// independently; one failure does not block the rest of the batch.
func (s *Sweeper) Sweep(ctx context.Context) {
	stale, err := s.store.ListStale(ctx, time.Now(), 100)
	if err != nil {
		s.logger.Warn("failed to list stale gigs", "error", err)
		return
	}

	for _, g := range stale {
		resolved, err := s.service.AutoApprove(ctx, g.ID)
		if err != nil {
			// Losing a race to a concurrent approval is routine.
			if errors.Is(err, ErrInvalidStatus) {
				continue
			}
			s.logger.Warn("failed to auto-approve stale gig",
				"gigId", g.ID,
				"error", err,
			)
			continue
		}
		s.logger.Info("auto-approved gig past review deadline",
			"gigId", g.ID,
			"poster", resolved.PosterID,
			"worker", resolved.WorkerID,
			"payment", resolved.Payment,
		)
	}
}
