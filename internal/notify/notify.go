// Package notify delivers gig lifecycle notifications. Delivery is
// fire-and-forget: a dropped notification never fails the transaction
// that produced it.
package notify

import (
	"context"
	"log/slog"
	"strings"

	"github.com/gigboard/gigboard/internal/metrics"
	"github.com/gigboard/gigboard/internal/realtime"
)

// Emitter logs each notification, counts it, and fans it out to the
// realtime hub when one is attached.
type Emitter struct {
	logger *slog.Logger
	hub    *realtime.Hub
}

// NewEmitter creates a notification emitter. hub may be nil.
func NewEmitter(logger *slog.Logger, hub *realtime.Hub) *Emitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Emitter{logger: logger, hub: hub}
}

// Notify records a lifecycle event for a principal.
func (e *Emitter) Notify(ctx context.Context, principal, gigID, outcome, amount string) {
	e.logger.Info("notification",
		"principal", principal,
		"gigId", gigID,
		"outcome", outcome,
		"amount", amount,
	)
	// Outcomes may carry free-form detail after a colon ("rejected: too
	// blurry"); only the leading word is a metric label.
	label, _, _ := strings.Cut(outcome, ":")
	metrics.NotificationsTotal.WithLabelValues(label).Inc()

	if e.hub != nil {
		e.hub.BroadcastNotification(principal, gigID, outcome, amount)
	}
}
