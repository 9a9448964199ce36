// Package poll is the fallback for delayed or dropped webhooks: it
// periodically re-reconciles pending orders that already carry a charge.
// It only reads and hands off; the engine owns every mutation, so the
// webhook path and this path cannot race on stock.
package poll

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/pablocruz84/loja-nextjs-pix/internal/order"
)

type ChargeLister interface {
	ListPendingCharges(ctx context.Context, notOlderThan time.Duration) ([]order.PendingCharge, error)
}

type Reconciler interface {
	Reconcile(ctx context.Context, provider, chargeID string) error
}

type Sweeper struct {
	orders   ChargeLister
	engine   Reconciler
	log      *zap.Logger
	Interval time.Duration
	// MaxAge bounds how long an order keeps being polled; beyond it the
	// charge has expired and the order just stays pending until canceled.
	MaxAge time.Duration
}

func NewSweeper(orders ChargeLister, engine Reconciler, log *zap.Logger) *Sweeper {
	return &Sweeper{
		orders:   orders,
		engine:   engine,
		log:      log,
		Interval: 5 * time.Second,
		MaxAge:   30 * time.Minute,
	}
}

// Run polls until ctx is canceled. An order leaves the sweep as soon as it
// is no longer pending, so a paid order stops being polled within one
// interval.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	s.log.Info("payment poll sweeper started",
		zap.Duration("interval", s.Interval), zap.Duration("max_age", s.MaxAge))

	for {
		select {
		case <-ctx.Done():
			s.log.Info("payment poll sweeper stopping")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	pending, err := s.orders.ListPendingCharges(ctx, s.MaxAge)
	if err != nil {
		s.log.Error("poll: list pending charges failed", zap.Error(err))
		return
	}
	for _, pc := range pending {
		if ctx.Err() != nil {
			return
		}
		if err := s.engine.Reconcile(ctx, pc.Provider, pc.ChargeID); err != nil {
			// Left pending; the next tick or a webhook redelivery retries.
			s.log.Warn("poll: reconcile failed",
				zap.Int64("order_id", pc.OrderID),
				zap.String("provider", pc.Provider),
				zap.String("charge_id", pc.ChargeID),
				zap.Error(err))
		}
	}
}
