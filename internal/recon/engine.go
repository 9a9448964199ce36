// Package recon reconciles provider-side payment state with local orders.
// It is the only component allowed to move an order from pending to paid.
package recon

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/pablocruz84/loja-nextjs-pix/internal/order"
	"github.com/pablocruz84/loja-nextjs-pix/internal/payment"
)

type OrderStore interface {
	GetByCharge(ctx context.Context, provider, chargeID string) (*order.Order, []order.Item, error)
	GetByID(ctx context.Context, id int64) (*order.Order, []order.Item, error)
	MarkPaid(ctx context.Context, id int64, provider, chargeID string) (bool, error)
}

type StockStore interface {
	DecrementStock(ctx context.Context, productID int64, qty int) (int, error)
}

type CustomerStore interface {
	IncrementPurchases(ctx context.Context, id int64) error
}

// Events receives the payment-confirmed signal that drives the best-effort
// notification pipeline. A failure here never rolls back the transition.
type Events interface {
	PaymentConfirmed(ctx context.Context, orderID int64) error
}

type Engine struct {
	orders    OrderStore
	stock     StockStore
	customers CustomerStore
	events    Events
	gateways  map[string]payment.Gateway
	log       *zap.Logger
}

func New(orders OrderStore, stock StockStore, customers CustomerStore, events Events,
	gateways map[string]payment.Gateway, log *zap.Logger) *Engine {
	return &Engine{
		orders:    orders,
		stock:     stock,
		customers: customers,
		events:    events,
		gateways:  gateways,
		log:       log,
	}
}

// Reconcile decides the true payment state for (provider, chargeID) and
// applies it exactly once. It is safe to call any number of times, from the
// webhook path and the poll path concurrently: the conditional MarkPaid
// update picks a single winner and the loser sees the idempotent no-op.
//
// A non-nil error means the true state could not be confirmed; the order is
// left pending and the next poll tick or webhook redelivery retries.
func (e *Engine) Reconcile(ctx context.Context, provider, chargeID string) error {
	gw, ok := e.gateways[provider]
	if !ok {
		e.log.Warn("reconcile: notification for unconfigured provider",
			zap.String("provider", provider), zap.String("charge_id", chargeID))
		return nil
	}

	st, err := gw.GetCharge(ctx, chargeID)
	if err != nil {
		return fmt.Errorf("reconcile: verify charge %s/%s: %w", provider, chargeID, err)
	}
	if st.Status != payment.StatusApproved {
		e.log.Debug("reconcile: charge not approved yet",
			zap.String("provider", provider), zap.String("charge_id", chargeID),
			zap.String("status", string(st.Status)))
		return nil
	}

	o, items, err := e.resolveOrder(ctx, provider, chargeID, st.Reference)
	if err != nil {
		return err
	}
	if o == nil {
		// A confirmed payment with no local order needs an operator, not a
		// crash or a retry storm.
		e.log.Warn("reconcile: approved payment has no matching order",
			zap.String("provider", provider), zap.String("charge_id", chargeID),
			zap.String("reference", st.Reference))
		return nil
	}
	if o.Status == order.StatusPaid {
		e.log.Debug("reconcile: order already paid", zap.Int64("order_id", o.ID))
		return nil
	}

	if !st.Amount.Equal(o.Total) {
		e.log.Warn("reconcile: amount mismatch, refusing to mark paid",
			zap.Int64("order_id", o.ID),
			zap.String("provider", provider), zap.String("charge_id", chargeID),
			zap.String("charged", st.Amount.StringFixed(2)),
			zap.String("expected", o.Total.StringFixed(2)))
		return nil
	}

	won, err := e.orders.MarkPaid(ctx, o.ID, provider, chargeID)
	if err != nil {
		return fmt.Errorf("reconcile: mark order %d paid: %w", o.ID, err)
	}
	if !won {
		// The concurrent webhook/poll trigger got there first.
		e.log.Debug("reconcile: lost transition race, already handled", zap.Int64("order_id", o.ID))
		return nil
	}

	e.log.Info("reconcile: order paid",
		zap.Int64("order_id", o.ID), zap.String("provider", provider),
		zap.String("charge_id", chargeID), zap.String("total", o.Total.StringFixed(2)))

	e.applyPaid(ctx, o, items)
	return nil
}

// ConfirmManual applies the paid transition without a provider charge, for
// the back-office "customer paid at the counter" case. It funnels through
// the same conditional update so the status ownership stays here.
func (e *Engine) ConfirmManual(ctx context.Context, orderID int64) error {
	o, items, err := e.orders.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			return order.ErrNotFound
		}
		return fmt.Errorf("reconcile: load order %d: %w", orderID, err)
	}
	if o.Status == order.StatusPaid {
		return nil
	}
	won, err := e.orders.MarkPaid(ctx, o.ID, o.Provider, o.ChargeID)
	if err != nil {
		return fmt.Errorf("reconcile: mark order %d paid: %w", o.ID, err)
	}
	if !won {
		return nil
	}
	e.log.Info("reconcile: order confirmed manually", zap.Int64("order_id", o.ID))
	e.applyPaid(ctx, o, items)
	return nil
}

// resolveOrder tries the stored charge id first, then falls back to the
// order-id reference echoed by the provider. The fallback covers a crash
// between charge creation and local persistence.
func (e *Engine) resolveOrder(ctx context.Context, provider, chargeID, reference string) (*order.Order, []order.Item, error) {
	o, items, err := e.orders.GetByCharge(ctx, provider, chargeID)
	if err == nil {
		return o, items, nil
	}
	if !errors.Is(err, order.ErrNotFound) {
		return nil, nil, fmt.Errorf("reconcile: lookup by charge %s/%s: %w", provider, chargeID, err)
	}

	id, ok := payment.ParseReference(reference)
	if !ok {
		return nil, nil, nil
	}
	o, items, err = e.orders.GetByID(ctx, id)
	if errors.Is(err, order.ErrNotFound) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("reconcile: lookup by reference %q: %w", reference, err)
	}
	return o, items, nil
}

// applyPaid runs the post-transition side effects. Payment has already been
// taken at this point, so every failure is logged and tolerated; nothing
// here may undo the paid status.
func (e *Engine) applyPaid(ctx context.Context, o *order.Order, items []order.Item) {
	// The transition has committed; a webhook caller disconnecting now must
	// not cancel the stock decrement or the notification event, because the
	// paid order will never be reconciled again.
	ctx = context.WithoutCancel(ctx)
	for _, it := range items {
		left, err := e.stock.DecrementStock(ctx, it.ProductID, it.Quantity)
		if err != nil {
			e.log.Error("reconcile: stock decrement failed",
				zap.Int64("order_id", o.ID), zap.Int64("product_id", it.ProductID),
				zap.Int("qty", it.Quantity), zap.Error(err))
			continue
		}
		if left < 0 {
			e.log.Warn("reconcile: product oversold",
				zap.Int64("order_id", o.ID), zap.Int64("product_id", it.ProductID),
				zap.Int("stock", left))
		}
	}

	if o.CustomerID > 0 {
		if err := e.customers.IncrementPurchases(ctx, o.CustomerID); err != nil {
			e.log.Error("reconcile: purchase counter update failed",
				zap.Int64("order_id", o.ID), zap.Int64("customer_id", o.CustomerID), zap.Error(err))
		}
	}

	if err := e.events.PaymentConfirmed(ctx, o.ID); err != nil {
		e.log.Error("reconcile: payment-confirmed event not enqueued",
			zap.Int64("order_id", o.ID), zap.Error(err))
	}
}
