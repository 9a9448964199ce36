// Package notify renders and emails the order summary once per paid order.
// Everything here is best-effort: failures are retried by the outbox, and
// nothing can affect order status.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/pablocruz84/loja-nextjs-pix/internal/order"
	"github.com/pablocruz84/loja-nextjs-pix/internal/outbox"
)

type OrderSource interface {
	GetByID(ctx context.Context, id int64) (*order.Order, []order.Item, error)
	ClaimNotification(ctx context.Context, id int64) (bool, error)
	ReleaseNotification(ctx context.Context, id int64) error
}

type Dispatcher struct {
	orders    OrderSource
	mailer    Mailer
	storeName string
	log       *zap.Logger
}

func NewDispatcher(orders OrderSource, mailer Mailer, storeName string, log *zap.Logger) *Dispatcher {
	return &Dispatcher{orders: orders, mailer: mailer, storeName: storeName, log: log}
}

// Handle consumes an outbox event. Unknown event types are acknowledged and
// dropped so a stale row can never wedge the queue.
func (d *Dispatcher) Handle(ctx context.Context, e outbox.Event) error {
	if e.EventType != outbox.EventPaymentConfirmed {
		d.log.Warn("notify: ignoring unknown event type",
			zap.Int64("event_id", e.ID), zap.String("type", e.EventType))
		return nil
	}
	var p outbox.PaymentConfirmedPayload
	if err := json.Unmarshal(e.Payload, &p); err != nil {
		d.log.Error("notify: bad event payload", zap.Int64("event_id", e.ID), zap.Error(err))
		return nil
	}
	return d.Dispatch(ctx, p.OrderID)
}

// Dispatch sends the order email exactly once. The notified_at claim is
// persisted before sending; a duplicate delivery (webhook redelivery,
// outbox retry after a crash) loses the claim and becomes a no-op.
func (d *Dispatcher) Dispatch(ctx context.Context, orderID int64) error {
	if d.mailer == nil {
		d.log.Info("notify: mail disabled, skipping dispatch", zap.Int64("order_id", orderID))
		return nil
	}

	o, items, err := d.orders.GetByID(ctx, orderID)
	if err != nil {
		return fmt.Errorf("notify: load order %d: %w", orderID, err)
	}

	claimed, err := d.orders.ClaimNotification(ctx, orderID)
	if err != nil {
		return fmt.Errorf("notify: claim order %d: %w", orderID, err)
	}
	if !claimed {
		d.log.Debug("notify: order already notified", zap.Int64("order_id", orderID))
		return nil
	}

	pdf, err := BuildOrderPDF(d.storeName, o, items)
	if err != nil {
		d.release(ctx, orderID)
		return err
	}

	subject := fmt.Sprintf("Novo Pedido #%d - %s", o.ID, o.Customer.Name)
	if err := d.mailer.SendOrderMail(ctx, subject, d.htmlBody(o), pdf, fmt.Sprintf("pedido-%d.pdf", o.ID)); err != nil {
		d.release(ctx, orderID)
		return err
	}

	d.log.Info("notify: order email sent", zap.Int64("order_id", orderID))
	return nil
}

func (d *Dispatcher) release(ctx context.Context, orderID int64) {
	if err := d.orders.ReleaseNotification(ctx, orderID); err != nil {
		d.log.Error("notify: release claim failed", zap.Int64("order_id", orderID), zap.Error(err))
	}
}

func (d *Dispatcher) htmlBody(o *order.Order) string {
	return fmt.Sprintf(`
<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
  <div style="background: #0d4a76; padding: 20px; text-align: center;">
    <h1 style="color: #F4CA3E; margin: 0;">%s</h1>
  </div>
  <div style="padding: 20px; background: #f5f5f5;">
    <h2 style="color: #0d4a76;">Novo pedido recebido</h2>
    <div style="background: white; padding: 15px; border-radius: 8px;">
      <p><strong>Pedido Nº:</strong> %d</p>
      <p><strong>Cliente:</strong> %s</p>
      <p><strong>Total:</strong> R$ %s</p>
      <p><strong>Data:</strong> %s</p>
    </div>
    <p style="color: #666;">O pedido completo está em anexo no formato PDF.</p>
  </div>
</div>`, d.storeName, o.ID, o.Customer.Name, o.Total.StringFixed(2),
		time.Now().Format("02/01/2006 15:04"))
}
