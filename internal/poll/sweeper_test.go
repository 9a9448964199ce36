package poll

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/pablocruz84/loja-nextjs-pix/internal/order"
)

type fakeLister struct {
	mu      sync.Mutex
	pending []order.PendingCharge
	err     error
	maxAges []time.Duration
}

func (f *fakeLister) ListPendingCharges(_ context.Context, notOlderThan time.Duration) ([]order.PendingCharge, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.maxAges = append(f.maxAges, notOlderThan)
	return f.pending, f.err
}

func (f *fakeLister) setPending(pc []order.PendingCharge) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending = pc
}

type fakeReconciler struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (f *fakeReconciler) Reconcile(_ context.Context, provider, chargeID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, provider+"/"+chargeID)
	return f.err
}

func (f *fakeReconciler) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func TestSweepReconcilesEachPendingCharge(t *testing.T) {
	lister := &fakeLister{pending: []order.PendingCharge{
		{OrderID: 1, Provider: "mercadopago", ChargeID: "a"},
		{OrderID: 2, Provider: "pagbank", ChargeID: "b"},
	}}
	rec := &fakeReconciler{}
	s := NewSweeper(lister, rec, zap.NewNop())

	s.sweep(context.Background())

	if len(rec.calls) != 2 {
		t.Fatalf("reconcile calls = %d, want 2", len(rec.calls))
	}
	if rec.calls[0] != "mercadopago/a" || rec.calls[1] != "pagbank/b" {
		t.Fatalf("calls = %v", rec.calls)
	}
	if lister.maxAges[0] != s.MaxAge {
		t.Fatalf("window = %v, want %v", lister.maxAges[0], s.MaxAge)
	}
}

func TestSweepToleratesReconcileErrors(t *testing.T) {
	lister := &fakeLister{pending: []order.PendingCharge{
		{OrderID: 1, Provider: "mercadopago", ChargeID: "a"},
		{OrderID: 2, Provider: "mercadopago", ChargeID: "b"},
	}}
	rec := &fakeReconciler{err: errors.New("provider down")}
	s := NewSweeper(lister, rec, zap.NewNop())

	s.sweep(context.Background())

	if len(rec.calls) != 2 {
		t.Fatalf("a failing charge must not stop the sweep, calls = %d", len(rec.calls))
	}
}

func TestSweepListError(t *testing.T) {
	lister := &fakeLister{err: errors.New("db down")}
	rec := &fakeReconciler{}
	s := NewSweeper(lister, rec, zap.NewNop())

	s.sweep(context.Background())
	if len(rec.calls) != 0 {
		t.Fatal("no reconcile calls expected when listing fails")
	}
}

func TestRunStopsPollingSettledOrders(t *testing.T) {
	lister := &fakeLister{pending: []order.PendingCharge{
		{OrderID: 1, Provider: "mercadopago", ChargeID: "a"},
	}}
	rec := &fakeReconciler{}
	s := NewSweeper(lister, rec, zap.NewNop())
	s.Interval = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for rec.callCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("sweeper never reconciled")
		case <-time.After(time.Millisecond):
		}
	}

	// once paid the order drops out of the pending list and out of the sweep
	lister.setPending(nil)
	time.Sleep(20 * time.Millisecond)
	settled := rec.callCount()
	time.Sleep(30 * time.Millisecond)
	if rec.callCount() != settled {
		t.Fatal("sweeper kept reconciling an order that is no longer pending")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop on context cancel")
	}
}
