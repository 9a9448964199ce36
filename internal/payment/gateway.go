// Package payment abstracts the two PIX providers (Mercado Pago, PagBank)
// behind one capability: create a charge for an order, and ask the provider
// for the authoritative state of a charge.
package payment

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
)

type Status string

const (
	StatusApproved Status = "approved"
	StatusPending  Status = "pending"
	StatusRejected Status = "rejected"
	StatusUnknown  Status = "unknown"
)

// Payer is the customer slice the providers need. CPF must be digits-only;
// the clients normalize before submission.
type Payer struct {
	Name     string
	Email    string
	CPF      string
	Phone    string
	Street   string
	Number   string
	District string
	City     string
	State    string
	PostCode string
}

type LineItem struct {
	Name      string
	Quantity  int
	UnitPrice decimal.Decimal
}

type ChargeRequest struct {
	OrderID int64
	Total   decimal.Decimal
	Payer   Payer
	Items   []LineItem
}

// Charge is the provider-side record of a requested payment.
type Charge struct {
	ID         string
	QRText     string
	QRImageB64 string
	Reference  string
}

// ChargeState is the authoritative answer from the provider's status
// endpoint. Amount is in currency units (not cents) for direct comparison
// against the order total.
type ChargeState struct {
	ID        string
	Status    Status
	Amount    decimal.Decimal
	Reference string
}

type Gateway interface {
	Name() string
	CreateCharge(ctx context.Context, req ChargeRequest) (*Charge, error)
	GetCharge(ctx context.Context, chargeID string) (*ChargeState, error)
}

// FormatReference ties the provider-visible reference to the local order id,
// so a duplicated charge is detectable downstream even without a stored
// charge id.
func FormatReference(orderID int64) string {
	return fmt.Sprintf("ORDER-%d-%d", orderID, time.Now().Unix())
}

var refPattern = regexp.MustCompile(`^ORDER-(\d+)(?:-\d+)?$`)

// ParseReference recovers the local order id from a provider-echoed
// reference. It accepts both the bare numeric form (Mercado Pago
// external_reference) and the ORDER-<id>-<ts> form (PagBank reference_id).
func ParseReference(s string) (int64, bool) {
	if s == "" {
		return 0, false
	}
	if id, err := strconv.ParseInt(s, 10, 64); err == nil && id > 0 {
		return id, true
	}
	m := refPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	id, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func newBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    name,
		Timeout: 30 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 5
		},
	})
}

func execWithBreaker[T any](cb *gobreaker.CircuitBreaker, fn func() (T, error)) (T, error) {
	res, err := cb.Execute(func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		return *new(T), err
	}
	return res.(T), nil
}
