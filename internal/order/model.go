package order

import (
	"time"

	"github.com/shopspring/decimal"
)

// CustomerSnapshot is denormalized onto the order so historical sales stay
// stable when the customer record later changes.
type CustomerSnapshot struct {
	Name      string `json:"name"`
	CPF       string `json:"cpf"`
	Phone     string `json:"phone"`
	Street    string `json:"street"`
	Number    string `json:"number"`
	District  string `json:"district"`
	City      string `json:"city"`
	State     string `json:"state"`
	Reference string `json:"reference,omitempty"`
}

type Order struct {
	ID         int64            `json:"id"`
	CustomerID int64            `json:"customer_id"`
	Customer   CustomerSnapshot `json:"customer"`
	Total      decimal.Decimal  `json:"total"`
	Status     Status           `json:"status"`
	Provider   string           `json:"provider,omitempty"`
	ChargeID   string           `json:"charge_id,omitempty"`
	QRText     string           `json:"-"`
	CreatedAt  time.Time        `json:"created_at"`
	PaidAt     *time.Time       `json:"paid_at,omitempty"`
	NotifiedAt *time.Time       `json:"-"`
}

type Item struct {
	ID        int64           `json:"id"`
	OrderID   int64           `json:"order_id"`
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// PendingCharge is the slice of an order the poll sweeper needs.
type PendingCharge struct {
	OrderID  int64
	Provider string
	ChargeID string
}
