package outbox

import (
	"encoding/json"
	"time"
)

const EventPaymentConfirmed = "payment.confirmed"

type Event struct {
	ID          int64
	EventType   string
	AggregateID string
	Payload     json.RawMessage
	Attempts    int
	LastError   *string
	CreatedAt   time.Time
	PublishedAt *time.Time
}

type PaymentConfirmedPayload struct {
	OrderID int64 `json:"order_id"`
}
