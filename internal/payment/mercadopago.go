package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"

	"github.com/pablocruz84/loja-nextjs-pix/internal/customer"
)

const mercadoPagoBaseURL = "https://api.mercadopago.com"

type MercadoPago struct {
	HTTP      *http.Client
	BaseURL   string
	Token     string
	NotifyURL string
	cb        *gobreaker.CircuitBreaker
}

func NewMercadoPago(token, notifyURL string) *MercadoPago {
	return &MercadoPago{
		HTTP:      &http.Client{Timeout: 10 * time.Second},
		BaseURL:   mercadoPagoBaseURL,
		Token:     token,
		NotifyURL: notifyURL,
		cb:        newBreaker("mercadopago"),
	}
}

func (m *MercadoPago) Name() string { return "mercadopago" }

type mpPayer struct {
	Email          string `json:"email"`
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	Identification struct {
		Type   string `json:"type"`
		Number string `json:"number"`
	} `json:"identification"`
}

type mpCreateBody struct {
	TransactionAmount json.Number `json:"transaction_amount"`
	Description       string      `json:"description"`
	PaymentMethodID   string      `json:"payment_method_id"`
	NotificationURL   string      `json:"notification_url"`
	ExternalReference string      `json:"external_reference"`
	Payer             mpPayer     `json:"payer"`
}

type mpPayment struct {
	ID                 json.Number `json:"id"`
	Status             string      `json:"status"`
	TransactionAmount  json.Number `json:"transaction_amount"`
	ExternalReference  string      `json:"external_reference"`
	PointOfInteraction struct {
		TransactionData struct {
			QRCode       string `json:"qr_code"`
			QRCodeBase64 string `json:"qr_code_base64"`
		} `json:"transaction_data"`
	} `json:"point_of_interaction"`
}

// CreateCharge issues a PIX payment. The idempotency key is derived from the
// order id, so retrying after a timeout cannot create a second charge for
// the same order.
func (m *MercadoPago) CreateCharge(ctx context.Context, req ChargeRequest) (*Charge, error) {
	if !req.Total.IsPositive() {
		return nil, fmt.Errorf("mercadopago: total must be positive, got %s", req.Total)
	}

	first, last := splitName(req.Payer.Name)
	body := mpCreateBody{
		TransactionAmount: json.Number(req.Total.StringFixed(2)),
		Description:       fmt.Sprintf("Pedido #%d - %d itens", req.OrderID, len(req.Items)),
		PaymentMethodID:   "pix",
		NotificationURL:   m.NotifyURL,
		ExternalReference: strconv.FormatInt(req.OrderID, 10),
	}
	body.Payer.Email = payerEmail(req.Payer)
	body.Payer.FirstName = first
	body.Payer.LastName = last
	body.Payer.Identification.Type = "CPF"
	body.Payer.Identification.Number = customer.NormalizeCPF(req.Payer.CPF)

	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	p, err := execWithBreaker(m.cb, func() (*mpPayment, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, m.BaseURL+"/v1/payments", bytes.NewReader(raw))
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Authorization", "Bearer "+m.Token)
		httpReq.Header.Set("X-Idempotency-Key", fmt.Sprintf("order-%d", req.OrderID))
		return m.doPayment(httpReq)
	})
	if err != nil {
		return nil, err
	}

	return &Charge{
		ID:         p.ID.String(),
		QRText:     p.PointOfInteraction.TransactionData.QRCode,
		QRImageB64: p.PointOfInteraction.TransactionData.QRCodeBase64,
		Reference:  body.ExternalReference,
	}, nil
}

func (m *MercadoPago) GetCharge(ctx context.Context, chargeID string) (*ChargeState, error) {
	p, err := execWithBreaker(m.cb, func() (*mpPayment, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, m.BaseURL+"/v1/payments/"+chargeID, nil)
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Authorization", "Bearer "+m.Token)
		return m.doPayment(httpReq)
	})
	if err != nil {
		return nil, err
	}

	amount := decimal.Zero
	if s := p.TransactionAmount.String(); s != "" {
		if amount, err = decimal.NewFromString(s); err != nil {
			return nil, fmt.Errorf("mercadopago: bad transaction_amount %q: %w", s, err)
		}
	}
	return &ChargeState{
		ID:        p.ID.String(),
		Status:    mpStatus(p.Status),
		Amount:    amount,
		Reference: p.ExternalReference,
	}, nil
}

func (m *MercadoPago) doPayment(req *http.Request) (*mpPayment, error) {
	res, err := m.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(res.Body, 2048))
		return nil, fmt.Errorf("mercadopago: %s: %s", res.Status, strings.TrimSpace(string(b)))
	}
	var p mpPayment
	dec := json.NewDecoder(res.Body)
	dec.UseNumber()
	if err := dec.Decode(&p); err != nil {
		return nil, err
	}
	return &p, nil
}

func mpStatus(s string) Status {
	switch s {
	case "approved":
		return StatusApproved
	case "pending", "in_process", "authorized":
		return StatusPending
	case "rejected", "cancelled", "refunded", "charged_back":
		return StatusRejected
	default:
		return StatusUnknown
	}
}

func splitName(full string) (first, last string) {
	parts := strings.Fields(full)
	if len(parts) == 0 {
		return "", ""
	}
	if len(parts) == 1 {
		return parts[0], parts[0]
	}
	return parts[0], strings.Join(parts[1:], " ")
}

// payerEmail mirrors the storefront fallback: PIX does not require a real
// address, but the provider rejects an empty one.
func payerEmail(p Payer) string {
	if p.Email != "" {
		return p.Email
	}
	return strings.ToLower(strings.ReplaceAll(p.Name, " ", "")) + "@email.com"
}
