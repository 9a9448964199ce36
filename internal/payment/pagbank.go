package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"

	"github.com/pablocruz84/loja-nextjs-pix/internal/customer"
)

const pagBankBaseURL = "https://api.pagseguro.com"

type PagBank struct {
	HTTP      *http.Client
	BaseURL   string
	Token     string
	NotifyURL string
	cb        *gobreaker.CircuitBreaker
}

func NewPagBank(token, notifyURL string) *PagBank {
	return &PagBank{
		HTTP:      &http.Client{Timeout: 10 * time.Second},
		BaseURL:   pagBankBaseURL,
		Token:     token,
		NotifyURL: notifyURL,
		cb:        newBreaker("pagbank"),
	}
}

func (p *PagBank) Name() string { return "pagbank" }

type pbItem struct {
	ReferenceID string `json:"reference_id"`
	Name        string `json:"name"`
	Quantity    int    `json:"quantity"`
	UnitAmount  int64  `json:"unit_amount"`
}

type pbCreateBody struct {
	ReferenceID string `json:"reference_id"`
	Customer    struct {
		Name   string `json:"name"`
		Email  string `json:"email"`
		TaxID  string `json:"tax_id"`
		Phones []struct {
			Country string `json:"country"`
			Area    string `json:"area"`
			Number  string `json:"number"`
			Type    string `json:"type"`
		} `json:"phones"`
	} `json:"customer"`
	Items   []pbItem `json:"items"`
	QRCodes []struct {
		Amount struct {
			Value int64 `json:"value"`
		} `json:"amount"`
		ExpirationDate string `json:"expiration_date"`
	} `json:"qr_codes"`
	Shipping struct {
		Address struct {
			Street     string `json:"street"`
			Number     string `json:"number"`
			Locality   string `json:"locality"`
			City       string `json:"city"`
			RegionCode string `json:"region_code"`
			Country    string `json:"country"`
			PostalCode string `json:"postal_code"`
		} `json:"address"`
	} `json:"shipping"`
	NotificationURLs []string `json:"notification_urls"`
}

type pbCreateResp struct {
	ID          string `json:"id"`
	ReferenceID string `json:"reference_id"`
	QRCodes     []struct {
		ID     string `json:"id"`
		Text   string `json:"text"`
		Amount struct {
			Value int64 `json:"value"`
		} `json:"amount"`
		Links []struct {
			Rel  string `json:"rel"`
			Href string `json:"href"`
		} `json:"links"`
	} `json:"qr_codes"`
}

// CreateCharge creates a PagBank order with one PIX QR code. PagBank has no
// idempotency header, so this must be called once per order; the
// reference_id embeds the order id so a duplicate is detectable downstream.
func (p *PagBank) CreateCharge(ctx context.Context, req ChargeRequest) (*Charge, error) {
	if !req.Total.IsPositive() {
		return nil, fmt.Errorf("pagbank: total must be positive, got %s", req.Total)
	}

	ref := FormatReference(req.OrderID)
	body := pbCreateBody{ReferenceID: ref, NotificationURLs: []string{p.NotifyURL}}
	body.Customer.Name = req.Payer.Name
	body.Customer.Email = payerEmail(req.Payer)
	body.Customer.TaxID = customer.NormalizeCPF(req.Payer.CPF)
	area, number := splitPhone(req.Payer.Phone)
	body.Customer.Phones = append(body.Customer.Phones, struct {
		Country string `json:"country"`
		Area    string `json:"area"`
		Number  string `json:"number"`
		Type    string `json:"type"`
	}{Country: "55", Area: area, Number: number, Type: "MOBILE"})

	for i, it := range req.Items {
		body.Items = append(body.Items, pbItem{
			ReferenceID: fmt.Sprintf("ITEM-%d", i+1),
			Name:        it.Name,
			Quantity:    it.Quantity,
			UnitAmount:  toCents(it.UnitPrice),
		})
	}
	body.QRCodes = make([]struct {
		Amount struct {
			Value int64 `json:"value"`
		} `json:"amount"`
		ExpirationDate string `json:"expiration_date"`
	}, 1)
	body.QRCodes[0].Amount.Value = toCents(req.Total)
	body.QRCodes[0].ExpirationDate = time.Now().Add(30 * time.Minute).Format(time.RFC3339)

	body.Shipping.Address.Street = req.Payer.Street
	body.Shipping.Address.Number = req.Payer.Number
	body.Shipping.Address.Locality = req.Payer.District
	body.Shipping.Address.City = req.Payer.City
	body.Shipping.Address.RegionCode = req.Payer.State
	body.Shipping.Address.Country = "BRA"
	body.Shipping.Address.PostalCode = req.Payer.PostCode

	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	out, err := execWithBreaker(p.cb, func() (*pbCreateResp, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.BaseURL+"/orders", bytes.NewReader(raw))
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Authorization", "Bearer "+p.Token)
		httpReq.Header.Set("x-api-version", "4.0")

		res, err := p.HTTP.Do(httpReq)
		if err != nil {
			return nil, err
		}
		defer res.Body.Close()
		if res.StatusCode < 200 || res.StatusCode > 299 {
			b, _ := io.ReadAll(io.LimitReader(res.Body, 2048))
			return nil, fmt.Errorf("pagbank: %s: %s", res.Status, strings.TrimSpace(string(b)))
		}
		var out pbCreateResp
		if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
			return nil, err
		}
		return &out, nil
	})
	if err != nil {
		return nil, err
	}
	if len(out.QRCodes) == 0 || out.QRCodes[0].Text == "" {
		return nil, fmt.Errorf("pagbank: order %s created without a QR code", out.ID)
	}

	qr := out.QRCodes[0]
	charge := &Charge{ID: qr.ID, QRText: qr.Text, Reference: out.ReferenceID}
	if charge.ID == "" {
		charge.ID = out.ID
	}
	for _, l := range qr.Links {
		if strings.Contains(l.Href, ".png") || l.Rel == "QRCODE.PNG" {
			charge.QRImageB64 = l.Href
			break
		}
	}
	return charge, nil
}

type pbCob struct {
	TxID   string `json:"txid"`
	Status string `json:"status"`
	Valor  struct {
		Original string `json:"original"`
	} `json:"valor"`
	Referencia string `json:"referencia"`
}

// GetCharge queries the instant-payments cob endpoint, which is what the
// PIX webhook's txid refers to.
func (p *PagBank) GetCharge(ctx context.Context, chargeID string) (*ChargeState, error) {
	cob, err := execWithBreaker(p.cb, func() (*pbCob, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.BaseURL+"/instant-payments/cob/"+chargeID, nil)
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Authorization", "Bearer "+p.Token)

		res, err := p.HTTP.Do(httpReq)
		if err != nil {
			return nil, err
		}
		defer res.Body.Close()
		if res.StatusCode < 200 || res.StatusCode > 299 {
			b, _ := io.ReadAll(io.LimitReader(res.Body, 2048))
			return nil, fmt.Errorf("pagbank: %s: %s", res.Status, strings.TrimSpace(string(b)))
		}
		var cob pbCob
		if err := json.NewDecoder(res.Body).Decode(&cob); err != nil {
			return nil, err
		}
		return &cob, nil
	})
	if err != nil {
		return nil, err
	}

	amount := decimal.Zero
	if cob.Valor.Original != "" {
		if amount, err = decimal.NewFromString(cob.Valor.Original); err != nil {
			return nil, fmt.Errorf("pagbank: bad valor %q: %w", cob.Valor.Original, err)
		}
	}
	return &ChargeState{
		ID:        cob.TxID,
		Status:    pbStatus(cob.Status),
		Amount:    amount,
		Reference: cob.Referencia,
	}, nil
}

func pbStatus(s string) Status {
	switch s {
	case "CONCLUIDA", "PAID":
		return StatusApproved
	case "ATIVA", "WAITING", "IN_ANALYSIS":
		return StatusPending
	case "REMOVIDA_PELO_USUARIO_RECEBEDOR", "REMOVIDA_PELO_PSP", "CANCELED", "DECLINED":
		return StatusRejected
	default:
		return StatusUnknown
	}
}

func toCents(d decimal.Decimal) int64 {
	return d.Shift(2).Round(0).IntPart()
}

// splitPhone breaks a Brazilian phone into area code and number, with the
// storefront defaults for walk-in customers without one.
func splitPhone(phone string) (area, number string) {
	digits := customer.NormalizeCPF(phone) // digits-only, same rule
	if len(digits) < 3 {
		return "22", "999999999"
	}
	return digits[:2], digits[2:]
}
