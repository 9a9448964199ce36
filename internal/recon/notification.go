package recon

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Notification is the only thing a webhook body is trusted for: which
// provider-side charge to re-verify. Status fields in the payload are
// ignored on purpose — webhook bodies are attacker-reachable.
type Notification struct {
	Provider string
	ChargeID string
}

// flexID tolerates providers sending ids as either JSON strings or numbers.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexID(n.String())
	return nil
}

// ParseMercadoPago extracts the payment id from a Mercado Pago webhook body.
// Non-payment events and unrecognized shapes are reported as not-ok, never
// as an error: the handler acknowledges and moves on.
func ParseMercadoPago(raw []byte) (Notification, bool) {
	var body struct {
		Type   string `json:"type"`
		Action string `json:"action"`
		ID     flexID `json:"id"`
		Data   struct {
			ID flexID `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return Notification{}, false
	}

	eventType := body.Type
	if eventType == "" {
		eventType = body.Action
	}
	if eventType != "" && !strings.Contains(eventType, "payment") {
		return Notification{}, false
	}

	chargeID := string(body.Data.ID)
	if chargeID == "" {
		chargeID = string(body.ID)
	}
	if chargeID == "" {
		return Notification{}, false
	}
	return Notification{Provider: "mercadopago", ChargeID: chargeID}, true
}

// ParsePagBank extracts the txid from a PagBank PIX webhook body, shaped
// {"pix":[{"endToEndId":"...","txid":"..."}]}.
func ParsePagBank(raw []byte) (Notification, bool) {
	var body struct {
		Pix []struct {
			TxID flexID `json:"txid"`
		} `json:"pix"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return Notification{}, false
	}
	if len(body.Pix) == 0 || body.Pix[0].TxID == "" {
		return Notification{}, false
	}
	return Notification{Provider: "pagbank", ChargeID: string(body.Pix[0].TxID)}, true
}
