package customer

import (
	"strings"
	"time"
)

type Customer struct {
	ID             int64     `json:"id"`
	Name           string    `json:"name"`
	CPF            string    `json:"cpf"`
	Phone          string    `json:"phone"`
	Street         string    `json:"street"`
	Number         string    `json:"number"`
	District       string    `json:"district"`
	City           string    `json:"city"`
	State          string    `json:"state"`
	Reference      string    `json:"reference,omitempty"`
	TotalPurchases int       `json:"total_purchases"`
	CreatedAt      time.Time `json:"created_at"`
}

// NormalizeCPF strips everything but digits. Providers reject formatted tax
// ids, so normalization happens once, before anything is stored or submitted.
func NormalizeCPF(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
