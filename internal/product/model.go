package product

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID       int64  `json:"id"`
	Code     string `json:"code"`
	Name     string `json:"name"`
	Category string `json:"category,omitempty"`
	// NUMERIC in Postgres; decimal avoids float rounding on money.
	Price     decimal.Decimal `json:"price"`
	Stock     int             `json:"stock"`
	Unit      string          `json:"unit,omitempty"`
	ImageURL  string          `json:"image_url,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type CreateRequest struct {
	Name     string `json:"name" binding:"required"`
	Category string `json:"category"`
	Price    string `json:"price" binding:"required"`
	Stock    int    `json:"stock"`
	Unit     string `json:"unit"`
	ImageURL string `json:"image_url"`
}

type UpdateRequest struct {
	Name     string `json:"name"`
	Category string `json:"category"`
	Price    string `json:"price"`
	Stock    *int   `json:"stock"`
	Unit     string `json:"unit"`
	ImageURL string `json:"image_url"`
}
