// Package product provides the repository interface and PostgreSQL
// implementation for the catalog and its stock counters.
package product

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound = errors.New("product not found")
)

// codePrefix seeds the sequential catalog codes (FAC00001, FAC00002, ...).
const codePrefix = "FAC"

type Query struct {
	Q      string
	Limit  int
	Offset int
}

type Repository interface {
	Create(ctx context.Context, p *Product) error
	GetByID(ctx context.Context, id int64) (*Product, error)
	List(ctx context.Context, q Query) ([]Product, error)
	Update(ctx context.Context, p *Product, updatePrice bool) error
	Delete(ctx context.Context, id int64) (bool, error)
	DecrementStock(ctx context.Context, id int64, qty int) (int, error)
}

type PGRepo struct{ db *pgxpool.Pool }

func NewPGRepo(db *pgxpool.Pool) *PGRepo { return &PGRepo{db: db} }

func scanProduct(row pgx.Row) (*Product, error) {
	var p Product
	var price string
	if err := row.Scan(&p.ID, &p.Code, &p.Name, &p.Category, &price, &p.Stock,
		&p.Unit, &p.ImageURL, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	d, err := decimal.NewFromString(price)
	if err != nil {
		return nil, err
	}
	p.Price = d
	return &p, nil
}

const productCols = `id, code, name, category, price::text, stock, unit, image_url, created_at, updated_at`

// Create inserts the product. When p.Code is empty a sequential catalog code
// is drawn from product_code_seq inside the INSERT itself, so concurrent
// creates never collide on the code's unique index.
func (r *PGRepo) Create(ctx context.Context, p *Product) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return r.db.QueryRow(ctx, `
		INSERT INTO products (code, name, category, price, stock, unit, image_url, created_at, updated_at)
		VALUES (
			COALESCE(NULLIF($1,''), '`+codePrefix+`' || LPAD(nextval('product_code_seq')::text, 5, '0')),
			$2,$3,$4,$5,$6,$7,NOW(),NOW()
		)
		RETURNING id, code, created_at, updated_at
	`, p.Code, p.Name, p.Category, p.Price.StringFixed(2), p.Stock, p.Unit, p.ImageURL,
	).Scan(&p.ID, &p.Code, &p.CreatedAt, &p.UpdatedAt)
}

func (r *PGRepo) GetByID(ctx context.Context, id int64) (*Product, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	p, err := scanProduct(r.db.QueryRow(ctx, `SELECT `+productCols+` FROM products WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *PGRepo) List(ctx context.Context, q Query) ([]Product, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	limit := q.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}
	search := strings.TrimSpace(q.Q)

	rows, err := r.db.Query(ctx, `
		SELECT `+productCols+`
		FROM products
		WHERE ($1 = '' OR name ILIKE '%'||$1||'%' OR category ILIKE '%'||$1||'%' OR code ILIKE '%'||$1||'%')
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, search, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (r *PGRepo) Update(ctx context.Context, p *Product, updatePrice bool) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if updatePrice {
		_, err := r.db.Exec(ctx, `
			UPDATE products
			SET name = COALESCE(NULLIF($2,''), name),
			    category = COALESCE(NULLIF($3,''), category),
			    price = $4,
			    stock = $5,
			    unit = COALESCE(NULLIF($6,''), unit),
			    image_url = COALESCE(NULLIF($7,''), image_url),
			    updated_at = NOW()
			WHERE id = $1
		`, p.ID, p.Name, p.Category, p.Price.StringFixed(2), p.Stock, p.Unit, p.ImageURL)
		return err
	}

	_, err := r.db.Exec(ctx, `
		UPDATE products
		SET name = COALESCE(NULLIF($2,''), name),
		    category = COALESCE(NULLIF($3,''), category),
		    stock = $4,
		    unit = COALESCE(NULLIF($5,''), unit),
		    image_url = COALESCE(NULLIF($6,''), image_url),
		    updated_at = NOW()
		WHERE id = $1
	`, p.ID, p.Name, p.Category, p.Stock, p.Unit, p.ImageURL)
	return err
}

func (r *PGRepo) Delete(ctx context.Context, id int64) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	cmd, err := r.db.Exec(ctx, `DELETE FROM products WHERE id=$1`, id)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
}

// DecrementStock applies a single-row atomic decrement and returns the new
// stock level. Payment has already been taken when this runs, so a negative
// result is allowed; the caller flags it instead of blocking the sale.
func (r *PGRepo) DecrementStock(ctx context.Context, id int64, qty int) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var stock int
	err := r.db.QueryRow(ctx, `
		UPDATE products SET stock = stock - $2, updated_at = NOW()
		WHERE id = $1
		RETURNING stock
	`, id, qty).Scan(&stock)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	return stock, err
}
