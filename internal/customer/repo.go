package customer

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("customer not found")

type Repository interface {
	GetByCPF(ctx context.Context, cpf string) (*Customer, error)
	Create(ctx context.Context, c *Customer) error
	IncrementPurchases(ctx context.Context, id int64) error
	List(ctx context.Context, limit, offset int) ([]Customer, error)
}

type PGRepo struct{ db *pgxpool.Pool }

func NewPGRepo(db *pgxpool.Pool) *PGRepo { return &PGRepo{db: db} }

const cols = `id, name, cpf, phone, street, number, district, city, state, reference, total_purchases, created_at`

func scan(row pgx.Row, c *Customer) error {
	return row.Scan(&c.ID, &c.Name, &c.CPF, &c.Phone, &c.Street, &c.Number,
		&c.District, &c.City, &c.State, &c.Reference, &c.TotalPurchases, &c.CreatedAt)
}

func (r *PGRepo) GetByCPF(ctx context.Context, cpf string) (*Customer, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var c Customer
	err := scan(r.db.QueryRow(ctx, `SELECT `+cols+` FROM customers WHERE cpf=$1`, NormalizeCPF(cpf)), &c)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *PGRepo) Create(ctx context.Context, c *Customer) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	c.CPF = NormalizeCPF(c.CPF)
	return r.db.QueryRow(ctx, `
		INSERT INTO customers (name, cpf, phone, street, number, district, city, state, reference, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,NOW())
		RETURNING id, total_purchases, created_at
	`, c.Name, c.CPF, c.Phone, c.Street, c.Number, c.District, c.City, c.State, c.Reference,
	).Scan(&c.ID, &c.TotalPurchases, &c.CreatedAt)
}

func (r *PGRepo) IncrementPurchases(ctx context.Context, id int64) error {
	_, err := r.db.Exec(ctx, `UPDATE customers SET total_purchases = total_purchases + 1 WHERE id=$1`, id)
	return err
}

func (r *PGRepo) List(ctx context.Context, limit, offset int) ([]Customer, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := r.db.Query(ctx, `
		SELECT `+cols+` FROM customers ORDER BY created_at DESC LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Customer
	for rows.Next() {
		var c Customer
		if err := scan(rows, &c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
