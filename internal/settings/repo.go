// Package settings stores the single back-office configuration row: which
// payment gateway checkout uses and whether the store accepts orders.
package settings

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Settings struct {
	Gateway   string    `json:"gateway"`
	StoreOpen bool      `json:"store_open"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Repository interface {
	Get(ctx context.Context) (Settings, error)
	Put(ctx context.Context, s Settings) (Settings, error)
}

type PGRepo struct {
	db *pgxpool.Pool
	// Defaults returned while the row does not exist yet.
	DefaultGateway string
}

func NewPGRepo(db *pgxpool.Pool, defaultGateway string) *PGRepo {
	return &PGRepo{db: db, DefaultGateway: defaultGateway}
}

func (r *PGRepo) Get(ctx context.Context) (Settings, error) {
	var s Settings
	err := r.db.QueryRow(ctx,
		`SELECT gateway, store_open, updated_at FROM settings WHERE id=1`,
	).Scan(&s.Gateway, &s.StoreOpen, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Settings{Gateway: r.DefaultGateway, StoreOpen: true, UpdatedAt: time.Now()}, nil
	}
	return s, err
}

func (r *PGRepo) Put(ctx context.Context, s Settings) (Settings, error) {
	err := r.db.QueryRow(ctx, `
		INSERT INTO settings (id, gateway, store_open, updated_at)
		VALUES (1, $1, $2, NOW())
		ON CONFLICT (id) DO UPDATE SET gateway=$1, store_open=$2, updated_at=NOW()
		RETURNING gateway, store_open, updated_at
	`, s.Gateway, s.StoreOpen).Scan(&s.Gateway, &s.StoreOpen, &s.UpdatedAt)
	return s, err
}
