package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository interface {
	Save(ctx context.Context, eventType, aggregateID string, payload any) error
	Unpublished(ctx context.Context, tx pgx.Tx, batchSize int) ([]Event, error)
	MarkPublished(ctx context.Context, tx pgx.Tx, eventID int64) error
	MarkFailed(ctx context.Context, tx pgx.Tx, eventID int64, errMsg string) error
}

type PGRepo struct{ db *pgxpool.Pool }

func NewPGRepo(db *pgxpool.Pool) *PGRepo { return &PGRepo{db: db} }

func (r *PGRepo) Save(ctx context.Context, eventType, aggregateID string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("outbox: marshal %s payload: %w", eventType, err)
	}
	_, err = r.db.Exec(ctx, `
		INSERT INTO outbox (event_type, aggregate_id, payload, created_at)
		VALUES ($1, $2, $3, NOW())
	`, eventType, aggregateID, raw)
	return err
}

// PaymentConfirmed implements the reconciliation engine's event sink.
func (r *PGRepo) PaymentConfirmed(ctx context.Context, orderID int64) error {
	return r.Save(ctx, EventPaymentConfirmed, strconv.FormatInt(orderID, 10),
		PaymentConfirmedPayload{OrderID: orderID})
}

// Unpublished locks a batch of undelivered events for this worker. SKIP
// LOCKED keeps concurrent workers from double-delivering.
func (r *PGRepo) Unpublished(ctx context.Context, tx pgx.Tx, batchSize int) ([]Event, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, event_type, aggregate_id, payload, attempts, last_error, created_at, published_at
		FROM outbox
		WHERE published_at IS NULL AND attempts < 10
		ORDER BY created_at ASC
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, batchSize)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.EventType, &e.AggregateID, &e.Payload,
			&e.Attempts, &e.LastError, &e.CreatedAt, &e.PublishedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (r *PGRepo) MarkPublished(ctx context.Context, tx pgx.Tx, eventID int64) error {
	_, err := tx.Exec(ctx, `
		UPDATE outbox SET published_at = NOW(), last_error = NULL WHERE id = $1
	`, eventID)
	return err
}

func (r *PGRepo) MarkFailed(ctx context.Context, tx pgx.Tx, eventID int64, errMsg string) error {
	_, err := tx.Exec(ctx, `
		UPDATE outbox
		SET published_at = NULL, last_error = $1, attempts = attempts + 1
		WHERE id = $2
	`, errMsg, eventID)
	return err
}
