// Package outbox decouples the payment transition from its best-effort side
// effects: reconciliation writes an event row, and this worker drains the
// table and hands events to the in-process consumer.
package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Consumer handles one event; a returned error schedules a retry with the
// attempt counter bumped.
type Consumer interface {
	Handle(ctx context.Context, e Event) error
}

type Processor struct {
	pool      *pgxpool.Pool
	repo      Repository
	consumer  Consumer
	log       *zap.Logger
	batchSize int
	interval  time.Duration
}

func NewProcessor(pool *pgxpool.Pool, repo Repository, consumer Consumer, log *zap.Logger) *Processor {
	return &Processor{
		pool:      pool,
		repo:      repo,
		consumer:  consumer,
		log:       log,
		batchSize: 25,
		interval:  2 * time.Second,
	}
}

// Start runs the drain loop until ctx is canceled.
func (p *Processor) Start(ctx context.Context) {
	p.log.Info("outbox processor started", zap.Duration("interval", p.interval))

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.log.Info("outbox processor stopping")
			return
		case <-ticker.C:
			if err := p.processBatch(ctx); err != nil {
				p.log.Error("outbox batch failed", zap.Error(err))
			}
		}
	}
}

func (p *Processor) processBatch(ctx context.Context) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		cleanupCtx := context.WithoutCancel(ctx)
		if err := tx.Rollback(cleanupCtx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			p.log.Error("outbox rollback failed", zap.Error(err))
		}
	}()

	events, err := p.repo.Unpublished(ctx, tx, p.batchSize)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return nil
	}

	for _, e := range events {
		if err := p.consumer.Handle(ctx, e); err != nil {
			p.log.Warn("outbox event delivery failed",
				zap.Int64("event_id", e.ID), zap.String("type", e.EventType),
				zap.Int("attempts", e.Attempts+1), zap.Error(err))
			if dbErr := p.repo.MarkFailed(ctx, tx, e.ID, err.Error()); dbErr != nil {
				return dbErr
			}
			continue
		}
		if err := p.repo.MarkPublished(ctx, tx, e.ID); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}
