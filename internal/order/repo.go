package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound = errors.New("order not found")
	// ErrUnknownProduct is returned when checkout references a product id
	// that is not in the catalog.
	ErrUnknownProduct = errors.New("order: unknown product")
)

// ItemInput is what checkout submits: product and quantity only. Unit prices
// and the total are always resolved server-side from the products table.
type ItemInput struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

type Repository interface {
	Create(ctx context.Context, customerID int64, snap CustomerSnapshot, items []ItemInput) (*Order, []Item, error)
	GetByID(ctx context.Context, id int64) (*Order, []Item, error)
	GetByCharge(ctx context.Context, provider, chargeID string) (*Order, []Item, error)
	GetStatus(ctx context.Context, id int64) (Status, error)
	AttachCharge(ctx context.Context, id int64, provider, chargeID, qrText string) error
	MarkPaid(ctx context.Context, id int64, provider, chargeID string) (bool, error)
	Cancel(ctx context.Context, id int64) (bool, error)
	ClaimNotification(ctx context.Context, id int64) (bool, error)
	ReleaseNotification(ctx context.Context, id int64) error
	ListPendingCharges(ctx context.Context, notOlderThan time.Duration) ([]PendingCharge, error)
	List(ctx context.Context, limit, offset int) ([]Order, error)
}

type PGRepo struct{ db *pgxpool.Pool }

func NewPGRepo(db *pgxpool.Pool) *PGRepo { return &PGRepo{db: db} }

const orderCols = `
    id, customer_id, customer_name, customer_cpf, customer_phone,
    customer_street, customer_number, customer_district, customer_city,
    customer_state, customer_reference, total::text, status,
    COALESCE(provider,''), COALESCE(charge_id,''), COALESCE(qr_text,''),
    created_at, paid_at, notified_at`

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	var total string
	if err := row.Scan(
		&o.ID, &o.CustomerID, &o.Customer.Name, &o.Customer.CPF, &o.Customer.Phone,
		&o.Customer.Street, &o.Customer.Number, &o.Customer.District, &o.Customer.City,
		&o.Customer.State, &o.Customer.Reference, &total, &o.Status,
		&o.Provider, &o.ChargeID, &o.QRText,
		&o.CreatedAt, &o.PaidAt, &o.NotifiedAt,
	); err != nil {
		return nil, err
	}
	t, err := decimal.NewFromString(total)
	if err != nil {
		return nil, fmt.Errorf("order %d: bad total %q: %w", o.ID, total, err)
	}
	o.Total = t
	return &o, nil
}

// Create inserts a pending order plus its line items in one transaction.
// Unit prices are read from the products table inside the same transaction,
// so a tampered client-side total never reaches the row.
func (r *PGRepo) Create(ctx context.Context, customerID int64, snap CustomerSnapshot, items []ItemInput) (*Order, []Item, error) {
	if len(items) == 0 {
		return nil, nil, fmt.Errorf("order: no items")
	}
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	type priced struct {
		name  string
		price decimal.Decimal
	}
	prices := make(map[int64]priced, len(items))
	for _, it := range items {
		if it.Quantity <= 0 {
			return nil, nil, fmt.Errorf("order: invalid quantity %d for product %d", it.Quantity, it.ProductID)
		}
		var name, price string
		err := tx.QueryRow(ctx,
			`SELECT name, price::text FROM products WHERE id=$1`, it.ProductID,
		).Scan(&name, &price)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, fmt.Errorf("%w: %d", ErrUnknownProduct, it.ProductID)
		}
		if err != nil {
			return nil, nil, err
		}
		p, err := decimal.NewFromString(price)
		if err != nil {
			return nil, nil, err
		}
		prices[it.ProductID] = priced{name: name, price: p}
	}

	total := decimal.Zero
	for _, it := range items {
		total = total.Add(prices[it.ProductID].price.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	if !total.IsPositive() {
		return nil, nil, fmt.Errorf("order: total must be positive, got %s", total)
	}

	o := &Order{CustomerID: customerID, Customer: snap, Total: total, Status: StatusPending}
	if err := tx.QueryRow(ctx, `
    INSERT INTO orders (customer_id, customer_name, customer_cpf, customer_phone,
                        customer_street, customer_number, customer_district,
                        customer_city, customer_state, customer_reference,
                        total, status, created_at)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,NOW())
    RETURNING id, created_at
  `, customerID, snap.Name, snap.CPF, snap.Phone, snap.Street, snap.Number,
		snap.District, snap.City, snap.State, snap.Reference,
		total.StringFixed(2), StatusPending,
	).Scan(&o.ID, &o.CreatedAt); err != nil {
		return nil, nil, err
	}

	out := make([]Item, 0, len(items))
	for _, it := range items {
		p := prices[it.ProductID]
		item := Item{OrderID: o.ID, ProductID: it.ProductID, Name: p.name, Quantity: it.Quantity, UnitPrice: p.price}
		if err := tx.QueryRow(ctx, `
      INSERT INTO order_items (order_id, product_id, name, quantity, unit_price)
      VALUES ($1,$2,$3,$4,$5) RETURNING id
    `, o.ID, it.ProductID, p.name, it.Quantity, p.price.StringFixed(2)).Scan(&item.ID); err != nil {
			return nil, nil, err
		}
		out = append(out, item)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, nil, err
	}
	return o, out, nil
}

func (r *PGRepo) GetByID(ctx context.Context, id int64) (*Order, []Item, error) {
	o, err := scanOrder(r.db.QueryRow(ctx, `SELECT `+orderCols+` FROM orders WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	items, err := r.items(ctx, o.ID)
	if err != nil {
		return nil, nil, err
	}
	return o, items, nil
}

func (r *PGRepo) GetByCharge(ctx context.Context, provider, chargeID string) (*Order, []Item, error) {
	o, err := scanOrder(r.db.QueryRow(ctx,
		`SELECT `+orderCols+` FROM orders WHERE provider=$1 AND charge_id=$2`, provider, chargeID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	items, err := r.items(ctx, o.ID)
	if err != nil {
		return nil, nil, err
	}
	return o, items, nil
}

func (r *PGRepo) GetStatus(ctx context.Context, id int64) (Status, error) {
	var s Status
	err := r.db.QueryRow(ctx, `SELECT status FROM orders WHERE id=$1`, id).Scan(&s)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	return s, err
}

func (r *PGRepo) AttachCharge(ctx context.Context, id int64, provider, chargeID, qrText string) error {
	tag, err := r.db.Exec(ctx, `
    UPDATE orders SET provider=$2, charge_id=$3, qr_text=$4 WHERE id=$1
  `, id, provider, chargeID, qrText)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkPaid performs the conditional pending→paid transition. It returns
// (false, nil) when the order was not pending anymore: the caller must treat
// that as the idempotent case, not as an error.
func (r *PGRepo) MarkPaid(ctx context.Context, id int64, provider, chargeID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tag, err := r.db.Exec(ctx, `
    UPDATE orders
    SET status=$2, paid_at=NOW(), provider=$3, charge_id=$4
    WHERE id=$1 AND status=$5
  `, id, StatusPaid, provider, chargeID, StatusPending)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *PGRepo) Cancel(ctx context.Context, id int64) (bool, error) {
	tag, err := r.db.Exec(ctx, `
    UPDATE orders SET status=$2 WHERE id=$1 AND status=$3
  `, id, StatusCanceled, StatusPending)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ClaimNotification flips notified_at exactly once per order. The dispatcher
// claims before sending; duplicate outbox deliveries lose the claim.
func (r *PGRepo) ClaimNotification(ctx context.Context, id int64) (bool, error) {
	tag, err := r.db.Exec(ctx, `
    UPDATE orders SET notified_at=NOW() WHERE id=$1 AND notified_at IS NULL
  `, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ReleaseNotification undoes a claim after a failed send so the outbox retry
// can claim again.
func (r *PGRepo) ReleaseNotification(ctx context.Context, id int64) error {
	_, err := r.db.Exec(ctx, `UPDATE orders SET notified_at=NULL WHERE id=$1`, id)
	return err
}

func (r *PGRepo) ListPendingCharges(ctx context.Context, notOlderThan time.Duration) ([]PendingCharge, error) {
	rows, err := r.db.Query(ctx, `
    SELECT id, provider, charge_id FROM orders
    WHERE status=$1 AND charge_id IS NOT NULL AND charge_id <> ''
      AND created_at > NOW() - $2::interval
    ORDER BY created_at ASC
  `, StatusPending, fmt.Sprintf("%d seconds", int(notOlderThan.Seconds())))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PendingCharge
	for rows.Next() {
		var pc PendingCharge
		if err := rows.Scan(&pc.OrderID, &pc.Provider, &pc.ChargeID); err != nil {
			return nil, err
		}
		out = append(out, pc)
	}
	return out, rows.Err()
}

func (r *PGRepo) List(ctx context.Context, limit, offset int) ([]Order, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := r.db.Query(ctx, `
    SELECT `+orderCols+` FROM orders ORDER BY created_at DESC LIMIT $1 OFFSET $2
  `, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

func (r *PGRepo) items(ctx context.Context, orderID int64) ([]Item, error) {
	rows, err := r.db.Query(ctx, `
    SELECT id, order_id, product_id, name, quantity, unit_price::text
    FROM order_items WHERE order_id=$1
  `, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var it Item
		var price string
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Name, &it.Quantity, &price); err != nil {
			return nil, err
		}
		if it.UnitPrice, err = decimal.NewFromString(price); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}
