package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/truckdispatch/internal/delivery"
	"github.com/odyssey-erp/truckdispatch/internal/platform/db"
)

// Repository defines order and client persistence.
type Repository interface {
	Get(ctx context.Context, id uuid.UUID) (*Order, error)
	List(ctx context.Context, filter ListFilter) ([]Order, int, error)
	ListClients(ctx context.Context) ([]Client, error)

	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes the reads and writes available inside one transaction.
type TxRepository interface {
	LockOrder(ctx context.Context, id uuid.UUID) (*Order, error)
	InsertOrder(ctx context.Context, o Order) error
	UpdateOrder(ctx context.Context, o Order) error
	DeleteOrder(ctx context.Context, id uuid.UUID) error
	Links(ctx context.Context, orderID uuid.UUID) (LinkSummary, error)
	ReferencesExist(ctx context.Context, clientID, productID uuid.UUID) (bool, error)

	LockClient(ctx context.Context, id uuid.UUID) (*Client, error)
	InsertClient(ctx context.Context, c Client) error
	UpdateClient(ctx context.Context, c Client) error
}

var activeStatuses = []string{string(delivery.StatusScheduled), string(delivery.StatusInProgress)}

const orderColumns = `id, client_id, product_id, quantity::float8, requested_date, requested_time, status, created_at`

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx wraps callback in a repeatable-read transaction.
func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
	return mapPgError(err)
}

func (r *repository) Get(ctx context.Context, id uuid.UUID) (*Order, error) {
	return scanOrder(r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
}

// List returns orders matching the filter and the total count.
func (r *repository) List(ctx context.Context, filter ListFilter) ([]Order, int, error) {
	var conditions []string
	var args []any
	argPos := 1

	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argPos))
		args = append(args, string(*filter.Status))
		argPos++
	}
	if filter.ClientID != nil {
		conditions = append(conditions, fmt.Sprintf("client_id = $%d", argPos))
		args = append(args, *filter.ClientID)
		argPos++
	}
	if filter.Date != nil {
		conditions = append(conditions, fmt.Sprintf("requested_date = $%d", argPos))
		args = append(args, *filter.Date)
		argPos++
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM orders "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	query := fmt.Sprintf(`SELECT %s FROM orders %s
		ORDER BY requested_date, requested_time NULLS LAST, created_at, id
		LIMIT $%d OFFSET $%d`, orderColumns, where, argPos, argPos+1)
	args = append(args, limit, filter.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *o)
	}
	return out, total, rows.Err()
}

// ListClients returns every client, highest priority first.
func (r *repository) ListClients(ctx context.Context) ([]Client, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, priority_level, created_at FROM clients ORDER BY priority_level DESC, name, id`)
	if err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	defer rows.Close()

	var out []Client
	for rows.Next() {
		var c Client
		if err := rows.Scan(&c.ID, &c.Name, &c.PriorityLevel, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan client: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (t *txRepository) LockOrder(ctx context.Context, id uuid.UUID) (*Order, error) {
	return scanOrder(t.tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id))
}

func (t *txRepository) InsertOrder(ctx context.Context, o Order) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO orders (id, client_id, product_id, quantity, requested_date, requested_time, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		o.ID, o.ClientID, o.ProductID, o.Quantity, o.RequestedDate, toPgTime(o.RequestedTime), string(o.Status), o.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (t *txRepository) UpdateOrder(ctx context.Context, o Order) error {
	cmdTag, err := t.tx.Exec(ctx, `
		UPDATE orders
		SET client_id = $1, product_id = $2, quantity = $3, requested_date = $4, requested_time = $5, status = $6
		WHERE id = $7`,
		o.ClientID, o.ProductID, o.Quantity, o.RequestedDate, toPgTime(o.RequestedTime), string(o.Status), o.ID)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func (t *txRepository) DeleteOrder(ctx context.Context, id uuid.UUID) error {
	cmdTag, err := t.tx.Exec(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete order: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// Links counts the deliveries carrying the order. Active rows are locked so a
// concurrent reactivation waits for this transaction.
func (t *txRepository) Links(ctx context.Context, orderID uuid.UUID) (LinkSummary, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT d.status FROM delivery_orders l
		JOIN deliveries d ON d.id = l.delivery_id
		WHERE l.order_id = $1
		FOR UPDATE OF d`, orderID)
	if err != nil {
		return LinkSummary{}, fmt.Errorf("order links: %w", err)
	}
	defer rows.Close()

	var sum LinkSummary
	for rows.Next() {
		var status string
		if err := rows.Scan(&status); err != nil {
			return LinkSummary{}, fmt.Errorf("scan link: %w", err)
		}
		sum.Total++
		for _, s := range activeStatuses {
			if status == s {
				sum.Active++
			}
		}
	}
	return sum, rows.Err()
}

func (t *txRepository) ReferencesExist(ctx context.Context, clientID, productID uuid.UUID) (bool, error) {
	var ok bool
	err := t.tx.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM clients WHERE id = $1)
		   AND EXISTS (SELECT 1 FROM products WHERE id = $2)`, clientID, productID).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("check references: %w", err)
	}
	return ok, nil
}

func (t *txRepository) LockClient(ctx context.Context, id uuid.UUID) (*Client, error) {
	var c Client
	err := t.tx.QueryRow(ctx, `SELECT id, name, priority_level, created_at FROM clients WHERE id = $1 FOR UPDATE`, id).
		Scan(&c.ID, &c.Name, &c.PriorityLevel, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", id, ErrClientNotFound)
		}
		return nil, fmt.Errorf("lock client: %w", err)
	}
	return &c, nil
}

func (t *txRepository) InsertClient(ctx context.Context, c Client) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO clients (id, name, priority_level, created_at) VALUES ($1, $2, $3, $4)`,
		c.ID, c.Name, c.PriorityLevel, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert client: %w", err)
	}
	return nil
}

func (t *txRepository) UpdateClient(ctx context.Context, c Client) error {
	_, err := t.tx.Exec(ctx, `UPDATE clients SET name = $1, priority_level = $2 WHERE id = $3`, c.Name, c.PriorityLevel, c.ID)
	if err != nil {
		return fmt.Errorf("update client: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOrder(row scanner) (*Order, error) {
	var (
		o      Order
		at     pgtype.Time
		status string
	)
	err := row.Scan(&o.ID, &o.ClientID, &o.ProductID, &o.Quantity, &o.RequestedDate, &at, &status, &o.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("scan order: %w", err)
	}
	o.Status = delivery.OrderStatus(status)
	if at.Valid {
		tod := delivery.TimeOfDay(time.Duration(at.Microseconds) * time.Microsecond)
		o.RequestedTime = &tod
	}
	return &o, nil
}

func toPgTime(t *delivery.TimeOfDay) pgtype.Time {
	if t == nil {
		return pgtype.Time{}
	}
	return pgtype.Time{Microseconds: t.Duration().Microseconds(), Valid: true}
}

func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case "23503":
		if pgErr.TableName == "delivery_orders" {
			return fmt.Errorf("%w (%s)", ErrOrderHasHistory, pgErr.ConstraintName)
		}
		return fmt.Errorf("%w (%s)", ErrUnknownReference, pgErr.ConstraintName)
	case "23505", "40001", "40P01":
		return ErrConcurrentUpdate
	}
	return err
}
