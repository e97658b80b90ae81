package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/truckdispatch/internal/platform/db"
)

// Repository defines delivery persistence.
type Repository interface {
	// Read operations
	Get(ctx context.Context, id uuid.UUID) (*Detail, error)
	List(ctx context.Context, filter ListFilter) ([]Delivery, int, error)
	ListOverdueCandidates(ctx context.Context, until time.Time) ([]Delivery, error)

	// Write operations (transactional)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes the reads and writes available inside one transaction.
type TxRepository interface {
	View
	LedgerStore

	LockDelivery(ctx context.Context, id uuid.UUID) (*Delivery, error)
	LockTruck(ctx context.Context, id uuid.UUID) (*Truck, error)
	GetDetail(ctx context.Context, id uuid.UUID) (*Detail, error)
	InsertDelivery(ctx context.Context, d Delivery) error
	UpdateDelivery(ctx context.Context, d Delivery) error
	DeleteDelivery(ctx context.Context, id uuid.UUID) error
	AppendHistory(ctx context.Context, entry HistoryEntry) error
	DeleteHistory(ctx context.Context, deliveryID uuid.UUID) error
	SetOrderStatus(ctx context.Context, id uuid.UUID, status OrderStatus) error
	ActiveLinkedElsewhere(ctx context.Context, orderID, exclude uuid.UUID) (bool, error)
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type scanner interface {
	Scan(dest ...any) error
}

// repository implements Repository using pgxpool.
type repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

// txRepository implements TxRepository.
type txRepository struct {
	tx pgx.Tx
}

// WithTx wraps callback in a repeatable-read transaction. Truck and order rows
// are locked explicitly by the callback; the partial unique index on active
// slots backs up the slot check.
func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
	return mapPgError(err)
}

// Get returns a delivery with its links and history.
func (r *repository) Get(ctx context.Context, id uuid.UUID) (*Detail, error) {
	return loadDetail(ctx, r.pool, id)
}

// List returns deliveries matching the filter and the total count.
func (r *repository) List(ctx context.Context, filter ListFilter) ([]Delivery, int, error) {
	var conditions []string
	var args []any
	argPos := 1

	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argPos))
		args = append(args, string(*filter.Status))
		argPos++
	}
	if filter.TruckID != nil {
		conditions = append(conditions, fmt.Sprintf("truck_id = $%d", argPos))
		args = append(args, *filter.TruckID)
		argPos++
	}
	if filter.Date != nil {
		conditions = append(conditions, fmt.Sprintf("scheduled_date = $%d", argPos))
		args = append(args, *filter.Date)
		argPos++
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM deliveries "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count deliveries: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	query := fmt.Sprintf(`SELECT %s FROM deliveries %s
		ORDER BY scheduled_date NULLS LAST, scheduled_time NULLS LAST, created_at, id
		LIMIT $%d OFFSET $%d`, deliveryColumns, where, argPos, argPos+1)
	args = append(args, limit, filter.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list deliveries: %w", err)
	}
	defer rows.Close()

	var out []Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *d)
	}
	return out, total, rows.Err()
}

// ListOverdueCandidates returns active, not yet delayed deliveries scheduled
// on or before until. The caller decides which of them are actually late.
func (r *repository) ListOverdueCandidates(ctx context.Context, until time.Time) ([]Delivery, error) {
	query := `SELECT ` + deliveryColumns + ` FROM deliveries
		WHERE status = ANY($1) AND delayed = false
		  AND scheduled_date IS NOT NULL AND scheduled_date <= $2
		ORDER BY scheduled_date, scheduled_time NULLS LAST, id`
	rows, err := r.pool.Query(ctx, query, activeStatuses, until)
	if err != nil {
		return nil, fmt.Errorf("list overdue deliveries: %w", err)
	}
	defer rows.Close()

	var out []Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

// ============================================================================
// SHARED READS
// ============================================================================

const deliveryColumns = `id, truck_id, external_truck_label, scheduled_date, scheduled_time,
	status, delayed, destination, notes, last_updated, created_at`

func scanDelivery(row scanner) (*Delivery, error) {
	var (
		d      Delivery
		at     pgtype.Time
		status string
	)
	err := row.Scan(&d.ID, &d.TruckID, &d.ExternalTruckLabel, &d.ScheduledDate, &at,
		&status, &d.Delayed, &d.Destination, &d.Notes, &d.LastUpdated, &d.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDeliveryNotFound
		}
		return nil, fmt.Errorf("scan delivery: %w", err)
	}
	if d.Status, err = ParseDeliveryStatus(status); err != nil {
		return nil, fmt.Errorf("delivery %s: %w", d.ID, err)
	}
	d.ScheduledTime = fromPgTime(at)
	return &d, nil
}

func loadDetail(ctx context.Context, q querier, id uuid.UUID) (*Detail, error) {
	d, err := scanDelivery(q.QueryRow(ctx, `SELECT `+deliveryColumns+` FROM deliveries WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	links, err := listLinks(ctx, q, id)
	if err != nil {
		return nil, err
	}
	history, err := listHistory(ctx, q, id)
	if err != nil {
		return nil, err
	}
	return &Detail{Delivery: *d, Links: links, History: history}, nil
}

func listLinks(ctx context.Context, q querier, deliveryID uuid.UUID) ([]Link, error) {
	rows, err := q.Query(ctx, `
		SELECT delivery_id, order_id, quantity::float8, quantity_deducted
		FROM delivery_orders
		WHERE delivery_id = $1
		ORDER BY order_id`, deliveryID)
	if err != nil {
		return nil, fmt.Errorf("list links: %w", err)
	}
	defer rows.Close()

	var out []Link
	for rows.Next() {
		var l Link
		if err := rows.Scan(&l.DeliveryID, &l.OrderID, &l.Quantity, &l.QuantityDeducted); err != nil {
			return nil, fmt.Errorf("scan link: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// listHistory returns entries newest first; seq breaks ties within one transaction.
func listHistory(ctx context.Context, q querier, deliveryID uuid.UUID) ([]HistoryEntry, error) {
	rows, err := q.Query(ctx, `
		SELECT id, delivery_id, user_id, status, change_type, note, previous_data, created_at
		FROM delivery_history
		WHERE delivery_id = $1
		ORDER BY created_at DESC, seq DESC`, deliveryID)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	var out []HistoryEntry
	for rows.Next() {
		var (
			e          HistoryEntry
			status     string
			changeType string
			previous   []byte
		)
		if err := rows.Scan(&e.ID, &e.DeliveryID, &e.UserID, &status, &changeType, &e.Note, &previous, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		if e.Status, err = ParseDeliveryStatus(status); err != nil {
			return nil, err
		}
		e.ChangeType = ChangeType(changeType)
		if e.ChangeType == "" {
			e.ChangeType = ChangeStatus
		}
		if len(previous) > 0 {
			if err := json.Unmarshal(previous, &e.PreviousData); err != nil {
				return nil, fmt.Errorf("decode previous_data: %w", err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func getTruck(ctx context.Context, q querier, id uuid.UUID, lock bool) (*Truck, error) {
	query := `SELECT id, plate_number, capacity::float8, driver_name FROM trucks WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}
	var t Truck
	err := q.QueryRow(ctx, query, id).Scan(&t.ID, &t.PlateNumber, &t.Capacity, &t.DriverName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", id, ErrTruckNotFound)
		}
		return nil, fmt.Errorf("get truck: %w", err)
	}
	return &t, nil
}

// ============================================================================
// CONVERSIONS
// ============================================================================

func toPgTime(t *TimeOfDay) pgtype.Time {
	if t == nil {
		return pgtype.Time{}
	}
	return pgtype.Time{Microseconds: t.Duration().Microseconds(), Valid: true}
}

func fromPgTime(t pgtype.Time) *TimeOfDay {
	if !t.Valid {
		return nil
	}
	v := TimeOfDay(time.Duration(t.Microseconds) * time.Microsecond)
	return &v
}

// mapPgError translates constraint and serialization failures into the
// domain taxonomy. Anything else passes through untouched.
func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case "23505":
		if pgErr.ConstraintName == "deliveries_active_slot_uniq" {
			return fmt.Errorf("%w (%s)", ErrSlotConflict, pgErr.ConstraintName)
		}
		return fmt.Errorf("%w (%s)", ErrConcurrentUpdate, pgErr.ConstraintName)
	case "23503":
		return fmt.Errorf("%w (%s)", ErrUnknownReference, pgErr.ConstraintName)
	case "40001", "40P01":
		return ErrConcurrentUpdate
	}
	return err
}
