package fleet

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/truckdispatch/internal/delivery"
	"github.com/odyssey-erp/truckdispatch/internal/platform/db"
)

// Repository defines truck persistence.
type Repository interface {
	Get(ctx context.Context, id uuid.UUID) (*Truck, error)
	List(ctx context.Context, filter ListFilter) ([]Truck, int, error)

	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes the reads and writes available inside one transaction.
type TxRepository interface {
	LockTruck(ctx context.Context, id uuid.UUID) (*Truck, error)
	InsertTruck(ctx context.Context, t Truck) error
	UpdateTruck(ctx context.Context, t Truck) error
	DeleteTruck(ctx context.Context, id uuid.UUID) error
	Usage(ctx context.Context, truckID uuid.UUID) (Usage, error)
}

var activeStatuses = []string{string(delivery.StatusScheduled), string(delivery.StatusInProgress)}

const truckColumns = `id, plate_number, capacity::float8, driver_name, created_at`

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

// WithTx wraps callback in a repeatable-read transaction. The delivery
// service locks the same truck row before booking it, so usage read after
// LockTruck stays current until commit.
func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
	return mapPgError(err)
}

func (r *repository) Get(ctx context.Context, id uuid.UUID) (*Truck, error) {
	return scanTruck(r.pool.QueryRow(ctx, `SELECT `+truckColumns+` FROM trucks WHERE id = $1`, id))
}

// List returns trucks ordered by plate and the total count.
func (r *repository) List(ctx context.Context, filter ListFilter) ([]Truck, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM trucks`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count trucks: %w", err)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.pool.Query(ctx, `SELECT `+truckColumns+` FROM trucks ORDER BY plate_number, id LIMIT $1 OFFSET $2`, limit, filter.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list trucks: %w", err)
	}
	defer rows.Close()

	var out []Truck
	for rows.Next() {
		t, err := scanTruck(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *t)
	}
	return out, total, rows.Err()
}

func (t *txRepository) LockTruck(ctx context.Context, id uuid.UUID) (*Truck, error) {
	return scanTruck(t.tx.QueryRow(ctx, `SELECT `+truckColumns+` FROM trucks WHERE id = $1 FOR UPDATE`, id))
}

func (t *txRepository) InsertTruck(ctx context.Context, tr Truck) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO trucks (id, plate_number, capacity, driver_name, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		tr.ID, tr.PlateNumber, tr.Capacity, tr.DriverName, tr.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert truck: %w", err)
	}
	return nil
}

func (t *txRepository) UpdateTruck(ctx context.Context, tr Truck) error {
	cmdTag, err := t.tx.Exec(ctx, `
		UPDATE trucks SET plate_number = $1, capacity = $2, driver_name = $3 WHERE id = $4`,
		tr.PlateNumber, tr.Capacity, tr.DriverName, tr.ID)
	if err != nil {
		return fmt.Errorf("update truck: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrTruckNotFound
	}
	return nil
}

func (t *txRepository) DeleteTruck(ctx context.Context, id uuid.UUID) error {
	cmdTag, err := t.tx.Exec(ctx, `DELETE FROM trucks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete truck: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrTruckNotFound
	}
	return nil
}

// Usage counts the deliveries booked on the truck and the heaviest active load.
func (t *txRepository) Usage(ctx context.Context, truckID uuid.UUID) (Usage, error) {
	var u Usage
	err := t.tx.QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE active),
		       COALESCE(MAX(load) FILTER (WHERE active), 0)::float8
		FROM (
			SELECT d.status = ANY($2) AS active, COALESCE(SUM(l.quantity), 0) AS load
			FROM deliveries d
			LEFT JOIN delivery_orders l ON l.delivery_id = d.id
			WHERE d.truck_id = $1
			GROUP BY d.id, d.status
		) trips`, truckID, activeStatuses).Scan(&u.Total, &u.Active, &u.MaxActiveLoad)
	if err != nil {
		return Usage{}, fmt.Errorf("truck usage: %w", err)
	}
	return u, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTruck(row scanner) (*Truck, error) {
	var t Truck
	if err := row.Scan(&t.ID, &t.PlateNumber, &t.Capacity, &t.DriverName, &t.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTruckNotFound
		}
		return nil, fmt.Errorf("scan truck: %w", err)
	}
	return &t, nil
}

func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case "23505":
		if pgErr.ConstraintName == "trucks_plate_number_key" {
			return fmt.Errorf("%w (%s)", ErrDuplicatePlate, pgErr.ConstraintName)
		}
		return ErrConcurrentUpdate
	case "23503":
		return fmt.Errorf("%w (%s)", ErrTruckHasHistory, pgErr.ConstraintName)
	case "40001", "40P01":
		return ErrConcurrentUpdate
	}
	return err
}
