package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/truckdispatch/internal/delivery"
)

// Source reads the planning snapshot.
type Source interface {
	PendingOrders(ctx context.Context) ([]PendingOrder, error)
	Trucks(ctx context.Context) ([]Truck, error)
}

// Repository implements Source over Postgres.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var activeDeliveryStatuses = []string{string(delivery.StatusScheduled), string(delivery.StatusInProgress)}

// PendingOrders returns orders waiting for a truck that no active delivery
// carries yet. Status spellings are normalized on read.
func (r *Repository) PendingOrders(ctx context.Context) ([]PendingOrder, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT o.id, o.client_id, o.quantity::float8, o.requested_date, o.status,
		       COALESCE(c.priority_level, 1)
		FROM orders o
		LEFT JOIN clients c ON c.id = o.client_id
		WHERE o.quantity > 0
		  AND NOT EXISTS (
			SELECT 1
			FROM delivery_orders l
			JOIN deliveries d ON d.id = l.delivery_id
			WHERE l.order_id = o.id AND d.status = ANY($1)
		  )
		ORDER BY o.requested_date, o.created_at, o.id`, activeDeliveryStatuses)
	if err != nil {
		return nil, fmt.Errorf("query pending orders: %w", err)
	}
	defer rows.Close()

	var out []PendingOrder
	for rows.Next() {
		var (
			o         PendingOrder
			requested time.Time
			status    string
		)
		if err := rows.Scan(&o.ID, &o.ClientID, &o.Quantity, &requested, &status, &o.Priority); err != nil {
			return nil, fmt.Errorf("scan pending order: %w", err)
		}
		if s, err := delivery.ParseOrderStatus(status); err != nil || s != delivery.OrderPending {
			continue
		}
		o.RequestedDate = requested
		out = append(out, o)
	}
	return out, rows.Err()
}

// Trucks returns the trucks with a known positive capacity.
func (r *Repository) Trucks(ctx context.Context) ([]Truck, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, plate_number, capacity::float8
		FROM trucks
		WHERE capacity > 0
		ORDER BY plate_number, id`)
	if err != nil {
		return nil, fmt.Errorf("query trucks: %w", err)
	}
	defer rows.Close()

	var out []Truck
	for rows.Next() {
		var t Truck
		if err := rows.Scan(&t.ID, &t.PlateNumber, &t.Capacity); err != nil {
			return nil, fmt.Errorf("scan truck: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

var _ Source = (*Repository)(nil)
