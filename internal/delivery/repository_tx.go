package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// LockDelivery reads a delivery and locks its row until the transaction ends.
func (t *txRepository) LockDelivery(ctx context.Context, id uuid.UUID) (*Delivery, error) {
	return scanDelivery(t.tx.QueryRow(ctx, `SELECT `+deliveryColumns+` FROM deliveries WHERE id = $1 FOR UPDATE`, id))
}

// LockTruck locks the truck row. Slot and capacity checks for the same truck
// are serialized behind this lock.
func (t *txRepository) LockTruck(ctx context.Context, id uuid.UUID) (*Truck, error) {
	return getTruck(ctx, t.tx, id, true)
}

// GetTruck reads a truck without locking.
func (t *txRepository) GetTruck(ctx context.Context, id uuid.UUID) (*Truck, error) {
	return getTruck(ctx, t.tx, id, false)
}

// GetDetail reads a delivery with links and history as seen by the transaction.
func (t *txRepository) GetDetail(ctx context.Context, id uuid.UUID) (*Detail, error) {
	return loadDetail(ctx, t.tx, id)
}

// CountActiveInSlot counts active deliveries other than exclude holding the slot.
func (t *txRepository) CountActiveInSlot(ctx context.Context, truckID uuid.UUID, date time.Time, at TimeOfDay, exclude uuid.UUID) (int, error) {
	query := `
		SELECT COUNT(*) FROM deliveries
		WHERE truck_id = $1 AND scheduled_date = $2 AND scheduled_time = $3
		  AND status = ANY($4) AND id <> $5`
	var n int
	if err := t.tx.QueryRow(ctx, query, truckID, date, toPgTime(&at), activeStatuses, exclude).Scan(&n); err != nil {
		return 0, fmt.Errorf("count slot: %w", err)
	}
	return n, nil
}

// InsertDelivery creates a delivery row.
func (t *txRepository) InsertDelivery(ctx context.Context, d Delivery) error {
	query := `
		INSERT INTO deliveries (
			id, truck_id, external_truck_label, scheduled_date, scheduled_time,
			status, delayed, destination, notes, last_updated, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err := t.tx.Exec(ctx, query,
		d.ID, d.TruckID, d.ExternalTruckLabel, d.ScheduledDate, toPgTime(d.ScheduledTime),
		string(d.Status), d.Delayed, d.Destination, d.Notes, d.LastUpdated, d.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert delivery: %w", err)
	}
	return nil
}

// UpdateDelivery writes every mutable column of the delivery.
func (t *txRepository) UpdateDelivery(ctx context.Context, d Delivery) error {
	query := `
		UPDATE deliveries
		SET truck_id = $1, external_truck_label = $2, scheduled_date = $3, scheduled_time = $4,
		    status = $5, delayed = $6, destination = $7, notes = $8, last_updated = $9
		WHERE id = $10`
	cmdTag, err := t.tx.Exec(ctx, query,
		d.TruckID, d.ExternalTruckLabel, d.ScheduledDate, toPgTime(d.ScheduledTime),
		string(d.Status), d.Delayed, d.Destination, d.Notes, d.LastUpdated, d.ID,
	)
	if err != nil {
		return fmt.Errorf("update delivery: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrDeliveryNotFound
	}
	return nil
}

// DeleteDelivery removes the delivery row. History and links must be gone already.
func (t *txRepository) DeleteDelivery(ctx context.Context, id uuid.UUID) error {
	cmdTag, err := t.tx.Exec(ctx, `DELETE FROM deliveries WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete delivery: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrDeliveryNotFound
	}
	return nil
}

// AppendHistory inserts one audit row.
func (t *txRepository) AppendHistory(ctx context.Context, e HistoryEntry) error {
	var previous []byte
	if len(e.PreviousData) > 0 {
		raw, err := json.Marshal(e.PreviousData)
		if err != nil {
			return fmt.Errorf("encode previous_data: %w", err)
		}
		previous = raw
	}
	query := `
		INSERT INTO delivery_history (id, delivery_id, user_id, status, change_type, note, previous_data, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := t.tx.Exec(ctx, query,
		e.ID, e.DeliveryID, e.UserID, string(e.Status), string(e.ChangeType), e.Note, previous, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}

// DeleteHistory removes all history rows of a delivery.
func (t *txRepository) DeleteHistory(ctx context.Context, deliveryID uuid.UUID) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM delivery_history WHERE delivery_id = $1`, deliveryID); err != nil {
		return fmt.Errorf("delete history: %w", err)
	}
	return nil
}

// ============================================================================
// ORDERS
// ============================================================================

// LockOrder reads an order with its client priority and locks the order row.
func (t *txRepository) LockOrder(ctx context.Context, id uuid.UUID) (*Order, error) {
	query := `
		SELECT o.id, o.client_id, o.product_id, o.quantity::float8, o.requested_date, o.requested_time,
		       o.status, COALESCE(c.priority_level, 1)
		FROM orders o
		LEFT JOIN clients c ON c.id = o.client_id
		WHERE o.id = $1
		FOR UPDATE OF o`
	var (
		o      Order
		at     pgtype.Time
		status string
	)
	err := t.tx.QueryRow(ctx, query, id).Scan(
		&o.ID, &o.ClientID, &o.ProductID, &o.Quantity, &o.RequestedDate, &at, &status, &o.Priority,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", id, ErrOrderNotFound)
		}
		return nil, fmt.Errorf("lock order: %w", err)
	}
	if o.Status, err = ParseOrderStatus(status); err != nil {
		return nil, fmt.Errorf("order %s: %w", o.ID, err)
	}
	o.RequestedTime = fromPgTime(at)
	return &o, nil
}

// SetOrderQuantity overwrites the remaining quantity.
func (t *txRepository) SetOrderQuantity(ctx context.Context, id uuid.UUID, quantity float64) error {
	cmdTag, err := t.tx.Exec(ctx, `UPDATE orders SET quantity = $1 WHERE id = $2`, quantity, id)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", id, ErrOrderNotFound)
	}
	return nil
}

// SetOrderStatus overwrites the order's shadow status.
func (t *txRepository) SetOrderStatus(ctx context.Context, id uuid.UUID, status OrderStatus) error {
	cmdTag, err := t.tx.Exec(ctx, `UPDATE orders SET status = $1 WHERE id = $2`, string(status), id)
	if err != nil {
		return fmt.Errorf("set order status: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", id, ErrOrderNotFound)
	}
	return nil
}

// ActiveLinkedElsewhere reports whether the order is on an active delivery other than exclude.
func (t *txRepository) ActiveLinkedElsewhere(ctx context.Context, orderID, exclude uuid.UUID) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM delivery_orders l
			JOIN deliveries d ON d.id = l.delivery_id
			WHERE l.order_id = $1 AND l.delivery_id <> $2 AND d.status = ANY($3)
		)`
	var linked bool
	if err := t.tx.QueryRow(ctx, query, orderID, exclude, activeStatuses).Scan(&linked); err != nil {
		return false, fmt.Errorf("check order links: %w", err)
	}
	return linked, nil
}

// ============================================================================
// LEDGER LINKS
// ============================================================================

// GetLink reads one ledger link.
func (t *txRepository) GetLink(ctx context.Context, deliveryID, orderID uuid.UUID) (*Link, error) {
	query := `
		SELECT delivery_id, order_id, quantity::float8, quantity_deducted
		FROM delivery_orders
		WHERE delivery_id = $1 AND order_id = $2`
	var l Link
	err := t.tx.QueryRow(ctx, query, deliveryID, orderID).Scan(&l.DeliveryID, &l.OrderID, &l.Quantity, &l.QuantityDeducted)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLinkNotFound
		}
		return nil, fmt.Errorf("get link: %w", err)
	}
	return &l, nil
}

// UpsertLink creates or replaces a link.
func (t *txRepository) UpsertLink(ctx context.Context, l Link) error {
	query := `
		INSERT INTO delivery_orders (delivery_id, order_id, quantity, quantity_deducted)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (delivery_id, order_id)
		DO UPDATE SET quantity = EXCLUDED.quantity, quantity_deducted = EXCLUDED.quantity_deducted`
	_, err := t.tx.Exec(ctx, query, l.DeliveryID, l.OrderID, l.Quantity, l.QuantityDeducted)
	return err
}

// SetLinkDeducted flips the deduction flag.
func (t *txRepository) SetLinkDeducted(ctx context.Context, deliveryID, orderID uuid.UUID, deducted bool) error {
	cmdTag, err := t.tx.Exec(ctx,
		`UPDATE delivery_orders SET quantity_deducted = $1 WHERE delivery_id = $2 AND order_id = $3`,
		deducted, deliveryID, orderID)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrLinkNotFound
	}
	return nil
}

// ListLinks returns the delivery's links ordered by order id.
func (t *txRepository) ListLinks(ctx context.Context, deliveryID uuid.UUID) ([]Link, error) {
	return listLinks(ctx, t.tx, deliveryID)
}

// DeleteLinks removes all links of a delivery.
func (t *txRepository) DeleteLinks(ctx context.Context, deliveryID uuid.UUID) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM delivery_orders WHERE delivery_id = $1`, deliveryID)
	return err
}
