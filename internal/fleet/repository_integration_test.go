package fleet

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/truckdispatch/internal/delivery"
	"github.com/odyssey-erp/truckdispatch/internal/platform/db/dbtest"
)

func TestPostgresTruckGuards(t *testing.T) {
	pool := dbtest.Postgres(t)
	ctx := context.Background()
	svc := NewService(NewRepository(pool), nil, nil)

	truck, err := svc.Create(ctx, TruckInput{PlateNumber: ptr("AB-123-CD"), Capacity: ptr(25.0)})
	require.NoError(t, err)

	client, product, orderID := uuid.New(), uuid.New(), uuid.New()
	_, err = pool.Exec(ctx, `INSERT INTO clients (id, name) VALUES ($1, 'Chantier Nord')`, client)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `INSERT INTO products (id, name) VALUES ($1, 'Sable 0/4')`, product)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `
		INSERT INTO orders (id, client_id, product_id, quantity, requested_date)
		VALUES ($1, $2, $3, 30, DATE '2026-03-12')`, orderID, client, product)
	require.NoError(t, err)

	now := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	deliveries := delivery.NewService(delivery.NewRepository(pool), delivery.NewChecker(time.UTC, func() time.Time { return now }), nil, nil)
	date := time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC)
	at, err := delivery.ParseTimeOfDay("09:00")
	require.NoError(t, err)
	booked, err := deliveries.Create(ctx, delivery.CreateInput{
		TruckID:       &truck.ID,
		OrderIDs:      []uuid.UUID{orderID},
		Quantities:    map[uuid.UUID]float64{orderID: 18},
		ScheduledDate: &date,
		ScheduledTime: &at,
		Destination:   "Chantier Nord",
	}, nil)
	require.NoError(t, err)

	_, err = svc.Update(ctx, truck.ID, TruckInput{Capacity: ptr(15.0)})
	assert.ErrorIs(t, err, ErrCapacityBelowLoad)
	_, err = svc.Update(ctx, truck.ID, TruckInput{Capacity: ptr(18.0)})
	assert.NoError(t, err)

	assert.ErrorIs(t, svc.Delete(ctx, truck.ID), ErrTruckInUse)

	_, err = deliveries.UpdateStatus(ctx, booked.ID, delivery.StatusCancelled, "", nil)
	require.NoError(t, err)
	assert.ErrorIs(t, svc.Delete(ctx, truck.ID), ErrTruckHasHistory)

	_, err = svc.Create(ctx, TruckInput{PlateNumber: ptr("ab-123-cd")})
	assert.ErrorIs(t, err, ErrDuplicatePlate)
}
