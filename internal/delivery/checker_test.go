package delivery

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsInFuture(t *testing.T) {
	paris, err := time.LoadLocation("Europe/Paris")
	require.NoError(t, err)
	now := time.Date(2026, 6, 15, 8, 0, 0, 0, time.UTC) // 10:00 in Paris
	c := NewChecker(paris, func() time.Time { return now })

	day := time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC)
	assert.True(t, c.IsInFuture(day, timePtr("10:00:01")))
	assert.False(t, c.IsInFuture(day, timePtr("10:00")))
	assert.False(t, c.IsInFuture(day, timePtr("09:30")))
	assert.True(t, c.IsInFuture(day, nil))
	assert.False(t, c.IsInFuture(day.AddDate(0, 0, -1), nil))
	assert.True(t, c.IsInFuture(day.AddDate(0, 0, 1), timePtr("00:00")))
}

func TestSlotConflictAndCapacity(t *testing.T) {
	repo := newMemoryRepo()
	truck := repo.addTruck(40)
	unknown := repo.addTruck(0)
	existing := Delivery{
		ID:            uuid.New(),
		TruckID:       &truck.ID,
		ScheduledDate: datePtr(2026, 6, 20),
		ScheduledTime: timePtr("09:00"),
		Status:        StatusInProgress,
	}
	repo.deliveries[existing.ID] = existing
	c := NewChecker(time.UTC, nil)
	ctx := context.Background()

	err := repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		conflict, err := c.HasSlotConflict(ctx, tx, truck.ID, *existing.ScheduledDate, *existing.ScheduledTime, uuid.Nil)
		require.NoError(t, err)
		assert.True(t, conflict)

		conflict, err = c.HasSlotConflict(ctx, tx, truck.ID, *existing.ScheduledDate, *existing.ScheduledTime, existing.ID)
		require.NoError(t, err)
		assert.False(t, conflict)

		conflict, err = c.HasSlotConflict(ctx, tx, truck.ID, *existing.ScheduledDate, *timePtr("09:30"), uuid.Nil)
		require.NoError(t, err)
		assert.False(t, conflict)

		exceeded, err := c.CapacityExceeded(ctx, tx, truck.ID, 40)
		require.NoError(t, err)
		assert.False(t, exceeded)

		exceeded, err = c.CapacityExceeded(ctx, tx, truck.ID, 40.001)
		require.NoError(t, err)
		assert.True(t, exceeded)

		exceeded, err = c.CapacityExceeded(ctx, tx, unknown.ID, 1000)
		require.NoError(t, err)
		assert.False(t, exceeded)

		_, err = c.CapacityExceeded(ctx, tx, uuid.New(), 1)
		require.ErrorIs(t, err, ErrTruckNotFound)
		return nil
	})
	require.NoError(t, err)
}
