package fleet

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/truckdispatch/internal/delivery"
	"github.com/odyssey-erp/truckdispatch/internal/shared"
)

type fixture struct {
	repo  *memoryRepo
	cache *countingCache
	svc   *Service
	actor uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{repo: newMemoryRepo(), cache: &countingCache{}, actor: uuid.New()}
	f.svc = NewService(f.repo, f.cache, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return f
}

func (f *fixture) create(t *testing.T, plate string, capacity float64) *Truck {
	t.Helper()
	tr, err := f.svc.Create(context.Background(), TruckInput{PlateNumber: &plate, Capacity: &capacity})
	require.NoError(t, err)
	return tr
}

func ptr[T any](v T) *T { return &v }

func TestCreateTruck(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tr, err := f.svc.Create(ctx, TruckInput{PlateNumber: ptr(" ab-123-cd "), Capacity: ptr(25.0), DriverName: ptr("Paul")})
	require.NoError(t, err)
	assert.Equal(t, "AB-123-CD", tr.PlateNumber)
	require.NotNil(t, tr.DriverName)
	assert.Equal(t, "Paul", *tr.DriverName)
	assert.Equal(t, 1, f.cache.count())

	_, err = f.svc.Create(ctx, TruckInput{PlateNumber: ptr("AB-123-CD")})
	assert.ErrorIs(t, err, ErrDuplicatePlate)
	_, err = f.svc.Create(ctx, TruckInput{PlateNumber: ptr("  ")})
	assert.ErrorIs(t, err, ErrPlateRequired)
	_, err = f.svc.Create(ctx, TruckInput{PlateNumber: ptr("XY-1"), Capacity: ptr(-1.0)})
	assert.ErrorIs(t, err, ErrInvalidCapacity)
}

func TestUpdateCapacityAgainstActiveLoad(t *testing.T) {
	tests := []struct {
		name     string
		trips    []trip
		capacity float64
		wantErr  error
	}{
		{name: "no bookings", capacity: 5},
		{name: "above heaviest trip", trips: []trip{{delivery.StatusScheduled, 12}, {delivery.StatusInProgress, 18}}, capacity: 18},
		{name: "below heaviest trip", trips: []trip{{delivery.StatusScheduled, 12}, {delivery.StatusInProgress, 18}}, capacity: 17.999, wantErr: ErrCapacityBelowLoad},
		{name: "finished trips ignored", trips: []trip{{delivery.StatusDelivered, 30}, {delivery.StatusCancelled, 30}}, capacity: 10},
		{name: "unknown capacity", trips: []trip{{delivery.StatusScheduled, 22}}, capacity: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tr := f.create(t, "AB-123-CD", 25)
			for _, tp := range tt.trips {
				f.repo.book(tr.ID, tp.status, tp.load)
			}

			_, err := f.svc.Update(context.Background(), tr.ID, TruckInput{Capacity: ptr(tt.capacity)})
			stored, _ := f.repo.truck(tr.ID)
			if tt.wantErr == nil {
				require.NoError(t, err)
				assert.InDelta(t, tt.capacity, stored.Capacity, 1e-9)
				return
			}
			require.ErrorIs(t, err, tt.wantErr)
			assert.ErrorIs(t, err, shared.ErrConflict)
			assert.InDelta(t, 25.0, stored.Capacity, 1e-9)
		})
	}
}

func TestUpdateDriverAndPlate(t *testing.T) {
	f := newFixture(t)
	tr := f.create(t, "AB-123-CD", 25)
	f.create(t, "EF-456-GH", 25)
	ctx := context.Background()

	// edits that leave capacity alone skip the load check
	f.repo.book(tr.ID, delivery.StatusScheduled, 24)
	updated, err := f.svc.Update(ctx, tr.ID, TruckInput{DriverName: ptr("Nadia")})
	require.NoError(t, err)
	require.NotNil(t, updated.DriverName)

	updated, err = f.svc.Update(ctx, tr.ID, TruckInput{DriverName: ptr("")})
	require.NoError(t, err)
	assert.Nil(t, updated.DriverName)

	_, err = f.svc.Update(ctx, tr.ID, TruckInput{PlateNumber: ptr("ef-456-gh")})
	assert.ErrorIs(t, err, ErrDuplicatePlate)

	_, err = f.svc.Update(ctx, uuid.New(), TruckInput{DriverName: ptr("Karim")})
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestDeleteTruck(t *testing.T) {
	tests := []struct {
		name    string
		trips   []trip
		wantErr error
	}{
		{name: "never booked"},
		{name: "scheduled trip", trips: []trip{{delivery.StatusScheduled, 5}}, wantErr: ErrTruckInUse},
		{name: "trip on the road", trips: []trip{{delivery.StatusDelivered, 5}, {delivery.StatusInProgress, 5}}, wantErr: ErrTruckInUse},
		{name: "past trips only", trips: []trip{{delivery.StatusCancelled, 5}}, wantErr: ErrTruckHasHistory},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tr := f.create(t, "AB-123-CD", 25)
			for _, tp := range tt.trips {
				f.repo.book(tr.ID, tp.status, tp.load)
			}

			err := f.svc.Delete(context.Background(), tr.ID)
			_, stillThere := f.repo.truck(tr.ID)
			if tt.wantErr == nil {
				require.NoError(t, err)
				assert.False(t, stillThere)
				return
			}
			require.ErrorIs(t, err, tt.wantErr)
			assert.ErrorIs(t, err, shared.ErrConflict)
			assert.True(t, stillThere)
		})
	}
}
