package order

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/truckdispatch/internal/delivery"
	"github.com/odyssey-erp/truckdispatch/internal/shared"
)

type fixture struct {
	repo    *memoryRepo
	cache   *countingCache
	svc     *Service
	client  Client
	product uuid.UUID
	actor   uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{repo: newMemoryRepo(), cache: &countingCache{}, actor: uuid.New()}
	f.svc = NewService(f.repo, f.cache, slog.New(slog.NewTextHandler(io.Discard, nil)))
	f.svc.now = func() time.Time { return time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC) }
	f.client = f.repo.addClient("Béton Express", 3)
	f.product = f.repo.addProduct()
	return f
}

func (f *fixture) create(t *testing.T, quantity float64) *Order {
	t.Helper()
	o, err := f.svc.Create(context.Background(), CreateInput{
		ClientID:      f.client.ID,
		ProductID:     f.product,
		Quantity:      quantity,
		RequestedDate: time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	return o
}

func ptr[T any](v T) *T { return &v }

func TestCreateOrder(t *testing.T) {
	f := newFixture(t)
	o := f.create(t, 12.3456)

	assert.Equal(t, delivery.OrderPending, o.Status)
	assert.InDelta(t, 12.346, o.Quantity, 1e-9)
	stored, ok := f.repo.order(o.ID)
	require.True(t, ok)
	assert.Equal(t, *o, stored)
	assert.Equal(t, 1, f.cache.count())
}

func TestCreateOrderRejectsBadInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	day := time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC)

	_, err := f.svc.Create(ctx, CreateInput{ClientID: f.client.ID, ProductID: f.product, Quantity: 0.0001, RequestedDate: day})
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = f.svc.Create(ctx, CreateInput{ClientID: uuid.New(), ProductID: f.product, Quantity: 5, RequestedDate: day})
	assert.ErrorIs(t, err, ErrUnknownReference)
	assert.ErrorIs(t, err, shared.ErrValidation)
	assert.Zero(t, f.cache.count())
}

func TestUpdateOrderFields(t *testing.T) {
	f := newFixture(t)
	o := f.create(t, 10)
	at, err := delivery.ParseTimeOfDay("14:30")
	require.NoError(t, err)

	updated, err := f.svc.Update(context.Background(), o.ID, UpdateInput{
		Quantity:      ptr(7.5),
		RequestedDate: ptr(time.Date(2026, 3, 13, 0, 0, 0, 0, time.UTC)),
		RequestedTime: &at,
	})
	require.NoError(t, err)
	assert.InDelta(t, 7.5, updated.Quantity, 1e-9)
	assert.Equal(t, 13, updated.RequestedDate.Day())
	require.NotNil(t, updated.RequestedTime)
	assert.Equal(t, "14:30:00", updated.RequestedTime.String())
}

func TestUpdateOrderLinkedToActiveDelivery(t *testing.T) {
	f := newFixture(t)
	o := f.create(t, 10)
	f.repo.link(o.ID, delivery.StatusScheduled)
	ctx := context.Background()

	_, err := f.svc.Update(ctx, o.ID, UpdateInput{Quantity: ptr(4.0)})
	require.ErrorIs(t, err, ErrOrderInUse)
	assert.ErrorIs(t, err, shared.ErrConflict)

	_, err = f.svc.Update(ctx, o.ID, UpdateInput{Status: ptr(delivery.OrderCancelled)})
	assert.ErrorIs(t, err, ErrOrderInUse)

	stored, _ := f.repo.order(o.ID)
	assert.InDelta(t, 10.0, stored.Quantity, 1e-9)
	assert.Equal(t, delivery.OrderPending, stored.Status)

	// the requested date is planning metadata and stays editable
	_, err = f.svc.Update(ctx, o.ID, UpdateInput{RequestedDate: ptr(time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC))})
	assert.NoError(t, err)
}

func TestUpdateOrderStatusCancelAndReopen(t *testing.T) {
	f := newFixture(t)
	o := f.create(t, 10)
	ctx := context.Background()

	_, err := f.svc.Update(ctx, o.ID, UpdateInput{Status: ptr(delivery.OrderDelivered)})
	assert.ErrorIs(t, err, ErrStatusManaged)

	cancelled, err := f.svc.Update(ctx, o.ID, UpdateInput{Status: ptr(delivery.OrderCancelled)})
	require.NoError(t, err)
	assert.Equal(t, delivery.OrderCancelled, cancelled.Status)

	_, err = f.svc.Update(ctx, o.ID, UpdateInput{Quantity: ptr(3.0)})
	assert.ErrorIs(t, err, ErrOrderClosed)

	reopened, err := f.svc.Update(ctx, o.ID, UpdateInput{Status: ptr(delivery.OrderPending)})
	require.NoError(t, err)
	assert.Equal(t, delivery.OrderPending, reopened.Status)
}

func TestDeleteOrder(t *testing.T) {
	tests := []struct {
		name    string
		links   []delivery.DeliveryStatus
		wantErr error
	}{
		{name: "unlinked", links: nil},
		{name: "scheduled delivery", links: []delivery.DeliveryStatus{delivery.StatusScheduled}, wantErr: ErrOrderInUse},
		{name: "delivery on the road", links: []delivery.DeliveryStatus{delivery.StatusCancelled, delivery.StatusInProgress}, wantErr: ErrOrderInUse},
		{name: "past deliveries only", links: []delivery.DeliveryStatus{delivery.StatusDelivered}, wantErr: ErrOrderHasHistory},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			o := f.create(t, 10)
			for _, s := range tt.links {
				f.repo.link(o.ID, s)
			}

			err := f.svc.Delete(context.Background(), o.ID)
			_, stillThere := f.repo.order(o.ID)
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

func TestDeleteMissingOrder(t *testing.T) {
	f := newFixture(t)
	err := f.svc.Delete(context.Background(), uuid.New())
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestClients(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateClient(ctx, ClientInput{Name: ptr("  ")})
	assert.ErrorIs(t, err, ErrNameRequired)
	_, err = f.svc.CreateClient(ctx, ClientInput{Name: ptr("Mairie"), PriorityLevel: ptr(0)})
	assert.ErrorIs(t, err, ErrInvalidPriority)

	c, err := f.svc.CreateClient(ctx, ClientInput{Name: ptr(" Mairie de Lyon ")})
	require.NoError(t, err)
	assert.Equal(t, "Mairie de Lyon", c.Name)
	assert.Equal(t, 1, c.PriorityLevel)

	before := f.cache.count()
	c, err = f.svc.UpdateClient(ctx, c.ID, ClientInput{PriorityLevel: ptr(5)})
	require.NoError(t, err)
	assert.Equal(t, 5, c.PriorityLevel)
	assert.Equal(t, before+1, f.cache.count())

	clients, err := f.svc.ListClients(ctx)
	require.NoError(t, err)
	require.Len(t, clients, 2)
	assert.Equal(t, "Mairie de Lyon", clients[0].Name)

	_, err = f.svc.UpdateClient(ctx, uuid.New(), ClientInput{PriorityLevel: ptr(2)})
	assert.ErrorIs(t, err, ErrClientNotFound)
}
