package fleet

import (
	"context"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/odyssey-erp/truckdispatch/internal/delivery"
)

type trip struct {
	status delivery.DeliveryStatus
	load   float64
}

// memoryRepo is an in-memory Repository. WithTx restores the previous state
// when the callback fails.
type memoryRepo struct {
	mu     sync.Mutex
	trucks map[uuid.UUID]Truck
	trips  map[uuid.UUID][]trip
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{trucks: map[uuid.UUID]Truck{}, trips: map[uuid.UUID][]trip{}}
}

func (r *memoryRepo) book(truckID uuid.UUID, status delivery.DeliveryStatus, load float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trips[truckID] = append(r.trips[truckID], trip{status: status, load: load})
}

func (r *memoryRepo) truck(id uuid.UUID) (Truck, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.trucks[id]
	return t, ok
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	trucks := maps.Clone(r.trucks)
	if err := fn(ctx, &memoryTx{r: r}); err != nil {
		r.trucks = trucks
		return err
	}
	return nil
}

func (r *memoryRepo) Get(_ context.Context, id uuid.UUID) (*Truck, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.trucks[id]
	if !ok {
		return nil, ErrTruckNotFound
	}
	return &t, nil
}

func (r *memoryRepo) List(_ context.Context, filter ListFilter) ([]Truck, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := slices.Collect(maps.Values(r.trucks))
	slices.SortFunc(out, func(a, b Truck) int { return strings.Compare(a.PlateNumber, b.PlateNumber) })
	total := len(out)
	if filter.Offset < len(out) {
		out = out[filter.Offset:]
	} else {
		out = nil
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, total, nil
}

// memoryTx runs with memoryRepo.mu held.
type memoryTx struct {
	r *memoryRepo
}

func (t *memoryTx) LockTruck(_ context.Context, id uuid.UUID) (*Truck, error) {
	tr, ok := t.r.trucks[id]
	if !ok {
		return nil, ErrTruckNotFound
	}
	return &tr, nil
}

func (t *memoryTx) plateTaken(plate string, except uuid.UUID) bool {
	for id, tr := range t.r.trucks {
		if id != except && tr.PlateNumber == plate {
			return true
		}
	}
	return false
}

func (t *memoryTx) InsertTruck(_ context.Context, tr Truck) error {
	if t.plateTaken(tr.PlateNumber, tr.ID) {
		return ErrDuplicatePlate
	}
	t.r.trucks[tr.ID] = tr
	return nil
}

func (t *memoryTx) UpdateTruck(_ context.Context, tr Truck) error {
	if _, ok := t.r.trucks[tr.ID]; !ok {
		return ErrTruckNotFound
	}
	if t.plateTaken(tr.PlateNumber, tr.ID) {
		return ErrDuplicatePlate
	}
	t.r.trucks[tr.ID] = tr
	return nil
}

func (t *memoryTx) DeleteTruck(_ context.Context, id uuid.UUID) error {
	if len(t.r.trips[id]) > 0 {
		return ErrTruckHasHistory
	}
	delete(t.r.trucks, id)
	return nil
}

func (t *memoryTx) Usage(_ context.Context, truckID uuid.UUID) (Usage, error) {
	var u Usage
	for _, tr := range t.r.trips[truckID] {
		u.Total++
		if tr.status.IsActive() {
			u.Active++
			u.MaxActiveLoad = max(u.MaxActiveLoad, tr.load)
		}
	}
	return u, nil
}

type countingCache struct {
	mu    sync.Mutex
	bumps int
}

func (c *countingCache) Bump(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bumps++
	return nil
}

func (c *countingCache) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bumps
}
