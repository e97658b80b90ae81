package delivery

import (
	"bytes"
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// memoryRepo is an in-memory Repository. WithTx snapshots the state and restores
// it when the callback fails, which gives the all-or-nothing behavior of a
// database transaction.
type memoryRepo struct {
	mu         sync.Mutex
	deliveries map[uuid.UUID]Delivery
	orders     map[uuid.UUID]Order
	trucks     map[uuid.UUID]Truck
	links      map[uuid.UUID]map[uuid.UUID]Link
	history    []HistoryEntry
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		deliveries: map[uuid.UUID]Delivery{},
		orders:     map[uuid.UUID]Order{},
		trucks:     map[uuid.UUID]Truck{},
		links:      map[uuid.UUID]map[uuid.UUID]Link{},
	}
}

func (r *memoryRepo) addTruck(capacity float64) Truck {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := Truck{ID: uuid.New(), PlateNumber: "TR-" + uuid.NewString()[:6], Capacity: capacity}
	r.trucks[t.ID] = t
	return t
}

func (r *memoryRepo) addOrder(quantity float64) Order {
	r.mu.Lock()
	defer r.mu.Unlock()
	o := Order{
		ID:            uuid.New(),
		ClientID:      uuid.New(),
		ProductID:     uuid.New(),
		Quantity:      quantity,
		RequestedDate: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		Status:        OrderPending,
		Priority:      1,
	}
	r.orders[o.ID] = o
	return o
}

func (r *memoryRepo) order(id uuid.UUID) Order {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.orders[id]
}

func (r *memoryRepo) historyCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.history)
}

func (r *memoryRepo) deliveryCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.deliveries)
}

type memorySnapshot struct {
	deliveries map[uuid.UUID]Delivery
	orders     map[uuid.UUID]Order
	trucks     map[uuid.UUID]Truck
	links      map[uuid.UUID]map[uuid.UUID]Link
	history    []HistoryEntry
}

func (r *memoryRepo) snapshot() memorySnapshot {
	links := make(map[uuid.UUID]map[uuid.UUID]Link, len(r.links))
	for k, v := range r.links {
		links[k] = maps.Clone(v)
	}
	return memorySnapshot{
		deliveries: maps.Clone(r.deliveries),
		orders:     maps.Clone(r.orders),
		trucks:     maps.Clone(r.trucks),
		links:      links,
		history:    slices.Clone(r.history),
	}
}

func (r *memoryRepo) restore(s memorySnapshot) {
	r.deliveries = s.deliveries
	r.orders = s.orders
	r.trucks = s.trucks
	r.links = s.links
	r.history = s.history
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	snap := r.snapshot()
	if err := fn(ctx, &memoryTx{r: r}); err != nil {
		r.restore(snap)
		return err
	}
	return nil
}

func (r *memoryRepo) Get(_ context.Context, id uuid.UUID) (*Detail, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return (&memoryTx{r: r}).GetDetail(context.Background(), id)
}

func (r *memoryRepo) List(_ context.Context, filter ListFilter) ([]Delivery, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Delivery
	for _, d := range r.deliveries {
		if filter.Status != nil && d.Status != *filter.Status {
			continue
		}
		if filter.TruckID != nil && (d.TruckID == nil || *d.TruckID != *filter.TruckID) {
			continue
		}
		if filter.Date != nil && (d.ScheduledDate == nil || !d.ScheduledDate.Equal(*filter.Date)) {
			continue
		}
		out = append(out, d)
	}
	slices.SortFunc(out, func(a, b Delivery) int { return a.CreatedAt.Compare(b.CreatedAt) })
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

func (r *memoryRepo) ListOverdueCandidates(_ context.Context, until time.Time) ([]Delivery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Delivery
	for _, d := range r.deliveries {
		if d.Status.IsActive() && !d.Delayed && d.ScheduledDate != nil && !d.ScheduledDate.After(until) {
			out = append(out, d)
		}
	}
	return out, nil
}

// memoryTx runs with memoryRepo.mu held.
type memoryTx struct {
	r *memoryRepo
}

func (t *memoryTx) LockDelivery(_ context.Context, id uuid.UUID) (*Delivery, error) {
	d, ok := t.r.deliveries[id]
	if !ok {
		return nil, ErrDeliveryNotFound
	}
	return &d, nil
}

func (t *memoryTx) LockTruck(ctx context.Context, id uuid.UUID) (*Truck, error) {
	return t.GetTruck(ctx, id)
}

func (t *memoryTx) GetTruck(_ context.Context, id uuid.UUID) (*Truck, error) {
	tr, ok := t.r.trucks[id]
	if !ok {
		return nil, ErrTruckNotFound
	}
	return &tr, nil
}

func (t *memoryTx) GetDetail(ctx context.Context, id uuid.UUID) (*Detail, error) {
	d, ok := t.r.deliveries[id]
	if !ok {
		return nil, ErrDeliveryNotFound
	}
	links, _ := t.ListLinks(ctx, id)
	var history []HistoryEntry
	for i := len(t.r.history) - 1; i >= 0; i-- {
		if t.r.history[i].DeliveryID == id {
			history = append(history, t.r.history[i])
		}
	}
	return &Detail{Delivery: d, Links: links, History: history}, nil
}

func (t *memoryTx) CountActiveInSlot(_ context.Context, truckID uuid.UUID, date time.Time, at TimeOfDay, exclude uuid.UUID) (int, error) {
	n := 0
	for _, d := range t.r.deliveries {
		if d.ID == exclude || !d.Status.IsActive() || !d.HasSlot() {
			continue
		}
		if *d.TruckID == truckID && d.ScheduledDate.Equal(date) && *d.ScheduledTime == at {
			n++
		}
	}
	return n, nil
}

func (t *memoryTx) InsertDelivery(_ context.Context, d Delivery) error {
	t.r.deliveries[d.ID] = d
	return nil
}

func (t *memoryTx) UpdateDelivery(_ context.Context, d Delivery) error {
	if _, ok := t.r.deliveries[d.ID]; !ok {
		return ErrDeliveryNotFound
	}
	d.CreatedAt = t.r.deliveries[d.ID].CreatedAt
	t.r.deliveries[d.ID] = d
	return nil
}

func (t *memoryTx) DeleteDelivery(_ context.Context, id uuid.UUID) error {
	if _, ok := t.r.deliveries[id]; !ok {
		return ErrDeliveryNotFound
	}
	delete(t.r.deliveries, id)
	return nil
}

func (t *memoryTx) AppendHistory(_ context.Context, e HistoryEntry) error {
	t.r.history = append(t.r.history, e)
	return nil
}

func (t *memoryTx) DeleteHistory(_ context.Context, deliveryID uuid.UUID) error {
	t.r.history = slices.DeleteFunc(t.r.history, func(e HistoryEntry) bool { return e.DeliveryID == deliveryID })
	return nil
}

func (t *memoryTx) LockOrder(_ context.Context, id uuid.UUID) (*Order, error) {
	o, ok := t.r.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	return &o, nil
}

func (t *memoryTx) SetOrderQuantity(_ context.Context, id uuid.UUID, quantity float64) error {
	o, ok := t.r.orders[id]
	if !ok {
		return ErrOrderNotFound
	}
	o.Quantity = quantity
	t.r.orders[id] = o
	return nil
}

func (t *memoryTx) SetOrderStatus(_ context.Context, id uuid.UUID, status OrderStatus) error {
	o, ok := t.r.orders[id]
	if !ok {
		return ErrOrderNotFound
	}
	o.Status = status
	t.r.orders[id] = o
	return nil
}

func (t *memoryTx) ActiveLinkedElsewhere(_ context.Context, orderID, exclude uuid.UUID) (bool, error) {
	for deliveryID, links := range t.r.links {
		if deliveryID == exclude {
			continue
		}
		if _, ok := links[orderID]; ok && t.r.deliveries[deliveryID].Status.IsActive() {
			return true, nil
		}
	}
	return false, nil
}

func (t *memoryTx) GetLink(_ context.Context, deliveryID, orderID uuid.UUID) (*Link, error) {
	l, ok := t.r.links[deliveryID][orderID]
	if !ok {
		return nil, ErrLinkNotFound
	}
	return &l, nil
}

func (t *memoryTx) UpsertLink(_ context.Context, l Link) error {
	if t.r.links[l.DeliveryID] == nil {
		t.r.links[l.DeliveryID] = map[uuid.UUID]Link{}
	}
	t.r.links[l.DeliveryID][l.OrderID] = l
	return nil
}

func (t *memoryTx) SetLinkDeducted(_ context.Context, deliveryID, orderID uuid.UUID, deducted bool) error {
	l, ok := t.r.links[deliveryID][orderID]
	if !ok {
		return ErrLinkNotFound
	}
	l.QuantityDeducted = deducted
	t.r.links[deliveryID][orderID] = l
	return nil
}

func (t *memoryTx) ListLinks(_ context.Context, deliveryID uuid.UUID) ([]Link, error) {
	out := slices.Collect(maps.Values(t.r.links[deliveryID]))
	slices.SortFunc(out, func(a, b Link) int { return bytes.Compare(a.OrderID[:], b.OrderID[:]) })
	return out, nil
}

func (t *memoryTx) DeleteLinks(_ context.Context, deliveryID uuid.UUID) error {
	delete(t.r.links, deliveryID)
	return nil
}
