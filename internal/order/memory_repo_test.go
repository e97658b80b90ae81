package order

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/truckdispatch/internal/delivery"
)

// memoryRepo is an in-memory Repository. WithTx restores the previous state
// when the callback fails.
type memoryRepo struct {
	mu       sync.Mutex
	orders   map[uuid.UUID]Order
	clients  map[uuid.UUID]Client
	products map[uuid.UUID]struct{}
	// delivery statuses carrying each order
	links map[uuid.UUID][]delivery.DeliveryStatus
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		orders:   map[uuid.UUID]Order{},
		clients:  map[uuid.UUID]Client{},
		products: map[uuid.UUID]struct{}{},
		links:    map[uuid.UUID][]delivery.DeliveryStatus{},
	}
}

func (r *memoryRepo) addClient(name string, priority int) Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := Client{ID: uuid.New(), Name: name, PriorityLevel: priority}
	r.clients[c.ID] = c
	return c
}

func (r *memoryRepo) addProduct() uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := uuid.New()
	r.products[id] = struct{}{}
	return id
}

func (r *memoryRepo) link(orderID uuid.UUID, status delivery.DeliveryStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.links[orderID] = append(r.links[orderID], status)
}

func (r *memoryRepo) order(id uuid.UUID) (Order, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	return o, ok
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	orders, clients := maps.Clone(r.orders), maps.Clone(r.clients)
	if err := fn(ctx, &memoryTx{r: r}); err != nil {
		r.orders, r.clients = orders, clients
		return err
	}
	return nil
}

func (r *memoryRepo) Get(_ context.Context, id uuid.UUID) (*Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	return &o, nil
}

func (r *memoryRepo) List(_ context.Context, filter ListFilter) ([]Order, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Order
	for _, o := range r.orders {
		if filter.Status != nil && o.Status != *filter.Status {
			continue
		}
		if filter.ClientID != nil && o.ClientID != *filter.ClientID {
			continue
		}
		if filter.Date != nil && !o.RequestedDate.Equal(*filter.Date) {
			continue
		}
		out = append(out, o)
	}
	slices.SortFunc(out, func(a, b Order) int { return a.CreatedAt.Compare(b.CreatedAt) })
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

func (r *memoryRepo) ListClients(context.Context) ([]Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := slices.Collect(maps.Values(r.clients))
	slices.SortFunc(out, func(a, b Client) int { return b.PriorityLevel - a.PriorityLevel })
	return out, nil
}

// memoryTx runs with memoryRepo.mu held.
type memoryTx struct {
	r *memoryRepo
}

func (t *memoryTx) LockOrder(_ context.Context, id uuid.UUID) (*Order, error) {
	o, ok := t.r.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	return &o, nil
}

func (t *memoryTx) InsertOrder(_ context.Context, o Order) error {
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now()
	}
	t.r.orders[o.ID] = o
	return nil
}

func (t *memoryTx) UpdateOrder(_ context.Context, o Order) error {
	if _, ok := t.r.orders[o.ID]; !ok {
		return ErrOrderNotFound
	}
	t.r.orders[o.ID] = o
	return nil
}

func (t *memoryTx) DeleteOrder(_ context.Context, id uuid.UUID) error {
	if len(t.r.links[id]) > 0 {
		return errors.New("delivery_orders references order")
	}
	delete(t.r.orders, id)
	return nil
}

func (t *memoryTx) Links(_ context.Context, orderID uuid.UUID) (LinkSummary, error) {
	var sum LinkSummary
	for _, status := range t.r.links[orderID] {
		sum.Total++
		if status.IsActive() {
			sum.Active++
		}
	}
	return sum, nil
}

func (t *memoryTx) ReferencesExist(_ context.Context, clientID, productID uuid.UUID) (bool, error) {
	_, client := t.r.clients[clientID]
	_, product := t.r.products[productID]
	return client && product, nil
}

func (t *memoryTx) LockClient(_ context.Context, id uuid.UUID) (*Client, error) {
	c, ok := t.r.clients[id]
	if !ok {
		return nil, ErrClientNotFound
	}
	return &c, nil
}

func (t *memoryTx) InsertClient(_ context.Context, c Client) error {
	t.r.clients[c.ID] = c
	return nil
}

func (t *memoryTx) UpdateClient(_ context.Context, c Client) error {
	t.r.clients[c.ID] = c
	return nil
}

// countingCache records cache invalidations.
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
