package order

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/truckdispatch/internal/delivery"
)

// Invalidator drops cached schedule proposals. *schedule.Cache satisfies it.
type Invalidator interface {
	Bump(ctx context.Context) error
}

// CreateInput carries a validated create request.
type CreateInput struct {
	ClientID      uuid.UUID
	ProductID     uuid.UUID
	Quantity      float64
	RequestedDate time.Time
	RequestedTime *delivery.TimeOfDay
}

// UpdateInput edits an order. Nil fields keep their current value.
type UpdateInput struct {
	ClientID      *uuid.UUID
	ProductID     *uuid.UUID
	Quantity      *float64
	RequestedDate *time.Time
	RequestedTime *delivery.TimeOfDay
	Status        *delivery.OrderStatus
}

// touchesLoad reports whether the edit changes what a delivery carries.
func (in UpdateInput) touchesLoad() bool {
	return in.ClientID != nil || in.ProductID != nil || in.Quantity != nil
}

// ClientInput creates or edits a client. Nil fields keep their current value.
type ClientInput struct {
	Name          *string
	PriorityLevel *int
}

// Service manages orders and the clients that place them.
type Service struct {
	repo   Repository
	cache  Invalidator
	now    func() time.Time
	logger *slog.Logger
}

// NewService creates a new order service. cache and logger may be nil.
func NewService(repo Repository, cache Invalidator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:   repo,
		cache:  cache,
		now:    time.Now,
		logger: logger.With(slog.String("component", "order")),
	}
}

// Get returns one order.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Order, error) {
	o, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	return o, nil
}

// List returns orders and the total matching count.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Order, int, error) {
	return s.repo.List(ctx, filter)
}

// Create persists a pending order.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Order, error) {
	q := roundQuantity(in.Quantity)
	if q <= 0 {
		return nil, ErrInvalidQuantity
	}
	o := Order{
		ID:            uuid.New(),
		ClientID:      in.ClientID,
		ProductID:     in.ProductID,
		Quantity:      q,
		RequestedDate: in.RequestedDate,
		RequestedTime: in.RequestedTime,
		Status:        delivery.OrderPending,
		CreatedAt:     s.now().UTC(),
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		ok, err := tx.ReferencesExist(ctx, o.ClientID, o.ProductID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrUnknownReference
		}
		return tx.InsertOrder(ctx, o)
	})
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}
	s.logger.Info("order created", slog.String("order_id", o.ID.String()), slog.Float64("quantity", o.Quantity))
	s.invalidate(ctx)
	return &o, nil
}

// Update edits an order. Quantity, client and product are frozen while the
// order rides an active delivery; status is limited to cancel and reopen.
func (s *Service) Update(ctx context.Context, id uuid.UUID, in UpdateInput) (*Order, error) {
	if in.Quantity != nil && roundQuantity(*in.Quantity) <= 0 {
		return nil, ErrInvalidQuantity
	}
	if in.Status != nil && *in.Status != delivery.OrderPending && *in.Status != delivery.OrderCancelled {
		return nil, fmt.Errorf("%q: %w", *in.Status, ErrStatusManaged)
	}

	var updated Order
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		o, err := tx.LockOrder(ctx, id)
		if err != nil {
			return err
		}
		reopen := in.Status != nil && *in.Status == delivery.OrderPending && o.Status == delivery.OrderCancelled
		if o.Status.IsClosed() && !reopen {
			return ErrOrderClosed
		}
		links, err := tx.Links(ctx, id)
		if err != nil {
			return err
		}
		if links.Active > 0 && (in.touchesLoad() || in.Status != nil) {
			return ErrOrderInUse
		}

		if in.ClientID != nil {
			o.ClientID = *in.ClientID
		}
		if in.ProductID != nil {
			o.ProductID = *in.ProductID
		}
		if in.Quantity != nil {
			o.Quantity = roundQuantity(*in.Quantity)
		}
		if in.RequestedDate != nil {
			o.RequestedDate = *in.RequestedDate
		}
		if in.RequestedTime != nil {
			o.RequestedTime = in.RequestedTime
		}
		if in.Status != nil {
			o.Status = *in.Status
		}
		if in.ClientID != nil || in.ProductID != nil {
			ok, err := tx.ReferencesExist(ctx, o.ClientID, o.ProductID)
			if err != nil {
				return err
			}
			if !ok {
				return ErrUnknownReference
			}
		}
		if err := tx.UpdateOrder(ctx, *o); err != nil {
			return err
		}
		updated = *o
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("update order %s: %w", id, err)
	}
	s.invalidate(ctx)
	return &updated, nil
}

// Delete removes an order that no delivery has ever carried.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.LockOrder(ctx, id); err != nil {
			return err
		}
		links, err := tx.Links(ctx, id)
		if err != nil {
			return err
		}
		switch {
		case links.Active > 0:
			return ErrOrderInUse
		case links.Total > 0:
			return ErrOrderHasHistory
		}
		return tx.DeleteOrder(ctx, id)
	})
	if err != nil {
		return fmt.Errorf("delete order %s: %w", id, err)
	}
	s.logger.Info("order deleted", slog.String("order_id", id.String()))
	s.invalidate(ctx)
	return nil
}

// ListClients returns every client, highest priority first.
func (s *Service) ListClients(ctx context.Context) ([]Client, error) {
	return s.repo.ListClients(ctx)
}

// CreateClient registers a client. PriorityLevel defaults to 1.
func (s *Service) CreateClient(ctx context.Context, in ClientInput) (*Client, error) {
	c := Client{ID: uuid.New(), PriorityLevel: 1, CreatedAt: s.now().UTC()}
	if in.Name != nil {
		c.Name = strings.TrimSpace(*in.Name)
	}
	if c.Name == "" {
		return nil, ErrNameRequired
	}
	if in.PriorityLevel != nil {
		c.PriorityLevel = *in.PriorityLevel
	}
	if c.PriorityLevel < 1 {
		return nil, ErrInvalidPriority
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.InsertClient(ctx, c)
	})
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}
	return &c, nil
}

// UpdateClient renames a client or changes its priority level.
func (s *Service) UpdateClient(ctx context.Context, id uuid.UUID, in ClientInput) (*Client, error) {
	if in.Name != nil && strings.TrimSpace(*in.Name) == "" {
		return nil, ErrNameRequired
	}
	if in.PriorityLevel != nil && *in.PriorityLevel < 1 {
		return nil, ErrInvalidPriority
	}
	var updated Client
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		c, err := tx.LockClient(ctx, id)
		if err != nil {
			return err
		}
		if in.Name != nil {
			c.Name = strings.TrimSpace(*in.Name)
		}
		if in.PriorityLevel != nil {
			c.PriorityLevel = *in.PriorityLevel
		}
		if err := tx.UpdateClient(ctx, *c); err != nil {
			return err
		}
		updated = *c
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("update client %s: %w", id, err)
	}
	if in.PriorityLevel != nil {
		s.invalidate(ctx)
	}
	return &updated, nil
}

// invalidate drops cached proposals. A failure only delays freshness until
// the cache TTL expires.
func (s *Service) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("schedule cache bump failed", slog.Any("error", err))
	}
}

func roundQuantity(q float64) float64 {
	return math.Round(q*1000) / 1000
}
