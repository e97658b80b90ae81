package fleet

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Invalidator drops cached schedule proposals. *schedule.Cache satisfies it.
type Invalidator interface {
	Bump(ctx context.Context) error
}

// TruckInput creates or edits a truck. Nil fields keep their current value;
// an empty DriverName clears the driver.
type TruckInput struct {
	PlateNumber *string
	Capacity    *float64
	DriverName  *string
}

// Service manages the truck register.
type Service struct {
	repo   Repository
	cache  Invalidator
	now    func() time.Time
	logger *slog.Logger
}

// NewService creates a new fleet service. cache and logger may be nil.
func NewService(repo Repository, cache Invalidator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:   repo,
		cache:  cache,
		now:    time.Now,
		logger: logger.With(slog.String("component", "fleet")),
	}
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Truck, error) {
	t, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get truck: %w", err)
	}
	return t, nil
}

func (s *Service) List(ctx context.Context, filter ListFilter) ([]Truck, int, error) {
	return s.repo.List(ctx, filter)
}

// Create registers a truck.
func (s *Service) Create(ctx context.Context, in TruckInput) (*Truck, error) {
	t := Truck{ID: uuid.New(), CreatedAt: s.now().UTC()}
	if err := apply(&t, in); err != nil {
		return nil, err
	}
	if t.PlateNumber == "" {
		return nil, ErrPlateRequired
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.InsertTruck(ctx, t)
	})
	if err != nil {
		return nil, fmt.Errorf("create truck: %w", err)
	}
	s.logger.Info("truck registered", slog.String("truck_id", t.ID.String()), slog.String("plate", t.PlateNumber))
	s.invalidate(ctx)
	return &t, nil
}

// Update edits a truck. A known capacity cannot drop below the heaviest
// active trip already booked on it.
func (s *Service) Update(ctx context.Context, id uuid.UUID, in TruckInput) (*Truck, error) {
	var updated Truck
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		t, err := tx.LockTruck(ctx, id)
		if err != nil {
			return err
		}
		if err := apply(t, in); err != nil {
			return err
		}
		if in.Capacity != nil && t.Capacity > 0 {
			usage, err := tx.Usage(ctx, id)
			if err != nil {
				return err
			}
			if toUnits(usage.MaxActiveLoad) > toUnits(t.Capacity) {
				return fmt.Errorf("capacity %.3f t, active load %.3f t: %w", t.Capacity, usage.MaxActiveLoad, ErrCapacityBelowLoad)
			}
		}
		if err := tx.UpdateTruck(ctx, *t); err != nil {
			return err
		}
		updated = *t
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("update truck %s: %w", id, err)
	}
	s.invalidate(ctx)
	return &updated, nil
}

// Delete removes a truck that was never booked.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.LockTruck(ctx, id); err != nil {
			return err
		}
		usage, err := tx.Usage(ctx, id)
		if err != nil {
			return err
		}
		switch {
		case usage.Active > 0:
			return ErrTruckInUse
		case usage.Total > 0:
			return ErrTruckHasHistory
		}
		return tx.DeleteTruck(ctx, id)
	})
	if err != nil {
		return fmt.Errorf("delete truck %s: %w", id, err)
	}
	s.logger.Info("truck deleted", slog.String("truck_id", id.String()))
	s.invalidate(ctx)
	return nil
}

func apply(t *Truck, in TruckInput) error {
	if in.PlateNumber != nil {
		plate := strings.ToUpper(strings.TrimSpace(*in.PlateNumber))
		if plate == "" {
			return ErrPlateRequired
		}
		t.PlateNumber = plate
	}
	if in.Capacity != nil {
		if *in.Capacity < 0 {
			return ErrInvalidCapacity
		}
		t.Capacity = math.Round(*in.Capacity*1000) / 1000
	}
	if in.DriverName != nil {
		if name := strings.TrimSpace(*in.DriverName); name != "" {
			t.DriverName = &name
		} else {
			t.DriverName = nil
		}
	}
	return nil
}

func (s *Service) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("schedule cache bump failed", slog.Any("error", err))
	}
}

func toUnits(q float64) int64 {
	return int64(math.Round(q * 1000))
}
