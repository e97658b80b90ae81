package delivery

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// View is the read side the checks run against. Inside the lifecycle manager
// it is the transaction itself, so checks see uncommitted writes and locks.
type View interface {
	CountActiveInSlot(ctx context.Context, truckID uuid.UUID, date time.Time, at TimeOfDay, exclude uuid.UUID) (int, error)
	GetTruck(ctx context.Context, id uuid.UUID) (*Truck, error)
}

// Checker validates proposed deliveries. It never writes.
type Checker struct {
	loc *time.Location
	now func() time.Time
}

// NewChecker builds a checker evaluating schedules in loc. A nil clock means time.Now.
func NewChecker(loc *time.Location, now func() time.Time) Checker {
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return Checker{loc: loc, now: now}
}

// Now returns the checker's current time.
func (c Checker) Now() time.Time {
	return c.now()
}

// HasSlotConflict reports whether another active delivery holds the same
// truck, date and time. exclude may be uuid.Nil.
func (c Checker) HasSlotConflict(ctx context.Context, v View, truckID uuid.UUID, date time.Time, at TimeOfDay, exclude uuid.UUID) (bool, error) {
	n, err := v.CountActiveInSlot(ctx, truckID, date, at, exclude)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// IsInFuture reports whether date (plus at, when given) is strictly after now.
// A date without a time stands for the whole day and stays in the future
// until that day is over.
func (c Checker) IsInFuture(date time.Time, at *TimeOfDay) bool {
	y, m, d := date.Date()
	var moment time.Time
	if at == nil {
		moment = time.Date(y, m, d+1, 0, 0, 0, 0, c.loc)
	} else {
		moment = time.Date(y, m, d, 0, 0, 0, 0, c.loc).Add(at.Duration())
	}
	return moment.After(c.now())
}

// ScheduleInFuture applies IsInFuture to a delivery. Unscheduled deliveries
// cannot be late.
func (c Checker) ScheduleInFuture(d Delivery) bool {
	if d.ScheduledDate == nil {
		return true
	}
	return c.IsInFuture(*d.ScheduledDate, d.ScheduledTime)
}

// CapacityExceeded reports whether proposedTotal tons exceed the truck's
// capacity. Trucks with no recorded capacity never exceed.
func (c Checker) CapacityExceeded(ctx context.Context, v View, truckID uuid.UUID, proposedTotal float64) (bool, error) {
	truck, err := v.GetTruck(ctx, truckID)
	if err != nil {
		return false, err
	}
	if truck.Capacity <= 0 {
		return false, nil
	}
	return toUnits(proposedTotal) > toUnits(truck.Capacity), nil
}
