// Package fleet manages the trucks deliveries are booked on.
package fleet

import (
	"time"

	"github.com/google/uuid"
)

// Truck is a vehicle of the own fleet. Capacity is in tons; zero means
// unknown and disables the capacity check.
type Truck struct {
	ID          uuid.UUID
	PlateNumber string
	Capacity    float64
	DriverName  *string
	CreatedAt   time.Time
}

// Usage summarizes the deliveries booked on a truck.
type Usage struct {
	Active int
	Total  int
	// heaviest active trip, in tons
	MaxActiveLoad float64
}

// ListFilter narrows a truck listing.
type ListFilter struct {
	Limit  int
	Offset int
}
