package fleet

import (
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/truckdispatch/internal/shared"
)

// CreateTruckRequest is the JSON body of POST /trucks.
type CreateTruckRequest struct {
	PlateNumber string   `json:"plate_number" validate:"required,max=32"`
	Capacity    *float64 `json:"capacity,omitempty" validate:"omitempty,gte=0"`
	DriverName  *string  `json:"driver_name,omitempty" validate:"omitempty,max=120"`
}

// UpdateTruckRequest is the JSON body of PATCH /trucks/{id}.
type UpdateTruckRequest struct {
	PlateNumber *string  `json:"plate_number,omitempty" validate:"omitempty,max=32"`
	Capacity    *float64 `json:"capacity,omitempty" validate:"omitempty,gte=0"`
	DriverName  *string  `json:"driver_name,omitempty" validate:"omitempty,max=120"`
}

// TruckResponse is the JSON view of a truck.
type TruckResponse struct {
	ID          uuid.UUID `json:"id"`
	PlateNumber string    `json:"plate_number"`
	Capacity    float64   `json:"capacity"`
	DriverName  *string   `json:"driver_name"`
	CreatedAt   time.Time `json:"created_at"`
}

// ListResponse is a page of trucks.
type ListResponse struct {
	Items      []TruckResponse   `json:"items"`
	Pagination shared.Pagination `json:"pagination"`
}

func toResponse(t Truck) TruckResponse {
	return TruckResponse{
		ID:          t.ID,
		PlateNumber: t.PlateNumber,
		Capacity:    t.Capacity,
		DriverName:  t.DriverName,
		CreatedAt:   t.CreatedAt,
	}
}
