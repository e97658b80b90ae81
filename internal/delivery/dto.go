package delivery

import (
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/truckdispatch/internal/shared"
)

// CreateDeliveryRequest is the JSON body of POST /deliveries.
type CreateDeliveryRequest struct {
	TruckID            *uuid.UUID         `json:"truck_id,omitempty"`
	ExternalTruckLabel *string            `json:"external_truck_label,omitempty" validate:"omitempty,max=120"`
	Orders             []OrderLineRequest `json:"orders" validate:"required,min=1,dive"`
	ScheduledDate      string             `json:"scheduled_date,omitempty" validate:"omitempty,date"`
	ScheduledTime      string             `json:"scheduled_time,omitempty" validate:"omitempty,timeofday"`
	Destination        string             `json:"destination" validate:"max=255"`
	Notes              *string            `json:"notes,omitempty"`
	Status             string             `json:"status,omitempty" validate:"omitempty,deliverystatus"`
}

// OrderLineRequest selects an order and, optionally, the tons to load.
type OrderLineRequest struct {
	OrderID  uuid.UUID `json:"order_id" validate:"required"`
	Quantity *float64  `json:"quantity,omitempty" validate:"omitempty,gt=0"`
}

// UpdateDeliveryRequest is the JSON body of PATCH /deliveries/{id}.
type UpdateDeliveryRequest struct {
	Status             *string             `json:"status,omitempty" validate:"omitempty,deliverystatus"`
	ScheduledDate      *string             `json:"scheduled_date,omitempty" validate:"omitempty,date"`
	ScheduledTime      *string             `json:"scheduled_time,omitempty" validate:"omitempty,timeofday"`
	TruckID            *uuid.UUID          `json:"truck_id,omitempty"`
	ExternalTruckLabel *string             `json:"external_truck_label,omitempty" validate:"omitempty,max=120"`
	Orders             *[]OrderLineRequest `json:"orders,omitempty" validate:"omitempty,min=1,dive"`
	Destination        *string             `json:"destination,omitempty" validate:"omitempty,max=255"`
	Notes              *string             `json:"notes,omitempty"`
	Note               string              `json:"note,omitempty" validate:"max=500"`
}

// UpdateStatusRequest is the JSON body of POST /deliveries/{id}/status.
type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required,deliverystatus"`
	Note   string `json:"note,omitempty" validate:"max=500"`
}

// RescheduleRequest is the JSON body of POST /deliveries/{id}/reschedule.
type RescheduleRequest struct {
	ScheduledDate      *string    `json:"scheduled_date,omitempty" validate:"omitempty,date"`
	ScheduledTime      *string    `json:"scheduled_time,omitempty" validate:"omitempty,timeofday"`
	TruckID            *uuid.UUID `json:"truck_id,omitempty"`
	ExternalTruckLabel *string    `json:"external_truck_label,omitempty" validate:"omitempty,max=120"`
	Note               string     `json:"note,omitempty" validate:"max=500"`
}

// UpdateOrdersRequest is the JSON body of PUT /deliveries/{id}/orders.
type UpdateOrdersRequest struct {
	Orders []OrderLineRequest `json:"orders" validate:"required,min=1,dive"`
	Note   string             `json:"note,omitempty" validate:"max=500"`
}

// DeliveryResponse is the JSON view of a delivery.
type DeliveryResponse struct {
	ID                 uuid.UUID         `json:"id"`
	TruckID            *uuid.UUID        `json:"truck_id"`
	ExternalTruckLabel *string           `json:"external_truck_label"`
	ScheduledDate      *string           `json:"scheduled_date"`
	ScheduledTime      *string           `json:"scheduled_time"`
	Status             DeliveryStatus    `json:"status"`
	Delayed            bool              `json:"delayed"`
	Destination        string            `json:"destination"`
	Notes              *string           `json:"notes"`
	LastUpdated        time.Time         `json:"last_updated"`
	CreatedAt          time.Time         `json:"created_at"`
	TotalQuantity      *float64          `json:"total_quantity,omitempty"`
	Orders             []LinkResponse    `json:"orders,omitempty"`
	History            []HistoryResponse `json:"history,omitempty"`
}

// LinkResponse is the JSON view of a ledger link.
type LinkResponse struct {
	OrderID          uuid.UUID `json:"order_id"`
	Quantity         float64   `json:"quantity"`
	QuantityDeducted bool      `json:"quantity_deducted"`
}

// HistoryResponse is the JSON view of a history entry.
type HistoryResponse struct {
	ID           uuid.UUID      `json:"id"`
	UserID       *uuid.UUID     `json:"user_id"`
	Status       DeliveryStatus `json:"status"`
	ChangeType   ChangeType     `json:"change_type"`
	Note         string         `json:"note"`
	PreviousData map[string]any `json:"previous_data,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// ListResponse is a page of deliveries.
type ListResponse struct {
	Items      []DeliveryResponse `json:"items"`
	Pagination shared.Pagination  `json:"pagination"`
}
