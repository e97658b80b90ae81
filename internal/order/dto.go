package order

import (
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/truckdispatch/internal/delivery"
	"github.com/odyssey-erp/truckdispatch/internal/shared"
)

// CreateOrderRequest is the JSON body of POST /orders.
type CreateOrderRequest struct {
	ClientID      uuid.UUID `json:"client_id" validate:"required"`
	ProductID     uuid.UUID `json:"product_id" validate:"required"`
	Quantity      float64   `json:"quantity" validate:"gt=0"`
	RequestedDate string    `json:"requested_date" validate:"required,date"`
	RequestedTime string    `json:"requested_time,omitempty" validate:"omitempty,timeofday"`
}

// UpdateOrderRequest is the JSON body of PATCH /orders/{id}.
type UpdateOrderRequest struct {
	ClientID      *uuid.UUID `json:"client_id,omitempty"`
	ProductID     *uuid.UUID `json:"product_id,omitempty"`
	Quantity      *float64   `json:"quantity,omitempty" validate:"omitempty,gt=0"`
	RequestedDate *string    `json:"requested_date,omitempty" validate:"omitempty,date"`
	RequestedTime *string    `json:"requested_time,omitempty" validate:"omitempty,timeofday"`
	Status        *string    `json:"status,omitempty" validate:"omitempty,max=32"`
}

// ClientRequest is the JSON body of POST /clients and PATCH /clients/{id}.
type ClientRequest struct {
	Name          *string `json:"name,omitempty" validate:"omitempty,max=255"`
	PriorityLevel *int    `json:"priority_level,omitempty" validate:"omitempty,min=1"`
}

// OrderResponse is the JSON view of an order.
type OrderResponse struct {
	ID            uuid.UUID            `json:"id"`
	ClientID      uuid.UUID            `json:"client_id"`
	ProductID     uuid.UUID            `json:"product_id"`
	Quantity      float64              `json:"quantity"`
	RequestedDate string               `json:"requested_date"`
	RequestedTime *string              `json:"requested_time"`
	Status        delivery.OrderStatus `json:"status"`
	CreatedAt     time.Time            `json:"created_at"`
}

// ClientResponse is the JSON view of a client.
type ClientResponse struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	PriorityLevel int       `json:"priority_level"`
	CreatedAt     time.Time `json:"created_at"`
}

// ListResponse is a page of orders.
type ListResponse struct {
	Items      []OrderResponse   `json:"items"`
	Pagination shared.Pagination `json:"pagination"`
}
