package order

import (
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/truckdispatch/internal/delivery"
)

// Order is a client request for a quantity of product. Quantity is the
// remaining balance; the delivery ledger draws it down as trips complete.
type Order struct {
	ID            uuid.UUID
	ClientID      uuid.UUID
	ProductID     uuid.UUID
	Quantity      float64
	RequestedDate time.Time
	RequestedTime *delivery.TimeOfDay
	Status        delivery.OrderStatus
	CreatedAt     time.Time
}

// Client places orders. PriorityLevel weighs its orders in schedule proposals.
type Client struct {
	ID            uuid.UUID
	Name          string
	PriorityLevel int
	CreatedAt     time.Time
}

// LinkSummary counts the deliveries an order is loaded on.
type LinkSummary struct {
	Active int
	Total  int
}

// ListFilter narrows an order listing.
type ListFilter struct {
	Status   *delivery.OrderStatus
	ClientID *uuid.UUID
	Date     *time.Time
	Limit    int
	Offset   int
}
