package delivery

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

const dateLayout = "2006-01-02"

// ParseDate parses a YYYY-MM-DD calendar date.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q must be YYYY-MM-DD", ErrInvalidDate, s)
	}
	return d, nil
}

// FormatDate renders a calendar date as YYYY-MM-DD.
func FormatDate(d time.Time) string {
	return d.Format(dateLayout)
}

// TimeOfDay is a wall-clock time without date, stored as the offset from midnight.
type TimeOfDay time.Duration

// ParseTimeOfDay accepts HH:MM or HH:MM:SS.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	for _, layout := range []string{"15:04:05", "15:04"} {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		d := time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute + time.Duration(t.Second())*time.Second
		return TimeOfDay(d), nil
	}
	return 0, fmt.Errorf("%w: %q must be HH:MM or HH:MM:SS", ErrInvalidTime, s)
}

// Duration returns the offset from midnight.
func (t TimeOfDay) Duration() time.Duration {
	return time.Duration(t)
}

// String renders HH:MM:SS.
func (t TimeOfDay) String() string {
	d := time.Duration(t)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	return fmt.Sprintf("%02d:%02d:%02d", h, m, d/time.Second)
}

// ============================================================================
// ENTITIES
// ============================================================================

// Order is a customer order whose remaining quantity is drawn down by deliveries.
type Order struct {
	ID            uuid.UUID
	ClientID      uuid.UUID
	ProductID     uuid.UUID
	Quantity      float64 // remaining tons, never negative
	RequestedDate time.Time
	RequestedTime *TimeOfDay
	Status        OrderStatus
	Priority      int // client priority level
}

// Truck is an owned vehicle.
type Truck struct {
	ID          uuid.UUID
	PlateNumber string
	Capacity    float64 // tons, <= 0 when unknown
	DriverName  *string
}

// Delivery is one truck trip carrying one or more orders.
type Delivery struct {
	ID                 uuid.UUID
	TruckID            *uuid.UUID
	ExternalTruckLabel *string // set instead of TruckID for third-party carriers
	ScheduledDate      *time.Time
	ScheduledTime      *TimeOfDay
	Status             DeliveryStatus
	Delayed            bool
	Destination        string
	Notes              *string
	LastUpdated        time.Time
	CreatedAt          time.Time
}

// HasSlot reports whether the delivery occupies a (truck, date, time) slot.
func (d Delivery) HasSlot() bool {
	return d.TruckID != nil && d.ScheduledDate != nil && d.ScheduledTime != nil
}

// Link is a ledger entry: quantity of one order committed to one delivery.
type Link struct {
	DeliveryID       uuid.UUID
	OrderID          uuid.UUID
	Quantity         float64
	QuantityDeducted bool
}

// LinkRequest asks the ledger to commit an order to a delivery. A zero
// quantity takes the order's whole remaining balance.
type LinkRequest struct {
	OrderID  uuid.UUID
	Quantity float64
}

// ChangeType classifies history entries.
type ChangeType string

const (
	ChangeStatus     ChangeType = "status_change"
	ChangeReschedule ChangeType = "reschedule"
	ChangeDelay      ChangeType = "delay"
)

// HistoryEntry is an append-only audit record of a delivery change.
type HistoryEntry struct {
	ID           uuid.UUID
	DeliveryID   uuid.UUID
	UserID       *uuid.UUID
	Status       DeliveryStatus
	ChangeType   ChangeType
	Note         string
	PreviousData map[string]any
	CreatedAt    time.Time
}

// Detail is a delivery with its ledger links and its history, newest first.
type Detail struct {
	Delivery
	Links   []Link
	History []HistoryEntry
}

// TotalQuantity sums the committed quantity over all links.
func (d *Detail) TotalQuantity() float64 {
	var units int64
	for _, l := range d.Links {
		units += toUnits(l.Quantity)
	}
	return fromUnits(units)
}

// ListFilter narrows delivery listings.
type ListFilter struct {
	Status  *DeliveryStatus
	TruckID *uuid.UUID
	Date    *time.Time
	Limit   int
	Offset  int
}
