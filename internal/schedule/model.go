// Package schedule builds daily truck assignment proposals from the pending
// order book and turns accepted proposals into scheduled deliveries.
package schedule

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/truckdispatch/internal/delivery"
	"github.com/odyssey-erp/truckdispatch/internal/shared"
)

// ErrStaleProposal is returned when an apply request references a proposal
// computed over a different order book.
var ErrStaleProposal = fmt.Errorf("%w: proposal is stale, fetch it again", shared.ErrConflict)

// PendingOrder is an order waiting for a truck.
type PendingOrder struct {
	ID            uuid.UUID
	ClientID      uuid.UUID
	Quantity      float64
	Priority      int
	RequestedDate time.Time
}

// Truck is a truck the optimizer may load.
type Truck struct {
	ID          uuid.UUID
	PlateNumber string
	Capacity    float64
}

// Snapshot is the order book and fleet read at one point in time.
type Snapshot struct {
	Orders []PendingOrder
	Trucks []Truck
}

// Fingerprint identifies the snapshot contents together with the daily
// limit. Two snapshots with the same fingerprint yield the same proposal.
func (s Snapshot) Fingerprint(dailyLimit float64) string {
	orders := make([]string, 0, len(s.Orders))
	for _, o := range s.Orders {
		orders = append(orders, fmt.Sprintf("%s:%d:%d", o.ID, milli(o.Quantity), o.Priority))
	}
	trucks := make([]string, 0, len(s.Trucks))
	for _, t := range s.Trucks {
		trucks = append(trucks, fmt.Sprintf("%s:%d", t.ID, milli(t.Capacity)))
	}
	slices.Sort(orders)
	slices.Sort(trucks)

	h := sha256.New()
	fmt.Fprintf(h, "limit=%d\n", milli(dailyLimit))
	h.Write([]byte(strings.Join(orders, "\n")))
	h.Write([]byte{'\n', '\n'})
	h.Write([]byte(strings.Join(trucks, "\n")))
	return hex.EncodeToString(h.Sum(nil))[:16]
}

func milli(v float64) int64 {
	return int64(math.Round(v * 1000))
}

// Trip is one proposed truck load.
type Trip struct {
	TruckID     uuid.UUID   `json:"truck_id"`
	PlateNumber string      `json:"plate_number"`
	Capacity    float64     `json:"capacity"`
	OrderIDs    []uuid.UUID `json:"order_ids"`
	Load        float64     `json:"load"`
}

// Proposal is the optimizer output for one day, expressed in domain ids.
type Proposal struct {
	Date        string      `json:"date"`
	DailyLimit  float64     `json:"daily_limit"`
	Fingerprint string      `json:"fingerprint"`
	Trips       []Trip      `json:"trips"`
	Unassigned  []uuid.UUID `json:"unassigned"`
	Infeasible  bool        `json:"infeasible"`
	Optimal     bool        `json:"optimal"`
	Value       int64       `json:"value"`
	Bound       int64       `json:"bound"`
	Nodes       int         `json:"nodes"`
	GeneratedAt time.Time   `json:"generated_at"`
}

// TotalLoad sums the proposed loads.
func (p *Proposal) TotalLoad() float64 {
	var total float64
	for _, t := range p.Trips {
		total += t.Load
	}
	return total
}

// ApplyInput turns the current proposal for Date into deliveries.
type ApplyInput struct {
	Date          time.Time
	ScheduledTime *delivery.TimeOfDay
	Destination   string
	// Fingerprint, when set, must match the current proposal.
	Fingerprint    string
	IdempotencyKey string
}

// TripOutcome reports what happened to one proposed trip.
type TripOutcome struct {
	TruckID    uuid.UUID   `json:"truck_id"`
	OrderIDs   []uuid.UUID `json:"order_ids"`
	DeliveryID *uuid.UUID  `json:"delivery_id,omitempty"`
	Error      string      `json:"error,omitempty"`
}

// ApplyResult lists the outcome of every trip in the applied proposal.
type ApplyResult struct {
	Date        string        `json:"date"`
	Fingerprint string        `json:"fingerprint"`
	Trips       []TripOutcome `json:"trips"`
	Created     int           `json:"created"`
	Failed      int           `json:"failed"`
	Unassigned  []uuid.UUID   `json:"unassigned"`
}
