package delivery

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// ============================================================================
// DELIVERY STATUS
// ============================================================================

// DeliveryStatus represents the lifecycle of a delivery.
type DeliveryStatus string

const (
	StatusScheduled  DeliveryStatus = "programmé" // Initial state, truck slot reserved
	StatusInProgress DeliveryStatus = "en_cours"  // Truck loaded and on the road
	StatusDelivered  DeliveryStatus = "livrée"    // Terminal
	StatusCancelled  DeliveryStatus = "annulée"   // Terminal unless reactivated
)

var deliveryStatusAliases = map[string]DeliveryStatus{
	"programme":   StatusScheduled,
	"programmee":  StatusScheduled,
	"scheduled":   StatusScheduled,
	"en_cours":    StatusInProgress,
	"encours":     StatusInProgress,
	"in_progress": StatusInProgress,
	"livree":      StatusDelivered,
	"livre":       StatusDelivered,
	"delivered":   StatusDelivered,
	"annulee":     StatusCancelled,
	"annule":      StatusCancelled,
	"cancelled":   StatusCancelled,
	"canceled":    StatusCancelled,
}

// ParseDeliveryStatus normalizes a raw status into the closed enumeration.
// Case, accents and masculine/feminine spellings are ignored.
func ParseDeliveryStatus(raw string) (DeliveryStatus, error) {
	if s, ok := deliveryStatusAliases[foldStatus(raw)]; ok {
		return s, nil
	}
	return "", fmt.Errorf("%w: delivery status %q", ErrInvalidStatus, raw)
}

// IsValid checks if the status is one of the known values.
func (s DeliveryStatus) IsValid() bool {
	switch s {
	case StatusScheduled, StatusInProgress, StatusDelivered, StatusCancelled:
		return true
	default:
		return false
	}
}

// IsActive reports whether the delivery still occupies its truck slot.
func (s DeliveryStatus) IsActive() bool {
	return s == StatusScheduled || s == StatusInProgress
}

// CanTransitionTo reports whether the state machine allows moving to next.
func (s DeliveryStatus) CanTransitionTo(next DeliveryStatus) bool {
	switch s {
	case StatusScheduled:
		return next == StatusInProgress || next == StatusDelivered || next == StatusCancelled
	case StatusInProgress:
		return next == StatusDelivered || next == StatusCancelled
	case StatusCancelled:
		return next == StatusScheduled || next == StatusInProgress
	default:
		return false
	}
}

// activeStatuses is the SQL-side view of IsActive.
var activeStatuses = []string{string(StatusScheduled), string(StatusInProgress)}

// ============================================================================
// ORDER STATUS
// ============================================================================

// OrderStatus is the shadow status of an order, driven by its deliveries.
type OrderStatus string

const (
	OrderPending    OrderStatus = "en_attente"
	OrderPlanned    OrderStatus = "planifié"
	OrderInProgress OrderStatus = "en_cours"
	OrderDelivered  OrderStatus = "livrée"
	OrderCancelled  OrderStatus = "annulé"
)

var orderStatusAliases = map[string]OrderStatus{
	"en_attente":  OrderPending,
	"attente":     OrderPending,
	"pending":     OrderPending,
	"planifie":    OrderPlanned,
	"planifiee":   OrderPlanned,
	"planned":     OrderPlanned,
	"en_cours":    OrderInProgress,
	"in_progress": OrderInProgress,
	"livree":      OrderDelivered,
	"livre":       OrderDelivered,
	"delivered":   OrderDelivered,
	"annule":      OrderCancelled,
	"annulee":     OrderCancelled,
	"cancelled":   OrderCancelled,
	"canceled":    OrderCancelled,
}

// ParseOrderStatus normalizes a raw order status.
func ParseOrderStatus(raw string) (OrderStatus, error) {
	if s, ok := orderStatusAliases[foldStatus(raw)]; ok {
		return s, nil
	}
	return "", fmt.Errorf("%w: order status %q", ErrInvalidStatus, raw)
}

// IsClosed reports whether the order can no longer be put on a delivery.
func (s OrderStatus) IsClosed() bool {
	return s == OrderDelivered || s == OrderCancelled
}

// foldStatus reduces "  Programmé " to "programme" and "En cours" to "en_cours".
func foldStatus(raw string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), cases.Fold(), norm.NFC)
	out, _, err := transform.String(t, strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	return strings.NewReplacer(" ", "_", "-", "_").Replace(out)
}
