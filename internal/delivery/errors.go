package delivery

import (
	"fmt"

	"github.com/odyssey-erp/truckdispatch/internal/shared"
)

var (
	// Lookup errors
	ErrDeliveryNotFound = fmt.Errorf("delivery %w", shared.ErrNotFound)
	ErrOrderNotFound    = fmt.Errorf("order %w", shared.ErrNotFound)
	ErrTruckNotFound    = fmt.Errorf("truck %w", shared.ErrNotFound)
	ErrLinkNotFound     = fmt.Errorf("delivery order link %w", shared.ErrNotFound)

	// Request errors
	ErrInvalidStatus    = fmt.Errorf("%w: unknown status", shared.ErrValidation)
	ErrInvalidDate      = fmt.Errorf("%w: invalid date", shared.ErrValidation)
	ErrInvalidTime      = fmt.Errorf("%w: invalid time", shared.ErrValidation)
	ErrInvalidID        = fmt.Errorf("%w: invalid identifier", shared.ErrValidation)
	ErrInvalidQuantity  = fmt.Errorf("%w: quantity must be greater than zero", shared.ErrValidation)
	ErrNoOrders         = fmt.Errorf("%w: at least one order is required", shared.ErrValidation)
	ErrDuplicateOrder   = fmt.Errorf("%w: order listed more than once", shared.ErrValidation)
	ErrCarrierRequired  = fmt.Errorf("%w: truck_id or external_truck_label is required", shared.ErrValidation)
	ErrCarrierAmbiguous = fmt.Errorf("%w: truck_id and external_truck_label are mutually exclusive", shared.ErrValidation)
	ErrTimeWithoutDate  = fmt.Errorf("%w: scheduled_time requires scheduled_date", shared.ErrValidation)
	ErrInitialStatus    = fmt.Errorf("%w: a delivery cannot be created as delivered", shared.ErrValidation)
	ErrUnknownReference = fmt.Errorf("%w: referenced record does not exist", shared.ErrValidation)
	ErrQuantityForeign  = fmt.Errorf("%w: quantity given for an order that is not listed", shared.ErrValidation)

	// Business rule conflicts
	ErrOrderAlreadyLinked = fmt.Errorf("%w: order already linked to another active delivery", shared.ErrConflict)
	ErrOrderClosed        = fmt.Errorf("%w: order is delivered or cancelled", shared.ErrConflict)
	ErrSlotConflict       = fmt.Errorf("%w: truck already booked for this date and time", shared.ErrConflict)
	ErrQuantityExceeded   = fmt.Errorf("%w: quantity exceeds order remaining balance", shared.ErrConflict)
	ErrCapacityExceeded   = fmt.Errorf("%w: truck capacity exceeded", shared.ErrConflict)
	ErrInvalidTransition  = fmt.Errorf("%w: status transition not allowed", shared.ErrConflict)
	ErrDeliveryClosed     = fmt.Errorf("%w: delivered deliveries cannot be rescheduled or re-bound", shared.ErrConflict)
	ErrLinkDeducted       = fmt.Errorf("%w: link already deducted, reverse it first", shared.ErrConflict)
	ErrConcurrentUpdate   = fmt.Errorf("%w: concurrent update, retry the request", shared.ErrConflict)

	// Temporal errors
	ErrNotInFuture = fmt.Errorf("%w: scheduled date/time must be in the future", shared.ErrTemporal)
)
