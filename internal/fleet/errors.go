package fleet

import (
	"errors"
	"fmt"

	"github.com/odyssey-erp/truckdispatch/internal/shared"
)

var (
	ErrTruckNotFound = fmt.Errorf("truck %w", shared.ErrNotFound)

	ErrInvalidID       = fmt.Errorf("%w: invalid identifier", shared.ErrValidation)
	ErrPlateRequired   = fmt.Errorf("%w: plate_number is required", shared.ErrValidation)
	ErrInvalidCapacity = fmt.Errorf("%w: capacity cannot be negative", shared.ErrValidation)

	ErrTruckInUse        = fmt.Errorf("%w: truck is booked on an active delivery", shared.ErrConflict)
	ErrTruckHasHistory   = fmt.Errorf("%w: truck has delivery history and cannot be deleted", shared.ErrConflict)
	ErrCapacityBelowLoad = fmt.Errorf("%w: capacity is below the load of an active delivery", shared.ErrConflict)
	ErrDuplicatePlate    = fmt.Errorf("%w: plate_number already registered", shared.ErrConflict)
	ErrConcurrentUpdate  = fmt.Errorf("%w: concurrent update, retry the request", shared.ErrConflict)
)

func isBusinessError(err error) bool {
	return errors.Is(err, shared.ErrNotFound) ||
		errors.Is(err, shared.ErrValidation) ||
		errors.Is(err, shared.ErrConflict)
}
