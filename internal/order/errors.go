package order

import (
	"errors"
	"fmt"

	"github.com/odyssey-erp/truckdispatch/internal/shared"
)

var (
	// Lookup errors
	ErrOrderNotFound  = fmt.Errorf("order %w", shared.ErrNotFound)
	ErrClientNotFound = fmt.Errorf("client %w", shared.ErrNotFound)

	// Request errors
	ErrInvalidID        = fmt.Errorf("%w: invalid identifier", shared.ErrValidation)
	ErrInvalidQuantity  = fmt.Errorf("%w: quantity must be greater than zero", shared.ErrValidation)
	ErrInvalidPriority  = fmt.Errorf("%w: priority_level must be at least 1", shared.ErrValidation)
	ErrNameRequired     = fmt.Errorf("%w: name is required", shared.ErrValidation)
	ErrStatusManaged    = fmt.Errorf("%w: only en_attente and annulé can be set directly", shared.ErrValidation)
	ErrUnknownReference = fmt.Errorf("%w: client or product does not exist", shared.ErrValidation)

	// Business rule conflicts
	ErrOrderInUse       = fmt.Errorf("%w: order is loaded on an active delivery", shared.ErrConflict)
	ErrOrderHasHistory  = fmt.Errorf("%w: order has delivery history and cannot be deleted", shared.ErrConflict)
	ErrOrderClosed      = fmt.Errorf("%w: order is delivered or cancelled", shared.ErrConflict)
	ErrConcurrentUpdate = fmt.Errorf("%w: concurrent update, retry the request", shared.ErrConflict)
)

func isBusinessError(err error) bool {
	return errors.Is(err, shared.ErrNotFound) ||
		errors.Is(err, shared.ErrValidation) ||
		errors.Is(err, shared.ErrConflict)
}
