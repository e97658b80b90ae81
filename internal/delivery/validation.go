package delivery

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/odyssey-erp/truckdispatch/internal/shared"
)

// NewValidator returns a validator with the date, timeofday and
// deliverystatus tags used by request DTOs.
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("date", func(fl validator.FieldLevel) bool {
		_, err := ParseDate(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("timeofday", func(fl validator.FieldLevel) bool {
		_, err := ParseTimeOfDay(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("deliverystatus", func(fl validator.FieldLevel) bool {
		_, err := ParseDeliveryStatus(fl.Field().String())
		return err == nil
	})
	return v
}

// ValidationError flattens validator errors into a single shared.ErrValidation.
func ValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %q", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return fmt.Errorf("%w: %s", shared.ErrValidation, strings.Join(parts, ", "))
}

func validateCreate(in CreateInput) error {
	if !in.Status.IsValid() {
		return fmt.Errorf("%q: %w", in.Status, ErrInvalidStatus)
	}
	if in.Status == StatusDelivered {
		return ErrInitialStatus
	}
	if err := validateCarrier(in.TruckID, in.ExternalTruckLabel); err != nil {
		return err
	}
	if in.ScheduledTime != nil && in.ScheduledDate == nil {
		return ErrTimeWithoutDate
	}
	if len(in.OrderIDs) == 0 {
		return ErrNoOrders
	}
	return validateOrderSet(in.OrderIDs, in.Quantities)
}

func validateUpdate(in UpdateInput) error {
	if in.Status != nil && !in.Status.IsValid() {
		return fmt.Errorf("%q: %w", *in.Status, ErrInvalidStatus)
	}
	if in.TruckID != nil && in.ExternalTruckLabel != nil {
		return ErrCarrierAmbiguous
	}
	if in.ExternalTruckLabel != nil && strings.TrimSpace(*in.ExternalTruckLabel) == "" {
		return ErrCarrierRequired
	}
	if in.OrderIDs == nil {
		if len(in.Quantities) > 0 {
			return ErrQuantityForeign
		}
		return nil
	}
	if len(in.OrderIDs) == 0 {
		return ErrNoOrders
	}
	return validateOrderSet(in.OrderIDs, in.Quantities)
}

func validateCarrier(truckID *uuid.UUID, label *string) error {
	hasLabel := label != nil && strings.TrimSpace(*label) != ""
	switch {
	case truckID != nil && hasLabel:
		return ErrCarrierAmbiguous
	case truckID == nil && !hasLabel:
		return ErrCarrierRequired
	}
	return nil
}

func validateOrderSet(orderIDs []uuid.UUID, quantities map[uuid.UUID]float64) error {
	seen := make(map[uuid.UUID]struct{}, len(orderIDs))
	for _, id := range orderIDs {
		if id == uuid.Nil {
			return fmt.Errorf("order id: %w", ErrInvalidID)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("order %s: %w", id, ErrDuplicateOrder)
		}
		seen[id] = struct{}{}
	}
	for id, q := range quantities {
		if _, ok := seen[id]; !ok {
			return fmt.Errorf("order %s: %w", id, ErrQuantityForeign)
		}
		if q < 0 {
			return fmt.Errorf("order %s: %w", id, ErrInvalidQuantity)
		}
	}
	return nil
}
