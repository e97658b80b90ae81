package delivery

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

func (r CreateDeliveryRequest) toInput() (CreateInput, error) {
	in := CreateInput{
		TruckID:            r.TruckID,
		ExternalTruckLabel: trimmed(r.ExternalTruckLabel),
		Destination:        strings.TrimSpace(r.Destination),
		Notes:              r.Notes,
	}
	in.OrderIDs, in.Quantities = orderLines(r.Orders)
	if r.Status != "" {
		status, err := ParseDeliveryStatus(r.Status)
		if err != nil {
			return CreateInput{}, err
		}
		in.Status = status
	}
	var err error
	if in.ScheduledDate, err = parseOptionalDate(&r.ScheduledDate); err != nil {
		return CreateInput{}, err
	}
	if in.ScheduledTime, err = parseOptionalTime(&r.ScheduledTime); err != nil {
		return CreateInput{}, err
	}
	return in, nil
}

func (r UpdateDeliveryRequest) toInput() (UpdateInput, error) {
	in := UpdateInput{
		TruckID:            r.TruckID,
		ExternalTruckLabel: trimmed(r.ExternalTruckLabel),
		Destination:        r.Destination,
		Notes:              r.Notes,
		Note:               strings.TrimSpace(r.Note),
	}
	if r.Status != nil {
		status, err := ParseDeliveryStatus(*r.Status)
		if err != nil {
			return UpdateInput{}, err
		}
		in.Status = &status
	}
	if r.Orders != nil {
		in.OrderIDs, in.Quantities = orderLines(*r.Orders)
	}
	var err error
	if in.ScheduledDate, err = parseOptionalDate(r.ScheduledDate); err != nil {
		return UpdateInput{}, err
	}
	if in.ScheduledTime, err = parseOptionalTime(r.ScheduledTime); err != nil {
		return UpdateInput{}, err
	}
	return in, nil
}

func (r RescheduleRequest) toInput() (RescheduleInput, error) {
	in := RescheduleInput{
		TruckID:            r.TruckID,
		ExternalTruckLabel: trimmed(r.ExternalTruckLabel),
		Note:               strings.TrimSpace(r.Note),
	}
	var err error
	if in.ScheduledDate, err = parseOptionalDate(r.ScheduledDate); err != nil {
		return RescheduleInput{}, err
	}
	if in.ScheduledTime, err = parseOptionalTime(r.ScheduledTime); err != nil {
		return RescheduleInput{}, err
	}
	return in, nil
}

func orderLines(lines []OrderLineRequest) ([]uuid.UUID, map[uuid.UUID]float64) {
	ids := make([]uuid.UUID, 0, len(lines))
	quantities := make(map[uuid.UUID]float64)
	for _, line := range lines {
		ids = append(ids, line.OrderID)
		if line.Quantity != nil {
			quantities[line.OrderID] = *line.Quantity
		}
	}
	return ids, quantities
}

func parseOptionalDate(raw *string) (*time.Time, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil, nil
	}
	d, err := ParseDate(strings.TrimSpace(*raw))
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func parseOptionalTime(raw *string) (*TimeOfDay, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil, nil
	}
	t, err := ParseTimeOfDay(strings.TrimSpace(*raw))
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}

// ============================================================================
// RESPONSES
// ============================================================================

func toResponse(d Delivery) DeliveryResponse {
	resp := DeliveryResponse{
		ID:                 d.ID,
		TruckID:            d.TruckID,
		ExternalTruckLabel: d.ExternalTruckLabel,
		Status:             d.Status,
		Delayed:            d.Delayed,
		Destination:        d.Destination,
		Notes:              d.Notes,
		LastUpdated:        d.LastUpdated,
		CreatedAt:          d.CreatedAt,
	}
	if d.ScheduledDate != nil {
		date := FormatDate(*d.ScheduledDate)
		resp.ScheduledDate = &date
	}
	if d.ScheduledTime != nil {
		at := d.ScheduledTime.String()
		resp.ScheduledTime = &at
	}
	return resp
}

func toDetailResponse(d *Detail) DeliveryResponse {
	resp := toResponse(d.Delivery)
	total := d.TotalQuantity()
	resp.TotalQuantity = &total
	resp.Orders = make([]LinkResponse, 0, len(d.Links))
	for _, l := range d.Links {
		resp.Orders = append(resp.Orders, LinkResponse{
			OrderID:          l.OrderID,
			Quantity:         l.Quantity,
			QuantityDeducted: l.QuantityDeducted,
		})
	}
	resp.History = make([]HistoryResponse, 0, len(d.History))
	for _, h := range d.History {
		resp.History = append(resp.History, HistoryResponse{
			ID:           h.ID,
			UserID:       h.UserID,
			Status:       h.Status,
			ChangeType:   h.ChangeType,
			Note:         h.Note,
			PreviousData: h.PreviousData,
			CreatedAt:    h.CreatedAt,
		})
	}
	return resp
}
