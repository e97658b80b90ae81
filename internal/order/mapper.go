package order

import (
	"github.com/odyssey-erp/truckdispatch/internal/delivery"
)

func (r CreateOrderRequest) toInput() (CreateInput, error) {
	in := CreateInput{ClientID: r.ClientID, ProductID: r.ProductID, Quantity: r.Quantity}
	date, err := delivery.ParseDate(r.RequestedDate)
	if err != nil {
		return CreateInput{}, err
	}
	in.RequestedDate = date
	if r.RequestedTime != "" {
		at, err := delivery.ParseTimeOfDay(r.RequestedTime)
		if err != nil {
			return CreateInput{}, err
		}
		in.RequestedTime = &at
	}
	return in, nil
}

func (r UpdateOrderRequest) toInput() (UpdateInput, error) {
	in := UpdateInput{ClientID: r.ClientID, ProductID: r.ProductID, Quantity: r.Quantity}
	if r.RequestedDate != nil {
		date, err := delivery.ParseDate(*r.RequestedDate)
		if err != nil {
			return UpdateInput{}, err
		}
		in.RequestedDate = &date
	}
	if r.RequestedTime != nil {
		at, err := delivery.ParseTimeOfDay(*r.RequestedTime)
		if err != nil {
			return UpdateInput{}, err
		}
		in.RequestedTime = &at
	}
	if r.Status != nil {
		status, err := delivery.ParseOrderStatus(*r.Status)
		if err != nil {
			return UpdateInput{}, err
		}
		in.Status = &status
	}
	return in, nil
}

func toResponse(o Order) OrderResponse {
	resp := OrderResponse{
		ID:            o.ID,
		ClientID:      o.ClientID,
		ProductID:     o.ProductID,
		Quantity:      o.Quantity,
		RequestedDate: delivery.FormatDate(o.RequestedDate),
		Status:        o.Status,
		CreatedAt:     o.CreatedAt,
	}
	if o.RequestedTime != nil {
		s := o.RequestedTime.String()
		resp.RequestedTime = &s
	}
	return resp
}

func toClientResponse(c Client) ClientResponse {
	return ClientResponse{ID: c.ID, Name: c.Name, PriorityLevel: c.PriorityLevel, CreatedAt: c.CreatedAt}
}
