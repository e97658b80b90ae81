package delivery

import (
	"context"
	"fmt"
	"math"

	"github.com/google/uuid"
)

// Quantities are reconciled on a fixed grid of 1/1000 t so that a deduction
// followed by its reversal restores the exact prior balance.
const quantityUnits = 1000

func toUnits(q float64) int64 {
	return int64(math.Round(q * quantityUnits))
}

func fromUnits(u int64) float64 {
	return float64(u) / quantityUnits
}

func roundQuantity(q float64) float64 {
	return fromUnits(toUnits(q))
}

// LedgerStore is the transactional storage the ledger mutates.
type LedgerStore interface {
	LockOrder(ctx context.Context, id uuid.UUID) (*Order, error)
	SetOrderQuantity(ctx context.Context, id uuid.UUID, quantity float64) error
	GetLink(ctx context.Context, deliveryID, orderID uuid.UUID) (*Link, error)
	UpsertLink(ctx context.Context, link Link) error
	SetLinkDeducted(ctx context.Context, deliveryID, orderID uuid.UUID, deducted bool) error
	ListLinks(ctx context.Context, deliveryID uuid.UUID) ([]Link, error)
	DeleteLinks(ctx context.Context, deliveryID uuid.UUID) error
}

// Ledger tracks how much of each order is committed to which delivery and
// whether that quantity has been drawn from the order's remaining balance.
// Every method runs inside the caller's transaction.
type Ledger struct {
	metrics *Metrics
}

// NewLedger builds a ledger. metrics may be nil.
func NewLedger(metrics *Metrics) *Ledger {
	return &Ledger{metrics: metrics}
}

// Commit creates or replaces the link for (deliveryID, orderID) without
// deducting anything.
func (l *Ledger) Commit(ctx context.Context, st LedgerStore, deliveryID, orderID uuid.UUID, quantity float64) (Link, error) {
	quantity = roundQuantity(quantity)
	if quantity <= 0 {
		return Link{}, fmt.Errorf("order %s: %w", orderID, ErrInvalidQuantity)
	}
	order, err := st.LockOrder(ctx, orderID)
	if err != nil {
		return Link{}, err
	}
	if toUnits(quantity) > toUnits(order.Quantity) {
		return Link{}, fmt.Errorf("order %s: requested %.3f t, remaining %.3f t: %w",
			orderID, quantity, order.Quantity, ErrQuantityExceeded)
	}
	existing, err := st.GetLink(ctx, deliveryID, orderID)
	if err != nil && !isNotFound(err) {
		return Link{}, err
	}
	if existing != nil && existing.QuantityDeducted {
		return Link{}, fmt.Errorf("order %s: %w", orderID, ErrLinkDeducted)
	}
	link := Link{DeliveryID: deliveryID, OrderID: orderID, Quantity: quantity}
	if err := st.UpsertLink(ctx, link); err != nil {
		return Link{}, fmt.Errorf("upsert link %s/%s: %w", deliveryID, orderID, err)
	}
	l.metrics.ledgerOp("commit")
	return link, nil
}

// Activate deducts the link quantity from its order. It is a no-op when the
// stored link is already deducted.
func (l *Ledger) Activate(ctx context.Context, st LedgerStore, link Link) error {
	stored, err := st.GetLink(ctx, link.DeliveryID, link.OrderID)
	if err != nil {
		return err
	}
	if stored.QuantityDeducted {
		return nil
	}
	order, err := st.LockOrder(ctx, stored.OrderID)
	if err != nil {
		return err
	}
	remaining := toUnits(order.Quantity) - toUnits(stored.Quantity)
	if remaining < 0 {
		return fmt.Errorf("order %s: needs %.3f t, remaining %.3f t: %w",
			order.ID, stored.Quantity, order.Quantity, ErrQuantityExceeded)
	}
	if err := st.SetOrderQuantity(ctx, order.ID, fromUnits(remaining)); err != nil {
		return fmt.Errorf("deduct order %s: %w", order.ID, err)
	}
	if err := st.SetLinkDeducted(ctx, stored.DeliveryID, stored.OrderID, true); err != nil {
		return fmt.Errorf("mark link deducted: %w", err)
	}
	l.metrics.ledgerOp("activate")
	return nil
}

// Reverse gives the link quantity back to its order. It is a no-op when the
// stored link is not deducted.
func (l *Ledger) Reverse(ctx context.Context, st LedgerStore, link Link) error {
	stored, err := st.GetLink(ctx, link.DeliveryID, link.OrderID)
	if err != nil {
		return err
	}
	if !stored.QuantityDeducted {
		return nil
	}
	order, err := st.LockOrder(ctx, stored.OrderID)
	if err != nil {
		return err
	}
	restored := toUnits(order.Quantity) + toUnits(stored.Quantity)
	if err := st.SetOrderQuantity(ctx, order.ID, fromUnits(restored)); err != nil {
		return fmt.Errorf("restore order %s: %w", order.ID, err)
	}
	if err := st.SetLinkDeducted(ctx, stored.DeliveryID, stored.OrderID, false); err != nil {
		return fmt.Errorf("mark link reversed: %w", err)
	}
	l.metrics.ledgerOp("reverse")
	return nil
}

// ActivateAll deducts every link of the delivery.
func (l *Ledger) ActivateAll(ctx context.Context, st LedgerStore, deliveryID uuid.UUID) error {
	links, err := st.ListLinks(ctx, deliveryID)
	if err != nil {
		return fmt.Errorf("list links: %w", err)
	}
	for _, link := range links {
		if err := l.Activate(ctx, st, link); err != nil {
			return err
		}
	}
	return nil
}

// ReverseAll restores every deducted link of the delivery.
func (l *Ledger) ReverseAll(ctx context.Context, st LedgerStore, deliveryID uuid.UUID) error {
	links, err := st.ListLinks(ctx, deliveryID)
	if err != nil {
		return fmt.Errorf("list links: %w", err)
	}
	for _, link := range links {
		if err := l.Reverse(ctx, st, link); err != nil {
			return err
		}
	}
	return nil
}

// Rebind replaces the delivery's links: existing links are reversed and
// deleted, then the new set is committed and, when activate is set, deducted.
func (l *Ledger) Rebind(ctx context.Context, st LedgerStore, deliveryID uuid.UUID, next []LinkRequest, activate bool) ([]Link, error) {
	if err := l.ReverseAll(ctx, st, deliveryID); err != nil {
		return nil, err
	}
	if err := st.DeleteLinks(ctx, deliveryID); err != nil {
		return nil, fmt.Errorf("delete links: %w", err)
	}

	links := make([]Link, 0, len(next))
	for _, req := range next {
		quantity := req.Quantity
		if quantity == 0 {
			order, err := st.LockOrder(ctx, req.OrderID)
			if err != nil {
				return nil, err
			}
			if toUnits(order.Quantity) <= 0 {
				return nil, fmt.Errorf("order %s has no remaining quantity: %w", order.ID, ErrQuantityExceeded)
			}
			quantity = order.Quantity
		}
		link, err := l.Commit(ctx, st, deliveryID, req.OrderID, quantity)
		if err != nil {
			return nil, err
		}
		links = append(links, link)
	}

	if activate {
		for i := range links {
			if err := l.Activate(ctx, st, links[i]); err != nil {
				return nil, err
			}
			links[i].QuantityDeducted = true
		}
	}
	return links, nil
}
