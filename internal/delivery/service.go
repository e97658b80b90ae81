package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/truckdispatch/internal/shared"
)

const (
	noteInitialStatus  = "Initial status"
	noteOrdersUpdated  = "Orders updated"
	noteRescheduled    = "Rescheduled"
	noteCancelledLate  = "Cancelled after the scheduled time had passed"
	noteScheduleMissed = "Scheduled time passed before the delivery was completed"
)

// CreateInput carries a validated create request.
type CreateInput struct {
	TruckID            *uuid.UUID
	ExternalTruckLabel *string
	OrderIDs           []uuid.UUID
	Quantities         map[uuid.UUID]float64 // missing entries take the order's remaining balance
	ScheduledDate      *time.Time
	ScheduledTime      *TimeOfDay
	Destination        string
	Notes              *string
	Status             DeliveryStatus // zero value means programmé
}

// RescheduleInput moves a delivery. Nil fields keep their current value.
type RescheduleInput struct {
	ScheduledDate      *time.Time
	ScheduledTime      *TimeOfDay
	TruckID            *uuid.UUID
	ExternalTruckLabel *string
	Note               string
}

// UpdateInput is a combined edit applied in one transaction. Nil fields keep
// their current value; a nil OrderIDs keeps the current links.
type UpdateInput struct {
	Status             *DeliveryStatus
	ScheduledDate      *time.Time
	ScheduledTime      *TimeOfDay
	TruckID            *uuid.UUID
	ExternalTruckLabel *string
	OrderIDs           []uuid.UUID
	Quantities         map[uuid.UUID]float64
	Destination        *string
	Notes              *string
	Note               string
}

// Service is the delivery lifecycle manager. Every mutating call runs as a
// single transaction: status, ledger, order statuses and history commit
// together or not at all.
type Service struct {
	repo    Repository
	ledger  *Ledger
	checker Checker
	metrics *Metrics
	logger  *slog.Logger
}

// NewService creates a new lifecycle manager. metrics and logger may be nil.
func NewService(repo Repository, checker Checker, metrics *Metrics, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:    repo,
		ledger:  NewLedger(metrics),
		checker: checker,
		metrics: metrics,
		logger:  logger.With(slog.String("component", "delivery")),
	}
}

// Get returns a delivery with its links and history.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Detail, error) {
	detail, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get delivery: %w", err)
	}
	return detail, nil
}

// List returns deliveries and the total matching count.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Delivery, int, error) {
	return s.repo.List(ctx, filter)
}

// Create validates and persists a new delivery, commits its ledger links and
// writes the initial history entry.
func (s *Service) Create(ctx context.Context, in CreateInput, actor *uuid.UUID) (*Detail, error) {
	if in.Status == "" {
		in.Status = StatusScheduled
	}
	if err := validateCreate(in); err != nil {
		return nil, s.reject("create", err)
	}
	if in.ScheduledDate != nil && !s.checker.IsInFuture(*in.ScheduledDate, in.ScheduledTime) {
		return nil, s.reject("create", ErrNotInFuture)
	}

	now := s.checker.Now()
	d := Delivery{
		ID:                 uuid.New(),
		TruckID:            in.TruckID,
		ExternalTruckLabel: in.ExternalTruckLabel,
		ScheduledDate:      in.ScheduledDate,
		ScheduledTime:      in.ScheduledTime,
		Status:             in.Status,
		Destination:        in.Destination,
		Notes:              in.Notes,
		LastUpdated:        now,
		CreatedAt:          now,
	}

	var detail *Detail
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if d.TruckID != nil {
			if _, err := tx.LockTruck(ctx, *d.TruckID); err != nil {
				return err
			}
		}
		if err := s.checkOrdersAvailable(ctx, tx, d.ID, in.OrderIDs); err != nil {
			return err
		}
		if d.Status.IsActive() {
			if err := s.checkSlot(ctx, tx, d); err != nil {
				return err
			}
		}
		if err := tx.InsertDelivery(ctx, d); err != nil {
			return err
		}
		links, err := s.ledger.Rebind(ctx, tx, d.ID, linkRequests(in.OrderIDs, in.Quantities), d.Status.IsActive())
		if err != nil {
			return err
		}
		if d.Status.IsActive() {
			if err := s.checkCapacity(ctx, tx, d, links); err != nil {
				return err
			}
		}
		if err := s.applyOrderEffects(ctx, tx, d.ID, d.Status, orderIDsOf(links)); err != nil {
			return err
		}
		if err := tx.AppendHistory(ctx, s.entry(d, actor, ChangeStatus, noteInitialStatus, nil)); err != nil {
			return err
		}
		detail, err = tx.GetDetail(ctx, d.ID)
		return err
	})
	if err != nil {
		return nil, s.reject("create", err)
	}

	s.metrics.transition("", d.Status)
	s.logger.Info("delivery created",
		slog.String("delivery_id", d.ID.String()),
		slog.String("status", string(d.Status)),
		slog.Int("orders", len(detail.Links)),
	)
	return detail, nil
}

// UpdateStatus moves the delivery through the state machine.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, status DeliveryStatus, note string, actor *uuid.UUID) (*Detail, error) {
	return s.Update(ctx, id, UpdateInput{Status: &status, Note: note}, actor)
}

// Reschedule changes the date, time or truck of a delivery.
func (s *Service) Reschedule(ctx context.Context, id uuid.UUID, in RescheduleInput, actor *uuid.UUID) (*Detail, error) {
	return s.Update(ctx, id, UpdateInput{
		ScheduledDate:      in.ScheduledDate,
		ScheduledTime:      in.ScheduledTime,
		TruckID:            in.TruckID,
		ExternalTruckLabel: in.ExternalTruckLabel,
		Note:               in.Note,
	}, actor)
}

// UpdateOrders replaces the orders carried by the delivery.
func (s *Service) UpdateOrders(ctx context.Context, id uuid.UUID, orderIDs []uuid.UUID, quantities map[uuid.UUID]float64, note string, actor *uuid.UUID) (*Detail, error) {
	if orderIDs == nil {
		orderIDs = []uuid.UUID{}
	}
	return s.Update(ctx, id, UpdateInput{OrderIDs: orderIDs, Quantities: quantities, Note: note}, actor)
}

// Update applies a combined edit. A schedule in the past is only accepted
// when the same update cancels the delivery; the delivery is then flagged
// delayed with a dedicated history entry.
func (s *Service) Update(ctx context.Context, id uuid.UUID, in UpdateInput, actor *uuid.UUID) (*Detail, error) {
	if err := validateUpdate(in); err != nil {
		return nil, s.reject("update", err)
	}

	var (
		detail     *Detail
		prevStatus DeliveryStatus
		changed    bool
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		cur, err := tx.LockDelivery(ctx, id)
		if err != nil {
			return err
		}
		prevStatus = cur.Status
		next := *cur

		target := cur.Status
		if in.Status != nil {
			target = *in.Status
		}
		statusChanged := target != cur.Status
		if statusChanged && !cur.Status.CanTransitionTo(target) {
			return fmt.Errorf("%s -> %s: %w", cur.Status, target, ErrInvalidTransition)
		}
		next.Status = target
		cancelling := statusChanged && target == StatusCancelled && cur.Status.IsActive()
		reactivating := statusChanged && cur.Status == StatusCancelled && target.IsActive()

		applySchedule(&next, in)
		rescheduled := scheduleChanged(*cur, next)
		ordersChanged := in.OrderIDs != nil
		if (rescheduled || ordersChanged) && cur.Status == StatusDelivered {
			return ErrDeliveryClosed
		}
		if next.ScheduledTime != nil && next.ScheduledDate == nil {
			return ErrTimeWithoutDate
		}

		inFuture := s.checker.ScheduleInFuture(next)
		if (rescheduled || reactivating) && !inFuture && target != StatusCancelled {
			return ErrNotInFuture
		}

		if next.TruckID != nil && (rescheduled || reactivating || ordersChanged) {
			if _, err := tx.LockTruck(ctx, *next.TruckID); err != nil {
				return err
			}
		}
		if target.IsActive() && (rescheduled || reactivating) {
			if err := s.checkSlot(ctx, tx, next); err != nil {
				return err
			}
		}

		before, err := tx.ListLinks(ctx, id)
		if err != nil {
			return fmt.Errorf("list links: %w", err)
		}
		affected := orderIDsOf(before)

		// Ledger
		var links []Link
		switch {
		case ordersChanged:
			if err := s.checkOrdersAvailable(ctx, tx, id, in.OrderIDs); err != nil {
				return err
			}
			links, err = s.ledger.Rebind(ctx, tx, id, linkRequests(in.OrderIDs, in.Quantities), target != StatusCancelled)
			if err != nil {
				return err
			}
			affected = appendMissing(affected, orderIDsOf(links))
		case cancelling:
			if err := s.ledger.ReverseAll(ctx, tx, id); err != nil {
				return err
			}
		case reactivating:
			if err := s.checkOrdersAvailable(ctx, tx, id, affected); err != nil {
				return err
			}
			if err := s.ledger.ActivateAll(ctx, tx, id); err != nil {
				return err
			}
		}
		if links == nil {
			if links, err = tx.ListLinks(ctx, id); err != nil {
				return fmt.Errorf("list links: %w", err)
			}
		}

		if target.IsActive() && (ordersChanged || reactivating || truckChanged(*cur, next)) {
			if err := s.checkCapacity(ctx, tx, next, links); err != nil {
				return err
			}
		}

		// Delayed flag
		markLate := cancelling && !inFuture
		if markLate {
			next.Delayed = true
		} else if rescheduled && next.ScheduledDate != nil && inFuture {
			next.Delayed = false
		}

		// Order shadow statuses
		if statusChanged || ordersChanged {
			current := orderIDsOf(links)
			if err := s.applyOrderEffects(ctx, tx, id, target, current); err != nil {
				return err
			}
			if err := s.releaseOrders(ctx, tx, id, without(affected, current)); err != nil {
				return err
			}
		}

		freeTextChanged := applyFreeText(&next, in)
		changed = statusChanged || rescheduled || ordersChanged || freeTextChanged
		if !changed {
			return nil
		}
		next.LastUpdated = s.checker.Now()
		if err := tx.UpdateDelivery(ctx, next); err != nil {
			return err
		}

		// History
		if statusChanged {
			note := noteOr(in.Note, fmt.Sprintf("Status changed from %s to %s", cur.Status, target))
			prev := map[string]any{"status": string(cur.Status)}
			if err := tx.AppendHistory(ctx, s.entry(next, actor, ChangeStatus, note, prev)); err != nil {
				return err
			}
		}
		if rescheduled {
			prev := scheduleSnapshot(*cur)
			if err := tx.AppendHistory(ctx, s.entry(next, actor, ChangeReschedule, noteOr(in.Note, noteRescheduled), prev)); err != nil {
				return err
			}
		}
		if ordersChanged {
			prev := map[string]any{"orders": linksSnapshot(before)}
			if err := tx.AppendHistory(ctx, s.entry(next, actor, ChangeStatus, noteOr(in.Note, noteOrdersUpdated), prev)); err != nil {
				return err
			}
		}
		if markLate {
			prev := scheduleSnapshot(next)
			prev["delayed"] = cur.Delayed
			if err := tx.AppendHistory(ctx, s.entry(next, actor, ChangeDelay, noteCancelledLate, prev)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, s.reject("update", err)
	}
	if !changed {
		return s.Get(ctx, id)
	}

	detail, err = s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("reload delivery: %w", err)
	}
	if detail.Status != prevStatus {
		s.metrics.transition(prevStatus, detail.Status)
	}
	s.logger.Info("delivery updated",
		slog.String("delivery_id", id.String()),
		slog.String("from", string(prevStatus)),
		slog.String("to", string(detail.Status)),
		slog.Bool("delayed", detail.Delayed),
	)
	return detail, nil
}

// Delete reverses the ledger, releases the orders and removes the delivery
// together with its history and links.
func (s *Service) Delete(ctx context.Context, id uuid.UUID, actor *uuid.UUID) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.LockDelivery(ctx, id); err != nil {
			return err
		}
		links, err := tx.ListLinks(ctx, id)
		if err != nil {
			return fmt.Errorf("list links: %w", err)
		}
		if err := s.ledger.ReverseAll(ctx, tx, id); err != nil {
			return err
		}
		if err := s.releaseOrders(ctx, tx, id, orderIDsOf(links)); err != nil {
			return err
		}
		if err := tx.DeleteHistory(ctx, id); err != nil {
			return err
		}
		if err := tx.DeleteLinks(ctx, id); err != nil {
			return fmt.Errorf("delete links: %w", err)
		}
		return tx.DeleteDelivery(ctx, id)
	})
	if err != nil {
		return s.reject("delete", err)
	}
	attrs := []any{slog.String("delivery_id", id.String())}
	if actor != nil {
		attrs = append(attrs, slog.String("user_id", actor.String()))
	}
	s.logger.Info("delivery deleted", attrs...)
	return nil
}

// FlagDelayed marks active deliveries whose slot has passed as delayed and
// returns how many were flagged.
func (s *Service) FlagDelayed(ctx context.Context) (int, error) {
	now := s.checker.Now().In(s.checker.loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	candidates, err := s.repo.ListOverdueCandidates(ctx, today)
	if err != nil {
		return 0, err
	}

	flagged := 0
	for _, c := range candidates {
		if s.checker.ScheduleInFuture(c) {
			continue
		}
		var marked bool
		err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			cur, err := tx.LockDelivery(ctx, c.ID)
			if err != nil {
				return err
			}
			if cur.Delayed || !cur.Status.IsActive() || s.checker.ScheduleInFuture(*cur) {
				return nil
			}
			cur.Delayed = true
			cur.LastUpdated = s.checker.Now()
			if err := tx.UpdateDelivery(ctx, *cur); err != nil {
				return err
			}
			marked = true
			return tx.AppendHistory(ctx, s.entry(*cur, nil, ChangeDelay, noteScheduleMissed, scheduleSnapshot(*cur)))
		})
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				continue
			}
			return flagged, fmt.Errorf("flag delivery %s: %w", c.ID, err)
		}
		if marked {
			flagged++
		}
	}
	return flagged, nil
}

// ============================================================================
// HELPERS
// ============================================================================

func (s *Service) checkSlot(ctx context.Context, tx TxRepository, d Delivery) error {
	if !d.HasSlot() {
		return nil
	}
	conflict, err := s.checker.HasSlotConflict(ctx, tx, *d.TruckID, *d.ScheduledDate, *d.ScheduledTime, d.ID)
	if err != nil {
		return err
	}
	if conflict {
		return fmt.Errorf("truck %s on %s at %s: %w", d.TruckID, FormatDate(*d.ScheduledDate), d.ScheduledTime, ErrSlotConflict)
	}
	return nil
}

func (s *Service) checkCapacity(ctx context.Context, tx TxRepository, d Delivery, links []Link) error {
	if d.TruckID == nil {
		return nil
	}
	total := (&Detail{Links: links}).TotalQuantity()
	exceeded, err := s.checker.CapacityExceeded(ctx, tx, *d.TruckID, total)
	if err != nil {
		return err
	}
	if exceeded {
		return fmt.Errorf("truck %s cannot carry %.3f t: %w", d.TruckID, total, ErrCapacityExceeded)
	}
	return nil
}

func (s *Service) checkOrdersAvailable(ctx context.Context, tx TxRepository, deliveryID uuid.UUID, orderIDs []uuid.UUID) error {
	for _, orderID := range orderIDs {
		order, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if order.Status.IsClosed() {
			return fmt.Errorf("order %s is %s: %w", orderID, order.Status, ErrOrderClosed)
		}
		linked, err := tx.ActiveLinkedElsewhere(ctx, orderID, deliveryID)
		if err != nil {
			return err
		}
		if linked {
			return fmt.Errorf("order %s: %w", orderID, ErrOrderAlreadyLinked)
		}
	}
	return nil
}

// applyOrderEffects moves the shadow status of the delivery's orders to match
// the delivery status.
func (s *Service) applyOrderEffects(ctx context.Context, tx TxRepository, deliveryID uuid.UUID, status DeliveryStatus, orderIDs []uuid.UUID) error {
	if status == StatusCancelled {
		return s.releaseOrders(ctx, tx, deliveryID, orderIDs)
	}
	for _, orderID := range orderIDs {
		order, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		next := order.Status
		switch status {
		case StatusScheduled:
			if order.Status == OrderPending {
				next = OrderPlanned
			}
		case StatusInProgress:
			if order.Status == OrderPending || order.Status == OrderPlanned {
				next = OrderInProgress
			}
		case StatusDelivered:
			next = OrderDelivered
		}
		if next != order.Status {
			if err := tx.SetOrderStatus(ctx, orderID, next); err != nil {
				return err
			}
		}
	}
	return nil
}

// releaseOrders returns planned or in-progress orders to en_attente unless
// another active delivery still carries them.
func (s *Service) releaseOrders(ctx context.Context, tx TxRepository, deliveryID uuid.UUID, orderIDs []uuid.UUID) error {
	for _, orderID := range orderIDs {
		order, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if order.Status != OrderPlanned && order.Status != OrderInProgress {
			continue
		}
		linked, err := tx.ActiveLinkedElsewhere(ctx, orderID, deliveryID)
		if err != nil {
			return err
		}
		if linked {
			continue
		}
		if err := tx.SetOrderStatus(ctx, orderID, OrderPending); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) entry(d Delivery, actor *uuid.UUID, kind ChangeType, note string, previous map[string]any) HistoryEntry {
	return HistoryEntry{
		ID:           uuid.New(),
		DeliveryID:   d.ID,
		UserID:       actor,
		Status:       d.Status,
		ChangeType:   kind,
		Note:         note,
		PreviousData: previous,
		CreatedAt:    s.checker.Now(),
	}
}

func (s *Service) reject(operation string, err error) error {
	s.metrics.rejected(operation, err)
	if !isBusinessError(err) {
		s.logger.Error("delivery operation failed", slog.String("operation", operation), slog.Any("error", err))
	}
	return err
}

func isBusinessError(err error) bool {
	return errors.Is(err, shared.ErrValidation) ||
		errors.Is(err, shared.ErrConflict) ||
		errors.Is(err, shared.ErrTemporal) ||
		errors.Is(err, shared.ErrNotFound)
}

func isNotFound(err error) bool {
	return errors.Is(err, shared.ErrNotFound)
}

func applySchedule(d *Delivery, in UpdateInput) {
	if in.ScheduledDate != nil {
		d.ScheduledDate = in.ScheduledDate
	}
	if in.ScheduledTime != nil {
		d.ScheduledTime = in.ScheduledTime
	}
	if in.TruckID != nil {
		d.TruckID = in.TruckID
		d.ExternalTruckLabel = nil
	}
	if in.ExternalTruckLabel != nil {
		d.ExternalTruckLabel = in.ExternalTruckLabel
		d.TruckID = nil
	}
}

func applyFreeText(d *Delivery, in UpdateInput) bool {
	changed := false
	if in.Destination != nil && *in.Destination != d.Destination {
		d.Destination = *in.Destination
		changed = true
	}
	if in.Notes != nil && (d.Notes == nil || *d.Notes != *in.Notes) {
		d.Notes = in.Notes
		changed = true
	}
	return changed
}

func scheduleChanged(a, b Delivery) bool {
	return !equalDate(a.ScheduledDate, b.ScheduledDate) ||
		!equalPtr(a.ScheduledTime, b.ScheduledTime) ||
		truckChanged(a, b)
}

func truckChanged(a, b Delivery) bool {
	return !equalPtr(a.TruckID, b.TruckID) || !equalPtr(a.ExternalTruckLabel, b.ExternalTruckLabel)
}

func equalDate(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return FormatDate(*a) == FormatDate(*b)
}

func equalPtr[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func scheduleSnapshot(d Delivery) map[string]any {
	snap := map[string]any{
		"scheduled_date":       nil,
		"scheduled_time":       nil,
		"truck_id":             nil,
		"external_truck_label": nil,
	}
	if d.ScheduledDate != nil {
		snap["scheduled_date"] = FormatDate(*d.ScheduledDate)
	}
	if d.ScheduledTime != nil {
		snap["scheduled_time"] = d.ScheduledTime.String()
	}
	if d.TruckID != nil {
		snap["truck_id"] = d.TruckID.String()
	}
	if d.ExternalTruckLabel != nil {
		snap["external_truck_label"] = *d.ExternalTruckLabel
	}
	return snap
}

func linksSnapshot(links []Link) []map[string]any {
	out := make([]map[string]any, 0, len(links))
	for _, l := range links {
		out = append(out, map[string]any{"order_id": l.OrderID.String(), "quantity": l.Quantity})
	}
	return out
}

func linkRequests(orderIDs []uuid.UUID, quantities map[uuid.UUID]float64) []LinkRequest {
	out := make([]LinkRequest, 0, len(orderIDs))
	for _, id := range orderIDs {
		out = append(out, LinkRequest{OrderID: id, Quantity: quantities[id]})
	}
	return out
}

func orderIDsOf(links []Link) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(links))
	for _, l := range links {
		out = append(out, l.OrderID)
	}
	return out
}

func appendMissing(dst, src []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(dst))
	for _, id := range dst {
		seen[id] = struct{}{}
	}
	for _, id := range src {
		if _, ok := seen[id]; !ok {
			dst = append(dst, id)
			seen[id] = struct{}{}
		}
	}
	return dst
}

func without(all, remove []uuid.UUID) []uuid.UUID {
	drop := make(map[uuid.UUID]struct{}, len(remove))
	for _, id := range remove {
		drop[id] = struct{}{}
	}
	var out []uuid.UUID
	for _, id := range all {
		if _, ok := drop[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}

func noteOr(note, fallback string) string {
	if note != "" {
		return note
	}
	return fallback
}
