package schedule

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/truckdispatch/internal/delivery"
	"github.com/odyssey-erp/truckdispatch/internal/schedule/optimizer"
	"github.com/odyssey-erp/truckdispatch/internal/shared"
)

const applyModule = "schedule.apply"

// Creator creates a delivery through the lifecycle manager.
type Creator interface {
	Create(ctx context.Context, in delivery.CreateInput, actor *uuid.UUID) (*delivery.Detail, error)
}

// IdempotencyStore guards apply requests against replays.
type IdempotencyStore interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// Config holds planner settings.
type Config struct {
	DailyLimit float64
	Optimizer  optimizer.Options
	Location   *time.Location
	Now        func() time.Time
}

// Planner computes proposals and applies them.
type Planner struct {
	source  Source
	cache   *Cache
	creator Creator
	idem    IdempotencyStore
	metrics *Metrics
	logger  *slog.Logger
	cfg     Config
	group   singleflight.Group
}

// NewPlanner wires a Planner. cache, idem and metrics may be nil.
func NewPlanner(source Source, cache *Cache, creator Creator, idem IdempotencyStore, metrics *Metrics, logger *slog.Logger, cfg Config) *Planner {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Planner{
		source:  source,
		cache:   cache,
		creator: creator,
		idem:    idem,
		metrics: metrics,
		logger:  logger,
		cfg:     cfg,
	}
}

// NextDay returns tomorrow's date in the dispatch time zone, the default
// planning day.
func (p *Planner) NextDay() time.Time {
	now := p.cfg.Now().In(p.cfg.Location)
	return time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)
}

// Snapshot loads pending orders and trucks concurrently.
func (p *Planner) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		orders, err := p.source.PendingOrders(ctx)
		snap.Orders = orders
		return err
	})
	g.Go(func() error {
		trucks, err := p.source.Trucks(ctx)
		snap.Trucks = trucks
		return err
	})
	if err := g.Wait(); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// Propose returns the assignment proposal for date. Proposals are cached per
// snapshot fingerprint, and concurrent requests for the same snapshot share
// one optimizer run.
func (p *Planner) Propose(ctx context.Context, date time.Time) (*Proposal, error) {
	snap, err := p.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	day := delivery.FormatDate(date)
	fingerprint := snap.Fingerprint(p.cfg.DailyLimit)

	key, err := p.cache.BuildKey(ctx, "schedule", "proposal", day, fingerprint)
	if err != nil {
		p.logger.Warn("schedule cache unavailable", slog.Any("error", err))
		key = "schedule:proposal:" + day + ":" + fingerprint
	}

	ch := p.group.DoChan(key, func() (any, error) {
		var (
			out      Proposal
			computed *Proposal
		)
		hit, err := p.cache.FetchJSON(ctx, key, &out, func(ctx context.Context) (any, error) {
			computed = p.optimize(ctx, day, snap, fingerprint)
			return computed, nil
		})
		if err != nil {
			p.logger.Warn("schedule cache unavailable", slog.Any("error", err))
			if computed == nil {
				computed = p.optimize(ctx, day, snap, fingerprint)
			}
			return computed, nil
		}
		if hit {
			p.metrics.cacheLookup("hit")
		} else {
			p.metrics.cacheLookup("miss")
		}
		return &out, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Proposal), nil
	}
}

func (p *Planner) optimize(ctx context.Context, day string, snap Snapshot, fingerprint string) *Proposal {
	orders := make([]optimizer.Order, len(snap.Orders))
	byID := make(map[string]uuid.UUID, len(snap.Orders))
	for i, o := range snap.Orders {
		id := o.ID.String()
		orders[i] = optimizer.Order{ID: id, Quantity: o.Quantity, Priority: o.Priority}
		byID[id] = o.ID
	}
	trucks := make([]optimizer.Truck, len(snap.Trucks))
	for j, t := range snap.Trucks {
		trucks[j] = optimizer.Truck{ID: t.ID.String(), Capacity: t.Capacity}
	}

	started := time.Now()
	res := optimizer.Optimize(ctx, orders, trucks, p.cfg.DailyLimit, p.cfg.Optimizer)
	elapsed := time.Since(started)
	p.metrics.observeRun(res.Optimal, len(res.Unassigned), elapsed)
	p.logger.Info("schedule proposal computed",
		slog.String("date", day),
		slog.Int("orders", len(orders)),
		slog.Int("trucks", len(trucks)),
		slog.Int("unassigned", len(res.Unassigned)),
		slog.Bool("optimal", res.Optimal),
		slog.Int("nodes", res.Nodes),
		slog.Duration("elapsed", elapsed),
	)

	truckByID := make(map[string]Truck, len(snap.Trucks))
	for _, t := range snap.Trucks {
		truckByID[t.ID.String()] = t
	}
	proposal := &Proposal{
		Date:        day,
		DailyLimit:  p.cfg.DailyLimit,
		Fingerprint: fingerprint,
		Trips:       make([]Trip, 0, len(res.Assignments)),
		Unassigned:  make([]uuid.UUID, 0, len(res.Unassigned)),
		Infeasible:  res.Infeasible,
		Optimal:     res.Optimal,
		Value:       res.Value,
		Bound:       res.Bound,
		Nodes:       res.Nodes,
		GeneratedAt: p.cfg.Now().UTC(),
	}
	for _, a := range res.Assignments {
		t := truckByID[a.TruckID]
		trip := Trip{TruckID: t.ID, PlateNumber: t.PlateNumber, Capacity: t.Capacity, Load: a.Load}
		for _, id := range a.OrderIDs {
			trip.OrderIDs = append(trip.OrderIDs, byID[id])
		}
		proposal.Trips = append(proposal.Trips, trip)
	}
	for _, id := range res.Unassigned {
		proposal.Unassigned = append(proposal.Unassigned, byID[id])
	}
	return proposal
}

// Apply recomputes the proposal for in.Date and creates one scheduled
// delivery per trip. Each trip goes through the lifecycle manager on its own,
// so a rejected trip is reported without undoing the others.
func (p *Planner) Apply(ctx context.Context, in ApplyInput, actor *uuid.UUID) (*ApplyResult, error) {
	if in.IdempotencyKey != "" {
		if p.idem == nil {
			return nil, errors.New("idempotency store not configured")
		}
		if err := p.idem.CheckAndInsert(ctx, in.IdempotencyKey, applyModule); err != nil {
			return nil, err
		}
	}

	result, err := p.apply(ctx, in, actor)
	if in.IdempotencyKey != "" && (err != nil || result.Created == 0) {
		if derr := p.idem.Delete(ctx, in.IdempotencyKey); derr != nil {
			p.logger.Warn("release idempotency key", slog.Any("error", derr))
		}
	}
	return result, err
}

func (p *Planner) apply(ctx context.Context, in ApplyInput, actor *uuid.UUID) (*ApplyResult, error) {
	proposal, err := p.Propose(ctx, in.Date)
	if err != nil {
		return nil, err
	}
	if in.Fingerprint != "" && in.Fingerprint != proposal.Fingerprint {
		return nil, ErrStaleProposal
	}

	date := in.Date
	result := &ApplyResult{
		Date:        proposal.Date,
		Fingerprint: proposal.Fingerprint,
		Trips:       make([]TripOutcome, 0, len(proposal.Trips)),
		Unassigned:  proposal.Unassigned,
	}
	for _, trip := range proposal.Trips {
		truckID := trip.TruckID
		outcome := TripOutcome{TruckID: truckID, OrderIDs: trip.OrderIDs}
		detail, err := p.creator.Create(ctx, delivery.CreateInput{
			TruckID:       &truckID,
			OrderIDs:      trip.OrderIDs,
			ScheduledDate: &date,
			ScheduledTime: in.ScheduledTime,
			Destination:   in.Destination,
		}, actor)
		if err != nil {
			outcome.Error = err.Error()
			result.Failed++
			p.metrics.trip(true)
			level := slog.LevelWarn
			if !isBusinessError(err) {
				level = slog.LevelError
			}
			p.logger.Log(ctx, level, "schedule trip rejected",
				slog.String("truck_id", truckID.String()),
				slog.Any("error", err),
			)
		} else {
			id := detail.ID
			outcome.DeliveryID = &id
			result.Created++
			p.metrics.trip(false)
		}
		result.Trips = append(result.Trips, outcome)
	}

	if result.Created > 0 {
		if err := p.cache.Bump(ctx); err != nil {
			p.logger.Warn("schedule cache bump failed", slog.Any("error", err))
		}
	}
	p.logger.Info("schedule applied",
		slog.String("date", result.Date),
		slog.Int("created", result.Created),
		slog.Int("failed", result.Failed),
	)
	return result, nil
}

func isBusinessError(err error) bool {
	return errors.Is(err, shared.ErrValidation) ||
		errors.Is(err, shared.ErrConflict) ||
		errors.Is(err, shared.ErrTemporal) ||
		errors.Is(err, shared.ErrNotFound)
}
