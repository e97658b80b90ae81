// Package optimizer assigns orders to trucks for one day of production.
//
// The problem is a multiple knapsack with a shared daily limit: every order
// goes to at most one truck, a truck never carries more than its capacity and
// the total carried never exceeds the daily production limit. The objective is
// the sum of client priorities over assigned orders. Because priorities are at
// least 1, a complete assignment always beats a partial one, and when no
// complete assignment exists the lowest-priority orders are the ones left out.
//
// The search is an exact branch and bound bounded by a wall-clock budget and
// a node budget. When a budget runs out the best assignment found so far is
// returned with Optimal set to false.
package optimizer

import (
	"cmp"
	"context"
	"math"
	"slices"
	"time"

	"gonum.org/v1/gonum/floats"
)

const (
	defaultTimeBudget = 5 * time.Second
	defaultMaxNodes   = 2_000_000
	defaultScale      = 100

	// quantities beyond this many scaled units are treated as unplaceable
	maxUnits = int64(1) << 50
	// keeps weight*quantity products within int64
	maxPriority = 1 << 12
)

// Order is a pending order to place.
type Order struct {
	ID       string  `json:"id"`
	Quantity float64 `json:"quantity"`
	Priority int     `json:"priority"`
}

// Truck is an available truck.
type Truck struct {
	ID       string  `json:"id"`
	Capacity float64 `json:"capacity"`
}

// Options tunes the search.
type Options struct {
	// TimeBudget caps wall-clock time. Zero means the default of 5s.
	TimeBudget time.Duration
	// MaxNodes caps the number of search nodes. Zero means the default.
	MaxNodes int
	// Scale converts tons to integer units. Zero means 100 (centi-tons).
	Scale float64
}

// DefaultOptions returns the production settings.
func DefaultOptions() Options {
	return Options{TimeBudget: defaultTimeBudget, MaxNodes: defaultMaxNodes, Scale: defaultScale}
}

func (o Options) normalized() Options {
	if o.TimeBudget <= 0 {
		o.TimeBudget = defaultTimeBudget
	}
	if o.MaxNodes <= 0 {
		o.MaxNodes = defaultMaxNodes
	}
	if o.Scale <= 0 {
		o.Scale = defaultScale
	}
	return o
}

// Assignment lists the orders loaded on one truck.
type Assignment struct {
	TruckID  string   `json:"truck_id"`
	OrderIDs []string `json:"order_ids"`
	Load     float64  `json:"load"`
}

// Result is the outcome of one optimization.
type Result struct {
	// Assignments holds one entry per truck that received orders, in truck
	// input order. Order ids keep their input order.
	Assignments []Assignment `json:"assignments"`
	// Unassigned lists orders left out, in input order.
	Unassigned []string `json:"unassigned"`
	// Infeasible is set when at least one order could not be placed.
	Infeasible bool `json:"infeasible"`
	// Optimal is set when the search finished within its budgets.
	Optimal bool `json:"optimal"`
	// Value is the total priority of assigned orders.
	Value int64 `json:"value"`
	// Bound is the best known upper bound on Value.
	Bound int64 `json:"bound"`
	Nodes int   `json:"nodes"`
}

// AssignedCount returns how many orders were placed.
func (r Result) AssignedCount() int {
	n := 0
	for _, a := range r.Assignments {
		n += len(a.OrderIDs)
	}
	return n
}

// Optimize computes an assignment of orders to trucks whose total load stays
// within dailyLimit tons. It never fails: an empty assignment is always
// feasible, and orders that cannot be placed are reported as unassigned.
func Optimize(ctx context.Context, orders []Order, trucks []Truck, dailyLimit float64, opts Options) Result {
	opts = opts.normalized()
	ctx, cancel := context.WithTimeout(ctx, opts.TimeBudget)
	defer cancel()

	p := newProblem(orders, trucks, dailyLimit, opts.Scale)
	s := newSearch(ctx, p, opts.MaxNodes)

	s.greedy()
	s.target = p.totalWeight
	// the LP gets a quarter of the budget so the search always has time left
	lpCtx, lpCancel := context.WithTimeout(ctx, opts.TimeBudget/4)
	lpBound, ok := p.relaxationBound(lpCtx)
	lpCancel()
	if ok {
		s.target = min(s.target, int64(math.Floor(lpBound+1e-6)))
	}
	s.target = min(s.target, int64(math.Floor(s.fractionalBound(0)+1e-9)))

	if s.best < s.target {
		s.dfs(0)
	}
	return s.result(orders, trucks)
}

// problem is the scaled integer form of the inputs.
type problem struct {
	qty         []int64
	weight      []int64
	capacity    []int64
	limit       int64
	totalWeight int64

	// order indices by priority desc, quantity desc, input index
	searchOrder []int
	// position[i] is the depth at which order i is decided
	position []int
	// order indices by priority per unit desc, used by the fractional bound
	ratioOrder []int
}

func newProblem(orders []Order, trucks []Truck, dailyLimit, scale float64) *problem {
	p := &problem{
		qty:      make([]int64, len(orders)),
		weight:   make([]int64, len(orders)),
		capacity: make([]int64, len(trucks)),
		limit:    toUnits(dailyLimit, scale),
	}
	for i, o := range orders {
		p.qty[i] = toUnits(o.Quantity, scale)
		p.weight[i] = int64(min(max(o.Priority, 1), maxPriority))
		p.totalWeight += p.weight[i]
	}
	for j, t := range trucks {
		p.capacity[j] = toUnits(t.Capacity, scale)
	}

	p.searchOrder = make([]int, len(orders))
	for i := range p.searchOrder {
		p.searchOrder[i] = i
	}
	p.ratioOrder = slices.Clone(p.searchOrder)

	slices.SortStableFunc(p.searchOrder, func(a, b int) int {
		if c := cmp.Compare(p.weight[b], p.weight[a]); c != 0 {
			return c
		}
		return cmp.Compare(p.qty[b], p.qty[a])
	})
	p.position = make([]int, len(orders))
	for depth, i := range p.searchOrder {
		p.position[i] = depth
	}
	slices.SortStableFunc(p.ratioOrder, func(a, b int) int {
		// weight[a]/qty[a] > weight[b]/qty[b]  <=>  weight[a]*qty[b] > weight[b]*qty[a]
		return cmp.Compare(p.weight[b]*p.qty[a], p.weight[a]*p.qty[b])
	})
	return p
}

func toUnits(tons, scale float64) int64 {
	v := tons * scale
	if !(v > 0) {
		return 0
	}
	if v >= float64(maxUnits) {
		return maxUnits
	}
	return int64(math.Round(v))
}

func (s *search) result(orders []Order, trucks []Truck) Result {
	res := Result{
		Optimal:     !s.exhausted,
		Value:       s.best,
		Bound:       s.target,
		Nodes:       s.nodes,
		Assignments: []Assignment{},
		Unassigned:  []string{},
	}
	if res.Optimal {
		res.Bound = s.best
	}

	perTruck := make([][]int, len(trucks))
	for i, j := range s.bestAssign {
		if j < 0 {
			res.Unassigned = append(res.Unassigned, orders[i].ID)
			continue
		}
		perTruck[j] = append(perTruck[j], i)
	}
	for j, idx := range perTruck {
		if len(idx) == 0 {
			continue
		}
		ids := make([]string, len(idx))
		loads := make([]float64, len(idx))
		for k, i := range idx {
			ids[k] = orders[i].ID
			if q := orders[i].Quantity; q > 0 {
				loads[k] = q
			}
		}
		res.Assignments = append(res.Assignments, Assignment{
			TruckID:  trucks[j].ID,
			OrderIDs: ids,
			Load:     floats.Sum(loads),
		})
	}
	res.Infeasible = len(res.Unassigned) > 0
	return res
}
