package optimizer

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

const tolerance = 1e-6

func unitOrders(quantities ...float64) []Order {
	out := make([]Order, len(quantities))
	for i, q := range quantities {
		out[i] = Order{ID: fmt.Sprintf("O%d", i+1), Quantity: q, Priority: 1}
	}
	return out
}

func trucksWith(capacities ...float64) []Truck {
	out := make([]Truck, len(capacities))
	for j, c := range capacities {
		out[j] = Truck{ID: fmt.Sprintf("T%d", j+1), Capacity: c}
	}
	return out
}

// checkFeasible asserts the structural guarantees every result must meet.
func checkFeasible(t *testing.T, orders []Order, trucks []Truck, limit float64, res Result) {
	t.Helper()
	qty := make(map[string]float64, len(orders))
	for _, o := range orders {
		qty[o.ID] = max(o.Quantity, 0)
	}
	capacity := make(map[string]float64, len(trucks))
	for _, tr := range trucks {
		capacity[tr.ID] = tr.Capacity
	}

	seen := make(map[string]int)
	var total float64
	for _, a := range res.Assignments {
		require.NotEmpty(t, a.OrderIDs)
		var load float64
		for _, id := range a.OrderIDs {
			seen[id]++
			load += qty[id]
		}
		assert.InDelta(t, load, a.Load, tolerance)
		assert.LessOrEqual(t, load, capacity[a.TruckID]+0.005*float64(len(a.OrderIDs))+tolerance, "truck %s", a.TruckID)
		total += load
	}
	assert.LessOrEqual(t, total, limit+0.005*float64(len(orders))+tolerance)
	for _, id := range res.Unassigned {
		seen[id]++
	}
	require.Len(t, seen, len(orders))
	for id, n := range seen {
		assert.Equal(t, 1, n, "order %s listed %d times", id, n)
	}
	assert.Equal(t, len(res.Unassigned) > 0, res.Infeasible)
}

// bruteForce returns the best total priority by enumerating every assignment.
func bruteForce(orders []Order, trucks []Truck, limit float64) int64 {
	p := newProblem(orders, trucks, limit, defaultScale)
	load := make([]int64, len(trucks))
	var best int64
	var rec func(i int, total, value int64)
	rec = func(i int, total, value int64) {
		if i == len(orders) {
			best = max(best, value)
			return
		}
		rec(i+1, total, value)
		q := p.qty[i]
		if total+q > p.limit {
			return
		}
		for j := range load {
			if load[j]+q <= p.capacity[j] {
				load[j] += q
				rec(i+1, total+q, value+p.weight[i])
				load[j] -= q
			}
		}
	}
	rec(0, 0, 0)
	return best
}

func TestSingleOrderLargerThanTruckIsInfeasible(t *testing.T) {
	orders := []Order{{ID: "O", Quantity: 50, Priority: 2}}
	trucks := trucksWith(40)

	res := Optimize(context.Background(), orders, trucks, 100, DefaultOptions())

	assert.True(t, res.Infeasible)
	assert.True(t, res.Optimal)
	assert.Empty(t, res.Assignments)
	assert.Equal(t, []string{"O"}, res.Unassigned)
	assert.Zero(t, res.Value)
}

func TestFirstFitFailureIsRepairedBySearch(t *testing.T) {
	orders := unitOrders(5, 4, 4, 3, 2, 2)
	trucks := trucksWith(10, 10)

	res := Optimize(context.Background(), orders, trucks, 100, DefaultOptions())

	checkFeasible(t, orders, trucks, 100, res)
	assert.False(t, res.Infeasible)
	assert.True(t, res.Optimal)
	assert.Equal(t, int64(6), res.Value)
	require.Len(t, res.Assignments, 2)
	assert.InDelta(t, 10, res.Assignments[0].Load, tolerance)
	assert.InDelta(t, 10, res.Assignments[1].Load, tolerance)
}

func TestDailyLimitKeepsHighestPriority(t *testing.T) {
	orders := []Order{
		{ID: "low", Quantity: 10, Priority: 1},
		{ID: "high", Quantity: 10, Priority: 3},
		{ID: "mid", Quantity: 4, Priority: 2},
	}
	trucks := trucksWith(40)

	res := Optimize(context.Background(), orders, trucks, 15, DefaultOptions())

	checkFeasible(t, orders, trucks, 15, res)
	assert.True(t, res.Optimal)
	assert.Equal(t, int64(5), res.Value)
	require.Len(t, res.Assignments, 1)
	assert.Equal(t, []string{"high", "mid"}, res.Assignments[0].OrderIDs)
	assert.Equal(t, []string{"low"}, res.Unassigned)
}

func TestAssignmentsKeepInputOrder(t *testing.T) {
	orders := []Order{
		{ID: "a", Quantity: 1, Priority: 1},
		{ID: "b", Quantity: 30, Priority: 5},
		{ID: "c", Quantity: 2, Priority: 3},
	}
	trucks := []Truck{{ID: "small", Capacity: 5}, {ID: "big", Capacity: 30}}

	res := Optimize(context.Background(), orders, trucks, 100, DefaultOptions())

	require.Len(t, res.Assignments, 2)
	assert.Equal(t, "small", res.Assignments[0].TruckID)
	assert.Equal(t, []string{"a", "c"}, res.Assignments[0].OrderIDs)
	assert.Equal(t, "big", res.Assignments[1].TruckID)
	assert.Equal(t, []string{"b"}, res.Assignments[1].OrderIDs)
}

func TestDegenerateInputs(t *testing.T) {
	ctx := context.Background()

	res := Optimize(ctx, nil, trucksWith(10), 100, DefaultOptions())
	assert.False(t, res.Infeasible)
	assert.Empty(t, res.Assignments)
	assert.Empty(t, res.Unassigned)

	orders := unitOrders(1, 2)
	res = Optimize(ctx, orders, nil, 100, DefaultOptions())
	assert.True(t, res.Infeasible)
	assert.Equal(t, []string{"O1", "O2"}, res.Unassigned)

	res = Optimize(ctx, orders, trucksWith(10), 0, DefaultOptions())
	assert.True(t, res.Infeasible)
	assert.Len(t, res.Unassigned, 2)

	withNegative := []Order{{ID: "neg", Quantity: -3, Priority: 0}, {ID: "pos", Quantity: 3, Priority: 1}}
	res = Optimize(ctx, withNegative, trucksWith(3), 3, DefaultOptions())
	checkFeasible(t, withNegative, trucksWith(3), 3, res)
	assert.False(t, res.Infeasible)
	assert.Equal(t, int64(2), res.Value)
}

func TestNodeBudgetReturnsIncumbent(t *testing.T) {
	orders := unitOrders(5, 4, 4, 3, 2, 2)
	trucks := trucksWith(10, 10)
	opts := DefaultOptions()
	opts.MaxNodes = 1

	res := Optimize(context.Background(), orders, trucks, 100, opts)

	checkFeasible(t, orders, trucks, 100, res)
	assert.False(t, res.Optimal)
	assert.Equal(t, int64(5), res.Value)
	assert.Equal(t, int64(6), res.Bound)
	assert.True(t, res.Infeasible)
}

func TestCancelledContextReturnsIncumbent(t *testing.T) {
	orders := unitOrders(5, 4, 4, 3, 2, 2)
	trucks := trucksWith(10, 10)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := Optimize(ctx, orders, trucks, 100, Options{TimeBudget: time.Second})

	checkFeasible(t, orders, trucks, 100, res)
	assert.False(t, res.Optimal)
	assert.Equal(t, int64(5), res.Value)
}

func TestRelaxationBound(t *testing.T) {
	p := newProblem(unitOrders(5, 4, 4, 3, 2, 2), trucksWith(10, 10), 100, defaultScale)
	bound, ok := p.relaxationBound(context.Background())
	require.True(t, ok)
	assert.InDelta(t, 6, bound, 1e-6)

	// one 50 t order cannot fit a 40 t truck, so the LP has no variables for it
	p = newProblem([]Order{{ID: "O", Quantity: 50, Priority: 2}}, trucksWith(40), 100, defaultScale)
	bound, ok = p.relaxationBound(context.Background())
	require.True(t, ok)
	assert.Zero(t, bound)

	// the limit row binds: 15 t out of two 10 t orders
	p = newProblem(unitOrders(10, 10), trucksWith(40), 15, defaultScale)
	bound, ok = p.relaxationBound(context.Background())
	require.True(t, ok)
	assert.InDelta(t, 1.5, bound, 1e-6)
}

func TestSolverFailureFallsBackToFractionalBound(t *testing.T) {
	original := relaxationSolve
	t.Cleanup(func() { relaxationSolve = original })
	relaxationSolve = func([]float64, mat.Matrix, []float64, []int) (float64, error) {
		return 0, errors.New("solver unavailable")
	}

	orders := unitOrders(5, 4, 4, 3, 2, 2)
	trucks := trucksWith(10, 10)
	res := Optimize(context.Background(), orders, trucks, 100, DefaultOptions())

	checkFeasible(t, orders, trucks, 100, res)
	assert.True(t, res.Optimal)
	assert.False(t, res.Infeasible)
}

func TestRelaxationWaitsNoLongerThanContext(t *testing.T) {
	release := make(chan struct{})
	original := relaxationSolve
	t.Cleanup(func() { relaxationSolve = original })
	t.Cleanup(func() { close(release) })
	relaxationSolve = func([]float64, mat.Matrix, []float64, []int) (float64, error) {
		<-release
		return 0, errors.New("released")
	}

	orders := unitOrders(5, 4, 4, 3, 2, 2)
	trucks := trucksWith(10, 10)
	start := time.Now()
	res := Optimize(context.Background(), orders, trucks, 100, Options{TimeBudget: 400 * time.Millisecond})
	elapsed := time.Since(start)

	assert.Less(t, elapsed, 400*time.Millisecond)
	checkFeasible(t, orders, trucks, 100, res)
	assert.True(t, res.Optimal)
	assert.Equal(t, int64(6), res.Value)
}

func TestRelaxationSkipsCancelledContext(t *testing.T) {
	p := newProblem(unitOrders(5, 4), trucksWith(10), 100, defaultScale)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, ok := p.relaxationBound(ctx)
	assert.False(t, ok)
}

// correlatedInstance builds orders whose priority tracks their quantity,
// which keeps the bounds loose and the search long.
func correlatedInstance(rng *rand.Rand, n int) ([]Order, []Truck) {
	orders := make([]Order, n)
	for i := range orders {
		q := float64(100+rng.IntN(900)) / 100
		orders[i] = Order{ID: fmt.Sprintf("O%d", i+1), Quantity: q, Priority: int(q*100) + 10}
	}
	return orders, trucksWith(50.37, 61.13, 47.89, 55.55, 70.01)
}

func TestRelaxationSkippedForLargeTableau(t *testing.T) {
	orders, trucks := correlatedInstance(rand.New(rand.NewPCG(5, 5)), 1000)
	p := newProblem(orders, trucks, 1000, defaultScale)

	start := time.Now()
	_, ok := p.relaxationBound(context.Background())
	assert.False(t, ok)
	assert.Less(t, time.Since(start), 200*time.Millisecond)
}

func TestTimeBudgetHoldsOnLargeInstance(t *testing.T) {
	if testing.Short() {
		t.Skip("long running search")
	}
	const budget = 300 * time.Millisecond
	orders, trucks := correlatedInstance(rand.New(rand.NewPCG(9, 4)), 1000)

	start := time.Now()
	res := Optimize(context.Background(), orders, trucks, 1000, Options{TimeBudget: budget})
	elapsed := time.Since(start)

	assert.Less(t, elapsed, budget+700*time.Millisecond)
	assert.False(t, res.Optimal)
	assert.Positive(t, res.Nodes)
	assert.Positive(t, res.AssignedCount())
	assert.GreaterOrEqual(t, res.Bound, res.Value)
	checkFeasible(t, orders, trucks, 1000, res)
}

func TestDeterministic(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	orders, trucks, limit := randomInstance(rng, 12, 4)

	first := Optimize(context.Background(), orders, trucks, limit, DefaultOptions())
	for i := 0; i < 3; i++ {
		again := Optimize(context.Background(), orders, trucks, limit, DefaultOptions())
		assert.Equal(t, first, again)
	}
}

func randomInstance(rng *rand.Rand, maxOrders, maxTrucks int) ([]Order, []Truck, float64) {
	n := 1 + rng.IntN(maxOrders)
	m := 1 + rng.IntN(maxTrucks)
	orders := make([]Order, n)
	for i := range orders {
		orders[i] = Order{
			ID:       fmt.Sprintf("O%d", i+1),
			Quantity: float64(1+rng.IntN(60)) / 2,
			Priority: 1 + rng.IntN(3),
		}
	}
	trucks := make([]Truck, m)
	for j := range trucks {
		trucks[j] = Truck{ID: fmt.Sprintf("T%d", j+1), Capacity: float64(10 + 5*rng.IntN(6))}
	}
	limit := float64(20 + rng.IntN(100))
	return orders, trucks, limit
}

func TestMatchesExhaustiveSearchOnSmallInstances(t *testing.T) {
	rng := rand.New(rand.NewPCG(2026, 3))
	for k := 0; k < 150; k++ {
		orders, trucks, limit := randomInstance(rng, 7, 3)
		res := Optimize(context.Background(), orders, trucks, limit, DefaultOptions())

		checkFeasible(t, orders, trucks, limit, res)
		require.True(t, res.Optimal, "instance %d", k)
		require.Equal(t, bruteForce(orders, trucks, limit), res.Value, "instance %d", k)
	}
}

// feasibleInstance cuts every truck's capacity into orders, so a complete
// assignment exists by construction.
func feasibleInstance(rng *rand.Rand) ([]Order, []Truck, float64) {
	m := 1 + rng.IntN(4)
	trucks := make([]Truck, m)
	var orders []Order
	var demand float64
	for j := range trucks {
		capacity := float64(10 + 5*rng.IntN(7))
		trucks[j] = Truck{ID: fmt.Sprintf("T%d", j+1), Capacity: capacity}
		remaining := capacity - float64(rng.IntN(4))
		for remaining >= 0.5 && len(orders) < 10 {
			q := float64(1+rng.IntN(int(remaining*2))) / 2
			orders = append(orders, Order{
				ID:       fmt.Sprintf("O%d", len(orders)+1),
				Quantity: q,
				Priority: 1 + rng.IntN(4),
			})
			demand += q
			remaining -= q
		}
	}
	rng.Shuffle(len(orders), func(a, b int) { orders[a], orders[b] = orders[b], orders[a] })
	return orders, trucks, demand + float64(rng.IntN(5))
}

func TestCompleteAssignmentWhenOneExists(t *testing.T) {
	rng := rand.New(rand.NewPCG(42, 1))
	for k := 0; k < 120; k++ {
		orders, trucks, limit := feasibleInstance(rng)
		res := Optimize(context.Background(), orders, trucks, limit, DefaultOptions())

		checkFeasible(t, orders, trucks, limit, res)
		require.False(t, res.Infeasible, "instance %d left %v unassigned", k, res.Unassigned)
		require.Equal(t, len(orders), res.AssignedCount())
	}
}
