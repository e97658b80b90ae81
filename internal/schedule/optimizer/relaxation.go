package optimizer

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"
)

// maxTableauCells skips the LP bound when the dense tableau, rows times
// columns including slacks, would be larger. The simplex cannot be
// interrupted, so this also caps the work left running after a timeout.
// The fractional bound still applies.
const maxTableauCells = 200_000

const simplexTolerance = 1e-9

// relaxationSolve solves min c·x s.t. A·x = b, x >= 0 starting from the given
// feasible basis. Tests replace it to simulate solver failures.
var relaxationSolve = func(c []float64, A mat.Matrix, b []float64, basic []int) (optF float64, err error) {
	// gonum reports malformed inputs by panicking
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("simplex: %v", r)
		}
	}()
	optF, _, err = lp.Simplex(c, A, b, simplexTolerance, basic)
	return optF, err
}

// relaxationBound returns the optimum of the LP relaxation of the assignment
// problem, an upper bound on the best total priority. ok is false when the LP
// was skipped, the solver failed or ctx ended first.
//
// Variables x_ij in [0,1] exist for every order i that fits truck j and the
// daily limit. Rows, all of the form a·x <= 1 after normalization:
//
//	order i:  sum_j x_ij <= 1
//	truck j:  sum_i (q_i / cap_j) x_ij <= 1
//	limit:    sum_ij (q_i / limit) x_ij <= 1
//
// One slack per row turns this into standard form [G | I] with the slacks as
// an initial feasible basis.
func (p *problem) relaxationBound(ctx context.Context) (float64, bool) {
	if ctx.Err() != nil {
		return 0, false
	}
	type variable struct{ order, truck int }
	var (
		vars     []variable
		orderCnt int
	)
	for i, q := range p.qty {
		if q > p.limit {
			continue
		}
		placed := false
		for j, c := range p.capacity {
			if q <= c {
				vars = append(vars, variable{i, j})
				placed = true
			}
		}
		if placed {
			orderCnt++
		}
	}
	if len(vars) == 0 {
		return 0, true
	}
	// rows are at most one per order, one per truck and the limit
	if m := orderCnt + len(p.capacity) + 1; m*(len(vars)+m) > maxTableauCells {
		return 0, false
	}

	var rows [][]float64
	orderRows := make(map[int][]float64)
	for k, v := range vars {
		row, ok := orderRows[v.order]
		if !ok {
			row = make([]float64, len(vars))
			orderRows[v.order] = row
			rows = append(rows, row)
		}
		row[k] = 1
	}
	for j, c := range p.capacity {
		if c <= 0 {
			continue
		}
		row := make([]float64, len(vars))
		nonzero := false
		for k, v := range vars {
			if v.truck == j && p.qty[v.order] > 0 {
				row[k] = float64(p.qty[v.order]) / float64(c)
				nonzero = true
			}
		}
		if nonzero {
			rows = append(rows, row)
		}
	}
	if p.limit > 0 {
		row := make([]float64, len(vars))
		nonzero := false
		for k, v := range vars {
			if p.qty[v.order] > 0 {
				row[k] = float64(p.qty[v.order]) / float64(p.limit)
				nonzero = true
			}
		}
		if nonzero {
			rows = append(rows, row)
		}
	}

	m, n := len(rows), len(vars)
	A := mat.NewDense(m, n+m, nil)
	b := make([]float64, m)
	basic := make([]int, m)
	for r, row := range rows {
		for k, a := range row {
			if a != 0 {
				A.Set(r, k, a)
			}
		}
		A.Set(r, n+r, 1)
		b[r] = 1
		basic[r] = n + r
	}
	c := make([]float64, n+m)
	for k, v := range vars {
		c[k] = -float64(p.weight[v.order])
	}

	type outcome struct {
		optF float64
		err  error
	}
	solve := relaxationSolve
	done := make(chan outcome, 1)
	go func() {
		optF, err := solve(c, A, b, basic)
		done <- outcome{optF, err}
	}()
	select {
	case <-ctx.Done():
		return 0, false
	case out := <-done:
		if out.err != nil {
			return 0, false
		}
		return -out.optF, true
	}
}
