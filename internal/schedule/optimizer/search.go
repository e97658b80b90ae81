package optimizer

import "context"

// ctxCheckInterval is how many nodes pass between context checks.
const ctxCheckInterval = 1024

type search struct {
	ctx      context.Context
	p        *problem
	maxNodes int

	// current partial assignment
	assign []int
	load   []int64
	total  int64
	value  int64

	best       int64
	bestAssign []int
	target     int64

	nodes     int
	exhausted bool // a budget ran out before the search completed
	done      bool // the incumbent reached the upper bound
}

func newSearch(ctx context.Context, p *problem, maxNodes int) *search {
	s := &search{
		ctx:        ctx,
		p:          p,
		maxNodes:   maxNodes,
		assign:     make([]int, len(p.qty)),
		load:       make([]int64, len(p.capacity)),
		bestAssign: make([]int, len(p.qty)),
	}
	for i := range s.assign {
		s.assign[i] = -1
		s.bestAssign[i] = -1
	}
	return s
}

// greedy seeds the incumbent with first-fit in search order.
func (s *search) greedy() {
	load := make([]int64, len(s.p.capacity))
	assign := make([]int, len(s.p.qty))
	var total, value int64
	for i := range assign {
		assign[i] = -1
	}
	for _, i := range s.p.searchOrder {
		q := s.p.qty[i]
		if total+q > s.p.limit {
			continue
		}
		for j := range load {
			if load[j]+q <= s.p.capacity[j] {
				load[j] += q
				total += q
				value += s.p.weight[i]
				assign[i] = j
				break
			}
		}
	}
	s.best = value
	copy(s.bestAssign, assign)
}

func (s *search) stop() bool {
	if s.exhausted || s.done {
		return true
	}
	if s.nodes >= s.maxNodes {
		s.exhausted = true
		return true
	}
	if s.nodes%ctxCheckInterval == 0 && s.ctx.Err() != nil {
		s.exhausted = true
		return true
	}
	return false
}

// dfs explores the placement of the order at position depth in search order.
// Each order tries every truck with room, then stays unassigned.
func (s *search) dfs(depth int) {
	if s.stop() {
		return
	}
	s.nodes++

	if depth == len(s.p.searchOrder) {
		if s.value > s.best {
			s.best = s.value
			copy(s.bestAssign, s.assign)
			if s.best >= s.target {
				s.done = true
			}
		}
		return
	}
	if int64(s.fractionalBound(depth)+1e-9) <= s.best {
		return
	}

	i := s.p.searchOrder[depth]
	q := s.p.qty[i]
	if s.total+q <= s.p.limit {
		for j := range s.load {
			if s.load[j]+q > s.p.capacity[j] || s.symmetric(j) {
				continue
			}
			s.place(i, j)
			s.dfs(depth + 1)
			s.unplace(i, j)
			if s.exhausted || s.done {
				return
			}
		}
	}
	s.dfs(depth + 1)
}

// symmetric reports whether an earlier truck is interchangeable with j:
// same capacity and same current load lead to the same subtree.
func (s *search) symmetric(j int) bool {
	for k := 0; k < j; k++ {
		if s.p.capacity[k] == s.p.capacity[j] && s.load[k] == s.load[j] {
			return true
		}
	}
	return false
}

func (s *search) place(i, j int) {
	s.assign[i] = j
	s.load[j] += s.p.qty[i]
	s.total += s.p.qty[i]
	s.value += s.p.weight[i]
}

func (s *search) unplace(i, j int) {
	s.assign[i] = -1
	s.load[j] -= s.p.qty[i]
	s.total -= s.p.qty[i]
	s.value -= s.p.weight[i]
}

// fractionalBound is the current value plus a fractional knapsack over the
// orders not yet placed. The knapsack room is the smaller of the remaining
// daily limit and the summed free truck capacity; orders larger than every
// truck's free space are skipped.
func (s *search) fractionalBound(depth int) float64 {
	var free, maxFree int64
	for j, l := range s.load {
		f := s.p.capacity[j] - l
		free += f
		maxFree = max(maxFree, f)
	}
	room := min(s.p.limit-s.total, free)
	limitRoom := s.p.limit - s.total

	bound := float64(s.value)
	for _, i := range s.p.ratioOrder {
		if s.p.position[i] < depth {
			continue
		}
		q := s.p.qty[i]
		if q > maxFree || q > limitRoom {
			continue
		}
		if q <= room {
			bound += float64(s.p.weight[i])
			room -= q
			continue
		}
		bound += float64(s.p.weight[i]) * float64(room) / float64(q)
		break
	}
	return bound
}
