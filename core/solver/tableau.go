package solver

import (
	"context"
	"errors"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"
)

// ErrIterationLimit is returned when a single LP exceeds its pivot budget.
var ErrIterationLimit = errors.New("solver: simplex iteration limit reached")

const (
	// pivotTol is the smallest tableau entry accepted as a pivot.
	pivotTol = 1e-9
	// blandAfter is the number of consecutive degenerate pivots after which
	// pricing switches to Bland's rule for the rest of the phase.
	blandAfter = 50
	// cancelEvery is how often, in pivots, the context is checked.
	cancelEvery = 64
)

// boxedProgram is min cᵀy s.t. A·y = b, 0 ≤ y ≤ upper. Upper entries may
// be +Inf. A is nil when there are no rows.
type boxedProgram struct {
	a     *mat.Dense
	b     []float64
	c     []float64
	upper []float64
	tol   float64
	// maxPivots caps the pivots of both phases together. Zero picks a
	// limit from the problem size.
	maxPivots int
}

// kernel solves a boxed program and returns y. Infeasible and unbounded
// programs are reported with lp.ErrInfeasible and lp.ErrUnbounded.
type kernel func(ctx context.Context, bp *boxedProgram) ([]float64, error)

// simplex points to the LP kernel. Tests replace it to simulate failures.
var simplex kernel = boundedSimplex

// tableau is a dense bounded-variable simplex tableau. Rows hold B⁻¹·A
// over the structural columns followed by one artificial per row. Basic
// values are kept in beta, nonbasic columns sit at 0 or at their upper bound.
type tableau struct {
	t       *mat.Dense
	beta    []float64
	basis   []int
	pos     []int
	atUpper []bool
	upper   []float64
	d       []float64

	structural int
	bland      bool
	degenerate int
	pivots     int
	limit      int
}

func boundedSimplex(ctx context.Context, bp *boxedProgram) ([]float64, error) {
	n, m := len(bp.c), len(bp.b)
	if m == 0 {
		return boxOptimum(bp)
	}
	tb := newTableau(bp, m, n)

	// Phase 1 drives the artificials to zero.
	cost := make([]float64, n+m)
	for i := range m {
		cost[n+i] = 1
	}
	tb.price(cost)
	if err := tb.iterate(ctx, bp.tol); err != nil {
		return nil, err
	}
	var infeasibility float64
	for i, k := range tb.basis {
		if k >= n {
			infeasibility += tb.beta[i]
		}
	}
	if infeasibility > 1e-7*math.Max(1, floats.Norm(bp.b, math.Inf(1))) {
		return nil, lp.ErrInfeasible
	}

	// Artificials stay at zero from here on.
	for k := n; k < n+m; k++ {
		tb.upper[k] = 0
		tb.atUpper[k] = false
		if r := tb.pos[k]; r >= 0 {
			tb.beta[r] = 0
		}
	}
	cost = make([]float64, n+m)
	copy(cost, bp.c)
	tb.price(cost)
	tb.bland, tb.degenerate = false, 0
	if err := tb.iterate(ctx, bp.tol*math.Max(1, floats.Norm(bp.c, math.Inf(1)))); err != nil {
		return nil, err
	}
	return tb.values(), nil
}

// boxOptimum solves a program without rows column by column.
func boxOptimum(bp *boxedProgram) ([]float64, error) {
	y := make([]float64, len(bp.c))
	for j, c := range bp.c {
		if c >= 0 {
			continue
		}
		if math.IsInf(bp.upper[j], 1) {
			return nil, lp.ErrUnbounded
		}
		y[j] = bp.upper[j]
	}
	return y, nil
}

func newTableau(bp *boxedProgram, m, n int) *tableau {
	width := n + m
	tb := &tableau{
		t:          mat.NewDense(m, width, nil),
		beta:       make([]float64, m),
		basis:      make([]int, m),
		pos:        make([]int, width),
		atUpper:    make([]bool, width),
		upper:      make([]float64, width),
		structural: n,
		limit:      bp.maxPivots,
	}
	if tb.limit <= 0 {
		tb.limit = 50*(m+n) + 1000
	}
	copy(tb.upper, bp.upper)
	for k := n; k < width; k++ {
		tb.upper[k] = math.Inf(1)
	}
	for k := range tb.pos {
		tb.pos[k] = -1
	}

	// Rows are flipped so b ≥ 0. A structural column with a single positive
	// entry in a row can start basic there, any other row starts on its
	// artificial.
	for i := range m {
		row := tb.t.RawRowView(i)
		copy(row, bp.a.RawRowView(i))
		tb.beta[i] = bp.b[i]
		if tb.beta[i] < 0 {
			floats.Scale(-1, row[:n])
			tb.beta[i] = -tb.beta[i]
		}
		row[n+i] = 1
		tb.basis[i] = n + i
	}
	count := make([]int, n)
	at := make([]int, n)
	for i := range m {
		for j, v := range tb.t.RawRowView(i)[:n] {
			if v != 0 {
				count[j]++
				at[j] = i
			}
		}
	}
	for j := range n {
		if count[j] != 1 {
			continue
		}
		i := at[j]
		v := tb.t.At(i, j)
		if v <= 0 || tb.basis[i] < n || tb.beta[i]/v > tb.upper[j] {
			continue
		}
		row := tb.t.RawRowView(i)
		floats.Scale(1/v, row)
		tb.beta[i] /= v
		tb.basis[i] = j
	}
	for i, k := range tb.basis {
		tb.pos[k] = i
	}
	return tb
}

// price computes the reduced costs d = c − c_Bᵀ·B⁻¹A.
func (tb *tableau) price(c []float64) {
	tb.d = append(tb.d[:0], c...)
	for i, k := range tb.basis {
		if c[k] != 0 {
			floats.AddScaled(tb.d, -c[k], tb.t.RawRowView(i))
		}
	}
}

func (tb *tableau) iterate(ctx context.Context, dtol float64) error {
	for {
		if tb.pivots%cancelEvery == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		if tb.pivots >= tb.limit {
			return ErrIterationLimit
		}
		q, dir := tb.entering(dtol)
		if q < 0 {
			return nil
		}
		r, step, toUpper := tb.leaving(q, dir)
		if math.IsInf(step, 1) {
			return lp.ErrUnbounded
		}
		tb.pivots++
		if step <= pivotTol {
			tb.degenerate++
			if tb.degenerate > blandAfter {
				tb.bland = true
			}
		} else {
			tb.degenerate = 0
		}
		tb.move(q, dir, step, r, toUpper)
	}
}

// entering picks the nonbasic column with the largest improving reduced
// cost, or the lowest improving index under Bland's rule. dir is +1 when
// the column rises from 0 and −1 when it falls from its upper bound.
func (tb *tableau) entering(dtol float64) (int, float64) {
	best, dir, gain := -1, 0.0, dtol
	for j, dj := range tb.d {
		if tb.pos[j] >= 0 || tb.upper[j] <= 0 {
			continue
		}
		var g, s float64
		switch {
		case tb.atUpper[j] && dj > dtol:
			g, s = dj, -1
		case !tb.atUpper[j] && dj < -dtol:
			g, s = -dj, 1
		default:
			continue
		}
		if tb.bland {
			return j, s
		}
		if g > gain {
			best, dir, gain = j, s, g
		}
	}
	return best, dir
}

// leaving runs the ratio test for column q moving in direction dir. It
// returns the blocking row, or −1 when q reaches its own bound first, the
// step length and whether the leaving variable ends at its upper bound.
func (tb *tableau) leaving(q int, dir float64) (int, float64, bool) {
	r, step, toUpper := -1, tb.upper[q], false
	var pivot float64
	for i, k := range tb.basis {
		alpha := dir * tb.t.At(i, q)
		if math.Abs(alpha) <= pivotTol {
			continue
		}
		var lim float64
		up := false
		if alpha > 0 {
			lim = tb.beta[i] / alpha
		} else {
			if math.IsInf(tb.upper[k], 1) {
				continue
			}
			lim = (tb.upper[k] - tb.beta[i]) / -alpha
			up = true
		}
		lim = math.Max(lim, 0)
		var tie float64
		if !math.IsInf(step, 1) {
			tie = 1e-12 * math.Max(1, step)
		}
		switch {
		case lim < step-tie:
		case lim <= step+tie && r >= 0:
			if tb.bland && k > tb.basis[r] {
				continue
			}
			if !tb.bland && math.Abs(alpha) <= pivot {
				continue
			}
		default:
			continue
		}
		r, step, toUpper, pivot = i, lim, up, math.Abs(alpha)
	}
	return r, step, toUpper
}

// move advances column q by step and pivots it into row r. With r < 0 the
// column only flips to its other bound.
func (tb *tableau) move(q int, dir, step float64, r int, toUpper bool) {
	col := make([]float64, len(tb.basis))
	mat.Col(col, q, tb.t)
	floats.AddScaled(tb.beta, -dir*step, col)
	if r < 0 {
		tb.atUpper[q] = !tb.atUpper[q]
		return
	}

	start := 0.0
	if tb.atUpper[q] {
		start = tb.upper[q]
	}
	k := tb.basis[r]
	tb.pos[k] = -1
	tb.atUpper[k] = toUpper
	tb.basis[r] = q
	tb.pos[q] = r
	tb.atUpper[q] = false
	tb.beta[r] = start + dir*step

	pr := tb.t.RawRowView(r)
	floats.Scale(1/pr[q], pr)
	for i := range tb.basis {
		if i == r || col[i] == 0 {
			continue
		}
		row := tb.t.RawRowView(i)
		floats.AddScaled(row, -row[q], pr)
		row[q] = 0
	}
	if dq := tb.d[q]; dq != 0 {
		floats.AddScaled(tb.d, -dq, pr)
		tb.d[q] = 0
	}
}

// values returns the structural columns clamped to their bounds.
func (tb *tableau) values() []float64 {
	y := make([]float64, tb.structural)
	for j := range y {
		switch {
		case tb.pos[j] >= 0:
			y[j] = tb.beta[tb.pos[j]]
		case tb.atUpper[j]:
			y[j] = tb.upper[j]
		}
		y[j] = math.Min(math.Max(y[j], 0), tb.upper[j])
	}
	return y
}
