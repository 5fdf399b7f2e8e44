package solver

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/xuwkk/power-system-operation/core/logger"
	"github.com/xuwkk/power-system-operation/core/opt"
)

// Options tunes the simplex backend.
type Options struct {
	// Tolerance is passed to the simplex kernel and used for feasibility checks.
	Tolerance float64 `json:"tolerance"`
	// IntegralityTolerance is how far a discrete variable may sit from an integer.
	IntegralityTolerance float64 `json:"integrality_tolerance"`
	// MaxNodes bounds the number of branch-and-bound nodes.
	MaxNodes int `json:"max_nodes"`
	// MaxCuts bounds the cutting-plane rounds per node.
	MaxCuts int `json:"max_cuts"`
	// CutTolerance is the relative objective gap at which the quadratic
	// outer approximation is accepted.
	CutTolerance float64 `json:"cut_tolerance"`
	// BoxBound bounds |x_i| for variables in the quadratic term so the
	// first relaxations stay bounded. A solution on the box is reported as
	// unbounded.
	BoxBound float64 `json:"box_bound"`
	// MaxPivots caps the simplex pivots of one LP. Zero sizes the cap from
	// the LP.
	MaxPivots int `json:"max_pivots"`
}

// DefaultOptions returns the options used when a field is left zero.
func DefaultOptions() Options {
	return Options{
		Tolerance:            1e-9,
		IntegralityTolerance: 1e-6,
		MaxNodes:             10000,
		MaxCuts:              200,
		CutTolerance:         1e-7,
		BoxBound:             1e4,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Tolerance <= 0 {
		o.Tolerance = d.Tolerance
	}
	if o.IntegralityTolerance <= 0 {
		o.IntegralityTolerance = d.IntegralityTolerance
	}
	if o.MaxNodes <= 0 {
		o.MaxNodes = d.MaxNodes
	}
	if o.MaxCuts <= 0 {
		o.MaxCuts = d.MaxCuts
	}
	if o.CutTolerance <= 0 {
		o.CutTolerance = d.CutTolerance
	}
	if o.BoxBound <= 0 {
		o.BoxBound = d.BoxBound
	}
	return o
}

// Simplex is a Backend built on a dense bounded-variable simplex kernel.
// Quadratic objectives are handled with tangent cuts on epigraph variables
// and discrete variables with depth-first branch-and-bound.
type Simplex struct {
	opts Options
	log  logger.Logger
}

// NewSimplex returns a simplex backend. A nil logger discards output.
func NewSimplex(opts Options, log logger.Logger) *Simplex {
	return &Simplex{opts: opts.withDefaults(), log: logger.OrNop(log)}
}

// Solve implements Backend.
func (s *Simplex) Solve(ctx context.Context, sf *opt.StandardForm) (*Result, error) {
	n := sf.NumVars()
	if n == 0 {
		return nil, fmt.Errorf("solver: empty problem")
	}
	epi := newEpigraph(sf.P, s.opts.Tolerance)
	base := s.relaxation(sf, epi)
	discrete := append(append([]int(nil), sf.BoolIdx...), sf.IntIdx...)

	st := &search{
		s:        s,
		sf:       sf,
		epi:      epi,
		base:     base,
		discrete: discrete,
		best:     math.Inf(1),
	}
	res, err := st.run(ctx)
	if err != nil {
		return nil, err
	}
	s.log.Debugw("standard form solved", map[string]any{
		"status":    res.Status.String(),
		"objective": res.Objective,
		"nodes":     res.Nodes,
		"cuts":      res.Cuts,
		"vars":      n,
	})
	return res, nil
}

// relaxation builds the root LP: the original rows, 0 ≤ x ≤ 1 for booleans,
// the box on quadratic variables and s ≥ 0 for the epigraph variables.
func (s *Simplex) relaxation(sf *opt.StandardForm, epi *epigraph) *linearProgram {
	n := sf.NumVars()
	width := n + epi.size()
	c := make([]float64, width)
	copy(c, sf.Q)
	for k := n; k < width; k++ {
		c[k] = 1
	}
	p := &linearProgram{c: c, zero: 1e-12}
	widen := func(row []float64) []float64 {
		out := make([]float64, width)
		copy(out, row)
		return out
	}
	if sf.G != nil {
		for i, row := range denseRows(sf.G) {
			p.g = append(p.g, widen(row))
			p.h = append(p.h, sf.H[i])
		}
	}
	if sf.A != nil {
		for i, row := range denseRows(sf.A) {
			p.a = append(p.a, widen(row))
			p.b = append(p.b, sf.B[i])
		}
	}
	for _, j := range sf.BoolIdx {
		p.g = append(p.g, unit(width, j, 1), unit(width, j, -1))
		p.h = append(p.h, 1, 0)
	}
	for _, j := range epi.vars {
		p.g = append(p.g, unit(width, j, 1), unit(width, j, -1))
		p.h = append(p.h, s.opts.BoxBound, s.opts.BoxBound)
	}
	for k := n; k < width; k++ {
		p.g = append(p.g, unit(width, k, -1))
		p.h = append(p.h, 0)
	}
	return p
}

// onBox reports whether any quadratic variable sits on the artificial box.
func (st *search) onBox(x []float64) bool {
	limit := st.s.opts.BoxBound * (1 - 1e-6)
	for _, j := range st.epi.vars {
		if math.Abs(x[j]) >= limit {
			return true
		}
	}
	return false
}

func unit(n, j int, v float64) []float64 {
	row := make([]float64, n)
	row[j] = v
	return row
}

// branch is x_j ≤ v (upper) or x_j ≥ v.
type branch struct {
	j     int
	upper bool
	v     float64
}

type node struct {
	branches []branch
}

type search struct {
	s        *Simplex
	sf       *opt.StandardForm
	epi      *epigraph
	base     *linearProgram
	discrete []int

	cutRows [][]float64
	cutRHS  []float64

	best  float64
	bestX []float64
	nodes int
}

func (st *search) run(ctx context.Context) (*Result, error) {
	stack := []node{{}}
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if st.nodes >= st.s.opts.MaxNodes {
			if st.bestX == nil {
				return nil, ErrNodeLimit
			}
			st.s.log.Warnf("branch-and-bound stopped after %d nodes", st.nodes)
			return st.result(StatusNodeLimit), nil
		}
		nd := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		st.nodes++

		x, bound, status, err := st.solveNode(ctx, nd)
		if err != nil {
			return nil, err
		}
		switch {
		case status == lpInfeasible:
			continue
		case status == lpUnbounded || st.onBox(x):
			if st.nodes == 1 {
				return &Result{Status: StatusUnbounded, Nodes: st.nodes, Cuts: len(st.cutRows)}, nil
			}
			continue
		}
		if bound >= st.best-st.pruneGap() {
			continue
		}
		j, frac := st.mostFractional(x)
		if j < 0 {
			st.accept(x)
			continue
		}
		down := node{branches: append(append([]branch(nil), nd.branches...), branch{j: j, upper: true, v: math.Floor(x[j])})}
		up := node{branches: append(append([]branch(nil), nd.branches...), branch{j: j, upper: false, v: math.Ceil(x[j])})}
		// explore the nearer side first
		if frac > 0.5 {
			stack = append(stack, down, up)
		} else {
			stack = append(stack, up, down)
		}
	}
	if st.bestX == nil {
		return &Result{Status: StatusInfeasible, Nodes: st.nodes, Cuts: len(st.cutRows)}, nil
	}
	return st.result(StatusOptimal), nil
}

func (st *search) pruneGap() float64 {
	if math.IsInf(st.best, 1) {
		return 0
	}
	return 1e-9 * math.Max(1, math.Abs(st.best))
}

func (st *search) result(status Status) *Result {
	return &Result{
		Status:    status,
		Objective: st.best,
		X:         st.bestX,
		Nodes:     st.nodes,
		Cuts:      len(st.cutRows),
	}
}

// accept records x as the incumbent when it improves on the current one.
func (st *search) accept(x []float64) {
	x = append([]float64(nil), x...)
	for _, j := range st.discrete {
		x[j] = math.Round(x[j])
	}
	obj := st.sf.Objective(x)
	if obj < st.best {
		st.best = obj
		st.bestX = x
	}
}

// mostFractional returns the discrete index farthest from an integer and
// its fractional part, or -1 when x is integral.
func (st *search) mostFractional(x []float64) (int, float64) {
	best, bestDist, bestFrac := -1, st.s.opts.IntegralityTolerance, 0.0
	for _, j := range st.discrete {
		frac := x[j] - math.Floor(x[j])
		dist := math.Min(frac, 1-frac)
		if dist > bestDist {
			best, bestDist, bestFrac = j, dist, frac
		}
	}
	return best, bestFrac
}

// solveNode solves the relaxation at a node, adding tangent cuts until the
// epigraph matches the quadratic objective. It returns the primal x without
// epigraph variables and a lower bound on the node objective.
func (st *search) solveNode(ctx context.Context, nd node) ([]float64, float64, lpStatus, error) {
	n := st.sf.NumVars()
	width := len(st.base.c)
	var rows [][]float64
	var rhs []float64
	for _, b := range nd.branches {
		if b.upper {
			rows = append(rows, unit(width, b.j, 1))
			rhs = append(rhs, b.v)
		} else {
			rows = append(rows, unit(width, b.j, -1))
			rhs = append(rhs, -b.v)
		}
	}
	for round := 0; ; round++ {
		if err := ctx.Err(); err != nil {
			return nil, 0, 0, err
		}
		relaxed := st.base.with(append(append([][]float64(nil), rows...), st.cutRows...), append(append([]float64(nil), rhs...), st.cutRHS...))
		z, obj, status, err := relaxed.solve(ctx, st.s.opts)
		if err != nil || status != lpOptimal {
			return nil, 0, status, err
		}
		x := z[:n]
		bound := obj + st.sf.R
		if st.epi.size() == 0 {
			return x, bound, lpOptimal, nil
		}
		cuts, cutRHS, gap := st.epi.cuts(z, n)
		if len(cuts) == 0 || gap <= st.s.opts.CutTolerance*math.Max(1, math.Abs(st.sf.Objective(x))) {
			return x, bound, lpOptimal, nil
		}
		if round >= st.s.opts.MaxCuts {
			st.s.log.Warnf("cutting planes stopped at gap %.3g after %d rounds", gap, round)
			return x, bound, lpOptimal, nil
		}
		st.cutRows = append(st.cutRows, cuts...)
		st.cutRHS = append(st.cutRHS, cutRHS...)
	}
}

// epigraph replaces ½·xᵀPx by epigraph variables. A diagonal P gets one
// variable per nonzero diagonal entry, any other P a single variable.
type epigraph struct {
	p        *mat.SymDense
	diagonal bool
	idx      []int
	// vars lists the x indices that enter the quadratic term.
	vars []int
	// points holds the tangent points already cut, per epigraph variable.
	points [][][]float64
}

func newEpigraph(p *mat.SymDense, tol float64) *epigraph {
	e := &epigraph{p: p, diagonal: true}
	if p == nil {
		return e
	}
	n := p.SymmetricDim()
	for i := range n {
		for j := i + 1; j < n; j++ {
			if p.At(i, j) != 0 {
				e.diagonal = false
			}
		}
	}
	if e.diagonal {
		for i := range n {
			if p.At(i, i) > tol {
				e.idx = append(e.idx, i)
			}
		}
		e.vars = e.idx
		e.points = make([][][]float64, len(e.idx))
		return e
	}
	for i := range n {
		for j := range n {
			if p.At(i, j) != 0 {
				e.vars = append(e.vars, i)
				break
			}
		}
	}
	e.idx = []int{-1}
	e.points = make([][][]float64, 1)
	return e
}

// seen reports whether a cut at x was already added for epigraph k and
// records x otherwise.
func (e *epigraph) seen(k int, x []float64) bool {
	for _, pt := range e.points[k] {
		near := true
		for i, v := range x {
			if math.Abs(v-pt[i]) > 1e-9*math.Max(1, math.Abs(v)) {
				near = false
				break
			}
		}
		if near {
			return true
		}
	}
	e.points[k] = append(e.points[k], append([]float64(nil), x...))
	return false
}

func (e *epigraph) size() int { return len(e.idx) }

// cuts returns tangent cuts at z for every violated epigraph and the total
// violation. Cut rows are over [x, s].
func (e *epigraph) cuts(z []float64, n int) ([][]float64, []float64, float64) {
	width := len(z)
	var rows [][]float64
	var rhs []float64
	var gap float64
	if !e.diagonal {
		x := z[:n]
		px := mat.NewVecDense(n, nil)
		px.MulVec(e.p, mat.NewVecDense(n, append([]float64(nil), x...)))
		val := 0.5 * floats.Dot(x, px.RawVector().Data)
		if viol := val - z[n]; viol > 0 {
			gap = viol
			if e.seen(0, x) {
				return nil, nil, gap
			}
			// s ≥ xₖᵀP·x − ½·xₖᵀP·xₖ
			row := make([]float64, width)
			copy(row, px.RawVector().Data)
			row[n] = -1
			rows = append(rows, row)
			rhs = append(rhs, val)
		}
		return rows, rhs, gap
	}
	for k, i := range e.idx {
		p := e.p.At(i, i)
		xi := z[i]
		val := 0.5 * p * xi * xi
		s := z[n+k]
		if viol := val - s; viol > 0 {
			gap += viol
			if e.seen(k, []float64{xi}) {
				continue
			}
			// s ≥ p·xₖ·x − ½·p·xₖ²
			row := make([]float64, width)
			row[i] = p * xi
			row[n+k] = -1
			rows = append(rows, row)
			rhs = append(rhs, val)
		}
	}
	return rows, rhs, gap
}
