package solver

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xuwkk/power-system-operation/core/metrics"
	"github.com/xuwkk/power-system-operation/core/opt"
)

type recorder struct {
	events []metrics.SolveEvent
}

func (r *recorder) RecordSolve(ev metrics.SolveEvent) error {
	r.events = append(r.events, ev)
	return nil
}

func nonneg(p *opt.Problem, x opt.Vec) {
	p.GreaterEqual(p.Name()+"_nonneg", x, opt.ConstVec(make([]float64, len(x))))
}

// max x + y s.t. x + 2y ≤ 4, 3x + y ≤ 6, x, y ≥ 0
func lpProblem() *opt.Problem {
	p := opt.NewProblem("lp")
	x := p.NewVariable("x", opt.Shape{Rows: 1, Cols: 2}, opt.Continuous)
	capacity := p.NewParameter("cap", opt.Shape{Rows: 1, Cols: 2})
	p.AddCost(x.Flat().Dot([]float64{-1, -1}))
	p.LessEqual("rows", opt.Vec{
		x.At(0, 0).Plus(x.At(0, 1).Times(2)),
		x.At(0, 0).Times(3).Plus(x.At(0, 1)),
	}, capacity.Flat())
	nonneg(p, x.Flat())
	return p
}

func TestDriver_LP(t *testing.T) {
	rec := &recorder{}
	d := NewDriver(NewSimplex(Options{}, nil), WithRecorder(rec))
	p := lpProblem()
	res, err := d.Solve(context.Background(), p, opt.Binding{"cap": {4, 6}})
	require.NoError(t, err)
	assert.Equal(t, StatusOptimal, res.Status)
	assert.InDelta(t, -2.8, res.Objective, 1e-9)

	sol, err := GetSolution(p, 1)
	require.NoError(t, err)
	assert.InDelta(t, 1.6, sol["x"].At(0, 0), 1e-9)
	assert.InDelta(t, 1.2, sol["x"].At(0, 1), 1e-9)

	require.Len(t, rec.events, 1)
	assert.Equal(t, "lp", rec.events[0].Problem)
	assert.Equal(t, "optimal", rec.events[0].Status)

	// rebinding reuses the compiled form
	res, err = d.Solve(context.Background(), p, opt.Binding{"cap": {2, 6}})
	require.NoError(t, err)
	assert.InDelta(t, -2.0, res.Objective, 1e-9)
}

func TestDriver_ParametricMatchesSymbolic(t *testing.T) {
	d := NewDriver(NewSimplex(Options{}, nil))
	p := lpProblem()
	b := opt.Binding{"cap": {5, 7}}
	want, err := d.Solve(context.Background(), p, b)
	require.NoError(t, err)

	cf, err := p.Compiled()
	require.NoError(t, err)
	sf, err := cf.Parametric().Assemble(b)
	require.NoError(t, err)
	got, err := d.SolveStandard(context.Background(), "lp", sf)
	require.NoError(t, err)
	assert.InDelta(t, want.Objective, got.Objective, 1e-9)
	assert.InDeltaSlice(t, want.X, got.X, 1e-9)
}

// min (x−1)² + (y−2)² s.t. x + y = 2, 0 ≤ x, y ≤ 10
func TestSimplex_Quadratic(t *testing.T) {
	p := opt.NewProblem("qp")
	x := p.NewVariable("x", opt.Shape{Rows: 1, Cols: 2}, opt.Continuous)
	p.AddSquares(x.Flat().PlusConst([]float64{-1, -2}), []float64{1, 1})
	p.Equal("sum", opt.Vec{x.Flat().Sum()}, opt.ConstVec([]float64{2}))
	nonneg(p, x.Flat())
	p.LessEqual("upper", x.Flat(), opt.ConstVec([]float64{10, 10}))

	d := NewDriver(NewSimplex(Options{}, nil))
	res, err := d.Solve(context.Background(), p, opt.Binding{})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, res.Objective, 1e-6)
	assert.InDelta(t, 0.5, res.X[0], 1e-3)
	assert.InDelta(t, 1.5, res.X[1], 1e-3)
	assert.Positive(t, res.Cuts)
}

// max 5a + 4b + 3c s.t. 2a + 3b + c ≤ 5 over booleans
func knapsack() *opt.Problem {
	p := opt.NewProblem("knapsack")
	u := p.NewVariable("u", opt.Shape{Rows: 1, Cols: 3}, opt.Boolean)
	p.AddCost(u.Flat().Dot([]float64{-5, -4, -3}))
	p.LessEqual("weight", opt.Vec{u.Flat().Dot([]float64{2, 3, 1})}, opt.ConstVec([]float64{5}))
	return p
}

func TestSimplex_BranchAndBound(t *testing.T) {
	d := NewDriver(NewSimplex(Options{}, nil))
	p := knapsack()
	res, err := d.Solve(context.Background(), p, opt.Binding{})
	require.NoError(t, err)
	assert.InDelta(t, -9, res.Objective, 1e-9)
	assert.Equal(t, []float64{1, 1, 0}, res.X)
	assert.Greater(t, res.Nodes, 1)
}

func TestSimplex_Integer(t *testing.T) {
	p := opt.NewProblem("int")
	k := p.NewVariable("k", opt.Shape{Rows: 1, Cols: 1}, opt.Integer)
	p.AddCost(k.At(0, 0).Times(-1))
	p.LessEqual("cap", opt.Vec{k.At(0, 0).Times(2)}, opt.ConstVec([]float64{7}))
	nonneg(p, k.Flat())
	res, err := NewDriver(NewSimplex(Options{}, nil)).Solve(context.Background(), p, opt.Binding{})
	require.NoError(t, err)
	assert.Equal(t, []float64{3}, res.X)
}

func TestSimplex_NodeLimit(t *testing.T) {
	d := NewDriver(NewSimplex(Options{MaxNodes: 1}, nil))
	_, err := d.Solve(context.Background(), knapsack(), opt.Binding{})
	assert.ErrorIs(t, err, ErrNodeLimit)
}

func TestSimplex_Infeasible(t *testing.T) {
	p := opt.NewProblem("infeasible")
	x := p.NewVariable("x", opt.Shape{Rows: 1, Cols: 1}, opt.Continuous)
	p.GreaterEqual("low", x.Flat(), opt.ConstVec([]float64{2}))
	p.LessEqual("high", x.Flat(), opt.ConstVec([]float64{1}))
	p.AddCost(x.At(0, 0))

	_, err := NewDriver(NewSimplex(Options{}, nil)).Solve(context.Background(), p, opt.Binding{})
	var ie *InfeasibleSolveError
	require.True(t, errors.As(err, &ie), "got %v", err)
	assert.Equal(t, StatusInfeasible, ie.Status)
	assert.Equal(t, "infeasible", ie.Problem)
}

func TestSimplex_Unbounded(t *testing.T) {
	p := opt.NewProblem("unbounded")
	x := p.NewVariable("x", opt.Shape{Rows: 1, Cols: 2}, opt.Continuous)
	p.AddCost(x.At(0, 0).Times(-1))
	p.GreaterEqual("low", x.Flat(), opt.ConstVec([]float64{0, 0}))
	p.LessEqual("y", opt.Vec{x.At(0, 1)}, opt.ConstVec([]float64{1}))
	_, err := NewDriver(NewSimplex(Options{}, nil)).Solve(context.Background(), p, opt.Binding{})
	var ie *InfeasibleSolveError
	require.True(t, errors.As(err, &ie), "got %v", err)
	assert.Equal(t, StatusUnbounded, ie.Status)
}

func TestSimplex_RedundantEqualities(t *testing.T) {
	p := opt.NewProblem("redundant")
	x := p.NewVariable("x", opt.Shape{Rows: 1, Cols: 2}, opt.Continuous)
	rhs := p.NewParameter("rhs", opt.Shape{Rows: 1, Cols: 2})
	p.Equal("sum", opt.Vec{x.Flat().Sum(), x.Flat().Sum().Times(2)}, rhs.Flat())
	nonneg(p, x.Flat())
	p.AddCost(x.Flat().Dot([]float64{1, 3}))

	d := NewDriver(NewSimplex(Options{}, nil))
	res, err := d.Solve(context.Background(), p, opt.Binding{"rhs": {1, 2}})
	require.NoError(t, err)
	assert.InDelta(t, 1, res.Objective, 1e-9)

	_, err = d.Solve(context.Background(), p, opt.Binding{"rhs": {1, 3}})
	var ie *InfeasibleSolveError
	assert.True(t, errors.As(err, &ie), "got %v", err)
}

func TestSimplex_KernelFailure(t *testing.T) {
	orig := simplex
	defer func() { simplex = orig }()
	simplex = func(context.Context, *boxedProgram) ([]float64, error) {
		return nil, errors.New("boom")
	}
	_, err := NewDriver(NewSimplex(Options{}, nil)).Solve(context.Background(), lpProblem(), opt.Binding{"cap": {4, 6}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestSimplex_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewDriver(NewSimplex(Options{}, nil)).Solve(ctx, lpProblem(), opt.Binding{"cap": {4, 6}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDriver_BindingErrorsSurface(t *testing.T) {
	_, err := NewDriver(NewSimplex(Options{}, nil)).Solve(context.Background(), lpProblem(), opt.Binding{})
	var pm *opt.ParameterMismatchError
	assert.True(t, errors.As(err, &pm))
}

func TestGetSolution(t *testing.T) {
	p := opt.NewProblem("shape")
	p.NewVariable("pg", opt.Shape{Rows: 2, Cols: 3}, opt.Continuous)
	_, err := GetSolution(p, 2)
	assert.Error(t, err)

	require.NoError(t, p.SetSolution([]float64{1, 2, 3, 4, 5, 6}, 0))
	sol, err := GetSolution(p, 2)
	require.NoError(t, err)
	assert.Equal(t, 6.0, sol["pg"].At(1, 2))
	_, err = GetSolution(p, 4)
	assert.Error(t, err)
}

func TestIndependentRows(t *testing.T) {
	rows := [][]float64{{1, 1, 0}, {0, 1, 1}, {1, 2, 1}}
	kept, rhs, ok := independentRows(rows, []float64{1, 2, 3}, 1e-9)
	require.True(t, ok)
	assert.Len(t, kept, 2)
	assert.Equal(t, []float64{1, 2}, rhs)

	_, _, ok = independentRows(rows, []float64{1, 2, 4}, 1e-9)
	assert.False(t, ok)
}
