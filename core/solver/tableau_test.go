package solver

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"

	"github.com/xuwkk/power-system-operation/core/opt"
)

func boxed(c []float64, rows [][]float64, b []float64, upper ...float64) *boxedProgram {
	bp := &boxedProgram{b: b, c: c, upper: opt.Fill(math.Inf(1), len(c)), tol: 1e-9}
	copy(bp.upper, upper)
	if len(rows) > 0 {
		bp.a = mat.NewDense(len(rows), len(c), nil)
		for i, row := range rows {
			bp.a.SetRow(i, row)
		}
	}
	return bp
}

// max x + y s.t. x + 2y ≤ 4, 3x + y ≤ 6 with explicit slacks
func slackLP() *boxedProgram {
	return boxed([]float64{-1, -1, 0, 0}, [][]float64{{1, 2, 1, 0}, {3, 1, 0, 1}}, []float64{4, 6})
}

func TestBoundedSimplex_MatchesGonum(t *testing.T) {
	bp := slackLP()
	want, wantX, err := lp.Simplex(bp.c, bp.a, bp.b, 1e-10, nil)
	require.NoError(t, err)

	y, err := boundedSimplex(context.Background(), bp)
	require.NoError(t, err)
	assert.InDelta(t, want, floats.Dot(bp.c, y), 1e-9)
	assert.InDeltaSlice(t, wantX, y, 1e-9)
}

func TestBoundedSimplex_UpperBounds(t *testing.T) {
	// max x + 2y s.t. x + y ≤ 3, x ≤ 2, y ≤ 1.5
	bp := boxed([]float64{-1, -2, 0}, [][]float64{{1, 1, 1}}, []float64{3}, 2, 1.5, math.Inf(1))
	y, err := boundedSimplex(context.Background(), bp)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{1.5, 1.5, 0}, y, 1e-9)
}

// Beale's example cycles under the textbook largest-coefficient rule.
func TestBoundedSimplex_DegenerateCycling(t *testing.T) {
	bp := boxed(
		[]float64{0, 0, 0, -0.75, 20, -0.5, 6},
		[][]float64{
			{1, 0, 0, 0.25, -8, -1, 9},
			{0, 1, 0, 0.5, -12, -0.5, 3},
			{0, 0, 1, 0, 0, 1, 0},
		},
		[]float64{0, 0, 1},
	)
	y, err := boundedSimplex(context.Background(), bp)
	require.NoError(t, err)
	assert.InDelta(t, -1.25, floats.Dot(bp.c, y), 1e-9)
	assert.InDelta(t, 0.75, y[0], 1e-9)
	assert.InDelta(t, 1, y[3], 1e-9)
	assert.InDelta(t, 1, y[5], 1e-9)
}

func TestBoundedSimplex_Status(t *testing.T) {
	_, err := boundedSimplex(context.Background(), boxed([]float64{1, 1}, [][]float64{{1, 1}}, []float64{-1}))
	assert.ErrorIs(t, err, lp.ErrInfeasible)

	_, err = boundedSimplex(context.Background(), boxed([]float64{-1, 0}, [][]float64{{1, -1}}, []float64{0}))
	assert.ErrorIs(t, err, lp.ErrUnbounded)

	y, err := boundedSimplex(context.Background(), boxed([]float64{1, -2}, nil, nil, 5, 3))
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 3}, y)

	_, err = boundedSimplex(context.Background(), boxed([]float64{1, -2}, nil, nil))
	assert.ErrorIs(t, err, lp.ErrUnbounded)
}

func TestBoundedSimplex_PivotLimit(t *testing.T) {
	bp := slackLP()
	bp.maxPivots = 1
	_, err := boundedSimplex(context.Background(), bp)
	assert.ErrorIs(t, err, ErrIterationLimit)

	_, err = NewDriver(NewSimplex(Options{MaxPivots: 1}, nil)).Solve(context.Background(), lpProblem(), opt.Binding{"cap": {4, 6}})
	assert.ErrorIs(t, err, ErrIterationLimit)
}

func TestBoundedSimplex_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := boundedSimplex(ctx, slackLP())
	assert.ErrorIs(t, err, context.Canceled)
}
