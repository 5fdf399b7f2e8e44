package solver

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"
)

// linearProgram is min cᵀx s.t. G·x ≤ h, A·x = b with x free. Rows are kept
// as dense slices so cuts and branching rows can be appended cheaply.
type linearProgram struct {
	c    []float64
	g    [][]float64
	h    []float64
	a    [][]float64
	b    []float64
	zero float64
}

type lpStatus int

const (
	lpOptimal lpStatus = iota
	lpInfeasible
	lpUnbounded
)

func denseRows(m *mat.Dense) [][]float64 {
	if m == nil {
		return nil
	}
	r, _ := m.Dims()
	rows := make([][]float64, r)
	for i := range r {
		rows[i] = m.RawRowView(i)
	}
	return rows
}

// with returns a shallow copy of p with extra inequality rows.
func (p *linearProgram) with(rows [][]float64, rhs []float64) *linearProgram {
	out := *p
	out.g = append(append([][]float64(nil), p.g...), rows...)
	out.h = append(append([]float64(nil), p.h...), rhs...)
	return &out
}

// solve runs the LP through presolve and the simplex kernel. Singleton
// inequality rows become column bounds, columns are shifted or reflected
// onto [0, u] and free ones split, remaining inequalities get slacks.
func (p *linearProgram) solve(ctx context.Context, opts Options) ([]float64, float64, lpStatus, error) {
	n := len(p.c)
	tiny, tol := p.zero, opts.Tolerance

	lower := make([]float64, n)
	upper := make([]float64, n)
	for j := range n {
		lower[j], upper[j] = math.Inf(-1), math.Inf(1)
	}
	var general []int
	for i, row := range p.g {
		j, coef, count := singleton(row, tiny)
		switch {
		case count == 0:
			if p.h[i] < -tol {
				return nil, 0, lpInfeasible, nil
			}
		case count == 1 && coef < 0:
			lower[j] = math.Max(lower[j], p.h[i]/coef)
		case count == 1:
			upper[j] = math.Min(upper[j], p.h[i]/coef)
		default:
			general = append(general, i)
		}
	}
	for j := range n {
		if lower[j] > upper[j]+tol*math.Max(1, math.Abs(upper[j])) {
			return nil, 0, lpInfeasible, nil
		}
		upper[j] = math.Max(upper[j], lower[j])
	}

	// x_j = offset_j + sign_j·y_col[j], free columns take y_col − y_col+1.
	offset := make([]float64, n)
	sign := make([]float64, n)
	col := make([]int, n)
	var capacity []float64
	for j := range n {
		col[j] = len(capacity)
		switch {
		case !math.IsInf(lower[j], -1):
			offset[j], sign[j] = lower[j], 1
			capacity = append(capacity, upper[j]-lower[j])
		case !math.IsInf(upper[j], 1):
			offset[j], sign[j] = upper[j], -1
			capacity = append(capacity, math.Inf(1))
		default:
			capacity = append(capacity, math.Inf(1), math.Inf(1))
		}
	}
	cols := len(capacity)
	expand := func(row []float64) []float64 {
		out := make([]float64, cols)
		for j, v := range row {
			if v == 0 {
				continue
			}
			if sign[j] == 0 {
				out[col[j]], out[col[j]+1] = v, -v
				continue
			}
			out[col[j]] = sign[j] * v
		}
		return out
	}

	c := expand(p.c)
	constant := floats.Dot(p.c, offset)
	var gRows, aRows [][]float64
	var hRows, bRows []float64
	for _, i := range general {
		gRows = append(gRows, expand(p.g[i]))
		hRows = append(hRows, p.h[i]-floats.Dot(p.g[i], offset))
	}
	for i, row := range p.a {
		aRows = append(aRows, expand(row))
		bRows = append(bRows, p.b[i]-floats.Dot(row, offset))
	}

	gRows, hRows, ok := dropEmptyRows(gRows, hRows, tiny, func(v float64) bool { return v >= -tol })
	if !ok {
		return nil, 0, lpInfeasible, nil
	}
	aRows, bRows, ok = dropEmptyRows(aRows, bRows, tiny, func(v float64) bool { return math.Abs(v) <= tol })
	if !ok {
		return nil, 0, lpInfeasible, nil
	}
	aRows, bRows, ok = independentRows(aRows, bRows, tol)
	if !ok {
		return nil, 0, lpInfeasible, nil
	}

	// Rows are scaled to unit max-norm, slacks follow the structural columns.
	m := len(gRows) + len(aRows)
	bp := &boxedProgram{
		b:         make([]float64, 0, m),
		c:         make([]float64, cols+len(gRows)),
		upper:     make([]float64, cols+len(gRows)),
		tol:       tol,
		maxPivots: opts.MaxPivots,
	}
	copy(bp.c, c)
	copy(bp.upper, capacity)
	for k := cols; k < len(bp.upper); k++ {
		bp.upper[k] = math.Inf(1)
	}
	if m > 0 {
		bp.a = mat.NewDense(m, len(bp.c), nil)
		for i, row := range append(gRows, aRows...) {
			scale := 1 / floats.Norm(row, math.Inf(1))
			dst := bp.a.RawRowView(i)
			floats.ScaleTo(dst[:cols], scale, row)
			if i < len(gRows) {
				dst[cols+i] = 1
				bp.b = append(bp.b, hRows[i]*scale)
				continue
			}
			bp.b = append(bp.b, bRows[i-len(gRows)]*scale)
		}
	}
	y, err := simplex(ctx, bp)
	switch {
	case errors.Is(err, lp.ErrInfeasible):
		return nil, 0, lpInfeasible, nil
	case errors.Is(err, lp.ErrUnbounded):
		return nil, 0, lpUnbounded, nil
	case err != nil:
		return nil, 0, 0, fmt.Errorf("simplex: %w", err)
	}

	x := make([]float64, n)
	for j := range n {
		if sign[j] == 0 {
			x[j] = y[col[j]] - y[col[j]+1]
			continue
		}
		x[j] = offset[j] + sign[j]*y[col[j]]
	}
	return x, floats.Dot(c, y[:cols]) + constant, lpOptimal, nil
}

func singleton(row []float64, tiny float64) (int, float64, int) {
	j, coef, count := -1, 0.0, 0
	for k, v := range row {
		if math.Abs(v) > tiny {
			j, coef = k, v
			count++
			if count > 1 {
				break
			}
		}
	}
	return j, coef, count
}

func dropEmptyRows(rows [][]float64, rhs []float64, tiny float64, feasible func(float64) bool) ([][]float64, []float64, bool) {
	var outRows [][]float64
	var outRHS []float64
	for i, row := range rows {
		if floats.Norm(row, math.Inf(1)) <= tiny {
			if !feasible(rhs[i]) {
				return nil, nil, false
			}
			continue
		}
		outRows = append(outRows, row)
		outRHS = append(outRHS, rhs[i])
	}
	return outRows, outRHS, true
}

// independentRows drops equality rows that are linear combinations of
// earlier ones, using modified Gram-Schmidt on the augmented rows [a | b].
// It reports false when a dependent row has an inconsistent right-hand side.
func independentRows(rows [][]float64, rhs []float64, tol float64) ([][]float64, []float64, bool) {
	type basis struct {
		q  []float64
		qb float64
	}
	var bs []basis
	var outRows [][]float64
	var outRHS []float64
	for i, row := range rows {
		v := append([]float64(nil), row...)
		vb := rhs[i]
		for _, e := range bs {
			d := floats.Dot(v, e.q)
			floats.AddScaled(v, -d, e.q)
			vb -= d * e.qb
		}
		norm := floats.Norm(v, 2)
		scale := math.Max(1, floats.Norm(row, 2))
		if norm <= 1e-9*scale {
			if math.Abs(vb) > math.Max(tol, 1e-9)*math.Max(1, math.Abs(rhs[i])) {
				return nil, nil, false
			}
			continue
		}
		floats.Scale(1/norm, v)
		bs = append(bs, basis{q: v, qb: vb / norm})
		outRows = append(outRows, row)
		outRHS = append(outRHS, rhs[i])
	}
	return outRows, outRHS, true
}
