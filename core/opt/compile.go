package opt

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// StandardForm is
//
//	minimize   ½·xᵀPx + qᵀx + r
//	subject to A·x = b, G·x ≤ h
//
// with the elements listed in BoolIdx restricted to {0, 1} and those in
// IntIdx to integers. A and G are nil when there are no rows of that kind.
// Matrices may be shared with the CompiledForm that produced them and must
// not be modified.
type StandardForm struct {
	P       *mat.SymDense
	Q       []float64
	R       float64
	A       *mat.Dense
	B       []float64
	G       *mat.Dense
	H       []float64
	BoolIdx []int
	IntIdx  []int
}

// NumVars returns the length of x.
func (sf *StandardForm) NumVars() int { return len(sf.Q) }

// Objective evaluates ½·xᵀPx + qᵀx + r.
func (sf *StandardForm) Objective(x []float64) float64 {
	xv := mat.NewVecDense(len(x), append([]float64(nil), x...))
	return 0.5*mat.Inner(xv, sf.P, xv) + mat.Dot(mat.NewVecDense(len(sf.Q), sf.Q), xv) + sf.R
}

// MaxViolation returns the largest constraint violation at x, including
// integrality of the discrete elements.
func (sf *StandardForm) MaxViolation(x []float64) float64 {
	var worst float64
	xv := mat.NewVecDense(len(x), append([]float64(nil), x...))
	if sf.A != nil {
		r, _ := sf.A.Dims()
		ax := mat.NewVecDense(r, nil)
		ax.MulVec(sf.A, xv)
		for i := range r {
			worst = math.Max(worst, math.Abs(ax.AtVec(i)-sf.B[i]))
		}
	}
	if sf.G != nil {
		r, _ := sf.G.Dims()
		gx := mat.NewVecDense(r, nil)
		gx.MulVec(sf.G, xv)
		for i := range r {
			worst = math.Max(worst, gx.AtVec(i)-sf.H[i])
		}
	}
	for _, j := range sf.BoolIdx {
		worst = math.Max(worst, math.Max(-x[j], x[j]-1))
	}
	for _, j := range concatIdx(sf.BoolIdx, sf.IntIdx) {
		worst = math.Max(worst, math.Abs(x[j]-math.Round(x[j])))
	}
	return worst
}

func concatIdx(a, b []int) []int {
	out := make([]int, 0, len(a)+len(b))
	return append(append(out, a...), b...)
}

// RowBlock locates a constraint family in A (EQ) or G (LEQ).
type RowBlock struct {
	Name       string
	Sense      Sense
	Start, End int
}

// CompiledForm is the standard form of a problem with the parameter
// dependence kept symbolic: b = b0 + Bθ·θ and h = h0 + Hθ·θ, where θ is the
// flattened parameter vector in declaration order.
type CompiledForm struct {
	Name    string
	P       *mat.SymDense
	Q       []float64
	R       float64
	A       *mat.Dense
	G       *mat.Dense
	BoolIdx []int
	IntIdx  []int
	Rows    []RowBlock

	b0, h0         []float64
	bTheta, hTheta *mat.Dense
	params         []*Parameter
	nParam         int
}

// NumVars returns the flattened variable count.
func (cf *CompiledForm) NumVars() int { return len(cf.Q) }

// NumEq returns the number of equality rows.
func (cf *CompiledForm) NumEq() int { return len(cf.b0) }

// NumIneq returns the number of inequality rows.
func (cf *CompiledForm) NumIneq() int { return len(cf.h0) }

// Compile extracts the standard form of p. It fails with
// UnsupportedConstraintError when p contains a cone constraint or a
// parameter-dependent objective.
func Compile(p *Problem) (*CompiledForm, error) {
	n := p.nVar
	if n == 0 {
		return nil, fmt.Errorf("opt: %s: no variables", p.name)
	}
	if p.linear.HasParams() {
		return nil, &UnsupportedConstraintError{Problem: p.name, Constraint: "objective", Reason: "linear cost depends on parameters"}
	}

	var nEq, nIneq int
	cf := &CompiledForm{Name: p.name, params: p.params, nParam: p.nParam}
	for _, c := range p.constraints {
		switch c.Sense {
		case EQ:
			cf.Rows = append(cf.Rows, RowBlock{Name: c.Name, Sense: EQ, Start: nEq, End: nEq + len(c.Expr)})
			nEq += len(c.Expr)
		case LEQ:
			cf.Rows = append(cf.Rows, RowBlock{Name: c.Name, Sense: LEQ, Start: nIneq, End: nIneq + len(c.Expr)})
			nIneq += len(c.Expr)
		case SOC:
			return nil, &UnsupportedConstraintError{Problem: p.name, Constraint: c.Name, Reason: "second-order cone constraints have no standard-form representation"}
		default:
			return nil, &UnsupportedConstraintError{Problem: p.name, Constraint: c.Name, Reason: "unknown sense " + c.Sense.String()}
		}
	}

	cf.Q = make([]float64, n)
	for j, a := range p.linear.vars {
		cf.Q[j] = a
	}
	cf.R = p.linear.c
	cf.P = mat.NewSymDense(n, nil)
	for _, sq := range p.squares {
		for i, e := range sq.expr {
			w := sq.weights[i]
			if w == 0 {
				continue
			}
			if e.HasParams() {
				return nil, &UnsupportedConstraintError{Problem: p.name, Constraint: "objective", Reason: "squared term depends on parameters"}
			}
			idx := sortedKeys(e.vars)
			for a, k := range idx {
				ak := e.vars[k]
				cf.Q[k] += 2 * w * e.c * ak
				for _, l := range idx[a:] {
					cf.P.SetSym(k, l, cf.P.At(k, l)+2*w*ak*e.vars[l])
				}
			}
			cf.R += w * e.c * e.c
		}
	}

	cf.b0 = make([]float64, nEq)
	cf.h0 = make([]float64, nIneq)
	if nEq > 0 {
		cf.A = mat.NewDense(nEq, n, nil)
		if p.nParam > 0 {
			cf.bTheta = mat.NewDense(nEq, p.nParam, nil)
		}
	}
	if nIneq > 0 {
		cf.G = mat.NewDense(nIneq, n, nil)
		if p.nParam > 0 {
			cf.hTheta = mat.NewDense(nIneq, p.nParam, nil)
		}
	}
	var eqRow, ineqRow int
	for _, c := range p.constraints {
		m, rhs, theta, row := cf.A, cf.b0, cf.bTheta, &eqRow
		if c.Sense == LEQ {
			m, rhs, theta, row = cf.G, cf.h0, cf.hTheta, &ineqRow
		}
		for _, e := range c.Expr {
			for j, a := range e.vars {
				m.Set(*row, j, a)
			}
			rhs[*row] = -e.c
			for k, v := range e.params {
				theta.Set(*row, k, -v)
			}
			*row++
		}
	}

	for _, v := range p.vars {
		switch v.kind {
		case Boolean:
			cf.BoolIdx = appendRange(cf.BoolIdx, v.offset, v.Size())
		case Integer:
			cf.IntIdx = appendRange(cf.IntIdx, v.offset, v.Size())
		}
	}
	return cf, nil
}

// Evaluate binds parameter values and returns the numeric standard form.
func (cf *CompiledForm) Evaluate(b Binding) (*StandardForm, error) {
	theta, err := resolveAll(cf.params, cf.nParam, b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cf.Name, err)
	}
	return &StandardForm{
		P:       cf.P,
		Q:       cf.Q,
		R:       cf.R,
		A:       cf.A,
		B:       affine(cf.b0, cf.bTheta, theta),
		G:       cf.G,
		H:       affine(cf.h0, cf.hTheta, theta),
		BoolIdx: cf.BoolIdx,
		IntIdx:  cf.IntIdx,
	}, nil
}

func affine(c []float64, m *mat.Dense, theta []float64) []float64 {
	out := append([]float64(nil), c...)
	if m == nil || len(out) == 0 {
		return out
	}
	tv := mat.NewVecDense(len(out), nil)
	tv.MulVec(m, mat.NewVecDense(len(theta), theta))
	for i := range out {
		out[i] += tv.AtVec(i)
	}
	return out
}

func appendRange(dst []int, start, n int) []int {
	for i := range n {
		dst = append(dst, start+i)
	}
	return dst
}

func sortedKeys(m map[int]float64) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
