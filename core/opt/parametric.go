package opt

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// ParamInfo describes a declared parameter.
type ParamInfo struct {
	Name      string
	Shape     Shape
	Broadcast bool
	Boolean   bool
}

// ParametricForm is the parameter-generic standard form: for a binding θ,
//
//	b = B0 + Σ B[name]·θ[name]
//	h = H0 + Σ H[name]·θ[name]
//
// P, q, A and G do not depend on parameters. B[name] has one column per
// element of the parameter, in row-major order. B (H) is empty when the
// problem has no equality (inequality) rows.
type ParametricForm struct {
	P       *mat.SymDense
	Q       []float64
	R       float64
	A       *mat.Dense
	G       *mat.Dense
	B0      []float64
	H0      []float64
	B       map[string]*mat.Dense
	H       map[string]*mat.Dense
	BoolIdx []int
	IntIdx  []int
	Params  []ParamInfo

	params []*Parameter
}

// Parametric splits the parameter operators of cf by parameter name.
func (cf *CompiledForm) Parametric() *ParametricForm {
	pf := &ParametricForm{
		P:       cf.P,
		Q:       cf.Q,
		R:       cf.R,
		A:       cf.A,
		G:       cf.G,
		B0:      append([]float64(nil), cf.b0...),
		H0:      append([]float64(nil), cf.h0...),
		B:       make(map[string]*mat.Dense),
		H:       make(map[string]*mat.Dense),
		BoolIdx: cf.BoolIdx,
		IntIdx:  cf.IntIdx,
		params:  cf.params,
	}
	for _, p := range cf.params {
		pf.Params = append(pf.Params, ParamInfo{Name: p.name, Shape: p.shape, Broadcast: p.broadcast, Boolean: p.boolean})
		if cf.bTheta != nil {
			pf.B[p.name] = columns(cf.bTheta, p.offset, p.Size())
		}
		if cf.hTheta != nil {
			pf.H[p.name] = columns(cf.hTheta, p.offset, p.Size())
		}
	}
	return pf
}

func columns(m *mat.Dense, start, n int) *mat.Dense {
	r, _ := m.Dims()
	return mat.DenseCopyOf(m.Slice(0, r, start, start+n))
}

// Assemble binds parameter values and returns the numeric standard form.
func (pf *ParametricForm) Assemble(b Binding) (*StandardForm, error) {
	if err := checkExtra(pf.params, b); err != nil {
		return nil, err
	}
	rhsB := append([]float64(nil), pf.B0...)
	rhsH := append([]float64(nil), pf.H0...)
	for _, p := range pf.params {
		values, ok := b[p.name]
		v, err := resolve(p, values, ok)
		if err != nil {
			return nil, err
		}
		theta := mat.NewVecDense(len(v), v)
		if m := pf.B[p.name]; m != nil {
			addMulVec(rhsB, m, theta)
		}
		if m := pf.H[p.name]; m != nil {
			addMulVec(rhsH, m, theta)
		}
	}
	return &StandardForm{
		P:       pf.P,
		Q:       pf.Q,
		R:       pf.R,
		A:       pf.A,
		B:       rhsB,
		G:       pf.G,
		H:       rhsH,
		BoolIdx: pf.BoolIdx,
		IntIdx:  pf.IntIdx,
	}, nil
}

func addMulVec(dst []float64, m *mat.Dense, v *mat.VecDense) {
	r, _ := m.Dims()
	if r != len(dst) {
		panic(fmt.Sprintf("opt: operator has %d rows, want %d", r, len(dst)))
	}
	tmp := mat.NewVecDense(r, nil)
	tmp.MulVec(m, v)
	for i := range dst {
		dst[i] += tmp.AtVec(i)
	}
}
