package operation

import (
	"gonum.org/v1/gonum/mat"

	"github.com/xuwkk/power-system-operation/core/grid"
	"github.com/xuwkk/power-system-operation/core/opt"
)

// Inputs carries the data bound to an operation problem, in per-unit.
// Matrices are (T, n). Fields a formulation does not declare are ignored.
type Inputs struct {
	Load, Solar, Wind *mat.Dense
	// Reserve holds one value per period, or a single value for all periods.
	Reserve []float64
	PgInit  []float64
	UgInit  []float64
	// Pg and Ug are the committed plan economic dispatch corrects.
	Pg, Ug *mat.Dense
}

// Binding returns the values for every parameter in names. A declared
// parameter without data fails with opt.ParameterMismatchError.
func (in Inputs) Binding(names Names) (opt.Binding, error) {
	b := opt.Binding{}
	for _, name := range names.Parameters {
		var values []float64
		switch name {
		case ParamLoad:
			values = flatten(in.Load)
		case ParamSolar:
			values = flatten(in.Solar)
		case ParamWind:
			values = flatten(in.Wind)
		case ParamReserve:
			values = in.Reserve
		case ParamPgInit:
			values = in.PgInit
		case ParamUgInit:
			values = in.UgInit
		case ParamPg:
			values = flatten(in.Pg)
		case ParamUg:
			values = flatten(in.Ug)
		}
		if values == nil {
			return nil, &opt.ParameterMismatchError{Name: name, Reason: "no input supplied"}
		}
		b.Set(name, values...)
	}
	return b, nil
}

// Periods returns the load forecast rows, or 0 without a forecast.
func (in Inputs) Periods() int {
	if in.Load == nil {
		return 0
	}
	r, _ := in.Load.Dims()
	return r
}

// Flows returns the branch flows theta·Bfᵀ + Pfshift for a (T, numBus)
// angle matrix, as a (T, numBranch) matrix.
func Flows(m *grid.Model, theta mat.Matrix) *mat.Dense {
	T, _ := theta.Dims()
	out := mat.NewDense(T, m.NumBranch, nil)
	out.Mul(theta, m.Bf.T())
	for t := range T {
		row := out.RawRowView(t)
		for i, s := range m.Pfshift {
			row[i] += s
		}
	}
	return out
}

func flatten(m *mat.Dense) []float64 {
	if m == nil {
		return nil
	}
	r, c := m.Dims()
	out := make([]float64, 0, r*c)
	for i := range r {
		out = append(out, m.RawRowView(i)...)
	}
	return out
}
