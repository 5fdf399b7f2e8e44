package opt

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// booleanTolerance bounds how far a boolean-valued parameter may sit from 0 or 1.
const booleanTolerance = 1e-6

// Binding maps parameter names to row-major values.
type Binding map[string][]float64

// Set binds name to values and returns b for chaining.
func (b Binding) Set(name string, values ...float64) Binding {
	b[name] = append([]float64(nil), values...)
	return b
}

// SetMatrix binds name to the row-major contents of m.
func (b Binding) SetMatrix(name string, m mat.Matrix) Binding {
	r, c := m.Dims()
	values := make([]float64, 0, r*c)
	for i := range r {
		for j := range c {
			values = append(values, m.At(i, j))
		}
	}
	b[name] = values
	return b
}

// resolve validates values for one parameter and expands broadcasts.
func resolve(p *Parameter, values []float64, ok bool) ([]float64, error) {
	if !ok {
		return nil, &ParameterMismatchError{Name: p.name, Reason: "missing from binding"}
	}
	n := p.Size()
	var out []float64
	switch {
	case len(values) == n:
		out = append([]float64(nil), values...)
	case len(values) == 1 && p.broadcast:
		out = Fill(values[0], n)
	default:
		return nil, &ParameterMismatchError{Name: p.name, Reason: "shape " + p.shape.String(), Want: n, Got: len(values)}
	}
	for i, v := range out {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, &ParameterMismatchError{Name: p.name, Reason: "value is not finite"}
		}
		if p.boolean {
			r := math.Round(v)
			if (r != 0 && r != 1) || math.Abs(v-r) > booleanTolerance {
				return nil, &ParameterMismatchError{Name: p.name, Reason: "value is not boolean"}
			}
			out[i] = r
		}
	}
	return out, nil
}

// checkExtra rejects names that are not declared.
func checkExtra(params []*Parameter, b Binding) error {
	declared := make(map[string]bool, len(params))
	for _, p := range params {
		declared[p.name] = true
	}
	var extra []string
	for name := range b {
		if !declared[name] {
			extra = append(extra, name)
		}
	}
	if len(extra) > 0 {
		sort.Strings(extra)
		return &ParameterMismatchError{Name: extra[0], Reason: "not declared"}
	}
	return nil
}

// resolveAll returns the full flattened parameter vector.
func resolveAll(params []*Parameter, n int, b Binding) ([]float64, error) {
	if err := checkExtra(params, b); err != nil {
		return nil, err
	}
	theta := make([]float64, n)
	for _, p := range params {
		values, ok := b[p.name]
		v, err := resolve(p, values, ok)
		if err != nil {
			return nil, err
		}
		copy(theta[p.offset:], v)
	}
	return theta, nil
}
