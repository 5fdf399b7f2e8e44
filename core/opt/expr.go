package opt

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Affine is Σ a_j·x_j + Σ b_k·θ_k + c over variables x and parameters θ.
// The zero value is the constant 0. Affine values are immutable.
type Affine struct {
	vars   map[int]float64
	params map[int]float64
	c      float64
}

func varTerm(j int, a float64) Affine   { return Affine{vars: map[int]float64{j: a}} }
func paramTerm(k int, b float64) Affine { return Affine{params: map[int]float64{k: b}} }

// Const returns the constant expression c.
func Const(c float64) Affine { return Affine{c: c} }

// Constant returns the constant term.
func (a Affine) Constant() float64 { return a.c }

// HasParams reports whether any parameter term is present.
func (a Affine) HasParams() bool { return len(a.params) > 0 }

// HasVars reports whether any variable term is present.
func (a Affine) HasVars() bool { return len(a.vars) > 0 }

// Plus returns a + b.
func (a Affine) Plus(b Affine) Affine {
	out := a.clone(len(b.vars), len(b.params))
	out.addScaled(b, 1)
	return out
}

// Minus returns a − b.
func (a Affine) Minus(b Affine) Affine {
	out := a.clone(len(b.vars), len(b.params))
	out.addScaled(b, -1)
	return out
}

// Times returns k·a.
func (a Affine) Times(k float64) Affine {
	var out Affine
	out.addScaled(a, k)
	return out
}

// PlusConst returns a + c.
func (a Affine) PlusConst(c float64) Affine {
	out := a.clone(0, 0)
	out.c += c
	return out
}

// Eval evaluates the expression at variable values x and parameter values theta.
func (a Affine) Eval(x, theta []float64) float64 {
	v := a.c
	for j, coef := range a.vars {
		v += coef * x[j]
	}
	for k, coef := range a.params {
		v += coef * theta[k]
	}
	return v
}

func (a Affine) clone(extraVars, extraParams int) Affine {
	out := Affine{c: a.c}
	if len(a.vars)+extraVars > 0 {
		out.vars = make(map[int]float64, len(a.vars)+extraVars)
		for j, v := range a.vars {
			out.vars[j] = v
		}
	}
	if len(a.params)+extraParams > 0 {
		out.params = make(map[int]float64, len(a.params)+extraParams)
		for k, v := range a.params {
			out.params[k] = v
		}
	}
	return out
}

// addScaled adds k·b into a in place. Only used on freshly built values.
func (a *Affine) addScaled(b Affine, k float64) {
	if k == 0 {
		return
	}
	if len(b.vars) > 0 && a.vars == nil {
		a.vars = make(map[int]float64, len(b.vars))
	}
	for j, v := range b.vars {
		a.vars[j] += k * v
	}
	if len(b.params) > 0 && a.params == nil {
		a.params = make(map[int]float64, len(b.params))
	}
	for j, v := range b.params {
		a.params[j] += k * v
	}
	a.c += k * b.c
}

// Vec is a vector of affine expressions.
type Vec []Affine

// ConstVec lifts constants into a Vec.
func ConstVec(v []float64) Vec {
	out := make(Vec, len(v))
	for i, c := range v {
		out[i] = Const(c)
	}
	return out
}

func (v Vec) mustMatch(n int, op string) {
	if len(v) != n {
		panic(fmt.Sprintf("opt: %s length mismatch %d != %d", op, len(v), n))
	}
}

// Plus returns v + w.
func (v Vec) Plus(w Vec) Vec {
	v.mustMatch(len(w), "Plus")
	out := make(Vec, len(v))
	for i := range v {
		out[i] = v[i].Plus(w[i])
	}
	return out
}

// Minus returns v − w.
func (v Vec) Minus(w Vec) Vec {
	v.mustMatch(len(w), "Minus")
	out := make(Vec, len(v))
	for i := range v {
		out[i] = v[i].Minus(w[i])
	}
	return out
}

// Scale returns k·v.
func (v Vec) Scale(k float64) Vec {
	out := make(Vec, len(v))
	for i := range v {
		out[i] = v[i].Times(k)
	}
	return out
}

// PlusConst returns v + c elementwise.
func (v Vec) PlusConst(c []float64) Vec {
	v.mustMatch(len(c), "PlusConst")
	out := make(Vec, len(v))
	for i := range v {
		out[i] = v[i].PlusConst(c[i])
	}
	return out
}

// Hadamard returns w∘v.
func (v Vec) Hadamard(w []float64) Vec {
	v.mustMatch(len(w), "Hadamard")
	out := make(Vec, len(v))
	for i := range v {
		out[i] = v[i].Times(w[i])
	}
	return out
}

// Dot returns Σ w_i·v_i.
func (v Vec) Dot(w []float64) Affine {
	v.mustMatch(len(w), "Dot")
	var out Affine
	for i := range v {
		out.addScaled(v[i], w[i])
	}
	return out
}

// Sum returns Σ v_i.
func (v Vec) Sum() Affine {
	var out Affine
	for i := range v {
		out.addScaled(v[i], 1)
	}
	return out
}

// BlockSum sums consecutive blocks of n elements, returning len(v)/n entries.
func (v Vec) BlockSum(n int) Vec {
	if n <= 0 || len(v)%n != 0 {
		panic(fmt.Sprintf("opt: BlockSum block %d does not divide %d", n, len(v)))
	}
	out := make(Vec, len(v)/n)
	for b := range out {
		out[b] = v[b*n : (b+1)*n].Sum()
	}
	return out
}

// Select returns the elements at idx.
func (v Vec) Select(idx []int) Vec {
	out := make(Vec, len(idx))
	for i, j := range idx {
		out[i] = v[j]
	}
	return out
}

// Concat joins vectors.
func Concat(vs ...Vec) Vec {
	var n int
	for _, v := range vs {
		n += len(v)
	}
	out := make(Vec, 0, n)
	for _, v := range vs {
		out = append(out, v...)
	}
	return out
}

// MatMul returns m·x.
func MatMul(m mat.Matrix, x Vec) Vec {
	r, c := m.Dims()
	x.mustMatch(c, "MatMul")
	out := make(Vec, r)
	for i := range r {
		var acc Affine
		for j := range c {
			if a := m.At(i, j); a != 0 {
				acc.addScaled(x[j], a)
			}
		}
		out[i] = acc
	}
	return out
}

// BlockMul applies m to every consecutive block of x. With x the row-major
// flattening of a (T, n) matrix X it returns the flattening of X·mᵀ.
func BlockMul(m mat.Matrix, x Vec) Vec {
	_, c := m.Dims()
	if c == 0 || len(x)%c != 0 {
		panic(fmt.Sprintf("opt: BlockMul width %d does not divide %d", c, len(x)))
	}
	var out Vec
	for b := 0; b < len(x); b += c {
		out = append(out, MatMul(m, x[b:b+c])...)
	}
	return out
}

// Tile repeats v T times.
func Tile(v []float64, T int) []float64 {
	out := make([]float64, 0, len(v)*T)
	for range T {
		out = append(out, v...)
	}
	return out
}

// Fill returns n copies of c.
func Fill(c float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = c
	}
	return out
}
