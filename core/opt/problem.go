// Package opt is a small symbolic layer for quadratic programs with affine
// constraints, and the compiler that extracts their standard form.
//
// A Problem declares variable and parameter blocks, a convex objective made
// of an affine part and weighted squares of affine expressions, and named
// constraint families. Parameters may only enter constraint constants, so
// the compiled form is affine in the parameters.
package opt

import (
	"fmt"
	"sync"
)

// Sense is the relation of a constraint family to zero.
type Sense int

const (
	// EQ is expr = 0.
	EQ Sense = iota
	// LEQ is expr ≤ 0.
	LEQ
	// SOC is ‖expr[1:]‖₂ ≤ expr[0]. It can be declared but not compiled.
	SOC
)

func (s Sense) String() string {
	switch s {
	case EQ:
		return "eq"
	case LEQ:
		return "leq"
	case SOC:
		return "soc"
	default:
		return fmt.Sprintf("Sense(%d)", int(s))
	}
}

// Constraint is a named family of scalar constraints.
type Constraint struct {
	Name  string
	Sense Sense
	Expr  Vec
}

type square struct {
	expr    Vec
	weights []float64
}

// Problem is a symbolic optimization problem. Declarations are not safe for
// concurrent use; a fully built problem may be compiled and solved from one
// goroutine at a time.
type Problem struct {
	name        string
	vars        []*Variable
	params      []*Parameter
	names       map[string]struct{}
	nVar        int
	nParam      int
	linear      Affine
	squares     []square
	constraints []Constraint

	once     sync.Once
	compiled *CompiledForm
	err      error

	solution  []float64
	objective float64
}

// NewProblem returns an empty problem.
func NewProblem(name string) *Problem {
	return &Problem{name: name, names: make(map[string]struct{})}
}

// Name returns the problem name.
func (p *Problem) Name() string { return p.name }

func (p *Problem) claim(name string) {
	if _, dup := p.names[name]; dup {
		panic(fmt.Sprintf("opt: %s: symbol %q declared twice", p.name, name))
	}
	if p.compiled != nil {
		panic(fmt.Sprintf("opt: %s: declaration after compile", p.name))
	}
	p.names[name] = struct{}{}
}

// NewVariable declares a variable block.
func (p *Problem) NewVariable(name string, shape Shape, kind Kind) *Variable {
	p.claim(name)
	v := &Variable{symbol: symbol{name: name, shape: shape, offset: p.nVar}, kind: kind}
	p.nVar += shape.Size()
	p.vars = append(p.vars, v)
	return v
}

// NewParameter declares a parameter block.
func (p *Problem) NewParameter(name string, shape Shape, opts ...ParamOption) *Parameter {
	p.claim(name)
	par := &Parameter{symbol: symbol{name: name, shape: shape, offset: p.nParam}}
	for _, o := range opts {
		o(par)
	}
	p.nParam += shape.Size()
	p.params = append(p.params, par)
	return par
}

// Variables returns the declared variables in declaration order.
func (p *Problem) Variables() []*Variable { return append([]*Variable(nil), p.vars...) }

// Parameters returns the declared parameters in declaration order.
func (p *Problem) Parameters() []*Parameter { return append([]*Parameter(nil), p.params...) }

// Variable looks up a variable by name.
func (p *Problem) Variable(name string) (*Variable, bool) {
	for _, v := range p.vars {
		if v.name == name {
			return v, true
		}
	}
	return nil, false
}

// Parameter looks up a parameter by name.
func (p *Problem) Parameter(name string) (*Parameter, bool) {
	for _, par := range p.params {
		if par.name == name {
			return par, true
		}
	}
	return nil, false
}

// NumVars returns the flattened variable count.
func (p *Problem) NumVars() int { return p.nVar }

// NumParams returns the flattened parameter count.
func (p *Problem) NumParams() int { return p.nParam }

// Constraints returns the declared constraint families.
func (p *Problem) Constraints() []Constraint { return append([]Constraint(nil), p.constraints...) }

// AddCost adds an affine term to the objective.
func (p *Problem) AddCost(a Affine) {
	p.linear = p.linear.Plus(a)
}

// AddSquares adds Σ w_i·x_i² to the objective. Weights must be nonnegative.
func (p *Problem) AddSquares(x Vec, w []float64) {
	x.mustMatch(len(w), "AddSquares")
	for i, wi := range w {
		if wi < 0 {
			panic(fmt.Sprintf("opt: %s: negative square weight %v at %d", p.name, wi, i))
		}
	}
	p.squares = append(p.squares, square{expr: x, weights: append([]float64(nil), w...)})
}

// Equal adds lhs = rhs.
func (p *Problem) Equal(name string, lhs, rhs Vec) {
	p.add(name, EQ, lhs.Minus(rhs))
}

// LessEqual adds lhs ≤ rhs.
func (p *Problem) LessEqual(name string, lhs, rhs Vec) {
	p.add(name, LEQ, lhs.Minus(rhs))
}

// GreaterEqual adds lhs ≥ rhs.
func (p *Problem) GreaterEqual(name string, lhs, rhs Vec) {
	p.add(name, LEQ, rhs.Minus(lhs))
}

// NormBound adds ‖x‖₂ ≤ t.
func (p *Problem) NormBound(name string, t Affine, x Vec) {
	p.add(name, SOC, Concat(Vec{t}, x))
}

func (p *Problem) add(name string, s Sense, expr Vec) {
	if p.compiled != nil {
		panic(fmt.Sprintf("opt: %s: constraint %q added after compile", p.name, name))
	}
	if len(expr) == 0 {
		return
	}
	p.constraints = append(p.constraints, Constraint{Name: name, Sense: s, Expr: expr})
}

// Compiled returns the standard form of the problem, compiling it on first
// use. Later calls return the same value.
func (p *Problem) Compiled() (*CompiledForm, error) {
	p.once.Do(func() {
		p.compiled, p.err = Compile(p)
	})
	return p.compiled, p.err
}

// SetSolution stores a flattened primal solution and its objective value.
func (p *Problem) SetSolution(x []float64, objective float64) error {
	if len(x) != p.nVar {
		return fmt.Errorf("opt: %s: solution has %d values, want %d", p.name, len(x), p.nVar)
	}
	p.solution = append([]float64(nil), x...)
	p.objective = objective
	return nil
}

// Solution returns the stored solution keyed by variable name, each in
// row-major order, and the objective value.
func (p *Problem) Solution() (map[string][]float64, float64, bool) {
	if p.solution == nil {
		return nil, 0, false
	}
	out := make(map[string][]float64, len(p.vars))
	for _, v := range p.vars {
		out[v.name] = append([]float64(nil), p.solution[v.offset:v.offset+v.Size()]...)
	}
	return out, p.objective, true
}

// Objective evaluates the objective at x.
func (p *Problem) Objective(x []float64) float64 {
	val := p.linear.Eval(x, nil)
	for _, sq := range p.squares {
		for i, e := range sq.expr {
			v := e.Eval(x, nil)
			val += sq.weights[i] * v * v
		}
	}
	return val
}
