package opt

import "fmt"

// Kind is the domain of a decision variable.
type Kind int

const (
	Continuous Kind = iota
	Boolean
	Integer
)

func (k Kind) String() string {
	switch k {
	case Continuous:
		return "continuous"
	case Boolean:
		return "boolean"
	case Integer:
		return "integer"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Shape is the row-major shape of a symbol. Vectors use Rows = 1.
type Shape struct {
	Rows, Cols int
}

// Size returns Rows·Cols.
func (s Shape) Size() int { return s.Rows * s.Cols }

func (s Shape) String() string { return fmt.Sprintf("(%d, %d)", s.Rows, s.Cols) }

type symbol struct {
	name   string
	shape  Shape
	offset int
}

func (s *symbol) Name() string { return s.name }
func (s *symbol) Shape() Shape { return s.shape }
func (s *symbol) Size() int    { return s.shape.Size() }

// Offset is the position of the first element in the flattened vector of
// all symbols of the same sort.
func (s *symbol) Offset() int { return s.offset }

func (s *symbol) check(r, c int) int {
	if r < 0 || r >= s.shape.Rows || c < 0 || c >= s.shape.Cols {
		panic(fmt.Sprintf("opt: index (%d, %d) out of range for %s %v", r, c, s.name, s.shape))
	}
	return r*s.shape.Cols + c
}

// Variable is a decision variable block.
type Variable struct {
	symbol
	kind Kind
}

// Kind returns the variable domain.
func (v *Variable) Kind() Kind { return v.kind }

// At returns element (r, c) as an expression.
func (v *Variable) At(r, c int) Affine {
	return varTerm(v.offset+v.check(r, c), 1)
}

// Flat returns the row-major elements as expressions.
func (v *Variable) Flat() Vec {
	out := make(Vec, v.Size())
	for i := range out {
		out[i] = varTerm(v.offset+i, 1)
	}
	return out
}

// Row returns row r.
func (v *Variable) Row(r int) Vec {
	v.check(r, 0)
	return v.Flat()[r*v.shape.Cols : (r+1)*v.shape.Cols]
}

// Parameter is a named input bound at solve time.
type Parameter struct {
	symbol
	broadcast bool
	boolean   bool
}

// Broadcast reports whether a single value may be bound for every element.
func (p *Parameter) Broadcast() bool { return p.broadcast }

// Boolean reports whether bound values must be 0 or 1.
func (p *Parameter) Boolean() bool { return p.boolean }

// At returns element (r, c) as an expression.
func (p *Parameter) At(r, c int) Affine {
	return paramTerm(p.offset+p.check(r, c), 1)
}

// Flat returns the row-major elements as expressions.
func (p *Parameter) Flat() Vec {
	out := make(Vec, p.Size())
	for i := range out {
		out[i] = paramTerm(p.offset+i, 1)
	}
	return out
}

// ParamOption configures a parameter declaration.
type ParamOption func(*Parameter)

// Broadcastable lets a single bound value fill the whole parameter.
func Broadcastable() ParamOption { return func(p *Parameter) { p.broadcast = true } }

// BooleanValued requires bound values to be 0 or 1.
func BooleanValued() ParamOption { return func(p *Parameter) { p.boolean = true } }
