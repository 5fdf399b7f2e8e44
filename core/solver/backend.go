// Package solver solves compiled standard forms and maps solutions back onto
// the symbolic problems they came from.
package solver

import (
	"context"
	"errors"
	"fmt"

	"github.com/xuwkk/power-system-operation/core/opt"
)

// Status is the outcome of a solve.
type Status int

const (
	StatusUnknown Status = iota
	StatusOptimal
	StatusInfeasible
	StatusUnbounded
	// StatusNodeLimit means branch-and-bound stopped early with a feasible
	// incumbent that may not be optimal.
	StatusNodeLimit
)

func (s Status) String() string {
	switch s {
	case StatusOptimal:
		return "optimal"
	case StatusInfeasible:
		return "infeasible"
	case StatusUnbounded:
		return "unbounded"
	case StatusNodeLimit:
		return "node_limit"
	default:
		return "unknown"
	}
}

// Result is a solver outcome. X is the flattened primal solution in the
// variable order of the standard form and is nil unless a solution exists.
type Result struct {
	Status    Status
	Objective float64
	X         []float64
	Nodes     int
	Cuts      int
}

// Backend solves a standard form. Implementations report infeasible and
// unbounded problems through Result.Status, not through the error.
type Backend interface {
	Solve(ctx context.Context, sf *opt.StandardForm) (*Result, error)
}

// BackendFunc adapts a function to Backend.
type BackendFunc func(ctx context.Context, sf *opt.StandardForm) (*Result, error)

// Solve calls f.
func (f BackendFunc) Solve(ctx context.Context, sf *opt.StandardForm) (*Result, error) {
	return f(ctx, sf)
}

// InfeasibleSolveError reports that the solver found no optimal solution.
type InfeasibleSolveError struct {
	Problem string
	Status  Status
}

func (e *InfeasibleSolveError) Error() string {
	return fmt.Sprintf("solve %s: %s", e.Problem, e.Status)
}

// ErrNodeLimit is returned when branch-and-bound hits its node limit before
// finding any integer-feasible point.
var ErrNodeLimit = errors.New("solver: node limit reached without incumbent")
