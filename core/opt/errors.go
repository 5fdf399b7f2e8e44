package opt

import "fmt"

// ParameterMismatchError reports a binding that omits, misshapes or adds a
// parameter relative to the declared ones.
type ParameterMismatchError struct {
	Name   string
	Reason string
	Want   int
	Got    int
}

func (e *ParameterMismatchError) Error() string {
	if e.Want != 0 || e.Got != 0 {
		return fmt.Sprintf("parameter %q: %s (want %d values, got %d)", e.Name, e.Reason, e.Want, e.Got)
	}
	return fmt.Sprintf("parameter %q: %s", e.Name, e.Reason)
}

// UnsupportedConstraintError reports a constraint family or objective term
// the standard form cannot represent.
type UnsupportedConstraintError struct {
	Problem    string
	Constraint string
	Reason     string
}

func (e *UnsupportedConstraintError) Error() string {
	return fmt.Sprintf("%s: constraint %q: %s", e.Problem, e.Constraint, e.Reason)
}
