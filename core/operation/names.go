package operation

import (
	"errors"
	"fmt"
	"slices"

	"github.com/xuwkk/power-system-operation/core/grid"
)

// Formulation selects one of the operation problems.
type Formulation string

const (
	// NCUCNoInt is network-constrained unit commitment without commitment
	// variables.
	NCUCNoInt Formulation = "ncuc_no_int"
	// NCUCWithInt adds boolean commitment, start-up and shut-down variables.
	NCUCWithInt Formulation = "ncuc_with_int"
	// ED is economic dispatch around a committed generation plan.
	ED Formulation = "ed"
)

// Formulations lists every supported formulation.
var Formulations = []Formulation{NCUCNoInt, NCUCWithInt, ED}

// ErrBadHorizon is returned when a horizon below 1 is requested.
var ErrBadHorizon = errors.New("operation: horizon must be at least 1")

// ErrUnknownFormulation is returned for formulation names that are not supported.
var ErrUnknownFormulation = errors.New("operation: unknown formulation")

// ParseFormulation converts a configuration string.
func ParseFormulation(s string) (Formulation, error) {
	f := Formulation(s)
	if !slices.Contains(Formulations, f) {
		return "", fmt.Errorf("%w %q", ErrUnknownFormulation, s)
	}
	return f, nil
}

// Variable names.
const (
	VarPg      = "pg"
	VarTheta   = "theta"
	VarLs      = "ls"
	VarUg      = "ug"
	VarYg      = "yg"
	VarZg      = "zg"
	VarSolarc  = "solarc"
	VarWindc   = "windc"
	VarDeltaPg = "delta_pg"
	VarEs      = "es"
)

// Parameter names.
const (
	ParamLoad    = "load"
	ParamSolar   = "solar"
	ParamWind    = "wind"
	ParamReserve = "reserve"
	ParamPgInit  = "pg_init"
	ParamUgInit  = "ug_init"
	ParamUg      = "ug"
	ParamPg      = "pg"
)

// Names is the table of symbols a formulation declares for a grid and
// horizon.
type Names struct {
	Variables  []string
	Parameters []string
}

// Declared returns the variable and parameter names the formulation f
// declares on m with horizon T. NCUC-LP always ramps from pg_init. The
// single-period MILP has no initial condition, so its pg_init, ug_init, yg
// and zg only appear for T > 1.
func Declared(m *grid.Model, f Formulation, T int) (Names, error) {
	if T < 1 {
		return Names{}, ErrBadHorizon
	}
	var n Names
	switch f {
	case NCUCNoInt:
		n.Variables = []string{VarPg, VarTheta, VarLs}
		n.Parameters = []string{ParamLoad, ParamReserve, ParamPgInit}
	case NCUCWithInt:
		n.Variables = []string{VarPg, VarUg}
		if T > 1 {
			n.Variables = append(n.Variables, VarYg, VarZg)
		}
		n.Variables = append(n.Variables, VarTheta, VarLs)
		n.Parameters = []string{ParamLoad, ParamReserve}
		if T > 1 {
			n.Parameters = append(n.Parameters, ParamPgInit, ParamUgInit)
		}
	case ED:
		n.Variables = []string{VarDeltaPg, VarTheta, VarLs, VarEs}
		n.Parameters = []string{ParamLoad, ParamUg, ParamPg}
	default:
		return Names{}, fmt.Errorf("%w %q", ErrUnknownFormulation, f)
	}
	if m.NumSolar > 0 {
		n.Variables = append(n.Variables, VarSolarc)
		n.Parameters = append(n.Parameters, ParamSolar)
	}
	if m.NumWind > 0 {
		n.Variables = append(n.Variables, VarWindc)
		n.Parameters = append(n.Parameters, ParamWind)
	}
	return n, nil
}

// HasParameter reports whether name is a declared parameter.
func (n Names) HasParameter(name string) bool { return slices.Contains(n.Parameters, name) }

// HasVariable reports whether name is a declared variable.
func (n Names) HasVariable(name string) bool { return slices.Contains(n.Variables, name) }

// verify checks that the problem declares exactly the names in n.
func (n Names) verify(vars, params []string) error {
	same := func(a, b []string) bool {
		a, b = slices.Clone(a), slices.Clone(b)
		slices.Sort(a)
		slices.Sort(b)
		return slices.Equal(a, b)
	}
	if !same(n.Variables, vars) {
		return fmt.Errorf("operation: declared variables %v, built %v", n.Variables, vars)
	}
	if !same(n.Parameters, params) {
		return fmt.Errorf("operation: declared parameters %v, built %v", n.Parameters, params)
	}
	return nil
}
