package operation

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/xuwkk/power-system-operation/core/grid"
	"github.com/xuwkk/power-system-operation/core/opt"
	"github.com/xuwkk/power-system-operation/core/solver"
)

// Schedule is a solved operation problem in MW, one row per period.
type Schedule struct {
	Formulation    Formulation `json:"formulation"`
	Horizon        int         `json:"horizon"`
	Objective      float64     `json:"objective"`
	Generation     [][]float64 `json:"generation_mw"`
	Commitment     [][]float64 `json:"commitment,omitempty"`
	LoadShed       [][]float64 `json:"load_shed_mw"`
	SolarCurtailed [][]float64 `json:"solar_curtailed_mw,omitempty"`
	WindCurtailed  [][]float64 `json:"wind_curtailed_mw,omitempty"`
	ExcessSupply   [][]float64 `json:"excess_supply_mw,omitempty"`
	Flows          [][]float64 `json:"flows_mw"`
}

// NewSchedule reads the solution stored on p, a problem of formulation f
// over T periods solved with inputs in. For economic dispatch the reported
// generation is the committed plan plus the correction.
func NewSchedule(m *grid.Model, p *opt.Problem, f Formulation, T int, in Inputs) (*Schedule, error) {
	sol, err := solver.GetSolution(p, T)
	if err != nil {
		return nil, err
	}
	_, obj, _ := p.Solution()
	s := &Schedule{Formulation: f, Horizon: T, Objective: obj}
	toMW := func(v *mat.Dense) [][]float64 { return rows(v, m.BaseMVA) }

	switch f {
	case ED:
		if in.Pg == nil || in.Ug == nil {
			return nil, fmt.Errorf("operation: %s schedule needs the committed plan", f)
		}
		var gen mat.Dense
		gen.Add(in.Pg, sol[VarDeltaPg])
		s.Generation = toMW(&gen)
		s.Commitment = rows(in.Ug, 1)
		s.ExcessSupply = toMW(sol[VarEs])
	default:
		s.Generation = toMW(sol[VarPg])
		if ug, ok := sol[VarUg]; ok {
			s.Commitment = rows(ug, 1)
		}
	}
	s.LoadShed = toMW(sol[VarLs])
	if v, ok := sol[VarSolarc]; ok {
		s.SolarCurtailed = toMW(v)
	}
	if v, ok := sol[VarWindc]; ok {
		s.WindCurtailed = toMW(v)
	}
	s.Flows = toMW(Flows(m, sol[VarTheta]))
	return s, nil
}

// TotalLoadShed returns the summed load shedding in MW.
func (s *Schedule) TotalLoadShed() float64 {
	var total float64
	for _, row := range s.LoadShed {
		for _, v := range row {
			total += v
		}
	}
	return total
}

func rows(v *mat.Dense, scale float64) [][]float64 {
	if v == nil {
		return nil
	}
	r, c := v.Dims()
	out := make([][]float64, r)
	for i := range out {
		out[i] = make([]float64, c)
		for j := range c {
			out[i][j] = v.At(i, j) * scale
		}
	}
	return out
}
