// Package gridtest provides small grid descriptions for tests.
package gridtest

import (
	"testing"

	"github.com/xuwkk/power-system-operation/core/grid"
)

// ThreeBus is a triangle with two generators and one load of 80 MW at bus 3.
// Generator 1 (bus 1) costs 10/MWh and generator 2 (bus 2) costs 30/MWh. All
// branches have x = 0.1 and a 60 MW limit.
func ThreeBus() grid.Tables {
	return grid.Tables{
		grid.RelBasic: {
			grid.ColBaseMVA:  {100},
			grid.ColSlackIdx: {1},
		},
		grid.RelBus: {
			grid.ColIdx: {1, 2, 3},
		},
		grid.RelGen: {
			grid.ColIdx:   {1, 2},
			grid.ColPgmax: {100, 100},
			grid.ColPgmin: {0, 0},
			grid.ColCv:    {10, 30},
			grid.ColCf:    {5, 5},
			grid.ColCsu:   {20, 20},
			grid.ColCsd:   {10, 10},
			grid.ColCes:   {1, 1},
		},
		grid.RelLoad: {
			grid.ColIdx:     {3},
			grid.ColDefault: {80},
			grid.ColCls:     {1000},
		},
		grid.RelBranch: {
			grid.ColFbus:  {1, 2, 1},
			grid.ColTbus:  {2, 3, 3},
			grid.ColX:     {0.1, 0.1, 0.1},
			grid.ColPfmax: {60, 60, 60},
		},
	}
}

// ThreeBusRenewable is ThreeBus with a 20 MW solar unit at bus 3 and a 10 MW
// wind unit at bus 2.
func ThreeBusRenewable() grid.Tables {
	ts := ThreeBus()
	ts[grid.RelSolar] = grid.Table{
		grid.ColIdx:     {3},
		grid.ColDefault: {20},
		grid.ColCsc:     {500},
	}
	ts[grid.RelWind] = grid.Table{
		grid.ColIdx:     {2},
		grid.ColDefault: {10},
		grid.ColCwc:     {500},
	}
	return ts
}

// Case14 is the IEEE 14-bus system with one solar unit at bus 13 and one wind
// unit at bus 4. Generator minimum output is 10% of capacity and branch limits
// are 120 MW.
func Case14() grid.Tables {
	pgmax := []float64{332.4, 140, 100, 100, 100}
	frac := func(k float64) []float64 {
		out := make([]float64, len(pgmax))
		for i, v := range pgmax {
			out[i] = k * v
		}
		return out
	}
	limits := make([]float64, 20)
	for i := range limits {
		limits[i] = 120
	}
	return grid.Tables{
		grid.RelBasic: {
			grid.ColBaseMVA:  {100},
			grid.ColSlackIdx: {1},
		},
		grid.RelBus: {
			grid.ColIdx: {1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14},
		},
		grid.RelGen: {
			grid.ColIdx:   {1, 2, 3, 6, 8},
			grid.ColPgmax: pgmax,
			grid.ColPgmin: frac(0.1),
			grid.ColCf:    {100, 80, 60, 60, 60},
			grid.ColCv:    {20, 20, 40, 40, 40},
			grid.ColCv2:   {0.0430292599, 0.25, 0.01, 0.01, 0.01},
			grid.ColCsu:   {200, 150, 100, 100, 100},
			grid.ColCsd:   {50, 40, 30, 30, 30},
			grid.ColCes:   {10, 10, 10, 10, 10},
			grid.ColRu:    frac(0.5),
			grid.ColRd:    frac(0.5),
			grid.ColRsu:   frac(0.5),
			grid.ColRsd:   frac(0.5),
			grid.ColRued:  pgmax,
			grid.ColRded:  pgmax,
		},
		grid.RelLoad: {
			grid.ColIdx:     {2, 3, 4, 5, 6, 9, 10, 11, 12, 13, 14},
			grid.ColDefault: {21.7, 94.2, 47.8, 7.6, 11.2, 29.5, 9, 3.5, 6.1, 13.5, 14.9},
			grid.ColCls:     {400, 400, 400, 400, 400, 400, 400, 400, 400, 400, 400},
		},
		grid.RelBranch: {
			grid.ColFbus: {1, 1, 2, 2, 2, 3, 4, 4, 4, 5, 6, 6, 6, 7, 7, 9, 9, 10, 12, 13},
			grid.ColTbus: {2, 5, 3, 4, 5, 4, 5, 7, 9, 6, 11, 12, 13, 8, 9, 10, 14, 11, 13, 14},
			grid.ColX: {
				0.05917, 0.22304, 0.19797, 0.17632, 0.17388, 0.17103, 0.04211, 0.20912, 0.55618, 0.25202,
				0.1989, 0.25581, 0.13027, 0.17615, 0.11001, 0.0845, 0.27038, 0.19207, 0.19988, 0.34802,
			},
			grid.ColTapRatio: {0, 0, 0, 0, 0, 0, 0, 0.978, 0.969, 0.932, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0},
			grid.ColPfmax:    limits,
		},
		grid.RelSolar: {
			grid.ColIdx:     {13},
			grid.ColDefault: {40},
			grid.ColCsc:     {200},
		},
		grid.RelWind: {
			grid.ColIdx:     {4},
			grid.ColDefault: {60},
			grid.ColCwc:     {200},
		},
	}
}

// Model builds a model from ts and fails the test on error.
func Model(t testing.TB, ts grid.Tables) *grid.Model {
	t.Helper()
	m, err := grid.New(ts)
	if err != nil {
		t.Fatalf("grid model: %v", err)
	}
	return m
}
