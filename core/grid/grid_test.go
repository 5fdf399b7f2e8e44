package grid_test

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/xuwkk/power-system-operation/core/grid"
	"github.com/xuwkk/power-system-operation/core/grid/gridtest"
)

func TestNew_ThreeBusMatrices(t *testing.T) {
	m := gridtest.Model(t, gridtest.ThreeBus())

	assert.Equal(t, 3, m.NumBus)
	assert.Equal(t, 2, m.NumGen)
	assert.Equal(t, 1, m.NumLoad)
	assert.Equal(t, 3, m.NumBranch)
	assert.Equal(t, 0, m.NumSolar)
	assert.Nil(t, m.Cs)
	assert.Nil(t, m.Cw)
	assert.Equal(t, 0, m.SlackBus)

	wantA := mat.NewDense(3, 3, []float64{
		1, -1, 0,
		0, 1, -1,
		1, 0, -1,
	})
	assert.True(t, mat.Equal(wantA, m.A))

	wantBbus := mat.NewDense(3, 3, []float64{
		20, -10, -10,
		-10, 20, -10,
		-10, -10, 20,
	})
	assert.True(t, mat.EqualApprox(wantBbus, m.Bbus, 1e-12))
	assert.InDeltaSlice(t, []float64{0, 0, 0}, m.Pbusshift, 1e-12)

	assert.InDeltaSlice(t, []float64{1, 1}, m.Gen.PgMax, 1e-12)
	assert.InDeltaSlice(t, []float64{1000, 3000}, m.Gen.Cv, 1e-9)
	assert.InDeltaSlice(t, []float64{5, 5}, m.Gen.Cf, 1e-12)
	assert.InDeltaSlice(t, []float64{0.8}, m.LoadDefault, 1e-12)
	assert.InDeltaSlice(t, []float64{0.6, 0.6, 0.6}, m.PfMax, 1e-12)
	// ramp columns default to pgmax, ED ramps to ru/rd
	assert.InDeltaSlice(t, m.Gen.PgMax, m.Gen.Ru, 1e-12)
	assert.InDeltaSlice(t, m.Gen.PgMax, m.Gen.RdED, 1e-12)
}

func TestNew_IncidenceIsOneHot(t *testing.T) {
	m := gridtest.Model(t, gridtest.Case14())
	for _, c := range []*mat.Dense{m.Cg, m.Cl, m.Cs, m.Cw} {
		r, cols := c.Dims()
		require.Equal(t, m.NumBus, r)
		for j := range cols {
			assert.Equal(t, 1.0, mat.Sum(c.ColView(j)))
		}
	}
	for i := range m.NumBranch {
		row := m.A.RawRowView(i)
		assert.Equal(t, 0.0, sum(row))
		assert.Equal(t, 1.0, row[m.FromBus[i]])
		assert.Equal(t, -1.0, row[m.ToBus[i]])
	}
}

func TestNew_BbusIdentity(t *testing.T) {
	m := gridtest.Model(t, gridtest.Case14())
	d := mat.NewDiagDense(m.NumBranch, m.Bff)
	var tmp, want mat.Dense
	tmp.Mul(d, m.A)
	want.Mul(m.A.T(), &tmp)
	assert.True(t, mat.EqualApprox(&want, m.Bbus, 1e-9))

	// tap ratio 0.978 on branch 4-7
	assert.InDelta(t, 1/(0.20912*0.978), m.Bff[7], 1e-9)
	assert.InDelta(t, 1/0.05917, m.Bff[0], 1e-9)
}

func TestNew_PhaseShift(t *testing.T) {
	ts := gridtest.ThreeBus()
	ts[grid.RelBranch][grid.ColShiftAngle] = []float64{math.Pi / 2, 0, 0}
	m := gridtest.Model(t, ts)
	assert.InDelta(t, -0.5*10, m.Pfshift[0], 1e-9)
	// Pbusshift = Aᵗ·Pfshift
	assert.InDeltaSlice(t, []float64{-5, 5, 0}, m.Pbusshift, 1e-9)
}

func TestNew_SchemaErrors(t *testing.T) {
	cases := map[string]struct {
		mutate   func(grid.Tables)
		relation string
		column   string
	}{
		"missing gen": {
			mutate:   func(ts grid.Tables) { delete(ts, grid.RelGen) },
			relation: grid.RelGen,
		},
		"empty load": {
			mutate: func(ts grid.Tables) {
				ts[grid.RelLoad] = grid.Table{grid.ColIdx: {}, grid.ColDefault: {}}
			},
			relation: grid.RelLoad,
		},
		"bus out of range": {
			mutate:   func(ts grid.Tables) { ts[grid.RelGen][grid.ColIdx] = []float64{1, 4} },
			relation: grid.RelGen,
			column:   grid.ColIdx,
		},
		"zero index": {
			mutate:   func(ts grid.Tables) { ts[grid.RelLoad][grid.ColIdx] = []float64{0} },
			relation: grid.RelLoad,
			column:   grid.ColIdx,
		},
		"fractional index": {
			mutate:   func(ts grid.Tables) { ts[grid.RelLoad][grid.ColIdx] = []float64{1.5} },
			relation: grid.RelLoad,
			column:   grid.ColIdx,
		},
		"self loop": {
			mutate:   func(ts grid.Tables) { ts[grid.RelBranch][grid.ColTbus] = []float64{1, 3, 3} },
			relation: grid.RelBranch,
			column:   grid.ColTbus,
		},
		"unknown column": {
			mutate:   func(ts grid.Tables) { ts[grid.RelGen]["pmax"] = []float64{1, 2} },
			relation: grid.RelGen,
			column:   "pmax",
		},
		"unknown relation": {
			mutate:   func(ts grid.Tables) { ts["storage"] = grid.Table{} },
			relation: "storage",
		},
		"ragged columns": {
			mutate:   func(ts grid.Tables) { ts[grid.RelGen][grid.ColCv] = []float64{1} },
			relation: grid.RelGen,
		},
		"slack out of range": {
			mutate:   func(ts grid.Tables) { ts[grid.RelBasic][grid.ColSlackIdx] = []float64{9} },
			relation: grid.RelBasic,
			column:   grid.ColSlackIdx,
		},
		"zero reactance": {
			mutate:   func(ts grid.Tables) { ts[grid.RelBranch][grid.ColX] = []float64{0, 0.1, 0.1} },
			relation: grid.RelBranch,
			column:   grid.ColX,
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			ts := gridtest.ThreeBus()
			tc.mutate(ts)
			_, err := grid.New(ts)
			var se *grid.SchemaError
			require.True(t, errors.As(err, &se), "got %v", err)
			assert.Equal(t, tc.relation, se.Relation)
			if tc.column != "" {
				assert.Equal(t, tc.column, se.Column)
			}
		})
	}
}

func TestNew_DoesNotAliasInput(t *testing.T) {
	ts := gridtest.ThreeBus()
	m := gridtest.Model(t, ts)
	ts[grid.RelGen][grid.ColPgmax][0] = 1
	assert.InDelta(t, 1.0, m.Gen.PgMax[0], 1e-12)
	assert.Equal(t, 100.0, m.Tables()[grid.RelGen][grid.ColPgmax][0])
}

func TestWithBranchLimits(t *testing.T) {
	m := gridtest.Model(t, gridtest.ThreeBus())
	relaxed, err := m.WithBranchLimits([]float64{2, 2, 2})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{2, 2, 2}, relaxed.PfMax, 1e-12)
	assert.InDeltaSlice(t, []float64{0.6, 0.6, 0.6}, m.PfMax, 1e-12)
	assert.Equal(t, []float64{200, 200, 200}, relaxed.Tables()[grid.RelBranch][grid.ColPfmax])

	_, err = m.WithBranchLimits([]float64{1})
	assert.Error(t, err)
	_, err = m.WithBranchLimits([]float64{1, 0, 1})
	assert.Error(t, err)
}

func TestSummary(t *testing.T) {
	m := gridtest.Model(t, gridtest.ThreeBusRenewable())
	s := m.Summary()
	assert.InDelta(t, 2.0, s.GenCapacity, 1e-12)
	assert.InDelta(t, 0.2, s.SolarCapacity, 1e-12)
	assert.InDelta(t, 0.1, s.WindCapacity, 1e-12)
	assert.InDelta(t, 0.3/2.3, s.RenewableShare, 1e-12)
	assert.InDelta(t, 0.8/2.3, s.LoadPenetration, 1e-12)
}

func TestBranchFlow(t *testing.T) {
	m := gridtest.Model(t, gridtest.ThreeBus())
	flow := m.BranchFlow([]float64{0, -0.01, -0.02})
	assert.InDeltaSlice(t, []float64{0.1, 0.1, 0.2}, flow, 1e-12)
	assert.Panics(t, func() { m.BranchFlow([]float64{0}) })
}

func sum(v []float64) float64 {
	var s float64
	for _, x := range v {
		s += x
	}
	return s
}
