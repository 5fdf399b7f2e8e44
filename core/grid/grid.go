// Package grid turns a tabular grid description into the dense DC power
// flow model used by the operation problems. All quantities on Model are in
// per-unit of BaseMVA and all indices are 0-based.
package grid

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// GenParams holds per-generator attributes in per-unit.
type GenParams struct {
	PgMax, PgMin []float64
	// Cf, Csu and Csd are per period or event; Cv is per p.u. and Cv2 per p.u. squared.
	Cf, Cv, Cv2, Csu, Csd, Ces []float64
	Ru, Rd, Rsu, Rsd           []float64
	RuED, RdED                 []float64
}

// Model is an immutable DC power flow description of a grid. Callers must
// not modify the matrices or slices it exposes.
type Model struct {
	BaseMVA    float64
	SlackBus   int
	SlackTheta float64

	NumBus, NumGen, NumLoad, NumBranch, NumSolar, NumWind int

	GenBus, LoadBus, SolarBus, WindBus []int
	FromBus, ToBus                     []int

	// Incidence matrices. Cs and Cw are nil when the grid has no solar or
	// wind units.
	Cg, Cl, Cs, Cw *mat.Dense
	// A is the branch by bus incidence, from minus to.
	A *mat.Dense
	// Bf maps bus angles to branch flows, Bbus is the nodal susceptance.
	Bf, Bbus *mat.Dense

	Bff       []float64
	Pfshift   []float64
	Pbusshift []float64
	Gsh       []float64
	PfMax     []float64

	Gen GenParams

	LoadDefault, Cls  []float64
	SolarDefault, Csc []float64
	WindDefault, Cwc  []float64

	tables Tables
}

// New validates the tables and builds the model.
func New(ts Tables) (*Model, error) {
	norm, err := normalize(ts)
	if err != nil {
		return nil, err
	}
	m := &Model{tables: norm}
	if err := m.readBasic(norm[RelBasic]); err != nil {
		return nil, err
	}
	if err := m.readBus(norm[RelBus]); err != nil {
		return nil, err
	}
	if err := m.readGen(norm[RelGen]); err != nil {
		return nil, err
	}
	if err := m.readLoad(norm[RelLoad]); err != nil {
		return nil, err
	}
	if err := m.readRenewables(norm); err != nil {
		return nil, err
	}
	if err := m.readBranch(norm[RelBranch]); err != nil {
		return nil, err
	}
	if m.SlackBus >= m.NumBus {
		return nil, &SchemaError{Relation: RelBasic, Column: ColSlackIdx, Row: 0, Reason: "slack bus out of range"}
	}
	return m, nil
}

// Tables returns a copy of the normalized description the model was built from.
func (m *Model) Tables() Tables { return m.tables.Clone() }

// WithBranchLimits returns a model identical to m except for the branch flow
// limits, given in per-unit.
func (m *Model) WithBranchLimits(limits []float64) (*Model, error) {
	if len(limits) != m.NumBranch {
		return nil, fmt.Errorf("grid: %d branch limits for %d branches", len(limits), m.NumBranch)
	}
	mw := make([]float64, len(limits))
	for i, l := range limits {
		if l <= 0 || math.IsNaN(l) || math.IsInf(l, 0) {
			return nil, fmt.Errorf("grid: branch %d limit %v must be positive and finite", i, l)
		}
		mw[i] = l * m.BaseMVA
	}
	out := *m
	out.PfMax = append([]float64(nil), limits...)
	ts, err := m.tables.WithBranchLimits(mw)
	if err != nil {
		return nil, err
	}
	out.tables = ts
	return &out, nil
}

func (m *Model) readBasic(t Table) error {
	if t.Rows() != 1 {
		return &SchemaError{Relation: RelBasic, Row: -1, Reason: "must have exactly one row"}
	}
	m.BaseMVA = t[ColBaseMVA][0]
	if m.BaseMVA <= 0 {
		return &SchemaError{Relation: RelBasic, Column: ColBaseMVA, Row: 0, Reason: "must be positive"}
	}
	slack, err := index(RelBasic, ColSlackIdx, 0, t[ColSlackIdx][0])
	if err != nil {
		return err
	}
	m.SlackBus = slack
	m.SlackTheta = t[ColSlackTheta][0]
	return nil
}

func (m *Model) readBus(t Table) error {
	m.NumBus = t.Rows()
	if m.NumBus == 0 {
		return &SchemaError{Relation: RelBus, Row: -1, Reason: "empty"}
	}
	for i, v := range t[ColIdx] {
		if v != float64(i+1) {
			return &SchemaError{Relation: RelBus, Column: ColIdx, Row: i, Reason: "bus indices must read 1..numBus in order"}
		}
	}
	m.Gsh = perUnit(t[ColGS], m.BaseMVA)
	return nil
}

func (m *Model) readGen(t Table) error {
	var err error
	m.NumGen = t.Rows()
	if m.NumGen == 0 {
		return &SchemaError{Relation: RelGen, Row: -1, Reason: "empty"}
	}
	if m.GenBus, err = m.busIndices(RelGen, ColIdx, t[ColIdx]); err != nil {
		return err
	}
	for i := range m.NumGen {
		if t[ColPgmin][i] > t[ColPgmax][i] {
			return &SchemaError{Relation: RelGen, Column: ColPgmin, Row: i, Reason: "pgmin exceeds pgmax"}
		}
	}
	base := m.BaseMVA
	m.Gen = GenParams{
		PgMax: perUnit(t[ColPgmax], base),
		PgMin: perUnit(t[ColPgmin], base),
		Cf:    clone(t[ColCf]),
		Cv:    scaled(t[ColCv], base),
		Cv2:   scaled(t[ColCv2], base*base),
		Csu:   clone(t[ColCsu]),
		Csd:   clone(t[ColCsd]),
		Ces:   scaled(t[ColCes], base),
		Ru:    perUnit(t[ColRu], base),
		Rd:    perUnit(t[ColRd], base),
		Rsu:   perUnit(t[ColRsu], base),
		Rsd:   perUnit(t[ColRsd], base),
		RuED:  perUnit(t[ColRued], base),
		RdED:  perUnit(t[ColRded], base),
	}
	m.Cg = m.incidence(m.GenBus)
	return nil
}

func (m *Model) readLoad(t Table) error {
	var err error
	m.NumLoad = t.Rows()
	if m.NumLoad == 0 {
		return &SchemaError{Relation: RelLoad, Row: -1, Reason: "empty"}
	}
	if m.LoadBus, err = m.busIndices(RelLoad, ColIdx, t[ColIdx]); err != nil {
		return err
	}
	m.LoadDefault = perUnit(t[ColDefault], m.BaseMVA)
	m.Cls = scaled(t[ColCls], m.BaseMVA)
	m.Cl = m.incidence(m.LoadBus)
	return nil
}

func (m *Model) readRenewables(ts Tables) error {
	var err error
	if t, ok := ts[RelSolar]; ok && t.Rows() > 0 {
		m.NumSolar = t.Rows()
		if m.SolarBus, err = m.busIndices(RelSolar, ColIdx, t[ColIdx]); err != nil {
			return err
		}
		m.SolarDefault = perUnit(t[ColDefault], m.BaseMVA)
		m.Csc = scaled(t[ColCsc], m.BaseMVA)
		m.Cs = m.incidence(m.SolarBus)
	}
	if t, ok := ts[RelWind]; ok && t.Rows() > 0 {
		m.NumWind = t.Rows()
		if m.WindBus, err = m.busIndices(RelWind, ColIdx, t[ColIdx]); err != nil {
			return err
		}
		m.WindDefault = perUnit(t[ColDefault], m.BaseMVA)
		m.Cwc = scaled(t[ColCwc], m.BaseMVA)
		m.Cw = m.incidence(m.WindBus)
	}
	return nil
}

func (m *Model) readBranch(t Table) error {
	var err error
	m.NumBranch = t.Rows()
	if m.NumBranch == 0 {
		return &SchemaError{Relation: RelBranch, Row: -1, Reason: "empty"}
	}
	if m.FromBus, err = m.busIndices(RelBranch, ColFbus, t[ColFbus]); err != nil {
		return err
	}
	if m.ToBus, err = m.busIndices(RelBranch, ColTbus, t[ColTbus]); err != nil {
		return err
	}
	m.A = mat.NewDense(m.NumBranch, m.NumBus, nil)
	m.Bff = make([]float64, m.NumBranch)
	m.Pfshift = make([]float64, m.NumBranch)
	for i := range m.NumBranch {
		if m.FromBus[i] == m.ToBus[i] {
			return &SchemaError{Relation: RelBranch, Column: ColTbus, Row: i, Reason: "from and to bus are the same"}
		}
		tap := t[ColTapRatio][i]
		if tap == 0 {
			tap = 1
		}
		xt := t[ColX][i] * tap
		if xt == 0 {
			return &SchemaError{Relation: RelBranch, Column: ColX, Row: i, Reason: "zero series reactance"}
		}
		m.A.Set(i, m.FromBus[i], 1)
		m.A.Set(i, m.ToBus[i], -1)
		m.Bff[i] = 1 / xt
		m.Pfshift[i] = -t[ColShiftAngle][i] / math.Pi * m.Bff[i]
	}
	for i, v := range t[ColPfmax] {
		if v <= 0 {
			return &SchemaError{Relation: RelBranch, Column: ColPfmax, Row: i, Reason: "must be positive"}
		}
	}
	m.PfMax = perUnit(t[ColPfmax], m.BaseMVA)

	m.Bf = mat.NewDense(m.NumBranch, m.NumBus, nil)
	m.Bf.Apply(func(i, _ int, v float64) float64 { return m.Bff[i] * v }, m.A)
	m.Bbus = mat.NewDense(m.NumBus, m.NumBus, nil)
	m.Bbus.Mul(m.A.T(), m.Bf)

	shift := mat.NewVecDense(m.NumBus, nil)
	shift.MulVec(m.A.T(), mat.NewVecDense(m.NumBranch, clone(m.Pfshift)))
	m.Pbusshift = shift.RawVector().Data
	return nil
}

// busIndices converts 1-based bus references into 0-based indices.
func (m *Model) busIndices(rel, col string, values []float64) ([]int, error) {
	out := make([]int, len(values))
	for i, v := range values {
		idx, err := index(rel, col, i, v)
		if err != nil {
			return nil, err
		}
		if idx >= m.NumBus {
			return nil, &SchemaError{Relation: rel, Column: col, Row: i, Reason: fmt.Sprintf("bus %v out of range [1, %d]", v, m.NumBus)}
		}
		out[i] = idx
	}
	return out, nil
}

// incidence builds the bus by asset one-hot matrix.
func (m *Model) incidence(bus []int) *mat.Dense {
	c := mat.NewDense(m.NumBus, len(bus), nil)
	for j, b := range bus {
		c.Set(b, j, 1)
	}
	return c
}

func index(rel, col string, row int, v float64) (int, error) {
	if v != math.Trunc(v) {
		return 0, &SchemaError{Relation: rel, Column: col, Row: row, Reason: "index is not an integer"}
	}
	if v < 1 {
		return 0, &SchemaError{Relation: rel, Column: col, Row: row, Reason: "index must be at least 1"}
	}
	return int(v) - 1, nil
}

func perUnit(v []float64, base float64) []float64 { return scaled(v, 1/base) }

func scaled(v []float64, k float64) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = x * k
	}
	return out
}

func clone(v []float64) []float64 { return append([]float64(nil), v...) }
