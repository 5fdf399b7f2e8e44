// Package operation formulates the grid operation problems: network
// constrained unit commitment with and without commitment variables, and
// economic dispatch. Every problem is laid out over horizon-flattened
// vectors: a (T, n) block is the row-major vector of length T·n.
package operation

import (
	"gonum.org/v1/gonum/floats"

	"github.com/xuwkk/power-system-operation/core/grid"
	"github.com/xuwkk/power-system-operation/core/logger"
	"github.com/xuwkk/power-system-operation/core/opt"
)

// Builder formulates operation problems on one grid. It keeps no state
// between calls and may be shared.
type Builder struct {
	grid *grid.Model
	log  logger.Logger
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithLogger sets the builder logger.
func WithLogger(l logger.Logger) BuilderOption {
	return func(b *Builder) { b.log = logger.OrNop(l) }
}

// NewBuilder returns a builder for m.
func NewBuilder(m *grid.Model, opts ...BuilderOption) *Builder {
	b := &Builder{grid: m, log: logger.Nop{}}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Grid returns the grid the builder formulates on.
func (b *Builder) Grid() *grid.Model { return b.grid }

// Build formulates f over T periods and checks the result against the
// declared name table.
func (b *Builder) Build(f Formulation, T int) (*opt.Problem, error) {
	names, err := Declared(b.grid, f, T)
	if err != nil {
		return nil, err
	}
	var p *opt.Problem
	switch f {
	case NCUCNoInt:
		p = b.ncucNoInt(T)
	case NCUCWithInt:
		p = b.ncucWithInt(T)
	case ED:
		p = b.ed(T)
	}
	if err := names.verify(symbolNames(p)); err != nil {
		return nil, err
	}
	b.log.Debugf("built %s: T=%d vars=%d params=%d constraints=%d", f, T, p.NumVars(), p.NumParams(), len(p.Constraints()))
	return p, nil
}

// NCUCNoInt formulates unit commitment without commitment variables.
func (b *Builder) NCUCNoInt(T int) (*opt.Problem, error) { return b.Build(NCUCNoInt, T) }

// NCUCWithInt formulates unit commitment with boolean commitment variables.
func (b *Builder) NCUCWithInt(T int) (*opt.Problem, error) { return b.Build(NCUCWithInt, T) }

// ED formulates economic dispatch around a committed plan.
func (b *Builder) ED(T int) (*opt.Problem, error) { return b.Build(ED, T) }

func symbolNames(p *opt.Problem) ([]string, []string) {
	var vars, params []string
	for _, v := range p.Variables() {
		vars = append(vars, v.Name())
	}
	for _, prm := range p.Parameters() {
		params = append(params, prm.Name())
	}
	return vars, params
}

func (b *Builder) ncucNoInt(T int) *opt.Problem {
	m := b.grid
	ng := m.NumGen
	p := opt.NewProblem(string(NCUCNoInt))
	pg := p.NewVariable(VarPg, opt.Shape{Rows: T, Cols: ng}, opt.Continuous)
	net := newNetwork(m, p, T)
	reserve := p.NewParameter(ParamReserve, opt.Shape{Rows: 1, Cols: T}, opt.Broadcastable())

	gen := pg.Flat()
	p.AddCost(gen.Dot(opt.Tile(m.Gen.Cv, T)))
	addSquares(p, gen, opt.Tile(m.Gen.Cv2, T))
	net.penalties()

	p.LessEqual("pg_max", gen, tiled(m.Gen.PgMax, T))
	p.GreaterEqual("pg_min", gen, tiled(m.Gen.PgMin, T))
	pgInit := p.NewParameter(ParamPgInit, opt.Shape{Rows: 1, Cols: ng})
	if T > 1 {
		step := gen[ng:].Minus(gen[:(T-1)*ng])
		p.LessEqual("ramp_up", step, tiled(m.Gen.Ru, T-1))
		p.GreaterEqual("ramp_down", step, tiled(m.Gen.Rd, T-1).Scale(-1))
	}
	first := gen[:ng].Minus(pgInit.Flat())
	p.LessEqual("ramp_up_init", first, opt.ConstVec(m.Gen.Ru))
	p.GreaterEqual("ramp_down_init", first, opt.ConstVec(m.Gen.Rd).Scale(-1))

	net.flowLimits()
	net.balance(gen)
	net.slack()

	// Σ pgmax ≥ Σ pg[t] + reserve[t]
	p.LessEqual("reserve", gen.BlockSum(ng).Plus(reserve.Flat()), opt.ConstVec(opt.Fill(floats.Sum(m.Gen.PgMax), T)))
	net.bounds()
	return p
}

func (b *Builder) ncucWithInt(T int) *opt.Problem {
	m := b.grid
	ng := m.NumGen
	p := opt.NewProblem(string(NCUCWithInt))
	pg := p.NewVariable(VarPg, opt.Shape{Rows: T, Cols: ng}, opt.Continuous)
	ug := p.NewVariable(VarUg, opt.Shape{Rows: T, Cols: ng}, opt.Boolean)
	var yg, zg *opt.Variable
	if T > 1 {
		yg = p.NewVariable(VarYg, opt.Shape{Rows: T, Cols: ng}, opt.Boolean)
		zg = p.NewVariable(VarZg, opt.Shape{Rows: T, Cols: ng}, opt.Boolean)
	}
	net := newNetwork(m, p, T)
	reserve := p.NewParameter(ParamReserve, opt.Shape{Rows: 1, Cols: T}, opt.Broadcastable())

	gen, on := pg.Flat(), ug.Flat()
	p.AddCost(on.Dot(opt.Tile(m.Gen.Cf, T)))
	p.AddCost(gen.Dot(opt.Tile(m.Gen.Cv, T)))
	addSquares(p, gen, opt.Tile(m.Gen.Cv2, T))
	net.penalties()

	p.LessEqual("pg_max", gen, on.Hadamard(opt.Tile(m.Gen.PgMax, T)))
	p.GreaterEqual("pg_min", gen, on.Hadamard(opt.Tile(m.Gen.PgMin, T)))

	if T > 1 {
		pgInit := p.NewParameter(ParamPgInit, opt.Shape{Rows: 1, Cols: ng})
		ugInit := p.NewParameter(ParamUgInit, opt.Shape{Rows: 1, Cols: ng}, opt.BooleanValued())
		up, down := yg.Flat(), zg.Flat()
		prevOn := opt.Concat(ugInit.Flat(), on[:(T-1)*ng])
		prevGen := opt.Concat(pgInit.Flat(), gen[:(T-1)*ng])

		p.Equal("transition", up.Minus(down), on.Minus(prevOn))
		p.LessEqual("startup_shutdown", up.Plus(down), opt.ConstVec(opt.Fill(1, T*ng)))
		// pg[t] − pg[t−1] ≤ ru∘ug[t−1] + rsu∘yg[t]
		p.LessEqual("ramp_up", gen.Minus(prevGen),
			prevOn.Hadamard(opt.Tile(m.Gen.Ru, T)).Plus(up.Hadamard(opt.Tile(m.Gen.Rsu, T))))
		// pg[t−1] − pg[t] ≤ rd∘ug[t] + rsd∘zg[t]
		p.LessEqual("ramp_down", prevGen.Minus(gen),
			on.Hadamard(opt.Tile(m.Gen.Rd, T)).Plus(down.Hadamard(opt.Tile(m.Gen.Rsd, T))))
		p.AddCost(up.Dot(opt.Tile(m.Gen.Csu, T)))
		p.AddCost(down.Dot(opt.Tile(m.Gen.Csd, T)))
	}

	net.flowLimits()
	net.balance(gen)
	net.slack()

	// Σ pgmax∘ug[t] ≥ Σ pg[t] + reserve[t]
	committed := on.Hadamard(opt.Tile(m.Gen.PgMax, T)).BlockSum(ng)
	p.LessEqual("reserve", gen.BlockSum(ng).Plus(reserve.Flat()).Minus(committed), zeros(T))
	net.bounds()
	return p
}

func (b *Builder) ed(T int) *opt.Problem {
	m := b.grid
	ng := m.NumGen
	p := opt.NewProblem(string(ED))
	delta := p.NewVariable(VarDeltaPg, opt.Shape{Rows: T, Cols: ng}, opt.Continuous)
	net := newNetwork(m, p, T)
	es := p.NewVariable(VarEs, opt.Shape{Rows: T, Cols: ng}, opt.Continuous)
	ug := p.NewParameter(ParamUg, opt.Shape{Rows: T, Cols: ng}, opt.BooleanValued())
	pg := p.NewParameter(ParamPg, opt.Shape{Rows: T, Cols: ng})

	dpg, excess, on := delta.Flat(), es.Flat(), ug.Flat()
	output := pg.Flat().Plus(dpg)
	p.AddCost(dpg.Dot(opt.Tile(m.Gen.Cv, T)))
	addSquares(p, dpg, opt.Tile(m.Gen.Cv2, T))
	p.AddCost(excess.Dot(opt.Tile(m.Gen.Ces, T)))
	net.penalties()

	p.LessEqual("pg_max", output, on.Hadamard(opt.Tile(m.Gen.PgMax, T)))
	p.GreaterEqual("pg_min", output, on.Hadamard(opt.Tile(m.Gen.PgMin, T)))
	p.LessEqual("ramp_up", dpg, tiled(m.Gen.RuED, T))
	p.GreaterEqual("ramp_down", dpg, tiled(m.Gen.RdED, T).Scale(-1))
	p.GreaterEqual("es_min", excess, zeros(T*ng))
	p.LessEqual("es_max", excess, output)

	net.flowLimits()
	net.balance(output.Minus(excess))
	net.slack()
	net.bounds()
	return p
}

// network holds the blocks shared by every formulation: angles, load
// shedding, renewable curtailment and their forecasts.
type network struct {
	m *grid.Model
	p *opt.Problem
	T int

	theta, ls, solarc, windc *opt.Variable
	load, solar, wind        *opt.Parameter
}

func newNetwork(m *grid.Model, p *opt.Problem, T int) *network {
	n := &network{m: m, p: p, T: T}
	n.theta = p.NewVariable(VarTheta, opt.Shape{Rows: T, Cols: m.NumBus}, opt.Continuous)
	n.ls = p.NewVariable(VarLs, opt.Shape{Rows: T, Cols: m.NumLoad}, opt.Continuous)
	n.load = p.NewParameter(ParamLoad, opt.Shape{Rows: T, Cols: m.NumLoad})
	if m.NumSolar > 0 {
		n.solarc = p.NewVariable(VarSolarc, opt.Shape{Rows: T, Cols: m.NumSolar}, opt.Continuous)
		n.solar = p.NewParameter(ParamSolar, opt.Shape{Rows: T, Cols: m.NumSolar})
	}
	if m.NumWind > 0 {
		n.windc = p.NewVariable(VarWindc, opt.Shape{Rows: T, Cols: m.NumWind}, opt.Continuous)
		n.wind = p.NewParameter(ParamWind, opt.Shape{Rows: T, Cols: m.NumWind})
	}
	return n
}

func (n *network) penalties() {
	n.p.AddCost(n.ls.Flat().Dot(opt.Tile(n.m.Cls, n.T)))
	if n.solarc != nil {
		n.p.AddCost(n.solarc.Flat().Dot(opt.Tile(n.m.Csc, n.T)))
	}
	if n.windc != nil {
		n.p.AddCost(n.windc.Flat().Dot(opt.Tile(n.m.Cwc, n.T)))
	}
}

// flowLimits adds |Bf·theta[t] + Pfshift| ≤ pfmax.
func (n *network) flowLimits() {
	flow := opt.BlockMul(n.m.Bf, n.theta.Flat()).PlusConst(opt.Tile(n.m.Pfshift, n.T))
	limit := tiled(n.m.PfMax, n.T)
	n.p.LessEqual("flow_max", flow, limit)
	n.p.GreaterEqual("flow_min", flow, limit.Scale(-1))
}

// balance adds the nodal balance for the flattened generator output gen.
func (n *network) balance(gen opt.Vec) {
	injection := opt.BlockMul(n.m.Cg, gen)
	if n.solar != nil {
		injection = injection.Plus(opt.BlockMul(n.m.Cs, n.solar.Flat().Minus(n.solarc.Flat())))
	}
	if n.wind != nil {
		injection = injection.Plus(opt.BlockMul(n.m.Cw, n.wind.Flat().Minus(n.windc.Flat())))
	}
	injection = injection.Minus(opt.BlockMul(n.m.Cl, n.load.Flat().Minus(n.ls.Flat())))
	lhs := opt.BlockMul(n.m.Bbus, n.theta.Flat()).PlusConst(opt.Tile(n.m.Pbusshift, n.T))
	n.p.Equal("power_balance", lhs, injection)
}

func (n *network) slack() {
	idx := make([]int, n.T)
	for t := range idx {
		idx[t] = t*n.m.NumBus + n.m.SlackBus
	}
	n.p.Equal("slack", n.theta.Flat().Select(idx), opt.ConstVec(opt.Fill(n.m.SlackTheta, n.T)))
}

// bounds adds 0 ≤ ls ≤ load and 0 ≤ curtailment ≤ forecast.
func (n *network) bounds() {
	box := func(name string, v *opt.Variable, upper *opt.Parameter) {
		n.p.GreaterEqual(name+"_min", v.Flat(), zeros(v.Size()))
		n.p.LessEqual(name+"_max", v.Flat(), upper.Flat())
	}
	box(VarLs, n.ls, n.load)
	if n.solarc != nil {
		box(VarSolarc, n.solarc, n.solar)
	}
	if n.windc != nil {
		box(VarWindc, n.windc, n.wind)
	}
}

func addSquares(p *opt.Problem, x opt.Vec, w []float64) {
	if floats.Max(w) > 0 {
		p.AddSquares(x, w)
	}
}

func tiled(v []float64, T int) opt.Vec { return opt.ConstVec(opt.Tile(v, T)) }

func zeros(n int) opt.Vec { return opt.ConstVec(make([]float64, n)) }

