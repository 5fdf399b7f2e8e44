// Package app wires configuration, grid data and infrastructure into the
// operations the command line exposes.
package app

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/xuwkk/power-system-operation/config"
	"github.com/xuwkk/power-system-operation/core/calibrate"
	"github.com/xuwkk/power-system-operation/core/grid"
	coremetrics "github.com/xuwkk/power-system-operation/core/metrics"
	"github.com/xuwkk/power-system-operation/core/operation"
	"github.com/xuwkk/power-system-operation/core/opt"
	"github.com/xuwkk/power-system-operation/core/scenario"
	"github.com/xuwkk/power-system-operation/core/solver"
	"github.com/xuwkk/power-system-operation/infra/gridfile"
	"github.com/xuwkk/power-system-operation/infra/logger"
	"github.com/xuwkk/power-system-operation/infra/metrics"
	"github.com/xuwkk/power-system-operation/infra/mqtt"
	datafile "github.com/xuwkk/power-system-operation/infra/scenario"
	"github.com/xuwkk/power-system-operation/infra/store"
	"github.com/xuwkk/power-system-operation/internal/eventbus"
)

// Service holds the loaded grid and the infrastructure built from the
// configuration.
type Service struct {
	Grid *grid.Model

	cfg       *config.Config
	backend   solver.Backend
	sink      coremetrics.MetricsSink
	publisher mqtt.Publisher
	store     calibrate.Store
	log       logger.Logger
}

// Option customises a Service.
type Option func(*Service)

// WithPublisher replaces the configured MQTT publisher.
func WithPublisher(p mqtt.Publisher) Option { return func(s *Service) { s.publisher = p } }

// WithStore replaces the configured calibration store.
func WithStore(st calibrate.Store) Option { return func(s *Service) { s.store = st } }

// WithSink replaces the configured metrics sink.
func WithSink(sink coremetrics.MetricsSink) Option { return func(s *Service) { s.sink = sink } }

// New loads the grid and opens the configured metrics sink, publisher and
// store. Options replace infrastructure before anything is opened.
func New(cfg *config.Config, opts ...Option) (*Service, error) {
	s := &Service{cfg: cfg, log: logger.New("service")}
	for _, o := range opts {
		o(s)
	}
	m, err := gridfile.LoadModel(cfg.Grid.Path)
	if err != nil {
		return nil, err
	}
	s.Grid = m
	s.backend = solver.NewSimplex(cfg.Solver, logger.New("solver"))

	if s.sink == nil {
		if s.sink, err = coremetrics.NewMetricsSink(cfg.Metrics.Sinks); err != nil {
			return nil, fmt.Errorf("metrics sink: %w", err)
		}
	}
	if s.publisher == nil {
		if s.publisher, err = mqtt.New(cfg.MQTT); err != nil {
			return nil, fmt.Errorf("mqtt publisher: %w", err)
		}
	}
	if s.store == nil {
		if s.store, err = store.New(cfg.Store); err != nil {
			return nil, fmt.Errorf("calibration store: %w", err)
		}
	}
	return s, nil
}

// StartMetrics serves Prometheus metrics until ctx is canceled when a port
// is configured.
func (s *Service) StartMetrics(ctx context.Context) {
	addr := s.cfg.Metrics.PrometheusPort
	if addr == "" {
		return
	}
	go func() {
		if err := metrics.StartPromServer(ctx, addr, nil); err != nil {
			s.log.Errorf("prom server: %v", err)
		}
	}()
}

// Series returns the configured load and renewable series in p.u.
func (s *Service) Series() (*scenario.Series, error) {
	d := s.cfg.Data
	if d.Synthetic {
		return scenario.Synthetic(s.Grid, d.Hours, d.Seed), nil
	}
	return datafile.Load(d.Dir, s.Grid, d.Hours)
}

// CompileReport describes the standard form of one formulation.
type CompileReport struct {
	Formulation operation.Formulation `json:"formulation"`
	Horizon     int                   `json:"horizon"`
	Variables   int                   `json:"variables"`
	EqRows      int                   `json:"eq_rows"`
	IneqRows    int                   `json:"ineq_rows"`
	Boolean     int                   `json:"boolean"`
	Integer     int                   `json:"integer"`
	Quadratic   bool                  `json:"quadratic"`
	Blocks      []RowBlock            `json:"blocks"`
	Parameters  []ParamOperator       `json:"parameters"`
}

// RowBlock is a constraint family and its rows.
type RowBlock struct {
	Name  string `json:"name"`
	Sense string `json:"sense"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// ParamOperator summarises the columns a parameter contributes to the
// equality and inequality right-hand sides.
type ParamOperator struct {
	Name      string `json:"name"`
	Shape     string `json:"shape"`
	Broadcast bool   `json:"broadcast,omitempty"`
	Boolean   bool   `json:"boolean,omitempty"`
	// EqNonZeros and IneqNonZeros count the non-zero operator entries.
	EqNonZeros   int `json:"eq_nonzeros"`
	IneqNonZeros int `json:"ineq_nonzeros"`
}

// Compile builds formulation f over T periods and reports its standard form.
func (s *Service) Compile(f operation.Formulation, T int) (*CompileReport, error) {
	p, err := operation.NewBuilder(s.Grid, operation.WithLogger(s.log)).Build(f, T)
	if err != nil {
		return nil, err
	}
	cf, err := p.Compiled()
	if err != nil {
		return nil, err
	}
	r := &CompileReport{
		Formulation: f,
		Horizon:     T,
		Variables:   cf.NumVars(),
		EqRows:      cf.NumEq(),
		IneqRows:    cf.NumIneq(),
		Boolean:     len(cf.BoolIdx),
		Integer:     len(cf.IntIdx),
		Quadratic:   cf.P != nil && nonZeros(cf.P) > 0,
	}
	for _, b := range cf.Rows {
		r.Blocks = append(r.Blocks, RowBlock{Name: b.Name, Sense: b.Sense.String(), Start: b.Start, End: b.End})
	}
	pf := cf.Parametric()
	for _, info := range pf.Params {
		r.Parameters = append(r.Parameters, ParamOperator{
			Name:         info.Name,
			Shape:        info.Shape.String(),
			Broadcast:    info.Broadcast,
			Boolean:      info.Boolean,
			EqNonZeros:   nonZeros(pf.B[info.Name]),
			IneqNonZeros: nonZeros(pf.H[info.Name]),
		})
	}
	return r, nil
}

func nonZeros(m mat.Matrix) int {
	if m == nil {
		return 0
	}
	if d, ok := m.(*mat.Dense); ok && d == nil {
		return 0
	}
	r, c := m.Dims()
	var n int
	for i := range r {
		for j := range c {
			if m.At(i, j) != 0 {
				n++
			}
		}
	}
	return n
}

// SolveRequest selects a window and the commitment formulation.
type SolveRequest struct {
	Start   int
	Horizon int
	// WithInt commits units with boolean variables.
	WithInt bool
	// LoadScale multiplies the load of the window. Zero means 1.
	LoadScale float64
	// Noise is the relative forecast error drawn for the commitment.
	Noise   float64
	Seed    uint64
	Publish bool
}

// SolveResult is the commitment solved on the forecast and the dispatch
// that follows it on the realised values.
type SolveResult struct {
	Start      int                 `json:"start"`
	Horizon    int                 `json:"horizon"`
	LoadScale  float64             `json:"load_scale"`
	Commitment *operation.Schedule `json:"commitment"`
	Dispatch   *operation.Schedule `json:"dispatch"`
}

// Solve commits units on a perturbed forecast of the window and dispatches
// them at the realised values.
func (s *Service) Solve(ctx context.Context, series *scenario.Series, req SolveRequest) (*SolveResult, error) {
	if req.LoadScale == 0 {
		req.LoadScale = 1
	}
	if req.Noise < 0 || req.Noise >= 1 {
		return nil, fmt.Errorf("app: forecast noise %g outside [0, 1)", req.Noise)
	}
	T := req.Horizon
	win, err := series.Window(req.Start, T)
	if err != nil {
		return nil, err
	}
	win.Load.Scale(req.LoadScale, win.Load)

	forecast := win
	if req.Noise > 0 {
		rng := rand.New(rand.NewPCG(req.Seed, uint64(req.Start)))
		forecast = win.Perturb(1-req.Noise, 1+req.Noise, rng)
	}

	m := s.Grid
	driver := solver.NewDriver(s.backend, solver.WithLogger(s.log), solver.WithRecorder(s.sink))
	b := operation.NewBuilder(m, operation.WithLogger(s.log))

	f := operation.NCUCNoInt
	if req.WithInt {
		f = operation.NCUCWithInt
	}
	pgInit := make([]float64, m.NumGen)
	floats.ScaleTo(pgInit, 0.5, m.Gen.PgMax)
	ucIn := operation.Inputs{
		Load:    forecast.Load,
		Solar:   forecast.Solar,
		Wind:    forecast.Wind,
		Reserve: []float64{s.cfg.Calibration.Reserve},
		PgInit:  pgInit,
		UgInit:  opt.Fill(1, m.NumGen),
	}
	uc, err := s.solveOne(ctx, driver, b, f, T, ucIn)
	if err != nil {
		return nil, err
	}
	commitment, err := operation.NewSchedule(m, uc, f, T, ucIn)
	if err != nil {
		return nil, err
	}

	sol, err := solver.GetSolution(uc, T)
	if err != nil {
		return nil, err
	}
	ug, ok := sol[operation.VarUg]
	if !ok {
		ug = mat.NewDense(T, m.NumGen, opt.Fill(1, T*m.NumGen))
	}
	edIn := operation.Inputs{Load: win.Load, Solar: win.Solar, Wind: win.Wind, Pg: sol[operation.VarPg], Ug: roundCommitment(ug)}
	ed, err := s.solveOne(ctx, driver, b, operation.ED, T, edIn)
	if err != nil {
		return nil, err
	}
	dispatch, err := operation.NewSchedule(m, ed, operation.ED, T, edIn)
	if err != nil {
		return nil, err
	}
	if shed := dispatch.TotalLoadShed(); shed > 0 {
		s.log.Warnf("window at hour %d sheds %.3f MW", req.Start, shed)
	}

	if req.Publish {
		if err := s.publisher.PublishSchedule(ctx, dispatch); err != nil {
			return nil, fmt.Errorf("publish schedule: %w", err)
		}
	}
	return &SolveResult{Start: req.Start, Horizon: T, LoadScale: req.LoadScale, Commitment: commitment, Dispatch: dispatch}, nil
}

func (s *Service) solveOne(ctx context.Context, d *solver.Driver, b *operation.Builder, f operation.Formulation, T int, in operation.Inputs) (*opt.Problem, error) {
	p, err := b.Build(f, T)
	if err != nil {
		return nil, err
	}
	names, err := operation.Declared(s.Grid, f, T)
	if err != nil {
		return nil, err
	}
	binding, err := in.Binding(names)
	if err != nil {
		return nil, err
	}
	if _, err := d.Solve(ctx, p, binding); err != nil {
		return nil, err
	}
	return p, nil
}

// roundCommitment snaps solver output for boolean commitments to 0 or 1.
func roundCommitment(ug *mat.Dense) *mat.Dense {
	out := mat.DenseCopyOf(ug)
	out.Apply(func(_, _ int, v float64) float64 {
		if v >= 0.5 {
			return 1
		}
		return 0
	}, out)
	return out
}

// Calibrate runs the calibration loop over series, records its progress on
// the metrics sink and publishes the result.
func (s *Service) Calibrate(ctx context.Context, series *scenario.Series) (*calibrate.Record, error) {
	bus := eventbus.New[calibrate.Event]()
	collectCtx, stop := context.WithCancel(ctx)
	done := metrics.StartEventCollector(collectCtx, bus, s.sink)

	opts := []calibrate.Option{
		calibrate.WithLogger(logger.New("calibrate")),
		calibrate.WithEvents(bus),
		calibrate.WithSolveRecorder(s.sink),
	}
	if s.store != nil {
		opts = append(opts, calibrate.WithStore(s.store))
	}
	r, err := calibrate.New(s.Grid, s.backend, s.cfg.Calibration, opts...)
	if err != nil {
		stop()
		<-done
		return nil, err
	}
	rec, err := r.Run(ctx, series)
	bus.Close()
	<-done
	stop()
	if err != nil {
		return nil, err
	}
	if err := s.publisher.PublishCalibration(ctx, rec); err != nil {
		return nil, fmt.Errorf("publish calibration: %w", err)
	}
	return rec, nil
}

// LatestCalibration returns the newest stored record for the configured case.
func (s *Service) LatestCalibration(ctx context.Context) (*calibrate.Record, error) {
	if s.store == nil {
		return nil, errors.New("app: no calibration store configured")
	}
	return s.store.Latest(ctx, s.cfg.Calibration.Case)
}

// WriteLimits writes the grid with the limits of rec to path.
func (s *Service) WriteLimits(path string, rec *calibrate.Record) error {
	return gridfile.WriteLimits(path, s.Grid, rec.LimitsMW)
}

// Close releases the publisher, the store and closable sinks.
func (s *Service) Close() error {
	var errs []error
	if s.publisher != nil {
		errs = append(errs, s.publisher.Close())
	}
	if s.store != nil {
		errs = append(errs, s.store.Close())
	}
	if c, ok := s.sink.(interface{ Close() }); ok {
		c.Close()
	}
	return errors.Join(errs...)
}
