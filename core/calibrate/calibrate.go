// Package calibrate tunes branch thermal limits by scanning rolling windows
// of a year of load and renewable data with the limits relaxed, tracking the
// largest flow each branch carries.
package calibrate

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/xuwkk/power-system-operation/core/grid"
	"github.com/xuwkk/power-system-operation/core/logger"
	"github.com/xuwkk/power-system-operation/core/metrics"
	"github.com/xuwkk/power-system-operation/core/operation"
	"github.com/xuwkk/power-system-operation/core/opt"
	"github.com/xuwkk/power-system-operation/core/scenario"
	"github.com/xuwkk/power-system-operation/core/solver"
	"github.com/xuwkk/power-system-operation/internal/eventbus"
)

// Config controls a calibration run. Limits and reserve are per-unit.
type Config struct {
	Case        string                `json:"case"`
	Formulation operation.Formulation `json:"formulation"`
	Horizon     int                   `json:"horizon"`
	Stride      int                   `json:"stride"`
	ScaleFactor float64               `json:"scale_factor"`
	MinLimit    float64               `json:"min_limit"`
	// Tolerance bounds the shedding and curtailment indicators.
	Tolerance float64 `json:"tolerance"`
	Workers   int     `json:"workers"`
	Reserve   float64 `json:"reserve"`
	// ForecastNoise, when positive, perturbs the commitment forecast by a
	// uniform factor in [1−noise, 1+noise), seeded per window by Seed.
	ForecastNoise float64 `json:"forecast_noise"`
	Seed          uint64  `json:"seed"`
	// ProgressEvery logs progress every n windows.
	ProgressEvery int `json:"progress_every"`
}

// SetDefaults fills zero fields.
func (c *Config) SetDefaults() {
	if c.Formulation == "" {
		c.Formulation = operation.ED
	}
	if c.Horizon == 0 {
		c.Horizon = 6
	}
	if c.Stride == 0 {
		c.Stride = c.Horizon
	}
	if c.ScaleFactor == 0 {
		c.ScaleFactor = 1
	}
	if c.Tolerance == 0 {
		c.Tolerance = 1e-6
	}
	if c.Workers == 0 {
		c.Workers = 1
	}
	if c.ProgressEvery == 0 {
		c.ProgressEvery = 100
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	switch c.Formulation {
	case operation.ED, operation.NCUCNoInt:
	default:
		return fmt.Errorf("calibrate: formulation must be %q or %q, got %q", operation.ED, operation.NCUCNoInt, c.Formulation)
	}
	if c.Horizon < 1 {
		return operation.ErrBadHorizon
	}
	if c.Stride < 1 {
		return fmt.Errorf("calibrate: stride must be positive")
	}
	if c.ScaleFactor <= 0 {
		return fmt.Errorf("calibrate: scale factor must be positive")
	}
	if c.MinLimit < 0 || c.Tolerance <= 0 || c.Reserve < 0 {
		return fmt.Errorf("calibrate: min limit and reserve must be nonnegative and tolerance positive")
	}
	if c.Workers < 1 {
		return fmt.Errorf("calibrate: workers must be positive")
	}
	if c.ForecastNoise < 0 || c.ForecastNoise >= 1 {
		return fmt.Errorf("calibrate: forecast noise must be in [0, 1)")
	}
	return nil
}

// Runner executes calibration runs on one grid.
type Runner struct {
	grid    *grid.Model
	backend solver.Backend
	cfg     Config
	log     logger.Logger
	events  *eventbus.Bus[Event]
	solves  metrics.SolveRecorder
	store   Store
	now     func() time.Time
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the runner logger.
func WithLogger(l logger.Logger) Option { return func(r *Runner) { r.log = logger.OrNop(l) } }

// WithEvents publishes progress on bus.
func WithEvents(bus *eventbus.Bus[Event]) Option { return func(r *Runner) { r.events = bus } }

// WithSolveRecorder records every solve in rec.
func WithSolveRecorder(rec metrics.SolveRecorder) Option { return func(r *Runner) { r.solves = rec } }

// WithStore saves every successful run to s.
func WithStore(s Store) Option { return func(r *Runner) { r.store = s } }

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(r *Runner) { r.now = now } }

// New returns a runner. cfg is defaulted and validated.
func New(m *grid.Model, backend solver.Backend, cfg Config, opts ...Option) (*Runner, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	r := &Runner{grid: m, backend: backend, cfg: cfg, log: logger.Nop{}, now: time.Now}
	for _, o := range opts {
		o(r)
	}
	return r, nil
}

// Config returns the effective configuration.
func (r *Runner) Config() Config { return r.cfg }

// Run scans series and returns the calibrated limits. Any invariant
// violation or solver failure aborts the run.
func (r *Runner) Run(ctx context.Context, series *scenario.Series) (*Record, error) {
	if err := series.Validate(r.grid); err != nil {
		return nil, err
	}
	starts := scenario.Starts(series.Hours(), r.cfg.Horizon, r.cfg.Stride)
	if len(starts) == 0 {
		return nil, fmt.Errorf("calibrate: %d hours hold no window of %d", series.Hours(), r.cfg.Horizon)
	}
	relaxed, err := r.grid.WithBranchLimits(opt.Fill(floats.Max(r.grid.Gen.PgMax), r.grid.NumBranch))
	if err != nil {
		return nil, err
	}
	runID := uuid.NewString()
	r.log.Infof("calibration %s: %d windows of %d hours on %d workers", runID, len(starts), r.cfg.Horizon, r.cfg.Workers)

	var (
		mu       sync.Mutex
		observed = make([]float64, r.grid.NumBranch)
		done     int
	)
	jobs := make(chan int)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(jobs)
		for i := range starts {
			select {
			case jobs <- i:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})
	for range min(r.cfg.Workers, len(starts)) {
		g.Go(func() error {
			w, err := r.newWorker(relaxed, series)
			if err != nil {
				return err
			}
			for i := range jobs {
				begin := time.Now()
				res, err := w.window(gctx, i, starts[i])
				ev := Event{RunID: runID, Window: i, Start: starts[i], Total: len(starts), Duration: time.Since(begin), Err: err, Time: r.now()}
				if err != nil {
					r.publish(ev)
					return err
				}
				mu.Lock()
				for k, f := range res.maxFlow {
					observed[k] = math.Max(observed[k], f)
				}
				done++
				ev.Done = done
				mu.Unlock()
				ev.Objective, ev.MaxFlow = res.objective, floats.Max(res.maxFlow)
				r.publish(ev)
				if ev.Done%r.cfg.ProgressEvery == 0 {
					r.log.Infof("calibration %s: %d/%d windows", runID, ev.Done, len(starts))
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		r.log.Errorf("calibration %s failed: %v", runID, err)
		return nil, err
	}

	rec := &Record{
		RunID:       runID,
		Case:        r.cfg.Case,
		Formulation: string(r.cfg.Formulation),
		CreatedAt:   r.now().UTC(),
		Horizon:     r.cfg.Horizon,
		Stride:      r.cfg.Stride,
		Windows:     len(starts),
		ScaleFactor: r.cfg.ScaleFactor,
		MinLimit:    r.cfg.MinLimit,
		Observed:    observed,
		Limits:      Limits(observed, r.cfg.ScaleFactor, r.cfg.MinLimit),
	}
	rec.LimitsMW = make([]float64, len(rec.Limits))
	floats.ScaleTo(rec.LimitsMW, r.grid.BaseMVA, rec.Limits)

	if r.store != nil {
		if err := r.store.Save(ctx, rec); err != nil {
			return nil, fmt.Errorf("calibrate: save %s: %w", runID, err)
		}
	}
	r.publish(Event{RunID: runID, Done: len(starts), Total: len(starts), Record: rec, Time: r.now()})
	r.log.Infof("calibration %s finished: max observed flow %.4f p.u.", runID, floats.Max(observed))
	return rec, nil
}

// Limits returns max(observed·scale, minLimit) per branch.
func Limits(observed []float64, scale, minLimit float64) []float64 {
	out := make([]float64, len(observed))
	for i, f := range observed {
		out[i] = math.Max(f*scale, minLimit)
	}
	return out
}

func (r *Runner) publish(ev Event) {
	if r.events != nil {
		r.events.Publish(ev)
	}
}

// worker owns one set of compiled problems. Problems are not safe for
// concurrent solves, so every worker builds its own.
type worker struct {
	cfg    Config
	grid   *grid.Model
	series *scenario.Series
	driver *solver.Driver

	uc, ed           *opt.Problem
	ucNames, edNames operation.Names
	pgInit           []float64
}

type windowResult struct {
	objective float64
	maxFlow   []float64
}

func (r *Runner) newWorker(m *grid.Model, series *scenario.Series) (*worker, error) {
	opts := []solver.Option{solver.WithLogger(r.log)}
	if r.solves != nil {
		opts = append(opts, solver.WithRecorder(r.solves))
	}
	w := &worker{
		cfg:    r.cfg,
		grid:   m,
		series: series,
		driver: solver.NewDriver(r.backend, opts...),
		pgInit: make([]float64, m.NumGen),
	}
	floats.ScaleTo(w.pgInit, 0.5, m.Gen.PgMax)
	b := operation.NewBuilder(m, operation.WithLogger(r.log))
	var err error
	T := r.cfg.Horizon
	if w.uc, err = b.NCUCNoInt(T); err != nil {
		return nil, err
	}
	if w.ucNames, err = operation.Declared(m, operation.NCUCNoInt, T); err != nil {
		return nil, err
	}
	if r.cfg.Formulation == operation.ED {
		if w.ed, err = b.ED(T); err != nil {
			return nil, err
		}
		if w.edNames, err = operation.Declared(m, operation.ED, T); err != nil {
			return nil, err
		}
	}
	return w, nil
}

// window solves one window and returns the largest absolute flow per branch.
func (w *worker) window(ctx context.Context, idx, start int) (*windowResult, error) {
	T := w.cfg.Horizon
	win, err := w.series.Window(start, T)
	if err != nil {
		return nil, err
	}
	if err := w.checkCapacity(idx, win); err != nil {
		return nil, err
	}

	forecast := win
	if w.cfg.ForecastNoise > 0 {
		rng := rand.New(rand.NewPCG(w.cfg.Seed, uint64(start)))
		forecast = win.Perturb(1-w.cfg.ForecastNoise, 1+w.cfg.ForecastNoise, rng)
	}
	ucIn := operation.Inputs{
		Load:    forecast.Load,
		Solar:   forecast.Solar,
		Wind:    forecast.Wind,
		Reserve: []float64{w.cfg.Reserve},
		PgInit:  w.pgInit,
	}
	final := w.uc
	if err := w.solve(ctx, w.uc, w.ucNames, ucIn); err != nil {
		return nil, err
	}

	if w.ed != nil {
		sol, err := solver.GetSolution(w.uc, T)
		if err != nil {
			return nil, err
		}
		ones := mat.NewDense(T, w.grid.NumGen, opt.Fill(1, T*w.grid.NumGen))
		edIn := operation.Inputs{Load: win.Load, Solar: win.Solar, Wind: win.Wind, Pg: sol[operation.VarPg], Ug: ones}
		if err := w.solve(ctx, w.ed, w.edNames, edIn); err != nil {
			return nil, err
		}
		final = w.ed
	}

	sol, err := solver.GetSolution(final, T)
	if err != nil {
		return nil, err
	}
	if err := w.checkIndicators(idx, start, sol); err != nil {
		return nil, err
	}
	_, obj, _ := final.Solution()
	res := &windowResult{objective: obj, maxFlow: make([]float64, w.grid.NumBranch)}
	flows := operation.Flows(w.grid, sol[operation.VarTheta])
	for t := range T {
		for k, f := range flows.RawRowView(t) {
			res.maxFlow[k] = math.Max(res.maxFlow[k], math.Abs(f))
		}
	}
	for k, f := range res.maxFlow {
		if limit := w.grid.PfMax[k]; f > limit+w.cfg.Tolerance {
			return nil, &InvariantViolation{Window: idx, Start: start, Period: -1, Check: CheckObservedFlowLimit, Value: f - limit, Tolerance: w.cfg.Tolerance}
		}
	}
	return res, nil
}

func (w *worker) solve(ctx context.Context, p *opt.Problem, names operation.Names, in operation.Inputs) error {
	b, err := in.Binding(names)
	if err != nil {
		return err
	}
	if _, err := w.driver.Solve(ctx, p, b); err != nil {
		var ie *solver.InfeasibleSolveError
		if errors.As(err, &ie) {
			return fmt.Errorf("calibrate: window with relaxed limits: %w", err)
		}
		return err
	}
	return nil
}

// checkCapacity requires Σload ≤ Σpgmax + Σsolar + Σwind in every period.
func (w *worker) checkCapacity(idx int, win scenario.Window) error {
	capacity := floats.Sum(w.grid.Gen.PgMax)
	for t := range w.cfg.Horizon {
		avail := capacity + rowSum(win.Solar, t) + rowSum(win.Wind, t)
		if excess := rowSum(win.Load, t) - avail; excess > w.cfg.Tolerance {
			return &InvariantViolation{Window: idx, Start: win.Start, Period: t, Check: CheckCapacity, Value: excess, Tolerance: w.cfg.Tolerance}
		}
	}
	return nil
}

// checkIndicators requires zero shedding and curtailment in every period.
func (w *worker) checkIndicators(idx, start int, sol map[string]*mat.Dense) error {
	checks := []struct {
		name  string
		check string
	}{
		{operation.VarLs, CheckLoadShed},
		{operation.VarSolarc, CheckSolarCurtailment},
		{operation.VarWindc, CheckWindCurtailment},
	}
	for _, c := range checks {
		v, ok := sol[c.name]
		if !ok {
			continue
		}
		for t := range w.cfg.Horizon {
			if s := rowSum(v, t); s > w.cfg.Tolerance {
				return &InvariantViolation{Window: idx, Start: start, Period: t, Check: c.check, Value: s, Tolerance: w.cfg.Tolerance}
			}
		}
	}
	return nil
}

func rowSum(m *mat.Dense, t int) float64 {
	if m == nil {
		return 0
	}
	return floats.Sum(m.RawRowView(t))
}
