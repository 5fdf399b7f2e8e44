package solver

import (
	"context"
	"fmt"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/xuwkk/power-system-operation/core/logger"
	"github.com/xuwkk/power-system-operation/core/metrics"
	"github.com/xuwkk/power-system-operation/core/opt"
)

// Driver compiles a problem once, binds parameters on every call and hands
// the standard form to a Backend. A Driver is safe for concurrent use when
// its backend is; a Problem is not.
type Driver struct {
	backend Backend
	log     logger.Logger
	sink    metrics.SolveRecorder
}

// Option configures a Driver.
type Option func(*Driver)

// WithLogger sets the driver logger.
func WithLogger(l logger.Logger) Option { return func(d *Driver) { d.log = logger.OrNop(l) } }

// WithRecorder records every solve in sink.
func WithRecorder(sink metrics.SolveRecorder) Option { return func(d *Driver) { d.sink = sink } }

// NewDriver returns a driver for backend.
func NewDriver(backend Backend, opts ...Option) *Driver {
	d := &Driver{backend: backend, log: logger.Nop{}}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Solve binds b to p, solves it and stores the solution on p.
func (d *Driver) Solve(ctx context.Context, p *opt.Problem, b opt.Binding) (*Result, error) {
	cf, err := p.Compiled()
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", p.Name(), err)
	}
	sf, err := cf.Evaluate(b)
	if err != nil {
		return nil, err
	}
	res, err := d.solve(ctx, p.Name(), sf)
	if err != nil {
		return nil, err
	}
	if err := p.SetSolution(res.X, res.Objective); err != nil {
		return nil, err
	}
	return res, nil
}

// SolveStandard solves an already assembled standard form, for callers that
// build it through opt.ParametricForm.
func (d *Driver) SolveStandard(ctx context.Context, name string, sf *opt.StandardForm) (*Result, error) {
	return d.solve(ctx, name, sf)
}

func (d *Driver) solve(ctx context.Context, name string, sf *opt.StandardForm) (*Result, error) {
	start := time.Now()
	res, err := d.backend.Solve(ctx, sf)
	elapsed := time.Since(start)
	status := StatusUnknown
	if res != nil {
		status = res.Status
	}
	if err != nil {
		d.record(name, "error", elapsed, 0)
		d.log.Errorf("solve %s failed after %s: %v", name, elapsed, err)
		return nil, fmt.Errorf("solve %s: %w", name, err)
	}
	d.record(name, status.String(), elapsed, res.Objective)
	switch status {
	case StatusOptimal:
	case StatusNodeLimit:
		d.log.Warnf("solve %s: returning incumbent after node limit", name)
	default:
		d.log.Warnf("solve %s: %s", name, status)
		return nil, &InfeasibleSolveError{Problem: name, Status: status}
	}
	d.log.Debugf("solve %s: %s objective=%.6g in %s", name, status, res.Objective, elapsed)
	return res, nil
}

func (d *Driver) record(name, status string, elapsed time.Duration, objective float64) {
	if d.sink == nil {
		return
	}
	if err := d.sink.RecordSolve(metrics.SolveEvent{
		Problem:   name,
		Status:    status,
		Duration:  elapsed,
		Objective: objective,
		Time:      time.Now(),
	}); err != nil {
		d.log.Errorf("metrics error: %v", err)
	}
}

// GetSolution returns the stored solution of p with every variable reshaped
// to (horizon, size/horizon).
func GetSolution(p *opt.Problem, horizon int) (map[string]*mat.Dense, error) {
	flat, _, ok := p.Solution()
	if !ok {
		return nil, fmt.Errorf("%s: no solution stored", p.Name())
	}
	if horizon <= 0 {
		return nil, fmt.Errorf("%s: horizon %d must be positive", p.Name(), horizon)
	}
	out := make(map[string]*mat.Dense, len(flat))
	for name, values := range flat {
		if len(values) == 0 {
			continue
		}
		if len(values)%horizon != 0 {
			return nil, fmt.Errorf("%s: variable %s with %d values does not split into %d periods", p.Name(), name, len(values), horizon)
		}
		out[name] = mat.NewDense(horizon, len(values)/horizon, values)
	}
	return out, nil
}
