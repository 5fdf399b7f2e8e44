package metrics

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/xuwkk/power-system-operation/core/metrics"
)

// PromSink records solves and calibration results in Prometheus metrics.
type PromSink struct {
	solves   *prometheus.CounterVec
	duration *prometheus.HistogramVec
	windows  *prometheus.CounterVec
	maxFlow  prometheus.Gauge
	observed *prometheus.GaugeVec
	limits   *prometheus.GaugeVec
}

// NewPromSink registers the metrics on the default Prometheus registerer.
// The HTTP exporter is started separately with StartPromServer.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer. Collectors
// already registered by an earlier sink are reused.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	var (
		s   PromSink
		err error
	)
	if s.solves, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pso_solves_total",
		Help: "Total number of optimisation solves by problem and status",
	}, []string{"problem", "status"})); err != nil {
		return nil, err
	}
	if s.duration, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pso_solve_duration_seconds",
		Help:    "Wall time spent in the solver backend",
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
	}, []string{"problem"})); err != nil {
		return nil, err
	}
	if s.windows, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pso_calibration_windows_total",
		Help: "Calibration windows solved, by outcome",
	}, []string{"status"})); err != nil {
		return nil, err
	}
	if s.maxFlow, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pso_calibration_window_max_flow_pu",
		Help: "Largest absolute branch flow of the last calibration window",
	})); err != nil {
		return nil, err
	}
	if s.observed, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pso_branch_observed_flow_pu",
		Help: "Largest absolute flow seen on a branch during calibration",
	}, []string{"case", "branch"})); err != nil {
		return nil, err
	}
	if s.limits, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pso_branch_limit_pu",
		Help: "Calibrated branch flow limit",
	}, []string{"case", "branch"})); err != nil {
		return nil, err
	}
	return &s, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	err := reg.Register(c)
	if err == nil {
		return c, nil
	}
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(C); ok {
			return existing, nil
		}
	}
	return c, err
}

// RecordSolve counts the solve and observes its duration.
func (s *PromSink) RecordSolve(ev coremetrics.SolveEvent) error {
	s.solves.WithLabelValues(ev.Problem, ev.Status).Inc()
	s.duration.WithLabelValues(ev.Problem).Observe(ev.Duration.Seconds())
	return nil
}

// RecordWindow counts the window and tracks its peak flow.
func (s *PromSink) RecordWindow(ev coremetrics.WindowEvent) error {
	if ev.Error != "" {
		s.windows.WithLabelValues("error").Inc()
		return nil
	}
	s.windows.WithLabelValues("ok").Inc()
	s.maxFlow.Set(ev.MaxFlow)
	return nil
}

// RecordBranchLimits sets one gauge per branch, labelled 1-based.
func (s *PromSink) RecordBranchLimits(ev coremetrics.BranchLimitsEvent) error {
	for k, f := range ev.Observed {
		s.observed.WithLabelValues(ev.Case, strconv.Itoa(k+1)).Set(f)
	}
	for k, l := range ev.Limits {
		s.limits.WithLabelValues(ev.Case, strconv.Itoa(k+1)).Set(l)
	}
	return nil
}
