// Package metrics defines the sink interfaces used to observe solves and
// calibration runs. Sinks implement SolveRecorder and optionally the other
// recorder interfaces; NewMultiSink fans events out to several sinks and
// NewMetricsSink builds sinks from configuration through the factory
// registry populated by infra/metrics.
package metrics
