package metrics

import "time"

// SolveEvent describes one solver invocation.
type SolveEvent struct {
	Problem   string
	Status    string
	Duration  time.Duration
	Objective float64
	Time      time.Time
}

// SolveRecorder records solver invocations.
type SolveRecorder interface {
	RecordSolve(ev SolveEvent) error
}

// MetricsSink is the base sink type. Every sink records solves; the other
// recorder interfaces are optional.
type MetricsSink interface {
	SolveRecorder
}

// WindowEvent describes one solved calibration window.
type WindowEvent struct {
	RunID     string
	Window    int
	Start     int
	Objective float64
	// MaxFlow is the largest absolute flow on any branch in the window, p.u.
	MaxFlow  float64
	Duration time.Duration
	Error    string
	Time     time.Time
}

// WindowRecorder records calibration windows.
type WindowRecorder interface {
	RecordWindow(ev WindowEvent) error
}

// BranchLimitsEvent carries the outcome of a calibration run, p.u. per branch.
type BranchLimitsEvent struct {
	RunID    string
	Case     string
	Observed []float64
	Limits   []float64
	Time     time.Time
}

// BranchLimitsRecorder records calibrated branch limits.
type BranchLimitsRecorder interface {
	RecordBranchLimits(ev BranchLimitsEvent) error
}

// NopSink implements every recorder with no-op methods.
type NopSink struct{}

func (NopSink) RecordSolve(SolveEvent) error               { return nil }
func (NopSink) RecordWindow(WindowEvent) error             { return nil }
func (NopSink) RecordBranchLimits(BranchLimitsEvent) error { return nil }
