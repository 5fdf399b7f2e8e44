package metrics

// MultiSink fans events out to several sinks.
type MultiSink struct {
	Sinks []MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordSolve forwards the event to all sinks, returning the first error encountered.
func (m *MultiSink) RecordSolve(ev SolveEvent) error {
	for _, s := range m.Sinks {
		if err := s.RecordSolve(ev); err != nil {
			return err
		}
	}
	return nil
}

// RecordWindow forwards window events to sinks that record them.
func (m *MultiSink) RecordWindow(ev WindowEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(WindowRecorder); ok {
			if err := rec.RecordWindow(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordBranchLimits forwards calibration results to sinks that record them.
func (m *MultiSink) RecordBranchLimits(ev BranchLimitsEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(BranchLimitsRecorder); ok {
			if err := rec.RecordBranchLimits(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// Close closes the sinks that hold resources.
func (m *MultiSink) Close() {
	for _, s := range m.Sinks {
		if c, ok := s.(interface{ Close() }); ok {
			c.Close()
		}
	}
}
