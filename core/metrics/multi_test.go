package metrics

import "testing"

type recordSink struct {
	count int
}

func (r *recordSink) RecordSolve(SolveEvent) error {
	r.count++
	return nil
}

func (r *recordSink) RecordWindow(WindowEvent) error {
	r.count++
	return nil
}

// solveOnly does not implement WindowRecorder.
type solveOnly struct{ count int }

func (s *solveOnly) RecordSolve(SolveEvent) error {
	s.count++
	return nil
}

// TestMultiSink ensures events are forwarded to all sinks that accept them.
func TestMultiSink(t *testing.T) {
	s1 := &recordSink{}
	s2 := &recordSink{}
	s3 := &solveOnly{}
	m := NewMultiSink(s1, s2, s3)
	if err := m.RecordSolve(SolveEvent{Problem: "ed"}); err != nil {
		t.Fatalf("record solve: %v", err)
	}
	if err := m.RecordWindow(WindowEvent{}); err != nil {
		t.Fatalf("record window: %v", err)
	}
	if err := m.RecordBranchLimits(BranchLimitsEvent{}); err != nil {
		t.Fatalf("record limits: %v", err)
	}
	if s1.count != 2 || s2.count != 2 {
		t.Fatalf("events not forwarded")
	}
	if s3.count != 1 {
		t.Fatalf("solve-only sink got %d events", s3.count)
	}
}

type closingSink struct {
	solveOnly
	closed bool
}

func (c *closingSink) Close() { c.closed = true }

func TestMultiSink_Close(t *testing.T) {
	c := &closingSink{}
	m := NewMultiSink(&solveOnly{}, c)
	m.Close()
	if !c.closed {
		t.Fatalf("closable sink not closed")
	}
}
