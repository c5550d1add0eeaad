package metrics

import "testing"

// TestMultiSink ensures events are forwarded to all sinks.

type recordSink struct {
	count int
}

func (r *recordSink) RecordSolve(SolveEvent) error {
	r.count++
	return nil
}

func (r *recordSink) RecordSolverFailure(SolverFailureEvent) error {
	r.count++
	return nil
}

func TestMultiSink(t *testing.T) {
	s1 := &recordSink{}
	s2 := &recordSink{}
	m := NewMultiSink(s1, s2)
	if err := m.RecordSolve(SolveEvent{}); err != nil {
		t.Fatalf("record solve: %v", err)
	}
	if err := m.RecordSolverFailure(SolverFailureEvent{}); err != nil {
		t.Fatalf("record solver failure: %v", err)
	}
	if s1.count != 2 || s2.count != 2 {
		t.Fatalf("results not forwarded")
	}
}
