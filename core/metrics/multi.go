package metrics

// MultiSink fans out solve events to multiple sinks, returning the first
// error encountered. Sinks that implement the optional recorder interfaces
// receive those events too.
type MultiSink struct {
	Sinks []MetricsSink
}

// NewMultiSink creates a MultiSink wrapping the given sinks.
func NewMultiSink(sinks ...MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordSolve forwards the event to every sink.
func (m *MultiSink) RecordSolve(ev SolveEvent) error {
	for _, s := range m.Sinks {
		if err := s.RecordSolve(ev); err != nil {
			return err
		}
	}
	return nil
}

// RecordSolverFailure forwards the event to sinks that track failure kinds.
func (m *MultiSink) RecordSolverFailure(ev SolverFailureEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(SolverFailureRecorder); ok {
			if err := rec.RecordSolverFailure(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordPersistenceFailure forwards the event to sinks that track persistence.
func (m *MultiSink) RecordPersistenceFailure(ev PersistenceFailureEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(PersistenceFailureRecorder); ok {
			if err := rec.RecordPersistenceFailure(ev); err != nil {
				return err
			}
		}
	}
	return nil
}
