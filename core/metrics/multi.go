package metrics

import (
	"errors"
	"io"

	"github.com/kilianp07/gridsim/core/events"
	"github.com/kilianp07/gridsim/core/grid"
)

// MultiSink fans records out to several sinks. Every sink is called even
// when an earlier one fails; the errors are joined.
type MultiSink struct {
	Sinks []AllocationSink
}

func NewMultiSink(sinks ...AllocationSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

func (m *MultiSink) RecordAllocation(a grid.Allocation) error {
	var errs []error
	for _, s := range m.Sinks {
		if err := s.RecordAllocation(a); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RecordStep forwards to the sinks implementing StepRecorder.
func (m *MultiSink) RecordStep(ev events.StepEvent) error {
	var errs []error
	for _, s := range m.Sinks {
		if rec, ok := s.(StepRecorder); ok {
			if err := rec.RecordStep(ev); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// Close closes the sinks implementing io.Closer.
func (m *MultiSink) Close() error {
	var errs []error
	for _, s := range m.Sinks {
		if c, ok := s.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
