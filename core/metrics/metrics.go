package metrics

import (
	"github.com/kilianp07/gridsim/core/events"
	"github.com/kilianp07/gridsim/core/grid"
)

// AllocationSink records the outcome of substation steps.
type AllocationSink interface {
	RecordAllocation(a grid.Allocation) error
}

// StepRecorder records step lifecycle events.
type StepRecorder interface {
	RecordStep(ev events.StepEvent) error
}

// NopSink discards everything.
type NopSink struct{}

func (NopSink) RecordAllocation(grid.Allocation) error { return nil }
func (NopSink) RecordStep(events.StepEvent) error      { return nil }
