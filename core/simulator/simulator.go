// Package simulator drives substations through a fixed number of steps.
package simulator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/gridsim/core/events"
	"github.com/kilianp07/gridsim/core/grid"
	"github.com/kilianp07/gridsim/core/logger"
	"github.com/kilianp07/gridsim/core/metrics"
	"github.com/kilianp07/gridsim/core/monitoring"
	"github.com/kilianp07/gridsim/internal/eventbus"
)

// Distributor is the part of a substation the simulator drives.
type Distributor interface {
	ID() string
	Distribute(ctx context.Context, step int) (grid.Allocation, error)
	Reset()
}

// Option configures a Simulator.
type Option func(*Simulator)

// WithSink records every successful allocation to sink.
func WithSink(sink metrics.AllocationSink) Option {
	return func(s *Simulator) {
		if sink != nil {
			s.sink = sink
		}
	}
}

// WithBus publishes step events on bus.
func WithBus(bus *eventbus.Bus[events.StepEvent]) Option {
	return func(s *Simulator) { s.bus = bus }
}

func WithLogger(l logger.Logger) Option {
	return func(s *Simulator) { s.log = logger.OrNop(l) }
}

// WithRunID overrides the generated run id.
func WithRunID(id string) Option {
	return func(s *Simulator) {
		if id != "" {
			s.runID = id
		}
	}
}

// Simulator runs substations sequentially, step after step.
type Simulator struct {
	substations []Distributor
	sink        metrics.AllocationSink
	bus         *eventbus.Bus[events.StepEvent]
	log         logger.Logger
	runID       string
	now         func() time.Time
}

func New(substations []Distributor, opts ...Option) *Simulator {
	s := &Simulator{
		substations: substations,
		sink:        metrics.NopSink{},
		log:         logger.Nop{},
		runID:       uuid.NewString(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RunID identifies this simulator's run in events and ledger entries.
func (s *Simulator) RunID() string { return s.runID }

// Run executes steps 1..steps. The delay is waited between steps and is the
// only point where ctx is observed. The first error stops the run.
func (s *Simulator) Run(ctx context.Context, steps int, delay time.Duration) error {
	if steps < 0 {
		return fmt.Errorf("negative step count %d", steps)
	}
	s.log.Infof("simulation %s: %d steps over %d substations", s.runID, steps, len(s.substations))
	for step := 1; step <= steps; step++ {
		if step > 1 && delay > 0 {
			t := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				t.Stop()
				return s.cancelled(ctx, step)
			case <-t.C:
			}
		} else if ctx.Err() != nil {
			return s.cancelled(ctx, step)
		}
		if err := s.Step(ctx, step); err != nil {
			return err
		}
	}
	s.log.Infof("simulation %s: completed %d steps", s.runID, steps)
	return nil
}

// Step distributes on every substation in order, then resets them all. The
// reset also happens when a substation fails.
func (s *Simulator) Step(ctx context.Context, step int) error {
	start := s.now()
	s.publish(events.StepEvent{Step: step, Phase: events.PhaseStarted})
	s.log.Debugf("step %d started", step)

	var stepErr error
	var failed string
	for _, sub := range s.substations {
		alloc, err := sub.Distribute(ctx, step)
		if err != nil {
			stepErr, failed = err, sub.ID()
			break
		}
		if err := s.sink.RecordAllocation(alloc); err != nil {
			s.log.Warnf("step %d: record allocation of %s: %v", step, sub.ID(), err)
		}
	}
	for _, sub := range s.substations {
		sub.Reset()
	}

	elapsed := s.now().Sub(start)
	if stepErr != nil {
		s.publish(events.StepEvent{Step: step, Phase: events.PhaseFailed, Substation: failed, Err: stepErr, Duration: elapsed})
		s.log.Errorf("step %d failed: %v", step, stepErr)
		monitoring.CaptureException(stepErr, map[string]string{
			"run_id":     s.runID,
			"substation": failed,
			"step":       fmt.Sprint(step),
		})
		return stepErr
	}
	s.publish(events.StepEvent{Step: step, Phase: events.PhaseCompleted, Duration: elapsed})
	s.log.Debugf("step %d completed in %s", step, elapsed)
	return nil
}

func (s *Simulator) cancelled(ctx context.Context, step int) error {
	err := ctx.Err()
	s.log.Warnf("simulation %s cancelled before step %d", s.runID, step)
	if !errors.Is(err, context.Canceled) {
		monitoring.CaptureException(err, map[string]string{"run_id": s.runID})
	}
	return err
}

func (s *Simulator) publish(ev events.StepEvent) {
	if s.bus == nil {
		return
	}
	ev.RunID = s.runID
	ev.Time = s.now()
	s.bus.Publish(ev)
}
