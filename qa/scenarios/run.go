package scenarios

import (
	"context"
	"math"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kilianp07/gridsim/core/events"
	"github.com/kilianp07/gridsim/core/grid"
	"github.com/kilianp07/gridsim/core/ledger"
	"github.com/kilianp07/gridsim/core/ledger/store"
	coremetrics "github.com/kilianp07/gridsim/core/metrics"
	"github.com/kilianp07/gridsim/core/simulator"
	"github.com/kilianp07/gridsim/infra/logger"
	"github.com/kilianp07/gridsim/infra/metrics"
)

type captureSink struct{ allocs []grid.Allocation }

func (c *captureSink) RecordAllocation(a grid.Allocation) error {
	c.allocs = append(c.allocs, a)
	return nil
}

// RunScenario builds the scenario grid on a fresh ledger, runs it and checks
// every allocation against the expectations.
func RunScenario(t *testing.T, sc *Scenario) {
	t.Helper()
	comp, err := grid.ParseCompensation(sc.Compensation)
	if err != nil {
		t.Fatalf("compensation: %v", err)
	}
	reg := prometheus.NewRegistry()
	prom, err := metrics.NewPromSinkWithRegistry(reg)
	if err != nil {
		t.Fatalf("prom sink: %v", err)
	}
	capture := &captureSink{}

	book := ledger.NewBook(store.NewMemoryStore(), sc.Name, logger.NopLogger{})
	g, err := grid.Build(sc.Grid, grid.BuildOptions{Seed: sc.Seed, Compensation: comp, Recorder: book})
	if err != nil {
		t.Fatalf("build grid: %v", err)
	}
	if err := g.Enroll(book); err != nil {
		t.Fatalf("enroll: %v", err)
	}
	subs := make([]simulator.Distributor, 0, len(g.Substations))
	for _, s := range g.Substations {
		subs = append(subs, s)
	}
	sim := simulator.New(subs,
		simulator.WithSink(coremetrics.NewMultiSink(prom, capture)),
		simulator.WithRunID(sc.Name),
	)

	err = sim.Run(context.Background(), sc.Steps, 0)
	if sc.Expected.Error != "" {
		if err == nil {
			t.Fatalf("scenario %s expected %s error, got none", sc.Name, sc.Expected.Error)
		}
		if reason := (events.StepEvent{Err: err}).Reason(); reason != sc.Expected.Error {
			t.Fatalf("scenario %s expected %s error, got %s (%v)", sc.Name, sc.Expected.Error, reason, err)
		}
		for _, c := range g.Consumers {
			if c.Received() != 0 {
				t.Errorf("consumer %s received %v after a failed step", c.ID(), c.Received())
			}
		}
		return
	}
	if err != nil {
		t.Fatalf("scenario %s: %v", sc.Name, err)
	}

	if want := sc.Steps * len(g.Substations); len(capture.allocs) != want {
		t.Fatalf("scenario %s expected %d allocations, got %d", sc.Name, want, len(capture.allocs))
	}
	remainder := 0.0
	for _, a := range capture.allocs {
		checkAllocation(t, sc, a)
		remainder += a.Unallocated
	}
	// Whatever was neither lost nor consumed stays on the substations.
	if math.Abs(book.Supply()-remainder) > 1e-9 {
		t.Errorf("scenario %s ledger supply %v, expected remainder %v", sc.Name, book.Supply(), remainder)
	}
	if mfs, err := reg.Gather(); err != nil || len(mfs) == 0 {
		t.Errorf("scenario %s gathered no metrics: %v", sc.Name, err)
	}
}

func checkAllocation(t *testing.T, sc *Scenario, a grid.Allocation) {
	t.Helper()
	for _, c := range a.Consumers {
		if want, ok := sc.Expected.Allocations[c.Consumer]; ok && c.Allocated != want {
			t.Errorf("scenario %s step %d: consumer %s expected %v, got %v", sc.Name, a.Step, c.Consumer, want, c.Allocated)
		}
	}
	for _, f := range a.Feeds {
		if want, ok := sc.Expected.Generated[f.Producer]; ok && f.Generated != want {
			t.Errorf("scenario %s step %d: producer %s expected %v, got %v", sc.Name, a.Step, f.Producer, want, f.Generated)
		}
	}
	if want, ok := sc.Expected.Unallocated[a.Substation]; ok && a.Unallocated != want {
		t.Errorf("scenario %s step %d: substation %s remainder expected %v, got %v", sc.Name, a.Step, a.Substation, want, a.Unallocated)
	}
	if sc.Expected.TotalPower != nil && a.TotalPower != *sc.Expected.TotalPower {
		t.Errorf("scenario %s step %d: total power expected %v, got %v", sc.Name, a.Step, *sc.Expected.TotalPower, a.TotalPower)
	}
}
