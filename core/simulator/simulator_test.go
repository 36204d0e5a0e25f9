package simulator

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/gridsim/core/events"
	"github.com/kilianp07/gridsim/core/grid"
	"github.com/kilianp07/gridsim/internal/eventbus"
)

type fakeSub struct {
	id     string
	calls  *[]string
	failAt int
	err    error
}

func (f *fakeSub) ID() string { return f.id }

func (f *fakeSub) Distribute(_ context.Context, step int) (grid.Allocation, error) {
	*f.calls = append(*f.calls, fmt.Sprintf("%s:distribute:%d", f.id, step))
	if step == f.failAt {
		return grid.Allocation{}, f.err
	}
	return grid.Allocation{Substation: f.id, Step: step, TotalPower: 10}, nil
}

func (f *fakeSub) Reset() { *f.calls = append(*f.calls, f.id+":reset") }

type captureSink struct{ allocs []grid.Allocation }

func (c *captureSink) RecordAllocation(a grid.Allocation) error {
	c.allocs = append(c.allocs, a)
	return errors.New("sink unavailable")
}

func TestRun_OrderAndSink(t *testing.T) {
	var calls []string
	subs := []Distributor{&fakeSub{id: "a", calls: &calls}, &fakeSub{id: "b", calls: &calls}}
	sink := &captureSink{}
	sim := New(subs, WithSink(sink), WithRunID("run-x"))

	require.NoError(t, sim.Run(context.Background(), 2, 0))
	assert.Equal(t, []string{
		"a:distribute:1", "b:distribute:1", "a:reset", "b:reset",
		"a:distribute:2", "b:distribute:2", "a:reset", "b:reset",
	}, calls)
	assert.Len(t, sink.allocs, 4, "sink errors are not fatal")
	assert.Equal(t, "run-x", sim.RunID())
}

func TestRun_FailureStopsAndStillResets(t *testing.T) {
	var calls []string
	subs := []Distributor{
		&fakeSub{id: "a", calls: &calls, failAt: 2, err: &grid.AllocationError{Substation: "a", Step: 2, Err: grid.ErrNoCapacity}},
		&fakeSub{id: "b", calls: &calls},
	}
	bus := eventbus.New[events.StepEvent]()
	ch := bus.Subscribe()
	sim := New(subs, WithBus(bus))

	err := sim.Run(context.Background(), 5, 0)
	require.ErrorIs(t, err, grid.ErrNoCapacity)
	assert.Equal(t, []string{
		"a:distribute:1", "b:distribute:1", "a:reset", "b:reset",
		"a:distribute:2", "a:reset", "b:reset",
	}, calls)

	bus.Close()
	var phases []events.Phase
	var last events.StepEvent
	for ev := range ch {
		phases = append(phases, ev.Phase)
		assert.Equal(t, sim.RunID(), ev.RunID)
		last = ev
	}
	assert.Equal(t, []events.Phase{
		events.PhaseStarted, events.PhaseCompleted,
		events.PhaseStarted, events.PhaseFailed,
	}, phases)
	assert.Equal(t, "a", last.Substation)
	assert.Equal(t, 2, last.Step)
	assert.Equal(t, events.ReasonNoCapacity, last.Reason())
}

func TestRun_CancelledBetweenSteps(t *testing.T) {
	var calls []string
	ctx, cancel := context.WithCancel(context.Background())
	sub := &fakeSub{id: "a", calls: &calls}
	sim := New([]Distributor{sub})

	done := make(chan error, 1)
	go func() { done <- sim.Run(ctx, 100, 50*time.Millisecond) }()
	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("run did not stop after cancel")
	}
	assert.Equal(t, []string{"a:distribute:1", "a:reset"}, calls)
}

func TestRun_AlreadyCancelled(t *testing.T) {
	var calls []string
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := New([]Distributor{&fakeSub{id: "a", calls: &calls}}).Run(ctx, 3, 0)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, calls)
}

func TestRun_NegativeSteps(t *testing.T) {
	assert.Error(t, New(nil).Run(context.Background(), -1, 0))
	assert.NoError(t, New(nil).Run(context.Background(), 0, 0))
}

func TestRun_WithGrid(t *testing.T) {
	d100, d150 := 100.0, 150.0
	g, err := grid.Build(grid.Topology{
		Producers: []grid.ProducerSpec{{ID: "p1", MaxOutput: 500}, {ID: "p2", MaxOutput: 700}},
		Lines:     []grid.LineSpec{{ID: "l1", LossFactor: 0.05}, {ID: "l2", LossFactor: 0.10}},
		Consumers: []grid.ConsumerSpec{{ID: "c1", FixedDemand: &d100}, {ID: "c2", FixedDemand: &d150}},
		Substations: []grid.SubstationSpec{{
			ID:        "s",
			Feeds:     []grid.FeedSpec{{Producer: "p1", Line: "l1"}, {Producer: "p2", Line: "l2"}},
			Consumers: []string{"c1", "c2"},
		}},
	}, grid.BuildOptions{})
	require.NoError(t, err)

	sink := &captureSink{}
	subs := make([]Distributor, len(g.Substations))
	for i, s := range g.Substations {
		subs[i] = s
	}
	require.NoError(t, New(subs, WithSink(sink)).Run(context.Background(), 3, 0))
	require.Len(t, sink.allocs, 3)
	for i, a := range sink.allocs {
		assert.Equal(t, i+1, a.Step)
		assert.Equal(t, 248.0, a.TotalPower, "capacity is restored by the reset")
		assert.Equal(t, 1.0, a.Unallocated)
	}
	assert.Equal(t, 0.0, g.Producers[0].CurrentOutput())
}

type mockDistributor struct{ mock.Mock }

func (m *mockDistributor) ID() string { return m.Called().String(0) }

func (m *mockDistributor) Distribute(ctx context.Context, step int) (grid.Allocation, error) {
	args := m.Called(ctx, step)
	return args.Get(0).(grid.Allocation), args.Error(1)
}

func (m *mockDistributor) Reset() { m.Called() }

func TestStep_ResetsAfterEachDistribution(t *testing.T) {
	m := &mockDistributor{}
	m.On("ID").Return("m").Maybe()
	m.On("Distribute", mock.Anything, 7).Return(grid.Allocation{Substation: "m", Step: 7}, nil).Once()
	m.On("Reset").Return().Once()

	require.NoError(t, New([]Distributor{m}).Step(context.Background(), 7))
	m.AssertExpectations(t)
}
