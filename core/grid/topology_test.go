package grid

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/gridsim/core/ledger"
	"github.com/kilianp07/gridsim/core/ledger/store"
)

func fixed(v float64) *float64 { return &v }

func scenarioTopology() Topology {
	return Topology{
		Producers: []ProducerSpec{{ID: "p1", MaxOutput: 500}, {ID: "p2", MaxOutput: 700}},
		Lines:     []LineSpec{{ID: "l1", LossFactor: 0.05}, {ID: "l2", LossFactor: 0.10}},
		Consumers: []ConsumerSpec{
			{ID: "c1", FixedDemand: fixed(100)},
			{ID: "c2", FixedDemand: fixed(150)},
		},
		Substations: []SubstationSpec{{
			ID:        "sub",
			Feeds:     []FeedSpec{{Producer: "p1", Line: "l1"}, {Producer: "p2", Line: "l2"}},
			Consumers: []string{"c1", "c2"},
		}},
	}
}

func TestTopology_Validate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Topology)
		ok     bool
	}{
		{"valid", func(*Topology) {}, true},
		{"id shared across kinds", func(tp *Topology) { tp.Lines[0].ID = "p1" }, false},
		{"unknown producer", func(tp *Topology) { tp.Substations[0].Feeds[0].Producer = "ghost" }, false},
		{"line used as producer", func(tp *Topology) { tp.Substations[0].Feeds[0].Producer = "l2" }, false},
		{"unknown consumer", func(tp *Topology) { tp.Substations[0].Consumers = []string{"nobody"} }, false},
		{"loss factor of one", func(tp *Topology) { tp.Lines[1].LossFactor = 1 }, false},
		{"inverted demand range", func(tp *Topology) { tp.Consumers[0].MinDemand = 5; tp.Consumers[0].MaxDemand = 1 }, false},
		{"no substations", func(tp *Topology) { tp.Substations = nil }, false},
		{"empty id", func(tp *Topology) { tp.Producers[0].ID = "" }, false},
		{"infinite max output", func(tp *Topology) { tp.Producers[0].MaxOutput = math.Inf(1) }, false},
		{"nan max output", func(tp *Topology) { tp.Producers[1].MaxOutput = math.NaN() }, false},
		{"nan producer period", func(tp *Topology) { tp.Producers[0].TimePeriod = math.NaN() }, false},
		{"nan loss factor", func(tp *Topology) { tp.Lines[0].LossFactor = math.NaN() }, false},
		{"nan max demand", func(tp *Topology) { tp.Consumers[0].MaxDemand = math.NaN() }, false},
		{"infinite consumer period", func(tp *Topology) { tp.Consumers[1].TimePeriod = math.Inf(1) }, false},
		{"nan fixed demand", func(tp *Topology) { tp.Consumers[0].FixedDemand = fixed(math.NaN()) }, false},
		{"negative fixed demand", func(tp *Topology) { tp.Consumers[1].FixedDemand = fixed(-5) }, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			tp := scenarioTopology()
			c.mutate(&tp)
			err := tp.Validate()
			if c.ok {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrInvalidTopology)
		})
	}
}

func TestBuild_ScenarioWithLedger(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	book := ledger.NewBook(st, "run", nil)

	g, err := Build(scenarioTopology(), BuildOptions{Seed: 1, Recorder: book})
	require.NoError(t, err)
	require.NoError(t, g.Enroll(book))

	assert.Len(t, g.Producers, 2)
	assert.Len(t, g.Lines, 2)
	assert.Len(t, g.Consumers, 2)
	sub, ok := g.Substation("sub")
	require.True(t, ok)
	_, ok = g.Substation("nope")
	assert.False(t, ok)

	alloc, err := sub.Distribute(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 248.0, alloc.TotalPower)

	assert.Equal(t, 1.0, book.Balance("sub"))
	assert.Equal(t, 0.0, book.Balance("c1"))
	assert.Equal(t, 1.0, book.Supply())
	entries, err := st.Query(ctx, store.Query{RunID: "run"})
	require.NoError(t, err)
	assert.Len(t, entries, 8)

	g.Reset()
	_, err = sub.Distribute(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 2.0, book.Balance("sub"))
}

func TestBuild_WithoutEnrollmentFailsOnLedger(t *testing.T) {
	book := ledger.NewBook(nil, "run", nil)
	g, err := Build(scenarioTopology(), BuildOptions{Recorder: book})
	require.NoError(t, err)
	_, err = g.Substations[0].Distribute(context.Background(), 1)
	assert.ErrorIs(t, err, ErrLedgerRecord)
	assert.ErrorIs(t, err, ledger.ErrUnauthorized)
}

func TestBuild_SeedIsDeterministic(t *testing.T) {
	tp := Topology{
		Producers: []ProducerSpec{{ID: "p", MaxOutput: 1000}},
		Lines:     []LineSpec{{ID: "l", LossFactor: 0.1, SampleReportedLoss: true}},
		Consumers: []ConsumerSpec{
			{ID: "a", MinDemand: 10, MaxDemand: 100},
			{ID: "b", MinDemand: 10, MaxDemand: 100},
		},
		Substations: []SubstationSpec{{ID: "s", Feeds: []FeedSpec{{Producer: "p", Line: "l"}}, Consumers: []string{"a", "b"}}},
	}
	draw := func() []float64 {
		g, err := Build(tp, BuildOptions{Seed: 99})
		require.NoError(t, err)
		var out []float64
		for step := 0; step < 5; step++ {
			for _, c := range g.Consumers {
				out = append(out, c.Demand())
			}
			g.Reset()
		}
		return out
	}
	first := draw()
	assert.Equal(t, first, draw())
	assert.NotEqual(t, first[0], first[1], "consumers use independent streams")
}

func TestBuild_DefaultsTimePeriod(t *testing.T) {
	g, err := Build(scenarioTopology(), BuildOptions{})
	require.NoError(t, err)
	assert.Equal(t, 500.0, g.Producers[0].PeriodCapacity())
}
