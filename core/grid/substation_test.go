package grid

import (
	"context"
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/gridsim/core/ledger"
)

type fixture struct {
	sub       *Substation
	producers []*Producer
	lines     []*Line
	consumers []*Consumer
}

// twoProducers builds 500 and 700 Wh producers behind 5% and 10% lines
// serving consumers demanding 100 and 150 Wh.
func twoProducers(t *testing.T, opts ...Option) fixture {
	t.Helper()
	f := fixture{sub: NewSubstation("sub", opts...)}
	reg := NewRegistry()
	for i, spec := range []struct {
		id   string
		max  float64
		line string
		loss float64
	}{{"p1", 500, "l1", 0.05}, {"p2", 700, "l2", 0.10}} {
		p, err := NewProducer(spec.id, spec.max, 1, nil)
		require.NoError(t, err)
		l, err := NewLine(spec.line, spec.loss, nil, nil)
		require.NoError(t, err)
		require.NoError(t, f.sub.ConnectProducer(p, l), i)
		f.producers = append(f.producers, p)
		f.lines = append(f.lines, l)
	}
	for _, spec := range []struct {
		id     string
		demand float64
	}{{"c1", 100}, {"c2", 150}} {
		c, err := NewConsumer(spec.id, 0, 0, 1, FixedDemand(spec.demand), reg, nil)
		require.NoError(t, err)
		require.NoError(t, f.sub.ConnectConsumer(c))
		f.consumers = append(f.consumers, c)
	}
	return f
}

func TestDistribute_TwoProducerScenario(t *testing.T) {
	f := twoProducers(t)
	alloc, err := f.sub.Distribute(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, 1200.0, alloc.AvailableCapacity)
	assert.Equal(t, 250.0, alloc.TotalDemand)
	require.Len(t, alloc.Feeds, 2)
	assert.Equal(t, 110.0, alloc.Feeds[0].Requested)
	assert.Equal(t, 110.0, alloc.Feeds[0].Generated)
	assert.Equal(t, 104.0, alloc.Feeds[0].Delivered)
	assert.Equal(t, 161.0, alloc.Feeds[1].Requested)
	assert.Equal(t, 161.0, alloc.Feeds[1].Generated)
	assert.Equal(t, 144.0, alloc.Feeds[1].Delivered)
	assert.Equal(t, 248.0, alloc.TotalPower)
	assert.Equal(t, 23.0, alloc.TotalLost)

	require.Len(t, alloc.Consumers, 2)
	assert.Equal(t, 99.0, alloc.Consumers[0].Allocated)
	assert.Equal(t, 148.0, alloc.Consumers[1].Allocated)
	assert.Equal(t, 99.0, f.consumers[0].Received())
	assert.Equal(t, 148.0, f.consumers[1].Received())
	assert.Equal(t, 1.0, alloc.Unallocated)

	assert.Equal(t, 110.0, f.producers[0].CurrentOutput())
	assert.Equal(t, 161.0, f.producers[1].CurrentOutput())
}

func TestDistribute_NoCompensation(t *testing.T) {
	f := twoProducers(t, WithCompensation(CompensateNone))
	alloc, err := f.sub.Distribute(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, CompensateNone, alloc.Compensation)
	assert.Equal(t, 105.0, alloc.Feeds[0].Generated)
	assert.Equal(t, 146.0, alloc.Feeds[1].Generated)
	assert.Equal(t, 230.0, alloc.TotalPower)
	assert.Equal(t, 92.0, alloc.Consumers[0].Allocated)
	assert.Equal(t, 138.0, alloc.Consumers[1].Allocated)
	assert.Equal(t, 0.0, alloc.Unallocated)
}

func TestDistribute_NoCapacityFailsBeforeMutation(t *testing.T) {
	sub := NewSubstation("sub")
	p, _ := NewProducer("p", 0, 1, nil)
	l, _ := NewLine("l", 0.1, nil, nil)
	c, _ := NewConsumer("c", 0, 0, 1, FixedDemand(10), nil, nil)
	require.NoError(t, sub.ConnectProducer(p, l))
	require.NoError(t, sub.ConnectConsumer(c))

	_, err := sub.Distribute(context.Background(), 3)
	require.ErrorIs(t, err, ErrNoCapacity)
	var ae *AllocationError
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, "sub", ae.Substation)
	assert.Equal(t, 3, ae.Step)
	assert.Contains(t, err.Error(), "substation sub")

	_, drawn := c.CurrentDemand()
	assert.False(t, drawn, "demand must not be drawn")
	assert.Equal(t, 0.0, c.Received())
}

func TestDistribute_NoDemandFailsBeforeGeneration(t *testing.T) {
	sub := NewSubstation("sub")
	p, _ := NewProducer("p", 100, 1, nil)
	l, _ := NewLine("l", 0.1, nil, nil)
	c, _ := NewConsumer("c", 0, 0, 1, FixedDemand(0), nil, nil)
	require.NoError(t, sub.ConnectProducer(p, l))
	require.NoError(t, sub.ConnectConsumer(c))

	_, err := sub.Distribute(context.Background(), 1)
	require.ErrorIs(t, err, ErrNoDemand)
	assert.Equal(t, 0.0, p.CurrentOutput())
}

func TestDistribute_NoConsumersIsNoDemand(t *testing.T) {
	sub := NewSubstation("sub")
	p, _ := NewProducer("p", 100, 1, nil)
	l, _ := NewLine("l", 0.1, nil, nil)
	require.NoError(t, sub.ConnectProducer(p, l))
	_, err := sub.Distribute(context.Background(), 1)
	assert.ErrorIs(t, err, ErrNoDemand)
}

func TestDistribute_CapacityCarriesOverUntilReset(t *testing.T) {
	f := twoProducers(t)
	_, err := f.sub.Distribute(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 390.0, f.producers[0].AvailableOutput())

	f.sub.Reset()
	f.sub.Reset()
	for _, p := range f.producers {
		assert.Equal(t, 0.0, p.CurrentOutput())
	}
	for _, c := range f.consumers {
		_, drawn := c.CurrentDemand()
		assert.False(t, drawn)
	}
	alloc, err := f.sub.Distribute(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, 1200.0, alloc.AvailableCapacity)
	assert.Equal(t, 248.0, alloc.TotalPower)
}

func TestConnect_Duplicates(t *testing.T) {
	f := twoProducers(t)
	assert.ErrorIs(t, f.sub.ConnectProducer(f.producers[0], f.lines[1]), ErrAlreadyConnected)
	assert.ErrorIs(t, f.sub.ConnectConsumer(f.consumers[0]), ErrAlreadyConnected)
	assert.Error(t, f.sub.ConnectProducer(nil, f.lines[0]))
	assert.Error(t, f.sub.ConnectConsumer(nil))
	assert.Len(t, f.sub.Feeds(), 2)
	assert.Len(t, f.sub.Consumers(), 2)
}

func TestConnectConsumer_RequiresSubstationID(t *testing.T) {
	reg := NewRegistry()
	c, err := NewConsumer("c", 0, 0, 1, FixedDemand(10), reg, nil)
	require.NoError(t, err)

	assert.Error(t, NewSubstation("").ConnectConsumer(c))
	assert.Empty(t, c.Substations())
	assert.Empty(t, reg.Consumers(""))
}

func TestDistribute_SharedConsumerSeesSplitDemand(t *testing.T) {
	reg := NewRegistry()
	shared, _ := NewConsumer("shared", 0, 0, 1, FixedDemand(100), reg, nil)
	var subs []*Substation
	for _, id := range []string{"s1", "s2"} {
		s := NewSubstation(id)
		p, _ := NewProducer("p-"+id, 1000, 1, nil)
		l, _ := NewLine("l-"+id, 0, nil, nil)
		require.NoError(t, s.ConnectProducer(p, l))
		require.NoError(t, s.ConnectConsumer(shared))
		subs = append(subs, s)
	}
	for _, s := range subs {
		alloc, err := s.Distribute(context.Background(), 1)
		require.NoError(t, err)
		assert.Equal(t, 50.0, alloc.TotalDemand)
		assert.Equal(t, 50.0, alloc.Consumers[0].Allocated)
	}
	full, _ := shared.CurrentDemand()
	assert.Equal(t, 100.0, full)
	assert.Equal(t, 50.0, shared.Received())
	assert.Equal(t, 100.0, shared.ReceivedTotal())

	for _, s := range subs {
		s.Reset()
	}
	assert.Equal(t, 0.0, shared.ReceivedTotal())
}

func TestDistribute_RecordsEventsInFlowOrder(t *testing.T) {
	var got []ledger.Event
	rec := ledger.RecorderFunc(func(_ context.Context, ev ledger.Event) error {
		got = append(got, ev)
		return nil
	})
	f := twoProducers(t, WithRecorder(rec))
	_, err := f.sub.Distribute(context.Background(), 4)
	require.NoError(t, err)

	want := []struct {
		kind     ledger.Kind
		from, to string
		amount   float64
	}{
		{ledger.KindGeneration, "p1", "l1", 110},
		{ledger.KindTransmission, "l1", "sub", 104},
		{ledger.KindGeneration, "p2", "l2", 161},
		{ledger.KindTransmission, "l2", "sub", 144},
		{ledger.KindDistribution, "sub", "c1", 99},
		{ledger.KindConsumption, "c1", "", 99},
		{ledger.KindDistribution, "sub", "c2", 148},
		{ledger.KindConsumption, "c2", "", 148},
	}
	require.Len(t, got, len(want))
	for i, w := range want {
		assert.Equal(t, w.kind, got[i].Kind, i)
		assert.Equal(t, w.from, got[i].From, i)
		assert.Equal(t, w.to, got[i].To, i)
		assert.Equal(t, w.amount, got[i].Amount, i)
		assert.Equal(t, 4, got[i].Step)
		assert.False(t, got[i].Time.IsZero())
	}
	assert.Equal(t, 6.0, got[1].Loss)
	assert.Equal(t, 17.0, got[3].Loss)
}

func TestDistribute_LedgerFailureAbortsStep(t *testing.T) {
	boom := errors.New("ledger offline")
	rec := ledger.RecorderFunc(func(_ context.Context, ev ledger.Event) error {
		if ev.Kind == ledger.KindDistribution {
			return boom
		}
		return nil
	})
	f := twoProducers(t, WithRecorder(rec))
	_, err := f.sub.Distribute(context.Background(), 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLedgerRecord)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 110.0, f.producers[0].CurrentOutput(), "generation is not rolled back")
	assert.Equal(t, 0.0, f.consumers[0].Received())
}

// TestDistribute_Properties checks conservation and proportionality over many
// random steps.
func TestDistribute_Properties(t *testing.T) {
	rng := rand.New(rand.NewPCG(11, 13))
	for _, comp := range []Compensation{CompensateLoss, CompensateNone} {
		for iter := 0; iter < 200; iter++ {
			sub := NewSubstation("sub", WithCompensation(comp))
			nFeeds := 1 + rng.IntN(4)
			for i := 0; i < nFeeds; i++ {
				p, _ := NewProducer(string(rune('a'+i)), float64(rng.IntN(2000)), 1, nil)
				l, _ := NewLine(string(rune('A'+i)), rng.Float64()*0.3, nil, nil)
				require.NoError(t, sub.ConnectProducer(p, l))
			}
			nCons := 1 + rng.IntN(6)
			for i := 0; i < nCons; i++ {
				c, _ := NewConsumer(string(rune('m'+i)), 0, 400, 1, NewUniformDemand(rand.NewPCG(uint64(iter), uint64(i))), nil, nil)
				require.NoError(t, sub.ConnectConsumer(c))
			}

			alloc, err := sub.Distribute(context.Background(), iter)
			if errors.Is(err, ErrNoCapacity) || errors.Is(err, ErrNoDemand) {
				continue
			}
			require.NoError(t, err)

			assert.LessOrEqual(t, alloc.Allocated, alloc.TotalPower)
			assert.GreaterOrEqual(t, alloc.Unallocated, 0.0)
			assert.Less(t, alloc.Unallocated, float64(nCons))
			assert.LessOrEqual(t, alloc.TotalPower, alloc.TotalGenerated)
			for _, fr := range alloc.Feeds {
				assert.LessOrEqual(t, fr.Generated, fr.Available)
				assert.Equal(t, fr.Generated, fr.Delivered+fr.Lost)
			}
			if alloc.TotalPower == 0 {
				continue
			}
			for _, cr := range alloc.Consumers {
				diff := cr.Demand/alloc.TotalDemand - cr.Allocated/alloc.TotalPower
				assert.GreaterOrEqual(t, diff, -1e-9)
				assert.Less(t, diff, 1/alloc.TotalPower+1e-9)
			}
		}
	}
}

// buildFeeds returns a substation fed by one producer per entry of outputs,
// behind lines with the matching loss factors, serving fixed demands.
func buildFeeds(t *testing.T, comp Compensation, outputs, losses, demands []float64) *Substation {
	t.Helper()
	sub := NewSubstation("sub", WithCompensation(comp))
	for i := range outputs {
		p, err := NewProducer(string(rune('a'+i)), outputs[i], 1, nil)
		require.NoError(t, err)
		l, err := NewLine(string(rune('A'+i)), losses[i], nil, nil)
		require.NoError(t, err)
		require.NoError(t, sub.ConnectProducer(p, l))
	}
	for i, d := range demands {
		c, err := NewConsumer(string(rune('m'+i)), 0, 0, 1, FixedDemand(d), nil, nil)
		require.NoError(t, err)
		require.NoError(t, sub.ConnectConsumer(c))
	}
	return sub
}

func TestDistribute_DoublingOutputNeverLowersShare(t *testing.T) {
	t.Run("two producers", func(t *testing.T) {
		share := func(p1 float64) float64 {
			sub := buildFeeds(t, CompensateLoss, []float64{p1, 700}, []float64{0.05, 0.10}, []float64{100, 150})
			alloc, err := sub.Distribute(context.Background(), 1)
			require.NoError(t, err)
			return alloc.Feeds[0].Delivered / alloc.TotalPower
		}
		assert.Less(t, share(500), share(1000))
	})

	rng := rand.New(rand.NewPCG(5, 8))
	for _, comp := range []Compensation{CompensateLoss, CompensateNone} {
		for iter := 0; iter < 200; iter++ {
			n := 2 + rng.IntN(3)
			outputs := make([]float64, n)
			losses := make([]float64, n)
			for i := range outputs {
				outputs[i] = float64(1 + rng.IntN(1500))
				losses[i] = rng.Float64() * 0.3
			}
			demands := make([]float64, 1+rng.IntN(5))
			for i := range demands {
				demands[i] = float64(1 + rng.IntN(600))
			}
			target := rng.IntN(n)

			before, err := buildFeeds(t, comp, outputs, losses, demands).Distribute(context.Background(), iter)
			require.NoError(t, err)
			doubled := append([]float64(nil), outputs...)
			doubled[target] *= 2
			after, err := buildFeeds(t, comp, doubled, losses, demands).Distribute(context.Background(), iter)
			require.NoError(t, err)
			if before.TotalPower == 0 || after.TotalPower == 0 {
				continue
			}

			was := before.Feeds[target].Delivered / before.TotalPower
			now := after.Feeds[target].Delivered / after.TotalPower
			if now < was-1e-12 {
				t.Fatalf("%s: doubling feed %d of %v (losses %v, demands %v) lowered its share from %v to %v",
					comp, target, outputs, losses, demands, was, now)
			}
		}
	}
}

func TestParseCompensation(t *testing.T) {
	c, err := ParseCompensation("")
	require.NoError(t, err)
	assert.Equal(t, CompensateLoss, c)
	c, err = ParseCompensation("none")
	require.NoError(t, err)
	assert.Equal(t, CompensateNone, c)
	_, err = ParseCompensation("double")
	assert.Error(t, err)
}
