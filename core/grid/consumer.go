package grid

import (
	"fmt"
	"math/rand/v2"
	"sync"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/kilianp07/gridsim/core/logger"
)

// DemandSource draws a demand rate between min and max.
type DemandSource interface {
	Draw(min, max float64) float64
}

// UniformDemand draws uniformly from [min, max].
type UniformDemand struct {
	src rand.Source
}

func NewUniformDemand(src rand.Source) *UniformDemand {
	return &UniformDemand{src: src}
}

func (u *UniformDemand) Draw(min, max float64) float64 {
	if max <= min {
		return min
	}
	return distuv.Uniform{Min: min, Max: max, Src: u.src}.Rand()
}

// FixedDemand always draws the same rate regardless of bounds.
type FixedDemand float64

func (f FixedDemand) Draw(_, _ float64) float64 { return float64(f) }

// Consumer draws a demand once per period and receives power from one or more
// substations.
type Consumer struct {
	id         string
	minDemand  float64
	maxDemand  float64
	timePeriod float64

	source   DemandSource
	registry *Registry
	log      logger.Logger

	mu       sync.Mutex
	demand   *float64
	received float64
	total    float64
}

// NewConsumer returns a consumer drawing its demand rate from src. A nil src
// falls back to a randomly seeded UniformDemand and a nil registry to a
// private one.
func NewConsumer(id string, minDemand, maxDemand, timePeriod float64, src DemandSource, reg *Registry, log logger.Logger) (*Consumer, error) {
	if id == "" {
		return nil, fmt.Errorf("consumer: empty id")
	}
	if !finite(minDemand, maxDemand, timePeriod) {
		return nil, fmt.Errorf("consumer %s: non-finite demand range [%v, %v] or time period %v", id, minDemand, maxDemand, timePeriod)
	}
	if minDemand < 0 || maxDemand < minDemand {
		return nil, fmt.Errorf("consumer %s: invalid demand range [%v, %v]", id, minDemand, maxDemand)
	}
	if timePeriod <= 0 {
		return nil, fmt.Errorf("consumer %s: time period must be positive", id)
	}
	if src == nil {
		src = NewUniformDemand(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if reg == nil {
		reg = NewRegistry()
	}
	return &Consumer{
		id:         id,
		minDemand:  minDemand,
		maxDemand:  maxDemand,
		timePeriod: timePeriod,
		source:     src,
		registry:   reg,
		log:        logger.OrNop(log),
	}, nil
}

func (c *Consumer) ID() string { return c.id }

// Demand returns the share of this period's demand seen by one substation.
// The demand is drawn on the first call after a Reset and split evenly
// between the connected substations on every call.
func (c *Consumer) Demand() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.demand == nil {
		d := roundWh(c.source.Draw(c.minDemand, c.maxDemand) * c.timePeriod)
		c.demand = &d
		c.log.Debugf("%s demands %.0f Wh", c.id, d)
	}
	return *c.demand / float64(max(1, c.registry.Count(c.id)))
}

// CurrentDemand returns the full demand drawn for this period, if any.
func (c *Consumer) CurrentDemand() (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.demand == nil {
		return 0, false
	}
	return *c.demand, true
}

// ConsumePower records the amount received from a substation.
func (c *Consumer) ConsumePower(received float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.received = received
	c.total += received
	var share float64
	if c.demand != nil {
		share = *c.demand / float64(max(1, c.registry.Count(c.id)))
	}
	c.log.Infof("%s received %.0f of %.0f Wh", c.id, received, share)
}

// Received returns the last amount passed to ConsumePower. For a consumer
// shared by several substations this is the last substation's allocation
// only; see ReceivedTotal.
func (c *Consumer) Received() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.received
}

// ReceivedTotal sums everything passed to ConsumePower since the last Reset,
// across all connected substations.
func (c *Consumer) ReceivedTotal() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total
}

// Reset clears the cached demand so the next Demand call draws again, and
// starts a new received total.
func (c *Consumer) Reset() {
	c.mu.Lock()
	c.demand = nil
	c.total = 0
	c.mu.Unlock()
}

// ConnectToSubstation records a link to substation id. It is idempotent.
func (c *Consumer) ConnectToSubstation(id string) {
	c.registry.Connect(c.id, id)
}

// Substations returns the ids of the connected substations.
func (c *Consumer) Substations() []string {
	return c.registry.Substations(c.id)
}
