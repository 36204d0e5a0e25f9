package grid

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/kilianp07/gridsim/core/ledger"
	"github.com/kilianp07/gridsim/core/logger"
)

// ProducerSpec describes a producer in a topology.
type ProducerSpec struct {
	ID         string  `json:"id" yaml:"id"`
	MaxOutput  float64 `json:"max_output" yaml:"max_output"`
	TimePeriod float64 `json:"time_period" yaml:"time_period"`
}

// LineSpec describes a transmission line.
type LineSpec struct {
	ID                 string  `json:"id" yaml:"id"`
	LossFactor         float64 `json:"loss_factor" yaml:"loss_factor"`
	SampleReportedLoss bool    `json:"sample_reported_loss" yaml:"sample_reported_loss"`
}

// ConsumerSpec describes a consumer. FixedDemand replaces the uniform draw
// when set.
type ConsumerSpec struct {
	ID          string   `json:"id" yaml:"id"`
	MinDemand   float64  `json:"min_demand" yaml:"min_demand"`
	MaxDemand   float64  `json:"max_demand" yaml:"max_demand"`
	TimePeriod  float64  `json:"time_period" yaml:"time_period"`
	FixedDemand *float64 `json:"fixed_demand,omitempty" yaml:"fixed_demand,omitempty"`
}

// FeedSpec references a producer and the line it feeds through.
type FeedSpec struct {
	Producer string `json:"producer" yaml:"producer"`
	Line     string `json:"line" yaml:"line"`
}

// SubstationSpec lists the feeds and consumer ids of a substation, in order.
type SubstationSpec struct {
	ID        string     `json:"id" yaml:"id"`
	Feeds     []FeedSpec `json:"feeds" yaml:"feeds"`
	Consumers []string   `json:"consumers" yaml:"consumers"`
}

// Topology is the declarative description of a grid.
type Topology struct {
	Producers   []ProducerSpec   `json:"producers" yaml:"producers"`
	Lines       []LineSpec       `json:"lines" yaml:"lines"`
	Consumers   []ConsumerSpec   `json:"consumers" yaml:"consumers"`
	Substations []SubstationSpec `json:"substations" yaml:"substations"`
}

// SetDefaults fills a time period of 1 where none is given.
func (t *Topology) SetDefaults() {
	for i := range t.Producers {
		if t.Producers[i].TimePeriod == 0 {
			t.Producers[i].TimePeriod = 1
		}
	}
	for i := range t.Consumers {
		if t.Consumers[i].TimePeriod == 0 {
			t.Consumers[i].TimePeriod = 1
		}
	}
}

// Validate checks ids and references. Ids are unique across every kind of
// entity since they double as ledger accounts.
func (t Topology) Validate() error {
	var errs []error
	ids := make(map[string]string)
	claim := func(kind, id string) {
		if id == "" {
			errs = append(errs, fmt.Errorf("%s with empty id", kind))
			return
		}
		if prev, ok := ids[id]; ok {
			errs = append(errs, fmt.Errorf("%s %q: id already used by a %s", kind, id, prev))
			return
		}
		ids[id] = kind
	}
	for _, p := range t.Producers {
		claim("producer", p.ID)
		if !finite(p.MaxOutput, p.TimePeriod) {
			errs = append(errs, fmt.Errorf("producer %q: max_output and time_period must be finite", p.ID))
		} else if p.MaxOutput < 0 || p.TimePeriod < 0 {
			errs = append(errs, fmt.Errorf("producer %q: negative max_output or time_period", p.ID))
		}
	}
	for _, l := range t.Lines {
		claim("line", l.ID)
		if !finite(l.LossFactor) || l.LossFactor < 0 || l.LossFactor >= 1 {
			errs = append(errs, fmt.Errorf("line %q: loss_factor must be in [0,1)", l.ID))
		}
	}
	for _, c := range t.Consumers {
		claim("consumer", c.ID)
		switch {
		case !finite(c.MinDemand, c.MaxDemand, c.TimePeriod):
			errs = append(errs, fmt.Errorf("consumer %q: demand range and time_period must be finite", c.ID))
		case c.MinDemand < 0 || c.MaxDemand < c.MinDemand:
			errs = append(errs, fmt.Errorf("consumer %q: invalid demand range", c.ID))
		case c.TimePeriod < 0:
			errs = append(errs, fmt.Errorf("consumer %q: negative time_period", c.ID))
		}
		if c.FixedDemand != nil && (!finite(*c.FixedDemand) || *c.FixedDemand < 0) {
			errs = append(errs, fmt.Errorf("consumer %q: fixed_demand must be finite and non-negative", c.ID))
		}
	}
	for _, s := range t.Substations {
		claim("substation", s.ID)
		for _, f := range s.Feeds {
			if ids[f.Producer] != "producer" {
				errs = append(errs, fmt.Errorf("substation %q: unknown producer %q", s.ID, f.Producer))
			}
			if ids[f.Line] != "line" {
				errs = append(errs, fmt.Errorf("substation %q: unknown line %q", s.ID, f.Line))
			}
		}
		for _, c := range s.Consumers {
			if ids[c] != "consumer" {
				errs = append(errs, fmt.Errorf("substation %q: unknown consumer %q", s.ID, c))
			}
		}
	}
	if len(t.Substations) == 0 {
		errs = append(errs, errors.New("no substation defined"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidTopology, err)
	}
	return nil
}

// BuildOptions tune Build.
type BuildOptions struct {
	// Seed drives every random source of the grid. Zero picks a random seed.
	Seed         uint64
	Compensation Compensation
	Recorder     ledger.Recorder
	// NewLogger returns the logger of a component. Nil disables logging.
	NewLogger func(component string) logger.Logger
}

// Grid is a built topology.
type Grid struct {
	Producers   []*Producer
	Lines       []*Line
	Consumers   []*Consumer
	Substations []*Substation
	Registry    *Registry
}

// Build validates t and constructs the object graph. Each consumer and each
// sampling line gets its own PCG stream derived from the seed.
func Build(t Topology, opts BuildOptions) (*Grid, error) {
	t.SetDefaults()
	if err := t.Validate(); err != nil {
		return nil, err
	}
	seed := opts.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	newLogger := func(component string) logger.Logger {
		if opts.NewLogger == nil {
			return logger.Nop{}
		}
		return opts.NewLogger(component)
	}

	g := &Grid{Registry: NewRegistry()}
	producers := make(map[string]*Producer, len(t.Producers))
	for _, ps := range t.Producers {
		p, err := NewProducer(ps.ID, ps.MaxOutput, ps.TimePeriod, newLogger("producer"))
		if err != nil {
			return nil, err
		}
		producers[p.ID()] = p
		g.Producers = append(g.Producers, p)
	}
	lines := make(map[string]*Line, len(t.Lines))
	for i, ls := range t.Lines {
		var sampler LossSampler
		if ls.SampleReportedLoss {
			sampler = NewUniformLossSampler(rand.NewPCG(seed, 1<<32+uint64(i)))
		}
		l, err := NewLine(ls.ID, ls.LossFactor, sampler, newLogger("line"))
		if err != nil {
			return nil, err
		}
		lines[l.ID()] = l
		g.Lines = append(g.Lines, l)
	}
	consumers := make(map[string]*Consumer, len(t.Consumers))
	for i, cs := range t.Consumers {
		var src DemandSource = NewUniformDemand(rand.NewPCG(seed, uint64(i)+1))
		if cs.FixedDemand != nil {
			src = FixedDemand(*cs.FixedDemand)
		}
		c, err := NewConsumer(cs.ID, cs.MinDemand, cs.MaxDemand, cs.TimePeriod, src, g.Registry, newLogger("consumer"))
		if err != nil {
			return nil, err
		}
		consumers[c.ID()] = c
		g.Consumers = append(g.Consumers, c)
	}
	for _, ss := range t.Substations {
		s := NewSubstation(ss.ID,
			WithRecorder(opts.Recorder),
			WithCompensation(opts.Compensation),
			WithLogger(newLogger("substation")),
		)
		for _, f := range ss.Feeds {
			if err := s.ConnectProducer(producers[f.Producer], lines[f.Line]); err != nil {
				return nil, err
			}
		}
		for _, id := range ss.Consumers {
			if err := s.ConnectConsumer(consumers[id]); err != nil {
				return nil, err
			}
		}
		g.Substations = append(g.Substations, s)
	}
	return g, nil
}

// Substation returns the substation with the given id.
func (g *Grid) Substation(id string) (*Substation, bool) {
	for _, s := range g.Substations {
		if s.ID() == id {
			return s, true
		}
	}
	return nil, false
}

// Reset resets every substation.
func (g *Grid) Reset() {
	for _, s := range g.Substations {
		s.Reset()
	}
}

// Enroll grants every entity its ledger role and registers each consumer
// with the substations it is connected to.
func (g *Grid) Enroll(book *ledger.Book) error {
	grant := func(role ledger.Role, id string) error {
		if err := book.Authorize(role, id); err != nil {
			return fmt.Errorf("enroll %s %s: %w", role, id, err)
		}
		return nil
	}
	for _, p := range g.Producers {
		if err := grant(ledger.RoleProducer, p.ID()); err != nil {
			return err
		}
	}
	for _, l := range g.Lines {
		if err := grant(ledger.RoleLine, l.ID()); err != nil {
			return err
		}
	}
	for _, c := range g.Consumers {
		if err := grant(ledger.RoleConsumer, c.ID()); err != nil {
			return err
		}
	}
	for _, s := range g.Substations {
		if err := grant(ledger.RoleSubstation, s.ID()); err != nil {
			return err
		}
		for _, c := range s.Consumers() {
			if err := book.RegisterConsumer(s.ID(), c.ID()); err != nil {
				return fmt.Errorf("enroll consumer %s: %w", c.ID(), err)
			}
		}
	}
	return nil
}
