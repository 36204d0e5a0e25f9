package grid

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kilianp07/gridsim/core/ledger"
	"github.com/kilianp07/gridsim/core/logger"
)

// Feed pairs a producer with the line carrying its power to a substation.
type Feed struct {
	Producer *Producer
	Line     *Line
}

// Compensation selects how producer requests account for line losses.
type Compensation string

const (
	// CompensateLoss inflates each request by (1 + lossFactor).
	CompensateLoss Compensation = "loss"
	// CompensateNone requests exactly the proportional share.
	CompensateNone Compensation = "none"
)

// ParseCompensation maps a configuration value to a Compensation. The empty
// string selects CompensateLoss.
func ParseCompensation(s string) (Compensation, error) {
	switch Compensation(s) {
	case "", CompensateLoss:
		return CompensateLoss, nil
	case CompensateNone:
		return CompensateNone, nil
	}
	return "", fmt.Errorf("unknown compensation %q", s)
}

func (c Compensation) request(proportional, lossFactor float64) float64 {
	if c == CompensateNone {
		return ceilWh(proportional)
	}
	return ceilWh(proportional * (1 + lossFactor))
}

// FeedResult describes what one feed produced during a step.
type FeedResult struct {
	Producer     string  `json:"producer"`
	Line         string  `json:"line"`
	Available    float64 `json:"available"`
	Share        float64 `json:"share"`
	Requested    float64 `json:"requested"`
	Generated    float64 `json:"generated"`
	Delivered    float64 `json:"delivered"`
	Lost         float64 `json:"lost"`
	ReportedLoss float64 `json:"reported_loss"`
}

// ConsumerResult describes what one consumer received during a step.
type ConsumerResult struct {
	Consumer  string  `json:"consumer"`
	Demand    float64 `json:"demand"`
	Allocated float64 `json:"allocated"`
}

// Allocation is the full report of one Distribute call.
type Allocation struct {
	Substation        string           `json:"substation"`
	Step              int              `json:"step"`
	Compensation      Compensation     `json:"compensation"`
	AvailableCapacity float64          `json:"available_capacity"`
	TotalDemand       float64          `json:"total_demand"`
	TotalGenerated    float64          `json:"total_generated"`
	TotalPower        float64          `json:"total_power"`
	TotalLost         float64          `json:"total_lost"`
	Allocated         float64          `json:"allocated"`
	Unallocated       float64          `json:"unallocated"`
	Feeds             []FeedResult     `json:"feeds"`
	Consumers         []ConsumerResult `json:"consumers"`
}

// Option configures a Substation.
type Option func(*Substation)

// WithRecorder sends every power movement to r.
func WithRecorder(r ledger.Recorder) Option {
	return func(s *Substation) {
		if r != nil {
			s.recorder = r
		}
	}
}

// WithCompensation sets the loss compensation policy.
func WithCompensation(c Compensation) Option {
	return func(s *Substation) {
		if c != "" {
			s.compensation = c
		}
	}
}

func WithLogger(l logger.Logger) Option {
	return func(s *Substation) { s.log = logger.OrNop(l) }
}

// Substation splits the power delivered by its feeds among its consumers.
// It holds no power state of its own.
type Substation struct {
	id        string
	feeds     []Feed
	consumers []*Consumer

	recorder     ledger.Recorder
	compensation Compensation
	log          logger.Logger
	now          func() time.Time
}

func NewSubstation(id string, opts ...Option) *Substation {
	s := &Substation{
		id:           id,
		recorder:     ledger.NopRecorder{},
		compensation: CompensateLoss,
		log:          logger.Nop{},
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Substation) ID() string { return s.id }

// Feeds returns the connected feeds in connection order.
func (s *Substation) Feeds() []Feed { return append([]Feed(nil), s.feeds...) }

// Consumers returns the connected consumers in connection order.
func (s *Substation) Consumers() []*Consumer { return append([]*Consumer(nil), s.consumers...) }

// ConnectProducer adds a feed. A producer can only be connected once.
func (s *Substation) ConnectProducer(p *Producer, l *Line) error {
	if p == nil || l == nil {
		return fmt.Errorf("substation %s: nil producer or line", s.id)
	}
	for _, f := range s.feeds {
		if f.Producer.ID() == p.ID() {
			return fmt.Errorf("substation %s: producer %s: %w", s.id, p.ID(), ErrAlreadyConnected)
		}
	}
	s.feeds = append(s.feeds, Feed{Producer: p, Line: l})
	return nil
}

// ConnectConsumer adds a consumer and registers the link on its registry.
// Links are keyed by substation id, so substations sharing a registry must
// have distinct, non-empty ids.
func (s *Substation) ConnectConsumer(c *Consumer) error {
	if s.id == "" {
		return errors.New("substation: empty id")
	}
	if c == nil {
		return fmt.Errorf("substation %s: nil consumer", s.id)
	}
	for _, existing := range s.consumers {
		if existing.ID() == c.ID() {
			return fmt.Errorf("substation %s: consumer %s: %w", s.id, c.ID(), ErrAlreadyConnected)
		}
	}
	s.consumers = append(s.consumers, c)
	c.ConnectToSubstation(s.id)
	return nil
}

// Distribute runs one allocation step. ErrNoCapacity and ErrNoDemand are
// returned before any producer or consumer is touched. A recorder failure
// aborts the step where it happened.
func (s *Substation) Distribute(ctx context.Context, step int) (Allocation, error) {
	alloc := Allocation{Substation: s.id, Step: step, Compensation: s.compensation}

	available := make([]float64, len(s.feeds))
	for i, f := range s.feeds {
		available[i] = f.Producer.AvailableOutput()
		alloc.AvailableCapacity += available[i]
	}
	if alloc.AvailableCapacity <= 0 {
		return alloc, s.fail(step, ErrNoCapacity)
	}
	demands := make([]float64, len(s.consumers))
	for i, c := range s.consumers {
		demands[i] = c.Demand()
		alloc.TotalDemand += demands[i]
	}
	if alloc.TotalDemand <= 0 {
		return alloc, s.fail(step, ErrNoDemand)
	}
	s.log.Debugf("%s step %d: capacity %.0f Wh, demand %.2f Wh", s.id, step, alloc.AvailableCapacity, alloc.TotalDemand)

	alloc.Feeds = make([]FeedResult, 0, len(s.feeds))
	for i, f := range s.feeds {
		share := available[i] / alloc.AvailableCapacity
		request := s.compensation.request(share*alloc.TotalDemand, f.Line.LossFactor())
		generated := f.Producer.RequestPower(request)
		if err := s.record(ctx, ledger.Event{Kind: ledger.KindGeneration, From: f.Producer.ID(), To: f.Line.ID(), Amount: generated, Step: step}); err != nil {
			return alloc, s.fail(step, err)
		}
		tx := f.Line.Transmit(generated)
		if err := s.record(ctx, ledger.Event{Kind: ledger.KindTransmission, From: f.Line.ID(), To: s.id, Amount: tx.Delivered, Loss: tx.Lost, Step: step}); err != nil {
			return alloc, s.fail(step, err)
		}
		alloc.Feeds = append(alloc.Feeds, FeedResult{
			Producer:     f.Producer.ID(),
			Line:         f.Line.ID(),
			Available:    available[i],
			Share:        share,
			Requested:    request,
			Generated:    generated,
			Delivered:    tx.Delivered,
			Lost:         tx.Lost,
			ReportedLoss: tx.ReportedLoss,
		})
		alloc.TotalGenerated += generated
		alloc.TotalLost += tx.Lost
		alloc.TotalPower += tx.Delivered
	}
	s.log.Debugf("%s step %d: generated %.0f Wh, delivered %.0f Wh", s.id, step, alloc.TotalGenerated, alloc.TotalPower)

	alloc.Consumers = make([]ConsumerResult, 0, len(s.consumers))
	for i, c := range s.consumers {
		allocated := floorWh(alloc.TotalPower * (demands[i] / alloc.TotalDemand))
		if err := s.record(ctx, ledger.Event{Kind: ledger.KindDistribution, From: s.id, To: c.ID(), Amount: allocated, Step: step}); err != nil {
			return alloc, s.fail(step, err)
		}
		c.ConsumePower(allocated)
		if err := s.record(ctx, ledger.Event{Kind: ledger.KindConsumption, From: c.ID(), Amount: allocated, Step: step}); err != nil {
			return alloc, s.fail(step, err)
		}
		alloc.Consumers = append(alloc.Consumers, ConsumerResult{Consumer: c.ID(), Demand: demands[i], Allocated: allocated})
		alloc.Allocated += allocated
	}
	alloc.Unallocated = alloc.TotalPower - alloc.Allocated
	s.log.Infof("%s step %d: allocated %.0f of %.0f Wh to %d consumers", s.id, step, alloc.Allocated, alloc.TotalPower, len(s.consumers))
	return alloc, nil
}

// Reset resets every connected producer and consumer.
func (s *Substation) Reset() {
	for _, f := range s.feeds {
		f.Producer.Reset()
	}
	for _, c := range s.consumers {
		c.Reset()
	}
}

// record forwards non-empty events to the recorder.
func (s *Substation) record(ctx context.Context, ev ledger.Event) error {
	if ev.Amount == 0 && ev.Loss == 0 {
		return nil
	}
	ev.Time = s.now()
	if err := s.recorder.Record(ctx, ev); err != nil {
		return fmt.Errorf("%w: %s %s: %w", ErrLedgerRecord, ev.Kind, ev.From, err)
	}
	return nil
}

func (s *Substation) fail(step int, err error) error {
	s.log.Errorf("%s step %d: %v", s.id, step, err)
	return &AllocationError{Substation: s.id, Step: step, Err: err}
}
