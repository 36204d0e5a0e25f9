package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kilianp07/gridsim/core/events"
	"github.com/kilianp07/gridsim/core/grid"
)

// PromSink exposes allocation and step metrics to Prometheus.
type PromSink struct {
	generated   *prometheus.CounterVec
	delivered   *prometheus.CounterVec
	lost        *prometheus.CounterVec
	allocated   *prometheus.CounterVec
	unallocated *prometheus.GaugeVec
	steps       *prometheus.CounterVec
	failures    *prometheus.CounterVec
	duration    prometheus.Histogram
}

// NewPromSink registers the metrics on the default registerer.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers the metrics on reg, reusing collectors
// that are already registered. A nil reg uses the default registerer.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{}
	var err error
	if s.generated, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gridsim_generated_wh_total",
		Help: "Energy generated by producers",
	}, []string{"substation", "producer"})); err != nil {
		return nil, err
	}
	if s.delivered, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gridsim_delivered_wh_total",
		Help: "Energy delivered by lines to substations",
	}, []string{"substation", "line"})); err != nil {
		return nil, err
	}
	if s.lost, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gridsim_line_loss_wh_total",
		Help: "Energy lost in transmission",
	}, []string{"substation", "line"})); err != nil {
		return nil, err
	}
	if s.allocated, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gridsim_allocated_wh_total",
		Help: "Energy allocated to consumers",
	}, []string{"substation", "consumer"})); err != nil {
		return nil, err
	}
	if s.unallocated, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gridsim_unallocated_wh",
		Help: "Rounding remainder left at the substation on the last step",
	}, []string{"substation"})); err != nil {
		return nil, err
	}
	if s.steps, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gridsim_steps_total",
		Help: "Simulation steps by outcome",
	}, []string{"phase"})); err != nil {
		return nil, err
	}
	if s.failures, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gridsim_step_failures_total",
		Help: "Failed steps by reason",
	}, []string{"reason"})); err != nil {
		return nil, err
	}
	if s.duration, err = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "gridsim_step_duration_seconds",
		Help:    "Duration of a simulation step",
		Buckets: prometheus.DefBuckets,
	})); err != nil {
		return nil, err
	}
	return s, nil
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func (s *PromSink) RecordAllocation(a grid.Allocation) error {
	for _, f := range a.Feeds {
		s.generated.WithLabelValues(a.Substation, f.Producer).Add(f.Generated)
		s.delivered.WithLabelValues(a.Substation, f.Line).Add(f.Delivered)
		s.lost.WithLabelValues(a.Substation, f.Line).Add(f.Lost)
	}
	for _, c := range a.Consumers {
		s.allocated.WithLabelValues(a.Substation, c.Consumer).Add(c.Allocated)
	}
	s.unallocated.WithLabelValues(a.Substation).Set(a.Unallocated)
	return nil
}

// RecordStep counts finished steps and observes their duration.
func (s *PromSink) RecordStep(ev events.StepEvent) error {
	switch ev.Phase {
	case events.PhaseCompleted:
		s.duration.Observe(ev.Duration.Seconds())
	case events.PhaseFailed:
		s.failures.WithLabelValues(ev.Reason()).Inc()
		s.duration.Observe(ev.Duration.Seconds())
	default:
		return nil
	}
	s.steps.WithLabelValues(string(ev.Phase)).Inc()
	return nil
}
