package metrics

import "github.com/kilianp07/gridsim/core/factory"

var sinkRegistry = factory.NewRegistry[AllocationSink]()

// RegisterSink adds a sink factory identified by name.
func RegisterSink(name string, f factory.Factory[AllocationSink]) error {
	return sinkRegistry.Register(name, f)
}

// SinkTypes lists the registered sink names.
func SinkTypes() []string { return sinkRegistry.Names() }

// NewSink builds the configured sinks. No configuration yields a NopSink and
// several yield a MultiSink.
func NewSink(cfgs []factory.ModuleConfig) (AllocationSink, error) {
	if len(cfgs) == 0 {
		return NopSink{}, nil
	}
	if len(cfgs) == 1 {
		return sinkRegistry.Create(cfgs[0])
	}
	sinks := make([]AllocationSink, 0, len(cfgs))
	for _, c := range cfgs {
		s, err := sinkRegistry.Create(c)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, s)
	}
	return NewMultiSink(sinks...), nil
}
