package ledger

import (
	"context"
	"time"
)

// Kind identifies one of the observable power events.
type Kind string

const (
	KindGeneration   Kind = "generation"
	KindTransmission Kind = "transmission"
	KindDistribution Kind = "distribution"
	KindConsumption  Kind = "consumption"
)

// Kinds lists the event kinds in flow order.
var Kinds = []Kind{KindGeneration, KindTransmission, KindDistribution, KindConsumption}

func (k Kind) String() string { return string(k) }

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindGeneration, KindTransmission, KindDistribution, KindConsumption:
		return true
	}
	return false
}

// Event is a single observation emitted by a substation during a step.
type Event struct {
	Kind Kind
	// From and To are account ids. To is empty for consumption.
	From   string
	To     string
	Amount float64
	// Loss is only set for transmission events.
	Loss float64
	Step int
	Time time.Time
}

// Recorder receives power events. A returned error aborts the step that
// produced the event.
type Recorder interface {
	Record(ctx context.Context, ev Event) error
}

// NopRecorder accepts every event and stores nothing.
type NopRecorder struct{}

func (NopRecorder) Record(context.Context, Event) error { return nil }

// RecorderFunc adapts a function to the Recorder interface.
type RecorderFunc func(ctx context.Context, ev Event) error

func (f RecorderFunc) Record(ctx context.Context, ev Event) error { return f(ctx, ev) }
