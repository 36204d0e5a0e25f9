package events

import (
	"context"
	"errors"
	"time"

	"github.com/kilianp07/gridsim/core/grid"
)

// Phase is the lifecycle stage of a step.
type Phase string

const (
	PhaseStarted   Phase = "started"
	PhaseCompleted Phase = "completed"
	PhaseFailed    Phase = "failed"
)

// StepEvent is published by the simulator for every step. Substation is set
// on failures raised by a single substation.
type StepEvent struct {
	RunID      string
	Step       int
	Phase      Phase
	Substation string
	Err        error
	Duration   time.Duration
	Time       time.Time
}

// Failure reasons used as metric labels.
const (
	ReasonNoCapacity = "no_capacity"
	ReasonNoDemand   = "no_demand"
	ReasonLedger     = "ledger"
	ReasonCancelled  = "cancelled"
	ReasonOther      = "other"
)

// Reason classifies Err. It is empty on success.
func (e StepEvent) Reason() string {
	switch {
	case e.Err == nil:
		return ""
	case errors.Is(e.Err, grid.ErrNoCapacity):
		return ReasonNoCapacity
	case errors.Is(e.Err, grid.ErrNoDemand):
		return ReasonNoDemand
	case errors.Is(e.Err, grid.ErrLedgerRecord):
		return ReasonLedger
	case errors.Is(e.Err, context.Canceled), errors.Is(e.Err, context.DeadlineExceeded):
		return ReasonCancelled
	default:
		return ReasonOther
	}
}
