package grid

import (
	"errors"
	"fmt"
)

var (
	// ErrNoCapacity is returned when the connected producers have nothing left
	// to give for the current period.
	ErrNoCapacity = errors.New("no available capacity")
	// ErrNoDemand is returned when the connected consumers demand nothing.
	ErrNoDemand = errors.New("no demand")
	// ErrLedgerRecord wraps a failure of the ledger recorder.
	ErrLedgerRecord = errors.New("ledger record failed")
	// ErrAlreadyConnected is returned when a producer or consumer is connected
	// twice to the same substation.
	ErrAlreadyConnected = errors.New("already connected")
	// ErrInvalidTopology is returned by Topology.Validate.
	ErrInvalidTopology = errors.New("invalid topology")
)

// AllocationError reports the substation and step at which an allocation
// failed.
type AllocationError struct {
	Substation string
	Step       int
	Err        error
}

func (e *AllocationError) Error() string {
	return fmt.Sprintf("substation %s: step %d: %v", e.Substation, e.Step, e.Err)
}

func (e *AllocationError) Unwrap() error { return e.Err }
