package grid

import (
	"fmt"
	"sync"

	"github.com/kilianp07/gridsim/core/logger"
)

// Producer generates power up to its period capacity.
type Producer struct {
	id         string
	maxOutput  float64
	timePeriod float64

	mu            sync.Mutex
	currentOutput float64

	log logger.Logger
}

// NewProducer returns a producer rated at maxOutput per unit of time over a
// period of timePeriod units.
func NewProducer(id string, maxOutput, timePeriod float64, log logger.Logger) (*Producer, error) {
	if id == "" {
		return nil, fmt.Errorf("producer: empty id")
	}
	if !finite(maxOutput, timePeriod) {
		return nil, fmt.Errorf("producer %s: non-finite max output %v or time period %v", id, maxOutput, timePeriod)
	}
	if maxOutput < 0 {
		return nil, fmt.Errorf("producer %s: negative max output %v", id, maxOutput)
	}
	if timePeriod <= 0 {
		return nil, fmt.Errorf("producer %s: time period must be positive", id)
	}
	return &Producer{id: id, maxOutput: maxOutput, timePeriod: timePeriod, log: logger.OrNop(log)}, nil
}

func (p *Producer) ID() string { return p.id }

// PeriodCapacity is the generation ceiling for one period.
func (p *Producer) PeriodCapacity() float64 {
	return roundWh(p.maxOutput * p.timePeriod)
}

// AvailableOutput is what remains of the period capacity.
func (p *Producer) AvailableOutput() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.available()
}

func (p *Producer) available() float64 {
	return max(p.PeriodCapacity()-p.currentOutput, 0)
}

// CurrentOutput is what has been generated since the last Reset.
func (p *Producer) CurrentOutput() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.currentOutput
}

// RequestPower generates up to requested and returns the amount provided.
// Negative requests provide nothing.
func (p *Producer) RequestPower(requested float64) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if requested < 0 {
		requested = 0
	}
	provided := min(requested, p.available())
	p.currentOutput += provided
	p.log.Debugf("%s generated %.0f Wh (requested %.0f)", p.id, provided, requested)
	return provided
}

// Reset starts a new period.
func (p *Producer) Reset() {
	p.mu.Lock()
	p.currentOutput = 0
	p.mu.Unlock()
}
