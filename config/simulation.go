package config

import (
	"errors"
	"time"

	"github.com/kilianp07/gridsim/core/grid"
)

// SimulationConfig controls the run loop.
type SimulationConfig struct {
	Steps       int `json:"steps"`
	StepDelayMS int `json:"step_delay_ms"`
	// Seed drives demand draws. Zero picks a random seed.
	Seed uint64 `json:"seed"`
	// Compensation is "loss" or "none".
	Compensation string `json:"compensation"`
}

func (c *SimulationConfig) SetDefaults() {
	if c.Steps == 0 {
		c.Steps = 1
	}
	if c.Compensation == "" {
		c.Compensation = string(grid.CompensateLoss)
	}
}

func (c SimulationConfig) Validate() error {
	var errs []error
	if c.Steps < 0 {
		errs = append(errs, errors.New("simulation.steps must not be negative"))
	}
	if c.StepDelayMS < 0 {
		errs = append(errs, errors.New("simulation.step_delay_ms must not be negative"))
	}
	if _, err := grid.ParseCompensation(c.Compensation); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// StepDelay returns the delay between steps.
func (c SimulationConfig) StepDelay() time.Duration {
	return time.Duration(c.StepDelayMS) * time.Millisecond
}
