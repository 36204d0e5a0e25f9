package scenarios

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/gridsim/core/grid"
)

// Expected describes the outcome every step of a scenario must produce.
type Expected struct {
	// Error is the failure reason of the first step: no_capacity or no_demand.
	Error string `yaml:"error,omitempty"`
	// Allocations maps consumer ids to the Wh they receive per step.
	Allocations map[string]float64 `yaml:"allocations,omitempty"`
	// Generated maps producer ids to the Wh they generate per step.
	Generated map[string]float64 `yaml:"generated,omitempty"`
	// Unallocated maps substation ids to the remainder they keep per step.
	Unallocated map[string]float64 `yaml:"unallocated,omitempty"`
	TotalPower  *float64           `yaml:"total_power,omitempty"`
}

type Scenario struct {
	Name         string        `yaml:"name"`
	Description  string        `yaml:"description,omitempty"`
	Steps        int           `yaml:"steps"`
	Compensation string        `yaml:"compensation,omitempty"`
	Seed         uint64        `yaml:"seed,omitempty"`
	Grid         grid.Topology `yaml:"grid"`
	Expected     Expected      `yaml:"expected"`
}

func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, err
	}
	if sc.Name == "" {
		return nil, fmt.Errorf("%s: scenario without name", path)
	}
	if sc.Steps == 0 {
		sc.Steps = 1
	}
	return &sc, nil
}
