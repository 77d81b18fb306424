package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	TickRateHz         int `yaml:"tick_rate_hz"`
	PlanStepsMin       int `yaml:"plan_steps_min"`
	PlanStepsMax       int `yaml:"plan_steps_max"`
	MoveCellsPerTick   int `yaml:"move_cells_per_tick"`
	StallTicks         int `yaml:"stall_ticks"`
	ObserverEveryTicks int `yaml:"observer_every_ticks"`
	SnapshotEveryTicks int `yaml:"snapshot_every_ticks"`
	DayTicks           int `yaml:"day_ticks"`

	Conversation Conversation `yaml:"conversation"`
}

type Conversation struct {
	Radius         int `yaml:"radius"`
	ChancePermille int `yaml:"chance_permille"`
	MinTicks       int `yaml:"min_ticks"`
	MaxTicks       int `yaml:"max_ticks"`
	CooldownTicks  int `yaml:"cooldown_ticks"`
}

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion:    "0.3",
		TickRateHz:         10,
		PlanStepsMin:       2,
		PlanStepsMax:       5,
		MoveCellsPerTick:   1,
		StallTicks:         12,
		ObserverEveryTicks: 2,
		SnapshotEveryTicks: 3000,
		DayTicks:           36000,
		Conversation: Conversation{
			Radius:         2,
			ChancePermille: 15,
			MinTicks:       40,
			MaxTicks:       120,
			CooldownTicks:  600,
		},
	}
}

func Load(path string) (Tuning, error) {
	var t Tuning
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}
