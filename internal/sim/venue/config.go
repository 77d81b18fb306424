package venue

// Config holds the fixed parameters of one venue process. Most values come
// from tuning.yaml via cmd/server; tests usually take the zero value plus
// applyDefaults.
type Config struct {
	ID         string
	TickRateHz int
	Seed       int64

	PlanStepsMin int
	PlanStepsMax int

	// MoveCellsPerTick is the walk speed. StallTicks is how long a character
	// may fail to make progress toward a target before the step is skipped.
	MoveCellsPerTick int
	StallTicks       int

	// ObsEveryTicks controls the observer broadcast cadence. Events buffer
	// between broadcasts so nothing is lost on the off ticks.
	ObsEveryTicks int

	SnapshotEveryTicks int
	DayTicks           int

	Conversation ConversationConfig
}

type ConversationConfig struct {
	// Radius is the Chebyshev distance within which two idle characters may
	// strike up a conversation.
	Radius         int
	ChancePermille int
	MinTicks       int
	MaxTicks       int
	CooldownTicks  int
}

func (c *Config) applyDefaults() {
	if c.ID == "" {
		c.ID = "greenroom-1"
	}
	if c.TickRateHz <= 0 {
		c.TickRateHz = 10
	}
	if c.PlanStepsMin <= 0 {
		c.PlanStepsMin = 2
	}
	if c.PlanStepsMax < c.PlanStepsMin {
		c.PlanStepsMax = c.PlanStepsMin + 3
	}
	if c.MoveCellsPerTick <= 0 {
		c.MoveCellsPerTick = 1
	}
	if c.StallTicks <= 0 {
		c.StallTicks = 12
	}
	if c.ObsEveryTicks <= 0 {
		c.ObsEveryTicks = 2
	}
	if c.SnapshotEveryTicks <= 0 {
		c.SnapshotEveryTicks = 3000
	}
	if c.DayTicks <= 0 {
		c.DayTicks = 36000
	}
	if c.Conversation.Radius <= 0 {
		c.Conversation.Radius = 2
	}
	if c.Conversation.ChancePermille <= 0 {
		c.Conversation.ChancePermille = 15
	}
	if c.Conversation.MinTicks <= 0 {
		c.Conversation.MinTicks = 40
	}
	if c.Conversation.MaxTicks < c.Conversation.MinTicks {
		c.Conversation.MaxTicks = c.Conversation.MinTicks * 3
	}
	if c.Conversation.CooldownTicks <= 0 {
		c.Conversation.CooldownTicks = 600
	}
}
