package venue

import (
	"greenroom.ai/internal/sim/catalog"
	"greenroom.ai/internal/sim/plan"
)

// Character is one autonomous cast member. All fields are owned by the venue
// loop goroutine.
type Character struct {
	ID        string
	Name      string
	Archetype string

	// Ordinal is the join counter value that minted this character. It seeds
	// the plan RNG stream and spreads stable placement choices (station,
	// audience spot) without extra state.
	Ordinal uint64

	Station Cell
	Pos     Cell

	Ex *plan.Executor

	// Seat is held from arrival at a seated step until that step ends.
	Seat *SeatClaim

	// ConvWith is the partner's character id while a conversation is live.
	ConvWith string

	// Stall counts consecutive ticks without movement progress.
	Stall int

	goal goal
}

type SeatClaim struct {
	Area catalog.AreaID
	Pos  Cell
}

// goal is the venue-side walk state for the executor's current step. It is
// keyed by step pointer identity: when the executor moves on (advance,
// override, interrupt, restore) the stale goal no longer matches and the
// routine system resolves a fresh one.
type goal struct {
	step    *plan.Step
	target  Cell
	arrived bool

	// loopIdx is the next waypoint for WALK_LOOP steps.
	loopIdx int
}

func (c *Character) resetGoal() {
	c.goal = goal{}
	c.Stall = 0
}

// currentKind peeks at the executor's current step without triggering plan
// generation. Empty while paused or before the first plan exists.
func (c *Character) currentKind() catalog.Kind {
	p := c.Ex.CurrentPlan()
	if p == nil {
		return ""
	}
	st := p.Current()
	if st == nil || c.Ex.Paused() {
		return ""
	}
	return st.Kind
}
