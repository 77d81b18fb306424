package venue

import (
	"greenroom.ai/internal/protocol"
	"greenroom.ai/internal/sim/catalog"
	"greenroom.ai/internal/sim/plan"
	"greenroom.ai/internal/sim/venue/logic/mathx"
)

// systemRoutines drives each character's behavior plan: resolve a walk
// target for the current step, mark arrival (claiming seats or the stage),
// wait out the dwell, then advance. Characters are processed in sorted id
// order so a contended seat always goes to the same character on replay.
func (v *Venue) systemRoutines(nowTick uint64) {
	for _, id := range v.sortedCharIDs() {
		c := v.chars[id]
		if c == nil {
			continue
		}
		st := c.Ex.CurrentStep()
		if st == nil {
			// Paused for a conversation; the plan waits.
			continue
		}

		if c.goal.step != st {
			v.resolveGoal(c, st, nowTick)
			continue
		}

		if !c.goal.arrived {
			if c.Pos == c.goal.target {
				v.arrive(c, st, nowTick)
			} else if c.Stall >= v.cfg.StallTicks {
				v.skipStep(c, st, "unreachable", nowTick)
			}
			continue
		}

		if c.Ex.DurationElapsed(v.nowSeconds(nowTick)) {
			v.completeStep(c, st, nowTick)
		}
	}
}

// resolveGoal picks the walk target for a step. Seated steps reserve nothing
// here: the seat is claimed at arrival, so a full area discovered at resolve
// time is skipped immediately instead of walked to.
func (v *Venue) resolveGoal(c *Character, st *plan.Step, nowTick uint64) {
	g := goal{step: st}

	switch {
	case st.SeatArea != "":
		// A claim we already hold (resuming mid-step after a conversation)
		// beats hunting for a free cell.
		if held, ok := v.seats.heldBy(c.ID, st.SeatArea); ok {
			g.target = held
			break
		}
		seat, ok := v.seats.freeSeat(st.SeatArea, v.floor, v.cat.Capacity(st.SeatArea))
		if !ok {
			v.addEvent(protocol.Event{
				"t":            nowTick,
				"type":         "SEAT_DENIED",
				"character_id": c.ID,
				"area":         string(st.SeatArea),
			})
			v.skipStep(c, st, "area_full", nowTick)
			return
		}
		g.target = seat

	case st.Kind == catalog.KindPerformOnStage:
		if v.stage != nil && v.stage.PerformerID != c.ID {
			v.skipStep(c, st, "stage_occupied", nowTick)
			return
		}
		g.target = v.floor.StageCenter()

	case st.Kind == catalog.KindWatchStage:
		g.target = v.floor.AudienceCell(c.Ordinal)

	case st.Kind == catalog.KindReturnToStation:
		g.target = c.Station

	case st.Kind == catalog.KindPresent:
		g.target = v.floor.Showcase

	case st.Kind == catalog.KindWalkLoop:
		g.target = v.floor.Loop[0]
		g.loopIdx = 0

	case st.Kind == catalog.KindPlayBocce || st.Kind == catalog.KindPlayCornhole:
		cell, ok := v.floor.CourtCell(st.Kind, c.Ordinal)
		if !ok {
			v.skipStep(c, st, "no_court", nowTick)
			return
		}
		g.target = cell

	case st.Kind == catalog.KindCheckOnColleague:
		target, ok := v.colleagueCell(c, nowTick)
		if !ok {
			// Nobody else around: drift somewhere instead of standing still.
			target = v.wanderCell(c)
		}
		g.target = target

	default: // WANDER and anything without a fixed landmark.
		g.target = v.wanderCell(c)
	}

	if st.Target != nil {
		// An explicit step target (operator overrides may carry one) wins
		// over the kind's landmark.
		t := Cell{X: st.Target.X, Y: st.Target.Y}
		if v.floor.Walkable(t) {
			g.target = t
		}
	}

	c.goal = g
	c.Stall = 0
	v.addEvent(protocol.Event{
		"t":            nowTick,
		"type":         "STEP_STARTED",
		"character_id": c.ID,
		"kind":         string(st.Kind),
		"target":       [2]int{g.target.X, g.target.Y},
	})
}

// arrive runs the claims that only make sense once the character is standing
// on the target cell, then starts the dwell clock.
func (v *Venue) arrive(c *Character, st *plan.Step, nowTick uint64) {
	if st.SeatArea != "" {
		seat, ok := v.seats.claim(c.ID, st.SeatArea, c.goal.target, v.floor, v.cat.Capacity(st.SeatArea))
		if !ok {
			v.addEvent(protocol.Event{
				"t":            nowTick,
				"type":         "SEAT_DENIED",
				"character_id": c.ID,
				"area":         string(st.SeatArea),
			})
			v.skipStep(c, st, "area_full", nowTick)
			return
		}
		if seat != c.goal.target {
			// The preferred seat was taken while walking. The claim already
			// moved us to the next free cell; keep walking to it.
			c.goal.target = seat
			return
		}
		c.Seat = &SeatClaim{Area: st.SeatArea, Pos: seat}
	}

	if st.Kind == catalog.KindPerformOnStage {
		if v.stage != nil && v.stage.PerformerID != c.ID {
			v.skipStep(c, st, "stage_occupied", nowTick)
			return
		}
		v.beginPerformance(c, nowTick)
	}

	c.goal.arrived = true
	c.Stall = 0
	c.Ex.MarkArrival(v.nowSeconds(nowTick))
	v.addEvent(protocol.Event{
		"t":            nowTick,
		"type":         "STEP_ARRIVED",
		"character_id": c.ID,
		"kind":         string(st.Kind),
	})
}

func (v *Venue) completeStep(c *Character, st *plan.Step, nowTick uint64) {
	v.addEvent(protocol.Event{
		"t":            nowTick,
		"type":         "STEP_COMPLETED",
		"character_id": c.ID,
		"kind":         string(st.Kind),
	})
	v.finishStep(c, st, nowTick)
}

func (v *Venue) skipStep(c *Character, st *plan.Step, reason string, nowTick uint64) {
	v.addEvent(protocol.Event{
		"t":            nowTick,
		"type":         "STEP_SKIPPED",
		"character_id": c.ID,
		"kind":         string(st.Kind),
		"reason":       reason,
	})
	v.finishStep(c, st, nowTick)
}

// finishStep releases whatever the step held and moves the plan forward.
func (v *Venue) finishStep(c *Character, st *plan.Step, nowTick uint64) {
	v.releaseSeat(c)
	if v.stage != nil && v.stage.PerformerID == c.ID && st.Kind == catalog.KindPerformOnStage {
		v.endPerformance("performance_finished", nowTick)
	}
	c.Ex.Advance()
	c.resetGoal()
}

// releaseSeat drops both the registry claim and the visible seat, covering
// claims still held while walking to a redirected cell.
func (v *Venue) releaseSeat(c *Character) {
	v.seats.release(c.ID)
	c.Seat = nil
}

// colleagueCell picks another character to check on, spread by a stateless
// hash so repeat visits rotate targets without consuming plan RNG draws.
func (v *Venue) colleagueCell(c *Character, nowTick uint64) (Cell, bool) {
	ids := v.sortedCharIDs()
	others := ids[:0]
	for _, id := range ids {
		if id != c.ID {
			others = append(others, id)
		}
	}
	if len(others) == 0 {
		return Cell{}, false
	}
	pick := int(mathx.Hash2(v.cfg.Seed, int(c.Ordinal), int(nowTick)) % uint64(len(others)))
	return v.chars[others[pick]].Pos, true
}

// wanderCell draws a random walkable cell from the character's own stream.
func (v *Venue) wanderCell(c *Character) Cell {
	rng := c.Ex.Rand()
	for i := 0; i < 32; i++ {
		cell := Cell{X: rng.IntN(v.floor.Width), Y: rng.IntN(v.floor.Height)}
		if v.floor.Walkable(cell) {
			return cell
		}
	}
	return c.Station
}
