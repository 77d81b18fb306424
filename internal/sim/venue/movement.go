package venue

import (
	"greenroom.ai/internal/sim/catalog"
	"greenroom.ai/internal/sim/venue/logic/mathx"
)

// systemMovement walks every character toward its goal target, up to
// MoveCellsPerTick cells. Paused characters stand still. Characters do not
// block each other; only walls do.
func (v *Venue) systemMovement(nowTick uint64) {
	for _, id := range v.sortedCharIDs() {
		c := v.chars[id]
		if c == nil || c.goal.step == nil || c.Ex.Paused() {
			continue
		}

		if c.Pos == c.goal.target {
			// Loop walkers keep circling waypoints while the dwell runs.
			if c.goal.step.Kind == catalog.KindWalkLoop && c.goal.arrived {
				c.goal.loopIdx = (c.goal.loopIdx + 1) % len(v.floor.Loop)
				c.goal.target = v.floor.Loop[c.goal.loopIdx]
			}
			continue
		}

		moved := false
		for i := 0; i < v.cfg.MoveCellsPerTick; i++ {
			next, ok := v.stepToward(c.Pos, c.goal.target)
			if !ok {
				break
			}
			c.Pos = next
			moved = true
			if c.Pos == c.goal.target {
				break
			}
		}
		if moved {
			c.Stall = 0
		} else {
			c.Stall++
		}
	}
}

// stepToward advances one cell along the larger-delta axis, sidestepping to
// the other axis when the preferred cell is a wall.
func (v *Venue) stepToward(from, to Cell) (Cell, bool) {
	dx := to.X - from.X
	dy := to.Y - from.Y
	if dx == 0 && dy == 0 {
		return from, false
	}

	stepX := from
	if dx > 0 {
		stepX.X++
	} else if dx < 0 {
		stepX.X--
	}
	stepY := from
	if dy > 0 {
		stepY.Y++
	} else if dy < 0 {
		stepY.Y--
	}

	first, second := stepX, stepY
	if mathx.AbsInt(dy) > mathx.AbsInt(dx) {
		first, second = stepY, stepX
	}
	if first != from && v.floor.Walkable(first) {
		return first, true
	}
	if second != from && v.floor.Walkable(second) {
		return second, true
	}
	return from, false
}
