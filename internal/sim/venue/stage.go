package venue

import (
	"greenroom.ai/internal/protocol"
	"greenroom.ai/internal/sim/catalog"
)

// systemStage validates the live performance each tick. The usual end (the
// performer's dwell elapsing) is handled by the routine system; this net
// catches anything else that leaves the stage claim pointing at a character
// who is no longer performing.
func (v *Venue) systemStage(nowTick uint64) {
	if v.stage == nil {
		return
	}
	p := v.chars[v.stage.PerformerID]
	if p == nil || p.currentKind() != catalog.KindPerformOnStage {
		v.endPerformance("performer_stopped", nowTick)
	}
}

// beginPerformance claims the stage and pulls the rest of the venue into the
// audience: conversations end first so both talkers can walk over, then every
// interruptible character swaps to an indefinite watch step. Overridden
// characters and the performer are left alone.
func (v *Venue) beginPerformance(performer *Character, nowTick uint64) {
	v.stage = &stagePerformance{PerformerID: performer.ID, SinceTick: nowTick}
	v.addEvent(protocol.Event{
		"t":            nowTick,
		"type":         "PERFORMANCE_STARTED",
		"character_id": performer.ID,
	})

	for _, key := range v.sortedConvKeys() {
		v.endConversation(key, "performance_started", nowTick)
	}

	for _, id := range v.sortedCharIDs() {
		c := v.chars[id]
		if c == nil || c.ID == performer.ID {
			continue
		}
		was := c.Ex.Interrupted()
		c.Ex.InterruptForStage()
		if c.Ex.Interrupted() && !was {
			v.releaseSeat(c)
			c.resetGoal()
		}
	}
}

// endPerformance clears the stage and sends interrupted watchers back to
// their saved plans. A restored step starts over: the character walks to its
// target again and waits the full duration again.
func (v *Venue) endPerformance(reason string, nowTick uint64) {
	if v.stage == nil {
		return
	}
	performerID := v.stage.PerformerID
	v.stage = nil
	v.addEvent(protocol.Event{
		"t":            nowTick,
		"type":         "PERFORMANCE_ENDED",
		"character_id": performerID,
		"reason":       reason,
	})

	for _, id := range v.sortedCharIDs() {
		c := v.chars[id]
		if c == nil || !c.Ex.Interrupted() {
			continue
		}
		c.Ex.RestoreFromStage()
		c.resetGoal()
	}
}
