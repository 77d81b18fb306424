package venue

import (
	"sort"

	"greenroom.ai/internal/protocol"
	"greenroom.ai/internal/sim/catalog"
	"greenroom.ai/internal/sim/venue/logic/mathx"
)

// systemConversations ends due conversations, then rolls for new pairs.
// Pairing is a stateless hash over (tick, ordinals), so replays agree and
// nothing leaks into the plan RNG streams.
func (v *Venue) systemConversations(nowTick uint64) {
	for _, key := range v.sortedConvKeys() {
		if conv := v.convs[key]; conv != nil && nowTick >= conv.EndsTick {
			v.endConversation(key, "finished", nowTick)
		}
	}

	// Expired cooldowns are dropped so the map does not grow with churn.
	for key, until := range v.convCooldown {
		if nowTick >= until {
			delete(v.convCooldown, key)
		}
	}

	ids := v.sortedCharIDs()
	for i := 0; i < len(ids); i++ {
		a := v.chars[ids[i]]
		if !v.conversable(a) {
			continue
		}
		for j := i + 1; j < len(ids); j++ {
			b := v.chars[ids[j]]
			if !v.conversable(b) {
				continue
			}
			if chebyshev(a.Pos, b.Pos) > v.cfg.Conversation.Radius {
				continue
			}
			key := pairKey(a.ID, b.ID)
			if _, cooling := v.convCooldown[key]; cooling {
				continue
			}
			roll := mathx.Hash3(v.cfg.Seed, int(nowTick), int(a.Ordinal), int(b.Ordinal)) % 1000
			if int(roll) >= v.cfg.Conversation.ChancePermille {
				continue
			}
			v.startConversation(a, b, nowTick)
			break
		}
	}
}

// conversable gates who may be drawn into small talk: not already talking,
// not paused, not overridden, not watching a performance, and never the
// performer or anyone headed for the stage.
func (v *Venue) conversable(c *Character) bool {
	if c == nil || c.ConvWith != "" {
		return false
	}
	if c.Ex.Paused() || c.Ex.Overridden() || c.Ex.Interrupted() {
		return false
	}
	if v.stage != nil && v.stage.PerformerID == c.ID {
		return false
	}
	return c.currentKind() != catalog.KindPerformOnStage
}

func (v *Venue) startConversation(a, b *Character, nowTick uint64) {
	span := v.cfg.Conversation.MaxTicks - v.cfg.Conversation.MinTicks + 1
	dur := v.cfg.Conversation.MinTicks
	if span > 1 {
		dur += int(mathx.Hash3(v.cfg.Seed, int(nowTick)+1, int(a.Ordinal), int(b.Ordinal)) % uint64(span))
	}

	a.Ex.Pause()
	b.Ex.Pause()
	a.ConvWith = b.ID
	b.ConvWith = a.ID

	key := pairKey(a.ID, b.ID)
	v.convs[key] = &conversation{
		A:           minString(a.ID, b.ID),
		B:           maxString(a.ID, b.ID),
		StartedTick: nowTick,
		EndsTick:    nowTick + uint64(dur),
	}
	v.addEvent(protocol.Event{
		"t":         nowTick,
		"type":      "CONVERSATION_STARTED",
		"a":         minString(a.ID, b.ID),
		"b":         maxString(a.ID, b.ID),
		"ends_tick": nowTick + uint64(dur),
	})
}

// endConversation resumes both talkers and puts the pair on cooldown. Resume
// clears any satisfied wait, and the goal reset forces the walk to happen
// again, so an interrupted dwell is always served in full afterwards.
func (v *Venue) endConversation(key, reason string, nowTick uint64) {
	conv := v.convs[key]
	if conv == nil {
		return
	}
	delete(v.convs, key)
	v.convCooldown[key] = nowTick + uint64(v.cfg.Conversation.CooldownTicks)

	for _, id := range []string{conv.A, conv.B} {
		c := v.chars[id]
		if c == nil {
			continue
		}
		c.ConvWith = ""
		c.Ex.Resume()
		c.resetGoal()
	}
	v.addEvent(protocol.Event{
		"t":      nowTick,
		"type":   "CONVERSATION_ENDED",
		"a":      conv.A,
		"b":      conv.B,
		"reason": reason,
	})
}

func (v *Venue) sortedConvKeys() []string {
	keys := make([]string, 0, len(v.convs))
	for key := range v.convs {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func pairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "|" + b
}

func chebyshev(a, b Cell) int {
	dx := mathx.AbsInt(a.X - b.X)
	dy := mathx.AbsInt(a.Y - b.Y)
	if dx > dy {
		return dx
	}
	return dy
}

func minString(a, b string) string {
	if a < b {
		return a
	}
	return b
}

func maxString(a, b string) string {
	if a < b {
		return b
	}
	return a
}
