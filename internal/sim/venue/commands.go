package venue

import (
	"greenroom.ai/internal/protocol"
	"greenroom.ai/internal/sim/catalog"
)

// applyCommand executes one operator command at the tick boundary. Outcomes
// surface as COMMAND_RESULT events in the next broadcast; the transport has
// already acked receipt.
func (v *Venue) applyCommand(env CommandEnvelope, nowTick uint64) {
	cmd := env.Cmd
	switch cmd.Op {
	case protocol.OpOverride:
		v.applyOverride(cmd, nowTick)
	case protocol.OpJoin:
		v.applyJoin(cmd, nowTick)
	case protocol.OpLeave:
		c := v.chars[cmd.CharacterID]
		if c == nil {
			v.addEvent(commandResult(nowTick, cmd, false, protocol.ErrUnknownCharacter, "no such character"))
			return
		}
		v.removeCharacter(cmd.CharacterID, "command", nowTick)
		v.addEvent(commandResult(nowTick, cmd, true, "", ""))
	default:
		v.addEvent(commandResult(nowTick, cmd, false, protocol.ErrBadRequest, "unknown op"))
	}
}

// applyOverride forces a character onto a single step. The override wins over
// everything in flight: a conversation ends, a performance ends, a held seat
// is released, and the executor drops any saved plan.
func (v *Venue) applyOverride(cmd protocol.CommandMsg, nowTick uint64) {
	c := v.chars[cmd.CharacterID]
	if c == nil {
		v.addEvent(commandResult(nowTick, cmd, false, protocol.ErrUnknownCharacter, "no such character"))
		return
	}
	kind := catalog.Kind(cmd.Kind)
	if !kind.Valid() {
		v.addEvent(commandResult(nowTick, cmd, false, protocol.ErrUnknownKind, "unknown step kind"))
		return
	}

	if c.ConvWith != "" {
		v.endConversation(pairKey(c.ID, c.ConvWith), "override", nowTick)
	}
	if v.stage != nil && v.stage.PerformerID == c.ID {
		v.endPerformance("performer_overridden", nowTick)
	}
	v.releaseSeat(c)
	c.resetGoal()
	c.Ex.ApplyOverride(kind)

	v.addEvent(protocol.Event{
		"t":            nowTick,
		"type":         "OVERRIDE_APPLIED",
		"character_id": c.ID,
		"kind":         string(kind),
	})
	v.addEvent(commandResult(nowTick, cmd, true, "", ""))
}

func (v *Venue) applyJoin(cmd protocol.CommandMsg, nowTick uint64) {
	if cmd.Archetype != "" {
		if _, ok := v.cat.Archetypes[cmd.Archetype]; !ok {
			v.addEvent(commandResult(nowTick, cmd, false, protocol.ErrUnknownArchetype, "unknown archetype"))
			return
		}
	}
	c := v.joinCharacter(cmd.Name, cmd.Archetype, nowTick)
	e := commandResult(nowTick, cmd, true, "", "")
	e["character_id"] = c.ID
	v.addEvent(e)
}

func commandResult(tick uint64, cmd protocol.CommandMsg, ok bool, code, message string) protocol.Event {
	e := protocol.Event{
		"t":    tick,
		"type": "COMMAND_RESULT",
		"op":   cmd.Op,
		"ok":   ok,
	}
	if cmd.CmdID != "" {
		e["cmd_id"] = cmd.CmdID
	}
	if code != "" {
		e["code"] = code
	}
	if message != "" {
		e["message"] = message
	}
	return e
}
