package venuetest

import (
	"testing"

	"greenroom.ai/internal/protocol"
	"greenroom.ai/internal/sim/venue"
)

// testConfig keeps dwell math trivial: at 1 Hz a step's seconds equal ticks,
// and ObsEveryTicks=1 broadcasts after every StepOnce.
func testConfig() venue.Config {
	return venue.Config{
		ID:               "venue-test",
		TickRateHz:       1,
		Seed:             42,
		PlanStepsMin:     2,
		PlanStepsMax:     5,
		MoveCellsPerTick: 4,
		StallTicks:       12,
		ObsEveryTicks:    1,
	}
}

func findEvent(obs protocol.ObsMsg, typ string) protocol.Event {
	for _, e := range obs.Events {
		if got, _ := e["type"].(string); got == typ {
			return e
		}
	}
	return nil
}

func findEventFor(obs protocol.ObsMsg, typ, charID string) protocol.Event {
	for _, e := range obs.Events {
		if got, _ := e["type"].(string); got != typ {
			continue
		}
		if id, _ := e["character_id"].(string); id == charID {
			return e
		}
	}
	return nil
}

// commandResultCode returns "" when the command with cmd_id succeeded, its
// error code when it failed, and E_INTERNAL when no result was seen at all.
func commandResultCode(obs protocol.ObsMsg, cmdID string) string {
	for _, e := range obs.Events {
		if typ, _ := e["type"].(string); typ != "COMMAND_RESULT" {
			continue
		}
		if got, _ := e["cmd_id"].(string); got != cmdID {
			continue
		}
		if ok, _ := e["ok"].(bool); ok {
			return ""
		}
		if code, _ := e["code"].(string); code != "" {
			return code
		}
		return "E_INTERNAL"
	}
	return "E_INTERNAL"
}

func charByID(obs protocol.ObsMsg, id string) *protocol.CharacterObs {
	for i := range obs.Characters {
		if obs.Characters[i].ID == id {
			return &obs.Characters[i]
		}
	}
	return nil
}

func areaByID(obs protocol.ObsMsg, id string) *protocol.AreaObs {
	for i := range obs.Areas {
		if obs.Areas[i].ID == id {
			return &obs.Areas[i]
		}
	}
	return nil
}

// stepUntilEvent advances until an event of the given type for the given
// character shows up (charID "" matches any) and returns that tick's OBS.
func stepUntilEvent(t *testing.T, h *Harness, typ, charID string, maxSteps int) protocol.ObsMsg {
	t.Helper()
	check := func(obs protocol.ObsMsg) bool {
		if charID == "" {
			return findEvent(obs, typ) != nil
		}
		return findEventFor(obs, typ, charID) != nil
	}
	if check(h.LastObs()) {
		return h.LastObs()
	}
	for i := 0; i < maxSteps; i++ {
		obs := h.StepNoop()
		if check(obs) {
			return obs
		}
	}
	t.Fatalf("no %s event for %q within %d steps", typ, charID, maxSteps)
	return protocol.ObsMsg{}
}

// stepUntilArrived advances until the character's current step reports
// arrival.
func stepUntilArrived(t *testing.T, h *Harness, charID string, maxSteps int) protocol.ObsMsg {
	t.Helper()
	for i := 0; i < maxSteps; i++ {
		obs := h.StepNoop()
		c := charByID(obs, charID)
		if c != nil && c.Step != nil && c.Step.Arrived {
			return obs
		}
	}
	t.Fatalf("%s never arrived within %d steps", charID, maxSteps)
	return protocol.ObsMsg{}
}
