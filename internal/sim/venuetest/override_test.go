package venuetest

import (
	"testing"

	"greenroom.ai/internal/protocol"
	"greenroom.ai/internal/sim/catalog"
	"greenroom.ai/internal/sim/venue"
)

func TestOverride_ReplacesPlanThenRegenerates(t *testing.T) {
	h := NewHarness(t, testConfig(), catalog.Defaults(), nil)
	c1 := h.Join("Ada", "ENGINEER")

	obs := h.Command(protocol.CommandMsg{
		CmdID:       "o1",
		Op:          protocol.OpOverride,
		CharacterID: c1,
		Kind:        "PRESENT",
	})
	if code := commandResultCode(obs, "o1"); code != "" {
		t.Fatalf("override rejected: %s", code)
	}
	applied := findEventFor(obs, "OVERRIDE_APPLIED", c1)
	if applied == nil {
		t.Fatalf("missing OVERRIDE_APPLIED: %v", obs.Events)
	}
	if kind, _ := applied["kind"].(string); kind != "PRESENT" {
		t.Fatalf("applied kind: got %q want PRESENT", kind)
	}

	c := charByID(obs, c1)
	if c.Origin != "OVERRIDDEN" || c.PlanIndex != 0 || len(c.PlanKinds) != 1 || c.PlanKinds[0] != "PRESENT" {
		t.Fatalf("override plan: %+v", c)
	}
	if c.Step == nil || c.Step.Kind != "PRESENT" || c.Step.Anim != "present" {
		t.Fatalf("override step: %+v", c.Step)
	}
	if c.Step.Target[0] != 2 || c.Step.Target[1] != 20 {
		t.Fatalf("present target should be the showcase: %+v", c.Step)
	}
	if c.Step.Seconds < 15 || c.Step.Seconds > 40 {
		t.Fatalf("present dwell out of range: %v", c.Step.Seconds)
	}

	h.SetCharacterPos(c1, venue.Cell{X: 2, Y: 20})
	obs = h.StepNoop()
	if findEventFor(obs, "STEP_ARRIVED", c1) == nil {
		t.Fatalf("no arrival at showcase: %v", obs.Events)
	}

	// When the forced step's dwell runs out the character goes back to
	// generated plans.
	obs = stepUntilEvent(t, h, "STEP_COMPLETED", c1, 60)
	c = charByID(obs, c1)
	if c.Origin != "GENERATED" {
		t.Fatalf("origin after override completed: got %q", c.Origin)
	}
	if c.PlanIndex != 0 || len(c.PlanKinds) < 2 {
		t.Fatalf("regenerated plan: %+v", c)
	}
}

func TestOverride_RejectsBadCommands(t *testing.T) {
	h := NewHarness(t, testConfig(), catalog.Defaults(), nil)
	c1 := h.Join("Ada", "ENGINEER")

	cases := []struct {
		name string
		cmd  protocol.CommandMsg
		code string
	}{
		{
			name: "unknown character",
			cmd:  protocol.CommandMsg{CmdID: "b1", Op: protocol.OpOverride, CharacterID: "C99", Kind: "PRESENT"},
			code: protocol.ErrUnknownCharacter,
		},
		{
			name: "unknown kind",
			cmd:  protocol.CommandMsg{CmdID: "b2", Op: protocol.OpOverride, CharacterID: c1, Kind: "DANCE"},
			code: protocol.ErrUnknownKind,
		},
		{
			name: "unknown op",
			cmd:  protocol.CommandMsg{CmdID: "b3", Op: "TELEPORT", CharacterID: c1},
			code: protocol.ErrBadRequest,
		},
		{
			name: "unknown archetype",
			cmd:  protocol.CommandMsg{CmdID: "b4", Op: protocol.OpJoin, Name: "Zed", Archetype: "ALIEN"},
			code: protocol.ErrUnknownArchetype,
		},
		{
			name: "leave unknown character",
			cmd:  protocol.CommandMsg{CmdID: "b5", Op: protocol.OpLeave, CharacterID: "C42"},
			code: protocol.ErrUnknownCharacter,
		},
	}
	for _, tc := range cases {
		obs := h.Command(tc.cmd)
		if code := commandResultCode(obs, tc.cmd.CmdID); code != tc.code {
			t.Fatalf("%s: got code %q want %q", tc.name, code, tc.code)
		}
		if len(obs.Characters) != 1 {
			t.Fatalf("%s: character roster changed: %d", tc.name, len(obs.Characters))
		}
	}
}
