package venuetest

import (
	"reflect"
	"testing"

	"greenroom.ai/internal/protocol"
	"greenroom.ai/internal/sim/catalog"
	"greenroom.ai/internal/sim/venue"
)

// convConfig makes conversations certain: any eligible pair within the
// radius starts talking on the next roll.
func convConfig() venue.Config {
	cfg := testConfig()
	cfg.Conversation = venue.ConversationConfig{
		Radius:         2,
		ChancePermille: 1000,
		MinTicks:       5,
		MaxTicks:       5,
		CooldownTicks:  50,
	}
	return cfg
}

// joinApart joins a character and immediately parks it at (15,15), far from
// the spawn stations, so the next join cannot pair with it by accident.
func joinApart(h *Harness, name, archetype string) string {
	id := h.Join(name, archetype)
	h.SetCharacterPos(id, venue.Cell{X: 15, Y: 15})
	return id
}

// forceConversation teleports the pair adjacent and steps once.
func forceConversation(t *testing.T, h *Harness, a, b string) protocol.ObsMsg {
	t.Helper()
	h.SetCharacterPos(a, venue.Cell{X: 15, Y: 15})
	h.SetCharacterPos(b, venue.Cell{X: 16, Y: 15})
	obs := h.StepNoop()
	if findEvent(obs, "CONVERSATION_STARTED") == nil {
		t.Fatalf("conversation did not start: %v", obs.Events)
	}
	return obs
}

func TestConversation_PausesThenResumesPlanIntact(t *testing.T) {
	h := NewHarness(t, convConfig(), catalog.Defaults(), nil)

	c1 := joinApart(h, "Ada", "ENGINEER")
	c2 := h.Join("Bo", "HOST")

	pre := h.LastObs()
	wantIdx1 := charByID(pre, c1).PlanIndex
	wantKinds1 := append([]string(nil), charByID(pre, c1).PlanKinds...)
	wantIdx2 := charByID(pre, c2).PlanIndex
	wantKinds2 := append([]string(nil), charByID(pre, c2).PlanKinds...)

	obs := forceConversation(t, h, c1, c2)
	started := findEvent(obs, "CONVERSATION_STARTED")
	if a, _ := started["a"].(string); a != c1 {
		t.Fatalf("conversation a: got %q want %q", a, c1)
	}
	if b, _ := started["b"].(string); b != c2 {
		t.Fatalf("conversation b: got %q want %q", b, c2)
	}
	ends, _ := started["ends_tick"].(float64)
	if uint64(ends) != obs.Tick+5 {
		t.Fatalf("ends_tick: got %v want %d", ends, obs.Tick+5)
	}
	if len(obs.Conversations) != 1 || obs.Conversations[0].EndsTick != obs.Tick+5 {
		t.Fatalf("conversations obs: %+v", obs.Conversations)
	}
	for _, id := range []string{c1, c2} {
		if c := charByID(obs, id); !c.Paused {
			t.Fatalf("%s not paused: %+v", id, c)
		}
	}

	// Talkers stand still while paused.
	mid := h.StepN(2)
	if c := charByID(mid, c1); !c.Paused || c.Pos != [2]int{15, 15} {
		t.Fatalf("%s moved while paused: %+v", c1, c)
	}
	if c := charByID(mid, c2); c.Pos != [2]int{16, 15} {
		t.Fatalf("%s moved while paused: %+v", c2, c)
	}

	end := stepUntilEvent(t, h, "CONVERSATION_ENDED", "", 10)
	e := findEvent(end, "CONVERSATION_ENDED")
	if reason, _ := e["reason"].(string); reason != "finished" {
		t.Fatalf("end reason: got %q want finished", reason)
	}
	if len(end.Conversations) != 0 {
		t.Fatalf("conversation lingers in obs: %+v", end.Conversations)
	}

	// Both pick their old plan back up, and the interrupted wait restarts
	// from the walk.
	for _, tc := range []struct {
		id    string
		idx   int
		kinds []string
	}{{c1, wantIdx1, wantKinds1}, {c2, wantIdx2, wantKinds2}} {
		c := charByID(end, tc.id)
		if c.Paused {
			t.Fatalf("%s still paused after end", tc.id)
		}
		if c.PlanIndex != tc.idx || !reflect.DeepEqual(c.PlanKinds, tc.kinds) {
			t.Fatalf("%s plan changed across conversation: got %d %v want %d %v",
				tc.id, c.PlanIndex, c.PlanKinds, tc.idx, tc.kinds)
		}
		if c.Step == nil || c.Step.Arrived {
			t.Fatalf("%s wait not restarted: %+v", tc.id, c.Step)
		}
		if findEventFor(end, "STEP_STARTED", tc.id) == nil {
			t.Fatalf("missing STEP_STARTED for %s after resume", tc.id)
		}
	}

	// The pair is on cooldown: adjacency alone no longer restarts them.
	h.SetCharacterPos(c1, venue.Cell{X: 15, Y: 15})
	h.SetCharacterPos(c2, venue.Cell{X: 16, Y: 15})
	again := h.StepNoop()
	if findEvent(again, "CONVERSATION_STARTED") != nil {
		t.Fatalf("cooldown ignored: %v", again.Events)
	}
	if len(again.Conversations) != 0 {
		t.Fatalf("unexpected conversation: %+v", again.Conversations)
	}
}

func TestConversation_OverriddenCharactersExcluded(t *testing.T) {
	h := NewHarness(t, convConfig(), catalog.Defaults(), nil)

	c1 := joinApart(h, "Ada", "ENGINEER")
	c2 := h.Join("Bo", "HOST")
	h.Override(c2, catalog.KindWalkLoop)

	for i := 0; i < 3; i++ {
		h.SetCharacterPos(c1, venue.Cell{X: 15, Y: 15})
		h.SetCharacterPos(c2, venue.Cell{X: 16, Y: 15})
		obs := h.StepNoop()
		if findEvent(obs, "CONVERSATION_STARTED") != nil {
			t.Fatalf("overridden character drawn into conversation: %v", obs.Events)
		}
	}
}

func TestConversation_PartnerLeaveEnds(t *testing.T) {
	h := NewHarness(t, convConfig(), catalog.Defaults(), nil)

	c1 := joinApart(h, "Ada", "ENGINEER")
	c2 := h.Join("Bo", "HOST")
	forceConversation(t, h, c1, c2)

	obs := h.Leave(c2)
	e := findEvent(obs, "CONVERSATION_ENDED")
	if e == nil {
		t.Fatalf("missing CONVERSATION_ENDED: %v", obs.Events)
	}
	if reason, _ := e["reason"].(string); reason != "partner_left" {
		t.Fatalf("end reason: got %q want partner_left", reason)
	}
	if charByID(obs, c2) != nil {
		t.Fatalf("%s still present after leave", c2)
	}
	c := charByID(obs, c1)
	if c.Paused {
		t.Fatalf("%s stuck paused after partner left", c1)
	}
	if findEventFor(obs, "STEP_STARTED", c1) == nil {
		t.Fatalf("%s did not resume a step: %v", c1, obs.Events)
	}
}

func TestConversation_PerformanceStartEnds(t *testing.T) {
	cfg := convConfig()
	cfg.Conversation.MinTicks = 30
	cfg.Conversation.MaxTicks = 30
	h := NewHarness(t, cfg, catalog.Defaults(), nil)

	c1 := joinApart(h, "Ada", "ENGINEER")
	c2 := h.Join("Bo", "HOST")
	forceConversation(t, h, c1, c2)

	c3 := h.Join("Nova", "PERFORMER")
	startPerformance(t, h, c3)

	obs := h.LastObs()
	e := findEvent(obs, "CONVERSATION_ENDED")
	if e == nil {
		t.Fatalf("missing CONVERSATION_ENDED: %v", obs.Events)
	}
	if reason, _ := e["reason"].(string); reason != "performance_started" {
		t.Fatalf("end reason: got %q want performance_started", reason)
	}
	for _, id := range []string{c1, c2} {
		c := charByID(obs, id)
		if c.Paused || !c.Watching {
			t.Fatalf("%s not pulled into audience: %+v", id, c)
		}
	}
}
