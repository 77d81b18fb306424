package venuetest

import (
	"os"
	"path/filepath"
	"testing"

	"greenroom.ai/internal/sim/catalog"
	"greenroom.ai/internal/sim/venue"
)

func TestMovement_WalkLoopCircles(t *testing.T) {
	h := NewHarness(t, testConfig(), catalog.Defaults(), nil)
	c1 := h.Join("Ada", "ENGINEER")

	h.Override(c1, catalog.KindWalkLoop)
	h.SetCharacterPos(c1, venue.Cell{X: 10, Y: 8})

	// Arrival at the first waypoint starts the dwell; the loop walker then
	// retargets the next waypoint without leaving the cell this tick.
	obs := h.StepNoop()
	if findEventFor(obs, "STEP_ARRIVED", c1) == nil {
		t.Fatalf("no arrival at loop start: %v", obs.Events)
	}
	c := charByID(obs, c1)
	if c.Pos != [2]int{10, 8} || c.Step == nil || !c.Step.Arrived {
		t.Fatalf("loop start state: %+v", c)
	}
	if c.Step.Target[0] != 32 || c.Step.Target[1] != 8 {
		t.Fatalf("next waypoint: %+v", c.Step.Target)
	}

	// Four cells per tick along the straight edge.
	obs = h.StepNoop()
	if c := charByID(obs, c1); c.Pos != [2]int{14, 8} {
		t.Fatalf("walk pace: %+v", c.Pos)
	}

	// Reaching the waypoint rolls over to the next corner while the step
	// stays arrived the whole way around.
	obs = h.StepN(5)
	if c := charByID(obs, c1); c.Pos != [2]int{32, 8} {
		t.Fatalf("waypoint reach: %+v", c.Pos)
	}
	obs = h.StepNoop()
	c = charByID(obs, c1)
	if c.Step == nil || c.Step.Target[0] != 32 || c.Step.Target[1] != 19 {
		t.Fatalf("corner rollover: %+v", c.Step)
	}
	if !c.Step.Arrived {
		t.Fatalf("loop dwell lost arrival: %+v", c.Step)
	}
}

// A floor plan with the first station boxed in by walls: anything resolved
// outside the pocket can never be reached.
const pocketPlan = `{
  "width": 40, "height": 20,
  "walls": [[0,0,39,0],[0,19,39,19],[0,0,0,19],[39,0,39,19],
            [2,2,4,2],[2,4,4,4],[2,2,2,4],[4,2,4,4]],
  "stations": [[3,3],[8,3]],
  "areas": {
    "KITCHEN": [[10,3],[11,3],[12,3],[13,3],[14,3]],
    "COUCH": [[10,5],[11,5]],
    "BREAK_ROOM": [[10,7],[11,7],[12,7],[13,7]],
    "POKER": [[10,9],[11,9],[12,9],[13,9]],
    "PATIO": [[10,11],[11,11],[12,11],[13,11],[14,11],[15,11]]
  },
  "stage": [[20,15],[21,15],[22,15]],
  "audience": [[20,12],[22,12]],
  "showcase": [30,5],
  "loop": [[8,8],[30,8]],
  "courts": {"PLAY_BOCCE": [[33,15]], "PLAY_CORNHOLE": [[35,15]]}
}`

func TestMovement_StalledStepSkipsUnreachable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "floorplan.json")
	if err := os.WriteFile(path, []byte(pocketPlan), 0o644); err != nil {
		t.Fatalf("write plan: %v", err)
	}
	fp, err := venue.LoadFloorPlan(path)
	if err != nil {
		t.Fatalf("load plan: %v", err)
	}

	cfg := testConfig()
	cfg.StallTicks = 3
	h := NewHarness(t, cfg, catalog.Defaults(), fp)

	c1 := h.Join("Ada", "ENGINEER")
	obs := h.Override(c1, catalog.KindWalkLoop)
	if e := findEventFor(obs, "STEP_STARTED", c1); e == nil {
		t.Fatalf("missing STEP_STARTED: %v", obs.Events)
	}

	obs = stepUntilEvent(t, h, "STEP_SKIPPED", c1, 10)
	e := findEventFor(obs, "STEP_SKIPPED", c1)
	if reason, _ := e["reason"].(string); reason != "unreachable" {
		t.Fatalf("skip reason: got %q want unreachable", reason)
	}
	if kind, _ := e["kind"].(string); kind != "WALK_LOOP" {
		t.Fatalf("skip kind: got %q want WALK_LOOP", kind)
	}
	if c := charByID(obs, c1); c.Pos != [2]int{3, 3} {
		t.Fatalf("stalled character moved: %+v", c.Pos)
	}
}
