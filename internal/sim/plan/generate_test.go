package plan

import (
	"testing"

	"greenroom.ai/internal/sim/catalog"
)

// testWeights mirrors a mid-sized profile: seven kinds, no outdoor play.
func testWeights() catalog.Weights {
	return catalog.Weights{
		catalog.KindVisitKitchen:   15,
		catalog.KindSitOnCouch:     12,
		catalog.KindVisitBreakRoom: 12,
		catalog.KindPlayPoker:      12,
		catalog.KindPerformOnStage: 8,
		catalog.KindWatchStage:     10,
		catalog.KindWander:         15,
	}
}

func TestGenerate_StepCountWithinRange(t *testing.T) {
	cat := catalog.Defaults()
	ranges := [][2]int{{2, 5}, {1, 1}, {3, 3}, {1, 8}}
	rng := NewRand(42)

	for _, rr := range ranges {
		for trial := 0; trial < 200; trial++ {
			p := Generate(cat, testWeights(), Availability{}, rr[0], rr[1], rng)
			if len(p.Steps) < rr[0] || len(p.Steps) > rr[1] {
				t.Fatalf("range %v: got %d steps", rr, len(p.Steps))
			}
		}
	}
}

func TestGenerate_AllZeroWeightsStillProducesPlan(t *testing.T) {
	cat := catalog.Defaults()
	rng := NewRand(7)

	zero := catalog.Weights{catalog.KindSitOnCouch: 0, catalog.KindPlayPoker: 0}
	for trial := 0; trial < 100; trial++ {
		p := Generate(cat, zero, Availability{}, 2, 5, rng)
		if len(p.Steps) < 2 || len(p.Steps) > 5 {
			t.Fatalf("got %d steps", len(p.Steps))
		}
		for _, st := range p.Steps {
			if st.Kind != catalog.KindWander {
				t.Fatalf("zero weights produced %s", st.Kind)
			}
		}
	}
}

func TestGenerate_NoAdjacentDuplicates(t *testing.T) {
	cat := catalog.Defaults()
	rng := NewRand(1001)

	// With several positive-weight kinds the eligible set is never empty,
	// so the WANDER fallback never fires and adjacency must hold strictly.
	for trial := 0; trial < 1000; trial++ {
		p := Generate(cat, testWeights(), Availability{}, 2, 5, rng)
		for i := 1; i < len(p.Steps); i++ {
			if p.Steps[i].Kind == p.Steps[i-1].Kind {
				t.Fatalf("trial %d: adjacent duplicate %s at %d", trial, p.Steps[i].Kind, i)
			}
		}
	}
}

func TestGenerate_WanderOnlyProfileDuplicates(t *testing.T) {
	cat := catalog.Defaults()
	rng := NewRand(3)

	p := Generate(cat, catalog.Weights{catalog.KindWander: 5}, Availability{}, 3, 3, rng)
	if len(p.Steps) != 3 {
		t.Fatalf("got %d steps", len(p.Steps))
	}
	for _, st := range p.Steps {
		if st.Kind != catalog.KindWander {
			t.Fatalf("got %s", st.Kind)
		}
	}
}

func TestGenerate_DurationsWithinKindRange(t *testing.T) {
	cat := catalog.Defaults()
	rng := NewRand(99)

	for trial := 0; trial < 300; trial++ {
		p := Generate(cat, testWeights(), Availability{}, 2, 5, rng)
		for _, st := range p.Steps {
			min, max := cat.DurationRange(st.Kind)
			if st.Seconds < min || st.Seconds > max {
				t.Fatalf("%s duration %v outside [%v,%v]", st.Kind, st.Seconds, min, max)
			}
		}
	}
}

func TestGenerate_StageOccupiedExcludesPerform(t *testing.T) {
	cat := catalog.Defaults()
	rng := NewRand(555)
	avail := Availability{StageOccupied: true}

	heavy := catalog.Weights{catalog.KindPerformOnStage: 100, catalog.KindWander: 1}
	for trial := 0; trial < 200; trial++ {
		for _, w := range []catalog.Weights{testWeights(), heavy} {
			p := Generate(cat, w, avail, 2, 5, rng)
			for _, st := range p.Steps {
				if st.Kind == catalog.KindPerformOnStage {
					t.Fatalf("trial %d: PERFORM_ON_STAGE while stage occupied", trial)
				}
			}
		}
	}
}

func TestGenerate_FullAreaExcludesSeatedKind(t *testing.T) {
	cat := catalog.Defaults()
	rng := NewRand(556)

	for _, occ := range []int{2, 3} {
		avail := Availability{SeatOccupancy: map[catalog.AreaID]int{catalog.AreaCouch: occ}}
		for trial := 0; trial < 200; trial++ {
			p := Generate(cat, testWeights(), avail, 2, 5, rng)
			for _, st := range p.Steps {
				if st.Kind == catalog.KindSitOnCouch {
					t.Fatalf("occ=%d trial %d: SIT_ON_COUCH with couch full", occ, trial)
				}
			}
		}
	}
}

func TestGenerate_CopiesSeatAreaAndCue(t *testing.T) {
	cat := catalog.Defaults()
	rng := NewRand(8)

	p := Generate(cat, catalog.Weights{catalog.KindSitOnCouch: 10, catalog.KindWander: 1}, Availability{}, 4, 4, rng)
	sawCouch := false
	for _, st := range p.Steps {
		if st.Kind != catalog.KindSitOnCouch {
			continue
		}
		sawCouch = true
		if st.SeatArea != catalog.AreaCouch {
			t.Fatalf("couch step seat area=%s", st.SeatArea)
		}
		if st.Cue.Anim != "sit_relax" || st.Cue.SeatHeight != 0.42 {
			t.Fatalf("couch cue=%+v", st.Cue)
		}
		if st.Target != nil {
			t.Fatalf("target must start unresolved")
		}
	}
	if !sawCouch {
		t.Fatalf("expected at least one couch step")
	}
}

func TestPickWeighted_ZeroWeightsNoSelection(t *testing.T) {
	opts := []weightedOption{{kind: catalog.KindWander, weight: 0}, {kind: catalog.KindSitOnCouch, weight: 0}}
	if k, ok := pickWeighted(opts, 12345); ok {
		t.Fatalf("expected no selection, got %s", k)
	}
	if _, ok := pickWeighted(nil, 1); ok {
		t.Fatalf("expected no selection from empty options")
	}
}

func TestPickWeighted_SingleOptionAlwaysWins(t *testing.T) {
	rng := NewRand(4)
	opts := []weightedOption{{kind: catalog.KindPresent, weight: 10}}
	for i := 0; i < 1000; i++ {
		k, ok := pickWeighted(opts, rng.Uint64())
		if !ok || k != catalog.KindPresent {
			t.Fatalf("got %s ok=%v", k, ok)
		}
	}
}

func TestPickWeighted_HeavyOptionDominates(t *testing.T) {
	rng := NewRand(5)
	opts := []weightedOption{
		{kind: catalog.KindWalkLoop, weight: 99},
		{kind: catalog.KindPresent, weight: 1},
	}
	high := 0
	for i := 0; i < 1000; i++ {
		k, ok := pickWeighted(opts, rng.Uint64())
		if !ok {
			t.Fatalf("no selection")
		}
		if k == catalog.KindWalkLoop {
			high++
		}
	}
	if high <= 900 {
		t.Fatalf("heavy option won %d/1000", high)
	}
}
