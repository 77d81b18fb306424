package plan

import (
	"testing"

	"greenroom.ai/internal/sim/catalog"
)

func newTestExecutor(seed uint64, avail AvailabilityFunc) *Executor {
	return NewExecutor(catalog.Defaults(), testWeights(), avail, NewRand(seed), 2, 5)
}

func TestExecutor_CurrentStepGeneratesOnFirstUse(t *testing.T) {
	e := newTestExecutor(1, nil)
	st := e.CurrentStep()
	if st == nil {
		t.Fatalf("nil current step")
	}
	p := e.CurrentPlan()
	if p == nil || p.Index != 0 || p.Origin != OriginGenerated {
		t.Fatalf("plan=%+v", p)
	}
}

func TestExecutor_AdvancePastEndRegeneratesAtZero(t *testing.T) {
	e := newTestExecutor(2, nil)
	e.CurrentStep()
	n := len(e.CurrentPlan().Steps)
	for i := 0; i < n; i++ {
		e.Advance()
	}
	p := e.CurrentPlan()
	if p == nil {
		t.Fatalf("nil plan after exhaustion")
	}
	if p.Index != 0 {
		t.Fatalf("index=%d want 0", p.Index)
	}
	if e.CurrentStep() == nil {
		t.Fatalf("nil step after regeneration")
	}
}

func TestExecutor_AdvanceClearsArrival(t *testing.T) {
	e := newTestExecutor(3, nil)
	e.CurrentStep()
	e.MarkArrival(10)
	e.Advance()
	if e.CurrentPlan().ArrivalSet {
		t.Fatalf("arrival survived advance")
	}
	if e.DurationElapsed(1e12) {
		t.Fatalf("elapsed with arrival unset")
	}
}

func TestExecutor_DurationElapsedRequiresArrival(t *testing.T) {
	e := newTestExecutor(4, nil)
	if e.CurrentStep() == nil {
		t.Fatalf("nil step")
	}
	for _, now := range []float64{0, 1, 1e6, 1e15} {
		if e.DurationElapsed(now) {
			t.Fatalf("elapsed at now=%v with arrival unset", now)
		}
	}
	st := e.CurrentStep()
	e.MarkArrival(100)
	if e.DurationElapsed(100 + st.Seconds - 0.001) {
		t.Fatalf("elapsed before duration served")
	}
	if !e.DurationElapsed(100 + st.Seconds) {
		t.Fatalf("not elapsed at exact boundary")
	}
}

func TestExecutor_MarkArrivalOverwrites(t *testing.T) {
	e := newTestExecutor(5, nil)
	st := e.CurrentStep()
	e.MarkArrival(10)
	e.MarkArrival(50)
	if e.DurationElapsed(10 + st.Seconds) {
		t.Fatalf("elapsed against stale arrival")
	}
	if !e.DurationElapsed(50 + st.Seconds) {
		t.Fatalf("not elapsed against fresh arrival")
	}
}

func TestExecutor_ResumeClearsArrival(t *testing.T) {
	e := newTestExecutor(6, nil)
	st := e.CurrentStep()
	e.MarkArrival(0)
	now := st.Seconds + 5
	if !e.DurationElapsed(now) {
		t.Fatalf("wait not satisfied before pause")
	}
	e.Pause()
	if e.CurrentStep() != nil {
		t.Fatalf("current step visible while paused")
	}
	e.Resume()
	if e.DurationElapsed(now) {
		t.Fatalf("wait banked across pause/resume")
	}
	if e.CurrentStep() == nil {
		t.Fatalf("nil step after resume")
	}
}

func TestExecutor_InterruptRestoreRoundTrip(t *testing.T) {
	e := newTestExecutor(7, nil)
	e.CurrentStep()
	e.Advance()
	before := e.CurrentPlan()
	wantKinds := before.Kinds()
	wantIndex := before.Index

	e.InterruptForStage()
	st := e.CurrentStep()
	if st == nil || st.Kind != catalog.KindWatchStage || !st.Indefinite {
		t.Fatalf("interrupt step=%+v", st)
	}
	if !e.Interrupted() {
		t.Fatalf("not marked interrupted")
	}

	// Nested interrupt must not clobber the original save.
	e.InterruptForStage()
	if e.SavedPlan() != before {
		t.Fatalf("nested interrupt overwrote saved plan")
	}

	e.MarkArrival(10)
	if e.DurationElapsed(1e12) {
		t.Fatalf("indefinite watch elapsed")
	}

	e.RestoreFromStage()
	after := e.CurrentPlan()
	if after != before {
		t.Fatalf("restore returned a different plan")
	}
	if after.Index != wantIndex {
		t.Fatalf("index=%d want %d", after.Index, wantIndex)
	}
	got := after.Kinds()
	for i := range wantKinds {
		if got[i] != wantKinds[i] {
			t.Fatalf("step %d: %s want %s", i, got[i], wantKinds[i])
		}
	}
	if e.Interrupted() {
		t.Fatalf("saved slot not cleared by restore")
	}
}

func TestExecutor_RestoreWithoutSaveGenerates(t *testing.T) {
	e := newTestExecutor(8, nil)
	e.RestoreFromStage()
	p := e.CurrentPlan()
	if p == nil || p.Origin != OriginGenerated || p.Index != 0 {
		t.Fatalf("plan=%+v", p)
	}
}

func TestExecutor_OverrideIsImmune(t *testing.T) {
	e := newTestExecutor(9, nil)
	e.ApplyOverride(catalog.KindSitOnCouch)

	if !e.Overridden() {
		t.Fatalf("not overridden")
	}
	st := e.CurrentStep()
	if st == nil || st.Kind != catalog.KindSitOnCouch {
		t.Fatalf("step=%+v", st)
	}
	min, max := catalog.Defaults().DurationRange(catalog.KindSitOnCouch)
	if st.Seconds < min || st.Seconds > max {
		t.Fatalf("override duration %v outside [%v,%v]", st.Seconds, min, max)
	}

	e.Pause()
	if e.Paused() || e.CurrentStep() == nil {
		t.Fatalf("override accepted a pause")
	}
	e.InterruptForStage()
	if e.Interrupted() || e.CurrentStep().Kind != catalog.KindSitOnCouch {
		t.Fatalf("override accepted a stage interrupt")
	}

	// Completion hands control back to normal generation.
	e.MarkArrival(0)
	if !e.DurationElapsed(st.Seconds) {
		t.Fatalf("override never elapsed")
	}
	e.Advance()
	p := e.CurrentPlan()
	if p.Origin != OriginGenerated || p.Index != 0 {
		t.Fatalf("post-override plan=%+v", p)
	}
}

func TestExecutor_OverrideConsumesSavedSlot(t *testing.T) {
	e := newTestExecutor(10, nil)
	e.CurrentStep()
	preInterrupt := e.CurrentPlan()

	e.InterruptForStage()
	if !e.Interrupted() {
		t.Fatalf("interrupt did not save")
	}
	e.ApplyOverride(catalog.KindWander)
	if e.Interrupted() {
		t.Fatalf("override kept the saved slot")
	}

	// A stray stage-end edge after the override must not resurrect the
	// pre-interrupt plan.
	e.RestoreFromStage()
	if e.CurrentPlan() == preInterrupt {
		t.Fatalf("restore resurrected the pre-interrupt plan")
	}
	if e.CurrentPlan().Origin != OriginGenerated {
		t.Fatalf("origin=%s", e.CurrentPlan().Origin)
	}
}

func TestExecutor_SeatAreaFollowsCurrentStep(t *testing.T) {
	e := newTestExecutor(11, nil)
	e.ApplyOverride(catalog.KindPlayPoker)
	area, ok := e.SeatArea()
	if !ok || area != catalog.AreaPoker {
		t.Fatalf("area=%s ok=%v", area, ok)
	}
	e.ApplyOverride(catalog.KindWander)
	if _, ok := e.SeatArea(); ok {
		t.Fatalf("wander reported a seat area")
	}
}

func TestExecutor_RegenerationReadsLiveAvailability(t *testing.T) {
	full := true
	avail := func() Availability {
		if full {
			return Availability{SeatOccupancy: map[catalog.AreaID]int{catalog.AreaCouch: 2}}
		}
		return Availability{}
	}
	e := NewExecutor(catalog.Defaults(), catalog.Weights{
		catalog.KindSitOnCouch: 1000,
		catalog.KindWander:     1,
	}, avail, NewRand(12), 2, 3)

	for round := 0; round < 10; round++ {
		e.CurrentStep()
		for _, st := range e.CurrentPlan().Steps {
			if st.Kind == catalog.KindSitOnCouch {
				t.Fatalf("couch planned while full")
			}
		}
		for range e.CurrentPlan().Steps {
			e.Advance()
		}
	}

	full = false
	sawCouch := false
	for round := 0; round < 20 && !sawCouch; round++ {
		e.CurrentStep()
		for _, st := range e.CurrentPlan().Steps {
			if st.Kind == catalog.KindSitOnCouch {
				sawCouch = true
			}
		}
		for range e.CurrentPlan().Steps {
			e.Advance()
		}
	}
	if !sawCouch {
		t.Fatalf("couch never planned after area freed")
	}
}
