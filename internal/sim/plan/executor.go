package plan

import "greenroom.ai/internal/sim/catalog"

// AvailabilityFunc supplies a fresh resource snapshot at the moment a new
// plan is generated. The venue binds this to its live seat/stage registry.
type AvailabilityFunc func() Availability

// Executor drives one character's plan. It is owned by a single simulation
// goroutine: no locking, time arrives as an explicit now in seconds, and a
// wall clock is never read.
type Executor struct {
	cat      *catalog.Catalog
	weights  catalog.Weights
	avail    AvailabilityFunc
	rng      *Rand
	minSteps int
	maxSteps int

	plan  *Plan
	saved *Plan
}

func NewExecutor(cat *catalog.Catalog, weights catalog.Weights, avail AvailabilityFunc, rng *Rand, minSteps, maxSteps int) *Executor {
	if avail == nil {
		avail = func() Availability { return Availability{} }
	}
	if rng == nil {
		rng = NewRand(1)
	}
	if minSteps <= 0 {
		minSteps = DefaultMinSteps
	}
	if maxSteps < minSteps {
		maxSteps = minSteps
	}
	return &Executor{
		cat:      cat,
		weights:  weights,
		avail:    avail,
		rng:      rng,
		minSteps: minSteps,
		maxSteps: maxSteps,
	}
}

// CurrentStep returns the step in progress, generating a plan first when
// none exists or the cursor ran past the end. It returns nil only while the
// plan is paused.
func (e *Executor) CurrentStep() *Step {
	if e.plan != nil && e.plan.Paused {
		return nil
	}
	e.ensurePlan()
	return &e.plan.Steps[e.plan.Index]
}

// Advance moves past the current step, clearing the arrival mark. Past the
// last step it discards the plan and generates a fresh one, so the executor
// is never left without work.
func (e *Executor) Advance() {
	if e.plan == nil {
		e.regenerate()
		return
	}
	e.plan.Index++
	e.plan.ArrivalSet = false
	e.plan.ArrivalAt = 0
	if e.plan.Index >= len(e.plan.Steps) {
		e.regenerate()
	}
}

// MarkArrival records when the character reached the current step's target.
// Calling it again overwrites the mark; that is how re-entry after a resume
// restarts the wait.
func (e *Executor) MarkArrival(now float64) {
	if e.plan == nil || e.plan.Current() == nil {
		return
	}
	e.plan.ArrivalSet = true
	e.plan.ArrivalAt = now
}

// DurationElapsed reports whether the current step's dwell has been served.
// Unset arrival and indefinite steps are never elapsed.
func (e *Executor) DurationElapsed(now float64) bool {
	if e.plan == nil || !e.plan.ArrivalSet {
		return false
	}
	st := e.plan.Current()
	if st == nil || st.Indefinite {
		return false
	}
	return now-e.plan.ArrivalAt >= st.Seconds
}

// Pause suspends the plan for a conversation, generating one first if the
// character has never planned. Overridden plans refuse the pause; the
// immunity lives here, not in the caller.
func (e *Executor) Pause() {
	if e.plan != nil && e.plan.Origin == OriginOverridden {
		return
	}
	e.ensurePlan()
	e.plan.Paused = true
}

// Resume lifts the pause and clears the arrival mark: a wait satisfied
// before the pause must be served again in full.
func (e *Executor) Resume() {
	if e.plan == nil || !e.plan.Paused {
		return
	}
	e.plan.Paused = false
	e.plan.ArrivalSet = false
	e.plan.ArrivalAt = 0
}

// InterruptForStage saves the active plan and swaps in an indefinite
// WATCH_STAGE step. A second interrupt while one is outstanding is a no-op
// so a nested performance edge cannot clobber the original plan; overridden
// plans are immune.
func (e *Executor) InterruptForStage() {
	if e.saved != nil {
		return
	}
	if e.plan != nil && e.plan.Origin == OriginOverridden {
		return
	}
	e.ensurePlan()
	e.saved = e.plan
	e.plan = watchPlan(e.cat)
}

// RestoreFromStage reinstates the saved plan, steps and cursor intact. With
// nothing saved it generates fresh.
func (e *Executor) RestoreFromStage() {
	if e.saved != nil {
		e.plan = e.saved
		e.saved = nil
		return
	}
	e.regenerate()
}

// ApplyOverride replaces whatever is running with a single forced step,
// clearing pause, arrival and the saved slot. When the override completes,
// Advance regenerates normally; a stale saved plan must not come back after
// that, so it is dropped here.
func (e *Executor) ApplyOverride(kind catalog.Kind) {
	e.saved = nil
	st := buildStep(e.cat, kind, e.rng)
	e.plan = &Plan{Origin: OriginOverridden, Steps: []Step{st}}
}

// SeatArea reports the shared area occupied by the current step, if any.
func (e *Executor) SeatArea() (catalog.AreaID, bool) {
	st := e.plan.Current()
	if st == nil || st.SeatArea == "" {
		return "", false
	}
	return st.SeatArea, true
}

// CurrentPlan exposes the active plan for digests and observation; callers
// treat it as read-only.
func (e *Executor) CurrentPlan() *Plan { return e.plan }

// SavedPlan exposes the interrupted plan, nil when none.
func (e *Executor) SavedPlan() *Plan { return e.saved }

// Interrupted reports whether a stage interrupt is outstanding.
func (e *Executor) Interrupted() bool { return e.saved != nil }

// Overridden reports whether the active plan came from an operator command.
func (e *Executor) Overridden() bool {
	return e.plan != nil && e.plan.Origin == OriginOverridden
}

// Paused reports whether the active plan is suspended.
func (e *Executor) Paused() bool { return e.plan != nil && e.plan.Paused }

// Rand exposes the executor's stream so the venue can persist its state.
func (e *Executor) Rand() *Rand { return e.rng }

func (e *Executor) ensurePlan() {
	if e.plan == nil || e.plan.Current() == nil {
		e.regenerate()
	}
}

func (e *Executor) regenerate() {
	e.plan = Generate(e.cat, e.weights, e.avail(), e.minSteps, e.maxSteps, e.rng)
}

func watchPlan(cat *catalog.Catalog) *Plan {
	def := cat.Kinds[catalog.KindWatchStage]
	return &Plan{
		Origin: OriginGenerated,
		Steps: []Step{{
			Kind:       catalog.KindWatchStage,
			Indefinite: true,
			Cue:        Cue{Anim: def.Anim, SeatHeight: def.SeatHeight},
		}},
	}
}
