// Package plan holds the behavior-plan engine: weighted generation of step
// sequences under availability constraints, and the per-character executor
// that advances, pauses, interrupts and overrides a plan over simulation
// time. The package owns no world state; seats, the stage and positions
// belong to the venue, which feeds snapshots in and acts on what comes out.
package plan

import "greenroom.ai/internal/sim/catalog"

// Cell is a floor grid coordinate. Kept here so the core stays free of any
// venue dependency; the venue converts to and from its own grid.
type Cell struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Cue carries arrival hints for the presentation layer, copied from the
// catalog when the step is built.
type Cue struct {
	Anim       string  `json:"anim,omitempty"`
	SeatHeight float64 `json:"seat_height,omitempty"`
}

// Step is one scheduled activity. Kind, Seconds, SeatArea and Cue are fixed
// at generation; Target is filled in lazily by the caller once it resolves
// where the step happens.
type Step struct {
	Kind       catalog.Kind   `json:"kind"`
	Seconds    float64        `json:"seconds"`
	Indefinite bool           `json:"indefinite,omitempty"`
	SeatArea   catalog.AreaID `json:"seat_area,omitempty"`
	Cue        Cue            `json:"cue"`
	Target     *Cell          `json:"target,omitempty"`
}

// Origin says where a plan came from. Overridden plans are immune to
// conversation pauses and stage interrupts until they complete.
type Origin string

const (
	OriginGenerated  Origin = "GENERATED"
	OriginOverridden Origin = "OVERRIDDEN"
)

// Plan is an ordered step sequence plus its execution cursor. Plans live
// and die inside one process: they are never persisted and never shared
// between characters.
type Plan struct {
	Origin Origin `json:"origin"`
	Steps  []Step `json:"steps"`
	Index  int    `json:"index"`
	Paused bool   `json:"paused,omitempty"`

	// Arrival marks when the character reached the current step's target.
	// Cleared on advance and on resume, so waits are never banked across
	// an interruption.
	ArrivalSet bool    `json:"arrival_set,omitempty"`
	ArrivalAt  float64 `json:"arrival_at,omitempty"`
}

// Current returns the step under the cursor, or nil when the plan is
// exhausted.
func (p *Plan) Current() *Step {
	if p == nil || p.Index < 0 || p.Index >= len(p.Steps) {
		return nil
	}
	return &p.Steps[p.Index]
}

// Kinds lists the plan's step kinds in order, for events and logs.
func (p *Plan) Kinds() []catalog.Kind {
	if p == nil {
		return nil
	}
	out := make([]catalog.Kind, len(p.Steps))
	for i := range p.Steps {
		out[i] = p.Steps[i].Kind
	}
	return out
}
