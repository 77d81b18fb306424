package plan

import "greenroom.ai/internal/sim/catalog"

// Default step-count range when the caller passes none.
const (
	DefaultMinSteps = 2
	DefaultMaxSteps = 5
)

// Availability is the point-in-time view of shared resources read at
// generation. It is only a snapshot: between generation and arrival two
// characters may plan toward the same last seat, and the venue adjudicates
// the claim when they get there.
type Availability struct {
	StageOccupied bool
	SeatOccupancy map[catalog.AreaID]int
}

type weightedOption struct {
	kind   catalog.Kind
	weight float64
}

// Generate builds a fresh plan: a uniform step count in [minSteps,maxSteps],
// each step picked by weighted selection over the eligible kinds. It never
// fails and never returns an empty plan; positions where nothing is
// eligible fall back to WANDER, which may sit next to another WANDER.
func Generate(cat *catalog.Catalog, weights catalog.Weights, avail Availability, minSteps, maxSteps int, rng *Rand) *Plan {
	if minSteps <= 0 {
		minSteps = DefaultMinSteps
	}
	if maxSteps < minSteps {
		maxSteps = minSteps
	}
	n := minSteps + rng.IntN(maxSteps-minSteps+1)

	steps := make([]Step, 0, n)
	var prev catalog.Kind
	for i := 0; i < n; i++ {
		kind, ok := pickWeighted(eligible(cat, weights, avail, prev), rng.Uint64())
		if !ok {
			kind = catalog.KindWander
		}
		steps = append(steps, buildStep(cat, kind, rng))
		prev = kind
	}
	return &Plan{Origin: OriginGenerated, Steps: steps}
}

// eligible filters the weight profile down to the kinds selectable at this
// position: positive weight, not a repeat of the previous step, stage free
// if the kind needs it, and a seat left in the kind's area. Iteration is in
// catalog order so draws are reproducible.
func eligible(cat *catalog.Catalog, weights catalog.Weights, avail Availability, prev catalog.Kind) []weightedOption {
	opts := make([]weightedOption, 0, len(weights))
	for _, k := range catalog.AllKinds {
		w := weights[k]
		if w <= 0 {
			continue
		}
		if k == prev {
			continue
		}
		if k == catalog.KindPerformOnStage && avail.StageOccupied {
			continue
		}
		if area, ok := cat.SeatArea(k); ok {
			if avail.SeatOccupancy[area] >= cat.Capacity(area) {
				continue
			}
		}
		opts = append(opts, weightedOption{kind: k, weight: w})
	}
	return opts
}

// pickWeighted draws in [0,total) and walks the options subtracting weight
// until the remainder goes non-positive. Returns false when nothing carries
// positive weight.
func pickWeighted(opts []weightedOption, roll uint64) (catalog.Kind, bool) {
	var total float64
	var last catalog.Kind
	found := false
	for _, o := range opts {
		if o.weight <= 0 {
			continue
		}
		total += o.weight
		last = o.kind
		found = true
	}
	if !found || total <= 0 {
		return "", false
	}

	r := float64(roll%1_000_000_000) / 1_000_000_000.0
	rem := r * total
	for _, o := range opts {
		if o.weight <= 0 {
			continue
		}
		rem -= o.weight
		if rem <= 0 {
			return o.kind, true
		}
	}
	// Float drift at the very top of the range lands on the last option.
	return last, true
}

func buildStep(cat *catalog.Catalog, kind catalog.Kind, rng *Rand) Step {
	min, max := cat.DurationRange(kind)
	area, _ := cat.SeatArea(kind)
	def := cat.Kinds[kind]
	return Step{
		Kind:     kind,
		Seconds:  rng.Range(min, max),
		SeatArea: area,
		Cue:      Cue{Anim: def.Anim, SeatHeight: def.SeatHeight},
	}
}
