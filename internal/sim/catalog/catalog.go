package catalog

import (
	"fmt"
	"sort"
)

// Kind is one category of behavior a character can be scheduled to do.
type Kind string

const (
	KindReturnToStation  Kind = "RETURN_TO_STATION"
	KindVisitKitchen     Kind = "VISIT_KITCHEN"
	KindSitOnCouch       Kind = "SIT_ON_COUCH"
	KindVisitBreakRoom   Kind = "VISIT_BREAK_ROOM"
	KindPlayPoker        Kind = "PLAY_POKER"
	KindPerformOnStage   Kind = "PERFORM_ON_STAGE"
	KindWatchStage       Kind = "WATCH_STAGE"
	KindWander           Kind = "WANDER"
	KindCheckOnColleague Kind = "CHECK_ON_COLLEAGUE"
	KindPresent          Kind = "PRESENT"
	KindWalkLoop         Kind = "WALK_LOOP"
	KindPlayBocce        Kind = "PLAY_BOCCE"
	KindPlayCornhole     Kind = "PLAY_CORNHOLE"
	KindSitOutside       Kind = "SIT_OUTSIDE"
)

// AllKinds is the canonical iteration order for generation and digests.
var AllKinds = []Kind{
	KindReturnToStation,
	KindVisitKitchen,
	KindSitOnCouch,
	KindVisitBreakRoom,
	KindPlayPoker,
	KindPerformOnStage,
	KindWatchStage,
	KindWander,
	KindCheckOnColleague,
	KindPresent,
	KindWalkLoop,
	KindPlayBocce,
	KindPlayCornhole,
	KindSitOutside,
}

func (k Kind) Valid() bool {
	for _, v := range AllKinds {
		if v == k {
			return true
		}
	}
	return false
}

// AreaID names a capacity-limited shared seating area.
type AreaID string

const (
	AreaKitchen   AreaID = "KITCHEN"
	AreaCouch     AreaID = "COUCH"
	AreaBreakRoom AreaID = "BREAK_ROOM"
	AreaPoker     AreaID = "POKER"
	AreaPatio     AreaID = "PATIO"
)

var AllAreas = []AreaID{AreaKitchen, AreaCouch, AreaBreakRoom, AreaPoker, AreaPatio}

func (a AreaID) Valid() bool {
	for _, v := range AllAreas {
		if v == a {
			return true
		}
	}
	return false
}

// KindDef is the static definition of one step kind: how long it dwells,
// which seating area (if any) it occupies, and arrival cue hints for the
// animation layer.
type KindDef struct {
	ID         Kind    `json:"id"`
	MinSeconds float64 `json:"min_seconds"`
	MaxSeconds float64 `json:"max_seconds"`
	SeatArea   AreaID  `json:"seat_area,omitempty"`
	Anim       string  `json:"anim,omitempty"`
	SeatHeight float64 `json:"seat_height,omitempty"`
}

type AreaDef struct {
	ID       AreaID `json:"id"`
	Capacity int    `json:"capacity"`
}

// Weights maps step kinds to relative selection weight for one archetype.
// Kinds absent or weighted <=0 are never selected.
type Weights map[Kind]float64

// Clone returns an independent copy; profiles are shared immutable config
// and must not be mutated by holders.
func (w Weights) Clone() Weights {
	out := make(Weights, len(w))
	for k, v := range w {
		out[k] = v
	}
	return out
}

type Catalog struct {
	Kinds      map[Kind]KindDef
	Areas      map[AreaID]AreaDef
	Archetypes map[string]Weights

	KindsDigest      string
	AreasDigest      string
	ArchetypesDigest string
}

// DurationRange returns the [min,max] dwell seconds for a kind.
func (c *Catalog) DurationRange(k Kind) (min, max float64) {
	d, ok := c.Kinds[k]
	if !ok {
		return 0, 0
	}
	return d.MinSeconds, d.MaxSeconds
}

// SeatArea maps a kind to its capacity-limited area, if it has one.
func (c *Catalog) SeatArea(k Kind) (AreaID, bool) {
	d, ok := c.Kinds[k]
	if !ok || d.SeatArea == "" {
		return "", false
	}
	return d.SeatArea, true
}

func (c *Catalog) Capacity(a AreaID) int {
	d, ok := c.Areas[a]
	if !ok {
		return 0
	}
	return d.Capacity
}

func (c *Catalog) ArchetypeWeights(id string) (Weights, bool) {
	w, ok := c.Archetypes[id]
	return w, ok
}

func (c *Catalog) ArchetypeIDs() []string {
	ids := make([]string, 0, len(c.Archetypes))
	for id := range c.Archetypes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (c *Catalog) validate() error {
	for _, k := range AllKinds {
		d, ok := c.Kinds[k]
		if !ok {
			return fmt.Errorf("catalog: missing kind %s", k)
		}
		if d.MinSeconds < 0 || d.MaxSeconds < d.MinSeconds {
			return fmt.Errorf("catalog: kind %s: bad duration range [%v,%v]", k, d.MinSeconds, d.MaxSeconds)
		}
		if d.SeatArea != "" {
			if _, ok := c.Areas[d.SeatArea]; !ok {
				return fmt.Errorf("catalog: kind %s: unknown seat area %s", k, d.SeatArea)
			}
		}
	}
	for id, a := range c.Areas {
		if a.Capacity <= 0 {
			return fmt.Errorf("catalog: area %s: capacity must be positive", id)
		}
	}
	if len(c.Archetypes) == 0 {
		return fmt.Errorf("catalog: no archetypes")
	}
	for id, w := range c.Archetypes {
		if len(w) == 0 {
			return fmt.Errorf("catalog: archetype %s: empty weights", id)
		}
		for k := range w {
			if !k.Valid() {
				return fmt.Errorf("catalog: archetype %s: unknown kind %s", id, k)
			}
		}
	}
	return nil
}
