package venue

import (
	"fmt"
	"strconv"
	"strings"

	"greenroom.ai/internal/persistence/snapshot"
	"greenroom.ai/internal/sim/plan"
)

// ImportSnapshot replaces the current in-memory venue state with the
// snapshot and sets the tick to snapshotTick+1 (the next tick to simulate).
// Plans are not in snapshots: every character replans from its restored RNG
// stream on the first tick, and seats, the stage and conversations rebuild
// from there. Two venues resumed from the same snapshot stay in lockstep.
//
// This must be called only when the venue is stopped or from the venue loop
// goroutine.
func (v *Venue) ImportSnapshot(s snapshot.SnapshotV1) error {
	if s.Header.Version != 1 {
		return fmt.Errorf("unsupported snapshot version: %d", s.Header.Version)
	}

	// Parameter consistency checks: resuming under different rules would
	// silently fork the timeline.
	if v.cfg.Seed != s.Seed {
		return fmt.Errorf("snapshot seed mismatch: cfg=%d snap=%d", v.cfg.Seed, s.Seed)
	}
	if v.cfg.TickRateHz != s.TickRate {
		return fmt.Errorf("snapshot tick_rate_hz mismatch: cfg=%d snap=%d", v.cfg.TickRateHz, s.TickRate)
	}
	if v.cfg.DayTicks != s.DayTicks {
		return fmt.Errorf("snapshot day_ticks mismatch: cfg=%d snap=%d", v.cfg.DayTicks, s.DayTicks)
	}
	if v.cfg.PlanStepsMin != s.PlanStepsMin || v.cfg.PlanStepsMax != s.PlanStepsMax {
		return fmt.Errorf("snapshot plan step range mismatch: cfg=[%d,%d] snap=[%d,%d]",
			v.cfg.PlanStepsMin, v.cfg.PlanStepsMax, s.PlanStepsMin, s.PlanStepsMax)
	}
	if s.KindsDigest != "" && s.KindsDigest != v.cat.KindsDigest {
		return fmt.Errorf("snapshot kinds digest mismatch")
	}
	if s.AreasDigest != "" && s.AreasDigest != v.cat.AreasDigest {
		return fmt.Errorf("snapshot areas digest mismatch")
	}
	if s.ArchetypesDigest != "" && s.ArchetypesDigest != v.cat.ArchetypesDigest {
		return fmt.Errorf("snapshot archetypes digest mismatch")
	}
	if s.FloorPlanDigest != "" && s.FloorPlanDigest != v.floor.Digest {
		return fmt.Errorf("snapshot floor plan digest mismatch")
	}

	// Operational parameters: snapshot is authoritative when present.
	if s.SnapshotEveryTicks > 0 {
		v.cfg.SnapshotEveryTicks = s.SnapshotEveryTicks
	}
	if s.ObsEveryTicks > 0 {
		v.cfg.ObsEveryTicks = s.ObsEveryTicks
	}
	v.cfg.applyDefaults()

	// Reset dynamic state. Sessions are not restored; clients re-attach.
	v.chars = map[string]*Character{}
	v.stage = nil
	v.convs = map[string]*conversation{}
	v.convCooldown = map[string]uint64{}
	v.seats = newSeatRegistry()
	v.events = nil

	var maxChar uint64
	for _, cs := range s.Characters {
		weights, ok := v.cat.Archetypes[cs.Archetype]
		if !ok {
			return fmt.Errorf("snapshot character %s has unknown archetype %q", cs.ID, cs.Archetype)
		}
		c := &Character{
			ID:        cs.ID,
			Name:      cs.Name,
			Archetype: cs.Archetype,
			Ordinal:   cs.Ordinal,
			Station:   Cell{X: cs.Station[0], Y: cs.Station[1]},
			Pos:       Cell{X: cs.Pos[0], Y: cs.Pos[1]},
		}
		c.Ex = plan.NewExecutor(
			v.cat,
			weights,
			v.availability,
			plan.NewRand(cs.RandState),
			v.cfg.PlanStepsMin,
			v.cfg.PlanStepsMax,
		)
		v.chars[c.ID] = c
		if n, ok := parseUintAfterPrefix("C", c.ID); ok && n > maxChar {
			maxChar = n
		}
	}
	v.nextCharNum.Store(maxU64(maxChar, s.Counters.NextCharacter))

	// Resume on the next tick.
	v.tick.Store(s.Header.Tick + 1)

	return nil
}

func maxU64(a, b uint64) uint64 {
	if a >= b {
		return a
	}
	return b
}

func parseUintAfterPrefix(prefix, id string) (uint64, bool) {
	if !strings.HasPrefix(id, prefix) {
		return 0, false
	}
	n, err := strconv.ParseUint(id[len(prefix):], 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
