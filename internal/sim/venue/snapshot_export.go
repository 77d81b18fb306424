package venue

import (
	"greenroom.ai/internal/persistence/snapshot"
)

// ExportSnapshot captures the durable venue state at nowTick. Safe to call
// only from the venue loop goroutine; the returned value owns all its data.
func (v *Venue) ExportSnapshot(nowTick uint64) snapshot.SnapshotV1 {
	snap := snapshot.SnapshotV1{
		Header: snapshot.Header{
			Version: 1,
			VenueID: v.cfg.ID,
			Tick:    nowTick,
		},
		Seed:               v.cfg.Seed,
		TickRate:           v.cfg.TickRateHz,
		DayTicks:           v.cfg.DayTicks,
		PlanStepsMin:       v.cfg.PlanStepsMin,
		PlanStepsMax:       v.cfg.PlanStepsMax,
		SnapshotEveryTicks: v.cfg.SnapshotEveryTicks,
		ObsEveryTicks:      v.cfg.ObsEveryTicks,
		KindsDigest:        v.cat.KindsDigest,
		AreasDigest:        v.cat.AreasDigest,
		ArchetypesDigest:   v.cat.ArchetypesDigest,
		FloorPlanDigest:    v.floor.Digest,
		Counters: snapshot.CountersV1{
			NextCharacter: v.nextCharNum.Load(),
		},
	}

	for _, id := range v.sortedCharIDs() {
		c := v.chars[id]
		snap.Characters = append(snap.Characters, snapshot.CharacterV1{
			ID:        c.ID,
			Name:      c.Name,
			Archetype: c.Archetype,
			Ordinal:   c.Ordinal,
			Station:   [2]int{c.Station.X, c.Station.Y},
			Pos:       [2]int{c.Pos.X, c.Pos.Y},
			RandState: c.Ex.Rand().State(),
		})
	}

	return snap
}
