package catalog

// Defaults returns the built-in catalog. Servers normally load the same
// data from configs/, but tests and tools can run without any files on
// disk. Digests are computed over the canonical JSON of each section so a
// defaults-built catalog is distinguishable from a file-built one.
func Defaults() *Catalog {
	c, err := newCatalog(defaultKinds(), defaultAreas(), defaultArchetypes())
	if err != nil {
		// The built-in tables are covered by tests; a failure here is a
		// programming error, not a runtime condition.
		panic("catalog: invalid defaults: " + err.Error())
	}
	c.KindsDigest = digestJSON(kindsFile{Kinds: defaultKinds()})
	c.AreasDigest = digestJSON(areasFile{Areas: defaultAreas()})
	c.ArchetypesDigest = digestJSON(archetypesFile{Archetypes: defaultArchetypeWire()})
	return c
}

func defaultKinds() []KindDef {
	return []KindDef{
		{ID: KindReturnToStation, MinSeconds: 20, MaxSeconds: 60, Anim: "sit_work", SeatHeight: 0.46},
		{ID: KindVisitKitchen, MinSeconds: 8, MaxSeconds: 25, SeatArea: AreaKitchen, Anim: "stand_snack"},
		{ID: KindSitOnCouch, MinSeconds: 15, MaxSeconds: 45, SeatArea: AreaCouch, Anim: "sit_relax", SeatHeight: 0.42},
		{ID: KindVisitBreakRoom, MinSeconds: 10, MaxSeconds: 30, SeatArea: AreaBreakRoom, Anim: "sit_break", SeatHeight: 0.45},
		{ID: KindPlayPoker, MinSeconds: 30, MaxSeconds: 90, SeatArea: AreaPoker, Anim: "sit_cards", SeatHeight: 0.48},
		{ID: KindPerformOnStage, MinSeconds: 20, MaxSeconds: 60, Anim: "perform"},
		{ID: KindWatchStage, MinSeconds: 15, MaxSeconds: 45, Anim: "watch_idle"},
		{ID: KindWander, MinSeconds: 4, MaxSeconds: 10},
		{ID: KindCheckOnColleague, MinSeconds: 6, MaxSeconds: 16, Anim: "chat_idle"},
		{ID: KindPresent, MinSeconds: 15, MaxSeconds: 40, Anim: "present"},
		{ID: KindWalkLoop, MinSeconds: 20, MaxSeconds: 50},
		{ID: KindPlayBocce, MinSeconds: 25, MaxSeconds: 70, Anim: "toss_bocce"},
		{ID: KindPlayCornhole, MinSeconds: 25, MaxSeconds: 70, Anim: "toss_bag"},
		{ID: KindSitOutside, MinSeconds: 15, MaxSeconds: 50, SeatArea: AreaPatio, Anim: "sit_relax", SeatHeight: 0.40},
	}
}

func defaultAreas() []AreaDef {
	return []AreaDef{
		{ID: AreaKitchen, Capacity: 5},
		{ID: AreaCouch, Capacity: 2},
		{ID: AreaBreakRoom, Capacity: 4},
		{ID: AreaPoker, Capacity: 4},
		{ID: AreaPatio, Capacity: 6},
	}
}

func defaultArchetypes() map[string]Weights {
	return map[string]Weights{
		"REGULAR": {
			KindReturnToStation:  30,
			KindVisitKitchen:     15,
			KindSitOnCouch:       12,
			KindVisitBreakRoom:   12,
			KindPlayPoker:        12,
			KindPerformOnStage:   8,
			KindWatchStage:       10,
			KindWander:           15,
			KindCheckOnColleague: 8,
			KindPresent:          4,
			KindWalkLoop:         8,
			KindPlayBocce:        5,
			KindPlayCornhole:     5,
			KindSitOutside:       8,
		},
		"PERFORMER": {
			KindReturnToStation:  15,
			KindVisitKitchen:     10,
			KindSitOnCouch:       8,
			KindVisitBreakRoom:   8,
			KindPlayPoker:        6,
			KindPerformOnStage:   25,
			KindWatchStage:       12,
			KindWander:           10,
			KindCheckOnColleague: 6,
			KindPresent:          12,
			KindWalkLoop:         6,
			KindSitOutside:       6,
		},
		"HOST": {
			KindReturnToStation:  12,
			KindVisitKitchen:     18,
			KindSitOnCouch:       10,
			KindVisitBreakRoom:   10,
			KindWatchStage:       10,
			KindWander:           12,
			KindCheckOnColleague: 25,
			KindPresent:          6,
			KindWalkLoop:         15,
			KindSitOutside:       8,
		},
		"ENGINEER": {
			KindReturnToStation:  45,
			KindVisitKitchen:     12,
			KindSitOnCouch:       8,
			KindVisitBreakRoom:   10,
			KindPlayPoker:        10,
			KindWatchStage:       8,
			KindWander:           8,
			KindCheckOnColleague: 5,
			KindWalkLoop:         5,
			KindPlayCornhole:     5,
			KindSitOutside:       5,
		},
		"LOUNGER": {
			KindReturnToStation:  8,
			KindVisitKitchen:     12,
			KindSitOnCouch:       22,
			KindVisitBreakRoom:   8,
			KindPlayPoker:        15,
			KindWatchStage:       12,
			KindWander:           10,
			KindWalkLoop:         8,
			KindPlayBocce:        10,
			KindPlayCornhole:     10,
			KindSitOutside:       15,
		},
	}
}
