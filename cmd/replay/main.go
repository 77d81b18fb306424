package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"

	"github.com/klauspost/compress/zstd"

	"greenroom.ai/internal/persistence/snapshot"
	"greenroom.ai/internal/sim/catalog"
	"greenroom.ai/internal/sim/tuning"
	"greenroom.ai/internal/sim/venue"
)

// replay re-simulates a venue from its tick log and verifies the recorded
// state digest at every tick. Verification always starts from tick zero:
// snapshots do not carry plans, so a resumed venue forks a new (internally
// deterministic) timeline whose digests cannot match the recorded ones. A
// -snapshot is instead cross-checked against the replayed state at its tick.
func main() {
	var (
		ticksDir  = flag.String("ticks", "", "dir containing ticks-*.jsonl.zst (default: <data>/venues/<venue>/ticks)")
		snapPath  = flag.String("snapshot", "", "path to .snap.zst to summarize and cross-check (optional)")
		configDir = flag.String("configs", "./configs", "config directory")
		dataDir   = flag.String("data", "./data", "runtime data directory")
		venueID   = flag.String("venue", "greenroom-1", "venue id")
		seed      = flag.Int64("seed", 1337, "venue seed (must match the recorded run)")
		fromTick  = flag.Uint64("from_tick", 0, "start verifying from tick (inclusive, optional)")
		toTick    = flag.Uint64("to_tick", 0, "stop at tick (inclusive, optional)")
	)
	flag.Parse()

	var snap *snapshot.SnapshotV1
	if strings.TrimSpace(*snapPath) != "" {
		s, err := snapshot.ReadSnapshot(*snapPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read snapshot:", err)
			os.Exit(1)
		}
		snap = &s
		fmt.Printf("snapshot v%d venue=%s tick=%d seed=%d day_ticks=%d characters=%d next_character=%d\n",
			s.Header.Version, s.Header.VenueID, s.Header.Tick, s.Seed, s.DayTicks,
			len(s.Characters), s.Counters.NextCharacter)
	}

	dir := strings.TrimSpace(*ticksDir)
	if dir == "" {
		dir = filepath.Join(*dataDir, "venues", *venueID, "ticks")
	}
	files, err := listTickFiles(dir)
	if err != nil || len(files) == 0 {
		if snap != nil {
			// Summary-only invocation.
			return
		}
		if err != nil {
			fmt.Fprintln(os.Stderr, "list ticks:", err)
		} else {
			fmt.Fprintln(os.Stderr, "no tick files found in", dir)
		}
		os.Exit(1)
	}

	cat, err := catalog.Load(*configDir)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			fmt.Fprintln(os.Stderr, "load catalog:", err)
			os.Exit(1)
		}
		cat = catalog.Defaults()
	}

	fp, err := loadFloorPlan(*configDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load floor plan:", err)
		os.Exit(1)
	}

	tune, err := tuning.Load(filepath.Join(*configDir, "tuning.yaml"))
	if err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintln(os.Stderr, "load tuning:", err)
			os.Exit(1)
		}
		tune = tuning.Defaults()
	}

	id := *venueID
	runSeed := *seed
	if snap != nil {
		// The recorded run's parameters are authoritative when we have them.
		if snap.Header.VenueID != "" {
			id = snap.Header.VenueID
		}
		runSeed = snap.Seed
	}

	v, err := venue.New(venue.Config{
		ID:                 id,
		TickRateHz:         tune.TickRateHz,
		Seed:               runSeed,
		PlanStepsMin:       tune.PlanStepsMin,
		PlanStepsMax:       tune.PlanStepsMax,
		MoveCellsPerTick:   tune.MoveCellsPerTick,
		StallTicks:         tune.StallTicks,
		ObsEveryTicks:      tune.ObserverEveryTicks,
		SnapshotEveryTicks: tune.SnapshotEveryTicks,
		DayTicks:           tune.DayTicks,
		Conversation: venue.ConversationConfig{
			Radius:         tune.Conversation.Radius,
			ChancePermille: tune.Conversation.ChancePermille,
			MinTicks:       tune.Conversation.MinTicks,
			MaxTicks:       tune.Conversation.MaxTicks,
			CooldownTicks:  tune.Conversation.CooldownTicks,
		},
	}, cat, fp)
	if err != nil {
		fmt.Fprintln(os.Stderr, "venue:", err)
		os.Exit(1)
	}

	var checked uint64
	snapChecked := false
	for _, path := range files {
		if err := replayFile(v, path, *fromTick, *toTick, snap, &checked, &snapChecked); err != nil {
			fmt.Fprintln(os.Stderr, "replay:", err)
			os.Exit(1)
		}
		if *toTick != 0 && v.CurrentTick() > *toTick {
			break
		}
	}
	fmt.Printf("replay ok: checked=%d ticks\n", checked)
	if snap != nil {
		if snapChecked {
			fmt.Printf("snapshot cross-check ok: tick=%d\n", snap.Header.Tick)
		} else {
			fmt.Printf("snapshot cross-check skipped: log stops before tick %d\n", snap.Header.Tick)
		}
	}
}

func listTickFiles(dir string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(ents))
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, "ticks-") && strings.HasSuffix(name, ".jsonl.zst") {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	out := make([]string, 0, len(names))
	for _, name := range names {
		out = append(out, filepath.Join(dir, name))
	}
	return out, nil
}

func loadFloorPlan(configDir string) (*venue.FloorPlan, error) {
	path := filepath.Join(configDir, "floorplan.json")
	if _, err := os.Stat(path); err != nil {
		return venue.DefaultFloorPlan(), nil
	}
	return venue.LoadFloorPlan(path)
}

func replayFile(v *venue.Venue, path string, fromTick, toTick uint64, snap *snapshot.SnapshotV1, checked *uint64, snapChecked *bool) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 8*1024*1024)

	for sc.Scan() {
		line := sc.Bytes()
		var entry venue.TickLogEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			return fmt.Errorf("%s: unmarshal: %w", filepath.Base(path), err)
		}
		if toTick != 0 && entry.Tick > toTick {
			return nil
		}
		if entry.Tick != v.CurrentTick() {
			return fmt.Errorf("tick mismatch: want=%d got=%d (file=%s)", v.CurrentTick(), entry.Tick, filepath.Base(path))
		}

		joins := make([]venue.JoinRequest, 0, len(entry.Joins))
		for _, j := range entry.Joins {
			joins = append(joins, venue.JoinRequest{Name: j.Name, Archetype: j.Archetype})
		}
		leaves := entry.Leaves

		cmds := make([]venue.CommandEnvelope, 0, len(entry.Commands))
		for _, rc := range entry.Commands {
			cmds = append(cmds, venue.CommandEnvelope{SessionID: rc.SessionID, Cmd: rc.Cmd})
		}

		tick, gotDigest := v.StepOnce(joins, leaves, cmds)

		// Sanity check: StepOnce should have stepped the same tick.
		if tick != entry.Tick {
			return fmt.Errorf("internal tick mismatch: stepped=%d entry=%d (file=%s)", tick, entry.Tick, filepath.Base(path))
		}

		if tick >= fromTick {
			*checked++
			if gotDigest != entry.Digest {
				return fmt.Errorf("digest mismatch at tick %d: got=%s want=%s", tick, gotDigest, entry.Digest)
			}
		}

		if snap != nil && tick == snap.Header.Tick {
			if err := crossCheckSnapshot(v, snap); err != nil {
				return err
			}
			*snapChecked = true
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}
	return nil
}

// crossCheckSnapshot compares a written snapshot with what the replayed venue
// would export at the same tick. Catches a corrupted or mislabeled snapshot
// file before anyone tries to resume from it.
func crossCheckSnapshot(v *venue.Venue, snap *snapshot.SnapshotV1) error {
	got := v.ExportSnapshot(snap.Header.Tick)
	if !reflect.DeepEqual(got, *snap) {
		if len(got.Characters) != len(snap.Characters) {
			return fmt.Errorf("snapshot cross-check failed at tick %d: characters got=%d want=%d",
				snap.Header.Tick, len(got.Characters), len(snap.Characters))
		}
		for i := range got.Characters {
			if !reflect.DeepEqual(got.Characters[i], snap.Characters[i]) {
				return fmt.Errorf("snapshot cross-check failed at tick %d: character %s differs",
					snap.Header.Tick, snap.Characters[i].ID)
			}
		}
		return fmt.Errorf("snapshot cross-check failed at tick %d: parameters differ", snap.Header.Tick)
	}
	return nil
}
