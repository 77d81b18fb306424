package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"greenroom.ai/internal/persistence/snapshot"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "db":
			dbCmd(os.Args[2:])
			return
		case "inspect":
			inspectCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		case "snapshot":
			snapshotCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	venueID := fs.String("venue", "", "venue id (optional)")
	_ = fs.Parse(args)

	base := filepath.Join(*dataDir, "venues")
	if *venueID != "" {
		base = filepath.Join(base, *venueID)
	}

	entries, err := os.ReadDir(base)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	for _, e := range entries {
		fmt.Println(e.Name())
	}
}

func inspectCmd(args []string) {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	venueID := fs.String("venue", "", "venue id (used to find the latest snapshot when -snapshot is empty)")
	snapPath := fs.String("snapshot", "", "snapshot path (optional; defaults to latest)")
	headerOnly := fs.Bool("header", false, "print only the header line (does not decode the body)")
	characters := fs.Bool("characters", false, "print one line per character")
	_ = fs.Parse(args)

	path := strings.TrimSpace(*snapPath)
	if path == "" {
		if strings.TrimSpace(*venueID) == "" {
			fmt.Fprintln(os.Stderr, "missing -snapshot or -venue")
			os.Exit(2)
		}
		path = latestSnapshot(filepath.Join(*dataDir, "venues", *venueID))
		if path == "" {
			fmt.Fprintln(os.Stderr, "no snapshot found; provide -snapshot or run server until it writes one")
			os.Exit(2)
		}
	}

	if *headerOnly {
		h, err := snapshot.ReadHeader(path)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read header:", err)
			os.Exit(1)
		}
		printJSON(h)
		return
	}

	snap, err := snapshot.ReadSnapshot(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}

	summary := struct {
		Path             string `json:"path"`
		Version          int    `json:"version"`
		VenueID          string `json:"venue_id"`
		Tick             uint64 `json:"tick"`
		Seed             int64  `json:"seed"`
		TickRateHz       int    `json:"tick_rate_hz"`
		DayTicks         int    `json:"day_ticks"`
		PlanStepsMin     int    `json:"plan_steps_min"`
		PlanStepsMax     int    `json:"plan_steps_max"`
		Characters       int    `json:"characters"`
		NextCharacter    uint64 `json:"next_character"`
		KindsDigest      string `json:"kinds_digest,omitempty"`
		AreasDigest      string `json:"areas_digest,omitempty"`
		ArchetypesDigest string `json:"archetypes_digest,omitempty"`
		FloorPlanDigest  string `json:"floor_plan_digest,omitempty"`
	}{
		Path:             path,
		Version:          snap.Header.Version,
		VenueID:          snap.Header.VenueID,
		Tick:             snap.Header.Tick,
		Seed:             snap.Seed,
		TickRateHz:       snap.TickRate,
		DayTicks:         snap.DayTicks,
		PlanStepsMin:     snap.PlanStepsMin,
		PlanStepsMax:     snap.PlanStepsMax,
		Characters:       len(snap.Characters),
		NextCharacter:    snap.Counters.NextCharacter,
		KindsDigest:      snap.KindsDigest,
		AreasDigest:      snap.AreasDigest,
		ArchetypesDigest: snap.ArchetypesDigest,
		FloorPlanDigest:  snap.FloorPlanDigest,
	}
	printJSON(summary)

	if *characters {
		for _, c := range snap.Characters {
			printJSON(c)
		}
	}
}

func latestSnapshot(venueDir string) string {
	dir := filepath.Join(venueDir, "snapshots")
	ents, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var best string
	var bestTick uint64
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		base := strings.TrimSuffix(name, ".snap.zst")
		tick, err := strconv.ParseUint(base, 10, 64)
		if err != nil {
			continue
		}
		if best == "" || tick > bestTick {
			bestTick = tick
			best = filepath.Join(dir, name)
		}
	}
	return best
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
