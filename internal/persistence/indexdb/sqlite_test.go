package indexdb

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"greenroom.ai/internal/persistence/snapshot"
	"greenroom.ai/internal/protocol"
	"greenroom.ai/internal/sim/catalog"
	"greenroom.ai/internal/sim/tuning"
	"greenroom.ai/internal/sim/venue"
)

func TestSQLiteIndex_WriteTick_IndexesRows(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index.db")

	idx, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}

	entry := venue.TickLogEntry{
		Tick: 42,
		Joins: []venue.RecordedJoin{
			{CharacterID: "C1", Name: "Ada", Archetype: "SOCIAL"},
		},
		Leaves: []string{"C9"},
		Commands: []venue.RecordedCommand{
			{SessionID: "S3", Cmd: protocol.CommandMsg{Op: "override", CharacterID: "C1", Kind: "WANDER"}},
		},
		Digest: "abc123",
	}
	if err := idx.WriteTick(entry); err != nil {
		t.Fatalf("WriteTick: %v", err)
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	defer db.Close()

	var (
		digest   string
		joins    int
		leaves   int
		commands int
	)
	row := db.QueryRow(`SELECT digest,joins,leaves,commands FROM ticks WHERE tick=42`)
	if err := row.Scan(&digest, &joins, &leaves, &commands); err != nil {
		t.Fatalf("Scan ticks: %v", err)
	}
	if digest != "abc123" || joins != 1 || leaves != 1 || commands != 1 {
		t.Fatalf("ticks row mismatch: digest=%q joins=%d leaves=%d commands=%d", digest, joins, leaves, commands)
	}

	var (
		name      string
		archetype string
	)
	row = db.QueryRow(`SELECT name,archetype FROM joins WHERE tick=42 AND character_id='C1'`)
	if err := row.Scan(&name, &archetype); err != nil {
		t.Fatalf("Scan joins: %v", err)
	}
	if name != "Ada" || archetype != "SOCIAL" {
		t.Fatalf("joins row mismatch: name=%q archetype=%q", name, archetype)
	}

	var op string
	row = db.QueryRow(`SELECT op FROM commands WHERE tick=42 AND seq=0`)
	if err := row.Scan(&op); err != nil {
		t.Fatalf("Scan commands: %v", err)
	}
	if op != "override" {
		t.Fatalf("commands op=%q want override", op)
	}

	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM leaves WHERE tick=42 AND character_id='C9'`).Scan(&n); err != nil {
		t.Fatalf("count leaves: %v", err)
	}
	if n != 1 {
		t.Fatalf("leaves count=%d want 1", n)
	}
}

func TestSQLiteIndex_WriteEvent_SequencesWithinTick(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index.db")

	idx, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	_ = idx.WriteEvent(protocol.Event{"t": uint64(7), "type": "STEP_STARTED", "character_id": "C1"})
	_ = idx.WriteEvent(protocol.Event{"t": uint64(7), "type": "STEP_ARRIVED", "character_id": "C1"})
	_ = idx.WriteEvent(protocol.Event{"t": uint64(8), "type": "DAY_STARTED"})
	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	defer db.Close()

	var typ string
	if err := db.QueryRow(`SELECT type FROM events WHERE tick=7 AND seq=1`).Scan(&typ); err != nil {
		t.Fatalf("Scan seq 1: %v", err)
	}
	if typ != "STEP_ARRIVED" {
		t.Fatalf("seq 1 type=%q want STEP_ARRIVED", typ)
	}
	if err := db.QueryRow(`SELECT type FROM events WHERE tick=8 AND seq=0`).Scan(&typ); err != nil {
		t.Fatalf("Scan tick 8: %v", err)
	}
	if typ != "DAY_STARTED" {
		t.Fatalf("tick 8 type=%q want DAY_STARTED", typ)
	}
}

func TestSQLiteIndex_RecordDay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index.db")

	idx, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	idx.RecordDay(1, 35999, "/abs/path/35999.snap.zst", 42)
	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	defer db.Close()

	var (
		day  int
		end  int64
		seed int64
		snap string
	)
	row := db.QueryRow(`SELECT day,end_tick,seed,snapshot_path FROM days WHERE day=1`)
	if err := row.Scan(&day, &end, &seed, &snap); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if day != 1 || end != 35999 || seed != 42 || snap != "/abs/path/35999.snap.zst" {
		t.Fatalf("row mismatch: day=%d end=%d seed=%d snap=%q", day, end, seed, snap)
	}
}

func TestSQLiteIndex_RecordSnapshot(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index.db")

	idx, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	idx.RecordSnapshot("/abs/path/3000.snap.zst", snapshot.SnapshotV1{
		Header: snapshot.Header{Version: 1, VenueID: "v1", Tick: 3000},
		Seed:   7,
		Characters: []snapshot.CharacterV1{
			{ID: "C1"}, {ID: "C2"},
		},
	})
	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	defer db.Close()

	var (
		p     string
		seed  int64
		chars int
	)
	row := db.QueryRow(`SELECT path,seed,characters FROM snapshots WHERE tick=3000`)
	if err := row.Scan(&p, &seed, &chars); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if p != "/abs/path/3000.snap.zst" || seed != 7 || chars != 2 {
		t.Fatalf("row mismatch: path=%q seed=%d characters=%d", p, seed, chars)
	}
}

func TestSQLiteIndex_UpsertCatalogs(t *testing.T) {
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "configs")
	if err := os.MkdirAll(cfgDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	for name, body := range map[string]string{
		"kinds.json":      `{"kinds":[]}`,
		"areas.json":      `{"areas":[]}`,
		"archetypes.json": `{"archetypes":{}}`,
	} {
		if err := os.WriteFile(filepath.Join(cfgDir, name), []byte(body), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	fpPath := filepath.Join(dir, "floorplan.json")
	if err := os.WriteFile(fpPath, []byte(`{"width":4,"height":4}`), 0o644); err != nil {
		t.Fatalf("write floorplan: %v", err)
	}

	idx, err := OpenSQLite(filepath.Join(dir, "index.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	cat := &catalog.Catalog{
		KindsDigest:      "kd",
		AreasDigest:      "ad",
		ArchetypesDigest: "rd",
	}
	if err := idx.UpsertCatalogs(cfgDir, fpPath, cat, "fpd", tuning.Defaults()); err != nil {
		t.Fatalf("UpsertCatalogs: %v", err)
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db, err := sql.Open("sqlite", filepath.Join(dir, "index.db"))
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	defer db.Close()

	wantDigests := map[string]string{
		"kinds":      "kd",
		"areas":      "ad",
		"archetypes": "rd",
		"floor_plan": "fpd",
	}
	for name, want := range wantDigests {
		var digest string
		if err := db.QueryRow(`SELECT digest FROM catalogs WHERE name=?`, name).Scan(&digest); err != nil {
			t.Fatalf("Scan %s: %v", name, err)
		}
		if digest != want {
			t.Fatalf("%s digest=%q want %q", name, digest, want)
		}
	}
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM catalogs WHERE name='tuning'`).Scan(&n); err != nil {
		t.Fatalf("count tuning: %v", err)
	}
	if n != 1 {
		t.Fatalf("tuning rows=%d want 1", n)
	}
}
