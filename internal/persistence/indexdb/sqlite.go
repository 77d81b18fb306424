package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"greenroom.ai/internal/persistence/snapshot"
	"greenroom.ai/internal/protocol"
	"greenroom.ai/internal/sim/catalog"
	"greenroom.ai/internal/sim/tuning"
	"greenroom.ai/internal/sim/venue"
)

// SQLiteIndex is a queryable secondary index over the venue's JSONL logs and
// snapshot files. Writes are queued to a single writer goroutine; the JSONL
// logs remain the source of truth, so a full queue drops rather than stalls
// the venue loop.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropTick     atomic.Uint64
	dropEvent    atomic.Uint64
	dropSnapshot atomic.Uint64
	dropDay      atomic.Uint64
}

type reqKind int

const (
	reqTick reqKind = iota + 1
	reqEvent
	reqSnapshot
	reqDay
)

type req struct {
	kind reqKind

	tick     venue.TickLogEntry
	event    protocol.Event
	snapshot snapshotRow
	day      dayRow
}

type snapshotRow struct {
	Tick       uint64
	Path       string
	Seed       int64
	Characters int
}

type dayRow struct {
	Day        int
	EndTick    uint64
	Path       string
	Seed       int64
	RecordedAt string
}

// IndexStats reports queue health for the metrics endpoint.
type IndexStats struct {
	QueueDepth    int
	QueueCapacity int

	DropTickTotal     uint64
	DropEventTotal    uint64
	DropSnapshotTotal uint64
	DropDayTotal      uint64
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		// High buffer: event bursts (stage starts interrupting a full floor)
		// must not stall the venue loop.
		ch: make(chan req, 262144),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// WAL is much faster for append-style workloads.
	// NORMAL is a decent durability/perf tradeoff for a secondary index.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS catalogs (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS ticks (
			tick INTEGER PRIMARY KEY,
			digest TEXT NOT NULL,
			joins INTEGER NOT NULL,
			leaves INTEGER NOT NULL,
			commands INTEGER NOT NULL,
			raw_json TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS joins (
			tick INTEGER NOT NULL,
			character_id TEXT NOT NULL,
			name TEXT NOT NULL,
			archetype TEXT NOT NULL,
			PRIMARY KEY (tick, character_id)
		);`,
		`CREATE TABLE IF NOT EXISTS leaves (
			tick INTEGER NOT NULL,
			character_id TEXT NOT NULL,
			PRIMARY KEY (tick, character_id)
		);`,
		`CREATE TABLE IF NOT EXISTS commands (
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			session_id TEXT NOT NULL,
			op TEXT NOT NULL,
			cmd_json TEXT NOT NULL,
			PRIMARY KEY (tick, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_commands_session_tick ON commands(session_id, tick);`,
		`CREATE TABLE IF NOT EXISTS events (
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			type TEXT NOT NULL,
			character_id TEXT,
			raw_json TEXT NOT NULL,
			PRIMARY KEY (tick, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_events_type_tick ON events(type, tick);`,
		`CREATE INDEX IF NOT EXISTS idx_events_character_tick ON events(character_id, tick);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			tick INTEGER PRIMARY KEY,
			path TEXT NOT NULL,
			seed INTEGER NOT NULL,
			characters INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS days (
			day INTEGER PRIMARY KEY,
			end_tick INTEGER NOT NULL,
			seed INTEGER NOT NULL,
			snapshot_path TEXT NOT NULL,
			recorded_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_days_end_tick ON days(end_tick);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) Stats() IndexStats {
	if s == nil {
		return IndexStats{}
	}
	return IndexStats{
		QueueDepth:        len(s.ch),
		QueueCapacity:     cap(s.ch),
		DropTickTotal:     s.dropTick.Load(),
		DropEventTotal:    s.dropEvent.Load(),
		DropSnapshotTotal: s.dropSnapshot.Load(),
		DropDayTotal:      s.dropDay.Load(),
	}
}

func (s *SQLiteIndex) WriteTick(entry venue.TickLogEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqTick, tick: entry}:
	default:
		s.dropTick.Add(1)
	}
	return nil
}

func (s *SQLiteIndex) WriteEvent(e protocol.Event) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqEvent, event: e}:
	default:
		s.dropEvent.Add(1)
	}
	return nil
}

func (s *SQLiteIndex) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	if s == nil || s.closed.Load() {
		return
	}
	r := snapshotRow{
		Tick:       snap.Header.Tick,
		Path:       path,
		Seed:       snap.Seed,
		Characters: len(snap.Characters),
	}
	select {
	case s.ch <- req{kind: reqSnapshot, snapshot: r}:
	default:
		s.dropSnapshot.Add(1)
	}
}

func (s *SQLiteIndex) RecordDay(day int, endTick uint64, archivedSnapshotPath string, seed int64) {
	if s == nil || s.closed.Load() {
		return
	}
	if day <= 0 || archivedSnapshotPath == "" {
		return
	}
	r := dayRow{
		Day:        day,
		EndTick:    endTick,
		Path:       archivedSnapshotPath,
		Seed:       seed,
		RecordedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	select {
	case s.ch <- req{kind: reqDay, day: r}:
	default:
		s.dropDay.Add(1)
	}
}

// UpsertCatalogs stores the content the venue is running under: the raw
// catalog files, the floor plan, and the tuning actually applied. Runs
// synchronously at startup, before the venue loop starts.
func (s *SQLiteIndex) UpsertCatalogs(configDir, floorPlanPath string, cat *catalog.Catalog, floorPlanDigest string, tune tuning.Tuning) error {
	if s == nil || cat == nil {
		return nil
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)

	raw := map[string][]byte{}
	read := func(name, path string) {
		b, err := os.ReadFile(path)
		if err != nil {
			return
		}
		raw[name] = b
	}
	if configDir != "" {
		read("kinds", filepath.Join(configDir, "kinds.json"))
		read("areas", filepath.Join(configDir, "areas.json"))
		read("archetypes", filepath.Join(configDir, "archetypes.json"))
	}
	if floorPlanPath != "" {
		read("floor_plan", floorPlanPath)
	}

	type kv struct {
		name   string
		digest string
		json   []byte
	}
	var rows []kv
	if b := raw["kinds"]; len(b) > 0 {
		rows = append(rows, kv{name: "kinds", digest: cat.KindsDigest, json: b})
	}
	if b := raw["areas"]; len(b) > 0 {
		rows = append(rows, kv{name: "areas", digest: cat.AreasDigest, json: b})
	}
	if b := raw["archetypes"]; len(b) > 0 {
		rows = append(rows, kv{name: "archetypes", digest: cat.ArchetypesDigest, json: b})
	}
	if b := raw["floor_plan"]; len(b) > 0 {
		rows = append(rows, kv{name: "floor_plan", digest: floorPlanDigest, json: b})
	}

	// Tuning: store the values we actually apply (canonical JSON).
	{
		b, _ := json.Marshal(tune)
		sum := sha256.Sum256(b)
		digest := hex.EncodeToString(sum[:])
		rows = append(rows, kv{name: "tuning", digest: digest, json: b})
	}

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO catalogs(name,digest,json,updated_at) VALUES(?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range rows {
		if r.name == "" || r.digest == "" || len(r.json) == 0 {
			continue
		}
		if _, err := stmt.Exec(r.name, r.digest, string(r.json), now); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	return nil
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	// Prepared statements (on db; executed within tx).
	insertTick, _ := s.db.Prepare(`INSERT OR REPLACE INTO ticks(tick,digest,joins,leaves,commands,raw_json) VALUES(?,?,?,?,?,?)`)
	insertJoin, _ := s.db.Prepare(`INSERT OR REPLACE INTO joins(tick,character_id,name,archetype) VALUES(?,?,?,?)`)
	insertLeave, _ := s.db.Prepare(`INSERT OR REPLACE INTO leaves(tick,character_id) VALUES(?,?)`)
	insertCommand, _ := s.db.Prepare(`INSERT OR REPLACE INTO commands(tick,seq,session_id,op,cmd_json) VALUES(?,?,?,?,?)`)
	insertEvent, _ := s.db.Prepare(`INSERT OR REPLACE INTO events(tick,seq,type,character_id,raw_json) VALUES(?,?,?,?,?)`)
	insertSnapshot, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshots(tick,path,seed,characters) VALUES(?,?,?,?)`)
	insertDay, _ := s.db.Prepare(`INSERT OR REPLACE INTO days(day,end_tick,seed,snapshot_path,recorded_at) VALUES(?,?,?,?,?)`)
	defer func() {
		if insertTick != nil {
			_ = insertTick.Close()
		}
		if insertJoin != nil {
			_ = insertJoin.Close()
		}
		if insertLeave != nil {
			_ = insertLeave.Close()
		}
		if insertCommand != nil {
			_ = insertCommand.Close()
		}
		if insertEvent != nil {
			_ = insertEvent.Close()
		}
		if insertSnapshot != nil {
			_ = insertSnapshot.Close()
		}
		if insertDay != nil {
			_ = insertDay.Close()
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second

		lastEventTick uint64
		eventSeq      int
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			// If we can't start a tx, we can't do much; sleep a bit.
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}

	flushIfNeeded := func() {
		if tx == nil {
			return
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}

drain:
	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqTick:
			b, _ := json.Marshal(r.tick)
			if insertTick != nil {
				if _, err := tx.Stmt(insertTick).Exec(
					int64(r.tick.Tick),
					r.tick.Digest,
					len(r.tick.Joins),
					len(r.tick.Leaves),
					len(r.tick.Commands),
					string(b),
				); err != nil {
					rollback()
					continue
				}
				opCount++
			}
			for _, j := range r.tick.Joins {
				if insertJoin == nil {
					break
				}
				if _, err := tx.Stmt(insertJoin).Exec(int64(r.tick.Tick), j.CharacterID, j.Name, j.Archetype); err != nil {
					rollback()
					continue drain
				}
				opCount++
			}
			for _, id := range r.tick.Leaves {
				if insertLeave == nil {
					break
				}
				if _, err := tx.Stmt(insertLeave).Exec(int64(r.tick.Tick), id); err != nil {
					rollback()
					continue drain
				}
				opCount++
			}
			for i, c := range r.tick.Commands {
				if insertCommand == nil {
					break
				}
				cmdJSON, _ := json.Marshal(c.Cmd)
				if _, err := tx.Stmt(insertCommand).Exec(int64(r.tick.Tick), i, c.SessionID, c.Cmd.Op, string(cmdJSON)); err != nil {
					rollback()
					continue drain
				}
				opCount++
			}

		case reqEvent:
			e := r.event
			tick := eventTick(e)
			if tick != lastEventTick {
				lastEventTick = tick
				eventSeq = 0
			}
			seq := eventSeq
			eventSeq++
			raw, _ := json.Marshal(e)
			typ, _ := e["type"].(string)
			charID, _ := e["character_id"].(string)
			if insertEvent != nil {
				if _, err := tx.Stmt(insertEvent).Exec(
					int64(tick),
					seq,
					typ,
					charID,
					string(raw),
				); err != nil {
					rollback()
					continue
				}
				opCount++
			}

		case reqSnapshot:
			sn := r.snapshot
			if insertSnapshot != nil {
				if _, err := tx.Stmt(insertSnapshot).Exec(
					int64(sn.Tick),
					sn.Path,
					sn.Seed,
					sn.Characters,
				); err != nil {
					rollback()
					continue
				}
				opCount++
			}

		case reqDay:
			d := r.day
			if insertDay != nil {
				if _, err := tx.Stmt(insertDay).Exec(
					d.Day,
					int64(d.EndTick),
					d.Seed,
					d.Path,
					d.RecordedAt,
				); err != nil {
					rollback()
					continue
				}
				opCount++
			}
		}
		flushIfNeeded()
	}

	commit()
}

// eventTick tolerates both in-process events (uint64 "t") and events that
// round-tripped through JSON (float64).
func eventTick(e protocol.Event) uint64 {
	switch t := e["t"].(type) {
	case uint64:
		return t
	case int64:
		return uint64(t)
	case int:
		return uint64(t)
	case float64:
		return uint64(t)
	case json.Number:
		n, _ := t.Int64()
		return uint64(n)
	default:
		return 0
	}
}
