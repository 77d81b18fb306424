package main

import (
	"database/sql"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	venueID := fs.String("venue", "", "venue id (required unless -db)")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	tick := fs.Uint64("tick", 0, "tick filter (optional)")
	limit := fs.Int("limit", 20, "result limit")
	evType := fs.String("type", "", "event type filter (events)")
	charID := fs.String("character", "", "character_id filter (events)")
	_ = fs.Parse(args)

	q := "snapshots"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}
	if *limit <= 0 {
		*limit = 20
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		if strings.TrimSpace(*venueID) == "" {
			fmt.Fprintln(os.Stderr, "missing -venue or -db")
			os.Exit(2)
		}
		path = filepath.Join(*dataDir, "venues", *venueID, "index", "venue.sqlite")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	switch q {
	case "snapshots":
		rows, err := db.Query(`SELECT tick,path,seed,characters FROM snapshots ORDER BY tick DESC LIMIT ?`, *limit)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Tick       int64  `json:"tick"`
				Path       string `json:"path"`
				Seed       int64  `json:"seed"`
				Characters int    `json:"characters"`
			}
			if err := rows.Scan(&r.Tick, &r.Path, &r.Seed, &r.Characters); err != nil {
				fmt.Fprintln(os.Stderr, "scan:", err)
				os.Exit(1)
			}
			printJSON(r)
		}
		rowsErr(rows)

	case "ticks":
		query := `SELECT tick,digest,joins,leaves,commands FROM ticks ORDER BY tick DESC LIMIT ?`
		qargs := []any{*limit}
		if *tick != 0 {
			query = `SELECT tick,digest,joins,leaves,commands FROM ticks WHERE tick=?`
			qargs = []any{int64(*tick)}
		}
		rows, err := db.Query(query, qargs...)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Tick     int64  `json:"tick"`
				Digest   string `json:"digest"`
				Joins    int    `json:"joins"`
				Leaves   int    `json:"leaves"`
				Commands int    `json:"commands"`
			}
			if err := rows.Scan(&r.Tick, &r.Digest, &r.Joins, &r.Leaves, &r.Commands); err != nil {
				fmt.Fprintln(os.Stderr, "scan:", err)
				os.Exit(1)
			}
			printJSON(r)
		}
		rowsErr(rows)

	case "events":
		var conds []string
		var qargs []any
		if *tick != 0 {
			conds = append(conds, "tick=?")
			qargs = append(qargs, int64(*tick))
		}
		if strings.TrimSpace(*evType) != "" {
			conds = append(conds, "type=?")
			qargs = append(qargs, strings.TrimSpace(*evType))
		}
		if strings.TrimSpace(*charID) != "" {
			conds = append(conds, "character_id=?")
			qargs = append(qargs, strings.TrimSpace(*charID))
		}
		query := `SELECT raw_json FROM events`
		if len(conds) > 0 {
			query += " WHERE " + strings.Join(conds, " AND ")
		}
		query += ` ORDER BY tick DESC, seq DESC LIMIT ?`
		qargs = append(qargs, *limit)
		rows, err := db.Query(query, qargs...)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		defer rows.Close()
		for rows.Next() {
			var raw string
			if err := rows.Scan(&raw); err != nil {
				fmt.Fprintln(os.Stderr, "scan:", err)
				os.Exit(1)
			}
			fmt.Println(raw)
		}
		rowsErr(rows)

	case "commands":
		query := `SELECT tick,seq,session_id,op,cmd_json FROM commands ORDER BY tick DESC, seq ASC LIMIT ?`
		qargs := []any{*limit}
		if *tick != 0 {
			query = `SELECT tick,seq,session_id,op,cmd_json FROM commands WHERE tick=? ORDER BY seq ASC`
			qargs = []any{int64(*tick)}
		}
		rows, err := db.Query(query, qargs...)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Tick      int64  `json:"tick"`
				Seq       int    `json:"seq"`
				SessionID string `json:"session_id"`
				Op        string `json:"op"`
				CmdJSON   string `json:"cmd_json"`
			}
			if err := rows.Scan(&r.Tick, &r.Seq, &r.SessionID, &r.Op, &r.CmdJSON); err != nil {
				fmt.Fprintln(os.Stderr, "scan:", err)
				os.Exit(1)
			}
			printJSON(r)
		}
		rowsErr(rows)

	case "days":
		rows, err := db.Query(`SELECT day,end_tick,seed,snapshot_path,recorded_at FROM days ORDER BY day DESC LIMIT ?`, *limit)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Day          int    `json:"day"`
				EndTick      int64  `json:"end_tick"`
				Seed         int64  `json:"seed"`
				SnapshotPath string `json:"snapshot_path"`
				RecordedAt   string `json:"recorded_at"`
			}
			if err := rows.Scan(&r.Day, &r.EndTick, &r.Seed, &r.SnapshotPath, &r.RecordedAt); err != nil {
				fmt.Fprintln(os.Stderr, "scan:", err)
				os.Exit(1)
			}
			printJSON(r)
		}
		rowsErr(rows)

	case "catalogs":
		rows, err := db.Query(`SELECT name,digest,updated_at FROM catalogs ORDER BY name`)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Name      string `json:"name"`
				Digest    string `json:"digest"`
				UpdatedAt string `json:"updated_at"`
			}
			if err := rows.Scan(&r.Name, &r.Digest, &r.UpdatedAt); err != nil {
				fmt.Fprintln(os.Stderr, "scan:", err)
				os.Exit(1)
			}
			printJSON(r)
		}
		rowsErr(rows)

	default:
		fmt.Fprintln(os.Stderr, "unknown query:", q)
		fmt.Fprintln(os.Stderr, "usage: admin db [-data ./data] [-venue VENUE|-db PATH] [-tick T] [-type TYPE] [-character ID] [-limit N] snapshots|ticks|events|commands|days|catalogs")
		os.Exit(2)
	}
}

func rowsErr(rows *sql.Rows) {
	if err := rows.Err(); err != nil {
		fmt.Fprintln(os.Stderr, "rows:", err)
		os.Exit(1)
	}
}
