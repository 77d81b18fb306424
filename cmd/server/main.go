package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"greenroom.ai/internal/persistence/archive"
	"greenroom.ai/internal/persistence/indexdb"
	persistlog "greenroom.ai/internal/persistence/log"
	"greenroom.ai/internal/persistence/snapshot"
	"greenroom.ai/internal/protocol"
	"greenroom.ai/internal/sim/catalog"
	"greenroom.ai/internal/sim/tuning"
	"greenroom.ai/internal/sim/venue"
	"greenroom.ai/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		venueID    = flag.String("venue", "greenroom-1", "venue id")
		seed       = flag.Int64("seed", 1337, "venue seed (used only when starting a fresh venue)")
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		disableDB  = flag.Bool("disable_db", false, "disable indexing (ticks + events + catalogs + snapshot metadata)")

		snapPath   = flag.String("snapshot", "", "path to snapshot to load (optional)")
		loadLatest = flag.Bool("load_latest_snapshot", true, "load latest snapshot from data dir if present (when -snapshot is empty)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	// Catalog: files when the config dir has them, compiled-in defaults
	// otherwise. A present-but-broken file is fatal; silence there would run
	// the venue under content the operator did not intend.
	cat, err := catalog.Load(*configDir)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logger.Fatalf("load catalog: %v", err)
		}
		logger.Printf("catalog files not found in %s; using defaults", *configDir)
		cat = catalog.Defaults()
	}

	fpPath := filepath.Join(*configDir, "floorplan.json")
	var fp *venue.FloorPlan
	if _, statErr := os.Stat(fpPath); statErr == nil {
		fp, err = venue.LoadFloorPlan(fpPath)
		if err != nil {
			logger.Fatalf("load floor plan: %v", err)
		}
	} else {
		logger.Printf("floor plan not found (%s); using default", fpPath)
		fp = venue.DefaultFloorPlan()
		fpPath = ""
	}

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, tuneErr := tuning.Load(tp)
	if tuneErr != nil {
		if !os.IsNotExist(tuneErr) {
			logger.Fatalf("load tuning: %v", tuneErr)
		}
		logger.Printf("tuning not found (%s); using defaults", tp)
		tune = tuning.Defaults()
	}

	venueDir := filepath.Join(*dataDir, "venues", *venueID)
	_ = os.MkdirAll(venueDir, 0o755)

	// Optional: read-model index backend (does not affect sim determinism).
	idx, err := openRuntimeIndex(venueDir, *venueID, *disableDB, logger)
	if err != nil {
		logger.Fatalf("open index backend: %v", err)
	}
	if idx != nil {
		defer idx.Close()
		if err := idx.UpsertCatalogs(*configDir, fpPath, cat, fp.Digest, tune); err != nil {
			logger.Printf("index backend: upsert catalogs: %v", err)
		}
	}

	cfg := venue.Config{
		ID:                 *venueID,
		TickRateHz:         tune.TickRateHz,
		Seed:               *seed,
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
	}

	// Create venue (fresh or resumed from snapshot).
	var v *venue.Venue
	snapshotToLoad := strings.TrimSpace(*snapPath)
	if snapshotToLoad == "" && *loadLatest {
		snapshotToLoad = latestSnapshot(venueDir)
	}

	if snapshotToLoad != "" {
		snap, err := snapshot.ReadSnapshot(snapshotToLoad)
		if err != nil {
			logger.Fatalf("read snapshot: %v", err)
		}
		if snap.Header.VenueID != "" && snap.Header.VenueID != *venueID {
			logger.Fatalf("snapshot venue id mismatch: flag=%s snap=%s", *venueID, snap.Header.VenueID)
		}
		// The snapshot pins the deterministic parameters; tuning keeps
		// supplying the ones a snapshot does not carry.
		cfg.Seed = snap.Seed
		cfg.TickRateHz = snap.TickRate
		cfg.DayTicks = snap.DayTicks
		cfg.PlanStepsMin = snap.PlanStepsMin
		cfg.PlanStepsMax = snap.PlanStepsMax
		v, err = venue.New(cfg, cat, fp)
		if err != nil {
			logger.Fatalf("venue: %v", err)
		}
		if err := v.ImportSnapshot(snap); err != nil {
			logger.Fatalf("import snapshot: %v", err)
		}
		logger.Printf("resumed from snapshot=%s tick=%d", filepath.Base(snapshotToLoad), v.CurrentTick())
	} else {
		v, err = venue.New(cfg, cat, fp)
		if err != nil {
			logger.Fatalf("venue: %v", err)
		}
	}

	ctx, cancel := signalContext()
	defer cancel()

	tickLog := persistlog.NewTickLogger(venueDir)
	eventLog := persistlog.NewEventLogger(venueDir)
	defer tickLog.Close()
	defer eventLog.Close()
	v.SetTickLogger(multiTickLogger{a: tickLog, b: idx})
	v.SetEventLogger(multiEventLogger{a: eventLog, b: idx})

	// Snapshot writer.
	snapCh := make(chan snapshot.SnapshotV1, 2)
	v.SetSnapshotSink(snapCh)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case snap := <-snapCh:
				path := filepath.Join(venueDir, "snapshots", fmt.Sprintf("%d.snap.zst", snap.Header.Tick))
				if err := snapshot.WriteSnapshot(path, snap); err != nil {
					logger.Printf("snapshot write: %v", err)
					continue
				}
				if idx != nil {
					idx.RecordSnapshot(path, snap)
				}
				if day, archivedPath, ok, err := archive.ArchiveDaySnapshot(venueDir, path, snap); err != nil {
					logger.Printf("archive day snapshot: %v", err)
				} else if ok && idx != nil {
					idx.RecordDay(day, snap.Header.Tick, archivedPath, snap.Seed)
				}
			}
		}
	}()

	go func() {
		if err := v.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("venue stopped: %v", err)
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

		m := v.Metrics()
		tick := v.CurrentTick()
		if m.Tick != 0 {
			tick = m.Tick
		}

		// Minimal Prometheus exposition format.
		fmt.Fprintf(rw, "# HELP greenroom_venue_tick Current venue tick.\n")
		fmt.Fprintf(rw, "# TYPE greenroom_venue_tick gauge\n")
		fmt.Fprintf(rw, "greenroom_venue_tick{venue=%q} %d\n", *venueID, tick)

		fmt.Fprintf(rw, "# HELP greenroom_venue_characters Current number of characters in the venue.\n")
		fmt.Fprintf(rw, "# TYPE greenroom_venue_characters gauge\n")
		fmt.Fprintf(rw, "greenroom_venue_characters{venue=%q} %d\n", *venueID, m.Characters)

		fmt.Fprintf(rw, "# HELP greenroom_venue_clients Current number of connected sessions.\n")
		fmt.Fprintf(rw, "# TYPE greenroom_venue_clients gauge\n")
		fmt.Fprintf(rw, "greenroom_venue_clients{venue=%q} %d\n", *venueID, m.Clients)

		fmt.Fprintf(rw, "# HELP greenroom_venue_seated Characters currently holding a seat.\n")
		fmt.Fprintf(rw, "# TYPE greenroom_venue_seated gauge\n")
		fmt.Fprintf(rw, "greenroom_venue_seated{venue=%q} %d\n", *venueID, m.Seated)

		fmt.Fprintf(rw, "# HELP greenroom_venue_watching Characters currently watching the stage.\n")
		fmt.Fprintf(rw, "# TYPE greenroom_venue_watching gauge\n")
		fmt.Fprintf(rw, "greenroom_venue_watching{venue=%q} %d\n", *venueID, m.Watching)

		fmt.Fprintf(rw, "# HELP greenroom_venue_conversations Active conversations.\n")
		fmt.Fprintf(rw, "# TYPE greenroom_venue_conversations gauge\n")
		fmt.Fprintf(rw, "greenroom_venue_conversations{venue=%q} %d\n", *venueID, m.Conversations)

		fmt.Fprintf(rw, "# HELP greenroom_venue_stage_occupied Whether the stage is claimed (0/1).\n")
		fmt.Fprintf(rw, "# TYPE greenroom_venue_stage_occupied gauge\n")
		occupied := 0
		if m.StageOccupied {
			occupied = 1
		}
		fmt.Fprintf(rw, "greenroom_venue_stage_occupied{venue=%q} %d\n", *venueID, occupied)

		fmt.Fprintf(rw, "# HELP greenroom_venue_queue_depth Channel backlog depth.\n")
		fmt.Fprintf(rw, "# TYPE greenroom_venue_queue_depth gauge\n")
		fmt.Fprintf(rw, "greenroom_venue_queue_depth{venue=%q,queue=%q} %d\n", *venueID, "inbox", m.QueueDepths.Inbox)
		fmt.Fprintf(rw, "greenroom_venue_queue_depth{venue=%q,queue=%q} %d\n", *venueID, "join", m.QueueDepths.Join)
		fmt.Fprintf(rw, "greenroom_venue_queue_depth{venue=%q,queue=%q} %d\n", *venueID, "leave", m.QueueDepths.Leave)
		fmt.Fprintf(rw, "greenroom_venue_queue_depth{venue=%q,queue=%q} %d\n", *venueID, "attach", m.QueueDepths.Attach)

		fmt.Fprintf(rw, "# HELP greenroom_venue_step_ms Last tick step duration in milliseconds.\n")
		fmt.Fprintf(rw, "# TYPE greenroom_venue_step_ms gauge\n")
		fmt.Fprintf(rw, "greenroom_venue_step_ms{venue=%q} %.3f\n", *venueID, m.StepMS)

		writeIndexMetrics(rw, idx)
	})

	enableAdminHTTP := envBool("GR_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP())
	enablePprofHTTP := envBool("GR_ENABLE_PPROF_HTTP", false)
	if enableAdminHTTP {
		// Local-only admin endpoints (do not affect simulation determinism).
		mux.HandleFunc("/admin/v1/state", func(rw http.ResponseWriter, r *http.Request) {
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			rw.Header().Set("Content-Type", "application/json")
			resp := struct {
				VenueID string             `json:"venue_id"`
				Tick    uint64             `json:"tick"`
				Metrics venue.VenueMetrics `json:"metrics"`
			}{
				VenueID: *venueID,
				Tick:    v.CurrentTick(),
				Metrics: v.Metrics(),
			}
			_ = json.NewEncoder(rw).Encode(resp)
		})
		mux.HandleFunc("/admin/v1/snapshot", func(rw http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				rw.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			ctx2, cancel2 := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel2()
			tick, err := v.RequestSnapshot(ctx2)
			rw.Header().Set("Content-Type", "application/json")
			if err != nil {
				rw.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "tick": tick, "error": err.Error()})
				return
			}
			_ = json.NewEncoder(rw).Encode(map[string]any{"ok": true, "tick": tick})
		})
	} else {
		logger.Printf("admin endpoints disabled (GR_ENABLE_ADMIN_HTTP=false)")
	}
	if enablePprofHTTP {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	} else {
		logger.Printf("pprof endpoints disabled (GR_ENABLE_PPROF_HTTP=false)")
	}
	mux.HandleFunc("/v1/ws", ws.NewServer(v, logger).Handler())

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
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

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}

func writeIndexMetrics(rw http.ResponseWriter, idx runtimeIndex) {
	switch ix := idx.(type) {
	case *indexdb.SQLiteIndex:
		s := ix.Stats()
		fmt.Fprintf(rw, "# HELP greenroom_index_queue_depth Current index writer queue depth.\n")
		fmt.Fprintf(rw, "# TYPE greenroom_index_queue_depth gauge\n")
		fmt.Fprintf(rw, "greenroom_index_queue_depth %d\n", s.QueueDepth)

		fmt.Fprintf(rw, "# HELP greenroom_index_queue_capacity Index writer queue capacity.\n")
		fmt.Fprintf(rw, "# TYPE greenroom_index_queue_capacity gauge\n")
		fmt.Fprintf(rw, "greenroom_index_queue_capacity %d\n", s.QueueCapacity)

		fmt.Fprintf(rw, "# HELP greenroom_index_dropped_total Rows dropped because the index queue was full.\n")
		fmt.Fprintf(rw, "# TYPE greenroom_index_dropped_total counter\n")
		fmt.Fprintf(rw, "greenroom_index_dropped_total{kind=%q} %d\n", "tick", s.DropTickTotal)
		fmt.Fprintf(rw, "greenroom_index_dropped_total{kind=%q} %d\n", "event", s.DropEventTotal)
		fmt.Fprintf(rw, "greenroom_index_dropped_total{kind=%q} %d\n", "snapshot", s.DropSnapshotTotal)
		fmt.Fprintf(rw, "greenroom_index_dropped_total{kind=%q} %d\n", "day", s.DropDayTotal)

	case *indexdb.MirrorIndex:
		s := ix.Stats()
		fmt.Fprintf(rw, "# HELP greenroom_index_mirror_queue_depth Current mirror queue depth.\n")
		fmt.Fprintf(rw, "# TYPE greenroom_index_mirror_queue_depth gauge\n")
		fmt.Fprintf(rw, "greenroom_index_mirror_queue_depth %d\n", s.QueueDepth)

		fmt.Fprintf(rw, "# HELP greenroom_index_mirror_queue_capacity Mirror queue capacity.\n")
		fmt.Fprintf(rw, "# TYPE greenroom_index_mirror_queue_capacity gauge\n")
		fmt.Fprintf(rw, "greenroom_index_mirror_queue_capacity %d\n", s.QueueCapacity)

		fmt.Fprintf(rw, "# HELP greenroom_index_mirror_dropped_total Rows dropped because the mirror queue was full.\n")
		fmt.Fprintf(rw, "# TYPE greenroom_index_mirror_dropped_total counter\n")
		fmt.Fprintf(rw, "greenroom_index_mirror_dropped_total %d\n", s.QueueDroppedTotal)

		fmt.Fprintf(rw, "# HELP greenroom_index_mirror_flush_fail_total Batches that failed to send after retry.\n")
		fmt.Fprintf(rw, "# TYPE greenroom_index_mirror_flush_fail_total counter\n")
		fmt.Fprintf(rw, "greenroom_index_mirror_flush_fail_total %d\n", s.FlushFailTotal)

		fmt.Fprintf(rw, "# HELP greenroom_index_mirror_sent_total Rows delivered to the mirror endpoint.\n")
		fmt.Fprintf(rw, "# TYPE greenroom_index_mirror_sent_total counter\n")
		fmt.Fprintf(rw, "greenroom_index_mirror_sent_total %d\n", s.SentTotal)
	}
}

type multiTickLogger struct {
	a venue.TickLogger
	b venue.TickLogger
}

func (m multiTickLogger) WriteTick(entry venue.TickLogEntry) error {
	if m.a != nil {
		_ = m.a.WriteTick(entry)
	}
	if m.b != nil {
		_ = m.b.WriteTick(entry)
	}
	return nil
}

type multiEventLogger struct {
	a venue.EventLogger
	b venue.EventLogger
}

func (m multiEventLogger) WriteEvent(e protocol.Event) error {
	if m.a != nil {
		_ = m.a.WriteEvent(e)
	}
	if m.b != nil {
		_ = m.b.WriteEvent(e)
	}
	return nil
}
