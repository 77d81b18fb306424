package indexdb

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"greenroom.ai/internal/persistence/snapshot"
	"greenroom.ai/internal/protocol"
	"greenroom.ai/internal/sim/catalog"
	"greenroom.ai/internal/sim/tuning"
	"greenroom.ai/internal/sim/venue"
)

// MirrorConfig points at a remote ingest endpoint that accepts batched index
// rows. Useful when the venue runs on a box whose disk we do not trust, or
// when several venues feed one dashboard.
type MirrorConfig struct {
	Endpoint      string
	Token         string
	VenueID       string
	BatchSize     int
	FlushInterval time.Duration
	HTTPTimeout   time.Duration
	Logger        *log.Logger
}

// MirrorIndex ships the same rows the SQLite index stores to a remote HTTP
// endpoint. Batches that fail to send are retained and retried on the next
// flush; only queue overflow loses rows.
type MirrorIndex struct {
	cfg        MirrorConfig
	httpClient *http.Client

	ch   chan mirrorEvent
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	eventMu       sync.Mutex
	lastEventTick uint64
	eventSeq      int

	dropped   atomic.Uint64
	flushFail atomic.Uint64
	sent      atomic.Uint64
}

// MirrorStats reports delivery health for the metrics endpoint.
type MirrorStats struct {
	QueueDepth        int
	QueueCapacity     int
	QueueDroppedTotal uint64
	FlushFailTotal    uint64
	SentTotal         uint64
}

type mirrorEvent struct {
	Kind    string `json:"kind"`
	VenueID string `json:"venue_id"`
	Payload any    `json:"payload"`
}

type mirrorTickPayload struct {
	Tick     uint64                  `json:"tick"`
	Digest   string                  `json:"digest"`
	Joins    []venue.RecordedJoin    `json:"joins,omitempty"`
	Leaves   []string                `json:"leaves,omitempty"`
	Commands []venue.RecordedCommand `json:"commands,omitempty"`
}

type mirrorEventPayload struct {
	Tick uint64         `json:"tick"`
	Seq  int            `json:"seq"`
	Type string         `json:"type"`
	Raw  protocol.Event `json:"raw"`
}

type mirrorSnapshotPayload struct {
	Tick       uint64 `json:"tick"`
	Path       string `json:"path"`
	Seed       int64  `json:"seed"`
	Characters int    `json:"characters"`
}

type mirrorDayPayload struct {
	Day        int    `json:"day"`
	EndTick    uint64 `json:"end_tick"`
	Path       string `json:"path"`
	Seed       int64  `json:"seed"`
	RecordedAt string `json:"recorded_at"`
}

type mirrorCatalogPayload struct {
	Name      string `json:"name"`
	Digest    string `json:"digest"`
	JSON      string `json:"json"`
	UpdatedAt string `json:"updated_at"`
}

func OpenMirror(cfg MirrorConfig) (*MirrorIndex, error) {
	cfg.Endpoint = strings.TrimSpace(cfg.Endpoint)
	cfg.VenueID = strings.TrimSpace(cfg.VenueID)
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("empty mirror ingest endpoint")
	}
	if cfg.VenueID == "" {
		return nil, fmt.Errorf("empty venue id")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 128
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 500 * time.Millisecond
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 10 * time.Second
	}

	m := &MirrorIndex{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.HTTPTimeout,
		},
		ch: make(chan mirrorEvent, 32768),
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.loop()
	}()

	return m, nil
}

func (m *MirrorIndex) Close() error {
	if m == nil {
		return nil
	}
	m.once.Do(func() {
		m.closed.Store(true)
		close(m.ch)
		m.wg.Wait()
	})
	return nil
}

func (m *MirrorIndex) Stats() MirrorStats {
	if m == nil {
		return MirrorStats{}
	}
	return MirrorStats{
		QueueDepth:        len(m.ch),
		QueueCapacity:     cap(m.ch),
		QueueDroppedTotal: m.dropped.Load(),
		FlushFailTotal:    m.flushFail.Load(),
		SentTotal:         m.sent.Load(),
	}
}

func (m *MirrorIndex) WriteTick(entry venue.TickLogEntry) error {
	if m == nil || m.closed.Load() {
		return nil
	}
	p := mirrorTickPayload{
		Tick:     entry.Tick,
		Digest:   entry.Digest,
		Joins:    entry.Joins,
		Leaves:   entry.Leaves,
		Commands: entry.Commands,
	}
	m.enqueue(mirrorEvent{Kind: "tick", VenueID: m.cfg.VenueID, Payload: p})
	return nil
}

func (m *MirrorIndex) WriteEvent(e protocol.Event) error {
	if m == nil || m.closed.Load() {
		return nil
	}
	tick := eventTick(e)
	typ, _ := e["type"].(string)
	p := mirrorEventPayload{
		Tick: tick,
		Seq:  m.nextEventSeq(tick),
		Type: typ,
		Raw:  e,
	}
	m.enqueue(mirrorEvent{Kind: "event", VenueID: m.cfg.VenueID, Payload: p})
	return nil
}

func (m *MirrorIndex) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	if m == nil || m.closed.Load() {
		return
	}
	p := mirrorSnapshotPayload{
		Tick:       snap.Header.Tick,
		Path:       path,
		Seed:       snap.Seed,
		Characters: len(snap.Characters),
	}
	m.enqueue(mirrorEvent{Kind: "snapshot", VenueID: m.cfg.VenueID, Payload: p})
}

func (m *MirrorIndex) RecordDay(day int, endTick uint64, archivedSnapshotPath string, seed int64) {
	if m == nil || m.closed.Load() {
		return
	}
	if day <= 0 || strings.TrimSpace(archivedSnapshotPath) == "" {
		return
	}
	p := mirrorDayPayload{
		Day:        day,
		EndTick:    endTick,
		Path:       archivedSnapshotPath,
		Seed:       seed,
		RecordedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	m.enqueue(mirrorEvent{Kind: "day", VenueID: m.cfg.VenueID, Payload: p})
}

func (m *MirrorIndex) UpsertCatalogs(configDir, floorPlanPath string, cat *catalog.Catalog, floorPlanDigest string, tune tuning.Tuning) error {
	if m == nil || m.closed.Load() || cat == nil {
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

	type row struct {
		name   string
		digest string
		data   []byte
	}
	rows := make([]row, 0, 5)
	if b := raw["kinds"]; len(b) > 0 {
		rows = append(rows, row{name: "kinds", digest: cat.KindsDigest, data: b})
	}
	if b := raw["areas"]; len(b) > 0 {
		rows = append(rows, row{name: "areas", digest: cat.AreasDigest, data: b})
	}
	if b := raw["archetypes"]; len(b) > 0 {
		rows = append(rows, row{name: "archetypes", digest: cat.ArchetypesDigest, data: b})
	}
	if b := raw["floor_plan"]; len(b) > 0 {
		rows = append(rows, row{name: "floor_plan", digest: floorPlanDigest, data: b})
	}
	if b, err := json.Marshal(tune); err == nil && len(b) > 0 {
		sum := sha256.Sum256(b)
		rows = append(rows, row{name: "tuning", digest: hex.EncodeToString(sum[:]), data: b})
	}

	for _, r := range rows {
		if r.name == "" || r.digest == "" || len(r.data) == 0 {
			continue
		}
		m.enqueue(mirrorEvent{Kind: "catalog", VenueID: m.cfg.VenueID, Payload: mirrorCatalogPayload{
			Name:      r.name,
			Digest:    r.digest,
			JSON:      string(r.data),
			UpdatedAt: now,
		}})
	}
	return nil
}

func (m *MirrorIndex) nextEventSeq(tick uint64) int {
	m.eventMu.Lock()
	defer m.eventMu.Unlock()
	if tick != m.lastEventTick {
		m.lastEventTick = tick
		m.eventSeq = 0
	}
	seq := m.eventSeq
	m.eventSeq++
	return seq
}

func (m *MirrorIndex) enqueue(ev mirrorEvent) {
	if m == nil || m.closed.Load() {
		return
	}
	select {
	case m.ch <- ev:
	default:
		m.dropped.Add(1)
		m.printf("index mirror queue full; drop kind=%s venue=%s", ev.Kind, ev.VenueID)
	}
}

func (m *MirrorIndex) loop() {
	ticker := time.NewTicker(m.cfg.FlushInterval)
	defer ticker.Stop()

	// Retained across failed flushes; capped so a long outage cannot grow
	// the batch without bound.
	maxRetained := m.cfg.BatchSize * 8
	if maxRetained < 256 {
		maxRetained = 256
	}
	batch := make([]mirrorEvent, 0, m.cfg.BatchSize)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := m.sendBatch(batch); err != nil {
			m.flushFail.Add(1)
			m.printf("index mirror flush failed batch=%d err=%v", len(batch), err)
			if over := len(batch) - maxRetained; over > 0 {
				m.dropped.Add(uint64(over))
				batch = batch[:copy(batch, batch[over:])]
			}
			return
		}
		m.sent.Add(uint64(len(batch)))
		batch = batch[:0]
	}

	for {
		select {
		case ev, ok := <-m.ch:
			if !ok {
				flush()
				return
			}
			batch = append(batch, ev)
			if len(batch) >= m.cfg.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

func (m *MirrorIndex) sendBatch(events []mirrorEvent) error {
	if len(events) == 0 {
		return nil
	}

	body := struct {
		Events []mirrorEvent `json:"events"`
	}{Events: events}
	buf, err := json.Marshal(body)
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		req, err := http.NewRequest(http.MethodPost, m.cfg.Endpoint, bytes.NewReader(buf))
		if err != nil {
			return err
		}
		req.Header.Set("content-type", "application/json")
		if m.cfg.Token != "" {
			req.Header.Set("x-gr-index-token", m.cfg.Token)
		}

		resp, err := m.httpClient.Do(req)
		if err == nil {
			respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 16*1024))
			_ = resp.Body.Close()
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				return nil
			}
			err = fmt.Errorf("status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(respBody)))
		}
		lastErr = err
		time.Sleep(time.Duration(100*(1<<attempt)) * time.Millisecond)
	}
	return lastErr
}

func (m *MirrorIndex) printf(format string, args ...any) {
	if m != nil && m.cfg.Logger != nil {
		m.cfg.Logger.Printf(format, args...)
	}
}
