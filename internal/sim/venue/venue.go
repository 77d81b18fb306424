package venue

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"greenroom.ai/internal/persistence/snapshot"
	"greenroom.ai/internal/protocol"
	"greenroom.ai/internal/sim/catalog"
	"greenroom.ai/internal/sim/plan"
)

// JoinRequest adds a character to the cast at the next tick boundary. It is
// the boot/replay path; operators use the JOIN command instead.
type JoinRequest struct {
	Name      string
	Archetype string
	Resp      chan JoinResponse
}

type JoinResponse struct {
	CharacterID string
}

// AttachRequest connects an observer or operator session. Attach is handled
// immediately (not at the tick boundary): sessions never influence the
// simulation, only commands do.
type AttachRequest struct {
	Role string
	Name string
	Out  chan []byte
	Resp chan AttachResponse
}

type AttachResponse struct {
	SessionID string
	Welcome   protocol.WelcomeMsg
	Catalogs  []protocol.CatalogMsg
}

// CommandEnvelope is an operator command with the session that sent it.
// Role checks happen in the transport; the venue trusts the envelope so a
// recorded command replays identically.
type CommandEnvelope struct {
	SessionID string
	Cmd       protocol.CommandMsg
}

type RecordedJoin struct {
	CharacterID string `json:"character_id"`
	Name        string `json:"name"`
	Archetype   string `json:"archetype"`
}

type RecordedCommand struct {
	SessionID string              `json:"session_id"`
	Cmd       protocol.CommandMsg `json:"cmd"`
}

// TickLogEntry is one line of the deterministic tick log: the inputs applied
// at that tick plus the state digest after the tick ran.
type TickLogEntry struct {
	Tick     uint64            `json:"tick"`
	Joins    []RecordedJoin    `json:"joins,omitempty"`
	Leaves   []string          `json:"leaves,omitempty"`
	Commands []RecordedCommand `json:"commands,omitempty"`
	Digest   string            `json:"digest"`
}

type TickLogger interface {
	WriteTick(entry TickLogEntry) error
}

// EventLogger receives every venue event as it is emitted, independent of
// the observer broadcast cadence.
type EventLogger interface {
	WriteEvent(e protocol.Event) error
}

type clientState struct {
	Role string
	Name string
	Out  chan []byte
}

// stagePerformance is the live stage claim. Nil means the stage is dark.
type stagePerformance struct {
	PerformerID string
	SinceTick   uint64
}

type conversation struct {
	A           string
	B           string
	StartedTick uint64
	EndsTick    uint64
}

// Venue is a single-threaded authoritative simulation of one studio lounge.
// All state must be accessed only from the venue loop goroutine.
type Venue struct {
	cfg   Config
	cat   *catalog.Catalog
	floor *FloorPlan

	tick atomic.Uint64

	chars   map[string]*Character
	clients map[string]*clientState

	stage        *stagePerformance
	convs        map[string]*conversation
	convCooldown map[string]uint64

	seats *seatRegistry

	// events buffers between observer broadcasts.
	events []protocol.Event

	inbox  chan CommandEnvelope
	join   chan JoinRequest
	attach chan AttachRequest
	detach chan string
	leave  chan string
	admin  chan adminSnapshotReq
	stop   chan struct{}

	nextCharNum    atomic.Uint64
	nextSessionNum atomic.Uint64

	// Optional loggers (may be nil). Implemented in internal/persistence/*.
	tickLogger  TickLogger
	eventLogger EventLogger

	// Optional snapshot sink (may be nil). Snapshot writing is off-thread.
	snapshotSink chan<- snapshot.SnapshotV1

	metrics atomic.Value

	// floorObs is the static floor plan catalog part, rendered once.
	floorObs protocol.FloorPlanObs
}

func New(cfg Config, cat *catalog.Catalog, fp *FloorPlan) (*Venue, error) {
	cfg.applyDefaults()
	if cat == nil {
		return nil, fmt.Errorf("venue: nil catalog")
	}
	if fp == nil {
		fp = DefaultFloorPlan()
	}
	for _, area := range catalog.AllAreas {
		if got, want := len(fp.Seats[area]), cat.Capacity(area); got < want {
			return nil, fmt.Errorf("venue: area %s has %d seats, capacity %d", area, got, want)
		}
	}

	v := &Venue{
		cfg:          cfg,
		cat:          cat,
		floor:        fp,
		chars:        map[string]*Character{},
		clients:      map[string]*clientState{},
		convs:        map[string]*conversation{},
		convCooldown: map[string]uint64{},
		seats:        newSeatRegistry(),
		inbox:        make(chan CommandEnvelope, 1024),
		join:         make(chan JoinRequest, 64),
		attach:       make(chan AttachRequest, 64),
		detach:       make(chan string, 64),
		leave:        make(chan string, 64),
		admin:        make(chan adminSnapshotReq, 8),
		stop:         make(chan struct{}),
	}
	v.floorObs = fp.Obs()
	return v, nil
}

func (v *Venue) SetTickLogger(l TickLogger)                    { v.tickLogger = l }
func (v *Venue) SetEventLogger(l EventLogger)                  { v.eventLogger = l }
func (v *Venue) SetSnapshotSink(ch chan<- snapshot.SnapshotV1) { v.snapshotSink = ch }

func (v *Venue) Inbox() chan<- CommandEnvelope { return v.inbox }
func (v *Venue) Join() chan<- JoinRequest      { return v.join }
func (v *Venue) Attach() chan<- AttachRequest  { return v.attach }
func (v *Venue) Detach() chan<- string         { return v.detach }
func (v *Venue) Leave() chan<- string          { return v.leave }

func (v *Venue) CurrentTick() uint64 { return v.tick.Load() }
func (v *Venue) Config() Config      { return v.cfg }

func (v *Venue) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(v.cfg.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var pendingCmds []CommandEnvelope
	var pendingJoins []JoinRequest
	var pendingLeaves []string
	var pendingAdmin []adminSnapshotReq

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-v.stop:
			return nil
		case req := <-v.join:
			pendingJoins = append(pendingJoins, req)
		case req := <-v.attach:
			v.handleAttach(req)
		case id := <-v.detach:
			v.handleDetach(id)
		case id := <-v.leave:
			pendingLeaves = append(pendingLeaves, id)
		case req := <-v.admin:
			pendingAdmin = append(pendingAdmin, req)
		case env := <-v.inbox:
			pendingCmds = append(pendingCmds, env)
		case <-ticker.C:
			v.step(pendingJoins, pendingLeaves, pendingCmds)
			v.handleAdminSnapshotRequests(pendingAdmin)
			pendingJoins = pendingJoins[:0]
			pendingLeaves = pendingLeaves[:0]
			pendingCmds = pendingCmds[:0]
			pendingAdmin = pendingAdmin[:0]
		}
	}
}

func (v *Venue) Stop() { close(v.stop) }

func (v *Venue) step(joins []JoinRequest, leaves []string, cmds []CommandEnvelope) {
	stepStart := time.Now()
	nowTick := v.tick.Load()

	dayBoundary := false
	if nowTick != 0 && v.cfg.DayTicks > 0 && nowTick%uint64(v.cfg.DayTicks) == 0 {
		dayBoundary = true
		v.addEvent(protocol.Event{
			"t":    nowTick,
			"type": "DAY_STARTED",
			"day":  nowTick / uint64(v.cfg.DayTicks),
		})
	}

	// Apply leaves and joins deterministically at tick boundary.
	recordedLeaves := make([]string, 0, len(leaves))
	for _, id := range leaves {
		if _, ok := v.chars[id]; ok {
			v.removeCharacter(id, "left", nowTick)
			recordedLeaves = append(recordedLeaves, id)
		}
	}
	recordedJoins := make([]RecordedJoin, 0, len(joins))
	for _, req := range joins {
		c := v.joinCharacter(req.Name, req.Archetype, nowTick)
		if req.Resp != nil {
			req.Resp <- JoinResponse{CharacterID: c.ID}
		}
		recordedJoins = append(recordedJoins, RecordedJoin{CharacterID: c.ID, Name: c.Name, Archetype: c.Archetype})
	}

	// Apply commands in server receive order (the inbox order).
	recordedCmds := make([]RecordedCommand, 0, len(cmds))
	for _, env := range cmds {
		recordedCmds = append(recordedCmds, RecordedCommand{SessionID: env.SessionID, Cmd: env.Cmd})
		v.applyCommand(env, nowTick)
	}

	// Systems: conversations -> stage -> routines -> movement.
	v.systemConversations(nowTick)
	v.systemStage(nowTick)
	v.systemRoutines(nowTick)
	v.systemMovement(nowTick)

	// Broadcast OBS on the configured cadence; one payload for everyone.
	if nowTick%uint64(v.cfg.ObsEveryTicks) == 0 {
		v.broadcastObs(nowTick)
	}

	digest := v.stateDigest(nowTick)
	if v.tickLogger != nil {
		_ = v.tickLogger.WriteTick(TickLogEntry{Tick: nowTick, Joins: recordedJoins, Leaves: recordedLeaves, Commands: recordedCmds, Digest: digest})
	}

	// Snapshot every N ticks and at day boundaries, starting after tick 0.
	if v.snapshotSink != nil && nowTick != 0 {
		every := uint64(v.cfg.SnapshotEveryTicks)
		if dayBoundary || (every > 0 && nowTick%every == 0) {
			snap := v.ExportSnapshot(nowTick)
			select {
			case v.snapshotSink <- snap:
			default:
				// Drop snapshot if sink is backed up.
			}
		}
	}

	stepMS := float64(time.Since(stepStart).Microseconds()) / 1000.0
	nextTick := v.tick.Add(1)

	seated, watching := 0, 0
	for _, c := range v.chars {
		if c.Seat != nil {
			seated++
		}
		if c.Ex.Interrupted() {
			watching++
		}
	}
	performer := ""
	if v.stage != nil {
		performer = v.stage.PerformerID
	}
	v.metrics.Store(VenueMetrics{
		Tick:          nextTick,
		Characters:    len(v.chars),
		Clients:       len(v.clients),
		Seated:        seated,
		Watching:      watching,
		Conversations: len(v.convs),
		StageOccupied: v.stage != nil,
		PerformerID:   performer,
		QueueDepths: QueueDepths{
			Inbox:  len(v.inbox),
			Join:   len(v.join),
			Leave:  len(v.leave),
			Attach: len(v.attach),
		},
		StepMS: stepMS,
	})
}

// StepOnce advances the venue by a single tick using the same ordering
// semantics as the server loop. Intended for deterministic replays/tests.
func (v *Venue) StepOnce(joins []JoinRequest, leaves []string, cmds []CommandEnvelope) (tick uint64, digest string) {
	tick = v.tick.Load()
	v.step(joins, leaves, cmds)
	return tick, v.stateDigest(tick)
}

func (v *Venue) joinCharacter(name, archetype string, nowTick uint64) *Character {
	if name == "" {
		name = "guest"
	}
	weights, ok := v.cat.Archetypes[archetype]
	if !ok {
		ids := v.cat.ArchetypeIDs()
		archetype = ids[0]
		weights = v.cat.Archetypes[archetype]
	}

	ordinal := v.nextCharNum.Add(1)
	id := fmt.Sprintf("C%d", ordinal)
	station := v.floor.Station(ordinal)

	c := &Character{
		ID:        id,
		Name:      name,
		Archetype: archetype,
		Ordinal:   ordinal,
		Station:   station,
		Pos:       station,
	}
	c.Ex = plan.NewExecutor(
		v.cat,
		weights,
		v.availability,
		plan.NewStream(v.cfg.Seed, ordinal),
		v.cfg.PlanStepsMin,
		v.cfg.PlanStepsMax,
	)
	v.chars[id] = c

	v.addEvent(protocol.Event{
		"t":            nowTick,
		"type":         "CHARACTER_JOINED",
		"character_id": id,
		"name":         name,
		"archetype":    archetype,
	})

	// A performance already running pulls the newcomer straight into the
	// audience.
	if v.stage != nil && v.stage.PerformerID != id {
		c.Ex.InterruptForStage()
	}
	return c
}

func (v *Venue) removeCharacter(id, reason string, nowTick uint64) {
	c := v.chars[id]
	if c == nil {
		return
	}
	if c.ConvWith != "" {
		v.endConversation(pairKey(id, c.ConvWith), "partner_left", nowTick)
	}
	if v.stage != nil && v.stage.PerformerID == id {
		v.endPerformance("performer_left", nowTick)
	}
	v.seats.release(id)
	delete(v.chars, id)
	v.addEvent(protocol.Event{
		"t":            nowTick,
		"type":         "CHARACTER_LEFT",
		"character_id": id,
		"reason":       reason,
	})
}

func (v *Venue) sortedCharIDs() []string {
	ids := make([]string, 0, len(v.chars))
	for id := range v.chars {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (v *Venue) addEvent(e protocol.Event) {
	v.events = append(v.events, e)
	if v.eventLogger != nil {
		_ = v.eventLogger.WriteEvent(e)
	}
}

// nowSeconds converts a tick to the wall-clock seconds the plan engine
// reasons in.
func (v *Venue) nowSeconds(nowTick uint64) float64 {
	return float64(nowTick) / float64(v.cfg.TickRateHz)
}

func sendLatest(ch chan []byte, b []byte) {
	select {
	case ch <- b:
		return
	default:
	}
	// Drop one.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
}
