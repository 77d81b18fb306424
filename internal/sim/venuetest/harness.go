package venuetest

import (
	"encoding/json"
	"testing"

	"greenroom.ai/internal/persistence/snapshot"
	"greenroom.ai/internal/protocol"
	"greenroom.ai/internal/sim/catalog"
	"greenroom.ai/internal/sim/venue"
)

// Harness is a small black-box test helper for driving a venue via exported
// APIs:
// - Join() issues JoinRequest via StepOnce()
// - Command()/Override() issue COMMAND envelopes via StepOnce()
// - An observer session's Out channel carries OBS JSON
// - Snapshot/Debug* helpers provide deterministic preconditions
//
// It intentionally avoids touching venue internals so tests can live outside
// the venue package. Configure ObsEveryTicks=1 so every step broadcasts.
type Harness struct {
	T   *testing.T
	Cat *catalog.Catalog
	V   *venue.Venue

	SessionID string

	out     chan []byte
	lastObs protocol.ObsMsg
}

func NewHarness(t *testing.T, cfg venue.Config, cat *catalog.Catalog, fp *venue.FloorPlan) *Harness {
	t.Helper()

	v, err := venue.New(cfg, cat, fp)
	if err != nil {
		t.Fatalf("venue.New: %v", err)
	}
	return NewHarnessWithVenue(t, v, cat)
}

// NewHarnessWithVenue is like NewHarness but uses an already-constructed
// venue, e.g. one that just imported a snapshot.
func NewHarnessWithVenue(t *testing.T, v *venue.Venue, cat *catalog.Catalog) *Harness {
	t.Helper()
	if v == nil {
		t.Fatalf("NewHarnessWithVenue: nil venue")
	}

	h := &Harness{T: t, Cat: cat, V: v, out: make(chan []byte, 16)}
	resp, ok := v.DebugAttach(protocol.RoleObserver, "harness", h.out)
	if !ok {
		t.Fatalf("DebugAttach failed")
	}
	h.SessionID = resp.SessionID
	return h
}

// Join adds a character through the boot path and returns its id.
func (h *Harness) Join(name, archetype string) string {
	h.T.Helper()

	resp := make(chan venue.JoinResponse, 1)
	_, _ = h.V.StepOnce([]venue.JoinRequest{{Name: name, Archetype: archetype, Resp: resp}}, nil, nil)
	jr := <-resp
	if jr.CharacterID == "" {
		h.T.Fatalf("join returned empty character id")
	}
	h.drainObs()
	return jr.CharacterID
}

// Leave removes a character at the next tick boundary.
func (h *Harness) Leave(id string) protocol.ObsMsg {
	h.T.Helper()
	_, _ = h.V.StepOnce(nil, []string{id}, nil)
	h.drainObs()
	return h.lastObs
}

// Command applies one operator command envelope and steps a tick.
func (h *Harness) Command(cmd protocol.CommandMsg) protocol.ObsMsg {
	h.T.Helper()
	if cmd.Type == "" {
		cmd.Type = protocol.TypeCommand
	}
	if cmd.ProtocolVersion == "" {
		cmd.ProtocolVersion = protocol.Version
	}
	_, _ = h.V.StepOnce(nil, nil, []venue.CommandEnvelope{{SessionID: h.SessionID, Cmd: cmd}})
	h.drainObs()
	return h.lastObs
}

// Override forces a character onto a single step of the given kind.
func (h *Harness) Override(charID string, kind catalog.Kind) protocol.ObsMsg {
	h.T.Helper()
	return h.Command(protocol.CommandMsg{
		Op:          protocol.OpOverride,
		CharacterID: charID,
		Kind:        string(kind),
	})
}

// StepNoop advances one tick with no inputs.
func (h *Harness) StepNoop() protocol.ObsMsg {
	h.T.Helper()
	_, _ = h.V.StepOnce(nil, nil, nil)
	h.drainObs()
	return h.lastObs
}

// StepN advances n ticks with no inputs.
func (h *Harness) StepN(n int) protocol.ObsMsg {
	h.T.Helper()
	for i := 0; i < n; i++ {
		h.StepNoop()
	}
	return h.lastObs
}

func (h *Harness) LastObs() protocol.ObsMsg {
	return h.lastObs
}

// Snapshot exports at currentTick-1 so a later import resumes exactly at
// currentTick.
func (h *Harness) Snapshot() (tick uint64, snap snapshot.SnapshotV1) {
	h.T.Helper()
	cur := h.V.CurrentTick()
	if cur == 0 {
		return 0, h.V.ExportSnapshot(0)
	}
	tick = cur - 1
	return tick, h.V.ExportSnapshot(tick)
}

// SetCharacterPos teleports a character onto a walkable cell.
func (h *Harness) SetCharacterPos(id string, pos venue.Cell) {
	h.T.Helper()
	if ok := h.V.DebugSetCharacterPos(id, pos); !ok {
		h.T.Fatalf("DebugSetCharacterPos(%s, %v) returned false", id, pos)
	}
}

func (h *Harness) drainObs() {
	h.T.Helper()
	var last []byte
	for {
		select {
		case b := <-h.out:
			last = b
			continue
		default:
		}
		break
	}
	if len(last) == 0 {
		return
	}
	var obs protocol.ObsMsg
	if err := json.Unmarshal(last, &obs); err != nil {
		h.T.Fatalf("unmarshal OBS: %v", err)
	}
	h.lastObs = obs
}
