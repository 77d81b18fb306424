package venue

// ---- Debug/Test Helpers ----
//
// These helpers let black-box tests in sibling packages (e.g.
// internal/sim/venuetest) set up deterministic preconditions without
// reaching into venue internals.
//
// They are NOT safe to call concurrently with Run(). Use them only in tests
// that drive the venue via StepOnce(), from a single goroutine.

// DebugAttach registers a session synchronously, bypassing the attach
// channel. The returned AttachResponse carries the WELCOME and catalog burst
// exactly as a live attach would.
func (v *Venue) DebugAttach(role, name string, out chan []byte) (AttachResponse, bool) {
	if v == nil || out == nil {
		return AttachResponse{}, false
	}
	resp := make(chan AttachResponse, 1)
	v.handleAttach(AttachRequest{Role: role, Name: name, Out: out, Resp: resp})
	return <-resp, true
}

// DebugDetach removes a session synchronously.
func (v *Venue) DebugDetach(sessionID string) {
	if v == nil {
		return
	}
	v.handleDetach(sessionID)
}

// DebugSetCharacterPos teleports a character. The cell must be walkable.
func (v *Venue) DebugSetCharacterPos(id string, pos Cell) bool {
	if v == nil || id == "" {
		return false
	}
	c := v.chars[id]
	if c == nil || !v.floor.Walkable(pos) {
		return false
	}
	c.Pos = pos
	return true
}

// DebugCharacterPos reads a character's position.
func (v *Venue) DebugCharacterPos(id string) (Cell, bool) {
	if v == nil {
		return Cell{}, false
	}
	c := v.chars[id]
	if c == nil {
		return Cell{}, false
	}
	return c.Pos, true
}

// DebugStateDigest returns the venue digest for the given tick label, for
// determinism tests in sibling packages.
func (v *Venue) DebugStateDigest(nowTick uint64) string {
	if v == nil {
		return ""
	}
	return v.stateDigest(nowTick)
}
