package venue

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"
	"sort"

	"greenroom.ai/internal/sim/catalog"
	"greenroom.ai/internal/sim/plan"
)

// stateDigest hashes everything that feeds future ticks: character identity
// and position, live and saved plans, RNG streams, seats, the stage claim,
// conversations and their cooldowns. Events and sessions are outputs, not
// state, and stay out.
func (v *Venue) stateDigest(nowTick uint64) string {
	h := sha256.New()
	var tmp [8]byte

	v.digestHeader(h, &tmp, nowTick)
	v.digestStage(h, &tmp)
	v.digestConversations(h, &tmp)
	v.digestSeats(h, &tmp)
	v.digestCharacters(h, &tmp)

	return hex.EncodeToString(h.Sum(nil))
}

func (v *Venue) digestHeader(h hashWriter, tmp *[8]byte, nowTick uint64) {
	h.Write([]byte(v.cfg.ID))
	digestWriteU64(h, tmp, nowTick)
	digestWriteU64(h, tmp, uint64(v.cfg.Seed))
	h.Write([]byte(v.floor.Digest))
	h.Write([]byte(v.cat.KindsDigest))
	h.Write([]byte(v.cat.AreasDigest))
	h.Write([]byte(v.cat.ArchetypesDigest))
	digestWriteU64(h, tmp, v.nextCharNum.Load())
}

func (v *Venue) digestStage(h hashWriter, tmp *[8]byte) {
	h.Write([]byte{boolByte(v.stage != nil)})
	if v.stage != nil {
		h.Write([]byte(v.stage.PerformerID))
		digestWriteU64(h, tmp, v.stage.SinceTick)
	}
}

func (v *Venue) digestConversations(h hashWriter, tmp *[8]byte) {
	keys := v.sortedConvKeys()
	digestWriteU64(h, tmp, uint64(len(keys)))
	for _, key := range keys {
		conv := v.convs[key]
		h.Write([]byte(conv.A))
		h.Write([]byte(conv.B))
		digestWriteU64(h, tmp, conv.StartedTick)
		digestWriteU64(h, tmp, conv.EndsTick)
	}

	cool := make([]string, 0, len(v.convCooldown))
	for key := range v.convCooldown {
		cool = append(cool, key)
	}
	sort.Strings(cool)
	digestWriteU64(h, tmp, uint64(len(cool)))
	for _, key := range cool {
		h.Write([]byte(key))
		digestWriteU64(h, tmp, v.convCooldown[key])
	}
}

func (v *Venue) digestSeats(h hashWriter, tmp *[8]byte) {
	areas := make([]string, 0, len(v.seats.occupants))
	for area := range v.seats.occupants {
		areas = append(areas, string(area))
	}
	sort.Strings(areas)
	for _, area := range areas {
		seats := v.seats.occupants[catalog.AreaID(area)]
		cells := make([]Cell, 0, len(seats))
		for c := range seats {
			cells = append(cells, c)
		}
		sort.Slice(cells, func(i, j int) bool {
			if cells[i].Y != cells[j].Y {
				return cells[i].Y < cells[j].Y
			}
			return cells[i].X < cells[j].X
		})
		h.Write([]byte(area))
		digestWriteU64(h, tmp, uint64(len(cells)))
		for _, c := range cells {
			digestWriteI64(h, tmp, int64(c.X))
			digestWriteI64(h, tmp, int64(c.Y))
			h.Write([]byte(seats[c]))
		}
	}
}

func (v *Venue) digestCharacters(h hashWriter, tmp *[8]byte) {
	for _, id := range v.sortedCharIDs() {
		c := v.chars[id]
		h.Write([]byte(c.ID))
		h.Write([]byte(c.Name))
		h.Write([]byte(c.Archetype))
		digestWriteU64(h, tmp, c.Ordinal)
		digestWriteI64(h, tmp, int64(c.Station.X))
		digestWriteI64(h, tmp, int64(c.Station.Y))
		digestWriteI64(h, tmp, int64(c.Pos.X))
		digestWriteI64(h, tmp, int64(c.Pos.Y))
		digestWriteU64(h, tmp, c.Ex.Rand().State())
		h.Write([]byte(c.ConvWith))
		digestWriteU64(h, tmp, uint64(c.Stall))

		h.Write([]byte{boolByte(c.goal.step != nil)})
		if c.goal.step != nil {
			digestWriteI64(h, tmp, int64(c.goal.target.X))
			digestWriteI64(h, tmp, int64(c.goal.target.Y))
			h.Write([]byte{boolByte(c.goal.arrived)})
			digestWriteU64(h, tmp, uint64(c.goal.loopIdx))
		}

		h.Write([]byte{boolByte(c.Seat != nil)})
		if c.Seat != nil {
			h.Write([]byte(c.Seat.Area))
			digestWriteI64(h, tmp, int64(c.Seat.Pos.X))
			digestWriteI64(h, tmp, int64(c.Seat.Pos.Y))
		}

		digestPlan(h, tmp, c.Ex.CurrentPlan())
		digestPlan(h, tmp, c.Ex.SavedPlan())
	}
}

func digestPlan(h hashWriter, tmp *[8]byte, p *plan.Plan) {
	h.Write([]byte{boolByte(p != nil)})
	if p == nil {
		return
	}
	h.Write([]byte(p.Origin))
	digestWriteU64(h, tmp, uint64(p.Index))
	h.Write([]byte{boolByte(p.Paused)})
	h.Write([]byte{boolByte(p.ArrivalSet)})
	digestWriteU64(h, tmp, math.Float64bits(p.ArrivalAt))
	digestWriteU64(h, tmp, uint64(len(p.Steps)))
	for i := range p.Steps {
		st := &p.Steps[i]
		h.Write([]byte(st.Kind))
		digestWriteU64(h, tmp, math.Float64bits(st.Seconds))
		h.Write([]byte{boolByte(st.Indefinite)})
		h.Write([]byte(st.SeatArea))
		h.Write([]byte{boolByte(st.Target != nil)})
		if st.Target != nil {
			digestWriteI64(h, tmp, int64(st.Target.X))
			digestWriteI64(h, tmp, int64(st.Target.Y))
		}
	}
}

func digestWriteU64(h hashWriter, tmp *[8]byte, v uint64) {
	binary.LittleEndian.PutUint64(tmp[:], v)
	h.Write(tmp[:])
}

func digestWriteI64(h hashWriter, tmp *[8]byte, v int64) {
	digestWriteU64(h, tmp, uint64(v))
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

type hashWriter interface {
	Write(p []byte) (n int, err error)
}
