package venue

import (
	"greenroom.ai/internal/sim/catalog"
	"greenroom.ai/internal/sim/plan"
)

// seatRegistry tracks which character holds which seat cell. Claims happen
// on arrival, never at plan time, so a generated step can still be denied
// when the area filled up while the character was walking over.
type seatRegistry struct {
	occupants map[catalog.AreaID]map[Cell]string
}

func newSeatRegistry() *seatRegistry {
	return &seatRegistry{occupants: map[catalog.AreaID]map[Cell]string{}}
}

func (s *seatRegistry) occupancy(area catalog.AreaID) int {
	return len(s.occupants[area])
}

func (s *seatRegistry) holder(area catalog.AreaID, c Cell) string {
	return s.occupants[area][c]
}

// claim seats the character on the preferred cell, or on the first free cell
// of the area in floor plan order. Returns false when the area is at
// capacity. Re-claiming a cell the character already holds always succeeds:
// a redirected walker arriving at its reserved cell must not be bounced by
// the capacity gate its own claim helped fill.
func (s *seatRegistry) claim(charID string, area catalog.AreaID, preferred Cell, fp *FloorPlan, capacity int) (Cell, bool) {
	seats := s.occupants[area]
	if holder, taken := seats[preferred]; taken && holder == charID {
		return preferred, true
	}
	if len(seats) >= capacity {
		return Cell{}, false
	}
	if seats == nil {
		seats = map[Cell]string{}
		s.occupants[area] = seats
	}
	if _, taken := seats[preferred]; !taken {
		seats[preferred] = charID
		return preferred, true
	}
	for _, c := range fp.Seats[area] {
		if _, taken := seats[c]; !taken {
			seats[c] = charID
			return c, true
		}
	}
	return Cell{}, false
}

// release drops every seat held by the character. A character holds at most
// one, but sweeping is cheap and safe after odd transitions.
func (s *seatRegistry) release(charID string) {
	for area, seats := range s.occupants {
		for c, holder := range seats {
			if holder == charID {
				delete(seats, c)
			}
		}
		if len(seats) == 0 {
			delete(s.occupants, area)
		}
	}
}

// heldBy returns the seat the character already holds in the area, if any.
// A character holds at most one cell per area, so map order cannot matter.
func (s *seatRegistry) heldBy(charID string, area catalog.AreaID) (Cell, bool) {
	for c, holder := range s.occupants[area] {
		if holder == charID {
			return c, true
		}
	}
	return Cell{}, false
}

// freeSeat returns the first unclaimed seat cell of the area, respecting
// capacity. Used at goal resolution; the claim itself waits for arrival.
func (s *seatRegistry) freeSeat(area catalog.AreaID, fp *FloorPlan, capacity int) (Cell, bool) {
	if s.occupancy(area) >= capacity {
		return Cell{}, false
	}
	seats := s.occupants[area]
	for _, c := range fp.Seats[area] {
		if _, taken := seats[c]; !taken {
			return c, true
		}
	}
	return Cell{}, false
}

// availability feeds the plan generator's dynamic exclusions.
func (v *Venue) availability() plan.Availability {
	occ := map[catalog.AreaID]int{}
	for _, area := range catalog.AllAreas {
		if n := v.seats.occupancy(area); n > 0 {
			occ[area] = n
		}
	}
	return plan.Availability{
		StageOccupied: v.stage != nil,
		SeatOccupancy: occ,
	}
}
