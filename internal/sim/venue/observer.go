package venue

import (
	"encoding/json"
	"fmt"

	"greenroom.ai/internal/protocol"
	"greenroom.ai/internal/sim/catalog"
)

// handleAttach registers an observer/operator session and answers with the
// WELCOME and the full catalog burst. It runs directly in the loop select:
// sessions only read, so they may come and go off the tick boundary.
func (v *Venue) handleAttach(req AttachRequest) {
	if req.Out == nil {
		if req.Resp != nil {
			req.Resp <- AttachResponse{}
		}
		return
	}
	role := req.Role
	if role != protocol.RoleOperator {
		role = protocol.RoleObserver
	}

	sessionID := fmt.Sprintf("S%d", v.nextSessionNum.Add(1))
	v.clients[sessionID] = &clientState{Role: role, Name: req.Name, Out: req.Out}

	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       sessionID,
		Role:            role,
		VenueParams: protocol.VenueParams{
			VenueID:      v.cfg.ID,
			TickRateHz:   v.cfg.TickRateHz,
			GridWidth:    v.floor.Width,
			GridHeight:   v.floor.Height,
			PlanStepsMin: v.cfg.PlanStepsMin,
			PlanStepsMax: v.cfg.PlanStepsMax,
			Seed:         v.cfg.Seed,
		},
		Catalogs: protocol.CatalogDigests{
			KindsDigest:      v.cat.KindsDigest,
			AreasDigest:      v.cat.AreasDigest,
			ArchetypesDigest: v.cat.ArchetypesDigest,
			FloorPlanDigest:  v.floor.Digest,
		},
	}

	catalogMsgs := []protocol.CatalogMsg{
		{
			Type:            protocol.TypeCatalog,
			ProtocolVersion: protocol.Version,
			Name:            "kinds",
			Digest:          v.cat.KindsDigest,
			Part:            1,
			TotalParts:      1,
			Data:            v.cat.Kinds,
		},
		{
			Type:            protocol.TypeCatalog,
			ProtocolVersion: protocol.Version,
			Name:            "areas",
			Digest:          v.cat.AreasDigest,
			Part:            1,
			TotalParts:      1,
			Data:            v.cat.Areas,
		},
		{
			Type:            protocol.TypeCatalog,
			ProtocolVersion: protocol.Version,
			Name:            "archetypes",
			Digest:          v.cat.ArchetypesDigest,
			Part:            1,
			TotalParts:      1,
			Data:            v.cat.Archetypes,
		},
		{
			Type:            protocol.TypeCatalog,
			ProtocolVersion: protocol.Version,
			Name:            "floor_plan",
			Digest:          v.floor.Digest,
			Part:            1,
			TotalParts:      1,
			Data:            v.floorObs,
		},
	}

	if req.Resp != nil {
		req.Resp <- AttachResponse{SessionID: sessionID, Welcome: welcome, Catalogs: catalogMsgs}
	}
}

func (v *Venue) handleDetach(sessionID string) {
	delete(v.clients, sessionID)
}

// broadcastObs renders one venue-wide OBS and fans the same payload out to
// every session, draining the buffered events into it.
func (v *Venue) broadcastObs(nowTick uint64) {
	if len(v.clients) == 0 {
		// Keep the buffer from growing unbounded while nobody watches; the
		// event log still has everything.
		if len(v.events) > 4096 {
			v.events = v.events[:0]
		}
		return
	}

	obs := v.buildObs(nowTick)
	v.events = nil

	b, err := json.Marshal(obs)
	if err != nil {
		return
	}
	for _, cl := range v.clients {
		sendLatest(cl.Out, b)
	}
}

func (v *Venue) buildObs(nowTick uint64) protocol.ObsMsg {
	obs := protocol.ObsMsg{
		Type:            protocol.TypeObs,
		ProtocolVersion: protocol.Version,
		Tick:            nowTick,
		VenueID:         v.cfg.ID,
		Events:          v.events,
	}

	if v.stage != nil {
		obs.Stage = protocol.StageObs{
			Occupied:    true,
			PerformerID: v.stage.PerformerID,
			SinceTick:   v.stage.SinceTick,
		}
	}

	for _, area := range catalog.AllAreas {
		obs.Areas = append(obs.Areas, protocol.AreaObs{
			ID:        string(area),
			Capacity:  v.cat.Capacity(area),
			Occupancy: v.seats.occupancy(area),
		})
	}

	for _, id := range v.sortedCharIDs() {
		c := v.chars[id]
		co := protocol.CharacterObs{
			ID:        c.ID,
			Name:      c.Name,
			Archetype: c.Archetype,
			Pos:       [2]int{c.Pos.X, c.Pos.Y},
			Station:   [2]int{c.Station.X, c.Station.Y},
			Paused:    c.Ex.Paused(),
			Watching:  c.Ex.Interrupted(),
		}
		if p := c.Ex.CurrentPlan(); p != nil {
			co.PlanIndex = p.Index
			co.Origin = string(p.Origin)
			for _, k := range p.Kinds() {
				co.PlanKinds = append(co.PlanKinds, string(k))
			}
			if st := p.Current(); st != nil {
				so := &protocol.StepObs{
					Kind:       string(st.Kind),
					Seconds:    st.Seconds,
					Indefinite: st.Indefinite,
					Anim:       st.Cue.Anim,
					SeatHeight: st.Cue.SeatHeight,
				}
				if c.goal.step == st {
					so.Arrived = c.goal.arrived
					so.Target = []int{c.goal.target.X, c.goal.target.Y}
				}
				co.Step = so
			}
		}
		if c.Seat != nil {
			co.Seat = &protocol.SeatObs{
				Area: string(c.Seat.Area),
				Pos:  [2]int{c.Seat.Pos.X, c.Seat.Pos.Y},
			}
		}
		obs.Characters = append(obs.Characters, co)
	}

	for _, key := range v.sortedConvKeys() {
		conv := v.convs[key]
		obs.Conversations = append(obs.Conversations, protocol.ConversationObs{
			A:        conv.A,
			B:        conv.B,
			EndsTick: conv.EndsTick,
		})
	}

	return obs
}
