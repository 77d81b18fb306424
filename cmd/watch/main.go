package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"greenroom.ai/internal/protocol"
)

// watch is a small terminal client: it attaches to a venue, prints one line
// per OBS broadcast, and can fire a single operator command on connect.
func main() {
	var (
		url      = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name     = flag.String("name", "watch", "client name")
		operator = flag.Bool("operator", false, "attach as operator")

		joinSpec     = flag.String("join", "", "one-shot JOIN: NAME[:ARCHETYPE] (implies -operator)")
		overrideSpec = flag.String("override", "", "one-shot OVERRIDE: CHARACTER_ID:KIND (implies -operator)")
		leaveSpec    = flag.String("leave", "", "one-shot LEAVE: CHARACTER_ID (implies -operator)")

		showEvents = flag.Bool("events", false, "print venue events")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[watch] ", log.LstdFlags|log.Lmicroseconds)

	role := protocol.RoleObserver
	if *operator || *joinSpec != "" || *overrideSpec != "" || *leaveSpec != "" {
		role = protocol.RoleOperator
	}

	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		Role:            role,
		ClientName:      *name,
		MaxQueue:        8,
	}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Fatalf("send HELLO: %v", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)

	// The server drops sessions that stay silent past its read deadline;
	// passive observers keep the connection alive with pings.
	done := make(chan struct{})
	defer close(done)
	go func() {
		t := time.NewTicker(30 * time.Second)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-t.C:
				_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			}
		}
	}()

	cmdSeq := 0
	sendCommand := func(cmd protocol.CommandMsg) {
		cmdSeq++
		cmd.Type = protocol.TypeCommand
		cmd.ProtocolVersion = protocol.Version
		cmd.CmdID = fmt.Sprintf("W%03d", cmdSeq)
		if err := conn.WriteJSON(cmd); err != nil {
			logger.Printf("send COMMAND: %v", err)
		}
	}

	for {
		select {
		case <-stop:
			return
		default:
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		switch base.Type {
		case protocol.TypeWelcome:
			var w protocol.WelcomeMsg
			if err := json.Unmarshal(msg, &w); err != nil {
				continue
			}
			logger.Printf("WELCOME session=%s role=%s venue=%s tick_rate=%d seed=%d grid=%dx%d",
				w.SessionID, w.Role, w.VenueParams.VenueID, w.VenueParams.TickRateHz,
				w.VenueParams.Seed, w.VenueParams.GridWidth, w.VenueParams.GridHeight)

			if *joinSpec != "" {
				name, archetype := splitSpec(*joinSpec)
				sendCommand(protocol.CommandMsg{Op: protocol.OpJoin, Name: name, Archetype: archetype})
			}
			if *overrideSpec != "" {
				charID, kind := splitSpec(*overrideSpec)
				sendCommand(protocol.CommandMsg{Op: protocol.OpOverride, CharacterID: charID, Kind: kind})
			}
			if *leaveSpec != "" {
				sendCommand(protocol.CommandMsg{Op: protocol.OpLeave, CharacterID: strings.TrimSpace(*leaveSpec)})
			}

		case protocol.TypeCatalog:
			var c protocol.CatalogMsg
			if err := json.Unmarshal(msg, &c); err != nil {
				continue
			}
			logger.Printf("CATALOG %s digest=%.12s", c.Name, c.Digest)

		case protocol.TypeAck:
			var a protocol.AckMsg
			if err := json.Unmarshal(msg, &a); err != nil {
				continue
			}
			if a.Accepted {
				logger.Printf("ACK %s accepted tick=%d", a.AckFor, a.ServerTick)
			} else {
				logger.Printf("ACK %s rejected code=%s msg=%q", a.AckFor, a.Code, a.Message)
			}

		case protocol.TypeObs:
			var obs protocol.ObsMsg
			if err := json.Unmarshal(msg, &obs); err != nil {
				continue
			}
			printObs(logger, &obs, *showEvents)
		}
	}
}

func printObs(logger *log.Logger, obs *protocol.ObsMsg, showEvents bool) {
	stage := "dark"
	if obs.Stage.Occupied {
		stage = obs.Stage.PerformerID
	}
	seated := 0
	watching := 0
	for i := range obs.Characters {
		if obs.Characters[i].Seat != nil {
			seated++
		}
		if obs.Characters[i].Watching {
			watching++
		}
	}
	logger.Printf("OBS tick=%d chars=%d stage=%s seated=%d watching=%d convs=%d events=%d",
		obs.Tick, len(obs.Characters), stage, seated, watching, len(obs.Conversations), len(obs.Events))

	if !showEvents {
		return
	}
	for _, e := range obs.Events {
		b, err := json.Marshal(e)
		if err != nil {
			continue
		}
		logger.Printf("  event %s", b)
	}
}

func splitSpec(s string) (string, string) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 2)
	if len(parts) == 2 {
		return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
	}
	return strings.TrimSpace(parts[0]), ""
}
