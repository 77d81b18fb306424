package ws

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"greenroom.ai/internal/protocol"
	"greenroom.ai/internal/sim/catalog"
	"greenroom.ai/internal/sim/venue"
)

func startTestServer(t *testing.T) (*httptest.Server, *venue.Venue, func()) {
	t.Helper()
	v, err := venue.New(venue.Config{ID: "v-test", Seed: 1, TickRateHz: 20}, catalog.Defaults(), nil)
	if err != nil {
		t.Fatalf("venue.New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = v.Run(ctx) }()

	srv := httptest.NewServer(NewServer(v, log.New(io.Discard, "", 0)).Handler())
	stop := func() {
		srv.Close()
		cancel()
	}
	return srv, v, stop
}

func dialAndHello(t *testing.T, srv *httptest.Server, role string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		Role:            role,
		ClientName:      "test",
	}
	if err := conn.WriteJSON(hello); err != nil {
		t.Fatalf("write HELLO: %v", err)
	}
	return conn
}

// readUntil reads frames until pred returns true, failing after deadline.
func readUntil(t *testing.T, conn *websocket.Conn, pred func(base protocol.BaseMessage, raw []byte) bool) []byte {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		base, err := protocol.DecodeBase(raw)
		if err != nil {
			continue
		}
		if pred(base, raw) {
			return raw
		}
	}
	t.Fatalf("no matching frame before deadline")
	return nil
}

func TestHandler_ObserverHandshakeAndRoleGate(t *testing.T) {
	srv, _, stop := startTestServer(t)
	defer stop()

	conn := dialAndHello(t, srv, protocol.RoleObserver)
	defer conn.Close()

	raw := readUntil(t, conn, func(b protocol.BaseMessage, _ []byte) bool { return b.Type == protocol.TypeWelcome })
	var welcome protocol.WelcomeMsg
	if err := json.Unmarshal(raw, &welcome); err != nil {
		t.Fatalf("unmarshal WELCOME: %v", err)
	}
	if welcome.SessionID == "" || welcome.Role != protocol.RoleObserver {
		t.Fatalf("welcome mismatch: %+v", welcome)
	}
	if welcome.VenueParams.TickRateHz != 20 || welcome.VenueParams.VenueID != "v-test" {
		t.Fatalf("venue params mismatch: %+v", welcome.VenueParams)
	}
	if welcome.Catalogs.KindsDigest == "" || welcome.Catalogs.FloorPlanDigest == "" {
		t.Fatalf("missing catalog digests: %+v", welcome.Catalogs)
	}

	// The CATALOG burst follows before any OBS frame.
	seen := map[string]bool{}
	for len(seen) < 4 {
		raw := readUntil(t, conn, func(b protocol.BaseMessage, _ []byte) bool { return b.Type == protocol.TypeCatalog })
		var cat protocol.CatalogMsg
		if err := json.Unmarshal(raw, &cat); err != nil {
			t.Fatalf("unmarshal CATALOG: %v", err)
		}
		seen[cat.Name] = true
	}
	for _, name := range []string{"kinds", "areas", "archetypes", "floor_plan"} {
		if !seen[name] {
			t.Fatalf("missing CATALOG %q (got %v)", name, seen)
		}
	}

	// Observers may not command.
	cmd := protocol.CommandMsg{
		Type:            protocol.TypeCommand,
		ProtocolVersion: protocol.Version,
		CmdID:           "cmd-1",
		Op:              protocol.OpJoin,
		Name:            "Ada",
	}
	if err := conn.WriteJSON(cmd); err != nil {
		t.Fatalf("write COMMAND: %v", err)
	}
	raw = readUntil(t, conn, func(b protocol.BaseMessage, _ []byte) bool { return b.Type == protocol.TypeAck })
	var ack protocol.AckMsg
	if err := json.Unmarshal(raw, &ack); err != nil {
		t.Fatalf("unmarshal ACK: %v", err)
	}
	if ack.Accepted || ack.Code != protocol.ErrNoPermission || ack.AckFor != "cmd-1" {
		t.Fatalf("expected E_NO_PERMISSION reject, got %+v", ack)
	}
}

func TestHandler_OperatorJoinCommandApplies(t *testing.T) {
	srv, _, stop := startTestServer(t)
	defer stop()

	conn := dialAndHello(t, srv, protocol.RoleOperator)
	defer conn.Close()

	readUntil(t, conn, func(b protocol.BaseMessage, _ []byte) bool { return b.Type == protocol.TypeWelcome })

	cmd := protocol.CommandMsg{
		Type:            protocol.TypeCommand,
		ProtocolVersion: protocol.Version,
		CmdID:           "cmd-join",
		Op:              protocol.OpJoin,
		Name:            "Ada",
	}
	if err := conn.WriteJSON(cmd); err != nil {
		t.Fatalf("write COMMAND: %v", err)
	}

	raw := readUntil(t, conn, func(b protocol.BaseMessage, _ []byte) bool { return b.Type == protocol.TypeAck })
	var ack protocol.AckMsg
	if err := json.Unmarshal(raw, &ack); err != nil {
		t.Fatalf("unmarshal ACK: %v", err)
	}
	if !ack.Accepted {
		t.Fatalf("expected accept, got %+v", ack)
	}

	// The join applies at the next tick; the following OBS shows the cast.
	raw = readUntil(t, conn, func(b protocol.BaseMessage, raw []byte) bool {
		if b.Type != protocol.TypeObs {
			return false
		}
		var obs protocol.ObsMsg
		if err := json.Unmarshal(raw, &obs); err != nil {
			return false
		}
		return len(obs.Characters) == 1
	})
	var obs protocol.ObsMsg
	if err := json.Unmarshal(raw, &obs); err != nil {
		t.Fatalf("unmarshal OBS: %v", err)
	}
	if obs.Characters[0].Name != "Ada" {
		t.Fatalf("character name=%q want Ada", obs.Characters[0].Name)
	}
}

func TestHandler_RejectsBadProtocolVersion(t *testing.T) {
	srv, _, stop := startTestServer(t)
	defer stop()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: "9.9",
		Role:            protocol.RoleObserver,
	}
	if err := conn.WriteJSON(hello); err != nil {
		t.Fatalf("write HELLO: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatalf("expected close after bad protocol_version")
	}
}
