package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"greenroom.ai/internal/protocol"
	"greenroom.ai/internal/sim/venue"
)

const (
	writeWait = 5 * time.Second
	readWait  = 60 * time.Second
)

type Server struct {
	venue *venue.Venue
	log   *log.Logger

	upgrader websocket.Upgrader
}

func NewServer(v *venue.Venue, logger *log.Logger) *Server {
	s := &Server{
		venue: v,
		log:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
	return s
}

// Handler serves one observer/operator session: HELLO in, WELCOME + CATALOG
// burst out, then the OBS stream; operators may also send COMMAND frames.
func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		sessionID, role, out := s.handshake(conn)
		if sessionID == "" {
			return
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Writer goroutine. All post-handshake frames (OBS and ACK) flow
		// through out so the connection has a single writer.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case b, ok := <-out:
					if !ok {
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Passive observers only ping; refresh the read deadline so they
		// are not dropped as idle.
		conn.SetPingHandler(func(appData string) error {
			_ = conn.SetReadDeadline(time.Now().Add(readWait))
			return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeWait))
		})

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(readWait))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				cancel()
				break
			}
			base, err := protocol.DecodeBase(msg)
			if err != nil {
				continue
			}
			if base.Type != protocol.TypeCommand {
				continue
			}

			var cmd protocol.CommandMsg
			if err := json.Unmarshal(msg, &cmd); err != nil {
				s.ack(out, "", false, protocol.ErrProtoBadRequest, "malformed COMMAND")
				continue
			}
			if cmd.ProtocolVersion != protocol.Version {
				s.ack(out, cmd.CmdID, false, protocol.ErrProtoBadRequest, "bad protocol_version")
				continue
			}
			if role != protocol.RoleOperator {
				s.ack(out, cmd.CmdID, false, protocol.ErrNoPermission, "observers cannot send COMMAND")
				continue
			}

			s.venue.Inbox() <- venue.CommandEnvelope{SessionID: sessionID, Cmd: cmd}
			s.ack(out, cmd.CmdID, true, "", "")
		}

		// Cleanup. Nonblocking: the venue loop may already be stopping.
		select {
		case s.venue.Detach() <- sessionID:
		default:
		}
	}
}

func (s *Server) handshake(conn *websocket.Conn) (sessionID, role string, out chan []byte) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return "", "", nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected HELLO"), time.Now().Add(time.Second))
		return "", "", nil
	}

	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return "", "", nil
	}
	if hello.ProtocolVersion != protocol.Version {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, protocol.ErrProtoBadRequest+": bad protocol_version"), time.Now().Add(time.Second))
		return "", "", nil
	}

	role = protocol.RoleObserver
	if strings.EqualFold(strings.TrimSpace(hello.Role), protocol.RoleOperator) {
		role = protocol.RoleOperator
	}

	maxQ := hello.MaxQueue
	if maxQ <= 0 {
		maxQ = 8
	}
	if maxQ > 64 {
		maxQ = 64
	}
	out = make(chan []byte, maxQ)

	respCh := make(chan venue.AttachResponse, 1)
	select {
	case s.venue.Attach() <- venue.AttachRequest{
		Role: role,
		Name: hello.ClientName,
		Out:  out,
		Resp: respCh,
	}:
	default:
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "server busy"), time.Now().Add(time.Second))
		return "", "", nil
	}
	resp := <-respCh

	// Send welcome + catalogs immediately, before the OBS stream starts.
	if err := writeJSON(conn, resp.Welcome); err != nil {
		return "", "", nil
	}
	for _, c := range resp.Catalogs {
		if err := writeJSON(conn, c); err != nil {
			return "", "", nil
		}
	}

	return resp.SessionID, role, out
}

// ack queues a transport-level ACK. Nonblocking: a client that cannot drain
// its own queue loses acks before it loses the connection.
func (s *Server) ack(out chan []byte, cmdID string, accepted bool, code, message string) {
	b, err := json.Marshal(protocol.AckMsg{
		Type:            protocol.TypeAck,
		ProtocolVersion: protocol.Version,
		AckFor:          cmdID,
		Accepted:        accepted,
		Code:            code,
		Message:         message,
		ServerTick:      s.venue.CurrentTick(),
	})
	if err != nil {
		return
	}
	select {
	case out <- b:
	default:
	}
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, b)
}
