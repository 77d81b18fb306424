package protocol

import "encoding/json"

const Version = "0.3"

// Message types.
const (
	TypeHello   = "HELLO"
	TypeWelcome = "WELCOME"
	TypeCatalog = "CATALOG"
	TypeObs     = "OBS"
	TypeCommand = "COMMAND"
	TypeAck     = "ACK"
)

// Client roles declared in HELLO. Observers receive the OBS stream;
// operators additionally may send COMMAND frames.
const (
	RoleObserver = "OBSERVER"
	RoleOperator = "OPERATOR"
)

// Operator command ops.
const (
	OpOverride = "OVERRIDE"
	OpJoin     = "JOIN"
	OpLeave    = "LEAVE"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}
