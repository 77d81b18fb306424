package protocol

// HELLO (client -> server)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Role            string `json:"role"`
	ClientName      string `json:"client_name,omitempty"`
	MaxQueue        int    `json:"max_queue,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string         `json:"type"`
	ProtocolVersion string         `json:"protocol_version"`
	SessionID       string         `json:"session_id"`
	Role            string         `json:"role"`
	VenueParams     VenueParams    `json:"venue_params"`
	Catalogs        CatalogDigests `json:"catalogs"`
}

type VenueParams struct {
	VenueID      string `json:"venue_id"`
	TickRateHz   int    `json:"tick_rate_hz"`
	GridWidth    int    `json:"grid_width"`
	GridHeight   int    `json:"grid_height"`
	PlanStepsMin int    `json:"plan_steps_min"`
	PlanStepsMax int    `json:"plan_steps_max"`
	Seed         int64  `json:"seed"`
}

type CatalogDigests struct {
	KindsDigest      string `json:"kinds_digest"`
	AreasDigest      string `json:"areas_digest"`
	ArchetypesDigest string `json:"archetypes_digest"`
	FloorPlanDigest  string `json:"floor_plan_digest"`
}

// CATALOG (server -> client): one named catalog section per message.
type CatalogMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	Name            string      `json:"name"`
	Digest          string      `json:"digest"`
	Part            int         `json:"part"`
	TotalParts      int         `json:"total_parts"`
	Data            interface{} `json:"data"`
}

// COMMAND (operator -> server)
type CommandMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	CmdID           string `json:"cmd_id"`
	Op              string `json:"op"`
	CharacterID     string `json:"character_id,omitempty"`
	Kind            string `json:"kind,omitempty"`
	Name            string `json:"name,omitempty"`
	Archetype       string `json:"archetype,omitempty"`
}

// ACK (server -> operator): transport-level accept/reject of a COMMAND
// frame. The applied result arrives later as a COMMAND_RESULT event in the
// OBS stream, once the simulation has executed the command.
type AckMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	AckFor          string `json:"ack_for"`
	Accepted        bool   `json:"accepted"`
	Code            string `json:"code,omitempty"`
	Message         string `json:"message,omitempty"`
	ServerTick      uint64 `json:"server_tick,omitempty"`
}
